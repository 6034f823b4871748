package cache

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

// BalanceRow is one currency balance of a member.
type BalanceRow struct {
	Currency string
	Balance  decimal.Decimal
	Locked   decimal.Decimal
}

// AccountBook caches per-member balances keyed by member id.
type AccountBook = Book[BalanceRow]

// AccountBookKey builds the snapshot key for a member's balances.
func AccountBookKey(memberID int64) string {
	return strconv.FormatInt(memberID, 10)
}

// NewAccountBook creates the balance cache. Currencies are never evicted by
// an incremental push; a zeroed balance stays visible.
func NewAccountBook(log logger.Interface) *AccountBook {
	return NewBook("accountbook", Strategy[BalanceRow]{
		ID: func(r BalanceRow) string {
			return r.Currency
		},
		Equal: func(a, b BalanceRow) bool {
			return a.Balance.Equal(b.Balance) && a.Locked.Equal(b.Locked)
		},
		Policy: Policy{Add: true, Update: true},
	}, log)
}
