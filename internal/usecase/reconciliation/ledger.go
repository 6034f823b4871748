package reconciliation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Altanb21/TideBitEx-sub000/internal/domain/account"
	"github.com/Altanb21/TideBitEx-sub000/pkg/errors"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

// modifiable types recorded on version rows
const (
	modifiableTrade = "Trade"
	modifiableOrder = "Order"
)

// ledger applies double-entry mutations to accounts. Every mutation writes
// exactly one version row in the same transaction as the balance change; the
// caller owns the transaction.
type ledger struct {
	accounts account.Repository
	logger   logger.Interface
}

// mutation is one balance/locked change applied to a member's account in a
// single currency.
type mutation struct {
	memberID int64
	currency string
	// balance and locked are signed deltas.
	balance decimal.Decimal
	locked  decimal.Decimal
	fee     decimal.Decimal

	reason         int
	fun            int
	modifiableID   int64
	modifiableType string
	at             time.Time
}

// plusFunds credits available balance (reason StrikeAdd).
func (l *ledger) plusFunds(ctx context.Context, memberID int64, currency string, amount, fee decimal.Decimal, modifiableID int64, at time.Time) error {
	return l.apply(ctx, mutation{
		memberID:       memberID,
		currency:       currency,
		balance:        amount,
		fee:            fee,
		reason:         account.ReasonStrikeAdd,
		fun:            account.FunPlusFunds,
		modifiableID:   modifiableID,
		modifiableType: modifiableTrade,
		at:             at,
	})
}

// subLocked releases filled size out of the locked pool (reason StrikeSub).
func (l *ledger) subLocked(ctx context.Context, memberID int64, currency string, amount decimal.Decimal, modifiableID int64, at time.Time) error {
	return l.apply(ctx, mutation{
		memberID:       memberID,
		currency:       currency,
		locked:         amount.Neg(),
		reason:         account.ReasonStrikeSub,
		fun:            account.FunSubLocked,
		modifiableID:   modifiableID,
		modifiableType: modifiableTrade,
		at:             at,
	})
}

// unlockFunds moves unused locked funds back to available balance (reason
// StrikeUnlock). Used when an order closes with leftover locked amount.
func (l *ledger) unlockFunds(ctx context.Context, memberID int64, currency string, amount decimal.Decimal, orderID int64, at time.Time) error {
	return l.apply(ctx, mutation{
		memberID:       memberID,
		currency:       currency,
		balance:        amount,
		locked:         amount.Neg(),
		reason:         account.ReasonStrikeUnlock,
		fun:            account.FunUnlockFunds,
		modifiableID:   orderID,
		modifiableType: modifiableOrder,
		at:             at,
	})
}

func (l *ledger) apply(ctx context.Context, m mutation) error {
	acc, err := l.accounts.GetForUpdate(ctx, m.memberID, m.currency)
	if err != nil {
		return err
	}

	balance := acc.Balance.Add(m.balance)
	locked := acc.Locked.Add(m.locked)

	if balance.IsNegative() || locked.IsNegative() {
		l.logger.ErrorContext(ctx, errors.NewTracer("account mutation would go negative"),
			logger.Field{Key: "memberID", Value: m.memberID},
			logger.Field{Key: "currency", Value: m.currency},
			logger.Field{Key: "balance", Value: balance.String()},
			logger.Field{Key: "locked", Value: locked.String()},
			logger.Field{Key: "reason", Value: m.reason},
		)
		return errors.NewErrorDetailsWithObject(
			"account mutation would produce a negative balance",
			string(errors.LedgerNegativeBalanceError),
			m.currency,
			m,
		).WithSeverity(errors.SeverityCritical)
	}

	acc.Balance = balance
	acc.Locked = locked
	if err := l.accounts.Save(ctx, acc); err != nil {
		return err
	}

	return l.accounts.InsertVersion(ctx, &account.Version{
		MemberID:       m.memberID,
		AccountID:      acc.ID,
		Reason:         m.reason,
		Balance:        m.balance,
		Locked:         m.locked,
		Fee:            m.fee,
		ModifiableID:   m.modifiableID,
		ModifiableType: m.modifiableType,
		Currency:       m.currency,
		Fun:            m.fun,
		CreatedAt:      m.at,
	})
}
