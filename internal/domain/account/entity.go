package account

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds a member's balance in one currency. Balance and Locked are
// never negative at rest; every mutation is paired with a Version row in the
// same transaction.
type Account struct {
	ID       int64
	MemberID int64
	Currency string
	Balance  decimal.Decimal
	Locked   decimal.Decimal
}

// Version is an append-only audit entry recording a single account mutation.
// Version rows are never updated or deleted.
type Version struct {
	ID        int64
	MemberID  int64
	AccountID int64

	Reason int
	// Balance and Locked are the deltas applied by this mutation.
	Balance decimal.Decimal
	Locked  decimal.Decimal
	Fee     decimal.Decimal

	// ModifiableID/ModifiableType reference the record that caused the
	// mutation (a trade or an order).
	ModifiableID   int64
	ModifiableType string

	Currency  string
	Fun       int
	CreatedAt time.Time
}

// Mutation reasons recorded on Version rows.
const (
	ReasonStrikeAdd    = 110
	ReasonStrikeSub    = 120
	ReasonStrikeUnlock = 130
	ReasonOrderSubmit  = 600
	ReasonOrderCancel  = 610
	ReasonStrikeFill   = 620
)

// Ledger functions recorded on Version rows.
const (
	FunPlusFunds         = 1
	FunSubFunds          = 2
	FunPlusLocked        = 3
	FunSubLocked         = 4
	FunUnlockFunds       = 5
	FunUnlockAndSubFunds = 6
)
