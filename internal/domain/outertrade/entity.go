package outertrade

import "time"

// Status is the processing state of a staged external fill. A row starts
// Unprocessed and moves to exactly one terminal status; it never re-enters
// Unprocessed.
type Status int

const (
	// StatusUnprocessed marks a freshly staged fill.
	StatusUnprocessed Status = 0
	// StatusDone marks a fill folded into the ledger.
	StatusDone Status = 1
	// StatusClientOrderIDError marks a fill whose client order id could not
	// be decoded.
	StatusClientOrderIDError Status = 7
	// StatusOtherSystemTrade marks a fill that belongs to a different
	// deployment sharing the exchange account.
	StatusOtherSystemTrade Status = 8
	// StatusSystemError marks a fill rejected by a non-retryable ledger
	// integrity violation.
	StatusSystemError Status = 9
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s != StatusUnprocessed
}

// OuterTrade is a staged fill pulled from the external exchange. ID is the
// exchange's trade id; staging is insert-or-ignore on that id, which is the
// primary de-duplication barrier of the pipeline.
type OuterTrade struct {
	ID           string
	ExchangeCode string
	// Data is the raw fill payload as received from the exchange.
	Data      []byte
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}
