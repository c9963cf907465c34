package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reference ties a lot movement to the business record that caused it,
// e.g. ("order", orderID) or ("sweep", sweepID).
type Reference struct {
	Type string
	ID   string
}

type AllocateInput struct {
	ProductID  string
	Quantity   int
	LocationID *string
	Reference  Reference
}

type ReceiveLotInput struct {
	ProductID      string
	LocationID     *string
	Quantity       int
	ReceivedAt     *time.Time // defaults to now
	ExpirationDate *time.Time
	LotNumber      *string
	SourceSweepID  *string
	ReceiptKey     *string // a second receipt with the same key is refused
	UnitCost       decimal.NullDecimal
	Notes          string
	Reference      Reference
}
