package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type InventoryLot struct {
	BaseModel
	ProductID        string              `db:"product_id" json:"product_id"`
	LocationID       *string             `db:"location_id" json:"location_id,omitempty"`
	Quantity         int                 `db:"quantity" json:"quantity"`
	ReservedQuantity int                 `db:"reserved_quantity" json:"reserved_quantity"`
	ReceivedAt       time.Time           `db:"received_at" json:"received_at"`
	ExpirationDate   *time.Time          `db:"expiration_date" json:"expiration_date,omitempty"`
	LotNumber        *string             `db:"lot_number" json:"lot_number,omitempty"`
	SourceSweepID    *string             `db:"source_sweep_id" json:"source_sweep_id,omitempty"`
	ReceiptKey       *string             `db:"receipt_key" json:"receipt_key,omitempty"`
	UnitCost         decimal.NullDecimal `db:"unit_cost" json:"unit_cost"`
	IsAvailable      bool                `db:"is_available" json:"is_available"`
}

// AvailableQuantity is quantity minus reserved, never negative.
func (l *InventoryLot) AvailableQuantity() int {
	if q := l.Quantity - l.ReservedQuantity; q > 0 {
		return q
	}
	return 0
}

func (l *InventoryLot) Allocatable() bool {
	return l.IsAvailable && l.AvailableQuantity() > 0
}

// Value is the on-hand cost of the lot, zero when the cost is unknown.
func (l *InventoryLot) Value() decimal.Decimal {
	if !l.UnitCost.Valid {
		return decimal.Zero
	}
	return l.UnitCost.Decimal.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LessFEFO orders lots by expiration ascending with non-expiring lots last,
// then by receipt time, then by id.
func LessFEFO(a, b *InventoryLot) bool {
	switch {
	case a.ExpirationDate != nil && b.ExpirationDate == nil:
		return true
	case a.ExpirationDate == nil && b.ExpirationDate != nil:
		return false
	case a.ExpirationDate != nil && !a.ExpirationDate.Equal(*b.ExpirationDate):
		return a.ExpirationDate.Before(*b.ExpirationDate)
	}
	if !a.ReceivedAt.Equal(b.ReceivedAt) {
		return a.ReceivedAt.Before(b.ReceivedAt)
	}
	return a.ID < b.ID
}

func SortLotsFEFO(lots []InventoryLot) {
	sort.SliceStable(lots, func(i, j int) bool {
		return LessFEFO(&lots[i], &lots[j])
	})
}

type MovementType string

const (
	MovementReceive    MovementType = "receive"
	MovementReserve    MovementType = "reserve"
	MovementRelease    MovementType = "release"
	MovementCommit     MovementType = "commit"
	MovementAdjust     MovementType = "adjust"
	MovementQuarantine MovementType = "quarantine"
)

// LotMovement is the audit row written with every lot quantity change.
type LotMovement struct {
	ID             string       `db:"id" json:"id"`
	LotID          string       `db:"lot_id" json:"lot_id"`
	ProductID      string       `db:"product_id" json:"product_id"`
	MovementType   MovementType `db:"movement_type" json:"movement_type"`
	QuantityChange int          `db:"quantity_change" json:"quantity_change"`
	ReservedChange int          `db:"reserved_change" json:"reserved_change"`
	QuantityAfter  int          `db:"quantity_after" json:"quantity_after"`
	ReservedAfter  int          `db:"reserved_after" json:"reserved_after"`
	ReferenceType  *string      `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID    *string      `db:"reference_id" json:"reference_id,omitempty"`
	Notes          string       `db:"notes" json:"notes"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}

type LotAllocation struct {
	LotID          string     `json:"lot_id"`
	LocationID     *string    `json:"location_id,omitempty"`
	Quantity       int        `json:"quantity"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

// Allocation is the result of reserving units of one product. A shortfall is a
// valid terminal state, not an error.
type Allocation struct {
	ProductID  string          `json:"product_id"`
	LocationID *string         `json:"location_id,omitempty"`
	Requested  int             `json:"requested"`
	Allocated  int             `json:"allocated"`
	Shortfall  int             `json:"shortfall"`
	Lots       []LotAllocation `json:"lots"`
}

// Take records qty units reserved from lot.
func (a *Allocation) Take(lot *InventoryLot, qty int) {
	for i := range a.Lots {
		if a.Lots[i].LotID == lot.ID {
			a.Lots[i].Quantity += qty
			a.Allocated += qty
			a.Shortfall = a.Requested - a.Allocated
			return
		}
	}
	a.Lots = append(a.Lots, LotAllocation{
		LotID:          lot.ID,
		LocationID:     lot.LocationID,
		Quantity:       qty,
		ExpirationDate: lot.ExpirationDate,
	})
	a.Allocated += qty
	a.Shortfall = a.Requested - a.Allocated
}

func (a *Allocation) Remaining() int {
	return a.Requested - a.Allocated
}

// Err reports the shortfall as ErrInsufficientInventory, nil when fully allocated.
func (a *Allocation) Err() error {
	if a.Shortfall <= 0 {
		return nil
	}
	return fmt.Errorf("%w: product %s requested %d allocated %d",
		ErrInsufficientInventory, a.ProductID, a.Requested, a.Allocated)
}
