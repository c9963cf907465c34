package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type LineStatus string

const (
	LineAllocated      LineStatus = "allocated"
	LineBackordered    LineStatus = "backordered"
	LineSweepRequested LineStatus = "sweep_requested"
	LineFailed         LineStatus = "failed"
	LineCancelled      LineStatus = "cancelled"
)

// NeedsAttention is true for lines the customer-facing status must flag.
func (s LineStatus) NeedsAttention() bool {
	return s == LineBackordered || s == LineFailed
}

type FulfillmentStatus string

const (
	// FulfillmentPending marks an order claimed by a dispatch still in flight.
	FulfillmentPending        FulfillmentStatus = "pending"
	FulfillmentReady          FulfillmentStatus = "ready"
	FulfillmentNeedsAttention FulfillmentStatus = "needs_attention"
	FulfillmentCancelled      FulfillmentStatus = "cancelled"
)

type LineOutcome struct {
	OrderItemID     string          `json:"order_item_id"`
	ProductID       string          `json:"product_id"`
	Source          InventoryType   `json:"source,omitempty"`
	Requested       int             `json:"requested"`
	Allocated       int             `json:"allocated"`
	Shortfall       int             `json:"shortfall"`
	Status          LineStatus      `json:"status"`
	PickListItemIDs []string        `json:"pick_list_item_ids,omitempty"`
	Lots            []LotAllocation `json:"lots,omitempty"`
	SweepID         *string         `json:"sweep_id,omitempty"`
	SweepItemID     *string         `json:"sweep_item_id,omitempty"`
	StoreID         *string         `json:"store_id,omitempty"`
	SweepDate       *time.Time      `json:"sweep_date,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// LineOutcomes is stored as a JSONB column.
type LineOutcomes []LineOutcome

func (l LineOutcomes) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *LineOutcomes) Scan(src interface{}) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("line outcomes: unsupported scan type")
	}
	return json.Unmarshal(b, l)
}

// FulfillmentOutcome is what the engine hands back to the order subsystem.
type FulfillmentOutcome struct {
	OrderID      string            `db:"order_id" json:"order_id"`
	Status       FulfillmentStatus `db:"status" json:"status"`
	PickListID   *string           `db:"pick_list_id" json:"pick_list_id,omitempty"`
	Lines        LineOutcomes      `db:"lines" json:"lines"`
	DispatchedAt time.Time         `db:"dispatched_at" json:"dispatched_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
	// Version is bumped on every write; updates only land on the version read.
	Version int `db:"version" json:"-"`
}

// WorstStatus derives the order-level status from its lines.
func WorstStatus(lines []LineOutcome) FulfillmentStatus {
	for _, l := range lines {
		if l.Status.NeedsAttention() {
			return FulfillmentNeedsAttention
		}
	}
	return FulfillmentReady
}
