package model

import "time"

type SweepStatus string

const (
	SweepScheduled  SweepStatus = "scheduled"
	SweepInProgress SweepStatus = "in_progress"
	SweepCompleted  SweepStatus = "completed"
	SweepCancelled  SweepStatus = "cancelled"
)

// Sweep is one shopping trip to a retailer on a given day.
type Sweep struct {
	BaseModel
	StoreID            string      `db:"store_id" json:"store_id"`
	SweepDate          time.Time   `db:"sweep_date" json:"sweep_date"`
	ScheduledStartTime time.Time   `db:"scheduled_start_time" json:"scheduled_start_time"`
	ActualStartTime    *time.Time  `db:"actual_start_time" json:"actual_start_time,omitempty"`
	ActualEndTime      *time.Time  `db:"actual_end_time" json:"actual_end_time,omitempty"`
	DriverID           *string     `db:"driver_id" json:"driver_id,omitempty"`
	Status             SweepStatus `db:"status" json:"status"`
	TotalItems         int         `db:"total_items" json:"total_items"` // distinct sweep items
	TotalLoad          int         `db:"total_load" json:"total_load"`   // sum of item quantities
	Items              []SweepItem `db:"-" json:"items,omitempty"`
}

type SweepItemStatus string

const (
	SweepItemPending     SweepItemStatus = "pending"
	SweepItemPicked      SweepItemStatus = "picked"
	SweepItemPartial     SweepItemStatus = "partial"
	SweepItemUnavailable SweepItemStatus = "unavailable"
	SweepItemSubstituted SweepItemStatus = "substituted"
)

func (s SweepItemStatus) IsTerminal() bool {
	return s != SweepItemPending
}

type SweepItem struct {
	BaseModel
	SweepID             string          `db:"sweep_id" json:"sweep_id"`
	ProductID           string          `db:"product_id" json:"product_id"`
	StoreItemID         *string         `db:"store_item_id" json:"store_item_id,omitempty"`
	Quantity            int             `db:"quantity" json:"quantity"`
	PickedQuantity      int             `db:"picked_quantity" json:"picked_quantity"`
	Status              SweepItemStatus `db:"status" json:"status"`
	SubstituteProductID *string         `db:"substitute_product_id" json:"substitute_product_id,omitempty"`
	Notes               *string         `db:"notes" json:"notes,omitempty"`
}

// ReceivedProductID is the product that physically came back from the store.
func (i *SweepItem) ReceivedProductID() string {
	if i.Status == SweepItemSubstituted && i.SubstituteProductID != nil {
		return *i.SubstituteProductID
	}
	return i.ProductID
}

// SweepDemand is the quantity one order line put on a sweep item. The key
// makes adding and removing that quantity safe to repeat.
type SweepDemand struct {
	DemandKey   string     `db:"demand_key" json:"demand_key"`
	SweepItemID string     `db:"sweep_item_id" json:"sweep_item_id"`
	Quantity    int        `db:"quantity" json:"quantity"`
	RemovedAt   *time.Time `db:"removed_at" json:"removed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
