package model

import "time"

type PickListStatus string

const (
	PickListPending    PickListStatus = "pending"
	PickListInProgress PickListStatus = "in_progress"
	PickListCompleted  PickListStatus = "completed"
	PickListCancelled  PickListStatus = "cancelled"
)

type PickList struct {
	BaseModel
	OrderID     string         `db:"order_id" json:"order_id"`
	PickerID    *string        `db:"picker_id" json:"picker_id,omitempty"`
	Status      PickListStatus `db:"status" json:"status"`
	StartedAt   *time.Time     `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	Priority    int            `db:"priority" json:"priority"`
	Items       []PickListItem `db:"-" json:"items,omitempty"`
}

type PickListItemStatus string

const (
	PickItemPending     PickListItemStatus = "pending"
	PickItemPicked      PickListItemStatus = "picked"
	PickItemUnavailable PickListItemStatus = "unavailable"
	PickItemPartial     PickListItemStatus = "partial"
)

// IsTerminal reports whether the item no longer needs picker attention.
// Partial and unavailable count: a pick list completes without full success.
func (s PickListItemStatus) IsTerminal() bool {
	return s != PickItemPending
}

type PickListItem struct {
	BaseModel
	PickListID     string             `db:"pick_list_id" json:"pick_list_id"`
	OrderItemID    string             `db:"order_item_id" json:"order_item_id"`
	ProductID      string             `db:"product_id" json:"product_id"`
	LotID          *string            `db:"lot_id" json:"lot_id,omitempty"`
	LocationID     *string            `db:"location_id" json:"location_id,omitempty"`
	LocationCode   *string            `db:"location_code" json:"location_code,omitempty"`
	Quantity       int                `db:"quantity" json:"quantity"`
	PickedQuantity *int               `db:"picked_quantity" json:"picked_quantity,omitempty"`
	Status         PickListItemStatus `db:"status" json:"status"`
	Sequence       *int               `db:"sequence" json:"sequence,omitempty"`
	Notes          *string            `db:"notes" json:"notes,omitempty"`
}

// PickStatusFor maps a reported picked quantity to the item status.
func PickStatusFor(quantity, picked int) PickListItemStatus {
	switch {
	case picked <= 0:
		return PickItemUnavailable
	case picked >= quantity:
		return PickItemPicked
	default:
		return PickItemPartial
	}
}

// AllTerminal reports whether every item has reached a terminal state.
func AllTerminal(items []PickListItem) bool {
	for _, it := range items {
		if !it.Status.IsTerminal() {
			return false
		}
	}
	return true
}
