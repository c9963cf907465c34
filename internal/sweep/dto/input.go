package dto

import "time"

type AddDemandInput struct {
	StoreID     string
	Date        time.Time
	ProductID   string
	Quantity    int
	StoreItemID *string
	// DemandKey identifies the requesting order line. Repeating a keyed
	// request adds nothing.
	DemandKey string
}
