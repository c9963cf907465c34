package dto

import "github.com/fekuna/omnipos-fulfillment-service/internal/model"

// LineResult reports what Generate could reserve for one order line.
type LineResult struct {
	OrderItemID string
	ProductID   string
	Requested   int
	Allocated   int
	Shortfall   int
	ItemIDs     []string
	Lots        []model.LotAllocation
	Err         error // line-scoped failure; siblings are unaffected
}

// GenerateResult holds the pick list, nil when nothing could be reserved.
type GenerateResult struct {
	PickList *model.PickList
	Lines    []LineResult
}
