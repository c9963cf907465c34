package picklist

import (
	"context"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

type Repository interface {
	// Create inserts the list and its items in one transaction. It returns
	// ErrAlreadyDispatched if the order has a list that is not cancelled.
	Create(ctx context.Context, list *model.PickList) error
	FindByID(ctx context.Context, id string) (*model.PickList, error)
	// FindByOrderID prefers the order's active list over cancelled ones.
	FindByOrderID(ctx context.Context, orderID string) (*model.PickList, error)
	// UpdateList writes the list only if its stored status is still from,
	// otherwise it returns ErrInvalidTransition.
	UpdateList(ctx context.Context, list *model.PickList, from model.PickListStatus) error

	FindItemByID(ctx context.Context, id string) (*model.PickListItem, error)
	// ListItems returns items in pick order, unsequenced items last.
	ListItems(ctx context.Context, pickListID string) ([]model.PickListItem, error)
	UpdateSequences(ctx context.Context, items []model.PickListItem) error
	// ResolveItem writes the outcome of a pending item. It returns
	// ErrInvalidTransition if the item is no longer pending.
	ResolveItem(ctx context.Context, item *model.PickListItem) error
}
