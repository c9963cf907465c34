package picklist

import (
	"context"

	invdto "github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/internal/picklist/dto"
)

type UseCase interface {
	Generate(ctx context.Context, input *dto.GenerateInput) (*dto.GenerateResult, error)
	AssignSequence(ctx context.Context, pickListID string) (*model.PickList, error)
	RecordPick(ctx context.Context, pickListItemID string, pickedQuantity int, notes *string) (*model.PickListItem, error)
	AssignPicker(ctx context.Context, pickListID, pickerID string) (*model.PickList, error)
	Get(ctx context.Context, pickListID string) (*model.PickList, error)
	GetByOrder(ctx context.Context, orderID string) (*model.PickList, error)
	// Cancel releases what is still reserved for pending items.
	Cancel(ctx context.Context, pickListID string) (*model.PickList, error)
}

// Allocator is the slice of the lot store pick lists need. inventory.UseCase
// satisfies it.
type Allocator interface {
	Allocate(ctx context.Context, input *invdto.AllocateInput) (*model.Allocation, error)
	Release(ctx context.Context, lotID string, quantity int, ref invdto.Reference) error
	Settle(ctx context.Context, lotID string, commitQty, releaseQty int, ref invdto.Reference) error
}

// PathResolver resolves a location to its root-first ancestor chain.
// location.UseCase satisfies it.
type PathResolver interface {
	ResolvePath(ctx context.Context, id string) ([]model.LocationNode, error)
}
