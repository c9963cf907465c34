package location

import (
	"context"

	"github.com/fekuna/omnipos-fulfillment-service/internal/location/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

type UseCase interface {
	CreateNode(ctx context.Context, input *dto.CreateNodeInput) (*model.LocationNode, error)
	GetNode(ctx context.Context, id string) (*model.LocationNode, error)
	ResolvePath(ctx context.Context, id string) ([]model.LocationNode, error)
	ListDescendants(ctx context.Context, id string) ([]model.LocationNode, error)
	MoveNode(ctx context.Context, id, newParentID string) (*model.LocationNode, error)
	DeleteNode(ctx context.Context, id string) error

	// Setup tooling
	GenerateSlots(ctx context.Context, slotsPerShelf int) (int, error)
	ImportLayout(ctx context.Context, layout *dto.Layout) (int, error)
}
