package inventory

import (
	"context"

	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

type UseCase interface {
	ReceiveLot(ctx context.Context, input *dto.ReceiveLotInput) (*model.InventoryLot, error)
	GetLot(ctx context.Context, id string) (*model.InventoryLot, error)

	// Allocate reserves units in FEFO/FIFO order. A shortfall is reported on
	// the returned Allocation with a nil error.
	Allocate(ctx context.Context, input *dto.AllocateInput) (*model.Allocation, error)
	Release(ctx context.Context, lotID string, quantity int, ref dto.Reference) error
	Commit(ctx context.Context, lotID string, quantity int, ref dto.Reference) error
	// Settle turns a reservation into commitQty consumed and releaseQty freed
	// units. It runs at most once per lot and reference.
	Settle(ctx context.Context, lotID string, commitQty, releaseQty int, ref dto.Reference) error

	AdjustLot(ctx context.Context, lotID string, newQuantity int, reason string) (*model.InventoryLot, error)
	SetAvailability(ctx context.Context, lotID string, available bool, reason string) (*model.InventoryLot, error)
	FindPreferredLot(ctx context.Context, productID string) (*model.InventoryLot, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.LotMovement, int, error)
}

// LocationLookup validates lot locations. location.UseCase satisfies it.
type LocationLookup interface {
	GetNode(ctx context.Context, id string) (*model.LocationNode, error)
}
