package inventory

import (
	"context"

	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

// Repository persists lots. Every method that changes a lot takes the
// movement to record and writes it in the same transaction, filling in the
// change and after-values from the row it actually wrote.
type Repository interface {
	// Create returns ErrDuplicateReceipt when a lot with the same receipt key exists.
	Create(ctx context.Context, lot *model.InventoryLot, movement *model.LotMovement) error
	FindByID(ctx context.Context, id string) (*model.InventoryLot, error)

	// ListAllocatable returns available lots with free units in FEFO/FIFO order.
	ListAllocatable(ctx context.Context, productID string, locationID *string) ([]model.InventoryLot, error)

	// Reserve adds qty to reserved_quantity only if the lot is available and
	// still has qty free units. Otherwise it returns ErrReservationConflict.
	Reserve(ctx context.Context, lotID string, qty int, movement *model.LotMovement) (*model.InventoryLot, error)
	// Release lowers reserved_quantity by qty, floored at zero.
	Release(ctx context.Context, lotID string, qty int, movement *model.LotMovement) (*model.InventoryLot, error)
	// Commit removes qty reserved units from the lot entirely.
	Commit(ctx context.Context, lotID string, qty int, movement *model.LotMovement) (*model.InventoryLot, error)
	// Settle commits commitQty and releases releaseQty reserved units in one
	// transaction. If the lot already has a commit or release movement with
	// the same reference it changes nothing and reports applied=false.
	Settle(ctx context.Context, lotID string, commitQty, releaseQty int, commit, release *model.LotMovement) (lot *model.InventoryLot, applied bool, err error)
	Adjust(ctx context.Context, lotID string, newQuantity int, movement *model.LotMovement) (*model.InventoryLot, error)
	SetAvailability(ctx context.Context, lotID string, available bool, movement *model.LotMovement) (*model.InventoryLot, error)

	CountLotsAtLocations(ctx context.Context, locationIDs []string) (int, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.LotMovement, int, error)
}
