package sweep

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

type Repository interface {
	// CreateSweep returns ErrDuplicateSweep when a non-cancelled sweep already
	// exists for the store and date.
	CreateSweep(ctx context.Context, s *model.Sweep) error
	FindSweepByID(ctx context.Context, id string) (*model.Sweep, error)
	// FindActiveSweep returns the non-cancelled sweep for store and date.
	FindActiveSweep(ctx context.Context, storeID string, date time.Time) (*model.Sweep, error)
	// ListActiveSweeps returns non-cancelled sweeps with from <= sweep_date < to.
	ListActiveSweeps(ctx context.Context, storeID string, from, to time.Time) ([]model.Sweep, error)
	UpdateSweep(ctx context.Context, s *model.Sweep) error

	// AddItemQuantity inserts item or, if the sweep already has a row for the
	// product, adds item.Quantity to it. The sweep must be scheduled. Sweep
	// totals are recomputed in the same transaction. A non-empty demandKey
	// is recorded with the quantity; if the key is already counted the
	// item it counts against is returned unchanged.
	AddItemQuantity(ctx context.Context, item *model.SweepItem, demandKey string) (*model.SweepItem, error)
	// RemoveItemQuantity subtracts qty, floored at zero, from an item of a
	// scheduled sweep and recomputes totals.
	RemoveItemQuantity(ctx context.Context, itemID string, qty int) (*model.SweepItem, error)
	// ReleaseDemand removes the quantity recorded under demandKey once.
	// Releasing an already released key returns the item unchanged.
	ReleaseDemand(ctx context.Context, demandKey string, at time.Time) (*model.SweepItem, error)
	FindItemByID(ctx context.Context, id string) (*model.SweepItem, error)
	ListItems(ctx context.Context, sweepID string) ([]model.SweepItem, error)
	// UpdateItem writes the item outcome only if its stored status is still
	// from and picked quantity does not decrease. Otherwise it returns
	// ErrInvalidTransition.
	UpdateItem(ctx context.Context, item *model.SweepItem, from model.SweepItemStatus) error
}
