package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

// MemoryRepository is a process-local lot store. A single mutex makes every
// reserve a compare-and-swap, matching the conditional UPDATE in postgres.
type MemoryRepository struct {
	mu        sync.Mutex
	lots      map[string]model.InventoryLot
	movements []model.LotMovement
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{lots: map[string]model.InventoryLot{}}
}

func (r *MemoryRepository) record(m *model.LotMovement, before, after *model.InventoryLot) {
	m.LotID = after.ID
	m.ProductID = after.ProductID
	m.QuantityChange = after.Quantity - before.Quantity
	m.ReservedChange = after.ReservedQuantity - before.ReservedQuantity
	m.QuantityAfter = after.Quantity
	m.ReservedAfter = after.ReservedQuantity
	r.movements = append(r.movements, *m)
}

func (r *MemoryRepository) Create(_ context.Context, lot *model.InventoryLot, movement *model.LotMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lots[lot.ID]; ok {
		return fmt.Errorf("lot %s already exists", lot.ID)
	}
	if lot.ReceiptKey != nil {
		for _, l := range r.lots {
			if l.ReceiptKey != nil && *l.ReceiptKey == *lot.ReceiptKey {
				return fmt.Errorf("%w: receipt %s", model.ErrDuplicateReceipt, *lot.ReceiptKey)
			}
		}
	}
	r.lots[lot.ID] = *lot
	r.record(movement, &model.InventoryLot{}, lot)
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*model.InventoryLot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lot, ok := r.lots[id]
	if !ok {
		return nil, fmt.Errorf("%w: lot %s", model.ErrNotFound, id)
	}
	return &lot, nil
}

func (r *MemoryRepository) ListAllocatable(_ context.Context, productID string, locationID *string) ([]model.InventoryLot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []model.InventoryLot{}
	for _, lot := range r.lots {
		if lot.ProductID != productID || !lot.Allocatable() {
			continue
		}
		if locationID != nil && *locationID != "" && (lot.LocationID == nil || *lot.LocationID != *locationID) {
			continue
		}
		out = append(out, lot)
	}
	model.SortLotsFEFO(out)
	return out, nil
}

func (r *MemoryRepository) Reserve(_ context.Context, lotID string, qty int, movement *model.LotMovement) (*model.InventoryLot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before, ok := r.lots[lotID]
	if !ok || !before.IsAvailable || before.Quantity-before.ReservedQuantity < qty {
		return nil, fmt.Errorf("%w: lot %s cannot take %d more units", model.ErrReservationConflict, lotID, qty)
	}
	after := before
	after.ReservedQuantity += qty
	after.UpdatedAt = movement.CreatedAt
	r.lots[lotID] = after
	r.record(movement, &before, &after)
	return &after, nil
}

func (r *MemoryRepository) mutate(lotID string, movement *model.LotMovement, apply func(lot *model.InventoryLot) error) (*model.InventoryLot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before, ok := r.lots[lotID]
	if !ok {
		return nil, fmt.Errorf("%w: lot %s", model.ErrNotFound, lotID)
	}
	after := before
	if err := apply(&after); err != nil {
		return nil, err
	}
	if after.Quantity == before.Quantity &&
		after.ReservedQuantity == before.ReservedQuantity &&
		after.IsAvailable == before.IsAvailable {
		return &before, nil
	}
	after.UpdatedAt = movement.CreatedAt
	r.lots[lotID] = after
	r.record(movement, &before, &after)
	return &after, nil
}

func (r *MemoryRepository) Release(_ context.Context, lotID string, qty int, movement *model.LotMovement) (*model.InventoryLot, error) {
	return r.mutate(lotID, movement, func(lot *model.InventoryLot) error {
		ReleaseUnits(lot, qty)
		return nil
	})
}

func (r *MemoryRepository) Commit(_ context.Context, lotID string, qty int, movement *model.LotMovement) (*model.InventoryLot, error) {
	return r.mutate(lotID, movement, func(lot *model.InventoryLot) error {
		return CommitUnits(lot, qty)
	})
}

func sameRef(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

func (r *MemoryRepository) Settle(_ context.Context, lotID string, commitQty, releaseQty int, commit, release *model.LotMovement) (*model.InventoryLot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before, ok := r.lots[lotID]
	if !ok {
		return nil, false, fmt.Errorf("%w: lot %s", model.ErrNotFound, lotID)
	}
	for _, m := range r.movements {
		if m.LotID == lotID &&
			(m.MovementType == model.MovementCommit || m.MovementType == model.MovementRelease) &&
			sameRef(m.ReferenceType, commit.ReferenceType) && sameRef(m.ReferenceID, commit.ReferenceID) {
			return &before, false, nil
		}
	}

	after := before
	if commitQty > 0 {
		if err := CommitUnits(&after, commitQty); err != nil {
			return nil, false, err
		}
	}
	mid := after
	if releaseQty > 0 {
		ReleaseUnits(&after, releaseQty)
	}

	if commitQty > 0 {
		r.record(commit, &before, &mid)
	}
	if releaseQty > 0 {
		r.record(release, &mid, &after)
	}
	after.UpdatedAt = commit.CreatedAt
	r.lots[lotID] = after
	return &after, true, nil
}

func (r *MemoryRepository) Adjust(_ context.Context, lotID string, newQuantity int, movement *model.LotMovement) (*model.InventoryLot, error) {
	return r.mutate(lotID, movement, func(lot *model.InventoryLot) error {
		return AdjustUnits(lot, newQuantity)
	})
}

func (r *MemoryRepository) SetAvailability(_ context.Context, lotID string, available bool, movement *model.LotMovement) (*model.InventoryLot, error) {
	return r.mutate(lotID, movement, func(lot *model.InventoryLot) error {
		lot.IsAvailable = available
		return nil
	})
}

func (r *MemoryRepository) CountLotsAtLocations(_ context.Context, locationIDs []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make(map[string]bool, len(locationIDs))
	for _, id := range locationIDs {
		ids[id] = true
	}
	count := 0
	for _, lot := range r.lots {
		if lot.LocationID != nil && ids[*lot.LocationID] && lot.Quantity > 0 {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) ListMovements(_ context.Context, f *dto.MovementFilters) ([]model.LotMovement, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []model.LotMovement{}
	for _, m := range r.movements {
		if f.LotID != "" && m.LotID != f.LotID {
			continue
		}
		if f.ProductID != "" && m.ProductID != f.ProductID {
			continue
		}
		if f.MovementType != "" && m.MovementType != f.MovementType {
			continue
		}
		if f.StartDate != nil && m.CreatedAt.Before(*f.StartDate) {
			continue
		}
		if f.EndDate != nil && !m.CreatedAt.Before(*f.EndDate) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	total := len(out)
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		start := (page - 1) * f.PageSize
		if start > total {
			start = total
		}
		end := start + f.PageSize
		if end > total {
			end = total
		}
		out = out[start:end]
	}
	return out, total, nil
}
