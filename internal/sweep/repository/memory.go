package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

type MemoryRepository struct {
	mu      sync.Mutex
	sweeps  map[string]model.Sweep
	items   map[string]model.SweepItem
	demands map[string]model.SweepDemand
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sweeps:  map[string]model.Sweep{},
		items:   map[string]model.SweepItem{},
		demands: map[string]model.SweepDemand{},
	}
}

func sameDay(a, b time.Time) bool {
	return a.Format(DateLayout) == b.Format(DateLayout)
}

func (r *MemoryRepository) active(storeID string, date time.Time) (model.Sweep, bool) {
	for _, s := range r.sweeps {
		if s.StoreID == storeID && sameDay(s.SweepDate, date) && s.Status != model.SweepCancelled {
			return s, true
		}
	}
	return model.Sweep{}, false
}

func (r *MemoryRepository) CreateSweep(_ context.Context, s *model.Sweep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active(s.StoreID, s.SweepDate); ok {
		return fmt.Errorf("%w: store %s on %s", model.ErrDuplicateSweep, s.StoreID, s.SweepDate.Format(DateLayout))
	}
	saved := *s
	saved.Items = nil
	r.sweeps[s.ID] = saved
	return nil
}

func (r *MemoryRepository) FindSweepByID(_ context.Context, id string) (*model.Sweep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sweeps[id]
	if !ok {
		return nil, fmt.Errorf("%w: sweep %s", model.ErrNotFound, id)
	}
	return &s, nil
}

func (r *MemoryRepository) FindActiveSweep(_ context.Context, storeID string, date time.Time) (*model.Sweep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.active(storeID, date)
	if !ok {
		return nil, fmt.Errorf("%w: no sweep for store %s on %s", model.ErrNotFound, storeID, date.Format(DateLayout))
	}
	return &s, nil
}

func (r *MemoryRepository) ListActiveSweeps(_ context.Context, storeID string, from, to time.Time) ([]model.Sweep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lo, hi := from.Format(DateLayout), to.Format(DateLayout)
	out := []model.Sweep{}
	for _, s := range r.sweeps {
		d := s.SweepDate.Format(DateLayout)
		if s.StoreID == storeID && s.Status != model.SweepCancelled && d >= lo && d < hi {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SweepDate.Before(out[j].SweepDate) })
	return out, nil
}

func (r *MemoryRepository) UpdateSweep(_ context.Context, s *model.Sweep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.sweeps[s.ID]
	if !ok {
		return fmt.Errorf("%w: sweep %s", model.ErrNotFound, s.ID)
	}
	cur.DriverID = s.DriverID
	cur.Status = s.Status
	cur.ActualStartTime = s.ActualStartTime
	cur.ActualEndTime = s.ActualEndTime
	cur.UpdatedAt = s.UpdatedAt
	r.sweeps[s.ID] = cur
	return nil
}

func (r *MemoryRepository) checkScheduled(sweepID string) error {
	s, ok := r.sweeps[sweepID]
	if !ok {
		return fmt.Errorf("%w: sweep %s", model.ErrNotFound, sweepID)
	}
	if s.Status != model.SweepScheduled {
		return fmt.Errorf("%w: sweep %s is %s, demand can only change while scheduled",
			model.ErrInvalidTransition, sweepID, s.Status)
	}
	return nil
}

func (r *MemoryRepository) refreshTotals(sweepID string) {
	s := r.sweeps[sweepID]
	s.TotalItems, s.TotalLoad = 0, 0
	for _, it := range r.items {
		if it.SweepID != sweepID {
			continue
		}
		if it.Quantity > 0 {
			s.TotalItems++
		}
		s.TotalLoad += it.Quantity
	}
	r.sweeps[sweepID] = s
}

func (r *MemoryRepository) AddItemQuantity(_ context.Context, item *model.SweepItem, demandKey string) (*model.SweepItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkScheduled(item.SweepID); err != nil {
		return nil, err
	}
	if d, ok := r.demands[demandKey]; ok && demandKey != "" && d.RemovedAt == nil {
		counted := r.items[d.SweepItemID]
		return &counted, nil
	}

	saved := *item
	for id, it := range r.items {
		if it.SweepID == item.SweepID && it.ProductID == item.ProductID {
			it.Quantity += item.Quantity
			if it.StoreItemID == nil {
				it.StoreItemID = item.StoreItemID
			}
			it.UpdatedAt = item.UpdatedAt
			r.items[id] = it
			saved = it
			break
		}
	}
	r.items[saved.ID] = saved
	if demandKey != "" {
		r.demands[demandKey] = model.SweepDemand{
			DemandKey:   demandKey,
			SweepItemID: saved.ID,
			Quantity:    item.Quantity,
			CreatedAt:   item.UpdatedAt,
		}
	}
	r.refreshTotals(item.SweepID)
	return &saved, nil
}

func (r *MemoryRepository) RemoveItemQuantity(_ context.Context, itemID string, qty int) (*model.SweepItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.items[itemID]
	if !ok {
		return nil, fmt.Errorf("%w: sweep item %s", model.ErrNotFound, itemID)
	}
	if err := r.checkScheduled(it.SweepID); err != nil {
		return nil, err
	}
	it.Quantity -= qty
	if it.Quantity < 0 {
		it.Quantity = 0
	}
	it.UpdatedAt = time.Now()
	r.items[itemID] = it
	r.refreshTotals(it.SweepID)
	return &it, nil
}

func (r *MemoryRepository) ReleaseDemand(_ context.Context, demandKey string, at time.Time) (*model.SweepItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.demands[demandKey]
	if !ok {
		return nil, fmt.Errorf("%w: sweep demand %s", model.ErrNotFound, demandKey)
	}
	it := r.items[d.SweepItemID]
	if d.RemovedAt != nil {
		return &it, nil
	}
	if err := r.checkScheduled(it.SweepID); err != nil {
		return nil, err
	}

	it.Quantity -= d.Quantity
	if it.Quantity < 0 {
		it.Quantity = 0
	}
	it.UpdatedAt = at
	r.items[it.ID] = it
	d.RemovedAt = &at
	r.demands[demandKey] = d
	r.refreshTotals(it.SweepID)
	return &it, nil
}

func (r *MemoryRepository) FindItemByID(_ context.Context, id string) (*model.SweepItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: sweep item %s", model.ErrNotFound, id)
	}
	return &it, nil
}

func (r *MemoryRepository) ListItems(_ context.Context, sweepID string) ([]model.SweepItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []model.SweepItem{}
	for _, it := range r.items {
		if it.SweepID == sweepID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) UpdateItem(_ context.Context, item *model.SweepItem, from model.SweepItemStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.items[item.ID]
	if !ok || cur.Status != from || item.PickedQuantity < cur.PickedQuantity {
		return fmt.Errorf("%w: sweep item %s is missing or no longer %s", model.ErrInvalidTransition, item.ID, from)
	}
	cur.PickedQuantity = item.PickedQuantity
	cur.Status = item.Status
	cur.SubstituteProductID = item.SubstituteProductID
	cur.Notes = item.Notes
	cur.UpdatedAt = item.UpdatedAt
	r.items[item.ID] = cur
	return nil
}
