package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

type MemoryRepository struct {
	mu    sync.Mutex
	lists map[string]model.PickList
	items map[string]model.PickListItem
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		lists: map[string]model.PickList{},
		items: map[string]model.PickListItem{},
	}
}

func (r *MemoryRepository) Create(_ context.Context, list *model.PickList) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.lists {
		if l.OrderID == list.OrderID && l.Status != model.PickListCancelled {
			return fmt.Errorf("%w: pick list for order %s", model.ErrAlreadyDispatched, list.OrderID)
		}
	}
	saved := *list
	saved.Items = nil
	r.lists[list.ID] = saved
	for _, it := range list.Items {
		r.items[it.ID] = it
	}
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*model.PickList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lists[id]
	if !ok {
		return nil, fmt.Errorf("%w: pick list %s", model.ErrNotFound, id)
	}
	return &l, nil
}

func (r *MemoryRepository) FindByOrderID(_ context.Context, orderID string) (*model.PickList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found *model.PickList
	for _, l := range r.lists {
		if l.OrderID != orderID {
			continue
		}
		if l.Status != model.PickListCancelled {
			return &l, nil
		}
		if found == nil || l.CreatedAt.After(found.CreatedAt) {
			l := l
			found = &l
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: pick list for order %s", model.ErrNotFound, orderID)
	}
	return found, nil
}

func (r *MemoryRepository) UpdateList(_ context.Context, list *model.PickList, from model.PickListStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.lists[list.ID]
	if !ok || cur.Status != from {
		return fmt.Errorf("%w: pick list %s is missing or no longer %s", model.ErrInvalidTransition, list.ID, from)
	}
	cur.PickerID = list.PickerID
	cur.Status = list.Status
	cur.StartedAt = list.StartedAt
	cur.CompletedAt = list.CompletedAt
	cur.UpdatedAt = list.UpdatedAt
	r.lists[list.ID] = cur
	return nil
}

func (r *MemoryRepository) FindItemByID(_ context.Context, id string) (*model.PickListItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: pick list item %s", model.ErrNotFound, id)
	}
	return &it, nil
}

func (r *MemoryRepository) ListItems(_ context.Context, pickListID string) ([]model.PickListItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []model.PickListItem{}
	for _, it := range r.items {
		if it.PickListID == pickListID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.Sequence != nil && b.Sequence == nil:
			return true
		case a.Sequence == nil && b.Sequence != nil:
			return false
		case a.Sequence != nil && *a.Sequence != *b.Sequence:
			return *a.Sequence < *b.Sequence
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (r *MemoryRepository) UpdateSequences(_ context.Context, items []model.PickListItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, it := range items {
		cur, ok := r.items[it.ID]
		if !ok {
			return fmt.Errorf("%w: pick list item %s", model.ErrNotFound, it.ID)
		}
		cur.Sequence = it.Sequence
		cur.UpdatedAt = it.UpdatedAt
		r.items[it.ID] = cur
	}
	return nil
}

func (r *MemoryRepository) ResolveItem(_ context.Context, item *model.PickListItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.items[item.ID]
	if !ok || cur.Status != model.PickItemPending {
		return fmt.Errorf("%w: pick list item %s is no longer pending", model.ErrInvalidTransition, item.ID)
	}
	cur.PickedQuantity = item.PickedQuantity
	cur.Status = item.Status
	cur.Notes = item.Notes
	cur.UpdatedAt = item.UpdatedAt
	r.items[item.ID] = cur
	return nil
}
