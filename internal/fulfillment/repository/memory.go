package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

type MemoryRepository struct {
	mu       sync.Mutex
	outcomes map[string]model.FulfillmentOutcome
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{outcomes: map[string]model.FulfillmentOutcome{}}
}

// copyOutcome detaches the stored lines from the caller's slice.
func copyOutcome(o model.FulfillmentOutcome) model.FulfillmentOutcome {
	o.Lines = append(model.LineOutcomes(nil), o.Lines...)
	return o
}

func (r *MemoryRepository) Create(_ context.Context, o *model.FulfillmentOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.outcomes[o.OrderID]; ok {
		return fmt.Errorf("%w: order %s", model.ErrAlreadyDispatched, o.OrderID)
	}
	r.outcomes[o.OrderID] = copyOutcome(*o)
	return nil
}

func (r *MemoryRepository) FindByOrderID(_ context.Context, orderID string) (*model.FulfillmentOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.outcomes[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: fulfillment for order %s", model.ErrNotFound, orderID)
	}
	o = copyOutcome(o)
	return &o, nil
}

func (r *MemoryRepository) Update(_ context.Context, o *model.FulfillmentOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.outcomes[o.OrderID]
	if !ok {
		return fmt.Errorf("%w: fulfillment for order %s", model.ErrNotFound, o.OrderID)
	}
	if cur.Version != o.Version {
		return fmt.Errorf("%w: fulfillment for order %s changed", model.ErrInvalidTransition, o.OrderID)
	}
	o.Version++
	r.outcomes[o.OrderID] = copyOutcome(*o)
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.outcomes, orderID)
	return nil
}
