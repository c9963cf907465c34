package repository

import (
	"context"
	"sync"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

type MemoryRepository struct {
	mu       sync.RWMutex
	products map[string]model.ProductSourcing
}

func NewMemoryRepository(products ...model.ProductSourcing) *MemoryRepository {
	r := &MemoryRepository{products: map[string]model.ProductSourcing{}}
	for _, p := range products {
		r.products[p.ProductID] = p
	}
	return r
}

func (r *MemoryRepository) Put(p model.ProductSourcing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ProductID] = p
}

func (r *MemoryRepository) GetSourcing(_ context.Context, productIDs []string) ([]model.ProductSourcing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []model.ProductSourcing{}
	for _, id := range productIDs {
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
