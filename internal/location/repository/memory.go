package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

// MemoryRepository keeps locations in process. It enforces the same slot code
// uniqueness as the postgres schema.
type MemoryRepository struct {
	mu    sync.RWMutex
	nodes map[string]model.LocationNode
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nodes: map[string]model.LocationNode{}}
}

func (r *MemoryRepository) Create(_ context.Context, node *model.LocationNode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(*node, nil)
}

func (r *MemoryRepository) BulkCreate(_ context.Context, nodes []model.LocationNode, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := map[string]bool{}
	for _, n := range nodes {
		if err := r.checkSlotCode(n, pending); err != nil {
			return err
		}
		if n.Type == model.LocationSlot {
			pending[n.LocationCode] = true
		}
	}
	for _, n := range nodes {
		r.nodes[n.ID] = n
	}
	return nil
}

func (r *MemoryRepository) insert(node model.LocationNode, pending map[string]bool) error {
	if _, ok := r.nodes[node.ID]; ok {
		return fmt.Errorf("location %s already exists", node.ID)
	}
	if err := r.checkSlotCode(node, pending); err != nil {
		return err
	}
	r.nodes[node.ID] = node
	return nil
}

func (r *MemoryRepository) checkSlotCode(node model.LocationNode, pending map[string]bool) error {
	if node.Type != model.LocationSlot {
		return nil
	}
	if pending[node.LocationCode] {
		return fmt.Errorf("%w: %s", model.ErrDuplicateLocationCode, node.LocationCode)
	}
	for _, n := range r.nodes {
		if n.ID != node.ID && n.Type == model.LocationSlot && !n.IsDeleted() && n.LocationCode == node.LocationCode {
			return fmt.Errorf("%w: %s", model.ErrDuplicateLocationCode, node.LocationCode)
		}
	}
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*model.LocationNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: location %s", model.ErrNotFound, id)
	}
	return &n, nil
}

func (r *MemoryRepository) FindByIDs(_ context.Context, ids []string) ([]model.LocationNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []model.LocationNode{}
	for _, id := range ids {
		if n, ok := r.nodes[id]; ok && !n.IsDeleted() {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *MemoryRepository) FindRootByName(_ context.Context, name string) (*model.LocationNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, n := range r.nodes {
		if n.ParentID == nil && n.Name == name && !n.IsDeleted() {
			return &n, nil
		}
	}
	return nil, fmt.Errorf("%w: zone %s", model.ErrNotFound, name)
}

func (r *MemoryRepository) ListByPathPrefix(_ context.Context, prefix string) ([]model.LocationNode, error) {
	return r.filter(func(n model.LocationNode) bool {
		return strings.HasPrefix(n.MaterializedPath, prefix)
	}), nil
}

func (r *MemoryRepository) ListByType(_ context.Context, t model.LocationType) ([]model.LocationNode, error) {
	return r.filter(func(n model.LocationNode) bool { return n.Type == t }), nil
}

func (r *MemoryRepository) CountByType(_ context.Context, t model.LocationType) (int, error) {
	return len(r.filter(func(n model.LocationNode) bool { return n.Type == t })), nil
}

func (r *MemoryRepository) filter(keep func(model.LocationNode) bool) []model.LocationNode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []model.LocationNode{}
	for _, n := range r.nodes {
		if !n.IsDeleted() && keep(n) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaterializedPath < out[j].MaterializedPath })
	return out
}

func (r *MemoryRepository) UpdateSubtree(_ context.Context, nodes []model.LocationNode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	moving := map[string]bool{}
	for _, n := range nodes {
		moving[n.ID] = true
	}
	codes := map[string]bool{}
	for _, n := range nodes {
		if n.Type != model.LocationSlot {
			continue
		}
		if codes[n.LocationCode] {
			return fmt.Errorf("%w: %s", model.ErrDuplicateLocationCode, n.LocationCode)
		}
		codes[n.LocationCode] = true
	}
	for _, existing := range r.nodes {
		if moving[existing.ID] || existing.IsDeleted() || existing.Type != model.LocationSlot {
			continue
		}
		if codes[existing.LocationCode] {
			return fmt.Errorf("%w: %s", model.ErrDuplicateLocationCode, existing.LocationCode)
		}
	}

	for _, n := range nodes {
		cur, ok := r.nodes[n.ID]
		if !ok {
			return fmt.Errorf("%w: location %s", model.ErrNotFound, n.ID)
		}
		cur.ParentID = n.ParentID
		cur.MaterializedPath = n.MaterializedPath
		cur.ZoneCode = n.ZoneCode
		cur.LocationCode = n.LocationCode
		cur.UpdatedAt = n.UpdatedAt
		r.nodes[n.ID] = cur
	}
	return nil
}

func (r *MemoryRepository) SoftDelete(_ context.Context, ids []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if n, ok := r.nodes[id]; ok && !n.IsDeleted() {
			deletedAt := at
			n.DeletedAt = &deletedAt
			n.UpdatedAt = at
			r.nodes[id] = n
		}
	}
	return nil
}
