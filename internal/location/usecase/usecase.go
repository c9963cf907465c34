package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/location"
	"github.com/fekuna/omnipos-fulfillment-service/internal/location/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/metrics"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/cache"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SetupLockKey serializes warehouse setup runs across processes.
const SetupLockKey = "lock:locations:setup"

type Settings struct {
	BatchSize int
	LockTTL   time.Duration
}

type locationUseCase struct {
	repo     location.Repository
	locker   cache.Locker
	lots     location.LotReferenceChecker
	settings Settings
	logger   logger.ZapLogger
}

// NewLocationUseCase wires the hierarchy. lots may be nil, in which case
// deletes skip the lot reference check.
func NewLocationUseCase(repo location.Repository, locker cache.Locker, lots location.LotReferenceChecker, settings Settings, log logger.ZapLogger) location.UseCase {
	if settings.BatchSize <= 0 {
		settings.BatchSize = 500
	}
	if settings.LockTTL <= 0 {
		settings.LockTTL = 30 * time.Second
	}
	return &locationUseCase{
		repo:     repo,
		locker:   locker,
		lots:     lots,
		settings: settings,
		logger:   log,
	}
}

func (uc *locationUseCase) CreateNode(ctx context.Context, input *dto.CreateNodeInput) (*model.LocationNode, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", model.ErrValidation)
	}
	if !input.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown location type %q", model.ErrValidation, input.Type)
	}

	var parent *model.LocationNode
	if input.ParentID != nil && *input.ParentID != "" {
		p, err := uc.GetNode(ctx, *input.ParentID)
		if err != nil {
			return nil, err
		}
		parent = p
	}

	node, err := newNode(parent, input.Name, input.Type, input.ZoneCode, input.Number, time.Now())
	if err != nil {
		return nil, err
	}

	if parent == nil {
		_, err := uc.repo.FindRootByName(ctx, node.Name)
		if err == nil {
			return nil, fmt.Errorf("%w: zone %q already exists", model.ErrValidation, node.Name)
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
	}

	if err := uc.repo.Create(ctx, node); err != nil {
		return nil, err
	}
	return node, nil
}

// newNode validates the level against the parent and derives path and code.
func newNode(parent *model.LocationNode, name string, t model.LocationType, zone model.ZoneCode, number *int, now time.Time) (*model.LocationNode, error) {
	node := &model.LocationNode{
		BaseModel: model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		Name:      name,
		Type:      t,
	}

	if parent == nil {
		if t != model.LocationZone {
			return nil, fmt.Errorf("%w: root node must be a zone, got %s", model.ErrValidation, t)
		}
		if !zone.Valid() {
			return nil, fmt.Errorf("%w: unknown zone code %q", model.ErrValidation, zone)
		}
		node.ZoneCode = zone
		node.MaterializedPath = node.ID
		node.LocationCode = strings.ToUpper(strings.TrimSpace(name))
		return node, nil
	}

	want, ok := parent.Type.ChildType()
	if !ok || want != t {
		return nil, fmt.Errorf("%w: %s cannot be placed under %s", model.ErrValidation, t, parent.Type)
	}
	if number == nil || *number <= 0 {
		return nil, fmt.Errorf("%w: %s requires a positive number", model.ErrValidation, t)
	}
	n := *number
	node.SetNumber(&n)
	node.ParentID = &parent.ID
	place(node, parent)
	return node, nil
}

// place recomputes the parent-derived columns of node.
func place(node, parent *model.LocationNode) {
	node.ParentID = &parent.ID
	node.ZoneCode = parent.ZoneCode
	node.MaterializedPath = parent.MaterializedPath + model.PathSeparator + node.ID
	node.LocationCode = fmt.Sprintf("%s-%02d", parent.LocationCode, *node.Number())
}

func (uc *locationUseCase) GetNode(ctx context.Context, id string) (*model.LocationNode, error) {
	node, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("%w: location %s does not exist", model.ErrInvalidLocation, id)
		}
		return nil, err
	}
	if node.IsDeleted() {
		return nil, fmt.Errorf("%w: location %s is deleted", model.ErrInvalidLocation, id)
	}
	return node, nil
}

func (uc *locationUseCase) ResolvePath(ctx context.Context, id string) ([]model.LocationNode, error) {
	node, err := uc.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}

	ids := node.AncestorIDs()
	found, err := uc.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.LocationNode, len(found))
	for _, n := range found {
		byID[n.ID] = n
	}

	path := make([]model.LocationNode, 0, len(ids))
	for _, ancestorID := range ids {
		n, ok := byID[ancestorID]
		if !ok {
			return nil, fmt.Errorf("%w: ancestor %s of %s is missing", model.ErrInvalidLocation, ancestorID, id)
		}
		path = append(path, n)
	}
	return path, nil
}

func (uc *locationUseCase) ListDescendants(ctx context.Context, id string) ([]model.LocationNode, error) {
	node, err := uc.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	return uc.repo.ListByPathPrefix(ctx, node.MaterializedPath+model.PathSeparator)
}

func (uc *locationUseCase) MoveNode(ctx context.Context, id, newParentID string) (*model.LocationNode, error) {
	node, err := uc.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if node.ParentID == nil {
		return nil, fmt.Errorf("%w: zones cannot be moved", model.ErrValidation)
	}
	parent, err := uc.GetNode(ctx, newParentID)
	if err != nil {
		return nil, err
	}
	if want, ok := parent.Type.ChildType(); !ok || want != node.Type {
		return nil, fmt.Errorf("%w: %s cannot be placed under %s", model.ErrValidation, node.Type, parent.Type)
	}
	if parent.MaterializedPath == node.MaterializedPath ||
		strings.HasPrefix(parent.MaterializedPath, node.MaterializedPath+model.PathSeparator) {
		return nil, fmt.Errorf("%w: cannot move %s under its own subtree", model.ErrValidation, id)
	}
	if *node.ParentID == parent.ID {
		return node, nil
	}

	descendants, err := uc.repo.ListByPathPrefix(ctx, node.MaterializedPath+model.PathSeparator)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	place(node, parent)
	node.UpdatedAt = now

	// Parents sort before children by path length, so each parent is already
	// re-placed when its children are visited.
	sort.Slice(descendants, func(i, j int) bool {
		return len(descendants[i].AncestorIDs()) < len(descendants[j].AncestorIDs())
	})
	placed := map[string]*model.LocationNode{node.ID: node}
	updated := []model.LocationNode{*node}
	for i := range descendants {
		d := &descendants[i]
		p, ok := placed[*d.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: parent %s of %s missing from subtree", model.ErrInvalidLocation, *d.ParentID, d.ID)
		}
		place(d, p)
		d.UpdatedAt = now
		placed[d.ID] = d
		updated = append(updated, *d)
	}

	if err := uc.repo.UpdateSubtree(ctx, updated); err != nil {
		return nil, err
	}

	uc.logger.Info("Moved location subtree",
		zap.String("location_id", id),
		zap.String("new_parent_id", newParentID),
		zap.Int("nodes", len(updated)),
	)
	return node, nil
}

func (uc *locationUseCase) DeleteNode(ctx context.Context, id string) error {
	node, err := uc.GetNode(ctx, id)
	if err != nil {
		return err
	}
	descendants, err := uc.repo.ListByPathPrefix(ctx, node.MaterializedPath+model.PathSeparator)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(descendants)+1)
	ids = append(ids, node.ID)
	for _, d := range descendants {
		ids = append(ids, d.ID)
	}

	if uc.lots != nil {
		count, err := uc.lots.CountLotsAtLocations(ctx, ids)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %d lots still reference location %s or its descendants", model.ErrValidation, count, id)
		}
	}

	return uc.repo.SoftDelete(ctx, ids, time.Now())
}

func (uc *locationUseCase) GenerateSlots(ctx context.Context, slotsPerShelf int) (int, error) {
	if slotsPerShelf <= 0 {
		return 0, fmt.Errorf("%w: slots per shelf must be positive", model.ErrValidation)
	}

	created := 0
	err := cache.WithLock(ctx, uc.locker, SetupLockKey, uc.settings.LockTTL, func(ctx context.Context) error {
		existing, err := uc.repo.CountByType(ctx, model.LocationSlot)
		if err != nil {
			return err
		}
		if existing > 0 {
			uc.logger.Info("Slots already generated, skipping", zap.Int("existing_slots", existing))
			return nil
		}

		shelves, err := uc.repo.ListByType(ctx, model.LocationShelf)
		if err != nil {
			return err
		}

		now := time.Now()
		slots := make([]model.LocationNode, 0, len(shelves)*slotsPerShelf)
		for i := range shelves {
			for n := 1; n <= slotsPerShelf; n++ {
				num := n
				slot, err := newNode(&shelves[i], fmt.Sprintf("Slot %d", n), model.LocationSlot, "", &num, now)
				if err != nil {
					return err
				}
				slots = append(slots, *slot)
			}
		}

		if err := uc.repo.BulkCreate(ctx, slots, uc.settings.BatchSize); err != nil {
			return err
		}
		created = len(slots)
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.LocationsCreated.WithLabelValues(string(model.LocationSlot)).Add(float64(created))
	uc.logger.Info("Generated slots", zap.Int("slots", created), zap.Int("per_shelf", slotsPerShelf))
	return created, nil
}

func (uc *locationUseCase) ImportLayout(ctx context.Context, layout *dto.Layout) (int, error) {
	if err := layout.Validate(); err != nil {
		return 0, err
	}

	created := 0
	err := cache.WithLock(ctx, uc.locker, SetupLockKey, uc.settings.LockTTL, func(ctx context.Context) error {
		now := time.Now()
		var nodes []model.LocationNode

		for _, z := range layout.Zones {
			if _, err := uc.repo.FindRootByName(ctx, z.Name); err == nil {
				uc.logger.Info("Zone already exists, skipping", zap.String("zone", z.Name))
				continue
			} else if !errors.Is(err, model.ErrNotFound) {
				return err
			}

			zone, err := newNode(nil, z.Name, model.LocationZone, z.ZoneCode, nil, now)
			if err != nil {
				return err
			}
			nodes = append(nodes, *zone)

			for a := 1; a <= z.Aisles; a++ {
				aisle, err := child(zone, model.LocationAisle, "Aisle", a, now)
				if err != nil {
					return err
				}
				nodes = append(nodes, *aisle)

				for b := 1; b <= z.BaysPerAisle; b++ {
					bay, err := child(aisle, model.LocationBay, "Bay", b, now)
					if err != nil {
						return err
					}
					nodes = append(nodes, *bay)

					for s := 1; s <= z.ShelvesPerBay; s++ {
						shelf, err := child(bay, model.LocationShelf, "Shelf", s, now)
						if err != nil {
							return err
						}
						nodes = append(nodes, *shelf)
					}
				}
			}
		}

		if err := uc.repo.BulkCreate(ctx, nodes, uc.settings.BatchSize); err != nil {
			return err
		}
		created = len(nodes)
		return nil
	})
	if err != nil {
		return 0, err
	}

	uc.logger.Info("Imported warehouse layout", zap.Int("nodes", created))
	return created, nil
}

func child(parent *model.LocationNode, t model.LocationType, label string, n int, now time.Time) (*model.LocationNode, error) {
	return newNode(parent, fmt.Sprintf("%s %d", label, n), t, "", &n, now)
}
