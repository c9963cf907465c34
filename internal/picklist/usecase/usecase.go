package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	invdto "github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/location"
	"github.com/fekuna/omnipos-fulfillment-service/internal/metrics"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/internal/picklist"
	"github.com/fekuna/omnipos-fulfillment-service/internal/picklist/dto"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type pickListUseCase struct {
	repo      picklist.Repository
	allocator picklist.Allocator
	paths     picklist.PathResolver
	logger    logger.ZapLogger
}

func NewPickListUseCase(repo picklist.Repository, allocator picklist.Allocator, paths picklist.PathResolver, log logger.ZapLogger) picklist.UseCase {
	return &pickListUseCase{
		repo:      repo,
		allocator: allocator,
		paths:     paths,
		logger:    log,
	}
}

func orderRef(orderID string) invdto.Reference {
	return invdto.Reference{Type: "order", ID: orderID}
}

func (uc *pickListUseCase) Generate(ctx context.Context, input *dto.GenerateInput) (*dto.GenerateResult, error) {
	if input.OrderID == "" {
		return nil, fmt.Errorf("%w: order id is required", model.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return nil, fmt.Errorf("%w: order %s has no lines to pick", model.ErrValidation, input.OrderID)
	}
	for i, l := range input.Lines {
		if l.OrderItemID == "" || l.ProductID == "" || l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d needs order item, product and a positive quantity", model.ErrValidation, i)
		}
	}
	existing, err := uc.repo.FindByOrderID(ctx, input.OrderID)
	if err == nil && existing.Status != model.PickListCancelled {
		return nil, fmt.Errorf("%w: pick list for order %s", model.ErrAlreadyDispatched, input.OrderID)
	}
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	list := &model.PickList{
		BaseModel: model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		OrderID:   input.OrderID,
		Status:    model.PickListPending,
		Priority:  input.Priority,
	}
	result := &dto.GenerateResult{Lines: make([]dto.LineResult, 0, len(input.Lines))}
	resolved := newPathCache(uc.paths)

	for _, line := range input.Lines {
		lr := dto.LineResult{
			OrderItemID: line.OrderItemID,
			ProductID:   line.ProductID,
			Requested:   line.Quantity,
			Shortfall:   line.Quantity,
		}

		alloc, err := uc.allocator.Allocate(ctx, &invdto.AllocateInput{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Reference: orderRef(input.OrderID),
		})
		if err != nil {
			uc.logger.Warn("Allocation failed for pick line",
				zap.String("order_id", input.OrderID),
				zap.String("product_id", line.ProductID),
				zap.Error(err),
			)
			lr.Err = err
			result.Lines = append(result.Lines, lr)
			continue
		}
		lr.Allocated, lr.Shortfall, lr.Lots = alloc.Allocated, alloc.Shortfall, alloc.Lots

		for _, la := range alloc.Lots {
			item := uc.newItem(ctx, list, line, la, resolved, now)
			list.Items = append(list.Items, item)
			lr.ItemIDs = append(lr.ItemIDs, item.ID)
		}
		result.Lines = append(result.Lines, lr)
	}

	if len(list.Items) == 0 {
		uc.logger.Warn("Nothing reserved, no pick list created", zap.String("order_id", input.OrderID))
		return result, nil
	}

	assignSequence(list.Items, resolved.paths, now)

	if err := uc.repo.Create(ctx, list); err != nil {
		uc.releaseItems(ctx, input.OrderID, list.Items)
		return nil, err
	}

	uc.logger.Info("Generated pick list",
		zap.String("pick_list_id", list.ID),
		zap.String("order_id", list.OrderID),
		zap.Int("items", len(list.Items)),
	)
	result.PickList = list
	return result, nil
}

// newItem builds the pick task for one reserved lot. A location that no longer
// resolves is recorded on the item rather than failing the line.
func (uc *pickListUseCase) newItem(ctx context.Context, list *model.PickList, line dto.PickLine, la model.LotAllocation, resolved *pathCache, now time.Time) model.PickListItem {
	lotID := la.LotID
	item := model.PickListItem{
		BaseModel:   model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		PickListID:  list.ID,
		OrderItemID: line.OrderItemID,
		ProductID:   line.ProductID,
		LotID:       &lotID,
		Quantity:    la.Quantity,
		Status:      model.PickItemPending,
	}
	if la.LocationID == nil {
		note := "lot has no storage location"
		item.Notes = &note
		return item
	}

	path, err := resolved.get(ctx, *la.LocationID)
	if err != nil {
		uc.logger.Warn("Pick location does not resolve",
			zap.String("order_id", list.OrderID),
			zap.String("location_id", *la.LocationID),
			zap.Error(err),
		)
		note := err.Error()
		item.Notes = &note
		return item
	}
	locationID := *la.LocationID
	code := path[len(path)-1].LocationCode
	item.LocationID = &locationID
	item.LocationCode = &code
	return item
}

func (uc *pickListUseCase) releaseItems(ctx context.Context, orderID string, items []model.PickListItem) {
	ctx = context.WithoutCancel(ctx)
	for _, it := range items {
		if it.LotID == nil {
			continue
		}
		if err := uc.allocator.Release(ctx, *it.LotID, it.Quantity, orderRef(orderID)); err != nil {
			uc.logger.Error("Failed to release pick reservation",
				zap.String("order_id", orderID),
				zap.String("lot_id", *it.LotID),
				zap.Error(err),
			)
		}
	}
}

// pathCache resolves each location once per call.
type pathCache struct {
	resolver picklist.PathResolver
	paths    map[string][]model.LocationNode
	errs     map[string]error
}

func newPathCache(r picklist.PathResolver) *pathCache {
	return &pathCache{resolver: r, paths: map[string][]model.LocationNode{}, errs: map[string]error{}}
}

func (c *pathCache) get(ctx context.Context, id string) ([]model.LocationNode, error) {
	if p, ok := c.paths[id]; ok {
		return p, nil
	}
	if err, ok := c.errs[id]; ok {
		return nil, err
	}
	p, err := c.resolver.ResolvePath(ctx, id)
	if err == nil && len(p) == 0 {
		err = fmt.Errorf("%w: location %s has an empty path", model.ErrInvalidLocation, id)
	}
	if err != nil {
		c.errs[id] = err
		return nil, err
	}
	c.paths[id] = p
	return p, nil
}

// assignSequence numbers items along the walking path. Items without a
// resolved location go last in their current order.
func assignSequence(items []model.PickListItem, paths map[string][]model.LocationNode, now time.Time) {
	type keyed struct {
		idx int
		key location.PickKey
		ok  bool
	}
	order := make([]keyed, len(items))
	for i := range items {
		order[i] = keyed{idx: i}
		if items[i].LocationID == nil {
			continue
		}
		if p, found := paths[*items[i].LocationID]; found {
			order[i].key = location.PickKeyFor(p)
			order[i].ok = true
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		if order[a].ok != order[b].ok {
			return order[a].ok
		}
		return order[a].ok && order[a].key.Less(order[b].key)
	})
	for n, k := range order {
		seq := n + 1
		items[k.idx].Sequence = &seq
		items[k.idx].UpdatedAt = now
	}
}

func (uc *pickListUseCase) AssignSequence(ctx context.Context, pickListID string) (*model.PickList, error) {
	list, err := uc.repo.FindByID(ctx, pickListID)
	if err != nil {
		return nil, err
	}
	items, err := uc.repo.ListItems(ctx, pickListID)
	if err != nil {
		return nil, err
	}

	resolved := newPathCache(uc.paths)
	for _, it := range items {
		if it.LocationID != nil {
			// Unresolvable locations simply sort last.
			_, _ = resolved.get(ctx, *it.LocationID)
		}
	}
	assignSequence(items, resolved.paths, time.Now())

	if err := uc.repo.UpdateSequences(ctx, items); err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return *items[i].Sequence < *items[j].Sequence })
	list.Items = items
	return list, nil
}

func pickItemRef(itemID string) invdto.Reference {
	return invdto.Reference{Type: "pick_item", ID: itemID}
}

// RecordPick resolves a pending item and settles its lot. Repeating a pick
// with the same quantity finishes whatever the earlier call left undone.
func (uc *pickListUseCase) RecordPick(ctx context.Context, pickListItemID string, pickedQuantity int, notes *string) (*model.PickListItem, error) {
	item, err := uc.repo.FindItemByID(ctx, pickListItemID)
	if err != nil {
		return nil, err
	}
	if pickedQuantity < 0 || pickedQuantity > item.Quantity {
		return nil, fmt.Errorf("%w: picked quantity must be between 0 and %d", model.ErrValidation, item.Quantity)
	}
	list, err := uc.repo.FindByID(ctx, item.PickListID)
	if err != nil {
		return nil, err
	}
	if list.Status == model.PickListCancelled {
		return nil, fmt.Errorf("%w: pick list %s is %s", model.ErrInvalidTransition, list.ID, list.Status)
	}

	switch {
	case item.Status == model.PickItemPending:
		picked := pickedQuantity
		item.PickedQuantity = &picked
		item.Status = model.PickStatusFor(item.Quantity, pickedQuantity)
		if notes != nil {
			item.Notes = notes
		}
		item.UpdatedAt = time.Now()
		if err := uc.repo.ResolveItem(ctx, item); err != nil {
			return nil, err
		}
		metrics.PickOutcomes.WithLabelValues(string(item.Status)).Inc()
	case item.PickedQuantity != nil && *item.PickedQuantity == pickedQuantity:
		uc.logger.Info("Repeating recorded pick",
			zap.String("pick_list_item_id", item.ID),
			zap.Int("picked_quantity", pickedQuantity),
		)
	default:
		return nil, fmt.Errorf("%w: pick list item %s is %s", model.ErrInvalidTransition, item.ID, item.Status)
	}

	if err := uc.settle(ctx, item); err != nil {
		return nil, err
	}
	if _, err := uc.advanceList(ctx, list.ID); err != nil {
		return nil, err
	}
	return item, nil
}

// settle commits the picked units of a resolved item and releases the rest.
func (uc *pickListUseCase) settle(ctx context.Context, item *model.PickListItem) error {
	if item.LotID == nil || item.PickedQuantity == nil {
		return nil
	}
	picked := *item.PickedQuantity
	if err := uc.allocator.Settle(ctx, *item.LotID, picked, item.Quantity-picked, pickItemRef(item.ID)); err != nil {
		return fmt.Errorf("settle pick list item %s: %w", item.ID, err)
	}
	return nil
}

const maxListWrites = 5

// updateList applies change to a fresh copy of the list and writes it only
// over the status it was read with, re-reading after a concurrent write.
// change reports false when there is nothing to write.
func (uc *pickListUseCase) updateList(ctx context.Context, pickListID string, change func(list *model.PickList) (bool, error)) (*model.PickList, error) {
	for attempt := 0; attempt < maxListWrites; attempt++ {
		list, err := uc.repo.FindByID(ctx, pickListID)
		if err != nil {
			return nil, err
		}
		from := list.Status
		changed, err := change(list)
		if err != nil {
			return nil, err
		}
		if !changed {
			return list, nil
		}
		list.UpdatedAt = time.Now()
		err = uc.repo.UpdateList(ctx, list, from)
		if err == nil {
			return list, nil
		}
		if !errors.Is(err, model.ErrInvalidTransition) {
			return nil, err
		}
		uc.logger.Debug("Pick list changed concurrently, retrying", zap.String("pick_list_id", pickListID))
	}
	return nil, fmt.Errorf("%w: pick list %s keeps changing", model.ErrInvalidTransition, pickListID)
}

// advanceList starts the list on its first pick and completes it once every
// item is terminal, whatever the individual outcomes.
func (uc *pickListUseCase) advanceList(ctx context.Context, pickListID string) (*model.PickList, error) {
	list, err := uc.updateList(ctx, pickListID, func(list *model.PickList) (bool, error) {
		if list.Status == model.PickListCompleted || list.Status == model.PickListCancelled {
			return false, nil
		}
		now := time.Now()
		from := list.Status
		if list.Status == model.PickListPending {
			list.Status = model.PickListInProgress
			list.StartedAt = &now
		}
		items, err := uc.repo.ListItems(ctx, list.ID)
		if err != nil {
			return false, err
		}
		if model.AllTerminal(items) {
			list.Status = model.PickListCompleted
			list.CompletedAt = &now
		}
		return list.Status != from, nil
	})
	if err != nil {
		return nil, err
	}
	if list.Status == model.PickListCompleted {
		uc.logger.Info("Pick list completed", zap.String("pick_list_id", list.ID), zap.String("order_id", list.OrderID))
	}
	return list, nil
}

func (uc *pickListUseCase) AssignPicker(ctx context.Context, pickListID, pickerID string) (*model.PickList, error) {
	if pickerID == "" {
		return nil, fmt.Errorf("%w: picker id is required", model.ErrValidation)
	}
	return uc.updateList(ctx, pickListID, func(list *model.PickList) (bool, error) {
		if list.Status == model.PickListCompleted || list.Status == model.PickListCancelled {
			return false, fmt.Errorf("%w: pick list %s is %s", model.ErrInvalidTransition, list.ID, list.Status)
		}
		list.PickerID = &pickerID
		return true, nil
	})
}

func (uc *pickListUseCase) Get(ctx context.Context, pickListID string) (*model.PickList, error) {
	list, err := uc.repo.FindByID(ctx, pickListID)
	if err != nil {
		return nil, err
	}
	return uc.withItems(ctx, list)
}

func (uc *pickListUseCase) GetByOrder(ctx context.Context, orderID string) (*model.PickList, error) {
	list, err := uc.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return uc.withItems(ctx, list)
}

func (uc *pickListUseCase) withItems(ctx context.Context, list *model.PickList) (*model.PickList, error) {
	items, err := uc.repo.ListItems(ctx, list.ID)
	if err != nil {
		return nil, err
	}
	list.Items = items
	return list, nil
}

// Cancel marks pending items unavailable and settles every item's lot, so a
// retry after a partial failure finishes the release.
func (uc *pickListUseCase) Cancel(ctx context.Context, pickListID string) (*model.PickList, error) {
	list, err := uc.repo.FindByID(ctx, pickListID)
	if err != nil {
		return nil, err
	}
	if list.Status == model.PickListCompleted {
		return nil, fmt.Errorf("%w: pick list %s is already completed", model.ErrInvalidTransition, list.ID)
	}

	items, err := uc.repo.ListItems(ctx, list.ID)
	if err != nil {
		return nil, err
	}

	note := "order cancelled"
	for i := range items {
		it := &items[i]
		if it.Status == model.PickItemPending {
			zero := 0
			it.Status = model.PickItemUnavailable
			it.PickedQuantity = &zero
			it.Notes = &note
			it.UpdatedAt = time.Now()
			if err := uc.repo.ResolveItem(ctx, it); err != nil {
				if !errors.Is(err, model.ErrInvalidTransition) {
					return nil, err
				}
				// picked concurrently; settle what was actually picked
				cur, err := uc.repo.FindItemByID(ctx, it.ID)
				if err != nil {
					return nil, err
				}
				*it = *cur
			}
		}
		if err := uc.settle(ctx, it); err != nil {
			return nil, err
		}
	}

	list, err = uc.updateList(ctx, pickListID, func(list *model.PickList) (bool, error) {
		switch list.Status {
		case model.PickListCancelled:
			return false, nil
		case model.PickListCompleted:
			return false, fmt.Errorf("%w: pick list %s is already completed", model.ErrInvalidTransition, list.ID)
		}
		list.Status = model.PickListCancelled
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	uc.logger.Info("Pick list cancelled", zap.String("pick_list_id", list.ID), zap.String("order_id", list.OrderID))
	list.Items = items
	return list, nil
}
