package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/catalog"
	"github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment"
	"github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/metrics"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/internal/picklist"
	pldto "github.com/fekuna/omnipos-fulfillment-service/internal/picklist/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/sweep"
	swdto "github.com/fekuna/omnipos-fulfillment-service/internal/sweep/dto"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Settings tunes dispatch recovery.
type Settings struct {
	// ClaimTimeout is how long a pending dispatch holds its order before a
	// redelivery or Cancel may take the claim over.
	ClaimTimeout time.Duration
}

const defaultClaimTimeout = 2 * time.Minute

type fulfillmentUseCase struct {
	repo      fulfillment.Repository
	catalog   catalog.UseCase
	picks     picklist.UseCase
	sweeps    sweep.UseCase
	publisher fulfillment.Publisher
	settings  Settings
	logger    logger.ZapLogger
	now       func() time.Time
}

// NewFulfillmentUseCase wires the orchestrator. publisher may be nil.
func NewFulfillmentUseCase(
	repo fulfillment.Repository,
	catalog catalog.UseCase,
	picks picklist.UseCase,
	sweeps sweep.UseCase,
	publisher fulfillment.Publisher,
	settings Settings,
	log logger.ZapLogger,
) fulfillment.UseCase {
	if settings.ClaimTimeout <= 0 {
		settings.ClaimTimeout = defaultClaimTimeout
	}
	return &fulfillmentUseCase{
		repo:      repo,
		catalog:   catalog,
		picks:     picks,
		sweeps:    sweeps,
		publisher: publisher,
		settings:  settings,
		logger:    log,
		now:       time.Now,
	}
}

// demandKey names the sweep demand one order line placed.
func demandKey(orderID, orderItemID string) string {
	return orderID + "/" + orderItemID
}

func validateOrder(order *dto.Order) error {
	if order == nil || order.ID == "" {
		return fmt.Errorf("%w: order id is required", model.ErrValidation)
	}
	if len(order.Lines) == 0 {
		return fmt.Errorf("%w: order %s has no lines", model.ErrValidation, order.ID)
	}
	seen := map[string]bool{}
	for i, l := range order.Lines {
		if l.OrderItemID == "" || l.ProductID == "" || l.Quantity <= 0 {
			return fmt.Errorf("%w: line %d needs order item, product and a positive quantity", model.ErrValidation, i)
		}
		if seen[l.OrderItemID] {
			return fmt.Errorf("%w: order item %s appears twice", model.ErrValidation, l.OrderItemID)
		}
		seen[l.OrderItemID] = true
	}
	return nil
}

func (uc *fulfillmentUseCase) Dispatch(ctx context.Context, order *dto.Order) (*model.FulfillmentOutcome, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { metrics.DispatchDuration.Observe(time.Since(start).Seconds()) }()

	now := uc.now()
	outcome := &model.FulfillmentOutcome{
		OrderID:      order.ID,
		Status:       model.FulfillmentPending,
		Lines:        claimLines(order),
		DispatchedAt: now,
		UpdatedAt:    now,
	}
	fresh := true
	if err := uc.repo.Create(ctx, outcome); err != nil {
		if !errors.Is(err, model.ErrAlreadyDispatched) {
			return nil, err
		}
		existing, ferr := uc.repo.FindByOrderID(ctx, order.ID)
		if ferr != nil {
			return nil, ferr
		}
		if !uc.stale(existing) {
			return existing, err
		}
		existing.UpdatedAt = now
		if uerr := uc.repo.Update(ctx, existing); uerr != nil {
			if errors.Is(uerr, model.ErrInvalidTransition) {
				return uc.current(ctx, order.ID, err)
			}
			return nil, uerr
		}
		uc.logger.Warn("Resuming stale dispatch",
			zap.String("order_id", order.ID),
			zap.Time("claimed_at", existing.DispatchedAt),
		)
		outcome, fresh = existing, false
	}

	productIDs := make([]string, 0, len(order.Lines))
	for _, l := range order.Lines {
		productIDs = append(productIDs, l.ProductID)
	}
	sourcing, err := uc.catalog.GetSourcing(ctx, productIDs)
	if err != nil {
		// A fresh claim has reserved nothing yet, so it can go. A resumed
		// one stays pending until the next takeover.
		if fresh {
			if derr := uc.repo.Delete(context.WithoutCancel(ctx), order.ID); derr != nil {
				uc.logger.Error("Failed to drop dispatch claim", zap.String("order_id", order.ID), zap.Error(derr))
			}
		}
		return nil, err
	}

	lines := make([]model.LineOutcome, len(order.Lines))
	var warehouse []int
	for i, l := range order.Lines {
		lines[i] = model.LineOutcome{
			OrderItemID: l.OrderItemID,
			ProductID:   l.ProductID,
			Requested:   l.Quantity,
			Shortfall:   l.Quantity,
		}
		src, ok := sourcing[l.ProductID]
		if !ok {
			uc.failLine(order.ID, &lines[i], fmt.Errorf("%w: product %s is not in the catalog", model.ErrValidation, l.ProductID))
			continue
		}
		lines[i].Source = src.InventoryType

		switch src.InventoryType {
		case model.InventoryWarehouse:
			warehouse = append(warehouse, i)
		case model.InventorySweep:
			uc.requestSweep(ctx, order.ID, &lines[i], src, now)
		default:
			uc.failLine(order.ID, &lines[i], fmt.Errorf("%w: unknown inventory type %q", model.ErrValidation, src.InventoryType))
		}
	}

	if len(warehouse) > 0 {
		outcome.PickListID = uc.pickWarehouse(ctx, order, lines, warehouse)
	}

	outcome.Lines = lines
	outcome.Status = model.WorstStatus(lines)
	outcome.UpdatedAt = uc.now()
	if err := uc.repo.Update(ctx, outcome); err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			return uc.lostClaim(ctx, outcome)
		}
		uc.abandon(ctx, outcome)
		return nil, err
	}

	metrics.Dispatches.WithLabelValues(string(outcome.Status)).Inc()
	uc.logger.Info("Dispatched order",
		zap.String("order_id", order.ID),
		zap.String("status", string(outcome.Status)),
		zap.Int("lines", len(lines)),
	)
	uc.publish(ctx, dto.EventFulfillmentDispatched, outcome)
	return outcome, nil
}

// claimLines records every order line on the claim so a takeover knows
// what the interrupted dispatch may have reserved.
func claimLines(order *dto.Order) model.LineOutcomes {
	lines := make(model.LineOutcomes, 0, len(order.Lines))
	for _, l := range order.Lines {
		lines = append(lines, model.LineOutcome{
			OrderItemID: l.OrderItemID,
			ProductID:   l.ProductID,
			Requested:   l.Quantity,
			Shortfall:   l.Quantity,
		})
	}
	return lines
}

func (uc *fulfillmentUseCase) stale(o *model.FulfillmentOutcome) bool {
	return o.Status == model.FulfillmentPending && uc.now().Sub(o.UpdatedAt) >= uc.settings.ClaimTimeout
}

func (uc *fulfillmentUseCase) current(ctx context.Context, orderID string, cause error) (*model.FulfillmentOutcome, error) {
	existing, err := uc.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return existing, cause
}

// lostClaim handles a final write that lost to another writer. A cancel that
// got there first has already released what it could see, so what this
// dispatch reserved afterwards is released here.
func (uc *fulfillmentUseCase) lostClaim(ctx context.Context, outcome *model.FulfillmentOutcome) (*model.FulfillmentOutcome, error) {
	existing, err := uc.repo.FindByOrderID(ctx, outcome.OrderID)
	if err != nil {
		return nil, err
	}
	if existing.Status != model.FulfillmentCancelled {
		return existing, fmt.Errorf("%w: order %s", model.ErrAlreadyDispatched, outcome.OrderID)
	}
	if err := uc.compensate(context.WithoutCancel(ctx), outcome); err != nil {
		uc.logger.Error("Failed to release dispatch cancelled underneath",
			zap.String("order_id", outcome.OrderID),
			zap.Error(err),
		)
	}
	return existing, fmt.Errorf("%w: order %s was cancelled during dispatch", model.ErrInvalidTransition, outcome.OrderID)
}

// abandon releases what the dispatch reserved and drops the claim so a
// redelivery starts clean. When the release fails the claim stays pending
// and is recovered once it goes stale.
func (uc *fulfillmentUseCase) abandon(ctx context.Context, outcome *model.FulfillmentOutcome) {
	ctx = context.WithoutCancel(ctx)
	if err := uc.compensate(ctx, outcome); err != nil {
		uc.logger.Error("Failed to release abandoned dispatch",
			zap.String("order_id", outcome.OrderID),
			zap.Error(err),
		)
		return
	}
	if err := uc.repo.Delete(ctx, outcome.OrderID); err != nil {
		uc.logger.Error("Failed to drop dispatch claim", zap.String("order_id", outcome.OrderID), zap.Error(err))
		return
	}
	uc.logger.Warn("Abandoned dispatch", zap.String("order_id", outcome.OrderID))
}

// compensate cancels the order's pick list and releases its sweep demand.
// Every step is keyed, so running it again after a partial failure only
// finishes what is left.
func (uc *fulfillmentUseCase) compensate(ctx context.Context, outcome *model.FulfillmentOutcome) error {
	if err := uc.cancelPickList(ctx, outcome); err != nil {
		return err
	}
	for i := range outcome.Lines {
		line := &outcome.Lines[i]
		if line.Source != model.InventoryWarehouse {
			_, err := uc.sweeps.ReleaseDemand(ctx, demandKey(outcome.OrderID, line.OrderItemID))
			switch {
			case err == nil, errors.Is(err, model.ErrNotFound):
			case errors.Is(err, model.ErrInvalidTransition):
				// The trip already started; the demand stays on the sweep.
				line.Error = err.Error()
				uc.logger.Warn("Sweep demand kept on cancelled order",
					zap.String("order_id", outcome.OrderID),
					zap.String("line", line.OrderItemID),
					zap.Error(err),
				)
			default:
				return err
			}
		}
		line.Status = model.LineCancelled
	}
	return nil
}

func (uc *fulfillmentUseCase) cancelPickList(ctx context.Context, outcome *model.FulfillmentOutcome) error {
	id := outcome.PickListID
	if id == nil {
		list, err := uc.picks.GetByOrder(ctx, outcome.OrderID)
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		id = &list.ID
	}
	_, err := uc.picks.Cancel(ctx, *id)
	return err
}

func (uc *fulfillmentUseCase) failLine(orderID string, line *model.LineOutcome, err error) {
	line.Status = model.LineFailed
	line.Error = err.Error()
	uc.logger.Warn("Order line could not be fulfilled",
		zap.String("order_id", orderID),
		zap.String("line", line.OrderItemID),
		zap.String("product_id", line.ProductID),
		zap.Error(err),
	)
}

// pickWarehouse sends all warehouse lines through one pick list.
func (uc *fulfillmentUseCase) pickWarehouse(ctx context.Context, order *dto.Order, lines []model.LineOutcome, idx []int) *string {
	input := &pldto.GenerateInput{OrderID: order.ID, Priority: order.Priority}
	for _, i := range idx {
		input.Lines = append(input.Lines, pldto.PickLine{
			OrderItemID: lines[i].OrderItemID,
			ProductID:   lines[i].ProductID,
			Quantity:    lines[i].Requested,
		})
	}

	res, err := uc.picks.Generate(ctx, input)
	if errors.Is(err, model.ErrAlreadyDispatched) {
		res, err = uc.adoptPickList(ctx, input)
	}
	if err != nil {
		for _, i := range idx {
			uc.failLine(order.ID, &lines[i], err)
		}
		return nil
	}

	byItem := make(map[string]pldto.LineResult, len(res.Lines))
	for _, lr := range res.Lines {
		byItem[lr.OrderItemID] = lr
	}
	for _, i := range idx {
		line := &lines[i]
		lr, ok := byItem[line.OrderItemID]
		if !ok {
			uc.failLine(order.ID, line, errors.New("pick list did not report this line"))
			continue
		}
		if lr.Err != nil {
			uc.failLine(order.ID, line, lr.Err)
			continue
		}
		line.Allocated = lr.Allocated
		line.Shortfall = lr.Shortfall
		line.Lots = lr.Lots
		line.PickListItemIDs = lr.ItemIDs
		if lr.Shortfall > 0 {
			line.Status = model.LineBackordered
			uc.logger.Warn("Warehouse line backordered",
				zap.String("order_id", order.ID),
				zap.String("line", line.OrderItemID),
				zap.String("product_id", line.ProductID),
				zap.Int("shortfall", lr.Shortfall),
			)
		} else {
			line.Status = model.LineAllocated
		}
	}

	if res.PickList == nil {
		return nil
	}
	id := res.PickList.ID
	return &id
}

// adoptPickList reports the pick list an interrupted dispatch already
// generated for the order.
func (uc *fulfillmentUseCase) adoptPickList(ctx context.Context, input *pldto.GenerateInput) (*pldto.GenerateResult, error) {
	list, err := uc.picks.GetByOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("Adopting existing pick list",
		zap.String("order_id", input.OrderID),
		zap.String("pick_list_id", list.ID),
	)

	res := &pldto.GenerateResult{PickList: list}
	for _, l := range input.Lines {
		lr := pldto.LineResult{OrderItemID: l.OrderItemID, ProductID: l.ProductID, Requested: l.Quantity}
		for _, it := range list.Items {
			if it.OrderItemID != l.OrderItemID {
				continue
			}
			lr.Allocated += it.Quantity
			lr.ItemIDs = append(lr.ItemIDs, it.ID)
			if it.LotID != nil {
				lr.Lots = append(lr.Lots, model.LotAllocation{LotID: *it.LotID, LocationID: it.LocationID, Quantity: it.Quantity})
			}
		}
		lr.Shortfall = max(l.Quantity-lr.Allocated, 0)
		res.Lines = append(res.Lines, lr)
	}
	return res, nil
}

func (uc *fulfillmentUseCase) requestSweep(ctx context.Context, orderID string, line *model.LineOutcome, src model.ProductSourcing, now time.Time) {
	if src.PreferredRetailerID == nil || *src.PreferredRetailerID == "" {
		uc.failLine(orderID, line, fmt.Errorf("%w: product %s has no preferred retailer", model.ErrValidation, line.ProductID))
		return
	}
	storeID := *src.PreferredRetailerID

	date, err := uc.sweeps.NextOpenDate(ctx, storeID, now)
	if err != nil {
		uc.failLine(orderID, line, err)
		return
	}
	item, err := uc.sweeps.AddDemand(ctx, &swdto.AddDemandInput{
		DemandKey: demandKey(orderID, line.OrderItemID),
		StoreID:   storeID,
		Date:      date,
		ProductID: line.ProductID,
		Quantity:  line.Requested,
	})
	if err != nil {
		uc.failLine(orderID, line, err)
		return
	}

	sweepID, itemID := item.SweepID, item.ID
	line.Status = model.LineSweepRequested
	line.SweepID = &sweepID
	line.SweepItemID = &itemID
	line.StoreID = &storeID
	line.SweepDate = &date
}

const maxCancelAttempts = 3

// Cancel releases everything the order reserved. A dispatch still holding a
// fresh claim is refused; a stale one is cancelled in its place.
func (uc *fulfillmentUseCase) Cancel(ctx context.Context, orderID string) (*model.FulfillmentOutcome, error) {
	var lastErr error
	for attempt := 0; attempt < maxCancelAttempts; attempt++ {
		outcome, err := uc.repo.FindByOrderID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		switch {
		case outcome.Status == model.FulfillmentCancelled:
			return outcome, nil
		case outcome.Status == model.FulfillmentPending && !uc.stale(outcome):
			return nil, fmt.Errorf("%w: order %s is still being dispatched", model.ErrInvalidTransition, orderID)
		case outcome.Status == model.FulfillmentPending:
			uc.logger.Warn("Cancelling stale dispatch", zap.String("order_id", orderID))
		}

		if err := uc.compensate(ctx, outcome); err != nil {
			return nil, err
		}

		outcome.Status = model.FulfillmentCancelled
		outcome.UpdatedAt = uc.now()
		err = uc.repo.Update(ctx, outcome)
		if errors.Is(err, model.ErrInvalidTransition) {
			// a dispatch finished meanwhile; release what it stored too
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}

		metrics.Dispatches.WithLabelValues(string(outcome.Status)).Inc()
		uc.logger.Info("Cancelled order fulfillment", zap.String("order_id", orderID))
		uc.publish(ctx, dto.EventFulfillmentCancelled, outcome)
		return outcome, nil
	}
	return nil, lastErr
}

func (uc *fulfillmentUseCase) Get(ctx context.Context, orderID string) (*model.FulfillmentOutcome, error) {
	return uc.repo.FindByOrderID(ctx, orderID)
}

// publish is best effort: the outcome is already stored.
func (uc *fulfillmentUseCase) publish(ctx context.Context, eventType string, outcome *model.FulfillmentOutcome) {
	if uc.publisher == nil {
		return
	}
	event := dto.FulfillmentEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Payload:   outcome,
		Timestamp: uc.now(),
	}
	if err := uc.publisher.Publish(ctx, outcome.OrderID, event); err != nil {
		uc.logger.Error("Failed to publish fulfillment event",
			zap.String("order_id", outcome.OrderID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
