package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory"
	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/metrics"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Settings struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

type inventoryUseCase struct {
	repo      inventory.Repository
	locations inventory.LocationLookup
	settings  Settings
	logger    logger.ZapLogger
}

// NewInventoryUseCase builds the lot store and allocator. locations may be nil,
// in which case received lots are not checked against the hierarchy.
func NewInventoryUseCase(repo inventory.Repository, locations inventory.LocationLookup, settings Settings, log logger.ZapLogger) inventory.UseCase {
	if settings.MaxRetries <= 0 {
		settings.MaxRetries = 5
	}
	if settings.RetryBackoff <= 0 {
		settings.RetryBackoff = 20 * time.Millisecond
	}
	return &inventoryUseCase{
		repo:      repo,
		locations: locations,
		settings:  settings,
		logger:    log,
	}
}

func newMovement(t model.MovementType, ref dto.Reference, notes string) *model.LotMovement {
	m := &model.LotMovement{
		ID:           uuid.New().String(),
		MovementType: t,
		Notes:        notes,
		CreatedAt:    time.Now(),
	}
	if ref.Type != "" {
		refType := ref.Type
		m.ReferenceType = &refType
	}
	if ref.ID != "" {
		refID := ref.ID
		m.ReferenceID = &refID
	}
	return m
}

func (uc *inventoryUseCase) ReceiveLot(ctx context.Context, input *dto.ReceiveLotInput) (*model.InventoryLot, error) {
	if input.ProductID == "" {
		return nil, fmt.Errorf("%w: product id is required", model.ErrValidation)
	}
	if input.Quantity <= 0 {
		return nil, fmt.Errorf("%w: received quantity must be positive", model.ErrValidation)
	}
	if input.UnitCost.Valid && input.UnitCost.Decimal.IsNegative() {
		return nil, fmt.Errorf("%w: unit cost cannot be negative", model.ErrValidation)
	}
	if input.LocationID != nil && uc.locations != nil {
		if _, err := uc.locations.GetNode(ctx, *input.LocationID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	receivedAt := now
	if input.ReceivedAt != nil {
		receivedAt = *input.ReceivedAt
	}

	lot := &model.InventoryLot{
		BaseModel:      model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		ProductID:      input.ProductID,
		LocationID:     input.LocationID,
		Quantity:       input.Quantity,
		ReceivedAt:     receivedAt,
		ExpirationDate: input.ExpirationDate,
		LotNumber:      input.LotNumber,
		SourceSweepID:  input.SourceSweepID,
		ReceiptKey:     input.ReceiptKey,
		UnitCost:       input.UnitCost,
		IsAvailable:    true,
	}

	movement := newMovement(model.MovementReceive, input.Reference, input.Notes)
	if err := uc.repo.Create(ctx, lot, movement); err != nil {
		return nil, err
	}
	metrics.LotMovements.WithLabelValues(string(model.MovementReceive)).Inc()

	uc.logger.Info("Received lot",
		zap.String("lot_id", lot.ID),
		zap.String("product_id", lot.ProductID),
		zap.Int("quantity", lot.Quantity),
		zap.String("value", lot.Value().StringFixed(2)),
	)
	return lot, nil
}

func (uc *inventoryUseCase) GetLot(ctx context.Context, id string) (*model.InventoryLot, error) {
	return uc.repo.FindByID(ctx, id)
}

func (uc *inventoryUseCase) Allocate(ctx context.Context, input *dto.AllocateInput) (*model.Allocation, error) {
	if input.ProductID == "" {
		return nil, fmt.Errorf("%w: product id is required", model.ErrValidation)
	}
	if input.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", model.ErrValidation)
	}

	start := time.Now()
	defer func() { metrics.AllocationDuration.Observe(time.Since(start).Seconds()) }()

	alloc := &model.Allocation{
		ProductID:  input.ProductID,
		LocationID: input.LocationID,
		Requested:  input.Quantity,
		Shortfall:  input.Quantity,
		Lots:       []model.LotAllocation{},
	}

	for attempt := 0; ; attempt++ {
		conflicted, err := uc.reservePass(ctx, input, alloc)
		if err != nil {
			uc.releaseAllocation(ctx, alloc, input.Reference)
			return nil, err
		}
		if !conflicted || alloc.Remaining() == 0 {
			break
		}
		if attempt+1 >= uc.settings.MaxRetries {
			uc.logger.Warn("Giving up on contended lots",
				zap.String("product_id", input.ProductID),
				zap.Int("remaining", alloc.Remaining()),
				zap.Int("attempts", attempt+1),
			)
			break
		}

		select {
		case <-ctx.Done():
			uc.releaseAllocation(ctx, alloc, input.Reference)
			return nil, ctx.Err()
		case <-time.After(uc.settings.RetryBackoff * time.Duration(attempt+1)):
		}
	}

	metrics.AllocationUnits.WithLabelValues("allocated").Add(float64(alloc.Allocated))
	if alloc.Shortfall > 0 {
		metrics.AllocationUnits.WithLabelValues("shortfall").Add(float64(alloc.Shortfall))
		uc.logger.Warn("Partial allocation",
			zap.String("product_id", alloc.ProductID),
			zap.Int("requested", alloc.Requested),
			zap.Int("allocated", alloc.Allocated),
		)
	}
	return alloc, nil
}

// reservePass walks the current candidates once in FEFO order. It stops at the
// first conflict so the next pass sees fresh quantities in the same order.
func (uc *inventoryUseCase) reservePass(ctx context.Context, input *dto.AllocateInput, alloc *model.Allocation) (bool, error) {
	lots, err := uc.repo.ListAllocatable(ctx, input.ProductID, input.LocationID)
	if err != nil {
		return false, err
	}

	for i := range lots {
		if alloc.Remaining() == 0 {
			return false, nil
		}
		lot := &lots[i]
		take := min(alloc.Remaining(), lot.AvailableQuantity())
		if take <= 0 {
			continue
		}

		movement := newMovement(model.MovementReserve, input.Reference, "")
		if _, err := uc.repo.Reserve(ctx, lot.ID, take, movement); err != nil {
			if errors.Is(err, model.ErrReservationConflict) {
				metrics.ReservationConflicts.Inc()
				uc.logger.Debug("Reservation conflict, retrying",
					zap.String("lot_id", lot.ID),
					zap.Int("quantity", take),
				)
				return true, nil
			}
			return false, err
		}
		metrics.LotMovements.WithLabelValues(string(model.MovementReserve)).Inc()
		alloc.Take(lot, take)
	}
	return false, nil
}

// releaseAllocation undoes the reservations made by a failed Allocate call.
func (uc *inventoryUseCase) releaseAllocation(ctx context.Context, alloc *model.Allocation, ref dto.Reference) {
	ctx = context.WithoutCancel(ctx)
	for _, l := range alloc.Lots {
		if err := uc.Release(ctx, l.LotID, l.Quantity, ref); err != nil {
			uc.logger.Error("Failed to release reservation after allocation error",
				zap.String("lot_id", l.LotID),
				zap.Int("quantity", l.Quantity),
				zap.Error(err),
			)
		}
	}
}

func (uc *inventoryUseCase) Release(ctx context.Context, lotID string, quantity int, ref dto.Reference) error {
	if quantity <= 0 {
		return nil
	}
	movement := newMovement(model.MovementRelease, ref, "")
	if _, err := uc.repo.Release(ctx, lotID, quantity, movement); err != nil {
		return err
	}
	metrics.LotMovements.WithLabelValues(string(model.MovementRelease)).Inc()
	return nil
}

func (uc *inventoryUseCase) Commit(ctx context.Context, lotID string, quantity int, ref dto.Reference) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: commit quantity must be positive", model.ErrValidation)
	}
	movement := newMovement(model.MovementCommit, ref, "")
	if _, err := uc.repo.Commit(ctx, lotID, quantity, movement); err != nil {
		return err
	}
	metrics.LotMovements.WithLabelValues(string(model.MovementCommit)).Inc()
	return nil
}

func (uc *inventoryUseCase) Settle(ctx context.Context, lotID string, commitQty, releaseQty int, ref dto.Reference) error {
	if ref.Type == "" || ref.ID == "" {
		return fmt.Errorf("%w: settling a lot needs a reference", model.ErrValidation)
	}
	if commitQty < 0 || releaseQty < 0 || commitQty+releaseQty == 0 {
		return fmt.Errorf("%w: settle quantities must be non-negative and not both zero", model.ErrValidation)
	}

	commit := newMovement(model.MovementCommit, ref, "")
	release := newMovement(model.MovementRelease, ref, "")
	lot, applied, err := uc.repo.Settle(ctx, lotID, commitQty, releaseQty, commit, release)
	if err != nil {
		return err
	}
	if !applied {
		uc.logger.Debug("Lot already settled",
			zap.String("lot_id", lotID),
			zap.String("reference_type", ref.Type),
			zap.String("reference_id", ref.ID),
		)
		return nil
	}
	if commitQty > 0 {
		metrics.LotMovements.WithLabelValues(string(model.MovementCommit)).Inc()
	}
	if releaseQty > 0 {
		metrics.LotMovements.WithLabelValues(string(model.MovementRelease)).Inc()
	}
	uc.logger.Debug("Settled lot reservation",
		zap.String("lot_id", lotID),
		zap.Int("committed", commitQty),
		zap.Int("released", releaseQty),
		zap.Int("reserved_after", lot.ReservedQuantity),
	)
	return nil
}

func (uc *inventoryUseCase) AdjustLot(ctx context.Context, lotID string, newQuantity int, reason string) (*model.InventoryLot, error) {
	if newQuantity < 0 {
		return nil, fmt.Errorf("%w: quantity cannot be negative", model.ErrValidation)
	}
	movement := newMovement(model.MovementAdjust, dto.Reference{Type: "cycle_count"}, reason)
	lot, err := uc.repo.Adjust(ctx, lotID, newQuantity, movement)
	if err != nil {
		return nil, err
	}
	metrics.LotMovements.WithLabelValues(string(model.MovementAdjust)).Inc()
	return lot, nil
}

func (uc *inventoryUseCase) SetAvailability(ctx context.Context, lotID string, available bool, reason string) (*model.InventoryLot, error) {
	movement := newMovement(model.MovementQuarantine, dto.Reference{}, reason)
	lot, err := uc.repo.SetAvailability(ctx, lotID, available, movement)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("Lot availability changed",
		zap.String("lot_id", lotID),
		zap.Bool("available", available),
		zap.String("reason", reason),
	)
	return lot, nil
}

func (uc *inventoryUseCase) FindPreferredLot(ctx context.Context, productID string) (*model.InventoryLot, error) {
	lots, err := uc.repo.ListAllocatable(ctx, productID, nil)
	if err != nil {
		return nil, err
	}
	if len(lots) == 0 {
		return nil, fmt.Errorf("%w: no available lot for product %s", model.ErrInsufficientInventory, productID)
	}
	return &lots[0], nil
}

func (uc *inventoryUseCase) ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.LotMovement, int, error) {
	return uc.repo.ListMovements(ctx, filters)
}
