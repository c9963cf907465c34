package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	invdto "github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/metrics"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/internal/sweep"
	"github.com/fekuna/omnipos-fulfillment-service/internal/sweep/dto"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LotReceiver takes sweep intake into inventory. inventory.UseCase satisfies it.
type LotReceiver interface {
	ReceiveLot(ctx context.Context, input *invdto.ReceiveLotInput) (*model.InventoryLot, error)
}

type Settings struct {
	StartHour   int
	HorizonDays int
	Location    *time.Location
}

type sweepUseCase struct {
	repo     sweep.Repository
	lots     LotReceiver
	settings Settings
	logger   logger.ZapLogger
	now      func() time.Time
}

// NewSweepUseCase builds the aggregator. lots may be nil, in which case
// completed sweeps are not received into inventory.
func NewSweepUseCase(repo sweep.Repository, lots LotReceiver, settings Settings, log logger.ZapLogger) sweep.UseCase {
	if settings.HorizonDays <= 0 {
		settings.HorizonDays = 14
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &sweepUseCase{
		repo:     repo,
		lots:     lots,
		settings: settings,
		logger:   log,
		now:      time.Now,
	}
}

// dateOf truncates t to its calendar day in the configured zone.
func (uc *sweepUseCase) dateOf(t time.Time) time.Time {
	y, m, d := t.In(uc.settings.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, uc.settings.Location)
}

func (uc *sweepUseCase) AddDemand(ctx context.Context, input *dto.AddDemandInput) (*model.SweepItem, error) {
	if input.StoreID == "" || input.ProductID == "" {
		return nil, fmt.Errorf("%w: store id and product id are required", model.ErrValidation)
	}
	if input.Quantity <= 0 {
		return nil, fmt.Errorf("%w: demand quantity must be positive", model.ErrValidation)
	}

	s, err := uc.findOrCreateSweep(ctx, input.StoreID, uc.dateOf(input.Date))
	if err != nil {
		return nil, err
	}

	now := uc.now()
	item, err := uc.repo.AddItemQuantity(ctx, &model.SweepItem{
		BaseModel:   model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		SweepID:     s.ID,
		ProductID:   input.ProductID,
		StoreItemID: input.StoreItemID,
		Quantity:    input.Quantity,
		Status:      model.SweepItemPending,
	}, input.DemandKey)
	if err != nil {
		return nil, err
	}

	metrics.SweepDemandUnits.Add(float64(input.Quantity))
	uc.logger.Debug("Added sweep demand",
		zap.String("sweep_id", s.ID),
		zap.String("store_id", input.StoreID),
		zap.String("product_id", input.ProductID),
		zap.Int("quantity", input.Quantity),
		zap.Int("item_quantity", item.Quantity),
	)
	return item, nil
}

// findOrCreateSweep returns the active sweep for store and date, creating a
// scheduled one when absent. Losing a create race reuses the winner's sweep.
func (uc *sweepUseCase) findOrCreateSweep(ctx context.Context, storeID string, date time.Time) (*model.Sweep, error) {
	s, err := uc.repo.FindActiveSweep(ctx, storeID, date)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	now := uc.now()
	s = &model.Sweep{
		BaseModel:          model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		StoreID:            storeID,
		SweepDate:          date,
		ScheduledStartTime: date.Add(time.Duration(uc.settings.StartHour) * time.Hour),
		Status:             model.SweepScheduled,
	}
	err = uc.repo.CreateSweep(ctx, s)
	if errors.Is(err, model.ErrDuplicateSweep) {
		uc.logger.Debug("Sweep created concurrently, reusing", zap.String("store_id", storeID))
		return uc.repo.FindActiveSweep(ctx, storeID, date)
	}
	if err != nil {
		return nil, err
	}

	uc.logger.Info("Scheduled sweep",
		zap.String("sweep_id", s.ID),
		zap.String("store_id", storeID),
		zap.Time("sweep_date", date),
	)
	return s, nil
}

func (uc *sweepUseCase) RemoveDemand(ctx context.Context, sweepItemID string, quantity int) (*model.SweepItem, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", model.ErrValidation)
	}
	return uc.repo.RemoveItemQuantity(ctx, sweepItemID, quantity)
}

func (uc *sweepUseCase) ReleaseDemand(ctx context.Context, demandKey string) (*model.SweepItem, error) {
	if demandKey == "" {
		return nil, fmt.Errorf("%w: demand key is required", model.ErrValidation)
	}
	item, err := uc.repo.ReleaseDemand(ctx, demandKey, uc.now())
	if err != nil {
		return nil, err
	}
	uc.logger.Debug("Released sweep demand",
		zap.String("demand_key", demandKey),
		zap.String("sweep_item_id", item.ID),
		zap.Int("item_quantity", item.Quantity),
	)
	return item, nil
}

// itemInTrip loads an item whose sweep is in progress.
func (uc *sweepUseCase) itemInTrip(ctx context.Context, sweepItemID string) (*model.SweepItem, error) {
	item, err := uc.repo.FindItemByID(ctx, sweepItemID)
	if err != nil {
		return nil, err
	}
	s, err := uc.repo.FindSweepByID(ctx, item.SweepID)
	if err != nil {
		return nil, err
	}
	if s.Status != model.SweepInProgress {
		return nil, fmt.Errorf("%w: sweep %s is %s", model.ErrInvalidTransition, s.ID, s.Status)
	}
	return item, nil
}

// saveItem writes item over the status it was read with.
func (uc *sweepUseCase) saveItem(ctx context.Context, item *model.SweepItem, from model.SweepItemStatus) (*model.SweepItem, error) {
	item.UpdatedAt = uc.now()
	if err := uc.repo.UpdateItem(ctx, item, from); err != nil {
		return nil, err
	}
	metrics.SweepItemOutcomes.WithLabelValues(string(item.Status)).Inc()
	return item, nil
}

func (uc *sweepUseCase) MarkPicked(ctx context.Context, sweepItemID string, pickedQuantity int, notes *string) (*model.SweepItem, error) {
	item, err := uc.itemInTrip(ctx, sweepItemID)
	if err != nil {
		return nil, err
	}
	if item.Status != model.SweepItemPending && item.Status != model.SweepItemPartial {
		return nil, fmt.Errorf("%w: sweep item %s is %s", model.ErrInvalidTransition, item.ID, item.Status)
	}
	if pickedQuantity <= 0 || pickedQuantity > item.Quantity {
		return nil, fmt.Errorf("%w: picked quantity must be between 1 and %d", model.ErrValidation, item.Quantity)
	}
	if pickedQuantity < item.PickedQuantity {
		return nil, fmt.Errorf("%w: picked quantity cannot go from %d to %d",
			model.ErrValidation, item.PickedQuantity, pickedQuantity)
	}

	from := item.Status
	item.PickedQuantity = pickedQuantity
	if pickedQuantity >= item.Quantity {
		item.Status = model.SweepItemPicked
	} else {
		item.Status = model.SweepItemPartial
	}
	if notes != nil {
		item.Notes = notes
	}
	return uc.saveItem(ctx, item, from)
}

// MarkUnavailable closes the unpicked remainder of the item. Units already
// picked stay recorded.
func (uc *sweepUseCase) MarkUnavailable(ctx context.Context, sweepItemID string, notes *string) (*model.SweepItem, error) {
	item, err := uc.itemInTrip(ctx, sweepItemID)
	if err != nil {
		return nil, err
	}
	if item.Status == model.SweepItemPicked || item.Status == model.SweepItemUnavailable {
		return nil, fmt.Errorf("%w: sweep item %s is %s", model.ErrInvalidTransition, item.ID, item.Status)
	}

	from := item.Status
	item.Status = model.SweepItemUnavailable
	item.SubstituteProductID = nil
	if notes != nil {
		item.Notes = notes
	}
	return uc.saveItem(ctx, item, from)
}

// Substitute covers the unpicked remainder with another product. ProductID is
// left untouched so demand stays traceable.
func (uc *sweepUseCase) Substitute(ctx context.Context, sweepItemID, substituteProductID string, notes *string) (*model.SweepItem, error) {
	item, err := uc.itemInTrip(ctx, sweepItemID)
	if err != nil {
		return nil, err
	}
	if substituteProductID == "" || substituteProductID == item.ProductID {
		return nil, fmt.Errorf("%w: substitute must be a different product", model.ErrValidation)
	}
	if item.Status == model.SweepItemPicked {
		return nil, fmt.Errorf("%w: sweep item %s is already picked", model.ErrInvalidTransition, item.ID)
	}

	from := item.Status
	item.Status = model.SweepItemSubstituted
	item.SubstituteProductID = &substituteProductID
	if notes != nil {
		item.Notes = notes
	}
	return uc.saveItem(ctx, item, from)
}

func (uc *sweepUseCase) Get(ctx context.Context, sweepID string) (*model.Sweep, error) {
	s, err := uc.repo.FindSweepByID(ctx, sweepID)
	if err != nil {
		return nil, err
	}
	items, err := uc.repo.ListItems(ctx, sweepID)
	if err != nil {
		return nil, err
	}
	s.Items = items
	return s, nil
}

// transition moves the sweep to next if its status is one of from.
func (uc *sweepUseCase) transition(ctx context.Context, sweepID string, next model.SweepStatus, from ...model.SweepStatus) (*model.Sweep, error) {
	s, err := uc.repo.FindSweepByID(ctx, sweepID)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, f := range from {
		if s.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: sweep %s cannot go from %s to %s", model.ErrInvalidTransition, sweepID, s.Status, next)
	}

	now := uc.now()
	switch next {
	case model.SweepInProgress:
		s.ActualStartTime = &now
	case model.SweepCompleted:
		s.ActualEndTime = &now
	}
	s.Status = next
	s.UpdatedAt = now
	if err := uc.repo.UpdateSweep(ctx, s); err != nil {
		return nil, err
	}
	uc.logger.Info("Sweep status changed", zap.String("sweep_id", sweepID), zap.String("status", string(next)))
	return s, nil
}

func (uc *sweepUseCase) AssignDriver(ctx context.Context, sweepID, driverID string) (*model.Sweep, error) {
	if driverID == "" {
		return nil, fmt.Errorf("%w: driver id is required", model.ErrValidation)
	}
	s, err := uc.repo.FindSweepByID(ctx, sweepID)
	if err != nil {
		return nil, err
	}
	if s.Status != model.SweepScheduled && s.Status != model.SweepInProgress {
		return nil, fmt.Errorf("%w: sweep %s is %s", model.ErrInvalidTransition, sweepID, s.Status)
	}
	s.DriverID = &driverID
	s.UpdatedAt = uc.now()
	if err := uc.repo.UpdateSweep(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (uc *sweepUseCase) Start(ctx context.Context, sweepID string) (*model.Sweep, error) {
	return uc.transition(ctx, sweepID, model.SweepInProgress, model.SweepScheduled)
}

func (uc *sweepUseCase) Cancel(ctx context.Context, sweepID string) (*model.Sweep, error) {
	return uc.transition(ctx, sweepID, model.SweepCancelled, model.SweepScheduled, model.SweepInProgress)
}

// Complete closes the trip. Items never touched become unavailable and
// everything that came back is received into inventory as sweep lots before
// the sweep is marked completed, so a failed intake can be completed again.
func (uc *sweepUseCase) Complete(ctx context.Context, sweepID string) (*model.Sweep, error) {
	s, err := uc.repo.FindSweepByID(ctx, sweepID)
	if err != nil {
		return nil, err
	}
	if s.Status != model.SweepInProgress {
		return nil, fmt.Errorf("%w: sweep %s cannot go from %s to %s",
			model.ErrInvalidTransition, sweepID, s.Status, model.SweepCompleted)
	}
	items, err := uc.repo.ListItems(ctx, sweepID)
	if err != nil {
		return nil, err
	}

	note := "not picked before sweep completed"
	for i := range items {
		item := &items[i]
		if item.Status == model.SweepItemPending && item.Quantity > 0 {
			item.Status = model.SweepItemUnavailable
			item.Notes = &note
			if _, err := uc.saveItem(ctx, item, model.SweepItemPending); err != nil {
				return nil, err
			}
		}
		if err := uc.receive(ctx, s, item); err != nil {
			return nil, err
		}
	}

	s, err = uc.transition(ctx, sweepID, model.SweepCompleted, model.SweepInProgress)
	if err != nil {
		return nil, err
	}
	s.Items = items
	return s, nil
}

// receiptKey names the lot one sweep item yields for one product.
func receiptKey(itemID, productID string) string {
	return "sweep_item:" + itemID + "/" + productID
}

func (uc *sweepUseCase) receive(ctx context.Context, s *model.Sweep, item *model.SweepItem) error {
	if uc.lots == nil {
		return nil
	}
	ref := invdto.Reference{Type: "sweep", ID: s.ID}

	intake := map[string]int{}
	if item.PickedQuantity > 0 {
		intake[item.ProductID] += item.PickedQuantity
	}
	if item.Status == model.SweepItemSubstituted {
		if rest := item.Quantity - item.PickedQuantity; rest > 0 {
			intake[item.ReceivedProductID()] += rest
		}
	}

	for productID, qty := range intake {
		key := receiptKey(item.ID, productID)
		_, err := uc.lots.ReceiveLot(ctx, &invdto.ReceiveLotInput{
			ProductID:     productID,
			Quantity:      qty,
			SourceSweepID: &s.ID,
			ReceiptKey:    &key,
			Notes:         "sweep intake from store " + s.StoreID,
			Reference:     ref,
		})
		if errors.Is(err, model.ErrDuplicateReceipt) {
			uc.logger.Debug("Sweep intake already received", zap.String("receipt_key", key))
			continue
		}
		if err != nil {
			return fmt.Errorf("receive sweep item %s: %w", item.ID, err)
		}
	}
	return nil
}

func (uc *sweepUseCase) NextOpenDate(ctx context.Context, storeID string, from time.Time) (time.Time, error) {
	start := uc.dateOf(from)
	end := start.AddDate(0, 0, uc.settings.HorizonDays)

	sweeps, err := uc.repo.ListActiveSweeps(ctx, storeID, start, end)
	if err != nil {
		return time.Time{}, err
	}
	closed := map[string]bool{}
	for _, s := range sweeps {
		if s.Status != model.SweepScheduled {
			closed[s.SweepDate.Format("2006-01-02")] = true
		}
	}

	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		if !closed[d.Format("2006-01-02")] {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: no open sweep for store %s within %d days",
		model.ErrInvalidTransition, storeID, uc.settings.HorizonDays)
}
