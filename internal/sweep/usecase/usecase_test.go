package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	invdto "github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/internal/sweep"
	"github.com/fekuna/omnipos-fulfillment-service/internal/sweep/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/sweep/repository"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2025, 1, 20, 10, 30, 0, 0, time.UTC)

// recordingReceiver keeps accepted intake and refuses a repeated receipt key
// the way the lot store does. The failAt-th call fails once.
type recordingReceiver struct {
	mu     sync.Mutex
	inputs []invdto.ReceiveLotInput
	calls  int
	failAt int
}

func (r *recordingReceiver) ReceiveLot(_ context.Context, in *invdto.ReceiveLotInput) (*model.InventoryLot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls == r.failAt {
		return nil, errors.New("lot store unavailable")
	}
	for _, prev := range r.inputs {
		if in.ReceiptKey != nil && prev.ReceiptKey != nil && *in.ReceiptKey == *prev.ReceiptKey {
			return nil, model.ErrDuplicateReceipt
		}
	}
	r.inputs = append(r.inputs, *in)
	return &model.InventoryLot{ProductID: in.ProductID, Quantity: in.Quantity}, nil
}

func (r *recordingReceiver) received() map[string]int {
	out := map[string]int{}
	for _, in := range r.inputs {
		out[in.ProductID] += in.Quantity
	}
	return out
}

func newTestUseCase(repo sweep.Repository, lots LotReceiver) sweep.UseCase {
	uc := NewSweepUseCase(repo, lots, Settings{StartHour: 8, HorizonDays: 7}, logger.NewNop())
	uc.(*sweepUseCase).now = func() time.Time { return today }
	return uc
}

func demand(store, product string, qty int) *dto.AddDemandInput {
	return &dto.AddDemandInput{StoreID: store, Date: today, ProductID: product, Quantity: qty}
}

func TestAddDemand_Accumulates(t *testing.T) {
	repo := repository.NewMemoryRepository()
	uc := newTestUseCase(repo, nil)
	ctx := context.Background()

	var item *model.SweepItem
	for i := 0; i < 3; i++ {
		var err error
		item, err = uc.AddDemand(ctx, demand("storeA", "P", 2))
		require.NoError(t, err)
	}
	assert.Equal(t, 6, item.Quantity)

	s, err := uc.Get(ctx, item.SweepID)
	require.NoError(t, err)
	require.Len(t, s.Items, 1)
	assert.Equal(t, 6, s.Items[0].Quantity)
	assert.Equal(t, 1, s.TotalItems)
	assert.Equal(t, 6, s.TotalLoad)
	assert.Equal(t, model.SweepScheduled, s.Status)
	assert.Equal(t, time.Date(2025, 1, 20, 8, 0, 0, 0, time.UTC), s.ScheduledStartTime)

	sweeps, err := repo.ListActiveSweeps(ctx, "storeA", today.AddDate(0, 0, -1), today.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, sweeps, 1)
}

func TestAddDemand_TotalsAcrossProducts(t *testing.T) {
	uc := newTestUseCase(repository.NewMemoryRepository(), nil)
	ctx := context.Background()

	_, err := uc.AddDemand(ctx, demand("storeA", "P", 2))
	require.NoError(t, err)
	item, err := uc.AddDemand(ctx, demand("storeA", "Q", 5))
	require.NoError(t, err)

	s, err := uc.Get(ctx, item.SweepID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalItems)
	assert.Equal(t, 7, s.TotalLoad)
}

func TestAddDemand_Concurrent(t *testing.T) {
	uc := newTestUseCase(repository.NewMemoryRepository(), nil)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.AddDemand(context.Background(), demand("storeA", "P", 1))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	item, err := uc.AddDemand(context.Background(), demand("storeA", "P", 1))
	require.NoError(t, err)
	assert.Equal(t, 11, item.Quantity)
}

// racingRepo hides the first lookup, as if another caller created the sweep
// between our read and our insert.
type racingRepo struct {
	*repository.MemoryRepository
	hidden bool
}

func (r *racingRepo) FindActiveSweep(ctx context.Context, storeID string, date time.Time) (*model.Sweep, error) {
	if !r.hidden {
		r.hidden = true
		return nil, model.ErrNotFound
	}
	return r.MemoryRepository.FindActiveSweep(ctx, storeID, date)
}

func TestAddDemand_ReusesSweepOnDuplicate(t *testing.T) {
	mem := repository.NewMemoryRepository()
	existing := &model.Sweep{
		BaseModel: model.BaseModel{ID: "sweep-1"},
		StoreID:   "storeA",
		SweepDate: time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC),
		Status:    model.SweepScheduled,
	}
	require.NoError(t, mem.CreateSweep(context.Background(), existing))

	uc := newTestUseCase(&racingRepo{MemoryRepository: mem}, nil)
	item, err := uc.AddDemand(context.Background(), demand("storeA", "P", 1))
	require.NoError(t, err)
	assert.Equal(t, "sweep-1", item.SweepID)
}

func TestAddDemand_OnlyWhileScheduled(t *testing.T) {
	uc := newTestUseCase(repository.NewMemoryRepository(), nil)
	ctx := context.Background()

	item, err := uc.AddDemand(ctx, demand("storeA", "P", 1))
	require.NoError(t, err)
	_, err = uc.Start(ctx, item.SweepID)
	require.NoError(t, err)

	_, err = uc.AddDemand(ctx, demand("storeA", "P", 1))
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))

	_, err = uc.RemoveDemand(ctx, item.ID, 1)
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))
}

func TestAddDemand_NewSweepAfterCancel(t *testing.T) {
	uc := newTestUseCase(repository.NewMemoryRepository(), nil)
	ctx := context.Background()

	first, err := uc.AddDemand(ctx, demand("storeA", "P", 1))
	require.NoError(t, err)
	_, err = uc.Cancel(ctx, first.SweepID)
	require.NoError(t, err)

	second, err := uc.AddDemand(ctx, demand("storeA", "P", 1))
	require.NoError(t, err)
	assert.NotEqual(t, first.SweepID, second.SweepID)
	assert.Equal(t, 1, second.Quantity)
}

func TestRemoveDemand_Floors(t *testing.T) {
	uc := newTestUseCase(repository.NewMemoryRepository(), nil)
	ctx := context.Background()

	item, err := uc.AddDemand(ctx, demand("storeA", "P", 2))
	require.NoError(t, err)

	item, err = uc.RemoveDemand(ctx, item.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, item.Quantity)

	s, err := uc.Get(ctx, item.SweepID)
	require.NoError(t, err)
	assert.Equal(t, 0, s.TotalItems)
	assert.Equal(t, 0, s.TotalLoad)
}

func TestDemandKey_AddAndReleaseOnce(t *testing.T) {
	uc := newTestUseCase(repository.NewMemoryRepository(), nil)
	ctx := context.Background()

	other := demand("storeA", "P", 5)
	other.DemandKey = "o2/oi-1"
	_, err := uc.AddDemand(ctx, other)
	require.NoError(t, err)

	mine := demand("storeA", "P", 2)
	mine.DemandKey = "o1/oi-1"
	for i := 0; i < 2; i++ {
		item, err := uc.AddDemand(ctx, mine)
		require.NoError(t, err)
		assert.Equal(t, 7, item.Quantity, "a repeated key adds nothing")
	}

	for i := 0; i < 2; i++ {
		item, err := uc.ReleaseDemand(ctx, "o1/oi-1")
		require.NoError(t, err)
		assert.Equal(t, 5, item.Quantity, "a repeated release removes nothing")
	}

	item, err := uc.AddDemand(ctx, mine)
	require.NoError(t, err)
	assert.Equal(t, 7, item.Quantity, "a released key can be requested again")

	_, err = uc.ReleaseDemand(ctx, "unknown")
	assert.True(t, errors.Is(err, model.ErrNotFound))
	_, err = uc.ReleaseDemand(ctx, "")
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestReleaseDemand_OnlyWhileScheduled(t *testing.T) {
	uc := newTestUseCase(repository.NewMemoryRepository(), nil)
	ctx := context.Background()

	in := demand("storeA", "P", 2)
	in.DemandKey = "o1/oi-1"
	item, err := uc.AddDemand(ctx, in)
	require.NoError(t, err)
	_, err = uc.Start(ctx, item.SweepID)
	require.NoError(t, err)

	_, err = uc.ReleaseDemand(ctx, "o1/oi-1")
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))
}

func startedItem(t *testing.T, uc sweep.UseCase, product string, qty int) *model.SweepItem {
	t.Helper()
	item, err := uc.AddDemand(context.Background(), demand("storeA", product, qty))
	require.NoError(t, err)
	return item
}

func TestMarkPicked_PartialThenFull(t *testing.T) {
	uc := newTestUseCase(repository.NewMemoryRepository(), nil)
	ctx := context.Background()
	item := startedItem(t, uc, "P", 5)

	_, err := uc.MarkPicked(ctx, item.ID, 3, nil)
	assert.True(t, errors.Is(err, model.ErrInvalidTransition), "sweep not started")

	_, err = uc.Start(ctx, item.SweepID)
	require.NoError(t, err)

	got, err := uc.MarkPicked(ctx, item.ID, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SweepItemPartial, got.Status)
	assert.Equal(t, 3, got.PickedQuantity)

	_, err = uc.MarkPicked(ctx, item.ID, 2, nil)
	assert.True(t, errors.Is(err, model.ErrValidation), "picked quantity is monotonic")

	_, err = uc.MarkPicked(ctx, item.ID, 6, nil)
	assert.True(t, errors.Is(err, model.ErrValidation))

	got, err = uc.MarkPicked(ctx, item.ID, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SweepItemPicked, got.Status)
}

func TestSubstituteAndUnavailable(t *testing.T) {
	uc := newTestUseCase(repository.NewMemoryRepository(), nil)
	ctx := context.Background()
	item := startedItem(t, uc, "P", 2)
	_, err := uc.Start(ctx, item.SweepID)
	require.NoError(t, err)

	_, err = uc.Substitute(ctx, item.ID, "P", nil)
	assert.True(t, errors.Is(err, model.ErrValidation))

	got, err := uc.Substitute(ctx, item.ID, "P-alt", nil)
	require.NoError(t, err)
	assert.Equal(t, model.SweepItemSubstituted, got.Status)
	assert.Equal(t, "P", got.ProductID)
	require.NotNil(t, got.SubstituteProductID)
	assert.Equal(t, "P-alt", *got.SubstituteProductID)

	note := "out of stock"
	got, err = uc.MarkUnavailable(ctx, item.ID, &note)
	require.NoError(t, err)
	assert.Equal(t, model.SweepItemUnavailable, got.Status)
	assert.Nil(t, got.SubstituteProductID)
}

func TestComplete_ReceivesIntake(t *testing.T) {
	lots := &recordingReceiver{}
	uc := newTestUseCase(repository.NewMemoryRepository(), lots)
	ctx := context.Background()

	picked := startedItem(t, uc, "P", 2)
	partial := startedItem(t, uc, "Q", 5)
	untouched := startedItem(t, uc, "R", 1)

	_, err := uc.Complete(ctx, picked.SweepID)
	assert.True(t, errors.Is(err, model.ErrInvalidTransition), "only in-progress sweeps complete")

	_, err = uc.Start(ctx, picked.SweepID)
	require.NoError(t, err)
	_, err = uc.MarkPicked(ctx, picked.ID, 2, nil)
	require.NoError(t, err)
	_, err = uc.MarkPicked(ctx, partial.ID, 3, nil)
	require.NoError(t, err)
	_, err = uc.Substitute(ctx, partial.ID, "Q-alt", nil)
	require.NoError(t, err)

	s, err := uc.Complete(ctx, picked.SweepID)
	require.NoError(t, err)
	assert.Equal(t, model.SweepCompleted, s.Status)
	assert.NotNil(t, s.ActualEndTime)

	for _, it := range s.Items {
		if it.ID == untouched.ID {
			assert.Equal(t, model.SweepItemUnavailable, it.Status)
		}
	}
	assert.Equal(t, map[string]int{"P": 2, "Q": 3, "Q-alt": 2}, lots.received())
	for _, in := range lots.inputs {
		require.NotNil(t, in.SourceSweepID)
		assert.Equal(t, picked.SweepID, *in.SourceSweepID)
	}
}

func TestComplete_RetryAfterIntakeFailure(t *testing.T) {
	lots := &recordingReceiver{failAt: 2}
	uc := newTestUseCase(repository.NewMemoryRepository(), lots)
	ctx := context.Background()

	p := startedItem(t, uc, "P", 2)
	q := startedItem(t, uc, "Q", 5)
	startedItem(t, uc, "R", 1)
	_, err := uc.Start(ctx, p.SweepID)
	require.NoError(t, err)
	_, err = uc.MarkPicked(ctx, p.ID, 2, nil)
	require.NoError(t, err)
	_, err = uc.MarkPicked(ctx, q.ID, 3, nil)
	require.NoError(t, err)
	_, err = uc.Substitute(ctx, q.ID, "Q-alt", nil)
	require.NoError(t, err)

	_, err = uc.Complete(ctx, p.SweepID)
	require.Error(t, err)

	s, err := uc.Get(ctx, p.SweepID)
	require.NoError(t, err)
	assert.Equal(t, model.SweepInProgress, s.Status, "intake failed before the sweep closed")

	s, err = uc.Complete(ctx, p.SweepID)
	require.NoError(t, err)
	assert.Equal(t, model.SweepCompleted, s.Status)
	assert.Equal(t, map[string]int{"P": 2, "Q": 3, "Q-alt": 2}, lots.received(), "each lot is received once")

	_, err = uc.Complete(ctx, p.SweepID)
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))
}

// interleavingRepo runs before once, just ahead of the first item write.
type interleavingRepo struct {
	*repository.MemoryRepository
	before func()
}

func (r *interleavingRepo) UpdateItem(ctx context.Context, item *model.SweepItem, from model.SweepItemStatus) error {
	if hook := r.before; hook != nil {
		r.before = nil
		hook()
	}
	return r.MemoryRepository.UpdateItem(ctx, item, from)
}

func TestMarkPicked_LosesToConcurrentSubstitute(t *testing.T) {
	repo := &interleavingRepo{MemoryRepository: repository.NewMemoryRepository()}
	uc := newTestUseCase(repo, nil)
	ctx := context.Background()
	item := startedItem(t, uc, "P", 2)
	_, err := uc.Start(ctx, item.SweepID)
	require.NoError(t, err)

	repo.before = func() {
		_, err := uc.Substitute(ctx, item.ID, "P-alt", nil)
		require.NoError(t, err)
	}
	_, err = uc.MarkPicked(ctx, item.ID, 2, nil)
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))

	got, err := repo.FindItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SweepItemSubstituted, got.Status)
	assert.Equal(t, 0, got.PickedQuantity)
}

func TestNextOpenDate(t *testing.T) {
	uc := newTestUseCase(repository.NewMemoryRepository(), nil)
	ctx := context.Background()

	d, err := uc.NextOpenDate(ctx, "storeA", today)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), d)

	item := startedItem(t, uc, "P", 1)
	d, err = uc.NextOpenDate(ctx, "storeA", today)
	require.NoError(t, err)
	assert.Equal(t, 20, d.Day(), "a scheduled sweep still takes demand")

	_, err = uc.Start(ctx, item.SweepID)
	require.NoError(t, err)
	d, err = uc.NextOpenDate(ctx, "storeA", today)
	require.NoError(t, err)
	assert.Equal(t, 21, d.Day())
}

func TestAssignDriver(t *testing.T) {
	uc := newTestUseCase(repository.NewMemoryRepository(), nil)
	ctx := context.Background()
	item := startedItem(t, uc, "P", 1)

	s, err := uc.AssignDriver(ctx, item.SweepID, "driver-7")
	require.NoError(t, err)
	require.NotNil(t, s.DriverID)
	assert.Equal(t, "driver-7", *s.DriverID)

	_, err = uc.Cancel(ctx, item.SweepID)
	require.NoError(t, err)
	_, err = uc.AssignDriver(ctx, item.SweepID, "driver-8")
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))
}
