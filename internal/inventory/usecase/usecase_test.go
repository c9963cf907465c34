package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory"
	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory/repository"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var received = time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func newTestUseCase() (inventory.UseCase, *repository.MemoryRepository) {
	repo := repository.NewMemoryRepository()
	return NewInventoryUseCase(repo, nil, Settings{MaxRetries: 50, RetryBackoff: time.Millisecond}, logger.NewNop()), repo
}

func receive(t *testing.T, uc inventory.UseCase, product string, qty int, expires *time.Time, at time.Time) *model.InventoryLot {
	t.Helper()
	lot, err := uc.ReceiveLot(context.Background(), &dto.ReceiveLotInput{
		ProductID:      product,
		Quantity:       qty,
		ExpirationDate: expires,
		ReceivedAt:     &at,
	})
	require.NoError(t, err)
	return lot
}

func allocate(t *testing.T, uc inventory.UseCase, product string, qty int) *model.Allocation {
	t.Helper()
	alloc, err := uc.Allocate(context.Background(), &dto.AllocateInput{ProductID: product, Quantity: qty})
	require.NoError(t, err)
	return alloc
}

func TestAllocate_FEFO(t *testing.T) {
	uc, _ := newTestUseCase()
	later := receive(t, uc, "milk", 1, day("2025-01-10"), received)
	never := receive(t, uc, "milk", 1, nil, received)
	sooner := receive(t, uc, "milk", 1, day("2025-01-05"), received)

	alloc := allocate(t, uc, "milk", 3)
	require.Len(t, alloc.Lots, 3)
	assert.Equal(t, sooner.ID, alloc.Lots[0].LotID)
	assert.Equal(t, later.ID, alloc.Lots[1].LotID)
	assert.Equal(t, never.ID, alloc.Lots[2].LotID)
}

func TestAllocate_FIFOTiebreak(t *testing.T) {
	uc, _ := newTestUseCase()
	exp := day("2025-03-01")
	second := receive(t, uc, "eggs", 2, exp, received.Add(24*time.Hour))
	first := receive(t, uc, "eggs", 2, exp, received)

	alloc := allocate(t, uc, "eggs", 3)
	require.Len(t, alloc.Lots, 2)
	assert.Equal(t, first.ID, alloc.Lots[0].LotID)
	assert.Equal(t, 2, alloc.Lots[0].Quantity)
	assert.Equal(t, second.ID, alloc.Lots[1].LotID)
	assert.Equal(t, 1, alloc.Lots[1].Quantity)
}

func TestAllocate_Partial(t *testing.T) {
	uc, repo := newTestUseCase()
	lot := receive(t, uc, "bread", 2, nil, received)

	alloc := allocate(t, uc, "bread", 5)
	assert.Equal(t, 2, alloc.Allocated)
	assert.Equal(t, 3, alloc.Shortfall)
	assert.True(t, errors.Is(alloc.Err(), model.ErrInsufficientInventory))

	stored, err := repo.FindByID(context.Background(), lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ReservedQuantity)

	empty := allocate(t, uc, "bread", 1)
	assert.Equal(t, 0, empty.Allocated)
	assert.Equal(t, 1, empty.Shortfall)
	assert.Empty(t, empty.Lots)
}

func TestAllocate_SkipsUnavailableAndOtherLocations(t *testing.T) {
	uc, _ := newTestUseCase()
	ctx := context.Background()

	quarantined := receive(t, uc, "fish", 5, day("2025-01-01"), received)
	_, err := uc.SetAvailability(ctx, quarantined.ID, false, "temperature excursion")
	require.NoError(t, err)

	slotA, slotB := "slot-a", "slot-b"
	atA, err := uc.ReceiveLot(ctx, &dto.ReceiveLotInput{ProductID: "fish", Quantity: 5, LocationID: &slotA, ReceivedAt: &received})
	require.NoError(t, err)
	_, err = uc.ReceiveLot(ctx, &dto.ReceiveLotInput{ProductID: "fish", Quantity: 5, LocationID: &slotB, ExpirationDate: day("2025-01-02"), ReceivedAt: &received})
	require.NoError(t, err)

	alloc, err := uc.Allocate(ctx, &dto.AllocateInput{ProductID: "fish", Quantity: 2, LocationID: &slotA})
	require.NoError(t, err)
	require.Len(t, alloc.Lots, 1)
	assert.Equal(t, atA.ID, alloc.Lots[0].LotID)
	assert.Equal(t, slotA, *alloc.Lots[0].LocationID)
}

func TestAllocate_Validation(t *testing.T) {
	uc, _ := newTestUseCase()
	_, err := uc.Allocate(context.Background(), &dto.AllocateInput{ProductID: "x", Quantity: 0})
	assert.True(t, errors.Is(err, model.ErrValidation))
	_, err = uc.Allocate(context.Background(), &dto.AllocateInput{Quantity: 1})
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestAllocate_ConcurrentNeverOverReserves(t *testing.T) {
	uc, repo := newTestUseCase()
	lot := receive(t, uc, "apples", 10, nil, received)

	const workers = 20
	results := make([]int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			alloc, err := uc.Allocate(context.Background(), &dto.AllocateInput{ProductID: "apples", Quantity: 3})
			if err == nil {
				results[i] = alloc.Allocated
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, n := range results {
		total += n
	}
	stored, err := repo.FindByID(context.Background(), lot.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, stored.ReservedQuantity, stored.Quantity)
	assert.Equal(t, total, stored.ReservedQuantity)
}

func TestRelease_Idempotent(t *testing.T) {
	uc, repo := newTestUseCase()
	ctx := context.Background()
	lot := receive(t, uc, "cheese", 5, nil, received)
	allocate(t, uc, "cheese", 3)

	require.NoError(t, uc.Release(ctx, lot.ID, 3, dto.Reference{Type: "order", ID: "o-1"}))
	require.NoError(t, uc.Release(ctx, lot.ID, 3, dto.Reference{Type: "order", ID: "o-1"}))

	stored, err := repo.FindByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ReservedQuantity)
	assert.Equal(t, 5, stored.Quantity)

	releases, _, err := uc.ListMovements(ctx, &dto.MovementFilters{LotID: lot.ID, MovementType: model.MovementRelease})
	require.NoError(t, err)
	assert.Len(t, releases, 1, "a no-op release writes no movement")
}

func TestCommit(t *testing.T) {
	uc, repo := newTestUseCase()
	ctx := context.Background()
	lot := receive(t, uc, "butter", 5, nil, received)
	allocate(t, uc, "butter", 3)

	require.NoError(t, uc.Commit(ctx, lot.ID, 2, dto.Reference{}))

	stored, err := repo.FindByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Quantity)
	assert.Equal(t, 1, stored.ReservedQuantity)

	err = uc.Commit(ctx, lot.ID, 2, dto.Reference{})
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestSettle_RunsOncePerReference(t *testing.T) {
	uc, repo := newTestUseCase()
	ctx := context.Background()
	lot := receive(t, uc, "yogurt", 5, nil, received)
	allocate(t, uc, "yogurt", 3)
	allocate(t, uc, "yogurt", 2)

	ref := dto.Reference{Type: "pick_item", ID: "item-1"}
	require.NoError(t, uc.Settle(ctx, lot.ID, 2, 1, ref))
	require.NoError(t, uc.Settle(ctx, lot.ID, 2, 1, ref))

	stored, err := repo.FindByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Quantity)
	assert.Equal(t, 2, stored.ReservedQuantity, "the second reservation is untouched")

	moves, _, err := uc.ListMovements(ctx, &dto.MovementFilters{LotID: lot.ID})
	require.NoError(t, err)
	var commits, releases int
	for _, m := range moves {
		switch m.MovementType {
		case model.MovementCommit:
			commits++
			assert.Equal(t, -2, m.QuantityChange)
		case model.MovementRelease:
			releases++
			assert.Equal(t, -1, m.ReservedChange)
		}
	}
	assert.Equal(t, 1, commits)
	assert.Equal(t, 1, releases)
}

func TestSettle_Validation(t *testing.T) {
	uc, repo := newTestUseCase()
	ctx := context.Background()
	lot := receive(t, uc, "kefir", 5, nil, received)
	allocate(t, uc, "kefir", 1)

	err := uc.Settle(ctx, lot.ID, 1, 0, dto.Reference{})
	assert.True(t, errors.Is(err, model.ErrValidation), "a reference is required")

	err = uc.Settle(ctx, lot.ID, 0, 0, dto.Reference{Type: "pick_item", ID: "i"})
	assert.True(t, errors.Is(err, model.ErrValidation))

	err = uc.Settle(ctx, lot.ID, 3, 0, dto.Reference{Type: "pick_item", ID: "i"})
	assert.True(t, errors.Is(err, model.ErrValidation), "cannot commit more than reserved")

	stored, err := repo.FindByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Quantity)
	assert.Equal(t, 1, stored.ReservedQuantity)

	require.NoError(t, uc.Settle(ctx, lot.ID, 1, 0, dto.Reference{Type: "pick_item", ID: "i"}),
		"a failed settle does not count as settled")
}

func TestReceiveLot_ReceiptKeyOnce(t *testing.T) {
	uc, _ := newTestUseCase()
	ctx := context.Background()
	key := "sweep_item:s1/P"

	_, err := uc.ReceiveLot(ctx, &dto.ReceiveLotInput{ProductID: "P", Quantity: 2, ReceiptKey: &key})
	require.NoError(t, err)
	_, err = uc.ReceiveLot(ctx, &dto.ReceiveLotInput{ProductID: "P", Quantity: 2, ReceiptKey: &key})
	assert.True(t, errors.Is(err, model.ErrDuplicateReceipt))

	_, err = uc.ReceiveLot(ctx, &dto.ReceiveLotInput{ProductID: "P", Quantity: 2})
	require.NoError(t, err, "lots without a key never collide")
}

func TestAdjustLot_RespectsReservations(t *testing.T) {
	uc, _ := newTestUseCase()
	ctx := context.Background()
	lot := receive(t, uc, "rice", 10, nil, received)
	allocate(t, uc, "rice", 4)

	_, err := uc.AdjustLot(ctx, lot.ID, 3, "count")
	assert.True(t, errors.Is(err, model.ErrValidation))

	adjusted, err := uc.AdjustLot(ctx, lot.ID, 6, "count")
	require.NoError(t, err)
	assert.Equal(t, 2, adjusted.AvailableQuantity())

	moves, total, err := uc.ListMovements(ctx, &dto.MovementFilters{LotID: lot.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	for _, m := range moves {
		if m.MovementType == model.MovementAdjust {
			assert.Equal(t, -4, m.QuantityChange)
			assert.Equal(t, 6, m.QuantityAfter)
		}
	}
}

func TestFindPreferredLot(t *testing.T) {
	uc, _ := newTestUseCase()
	receive(t, uc, "yogurt", 1, day("2025-02-01"), received)
	best := receive(t, uc, "yogurt", 1, day("2025-01-15"), received)

	lot, err := uc.FindPreferredLot(context.Background(), "yogurt")
	require.NoError(t, err)
	assert.Equal(t, best.ID, lot.ID)

	_, err = uc.FindPreferredLot(context.Background(), "nothing")
	assert.True(t, errors.Is(err, model.ErrInsufficientInventory))
}

type stubLocations struct{}

func (stubLocations) GetNode(_ context.Context, id string) (*model.LocationNode, error) {
	if id == "known" {
		return &model.LocationNode{BaseModel: model.BaseModel{ID: id}}, nil
	}
	return nil, model.ErrInvalidLocation
}

func TestReceiveLot_Validation(t *testing.T) {
	uc := NewInventoryUseCase(repository.NewMemoryRepository(), stubLocations{}, Settings{}, logger.NewNop())
	ctx := context.Background()

	unknown := "gone"
	_, err := uc.ReceiveLot(ctx, &dto.ReceiveLotInput{ProductID: "p", Quantity: 1, LocationID: &unknown})
	assert.True(t, errors.Is(err, model.ErrInvalidLocation))

	_, err = uc.ReceiveLot(ctx, &dto.ReceiveLotInput{ProductID: "p", Quantity: 0})
	assert.True(t, errors.Is(err, model.ErrValidation))

	known := "known"
	lot, err := uc.ReceiveLot(ctx, &dto.ReceiveLotInput{
		ProductID:  "p",
		Quantity:   4,
		LocationID: &known,
		UnitCost:   decimal.NewNullDecimal(decimal.RequireFromString("1.25")),
	})
	require.NoError(t, err)
	assert.True(t, lot.IsAvailable)
	assert.Equal(t, "5", lot.Value().String())
}

// failingRepo fails every reserve after the first.
type failingRepo struct {
	*repository.MemoryRepository
	mu    sync.Mutex
	calls int
}

func (r *failingRepo) Reserve(ctx context.Context, lotID string, qty int, m *model.LotMovement) (*model.InventoryLot, error) {
	r.mu.Lock()
	r.calls++
	n := r.calls
	r.mu.Unlock()
	if n > 1 {
		return nil, errors.New("connection reset")
	}
	return r.MemoryRepository.Reserve(ctx, lotID, qty, m)
}

func TestAllocate_ReleasesOnError(t *testing.T) {
	mem := repository.NewMemoryRepository()
	repo := &failingRepo{MemoryRepository: mem}
	uc := NewInventoryUseCase(repo, nil, Settings{}, logger.NewNop())

	first := receive(t, uc, "jam", 1, day("2025-01-01"), received)
	receive(t, uc, "jam", 1, day("2025-01-02"), received)

	_, err := uc.Allocate(context.Background(), &dto.AllocateInput{ProductID: "jam", Quantity: 2})
	require.Error(t, err)

	stored, err := mem.FindByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ReservedQuantity)
}
