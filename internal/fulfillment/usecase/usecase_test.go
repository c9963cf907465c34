package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	catrepo "github.com/fekuna/omnipos-fulfillment-service/internal/catalog/repository"
	catuc "github.com/fekuna/omnipos-fulfillment-service/internal/catalog/usecase"
	"github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment/repository"
	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory"
	invdto "github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	invrepo "github.com/fekuna/omnipos-fulfillment-service/internal/inventory/repository"
	invuc "github.com/fekuna/omnipos-fulfillment-service/internal/inventory/usecase"
	locdto "github.com/fekuna/omnipos-fulfillment-service/internal/location/dto"
	locrepo "github.com/fekuna/omnipos-fulfillment-service/internal/location/repository"
	locuc "github.com/fekuna/omnipos-fulfillment-service/internal/location/usecase"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/internal/picklist"
	pldto "github.com/fekuna/omnipos-fulfillment-service/internal/picklist/dto"
	plrepo "github.com/fekuna/omnipos-fulfillment-service/internal/picklist/repository"
	pluc "github.com/fekuna/omnipos-fulfillment-service/internal/picklist/usecase"
	"github.com/fekuna/omnipos-fulfillment-service/internal/sweep"
	swdto "github.com/fekuna/omnipos-fulfillment-service/internal/sweep/dto"
	swrepo "github.com/fekuna/omnipos-fulfillment-service/internal/sweep/repository"
	swuc "github.com/fekuna/omnipos-fulfillment-service/internal/sweep/usecase"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/cache"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2025, 1, 20, 10, 30, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []dto.FulfillmentEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	ev := value.(dto.FulfillmentEvent)
	if key != ev.Payload.OrderID {
		return errors.New("event keyed by the wrong order")
	}
	p.events = append(p.events, ev)
	return nil
}

// hookedRepo runs before ahead of the next outcome write, then fails it
// with failUpdate when set. Both fire once.
type hookedRepo struct {
	*repository.MemoryRepository
	before     func()
	failUpdate error
}

func (r *hookedRepo) Update(ctx context.Context, o *model.FulfillmentOutcome) error {
	if hook := r.before; hook != nil {
		r.before = nil
		hook()
	}
	if err := r.failUpdate; err != nil {
		r.failUpdate = nil
		return err
	}
	return r.MemoryRepository.Update(ctx, o)
}

// flakySweeps fails the failAt-th ReleaseDemand call once.
type flakySweeps struct {
	sweep.UseCase
	calls  int
	failAt int
}

func (s *flakySweeps) ReleaseDemand(ctx context.Context, key string) (*model.SweepItem, error) {
	s.calls++
	if s.calls == s.failAt {
		return nil, errors.New("sweep store unavailable")
	}
	return s.UseCase.ReleaseDemand(ctx, key)
}

type fixture struct {
	uc        *fulfillmentUseCase
	repo      *hookedRepo
	catalog   *catrepo.MemoryRepository
	inventory inventory.UseCase
	picks     picklist.UseCase
	sweeps    sweep.UseCase
	publisher *recordingPublisher
	slot      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := logger.NewNop()

	locRepo := locrepo.NewMemoryRepository()
	locs := locuc.NewLocationUseCase(locRepo, cache.NewMemoryLocker(), nil, locuc.Settings{}, log)
	_, err := locs.ImportLayout(ctx, &locdto.Layout{Zones: []locdto.ZoneLayout{
		{Name: "AMB", ZoneCode: model.ZoneAmbient, Aisles: 1, BaysPerAisle: 1, ShelvesPerBay: 1},
	}})
	require.NoError(t, err)
	_, err = locs.GenerateSlots(ctx, 1)
	require.NoError(t, err)
	slots, err := locRepo.ListByType(ctx, model.LocationSlot)
	require.NoError(t, err)
	require.Len(t, slots, 1)

	inv := invuc.NewInventoryUseCase(invrepo.NewMemoryRepository(), locs, invuc.Settings{}, log)
	picks := pluc.NewPickListUseCase(plrepo.NewMemoryRepository(), inv, locs, log)
	sweeps := swuc.NewSweepUseCase(swrepo.NewMemoryRepository(), inv, swuc.Settings{StartHour: 8}, log)

	retailer := "storeA"
	catalog := catrepo.NewMemoryRepository(
		model.ProductSourcing{ProductID: "X", InventoryType: model.InventoryWarehouse},
		model.ProductSourcing{ProductID: "Y", InventoryType: model.InventorySweep, PreferredRetailerID: &retailer},
	)
	pub := &recordingPublisher{}
	repo := &hookedRepo{MemoryRepository: repository.NewMemoryRepository()}

	uc := NewFulfillmentUseCase(
		repo,
		catuc.NewCatalogUseCase(catalog, nil, time.Minute, log),
		picks, sweeps, pub, Settings{ClaimTimeout: 2 * time.Minute}, log,
	).(*fulfillmentUseCase)
	uc.now = func() time.Time { return today }

	return &fixture{
		uc:        uc,
		repo:      repo,
		catalog:   catalog,
		inventory: inv,
		picks:     picks,
		sweeps:    sweeps,
		publisher: pub,
		slot:      slots[0].ID,
	}
}

func (f *fixture) stock(t *testing.T, product string, qty int, expires *time.Time) *model.InventoryLot {
	t.Helper()
	slot := f.slot
	lot, err := f.inventory.ReceiveLot(context.Background(), &invdto.ReceiveLotInput{
		ProductID:      product,
		LocationID:     &slot,
		Quantity:       qty,
		ExpirationDate: expires,
	})
	require.NoError(t, err)
	return lot
}

func (f *fixture) reserved(t *testing.T, lotID string) int {
	t.Helper()
	lot, err := f.inventory.GetLot(context.Background(), lotID)
	require.NoError(t, err)
	return lot.ReservedQuantity
}

func TestDispatch_WarehouseAndSweepLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expires := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	lot := f.stock(t, "X", 5, &expires)

	out, err := f.uc.Dispatch(ctx, &dto.Order{ID: "order-1", Lines: []dto.OrderLine{
		{OrderItemID: "A", ProductID: "X", Quantity: 3},
		{OrderItemID: "B", ProductID: "Y", Quantity: 1},
	}})
	require.NoError(t, err)
	assert.Equal(t, model.FulfillmentReady, out.Status)
	require.Len(t, out.Lines, 2)

	a := out.Lines[0]
	assert.Equal(t, model.LineAllocated, a.Status)
	assert.Equal(t, model.InventoryWarehouse, a.Source)
	assert.Equal(t, 3, a.Allocated)
	assert.Equal(t, 0, a.Shortfall)
	require.Len(t, a.PickListItemIDs, 1)
	assert.Equal(t, 3, f.reserved(t, lot.ID))

	require.NotNil(t, out.PickListID)
	list, err := f.picks.Get(ctx, *out.PickListID)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	item := list.Items[0]
	assert.Equal(t, a.PickListItemIDs[0], item.ID)
	assert.Equal(t, 3, item.Quantity)
	assert.Nil(t, item.PickedQuantity)
	assert.NotNil(t, item.Sequence)

	b := out.Lines[1]
	assert.Equal(t, model.LineSweepRequested, b.Status)
	require.NotNil(t, b.SweepID)
	require.NotNil(t, b.StoreID)
	assert.Equal(t, "storeA", *b.StoreID)
	require.NotNil(t, b.SweepDate)
	assert.Equal(t, "2025-01-20", b.SweepDate.Format("2006-01-02"))

	s, err := f.sweeps.Get(ctx, *b.SweepID)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-20", s.SweepDate.Format("2006-01-02"))
	require.Len(t, s.Items, 1)
	assert.Equal(t, "Y", s.Items[0].ProductID)
	assert.Equal(t, 1, s.Items[0].Quantity)
	assert.Equal(t, *b.SweepItemID, s.Items[0].ID)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, dto.EventFulfillmentDispatched, f.publisher.events[0].EventType)

	stored, err := f.uc.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, model.FulfillmentReady, stored.Status)
}

func TestDispatch_AlreadyDispatched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, "X", 5, nil)

	order := &dto.Order{ID: "order-1", Lines: []dto.OrderLine{{OrderItemID: "A", ProductID: "X", Quantity: 2}}}
	first, err := f.uc.Dispatch(ctx, order)
	require.NoError(t, err)

	again, err := f.uc.Dispatch(ctx, order)
	assert.True(t, errors.Is(err, model.ErrAlreadyDispatched))
	require.NotNil(t, again)
	assert.Equal(t, first.PickListID, again.PickListID)
	assert.Len(t, f.publisher.events, 1)
}

func TestDispatch_ConcurrentDuplicatesReserveOnce(t *testing.T) {
	f := newFixture(t)
	lot := f.stock(t, "X", 10, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.uc.Dispatch(context.Background(), &dto.Order{ID: "order-1", Lines: []dto.OrderLine{
				{OrderItemID: "A", ProductID: "X", Quantity: 2},
			}})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 2, f.reserved(t, lot.ID))
}

func TestDispatch_LineFailuresAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, "X", 2, nil)
	f.catalog.Put(model.ProductSourcing{ProductID: "Z", InventoryType: model.InventorySweep})

	out, err := f.uc.Dispatch(ctx, &dto.Order{ID: "order-2", Lines: []dto.OrderLine{
		{OrderItemID: "A", ProductID: "X", Quantity: 5},
		{OrderItemID: "B", ProductID: "ghost", Quantity: 1},
		{OrderItemID: "C", ProductID: "Z", Quantity: 1},
		{OrderItemID: "D", ProductID: "Y", Quantity: 2},
	}})
	require.NoError(t, err)
	assert.Equal(t, model.FulfillmentNeedsAttention, out.Status)

	assert.Equal(t, model.LineBackordered, out.Lines[0].Status)
	assert.Equal(t, 2, out.Lines[0].Allocated)
	assert.Equal(t, 3, out.Lines[0].Shortfall)

	assert.Equal(t, model.LineFailed, out.Lines[1].Status)
	assert.NotEmpty(t, out.Lines[1].Error)

	assert.Equal(t, model.LineFailed, out.Lines[2].Status)
	assert.Contains(t, out.Lines[2].Error, "preferred retailer")

	assert.Equal(t, model.LineSweepRequested, out.Lines[3].Status)
}

func TestDispatch_NothingInStock(t *testing.T) {
	f := newFixture(t)

	out, err := f.uc.Dispatch(context.Background(), &dto.Order{ID: "order-3", Lines: []dto.OrderLine{
		{OrderItemID: "A", ProductID: "X", Quantity: 1},
	}})
	require.NoError(t, err)
	assert.Nil(t, out.PickListID)
	assert.Equal(t, model.LineBackordered, out.Lines[0].Status)
	assert.Equal(t, model.FulfillmentNeedsAttention, out.Status)
}

func TestDispatch_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		order *dto.Order
	}{
		{"nil order", nil},
		{"missing id", &dto.Order{Lines: []dto.OrderLine{{OrderItemID: "A", ProductID: "X", Quantity: 1}}}},
		{"no lines", &dto.Order{ID: "o"}},
		{"zero quantity", &dto.Order{ID: "o", Lines: []dto.OrderLine{{OrderItemID: "A", ProductID: "X"}}}},
		{"duplicate line", &dto.Order{ID: "o", Lines: []dto.OrderLine{
			{OrderItemID: "A", ProductID: "X", Quantity: 1},
			{OrderItemID: "A", ProductID: "Y", Quantity: 1},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.uc.Dispatch(ctx, tc.order)
			assert.True(t, errors.Is(err, model.ErrValidation))
		})
	}
	_, err := f.uc.Get(ctx, "o")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestDispatch_PublishFailureKeepsOutcome(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	f.stock(t, "X", 1, nil)

	out, err := f.uc.Dispatch(context.Background(), &dto.Order{ID: "order-4", Lines: []dto.OrderLine{
		{OrderItemID: "A", ProductID: "X", Quantity: 1},
	}})
	require.NoError(t, err)
	assert.Equal(t, model.FulfillmentReady, out.Status)
}

func TestCancel_ReleasesReservationsAndDemand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.stock(t, "X", 5, nil)

	out, err := f.uc.Dispatch(ctx, &dto.Order{ID: "order-5", Lines: []dto.OrderLine{
		{OrderItemID: "A", ProductID: "X", Quantity: 3},
		{OrderItemID: "B", ProductID: "Y", Quantity: 2},
	}})
	require.NoError(t, err)
	require.Equal(t, 3, f.reserved(t, lot.ID))

	cancelled, err := f.uc.Cancel(ctx, "order-5")
	require.NoError(t, err)
	assert.Equal(t, model.FulfillmentCancelled, cancelled.Status)
	for _, l := range cancelled.Lines {
		assert.Equal(t, model.LineCancelled, l.Status)
		assert.Empty(t, l.Error)
	}
	assert.Equal(t, 0, f.reserved(t, lot.ID))

	list, err := f.picks.Get(ctx, *out.PickListID)
	require.NoError(t, err)
	assert.Equal(t, model.PickListCancelled, list.Status)

	s, err := f.sweeps.Get(ctx, *out.Lines[1].SweepID)
	require.NoError(t, err)
	assert.Equal(t, 0, s.TotalLoad)

	again, err := f.uc.Cancel(ctx, "order-5")
	require.NoError(t, err)
	assert.Equal(t, model.FulfillmentCancelled, again.Status)
	assert.Len(t, f.publisher.events, 2)
}

func TestCancel_StartedSweepKeepsDemand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.uc.Dispatch(ctx, &dto.Order{ID: "order-6", Lines: []dto.OrderLine{
		{OrderItemID: "B", ProductID: "Y", Quantity: 2},
	}})
	require.NoError(t, err)
	_, err = f.sweeps.Start(ctx, *out.Lines[0].SweepID)
	require.NoError(t, err)

	cancelled, err := f.uc.Cancel(ctx, "order-6")
	require.NoError(t, err)
	assert.Equal(t, model.LineCancelled, cancelled.Lines[0].Status)
	assert.NotEmpty(t, cancelled.Lines[0].Error)

	s, err := f.sweeps.Get(ctx, *out.Lines[0].SweepID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalLoad)
}

func TestCancel_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.Cancel(context.Background(), "missing")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func (f *fixture) sweepLoad(t *testing.T, sweepID string) int {
	t.Helper()
	s, err := f.sweeps.Get(context.Background(), sweepID)
	require.NoError(t, err)
	return s.TotalLoad
}

func TestCancel_RetryAfterDemandReleaseFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, err := f.uc.Dispatch(ctx, &dto.Order{ID: "o2", Lines: []dto.OrderLine{
		{OrderItemID: "A", ProductID: "Y", Quantity: 5},
	}})
	require.NoError(t, err)
	_, err = f.uc.Dispatch(ctx, &dto.Order{ID: "o1", Lines: []dto.OrderLine{
		{OrderItemID: "A", ProductID: "Y", Quantity: 2},
		{OrderItemID: "B", ProductID: "Y", Quantity: 1},
	}})
	require.NoError(t, err)
	sweepID := *other.Lines[0].SweepID
	require.Equal(t, 8, f.sweepLoad(t, sweepID))

	f.uc.sweeps = &flakySweeps{UseCase: f.sweeps, failAt: 2}
	_, err = f.uc.Cancel(ctx, "o1")
	require.Error(t, err)
	assert.Equal(t, 6, f.sweepLoad(t, sweepID))

	stored, err := f.uc.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, model.FulfillmentReady, stored.Status)

	cancelled, err := f.uc.Cancel(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, model.FulfillmentCancelled, cancelled.Status)

	s, err := f.sweeps.Get(ctx, sweepID)
	require.NoError(t, err)
	require.Len(t, s.Items, 1)
	assert.Equal(t, 5, s.Items[0].Quantity, "the other order's demand is untouched")
}

func TestDispatch_FinalWriteFailureReleasesClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.stock(t, "X", 5, nil)
	order := &dto.Order{ID: "order-7", Lines: []dto.OrderLine{
		{OrderItemID: "A", ProductID: "X", Quantity: 3},
		{OrderItemID: "B", ProductID: "Y", Quantity: 2},
	}}

	f.repo.failUpdate = errors.New("connection reset")
	_, err := f.uc.Dispatch(ctx, order)
	require.Error(t, err)

	assert.Equal(t, 0, f.reserved(t, lot.ID))
	_, err = f.uc.Get(ctx, "order-7")
	assert.True(t, errors.Is(err, model.ErrNotFound), "the claim is dropped")
	list, err := f.picks.GetByOrder(ctx, "order-7")
	require.NoError(t, err)
	assert.Equal(t, model.PickListCancelled, list.Status)

	out, err := f.uc.Dispatch(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, model.FulfillmentReady, out.Status)
	assert.Equal(t, 3, f.reserved(t, lot.ID))
	assert.Equal(t, 2, f.sweepLoad(t, *out.Lines[1].SweepID))
	assert.NotEqual(t, list.ID, *out.PickListID)
}

// crashedDispatch leaves what a dispatch that died before its final write
// leaves behind: a pending claim, a pick list and sweep demand.
func (f *fixture) crashedDispatch(t *testing.T, order *dto.Order) (pickListID, sweepID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.uc.repo.Create(ctx, &model.FulfillmentOutcome{
		OrderID:      order.ID,
		Status:       model.FulfillmentPending,
		Lines:        claimLines(order),
		DispatchedAt: today,
		UpdatedAt:    today,
	}))

	res, err := f.picks.Generate(ctx, &pldto.GenerateInput{OrderID: order.ID, Lines: []pldto.PickLine{
		{OrderItemID: "A", ProductID: "X", Quantity: 3},
	}})
	require.NoError(t, err)
	date, err := f.sweeps.NextOpenDate(ctx, "storeA", today)
	require.NoError(t, err)
	item, err := f.sweeps.AddDemand(ctx, &swdto.AddDemandInput{
		DemandKey: demandKey(order.ID, "B"),
		StoreID:   "storeA",
		Date:      date,
		ProductID: "Y",
		Quantity:  2,
	})
	require.NoError(t, err)
	return res.PickList.ID, item.SweepID
}

func TestCancel_StaleClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.stock(t, "X", 5, nil)
	order := &dto.Order{ID: "order-8", Lines: []dto.OrderLine{
		{OrderItemID: "A", ProductID: "X", Quantity: 3},
		{OrderItemID: "B", ProductID: "Y", Quantity: 2},
	}}
	listID, sweepID := f.crashedDispatch(t, order)

	_, err := f.uc.Cancel(ctx, "order-8")
	assert.True(t, errors.Is(err, model.ErrInvalidTransition), "a fresh claim is still in flight")
	assert.Equal(t, 3, f.reserved(t, lot.ID))

	f.uc.now = func() time.Time { return today.Add(3 * time.Minute) }
	cancelled, err := f.uc.Cancel(ctx, "order-8")
	require.NoError(t, err)
	assert.Equal(t, model.FulfillmentCancelled, cancelled.Status)
	assert.Equal(t, 0, f.reserved(t, lot.ID))
	assert.Equal(t, 0, f.sweepLoad(t, sweepID))

	list, err := f.picks.Get(ctx, listID)
	require.NoError(t, err)
	assert.Equal(t, model.PickListCancelled, list.Status)
}

func TestDispatch_ResumesStaleClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.stock(t, "X", 5, nil)
	order := &dto.Order{ID: "order-9", Lines: []dto.OrderLine{
		{OrderItemID: "A", ProductID: "X", Quantity: 3},
		{OrderItemID: "B", ProductID: "Y", Quantity: 2},
	}}
	listID, sweepID := f.crashedDispatch(t, order)

	pending, err := f.uc.Dispatch(ctx, order)
	assert.True(t, errors.Is(err, model.ErrAlreadyDispatched))
	require.NotNil(t, pending)
	assert.Equal(t, model.FulfillmentPending, pending.Status)

	f.uc.now = func() time.Time { return today.Add(3 * time.Minute) }
	out, err := f.uc.Dispatch(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, model.FulfillmentReady, out.Status)
	require.NotNil(t, out.PickListID)
	assert.Equal(t, listID, *out.PickListID)
	assert.Equal(t, 3, out.Lines[0].Allocated)
	assert.Len(t, out.Lines[0].PickListItemIDs, 1)
	assert.Equal(t, model.LineSweepRequested, out.Lines[1].Status)

	assert.Equal(t, 3, f.reserved(t, lot.ID), "nothing is reserved twice")
	assert.Equal(t, 2, f.sweepLoad(t, sweepID))
}

func TestDispatch_CancelledBeforeFinalWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.stock(t, "X", 5, nil)
	order := &dto.Order{ID: "order-10", Lines: []dto.OrderLine{
		{OrderItemID: "A", ProductID: "X", Quantity: 3},
		{OrderItemID: "B", ProductID: "Y", Quantity: 2},
	}}

	f.repo.before = func() {
		f.uc.now = func() time.Time { return today.Add(3 * time.Minute) }
		_, err := f.uc.Cancel(ctx, "order-10")
		require.NoError(t, err)
	}
	out, err := f.uc.Dispatch(ctx, order)
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))
	require.NotNil(t, out)
	assert.Equal(t, model.FulfillmentCancelled, out.Status)

	assert.Equal(t, 0, f.reserved(t, lot.ID))
	list, err := f.picks.GetByOrder(ctx, "order-10")
	require.NoError(t, err)
	assert.Equal(t, model.PickListCancelled, list.Status)
	item, err := f.sweeps.ReleaseDemand(ctx, demandKey("order-10", "B"))
	require.NoError(t, err)
	assert.Equal(t, 0, item.Quantity)
}
