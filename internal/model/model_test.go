package model

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestSortLotsFEFO(t *testing.T) {
	received := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	lots := []InventoryLot{
		{BaseModel: BaseModel{ID: "jan10"}, ExpirationDate: date(2025, 1, 10), ReceivedAt: received},
		{BaseModel: BaseModel{ID: "never"}, ReceivedAt: received.Add(-48 * time.Hour)},
		{BaseModel: BaseModel{ID: "jan05"}, ExpirationDate: date(2025, 1, 5), ReceivedAt: received},
		{BaseModel: BaseModel{ID: "jan05-later"}, ExpirationDate: date(2025, 1, 5), ReceivedAt: received.Add(time.Hour)},
	}

	SortLotsFEFO(lots)

	ids := make([]string, len(lots))
	for i, l := range lots {
		ids[i] = l.ID
	}
	assert.Equal(t, []string{"jan05", "jan05-later", "jan10", "never"}, ids)
}

func TestInventoryLot_AvailableQuantityNeverNegative(t *testing.T) {
	lot := InventoryLot{Quantity: 2, ReservedQuantity: 5, IsAvailable: true}
	assert.Equal(t, 0, lot.AvailableQuantity())
	assert.False(t, lot.Allocatable())
}

func TestInventoryLot_Value(t *testing.T) {
	lot := InventoryLot{Quantity: 4, UnitCost: decimal.NewNullDecimal(decimal.RequireFromString("1.25"))}
	assert.True(t, decimal.RequireFromString("5").Equal(lot.Value()))

	lot.UnitCost = decimal.NullDecimal{}
	assert.True(t, lot.Value().IsZero())
}

func TestAllocation_TakeMergesLots(t *testing.T) {
	a := &Allocation{ProductID: "p", Requested: 5}
	lot := &InventoryLot{BaseModel: BaseModel{ID: "l1"}}

	a.Take(lot, 2)
	a.Take(lot, 1)

	require.Len(t, a.Lots, 1)
	assert.Equal(t, 3, a.Lots[0].Quantity)
	assert.Equal(t, 2, a.Shortfall)
	assert.True(t, errors.Is(a.Err(), ErrInsufficientInventory))

	a.Take(&InventoryLot{BaseModel: BaseModel{ID: "l2"}}, 2)
	assert.NoError(t, a.Err())
	assert.Equal(t, 0, a.Remaining())
}

func TestLocationType_Levels(t *testing.T) {
	child, ok := LocationZone.ChildType()
	assert.True(t, ok)
	assert.Equal(t, LocationAisle, child)

	_, ok = LocationSlot.ChildType()
	assert.False(t, ok)
	assert.False(t, LocationType("rack").Valid())
}

func TestLocationNode_SetNumberOnlyAtDepth(t *testing.T) {
	n := &LocationNode{Type: LocationBay}
	three := 3
	n.SetNumber(&three)

	assert.Nil(t, n.AisleNumber)
	require.NotNil(t, n.BayNumber)
	assert.Equal(t, 3, *n.Number())
}

func TestPickStatusFor(t *testing.T) {
	assert.Equal(t, PickItemUnavailable, PickStatusFor(5, 0))
	assert.Equal(t, PickItemPartial, PickStatusFor(5, 3))
	assert.Equal(t, PickItemPicked, PickStatusFor(5, 5))
}

func TestWorstStatus(t *testing.T) {
	assert.Equal(t, FulfillmentReady, WorstStatus([]LineOutcome{{Status: LineAllocated}, {Status: LineSweepRequested}}))
	assert.Equal(t, FulfillmentNeedsAttention, WorstStatus([]LineOutcome{{Status: LineAllocated}, {Status: LineBackordered}}))
}

func TestLineOutcomes_ScanValue(t *testing.T) {
	in := LineOutcomes{{OrderItemID: "oi-1", Status: LineAllocated, Requested: 3, Allocated: 3}}
	v, err := in.Value()
	require.NoError(t, err)

	var out LineOutcomes
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)
}
