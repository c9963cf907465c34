package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LocationsCreated counts location nodes written by setup tooling, by type.
	LocationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_locations_created_total",
		Help: "Location nodes created by type",
	}, []string{"type"})

	// AllocationUnits counts requested units by outcome (allocated or shortfall).
	AllocationUnits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_allocation_units_total",
		Help: "Units requested from lot allocation by outcome",
	}, []string{"outcome"})

	ReservationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_reservation_conflicts_total",
		Help: "Lot reservations lost to a concurrent writer and retried",
	})

	AllocationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fulfillment_allocation_duration_seconds",
		Help:    "Time spent reserving lots for one demand",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	LotMovements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_lot_movements_total",
		Help: "Lot quantity movements by type",
	}, []string{"type"})

	SweepDemandUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_sweep_demand_units_total",
		Help: "Units of retailer demand aggregated into sweeps",
	})

	SweepItemOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_sweep_item_outcomes_total",
		Help: "Sweep item status transitions recorded by drivers",
	}, []string{"status"})

	PickOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_pick_outcomes_total",
		Help: "Pick list item outcomes recorded by pickers",
	}, []string{"status"})

	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_dispatches_total",
		Help: "Orders dispatched by resulting fulfillment status",
	}, []string{"status"})

	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fulfillment_dispatch_duration_seconds",
		Help:    "Time to dispatch one order",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
