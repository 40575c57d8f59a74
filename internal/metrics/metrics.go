package metrics

import "github.com/prometheus/client_golang/prometheus"

// Workflow correctness counters. Transition counts by edge make it cheap to
// spot a transition that should never happen in production.
var (
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Total number of successful order status transitions",
		},
		[]string{"from", "to"},
	)

	TransitionRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transition_rejections_total",
			Help: "Total number of rejected order status transitions",
		},
		[]string{"from", "to"},
	)

	ReservationsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reservations_created_total",
			Help: "Total number of reservations created",
		},
	)

	ReservationsFulfilledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reservations_fulfilled_total",
			Help: "Total number of reservations converted to stock decrements",
		},
	)

	ReservationsRestoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reservations_restored_total",
			Help: "Total number of reservations released back to availability",
		},
	)

	ReservationsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reservations_expired_total",
			Help: "Total number of reservations expired by the sweeper",
		},
	)

	InsufficientInventoryTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "insufficient_inventory_failures_total",
			Help: "Total number of reservation attempts rejected for insufficient stock",
		},
	)

	FulfillmentDiscrepanciesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fulfillment_discrepancies_total",
			Help: "Total number of items delivered with a quantity different from the reserved one",
		},
	)
)

// Register registers all collectors with the default registry.
func Register() {
	prometheus.MustRegister(TransitionsTotal)
	prometheus.MustRegister(TransitionRejectionsTotal)
	prometheus.MustRegister(ReservationsCreatedTotal)
	prometheus.MustRegister(ReservationsFulfilledTotal)
	prometheus.MustRegister(ReservationsRestoredTotal)
	prometheus.MustRegister(ReservationsExpiredTotal)
	prometheus.MustRegister(InsufficientInventoryTotal)
	prometheus.MustRegister(FulfillmentDiscrepanciesTotal)
}
