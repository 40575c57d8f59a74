// Package workflow owns the order status state machine. Every transition
// runs as one serializable database transaction spanning the status read,
// any reservation side effects, the status write, and the audit history
// write, so a failed operation leaves no partial state.
package workflow

import "github.com/hazemnasser/tank-orders/internal/models"

// transitions is the single source of truth for the state machine. Any edge
// not listed here is rejected, whoever asks.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:   {models.OrderStatusConfirmed, models.OrderStatusCancelled},
	models.OrderStatusConfirmed: {models.OrderStatusInTransit, models.OrderStatusCancelled},
	models.OrderStatusInTransit: {models.OrderStatusDelivered, models.OrderStatusFailed, models.OrderStatusCancelled},
	models.OrderStatusDelivered: {models.OrderStatusFulfilled, models.OrderStatusFailed},
	models.OrderStatusFailed:    {models.OrderStatusInTransit, models.OrderStatusCancelled},
	models.OrderStatusFulfilled: {},
	models.OrderStatusCancelled: {},
}

// CanTransition reports whether the edge from -> to is in the permitted
// transition table.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedFrom returns the statuses reachable from the given one.
func AllowedFrom(from models.OrderStatus) []models.OrderStatus {
	next := transitions[from]
	out := make([]models.OrderStatus, len(next))
	copy(out, next)
	return out
}
