package workflow

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/hazemnasser/tank-orders/internal/metrics"
	"github.com/hazemnasser/tank-orders/internal/models"
	"github.com/hazemnasser/tank-orders/internal/reservation"
	"github.com/hazemnasser/tank-orders/internal/store"
)

// Engine executes order status transitions. It never touches reservation or
// stock rows itself; all inventory side effects go through the reservation
// package, inside the engine's transaction.
type Engine struct {
	db             *sql.DB
	log            zerolog.Logger
	reservationTTL time.Duration
}

func NewEngine(db *sql.DB, logger zerolog.Logger, reservationTTL time.Duration) *Engine {
	if reservationTTL <= 0 {
		reservationTTL = reservation.DefaultTTL
	}
	return &Engine{
		db:             db,
		log:            logger.With().Str("component", "workflow").Logger(),
		reservationTTL: reservationTTL,
	}
}

// TransitionResult is the common success payload: the updated aggregate,
// the edge taken, and the history entry the transition appended.
type TransitionResult struct {
	Order   *models.Order              `json:"order"`
	From    models.OrderStatus         `json:"from"`
	To      models.OrderStatus         `json:"to"`
	History *models.StatusHistoryEntry `json:"history"`
}

// requireTransition validates the requested edge against the table.
func (e *Engine) requireTransition(order *models.Order, to models.OrderStatus) error {
	if !CanTransition(order.Status, to) {
		metrics.TransitionRejectionsTotal.WithLabelValues(string(order.Status), string(to)).Inc()
		return &InvalidTransitionError{OrderID: order.ID, From: order.Status, To: to}
	}
	return nil
}

// commitTransition writes the new status under an optimistic guard on the
// old one and appends the history entry. The order aggregate is updated in
// place so the caller returns current state without a re-read.
func (e *Engine) commitTransition(ctx context.Context, tx *sql.Tx, order *models.Order, to models.OrderStatus, actorID int64, reason, notes string) (*TransitionResult, error) {
	from := order.Status

	if err := store.UpdateOrderStatus(ctx, tx, order.ID, from, to); err != nil {
		return nil, err
	}

	history, err := store.AppendStatusHistory(ctx, tx, models.StatusHistoryEntry{
		OrderID:    order.ID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actorID,
		Reason:     reason,
		Notes:      notes,
	})
	if err != nil {
		return nil, err
	}

	order.Status = to
	order.Version++

	return &TransitionResult{
		Order:   order,
		From:    from,
		To:      to,
		History: history,
	}, nil
}

func (e *Engine) logTransition(result *TransitionResult, actorID int64) {
	metrics.TransitionsTotal.WithLabelValues(string(result.From), string(result.To)).Inc()
	e.log.Info().
		Int64("order_id", result.Order.ID).
		Str("from", string(result.From)).
		Str("to", string(result.To)).
		Int64("actor_id", actorID).
		Msg("order transition")
}

// ValidationCheck is the result of a pure transition check.
type ValidationCheck struct {
	OrderID int64              `json:"order_id"`
	From    models.OrderStatus `json:"from"`
	To      models.OrderStatus `json:"to"`
	Allowed bool               `json:"allowed"`
	Reason  string             `json:"reason,omitempty"`
}

// ValidateTransition reports whether moving the order to the given status
// would be legal right now. No side effects; the answer can go stale the
// moment a concurrent transition commits.
func (e *Engine) ValidateTransition(ctx context.Context, orderID int64, to models.OrderStatus, actorID int64) (*ValidationCheck, error) {
	if !to.Valid() {
		return nil, models.NewValidationError("to_status", "unknown order status")
	}

	order, err := store.GetOrder(ctx, e.db, orderID)
	if err != nil {
		return nil, err
	}

	check := &ValidationCheck{
		OrderID: orderID,
		From:    order.Status,
		To:      to,
		Allowed: CanTransition(order.Status, to),
	}
	if !check.Allowed {
		if order.Status.Terminal() {
			check.Reason = string(order.Status) + " is a terminal status"
		} else {
			check.Reason = "transition " + string(order.Status) + " -> " + string(to) + " is not in the permitted table"
		}
	}

	return check, nil
}
