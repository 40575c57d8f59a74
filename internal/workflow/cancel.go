package workflow

import (
	"context"
	"database/sql"

	"github.com/hazemnasser/tank-orders/internal/database"
	"github.com/hazemnasser/tank-orders/internal/models"
	"github.com/hazemnasser/tank-orders/internal/reservation"
	"github.com/hazemnasser/tank-orders/internal/store"
)

type CancelRequest struct {
	OrderID int64
	Reason  string
	ActorID int64
}

type CancelResult struct {
	TransitionResult
	Restoration *reservation.RestorationResult `json:"restoration"`
}

// Cancel terminates an order. Active reservations are restored first so the
// held stock returns to availability; an order that never held any (still
// pending, or already restored) cancels as a plain transition.
func (e *Engine) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	if req.Reason == "" {
		return nil, models.NewValidationError("reason", "cancellation reason is required")
	}

	var result *CancelResult

	err := database.WithRetry(ctx, e.db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		order, err := store.GetOrderForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}

		if err := e.requireTransition(order, models.OrderStatusCancelled); err != nil {
			return err
		}

		restoration, err := reservation.RestoreTx(ctx, tx, order.ID, req.Reason, req.ActorID)
		if err != nil {
			return err
		}

		if err := store.SetOrderItemsDeliveryStatus(ctx, tx, order.ID, models.DeliveryStatusCancelled); err != nil {
			return err
		}

		transition, err := e.commitTransition(ctx, tx, order, models.OrderStatusCancelled,
			req.ActorID, req.Reason, "")
		if err != nil {
			return err
		}

		result = &CancelResult{
			TransitionResult: *transition,
			Restoration:      restoration,
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	e.logTransition(&result.TransitionResult, req.ActorID)
	return result, nil
}

// RestoreReservations releases an order's active reservations without
// changing its status. This is the companion to FailDelivery for callers
// that decided a retry is off the table but are not ready to cancel.
func (e *Engine) RestoreReservations(ctx context.Context, orderID int64, reason string, actorID int64) (*reservation.RestorationResult, error) {
	if reason == "" {
		return nil, models.NewValidationError("reason", "restoration reason is required")
	}

	// Existence check so a bogus order id is NotFound, not an empty result.
	if _, err := store.GetOrder(ctx, e.db, orderID); err != nil {
		return nil, err
	}

	return reservation.Restore(ctx, e.db, orderID, reason, actorID)
}
