package workflow

import (
	"context"
	"database/sql"

	"github.com/hazemnasser/tank-orders/internal/database"
	"github.com/hazemnasser/tank-orders/internal/models"
	"github.com/hazemnasser/tank-orders/internal/reservation"
	"github.com/hazemnasser/tank-orders/internal/store"
)

type StartDeliveryRequest struct {
	OrderID         int64
	DeliveryActorID int64
	Instructions    string
}

// StartDelivery moves a confirmed (or failed, on retry) order to in_transit.
// Reservations are not touched; they stay active for the delivery attempt.
func (e *Engine) StartDelivery(ctx context.Context, req StartDeliveryRequest) (*TransitionResult, error) {
	var result *TransitionResult

	err := database.WithRetry(ctx, e.db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		order, err := store.GetOrderForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}

		if err := e.requireTransition(order, models.OrderStatusInTransit); err != nil {
			return err
		}

		reason := "delivery started"
		if order.Status == models.OrderStatusFailed {
			reason = "delivery retried"
		}

		result, err = e.commitTransition(ctx, tx, order, models.OrderStatusInTransit,
			req.DeliveryActorID, reason, req.Instructions)
		return err
	})

	if err != nil {
		return nil, err
	}

	e.logTransition(result, req.DeliveryActorID)
	return result, nil
}

type CompleteDeliveryRequest struct {
	OrderID         int64
	DeliveryActorID int64
	// ActualItems overrides delivered quantities per item; items without an
	// override are fulfilled at the reserved quantity.
	ActualItems []reservation.ActualItem
	Signature   string
	Notes       string
}

type CompleteDeliveryResult struct {
	TransitionResult
	Fulfillment *reservation.FulfillmentResult `json:"fulfillment"`
}

// CompleteDelivery fulfills the order's active reservations and moves it to
// delivered. Quantity discrepancies are reported in the result but never
// block the transition; the ledger is decremented by what was actually
// delivered.
func (e *Engine) CompleteDelivery(ctx context.Context, req CompleteDeliveryRequest) (*CompleteDeliveryResult, error) {
	var result *CompleteDeliveryResult

	err := database.WithRetry(ctx, e.db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		order, err := store.GetOrderForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}

		if err := e.requireTransition(order, models.OrderStatusDelivered); err != nil {
			return err
		}

		fulfillment, err := reservation.FulfillTx(ctx, tx, reservation.FulfillmentRequest{
			OrderID:     order.ID,
			ActorID:     req.DeliveryActorID,
			ActualItems: req.ActualItems,
			Signature:   req.Signature,
			Notes:       req.Notes,
		})
		if err != nil {
			return err
		}

		if err := store.SetOrderItemsDeliveryStatus(ctx, tx, order.ID, models.DeliveryStatusDelivered); err != nil {
			return err
		}

		transition, err := e.commitTransition(ctx, tx, order, models.OrderStatusDelivered,
			req.DeliveryActorID, "delivery completed", req.Notes)
		if err != nil {
			return err
		}

		result = &CompleteDeliveryResult{
			TransitionResult: *transition,
			Fulfillment:      fulfillment,
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	if !result.Fulfillment.Success {
		e.log.Warn().
			Int64("order_id", req.OrderID).
			Strs("errors", result.Fulfillment.Errors).
			Msg("delivery completed without active reservations")
	}

	e.logTransition(&result.TransitionResult, req.DeliveryActorID)
	return result, nil
}

type FailDeliveryRequest struct {
	OrderID    int64
	Reason     string
	ActorID    int64
	Reschedule bool
}

// FailDelivery marks an in-transit (or, post hoc, delivered) order failed.
// Reservations are left active so a retry can reuse them; callers that want
// the stock released go through RestoreReservations separately.
func (e *Engine) FailDelivery(ctx context.Context, req FailDeliveryRequest) (*TransitionResult, error) {
	if req.Reason == "" {
		return nil, models.NewValidationError("reason", "failure reason is required")
	}

	var result *TransitionResult

	err := database.WithRetry(ctx, e.db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		order, err := store.GetOrderForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}

		if err := e.requireTransition(order, models.OrderStatusFailed); err != nil {
			return err
		}

		notes := ""
		if req.Reschedule {
			notes = "reschedule requested"
		}

		result, err = e.commitTransition(ctx, tx, order, models.OrderStatusFailed,
			req.ActorID, req.Reason, notes)
		return err
	})

	if err != nil {
		return nil, err
	}

	e.logTransition(result, req.ActorID)
	return result, nil
}

type FulfillOrderRequest struct {
	OrderID int64
	ActorID int64
	Notes   string
}

// FulfillOrder closes out a delivered order. The inventory side already
// happened at delivery time; this is the final bookkeeping edge into the
// terminal fulfilled status.
func (e *Engine) FulfillOrder(ctx context.Context, req FulfillOrderRequest) (*TransitionResult, error) {
	var result *TransitionResult

	err := database.WithRetry(ctx, e.db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		order, err := store.GetOrderForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}

		if err := e.requireTransition(order, models.OrderStatusFulfilled); err != nil {
			return err
		}

		result, err = e.commitTransition(ctx, tx, order, models.OrderStatusFulfilled,
			req.ActorID, "order fulfilled", req.Notes)
		return err
	})

	if err != nil {
		return nil, err
	}

	e.logTransition(result, req.ActorID)
	return result, nil
}
