package workflow

import (
	"context"
	"database/sql"
	"time"

	"github.com/hazemnasser/tank-orders/internal/database"
	"github.com/hazemnasser/tank-orders/internal/models"
	"github.com/hazemnasser/tank-orders/internal/reservation"
	"github.com/hazemnasser/tank-orders/internal/store"
)

type ConfirmRequest struct {
	OrderID           int64
	StoreAssignmentID int64
	ActorID           int64
	Notes             string
	// ReservationExpiresAt overrides the engine's default reservation TTL.
	ReservationExpiresAt *time.Time
}

type ConfirmResult struct {
	TransitionResult
	Reservations []models.Reservation `json:"reservations"`
}

// Confirm assigns a pending order to a store and reserves stock for every
// order item, all inside one transaction. If any item cannot be covered the
// whole operation fails: no assignment, no reservation, no status change,
// no history.
func (e *Engine) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	if req.StoreAssignmentID <= 0 {
		return nil, models.NewValidationError("store_assignment_id", "store assignment is required")
	}

	var result *ConfirmResult

	err := database.WithRetry(ctx, e.db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		order, err := store.GetOrderForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}

		if err := e.requireTransition(order, models.OrderStatusConfirmed); err != nil {
			return err
		}

		assignment, err := store.GetStoreAssignment(ctx, tx, req.StoreAssignmentID)
		if err != nil {
			return err
		}

		expiresAt := req.ReservationExpiresAt
		if expiresAt == nil {
			t := time.Now().Add(e.reservationTTL)
			expiresAt = &t
		}

		reservations, err := reservation.CreateForOrder(ctx, tx, order, assignment, req.ActorID, expiresAt)
		if err != nil {
			return err
		}

		if err := store.UpdateOrderAssignment(ctx, tx, order.ID, assignment.ID); err != nil {
			return err
		}
		order.StoreAssignmentID = &assignment.ID

		transition, err := e.commitTransition(ctx, tx, order, models.OrderStatusConfirmed,
			req.ActorID, "store assigned, inventory reserved", req.Notes)
		if err != nil {
			return err
		}

		result = &ConfirmResult{
			TransitionResult: *transition,
			Reservations:     reservations,
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	e.logTransition(&result.TransitionResult, req.ActorID)
	return result, nil
}
