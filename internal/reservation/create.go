package reservation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazemnasser/tank-orders/internal/database"
	"github.com/hazemnasser/tank-orders/internal/metrics"
	"github.com/hazemnasser/tank-orders/internal/models"
	"github.com/hazemnasser/tank-orders/internal/store"
)

// DefaultTTL applies when a reservation is created without an explicit
// expiry.
const DefaultTTL = 24 * time.Hour

type CreateRequest struct {
	OrderID           int64
	StoreAssignmentID int64
	ActorID           int64
	ExpiresAt         *time.Time
}

// Create reserves stock for every item of an order in one transaction.
// It exists for callers outside a workflow transition; Confirm uses
// CreateForOrder inside its own transaction instead.
func Create(ctx context.Context, db *sql.DB, req CreateRequest) ([]models.Reservation, error) {
	var reservations []models.Reservation

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		order, err := store.GetOrderForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}

		assignment, err := store.GetStoreAssignment(ctx, tx, req.StoreAssignmentID)
		if err != nil {
			return err
		}

		reservations, err = CreateForOrder(ctx, tx, order, assignment, req.ActorID, req.ExpiresAt)
		return err
	})

	if err != nil {
		return nil, err
	}

	return reservations, nil
}

// CreateForOrder reserves every order item against the assignment's store,
// all or nothing. Each item's inventory row is locked before availability is
// computed; if any item falls short the whole call fails with
// InsufficientInventoryError and no reservation row survives the rollback.
func CreateForOrder(ctx context.Context, tx *sql.Tx, order *models.Order, assignment *models.StoreAssignment, actorID int64, expiresAt *time.Time) ([]models.Reservation, error) {
	if len(order.Items) == 0 {
		return nil, models.NewValidationError("items", "order has no items to reserve")
	}

	expiry := time.Now().Add(DefaultTTL)
	if expiresAt != nil {
		expiry = *expiresAt
	}

	type lockedItem struct {
		orderItem models.OrderItem
		inventory *models.StoreInventory
	}

	var locked []lockedItem
	var short []ShortItem

	// Quantities accepted earlier in this loop are not yet reservation rows,
	// so they are invisible to availabilityForItemLocked. Track them per
	// inventory row or two line items sharing one item ref would each be
	// checked against the full stock.
	pending := make(map[int64]int)

	for _, item := range order.Items {
		inv, available, err := availabilityForItemLocked(ctx, tx, assignment.StoreID, item.Item)
		if err != nil {
			if err == database.ErrInventoryNotFound {
				short = append(short, ShortItem{Item: item.Item, Requested: item.Quantity, Available: 0})
				continue
			}
			return nil, err
		}

		available -= pending[inv.ID]
		if available < item.Quantity {
			short = append(short, ShortItem{Item: item.Item, Requested: item.Quantity, Available: available})
			continue
		}

		pending[inv.ID] += item.Quantity
		locked = append(locked, lockedItem{orderItem: item, inventory: inv})
	}

	if len(short) > 0 {
		metrics.InsufficientInventoryTotal.Inc()
		return nil, &InsufficientInventoryError{StoreID: assignment.StoreID, Short: short}
	}

	reservations := make([]models.Reservation, 0, len(locked))
	for _, li := range locked {
		res := models.Reservation{}
		var expiresCol sql.NullTime

		err := tx.QueryRowContext(ctx,
			`INSERT INTO reservations (order_id, order_item_id, store_assignment_id, inventory_id, item_kind, item_ref_id, quantity, status, expires_at, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
			 RETURNING id, order_id, order_item_id, store_assignment_id, inventory_id, item_kind, item_ref_id, quantity, status, expires_at, created_at, updated_at`,
			order.ID, li.orderItem.ID, assignment.ID, li.inventory.ID,
			li.orderItem.Item.Kind, li.orderItem.Item.ID, li.orderItem.Quantity,
			models.ReservationStatusActive, expiry).Scan(
			&res.ID,
			&res.OrderID,
			&res.OrderItemID,
			&res.StoreAssignmentID,
			&res.InventoryID,
			&res.Item.Kind,
			&res.Item.ID,
			&res.Quantity,
			&res.Status,
			&expiresCol,
			&res.CreatedAt,
			&res.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("create reservation for item %s: %w", li.orderItem.Item, err)
		}
		if expiresCol.Valid {
			res.ExpiresAt = &expiresCol.Time
		}

		reservations = append(reservations, res)
		metrics.ReservationsCreatedTotal.Inc()
	}

	return reservations, nil
}

// ActiveForOrder returns the order's active reservations. When forUpdate is
// set the rows are locked so fulfillment and restoration cannot race each
// other over the same reservation.
func ActiveForOrder(ctx context.Context, tx *sql.Tx, orderID int64, forUpdate bool) ([]models.Reservation, error) {
	query := `
		SELECT id, order_id, order_item_id, store_assignment_id, inventory_id, item_kind, item_ref_id, quantity, status, expires_at, created_at, updated_at
		FROM reservations
		WHERE order_id = $1 AND status = 'active'
		ORDER BY id`
	if forUpdate {
		query += " FOR UPDATE"
	}

	rows, err := tx.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("load active reservations: %w", err)
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		var res models.Reservation
		var expiresCol sql.NullTime
		err := rows.Scan(
			&res.ID,
			&res.OrderID,
			&res.OrderItemID,
			&res.StoreAssignmentID,
			&res.InventoryID,
			&res.Item.Kind,
			&res.Item.ID,
			&res.Quantity,
			&res.Status,
			&expiresCol,
			&res.CreatedAt,
			&res.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		if expiresCol.Valid {
			res.ExpiresAt = &expiresCol.Time
		}
		reservations = append(reservations, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return reservations, nil
}

// markReservation transitions a reservation out of active. Reservations are
// transition-only: a guard on the current status keeps a cancelled or
// fulfilled row from being resurrected.
func markReservation(ctx context.Context, tx *sql.Tx, reservationID int64, from, to models.ReservationStatus) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE reservations
		 SET status = $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND status = $3`,
		to, reservationID, from)
	if err != nil {
		return fmt.Errorf("mark reservation %d %s: %w", reservationID, to, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrConflict
	}

	return nil
}
