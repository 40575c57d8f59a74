// Package reservation owns the reservation lifecycle: availability
// computation, atomic multi-item creation, fulfillment into ledger
// transactions, and restoration. Availability for an item is always
// derived as current stock minus the sum of active reservation quantities
// against the same inventory row, and every mutating entry point computes
// it under a row lock inside the caller's transaction.
package reservation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazemnasser/tank-orders/internal/database"
	"github.com/hazemnasser/tank-orders/internal/models"
	"github.com/hazemnasser/tank-orders/internal/store"
)

type ItemRequest struct {
	Item     models.ItemRef `json:"item"`
	Quantity int            `json:"quantity"`
}

type ItemAvailability struct {
	Item         models.ItemRef `json:"item"`
	InventoryID  int64          `json:"inventory_id"`
	CurrentStock int            `json:"current_stock"`
	Reserved     int            `json:"reserved"`
	Available    int            `json:"available"`
	CanFulfill   bool           `json:"can_fulfill"`
}

// CheckAvailability reports, for each requested item at a store, the current
// stock, the actively reserved quantity, and whether the request fits. It
// mutates nothing; a concurrent reservation can invalidate the answer, which
// is why Create recomputes under locks.
func CheckAvailability(ctx context.Context, db *sql.DB, storeID int64, items []ItemRequest) ([]ItemAvailability, error) {
	if len(items) == 0 {
		return nil, models.NewValidationError("items", "availability check requires at least one item")
	}
	for i, item := range items {
		if err := item.Item.Validate(); err != nil {
			return nil, models.NewValidationError(fmt.Sprintf("items[%d]", i), err.Error())
		}
		if item.Quantity <= 0 {
			return nil, models.NewValidationError(fmt.Sprintf("items[%d].quantity", i), "quantity must be positive")
		}
	}

	results := make([]ItemAvailability, 0, len(items))
	for _, item := range items {
		avail := ItemAvailability{Item: item.Item}

		err := db.QueryRowContext(ctx,
			`SELECT si.id, si.quantity,
			        COALESCE((SELECT SUM(r.quantity) FROM reservations r
			                  WHERE r.inventory_id = si.id AND r.status = 'active'), 0)
			 FROM store_inventories si
			 WHERE si.store_id = $1 AND si.item_kind = $2 AND si.item_ref_id = $3 AND si.active`,
			storeID, item.Item.Kind, item.Item.ID).Scan(
			&avail.InventoryID,
			&avail.CurrentStock,
			&avail.Reserved,
		)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, database.ErrInventoryNotFound
			}
			return nil, fmt.Errorf("check availability for %s: %w", item.Item, err)
		}

		avail.Available = avail.CurrentStock - avail.Reserved
		avail.CanFulfill = avail.Available >= item.Quantity
		results = append(results, avail)
	}

	return results, nil
}

// activeReservedQuantity sums active reservation quantities against one
// inventory row. Must run after the inventory row is locked.
func activeReservedQuantity(ctx context.Context, tx *sql.Tx, inventoryID int64) (int, error) {
	var reserved int
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0)
		 FROM reservations
		 WHERE inventory_id = $1 AND status = 'active'`,
		inventoryID).Scan(&reserved)
	if err != nil {
		return 0, fmt.Errorf("sum active reservations: %w", err)
	}
	return reserved, nil
}

// availabilityForItemLocked locks the item's inventory row and returns its
// availability. This is the form Create uses: once the row is locked, the
// derived availability cannot be invalidated by a concurrent reservation.
func availabilityForItemLocked(ctx context.Context, tx *sql.Tx, storeID int64, item models.ItemRef) (*models.StoreInventory, int, error) {
	inv, err := store.LockInventoryForItem(ctx, tx, storeID, item)
	if err != nil {
		return nil, 0, err
	}

	reserved, err := activeReservedQuantity(ctx, tx, inv.ID)
	if err != nil {
		return nil, 0, err
	}

	return inv, inv.Quantity - reserved, nil
}
