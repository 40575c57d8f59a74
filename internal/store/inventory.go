package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hazemnasser/tank-orders/internal/database"
	"github.com/hazemnasser/tank-orders/internal/models"
)

func CreateInventory(ctx context.Context, db *sql.DB, storeID int64, item models.ItemRef, quantity int) (*models.StoreInventory, error) {
	inv := &models.StoreInventory{}

	query := `
		INSERT INTO store_inventories (store_id, item_kind, item_ref_id, quantity, active, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW(), 1)
		RETURNING id, store_id, item_kind, item_ref_id, quantity, active, created_at, updated_at, version`

	err := db.QueryRowContext(ctx, query, storeID, item.Kind, item.ID, quantity).Scan(
		&inv.ID,
		&inv.StoreID,
		&inv.Item.Kind,
		&inv.Item.ID,
		&inv.Quantity,
		&inv.Active,
		&inv.CreatedAt,
		&inv.UpdatedAt,
		&inv.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("create inventory: %w", err)
	}

	return inv, nil
}

func GetInventory(ctx context.Context, db *sql.DB, id int64) (*models.StoreInventory, error) {
	inv := &models.StoreInventory{}

	query := `
		SELECT id, store_id, item_kind, item_ref_id, quantity, active, created_at, updated_at, version
		FROM store_inventories
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&inv.ID,
		&inv.StoreID,
		&inv.Item.Kind,
		&inv.Item.ID,
		&inv.Quantity,
		&inv.Active,
		&inv.CreatedAt,
		&inv.UpdatedAt,
		&inv.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrInventoryNotFound
		}
		return nil, fmt.Errorf("get inventory: %w", err)
	}

	return inv, nil
}

// LockInventoryForItem locks the active inventory row for one item at one
// store. Every reservation attempt against that item serializes on this
// lock, which is what makes the derived availability safe to act on.
func LockInventoryForItem(ctx context.Context, tx *sql.Tx, storeID int64, item models.ItemRef) (*models.StoreInventory, error) {
	inv := &models.StoreInventory{}

	query := `
		SELECT id, store_id, item_kind, item_ref_id, quantity, active, created_at, updated_at, version
		FROM store_inventories
		WHERE store_id = $1 AND item_kind = $2 AND item_ref_id = $3 AND active
		FOR UPDATE`

	err := tx.QueryRowContext(ctx, query, storeID, item.Kind, item.ID).Scan(
		&inv.ID,
		&inv.StoreID,
		&inv.Item.Kind,
		&inv.Item.ID,
		&inv.Quantity,
		&inv.Active,
		&inv.CreatedAt,
		&inv.UpdatedAt,
		&inv.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrInventoryNotFound
		}
		return nil, fmt.Errorf("lock inventory %s at store %d: %w", item, storeID, err)
	}

	return inv, nil
}

// DecrementInventory applies a permanent stock decrement and records the
// matching ledger transaction. The quantity guard in the UPDATE is the last
// line of defense; callers are expected to have locked the row already.
func DecrementInventory(ctx context.Context, tx *sql.Tx, inventoryID int64, quantity int, reason string, actorID int64, note string) (*models.InventoryTransaction, error) {
	result, err := tx.ExecContext(ctx,
		`UPDATE store_inventories
		 SET quantity = quantity - $1,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $2
		   AND quantity >= $1`,
		quantity, inventoryID)
	if err != nil {
		return nil, fmt.Errorf("decrement inventory: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, database.ErrConflict
	}

	txn := &models.InventoryTransaction{}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO inventory_transactions (reference, inventory_id, item_kind, item_ref_id, quantity_change, reason, actor_id, note, created_at)
		 SELECT $1, id, item_kind, item_ref_id, $2, $3, $4, $5, NOW()
		 FROM store_inventories
		 WHERE id = $6
		 RETURNING id, reference, inventory_id, item_kind, item_ref_id, quantity_change, reason, actor_id, note, created_at`,
		uuid.NewString(), -quantity, reason, actorID, note, inventoryID).Scan(
		&txn.ID,
		&txn.Reference,
		&txn.InventoryID,
		&txn.Item.Kind,
		&txn.Item.ID,
		&txn.QuantityChange,
		&txn.Reason,
		&txn.ActorID,
		&txn.Note,
		&txn.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("record inventory transaction: %w", err)
	}

	return txn, nil
}

// LinkReservationTransaction records which stock decrement a fulfilled
// reservation produced.
func LinkReservationTransaction(ctx context.Context, tx *sql.Tx, reservationID, transactionID int64) (*models.TransactionLink, error) {
	link := &models.TransactionLink{}

	err := tx.QueryRowContext(ctx,
		`INSERT INTO reservation_transactions (reservation_id, inventory_transaction_id, created_at)
		 VALUES ($1, $2, NOW())
		 RETURNING id, reservation_id, inventory_transaction_id, created_at`,
		reservationID, transactionID).Scan(
		&link.ID,
		&link.ReservationID,
		&link.InventoryTransactionID,
		&link.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("link reservation transaction: %w", err)
	}

	return link, nil
}
