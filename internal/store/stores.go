package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazemnasser/tank-orders/internal/database"
	"github.com/hazemnasser/tank-orders/internal/models"
)

func CreateStore(ctx context.Context, db *sql.DB, name string) (*models.Store, error) {
	s := &models.Store{}

	query := `
		INSERT INTO stores (name, active, created_at)
		VALUES ($1, TRUE, NOW())
		RETURNING id, name, active, created_at`

	err := db.QueryRowContext(ctx, query, name).Scan(
		&s.ID,
		&s.Name,
		&s.Active,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	return s, nil
}

func CreateStoreAssignment(ctx context.Context, db *sql.DB, storeID int64) (*models.StoreAssignment, error) {
	assignment := &models.StoreAssignment{}

	query := `
		INSERT INTO store_assignments (store_id, active, created_at)
		VALUES ($1, TRUE, NOW())
		RETURNING id, store_id, active, created_at`

	err := db.QueryRowContext(ctx, query, storeID).Scan(
		&assignment.ID,
		&assignment.StoreID,
		&assignment.Active,
		&assignment.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create store assignment: %w", err)
	}

	return assignment, nil
}

// GetStoreAssignment resolves an assignment to its store inside the caller's
// transaction. Confirm uses it so the assignment cannot be deactivated
// between resolution and reservation.
func GetStoreAssignment(ctx context.Context, tx *sql.Tx, id int64) (*models.StoreAssignment, error) {
	assignment := &models.StoreAssignment{}

	query := `
		SELECT id, store_id, active, created_at
		FROM store_assignments
		WHERE id = $1 AND active`

	err := tx.QueryRowContext(ctx, query, id).Scan(
		&assignment.ID,
		&assignment.StoreID,
		&assignment.Active,
		&assignment.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("get store assignment: %w", err)
	}

	return assignment, nil
}
