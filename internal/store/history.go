package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazemnasser/tank-orders/internal/models"
)

// AppendStatusHistory writes one immutable audit record for a transition.
// It runs inside the transition's transaction so a failed operation leaves
// no history behind.
func AppendStatusHistory(ctx context.Context, tx *sql.Tx, entry models.StatusHistoryEntry) (*models.StatusHistoryEntry, error) {
	out := &models.StatusHistoryEntry{}

	err := tx.QueryRowContext(ctx,
		`INSERT INTO order_status_history (order_id, from_status, to_status, actor_id, reason, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING id, order_id, from_status, to_status, actor_id, reason, notes, created_at`,
		entry.OrderID, entry.FromStatus, entry.ToStatus, entry.ActorID, entry.Reason, entry.Notes).Scan(
		&out.ID,
		&out.OrderID,
		&out.FromStatus,
		&out.ToStatus,
		&out.ActorID,
		&out.Reason,
		&out.Notes,
		&out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("append status history: %w", err)
	}

	return out, nil
}

// ListStatusHistory returns an order's audit trail, oldest first.
func ListStatusHistory(ctx context.Context, db *sql.DB, orderID int64) ([]models.StatusHistoryEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, from_status, to_status, actor_id, reason, notes, created_at
		 FROM order_status_history
		 WHERE order_id = $1
		 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var entries []models.StatusHistoryEntry
	for rows.Next() {
		var entry models.StatusHistoryEntry
		err := rows.Scan(
			&entry.ID,
			&entry.OrderID,
			&entry.FromStatus,
			&entry.ToStatus,
			&entry.ActorID,
			&entry.Reason,
			&entry.Notes,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return entries, nil
}
