package reservation

import (
	"context"
	"database/sql"

	"github.com/hazemnasser/tank-orders/internal/database"
	"github.com/hazemnasser/tank-orders/internal/metrics"
	"github.com/hazemnasser/tank-orders/internal/models"
)

type RestoredItem struct {
	ReservationID int64          `json:"reservation_id"`
	Item          models.ItemRef `json:"item"`
	Quantity      int            `json:"quantity"`
}

type RestorationResult struct {
	Success  bool           `json:"success"`
	Restored []RestoredItem `json:"restored"`
	Reason   string         `json:"reason,omitempty"`
}

// Restore releases an order's active reservations back to availability.
func Restore(ctx context.Context, db *sql.DB, orderID int64, reason string, actorID int64) (*RestorationResult, error) {
	var result *RestorationResult

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		var err error
		result, err = RestoreTx(ctx, tx, orderID, reason, actorID)
		return err
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

// RestoreTx cancels every active reservation on the order inside the
// caller's transaction. Cancelled reservations drop out of the availability
// sum, so the held quantity is released without touching the stock counter.
// Idempotent: an order with no active reservations restores zero items
// successfully.
func RestoreTx(ctx context.Context, tx *sql.Tx, orderID int64, reason string, actorID int64) (*RestorationResult, error) {
	reservations, err := ActiveForOrder(ctx, tx, orderID, true)
	if err != nil {
		return nil, err
	}

	result := &RestorationResult{Success: true, Reason: reason}

	for _, res := range reservations {
		if err := markReservation(ctx, tx, res.ID, models.ReservationStatusActive, models.ReservationStatusCancelled); err != nil {
			return nil, err
		}
		metrics.ReservationsRestoredTotal.Inc()

		result.Restored = append(result.Restored, RestoredItem{
			ReservationID: res.ID,
			Item:          res.Item,
			Quantity:      res.Quantity,
		})
	}

	return result, nil
}

// ExpireDue transitions over-due active reservations to expired, releasing
// their quantity from the availability sum. Used by the sweeper; batchSize
// bounds each pass so one sweep cannot hold locks across the whole table.
func ExpireDue(ctx context.Context, db *sql.DB, batchSize int) (int, error) {
	if batchSize <= 0 {
		return 0, models.NewValidationError("batch_size", "batch size must be positive")
	}

	expired := 0

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		expired = 0

		result, err := tx.ExecContext(ctx,
			`UPDATE reservations
			 SET status = 'expired',
			     updated_at = NOW()
			 WHERE id IN (
			     SELECT id FROM reservations
			     WHERE status = 'active'
			       AND expires_at IS NOT NULL
			       AND expires_at < NOW()
			     ORDER BY expires_at
			     LIMIT $1
			     FOR UPDATE SKIP LOCKED
			 )`,
			batchSize)
		if err != nil {
			return err
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		expired = int(rowsAffected)
		return nil
	})

	if err != nil {
		return 0, err
	}

	metrics.ReservationsExpiredTotal.Add(float64(expired))

	return expired, nil
}
