package reservation

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type MetricsFilter struct {
	StoreID *int64
	From    *time.Time
	To      *time.Time
}

type MetricsReport struct {
	Active          int     `json:"active"`
	Fulfilled       int     `json:"fulfilled"`
	Cancelled       int     `json:"cancelled"`
	Expired         int     `json:"expired"`
	FulfillmentRate float64 `json:"fulfillment_rate"`
}

// Metrics aggregates reservation counts, optionally scoped to one store and
// a creation-time range. The fulfillment rate is fulfilled over all closed
// reservations (fulfilled + cancelled + expired); zero closed reservations
// yields a rate of 0.
func Metrics(ctx context.Context, db *sql.DB, filter MetricsFilter) (*MetricsReport, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE r.status = 'active'),
			COUNT(*) FILTER (WHERE r.status = 'fulfilled'),
			COUNT(*) FILTER (WHERE r.status = 'cancelled'),
			COUNT(*) FILTER (WHERE r.status = 'expired')
		FROM reservations r`

	var args []interface{}
	var conds []string

	if filter.StoreID != nil {
		query += " JOIN store_inventories si ON si.id = r.inventory_id"
		args = append(args, *filter.StoreID)
		conds = append(conds, fmt.Sprintf("si.store_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conds = append(conds, fmt.Sprintf("r.created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conds = append(conds, fmt.Sprintf("r.created_at < $%d", len(args)))
	}

	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}

	report := &MetricsReport{}
	err := db.QueryRowContext(ctx, query, args...).Scan(
		&report.Active,
		&report.Fulfilled,
		&report.Cancelled,
		&report.Expired,
	)
	if err != nil {
		return nil, fmt.Errorf("reservation metrics: %w", err)
	}

	closed := report.Fulfilled + report.Cancelled + report.Expired
	if closed > 0 {
		report.FulfillmentRate = float64(report.Fulfilled) / float64(closed)
	}

	return report, nil
}
