package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hazemnasser/tank-orders/internal/database"
	"github.com/hazemnasser/tank-orders/internal/models"
)

type CreateOrderRequest struct {
	CustomerID    int64
	Priority      int
	PaymentMethod string
	Items         []OrderItemRequest
}

type OrderItemRequest struct {
	Item      models.ItemRef
	Quantity  int
	UnitPrice decimal.Decimal
}

func (r CreateOrderRequest) validate() error {
	if len(r.Items) == 0 {
		return models.NewValidationError("items", "order must contain at least one item")
	}
	if r.Priority < 1 || r.Priority > 5 {
		return models.NewValidationError("priority", "priority must be between 1 and 5")
	}
	seen := make(map[models.ItemRef]bool, len(r.Items))
	for i, item := range r.Items {
		if err := item.Item.Validate(); err != nil {
			return models.NewValidationError(fmt.Sprintf("items[%d]", i), err.Error())
		}
		if item.Quantity <= 0 {
			return models.NewValidationError(fmt.Sprintf("items[%d].quantity", i), "quantity must be positive")
		}
		if !item.UnitPrice.IsPositive() {
			return models.NewValidationError(fmt.Sprintf("items[%d].unit_price", i), "unit price must be positive")
		}
		if seen[item.Item] {
			return models.NewValidationError(fmt.Sprintf("items[%d]", i),
				fmt.Sprintf("duplicate item %s; merge quantities into one line", item.Item))
		}
		seen[item.Item] = true
	}
	return nil
}

func generateOrderNumber() string {
	return "ORD-" + uuid.NewString()
}

// CreateOrder records a new pending order with its items. No inventory is
// touched here; stock is only held at confirmation time, via reservations.
func CreateOrder(ctx context.Context, db *sql.DB, req CreateOrderRequest) (*models.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var order *models.Order

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)",
			req.CustomerID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check customer exists: %w", err)
		}
		if !exists {
			return database.ErrCustomerNotFound
		}

		totalAmount := decimal.Zero
		for _, item := range req.Items {
			totalAmount = totalAmount.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}

		orderNumber := generateOrderNumber()
		var orderID int64
		err = tx.QueryRowContext(ctx,
			`INSERT INTO orders (customer_id, order_number, status, priority, payment_method, payment_status, total_amount, created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), 1)
			 RETURNING id`,
			req.CustomerID, orderNumber, models.OrderStatusPending, req.Priority,
			req.PaymentMethod, models.PaymentStatusUnpaid, totalAmount).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, item := range req.Items {
			subtotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))

			_, err = tx.ExecContext(ctx,
				`INSERT INTO order_items (order_id, item_kind, item_ref_id, quantity, unit_price, subtotal, delivery_status, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
				orderID, item.Item.Kind, item.Item.ID, item.Quantity, item.UnitPrice,
				subtotal, models.DeliveryStatusPending)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
		}

		order, err = getOrderTx(ctx, tx, orderID, false)
		return err
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

const orderColumns = `id, customer_id, order_number, store_assignment_id, status, priority,
	payment_method, payment_status, total_amount, created_at, updated_at, version`

func scanOrder(row *sql.Row) (*models.Order, error) {
	order := &models.Order{}
	var assignmentID sql.NullInt64

	err := row.Scan(
		&order.ID,
		&order.CustomerID,
		&order.OrderNumber,
		&assignmentID,
		&order.Status,
		&order.Priority,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&order.TotalAmount,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return nil, err
	}

	if assignmentID.Valid {
		order.StoreAssignmentID = &assignmentID.Int64
	}
	return order, nil
}

// GetOrder loads an order with its items.
func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderColumns)

	order, err := scanOrder(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, item_kind, item_ref_id, quantity, unit_price, subtotal, delivery_status, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	items, err := scanOrderItems(rows)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func getOrderTx(ctx context.Context, tx *sql.Tx, id int64, forUpdate bool) (*models.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}

	order, err := scanOrder(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, order_id, item_kind, item_ref_id, quantity, unit_price, subtotal, delivery_status, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	items, err := scanOrderItems(rows)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// GetOrderForUpdate loads an order and its items under a row lock, so
// concurrent transition attempts on the same order serialize.
func GetOrderForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	return getOrderTx(ctx, tx, id, true)
}

func scanOrderItems(rows *sql.Rows) ([]models.OrderItem, error) {
	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.Item.Kind,
			&item.Item.ID,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.DeliveryStatus,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// UpdateOrderStatus moves an order from one status to another with an
// optimistic guard on the expected current status. Zero rows affected means
// another transaction won the race; the caller's retry loop re-reads and
// re-validates.
func UpdateOrderStatus(ctx context.Context, tx *sql.Tx, orderID int64, from, to models.OrderStatus) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $2
		   AND status = $3`,
		to, orderID, from)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
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

func UpdateOrderAssignment(ctx context.Context, tx *sql.Tx, orderID, assignmentID int64) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET store_assignment_id = $1,
		     updated_at = NOW()
		 WHERE id = $2`,
		assignmentID, orderID)
	if err != nil {
		return fmt.Errorf("update order assignment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrOrderNotFound
	}

	return nil
}

// SetOrderItemsDeliveryStatus updates the per-item delivery status for every
// item on an order.
func SetOrderItemsDeliveryStatus(ctx context.Context, tx *sql.Tx, orderID int64, status models.DeliveryStatus) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE order_items
		 SET delivery_status = $1
		 WHERE order_id = $2`,
		status, orderID)
	if err != nil {
		return fmt.Errorf("set order items delivery status: %w", err)
	}
	return nil
}

// ListOrdersCursor pages through a customer's orders newest first.
func ListOrdersCursor(ctx context.Context, db *sql.DB, customerID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM orders
		WHERE customer_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`, orderColumns)

	rows, err := db.QueryContext(ctx, query, customerID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		var assignmentID sql.NullInt64
		err := rows.Scan(
			&order.ID,
			&order.CustomerID,
			&order.OrderNumber,
			&assignmentID,
			&order.Status,
			&order.Priority,
			&order.PaymentMethod,
			&order.PaymentStatus,
			&order.TotalAmount,
			&order.CreatedAt,
			&order.UpdatedAt,
			&order.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if assignmentID.Valid {
			order.StoreAssignmentID = &assignmentID.Int64
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
