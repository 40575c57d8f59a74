package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// StoreAssignment binds an order-serving context to a concrete store. Orders
// reference an assignment, not a store directly, so the assignment row can
// carry routing detail without touching orders.
type StoreAssignment struct {
	ID        int64     `json:"id"`
	StoreID   int64     `json:"store_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// StoreInventory is one stock row: the currently-active quantity a store
// holds of one item. Availability is derived as Quantity minus the sum of
// active reservation quantities against this row.
type StoreInventory struct {
	ID        int64     `json:"id"`
	StoreID   int64     `json:"store_id"`
	Item      ItemRef   `json:"item"`
	Quantity  int       `json:"quantity"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

type Order struct {
	ID                int64           `json:"id"`
	OrderNumber       string          `json:"order_number"`
	CustomerID        int64           `json:"customer_id"`
	StoreAssignmentID *int64          `json:"store_assignment_id,omitempty"`
	Status            OrderStatus     `json:"status"`
	Priority          int             `json:"priority"`
	PaymentMethod     string          `json:"payment_method"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Version           int             `json:"version"`
	Items             []OrderItem     `json:"items,omitempty"`
}

type OrderItem struct {
	ID             int64           `json:"id"`
	OrderID        int64           `json:"order_id"`
	Item           ItemRef         `json:"item"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DeliveryStatus DeliveryStatus  `json:"delivery_status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Reservation is a provisional hold on inventory for one order item. At most
// one reservation per order item is active at a time; a cancelled, expired or
// fulfilled reservation is never reactivated, a new row is created instead.
type Reservation struct {
	ID                int64             `json:"id"`
	OrderID           int64             `json:"order_id"`
	OrderItemID       int64             `json:"order_item_id"`
	StoreAssignmentID int64             `json:"store_assignment_id"`
	InventoryID       int64             `json:"inventory_id"`
	Item              ItemRef           `json:"item"`
	Quantity          int               `json:"quantity"`
	Status            ReservationStatus `json:"status"`
	ExpiresAt         *time.Time        `json:"expires_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// StatusHistoryEntry is an append-only audit record of one order status
// transition. Rows are never updated or deleted.
type StatusHistoryEntry struct {
	ID         int64       `json:"id"`
	OrderID    int64       `json:"order_id"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status"`
	ActorID    int64       `json:"actor_id"`
	Reason     string      `json:"reason"`
	Notes      string      `json:"notes,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// InventoryTransaction records one permanent stock movement against an
// inventory row. Reference is a stable uuid handed to external systems.
type InventoryTransaction struct {
	ID             int64     `json:"id"`
	Reference      string    `json:"reference"`
	InventoryID    int64     `json:"inventory_id"`
	Item           ItemRef   `json:"item"`
	QuantityChange int       `json:"quantity_change"`
	Reason         string    `json:"reason"`
	ActorID        int64     `json:"actor_id"`
	Note           string    `json:"note,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TransactionLink ties a fulfilled reservation to the stock decrement it
// produced, for traceability from the audit side.
type TransactionLink struct {
	ID                     int64     `json:"id"`
	ReservationID          int64     `json:"reservation_id"`
	InventoryTransactionID int64     `json:"inventory_transaction_id"`
	CreatedAt              time.Time `json:"created_at"`
}
