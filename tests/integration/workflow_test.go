package integration

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hazemnasser/tank-orders/internal/database"
	"github.com/hazemnasser/tank-orders/internal/models"
	"github.com/hazemnasser/tank-orders/internal/reservation"
	"github.com/hazemnasser/tank-orders/internal/store"
	"github.com/hazemnasser/tank-orders/internal/workflow"
)

func newEngine(db *sql.DB) *workflow.Engine {
	return workflow.NewEngine(db, zerolog.Nop(), 0)
}

func available(t *testing.T, db *sql.DB, storeID int64, item models.ItemRef) reservation.ItemAvailability {
	t.Helper()

	results, err := reservation.CheckAvailability(context.Background(), db, storeID,
		[]reservation.ItemRequest{{Item: item, Quantity: 1}})
	if err != nil {
		t.Fatalf("Check availability: %v", err)
	}
	return results[0]
}

func TestConfirmReservesAllItems(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	site := seedSite(t, db, "confirm@example.com")
	seedInventory(t, db, site.Store.ID, models.TankRef(1), 10)
	seedInventory(t, db, site.Store.ID, models.StockItemRef(1), 5)

	order := seedOrder(t, db, site.Customer.ID, tankItem(1, 2, 100), stockItem(1, 1, 40))

	tanks := available(t, db, site.Store.ID, models.TankRef(1))
	if tanks.Available != 10 || !tanks.CanFulfill {
		t.Errorf("Expected 10 tanks available, got %d (can fulfill: %v)", tanks.Available, tanks.CanFulfill)
	}
	items := available(t, db, site.Store.ID, models.StockItemRef(1))
	if items.Available != 5 || !items.CanFulfill {
		t.Errorf("Expected 5 items available, got %d (can fulfill: %v)", items.Available, items.CanFulfill)
	}

	engine := newEngine(db)
	result, err := engine.Confirm(ctx, workflow.ConfirmRequest{
		OrderID:           order.ID,
		StoreAssignmentID: site.Assignment.ID,
		ActorID:           7,
	})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if result.From != models.OrderStatusPending || result.To != models.OrderStatusConfirmed {
		t.Errorf("Expected pending -> confirmed, got %s -> %s", result.From, result.To)
	}
	if len(result.Reservations) != 2 {
		t.Fatalf("Expected 2 reservations, got %d", len(result.Reservations))
	}
	for _, res := range result.Reservations {
		if res.Status != models.ReservationStatusActive {
			t.Errorf("Reservation %d: expected active, got %s", res.ID, res.Status)
		}
		if res.StoreAssignmentID != site.Assignment.ID {
			t.Errorf("Reservation %d: expected assignment %d, got %d", res.ID, site.Assignment.ID, res.StoreAssignmentID)
		}
		if res.InventoryID == 0 {
			t.Errorf("Reservation %d: inventory reference not set", res.ID)
		}
		if res.ExpiresAt == nil {
			t.Errorf("Reservation %d: expected default expiry to be set", res.ID)
		}
	}

	if result.Order.StoreAssignmentID == nil || *result.Order.StoreAssignmentID != site.Assignment.ID {
		t.Error("Order should carry the store assignment after confirm")
	}
	if result.History == nil || result.History.Reason != "store assigned, inventory reserved" {
		t.Errorf("Unexpected history entry: %+v", result.History)
	}

	tanksAfter := available(t, db, site.Store.ID, models.TankRef(1))
	if tanksAfter.Available != 8 {
		t.Errorf("Expected 8 tanks available after confirm, got %d", tanksAfter.Available)
	}
	itemsAfter := available(t, db, site.Store.ID, models.StockItemRef(1))
	if itemsAfter.Available != 4 {
		t.Errorf("Expected 4 items available after confirm, got %d", itemsAfter.Available)
	}
}

func TestConfirmInsufficientInventoryIsAtomic(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	site := seedSite(t, db, "short@example.com")
	seedInventory(t, db, site.Store.ID, models.TankRef(1), 1)
	seedInventory(t, db, site.Store.ID, models.StockItemRef(1), 5)

	order := seedOrder(t, db, site.Customer.ID, tankItem(1, 2, 100), stockItem(1, 1, 40))

	engine := newEngine(db)
	_, err := engine.Confirm(ctx, workflow.ConfirmRequest{
		OrderID:           order.ID,
		StoreAssignmentID: site.Assignment.ID,
		ActorID:           7,
	})

	var invErr *reservation.InsufficientInventoryError
	if !errors.As(err, &invErr) {
		t.Fatalf("Expected InsufficientInventoryError, got: %v", err)
	}
	if len(invErr.Short) != 1 || invErr.Short[0].Item != models.TankRef(1) {
		t.Errorf("Expected the tank item to be named short, got %+v", invErr.Short)
	}
	if invErr.Short[0].Requested != 2 || invErr.Short[0].Available != 1 {
		t.Errorf("Expected requested 2 available 1, got %+v", invErr.Short[0])
	}

	after, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if after.Status != models.OrderStatusPending {
		t.Errorf("Order status should remain pending, got %s", after.Status)
	}
	if after.StoreAssignmentID != nil {
		t.Error("No assignment should be retained after a failed confirm")
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM reservations WHERE order_id = $1", order.ID).Scan(&count); err != nil {
		t.Fatalf("Count reservations: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected zero reservations after failed confirm, got %d", count)
	}

	history, err := store.ListStatusHistory(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("List history: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("No history should be written for a failed confirm, got %d entries", len(history))
	}

	// The stock item was coverable but must not have been held either.
	items := available(t, db, site.Store.ID, models.StockItemRef(1))
	if items.Available != 5 {
		t.Errorf("Expected stock item availability unchanged at 5, got %d", items.Available)
	}
}

func TestConfirmSameItemOnTwoLinesDoesNotOversell(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	site := seedSite(t, db, "twolines@example.com")
	seedInventory(t, db, site.Store.ID, models.TankRef(1), 3)

	// Order intake merges duplicate refs onto one line, but reservation must
	// hold regardless of how the rows got there. Plant a second line for the
	// same tank directly.
	order := seedOrder(t, db, site.Customer.ID, tankItem(1, 2, 100))
	_, err := db.Exec(
		`INSERT INTO order_items (order_id, item_kind, item_ref_id, quantity, unit_price, subtotal, delivery_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		order.ID, models.ItemKindTank, 1, 2, 100, 200, models.DeliveryStatusPending)
	if err != nil {
		t.Fatalf("Insert second order item: %v", err)
	}

	engine := newEngine(db)
	_, err = engine.Confirm(ctx, workflow.ConfirmRequest{
		OrderID:           order.ID,
		StoreAssignmentID: site.Assignment.ID,
		ActorID:           7,
	})

	// Each line asks for 2 against stock 3. The first fits, the second must
	// see only the 1 unit the first left over, not the full 3.
	var invErr *reservation.InsufficientInventoryError
	if !errors.As(err, &invErr) {
		t.Fatalf("Expected InsufficientInventoryError, got: %v", err)
	}
	if len(invErr.Short) != 1 || invErr.Short[0].Item != models.TankRef(1) {
		t.Fatalf("Expected the tank named short once, got %+v", invErr.Short)
	}
	if invErr.Short[0].Requested != 2 || invErr.Short[0].Available != 1 {
		t.Errorf("Expected requested 2 available 1, got %+v", invErr.Short[0])
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM reservations WHERE order_id = $1", order.ID).Scan(&count); err != nil {
		t.Fatalf("Count reservations: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected zero reservations after failed confirm, got %d", count)
	}

	tank := available(t, db, site.Store.ID, models.TankRef(1))
	if tank.Available != 3 {
		t.Errorf("Expected availability unchanged at 3, got %d", tank.Available)
	}
}

func TestInvalidTransitionLeavesNoTrace(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	site := seedSite(t, db, "invalid@example.com")
	order := seedOrder(t, db, site.Customer.ID, tankItem(1, 1, 100))

	engine := newEngine(db)

	// pending -> in_transit skips confirmation and must be rejected.
	_, err := engine.StartDelivery(ctx, workflow.StartDeliveryRequest{
		OrderID:         order.ID,
		DeliveryActorID: 3,
	})

	var transitionErr *workflow.InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("Expected InvalidTransitionError, got: %v", err)
	}
	if transitionErr.From != models.OrderStatusPending || transitionErr.To != models.OrderStatusInTransit {
		t.Errorf("Expected pending -> in_transit in error, got %s -> %s", transitionErr.From, transitionErr.To)
	}

	after, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if after.Status != models.OrderStatusPending {
		t.Errorf("Status should be unchanged, got %s", after.Status)
	}

	history, err := store.ListStatusHistory(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("List history: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("No history should exist after a rejected transition, got %d entries", len(history))
	}
}

func TestDeliveryWithDiscrepancy(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	site := seedSite(t, db, "discrepancy@example.com")
	inv := seedInventory(t, db, site.Store.ID, models.TankRef(1), 10)

	order := seedOrder(t, db, site.Customer.ID, tankItem(1, 2, 100))

	engine := newEngine(db)
	if _, err := engine.Confirm(ctx, workflow.ConfirmRequest{
		OrderID:           order.ID,
		StoreAssignmentID: site.Assignment.ID,
		ActorID:           7,
	}); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := engine.StartDelivery(ctx, workflow.StartDeliveryRequest{
		OrderID:         order.ID,
		DeliveryActorID: 3,
	}); err != nil {
		t.Fatalf("StartDelivery: %v", err)
	}

	// Only 1 of the 2 reserved tanks actually goes out.
	result, err := engine.CompleteDelivery(ctx, workflow.CompleteDeliveryRequest{
		OrderID:         order.ID,
		DeliveryActorID: 3,
		ActualItems:     []reservation.ActualItem{{Item: models.TankRef(1), Quantity: 1}},
		Signature:       "customer-sig",
	})
	if err != nil {
		t.Fatalf("CompleteDelivery: %v", err)
	}

	if !result.Fulfillment.Success {
		t.Fatalf("Fulfillment should succeed, errors: %v", result.Fulfillment.Errors)
	}
	if len(result.Fulfillment.Discrepancies) != 1 {
		t.Fatalf("Expected 1 discrepancy, got %d", len(result.Fulfillment.Discrepancies))
	}
	d := result.Fulfillment.Discrepancies[0]
	if d.Reserved != 2 || d.Delivered != 1 {
		t.Errorf("Expected discrepancy {reserved:2, delivered:1}, got %+v", d)
	}

	if result.Order.Status != models.OrderStatusDelivered {
		t.Errorf("Expected delivered, got %s", result.Order.Status)
	}

	// Ledger decremented by the delivered quantity, not the reserved one.
	after, err := store.GetInventory(ctx, db, inv.ID)
	if err != nil {
		t.Fatalf("Get inventory: %v", err)
	}
	if after.Quantity != 9 {
		t.Errorf("Expected stock 9 after delivering 1, got %d", after.Quantity)
	}

	var status models.ReservationStatus
	if err := db.QueryRow("SELECT status FROM reservations WHERE order_id = $1", order.ID).Scan(&status); err != nil {
		t.Fatalf("Get reservation status: %v", err)
	}
	if status != models.ReservationStatusFulfilled {
		t.Errorf("Expected reservation fulfilled, got %s", status)
	}

	var links int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM reservation_transactions rt
		 JOIN reservations r ON r.id = rt.reservation_id
		 WHERE r.order_id = $1`, order.ID).Scan(&links); err != nil {
		t.Fatalf("Count transaction links: %v", err)
	}
	if links != 1 {
		t.Errorf("Expected 1 transaction link, got %d", links)
	}

	// Fulfilled reservations no longer count against availability.
	tanks := available(t, db, site.Store.ID, models.TankRef(1))
	if tanks.Available != 9 {
		t.Errorf("Expected 9 available after fulfillment, got %d", tanks.Available)
	}

	// Close out the order.
	final, err := engine.FulfillOrder(ctx, workflow.FulfillOrderRequest{OrderID: order.ID, ActorID: 7})
	if err != nil {
		t.Fatalf("FulfillOrder: %v", err)
	}
	if final.Order.Status != models.OrderStatusFulfilled {
		t.Errorf("Expected fulfilled, got %s", final.Order.Status)
	}
}

func TestCancelRestoresReservedStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	site := seedSite(t, db, "cancel@example.com")
	seedInventory(t, db, site.Store.ID, models.TankRef(1), 10)

	order := seedOrder(t, db, site.Customer.ID, tankItem(1, 3, 100))

	engine := newEngine(db)
	if _, err := engine.Confirm(ctx, workflow.ConfirmRequest{
		OrderID:           order.ID,
		StoreAssignmentID: site.Assignment.ID,
		ActorID:           7,
	}); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if got := available(t, db, site.Store.ID, models.TankRef(1)); got.Available != 7 {
		t.Fatalf("Expected 7 available after confirm, got %d", got.Available)
	}

	result, err := engine.Cancel(ctx, workflow.CancelRequest{
		OrderID: order.ID,
		Reason:  "customer request",
		ActorID: 7,
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if result.Order.Status != models.OrderStatusCancelled {
		t.Errorf("Expected cancelled, got %s", result.Order.Status)
	}
	if len(result.Restoration.Restored) != 1 || result.Restoration.Restored[0].Quantity != 3 {
		t.Errorf("Expected 3 units restored, got %+v", result.Restoration.Restored)
	}

	if got := available(t, db, site.Store.ID, models.TankRef(1)); got.Available != 10 {
		t.Errorf("Expected full availability back after cancel, got %d", got.Available)
	}
}

func TestCancelPendingOrderRestoresNothing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	site := seedSite(t, db, "cancel-pending@example.com")
	order := seedOrder(t, db, site.Customer.ID, tankItem(1, 1, 100))

	engine := newEngine(db)
	result, err := engine.Cancel(ctx, workflow.CancelRequest{
		OrderID: order.ID,
		Reason:  "never confirmed",
		ActorID: 7,
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if !result.Restoration.Success {
		t.Error("Restoring zero reservations should still report success")
	}
	if len(result.Restoration.Restored) != 0 {
		t.Errorf("Expected zero restored items, got %d", len(result.Restoration.Restored))
	}
	if result.Order.Status != models.OrderStatusCancelled {
		t.Errorf("Expected cancelled, got %s", result.Order.Status)
	}
}

func TestRestoreIsIdempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	site := seedSite(t, db, "restore@example.com")
	seedInventory(t, db, site.Store.ID, models.TankRef(1), 5)

	order := seedOrder(t, db, site.Customer.ID, tankItem(1, 2, 100))

	engine := newEngine(db)
	if _, err := engine.Confirm(ctx, workflow.ConfirmRequest{
		OrderID:           order.ID,
		StoreAssignmentID: site.Assignment.ID,
		ActorID:           7,
	}); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	first, err := engine.RestoreReservations(ctx, order.ID, "delivery abandoned", 7)
	if err != nil {
		t.Fatalf("First restore: %v", err)
	}
	if len(first.Restored) != 1 || first.Restored[0].Quantity != 2 {
		t.Errorf("Expected 2 units restored, got %+v", first.Restored)
	}

	second, err := engine.RestoreReservations(ctx, order.ID, "delivery abandoned", 7)
	if err != nil {
		t.Fatalf("Second restore should not error: %v", err)
	}
	if !second.Success {
		t.Error("Second restore should report success")
	}
	if len(second.Restored) != 0 {
		t.Errorf("Second restore should release nothing, got %+v", second.Restored)
	}

	if got := available(t, db, site.Store.ID, models.TankRef(1)); got.Available != 5 {
		t.Errorf("Expected availability back to 5, got %d", got.Available)
	}
}

func TestFailedDeliveryRetryAndCancel(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	site := seedSite(t, db, "fail@example.com")
	seedInventory(t, db, site.Store.ID, models.TankRef(1), 5)

	order := seedOrder(t, db, site.Customer.ID, tankItem(1, 1, 100))

	engine := newEngine(db)
	if _, err := engine.Confirm(ctx, workflow.ConfirmRequest{
		OrderID:           order.ID,
		StoreAssignmentID: site.Assignment.ID,
		ActorID:           7,
	}); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := engine.StartDelivery(ctx, workflow.StartDeliveryRequest{OrderID: order.ID, DeliveryActorID: 3}); err != nil {
		t.Fatalf("StartDelivery: %v", err)
	}

	failed, err := engine.FailDelivery(ctx, workflow.FailDeliveryRequest{
		OrderID: order.ID,
		Reason:  "truck breakdown",
		ActorID: 3,
	})
	if err != nil {
		t.Fatalf("FailDelivery: %v", err)
	}
	if failed.Order.Status != models.OrderStatusFailed {
		t.Errorf("Expected failed, got %s", failed.Order.Status)
	}

	// Reservations survive the failure, so the stock is still held.
	if got := available(t, db, site.Store.ID, models.TankRef(1)); got.Available != 4 {
		t.Errorf("Expected reservation still held after failure, available = %d", got.Available)
	}

	// failed -> in_transit is the retry edge.
	retried, err := engine.StartDelivery(ctx, workflow.StartDeliveryRequest{OrderID: order.ID, DeliveryActorID: 3})
	if err != nil {
		t.Fatalf("Retry StartDelivery: %v", err)
	}
	if retried.History.Reason != "delivery retried" {
		t.Errorf("Expected retry reason on history, got %q", retried.History.Reason)
	}

	// Fail again and cancel; cancellation releases the held stock.
	if _, err := engine.FailDelivery(ctx, workflow.FailDeliveryRequest{OrderID: order.ID, Reason: "address unreachable", ActorID: 3}); err != nil {
		t.Fatalf("Second FailDelivery: %v", err)
	}
	cancelled, err := engine.Cancel(ctx, workflow.CancelRequest{OrderID: order.ID, Reason: "giving up", ActorID: 7})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(cancelled.Restoration.Restored) != 1 {
		t.Errorf("Expected the reservation to be restored on cancel, got %+v", cancelled.Restoration.Restored)
	}
	if got := available(t, db, site.Store.ID, models.TankRef(1)); got.Available != 5 {
		t.Errorf("Expected availability back to 5 after cancel, got %d", got.Available)
	}
}

func TestConcurrentConfirmsDoNotOversell(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	site := seedSite(t, db, "race@example.com")
	seedInventory(t, db, site.Store.ID, models.TankRef(1), 1)

	engine := newEngine(db)

	concurrency := 4
	orders := make([]*models.Order, concurrency)
	for i := range orders {
		orders[i] = seedOrder(t, db, site.Customer.ID, tankItem(1, 1, 100))
	}

	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(orderID int64) {
			defer wg.Done()

			_, err := engine.Confirm(ctx, workflow.ConfirmRequest{
				OrderID:           orderID,
				StoreAssignmentID: site.Assignment.ID,
				ActorID:           7,
			})
			results <- err
		}(orders[i].ID)
	}

	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		var invErr *reservation.InsufficientInventoryError
		if !errors.As(err, &invErr) && !database.IsRetryable(err) {
			t.Errorf("Unexpected error kind: %v", err)
		}
	}

	if successes != 1 {
		t.Errorf("Exactly one confirm should win the single unit, got %d", successes)
	}

	var active int
	if err := db.QueryRow("SELECT COUNT(*) FROM reservations WHERE status = 'active'").Scan(&active); err != nil {
		t.Fatalf("Count active reservations: %v", err)
	}
	if active != 1 {
		t.Errorf("Expected exactly 1 active reservation, got %d", active)
	}

	if got := available(t, db, site.Store.ID, models.TankRef(1)); got.Available != 0 {
		t.Errorf("Expected 0 available after the winning confirm, got %d", got.Available)
	}
}

func TestValidateTransitionIsPure(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	site := seedSite(t, db, "validate@example.com")
	order := seedOrder(t, db, site.Customer.ID, tankItem(1, 1, 100))

	engine := newEngine(db)

	check, err := engine.ValidateTransition(ctx, order.ID, models.OrderStatusCancelled, 7)
	if err != nil {
		t.Fatalf("ValidateTransition: %v", err)
	}
	if !check.Allowed {
		t.Error("pending -> cancelled should be allowed")
	}

	check, err = engine.ValidateTransition(ctx, order.ID, models.OrderStatusDelivered, 7)
	if err != nil {
		t.Fatalf("ValidateTransition: %v", err)
	}
	if check.Allowed {
		t.Error("pending -> delivered should be rejected")
	}
	if check.Reason == "" {
		t.Error("Rejected check should explain why")
	}

	after, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if after.Status != models.OrderStatusPending {
		t.Errorf("Validation must not change state, got %s", after.Status)
	}
}
