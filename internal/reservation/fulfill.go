package reservation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazemnasser/tank-orders/internal/database"
	"github.com/hazemnasser/tank-orders/internal/metrics"
	"github.com/hazemnasser/tank-orders/internal/models"
	"github.com/hazemnasser/tank-orders/internal/store"
)

// ActualItem overrides the delivered quantity for one item. Items without an
// override are fulfilled at their reserved quantity.
type ActualItem struct {
	Item     models.ItemRef `json:"item"`
	Quantity int            `json:"quantity"`
}

type FulfillmentRequest struct {
	OrderID     int64
	ActorID     int64
	ActualItems []ActualItem
	Signature   string
	Notes       string
}

type FulfilledItem struct {
	ReservationID  int64          `json:"reservation_id"`
	Item           models.ItemRef `json:"item"`
	Reserved       int            `json:"reserved"`
	Delivered      int            `json:"delivered"`
	TransactionRef string         `json:"transaction_ref,omitempty"`
}

// Discrepancy records a reserved/delivered mismatch. It never blocks
// fulfillment; the ledger is decremented by the delivered amount either way.
type Discrepancy struct {
	ReservationID int64          `json:"reservation_id"`
	Item          models.ItemRef `json:"item"`
	Reserved      int            `json:"reserved"`
	Delivered     int            `json:"delivered"`
}

type FulfillmentResult struct {
	Success       bool            `json:"success"`
	Items         []FulfilledItem `json:"items"`
	Discrepancies []Discrepancy   `json:"discrepancies,omitempty"`
	Errors        []string        `json:"errors,omitempty"`
}

// Fulfill converts an order's active reservations into permanent stock
// decrements in one transaction.
func Fulfill(ctx context.Context, db *sql.DB, req FulfillmentRequest) (*FulfillmentResult, error) {
	var result *FulfillmentResult

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		var err error
		result, err = FulfillTx(ctx, tx, req)
		return err
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

// FulfillTx runs fulfillment inside the caller's transaction. For every
// active reservation on the order it decrements the ledger by the delivered
// quantity, links the resulting transaction, and marks the reservation
// fulfilled. An order with no active reservations is a soft failure reported
// in the result, not an error: the workflow treats it as an expected business
// outcome.
func FulfillTx(ctx context.Context, tx *sql.Tx, req FulfillmentRequest) (*FulfillmentResult, error) {
	overrides := make(map[models.ItemRef]int, len(req.ActualItems))
	for i, actual := range req.ActualItems {
		if err := actual.Item.Validate(); err != nil {
			return nil, models.NewValidationError(fmt.Sprintf("actual_items[%d]", i), err.Error())
		}
		if actual.Quantity < 0 {
			return nil, models.NewValidationError(fmt.Sprintf("actual_items[%d].quantity", i), "delivered quantity cannot be negative")
		}
		overrides[actual.Item] = actual.Quantity
	}

	reservations, err := ActiveForOrder(ctx, tx, req.OrderID, true)
	if err != nil {
		return nil, err
	}

	if len(reservations) == 0 {
		return &FulfillmentResult{
			Success: false,
			Errors:  []string{"no active reservations to fulfill"},
		}, nil
	}

	result := &FulfillmentResult{Success: true}
	matched := make(map[models.ItemRef]bool, len(overrides))

	for _, res := range reservations {
		delivered := res.Quantity
		if override, ok := overrides[res.Item]; ok {
			delivered = override
			matched[res.Item] = true
		}

		fulfilled := FulfilledItem{
			ReservationID: res.ID,
			Item:          res.Item,
			Reserved:      res.Quantity,
			Delivered:     delivered,
		}

		if delivered != res.Quantity {
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				ReservationID: res.ID,
				Item:          res.Item,
				Reserved:      res.Quantity,
				Delivered:     delivered,
			})
			metrics.FulfillmentDiscrepanciesTotal.Inc()
		}

		if delivered > 0 {
			txn, err := store.DecrementInventory(ctx, tx, res.InventoryID, delivered,
				"order fulfillment", req.ActorID, req.Notes)
			if err != nil {
				return nil, err
			}

			if _, err := store.LinkReservationTransaction(ctx, tx, res.ID, txn.ID); err != nil {
				return nil, err
			}
			fulfilled.TransactionRef = txn.Reference
		}

		if err := markReservation(ctx, tx, res.ID, models.ReservationStatusActive, models.ReservationStatusFulfilled); err != nil {
			return nil, err
		}
		metrics.ReservationsFulfilledTotal.Inc()

		result.Items = append(result.Items, fulfilled)
	}

	// An override naming an item this order never reserved is almost
	// certainly a typo'd ref; the matching reservations above were still
	// fulfilled at their reserved quantities, so surface it to the caller.
	for _, actual := range req.ActualItems {
		if !matched[actual.Item] {
			result.Success = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("actual item %s matches no active reservation", actual.Item))
		}
	}

	return result, nil
}
