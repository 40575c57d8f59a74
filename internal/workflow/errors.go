package workflow

import (
	"fmt"

	"github.com/hazemnasser/tank-orders/internal/models"
)

// InvalidTransitionError rejects a status change not present in the
// permitted transition table. It carries the attempted edge so callers can
// report what was refused, not just that something was.
type InvalidTransitionError struct {
	OrderID int64
	From    models.OrderStatus
	To      models.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %d: transition %s -> %s is not permitted", e.OrderID, e.From, e.To)
}
