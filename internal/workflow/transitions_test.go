package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hazemnasser/tank-orders/internal/models"
)

func TestCanTransition(t *testing.T) {
	legal := []struct {
		from, to models.OrderStatus
	}{
		{models.OrderStatusPending, models.OrderStatusConfirmed},
		{models.OrderStatusPending, models.OrderStatusCancelled},
		{models.OrderStatusConfirmed, models.OrderStatusInTransit},
		{models.OrderStatusConfirmed, models.OrderStatusCancelled},
		{models.OrderStatusInTransit, models.OrderStatusDelivered},
		{models.OrderStatusInTransit, models.OrderStatusFailed},
		{models.OrderStatusInTransit, models.OrderStatusCancelled},
		{models.OrderStatusDelivered, models.OrderStatusFulfilled},
		{models.OrderStatusDelivered, models.OrderStatusFailed},
		{models.OrderStatusFailed, models.OrderStatusInTransit},
		{models.OrderStatusFailed, models.OrderStatusCancelled},
	}
	for _, tc := range legal {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}

	illegal := []struct {
		from, to models.OrderStatus
	}{
		{models.OrderStatusPending, models.OrderStatusInTransit},
		{models.OrderStatusPending, models.OrderStatusDelivered},
		{models.OrderStatusPending, models.OrderStatusFulfilled},
		{models.OrderStatusConfirmed, models.OrderStatusDelivered},
		{models.OrderStatusDelivered, models.OrderStatusCancelled},
		{models.OrderStatusFailed, models.OrderStatusConfirmed},
		{models.OrderStatusConfirmed, models.OrderStatusPending},
		{models.OrderStatusInTransit, models.OrderStatusConfirmed},
	}
	for _, tc := range illegal {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be rejected", tc.from, tc.to)
	}
}

func TestTerminalStatusesRejectEverything(t *testing.T) {
	all := []models.OrderStatus{
		models.OrderStatusPending,
		models.OrderStatusConfirmed,
		models.OrderStatusInTransit,
		models.OrderStatusDelivered,
		models.OrderStatusFulfilled,
		models.OrderStatusCancelled,
		models.OrderStatusFailed,
	}

	for _, terminal := range []models.OrderStatus{models.OrderStatusFulfilled, models.OrderStatusCancelled} {
		assert.True(t, terminal.Terminal())
		assert.Empty(t, AllowedFrom(terminal))
		for _, to := range all {
			assert.False(t, CanTransition(terminal, to), "%s -> %s must be rejected", terminal, to)
		}
	}
}

func TestUnknownStatusHasNoEdges(t *testing.T) {
	assert.False(t, CanTransition("bogus", models.OrderStatusConfirmed))
	assert.Empty(t, AllowedFrom("bogus"))
}

func TestAllowedFromReturnsACopy(t *testing.T) {
	first := AllowedFrom(models.OrderStatusPending)
	first[0] = "mutated"

	second := AllowedFrom(models.OrderStatusPending)
	assert.Equal(t, models.OrderStatusConfirmed, second[0])
}

func TestInvalidTransitionErrorMessage(t *testing.T) {
	err := &InvalidTransitionError{OrderID: 42, From: models.OrderStatusPending, To: models.OrderStatusDelivered}
	assert.Contains(t, err.Error(), "order 42")
	assert.Contains(t, err.Error(), "pending -> delivered")
}
