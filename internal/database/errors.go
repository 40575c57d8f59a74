package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505", "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	// Optimistic status checks surface ErrConflict; the whole transaction
	// is retried from the top so the loser re-reads current state.
	if errors.Is(err, ErrConflict) {
		return ErrorClassSerialization
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

var (
	ErrCustomerNotFound    = errors.New("customer not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrStoreNotFound       = errors.New("store not found")
	ErrAssignmentNotFound  = errors.New("store assignment not found")
	ErrInventoryNotFound   = errors.New("inventory row not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrConflict            = errors.New("concurrent modification detected")
	ErrLockTimeout         = errors.New("lock timeout")
)
