package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when an order is absent from both caches.
var ErrNotFound = errors.New("order not found")

// Business rule violations. They are always wrapped in a DomainError.
var (
	ErrCancelDelivered     = errors.New("cannot cancel an order that has already been delivered")
	ErrDeliverWithoutTruck = errors.New("cannot mark an order as delivered without assigning a truck")
	ErrReassignDelivered   = errors.New("cannot reassign the truck of a delivered order")
	ErrMissingID           = errors.New("order id is required")
	ErrMissingTruckID      = errors.New("truck id is required")
)

// DomainError reports a business rule violation detected before any backend
// mutation was attempted.
type DomainError struct {
	OrderID int64
	Reason  error
}

func (e *DomainError) Error() string {
	if e.OrderID == 0 {
		return e.Reason.Error()
	}
	return fmt.Sprintf("order %d: %s", e.OrderID, e.Reason)
}

func (e *DomainError) Unwrap() error {
	return e.Reason
}

// NotFoundError indicates the order with OrderID is unknown to this client.
type NotFoundError struct {
	OrderID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order %d not found", e.OrderID)
}

// Is makes errors.Is(err, ErrNotFound) hold for every NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
