package order

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDelivered Status = "DELIVERED"
)

// Customer defaults applied when a draft leaves them blank.
const (
	DefaultCustomerType  = "E"
	DefaultCustomerState = "A"
)

// DateLayout is the ISO calendar date layout used by the backend.
const DateLayout = "2006-01-02"

// Order is a customer order as returned by the backend.
type Order struct {
	ID         int64
	Customer   Customer
	Truck      *Truck
	Items      []LineItem
	TotalPrice decimal.Decimal
	Status     Status
	Date       string
}

// Delivered reports whether the order has reached the DELIVERED status.
func (o Order) Delivered() bool {
	return o.Status == StatusDelivered
}

// HasTruck reports whether a truck is assigned to the order.
func (o Order) HasTruck() bool {
	return o.Truck != nil && o.Truck.ID != 0
}

// Customer is embedded in every order.
type Customer struct {
	ID          int64
	Name        string
	Address     string
	PhoneNumber string
	Type        string
	State       string
}

// LineItem is a single priced entry of an order.
type LineItem struct {
	ID       int64
	Price    decimal.Decimal
	Quantity int
	Name     string
}

// Truck is a minimal reference to a delivery truck.
type Truck struct {
	ID int64
}

// Draft is the client-side input for creating an order. TotalPrice is
// accepted for symmetry with Order but never sent: the total is recomputed
// from Items.
type Draft struct {
	Customer   Customer
	Truck      *Truck
	Items      []LineItem
	TotalPrice decimal.Decimal
}

// Total returns Σ(price × quantity) over items.
func Total(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}

// ParseID coerces a user supplied order identifier to its numeric form.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse order id %q", s)
	}
	if id <= 0 {
		return 0, &DomainError{Reason: ErrMissingID}
	}
	return id, nil
}
