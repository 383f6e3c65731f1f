package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Draft validation errors.
var (
	ErrEmptyItems      = errors.New("items required")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	ErrNegativePrice   = errors.New("price must not be negative")
)

// InvalidItemError reports the line item that broke a draft rule.
type InvalidItemError struct {
	Index  int
	ItemID int64
	Reason error
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("item %d (id %d): %s", e.Index, e.ItemID, e.Reason)
}

func (e *InvalidItemError) Unwrap() error {
	return e.Reason
}

// Validate checks the draft before it is submitted. CreateOrder does not call
// it: the backend stays the authority and rejects bad drafts itself.
func (dr Draft) Validate() error {
	if len(dr.Items) == 0 {
		return ErrEmptyItems
	}
	for i, item := range dr.Items {
		if item.Quantity <= 0 {
			return &InvalidItemError{Index: i, ItemID: item.ID, Reason: ErrInvalidQuantity}
		}
		if item.Price.IsNegative() {
			return &InvalidItemError{Index: i, ItemID: item.ID, Reason: ErrNegativePrice}
		}
	}
	return nil
}
