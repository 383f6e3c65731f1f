package order

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraft_Validate(t *testing.T) {
	item := func(id int64, price string, qty int) LineItem {
		return LineItem{ID: id, Price: decimal.RequireFromString(price), Quantity: qty}
	}

	for _, tt := range []struct {
		name    string
		items   []LineItem
		wantErr error
		index   int
	}{
		{
			name:  "Valid",
			items: []LineItem{item(1, "10", 2), item(2, "0", 1)},
		},
		{
			name:    "NoItems",
			wantErr: ErrEmptyItems,
		},
		{
			name:    "ZeroQuantity",
			items:   []LineItem{item(1, "10", 1), item(7, "3", 0)},
			wantErr: ErrInvalidQuantity,
			index:   1,
		},
		{
			name:    "NegativePrice",
			items:   []LineItem{item(4, "-1", 1)},
			wantErr: ErrNegativePrice,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := Draft{Items: tt.items}.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)

			var itemErr *InvalidItemError
			if errors.As(err, &itemErr) {
				assert.Equal(t, tt.index, itemErr.Index)
				assert.Equal(t, tt.items[tt.index].ID, itemErr.ItemID)
			}
		})
	}
}
