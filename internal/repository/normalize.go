package repository

import (
	"github.com/go-faster/jx"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/domain/order"
)

// shape recognizes one way the backend encodes an order listing.
type shape struct {
	name  string
	match func(body []byte) ([]jx.Raw, bool)
}

// shapes are tried in order; the first match wins.
var shapes = []shape{
	{name: "page", match: matchPage},
	{name: "array", match: matchArray},
	{name: "first-array-field", match: matchFirstArrayField},
	{name: "single-record", match: matchSingleRecord},
}

const shapeEmpty = "empty"

// normalize extracts the raw order records from a listing body.
func normalize(body []byte) ([]jx.Raw, string) {
	for _, s := range shapes {
		if records, ok := s.match(body); ok {
			return records, s.name
		}
	}
	return []jx.Raw{}, shapeEmpty
}

// matchPage accepts {"content": [...], ...}.
func matchPage(body []byte) ([]jx.Raw, bool) {
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return nil, false
	}
	var (
		records []jx.Raw
		found   bool
	)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if found || key != "content" || d.Next() != jx.Array {
			return d.Skip()
		}
		var err error
		records, err = elements(d)
		found = err == nil
		return err
	}); err != nil {
		return nil, false
	}
	return records, found
}

// matchArray accepts a bare array.
func matchArray(body []byte) ([]jx.Raw, bool) {
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Array {
		return nil, false
	}
	records, err := elements(d)
	if err != nil {
		return nil, false
	}
	return records, true
}

// matchFirstArrayField accepts an object whose first array-valued field
// holds the records, e.g. {"orders": [...]}.
func matchFirstArrayField(body []byte) ([]jx.Raw, bool) {
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return nil, false
	}
	var (
		records []jx.Raw
		found   bool
	)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if found || d.Next() != jx.Array {
			return d.Skip()
		}
		var err error
		records, err = elements(d)
		found = err == nil
		return err
	}); err != nil {
		return nil, false
	}
	return records, found
}

// matchSingleRecord accepts a lone order object carrying both an id and a
// customer.
func matchSingleRecord(body []byte) ([]jx.Raw, bool) {
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return nil, false
	}
	var hasID, hasCustomer bool
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			hasID = d.Next() != jx.Null
		case "customer":
			hasCustomer = d.Next() != jx.Null
		}
		return d.Skip()
	}); err != nil {
		return nil, false
	}
	if !hasID || !hasCustomer {
		return nil, false
	}
	return []jx.Raw{jx.Raw(body)}, true
}

func elements(d *jx.Decoder) ([]jx.Raw, error) {
	records := []jx.Raw{}
	err := d.Arr(func(d *jx.Decoder) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		records = append(records, raw)
		return nil
	})
	return records, err
}

// decodeOrders normalizes body and decodes every record. Records that cannot
// be decoded are skipped.
func decodeOrders(lg *zap.Logger, body []byte) []order.Order {
	records, shapeName := normalize(body)
	if shapeName == shapeEmpty {
		lg.Warn("Unrecognized order listing, treating as empty", zap.Int("bytes", len(body)))
	}

	orders := make([]order.Order, 0, len(records))
	for i, raw := range records {
		var o order.Order
		if err := o.Decode(jx.DecodeBytes(raw)); err != nil {
			lg.Warn("Skipping malformed order record",
				zap.Int("index", i),
				zap.String("shape", shapeName),
				zap.Error(err),
			)
			continue
		}
		orders = append(orders, o)
	}
	return orders
}
