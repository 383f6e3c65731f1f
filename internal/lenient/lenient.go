// Package lenient decodes JSON scalars that the backend does not encode
// consistently: identifiers and prices may arrive as numbers or as numeric
// strings, and any field may be null.
package lenient

import (
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Int64 reads a number, a numeric string or null (zero).
func Int64(d *jx.Decoder) (int64, error) {
	switch d.Next() {
	case jx.Null:
		return 0, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		if s == "" {
			return 0, nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "parse integer %q", s)
		}
		return v, nil
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return 0, err
		}
		if n.IsInt() {
			return n.Int64()
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	default:
		return 0, errors.Errorf("unexpected %s for integer", d.Next())
	}
}

// Int is Int64 narrowed to int.
func Int(d *jx.Decoder) (int, error) {
	v, err := Int64(d)
	return int(v), err
}

// Decimal reads a number, a numeric string or null (zero) without going
// through float64.
func Decimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Null:
		return decimal.Zero, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		if s == "" {
			return decimal.Zero, nil
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "parse decimal %q", s)
		}
		return v, nil
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.Errorf("unexpected %s for decimal", d.Next())
	}
}

// String reads a string, null (empty) or a scalar rendered as text.
func String(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.Null:
		return "", d.Null()
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Bool:
		b, err := d.Bool()
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	default:
		return "", errors.Errorf("unexpected %s for string", d.Next())
	}
}
