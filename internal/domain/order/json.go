package order

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/orderdesk/internal/lenient"
)

// Decode reads an order object. Unknown fields are skipped and scalar fields
// are decoded leniently.
func (o *Order) Decode(d *jx.Decoder) error {
	if d.Next() != jx.Object {
		return errors.Errorf("order: unexpected %s", d.Next())
	}
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = lenient.Int64(d)
		case "customer":
			err = o.Customer.Decode(d)
		case "truck":
			o.Truck, err = decodeTruck(d)
		case "items":
			o.Items, err = decodeItems(d)
		case "totalPrice":
			o.TotalPrice, err = lenient.Decimal(d)
		case "status":
			var s string
			s, err = lenient.String(d)
			o.Status = Status(s)
		case "date":
			o.Date, err = lenient.String(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
}

// Decode reads a customer object; null leaves c untouched.
func (c *Customer) Decode(d *jx.Decoder) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			c.ID, err = lenient.Int64(d)
		case "name":
			c.Name, err = lenient.String(d)
		case "address":
			c.Address, err = lenient.String(d)
		case "phoneNumber":
			c.PhoneNumber, err = lenient.String(d)
		case "type":
			c.Type, err = lenient.String(d)
		case "state":
			c.State, err = lenient.String(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
}

// Decode reads a line item object.
func (li *LineItem) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			li.ID, err = lenient.Int64(d)
		case "price":
			li.Price, err = lenient.Decimal(d)
		case "quantity":
			li.Quantity, err = lenient.Int(d)
		case "name":
			li.Name, err = lenient.String(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
}

func decodeTruck(d *jx.Decoder) (*Truck, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var t Truck
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "id" {
			return d.Skip()
		}
		var err error
		t.ID, err = lenient.Int64(d)
		return err
	}); err != nil {
		return nil, err
	}
	if t.ID == 0 {
		return nil, nil
	}
	return &t, nil
}

func decodeItems(d *jx.Decoder) ([]LineItem, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var items []LineItem
	err := d.Arr(func(d *jx.Decoder) error {
		var li LineItem
		if err := li.Decode(d); err != nil {
			return err
		}
		items = append(items, li)
		return nil
	})
	return items, err
}

// Encode writes the server-shaped create payload for the draft. Customer
// defaults are applied, the total is derived from the items, the status is
// always PENDING and date is the creation day.
func (dr Draft) Encode(e *jx.Encoder, date string) {
	c := dr.Customer
	e.ObjStart()

	e.FieldStart("id")
	e.Null()

	e.FieldStart("customer")
	e.ObjStart()
	e.FieldStart("id")
	if c.ID != 0 {
		e.Int64(c.ID)
	} else {
		e.Null()
	}
	e.FieldStart("name")
	e.Str(c.Name)
	e.FieldStart("address")
	e.Str(c.Address)
	e.FieldStart("phoneNumber")
	e.Str(c.PhoneNumber)
	e.FieldStart("type")
	e.Str(orDefault(c.Type, DefaultCustomerType))
	e.FieldStart("state")
	e.Str(orDefault(c.State, DefaultCustomerState))
	e.ObjEnd()

	e.FieldStart("truck")
	if dr.Truck != nil && dr.Truck.ID != 0 {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(dr.Truck.ID)
		e.ObjEnd()
	} else {
		e.Null()
	}

	e.FieldStart("items")
	e.ArrStart()
	for _, item := range dr.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(item.ID)
		e.FieldStart("price")
		e.Raw([]byte(item.Price.String()))
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.FieldStart("name")
		e.Str(item.Name)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("totalPrice")
	e.Raw([]byte(Total(dr.Items).String()))

	e.FieldStart("status")
	e.Str(string(StatusPending))

	e.FieldStart("date")
	e.Str(date)

	e.ObjEnd()
}

// EncodeStatus writes the body of a status update request.
func EncodeStatus(e *jx.Encoder, s Status) {
	e.ObjStart()
	e.FieldStart("status")
	e.Str(string(s))
	e.ObjEnd()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
