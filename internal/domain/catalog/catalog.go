package catalog

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderdesk/internal/lenient"
)

// Item is an orderable catalog entry.
type Item struct {
	ID    int64
	Name  string
	Price decimal.Decimal
}

// Page is one page of the item catalog.
type Page struct {
	Content       []Item
	TotalPages    int
	TotalElements int64
	Size          int
	Number        int
}

// EmptyPage is returned in place of a missing catalog page.
func EmptyPage(page, size int) Page {
	return Page{
		Content: []Item{},
		Size:    size,
		Number:  page,
	}
}

// Decode reads an item object.
func (it *Item) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			it.ID, err = lenient.Int64(d)
		case "name":
			it.Name, err = lenient.String(d)
		case "price":
			it.Price, err = lenient.Decimal(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
}

// Decode reads a page object. A bare array is accepted as a single page
// holding every element.
func (p *Page) Decode(d *jx.Decoder) error {
	switch d.Next() {
	case jx.Array:
		items, err := decodeItems(d)
		if err != nil {
			return err
		}
		p.Content = items
		p.TotalElements = int64(len(items))
		p.TotalPages = 1
		p.Size = len(items)
		return nil
	case jx.Object:
	default:
		return errors.Errorf("page: unexpected %s", d.Next())
	}

	p.Content = []Item{}
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "content":
			p.Content, err = decodeItems(d)
		case "totalPages":
			p.TotalPages, err = lenient.Int(d)
		case "totalElements":
			p.TotalElements, err = lenient.Int64(d)
		case "size":
			p.Size, err = lenient.Int(d)
		case "number":
			p.Number, err = lenient.Int(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
}

func decodeItems(d *jx.Decoder) ([]Item, error) {
	items := []Item{}
	if d.Next() == jx.Null {
		return items, d.Null()
	}
	err := d.Arr(func(d *jx.Decoder) error {
		var it Item
		if err := it.Decode(d); err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	return items, err
}
