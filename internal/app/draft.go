package app

import (
	"io"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/xenking/orderdesk/internal/domain/order"
)

// draftFile is the on-disk form of an order draft. JSON files parse too,
// being valid YAML.
type draftFile struct {
	Customer struct {
		ID          int64  `yaml:"id"`
		Name        string `yaml:"name" validate:"required"`
		Address     string `yaml:"address"`
		PhoneNumber string `yaml:"phoneNumber"`
		Type        string `yaml:"type" validate:"omitempty,len=1"`
		State       string `yaml:"state" validate:"omitempty,len=1"`
	} `yaml:"customer"`
	Truck int64       `yaml:"truck" validate:"gte=0"`
	Items []draftItem `yaml:"items" validate:"dive"`
}

type draftItem struct {
	ID       int64  `yaml:"id" validate:"gt=0"`
	Name     string `yaml:"name"`
	Price    string `yaml:"price" validate:"required,numeric"`
	Quantity int    `yaml:"quantity"`
}

// readDraft decodes a draft document, checks its shape and then the order
// rules of the resulting draft.
func readDraft(r io.Reader) (order.Draft, error) {
	var f draftFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return order.Draft{}, errors.Wrap(err, "decode draft")
	}
	if err := validate.Struct(&f); err != nil {
		return order.Draft{}, errors.Wrap(err, "invalid draft")
	}

	d := order.Draft{
		Customer: order.Customer{
			ID:          f.Customer.ID,
			Name:        f.Customer.Name,
			Address:     f.Customer.Address,
			PhoneNumber: f.Customer.PhoneNumber,
			Type:        f.Customer.Type,
			State:       f.Customer.State,
		},
		Items: make([]order.LineItem, 0, len(f.Items)),
	}
	if f.Truck > 0 {
		d.Truck = &order.Truck{ID: f.Truck}
	}
	for i, item := range f.Items {
		price, err := decimal.NewFromString(item.Price)
		if err != nil {
			return order.Draft{}, errors.Wrapf(err, "item %d price", i)
		}
		d.Items = append(d.Items, order.LineItem{
			ID:       item.ID,
			Name:     item.Name,
			Price:    price,
			Quantity: item.Quantity,
		})
	}
	if err := d.Validate(); err != nil {
		return order.Draft{}, errors.Wrap(err, "invalid draft")
	}
	return d, nil
}
