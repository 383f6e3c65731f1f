package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	recordOne = `{"id":1,"customer":{"id":10,"name":"Ann"},"status":"PENDING","totalPrice":12.5}`
	recordTwo = `{"id":"2","customer":{"id":11,"name":"Bob"},"truck":{"id":3},"status":"DELIVERED"}`
)

func ids(t *testing.T, body string) ([]int64, string) {
	t.Helper()
	records, shapeName := normalize([]byte(body))
	orders := decodeOrders(zap.NewNop(), []byte(body))
	out := make([]int64, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	require.Len(t, records, len(orders))
	return out, shapeName
}

func TestNormalize_Shapes(t *testing.T) {
	for _, tt := range []struct {
		name  string
		body  string
		shape string
		want  []int64
	}{
		{
			name:  "Page",
			body:  `{"content":[` + recordOne + `,` + recordTwo + `],"totalPages":1,"totalElements":2}`,
			shape: "page",
			want:  []int64{1, 2},
		},
		{
			name:  "Array",
			body:  `[` + recordOne + `,` + recordTwo + `]`,
			shape: "array",
			want:  []int64{1, 2},
		},
		{
			name:  "FirstArrayField",
			body:  `{"total":2,"orders":[` + recordOne + `,` + recordTwo + `],"other":[]}`,
			shape: "first-array-field",
			want:  []int64{1, 2},
		},
		{
			name:  "SingleRecord",
			body:  recordOne,
			shape: "single-record",
			want:  []int64{1},
		},
		{
			name:  "PageWinsOverEarlierArray",
			body:  `{"links":[],"content":[` + recordTwo + `]}`,
			shape: "page",
			want:  []int64{2},
		},
		{
			name:  "EmptyPage",
			body:  `{"content":[]}`,
			shape: "page",
			want:  []int64{},
		},
		{
			name:  "RecordWithoutCustomer",
			body:  `{"id":1,"status":"PENDING"}`,
			shape: shapeEmpty,
			want:  []int64{},
		},
		{
			name:  "NullCustomer",
			body:  `{"id":1,"customer":null}`,
			shape: shapeEmpty,
			want:  []int64{},
		},
		{
			name:  "Scalar",
			body:  `"no orders"`,
			shape: shapeEmpty,
			want:  []int64{},
		},
		{
			name:  "EmptyBody",
			body:  ``,
			shape: shapeEmpty,
			want:  []int64{},
		},
		{
			name:  "Garbage",
			body:  `{"content":[`,
			shape: shapeEmpty,
			want:  []int64{},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, shapeName := ids(t, tt.body)
			assert.Equal(t, tt.shape, shapeName)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_ShapeIndependence(t *testing.T) {
	records := recordOne + `,` + recordTwo
	bodies := []string{
		`{"content":[` + records + `]}`,
		`[` + records + `]`,
		`{"data":[` + records + `]}`,
	}

	want := decodeOrders(zap.NewNop(), []byte(bodies[0]))
	require.Len(t, want, 2)
	for _, body := range bodies[1:] {
		assert.Equal(t, want, decodeOrders(zap.NewNop(), []byte(body)), body)
	}
}

func TestDecodeOrders_SkipsMalformedRecords(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	orders := decodeOrders(zap.New(core), []byte(`[`+recordOne+`,{"id":"abc"},7,`+recordTwo+`]`))

	require.Len(t, orders, 2)
	assert.Equal(t, int64(1), orders[0].ID)
	assert.Equal(t, int64(2), orders[1].ID)
	assert.Equal(t, 2, logs.FilterMessage("Skipping malformed order record").Len())
}

func TestDecodeOrders_LenientFields(t *testing.T) {
	orders := decodeOrders(zap.NewNop(), []byte(`[`+recordTwo+`]`))
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, int64(2), o.ID)
	assert.Equal(t, "Bob", o.Customer.Name)
	require.NotNil(t, o.Truck)
	assert.Equal(t, int64(3), o.Truck.ID)
	assert.True(t, o.Delivered())
}
