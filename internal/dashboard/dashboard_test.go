package dashboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/orderdesk/internal/credential"
	"github.com/xenking/orderdesk/internal/domain/order"
	"github.com/xenking/orderdesk/internal/transport"
)

var testNow = time.Date(2026, 5, 2, 23, 30, 0, 0, time.UTC)

type captured struct {
	path   string
	query  url.Values
	accept string
}

func newService(t *testing.T, h http.HandlerFunc) (*Service, *captured) {
	t.Helper()

	var c captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c = captured{path: r.URL.Path, query: r.URL.Query(), accept: r.Header.Get("Accept")}
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	lg := zaptest.NewLogger(t)
	client, err := transport.New(transport.Config{BaseURL: srv.URL},
		credential.NewMemoryStore(credential.Credentials{Token: "tok"}), lg)
	require.NoError(t, err)

	s := NewService(client, lg)
	s.now = func() time.Time { return testNow }
	return s, &c
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestDayOf(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	assert.Equal(t, Day("2026-05-01"), DayOf(time.Date(2026, 5, 2, 1, 0, 0, 0, loc)))
	assert.Equal(t, "2026-05-02", Day("").resolve(func() time.Time { return testNow }))
	assert.Equal(t, "2025-12-31", Day("2025-12-31").resolve(time.Now))
}

func TestService_Statistics(t *testing.T) {
	s, c := newService(t, jsonHandler(`{"totalOrders":12,"pendingOrders":3}`))

	raw, err := s.Statistics(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"totalOrders":12,"pendingOrders":3}`, string(raw))
	assert.Equal(t, "/dashboard/statistics", c.path)
}

func TestService_Sales(t *testing.T) {
	ctx := context.Background()
	s, c := newService(t, jsonHandler(`[{"truckId":1,"total":10.5}]`))

	for _, tt := range []struct {
		name  string
		call  func() error
		path  string
		param string
		want  string
	}{
		{
			name: "DailyToday",
			call: func() error {
				_, err := s.DailySales(ctx, "")
				return err
			},
			path:  "/dashboard/truck-sales/daily",
			param: "date",
			want:  "2026-05-02",
		},
		{
			name: "WeeklyFromTime",
			call: func() error {
				_, err := s.WeeklySales(ctx, DayOf(time.Date(2026, 4, 27, 12, 0, 0, 0, time.UTC)))
				return err
			},
			path:  "/dashboard/truck-sales/weekly",
			param: "startDate",
			want:  "2026-04-27",
		},
		{
			name: "MonthlyPassThrough",
			call: func() error {
				_, err := s.MonthlySales(ctx, "2026-04-01")
				return err
			},
			path:  "/dashboard/truck-sales/monthly",
			param: "date",
			want:  "2026-04-01",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.call())
			assert.Equal(t, tt.path, c.path)
			assert.Equal(t, tt.want, c.query.Get(tt.param))
		})
	}
}

func TestService_InvalidJSON(t *testing.T) {
	s, _ := newService(t, jsonHandler(`<html>`))

	_, err := s.Statistics(context.Background())
	require.Error(t, err)
}

func TestService_ErrorPropagates(t *testing.T) {
	s, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := s.MonthlySales(context.Background(), "")
	status, ok := transport.StatusOf(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestService_DailySalesPDF(t *testing.T) {
	s, c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	})

	a, err := s.DailySalesPDF(context.Background(), "2026-04-30")
	require.NoError(t, err)
	assert.Equal(t, "/dashboard/truck-sales/daily/pdf", c.path)
	assert.Equal(t, "2026-04-30", c.query.Get("date"))
	assert.Equal(t, pdfContentType, c.accept)
	assert.Equal(t, "truck-sales-2026-04-30.pdf", a.Filename)
	assert.Equal(t, "application/pdf", a.ContentType)
	assert.Equal(t, []byte("%PDF-1.7"), a.Data)
}

func TestService_TruckDeliveryReport(t *testing.T) {
	s, c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="../../delivery-7.pdf"`)
		_, _ = w.Write([]byte("%PDF-1.4"))
	})

	a, err := s.TruckDeliveryReport(context.Background(), 7, "2026-04-01", "")
	require.NoError(t, err)
	assert.Equal(t, "/reports/truck-delivery", c.path)
	assert.Equal(t, "7", c.query.Get("truckId"))
	assert.Equal(t, "2026-04-01", c.query.Get("startDate"))
	assert.Equal(t, "2026-05-02", c.query.Get("endDate"))
	assert.Equal(t, "delivery-7.pdf", a.Filename)
	assert.Equal(t, pdfContentType, a.ContentType)

	_, err = s.TruckDeliveryReport(context.Background(), 0, "", "")
	require.ErrorIs(t, err, order.ErrMissingTruckID)
}

func TestArtifact_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	a := Artifact{Filename: "sub/../report.pdf", Data: []byte("%PDF")}

	path, err := a.Save(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report.pdf"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)

	_, err = Artifact{Filename: ""}.Save(dir)
	require.Error(t, err)
}
