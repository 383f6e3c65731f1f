// Package dashboard fetches aggregate statistics, sales breakdowns and PDF
// reports. Nothing here is cached.
package dashboard

import (
	"context"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/domain/order"
	"github.com/xenking/orderdesk/internal/transport"
)

const pdfContentType = "application/pdf"

// Day is a calendar day in the backend's YYYY-MM-DD form. The zero Day means
// today.
type Day string

// DayOf returns the UTC calendar day of t.
func DayOf(t time.Time) Day {
	return Day(t.UTC().Format(order.DateLayout))
}

func (d Day) resolve(now func() time.Time) string {
	if d == "" {
		return string(DayOf(now()))
	}
	return string(d)
}

// Artifact is a downloaded binary report.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Save writes the artifact into dir and returns the file path. Only the base
// name of Filename is used.
func (a Artifact) Save(dir string) (string, error) {
	name := filepath.Base(a.Filename)
	if name == "." || name == string(filepath.Separator) {
		return "", errors.Errorf("invalid artifact filename %q", a.Filename)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create report dir")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, a.Data, 0o644); err != nil {
		return "", errors.Wrap(err, "write report")
	}
	return path, nil
}

// Doer executes backend requests.
type Doer interface {
	Do(ctx context.Context, method, path string, opts ...transport.Option) (*transport.Response, error)
}

// Service wraps the dashboard and report endpoints.
type Service struct {
	client Doer
	lg     *zap.Logger
	now    func() time.Time
}

// NewService creates a Service.
func NewService(client Doer, lg *zap.Logger) *Service {
	return &Service{
		client: client,
		lg:     lg,
		now:    time.Now,
	}
}

// Statistics returns the aggregate dashboard statistics.
func (s *Service) Statistics(ctx context.Context) (jx.Raw, error) {
	return s.getJSON(ctx, "dashboard statistics", "/dashboard/statistics", nil)
}

// DailySales returns per-truck sales for one day.
func (s *Service) DailySales(ctx context.Context, date Day) (jx.Raw, error) {
	return s.getJSON(ctx, "daily sales", "/dashboard/truck-sales/daily",
		url.Values{"date": {date.resolve(s.now)}})
}

// WeeklySales returns per-truck sales for the week starting at startDate.
func (s *Service) WeeklySales(ctx context.Context, startDate Day) (jx.Raw, error) {
	return s.getJSON(ctx, "weekly sales", "/dashboard/truck-sales/weekly",
		url.Values{"startDate": {startDate.resolve(s.now)}})
}

// MonthlySales returns per-truck sales for the month containing date.
func (s *Service) MonthlySales(ctx context.Context, date Day) (jx.Raw, error) {
	return s.getJSON(ctx, "monthly sales", "/dashboard/truck-sales/monthly",
		url.Values{"date": {date.resolve(s.now)}})
}

// DailySalesPDF downloads the daily sales report.
func (s *Service) DailySalesPDF(ctx context.Context, date Day) (Artifact, error) {
	day := date.resolve(s.now)
	return s.getPDF(ctx, "daily sales report", "/dashboard/truck-sales/daily/pdf",
		url.Values{"date": {day}},
		"truck-sales-"+day+".pdf",
	)
}

// TruckDeliveryReport downloads the delivery report of one truck between
// start and end inclusive.
func (s *Service) TruckDeliveryReport(ctx context.Context, truckID int64, start, end Day) (Artifact, error) {
	if truckID <= 0 {
		return Artifact{}, &order.DomainError{Reason: order.ErrMissingTruckID}
	}
	from, to := start.resolve(s.now), end.resolve(s.now)
	id := strconv.FormatInt(truckID, 10)
	return s.getPDF(ctx, "truck delivery report", "/reports/truck-delivery",
		url.Values{"truckId": {id}, "startDate": {from}, "endDate": {to}},
		"truck-delivery-"+id+"-"+from+"-"+to+".pdf",
	)
}

func (s *Service) getJSON(ctx context.Context, what, path string, q url.Values) (jx.Raw, error) {
	var opts []transport.Option
	if q != nil {
		opts = append(opts, transport.Query(q))
	}
	resp, err := s.client.Do(ctx, http.MethodGet, path, opts...)
	if err != nil {
		s.lg.Error("Error fetching "+what, zap.Error(err))
		return nil, err
	}
	if !jx.Valid(resp.Body) {
		return nil, errors.Errorf("%s: invalid JSON response", what)
	}
	return jx.Raw(resp.Body), nil
}

func (s *Service) getPDF(ctx context.Context, what, path string, q url.Values, fallbackName string) (Artifact, error) {
	resp, err := s.client.Do(ctx, http.MethodGet, path, transport.Query(q), transport.Accept(pdfContentType))
	if err != nil {
		s.lg.Error("Error downloading "+what, zap.Error(err))
		return Artifact{}, err
	}

	a := Artifact{
		Filename:    fallbackName,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        resp.Body,
	}
	if a.ContentType == "" {
		a.ContentType = pdfContentType
	}
	if name := attachmentName(resp.Header.Get("Content-Disposition")); name != "" {
		a.Filename = name
	}
	s.lg.Debug("Downloaded "+what,
		zap.String("filename", a.Filename),
		zap.Int("bytes", len(a.Data)),
	)
	return a, nil
}

func attachmentName(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil || params["filename"] == "" {
		return ""
	}
	return filepath.Base(params["filename"])
}
