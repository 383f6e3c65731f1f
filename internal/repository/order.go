// Package repository is the order data-access layer. It owns the pending and
// delivered order caches, adapts heterogeneous backend responses, enforces
// the order business rules and reports failures on the event channel.
package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/auth"
	"github.com/xenking/orderdesk/internal/domain/order"
	"github.com/xenking/orderdesk/internal/event"
	"github.com/xenking/orderdesk/internal/transport"
)

const instrumentationName = "github.com/xenking/orderdesk/internal/repository"

// Doer executes backend requests.
type Doer interface {
	Do(ctx context.Context, method, path string, opts ...transport.Option) (*transport.Response, error)
}

// Options configures a Repository. Client is required.
type Options struct {
	Client Doer
	Events event.Emitter
	// Auth is consulted when the backend rejects the credential. Without
	// one, an authentication failure always ends the session.
	Auth   auth.Refresher
	Logger *zap.Logger

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	// Now defaults to time.Now.
	Now func() time.Time
}

// CancelResult reports the outcome of CancelOrder.
type CancelResult struct {
	Success bool
	Message string
}

// Repository is the session-scoped order data-access layer. It is safe for
// concurrent use.
type Repository struct {
	client Doer
	events event.Emitter
	auth   auth.Refresher
	lg     *zap.Logger
	now    func() time.Time
	tracer trace.Tracer

	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
	fetches     metric.Int64Counter

	pending   *cache
	delivered *cache
	polling   atomic.Bool

	bg sync.WaitGroup
}

// New creates a Repository with both caches unset.
func New(opts Options) (*Repository, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}
	if opts.Events == nil {
		opts.Events = event.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = tracenoop.NewTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = metricnoop.NewMeterProvider()
	}

	r := &Repository{
		client: opts.Client,
		events: opts.Events,
		auth:   opts.Auth,
		lg:     opts.Logger,
		now:    opts.Now,
		tracer: opts.TracerProvider.Tracer(instrumentationName),
		pending: newCache("pending", "/orders/pending", func(o order.Order) bool {
			return o.Status != order.StatusDelivered
		}),
		delivered: newCache("delivered", "/orders/delivered", nil),
	}

	meter := opts.MeterProvider.Meter(instrumentationName)
	var err error
	if r.cacheHits, err = meter.Int64Counter("orderdesk.cache.hits",
		metric.WithDescription("Order listings served from cache"),
	); err != nil {
		return nil, errors.Wrap(err, "cache hits counter")
	}
	if r.cacheMisses, err = meter.Int64Counter("orderdesk.cache.misses",
		metric.WithDescription("Order listings that required a backend fetch"),
	); err != nil {
		return nil, errors.Wrap(err, "cache misses counter")
	}
	if r.fetches, err = meter.Int64Counter("orderdesk.backend.fetches",
		metric.WithDescription("Order listing requests sent to the backend"),
	); err != nil {
		return nil, errors.Wrap(err, "backend fetches counter")
	}

	return r, nil
}

// SetPolling toggles polling mode. While on, every listing read bypasses
// the cache.
func (r *Repository) SetPolling(on bool) {
	r.polling.Store(on)
}

// Polling reports whether polling mode is on.
func (r *Repository) Polling() bool {
	return r.polling.Load()
}

// Reset unsets both caches.
func (r *Repository) Reset() {
	r.pending.invalidate()
	r.delivered.invalidate()
}

// Wait blocks until background refreshes, auth recoveries and shared
// fetches abandoned by canceled callers finish.
func (r *Repository) Wait() {
	r.bg.Wait()
}

// PendingOrders returns orders that are not yet delivered.
func (r *Repository) PendingOrders(ctx context.Context, forceRefresh bool) ([]order.Order, error) {
	return r.listing(ctx, r.pending, forceRefresh)
}

// DeliveredOrders returns delivered orders.
func (r *Repository) DeliveredOrders(ctx context.Context, forceRefresh bool) ([]order.Order, error) {
	return r.listing(ctx, r.delivered, forceRefresh)
}

func (r *Repository) listing(ctx context.Context, c *cache, force bool) ([]order.Order, error) {
	ctx, span := r.tracer.Start(ctx, "repository."+c.name+"Orders",
		trace.WithAttributes(attribute.Bool("force", force)),
	)
	defer span.End()

	force = force || r.polling.Load()
	attrs := metric.WithAttributes(attribute.String("cache", c.name))
	if !force {
		if orders, ok := c.get(); ok {
			r.cacheHits.Add(ctx, 1, attrs)
			return orders, nil
		}
	}
	r.cacheMisses.Add(ctx, 1, attrs)

	// The shared fetch outlives a canceled caller, so it stays counted in
	// bg until its result is delivered.
	gen := c.generation()
	r.bg.Add(1)
	ch := c.group.DoChan(c.key(gen), func() (any, error) {
		return r.fetch(context.WithoutCancel(ctx), c, gen, force)
	})
	select {
	case <-ctx.Done():
		go func() {
			<-ch
			r.bg.Done()
		}()
		return nil, ctx.Err()
	case res := <-ch:
		r.bg.Done()
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "fetch failed")
			return nil, res.Err
		}
		orders := res.Val.([]order.Order)
		span.SetAttributes(attribute.Int("orders", len(orders)), attribute.Bool("shared", res.Shared))
		if res.Shared {
			orders = append([]order.Order(nil), orders...)
		}
		return orders, nil
	}
}

// fetch loads a listing and stores it if no invalidation happened meanwhile.
// Concurrent callers for the same generation share one fetch.
func (r *Repository) fetch(ctx context.Context, c *cache, gen uint64, force bool) ([]order.Order, error) {
	var opts []transport.Option
	if force {
		opts = append(opts, transport.Query(r.cacheBuster()))
	}

	r.fetches.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", c.name)))
	resp, err := r.client.Do(ctx, http.MethodGet, c.path, opts...)
	if err != nil {
		r.handleError(ctx, err)
		return nil, err
	}

	orders := c.filter(decodeOrders(r.lg, resp.Body))
	if !c.store(gen, orders) {
		r.lg.Debug("Cache invalidated during fetch, result not stored", zap.String("cache", c.name))
	}
	return orders, nil
}

func (r *Repository) cacheBuster() url.Values {
	return url.Values{"_t": {strconv.FormatInt(r.now().UnixMilli(), 10)}}
}

// CreateOrder submits draft as a new pending order. The total is always
// derived from the draft's items.
func (r *Repository) CreateOrder(ctx context.Context, draft order.Draft) (order.Order, error) {
	ctx, span := r.tracer.Start(ctx, "repository.CreateOrder")
	defer span.End()

	date := r.now().UTC().Format(order.DateLayout)
	e := &jx.Encoder{}
	draft.Encode(e, date)

	resp, err := r.client.Do(ctx, http.MethodPost, "/orders", transport.JSON(e.Bytes()))
	if err != nil {
		r.handleError(ctx, err)
		return order.Order{}, err
	}
	r.pending.invalidate()

	created := order.Order{
		Customer:   draft.Customer,
		Truck:      draft.Truck,
		Items:      draft.Items,
		TotalPrice: order.Total(draft.Items),
		Status:     order.StatusPending,
		Date:       date,
	}
	created.Customer.Type = orDefault(created.Customer.Type, order.DefaultCustomerType)
	created.Customer.State = orDefault(created.Customer.State, order.DefaultCustomerState)
	created = r.decodeOrder(resp.Body, created)

	r.lg.Info("Order created", zap.Int64("order_id", created.ID))
	return created, nil
}

// UpdateOrderStatus sets the status of an order and refreshes both caches.
func (r *Repository) UpdateOrderStatus(ctx context.Context, id int64, status order.Status) (order.Order, error) {
	ctx, span := r.tracer.Start(ctx, "repository.UpdateOrderStatus",
		trace.WithAttributes(attribute.Int64("order_id", id), attribute.String("status", string(status))),
	)
	defer span.End()

	if id <= 0 {
		return order.Order{}, &order.DomainError{Reason: order.ErrMissingID}
	}

	e := &jx.Encoder{}
	order.EncodeStatus(e, status)
	resp, err := r.client.Do(ctx, http.MethodPut, orderPath(id, "status"), transport.JSON(e.Bytes()))
	if err != nil {
		r.handleError(ctx, err)
		return order.Order{}, err
	}

	r.RefreshOrders(ctx)
	return r.decodeOrder(resp.Body, order.Order{ID: id, Status: status}), nil
}

// MarkOrderAsDelivered delivers an order. With truckID zero the order must
// already have a truck; otherwise truckID is assigned first.
func (r *Repository) MarkOrderAsDelivered(ctx context.Context, id, truckID int64) (order.Order, error) {
	ctx, span := r.tracer.Start(ctx, "repository.MarkOrderAsDelivered",
		trace.WithAttributes(attribute.Int64("order_id", id), attribute.Int64("truck_id", truckID)),
	)
	defer span.End()

	if id <= 0 {
		return order.Order{}, &order.DomainError{Reason: order.ErrMissingID}
	}

	var truck *order.Truck
	if truckID == 0 {
		o, err := r.OrderDetails(ctx, id)
		if err != nil {
			return order.Order{}, err
		}
		if !o.HasTruck() {
			return order.Order{}, &order.DomainError{OrderID: id, Reason: order.ErrDeliverWithoutTruck}
		}
		truck = o.Truck
	} else {
		if _, err := r.AssignTruckToOrder(ctx, id, truckID); err != nil {
			return order.Order{}, err
		}
		truck = &order.Truck{ID: truckID}
	}

	resp, err := r.client.Do(ctx, http.MethodPost, orderPath(id, "deliver"))
	if err != nil {
		r.handleError(ctx, err)
		return order.Order{}, err
	}

	r.RefreshOrders(ctx)
	r.lg.Info("Order delivered", zap.Int64("order_id", id), zap.Int64("truck_id", truck.ID))
	return r.decodeOrder(resp.Body, order.Order{ID: id, Truck: truck, Status: order.StatusDelivered}), nil
}

// AssignTruckToOrder assigns a truck to an order. Orders known to be
// delivered are rejected without a backend call.
func (r *Repository) AssignTruckToOrder(ctx context.Context, id, truckID int64) (order.Order, error) {
	ctx, span := r.tracer.Start(ctx, "repository.AssignTruckToOrder",
		trace.WithAttributes(attribute.Int64("order_id", id), attribute.Int64("truck_id", truckID)),
	)
	defer span.End()

	if id <= 0 {
		return order.Order{}, &order.DomainError{Reason: order.ErrMissingID}
	}
	if truckID <= 0 {
		return order.Order{}, &order.DomainError{OrderID: id, Reason: order.ErrMissingTruckID}
	}
	if o, ok := r.delivered.find(id); ok && o.Delivered() {
		return order.Order{}, &order.DomainError{OrderID: id, Reason: order.ErrReassignDelivered}
	}

	resp, err := r.client.Do(ctx, http.MethodPut, orderPath(id, "truck", strconv.FormatInt(truckID, 10)))
	if err != nil {
		r.handleError(ctx, err)
		return order.Order{}, err
	}
	return r.decodeOrder(resp.Body, order.Order{ID: id, Truck: &order.Truck{ID: truckID}}), nil
}

// CancelOrder deletes a pending order. An order the backend no longer knows
// is removed locally and reported as canceled.
func (r *Repository) CancelOrder(ctx context.Context, id int64) (CancelResult, error) {
	ctx, span := r.tracer.Start(ctx, "repository.CancelOrder",
		trace.WithAttributes(attribute.Int64("order_id", id)),
	)
	defer span.End()

	if id <= 0 {
		return CancelResult{}, &order.DomainError{Reason: order.ErrMissingID}
	}

	o, err := r.OrderDetails(ctx, id)
	switch {
	case errors.Is(err, order.ErrNotFound), transport.IsNotFound(err):
		r.lg.Info("Order already absent, removing locally", zap.Int64("order_id", id))
		r.removeLocally(ctx, id)
		return CancelResult{Success: true, Message: fmt.Sprintf("Order %d removed", id)}, nil
	case err != nil:
		return CancelResult{}, err
	}

	if o.Delivered() {
		return CancelResult{}, &order.DomainError{OrderID: id, Reason: order.ErrCancelDelivered}
	}

	if _, err := r.client.Do(ctx, http.MethodDelete, orderPath(id)); err != nil {
		r.lg.Error("Delete order failed", zap.Int64("order_id", id), zap.Error(err))
		r.handleError(ctx, err)
		return CancelResult{}, err
	}

	r.removeLocally(ctx, id)
	return CancelResult{Success: true, Message: fmt.Sprintf("Order %d canceled", id)}, nil
}

// removeLocally evicts an order, announces the cancellation and refreshes.
func (r *Repository) removeLocally(ctx context.Context, id int64) {
	r.pending.evict(id)
	r.delivered.evict(id)
	r.events.Emit(event.OrderCanceledKind, event.OrderCanceled{OrderID: id})
	r.RefreshOrders(ctx)
}

// OrderDetails finds an order in the pending listing, then in the delivered
// one, loading either if unset.
func (r *Repository) OrderDetails(ctx context.Context, id int64) (order.Order, error) {
	pending, err := r.PendingOrders(ctx, false)
	if err != nil {
		return order.Order{}, err
	}
	for _, o := range pending {
		if o.ID == id {
			return o, nil
		}
	}

	delivered, err := r.DeliveredOrders(ctx, false)
	if err != nil {
		return order.Order{}, err
	}
	for _, o := range delivered {
		if o.ID == id {
			return o, nil
		}
	}

	return order.Order{}, &order.NotFoundError{OrderID: id}
}

// RefreshOrders unsets both caches, emits refresh-orders and reloads both
// listings in the background. Reload failures are only logged.
func (r *Repository) RefreshOrders(ctx context.Context) {
	r.Reset()
	r.events.Emit(event.RefreshOrders, nil)

	r.goBackground(ctx, "refresh pending orders", func(ctx context.Context) error {
		_, err := r.PendingOrders(ctx, true)
		return err
	})
	r.goBackground(ctx, "refresh delivered orders", func(ctx context.Context) error {
		_, err := r.DeliveredOrders(ctx, true)
		return err
	})
}

// goBackground runs fn detached from the caller's cancellation.
func (r *Repository) goBackground(ctx context.Context, name string, fn func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		if err := fn(ctx); err != nil {
			r.lg.Warn("Background task failed", zap.String("task", name), zap.Error(err))
		}
	}()
}

// decodeOrder reads an order from a mutation response. The backend does not
// always return one; fallback is used for an empty or unreadable body.
func (r *Repository) decodeOrder(body []byte, fallback order.Order) order.Order {
	if len(body) == 0 {
		return fallback
	}
	var o order.Order
	if err := o.Decode(jx.DecodeBytes(body)); err != nil {
		r.lg.Warn("Unreadable order in response, using request values", zap.Error(err))
		return fallback
	}
	if o.ID == 0 {
		return fallback
	}
	return o
}

func orderPath(id int64, elem ...string) string {
	p := "/orders/" + strconv.FormatInt(id, 10)
	for _, e := range elem {
		p += "/" + url.PathEscape(e)
	}
	return p
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
