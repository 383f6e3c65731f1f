package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/auth"
	"github.com/xenking/orderdesk/internal/credential"
	"github.com/xenking/orderdesk/internal/dashboard"
	"github.com/xenking/orderdesk/internal/event"
	"github.com/xenking/orderdesk/internal/repository"
	"github.com/xenking/orderdesk/internal/transport"
	"github.com/xenking/orderdesk/pkg/roundtripper"
)

// Session is the wired client layer: one credential store, one event bus and
// the services sharing them.
type Session struct {
	Store     credential.Store
	Events    *event.Bus
	Auth      *auth.Service
	Orders    *repository.Repository
	Dashboard *dashboard.Service

	lg          *zap.Logger
	unsubscribe []func()
}

// Providers instrument the session. Both may be nil.
type Providers struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// NewSession wires the client layer from cfg. The rate limiter cleanup stops
// with ctx.
func NewSession(ctx context.Context, lg *zap.Logger, cfg *Config, store credential.Store, tel Providers) (*Session, error) {
	var middlewares []roundtripper.Middleware
	middlewares = append(middlewares,
		roundtripper.Recovery(),
		roundtripper.RequestID(),
		roundtripper.LogRequests(),
	)
	if cfg.RateLimit.Max > 0 {
		middlewares = append(middlewares, roundtripper.RateLimitWithCleanup(ctx, roundtripper.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}))
	}

	client, err := transport.New(transport.Config{
		BaseURL:        cfg.BaseURL,
		AuthPrefix:     cfg.AuthPrefix,
		Timeout:        cfg.Timeout,
		Middlewares:    middlewares,
		TracerProvider: tel.TracerProvider,
		MeterProvider:  tel.MeterProvider,
	}, store, lg.Named("transport"))
	if err != nil {
		return nil, errors.Wrap(err, "create transport")
	}

	bus := event.NewBus(lg.Named("events"))
	authSvc := auth.NewService(client, store, cfg.AuthPrefix, lg.Named("auth"))

	orders, err := repository.New(repository.Options{
		Client:         client,
		Events:         bus,
		Auth:           authSvc,
		Logger:         lg.Named("orders"),
		TracerProvider: tel.TracerProvider,
		MeterProvider:  tel.MeterProvider,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create repository")
	}

	s := &Session{
		Store:     store,
		Events:    bus,
		Auth:      authSvc,
		Orders:    orders,
		Dashboard: dashboard.NewService(client, lg.Named("dashboard")),
		lg:        lg,
	}
	s.subscribe()
	return s, nil
}

// subscribe reports bus notifications the way a UI shell would surface them.
func (s *Session) subscribe() {
	s.unsubscribe = append(s.unsubscribe,
		s.Events.Subscribe(event.AuthError, func(any) {
			s.lg.Warn("Session expired, log in again")
		}),
		s.Events.Subscribe(event.APIErrorKind, func(payload any) {
			e, ok := payload.(event.APIError)
			if !ok {
				return
			}
			fields := []zap.Field{zap.String("message", e.Message)}
			if len(e.Details) > 0 {
				fields = append(fields, zap.ByteString("details", e.Details))
			}
			s.lg.Warn("Backend request failed", fields...)
		}),
		s.Events.Subscribe(event.OrderCanceledKind, func(payload any) {
			if e, ok := payload.(event.OrderCanceled); ok {
				s.lg.Info("Order canceled", zap.Int64("order_id", e.OrderID))
			}
		}),
		s.Events.Subscribe(event.RefreshOrders, func(any) {
			s.lg.Debug("Order caches invalidated")
		}),
	)
}

// Login stores credentials obtained out of band.
func (s *Session) Login(ctx context.Context, token, refreshToken string) error {
	if token == "" {
		return errors.New("token is required")
	}
	if err := s.Store.Save(ctx, credential.Credentials{Token: token, RefreshToken: refreshToken}); err != nil {
		return errors.Wrap(err, "save credentials")
	}
	return nil
}

// Logout clears the credentials and the order caches.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.Auth.Logout(ctx); err != nil {
		return errors.Wrap(err, "logout")
	}
	s.Orders.Reset()
	return nil
}

// Close waits for background work and detaches the bus subscribers.
func (s *Session) Close() {
	s.Orders.Wait()
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
}
