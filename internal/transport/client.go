// Package transport is the configured HTTP client used to reach the order
// backend. It attaches the bearer credential, classifies failures and does
// nothing else: no retries, no body transformation.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/credential"
	"github.com/xenking/orderdesk/pkg/roundtripper"
)

// DefaultAuthPrefix marks endpoints that never receive a bearer credential.
const DefaultAuthPrefix = "/auth"

// Config holds transport settings.
type Config struct {
	// BaseURL is prepended to every request path.
	BaseURL string
	// AuthPrefix is the path prefix exempt from the bearer credential.
	// Defaults to DefaultAuthPrefix.
	AuthPrefix string
	// Timeout bounds a whole request including reading the body.
	// Zero means no timeout.
	Timeout time.Duration
	// Base is the innermost RoundTripper. Defaults to http.DefaultTransport.
	Base http.RoundTripper
	// Middlewares wrap the instrumented transport, outermost first.
	Middlewares []roundtripper.Middleware

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Response is a fully read backend response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Client executes backend requests.
type Client struct {
	base       *url.URL
	authPrefix string
	http       *http.Client
	creds      credential.Store
	lg         *zap.Logger
}

// New creates a Client. creds supplies the bearer token on every request.
func New(cfg Config, creds credential.Store, lg *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.AuthPrefix == "" {
		cfg.AuthPrefix = DefaultAuthPrefix
	}

	var otelOpts []otelhttp.Option
	if cfg.TracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(cfg.MeterProvider))
	}
	inner := cfg.Base
	if inner == nil {
		inner = http.DefaultTransport
	}
	middlewares := append([]roundtripper.Middleware{roundtripper.InjectLogger(lg)}, cfg.Middlewares...)

	return &Client{
		base:       base,
		authPrefix: cfg.AuthPrefix,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: roundtripper.Wrap(otelhttp.NewTransport(inner, otelOpts...), middlewares...),
		},
		creds: creds,
		lg:    lg,
	}, nil
}

// Option customizes a single request.
type Option func(*request)

type request struct {
	query  url.Values
	body   []byte
	accept string
}

// Query sets the query string.
func Query(v url.Values) Option {
	return func(r *request) { r.query = v }
}

// JSON sets a JSON request body.
func JSON(body []byte) Option {
	return func(r *request) { r.body = body }
}

// Accept overrides the Accept header, e.g. for binary artifacts.
func Accept(mime string) Option {
	return func(r *request) { r.accept = mime }
}

// Do executes a request against path, which is relative to the base URL.
// Any failure is returned as *Error.
func (c *Client) Do(ctx context.Context, method, path string, opts ...Option) (*Response, error) {
	r := request{accept: "application/json"}
	for _, o := range opts {
		o(&r)
	}
	fail := func(kind Kind, err error) (*Response, error) {
		return nil, &Error{Kind: kind, Method: method, Path: path, Err: err}
	}

	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = r.query.Encode()

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fail(KindSetup, err)
	}
	req.Header.Set("Accept", r.accept)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if !strings.HasPrefix(path, c.authPrefix) {
		creds, err := c.creds.Load(ctx)
		if err != nil {
			return fail(KindSetup, errors.Wrap(err, "load credentials"))
		}
		if creds.Token != "" {
			req.Header.Set("Authorization", "Bearer "+creds.Token)
		} else {
			c.lg.Warn("No token found in credential store", zap.String("path", path))
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var rlErr *roundtripper.RateLimitError
		if errors.As(err, &rlErr) {
			return fail(KindSetup, err)
		}
		return fail(KindNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(KindNetwork, errors.Wrap(err, "read body"))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &Error{
			Kind:   KindHTTP,
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   data,
		}
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
	}, nil
}
