// Package roundtripper provides composable client-side http.RoundTripper
// middleware: request identifiers, request logging, panic recovery and a
// local sliding window rate limit.
package roundtripper

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Middleware decorates a RoundTripper.
type Middleware func(http.RoundTripper) http.RoundTripper

// Func adapts an ordinary function to http.RoundTripper.
type Func func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f Func) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Wrap applies middlewares so that the first one listed is the outermost.
func Wrap(rt http.RoundTripper, middlewares ...Middleware) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	for i := len(middlewares) - 1; i >= 0; i-- {
		rt = middlewares[i](rt)
	}
	return rt
}

// LogRequests logs every outgoing request with its outcome using the logger
// carried by the request context.
func LogRequests() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return Func(func(req *http.Request) (*http.Response, error) {
			lg := zctx.From(req.Context())
			start := time.Now()

			resp, err := next.RoundTrip(req)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("request_id", req.Header.Get(RequestIDHeader)),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				lg.Warn("API request failed", append(fields, zap.Error(err))...)
				return nil, err
			}
			fields = append(fields, zap.Int("status", resp.StatusCode))
			if resp.StatusCode >= http.StatusBadRequest {
				lg.Warn("API error response", fields...)
			} else {
				lg.Debug("API request", fields...)
			}
			return resp, nil
		})
	}
}

// InjectLogger stores lg in every request context so later middleware can
// retrieve it with zctx.From.
func InjectLogger(lg *zap.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return Func(func(req *http.Request) (*http.Response, error) {
			return next.RoundTrip(req.WithContext(zctx.Base(req.Context(), lg)))
		})
	}
}
