package roundtripper

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// ErrPanic is wrapped by the error returned when a RoundTripper panics.
var ErrPanic = errors.New("round trip panicked")

// Recovery returns a middleware that converts a panic in the wrapped
// RoundTripper into an error, logging it with a stack trace.
func Recovery() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return Func(func(req *http.Request) (resp *http.Response, err error) {
			defer func() {
				if rec := recover(); rec != nil {
					lg := zctx.From(req.Context())
					lg.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("path", req.URL.Path),
						zap.Stack("stack"),
					)
					resp = nil
					err = errors.Wrapf(ErrPanic, "%s %s: %v", req.Method, req.URL.Path, rec)
				}
			}()
			return next.RoundTrip(req)
		})
	}
}
