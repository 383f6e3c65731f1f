package roundtripper

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the per-request identifier to the backend.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// WithRequestID returns a context whose outgoing requests reuse id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext extracts a request ID stored with WithRequestID.
// It returns an empty string if none is present.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// RequestID returns a middleware that stamps every outgoing request with an
// X-Request-ID header. A valid header already set on the request wins, then
// an ID from the context, otherwise a new UUID v4 is generated. Values must
// be at most 128 bytes of printable ASCII (0x20-0x7E).
//
// The request is cloned before the header is set; the caller's request is
// never mutated.
func RequestID() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return Func(func(req *http.Request) (*http.Response, error) {
			id := req.Header.Get(RequestIDHeader)
			if !isValidRequestID(id) {
				id = RequestIDFromContext(req.Context())
			}
			if !isValidRequestID(id) {
				id = uuid.New().String()
			}

			req = req.Clone(req.Context())
			req.Header.Set(RequestIDHeader, id)
			return next.RoundTrip(req)
		})
	}
}

// isValidRequestID checks that id is non-empty, at most 128 bytes, and
// contains only printable ASCII (0x20-0x7E).
func isValidRequestID(id string) bool {
	if len(id) == 0 || len(id) > 128 {
		return false
	}
	for i := range len(id) {
		if id[i] < 0x20 || id[i] > 0x7E {
			return false
		}
	}
	return true
}
