package transport

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
)

// Kind classifies a transport failure.
type Kind string

const (
	// KindNetwork means the request was sent but no response was received.
	KindNetwork Kind = "network"
	// KindHTTP means the backend answered with an error status.
	KindHTTP Kind = "http"
	// KindSetup means the request could not be constructed.
	KindSetup Kind = "setup"
)

// Error is returned by Client.Do for every failed request.
type Error struct {
	Kind   Kind
	Method string
	Path   string
	// Status and Body are set for KindHTTP only.
	Status int
	Body   []byte
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	case KindNetwork:
		return fmt.Sprintf("%s %s: no response: %v", e.Method, e.Path, e.Err)
	default:
		return fmt.Sprintf("%s %s: setup: %v", e.Method, e.Path, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusOf returns the HTTP status carried by err, if any.
func StatusOf(err error) (int, bool) {
	var te *Error
	if errors.As(err, &te) && te.Kind == KindHTTP {
		return te.Status, true
	}
	return 0, false
}

// IsNotFound reports whether err is an HTTP 404 from the backend.
func IsNotFound(err error) bool {
	status, ok := StatusOf(err)
	return ok && status == http.StatusNotFound
}
