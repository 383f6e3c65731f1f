package repository

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/orderdesk/internal/auth"
	"github.com/xenking/orderdesk/internal/credential"
	"github.com/xenking/orderdesk/internal/event"
	"github.com/xenking/orderdesk/internal/transport"
)

var testNow = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

type route struct {
	status int
	body   string
	// gate, when set, holds the response until it is closed.
	gate chan struct{}
}

type request struct {
	key   string
	query url.Values
	body  string
}

// backend is a fake order backend that records every request it receives.
type backend struct {
	mu       sync.Mutex
	routes   map[string]route
	requests []request
}

func newBackend() *backend {
	return &backend{routes: make(map[string]route)}
}

func (b *backend) set(method, path string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[method+" "+path] = route{status: status, body: body}
}

func (b *backend) setGated(method, path, body string, gate chan struct{}) {
	b.setGatedStatus(method, path, http.StatusOK, body, gate)
}

func (b *backend) setGatedStatus(method, path string, status int, body string, gate chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[method+" "+path] = route{status: status, body: body, gate: gate}
}

func (b *backend) count(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int
	for _, r := range b.requests {
		if r.key == method+" "+path {
			n++
		}
	}
	return n
}

func (b *backend) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, len(b.requests))
	for i, r := range b.requests {
		keys[i] = r.key
	}
	return keys
}

func (b *backend) last(method, path string) request {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.requests) - 1; i >= 0; i-- {
		if b.requests[i].key == method+" "+path {
			return b.requests[i]
		}
	}
	return request{}
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	key := r.Method + " " + r.URL.Path

	b.mu.Lock()
	b.requests = append(b.requests, request{key: key, query: r.URL.Query(), body: string(data)})
	rt, ok := b.routes[key]
	b.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if rt.gate != nil {
		<-rt.gate
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rt.status)
	_, _ = io.WriteString(w, rt.body)
}

type recorded struct {
	kind    event.Kind
	payload any
}

// recorder is an event.Emitter that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []recorded
}

func (r *recorder) Emit(kind event.Kind, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{kind: kind, payload: payload})
}

func (r *recorder) of(kind event.Kind) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.events {
		if e.kind == kind {
			out = append(out, e.payload)
		}
	}
	return out
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.events...)
}

// fakeAuth is an auth.Refresher with a canned refresh outcome.
type fakeAuth struct {
	token     string
	err       error
	refreshes atomic.Int32
	logouts   atomic.Int32
}

var _ auth.Refresher = (*fakeAuth)(nil)

func (f *fakeAuth) RefreshToken(context.Context) (string, error) {
	f.refreshes.Add(1)
	return f.token, f.err
}

func (f *fakeAuth) Logout(context.Context) error {
	f.logouts.Add(1)
	return nil
}

type fixture struct {
	repo    *Repository
	backend *backend
	events  *recorder
	server  *httptest.Server
}

func newFixture(t *testing.T, refresher auth.Refresher) *fixture {
	t.Helper()

	b := newBackend()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	return newFixtureWithServer(t, b, srv, refresher)
}

func newFixtureWithServer(t *testing.T, b *backend, srv *httptest.Server, refresher auth.Refresher) *fixture {
	t.Helper()

	lg := zaptest.NewLogger(t)
	store := credential.NewMemoryStore(credential.Credentials{Token: "tok", RefreshToken: "ref"})
	client, err := transport.New(transport.Config{BaseURL: srv.URL}, store, lg)
	require.NoError(t, err)

	events := &recorder{}
	opts := Options{
		Client: client,
		Events: events,
		Auth:   refresher,
		Logger: lg,
		Now:    func() time.Time { return testNow },
	}
	repo, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(repo.Wait)

	return &fixture{repo: repo, backend: b, events: events, server: srv}
}
