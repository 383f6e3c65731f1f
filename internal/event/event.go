// Package event is the process-wide notification channel that decouples the
// data layer from its consumers.
package event

import (
	"fmt"
	"sync"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// Kind names an event.
type Kind string

// Event kinds emitted by the data layer.
const (
	// AuthError has no payload. The session has been logged out.
	AuthError Kind = "auth-error"
	// APIErrorKind carries an APIError.
	APIErrorKind Kind = "api-error"
	// RefreshOrders has no payload. Order caches were invalidated.
	RefreshOrders Kind = "refresh-orders"
	// OrderCanceledKind carries an OrderCanceled.
	OrderCanceledKind Kind = "order-canceled"
)

// APIError is the payload of an api-error event.
type APIError struct {
	Message string
	// Details is the raw response body, if the backend sent one.
	Details jx.Raw
}

// OrderCanceled is the payload of an order-canceled event.
type OrderCanceled struct {
	OrderID int64
}

// Emitter publishes events. Emission never fails and never blocks on I/O.
type Emitter interface {
	Emit(kind Kind, payload any)
}

// Handler receives an event payload, nil for kinds without one.
type Handler func(payload any)

type subscription struct {
	id uint64
	fn Handler
}

// Bus is an in-process Emitter with per-kind subscriptions.
//
// Handlers run synchronously on the emitting goroutine, in subscription
// order. A handler that panics is logged and does not affect the others.
type Bus struct {
	lg *zap.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[Kind][]subscription
}

// NewBus creates an empty Bus.
func NewBus(lg *zap.Logger) *Bus {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Bus{
		lg:   lg,
		subs: make(map[Kind][]subscription),
	}
}

// Subscribe registers fn for kind. The returned function removes it and is
// safe to call more than once.
func (b *Bus) Subscribe(kind Kind, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(kind, id) })
	}
}

func (b *Bus) remove(kind Kind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[kind]
	for i, s := range subs {
		if s.id == id {
			// Copy so snapshots held by in-progress Emit calls stay intact.
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			b.subs[kind] = next
			return
		}
	}
}

// Emit implements Emitter.
func (b *Bus) Emit(kind Kind, payload any) {
	b.mu.RLock()
	subs := b.subs[kind]
	b.mu.RUnlock()

	for _, s := range subs {
		b.dispatch(kind, s.fn, payload)
	}
}

func (b *Bus) dispatch(kind Kind, fn Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.lg.Error("Event handler panicked",
				zap.String("kind", string(kind)),
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"),
			)
		}
	}()
	fn(payload)
}

// Nop discards every event.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(Kind, any) {}
