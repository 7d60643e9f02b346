// Package events is the lifecycle event bus: a closed
// set of named events dispatched to every registered observer. A waiting
// caller gets its observers run in registration order; without waiting,
// each observer runs on its own goroutine and their runs may overlap.
// Observer failures are logged and isolated from the caller.
package events

import (
	"context"
	"sync"

	"github.com/lumenmq/lighthouse/internal/xlog"
	"go.uber.org/zap"
)

// Event names one of the broker/client lifecycle events.
type Event string

const (
	PreStart           Event = "PreStart"
	PostStart          Event = "PostStart"
	PreShutdown        Event = "PreShutdown"
	PostShutdown       Event = "PostShutdown"
	ClientConnected    Event = "ClientConnected"
	ClientDisconnected Event = "ClientDisconnected"
	ClientSubscribed   Event = "ClientSubscribed"
	ClientUnsubscribed Event = "ClientUnsubscribed"
	MessageReceived    Event = "MessageReceived"
	PacketReceived     Event = "PacketReceived"
	PacketSent         Event = "PacketSent"
)

// Fields is the minimal tuple an observer needs; not every event
// populates every field.
type Fields struct {
	ClientID string
	Topic    string
	QoS      byte
	Packet   interface{}
	Session  interface{}
	Message  interface{}
	Err      error
}

// Handler is the closed observer signature: (ctx, fields) -> error.
type Handler func(ctx context.Context, f Fields) error

// Bus dispatches events to registered observers.
type Bus struct {
	mu        sync.RWMutex
	observers map[Event][]Handler
	log       *zap.Logger
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{
		observers: make(map[Event][]Handler),
		log:       xlog.LoggerModule("events"),
	}
}

// On registers h to be called whenever ev fires.
func (b *Bus) On(ev Event, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers[ev] = append(b.observers[ev], h)
}

// Fire dispatches ev to every registered observer. When wait is true,
// Fire runs the observers one after another in registration order on the
// caller's goroutine and returns once the last has returned; otherwise
// each observer runs in its own goroutine and Fire returns immediately.
func (b *Bus) Fire(ctx context.Context, ev Event, wait bool, f Fields) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.observers[ev]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	if wait {
		for _, h := range handlers {
			b.invoke(ctx, ev, h, f)
		}
		return
	}

	for _, h := range handlers {
		h := h
		go b.invoke(ctx, ev, h, f)
	}
}

func (b *Bus) invoke(ctx context.Context, ev Event, h Handler, f Fields) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("observer panicked", zap.String("event", string(ev)), zap.Any("recover", r))
		}
	}()
	if err := h(ctx, f); err != nil {
		b.log.Warn("observer failed", zap.String("event", string(ev)), zap.Error(err))
	}
}
