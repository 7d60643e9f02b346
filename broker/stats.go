package broker

import (
	"context"
	"sync/atomic"

	"github.com/lumenmq/lighthouse/internal/events"
)

// Stats holds cheap in-memory counters. ConnectedClients and
// MessagesReceived are updated from the event bus; MessagesSent is
// incremented directly on each delivery to a subscriber. The
// $SYS telemetry publisher that would normally expose these is out of
// scope; Stats is the ambient counter layer that survives without it.
type Stats struct {
	ConnectedClients int64
	MessagesReceived int64
	MessagesSent     int64
}

// Stats returns a point-in-time snapshot of the broker's counters.
func (b *Broker) Stats() Stats {
	return Stats{
		ConnectedClients: atomic.LoadInt64(&b.stats.ConnectedClients),
		MessagesReceived: atomic.LoadInt64(&b.stats.MessagesReceived),
		MessagesSent:     atomic.LoadInt64(&b.stats.MessagesSent),
	}
}

// registerStatsObservers wires the counters to the lifecycle events that
// move them. Called once from New.
func (b *Broker) registerStatsObservers() {
	b.On(events.ClientConnected, func(context.Context, events.Fields) error {
		atomic.AddInt64(&b.stats.ConnectedClients, 1)
		return nil
	})
	b.On(events.ClientDisconnected, func(context.Context, events.Fields) error {
		atomic.AddInt64(&b.stats.ConnectedClients, -1)
		return nil
	})
	b.On(events.MessageReceived, func(context.Context, events.Fields) error {
		atomic.AddInt64(&b.stats.MessagesReceived, 1)
		return nil
	})
}
