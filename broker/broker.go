// Package broker is the broker core: it owns the
// listeners, the session/subscription/retained stores, and the
// broadcast pool that fans an inbound PUBLISH out to every matching
// subscriber.
package broker

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/lumenmq/lighthouse/config"
	"github.com/lumenmq/lighthouse/internal/events"
	"github.com/lumenmq/lighthouse/internal/handler"
	persistretained "github.com/lumenmq/lighthouse/internal/persistence/retained"
	persistsession "github.com/lumenmq/lighthouse/internal/persistence/session"
	"github.com/lumenmq/lighthouse/internal/persistence/subscription"
	"github.com/lumenmq/lighthouse/internal/policy"
	"github.com/lumenmq/lighthouse/internal/session"
	"github.com/lumenmq/lighthouse/internal/xlog"
	"github.com/lumenmq/lighthouse/internal/xtrace"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Broker is a running MQTT 3.1.1 broker instance.
type Broker struct {
	cfg    *config.Config
	authz  policy.AuthPolicy
	log    *zap.Logger
	tracer trace.Tracer

	sessions persistsession.Store
	subs     *subscription.Store
	retained *persistretained.Store
	events   *events.Bus

	pool *ants.Pool

	mu       sync.Mutex
	handlers map[string]*handler.BrokerHandler // client_id -> current connection handler
	lastSeen map[string]time.Time              // client_id -> last CONNECT time (reconnect-storm guard)

	tcpListeners []net.Listener
	wsListeners  []*wsListener

	stats Stats

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Broker from cfg. authz may be nil, which is
// equivalent to policy.Anonymous{}.
func New(cfg *config.Config, authz policy.AuthPolicy) (*Broker, error) {
	if authz == nil {
		authz = policy.Anonymous{}
	}

	sessionStore, err := buildSessionStore(cfg.Persistence.Session)
	if err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(int(cfg.Mqtt.ReceiveMax))
	if err != nil {
		return nil, err
	}

	if cfg.Tracing.Enabled {
		tp, err := xtrace.NewTracerProvider(xtrace.ProviderConfig{
			Exporter:    cfg.Tracing.Exporter,
			EndpointURL: cfg.Tracing.EndpointURL,
			ServiceName: cfg.Tracing.ServiceName,
		})
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
	}

	b := &Broker{
		cfg:      cfg,
		authz:    authz,
		log:      xlog.LoggerModule("broker"),
		tracer:   otel.GetTracerProvider().Tracer(xtrace.Name),
		sessions: sessionStore,
		subs:     subscription.NewStore(cfg.Mqtt.MaximumQoS),
		retained: persistretained.NewStore(),
		events:   events.NewBus(),
		pool:     pool,
		handlers: make(map[string]*handler.BrokerHandler),
		lastSeen: make(map[string]time.Time),
		shutdown: make(chan struct{}),
	}
	b.registerStatsObservers()
	return b, nil
}

// On registers an observer for one of the broker's lifecycle events.
func (b *Broker) On(ev events.Event, h events.Handler) { b.events.On(ev, h) }

// Start binds every configured listener and begins accepting
// connections. It returns once every listener is bound; connections are
// served on background goroutines.
func (b *Broker) Start(ctx context.Context) error {
	b.events.Fire(ctx, events.PreStart, true, events.Fields{})

	for _, l := range b.cfg.Listeners.TCP {
		ln, err := net.Listen("tcp", l.Address)
		if err != nil {
			b.log.Error("listen tcp failed", zap.String("addr", l.Address), zap.Error(err))
			return err
		}
		b.log.Info("listening", zap.String("transport", "tcp"), zap.String("addr", l.Address))
		b.tcpListeners = append(b.tcpListeners, ln)
		b.wg.Add(1)
		go b.serveTCP(ln)
	}

	for _, l := range b.cfg.Listeners.WebSocket {
		wl, err := newWSListener(l.Address, b.handleStream)
		if err != nil {
			return err
		}
		b.wsListeners = append(b.wsListeners, wl)
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			_ = wl.serve()
		}()
		b.log.Info("listening", zap.String("transport", "websocket"), zap.String("addr", l.Address))
	}

	b.events.Fire(ctx, events.PostStart, true, events.Fields{})
	return nil
}

// serveTCP is the accept loop, backing off with doubling delay on
// transient Accept errors instead of spinning.
func (b *Broker) serveTCP(ln net.Listener) {
	defer b.wg.Done()
	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := time.Second; tempDelay > max {
					tempDelay = max
				}
				time.Sleep(tempDelay)
				continue
			}
			return
		}
		tempDelay = 0
		go b.handleStream(newTCPStream(conn))
	}
}

// Stop closes every listener, closes every connected client's stream,
// and waits for the listener goroutines to finish, for at most the
// 30-second drain window or until ctx is done, before releasing the
// broadcast pool.
func (b *Broker) Stop(ctx context.Context) error {
	b.events.Fire(ctx, events.PreShutdown, true, events.Fields{})
	close(b.shutdown)

	for _, ln := range b.tcpListeners {
		_ = ln.Close()
	}
	for _, wl := range b.wsListeners {
		_ = wl.close()
	}

	b.mu.Lock()
	for _, h := range b.handlers {
		_ = h.Core().Close()
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	drain := 30 * time.Second
	select {
	case <-done:
	case <-time.After(drain):
		b.log.Warn("shutdown drain window exceeded", zap.Duration("drain", drain))
	case <-ctx.Done():
	}

	b.pool.Release()
	b.events.Fire(ctx, events.PostShutdown, true, events.Fields{})
	return nil
}

func buildSessionStore(s config.Store) (persistsession.Store, error) {
	switch s.Type {
	case "redis":
		return newRedisSessionStore(s.Redis)
	default:
		return persistsession.NewMemoryStore(), nil
	}
}

// sessionByClientID fetches or creates a new session; existed reports whether
// a persisted (non-clean) prior session was found.
func (b *Broker) sessionByClientID(clientID string, cleanSession bool) (sess *session.Session, existed bool) {
	if s, ok := b.sessions.Get(clientID); ok {
		s.Parent = true
		return s, true
	}
	return session.New(clientID, cleanSession), false
}
