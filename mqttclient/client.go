// Package mqttclient is the client core: the
// mirror-image of the broker's connection handling, driven by an
// application instead of a broadcast pool. connect() performs the
// CONNECT/CONNACK handshake, after which publish/subscribe/unsubscribe
// and inbound delivery all run through the same handler.ClientHandler
// machinery the broker uses on its side of the wire.
package mqttclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lumenmq/lighthouse/internal/code"
	"github.com/lumenmq/lighthouse/internal/handler"
	"github.com/lumenmq/lighthouse/internal/packet"
	"github.com/lumenmq/lighthouse/internal/session"
	"github.com/lumenmq/lighthouse/internal/stream"
	"github.com/lumenmq/lighthouse/internal/xerror"
	"github.com/lumenmq/lighthouse/internal/xlog"
	"go.uber.org/zap"
)

// Options configures a Connect call.
type Options struct {
	ClientID     string
	CleanSession bool
	Username     string
	Password     string
	KeepAlive    time.Duration
	Will         *session.Will
	// ConnectTimeout bounds how long Connect waits for CONNACK.
	ConnectTimeout time.Duration
	// ReconnectBackoff configures Reconnect's exponential backoff; zero
	// values fall back to sensible defaults (see withDefaults).
	ReconnectMinBackoff time.Duration
	ReconnectMaxBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.ReconnectMinBackoff == 0 {
		o.ReconnectMinBackoff = 250 * time.Millisecond
	}
	if o.ReconnectMaxBackoff == 0 {
		o.ReconnectMaxBackoff = 30 * time.Second
	}
	return o
}

// Client is a connected MQTT 3.1.1 client session.
type Client struct {
	uri  string
	opts Options
	log  *zap.Logger

	mu        sync.Mutex
	sess      *session.Session
	ch        *handler.ClientHandler
	connected chan struct{} // closed once CONNACK arrives; replaced on reconnect

	connackCh chan *packet.Connack

	waitersMu  sync.Mutex
	subWaiters map[uint16]chan *packet.Suback
	unsWaiters map[uint16]chan *packet.Unsuback
	pingWaiter chan struct{}

	inbox *session.Queue

	runCtx    context.Context
	runCancel context.CancelFunc
}

// Connect dials uri (mqtt://, mqtts://, ws:// or wss://), performs the
// CONNECT/CONNACK handshake, and returns a ready-to-use Client.
func Connect(ctx context.Context, uri string, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	if opts.ClientID == "" {
		return nil, fmt.Errorf("mqttclient: ClientID is required")
	}

	c := &Client{
		uri:        uri,
		opts:       opts,
		log:        xlog.LoggerModule("mqttclient"),
		subWaiters: make(map[uint16]chan *packet.Suback),
		unsWaiters: make(map[uint16]chan *packet.Unsuback),
		inbox:      session.NewQueue(),
	}
	if err := c.dialAndHandshake(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) dialAndHandshake(ctx context.Context) error {
	str, err := dial(ctx, c.uri)
	if err != nil {
		return err
	}

	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil || c.opts.CleanSession {
		sess = session.New(c.opts.ClientID, c.opts.CleanSession)
	}
	sess.Username = c.opts.Username
	sess.Will = c.opts.Will
	sess.KeepAlive = c.opts.KeepAlive

	connect := &packet.Connect{
		ProtocolName:  []byte("MQTT"),
		ProtocolLevel: byte(packet.V311),
		Version:       packet.V311,
		ConnectFlags: packet.ConnectFlags{
			CleanSession: c.opts.CleanSession,
			UsernameFlag: c.opts.Username != "",
			PasswordFlag: c.opts.Username != "" && c.opts.Password != "",
		},
		KeepAlive: uint16(c.opts.KeepAlive / time.Second),
		ClientId:  []byte(c.opts.ClientID),
		Username:  []byte(c.opts.Username),
		Password:  []byte(c.opts.Password),
	}
	if c.opts.Will != nil {
		connect.WillFlag = true
		connect.WillQoS = c.opts.Will.QoS
		connect.WillRetain = c.opts.Will.Retain
		connect.WillTopic = []byte(c.opts.Will.Topic)
		connect.WillMessage = c.opts.Will.Message
	}
	if err := connect.Encode(str); err != nil {
		_ = str.Close()
		return err
	}

	pk, err := packet.Decode(str)
	if err != nil {
		_ = str.Close()
		return err
	}
	ack, ok := pk.(*packet.Connack)
	if !ok {
		_ = str.Close()
		return xerror.ErrProtocolViolation
	}
	if ack.Code != code.Success {
		_ = str.Close()
		return xerror.NewConnectRejected(ack.Code)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.sess = sess
	c.connected = make(chan struct{})
	close(c.connected)
	c.runCtx = runCtx
	c.runCancel = cancel
	c.ch = handler.NewClientHandler(sess, str, connect.KeepAlive, handler.ClientCallbacks{
		OnMessage:    c.onMessage,
		OnSuback:     c.onSuback,
		OnUnsuback:   c.onUnsuback,
		OnPingresp:   c.onPingresp,
		OnDisconnect: c.onDisconnect,
	})
	ch := c.ch
	c.mu.Unlock()

	go func() { _ = ch.Run(runCtx) }()
	return nil
}

func dial(ctx context.Context, uri string) (stream.Stream, error) {
	return dialURI(ctx, uri)
}

func (c *Client) onMessage(msg *session.ApplicationMessage) {
	c.inbox.Put(msg)
}

func (c *Client) onSuback(pk *packet.Suback) {
	c.waitersMu.Lock()
	ch, ok := c.subWaiters[pk.PacketId]
	delete(c.subWaiters, pk.PacketId)
	c.waitersMu.Unlock()
	if ok {
		ch <- pk
	}
}

func (c *Client) onUnsuback(pk *packet.Unsuback) {
	c.waitersMu.Lock()
	ch, ok := c.unsWaiters[pk.PacketId]
	delete(c.unsWaiters, pk.PacketId)
	c.waitersMu.Unlock()
	if ok {
		ch <- pk
	}
}

func (c *Client) onPingresp() {
	c.waitersMu.Lock()
	ch := c.pingWaiter
	c.pingWaiter = nil
	c.waitersMu.Unlock()
	if ch != nil {
		ch <- struct{}{}
	}
}

func (c *Client) onDisconnect(sess *session.Session) {
	c.log.Debug("connection ended", zap.String("client_id", sess.ClientID))
}

// Publish sends a PUBLISH at the given QoS, blocking only long enough to
// write the packet; QoS 1/2 acknowledgement happens asynchronously via
// the handler's inflight bookkeeping.
func (c *Client) Publish(topic string, payload []byte, qos byte, retain bool) error {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	return ch.Core().DeliverOutbound(&session.ApplicationMessage{
		Topic: topic, Data: payload, QoS: qos, Retain: retain,
	})
}

// Subscribe sends SUBSCRIBE and waits for the matching SUBACK.
func (c *Client) Subscribe(ctx context.Context, filters []packet.TopicFilter) ([]code.SubackCode, error) {
	c.mu.Lock()
	sess, ch := c.sess, c.ch
	c.mu.Unlock()

	pid, err := sess.AllocatePacketID()
	if err != nil {
		return nil, err
	}
	waiter := make(chan *packet.Suback, 1)
	c.waitersMu.Lock()
	c.subWaiters[pid] = waiter
	c.waitersMu.Unlock()

	if err := ch.Subscribe(pid, filters); err != nil {
		return nil, err
	}
	select {
	case ack := <-waiter:
		return ack.Codes, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe sends UNSUBSCRIBE and waits for the matching UNSUBACK.
func (c *Client) Unsubscribe(ctx context.Context, filters []string) error {
	c.mu.Lock()
	sess, ch := c.sess, c.ch
	c.mu.Unlock()

	pid, err := sess.AllocatePacketID()
	if err != nil {
		return err
	}
	byteFilters := make([][]byte, len(filters))
	for i, f := range filters {
		byteFilters[i] = []byte(f)
	}
	waiter := make(chan *packet.Unsuback, 1)
	c.waitersMu.Lock()
	c.unsWaiters[pid] = waiter
	c.waitersMu.Unlock()

	if err := ch.Unsubscribe(pid, byteFilters); err != nil {
		return err
	}
	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ping sends PINGREQ and waits for PINGRESP.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()

	waiter := make(chan struct{}, 1)
	c.waitersMu.Lock()
	c.pingWaiter = waiter
	c.waitersMu.Unlock()

	if err := ch.Ping(); err != nil {
		return err
	}
	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeliverMessage blocks until the next inbound application message
// arrives, ctx is cancelled, or timeout elapses (timeout of 0 waits
// forever, bounded only by ctx).
func (c *Client) DeliverMessage(ctx context.Context, timeout time.Duration) (*session.ApplicationMessage, error) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutCh = t.C
	}
	select {
	case v := <-c.inbox.Out():
		return v.(*session.ApplicationMessage), nil
	case <-timeoutCh:
		return nil, xerror.ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Disconnect sends a graceful DISCONNECT and closes the connection.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	ch, cancel := c.ch, c.runCancel
	c.mu.Unlock()
	err := ch.Disconnect()
	if cancel != nil {
		cancel()
	}
	c.inbox.Close()
	return err
}
