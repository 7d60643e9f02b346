// Package handler is the per-connection protocol state machine
//: the reader loop, keep-alive enforcement, write
// serialization and the QoS 0/1/2 delivery engines shared by both the
// broker side and the client side of a connection. BrokerHandler and
// ClientHandler (in broker.go and client.go) are thin specializations
// that plug their own dispatch table into the shared Core.
package handler

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/lumenmq/lighthouse/internal/packet"
	"github.com/lumenmq/lighthouse/internal/session"
	"github.com/lumenmq/lighthouse/internal/stream"
	"github.com/lumenmq/lighthouse/internal/xerror"
	"github.com/lumenmq/lighthouse/internal/xlog"
	"go.uber.org/zap"
)

// Dispatch handles one decoded packet read off the wire. Implementations
// (BrokerHandler.dispatch, ClientHandler.dispatch) type-switch on pk and
// drive their side's semantics; returning an error tears the connection
// down.
type Dispatch func(ctx context.Context, pk packet.Packet) error

// Core is the transport-agnostic half of a connection: it owns the
// stream, the session's inflight bookkeeping, and the delivery
// primitives (DeliverOutbound for QoS 0/1/2, and the four inbound ack
// handlers). It has
// no opinion about which packet types are legal to receive; that's the
// dispatch table's job.
type Core struct {
	Session *session.Session
	Stream  stream.Stream
	log     *zap.Logger

	writeMu sync.Mutex

	keepAlive time.Duration
	lastRecv  atomicTime

	dispatch Dispatch

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// NewCore wires str and sess into a Core that will call dispatch for
// every decoded packet. keepAlive of 0 disables the idle-connection
// timeout (MQTT-3.1.2-24 makes this legal).
func NewCore(sess *session.Session, str stream.Stream, keepAlive time.Duration, dispatch Dispatch, logModule string) *Core {
	c := &Core{
		Session:   sess,
		Stream:    str,
		log:       xlog.LoggerModule(logModule),
		keepAlive: keepAlive,
		dispatch:  dispatch,
		closed:    make(chan struct{}),
	}
	c.lastRecv.Set(time.Now())
	return c
}

// Run drives the reader loop until the stream errs out, the peer sends
// DISCONNECT, or ctx is cancelled. It always returns once the connection
// is done; the caller decides whether that's worth logging.
func (c *Core) Run(ctx context.Context) error {
	defer c.closeOnce.Do(func() { close(c.closed) })

	var stopKeepAlive func()
	if c.keepAlive > 0 {
		stopKeepAlive = c.startKeepAliveWatchdog(ctx)
		defer stopKeepAlive()
	}

	for {
		select {
		case <-ctx.Done():
			c.closeErr = ctx.Err()
			return c.closeErr
		default:
		}

		pk, err := packet.Decode(c.Stream)
		if err != nil {
			if err == io.EOF {
				c.closeErr = nil
			} else {
				c.closeErr = err
			}
			return c.closeErr
		}
		c.lastRecv.Set(time.Now())

		if err := c.dispatch(ctx, pk); err != nil {
			c.closeErr = err
			return err
		}
	}
}

// startKeepAliveWatchdog polls for a peer gone silent past 1.5x its
// declared keep-alive (MQTT-3.1.2-24) and closes the stream to unblock
// Run's Decode call.
func (c *Core) startKeepAliveWatchdog(ctx context.Context) func() {
	interval := c.keepAlive + c.keepAlive/2
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(c.keepAlive / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if time.Since(c.lastRecv.Get()) > interval {
					c.log.Warn("keep-alive expired, closing connection",
						zap.String("client_id", c.Session.ClientID))
					_ = c.Stream.Close()
					return
				}
			}
		}
	}()
	return func() { close(done) }
}

// WritePacket serializes concurrent writers onto the single stream
// (multiple goroutines may want to send at once: the reader loop acking
// an inbound PUBLISH, and the broadcast path delivering a new message).
func (c *Core) WritePacket(pk packet.Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return pk.Encode(c.Stream)
}

// Close tears down the stream. Safe to call more than once.
func (c *Core) Close() error {
	return c.Stream.Close()
}

// Done reports whether Run has returned and why.
func (c *Core) Done() <-chan struct{} { return c.closed }
func (c *Core) Err() error            { return c.closeErr }

// keepAliveToDuration converts a CONNECT packet's KeepAlive field
// (seconds) to a time.Duration, per MQTT-3.1.2-24.
func keepAliveToDuration(seconds uint16) time.Duration {
	return time.Duration(seconds) * time.Second
}

// atomicTime is a tiny mutex-guarded time.Time, touched only a few
// times a second so a mutex is plainly sufficient.
type atomicTime struct {
	mu sync.Mutex
	t  time.Time
}

func (a *atomicTime) Set(t time.Time) {
	a.mu.Lock()
	a.t = t
	a.mu.Unlock()
}

func (a *atomicTime) Get() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.t
}

// DeliverOutbound sends msg to the peer according to its QoS, allocating
// a packet id and recording inflight state for QoS>0. This is the one
// entry point both BrokerHandler (broadcast fan-out) and ClientHandler
// (publishing from the application) call to put a message on the wire.
func (c *Core) DeliverOutbound(msg *session.ApplicationMessage) error {
	switch msg.QoS {
	case 0:
		return c.WritePacket(&packet.Publish{
			Topic:   []byte(msg.Topic),
			Payload: msg.Data,
			QoS:     0,
			Retain:  msg.Retain,
		})
	case 1, 2:
		if !msg.HasPID {
			pid, err := c.Session.AllocatePacketID()
			if err != nil {
				return err
			}
			msg.PacketID = pid
			msg.HasPID = true
		}
		c.Session.InflightOut.Set(msg.PacketID, msg)
		return c.WritePacket(&packet.Publish{
			Topic:    []byte(msg.Topic),
			Payload:  msg.Data,
			QoS:      msg.QoS,
			Retain:   msg.Retain,
			PacketId: msg.PacketID,
			Dup:      msg.Dup,
		})
	default:
		return xerror.ErrProtocolViolation
	}
}

// HandlePuback completes an outbound QoS 1 delivery.
func (c *Core) HandlePuback(pk *packet.Puback) error {
	c.Session.InflightOut.Delete(pk.PacketId)
	return nil
}

// HandlePubrec advances an outbound QoS 2 delivery to its PUBREL step.
func (c *Core) HandlePubrec(pk *packet.Pubrec) error {
	if !c.Session.InflightOut.Has(pk.PacketId) {
		// Spurious PUBREC for an id we no longer track; still must reply
		// so the peer's state machine isn't left waiting (MQTT-4.3.3-1
		// talks about the sender's obligation, this is defensive
		// symmetry on the receiving side of that obligation).
	}
	return c.WritePacket(&packet.Pubrel{PacketId: pk.PacketId})
}

// HandlePubcomp completes an outbound QoS 2 delivery.
func (c *Core) HandlePubcomp(pk *packet.Pubcomp) error {
	c.Session.InflightOut.Delete(pk.PacketId)
	return nil
}

// AcceptInbound processes an inbound PUBLISH: for QoS 0, the message is
// delivered exactly once by the caller with no bookkeeping. For QoS 1
// AcceptInbound writes the PUBACK before it returns, so the caller
// delivers the message only after it has been acknowledged. For QoS 2 the
// message is staged in InflightIn and only delivered once the PUBREL
// closes the loop (HandlePubrel), per MQTT-4.3.3-1's duplicate-
// suppression requirement.
func (c *Core) AcceptInbound(pk *packet.Publish) (deliverNow bool, err error) {
	switch pk.QoS {
	case 0:
		if pk.Dup { // MQTT-3.3.1-2: DUP is meaningless on QoS 0, log and drop
			c.log.Warn("dropping QoS 0 PUBLISH with DUP set", zap.String("topic", string(pk.Topic)))
			return false, nil
		}
		return true, nil
	case 1:
		if err := c.WritePacket(&packet.Puback{PacketId: pk.PacketId}); err != nil {
			return false, err
		}
		return true, nil
	case 2:
		if c.Session.InflightIn.Has(pk.PacketId) {
			// Already staged: re-send PUBREC, don't re-deliver
			// (MQTT-4.3.3-1).
			return false, c.WritePacket(&packet.Pubrec{PacketId: pk.PacketId})
		}
		c.Session.InflightIn.Set(pk.PacketId, &session.ApplicationMessage{
			PacketID: pk.PacketId, HasPID: true, Topic: string(pk.Topic),
			QoS: pk.QoS, Data: pk.Payload, Retain: pk.Retain, Direction: session.Inbound,
		})
		return false, c.WritePacket(&packet.Pubrec{PacketId: pk.PacketId})
	default:
		return false, xerror.ErrProtocolViolation
	}
}

// HandlePubrel completes an inbound QoS 2 delivery: the staged message is
// now safe to deliver exactly once, and PUBCOMP closes the handshake.
func (c *Core) HandlePubrel(pk *packet.Pubrel) (msg *session.ApplicationMessage, err error) {
	v, ok := c.Session.InflightIn.Get(pk.PacketId)
	c.Session.InflightIn.Delete(pk.PacketId)
	if err := c.WritePacket(&packet.Pubcomp{PacketId: pk.PacketId}); err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return v, nil
}

// Retransmit resends every outbound inflight message with DUP set, in
// the order it was originally sent (MQTT-4.4.0-1). Called once after a
// reconnect, before any new deliveries are attempted.
func (c *Core) Retransmit() error {
	for _, msg := range c.Session.InflightOut.Ordered() {
		msg.Dup = true
		if err := c.WritePacket(&packet.Publish{
			Topic:    []byte(msg.Topic),
			Payload:  msg.Data,
			QoS:      msg.QoS,
			Retain:   false, // MQTT-3.3.1-3: RETAIN must be 0 on a resend
			PacketId: msg.PacketID,
			Dup:      true,
		}); err != nil {
			return err
		}
	}
	return nil
}
