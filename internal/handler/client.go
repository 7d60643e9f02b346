package handler

import (
	"context"

	"github.com/lumenmq/lighthouse/internal/packet"
	"github.com/lumenmq/lighthouse/internal/session"
	"github.com/lumenmq/lighthouse/internal/stream"
	"github.com/lumenmq/lighthouse/internal/xerror"
)

// ClientCallbacks are the mqttclient-owned operations a ClientHandler
// invokes while dispatching packets a broker sends to this client.
type ClientCallbacks struct {
	// OnConnack reports the broker's CONNACK so the client can resolve
	// its pending connect() call with the right code.Code.
	OnConnack func(pk *packet.Connack)
	// OnMessage delivers a finished inbound application message (QoS 0/1
	// immediately, QoS 2 only once the PUBREL round trip completes).
	OnMessage func(msg *session.ApplicationMessage)
	// OnSuback/OnUnsuback resolve a pending subscribe()/unsubscribe()
	// call keyed by packet id.
	OnSuback   func(pk *packet.Suback)
	OnUnsuback func(pk *packet.Unsuback)
	// OnPingresp resolves a pending ping() call.
	OnPingresp func()
	// OnDisconnect is called once the connection ends, however that
	// happens (the broker never sends DISCONNECT in 3.1.1; this is
	// always the I/O-error / peer-closed path).
	OnDisconnect func(sess *session.Session)
}

// ClientHandler is the client side of a single connection: CONNECT has
// already been written by the time it's attached (mqttclient owns that
// handshake, since it must read exactly one CONNACK before anything else
// is legal), and ClientHandler dispatches everything the broker sends
// after that.
type ClientHandler struct {
	core      *Core
	callbacks ClientCallbacks
}

// NewClientHandler wires sess and str into a running Core whose dispatch
// table is this ClientHandler's own.
func NewClientHandler(sess *session.Session, str stream.Stream, keepAliveSeconds uint16, cb ClientCallbacks) *ClientHandler {
	h := &ClientHandler{callbacks: cb}
	h.core = NewCore(sess, str, keepAliveToDuration(keepAliveSeconds), h.dispatch, "client-handler")
	return h
}

func (h *ClientHandler) Core() *Core { return h.core }

func (h *ClientHandler) dispatch(ctx context.Context, pk packet.Packet) error {
	switch p := pk.(type) {
	case *packet.Connack:
		if h.callbacks.OnConnack != nil {
			h.callbacks.OnConnack(p)
		}
		return nil
	case *packet.Publish:
		return h.handlePublish(p)
	case *packet.Puback:
		return h.core.HandlePuback(p)
	case *packet.Pubrec:
		return h.core.HandlePubrec(p)
	case *packet.Pubrel:
		return h.handlePubrel(p)
	case *packet.Pubcomp:
		return h.core.HandlePubcomp(p)
	case *packet.Suback:
		if h.callbacks.OnSuback != nil {
			h.callbacks.OnSuback(p)
		}
		return nil
	case *packet.Unsuback:
		if h.callbacks.OnUnsuback != nil {
			h.callbacks.OnUnsuback(p)
		}
		return nil
	case *packet.Pingresp:
		if h.callbacks.OnPingresp != nil {
			h.callbacks.OnPingresp()
		}
		return nil
	default:
		return xerror.ErrProtocolViolation
	}
}

func (h *ClientHandler) handlePublish(p *packet.Publish) error {
	deliverNow, err := h.core.AcceptInbound(p)
	if err != nil {
		return err
	}
	if deliverNow && h.callbacks.OnMessage != nil {
		h.callbacks.OnMessage(&session.ApplicationMessage{
			PacketID: p.PacketId, HasPID: p.QoS > 0, Topic: string(p.Topic),
			QoS: p.QoS, Data: p.Payload, Retain: p.Retain, Direction: session.Inbound,
		})
	}
	return nil
}

func (h *ClientHandler) handlePubrel(p *packet.Pubrel) error {
	msg, err := h.core.HandlePubrel(p)
	if err != nil {
		return err
	}
	if msg != nil && h.callbacks.OnMessage != nil {
		h.callbacks.OnMessage(msg)
	}
	return nil
}

// Subscribe writes a SUBSCRIBE for filters at their requested QoS.
func (h *ClientHandler) Subscribe(pid uint16, filters []packet.TopicFilter) error {
	return h.core.WritePacket(&packet.Subscribe{PacketId: pid, Filters: filters})
}

// Unsubscribe writes an UNSUBSCRIBE for filters.
func (h *ClientHandler) Unsubscribe(pid uint16, filters [][]byte) error {
	return h.core.WritePacket(&packet.Unsubscribe{PacketId: pid, Filters: filters})
}

// Ping writes a PINGREQ.
func (h *ClientHandler) Ping() error {
	return h.core.WritePacket(&packet.Pingreq{})
}

// Disconnect writes a graceful DISCONNECT and closes the stream
// (MQTT-3.1.2-10: this suppresses the broker publishing our will).
func (h *ClientHandler) Disconnect() error {
	if err := h.core.WritePacket(&packet.Disconnect{}); err != nil {
		return err
	}
	return h.core.Close()
}

// Run drives the handler until the connection ends.
func (h *ClientHandler) Run(ctx context.Context) error {
	err := h.core.Run(ctx)
	if h.callbacks.OnDisconnect != nil {
		h.callbacks.OnDisconnect(h.core.Session)
	}
	return err
}
