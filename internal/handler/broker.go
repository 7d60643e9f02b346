package handler

import (
	"context"

	"github.com/lumenmq/lighthouse/internal/code"
	"github.com/lumenmq/lighthouse/internal/packet"
	"github.com/lumenmq/lighthouse/internal/session"
	"github.com/lumenmq/lighthouse/internal/stream"
	"github.com/lumenmq/lighthouse/internal/xerror"
)

// BrokerCallbacks are the broker-owned operations a BrokerHandler
// invokes while dispatching a connected client's packets. The broker
// core supplies these; BrokerHandler itself never
// touches the subscription or retained-message stores directly.
type BrokerCallbacks struct {
	// OnPublish delivers an inbound application message to the broker's
	// fan-out path (subscription match + enqueue to every subscriber).
	OnPublish func(ctx context.Context, msg *session.ApplicationMessage)
	// OnSubscribe grants (or rejects) each filter in pk and returns the
	// SUBACK codes to send back, in the same order as pk.Filters.
	OnSubscribe func(ctx context.Context, sess *session.Session, pk *packet.Subscribe) []code.SubackCode
	// OnUnsubscribe removes each filter in pk from the subscription
	// index.
	OnUnsubscribe func(ctx context.Context, sess *session.Session, pk *packet.Unsubscribe)
	// OnDisconnect is called once, however the connection ends: a clean
	// DISCONNECT, an I/O error, or keep-alive expiry. graceful is true
	// only for an MQTT DISCONNECT (MQTT-3.1.2-10's will-message
	// suppression hinges on this).
	OnDisconnect func(sess *session.Session, graceful bool)
}

// BrokerHandler is the broker side of a single client connection: once
// attached to an already-authenticated Session (CONNECT/CONNACK having
// already happened in the broker core), it dispatches every subsequent
// packet type a client is allowed to send.
type BrokerHandler struct {
	core      *Core
	callbacks BrokerCallbacks
	// graceful is set once a DISCONNECT has been dispatched.
	graceful bool
}

// NewBrokerHandler wires sess and str into a running Core whose dispatch
// table is this BrokerHandler's own.
func NewBrokerHandler(sess *session.Session, str stream.Stream, keepAliveSeconds uint16, cb BrokerCallbacks) *BrokerHandler {
	h := &BrokerHandler{callbacks: cb}
	h.core = NewCore(sess, str, keepAliveToDuration(keepAliveSeconds), h.dispatch, "broker-handler")
	return h
}

// Core exposes the shared connection machinery (DeliverOutbound, Run,
// Close, Retransmit) to the broker that owns this handler.
func (h *BrokerHandler) Core() *Core { return h.core }

func (h *BrokerHandler) dispatch(ctx context.Context, pk packet.Packet) error {
	switch p := pk.(type) {
	case *packet.Publish:
		return h.handlePublish(ctx, p)
	case *packet.Puback:
		return h.core.HandlePuback(p)
	case *packet.Pubrec:
		return h.core.HandlePubrec(p)
	case *packet.Pubrel:
		return h.handlePubrel(ctx, p)
	case *packet.Pubcomp:
		return h.core.HandlePubcomp(p)
	case *packet.Subscribe:
		return h.handleSubscribe(ctx, p)
	case *packet.Unsubscribe:
		return h.handleUnsubscribe(ctx, p)
	case *packet.Pingreq:
		return h.core.WritePacket(&packet.Pingresp{})
	case *packet.Disconnect:
		h.graceful = true
		if h.callbacks.OnDisconnect != nil {
			h.callbacks.OnDisconnect(h.core.Session, true)
		}
		return h.core.Close()
	case *packet.Connect:
		// A second CONNECT on an already-established connection is a
		// protocol violation (MQTT-3.1.0-2); the broker core tears the
		// connection down.
		return xerror.ErrProtocolViolation
	default:
		return xerror.ErrProtocolViolation
	}
}

func (h *BrokerHandler) handlePublish(ctx context.Context, p *packet.Publish) error {
	deliverNow, err := h.core.AcceptInbound(p)
	if err != nil {
		return err
	}
	if deliverNow && h.callbacks.OnPublish != nil {
		h.callbacks.OnPublish(ctx, &session.ApplicationMessage{
			PacketID: p.PacketId, HasPID: p.QoS > 0, Topic: string(p.Topic),
			QoS: p.QoS, Data: p.Payload, Retain: p.Retain, Direction: session.Inbound,
		})
	}
	return nil
}

func (h *BrokerHandler) handlePubrel(ctx context.Context, p *packet.Pubrel) error {
	msg, err := h.core.HandlePubrel(p)
	if err != nil {
		return err
	}
	if msg != nil && h.callbacks.OnPublish != nil {
		h.callbacks.OnPublish(ctx, msg)
	}
	return nil
}

func (h *BrokerHandler) handleSubscribe(ctx context.Context, p *packet.Subscribe) error {
	var codes []code.SubackCode
	if h.callbacks.OnSubscribe != nil {
		codes = h.callbacks.OnSubscribe(ctx, h.core.Session, p)
	}
	return h.core.WritePacket(&packet.Suback{PacketId: p.PacketId, Codes: codes})
}

func (h *BrokerHandler) handleUnsubscribe(ctx context.Context, p *packet.Unsubscribe) error {
	if h.callbacks.OnUnsubscribe != nil {
		h.callbacks.OnUnsubscribe(ctx, h.core.Session, p)
	}
	return h.core.WritePacket(&packet.Unsuback{PacketId: p.PacketId})
}

// Run drives the handler until the connection ends, reporting the
// non-graceful path (I/O error, keep-alive expiry) to OnDisconnect since
// the graceful DISCONNECT path already reported it in dispatch.
func (h *BrokerHandler) Run(ctx context.Context) error {
	err := h.core.Run(ctx)
	if !h.graceful && h.callbacks.OnDisconnect != nil {
		h.callbacks.OnDisconnect(h.core.Session, false)
	}
	return err
}
