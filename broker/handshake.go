package broker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lumenmq/lighthouse/internal/code"
	"github.com/lumenmq/lighthouse/internal/events"
	"github.com/lumenmq/lighthouse/internal/handler"
	"github.com/lumenmq/lighthouse/internal/packet"
	"github.com/lumenmq/lighthouse/internal/policy"
	"github.com/lumenmq/lighthouse/internal/session"
	"github.com/lumenmq/lighthouse/internal/stream"
	"go.uber.org/zap"
)

// handleStream runs the full lifetime of one accepted connection: the
// CONNECT/CONNACK handshake, then the BrokerHandler's packet loop, then
// teardown.
func (b *Broker) handleStream(str stream.Stream) {
	ctx := context.Background()
	defer str.Close()

	pk, err := packet.Decode(str)
	if err != nil {
		b.log.Debug("decode first packet failed", zap.Error(err))
		return
	}
	connectPk, ok := pk.(*packet.Connect)
	if !ok {
		b.log.Debug("first packet was not CONNECT")
		return
	}

	// [MQTT-3.1.2-1]: an unrecognized protocol level still gets a CONNACK,
	// not a silent close.
	if !packet.IsAcceptableVersion(connectPk.Version) {
		b.writeConnack(str, code.UnacceptableProtocolVersion, false)
		return
	}

	clientID := string(connectPk.ClientId)
	if clientID == "" {
		// [MQTT-3.1.3-8]: clean_session=false can never be paired with a
		// server-assigned client_id, since there would be no stable key
		// to resume the session under on the next reconnect.
		if !connectPk.CleanSession {
			b.writeConnack(str, code.IdentifierRejected, false)
			return
		}
		if !b.cfg.Mqtt.AllowZeroLenClientId {
			b.writeConnack(str, code.IdentifierRejected, false)
			return
		}
		clientID = generateClientID()
	}

	b.guardReconnectStorm(clientID)

	remoteAddr := str.RemoteAddr()
	pseudoSession := &anonSession{clientID: clientID, username: string(connectPk.Username), remoteAddr: remoteAddr}
	if decision, err := b.authz.Authenticate(ctx, pseudoSession); err != nil || decision == policy.Deny {
		b.writeConnack(str, code.NotAuthorized, false)
		return
	}

	sess, existed := b.sessionByClientID(clientID, connectPk.CleanSession)
	b.takeOverExistingConnection(clientID)

	sess.CleanSession = connectPk.CleanSession
	if connectPk.CleanSession {
		sess.Reset()
		existed = false
	}
	sess.Username = string(connectPk.Username)
	sess.RemoteAddr = remoteAddr
	sess.KeepAlive = time.Duration(connectPk.KeepAlive) * time.Second
	if connectPk.WillFlag {
		sess.Will = &session.Will{
			Topic:   string(connectPk.WillTopic),
			Message: connectPk.WillMessage,
			QoS:     connectPk.WillQoS,
			Retain:  connectPk.WillRetain,
		}
	}
	sess.Connect()

	if err := b.writeConnack(str, code.Success, existed && !connectPk.CleanSession); err != nil {
		return
	}

	b.events.Fire(ctx, events.ClientConnected, false, events.Fields{ClientID: clientID, Session: sess})

	bh := handler.NewBrokerHandler(sess, str, connectPk.KeepAlive, handler.BrokerCallbacks{
		OnPublish:     b.onPublish,
		OnSubscribe:   b.onSubscribe,
		OnUnsubscribe: b.onUnsubscribe,
		OnDisconnect:  b.onDisconnect,
	})

	b.mu.Lock()
	b.handlers[clientID] = bh
	b.mu.Unlock()

	// [MQTT-4.4.0-1]: a resumed (non-clean) session replays its pending
	// QoS 1/2 outbound messages with DUP=1 as soon as the link is back up,
	// mirroring the client side's own post-reconnect Core.Retransmit call.
	if existed && !connectPk.CleanSession {
		if err := bh.Core().Retransmit(); err != nil {
			b.log.Debug("retransmit on reconnect failed", zap.String("client_id", clientID), zap.Error(err))
			return
		}
		if err := b.deliverQueued(sess, bh); err != nil {
			b.log.Debug("queued delivery on reconnect failed", zap.String("client_id", clientID), zap.Error(err))
			return
		}
	}

	_ = bh.Run(ctx)
}

// deliverQueued drains sess.RetainedQueue, the messages broadcast while
// this client_id had no connected handler, and puts each one on the wire
// through bh. It never blocks: an empty queue returns immediately.
func (b *Broker) deliverQueued(sess *session.Session, bh *handler.BrokerHandler) error {
	for {
		select {
		case v, ok := <-sess.RetainedQueue.Out():
			if !ok {
				return nil
			}
			msg, ok := v.(*session.ApplicationMessage)
			if !ok {
				continue
			}
			if err := bh.Core().DeliverOutbound(msg); err != nil {
				return err
			}
			atomic.AddInt64(&b.stats.MessagesSent, 1)
		default:
			return nil
		}
	}
}

func (b *Broker) writeConnack(str stream.Stream, c code.Code, sessionPresent bool) error {
	ack := &packet.Connack{Code: c, SessionPresent: sessionPresent}
	return ack.Encode(str)
}

// guardReconnectStorm sleeps the caller's goroutine if clientID
// reconnected less than Config.Mqtt.ReconnectStormDelay ago.
func (b *Broker) guardReconnectStorm(clientID string) {
	window := b.cfg.Mqtt.ReconnectStormDelay
	if window <= 0 {
		return
	}

	b.mu.Lock()
	last, ok := b.lastSeen[clientID]
	b.lastSeen[clientID] = time.Now()
	b.mu.Unlock()

	if ok {
		if since := time.Since(last); since < window {
			time.Sleep(window - since)
		}
	}
}

// takeOverExistingConnection closes clientID's previous connection, if
// any, per MQTT-3.1.4-2: a new CONNECT with the same client_id
// terminates the existing network connection.
func (b *Broker) takeOverExistingConnection(clientID string) {
	b.mu.Lock()
	old, ok := b.handlers[clientID]
	delete(b.handlers, clientID)
	b.mu.Unlock()
	if ok {
		_ = old.Core().Close()
	}
}

// anonSession adapts CONNECT's raw fields to policy.Session for the
// Authenticate call, before a real session.Session exists.
type anonSession struct {
	clientID, username, remoteAddr string
}

func (a *anonSession) GetClientID() string   { return a.clientID }
func (a *anonSession) GetUsername() string   { return a.username }
func (a *anonSession) GetRemoteAddr() string { return a.remoteAddr }

var _ policy.Session = (*anonSession)(nil)
