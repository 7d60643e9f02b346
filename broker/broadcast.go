package broker

import (
	"context"
	"sync/atomic"

	"github.com/lumenmq/lighthouse/internal/code"
	"github.com/lumenmq/lighthouse/internal/events"
	"github.com/lumenmq/lighthouse/internal/packet"
	"github.com/lumenmq/lighthouse/internal/session"
	"go.uber.org/zap"
)

// onPublish is the BrokerCallbacks.OnPublish hook: it stores a retained
// copy (if requested), then fans msg out to every matching subscriber
// through the broadcast pool so a slow subscriber can never stall the
// publisher's own connection.
func (b *Broker) onPublish(ctx context.Context, msg *session.ApplicationMessage) {
	b.events.Fire(ctx, events.MessageReceived, false, events.Fields{Topic: msg.Topic, QoS: msg.QoS})

	if msg.Retain && b.cfg.Mqtt.RetainAvailable {
		b.retained.Put(msg)
	}

	for _, sub := range b.subs.Match(msg.Topic) {
		sub := sub
		qos := msg.QoS
		if sub.QoS < qos {
			qos = sub.QoS
		}
		delivery := &session.ApplicationMessage{
			Topic: msg.Topic, Data: msg.Data, QoS: qos, Retain: false,
		}
		if err := b.pool.Submit(func() { b.deliverTo(sub.Session, delivery) }); err != nil {
			b.log.Warn("broadcast pool submit failed", zap.Error(err), zap.String("client_id", sub.Session.ClientID))
		}
	}
}

// deliverTo looks up sess's currently-connected handler and writes
// delivery to it. A non-clean session with no connected handler is
// queued on its RetainedQueue instead of being dropped, for replay once
// it reconnects (deliverQueued in handshake.go); a clean session has
// already been unsubscribed in onDisconnect, so this branch can only be
// reached for a session worth holding state for.
func (b *Broker) deliverTo(sess *session.Session, delivery *session.ApplicationMessage) {
	b.mu.Lock()
	h, ok := b.handlers[sess.ClientID]
	b.mu.Unlock()
	if !ok {
		sess.RetainedQueue.Put(delivery)
		return
	}
	if err := h.Core().DeliverOutbound(delivery); err != nil {
		b.log.Debug("deliver failed", zap.String("client_id", sess.ClientID), zap.Error(err))
		return
	}
	atomic.AddInt64(&b.stats.MessagesSent, 1)
}

// onSubscribe is the BrokerCallbacks.OnSubscribe hook: it grants each
// filter against the subscription index and replays any retained
// message matching a newly-granted filter.
func (b *Broker) onSubscribe(ctx context.Context, sess *session.Session, pk *packet.Subscribe) []code.SubackCode {
	codes := make([]code.SubackCode, len(pk.Filters))
	for i, f := range pk.Filters {
		filter := string(f.Filter)
		c := b.subs.Add(ctx, filter, sess, f.QoS, b.authz)
		codes[i] = c
		b.events.Fire(ctx, events.ClientSubscribed, false, events.Fields{ClientID: sess.ClientID, Topic: filter})

		if c == code.SubackFailure {
			continue
		}
		for _, retainedMsg := range b.retained.Scan(filter) {
			qos := retainedMsg.QoS
			if granted := subackQoS(c); granted < qos {
				qos = granted
			}
			copyMsg := &session.ApplicationMessage{Topic: retainedMsg.Topic, Data: retainedMsg.Data, QoS: qos, Retain: true}
			b.deliverTo(sess, copyMsg)
		}
	}
	return codes
}

func subackQoS(c code.SubackCode) byte {
	switch c {
	case code.SubackQoS0:
		return 0
	case code.SubackQoS1:
		return 1
	case code.SubackQoS2:
		return 2
	default:
		return 0
	}
}

// onUnsubscribe is the BrokerCallbacks.OnUnsubscribe hook.
func (b *Broker) onUnsubscribe(ctx context.Context, sess *session.Session, pk *packet.Unsubscribe) {
	for _, f := range pk.Filters {
		b.subs.Remove(string(f), sess)
		b.events.Fire(ctx, events.ClientUnsubscribed, false, events.Fields{ClientID: sess.ClientID, Topic: string(f)})
	}
}

// onDisconnect is the BrokerCallbacks.OnDisconnect hook: it publishes
// the session's will (unless the client disconnected gracefully,
// MQTT-3.1.2-10), then either drops or persists the session according to
// clean_session.
func (b *Broker) onDisconnect(sess *session.Session, graceful bool) {
	b.mu.Lock()
	delete(b.handlers, sess.ClientID)
	b.mu.Unlock()

	sess.Disconnect()

	if !graceful && sess.Will != nil {
		b.onPublish(context.Background(), &session.ApplicationMessage{
			Topic: sess.Will.Topic, Data: sess.Will.Message, QoS: sess.Will.QoS, Retain: sess.Will.Retain,
		})
	}

	b.events.Fire(context.Background(), events.ClientDisconnected, false, events.Fields{ClientID: sess.ClientID})

	if sess.CleanSession {
		b.subs.RemoveAll(sess)
		b.sessions.Delete(sess.ClientID)
		sess.Destroy()
		return
	}
	b.sessions.Put(sess)
}
