// Package subscription is the subscription index:
// topic-filter -> list of (session, granted-QoS), mutated by the
// broker's subscribe/unsubscribe control path and scanned by the
// broadcast loop for every inbound PUBLISH.
package subscription

import (
	"context"
	"sync"

	"github.com/bytedance/gopkg/collection/skipmap"
	"github.com/lumenmq/lighthouse/internal/code"
	"github.com/lumenmq/lighthouse/internal/policy"
	"github.com/lumenmq/lighthouse/internal/session"
	"github.com/lumenmq/lighthouse/internal/xtopic"
)

// Subscriber is one granted subscription against a session.
type Subscriber struct {
	Session *session.Session
	QoS     byte
}

// filterEntry is the per-filter bucket: at most one Subscriber per
// client id.
type filterEntry struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
}

// Store is the concurrent subscription index. Mutation only happens on
// the broker's control path; Match is read-mostly and safe for
// concurrent use from the broadcast loop.
type Store struct {
	filters *skipmap.StringMap // topic filter -> *filterEntry
	matcher *xtopic.Matcher
	maxQoS  byte
}

// NewStore returns an empty Store. maxQoS caps every granted
// subscription (broker config's MaximumQoS).
func NewStore(maxQoS byte) *Store {
	return &Store{
		filters: skipmap.NewString(),
		matcher: xtopic.NewMatcher(),
		maxQoS:  maxQoS,
	}
}

// Add registers sess's subscription to filter at requestedQoS, capped by
// the store's maxQoS and by authz.TopicAllowed. Re-subscribing the same
// client_id to the same filter overwrites the granted QoS in place.
// Returns the SUBACK code for this entry (0x80 on rejection).
func (s *Store) Add(ctx context.Context, filter string, sess *session.Session, requestedQoS byte, authz policy.AuthPolicy) code.SubackCode {
	if !xtopic.ValidateFilter(filter) { // MQTT-4.7.1-2/3
		return code.SubackFailure
	}
	if authz != nil && !authz.TopicAllowed(ctx, sess, filter, policy.Subscribe) {
		return code.SubackFailure
	}
	granted := requestedQoS
	if granted > s.maxQoS {
		granted = s.maxQoS
	}

	v, _ := s.filters.LoadOrStore(filter, &filterEntry{subs: make(map[string]*Subscriber)})
	entry := v.(*filterEntry)
	entry.mu.Lock()
	entry.subs[sess.ClientID] = &Subscriber{Session: sess, QoS: granted}
	entry.mu.Unlock()

	return subackCodeForQoS(granted)
}

func subackCodeForQoS(qos byte) code.SubackCode {
	switch qos {
	case 0:
		return code.SubackQoS0
	case 1:
		return code.SubackQoS1
	default:
		return code.SubackQoS2
	}
}

// Remove deletes sess's subscription to filter. No-op if absent; prunes
// the filter's bucket once empty.
func (s *Store) Remove(filter string, sess *session.Session) {
	v, ok := s.filters.Load(filter)
	if !ok {
		return
	}
	entry := v.(*filterEntry)
	entry.mu.Lock()
	delete(entry.subs, sess.ClientID)
	empty := len(entry.subs) == 0
	entry.mu.Unlock()
	if empty {
		s.filters.Delete(filter)
	}
}

// RemoveAll removes every subscription belonging to sess, across every
// filter. Called when a session is destroyed.
func (s *Store) RemoveAll(sess *session.Session) {
	var toDelete []string
	s.filters.Range(func(filter string, v interface{}) bool {
		entry := v.(*filterEntry)
		entry.mu.Lock()
		delete(entry.subs, sess.ClientID)
		empty := len(entry.subs) == 0
		entry.mu.Unlock()
		if empty {
			toDelete = append(toDelete, filter)
		}
		return true
	})
	for _, f := range toDelete {
		s.filters.Delete(f)
	}
}

// Match returns every Subscriber whose filter matches topic.
func (s *Store) Match(topic string) []*Subscriber {
	var out []*Subscriber
	s.filters.Range(func(filter string, v interface{}) bool {
		if !s.matcher.Match(filter, topic) {
			return true
		}
		entry := v.(*filterEntry)
		entry.mu.RLock()
		for _, sub := range entry.subs {
			out = append(out, sub)
		}
		entry.mu.RUnlock()
		return true
	})
	return out
}

// Count returns the number of subscriptions a client_id holds against
// filter (always 0 or 1; a re-subscribe overwrites in place).
func (s *Store) Count(filter, clientID string) int {
	v, ok := s.filters.Load(filter)
	if !ok {
		return 0
	}
	entry := v.(*filterEntry)
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	if _, ok := entry.subs[clientID]; ok {
		return 1
	}
	return 0
}
