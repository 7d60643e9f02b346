// Package retained is the retained-message store: a
// topic -> last-retained-message map, scanned on every new subscription
// to replay matching messages.
package retained

import (
	"github.com/bytedance/gopkg/collection/skipmap"
	"github.com/lumenmq/lighthouse/internal/session"
	"github.com/lumenmq/lighthouse/internal/xtopic"
)

// Store holds at most one retained message per topic.
type Store struct {
	topics  *skipmap.StringMap // topic -> *session.ApplicationMessage
	matcher *xtopic.Matcher
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{topics: skipmap.NewString(), matcher: xtopic.NewMatcher()}
}

// Put stores msg as the retained message for its topic. A zero-length
// payload clears the topic instead of storing an empty retained message
// (MQTT-3.3.1-10/11).
func (s *Store) Put(msg *session.ApplicationMessage) {
	if len(msg.Data) == 0 {
		s.topics.Delete(msg.Topic)
		return
	}
	s.topics.Store(msg.Topic, msg)
}

// Scan returns every retained message whose topic matches filter, in no
// particular order. filter must already have passed xtopic.ValidateFilter.
func (s *Store) Scan(filter string) []*session.ApplicationMessage {
	var out []*session.ApplicationMessage
	s.topics.Range(func(topic string, v interface{}) bool {
		if s.matcher.Match(filter, topic) {
			out = append(out, v.(*session.ApplicationMessage))
		}
		return true
	})
	return out
}

// Len reports the number of distinct retained topics.
func (s *Store) Len() int {
	return s.topics.Len()
}
