// Package redisstore is the optional durable SessionStore backend: it
// lets non-clean sessions survive a broker restart by round-tripping
// the parts of a session that matter across a process boundary (will,
// keep-alive, clean_session) through Redis, keyed by client_id. Inflight
// state and queued messages are intentionally NOT persisted: the broker
// re-delivers pending QoS>0 messages only within a process's lifetime,
// matching the in-memory Store's semantics for everything else.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	isession "github.com/lumenmq/lighthouse/internal/session"
)

const keyPrefix = "lighthouse:session:"

// snapshot is the durable projection of a Session.
type snapshot struct {
	ClientID     string        `json:"client_id"`
	CleanSession bool          `json:"clean_session"`
	Username     string        `json:"username,omitempty"`
	KeepAlive    time.Duration `json:"keep_alive"`
	Will         *isession.Will `json:"will,omitempty"`
}

// Store persists session snapshots in Redis. It satisfies the same
// contract as session.MemoryStore but is backed by a shared, durable
// store so a restarted broker can still find clean_session=false
// clients' session snapshots. Subscriptions are not part of the
// snapshot; the subscription index is rebuilt from the client's next
// SUBSCRIBE.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore wraps an already-configured *redis.Client. ttl is the
// expiry applied to each session key (0 disables expiry).
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func key(clientID string) string {
	return keyPrefix + clientID
}

// Get rehydrates a Session's durable fields, leaving its runtime state
// (queues, inflight maps, packet-id allocator) freshly initialized as
// if by session.New.
func (s *Store) Get(clientID string) (*isession.Session, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := s.rdb.Get(ctx, key(clientID)).Bytes()
	if err == redis.Nil || err != nil {
		return nil, false
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false
	}

	sess := isession.New(snap.ClientID, snap.CleanSession)
	sess.Username = snap.Username
	sess.KeepAlive = snap.KeepAlive
	sess.Will = snap.Will
	sess.Parent = true
	return sess, true
}

// Put stores sess's durable fields, overwriting any previous entry.
func (s *Store) Put(sess *isession.Session) {
	snap := snapshot{
		ClientID:     sess.ClientID,
		CleanSession: sess.CleanSession,
		Username:     sess.Username,
		KeepAlive:    sess.KeepAlive,
		Will:         sess.Will,
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.rdb.Set(ctx, key(sess.ClientID), raw, s.ttl)
}

// Delete removes clientID's persisted snapshot.
func (s *Store) Delete(clientID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.rdb.Del(ctx, key(clientID))
}

// Len counts persisted session keys. Uses SCAN rather than KEYS to
// avoid blocking a shared Redis instance (MQTT-unrelated but standard
// go-redis practice).
func (s *Store) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count
}
