package subscription

import (
	"context"
	"testing"

	"github.com/lumenmq/lighthouse/internal/code"
	"github.com/lumenmq/lighthouse/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddGrantsCappedQoS(t *testing.T) {
	s := NewStore(1)
	sess := session.New("c1", true)

	ack := s.Add(context.Background(), "a/b", sess, 2, nil)
	assert.Equal(t, code.SubackQoS1, ack)

	subs := s.Match("a/b")
	require.Len(t, subs, 1)
	assert.Equal(t, byte(1), subs[0].QoS)
}

func TestAddRejectsInvalidFilter(t *testing.T) {
	s := NewStore(2)
	sess := session.New("c1", true)
	ack := s.Add(context.Background(), "a/#/b", sess, 0, nil)
	assert.Equal(t, code.SubackFailure, ack)
}

func TestResubscribeOverwritesGrantInPlace(t *testing.T) {
	s := NewStore(2)
	sess := session.New("c1", true)
	s.Add(context.Background(), "a/b", sess, 0, nil)
	s.Add(context.Background(), "a/b", sess, 2, nil)

	subs := s.Match("a/b")
	require.Len(t, subs, 1)
	assert.Equal(t, byte(2), subs[0].QoS)
	assert.Equal(t, 1, s.Count("a/b", "c1"))
}

func TestMatchWildcardFanout(t *testing.T) {
	s := NewStore(2)
	a := session.New("a", true)
	b := session.New("b", true)
	s.Add(context.Background(), "sensors/+/temp", a, 1, nil)
	s.Add(context.Background(), "sensors/#", b, 2, nil)

	subs := s.Match("sensors/kitchen/temp")
	assert.Len(t, subs, 2)
}

func TestRemoveDropsEmptyBucket(t *testing.T) {
	s := NewStore(2)
	sess := session.New("c1", true)
	s.Add(context.Background(), "a/b", sess, 0, nil)
	s.Remove("a/b", sess)
	assert.Empty(t, s.Match("a/b"))
	assert.Equal(t, 0, s.Count("a/b", "c1"))
}

func TestRemoveAllClearsEveryFilter(t *testing.T) {
	s := NewStore(2)
	sess := session.New("c1", true)
	s.Add(context.Background(), "a/b", sess, 0, nil)
	s.Add(context.Background(), "c/d", sess, 0, nil)
	s.RemoveAll(sess)
	assert.Empty(t, s.Match("a/b"))
	assert.Empty(t, s.Match("c/d"))
}

func TestDollarTopicNotMatchedByHash(t *testing.T) {
	s := NewStore(2)
	sess := session.New("c1", true)
	s.Add(context.Background(), "#", sess, 0, nil)
	assert.Empty(t, s.Match("$SYS/broker/uptime"))
}
