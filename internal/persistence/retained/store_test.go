package retained

import (
	"testing"

	"github.com/lumenmq/lighthouse/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndScanExactTopic(t *testing.T) {
	s := NewStore()
	s.Put(&session.ApplicationMessage{Topic: "a/b", Data: []byte("hi"), QoS: 1, Retain: true})

	got := s.Scan("a/b")
	require.Len(t, got, 1)
	assert.Equal(t, "hi", string(got[0].Data))
}

func TestPutZeroLengthClears(t *testing.T) {
	s := NewStore()
	s.Put(&session.ApplicationMessage{Topic: "a/b", Data: []byte("hi")})
	s.Put(&session.ApplicationMessage{Topic: "a/b", Data: nil})
	assert.Empty(t, s.Scan("a/b"))
	assert.Equal(t, 0, s.Len())
}

func TestScanWildcard(t *testing.T) {
	s := NewStore()
	s.Put(&session.ApplicationMessage{Topic: "sensors/kitchen/temp", Data: []byte("21")})
	s.Put(&session.ApplicationMessage{Topic: "sensors/hall/temp", Data: []byte("19")})
	s.Put(&session.ApplicationMessage{Topic: "sensors/kitchen/humidity", Data: []byte("50")})

	got := s.Scan("sensors/+/temp")
	assert.Len(t, got, 2)
}

func TestScanDollarTopicIsolation(t *testing.T) {
	s := NewStore()
	s.Put(&session.ApplicationMessage{Topic: "$SYS/broker/uptime", Data: []byte("42")})
	assert.Empty(t, s.Scan("#"))
	assert.Len(t, s.Scan("$SYS/broker/uptime"), 1)
}
