package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketIDAllocatorSkipsInUse(t *testing.T) {
	s := New("c1", true)
	s.InflightOut.Set(1, &ApplicationMessage{PacketID: 1, HasPID: true})
	s.InflightOut.Set(2, &ApplicationMessage{PacketID: 2, HasPID: true})

	id, err := s.AllocatePacketID()
	require.NoError(t, err)
	assert.EqualValues(t, 3, id)
}

func TestPacketIDAllocatorExhaustion(t *testing.T) {
	s := New("c1", true)
	for i := uint32(1); i <= 65535; i++ {
		s.InflightOut.Set(uint16(i), &ApplicationMessage{PacketID: uint16(i)})
	}
	_, err := s.AllocatePacketID()
	assert.Error(t, err)
}

func TestInflightMapOrdering(t *testing.T) {
	m := NewInflightMap()
	m.Set(3, &ApplicationMessage{PacketID: 3})
	m.Set(1, &ApplicationMessage{PacketID: 1})
	m.Set(2, &ApplicationMessage{PacketID: 2})

	ordered := m.Ordered()
	require.Len(t, ordered, 3)
	assert.EqualValues(t, 3, ordered[0].PacketID)
	assert.EqualValues(t, 1, ordered[1].PacketID)
	assert.EqualValues(t, 2, ordered[2].PacketID)

	m.Delete(1)
	assert.False(t, m.Has(1))
	assert.Equal(t, 2, m.Len())
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	q.Put(1)
	q.Put(2)
	q.Put(3)

	for _, want := range []int{1, 2, 3} {
		select {
		case v := <-q.Out():
			assert.Equal(t, want, v)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for queued value")
		}
	}
}

func TestSessionStateMachine(t *testing.T) {
	s := New("c1", false)
	assert.Equal(t, StateNew, s.State())
	s.Connect()
	assert.Equal(t, StateConnected, s.State())
	s.Disconnect()
	assert.Equal(t, StateDisconnected, s.State())
	s.Disconnect() // idempotent
	assert.Equal(t, StateDisconnected, s.State())
	s.Connect()
	assert.Equal(t, StateConnected, s.State())
}

func TestSessionResetClearsState(t *testing.T) {
	s := New("c1", true)
	s.InflightOut.Set(1, &ApplicationMessage{PacketID: 1})
	s.RetainedQueue.Put("x")

	s.Reset()
	assert.Equal(t, 0, s.InflightOut.Len())

	select {
	case <-s.RetainedQueue.Out():
		t.Fatal("expected a fresh, empty retained queue after Reset")
	case <-time.After(10 * time.Millisecond):
	}
}
