package handler

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/lumenmq/lighthouse/internal/code"
	"github.com/lumenmq/lighthouse/internal/packet"
	"github.com/lumenmq/lighthouse/internal/session"
	"github.com/lumenmq/lighthouse/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeStreams(t *testing.T) (stream.Stream, stream.Stream) {
	t.Helper()
	a, b := net.Pipe()
	return stream.NewTCP(a), stream.NewTCP(b)
}

func TestBrokerHandlerPublishQoS1RoundTrip(t *testing.T) {
	brokerSide, clientSide := pipeStreams(t)

	brokerSess := session.New("client-1", true)
	var received *session.ApplicationMessage
	var mu sync.Mutex
	bh := NewBrokerHandler(brokerSess, brokerSide, 0, BrokerCallbacks{
		OnPublish: func(ctx context.Context, msg *session.ApplicationMessage) {
			mu.Lock()
			received = msg
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bh.Run(ctx)

	// Simulate a client writing a QoS1 PUBLISH and reading the PUBACK.
	pub := &packet.Publish{Topic: []byte("a/b"), Payload: []byte("hi"), QoS: 1, PacketId: 7}
	require.NoError(t, pub.Encode(clientSide))

	pk, err := packet.Decode(clientSide)
	require.NoError(t, err)
	puback, ok := pk.(*packet.Puback)
	require.True(t, ok)
	assert.Equal(t, uint16(7), puback.PacketId)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, received)
	assert.Equal(t, "a/b", received.Topic)
	assert.Equal(t, "hi", string(received.Data))
}

func TestBrokerHandlerSubscribeGrantsCodes(t *testing.T) {
	brokerSide, clientSide := pipeStreams(t)
	sess := session.New("client-1", true)
	bh := NewBrokerHandler(sess, brokerSide, 0, BrokerCallbacks{
		OnSubscribe: func(ctx context.Context, sess *session.Session, pk *packet.Subscribe) []code.SubackCode {
			return []code.SubackCode{code.SubackQoS1}
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bh.Run(ctx)

	sub := &packet.Subscribe{PacketId: 3, Filters: []packet.TopicFilter{{Filter: []byte("a/b"), QoS: 1}}}
	require.NoError(t, sub.Encode(clientSide))

	pk, err := packet.Decode(clientSide)
	require.NoError(t, err)
	suback, ok := pk.(*packet.Suback)
	require.True(t, ok)
	assert.Equal(t, []code.SubackCode{code.SubackQoS1}, suback.Codes)
}

func TestCoreDeliverOutboundQoS2ThenRetransmitSetsDup(t *testing.T) {
	brokerSide, clientSide := pipeStreams(t)
	sess := session.New("client-1", false)
	core := NewCore(sess, brokerSide, 0, func(context.Context, packet.Packet) error { return nil }, "test")

	msg := &session.ApplicationMessage{Topic: "a/b", Data: []byte("x"), QoS: 2}
	go func() { _ = core.DeliverOutbound(msg) }()

	pk, err := packet.Decode(clientSide)
	require.NoError(t, err)
	pub := pk.(*packet.Publish)
	assert.False(t, pub.Dup)
	assert.Equal(t, 1, sess.InflightOut.Len())

	go func() { _ = core.Retransmit() }()
	pk2, err := packet.Decode(clientSide)
	require.NoError(t, err)
	pub2 := pk2.(*packet.Publish)
	assert.True(t, pub2.Dup)
	assert.Equal(t, byte(0), boolToByte(pub2.Retain)) // MQTT-3.3.1-3
}

func TestCoreAcceptInboundDropsQoS0WithDup(t *testing.T) {
	brokerSide, _ := pipeStreams(t)
	sess := session.New("client-1", true)
	core := NewCore(sess, brokerSide, 0, func(context.Context, packet.Packet) error { return nil }, "test")

	deliverNow, err := core.AcceptInbound(&packet.Publish{Topic: []byte("a/b"), Payload: []byte("x"), QoS: 0, Dup: true})
	require.NoError(t, err)
	assert.False(t, deliverNow)

	deliverNow, err = core.AcceptInbound(&packet.Publish{Topic: []byte("a/b"), Payload: []byte("x"), QoS: 0})
	require.NoError(t, err)
	assert.True(t, deliverNow)
}

func boolToByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func TestClientHandlerPingPong(t *testing.T) {
	clientCoreSide, peerSide := pipeStreams(t)
	sess := session.New("client-1", true)

	pinged := make(chan struct{}, 1)
	ch := NewClientHandler(sess, clientCoreSide, 0, ClientCallbacks{
		OnPingresp: func() { pinged <- struct{}{} },
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)

	require.NoError(t, ch.Ping())
	pk, err := packet.Decode(peerSide)
	require.NoError(t, err)
	_, ok := pk.(*packet.Pingreq)
	require.True(t, ok)

	require.NoError(t, (&packet.Pingresp{}).Encode(peerSide))
	select {
	case <-pinged:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnPingresp")
	}
}
