package broker

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/lumenmq/lighthouse/config"
	"github.com/lumenmq/lighthouse/internal/code"
	"github.com/lumenmq/lighthouse/internal/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func newTestBroker(t *testing.T) (*Broker, string) {
	t.Helper()
	addr := freePort(t)
	cfg := config.Default()
	cfg.Listeners.TCP = []config.ListenerAddr{{Address: addr}}
	b, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop(context.Background()) })
	return b, addr
}

func connectClient(t *testing.T, addr, clientID string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	connect := &packet.Connect{
		ProtocolName:  []byte("MQTT"),
		ProtocolLevel: 4,
		Version:       packet.V311,
		ConnectFlags:  packet.ConnectFlags{CleanSession: true},
		KeepAlive:     60,
		ClientId:      []byte(clientID),
	}
	require.NoError(t, connect.Encode(conn))

	pk, err := packet.Decode(conn)
	require.NoError(t, err)
	ack, ok := pk.(*packet.Connack)
	require.True(t, ok)
	require.Equal(t, code.Success, ack.Code)
	return conn
}

func TestBrokerConnectAndPublishFanout(t *testing.T) {
	_, addr := newTestBroker(t)

	sub := connectClient(t, addr, "subscriber")
	defer sub.Close()
	subscribe := &packet.Subscribe{PacketId: 1, Filters: []packet.TopicFilter{{Filter: []byte("a/b"), QoS: 1}}}
	require.NoError(t, subscribe.Encode(sub))
	pk, err := packet.Decode(sub)
	require.NoError(t, err)
	suback := pk.(*packet.Suback)
	assert.Equal(t, []code.SubackCode{code.SubackQoS1}, suback.Codes)

	pub := connectClient(t, addr, "publisher")
	defer pub.Close()
	publish := &packet.Publish{Topic: []byte("a/b"), Payload: []byte("hello"), QoS: 0}
	require.NoError(t, publish.Encode(pub))

	sub.SetReadDeadline(time.Now().Add(2 * time.Second))
	pk, err = packet.Decode(sub)
	require.NoError(t, err)
	got := pk.(*packet.Publish)
	assert.Equal(t, "a/b", string(got.Topic))
	assert.Equal(t, "hello", string(got.Payload))
}

func TestBrokerRetainedReplayOnSubscribe(t *testing.T) {
	_, addr := newTestBroker(t)

	pub := connectClient(t, addr, "publisher")
	defer pub.Close()
	publish := &packet.Publish{Topic: []byte("r/topic"), Payload: []byte("retained!"), QoS: 0, Retain: true}
	require.NoError(t, publish.Encode(pub))
	time.Sleep(50 * time.Millisecond)

	sub := connectClient(t, addr, "late-subscriber")
	defer sub.Close()
	subscribe := &packet.Subscribe{PacketId: 1, Filters: []packet.TopicFilter{{Filter: []byte("r/topic"), QoS: 0}}}
	require.NoError(t, subscribe.Encode(sub))

	pk, err := packet.Decode(sub)
	require.NoError(t, err)
	_, ok := pk.(*packet.Suback)
	require.True(t, ok)

	sub.SetReadDeadline(time.Now().Add(2 * time.Second))
	pk, err = packet.Decode(sub)
	require.NoError(t, err)
	got := pk.(*packet.Publish)
	assert.Equal(t, "retained!", string(got.Payload))
	assert.True(t, got.Retain)
}

func TestBrokerStatsTracksConnectedClients(t *testing.T) {
	b, addr := newTestBroker(t)
	assert.Equal(t, int64(0), b.Stats().ConnectedClients)

	conn := connectClient(t, addr, "counted")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), b.Stats().ConnectedClients)

	conn.Close()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), b.Stats().ConnectedClients)
}

func TestBrokerZeroLengthClientIDGetsAssigned(t *testing.T) {
	_, addr := newTestBroker(t)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	connect := &packet.Connect{
		ProtocolName:  []byte("MQTT"),
		ProtocolLevel: 4,
		Version:       packet.V311,
		ConnectFlags:  packet.ConnectFlags{CleanSession: true},
		KeepAlive:     60,
		ClientId:      []byte{},
	}
	require.NoError(t, connect.Encode(conn))
	pk, err := packet.Decode(conn)
	require.NoError(t, err)
	ack := pk.(*packet.Connack)
	assert.Equal(t, code.Success, ack.Code)
}

func TestBrokerUnacceptableProtocolVersionGetsConnackBeforeClose(t *testing.T) {
	_, addr := newTestBroker(t)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	connect := &packet.Connect{
		ProtocolName:  []byte("MQTT"),
		ProtocolLevel: 9,
		Version:       packet.Version(9),
		ConnectFlags:  packet.ConnectFlags{CleanSession: true},
		KeepAlive:     60,
		ClientId:      []byte("bad-version"),
	}
	require.NoError(t, connect.Encode(conn))

	pk, err := packet.Decode(conn)
	require.NoError(t, err)
	ack, ok := pk.(*packet.Connack)
	require.True(t, ok)
	assert.Equal(t, code.UnacceptableProtocolVersion, ack.Code)
}

func TestBrokerEmptyClientIDNotCleanGetsConnackBeforeClose(t *testing.T) {
	_, addr := newTestBroker(t)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	connect := &packet.Connect{
		ProtocolName:  []byte("MQTT"),
		ProtocolLevel: 4,
		Version:       packet.V311,
		ConnectFlags:  packet.ConnectFlags{CleanSession: false},
		KeepAlive:     60,
		ClientId:      []byte{},
	}
	require.NoError(t, connect.Encode(conn))

	pk, err := packet.Decode(conn)
	require.NoError(t, err)
	ack, ok := pk.(*packet.Connack)
	require.True(t, ok)
	assert.Equal(t, code.IdentifierRejected, ack.Code)
}

func TestBrokerQueuesOfflineMessagesForNonCleanSessionAndReplaysOnReconnect(t *testing.T) {
	_, addr := newTestBroker(t)

	sub, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	subConnect := &packet.Connect{
		ProtocolName:  []byte("MQTT"),
		ProtocolLevel: 4,
		Version:       packet.V311,
		ConnectFlags:  packet.ConnectFlags{CleanSession: false},
		KeepAlive:     60,
		ClientId:      []byte("offline-sub"),
	}
	require.NoError(t, subConnect.Encode(sub))
	pk, err := packet.Decode(sub)
	require.NoError(t, err)
	subAck, ok := pk.(*packet.Connack)
	require.True(t, ok)
	require.Equal(t, code.Success, subAck.Code)
	subscribe := &packet.Subscribe{PacketId: 1, Filters: []packet.TopicFilter{{Filter: []byte("a/b"), QoS: 1}}}
	require.NoError(t, subscribe.Encode(sub))
	pk, err = packet.Decode(sub)
	require.NoError(t, err)
	_, ok = pk.(*packet.Suback)
	require.True(t, ok)
	sub.Close() // goes offline without a graceful DISCONNECT; non-clean session survives

	time.Sleep(50 * time.Millisecond)

	pub := connectClient(t, addr, "publisher")
	defer pub.Close()
	publish := &packet.Publish{Topic: []byte("a/b"), Payload: []byte("while offline"), QoS: 1, PacketId: 1}
	require.NoError(t, publish.Encode(pub))
	pk, err = packet.Decode(pub)
	require.NoError(t, err)
	_, ok = pk.(*packet.Puback)
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	connect := &packet.Connect{
		ProtocolName:  []byte("MQTT"),
		ProtocolLevel: 4,
		Version:       packet.V311,
		ConnectFlags:  packet.ConnectFlags{CleanSession: false},
		KeepAlive:     60,
		ClientId:      []byte("offline-sub"),
	}
	require.NoError(t, connect.Encode(conn))
	pk, err = packet.Decode(conn)
	require.NoError(t, err)
	ack := pk.(*packet.Connack)
	assert.Equal(t, code.Success, ack.Code)
	assert.True(t, ack.SessionPresent)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	pk, err = packet.Decode(conn)
	require.NoError(t, err)
	got := pk.(*packet.Publish)
	assert.Equal(t, "a/b", string(got.Topic))
	assert.Equal(t, "while offline", string(got.Payload))
}
