package mqttclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/lumenmq/lighthouse/broker"
	"github.com/lumenmq/lighthouse/config"
	"github.com/lumenmq/lighthouse/internal/code"
	"github.com/lumenmq/lighthouse/internal/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := config.Default()
	cfg.Listeners.TCP = []config.ListenerAddr{{Address: addr}}
	b, err := broker.New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop(context.Background()) })
	time.Sleep(20 * time.Millisecond)
	return "mqtt://" + addr
}

func TestClientConnectPublishSubscribe(t *testing.T) {
	uri := startBroker(t)

	sub, err := Connect(context.Background(), uri, Options{ClientID: "sub-1", CleanSession: true, KeepAlive: 30 * time.Second})
	require.NoError(t, err)
	defer sub.Disconnect()

	codes, err := sub.Subscribe(context.Background(), []packet.TopicFilter{{Filter: []byte("x/y"), QoS: 1}})
	require.NoError(t, err)
	assert.Equal(t, []code.SubackCode{code.SubackQoS1}, codes)

	pub, err := Connect(context.Background(), uri, Options{ClientID: "pub-1", CleanSession: true, KeepAlive: 30 * time.Second})
	require.NoError(t, err)
	defer pub.Disconnect()

	require.NoError(t, pub.Publish("x/y", []byte("payload"), 1, false))

	msg, err := sub.DeliverMessage(context.Background(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "x/y", msg.Topic)
	assert.Equal(t, "payload", string(msg.Data))
}

func TestClientPing(t *testing.T) {
	uri := startBroker(t)
	c, err := Connect(context.Background(), uri, Options{ClientID: "pinger", CleanSession: true})
	require.NoError(t, err)
	defer c.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, c.Ping(ctx))
}

func TestClientRejectedOnBadScheme(t *testing.T) {
	_, err := Connect(context.Background(), "ftp://example.com", Options{ClientID: "x"})
	assert.Error(t, err)
}
