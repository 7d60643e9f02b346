package stream

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPStreamRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	serverStream := NewTCP(server)
	clientStream := NewTCP(client)

	go func() {
		_, _ = clientStream.Write([]byte("hello"))
	}()

	buf := make([]byte, 5)
	n, err := serverStream.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestCollapseAddrNonTCP(t *testing.T) {
	addr := &net.UnixAddr{Name: "/tmp/sock", Net: "unix"}
	assert.Equal(t, addr.String(), collapseAddr(addr))
}
