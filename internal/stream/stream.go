// Package stream is the connection transport adapter: it
// gives the protocol handler (internal/handler) one byte-stream
// interface regardless of whether the underlying transport is a raw TCP
// socket or a WebSocket connection carrying the "mqtt" subprotocol.
package stream

import (
	"io"
	"net"
)

// Stream is a bidirectional byte stream with a known peer address. Both
// the TCP and WebSocket adapters implement io.Reader the same way: Read
// blocks until at least one byte is available and returns up to
// len(p) bytes, same as net.Conn.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
	// RemoteAddr is the (host, port) of the peer, collapsed to a single
	// string. For a 4-in-6 mapped address this reports the IPv4 form.
	RemoteAddr() string
}

// tcpStream adapts a net.Conn directly; reads and writes pass straight
// through.
type tcpStream struct {
	conn net.Conn
}

// NewTCP wraps conn as a Stream.
func NewTCP(conn net.Conn) Stream {
	return &tcpStream{conn: conn}
}

func (t *tcpStream) Read(p []byte) (int, error)  { return t.conn.Read(p) }
func (t *tcpStream) Write(p []byte) (int, error) { return t.conn.Write(p) }
func (t *tcpStream) Close() error                { return t.conn.Close() }

func (t *tcpStream) RemoteAddr() string {
	return collapseAddr(t.conn.RemoteAddr())
}

// collapseAddr renders a net.Addr as "host:port", unwrapping an
// IPv4-mapped IPv6 address to its dotted-quad form.
func collapseAddr(addr net.Addr) string {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String()
	}
	ip := tcpAddr.IP
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return (&net.TCPAddr{IP: ip, Port: tcpAddr.Port}).String()
}
