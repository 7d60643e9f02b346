package broker

import (
	"net"

	"github.com/lumenmq/lighthouse/internal/stream"
)

func newTCPStream(conn net.Conn) stream.Stream { return stream.NewTCP(conn) }
