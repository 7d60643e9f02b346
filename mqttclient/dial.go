package mqttclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/lumenmq/lighthouse/internal/stream"
)

// defaultPorts maps each supported scheme to its IANA-assigned default
// port, used when the URI omits one.
var defaultPorts = map[string]string{
	"mqtt":  "1883",
	"mqtts": "8883",
	"ws":    "80",
	"wss":   "443",
}

// dialURI connects to uri ("mqtt://", "mqtts://", "ws://" or "wss://")
// and returns the resulting Stream.
func dialURI(ctx context.Context, uri string) (stream.Stream, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("mqttclient: parse uri: %w", err)
	}

	defaultPort, ok := defaultPorts[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("mqttclient: unsupported scheme %q", u.Scheme)
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), defaultPort)
	}

	switch u.Scheme {
	case "mqtt":
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", host)
		if err != nil {
			return nil, err
		}
		return stream.NewTCP(conn), nil
	case "mqtts":
		var d net.Dialer
		conn, err := tls.DialWithDialer(&d, "tcp", host, &tls.Config{ServerName: u.Hostname()})
		if err != nil {
			return nil, err
		}
		return stream.NewTCP(conn), nil
	case "ws", "wss":
		dialer := websocket.Dialer{Subprotocols: []string{stream.Subprotocol}}
		wsURL := *u
		if wsURL.Path == "" {
			wsURL.Path = "/mqtt"
		}
		conn, _, err := dialer.DialContext(ctx, wsURL.String(), nil)
		if err != nil {
			return nil, err
		}
		return stream.NewWebSocket(conn), nil
	default:
		return nil, fmt.Errorf("mqttclient: unsupported scheme %q", u.Scheme)
	}
}
