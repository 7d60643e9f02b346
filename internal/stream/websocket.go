package stream

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Subprotocol is the WebSocket subprotocol MQTT over WebSockets
// negotiates (MQTT-6.0.0-3).
const Subprotocol = "mqtt"

// Upgrader is the broker-side HTTP->WebSocket upgrader, pre-configured
// to require and select the "mqtt" subprotocol.
var Upgrader = websocket.Upgrader{
	Subprotocols:    []string{Subprotocol},
	CheckOrigin:     func(*http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsStream adapts a *websocket.Conn: MQTT control packets are carried
// one-or-more to a binary frame, so reads concatenate frames into an
// internal buffer until the caller has the bytes it asked for, and a
// received close frame surfaces as io.EOF.
type wsStream struct {
	conn *websocket.Conn
	buf  bytes.Buffer
}

// NewWebSocket wraps an already-upgraded *websocket.Conn as a Stream.
func NewWebSocket(conn *websocket.Conn) Stream {
	conn.SetReadLimit(0) // packet-level framing caps size, not the socket
	return &wsStream{conn: conn}
}

func (w *wsStream) Read(p []byte) (int, error) {
	for w.buf.Len() == 0 {
		msgType, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}
		if msgType == websocket.CloseMessage {
			return 0, io.EOF
		}
		if msgType != websocket.BinaryMessage {
			// Text frames aren't valid MQTT-over-WS traffic; ignore them
			// rather than tearing down the connection on a stray frame.
			continue
		}
		w.buf.Write(data)
	}
	return w.buf.Read(p)
}

func (w *wsStream) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsStream) Close() error {
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return w.conn.Close()
}

func (w *wsStream) RemoteAddr() string {
	return collapseAddr(w.conn.RemoteAddr())
}
