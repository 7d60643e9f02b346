package broker

import (
	"context"
	"net/http"

	"github.com/lumenmq/lighthouse/internal/stream"
)

// wsListener serves MQTT-over-WebSocket on one HTTP listener, upgrading
// every request and handing the resulting Stream to onAccept.
type wsListener struct {
	srv *http.Server
}

func newWSListener(addr string, onAccept func(stream.Stream)) (*wsListener, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mqtt", func(w http.ResponseWriter, r *http.Request) {
		conn, err := stream.Upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		onAccept(stream.NewWebSocket(conn))
	})
	return &wsListener{srv: &http.Server{Addr: addr, Handler: mux}}, nil
}

func (w *wsListener) serve() error {
	err := w.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (w *wsListener) close() error {
	return w.srv.Shutdown(context.Background())
}
