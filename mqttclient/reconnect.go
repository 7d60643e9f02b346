package mqttclient

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reconnect retries dialAndHandshake with exponential backoff
// (ReconnectMinBackoff doubling up to ReconnectMaxBackoff) until it
// succeeds or ctx is cancelled. A non-clean client keeps its session
// across the reconnect, so on success its surviving inflight messages
// resume delivery via handler.Core.Retransmit.
func (c *Client) Reconnect(ctx context.Context) error {
	backoff := c.opts.ReconnectMinBackoff
	for {
		err := c.dialAndHandshake(ctx)
		if err == nil {
			c.mu.Lock()
			core := c.ch.Core()
			c.mu.Unlock()
			return core.Retransmit()
		}

		c.log.Warn("reconnect attempt failed", zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.opts.ReconnectMaxBackoff {
			backoff = c.opts.ReconnectMaxBackoff
		}
	}
}
