// Package xerror is the broker/client error taxonomy. Errors here are
// sentinel values (or small wrapping types) rather than ad-hoc fmt.Errorf
// strings so that callers up the stack (the protocol handler, the broker
// core) can type-switch on them to decide whether a connection is fatal.
package xerror

import (
	"errors"
	"fmt"

	"github.com/lumenmq/lighthouse/internal/code"
)

// Sentinel errors for framing, protocol-state and broker-lifecycle
// failures. Fatal reports which of them end the connection that
// produced them.
var (
	ErrMalformed         = errors.New("xerror: malformed packet")
	ErrProtocolViolation = errors.New("xerror: protocol violation")
	ErrNoFreePacketId    = errors.New("xerror: no free packet id")
	ErrConnectionLost    = errors.New("xerror: connection lost")
	ErrTimeout           = errors.New("xerror: timeout")
	ErrAuthDenied        = errors.New("xerror: authentication denied")
	ErrNotStarted        = errors.New("xerror: broker not started")
	ErrAlreadyStarted    = errors.New("xerror: broker already started")
)

// ConnectRejected carries the CONNACK return code a failed CONNECT is
// rejected with. It is surfaced to the client API as a typed error.
type ConnectRejected struct {
	Code code.Code
}

func (e *ConnectRejected) Error() string {
	return fmt.Sprintf("xerror: connect rejected: %s", e.Code)
}

func (e *ConnectRejected) Is(target error) bool {
	_, ok := target.(*ConnectRejected)
	return ok
}

// NewConnectRejected builds a ConnectRejected for the given code.
func NewConnectRejected(c code.Code) *ConnectRejected {
	return &ConnectRejected{Code: c}
}

// PluginError wraps an error raised by an observer or a policy plugin.
// It never fails the connection unless it was raised from Authenticate.
type PluginError struct {
	Source string
	Err    error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("xerror: plugin %q: %v", e.Source, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }

// Fatal reports whether err should terminate the connection it occurred on.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrMalformed),
		errors.Is(err, ErrProtocolViolation),
		errors.Is(err, ErrConnectionLost):
		return true
	}
	var rejected *ConnectRejected
	if errors.As(err, &rejected) {
		return true
	}
	return false
}
