// Package session holds per-client state across a connection's lifetime
// (and across a non-clean reconnect): the will, the packet-id allocator,
// the inflight maps, and the retained/delivery queues.
package session

import (
	"fmt"
	"sync"
	"time"
)

// Direction of an ApplicationMessage relative to this session.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

// ApplicationMessage is the unit of MQTT payload delivery, spanning the
// lifetime of one PUBLISH and its QoS acknowledgement flow. Two
// ApplicationMessages are equal iff their PacketID matches (only
// meaningful for QoS > 0).
type ApplicationMessage struct {
	PacketID  uint16
	HasPID    bool
	Topic     string
	QoS       byte
	Data      []byte
	Retain    bool
	Direction Direction
	Dup       bool
}

// Will is the message a broker publishes on behalf of a client that
// disconnects abnormally.
type Will struct {
	Topic   string
	Message []byte
	QoS     byte
	Retain  bool
}

// State is the session connection-state machine.
type State int

const (
	StateNew State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is per-client state, shared by the broker (which owns it) and
// the protocol handler attached to its current connection (which holds a
// cooperative, non-owning reference).
type Session struct {
	mu sync.Mutex

	ClientID     string
	CleanSession bool
	Will         *Will
	KeepAlive    time.Duration
	Username     string
	RemoteAddr   string

	// Parent reports whether this session existed before the current
	// CONNECT (i.e. whether CONNACK should set session_present).
	Parent bool

	state State

	ids *PacketIDAllocator

	InflightOut *InflightMap
	InflightIn  *InflightMap

	RetainedQueue *Queue
	DeliveryQueue *Queue
}

// New creates a fresh session for clientID.
func New(clientID string, cleanSession bool) *Session {
	return &Session{
		ClientID:      clientID,
		CleanSession:  cleanSession,
		state:         StateNew,
		ids:           &PacketIDAllocator{},
		InflightOut:   NewInflightMap(),
		InflightIn:    NewInflightMap(),
		RetainedQueue: NewQueue(),
		DeliveryQueue: NewQueue(),
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect transitions the session to Connected. A reconnect attempt
// while already Connected is a concurrent take-over; the caller
// (broker.handleStream) is responsible for closing the previous handler
// before calling this.
func (s *Session) Connect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateConnected
}

// Disconnect transitions the session to Disconnected. Idempotent from
// any state.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateDisconnected
}

// AllocatePacketID returns a fresh outbound packet id not already present
// in either inflight map.
func (s *Session) AllocatePacketID() (uint16, error) {
	return s.ids.Next(func(id uint16) bool {
		return s.InflightOut.Has(id) || s.InflightIn.Has(id)
	})
}

// Reset clears queues and inflight state. Called on a clean_session=true
// reconnect; session destruction goes through Destroy.
func (s *Session) Reset() {
	s.InflightOut.Clear()
	s.InflightIn.Clear()
	s.RetainedQueue.Close()
	s.DeliveryQueue.Close()
	s.RetainedQueue = NewQueue()
	s.DeliveryQueue = NewQueue()
}

// Destroy releases the session's queues permanently. Called when the
// session itself (not just its connection) is going away.
func (s *Session) Destroy() {
	s.RetainedQueue.Close()
	s.DeliveryQueue.Close()
}

// GetClientID, GetUsername and GetRemoteAddr satisfy policy.Session so an
// AuthPolicy can inspect a Session without internal/policy importing
// internal/session (avoiding an import cycle).
func (s *Session) GetClientID() string   { return s.ClientID }
func (s *Session) GetUsername() string   { return s.Username }
func (s *Session) GetRemoteAddr() string { return s.RemoteAddr }

func (s *Session) String() string {
	return fmt.Sprintf("Session{client_id=%s, clean_session=%v, state=%s}", s.ClientID, s.CleanSession, s.State())
}
