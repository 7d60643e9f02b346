// Package policy defines the AuthPolicy contract the broker core calls
// out to. Authentication and topic-authorization policy implementations
// (file, database, LDAP, JWT, HTTP, X.509) are out of scope for this
// core; this package only carries the interface plus the anonymous
// default.
package policy

import "context"

// Decision is an Authenticate verdict.
type Decision int

const (
	Abstain Decision = iota
	Allow
	Deny
)

// Action is the kind of topic access being checked.
type Action int

const (
	Publish Action = iota
	Subscribe
	Receive
)

// Session is the minimal view of a session a policy needs; it avoids an
// import cycle with internal/session (which does not need to know about
// policy).
type Session interface {
	GetClientID() string
	GetUsername() string
	GetRemoteAddr() string
}

// AuthPolicy is the pluggable authentication/authorization collaborator:
// Authenticate decides whether a CONNECT is accepted, TopicAllowed gates
// individual publish/subscribe/receive operations.
type AuthPolicy interface {
	// Authenticate returns Allow, Deny, or Abstain. The broker's overall
	// decision is AllowAll ∧ ¬AnyDeny across every registered policy.
	Authenticate(ctx context.Context, sess Session) (Decision, error)
	// TopicAllowed reports whether sess may perform action on topic.
	// Returns true when topic-checking is disabled.
	TopicAllowed(ctx context.Context, sess Session, topic string, action Action) bool
}

// Anonymous is the baseline AuthPolicy: it allows every CONNECT and every
// topic operation. It is the only AuthPolicy implementation in scope of
// this core; everything else is a plugin.
type Anonymous struct{}

func (Anonymous) Authenticate(context.Context, Session) (Decision, error) { return Allow, nil }
func (Anonymous) TopicAllowed(context.Context, Session, string, Action) bool {
	return true
}

// Chain evaluates policies in order: the overall decision is Allow iff at
// least one policy allows and none deny.
type Chain []AuthPolicy

func (c Chain) Authenticate(ctx context.Context, sess Session) (Decision, error) {
	if len(c) == 0 {
		return Allow, nil
	}
	sawAllow := false
	for _, p := range c {
		d, err := p.Authenticate(ctx, sess)
		if err != nil {
			return Deny, err
		}
		switch d {
		case Deny:
			return Deny, nil
		case Allow:
			sawAllow = true
		}
	}
	if sawAllow {
		return Allow, nil
	}
	return Abstain, nil
}

func (c Chain) TopicAllowed(ctx context.Context, sess Session, topic string, action Action) bool {
	for _, p := range c {
		if !p.TopicAllowed(ctx, sess, topic, action) {
			return false
		}
	}
	return true
}
