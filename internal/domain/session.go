package domain

import (
	"net/netip"
	"time"

	"github.com/google/uuid"
)

type SessionID string

// ClientSession is the server-side record of one registered remote address.
// No transport logic here.
type ClientSession struct {
	ID           SessionID
	Addr         netip.AddrPort
	Name         string
	RegisteredAt time.Time
	LastSeen     time.Time
	State        SessionState
}

// NewClientSession starts a Registered session at now.
func NewClientSession(addr netip.AddrPort, name string, now time.Time) *ClientSession {
	return &ClientSession{
		ID:           SessionID(uuid.NewString()),
		Addr:         addr,
		Name:         TruncateUsername(name),
		RegisteredAt: now,
		LastSeen:     now,
		State:        StateRegistered,
	}
}

// Touch refreshes liveness. It is a self-loop on Registered.
func (s *ClientSession) Touch(now time.Time) {
	if s.State != StateRegistered {
		return
	}
	if now.After(s.LastSeen) {
		s.LastSeen = now
	}
}

// Idle reports how long the session has been silent at now.
func (s *ClientSession) Idle(now time.Time) time.Duration {
	return now.Sub(s.LastSeen)
}
