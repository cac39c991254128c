package app

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry maps remote addresses to client sessions. Every operation takes
// the lock, so snapshots never observe a partially updated entry.
type Registry struct {
	mu       sync.RWMutex
	sessions map[netip.AddrPort]*domain.ClientSession
	now      func() time.Time
}

func NewRegistry() *Registry {
	return NewRegistryWithClock(time.Now)
}

func NewRegistryWithClock(now func() time.Time) *Registry {
	return &Registry{
		sessions: make(map[netip.AddrPort]*domain.ClientSession),
		now:      now,
	}
}

// Register creates a session for addr or refreshes the existing one. The
// existing display name is kept. isNew is false for a known address.
func (r *Registry) Register(addr netip.AddrPort, name string) (domain.ClientSession, bool) {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[addr]; ok {
		s.Touch(now)
		return *s, false
	}
	s := domain.NewClientSession(addr, name, now)
	r.sessions[addr] = s
	log.Debug().Str("module", "app.registry").Str("sid", string(s.ID)).Str("addr", addr.String()).Msg("session added")
	return *s, true
}

// Touch refreshes liveness for a known address. It reports whether addr is registered.
func (r *Registry) Touch(addr netip.AddrPort) bool {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[addr]
	if !ok {
		return false
	}
	s.State = s.State.Next(domain.EventHeartbeat)
	s.Touch(now)
	return true
}

// Remove deletes the session for addr, if any.
func (r *Registry) Remove(addr netip.AddrPort) (domain.ClientSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[addr]
	if !ok {
		return domain.ClientSession{}, false
	}
	delete(r.sessions, addr)
	s.State = s.State.Next(domain.EventDisconnect)
	log.Info().Str("module", "app.registry").Str("sid", string(s.ID)).Str("addr", addr.String()).Msg("client removed")
	return *s, true
}

func (r *Registry) IsRegistered(addr netip.AddrPort) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[addr]
	return ok
}

func (r *Registry) Get(addr netip.AddrPort) (domain.ClientSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[addr]
	if !ok {
		return domain.ClientSession{}, false
	}
	return *s, true
}

// Snapshot returns the registered addresses, independent of later mutation.
func (r *Registry) Snapshot() []netip.AddrPort {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]netip.AddrPort, 0, len(r.sessions))
	for addr := range r.sessions {
		out = append(out, addr)
	}
	return out
}

// Sessions returns copies of every session ordered by registration time.
func (r *Registry) Sessions() []domain.ClientSession {
	r.mu.RLock()
	out := make([]domain.ClientSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].Addr.String() < out[j].Addr.String()
		}
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Expire removes every session silent for longer than timeout and returns them.
func (r *Registry) Expire(timeout time.Duration) []domain.ClientSession {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []domain.ClientSession
	for addr, s := range r.sessions {
		if s.Idle(now) <= timeout {
			continue
		}
		delete(r.sessions, addr)
		s.State = s.State.Next(domain.EventExpired)
		expired = append(expired, *s)
		log.Info().Str("module", "app.registry").Str("sid", string(s.ID)).Str("addr", addr.String()).Dur("idle", s.Idle(now)).Msg("client expired")
	}
	return expired
}
