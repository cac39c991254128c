package app

import (
	"net/netip"
	"sync"
	"time"
)

// ReplyLimiter bounds how many replies one address can trigger per interval.
// A zero limit allows everything.
type ReplyLimiter struct {
	mu       sync.Mutex
	history  map[netip.AddrPort][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewReplyLimiter(limit int, interval time.Duration) *ReplyLimiter {
	return NewReplyLimiterWithClock(limit, interval, time.Now)
}

func NewReplyLimiterWithClock(limit int, interval time.Duration, now func() time.Time) *ReplyLimiter {
	return &ReplyLimiter{
		history:  make(map[netip.AddrPort][]time.Time),
		limit:    limit,
		interval: interval,
		now:      now,
	}
}

func (rl *ReplyLimiter) Allow(addr netip.AddrPort) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	fresh := rl.freshLocked(addr, now)
	if len(fresh) >= rl.limit {
		rl.history[addr] = fresh
		return false
	}
	rl.history[addr] = append(fresh, now)
	return true
}

// Forget drops the history of addr.
func (rl *ReplyLimiter) Forget(addr netip.AddrPort) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.history, addr)
	rl.mu.Unlock()
}

// Prune removes addresses with no attempts inside the window.
func (rl *ReplyLimiter) Prune() {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for addr := range rl.history {
		if fresh := rl.freshLocked(addr, now); len(fresh) == 0 {
			delete(rl.history, addr)
		} else {
			rl.history[addr] = fresh
		}
	}
}

// Len is the number of addresses with recorded history.
func (rl *ReplyLimiter) Len() int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.history)
}

func (rl *ReplyLimiter) freshLocked(addr netip.AddrPort, now time.Time) []time.Time {
	windowStart := now.Add(-rl.interval)
	attempts := rl.history[addr]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	return fresh
}
