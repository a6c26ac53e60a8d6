// Package ratelimit implements the sliding-window per-client admission
// control described in spec §4.3 (C4).
//
// golang.org/x/time/rate implements a token bucket, not a sliding window
// with a coarse blocked_until cooldown; its contract doesn't match §4.3's
// "deque of timestamps + block the whole window on trip" semantics, so this
// is hand-rolled on a plain slice instead of reached for as a dependency.
package ratelimit

import (
	"sync"
	"time"
)

// clientState is the per-identity sliding window, per spec's RateLimiterState.
type clientState struct {
	mu          sync.Mutex
	timestamps  []time.Time
	blockedUntil time.Time
}

// Limiter is C4.
type Limiter struct {
	Limit    int
	Window   time.Duration
	Cooldown time.Duration

	mu      sync.Mutex
	clients map[string]*clientState
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter. cooldown defaults to window when zero, per spec's
// "cooldown = window, by default".
func New(limit int, window time.Duration, cooldown time.Duration, opts ...Option) *Limiter {
	if cooldown <= 0 {
		cooldown = window
	}
	l := &Limiter{
		Limit:    limit,
		Window:   window,
		Cooldown: cooldown,
		clients:  make(map[string]*clientState),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) stateFor(client string) *clientState {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.clients[client]
	if !ok {
		s = &clientState{}
		l.clients[client] = s
	}
	return s
}

// Admit implements the admission algorithm from spec §4.3: drop stale
// timestamps, deny (and trip the cooldown) if the window is full, deny
// without recording while blocked, else record and allow.
func (l *Limiter) Admit(client string) bool {
	s := l.stateFor(client)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.Window)
	s.timestamps = dropBefore(s.timestamps, cutoff)

	if !s.blockedUntil.IsZero() && now.Before(s.blockedUntil) {
		return false
	}
	if !s.blockedUntil.IsZero() && !now.Before(s.blockedUntil) {
		s.blockedUntil = time.Time{}
	}

	if len(s.timestamps) >= l.Limit {
		s.blockedUntil = now.Add(l.Cooldown)
		return false
	}

	s.timestamps = append(s.timestamps, now)
	return true
}

func dropBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(ts); i++ {
		if ts[i].After(cutoff) {
			break
		}
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0:0], ts[i:]...)
}

// Sweep purges client state whose oldest timestamp is older than 2*window
// and whose block has lapsed, per spec §4.3's periodic garbage collection.
// Invoked from the browser manager's expiry sweep (C8), not on the hot path.
func (l *Limiter) Sweep() {
	now := l.now()
	staleCutoff := now.Add(-2 * l.Window)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, s := range l.clients {
		s.mu.Lock()
		s.timestamps = dropBefore(s.timestamps, staleCutoff)
		stale := len(s.timestamps) == 0 && (s.blockedUntil.IsZero() || !now.Before(s.blockedUntil))
		oldestStale := true
		for _, ts := range s.timestamps {
			if ts.After(staleCutoff) {
				oldestStale = false
				break
			}
		}
		remove := stale && oldestStale
		s.mu.Unlock()
		if remove {
			delete(l.clients, key)
		}
	}
}
