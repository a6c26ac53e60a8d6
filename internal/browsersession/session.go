// Package browsersession implements C7: a thin wrapper owning one isolated
// page context and its primary page. All driver operations against the
// page are coordinated by the browser manager (C8); this type only tracks
// ownership and activity.
package browsersession

import (
	"context"
	"sync"
	"time"

	"github.com/auxproto/auxd/internal/driver"
)

// Session is C7, the BrowserSession entity from spec §3.
type Session struct {
	ID        string
	CreatedAt time.Time

	Context driver.Context
	Page    driver.Page

	mu           sync.Mutex
	lastActivity time.Time
	commandCount int
	closed       bool

	// DownloadDir optionally names a directory for this session's downloads.
	// The browser manager does not set it, and Close does not remove it.
	DownloadDir string
}

// New constructs a Session. lastActivity starts equal to createdAt, so
// Invariant 3 (last_activity >= created_at) holds from construction.
func New(id string, ctx driver.Context, page driver.Page, createdAt time.Time) *Session {
	return &Session{
		ID:           id,
		CreatedAt:    createdAt,
		Context:      ctx,
		Page:         page,
		lastActivity: createdAt,
	}
}

// UpdateActivity stamps last_activity = now and increments command_count,
// per spec §4.6. Called by the browser manager before dispatching a command.
func (s *Session) UpdateActivity(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
	s.commandCount++
}

// LastActivity returns the last time a command was dispatched against this
// session.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// CommandCount returns how many commands have been dispatched.
func (s *Session) CommandCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commandCount
}

// Close releases the underlying context. Idempotent; never returns an error
// to the caller — failures are swallowed per spec §4.6's "never throws".
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.Context != nil {
		_ = s.Context.Close(ctx)
	}
}

// Closed reports whether Close has already run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
