// Package browsermanager implements C8: the process-wide driver bootstrap,
// the session map, the periodic expiry sweep, and the five command state
// machines (in navigate.go, click.go, fill.go, extract.go, wait.go).
package browsermanager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/auxproto/auxd/internal/browsersession"
	"github.com/auxproto/auxd/internal/driver"
	"github.com/auxproto/auxd/internal/ratelimit"
	"github.com/auxproto/auxd/internal/sessionlog"
)

// Options configures the manager's driver bootstrap and session defaults,
// mirroring the browser.* keys in spec §6.4.
type Options struct {
	LaunchArgs        []string
	Headless          bool
	SlowMo            time.Duration
	ViewportWidth     int
	ViewportHeight    int
	UserAgent         string
	IgnoreHTTPSErrors bool
	DefaultTimeout    time.Duration
	NavigationTimeout time.Duration
	AcceptLanguage    string

	SessionTimeout  time.Duration
	CleanupInterval time.Duration
	MaxSessions     int
}

func DefaultOptions() Options {
	return Options{
		LaunchArgs:        []string{"--disable-dev-shm-usage"},
		Headless:          true,
		ViewportWidth:     1280,
		ViewportHeight:    720,
		DefaultTimeout:    30 * time.Second,
		NavigationTimeout: 30 * time.Second,
		AcceptLanguage:    "en-US,en;q=0.9",
		SessionTimeout:    1 * time.Hour,
		// Source's cleanup interval default is inconsistent (300s some call
		// sites, 60s others); resolved per spec §9 open question 3 in favor
		// of 60s for responsiveness.
		CleanupInterval: 60 * time.Second,
		MaxSessions:     10,
	}
}

// Stats is the snapshot returned by Manager.Stats.
type Stats struct {
	TotalCommandsExecuted int64
	StartupDuration       time.Duration
	SessionCount          int
}

// Manager is C8.
type Manager struct {
	driver driver.Driver
	opts   Options
	logger *sessionlog.Logger
	limiter *ratelimit.Limiter
	clock  func() time.Time

	initMu      sync.Mutex
	initialized bool
	browser     driver.Browser
	startupTime time.Duration

	sessions sync.Map // map[string]*browsersession.Session

	totalCommands int64

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// New constructs a Manager. limiter may be nil if no rate limiter sweep
// should be chained off the expiry sweep.
func New(d driver.Driver, logger *sessionlog.Logger, limiter *ratelimit.Limiter, opts Options) *Manager {
	return &Manager{
		driver:  d,
		opts:    opts,
		logger:  logger,
		limiter: limiter,
		clock:   time.Now,
	}
}

// Initialize bootstraps the driver and launches the browser. Safe to call
// repeatedly — the second call is a no-op, per spec §4.7.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.initialized {
		return nil
	}

	start := m.clock()
	browser, err := m.driver.Launch(ctx, driver.LaunchOptions{
		Args:     m.opts.LaunchArgs,
		Headless: m.opts.Headless,
		SlowMo:   m.opts.SlowMo,
	})
	if err != nil {
		return fmt.Errorf("browser manager: launch failed: %w", err)
	}

	m.browser = browser
	m.startupTime = m.clock().Sub(start)
	m.initialized = true
	return nil
}

// CreateSession allocates a fresh UUID, creates an isolated context merged
// with overrides, creates the primary page, and installs the default
// Accept-Language header, per spec §4.7.
func (m *Manager) CreateSession(ctx context.Context, overrides *driver.ContextOptions, clientAddr string) (string, error) {
	m.initMu.Lock()
	initialized := m.initialized
	browser := m.browser
	m.initMu.Unlock()
	if !initialized {
		return "", fmt.Errorf("browser manager: not initialized")
	}
	if m.opts.MaxSessions > 0 && m.Stats().SessionCount >= m.opts.MaxSessions {
		return "", fmt.Errorf("browser manager: at capacity (%d sessions)", m.opts.MaxSessions)
	}

	contextOpts := driver.ContextOptions{
		ViewportWidth:     m.opts.ViewportWidth,
		ViewportHeight:    m.opts.ViewportHeight,
		UserAgent:         m.opts.UserAgent,
		IgnoreHTTPSErrors: m.opts.IgnoreHTTPSErrors,
		JavaScriptEnabled: true,
		AcceptDownloads:   true,
	}
	if overrides != nil {
		if overrides.ViewportWidth != 0 {
			contextOpts.ViewportWidth = overrides.ViewportWidth
		}
		if overrides.ViewportHeight != 0 {
			contextOpts.ViewportHeight = overrides.ViewportHeight
		}
		if overrides.UserAgent != "" {
			contextOpts.UserAgent = overrides.UserAgent
		}
	}

	bctx, err := browser.NewContext(ctx, contextOpts)
	if err != nil {
		return "", fmt.Errorf("browser manager: new context: %w", err)
	}
	bctx.SetDefaultTimeout(m.opts.DefaultTimeout)
	bctx.SetDefaultNavigationTimeout(m.opts.NavigationTimeout)

	page, err := bctx.NewPage(ctx)
	if err != nil {
		_ = bctx.Close(ctx)
		return "", fmt.Errorf("browser manager: new page: %w", err)
	}
	if m.opts.AcceptLanguage != "" {
		page.SetExtraHTTPHeaders(map[string]string{"Accept-Language": m.opts.AcceptLanguage})
	}

	id := uuid.NewString()
	now := m.clock()
	sess := browsersession.New(id, bctx, page, now)
	m.sessions.Store(id, sess)

	if m.logger != nil {
		m.logger.Emit(sessionlog.Event{
			Type:       sessionlog.EventSessionStart,
			SessionID:  id,
			ClientAddr: clientAddr,
			Success:    true,
			Message:    "browser session created",
		})
	}

	return id, nil
}

// Get looks up a session by id. It does not itself touch activity — callers
// dispatching a command do that explicitly via touchActivity, so that a
// bystander lookup (e.g. a test polling for expiry) never masks an idle
// session as active.
func (m *Manager) Get(id string) (*browsersession.Session, bool) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*browsersession.Session), true
}

// touchActivity stamps the session's last_activity, per spec §3 Invariant 3
// ("last_activity advances only on successful lookup prior to command
// execution"). Every Execute* handler calls this immediately after a
// successful Get, before dispatching to the driver.
func (m *Manager) touchActivity(sess *browsersession.Session) {
	sess.UpdateActivity(m.clock())
}

// CloseSession pops and closes a session. Idempotent-safe: closing an
// unknown or already-closed id returns false without error, per spec §4.7
// and the double-close law in spec §8.
func (m *Manager) CloseSession(ctx context.Context, id string) bool {
	v, ok := m.sessions.LoadAndDelete(id)
	if !ok {
		return false
	}
	sess := v.(*browsersession.Session)
	sess.Close(ctx)

	if m.logger != nil {
		m.logger.Emit(sessionlog.Event{
			Type:      sessionlog.EventSessionEnd,
			SessionID: id,
			Success:   true,
			Message:   "browser session closed",
		})
	}
	return true
}

// StartSweep launches the periodic expiry task described in spec §4.7 and
// §5's cancellation contract: cancelling ctx, or calling StopSweep, is
// observed by the sweep within one tick, and no sessions are leaked.
func (m *Manager) StartSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	m.sweepCancel = cancel
	m.sweepDone = make(chan struct{})

	go func() {
		defer close(m.sweepDone)
		ticker := time.NewTicker(m.opts.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				m.sweepOnce(sweepCtx)
			}
		}
	}()
}

func (m *Manager) sweepOnce(ctx context.Context) {
	now := m.clock()
	var expired []string
	m.sessions.Range(func(key, value interface{}) bool {
		sess := value.(*browsersession.Session)
		if now.Sub(sess.LastActivity()) > m.opts.SessionTimeout {
			expired = append(expired, key.(string))
		}
		return true
	})
	for _, id := range expired {
		m.CloseSession(ctx, id)
	}
	if m.limiter != nil {
		m.limiter.Sweep()
	}
}

// StopSweep cancels the sweep and waits for it to observe cancellation.
func (m *Manager) StopSweep() {
	if m.sweepCancel == nil {
		return
	}
	m.sweepCancel()
	<-m.sweepDone
}

// Shutdown cancels the sweep, closes every session (best effort), and closes
// the browser. A browser close error is logged as a warning; session close
// failures are swallowed by Session.Close. Nothing is propagated.
func (m *Manager) Shutdown(ctx context.Context) {
	m.StopSweep()

	var ids []string
	m.sessions.Range(func(key, _ interface{}) bool {
		ids = append(ids, key.(string))
		return true
	})
	for _, id := range ids {
		m.CloseSession(ctx, id)
	}

	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.browser != nil {
		if err := m.browser.Close(ctx); err != nil && m.logger != nil {
			m.logger.Warn("browser close failed", map[string]interface{}{"error": err.Error()})
		}
	}
	m.initialized = false
}

// Stats returns startup duration, total commands executed, and the current
// session count.
func (m *Manager) Stats() Stats {
	count := 0
	m.sessions.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return Stats{
		TotalCommandsExecuted: atomic.LoadInt64(&m.totalCommands),
		StartupDuration:       m.startupTime,
		SessionCount:          count,
	}
}

func (m *Manager) recordCommand() {
	atomic.AddInt64(&m.totalCommands, 1)
}
