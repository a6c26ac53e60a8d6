// Package sessionlog implements C6: an append-only, rotating, JSON-lines
// audit log, plus the in-memory per-session stats map the rest of the core
// can query without re-reading the log file.
package sessionlog

import (
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Stats is the in-memory summary Logger keeps per session, updated only
// from event emission (never from external writes), per spec §4.5.
type Stats struct {
	StartTime    float64
	ClientAddr   string
	CommandCount int
	LastActivity float64
}

// Logger is C6. It is never on the hot path for driver calls — handlers call
// Emit after the fact, and Emit itself only appends one line and updates a
// map entry, both O(1).
type Logger struct {
	mu     sync.Mutex
	zl     zerolog.Logger
	writer io.Writer
	stats  map[string]*Stats
	now    func() time.Time
}

// Config configures file-based rotation, mirroring logging.* from spec §6.4.
type Config struct {
	Enabled        bool
	Path           string
	MaxSizeMB      int
	MaxBackups     int
	MaxAgeDays     int
}

func DefaultConfig() Config {
	return Config{Enabled: true, Path: "session.log", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 0}
}

// New creates a Logger writing rotated JSON lines via lumberjack. When
// cfg.Enabled is false, events are still tracked in the in-memory stats map
// (other components depend on it) but nothing is written to disk.
func New(cfg Config) *Logger {
	var w io.Writer = io.Discard
	if cfg.Enabled {
		w = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   false,
		}
	}
	return &Logger{
		zl:     zerolog.New(w).With().Logger(),
		writer: w,
		stats:  make(map[string]*Stats),
		now:    time.Now,
	}
}

// NewWithWriter is used by tests to capture output without touching disk.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{
		zl:     zerolog.New(w).With().Logger(),
		writer: w,
		stats:  make(map[string]*Stats),
		now:    time.Now,
	}
}

// Emit appends one JSON-lines event and updates the in-memory stats map.
// Never returns an error to the caller: logging failures must not break
// command dispatch.
func (l *Logger) Emit(e Event) {
	if e.Timestamp == 0 {
		e.Timestamp = float64(l.now().UnixNano()) / 1e9
	}

	l.mu.Lock()
	s, ok := l.stats[e.SessionID]
	if !ok {
		s = &Stats{StartTime: e.Timestamp, ClientAddr: e.ClientAddr}
		l.stats[e.SessionID] = s
	}
	if e.ClientAddr != "" {
		s.ClientAddr = e.ClientAddr
	}
	s.LastActivity = e.Timestamp
	if e.Type == EventCommandReceived {
		s.CommandCount++
	}
	if e.Type == EventSessionEnd {
		delete(l.stats, e.SessionID)
	}
	l.mu.Unlock()

	evt := l.zl.Log().
		Float64("timestamp", e.Timestamp).
		Str("event_type", string(e.Type)).
		Str("session_id", e.SessionID).
		Bool("success", e.Success)
	if e.CommandID != "" {
		evt = evt.Str("command_id", e.CommandID)
	}
	if e.ClientAddr != "" {
		evt = evt.Str("client_addr", e.ClientAddr)
	}
	if e.Message != "" {
		evt = evt.Str("message", e.Message)
	}
	if e.ErrorCode != "" {
		evt = evt.Str("error_code", e.ErrorCode)
	}
	if e.ExecutionTimeMs != nil {
		evt = evt.Int64("execution_time_ms", *e.ExecutionTimeMs)
	}
	if e.Data != nil {
		evt = evt.Interface("data", e.Data)
	}
	evt.Send()
}

// Warn logs a process-level warning that isn't tied to any session — e.g. a
// security-degrading configuration flag enabled at startup (spec §6.4). It
// bypasses the per-session stats bookkeeping Emit does, since there's no
// session to attribute the event to.
func (l *Logger) Warn(message string, fields map[string]interface{}) {
	evt := l.zl.Warn().Str("message", message)
	for k, v := range fields {
		evt = evt.Interface(k, v)
	}
	evt.Send()
}

// SessionStats returns a snapshot of a session's in-memory stats.
func (l *Logger) SessionStats(sessionID string) (Stats, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.stats[sessionID]
	if !ok {
		return Stats{}, false
	}
	return *s, true
}
