// Package config holds the server's static configuration surface, spec
// §6.4. Loading from files or environment variables is explicitly out of
// scope (spec §1 Non-goals); Config is built programmatically by cmd/auxd
// from cobra flags and, where useful, a named preset.
package config

import (
	"fmt"
	"time"

	"github.com/auxproto/auxd/internal/browsermanager"
	"github.com/auxproto/auxd/internal/ratelimit"
	"github.com/auxproto/auxd/internal/security"
	"github.com/auxproto/auxd/internal/sessionlog"
)

// SecurityLevel is a named preset bundling the security.* knobs, mirroring
// original_source/aux/src/aux/config.py's SecurityLevel enum.
type SecurityLevel string

const (
	SecurityDevelopment SecurityLevel = "development"
	SecurityProduction  SecurityLevel = "production"
	SecurityTesting     SecurityLevel = "testing"
)

// Server bundles server.* from spec §6.4.
type Server struct {
	Host     string
	Port     int
	EnableAuth bool
	APIKey   string

	RateLimitPerMinute     int
	MaxConcurrentConns     int
	PingInterval           time.Duration
	PingTimeout            time.Duration
	MaxMessageSize         int
}

// Browser bundles browser.* from spec §6.4.
type Browser struct {
	Headless          bool
	ViewportWidth     int
	ViewportHeight    int
	UserAgent         string
	TimeoutMs         int
	SlowMoMs          int
	IgnoreHTTPSErrors bool
	DisableWebSecurity bool
	NoSandbox         bool
	DisableDevShm     bool

	MaxSessions             int
	SessionTimeoutSeconds   int
	CleanupIntervalSeconds  int
}

// Security bundles security.* from spec §6.4.
type Security struct {
	Level                    SecurityLevel
	EnableInputSanitization  bool
	MaxSelectorLength        int
	MaxTextInputLength       int
	MaxURLLength             int
	AllowCustomJS            bool
	JSTimeoutMs              int
	AllowedDomains           []string
	BlockedDomains           []string
}

// Logging bundles logging.* from spec §6.4.
type Logging struct {
	EnableSessionLog bool
	SessionLogPath   string
	MaxLogFileSizeMB int
}

// Config is the whole of spec §6.4's recognized surface.
type Config struct {
	Server   Server
	Browser  Browser
	Security Security
	Logging  Logging
}

// Default mirrors the original source's Pydantic field defaults.
func Default() Config {
	return Config{
		Server: Server{
			Host:               "localhost",
			Port:               8080,
			EnableAuth:         true,
			RateLimitPerMinute: 60,
			MaxConcurrentConns: 50,
			PingInterval:       20 * time.Second,
			PingTimeout:        10 * time.Second,
			MaxMessageSize:     1_048_576,
		},
		Browser: Browser{
			Headless:               true,
			ViewportWidth:          1280,
			ViewportHeight:         720,
			TimeoutMs:              30_000,
			SlowMoMs:               0,
			DisableDevShm:          true,
			MaxSessions:            10,
			SessionTimeoutSeconds:  3600,
			CleanupIntervalSeconds: 60,
		},
		Security: Security{
			Level:                   SecurityProduction,
			EnableInputSanitization: true,
			MaxSelectorLength:       1000,
			MaxTextInputLength:      10000,
			MaxURLLength:            2048,
			AllowCustomJS:           false,
			JSTimeoutMs:             5000,
		},
		Logging: Logging{
			EnableSessionLog: true,
			SessionLogPath:   "session.log",
			MaxLogFileSizeMB: 100,
		},
	}
}

// WithSecurityLevel applies one of the three named presets on top of the
// current security settings, per the original source's SecurityLevel enum.
// Development allows custom JS and testing disables input sanitization;
// both turn auth off. Production (the default) keeps every guard on.
func (c Config) WithSecurityLevel(level SecurityLevel) Config {
	switch level {
	case SecurityDevelopment:
		c.Security.Level = level
		c.Security.AllowCustomJS = true
		c.Server.EnableAuth = false
	case SecurityTesting:
		c.Security.Level = level
		c.Security.EnableInputSanitization = false
		c.Server.EnableAuth = false
	default:
		c.Security.Level = SecurityProduction
	}
	return c
}

// Validate enforces the ge/le bounds mirrored from the original Pydantic
// field constraints. A non-nil error lists the first violation found.
func (c Config) Validate() error {
	if c.Server.Port < 1024 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be in [1024, 65535]")
	}
	if c.Server.APIKey != "" && len(c.Server.APIKey) < 16 {
		return fmt.Errorf("config: server.api_key must be at least 16 characters")
	}
	if c.Server.RateLimitPerMinute < 1 || c.Server.RateLimitPerMinute > 1000 {
		return fmt.Errorf("config: server.rate_limit_requests_per_minute must be in [1, 1000]")
	}
	if c.Server.MaxConcurrentConns < 1 || c.Server.MaxConcurrentConns > 1000 {
		return fmt.Errorf("config: server.max_concurrent_connections must be in [1, 1000]")
	}
	if c.Browser.ViewportWidth < 800 || c.Browser.ViewportWidth > 3840 {
		return fmt.Errorf("config: browser.viewport_width must be in [800, 3840]")
	}
	if c.Browser.ViewportHeight < 600 || c.Browser.ViewportHeight > 2160 {
		return fmt.Errorf("config: browser.viewport_height must be in [600, 2160]")
	}
	if c.Browser.MaxSessions < 1 || c.Browser.MaxSessions > 100 {
		return fmt.Errorf("config: browser.max_sessions must be in [1, 100]")
	}
	if c.Browser.SessionTimeoutSeconds < 300 || c.Browser.SessionTimeoutSeconds > 86400 {
		return fmt.Errorf("config: browser.session_timeout_seconds must be in [300, 86400]")
	}
	if c.Browser.CleanupIntervalSeconds < 60 || c.Browser.CleanupIntervalSeconds > 3600 {
		return fmt.Errorf("config: browser.cleanup_interval_seconds must be in [60, 3600]")
	}
	if c.Security.MaxSelectorLength < 100 || c.Security.MaxSelectorLength > 10000 {
		return fmt.Errorf("config: security.max_selector_length must be in [100, 10000]")
	}
	if c.Security.MaxURLLength < 100 || c.Security.MaxURLLength > 10000 {
		return fmt.Errorf("config: security.max_url_length must be in [100, 10000]")
	}
	if c.Logging.MaxLogFileSizeMB < 1 || c.Logging.MaxLogFileSizeMB > 1000 {
		return fmt.Errorf("config: logging.max_log_file_size_mb must be in [1, 1000]")
	}
	return nil
}

// BrowserManagerOptions translates Browser into browsermanager.Options.
func (b Browser) BrowserManagerOptions() browsermanager.Options {
	args := []string{}
	if b.DisableDevShm {
		args = append(args, "--disable-dev-shm-usage")
	}
	if b.NoSandbox {
		args = append(args, "--no-sandbox")
	}
	if b.DisableWebSecurity {
		args = append(args, "--disable-web-security")
	}
	return browsermanager.Options{
		LaunchArgs:        args,
		Headless:          b.Headless,
		SlowMo:            time.Duration(b.SlowMoMs) * time.Millisecond,
		ViewportWidth:     b.ViewportWidth,
		ViewportHeight:    b.ViewportHeight,
		UserAgent:         b.UserAgent,
		IgnoreHTTPSErrors: b.IgnoreHTTPSErrors,
		DefaultTimeout:    time.Duration(b.TimeoutMs) * time.Millisecond,
		NavigationTimeout: time.Duration(b.TimeoutMs) * time.Millisecond,
		AcceptLanguage:    "en-US,en;q=0.9",
		SessionTimeout:    time.Duration(b.SessionTimeoutSeconds) * time.Second,
		CleanupInterval:   time.Duration(b.CleanupIntervalSeconds) * time.Second,
		MaxSessions:       b.MaxSessions,
	}
}

// RateLimiter builds C4 from Server.
func (s Server) RateLimiter() *ratelimit.Limiter {
	return ratelimit.New(s.RateLimitPerMinute, time.Minute, 0)
}

// SanitizerLimits translates Security into security.Limits.
func (s Security) SanitizerLimits() security.Limits {
	limits := security.DefaultLimits()
	limits.MaxSelectorLength = s.MaxSelectorLength
	limits.MaxTextLength = s.MaxTextInputLength
	limits.MaxURLLength = s.MaxURLLength
	limits.AllowCustomJS = s.AllowCustomJS
	return limits
}

// SessionLogConfig translates Logging into sessionlog.Config.
func (l Logging) SessionLogConfig() sessionlog.Config {
	return sessionlog.Config{
		Enabled:    l.EnableSessionLog,
		Path:       l.SessionLogPath,
		MaxSizeMB:  l.MaxLogFileSizeMB,
		MaxBackups: 5,
	}
}
