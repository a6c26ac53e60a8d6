// Package driver defines the abstract PageDriver capability the core
// consumes from the external browser-driver collaborator (spec §6.2). The
// core never imports a concrete browser-automation library directly — any
// implementation honoring this interface set is acceptable. Production
// wiring of a real driver (a headless-browser library) is outside this
// repo's scope per spec §1; internal/driver/fake.go provides an in-memory
// implementation the rest of the core is tested against.
package driver

import (
	"context"
	"errors"
	"time"
)

// TimeoutError is returned by any driver call that exceeded its deadline.
// The core's handlers type-assert for this to distinguish TIMEOUT/WAIT_TIMEOUT
// from every other failure, per spec §6.2's "driver's errors must be
// distinguishable into at least TimeoutError and everything else".
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string { return "driver: timeout during " + e.Op }

// IsTimeout reports whether err (or a wrapped cause) is a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// LaunchOptions configures Driver.Launch.
type LaunchOptions struct {
	Args     []string
	Headless bool
	SlowMo   time.Duration
}

// ContextOptions configures Browser.NewContext, per spec §4.7's
// {viewport, user_agent, ignore_https_errors, javascript_enabled,
// accept_downloads} merged-with-overrides contract.
type ContextOptions struct {
	ViewportWidth     int
	ViewportHeight    int
	UserAgent         string
	IgnoreHTTPSErrors bool
	JavaScriptEnabled bool
	AcceptDownloads   bool
}

// BoundingBox is an element's box in page coordinates.
type BoundingBox struct {
	X, Y, Width, Height float64
}

// ClickOptions configures Locator.Click.
type ClickOptions struct {
	Button     string
	ClickCount int
	Force      bool
	Timeout    time.Duration
	Position   *Point
}

// Point is an absolute page-coordinate pair.
type Point struct {
	X, Y float64
}

// NavResponse is what Page.Goto returns on success.
type NavResponse struct {
	StatusCode *int
}

// Driver launches browser processes. Launch must be idempotent-safe to call
// repeatedly at the Driver level; the browser manager (C8) is responsible
// for the "second call is a no-op" contract at its own layer.
type Driver interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is one launched browser process.
type Browser interface {
	NewContext(ctx context.Context, opts ContextOptions) (Context, error)
	Close(ctx context.Context) error
}

// Context is one isolated browsing context (no shared cookies/storage/cache
// with peers, per spec's BrowserSession entity invariant).
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	SetDefaultTimeout(d time.Duration)
	SetDefaultNavigationTimeout(d time.Duration)
	Close(ctx context.Context) error
}

// Page is the primary page created for a BrowserSession.
type Page interface {
	Goto(ctx context.Context, url, waitUntil string, timeout time.Duration) (*NavResponse, error)
	URL() string
	Title(ctx context.Context) (string, error)
	SetExtraHTTPHeaders(headers map[string]string)
	WaitForLoadState(ctx context.Context, state string, timeout time.Duration) error
	WaitForFunction(ctx context.Context, js string, timeout, polling time.Duration) error
	Locator(selector string) Locator
}

// Locator is a driver-side handle that resolves a selector against the
// current DOM lazily, per the GLOSSARY.
type Locator interface {
	Count(ctx context.Context) (int, error)
	First() Locator
	Nth(i int) Locator
	WaitFor(ctx context.Context, state string, timeout time.Duration) error
	BoundingBox(ctx context.Context) (*BoundingBox, error)
	IsVisible(ctx context.Context) (bool, error)
	TextContent(ctx context.Context) (string, error)
	InnerHTML(ctx context.Context) (string, error)
	GetAttribute(ctx context.Context, name string) (string, bool, error)
	InputValue(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	Type(ctx context.Context, text string, delay time.Duration) error
	Press(ctx context.Context, key string) error
	Click(ctx context.Context, opts ClickOptions) error
	Evaluate(ctx context.Context, js string) (interface{}, error)
	TagName(ctx context.Context) (string, error)
	ClassName(ctx context.Context) (string, error)
}
