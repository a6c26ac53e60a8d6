package driver

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// FakeElement is a minimal in-memory stand-in for a DOM node. It is a test
// fixture, not a browser engine: selector matching only supports "#id",
// ".class", and bare tag names, which is enough to drive the command
// handlers' behavior without a real rendering engine.
type FakeElement struct {
	ID         string
	Classes    []string
	Tag        string
	Text       string
	HTML       string
	Attrs      map[string]string
	Properties map[string]interface{}
	Value      string
	Visible    bool
	Box        BoundingBox
	// ExtractErr, if set, is returned by TextContent/InnerHTML/GetAttribute/
	// Evaluate — simulates a single element failing extraction without
	// affecting the rest of a multi-element match set.
	ExtractErr error
}

// FakeSite is the content a FakePage serves for one registered URL.
type FakeSite struct {
	Title    string
	Elements []*FakeElement
	// RedirectTo, if set, is what Page.URL() reports after Goto — simulates
	// a server-side redirect for the Navigate response's `redirected` field.
	RedirectTo string
}

func matchesSelector(el *FakeElement, selector string) bool {
	selector = strings.TrimSpace(selector)
	switch {
	case strings.HasPrefix(selector, "#"):
		return el.ID == selector[1:]
	case strings.HasPrefix(selector, "."):
		cls := selector[1:]
		for _, c := range el.Classes {
			if c == cls {
				return true
			}
		}
		return false
	default:
		return el.Tag == selector
	}
}

// FakeDriver is a Driver test double. Launch is safe to call more than once;
// callers mirroring spec §4.7's "safe to call repeatedly" contract at the
// driver layer can assert LaunchCount() == 1 after two Initialize() calls.
type FakeDriver struct {
	mu          sync.Mutex
	launchCount int

	// Browser, if set before the first Launch, is returned on every Launch
	// call instead of a freshly allocated one — lets tests register sites
	// before Initialize runs.
	Browser *FakeBrowser
}

func NewFakeDriver() *FakeDriver { return &FakeDriver{} }

func (d *FakeDriver) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.launchCount++
	if d.Browser == nil {
		d.Browser = &FakeBrowser{}
	}
	return d.Browser, nil
}

func (d *FakeDriver) LaunchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launchCount
}

// FakeBrowser is a Browser test double.
type FakeBrowser struct {
	mu     sync.Mutex
	closed bool

	// Sites is shared across every context/page created from this browser,
	// mirroring a real browser serving the same network regardless of which
	// isolated context asks for a URL.
	Sites map[string]*FakeSite
	once  sync.Once
}

func (b *FakeBrowser) ensureSites() {
	b.once.Do(func() { b.Sites = make(map[string]*FakeSite) })
}

// RegisterSite makes url resolve to site for every page created from this
// browser — the test-fixture equivalent of standing up a web server.
func (b *FakeBrowser) RegisterSite(url string, site *FakeSite) {
	b.ensureSites()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Sites[url] = site
}

func (b *FakeBrowser) NewContext(ctx context.Context, opts ContextOptions) (Context, error) {
	b.ensureSites()
	return &FakeContext{browser: b}, nil
}

func (b *FakeBrowser) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// FakeContext is a Context test double.
type FakeContext struct {
	browser *FakeBrowser
	mu      sync.Mutex
	closed  bool
}

func (c *FakeContext) NewPage(ctx context.Context) (Page, error) {
	return &FakePage{browser: c.browser, headers: map[string]string{}}, nil
}

func (c *FakeContext) SetDefaultTimeout(d time.Duration)           {}
func (c *FakeContext) SetDefaultNavigationTimeout(d time.Duration) {}

func (c *FakeContext) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *FakeContext) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// FakePage is a Page test double holding the "current document".
type FakePage struct {
	browser *FakeBrowser

	mu       sync.Mutex
	url      string
	title    string
	elements []*FakeElement
	headers  map[string]string

	// NavigateDelay simulates driver latency; if it exceeds a Goto call's
	// timeout, Goto returns a *TimeoutError.
	NavigateDelay time.Duration
	// NavigateErr, if set, is returned verbatim by the next Goto call
	// (simulating a non-timeout navigation failure).
	NavigateErr error
}

func (p *FakePage) Goto(ctx context.Context, url, waitUntil string, timeout time.Duration) (*NavResponse, error) {
	if p.NavigateDelay > 0 {
		select {
		case <-time.After(p.NavigateDelay):
		case <-time.After(timeout):
			return nil, &TimeoutError{Op: "goto"}
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, &TimeoutError{Op: "goto"}
			}
			return nil, ctx.Err()
		}
	}
	if p.NavigateErr != nil {
		err := p.NavigateErr
		p.NavigateErr = nil
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	finalURL := url
	var site *FakeSite
	if p.browser != nil && p.browser.Sites != nil {
		site = p.browser.Sites[url]
	}
	if site != nil {
		p.title = site.Title
		p.elements = site.Elements
		if site.RedirectTo != "" {
			finalURL = site.RedirectTo
		}
	} else {
		p.title = ""
		p.elements = nil
	}
	p.url = finalURL
	return &NavResponse{}, nil
}

func (p *FakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *FakePage) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *FakePage) SetExtraHTTPHeaders(headers map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range headers {
		p.headers[k] = v
	}
}

func (p *FakePage) WaitForLoadState(ctx context.Context, state string, timeout time.Duration) error {
	return nil
}

func (p *FakePage) WaitForFunction(ctx context.Context, js string, timeout, polling time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if strings.Contains(js, "true") {
			return nil
		}
		if time.Now().After(deadline) {
			return &TimeoutError{Op: "wait_for_function"}
		}
		select {
		case <-time.After(polling):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *FakePage) matches(selector string) []*FakeElement {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*FakeElement
	for _, el := range p.elements {
		if matchesSelector(el, selector) {
			out = append(out, el)
		}
	}
	return out
}

func (p *FakePage) Locator(selector string) Locator {
	return &FakeLocator{page: p, selector: selector, index: -1}
}

// FakeLocator is a Locator test double.
type FakeLocator struct {
	page     *FakePage
	selector string
	index    int // -1 == unresolved (all matches); >= 0 == resolved to one element
}

func (l *FakeLocator) Count(ctx context.Context) (int, error) {
	return len(l.page.matches(l.selector)), nil
}

func (l *FakeLocator) First() Locator {
	return &FakeLocator{page: l.page, selector: l.selector, index: 0}
}

func (l *FakeLocator) Nth(i int) Locator {
	return &FakeLocator{page: l.page, selector: l.selector, index: i}
}

func (l *FakeLocator) resolve() (*FakeElement, error) {
	matches := l.page.matches(l.selector)
	idx := l.index
	if idx < 0 {
		idx = 0
	}
	if idx >= len(matches) {
		return nil, fmt.Errorf("no element at index %d for selector %q", idx, l.selector)
	}
	return matches[idx], nil
}

func (l *FakeLocator) WaitFor(ctx context.Context, state string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		matches := l.page.matches(l.selector)
		satisfied := false
		switch state {
		case "attached":
			satisfied = len(matches) > 0
		case "detached":
			satisfied = len(matches) == 0
		case "visible":
			satisfied = len(matches) > 0 && matches[0].Visible
		case "hidden":
			satisfied = len(matches) == 0 || !matches[0].Visible
		default:
			satisfied = len(matches) > 0
		}
		if satisfied {
			return nil
		}
		if time.Now().After(deadline) {
			return &TimeoutError{Op: "wait_for:" + state}
		}
		select {
		case <-time.After(10 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *FakeLocator) BoundingBox(ctx context.Context) (*BoundingBox, error) {
	el, err := l.resolve()
	if err != nil {
		return nil, err
	}
	box := el.Box
	return &box, nil
}

func (l *FakeLocator) IsVisible(ctx context.Context) (bool, error) {
	el, err := l.resolve()
	if err != nil {
		return false, nil
	}
	return el.Visible, nil
}

func (l *FakeLocator) TextContent(ctx context.Context) (string, error) {
	el, err := l.resolve()
	if err != nil {
		return "", err
	}
	if el.ExtractErr != nil {
		return "", el.ExtractErr
	}
	return el.Text, nil
}

func (l *FakeLocator) InnerHTML(ctx context.Context) (string, error) {
	el, err := l.resolve()
	if err != nil {
		return "", err
	}
	if el.ExtractErr != nil {
		return "", el.ExtractErr
	}
	return el.HTML, nil
}

func (l *FakeLocator) GetAttribute(ctx context.Context, name string) (string, bool, error) {
	el, err := l.resolve()
	if err != nil {
		return "", false, err
	}
	if el.ExtractErr != nil {
		return "", false, el.ExtractErr
	}
	v, ok := el.Attrs[name]
	return v, ok, nil
}

func (l *FakeLocator) InputValue(ctx context.Context) (string, error) {
	el, err := l.resolve()
	if err != nil {
		return "", err
	}
	return el.Value, nil
}

func (l *FakeLocator) Clear(ctx context.Context) error {
	el, err := l.resolve()
	if err != nil {
		return err
	}
	el.Value = ""
	return nil
}

func (l *FakeLocator) Fill(ctx context.Context, value string) error {
	el, err := l.resolve()
	if err != nil {
		return err
	}
	el.Value = value
	return nil
}

func (l *FakeLocator) Type(ctx context.Context, text string, delay time.Duration) error {
	el, err := l.resolve()
	if err != nil {
		return err
	}
	for _, r := range text {
		el.Value += string(r)
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	return nil
}

func (l *FakeLocator) Press(ctx context.Context, key string) error {
	el, err := l.resolve()
	if err != nil {
		return err
	}
	if key == "Enter" {
		el.Properties["enterPressed"] = true
	}
	return nil
}

func (l *FakeLocator) Click(ctx context.Context, opts ClickOptions) error {
	el, err := l.resolve()
	if err != nil {
		return err
	}
	if !el.Visible && !opts.Force {
		return fmt.Errorf("element not visible")
	}
	if el.Properties == nil {
		el.Properties = map[string]interface{}{}
	}
	el.Properties["clicked"] = true
	el.Properties["clickButton"] = opts.Button
	return nil
}

var propertyAccessPattern = regexp.MustCompile(`el\[["']([^"']+)["']\]`)

func (l *FakeLocator) Evaluate(ctx context.Context, js string) (interface{}, error) {
	el, err := l.resolve()
	if err != nil {
		return nil, err
	}
	if el.ExtractErr != nil {
		return nil, el.ExtractErr
	}
	if m := propertyAccessPattern.FindStringSubmatch(js); m != nil {
		if v, ok := el.Properties[m[1]]; ok {
			return v, nil
		}
		return nil, nil
	}
	return nil, nil
}

func (l *FakeLocator) TagName(ctx context.Context) (string, error) {
	el, err := l.resolve()
	if err != nil {
		return "", err
	}
	return strings.ToLower(el.Tag), nil
}

func (l *FakeLocator) ClassName(ctx context.Context) (string, error) {
	el, err := l.resolve()
	if err != nil {
		return "", err
	}
	return strings.Join(el.Classes, " "), nil
}
