package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/auxproto/auxd/internal/auth"
	"github.com/auxproto/auxd/internal/browsermanager"
	"github.com/auxproto/auxd/internal/driver"
	"github.com/auxproto/auxd/internal/ratelimit"
	"github.com/auxproto/auxd/internal/schema"
	"github.com/auxproto/auxd/internal/security"
)

type fakeTransport struct {
	mu       sync.Mutex
	sent     []string
	closed   bool
	addr     string
}

func (t *fakeTransport) ID() uint64          { return 1 }
func (t *fakeTransport) RemoteAddr() string  { return t.addr }
func (t *fakeTransport) Send(msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, msg)
	return nil
}
func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) last(t2 *testing.T) map[string]interface{} {
	t2.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()
	require.NotEmpty(t2, t.sent)
	var out map[string]interface{}
	require.NoError(t2, json.Unmarshal([]byte(t.sent[len(t.sent)-1]), &out))
	return out
}

func newTestDeps(t *testing.T, authEnabled bool) Deps {
	t.Helper()
	fd := driver.NewFakeDriver()
	mgr := browsermanager.New(fd, nil, nil, browsermanager.DefaultOptions())
	require.NoError(t, mgr.Initialize(context.Background()))

	return Deps{
		Manager:      mgr,
		Limiter:      ratelimit.New(100, time.Minute, 0),
		Auth:         auth.New(authEnabled, "super-secret-key-1234"),
		Sanitizer:    security.NewSanitizer(true, security.DefaultLimits()),
		DomainPolicy: security.NewDomainPolicy(nil, nil),
		Limits:       schema.DefaultLimits(),
		Registry:     NewSessionRegistry(),
	}
}

func navigateFrame(id, sessionID string) string {
	return fmt.Sprintf(`{"id":%q,"method":"navigate","session_id":%q,"timeout":5000,"url":"https://example.com/","wait_until":"load"}`, id, sessionID)
}

func TestHandleMessageHappyPath(t *testing.T) {
	deps := newTestDeps(t, false)
	transport := &fakeTransport{addr: "127.0.0.1:1"}
	h := NewHandler(deps, transport)

	h.HandleMessage(context.Background(), navigateFrame("cmd-1", "whatever-client-supplies"))

	resp := transport.last(t)
	require.Equal(t, true, resp["success"])
	require.Equal(t, "cmd-1", resp["id"])
}

func TestHandleMessageMalformedJSON(t *testing.T) {
	deps := newTestDeps(t, false)
	transport := &fakeTransport{addr: "127.0.0.1:2"}
	h := NewHandler(deps, transport)

	h.HandleMessage(context.Background(), `{not json`)

	resp := transport.last(t)
	require.Equal(t, false, resp["success"])
	require.Equal(t, "INVALID_COMMAND", resp["error_code"])
}

func TestHandleMessageAuthRequired(t *testing.T) {
	deps := newTestDeps(t, true)
	transport := &fakeTransport{addr: "127.0.0.1:3"}
	h := NewHandler(deps, transport)

	h.HandleMessage(context.Background(), `{"id":"cmd-1","method":"navigate","session_id":"x","timeout":5000,"url":"https://example.com/","api_key":"wrong"}`)

	resp := transport.last(t)
	require.Equal(t, false, resp["success"])
	require.Equal(t, "authentication", resp["error_type"])
	require.True(t, transport.closed)
}

func TestHandleMessageAuthSucceedsThenLatches(t *testing.T) {
	deps := newTestDeps(t, true)
	transport := &fakeTransport{addr: "127.0.0.1:4"}
	h := NewHandler(deps, transport)

	frame := `{"id":"cmd-1","method":"navigate","session_id":"x","timeout":5000,"url":"https://example.com/","wait_until":"load","api_key":"super-secret-key-1234"}`
	h.HandleMessage(context.Background(), frame)
	require.False(t, transport.closed)
	require.True(t, h.authed)

	h.HandleMessage(context.Background(), navigateFrame("cmd-2", "x"))
	resp := transport.last(t)
	require.Equal(t, true, resp["success"])
}

func TestHandleMessageValidationFailure(t *testing.T) {
	deps := newTestDeps(t, false)
	transport := &fakeTransport{addr: "127.0.0.1:5"}
	h := NewHandler(deps, transport)

	h.HandleMessage(context.Background(), `{"id":"cmd-1","method":"navigate","session_id":"x","timeout":5000,"url":"ftp://example.com/file"}`)

	resp := transport.last(t)
	require.Equal(t, false, resp["success"])
	require.Equal(t, "INVALID_PARAMS", resp["error_code"])
	require.Equal(t, "validation", resp["error_type"])
}

func TestHandleMessageSecurityViolation(t *testing.T) {
	deps := newTestDeps(t, false)
	transport := &fakeTransport{addr: "127.0.0.1:6"}
	h := NewHandler(deps, transport)

	frame := `{"id":"cmd-1","method":"click","session_id":"x","timeout":5000,"selector":"<script>alert(1)</script>","button":"left","click_count":1}`
	h.HandleMessage(context.Background(), frame)

	resp := transport.last(t)
	require.Equal(t, false, resp["success"])
	require.Equal(t, "security", resp["error_type"])
}

func TestHandleMessageRateLimited(t *testing.T) {
	deps := newTestDeps(t, false)
	deps.Limiter = ratelimit.New(1, time.Minute, time.Minute)
	transport := &fakeTransport{addr: "127.0.0.1:7"}
	h := NewHandler(deps, transport)

	h.HandleMessage(context.Background(), navigateFrame("cmd-1", "x"))
	h.HandleMessage(context.Background(), navigateFrame("cmd-2", "x"))

	resp := transport.last(t)
	require.Equal(t, false, resp["success"])
	require.Equal(t, "rate_limit", resp["error_type"])
}

func TestCrossConnectionSessionIsolation(t *testing.T) {
	deps := newTestDeps(t, false)

	transportA := &fakeTransport{addr: "127.0.0.1:8"}
	hA := NewHandler(deps, transportA)
	hA.HandleMessage(context.Background(), navigateFrame("cmd-1", "whatever"))
	respA := transportA.last(t)
	require.Equal(t, true, respA["success"])

	hA.mu.Lock()
	browserSessionFromA := hA.session.BrowserSessionID
	hA.mu.Unlock()

	transportB := &fakeTransport{addr: "127.0.0.1:9"}
	hB := NewHandler(deps, transportB)
	hB.HandleMessage(context.Background(), navigateFrame("cmd-2", browserSessionFromA))

	respB := transportB.last(t)
	require.Equal(t, true, respB["success"])

	hB.mu.Lock()
	browserSessionFromB := hB.session.BrowserSessionID
	hB.mu.Unlock()
	require.NotEqual(t, browserSessionFromA, browserSessionFromB)
}

func TestCloseDestroysBrowserSession(t *testing.T) {
	deps := newTestDeps(t, false)
	transport := &fakeTransport{addr: "127.0.0.1:10"}
	h := NewHandler(deps, transport)
	h.HandleMessage(context.Background(), navigateFrame("cmd-1", "x"))

	h.mu.Lock()
	browserID := h.session.BrowserSessionID
	h.mu.Unlock()

	_, ok := deps.Manager.Get(browserID)
	require.True(t, ok)

	h.Close(context.Background())

	_, ok = deps.Manager.Get(browserID)
	require.False(t, ok)
}
