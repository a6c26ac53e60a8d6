// Package connection implements C9: the per-connection message loop that
// authenticates, rate-limits, validates, and dispatches one WebSocket
// client's commands against the browser manager.
package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auxproto/auxd/internal/auth"
	"github.com/auxproto/auxd/internal/browsermanager"
	"github.com/auxproto/auxd/internal/ratelimit"
	"github.com/auxproto/auxd/internal/schema"
	"github.com/auxproto/auxd/internal/security"
	"github.com/auxproto/auxd/internal/sessionlog"
)

// Transport is the minimal send/close surface a Handler needs from its
// underlying connection, mirroring the teacher's ClientTransport interface
// so either a real WebSocket or a test double can drive it.
type Transport interface {
	ID() uint64
	RemoteAddr() string
	Send(msg string) error
	Close() error
}

// ClientSession is the per-connection logical session from spec §3,
// distinct from browsersession.Session: it is never touched by the driver
// and exists purely to bind one transport to one browser session.
type ClientSession struct {
	ID               string
	BrowserSessionID string
	CreatedAt        time.Time

	mu           sync.Mutex
	lastActivity time.Time
	commandCount int
}

func (c *ClientSession) touch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = now
	c.commandCount++
}

// Deps bundles every collaborator the handler dispatches through.
type Deps struct {
	Manager      *browsermanager.Manager
	Limiter      *ratelimit.Limiter
	Auth         *auth.Authenticator
	Sanitizer    *security.Sanitizer
	DomainPolicy *security.DomainPolicy
	Logger       *sessionlog.Logger
	Limits       schema.Limits
	Registry     *SessionRegistry
}

// SessionRegistry is the process-wide map from client-supplied session_id
// string to the connection that first claimed it. It is the enforcement
// point for spec §3 Invariant 2: a browser session is reachable only through
// the client session that created it, so a session_id already owned by one
// connection can never be claimed by another.
type SessionRegistry struct {
	mu    sync.Mutex
	owner map[string]*Handler
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{owner: make(map[string]*Handler)}
}

// claim reports whether h may use id as its client-session id: true if id is
// unclaimed or already owned by h itself, false if another handler owns it.
func (r *SessionRegistry) claim(id string, h *Handler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.owner[id]; ok && existing != h {
		return false
	}
	r.owner[id] = h
	return true
}

func (r *SessionRegistry) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owner, id)
}

// Handler owns one connection's lifecycle: at most one ClientSession, bound
// lazily on the first authorized message.
type Handler struct {
	deps      Deps
	transport Transport

	mu      sync.Mutex
	session *ClientSession
	authed  bool
}

func NewHandler(deps Deps, transport Transport) *Handler {
	return &Handler{deps: deps, transport: transport}
}

// HandleMessage implements step 2 of spec §4.13 for one inbound frame.
// Errors are written back to the transport, never returned to the caller —
// the connection stays open except after a failed authentication, which
// closes it.
func (h *Handler) HandleMessage(ctx context.Context, raw string) {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		h.writeError(nil, schema.NewCommandError(schema.ErrInvalidCommand, schema.CategoryParsing, "malformed JSON", nil))
		return
	}

	clientID := h.transport.RemoteAddr()
	if !h.deps.Limiter.Admit(clientID) {
		id := idFromRaw(parsed)
		if h.deps.Logger != nil {
			h.deps.Logger.Emit(sessionlog.Event{Type: sessionlog.EventRateLimitExceeded, ClientAddr: clientID, Success: false})
		}
		h.writeError(id, schema.NewCommandError(schema.ErrInvalidParams, schema.CategoryRateLimit, "rate limit exceeded", nil))
		return
	}

	h.mu.Lock()
	needsAuth := h.deps.Auth != nil && h.deps.Auth.Enabled && !h.authed
	h.mu.Unlock()

	if needsAuth {
		apiKey, _ := parsed["api_key"].(string)
		if !h.deps.Auth.Check(apiKey) {
			h.writeError(idFromRaw(parsed), schema.NewCommandError(schema.ErrInvalidParams, schema.CategoryAuthentication, "invalid api key", nil))
			_ = h.transport.Close()
			return
		}
		h.mu.Lock()
		h.authed = true
		h.mu.Unlock()
	}

	rawSessionID, _ := parsed["session_id"].(string)
	sess, err := h.ensureSession(ctx, clientID, rawSessionID)
	if err != nil {
		h.writeError(idFromRaw(parsed), schema.NewCommandError(schema.ErrSessionNotFound, schema.CategorySession, "browser session not found", nil))
		return
	}

	if secErr := h.runSecurityChecks(parsed); secErr != nil {
		if h.deps.Logger != nil {
			h.deps.Logger.Emit(sessionlog.Event{Type: sessionlog.EventSecurityViolation, SessionID: sess.ID, ClientAddr: clientID, Success: false, Message: secErr.Error()})
		}
		h.writeError(idFromRaw(parsed), schema.NewCommandError(schema.ErrInvalidParams, schema.CategorySecurity, secErr.Error(), nil))
		return
	}

	cmd, err := schema.Validate(parsed, h.deps.Limits)
	if err != nil {
		h.writeError(idFromRaw(parsed), schema.NewCommandError(schema.ErrInvalidParams, schema.CategoryValidation, err.Error(), validationDetails(err)))
		return
	}

	sess.touch(time.Now())

	if cmd.CommandHeader().SessionID != sess.ID {
		h.writeError(idFromRaw(parsed), schema.NewCommandError(schema.ErrSessionNotFound, schema.CategorySession, "browser session not found", nil))
		return
	}
	cmd = rebindSessionID(cmd, sess.BrowserSessionID)

	start := time.Now()
	resp, cmdErr := h.dispatch(ctx, sess.ID, cmd)
	elapsedMs := time.Since(start).Milliseconds()

	header := cmd.CommandHeader()
	if cmdErr != nil {
		id := header.ID
		h.writeError(&id, cmdErr)
		return
	}
	resp.SetExecutionTimeMs(elapsedMs)
	h.writeResponse(resp)
}

// Close tears down the client session (and its browser session), best
// effort, never re-raising — step 3 of spec §4.13.
func (h *Handler) Close(ctx context.Context) {
	h.mu.Lock()
	sess := h.session
	h.mu.Unlock()
	if sess == nil {
		return
	}
	if h.deps.Registry != nil {
		h.deps.Registry.release(sess.ID)
	}
	h.deps.Manager.CloseSession(ctx, sess.BrowserSessionID)
}

// ensureSession binds this connection's ClientSession, creating one on the
// first message. rawSessionID is the client-supplied session_id field,
// unvalidated; it becomes this connection's client-session id, claimed in
// the shared registry so no other connection can ever present the same
// string, per spec §3 Invariant 2.
func (h *Handler) ensureSession(ctx context.Context, clientAddr, rawSessionID string) (*ClientSession, error) {
	h.mu.Lock()
	if h.session != nil {
		s := h.session
		h.mu.Unlock()
		return s, nil
	}
	h.mu.Unlock()

	id := rawSessionID
	if id == "" {
		id = uuid.NewString()
	}
	if h.deps.Registry != nil && !h.deps.Registry.claim(id, h) {
		return nil, fmt.Errorf("session id %q already claimed by another connection", id)
	}

	browserID, err := h.deps.Manager.CreateSession(ctx, nil, clientAddr)
	if err != nil {
		if h.deps.Registry != nil {
			h.deps.Registry.release(id)
		}
		return nil, err
	}
	now := time.Now()
	sess := &ClientSession{ID: id, BrowserSessionID: browserID, CreatedAt: now, lastActivity: now}

	h.mu.Lock()
	h.session = sess
	h.mu.Unlock()
	return sess, nil
}

// runSecurityChecks runs C2/C3 against the raw decoded object, before C1
// validation, per spec §4.13e.
func (h *Handler) runSecurityChecks(raw map[string]interface{}) error {
	method, _ := raw["method"].(string)

	if sel, ok := raw["selector"].(string); ok {
		if err := h.deps.Sanitizer.CheckSelector(sel); err != nil {
			return err
		}
	}
	if text, ok := raw["text"].(string); ok {
		if err := h.deps.Sanitizer.CheckText("text", text); err != nil {
			return err
		}
	}
	if js, ok := raw["custom_js"].(string); ok && js != "" {
		if err := h.deps.Sanitizer.CheckCustomJS(js); err != nil {
			return err
		}
	}
	if method == schema.MethodNavigate {
		if u, ok := raw["url"].(string); ok && u != "" {
			if err := h.deps.Sanitizer.CheckURL(u); err != nil {
				return err
			}
			if h.deps.DomainPolicy != nil {
				if err := h.deps.DomainPolicy.Check(u); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// dispatch routes a validated command to its handler, passing clientID (the
// externally meaningful client-session id, spec §9 open question 2) through
// for logging, separately from cmd's internal browser-session id.
func (h *Handler) dispatch(ctx context.Context, clientID string, cmd schema.Command) (schema.Response, *schema.CommandError) {
	switch c := cmd.(type) {
	case schema.NavigateCommand:
		return h.deps.Manager.ExecuteNavigate(ctx, clientID, c)
	case schema.ClickCommand:
		return h.deps.Manager.ExecuteClick(ctx, clientID, c)
	case schema.FillCommand:
		return h.deps.Manager.ExecuteFill(ctx, clientID, c)
	case schema.ExtractCommand:
		return h.deps.Manager.ExecuteExtract(ctx, clientID, c)
	case schema.WaitCommand:
		return h.deps.Manager.ExecuteWait(ctx, clientID, c)
	default:
		return nil, schema.NewCommandError(schema.ErrInvalidCommand, schema.CategoryParsing, "unrecognized command type", nil)
	}
}

func (h *Handler) writeResponse(resp schema.Response) {
	body, err := resp.MarshalJSON()
	if err != nil {
		return
	}
	_ = h.transport.Send(string(body))
}

func (h *Handler) writeError(id *string, cmdErr *schema.CommandError) {
	errResp := schema.NewErrorResponse(id, nowSeconds(), cmdErr)
	body, err := errResp.MarshalJSON()
	if err != nil {
		return
	}
	_ = h.transport.Send(string(body))
}

func idFromRaw(raw map[string]interface{}) *string {
	if id, ok := raw["id"].(string); ok && id != "" {
		return &id
	}
	return nil
}

// rebindSessionID swaps the client-session id on a validated command for the
// browser-session id before dispatch, per spec §4.13g — client code never
// sees or controls real browser-session identifiers. Callers must first
// confirm the command's session_id matches the caller's own ClientSession.ID
// (spec §3 Invariant 2); this function performs the rewrite unconditionally
// and trusts that check has already happened.
func rebindSessionID(cmd schema.Command, browserSessionID string) schema.Command {
	switch c := cmd.(type) {
	case schema.NavigateCommand:
		c.SessionID = browserSessionID
		return c
	case schema.ClickCommand:
		c.SessionID = browserSessionID
		return c
	case schema.FillCommand:
		c.SessionID = browserSessionID
		return c
	case schema.ExtractCommand:
		c.SessionID = browserSessionID
		return c
	case schema.WaitCommand:
		c.SessionID = browserSessionID
		return c
	default:
		return cmd
	}
}

func validationDetails(err error) map[string]interface{} {
	if ve, ok := err.(*schema.ValidationError); ok {
		return ve.Details()
	}
	return nil
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
