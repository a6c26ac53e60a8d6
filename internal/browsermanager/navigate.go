package browsermanager

import (
	"context"
	"time"

	"github.com/auxproto/auxd/internal/driver"
	"github.com/auxproto/auxd/internal/schema"
	"github.com/auxproto/auxd/internal/sessionlog"
)

// ExecuteNavigate implements C8's execute_navigate, spec §4.8. clientID is
// the client-session id logged on every event (spec §9 open question 2).
func (m *Manager) ExecuteNavigate(ctx context.Context, clientID string, cmd schema.NavigateCommand) (schema.Response, *schema.CommandError) {
	sess, ok := m.Get(cmd.SessionID)
	if !ok {
		return nil, schema.NewCommandError(schema.ErrSessionNotFound, schema.CategorySession, "browser session not found", nil)
	}
	m.touchActivity(sess)

	m.recordCommand()
	if m.logger != nil {
		m.logger.Emit(sessionlog.Event{Type: sessionlog.EventCommandReceived, SessionID: clientID, CommandID: cmd.ID, Success: true})
	}

	if cmd.Referer != "" {
		sess.Page.SetExtraHTTPHeaders(map[string]string{"Referer": cmd.Referer})
	}

	start := time.Now()

	timeout := time.Duration(cmd.TimeoutMs) * time.Millisecond
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := sess.Page.Goto(navCtx, cmd.URL, cmd.WaitUntil, timeout)
	if err != nil {
		return nil, m.classifyNavigateError(clientID, cmd, err)
	}

	finalURL := sess.Page.URL()
	title, _ := sess.Page.Title(ctx)
	loadTimeMs := time.Since(start).Milliseconds()

	out := schema.NewNavigateResponse(cmd.ID, nowSeconds())
	out.URL = finalURL
	out.Title = title
	out.StatusCode = resp.StatusCode
	out.Redirected = cmd.URL != finalURL
	out.LoadTimeMs = loadTimeMs

	if m.logger != nil {
		execMs := loadTimeMs
		m.logger.Emit(sessionlog.Event{
			Type: sessionlog.EventNavigation, SessionID: clientID, CommandID: cmd.ID, Success: true,
			Data:            map[string]interface{}{"url": finalURL, "redirected": out.Redirected},
			ExecutionTimeMs: &execMs,
		})
		m.logger.Emit(sessionlog.Event{Type: sessionlog.EventCommandExecuted, SessionID: clientID, CommandID: cmd.ID, Success: true})
	}
	return out, nil
}

func (m *Manager) classifyNavigateError(clientID string, cmd schema.NavigateCommand, err error) *schema.CommandError {
	var ce *schema.CommandError
	if driver.IsTimeout(err) {
		ce = schema.NewCommandError(schema.ErrTimeout, schema.CategoryTimeout, "navigation timed out", nil)
	} else {
		ce = schema.NewCommandError(schema.ErrNavigationFailed, schema.CategoryNavigation, err.Error(), nil)
	}
	if m.logger != nil {
		m.logger.Emit(sessionlog.Event{
			Type: sessionlog.EventCommandFailed, SessionID: clientID, CommandID: cmd.ID,
			Success: false, ErrorCode: string(ce.Code), Message: ce.Message,
		})
	}
	return ce
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
