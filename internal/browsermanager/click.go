package browsermanager

import (
	"context"
	"time"

	"github.com/auxproto/auxd/internal/driver"
	"github.com/auxproto/auxd/internal/schema"
	"github.com/auxproto/auxd/internal/sessionlog"
)

// ExecuteClick implements C8's execute_click, spec §4.9. clientID is the
// externally meaningful client-session id logged on every event (spec §9
// open question 2); cmd.SessionID is the internal browser-session id used to
// look up the session.
func (m *Manager) ExecuteClick(ctx context.Context, clientID string, cmd schema.ClickCommand) (schema.Response, *schema.CommandError) {
	sess, ok := m.Get(cmd.SessionID)
	if !ok {
		return nil, schema.NewCommandError(schema.ErrSessionNotFound, schema.CategorySession, "browser session not found", nil)
	}
	m.touchActivity(sess)
	m.recordCommand()
	if m.logger != nil {
		m.logger.Emit(sessionlog.Event{Type: sessionlog.EventCommandReceived, SessionID: clientID, CommandID: cmd.ID, Success: true})
	}

	timeout := time.Duration(cmd.TimeoutMs) * time.Millisecond
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	base := sess.Page.Locator(cmd.Selector)
	count, err := base.Count(opCtx)
	if err != nil {
		return nil, m.failInteraction(clientID, cmd.ID, err)
	}
	if count == 0 {
		return nil, m.fail(clientID, cmd.ID, schema.ErrElementNotFound, schema.CategoryInteraction, "no element matched selector")
	}

	el := base.First()
	visible, _ := el.IsVisible(opCtx)
	if !visible && !cmd.Force {
		return nil, m.fail(clientID, cmd.ID, schema.ErrElementNotVisible, schema.CategoryInteraction, "element is not visible")
	}

	text, _ := el.TextContent(opCtx)
	tag, _ := el.TagName(opCtx)

	box, _ := el.BoundingBox(opCtx)
	var point *driver.Point
	clickPos := schema.Position{}
	if box != nil {
		if cmd.Position != nil {
			clickPos = schema.Position{X: box.X + box.Width*cmd.Position.X, Y: box.Y + box.Height*cmd.Position.Y}
		} else {
			clickPos = schema.Position{X: box.X + box.Width/2, Y: box.Y + box.Height/2}
		}
		point = &driver.Point{X: clickPos.X, Y: clickPos.Y}
	}

	err = el.Click(opCtx, driver.ClickOptions{
		Button: cmd.Button, ClickCount: cmd.ClickCount, Force: cmd.Force, Timeout: timeout, Position: point,
	})
	if err != nil {
		if driver.IsTimeout(err) {
			return nil, m.fail(clientID, cmd.ID, schema.ErrTimeout, schema.CategoryTimeout, "click timed out")
		}
		return nil, m.fail(clientID, cmd.ID, schema.ErrElementNotInteractable, schema.CategoryInteraction, err.Error())
	}

	out := schema.NewClickResponse(cmd.ID, nowSeconds())
	out.ElementFound = true
	out.ElementVisible = visible
	out.ClickPosition = clickPos
	out.ElementText = text
	out.ElementTag = tag

	if m.logger != nil {
		m.logger.Emit(sessionlog.Event{Type: sessionlog.EventInteraction, SessionID: clientID, CommandID: cmd.ID, Success: true, Message: "click"})
		m.logger.Emit(sessionlog.Event{Type: sessionlog.EventCommandExecuted, SessionID: clientID, CommandID: cmd.ID, Success: true})
	}
	return out, nil
}

func (m *Manager) fail(sessionID, commandID string, code schema.ErrorCode, category, msg string) *schema.CommandError {
	ce := schema.NewCommandError(code, category, msg, nil)
	if m.logger != nil {
		m.logger.Emit(sessionlog.Event{Type: sessionlog.EventCommandFailed, SessionID: sessionID, CommandID: commandID, Success: false, ErrorCode: string(code), Message: msg})
	}
	return ce
}

func (m *Manager) failInteraction(sessionID, commandID string, err error) *schema.CommandError {
	if driver.IsTimeout(err) {
		return m.fail(sessionID, commandID, schema.ErrTimeout, schema.CategoryTimeout, "operation timed out")
	}
	return m.fail(sessionID, commandID, schema.ErrElementNotInteractable, schema.CategoryInteraction, err.Error())
}
