package browsermanager

import (
	"context"
	"strings"
	"time"

	"github.com/auxproto/auxd/internal/schema"
	"github.com/auxproto/auxd/internal/sessionlog"
)

// ExecuteFill implements C8's execute_fill, spec §4.10. clientID is the
// client-session id logged on every event (spec §9 open question 2).
func (m *Manager) ExecuteFill(ctx context.Context, clientID string, cmd schema.FillCommand) (schema.Response, *schema.CommandError) {
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

	elementType, _ := el.TagName(opCtx)
	var previousValue string
	if isFillableTag(elementType) {
		previousValue, _ = el.InputValue(opCtx)
	}

	if cmd.ClearFirst {
		if err := el.Clear(opCtx); err != nil {
			return nil, m.failInteraction(clientID, cmd.ID, err)
		}
	}

	if cmd.TypingDelayMs > 0 {
		err = el.Type(opCtx, cmd.Text, time.Duration(cmd.TypingDelayMs)*time.Millisecond)
	} else {
		err = el.Fill(opCtx, cmd.Text)
	}
	if err != nil {
		return nil, m.failInteraction(clientID, cmd.ID, err)
	}

	if cmd.PressEnter {
		if err := el.Press(opCtx, "Enter"); err != nil {
			return nil, m.failInteraction(clientID, cmd.ID, err)
		}
	}

	currentValue := cmd.Text
	if isFillableTag(elementType) {
		currentValue, _ = el.InputValue(opCtx)
	}

	validationPassed := true
	if cmd.ValidateInput {
		validationPassed = currentValue == cmd.Text
	}

	out := schema.NewFillResponse(cmd.ID, nowSeconds())
	out.ElementFound = true
	out.ElementType = elementType
	out.TextEntered = cmd.Text
	out.PreviousValue = previousValue
	out.CurrentValue = currentValue
	out.ValidationPassed = validationPassed

	if m.logger != nil {
		m.logger.Emit(sessionlog.Event{Type: sessionlog.EventInteraction, SessionID: clientID, CommandID: cmd.ID, Success: true, Message: "fill"})
		m.logger.Emit(sessionlog.Event{Type: sessionlog.EventCommandExecuted, SessionID: clientID, CommandID: cmd.ID, Success: true})
	}
	return out, nil
}

// isFillableTag reports whether input_value is meaningful for the given tag,
// per spec §4.10 steps 2 and 6 — only input and textarea elements expose it.
func isFillableTag(tag string) bool {
	return strings.EqualFold(tag, "input") || strings.EqualFold(tag, "textarea")
}
