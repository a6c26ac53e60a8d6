package browsermanager

import (
	"context"
	"strings"
	"time"

	"github.com/auxproto/auxd/internal/driver"
	"github.com/auxproto/auxd/internal/schema"
	"github.com/auxproto/auxd/internal/sessionlog"
)

var loadStateFinal = map[string]string{
	"load":            "page_loaded",
	"domcontentloaded": "dom_content_loaded",
	"networkidle":     "network_idle",
}

// ExecuteWait implements C8's execute_wait, spec §4.12. custom_js takes
// precedence over condition when both are present — the spec resolves an
// ambiguity in the original source's "combinator or override" behavior by
// declaring custom_js the sole waiter whenever it is set (spec §9 open
// question 1). clientID is the client-session id logged on every event
// (spec §9 open question 2).
func (m *Manager) ExecuteWait(ctx context.Context, clientID string, cmd schema.WaitCommand) (schema.Response, *schema.CommandError) {
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
	polling := time.Duration(cmd.PollIntervalMs) * time.Millisecond
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var finalState string
	var elementCount *int
	var err error

	switch {
	case cmd.CustomJS != "":
		err = sess.Page.WaitForFunction(opCtx, cmd.CustomJS, timeout, polling)
		finalState = "custom_condition_met"
	case cmd.TextContent != "" && cmd.Selector != "":
		js := `document.querySelector(` + jsStringLiteral(cmd.Selector) + `)?.textContent?.includes(` + jsStringLiteral(cmd.TextContent) + `)`
		err = sess.Page.WaitForFunction(opCtx, js, timeout, polling)
		finalState = "text_content_found"
	case waitConditionNeedsSelector(cmd.Condition):
		err = sess.Page.Locator(cmd.Selector).WaitFor(opCtx, cmd.Condition, timeout)
		if err == nil {
			n, cerr := sess.Page.Locator(cmd.Selector).Count(opCtx)
			if cerr == nil {
				elementCount = &n
			}
			if cmd.Condition == "detached" {
				zero := 0
				elementCount = &zero
			}
		}
		finalState = cmd.Condition
	default:
		err = sess.Page.WaitForLoadState(opCtx, cmd.Condition, timeout)
		finalState = loadStateFinal[cmd.Condition]
		zero := 0
		elementCount = &zero
	}

	waitTimeMs := time.Since(start).Milliseconds()

	if err != nil {
		ce := schema.NewCommandError(schema.ErrWaitTimeout, schema.CategoryTimeout, "wait condition not met before timeout",
			map[string]interface{}{"condition": cmd.Condition, "wait_time_ms": waitTimeMs})
		if !driver.IsTimeout(err) {
			ce.Message = err.Error()
		}
		if m.logger != nil {
			m.logger.Emit(sessionlog.Event{Type: sessionlog.EventCommandFailed, SessionID: clientID, CommandID: cmd.ID, Success: false, ErrorCode: string(ce.Code), Message: ce.Message})
		}
		return nil, ce
	}

	out := schema.NewWaitResponse(cmd.ID, nowSeconds())
	out.ConditionMet = true
	out.WaitTimeMs = waitTimeMs
	out.FinalState = finalState
	out.ElementCount = elementCount
	out.ConditionDetails = schema.ConditionDetails{Condition: cmd.Condition, Selector: cmd.Selector, TimeoutMs: cmd.TimeoutMs}

	if m.logger != nil {
		m.logger.Emit(sessionlog.Event{Type: sessionlog.EventWaitCondition, SessionID: clientID, CommandID: cmd.ID, Success: true, Message: finalState})
		m.logger.Emit(sessionlog.Event{Type: sessionlog.EventCommandExecuted, SessionID: clientID, CommandID: cmd.ID, Success: true})
	}
	return out, nil
}

func waitConditionNeedsSelector(condition string) bool {
	switch condition {
	case "visible", "hidden", "attached", "detached":
		return true
	}
	return false
}

func jsStringLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
