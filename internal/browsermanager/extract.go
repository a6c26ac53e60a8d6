package browsermanager

import (
	"context"
	"strings"
	"time"

	"github.com/auxproto/auxd/internal/schema"
	"github.com/auxproto/auxd/internal/sessionlog"
)

// ExecuteExtract implements C8's execute_extract, spec §4.11. clientID is
// the client-session id logged on every event (spec §9 open question 2).
func (m *Manager) ExecuteExtract(ctx context.Context, clientID string, cmd schema.ExtractCommand) (schema.Response, *schema.CommandError) {
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
		return nil, m.fail(clientID, cmd.ID, schema.ErrElementNotFound, schema.CategoryExtraction, "no element matched selector")
	}

	limit := count
	if !cmd.Multiple {
		limit = 1
	}

	var values []interface{}
	infos := make([]schema.ElementInfo, 0, limit)
	for i := 0; i < limit; i++ {
		el := base.Nth(i)
		tag, _ := el.TagName(opCtx)
		class, _ := el.ClassName(opCtx)
		info := schema.ElementInfo{Tag: tag, Class: class, Index: i}

		v, extractErr := m.extractOne(opCtx, el, cmd)
		if extractErr != nil {
			info.Error = extractErr.Error()
			infos = append(infos, info)
			if cmd.Multiple {
				// Keep data and element_info index-aligned (spec §4.11 step 2):
				// a failed element contributes an empty placeholder, not a gap.
				values = append(values, "")
			}
			continue
		}
		if cmd.TrimWhitespace {
			if s, ok := v.(string); ok {
				v = strings.TrimSpace(s)
			}
		}
		values = append(values, v)
		infos = append(infos, info)
	}

	out := schema.NewExtractResponse(cmd.ID, nowSeconds())
	out.ElementsFound = count
	out.ElementInfo = infos
	if cmd.Multiple {
		out.Data = values
	} else if len(values) > 0 {
		// spec §4.11 step 4: data = list[0] || "" — a nil/empty single value
		// (e.g. an absent attribute) reports as "", never JSON null.
		if values[0] == nil {
			out.Data = ""
		} else {
			out.Data = values[0]
		}
	} else {
		return nil, m.fail(clientID, cmd.ID, schema.ErrExtractionFailed, schema.CategoryExtraction, "failed to read requested value from element")
	}

	if m.logger != nil {
		m.logger.Emit(sessionlog.Event{Type: sessionlog.EventExtraction, SessionID: clientID, CommandID: cmd.ID, Success: true, Message: cmd.ExtractType})
		m.logger.Emit(sessionlog.Event{Type: sessionlog.EventCommandExecuted, SessionID: clientID, CommandID: cmd.ID, Success: true})
	}
	return out, nil
}

func (m *Manager) extractOne(ctx context.Context, el interface {
	TextContent(context.Context) (string, error)
	InnerHTML(context.Context) (string, error)
	GetAttribute(context.Context, string) (string, bool, error)
	Evaluate(context.Context, string) (interface{}, error)
}, cmd schema.ExtractCommand) (interface{}, error) {
	switch cmd.ExtractType {
	case "text":
		return el.TextContent(ctx)
	case "html":
		return el.InnerHTML(ctx)
	case "attribute":
		v, ok, err := el.GetAttribute(ctx, cmd.AttributeName)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return v, nil
	case "property":
		return el.Evaluate(ctx, `el => el["`+cmd.PropertyName+`"]`)
	default:
		return nil, nil
	}
}
