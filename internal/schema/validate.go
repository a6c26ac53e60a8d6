package schema

import (
	"fmt"
	"net/url"
)

// Bounds from spec §4.1 / §8.
const (
	MinTimeoutMs        = 1_000
	MaxTimeoutMs        = 300_000
	MinClickCount        = 1
	MaxClickCount        = 10
	MinTypingDelayMs     = 0
	MaxTypingDelayMs     = 1_000
	MinPollIntervalMs    = 50
	MaxPollIntervalMs    = 5_000
	MaxCustomJSLength    = 5_000
)

var navigateWaitUntil = map[string]bool{"load": true, "domcontentloaded": true, "networkidle": true}
var clickButtons = map[string]bool{"left": true, "right": true, "middle": true}
var extractTypes = map[string]bool{"text": true, "html": true, "attribute": true, "property": true}
var waitConditions = map[string]bool{
	"load": true, "domcontentloaded": true, "networkidle": true,
	"visible": true, "hidden": true, "attached": true, "detached": true,
}
var waitConditionsNeedingSelector = map[string]bool{
	"visible": true, "hidden": true, "attached": true, "detached": true,
}

// Limits bundles the sanitizer-adjacent length caps. Validate enforces
// MaxURLLength on url, MaxTextLength on fill text and AllowCustomJS on wait;
// MaxSelectorLength is carried but not checked here (the sanitizer checks
// selector length).
type Limits struct {
	MaxSelectorLength int
	MaxURLLength      int
	MaxTextLength     int
	AllowCustomJS     bool
}

func DefaultLimits() Limits {
	return Limits{MaxSelectorLength: 1000, MaxURLLength: 2048, MaxTextLength: 10000, AllowCustomJS: false}
}

type collector struct {
	errs []FieldError
}

func (c *collector) add(field, msg string) {
	c.errs = append(c.errs, FieldError{Field: field, Message: msg})
}

func (c *collector) err() error {
	if len(c.errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: c.errs}
}

func str(raw map[string]interface{}, key string) (string, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolField(raw map[string]interface{}, key string, def bool) bool {
	v, ok := raw[key]
	if !ok || v == nil {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func intField(raw map[string]interface{}, key string) (int, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func parseHeader(raw map[string]interface{}, c *collector) Header {
	h := Header{}
	if id, ok := str(raw, "id"); ok {
		h.ID = id
	}
	if h.ID == "" {
		c.add("id", "must be non-empty")
	}
	if method, ok := str(raw, "method"); ok {
		h.Method = method
	}
	if sid, ok := str(raw, "session_id"); ok {
		h.SessionID = sid
	}
	if h.SessionID == "" {
		c.add("session_id", "must be non-empty")
	}
	if t, ok := intField(raw, "timeout"); ok {
		h.TimeoutMs = t
	} else {
		c.add("timeout", "must be an integer")
	}
	if h.TimeoutMs < MinTimeoutMs || h.TimeoutMs > MaxTimeoutMs {
		c.add("timeout", fmt.Sprintf("must be in [%d, %d]", MinTimeoutMs, MaxTimeoutMs))
	}
	return h
}

// Validate parses a raw decoded JSON object into a typed Command, running
// every declarative rule from spec §4.1. Validation never touches the
// browser; a non-nil error is always reported as INVALID_PARAMS/validation
// by the caller.
func Validate(raw map[string]interface{}, limits Limits) (Command, error) {
	c := &collector{}
	h := parseHeader(raw, c)

	switch h.Method {
	case MethodNavigate:
		cmd := validateNavigate(raw, h, c, limits)
		if err := c.err(); err != nil {
			return nil, err
		}
		return cmd, nil
	case MethodClick:
		cmd := validateClick(raw, h, c)
		if err := c.err(); err != nil {
			return nil, err
		}
		return cmd, nil
	case MethodFill:
		cmd := validateFill(raw, h, c, limits)
		if err := c.err(); err != nil {
			return nil, err
		}
		return cmd, nil
	case MethodExtract:
		cmd := validateExtract(raw, h, c)
		if err := c.err(); err != nil {
			return nil, err
		}
		return cmd, nil
	case MethodWait:
		cmd := validateWait(raw, h, c, limits)
		if err := c.err(); err != nil {
			return nil, err
		}
		return cmd, nil
	default:
		c.add("method", fmt.Sprintf("unknown method %q", h.Method))
		return nil, c.err()
	}
}

func validateNavigate(raw map[string]interface{}, h Header, c *collector, limits Limits) NavigateCommand {
	cmd := NavigateCommand{Header: h}
	u, _ := str(raw, "url")
	cmd.URL = u
	if u == "" {
		c.add("url", "must be non-empty")
	} else if len(u) > limits.MaxURLLength {
		c.add("url", "exceeds maximum length")
	} else {
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			c.add("url", "must be an http or https URL")
		}
	}
	wait, ok := str(raw, "wait_until")
	if !ok || wait == "" {
		wait = "load"
	}
	cmd.WaitUntil = wait
	if !navigateWaitUntil[wait] {
		c.add("wait_until", "must be one of load, domcontentloaded, networkidle")
	}
	if referer, ok := str(raw, "referer"); ok {
		cmd.Referer = referer
	}
	return cmd
}

func validateClick(raw map[string]interface{}, h Header, c *collector) ClickCommand {
	cmd := ClickCommand{Header: h}
	sel, _ := str(raw, "selector")
	cmd.Selector = sel
	if sel == "" {
		c.add("selector", "must be non-empty")
	}
	btn, ok := str(raw, "button")
	if !ok || btn == "" {
		btn = "left"
	}
	cmd.Button = btn
	if !clickButtons[btn] {
		c.add("button", "must be one of left, right, middle")
	}
	count, ok := intField(raw, "click_count")
	if !ok {
		count = 1
	}
	cmd.ClickCount = count
	if count < MinClickCount || count > MaxClickCount {
		c.add("click_count", fmt.Sprintf("must be in [%d, %d]", MinClickCount, MaxClickCount))
	}
	cmd.Force = boolField(raw, "force", false)

	if posRaw, ok := raw["position"]; ok && posRaw != nil {
		posMap, ok := posRaw.(map[string]interface{})
		if !ok {
			c.add("position", "must be an object with x and y")
		} else {
			x, xok := intOrFloat(posMap["x"])
			y, yok := intOrFloat(posMap["y"])
			if !xok || !yok {
				c.add("position", "must have numeric x and y")
			} else {
				if x < 0.0 || x > 1.0 {
					c.add("position.x", "must be in [0.0, 1.0]")
				}
				if y < 0.0 || y > 1.0 {
					c.add("position.y", "must be in [0.0, 1.0]")
				}
				cmd.Position = &Position{X: x, Y: y}
			}
		}
	}
	return cmd
}

func intOrFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func validateFill(raw map[string]interface{}, h Header, c *collector, limits Limits) FillCommand {
	cmd := FillCommand{Header: h}
	sel, _ := str(raw, "selector")
	cmd.Selector = sel
	if sel == "" {
		c.add("selector", "must be non-empty")
	}
	text, _ := str(raw, "text")
	cmd.Text = text
	if len(text) > limits.MaxTextLength {
		c.add("text", "exceeds maximum length")
	}
	cmd.ClearFirst = boolField(raw, "clear_first", false)
	cmd.PressEnter = boolField(raw, "press_enter", false)
	cmd.ValidateInput = boolField(raw, "validate_input", false)
	delay, ok := intField(raw, "typing_delay_ms")
	if !ok {
		delay = 0
	}
	cmd.TypingDelayMs = delay
	if delay < MinTypingDelayMs || delay > MaxTypingDelayMs {
		c.add("typing_delay_ms", fmt.Sprintf("must be in [%d, %d]", MinTypingDelayMs, MaxTypingDelayMs))
	}
	return cmd
}

func validateExtract(raw map[string]interface{}, h Header, c *collector) ExtractCommand {
	cmd := ExtractCommand{Header: h}
	sel, _ := str(raw, "selector")
	cmd.Selector = sel
	if sel == "" {
		c.add("selector", "must be non-empty")
	}
	et, _ := str(raw, "extract_type")
	cmd.ExtractType = et
	if !extractTypes[et] {
		c.add("extract_type", "must be one of text, html, attribute, property")
	}
	if et == "attribute" {
		name, _ := str(raw, "attribute_name")
		cmd.AttributeName = name
		if name == "" {
			c.add("attribute_name", "required when extract_type is attribute")
		}
	}
	if et == "property" {
		name, _ := str(raw, "property_name")
		cmd.PropertyName = name
		if name == "" {
			c.add("property_name", "required when extract_type is property")
		}
	}
	cmd.Multiple = boolField(raw, "multiple", false)
	cmd.TrimWhitespace = boolField(raw, "trim_whitespace", false)
	return cmd
}

func validateWait(raw map[string]interface{}, h Header, c *collector, limits Limits) WaitCommand {
	cmd := WaitCommand{Header: h}
	cond, _ := str(raw, "condition")
	cmd.Condition = cond
	if !waitConditions[cond] {
		c.add("condition", "must be one of load, domcontentloaded, networkidle, visible, hidden, attached, detached")
	}
	sel, _ := str(raw, "selector")
	cmd.Selector = sel
	if waitConditionsNeedingSelector[cond] && sel == "" {
		c.add("selector", "required for this condition")
	}
	cmd.TextContent, _ = str(raw, "text_content")
	cmd.AttributeValue, _ = str(raw, "attribute_value")
	if js, ok := str(raw, "custom_js"); ok {
		cmd.CustomJS = js
		if len(js) > MaxCustomJSLength {
			c.add("custom_js", "exceeds maximum length")
		}
		if js != "" && !limits.AllowCustomJS {
			c.add("custom_js", "custom JS is disabled by configuration")
		}
	}
	poll, ok := intField(raw, "poll_interval_ms")
	if !ok {
		poll = 100
	}
	cmd.PollIntervalMs = poll
	if poll < MinPollIntervalMs || poll > MaxPollIntervalMs {
		c.add("poll_interval_ms", fmt.Sprintf("must be in [%d, %d]", MinPollIntervalMs, MaxPollIntervalMs))
	}
	return cmd
}
