// Package security implements the input sanitizer (C2) and navigation
// domain policy (C3). Both run against the raw decoded command object,
// before schema validation, per spec §4.13e.
package security

import (
	"regexp"
)

// Pattern sets are adopted verbatim from the original aux.security module
// (JS_INJECTION_PATTERNS / CSS_INJECTION_PATTERNS), the closed rule set
// spec §4.2 references.
var jsInjectionPatterns = compileAll([]string{
	`(?is)<script[^>]*>.*?</script>`,
	`(?i)javascript:`,
	`(?i)data:text/html`,
	`(?i)vbscript:`,
	`(?i)on\w+\s*=`,
	`(?i)eval\s*\(`,
	`(?i)Function\s*\(`,
	`(?i)setTimeout\s*\(`,
	`(?i)setInterval\s*\(`,
	`(?i)document\s*\.`,
	`(?i)window\s*\.`,
	`(?i)location\s*\.`,
	`(?i)alert\s*\(`,
	`(?i)confirm\s*\(`,
	`(?i)prompt\s*\(`,
})

var cssInjectionPatterns = compileAll([]string{
	`(?i)javascript:`,
	`(?i)data:`,
	`(?i)expression\s*\(`,
	`(?i)@import`,
	`(?i)url\s*\(`,
	`(?i)on\w+\s*=`,
	`(?i)<script`,
	`(?i)</script>`,
})

// dangerousJSCalls is the closed set of function-like identifiers custom_js
// may not reference, per spec §4.2.
var dangerousJSCalls = []string{"eval", "Function", "setTimeout", "setInterval", "XMLHttpRequest", "fetch", "import", "require"}

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// Limits mirrors the length caps from config.security.
type Limits struct {
	MaxSelectorLength int
	MaxTextLength     int
	MaxURLLength      int
	MaxCustomJSLength int
	AllowCustomJS     bool
}

func DefaultLimits() Limits {
	return Limits{MaxSelectorLength: 1000, MaxTextLength: 10000, MaxURLLength: 2048, MaxCustomJSLength: 5000}
}

// Sanitizer is C2. Disabling it (Enabled=false) makes every check a no-op,
// per the kill-switch in spec §4.2 — C3 (domain policy) still runs
// independently of this flag.
type Sanitizer struct {
	Enabled bool
	Limits  Limits
}

func NewSanitizer(enabled bool, limits Limits) *Sanitizer {
	return &Sanitizer{Enabled: enabled, Limits: limits}
}

// Violation describes why a sanitizer check failed.
type Violation struct {
	Field   string
	Message string
}

func (v *Violation) Error() string { return v.Field + ": " + v.Message }

// CheckSelector rejects dangerous selector content and enforces the bracket/
// quote-balance check from spec §4.2.
func (s *Sanitizer) CheckSelector(selector string) error {
	if !s.Enabled {
		return nil
	}
	if len(selector) > s.Limits.MaxSelectorLength {
		return &Violation{Field: "selector", Message: "exceeds maximum length"}
	}
	for _, p := range cssInjectionPatterns {
		if p.MatchString(selector) {
			return &Violation{Field: "selector", Message: "potentially dangerous selector pattern detected"}
		}
	}
	if !balanced(selector) {
		return &Violation{Field: "selector", Message: "unbalanced brackets or quotes"}
	}
	return nil
}

// CheckText rejects script-injection content in free text fields (fill text).
func (s *Sanitizer) CheckText(field, text string) error {
	if !s.Enabled {
		return nil
	}
	if len(text) > s.Limits.MaxTextLength {
		return &Violation{Field: field, Message: "exceeds maximum length"}
	}
	for _, p := range jsInjectionPatterns {
		if p.MatchString(text) {
			return &Violation{Field: field, Message: "potentially dangerous script content detected"}
		}
	}
	return nil
}

// CheckURL rejects dangerous URL content beyond the scheme check schema.Validate
// already performs (scheme is a structural rule, content-pattern rejection is
// this package's job).
func (s *Sanitizer) CheckURL(u string) error {
	if !s.Enabled {
		return nil
	}
	if len(u) > s.Limits.MaxURLLength {
		return &Violation{Field: "url", Message: "exceeds maximum length"}
	}
	for _, p := range jsInjectionPatterns {
		if p.MatchString(u) {
			return &Violation{Field: "url", Message: "potentially dangerous URL content detected"}
		}
	}
	return nil
}

// CheckCustomJS rejects custom_js referencing any disallowed call, and
// honors the allow_custom_js kill-switch independent of s.Enabled.
func (s *Sanitizer) CheckCustomJS(js string) error {
	if js == "" {
		return nil
	}
	if !s.Limits.AllowCustomJS {
		return &Violation{Field: "custom_js", Message: "custom JS is disabled by configuration"}
	}
	if !s.Enabled {
		return nil
	}
	if len(js) > s.Limits.MaxCustomJSLength {
		return &Violation{Field: "custom_js", Message: "exceeds maximum length"}
	}
	for _, name := range dangerousJSCalls {
		if callPattern(name).MatchString(js) {
			return &Violation{Field: "custom_js", Message: "references a disallowed function: " + name}
		}
	}
	return nil
}

func callPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\s*\(`)
}

// balanced checks bracket and quote balance in a selector: (), [], {}, and
// matching '/" pairs.
func balanced(selector string) bool {
	var stack []rune
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	inSingle, inDouble := false, false
	for _, r := range selector {
		if inSingle {
			if r == '\'' {
				inSingle = false
			}
			continue
		}
		if inDouble {
			if r == '"' {
				inDouble = false
			}
			continue
		}
		switch r {
		case '\'':
			inSingle = true
		case '"':
			inDouble = true
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0 && !inSingle && !inDouble
}
