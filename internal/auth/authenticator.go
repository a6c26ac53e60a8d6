// Package auth implements C5: constant-time API-key comparison, checked
// only on the first message of a connection and latched for its lifetime.
package auth

import "crypto/subtle"

// Authenticator is C5. crypto/subtle.ConstantTimeCompare is the standard
// library's canonical constant-time comparison — no third-party library in
// the pack offers anything beyond what it already provides, so this one
// component stays on the standard library by design.
type Authenticator struct {
	Enabled bool
	APIKey  string
}

func New(enabled bool, apiKey string) *Authenticator {
	return &Authenticator{Enabled: enabled, APIKey: apiKey}
}

// Check verifies a presented API key. When auth is disabled it always
// succeeds. Comparison is constant-time regardless of key length to avoid
// leaking key length or prefix via timing.
func (a *Authenticator) Check(presented string) bool {
	if !a.Enabled {
		return true
	}
	want := []byte(a.APIKey)
	got := []byte(presented)
	if len(want) != len(got) {
		// Still run a constant-time compare against a same-length buffer so
		// the response time doesn't depend on whether lengths matched.
		subtle.ConstantTimeCompare(want, want)
		return false
	}
	return subtle.ConstantTimeCompare(want, got) == 1
}
