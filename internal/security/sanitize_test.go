package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizer_RejectsScriptSelector(t *testing.T) {
	s := NewSanitizer(true, DefaultLimits())
	err := s.CheckSelector(`div[onclick="alert(1)"]`)
	require.Error(t, err)
}

func TestSanitizer_AcceptsOrdinarySelector(t *testing.T) {
	s := NewSanitizer(true, DefaultLimits())
	assert.NoError(t, s.CheckSelector("#submit-button"))
	assert.NoError(t, s.CheckSelector("div.card > p:nth-child(2)"))
}

func TestSanitizer_RejectsUnbalancedSelector(t *testing.T) {
	s := NewSanitizer(true, DefaultLimits())
	err := s.CheckSelector("div[data-x='unterminated")
	require.Error(t, err)
}

func TestSanitizer_KillSwitchDisablesChecks(t *testing.T) {
	s := NewSanitizer(false, DefaultLimits())
	assert.NoError(t, s.CheckSelector(`div[onclick="alert(1)"]`))
	assert.NoError(t, s.CheckText("text", "<script>alert(1)</script>"))
}

func TestSanitizer_RejectsJavascriptURL(t *testing.T) {
	s := NewSanitizer(true, DefaultLimits())
	err := s.CheckURL("javascript:alert(document.cookie)")
	require.Error(t, err)
}

func TestSanitizer_RejectsWindowLocationAssignment(t *testing.T) {
	s := NewSanitizer(true, DefaultLimits())
	err := s.CheckText("text", "window.location='evil'")
	require.Error(t, err)
}

func TestSanitizer_RejectsDocumentReference(t *testing.T) {
	s := NewSanitizer(true, DefaultLimits())
	err := s.CheckText("text", "alert(document.cookie)")
	require.Error(t, err)
}

func TestSanitizer_RejectsLocationReference(t *testing.T) {
	s := NewSanitizer(true, DefaultLimits())
	err := s.CheckURL("https://example.com/?x=location.href")
	require.Error(t, err)
}

func TestSanitizer_RejectsAlertConfirmPrompt(t *testing.T) {
	s := NewSanitizer(true, DefaultLimits())
	require.Error(t, s.CheckText("text", "alert('hi')"))
	require.Error(t, s.CheckText("text", "confirm('hi')"))
	require.Error(t, s.CheckText("text", "prompt('hi')"))
}

func TestSanitizer_CustomJSDisallowedCalls(t *testing.T) {
	limits := DefaultLimits()
	limits.AllowCustomJS = true
	s := NewSanitizer(true, limits)
	err := s.CheckCustomJS("fetch('https://evil.example/x')")
	require.Error(t, err)
}

func TestSanitizer_CustomJSRejectedWhenKillSwitchOff(t *testing.T) {
	limits := DefaultLimits()
	limits.AllowCustomJS = false
	s := NewSanitizer(true, limits)
	err := s.CheckCustomJS("document.title")
	require.Error(t, err)
}

func TestSanitizer_CustomJSAllowedWhenSafe(t *testing.T) {
	limits := DefaultLimits()
	limits.AllowCustomJS = true
	s := NewSanitizer(true, limits)
	assert.NoError(t, s.CheckCustomJS("document.title.length > 0"))
}

func TestDomainPolicy_BlockedWins(t *testing.T) {
	p := NewDomainPolicy(nil, []string{"evil.example.com"})
	assert.Error(t, p.Check("https://evil.example.com/path"))
	assert.NoError(t, p.Check("https://good.example.com/path"))
}

func TestDomainPolicy_WildcardBlock(t *testing.T) {
	p := NewDomainPolicy(nil, []string{"*.evil.example.com"})
	assert.Error(t, p.Check("https://sub.evil.example.com/"))
	assert.NoError(t, p.Check("https://evil.example.com.attacker.net/"))
}

func TestDomainPolicy_AllowListRestricts(t *testing.T) {
	p := NewDomainPolicy([]string{"*.example.com"}, nil)
	assert.NoError(t, p.Check("https://www.example.com/"))
	assert.Error(t, p.Check("https://other.test/"))
}

func TestDomainPolicy_PortStripped(t *testing.T) {
	p := NewDomainPolicy([]string{"example.com"}, nil)
	assert.NoError(t, p.Check("https://example.com:8443/path"))
}
