package security

import (
	"net/url"
	"strings"
)

// DomainPolicy is C3. It is independent of the sanitizer kill-switch: it
// always runs for navigate commands, per spec §4.2.
type DomainPolicy struct {
	Allowed []string // e.g. "example.com", "*.example.com"
	Blocked []string
}

func NewDomainPolicy(allowed, blocked []string) *DomainPolicy {
	return &DomainPolicy{Allowed: allowed, Blocked: blocked}
}

// Check reports whether navigating to rawURL is permitted. Port is stripped
// before matching, per spec §4.2.
func (p *DomainPolicy) Check(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return &Violation{Field: "url", Message: "could not parse host for domain policy"}
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return &Violation{Field: "url", Message: "url has no host"}
	}

	for _, blocked := range p.Blocked {
		if matchesHost(host, blocked) {
			return &Violation{Field: "url", Message: "host is blocked by domain policy: " + host}
		}
	}

	if len(p.Allowed) > 0 {
		for _, allowed := range p.Allowed {
			if matchesHost(host, allowed) {
				return nil
			}
		}
		return &Violation{Field: "url", Message: "host is not in the allowed domain list: " + host}
	}

	return nil
}

// matchesHost compares host against a pattern that may be a bare domain or
// a "*.example.com" wildcard matching any subdomain of example.com
// (including example.com itself, matching the original implementation's
// suffix-match semantics).
func matchesHost(host, pattern string) bool {
	pattern = strings.ToLower(pattern)
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // ".example.com"
		base := pattern[2:]   // "example.com"
		return host == base || strings.HasSuffix(host, suffix)
	}
	return host == pattern
}
