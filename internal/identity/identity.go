// Package identity holds the seed payload supplied at execution start and
// its canonicalization rules. Seeds select which collections are valid
// traversal start points, so two spellings of the same email must normalize
// to one value before the graph is walked.
package identity

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Payload maps a seed-key name (e.g. "email", "phone_number") to the value
// supplied for this execution. Empty or nil values count as absent.
type Payload map[string]any

// Normalize returns a copy of p with well-known seed kinds canonicalized:
// emails are NFC-normalized, trimmed, and lowercased; phone numbers keep a
// leading + and digits only. Other seeds pass through unchanged.
func Normalize(p Payload) Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		switch {
		case strings.Contains(k, "email"):
			out[k] = NormalizeEmail(s)
		case strings.Contains(k, "phone"):
			out[k] = NormalizePhone(s)
		default:
			out[k] = s
		}
	}
	return out
}

// NormalizeEmail canonicalizes an email address for matching.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

// NormalizePhone strips separators, keeping a leading + and digits.
func NormalizePhone(s string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(s) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Active returns the single non-empty seed in p. It fails when more than one
// non-empty seed is cached: a generation call may only act on one identity,
// never silently pick among several.
func (p Payload) Active() (key string, value any, err error) {
	for k, v := range p {
		if v == nil || v == "" {
			continue
		}
		if key != "" {
			return "", nil, fmt.Errorf("identity: multiple active identities cached (%s, %s); exactly one is allowed per generation call", key, k)
		}
		key, value = k, v
	}
	return key, value, nil
}
