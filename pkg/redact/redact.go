// Package redact implements the bidi-control stripping and PII redaction
// required by the Event Bus (spec.md §4.D step 1) and the Observability
// core's logger (spec.md §4.J). SanitizeEventData uses the shared walker in
// pkg/walk; RedactValue has its own recursive walk, since it also blanks
// whole values under secret-looking keys. Secret-field blocking is adapted
// from the teacher's infrastructure/redaction package.
package redact

import (
	"regexp"
	"strings"

	"github.com/R3E-Network/automation-core/pkg/walk"
)

// bidiControls are the Unicode directional override/embedding codepoints
// invariant 9 forbids in published event data: U+202A..U+202E and
// U+2066..U+2069.
var bidiControls = func() map[rune]struct{} {
	m := make(map[rune]struct{})
	for r := rune(0x202A); r <= 0x202E; r++ {
		m[r] = struct{}{}
	}
	for r := rune(0x2066); r <= 0x2069; r++ {
		m[r] = struct{}{}
	}
	return m
}()

// StripBidi removes every bidi control codepoint from s.
func StripBidi(s string) string {
	if !strings.ContainsAny(s, "‪‫‬‭‮⁦⁧⁨⁩") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if _, bad := bidiControls[r]; bad {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeEventData walks data removing bidi controls from every string
// leaf, per §4.D publish step 1.
func SanitizeEventData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := walk.Value(data, StripBidi)
	return out.(map[string]any)
}

var (
	emailPattern = regexp.MustCompile(`(?i)\b([a-z0-9._%+\-]+)@([a-z0-9.\-]+)\.([a-z]{2,})\b`)
	phonePattern = regexp.MustCompile(`\b(\+?\d[\d\-\s]{7,}\d)\b`)

	secretFieldNames = []string{
		"password", "secret", "token", "apikey", "api_key",
		"private_key", "credential", "authorization",
	}
)

// RedactEmail masks the local-part and domain while preserving the TLD, per
// §4.J: "x***@y***.tld, preserving TLD; single-part domains => x***@***.tld".
func RedactEmail(match string) string {
	groups := emailPattern.FindStringSubmatch(match)
	if groups == nil {
		return match
	}
	local, domain, tld := groups[1], groups[2], groups[3]
	localMask := maskKeepFirst(local)
	if domain == "" {
		return localMask + "@***." + tld
	}
	domainMask := maskKeepFirst(domain)
	return localMask + "@" + domainMask + "." + tld
}

func maskKeepFirst(s string) string {
	if s == "" {
		return "***"
	}
	return string(s[0]) + "***"
}

// RedactPhone preserves the first and last 4 digits, masking the middle,
// per §4.J.
func RedactPhone(match string) string {
	digits := make([]byte, 0, len(match))
	nonDigit := make(map[int]byte)
	for i := 0; i < len(match); i++ {
		c := match[i]
		if c >= '0' && c <= '9' {
			digits = append(digits, c)
		} else {
			nonDigit[len(digits)] = c
		}
	}
	if len(digits) < 10 {
		return match
	}
	masked := make([]byte, len(digits))
	copy(masked, digits)
	for i := 4; i < len(digits)-4; i++ {
		masked[i] = '*'
	}
	return string(masked)
}

// RedactString applies email and phone redaction to a single string leaf.
func RedactString(s string) string {
	s = emailPattern.ReplaceAllStringFunc(s, RedactEmail)
	s = phonePattern.ReplaceAllStringFunc(s, RedactPhone)
	return s
}

// RedactValue walks v, redacting PII in every string leaf and blanking out
// any map value whose key looks like a secret field, recursively through
// nested structures (§4.J "recursively through nested structures and error
// stacks").
func RedactValue(v any) any {
	return redactRecursive(v)
}

func redactRecursive(v any) any {
	switch t := v.(type) {
	case string:
		return RedactString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if isSecretField(k) {
				out[k] = "***REDACTED***"
				continue
			}
			out[k] = redactRecursive(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = redactRecursive(val)
		}
		return out
	default:
		return v
	}
}

func isSecretField(name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range secretFieldNames {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}

// RedactErrorStack applies string-level redaction to a formatted error or
// stack trace before it reaches a log sink or span attribute.
func RedactErrorStack(s string) string {
	return RedactString(s)
}
