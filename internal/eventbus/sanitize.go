package eventbus

import "strings"

// bidiControls is the set of Unicode bidi/embedding control points spec.md
// §4.D's sanitize step requires stripped from every string leaf: U+202A..
// U+202E (the explicit embedding/override family) and U+2066..U+2069 (the
// isolate family).
var bidiControls = func() map[rune]struct{} {
	set := make(map[rune]struct{}, 9)
	for r := rune(0x202A); r <= 0x202E; r++ {
		set[r] = struct{}{}
	}
	for r := rune(0x2066); r <= 0x2069; r++ {
		set[r] = struct{}{}
	}
	return set
}()

// SanitizeString strips bidi/embedding control characters from s.
func SanitizeString(s string) string {
	if !strings.ContainsFunc(s, isBidiControl) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isBidiControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isBidiControl(r rune) bool {
	_, ok := bidiControls[r]
	return ok
}

// SanitizeData recursively sanitizes every string leaf of an event payload,
// rewriting maps and slices in place and returning the same (now sanitized)
// value; only a bare string argument yields a new value.
func SanitizeData(v any) any {
	switch t := v.(type) {
	case string:
		return SanitizeString(t)
	case map[string]any:
		for k, val := range t {
			t[k] = SanitizeData(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = SanitizeData(val)
		}
		return t
	default:
		return v
	}
}
