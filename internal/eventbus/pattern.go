package eventbus

import (
	"regexp"
	"strings"
)

// compilePattern translates a subscribe() pattern (spec.md §4.D) into an
// anchored regexp: an exact event_type compiles to an exact-match regexp,
// while a glob containing "*" treats each "*" as "match anything" and
// anchors the rest literally.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if !strings.Contains(pattern, "*") {
		return regexp.Compile("^" + regexp.QuoteMeta(pattern) + "$")
	}
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}
