package executor

import (
	"encoding/json"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/automation-core/internal/domain"
	"github.com/R3E-Network/automation-core/pkg/walk"
)

// templatePattern matches "{{ path }}" with optional interior whitespace,
// per spec.md §4.F's config interpolation rule.
var templatePattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// interpolate rewrites every string leaf of config, replacing each
// "{{ path }}" occurrence with get(event, path); missing values resolve to
// the empty string. Arrays and nested objects are walked via pkg/walk,
// shared with the bidi-sanitation and PII-redaction passes per
// SPEC_FULL.md's domain-stack reuse note.
func interpolate(config map[string]any, event *domain.Event) map[string]any {
	if config == nil {
		return nil
	}
	doc := eventDoc(event)
	visit := func(s string) string {
		return templatePattern.ReplaceAllStringFunc(s, func(match string) string {
			sub := templatePattern.FindStringSubmatch(match)
			if len(sub) < 2 {
				return s
			}
			val := doc.Get(sub[1])
			if !val.Exists() {
				return ""
			}
			return val.String()
		})
	}
	out, _ := walk.Value(config, visit).(map[string]any)
	return out
}

// eventDoc renders event the same way internal/matcher does, so
// "{{ data.foo }}"-style paths resolve identically whether used in a
// trigger condition or an action config template.
func eventDoc(event *domain.Event) gjson.Result {
	doc := map[string]any{
		"id":          event.ID,
		"tenant_id":   event.TenantID,
		"event_type":  event.EventType,
		"entity_type": event.EntityType,
		"entity_id":   event.EntityID,
		"data":        event.Data,
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return gjson.Result{}
	}
	return gjson.ParseBytes(b)
}
