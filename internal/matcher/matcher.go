// Package matcher implements the Trigger Matcher of spec.md §4.E: given an
// event, return the active triggers for its (tenant, event_type) whose
// scope and conditions hold, sorted by priority ascending. Field
// resolution uses github.com/tidwall/gjson's dot-path addressing over the
// event's JSON-shaped data tree, per SPEC_FULL.md's domain-stack wiring.
package matcher

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/automation-core/internal/domain"
	"github.com/R3E-Network/automation-core/pkg/redact"
)

// TriggerLoader loads the candidate triggers for one (tenant, event_type)
// pair; satisfied by the postgres store.
type TriggerLoader interface {
	ActiveTriggersForEvent(ctx context.Context, tenantID, eventType string) ([]*domain.Trigger, error)
}

// Match returns the triggers that apply to event, sorted by priority
// ascending (spec.md §4.E: "Return order fixes execution order when
// multiple triggers match").
func Match(ctx context.Context, loader TriggerLoader, event *domain.Event) ([]*domain.Trigger, error) {
	candidates, err := loader.ActiveTriggersForEvent(ctx, event.TenantID, event.EventType)
	if err != nil {
		return nil, err
	}

	matched := make([]*domain.Trigger, 0, len(candidates))
	for _, t := range candidates {
		if !t.MatchesScope(event.EntityID) {
			continue
		}
		if !evaluateConditions(t.Conditions, event) {
			continue
		}
		matched = append(matched, t)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority < matched[j].Priority
	})
	return matched, nil
}

func evaluateConditions(conds []domain.TriggerCondition, event *domain.Event) bool {
	if len(conds) == 0 {
		return true
	}
	root := eventJSON(event)
	for _, c := range conds {
		if !evaluateCondition(root, c) {
			return false
		}
	}
	return true
}

// eventJSON renders the event as a single gjson.Result so dotted field
// paths (typically "data.<...>") resolve uniformly whether they reach into
// top-level columns or the nested payload.
func eventJSON(event *domain.Event) gjson.Result {
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

func evaluateCondition(root gjson.Result, c domain.TriggerCondition) bool {
	path := gjsonPath(c.Field)
	value := root.Get(path)
	exists := value.Exists()

	switch c.Operator {
	case domain.OpIsNull:
		return !exists || value.Type == gjson.Null
	case domain.OpIsNotNull:
		return exists && value.Type != gjson.Null
	}

	if !exists || value.Type == gjson.Null {
		return false
	}

	switch c.Operator {
	case domain.OpEquals:
		return compareEqual(value, c.Value)
	case domain.OpNotEquals:
		return !compareEqual(value, c.Value)
	case domain.OpContains:
		return stringContains(value.String(), c.Value)
	case domain.OpNotContains:
		return !stringContains(value.String(), c.Value)
	case domain.OpGreaterThan, domain.OpLessThan, domain.OpGreaterOrEqual, domain.OpLessOrEqual:
		return numericCompare(value, c.Value, c.Operator)
	case domain.OpIn:
		return membership(value, c.Value, true)
	case domain.OpNotIn:
		return membership(value, c.Value, false)
	default:
		return false
	}
}

// gjsonPath strips a leading "$." JSONPath-style root marker, leaving the
// dot path gjson expects against the rendered document (which already nests
// the payload under "data", so a "data." prefix is kept as is).
func gjsonPath(field string) string {
	return strings.TrimPrefix(field, "$.")
}

func compareEqual(value gjson.Result, want any) bool {
	return stripAndCompare(value.String(), want)
}

func stripAndCompare(have string, want any) bool {
	wantStr, ok := want.(string)
	if !ok {
		return numbersEqual(have, want)
	}
	return sanitize(have) == sanitize(wantStr)
}

func sanitize(s string) string {
	// String comparison strips the same bidi controls before compare
	// (§4.E).
	return bidiStrip(s)
}

func numbersEqual(have string, want any) bool {
	hf, err := strconv.ParseFloat(have, 64)
	if err != nil {
		return false
	}
	wf, ok := toFloat(want)
	if !ok {
		return false
	}
	return hf == wf
}

func stringContains(have string, want any) bool {
	s, ok := want.(string)
	if !ok {
		return false
	}
	return strings.Contains(sanitize(have), sanitize(s))
}

func numericCompare(value gjson.Result, want any, op domain.ConditionOperator) bool {
	hf := value.Float()
	if value.Type != gjson.Number {
		parsed, err := strconv.ParseFloat(value.String(), 64)
		if err != nil {
			return false // coercion failure => condition false (§4.E)
		}
		hf = parsed
	}
	wf, ok := toFloat(want)
	if !ok {
		return false
	}
	switch op {
	case domain.OpGreaterThan:
		return hf > wf
	case domain.OpLessThan:
		return hf < wf
	case domain.OpGreaterOrEqual:
		return hf >= wf
	case domain.OpLessOrEqual:
		return hf <= wf
	default:
		return false
	}
}

func membership(value gjson.Result, want any, wantIn bool) bool {
	list, ok := want.([]any)
	if !ok {
		return false
	}
	found := false
	for _, item := range list {
		if stripAndCompare(value.String(), item) {
			found = true
			break
		}
	}
	return found == wantIn
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func bidiStrip(s string) string {
	return redact.StripBidi(s)
}
