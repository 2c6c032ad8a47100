package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/automation-core/internal/domain"
)

func newTestEvent() *domain.Event {
	return &domain.Event{
		ID:         "evt-1",
		TenantID:   "tenant-1",
		EventType:  "form.submitted",
		EntityType: "form",
		EntityID:   "form-1",
		Data: map[string]any{
			"email": "user@example.com",
			"nested": map[string]any{
				"score": 42,
			},
		},
	}
}

func TestInterpolateReplacesTemplatePaths(t *testing.T) {
	config := map[string]any{
		"to":      "{{ data.email }}",
		"subject": "New submission for {{ event_type }}",
	}
	out := interpolate(config, newTestEvent())

	assert.Equal(t, "user@example.com", out["to"])
	assert.Equal(t, "New submission for form.submitted", out["subject"])
}

func TestInterpolateResolvesMissingPathToEmptyString(t *testing.T) {
	config := map[string]any{"x": "{{ data.missing }}"}
	out := interpolate(config, newTestEvent())
	assert.Equal(t, "", out["x"])
}

func TestInterpolateLeavesNonTemplateStringsAlone(t *testing.T) {
	config := map[string]any{"x": "plain text"}
	out := interpolate(config, newTestEvent())
	assert.Equal(t, "plain text", out["x"])
}

func TestInterpolateWalksNestedStructures(t *testing.T) {
	config := map[string]any{
		"headers": map[string]any{
			"X-Tenant": "{{ tenant_id }}",
		},
		"ids": []any{"{{ entity_id }}", "static"},
	}
	out := interpolate(config, newTestEvent())

	assert.Equal(t, "tenant-1", out["headers"].(map[string]any)["X-Tenant"])
	assert.Equal(t, []any{"form-1", "static"}, out["ids"])
}

func TestInterpolateNilConfigReturnsNil(t *testing.T) {
	assert.Nil(t, interpolate(nil, newTestEvent()))
}

func TestInterpolateResolvesNestedDataPath(t *testing.T) {
	config := map[string]any{"score": "{{ data.nested.score }}"}
	out := interpolate(config, newTestEvent())
	assert.Equal(t, "42", out["score"])
}
