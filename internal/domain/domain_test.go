package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewEventDefaultsToPollMode(t *testing.T) {
	evt := NewEvent("tenant-1", "form.submitted", "form", "form-1", map[string]any{"a": 1})
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, ModePoll, evt.ProcessingMode)
	assert.Equal(t, "tenant-1", evt.TenantID)
	assert.False(t, evt.CreatedAt.IsZero())
}

func TestProcessingModeTerminal(t *testing.T) {
	assert.True(t, ModeCompleted.Terminal())
	assert.True(t, ModeFailed.Terminal())
	assert.False(t, ModeBroadcast.Terminal())
	assert.False(t, ModePoll.Terminal())
}

func TestNextBackoffDoublesPerRetry(t *testing.T) {
	assert.Equal(t, time.Second, NextBackoff(0))
	assert.Equal(t, 2*time.Second, NextBackoff(1))
	assert.Equal(t, 4*time.Second, NextBackoff(2))
	assert.Equal(t, 1024*time.Second, NextBackoff(10))
}

func TestNextBackoffGuardsOverflow(t *testing.T) {
	assert.NotPanics(t, func() { NextBackoff(1000) })
}

func TestRetryConfigDelayAppliesBackoffMultiplier(t *testing.T) {
	rc := RetryConfig{MaxAttempts: 5, BackoffMultiplier: 2, InitialDelayMs: 100}
	assert.Equal(t, 100*time.Millisecond, rc.Delay(1))
	assert.Equal(t, 200*time.Millisecond, rc.Delay(2))
	assert.Equal(t, 400*time.Millisecond, rc.Delay(3))
}

func TestHealthStatusPriorityOrdering(t *testing.T) {
	assert.Equal(t, 1, HealthHealthy.Priority())
	assert.Equal(t, 2, HealthUnknown.Priority())
	assert.Equal(t, 3, HealthDegraded.Priority())
	assert.Equal(t, 5, HealthUnhealthy.Priority())
	assert.Equal(t, 2, HealthStatus("bogus").Priority())
}

func TestMatchesScopeAllForms(t *testing.T) {
	tr := &Trigger{Scope: ScopeAllForms}
	assert.True(t, tr.MatchesScope("anything"))
}

func TestMatchesScopeSpecificForms(t *testing.T) {
	tr := &Trigger{Scope: ScopeSpecificForms, FormIDs: []string{"form-1", "form-2"}}
	assert.True(t, tr.MatchesScope("form-2"))
	assert.False(t, tr.MatchesScope("form-3"))
}

func TestMatchesScopeSpecificFormsEmptyListMatchesNothing(t *testing.T) {
	tr := &Trigger{Scope: ScopeSpecificForms}
	assert.False(t, tr.MatchesScope("form-1"))
}

func TestRollbackActionSynthesizesType(t *testing.T) {
	a := Action{ID: "a1", TriggerID: "t1", ActionType: ActionSendEmail, Config: map[string]any{"rollback_operation": "undo"}}
	rollback := RollbackAction(a, map[string]any{"undone": true})
	assert.Equal(t, ActionRollback, rollback.ActionType)
	assert.Equal(t, "undo", rollback.Config["operation"])
	assert.Equal(t, map[string]any{"undone": true}, rollback.Config["rollback_data"])
	assert.Equal(t, "a1", rollback.ID)
}
