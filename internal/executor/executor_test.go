package executor

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/automation-core/internal/apperr"
	"github.com/R3E-Network/automation-core/internal/domain"
	"github.com/R3E-Network/automation-core/pkg/logging"
	"github.com/R3E-Network/automation-core/pkg/tracing"
)

type fakeActionStore struct {
	actions   []*domain.Action
	loadErr   error
	recorded  []*domain.ActionExecution
	recordErr error
	mu        sync.Mutex
}

func (s *fakeActionStore) ActionsForTrigger(ctx context.Context, triggerID string) ([]*domain.Action, error) {
	return s.actions, s.loadErr
}

func (s *fakeActionStore) RecordExecution(ctx context.Context, exec *domain.ActionExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, exec)
	return s.recordErr
}

type fakeDLQSink struct {
	mu      sync.Mutex
	entries []*domain.DLQEntry
}

func (s *fakeDLQSink) Add(ctx context.Context, entry *domain.DLQEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

type fakeCollaborator struct {
	mu        sync.Mutex
	calls     []domain.ActionType
	responses map[domain.ActionType]func(config map[string]any) (map[string]any, error)
}

func newFakeCollaborator() *fakeCollaborator {
	return &fakeCollaborator{responses: make(map[domain.ActionType]func(config map[string]any) (map[string]any, error))}
}

func (c *fakeCollaborator) Dispatch(ctx context.Context, actionType domain.ActionType, config map[string]any) (map[string]any, error) {
	c.mu.Lock()
	c.calls = append(c.calls, actionType)
	c.mu.Unlock()
	if fn, ok := c.responses[actionType]; ok {
		return fn(config)
	}
	return map[string]any{"ok": true}, nil
}

func (c *fakeCollaborator) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func newTestLogger() *logging.Logger { return logging.New("executor-test", "error", "json") }
func newTestTracer() *tracing.Tracer { return tracing.New(nil, "executor-test") }

func testAction(id string, actionType domain.ActionType) *domain.Action {
	return &domain.Action{
		ID:          id,
		TriggerID:   "trig-1",
		ActionType:  actionType,
		TimeoutMs:   1000,
		IsCritical:  true,
		RetryConfig: domain.RetryConfig{MaxAttempts: 1, BackoffMultiplier: 1, InitialDelayMs: 1},
	}
}

func testEvent() *domain.Event {
	return &domain.Event{ID: "evt-1", TenantID: "tenant-1", EventType: "form.submitted", EntityType: "form", EntityID: "form-1", Data: map[string]any{}}
}

func TestExecuteChainRunsActionsInOrder(t *testing.T) {
	store := &fakeActionStore{actions: []*domain.Action{
		testAction("a1", domain.ActionSendEmail),
		testAction("a2", domain.ActionSendSMS),
	}}
	collab := newFakeCollaborator()
	dlq := &fakeDLQSink{}
	exec := New(store, collab, dlq, newTestTracer(), newTestLogger())

	trigger := &domain.Trigger{ID: "trig-1", ErrorHandling: domain.StopOnFirstError}
	err := exec.ExecuteChain(context.Background(), testEvent(), trigger)

	require.NoError(t, err)
	assert.Equal(t, []domain.ActionType{domain.ActionSendEmail, domain.ActionSendSMS}, collab.calls)
	assert.Empty(t, dlq.entries)
	assert.Len(t, store.recorded, 2)
	assert.Equal(t, domain.ExecSuccess, store.recorded[0].Status)
}

func TestExecuteChainStopsOnFirstError(t *testing.T) {
	collab := newFakeCollaborator()
	collab.responses[domain.ActionSendEmail] = func(config map[string]any) (map[string]any, error) {
		return nil, apperr.New(apperr.KindValidation, "rejected")
	}
	store := &fakeActionStore{actions: []*domain.Action{
		testAction("a1", domain.ActionSendEmail),
		testAction("a2", domain.ActionSendSMS),
	}}
	dlq := &fakeDLQSink{}
	exec := New(store, collab, dlq, newTestTracer(), newTestLogger())

	trigger := &domain.Trigger{ID: "trig-1", ErrorHandling: domain.StopOnFirstError}
	err := exec.ExecuteChain(context.Background(), testEvent(), trigger)

	require.Error(t, err)
	assert.Equal(t, []domain.ActionType{domain.ActionSendEmail}, collab.calls)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, "non_retryable_failure", dlq.entries[0].FailureReason)
}

func TestExecuteChainContinuesOnErrorWhenConfigured(t *testing.T) {
	collab := newFakeCollaborator()
	collab.responses[domain.ActionSendEmail] = func(config map[string]any) (map[string]any, error) {
		return nil, apperr.New(apperr.KindValidation, "rejected")
	}
	store := &fakeActionStore{actions: []*domain.Action{
		testAction("a1", domain.ActionSendEmail),
		testAction("a2", domain.ActionSendSMS),
	}}
	dlq := &fakeDLQSink{}
	exec := New(store, collab, dlq, newTestTracer(), newTestLogger())

	trigger := &domain.Trigger{ID: "trig-1", ErrorHandling: domain.ContinueOnError}
	err := exec.ExecuteChain(context.Background(), testEvent(), trigger)

	require.NoError(t, err)
	assert.Equal(t, []domain.ActionType{domain.ActionSendEmail, domain.ActionSendSMS}, collab.calls)
	require.Len(t, dlq.entries, 1)
}

func TestExecuteChainRollsBackSucceededCriticalAction(t *testing.T) {
	collab := newFakeCollaborator()
	collab.responses[domain.ActionSendSMS] = func(config map[string]any) (map[string]any, error) {
		return nil, apperr.New(apperr.KindValidation, "rejected")
	}
	first := testAction("a1", domain.ActionSendEmail)
	first.Config = map[string]any{"rollback_operation": "undo_email"}
	second := testAction("a2", domain.ActionSendSMS)

	store := &fakeActionStore{actions: []*domain.Action{first, second}}
	dlq := &fakeDLQSink{}
	exec := New(store, collab, dlq, newTestTracer(), newTestLogger())

	trigger := &domain.Trigger{ID: "trig-1", ErrorHandling: domain.RollbackOnError}
	err := exec.ExecuteChain(context.Background(), testEvent(), trigger)

	require.Error(t, err)
	// a1 succeeds, a2 fails (non-retryable -> DLQ, chain returns), then
	// compensate() walks executed steps in reverse: only a1 (critical) rolls back.
	require.GreaterOrEqual(t, collab.callCount(), 2)
	assert.Contains(t, collab.calls, domain.ActionRollback)
}

func TestExecuteChainSendsToDLQWhenRetriesExhausted(t *testing.T) {
	collab := newFakeCollaborator()
	collab.responses[domain.ActionSendEmail] = func(config map[string]any) (map[string]any, error) {
		return nil, apperr.New(apperr.KindTransport, "upstream unavailable")
	}
	action := testAction("a1", domain.ActionSendEmail)
	action.RetryConfig = domain.RetryConfig{MaxAttempts: 2, BackoffMultiplier: 1, InitialDelayMs: 1}

	store := &fakeActionStore{actions: []*domain.Action{action}}
	dlq := &fakeDLQSink{}
	exec := New(store, collab, dlq, newTestTracer(), newTestLogger())

	trigger := &domain.Trigger{ID: "trig-1", ErrorHandling: domain.StopOnFirstError}
	err := exec.ExecuteChain(context.Background(), testEvent(), trigger)

	require.Error(t, err)
	assert.Equal(t, 2, collab.callCount())
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, "retries_exhausted", dlq.entries[0].FailureReason)
}

func TestExecuteChainLoadActionsErrorPropagates(t *testing.T) {
	store := &fakeActionStore{loadErr: assertError("boom")}
	exec := New(store, newFakeCollaborator(), &fakeDLQSink{}, newTestTracer(), newTestLogger())

	err := exec.ExecuteChain(context.Background(), testEvent(), &domain.Trigger{ID: "trig-1"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

type assertError string

func (e assertError) Error() string { return string(e) }
