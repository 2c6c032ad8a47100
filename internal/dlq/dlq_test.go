package dlq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/automation-core/internal/apperr"
	"github.com/R3E-Network/automation-core/internal/domain"
	"github.com/R3E-Network/automation-core/pkg/logging"
)

type fakeDLQStore struct {
	entries map[string]*domain.DLQEntry
	updates []string
}

func newFakeDLQStore(entries ...*domain.DLQEntry) *fakeDLQStore {
	s := &fakeDLQStore{entries: make(map[string]*domain.DLQEntry)}
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return s
}

func (s *fakeDLQStore) Add(ctx context.Context, entry *domain.DLQEntry) error {
	s.entries[entry.ID] = entry
	return nil
}

func (s *fakeDLQStore) Get(ctx context.Context, id string) (*domain.DLQEntry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "dlq entry not found")
	}
	copy := *e
	return &copy, nil
}

func (s *fakeDLQStore) UpdateStatus(ctx context.Context, id string, status domain.DLQStatus, lastError string) error {
	s.updates = append(s.updates, string(status))
	e, ok := s.entries[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "dlq entry not found")
	}
	e.Status = status
	e.LastError = lastError
	return nil
}

func (s *fakeDLQStore) MarkFailed(ctx context.Context, id string, reason string) error {
	e, ok := s.entries[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "dlq entry not found")
	}
	e.Status = domain.DLQFailed
	e.LastError = reason
	return nil
}

func (s *fakeDLQStore) Delete(ctx context.Context, id string, force bool) error {
	delete(s.entries, id)
	return nil
}

func (s *fakeDLQStore) Stats(ctx context.Context, tenantID string, from, to *time.Time) (map[domain.DLQStatus]int64, error) {
	out := map[domain.DLQStatus]int64{}
	for _, e := range s.entries {
		out[e.Status]++
	}
	return out, nil
}

func (s *fakeDLQStore) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	return 0, nil
}

func (s *fakeDLQStore) Pending(ctx context.Context, tenantID, eventType string, limit, offset int) ([]*domain.DLQEntry, error) {
	var out []*domain.DLQEntry
	for _, e := range s.entries {
		if e.Status == domain.DLQPending {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeExecutor struct {
	err error
}

func (e *fakeExecutor) Retry(ctx context.Context, entry *domain.DLQEntry) error {
	return e.err
}

func newLogger() *logging.Logger {
	return logging.New("dlq-test", "error", "json")
}

func TestRetrySucceeds(t *testing.T) {
	entry := &domain.DLQEntry{ID: "d1", Status: domain.DLQPending}
	store := newFakeDLQStore(entry)
	svc := New(store, &fakeExecutor{}, newLogger())

	err := svc.Retry(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.DLQResolved, store.entries["d1"].Status)
	assert.Equal(t, []string{string(domain.DLQProcessing), string(domain.DLQResolved)}, store.updates)
}

func TestRetryFailureRevertsToPending(t *testing.T) {
	entry := &domain.DLQEntry{ID: "d1", Status: domain.DLQPending}
	store := newFakeDLQStore(entry)
	execErr := errors.New("downstream unavailable")
	svc := New(store, &fakeExecutor{err: execErr}, newLogger())

	err := svc.Retry(context.Background(), "d1")
	require.Error(t, err)
	assert.Equal(t, execErr, err)
	assert.Equal(t, domain.DLQPending, store.entries["d1"].Status)
	assert.Equal(t, "downstream unavailable", store.entries["d1"].LastError)
}

func TestRetryRejectsNonPending(t *testing.T) {
	entry := &domain.DLQEntry{ID: "d1", Status: domain.DLQResolved}
	store := newFakeDLQStore(entry)
	svc := New(store, &fakeExecutor{}, newLogger())

	err := svc.Retry(context.Background(), "d1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestRetryRejectsNotYetDue(t *testing.T) {
	future := time.Now().Add(time.Hour)
	entry := &domain.DLQEntry{ID: "d1", Status: domain.DLQPending, RetryAfter: &future}
	store := newFakeDLQStore(entry)
	svc := New(store, &fakeExecutor{}, newLogger())

	err := svc.Retry(context.Background(), "d1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestBulkRetryReportsEachOutcome(t *testing.T) {
	entries := []*domain.DLQEntry{
		{ID: "ok1", Status: domain.DLQPending},
		{ID: "ok2", Status: domain.DLQPending},
		{ID: "bad1", Status: domain.DLQResolved},
	}
	store := newFakeDLQStore(entries...)
	svc := New(store, &fakeExecutor{}, newLogger())

	succeeded, failed := svc.BulkRetry(context.Background(), []string{"ok1", "ok2", "bad1"}, 2)

	assert.ElementsMatch(t, []string{"ok1", "ok2"}, succeeded)
	require.Len(t, failed, 1)
	assert.Equal(t, "bad1", failed[0].ID)
}

func TestCollaboratorExecutorRetryReplaysSnapshot(t *testing.T) {
	var gotType domain.ActionType
	var gotConfig map[string]any

	exec := CollaboratorExecutor{
		Dispatch: func(ctx context.Context, actionType domain.ActionType, config map[string]any) (map[string]any, error) {
			gotType = actionType
			gotConfig = config
			return map[string]any{"ok": true}, nil
		},
	}
	entry := &domain.DLQEntry{
		ActionSnapshot: map[string]any{
			"action_type": "send_email",
			"config":      map[string]any{"to": "ops@example.com"},
		},
	}

	err := exec.Retry(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSendEmail, gotType)
	assert.Equal(t, "ops@example.com", gotConfig["to"])
}

func TestPendingFiltersByStatus(t *testing.T) {
	store := newFakeDLQStore(
		&domain.DLQEntry{ID: "p1", Status: domain.DLQPending},
		&domain.DLQEntry{ID: "r1", Status: domain.DLQResolved},
	)
	svc := New(store, &fakeExecutor{}, newLogger())

	pending, err := svc.Pending(context.Background(), "", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "p1", pending[0].ID)
}
