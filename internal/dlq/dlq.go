// Package dlq implements the Dead-Letter Queue operations of spec.md §4.G:
// manual and bulk retry against an action's frozen snapshots, eviction, and
// statistics. The persistence itself lives in internal/store/postgres;
// this package owns the retry state machine and concurrency policy.
package dlq

import (
	"context"
	"fmt"
	"time"

	"github.com/R3E-Network/automation-core/internal/apperr"
	"github.com/R3E-Network/automation-core/internal/domain"
	"github.com/R3E-Network/automation-core/internal/resilience"
	"github.com/R3E-Network/automation-core/internal/store"
	"github.com/R3E-Network/automation-core/pkg/logging"
)

// ActionExecutor replays one DLQ entry's action snapshot. internal/executor's
// Collaborator satisfies the dispatch half of this; CollaboratorExecutor
// (below) adapts it into the narrower signature the retry loop needs.
type ActionExecutor interface {
	Retry(ctx context.Context, entry *domain.DLQEntry) error
}

// Service implements the operations of spec.md §4.G.
type Service struct {
	store    store.DLQStore
	executor ActionExecutor
	logger   *logging.Logger
}

// New constructs a DLQ Service.
func New(store store.DLQStore, executor ActionExecutor, logger *logging.Logger) *Service {
	return &Service{store: store, executor: executor, logger: logger}
}

// Add upserts a dead-letter entry; thin passthrough, kept here so HTTP
// handlers depend only on this package rather than reaching into the store
// port directly.
func (s *Service) Add(ctx context.Context, entry *domain.DLQEntry) error {
	return s.store.Add(ctx, entry)
}

// Retry implements spec.md §4.G's retry(dlq_id, executor): legal only from
// pending, with retry_after respected.
func (s *Service) Retry(ctx context.Context, dlqID string) error {
	entry, err := s.store.Get(ctx, dlqID)
	if err != nil {
		return err
	}
	if entry.Status != domain.DLQPending {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("dlq entry %s is not pending (status=%s)", dlqID, entry.Status))
	}
	if entry.RetryAfter != nil && entry.RetryAfter.After(time.Now()) {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("dlq entry %s is not due for retry until %s", dlqID, entry.RetryAfter.Format(time.RFC3339)))
	}

	if err := s.store.UpdateStatus(ctx, dlqID, domain.DLQProcessing, ""); err != nil {
		return err
	}

	// A single manual DLQ retry still gets a couple of immediate attempts
	// against transient collaborator failures before falling back to
	// pending — distinct from the chain's own max_attempts loop that
	// already ran out before this entry was created.
	bo := resilience.NewBoundedExponentialBackoff(50*time.Millisecond, 2*time.Second)
	execErr := resilience.Retry(ctx, bo, func() error { return s.executor.Retry(ctx, entry) })
	if execErr == nil {
		return s.store.UpdateStatus(ctx, dlqID, domain.DLQResolved, "")
	}

	if updErr := s.store.UpdateStatus(ctx, dlqID, domain.DLQPending, execErr.Error()); updErr != nil {
		s.logger.Error(ctx, "dlq retry: revert to pending failed", updErr, map[string]any{"dlq_id": dlqID})
	}
	return execErr
}

// BulkRetryFailure pairs a failed id with its error, per spec.md §4.G's
// bulk_retry return shape.
type BulkRetryFailure struct {
	ID    string
	Error string
}

// BulkRetry implements spec.md §4.G's bulk_retry(ids, executor,
// max_concurrent=3): bounded-concurrency fan-out, returning every id's
// outcome rather than failing fast.
func (s *Service) BulkRetry(ctx context.Context, ids []string, maxConcurrent int) (succeeded []string, failed []BulkRetryFailure) {
	if maxConcurrent < 1 {
		maxConcurrent = 3
	}

	type outcome struct {
		id  string
		err error
	}

	sem := make(chan struct{}, maxConcurrent)
	results := make(chan outcome, len(ids))

	for _, id := range ids {
		id := id
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			results <- outcome{id: id, err: s.Retry(ctx, id)}
		}()
	}
	for i := 0; i < len(ids); i++ {
		o := <-results
		if o.err == nil {
			succeeded = append(succeeded, o.id)
		} else {
			failed = append(failed, BulkRetryFailure{ID: o.id, Error: o.err.Error()})
		}
	}
	return succeeded, failed
}

// MarkFailed implements spec.md §4.G's mark_failed: a terminal human
// decision, the row can no longer be retried.
func (s *Service) MarkFailed(ctx context.Context, id, reason string) error {
	return s.store.MarkFailed(ctx, id, reason)
}

// Delete implements spec.md §4.G's delete(id, force=false).
func (s *Service) Delete(ctx context.Context, id string, force bool) error {
	return s.store.Delete(ctx, id, force)
}

// Stats implements spec.md §4.G's stats(tenant?, from?, to?).
func (s *Service) Stats(ctx context.Context, tenantID string, from, to *time.Time) (map[domain.DLQStatus]int64, error) {
	return s.store.Stats(ctx, tenantID, from, to)
}

// Cleanup implements spec.md §4.G's cleanup(retention_days): delete resolved
// rows older than the cutoff, returning the count removed.
func (s *Service) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	return s.store.Cleanup(ctx, retentionDays)
}

// Pending implements spec.md §4.G's pending(tenant?, event_type?, limit,
// offset) paginated listing.
func (s *Service) Pending(ctx context.Context, tenantID, eventType string, limit, offset int) ([]*domain.DLQEntry, error) {
	return s.store.Pending(ctx, tenantID, eventType, limit, offset)
}

// CollaboratorExecutor adapts an internal/executor.Collaborator into the
// ActionExecutor this package retries against, replaying the frozen
// action_snapshot rather than re-reading the (possibly since-edited or
// deleted) live Action row.
type CollaboratorExecutor struct {
	Dispatch func(ctx context.Context, actionType domain.ActionType, config map[string]any) (map[string]any, error)
}

// Retry dispatches entry's frozen action snapshot once per call. Service.Retry
// may call it several times under its bounded backoff; either way this is
// separate from the chain's own max_attempts loop that already ran out
// before this entry was created.
func (c CollaboratorExecutor) Retry(ctx context.Context, entry *domain.DLQEntry) error {
	actionType, _ := entry.ActionSnapshot["action_type"].(string)
	config, _ := entry.ActionSnapshot["config"].(map[string]any)
	_, err := c.Dispatch(ctx, domain.ActionType(actionType), config)
	return err
}
