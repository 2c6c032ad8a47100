package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/R3E-Network/automation-core/internal/apperr"
	"github.com/R3E-Network/automation-core/internal/domain"
)

// Add implements spec.md §4.G's upsert-by-(event_id,action_id) add.
func (s *Store) Add(ctx context.Context, entry *domain.DLQEntry) error {
	eventSnap, err := json.Marshal(entry.EventSnapshot)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "marshal dlq event snapshot", err)
	}
	actionSnap, err := json.Marshal(entry.ActionSnapshot)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "marshal dlq action snapshot", err)
	}

	const q = `
		INSERT INTO dead_letter_queue (
			id, event_id, trigger_id, action_id, failure_reason, failure_count,
			last_error, event_snapshot, action_snapshot, status, retry_after, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,1,$6,$7,$8,$9,$10,now(),now())
		ON CONFLICT (event_id, action_id) DO UPDATE SET
			failure_count = dead_letter_queue.failure_count + 1,
			last_error = EXCLUDED.last_error,
			failure_reason = EXCLUDED.failure_reason,
			retry_after = EXCLUDED.retry_after,
			updated_at = now()`
	_, err = s.db.ExecContext(ctx, q,
		entry.ID, entry.EventID, entry.TriggerID, entry.ActionID, entry.FailureReason,
		entry.LastError, eventSnap, actionSnap, domain.DLQPending, entry.RetryAfter,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "upsert dlq entry", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.DLQEntry, error) {
	const q = `
		SELECT id, event_id, trigger_id, action_id, failure_reason, failure_count, last_error,
		       event_snapshot, action_snapshot, status, retry_after, resolved_at, created_at, updated_at
		FROM dead_letter_queue WHERE id = $1`
	row := s.db.QueryRowContext(ctx, q, id)

	e := &domain.DLQEntry{}
	var eventSnap, actionSnap []byte
	if err := row.Scan(
		&e.ID, &e.EventID, &e.TriggerID, &e.ActionID, &e.FailureReason, &e.FailureCount, &e.LastError,
		&eventSnap, &actionSnap, &e.Status, &e.RetryAfter, &e.ResolvedAt, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		if isNoRows(err) {
			return nil, apperr.New(apperr.KindNotFound, "dlq entry not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "scan dlq entry", err)
	}
	if len(eventSnap) > 0 {
		_ = json.Unmarshal(eventSnap, &e.EventSnapshot)
	}
	if len(actionSnap) > 0 {
		_ = json.Unmarshal(actionSnap, &e.ActionSnapshot)
	}
	return e, nil
}

// UpdateStatus moves a DLQ entry between states, per §4.G's retry
// transition (pending -> processing -> resolved, or back to pending with
// failure_count incremented on a failed retry).
func (s *Store) UpdateStatus(ctx context.Context, id string, status domain.DLQStatus, lastError string) error {
	switch status {
	case domain.DLQResolved:
		const q = `UPDATE dead_letter_queue SET status = $1, resolved_at = now(), updated_at = now() WHERE id = $2`
		return s.exec(ctx, q, status, id)
	case domain.DLQPending:
		if lastError != "" {
			const q = `UPDATE dead_letter_queue SET status = $1, failure_count = failure_count + 1, last_error = $2, updated_at = now() WHERE id = $3`
			return s.exec(ctx, q, status, lastError, id)
		}
		const q = `UPDATE dead_letter_queue SET status = $1, updated_at = now() WHERE id = $2`
		return s.exec(ctx, q, status, id)
	default:
		const q = `UPDATE dead_letter_queue SET status = $1, updated_at = now() WHERE id = $2`
		return s.exec(ctx, q, status, id)
	}
}

// MarkFailed implements §4.G's terminal human decision: cannot be retried.
func (s *Store) MarkFailed(ctx context.Context, id string, reason string) error {
	const q = `UPDATE dead_letter_queue SET status = $1, failure_reason = $2, updated_at = now() WHERE id = $3`
	return s.exec(ctx, q, domain.DLQFailed, reason, id)
}

// Delete implements §4.G: only resolved rows, unless force.
func (s *Store) Delete(ctx context.Context, id string, force bool) error {
	if force {
		return s.exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = $1 AND status = $2`, id, domain.DLQResolved)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "delete dlq entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "rows affected", err)
	}
	if n == 0 {
		return apperr.New(apperr.KindValidation, "dlq entry is not resolved; use force to delete anyway")
	}
	return nil
}

func (s *Store) Stats(ctx context.Context, tenantID string, from, to *time.Time) (map[domain.DLQStatus]int64, error) {
	q := `
		SELECT d.status, count(*)
		FROM dead_letter_queue d
		JOIN event_triggers t ON t.id = d.trigger_id
		WHERE ($1 = '' OR t.tenant_id = $1)
		  AND ($2::timestamptz IS NULL OR d.created_at >= $2)
		  AND ($3::timestamptz IS NULL OR d.created_at <= $3)
		GROUP BY d.status`
	rows, err := s.db.QueryContext(ctx, q, tenantID, from, to)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "query dlq stats", err)
	}
	defer rows.Close()

	stats := make(map[domain.DLQStatus]int64)
	for rows.Next() {
		var status domain.DLQStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan dlq stats row", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (s *Store) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dead_letter_queue WHERE status = $1 AND resolved_at < $2`,
		domain.DLQResolved, cutoff)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "cleanup dlq", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "rows affected", err)
	}
	return n, nil
}

func (s *Store) Pending(ctx context.Context, tenantID, eventType string, limit, offset int) ([]*domain.DLQEntry, error) {
	q := `
		SELECT d.id, d.event_id, d.trigger_id, d.action_id, d.failure_reason, d.failure_count, d.last_error,
		       d.event_snapshot, d.action_snapshot, d.status, d.retry_after, d.resolved_at, d.created_at, d.updated_at
		FROM dead_letter_queue d
		JOIN event_triggers t ON t.id = d.trigger_id
		WHERE d.status = $1
		  AND ($2 = '' OR t.tenant_id = $2)
		  AND ($3 = '' OR t.event_type = $3)
		ORDER BY d.created_at ASC
		LIMIT $4 OFFSET $5`
	rows, err := s.db.QueryContext(ctx, q, domain.DLQPending, tenantID, eventType, limit, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "query pending dlq entries", err)
	}
	defer rows.Close()

	var entries []*domain.DLQEntry
	for rows.Next() {
		e := &domain.DLQEntry{}
		var eventSnap, actionSnap []byte
		if err := rows.Scan(
			&e.ID, &e.EventID, &e.TriggerID, &e.ActionID, &e.FailureReason, &e.FailureCount, &e.LastError,
			&eventSnap, &actionSnap, &e.Status, &e.RetryAfter, &e.ResolvedAt, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan dlq entry", err)
		}
		if len(eventSnap) > 0 {
			_ = json.Unmarshal(eventSnap, &e.EventSnapshot)
		}
		if len(actionSnap) > 0 {
			_ = json.Unmarshal(actionSnap, &e.ActionSnapshot)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
