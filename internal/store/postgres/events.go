package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/R3E-Network/automation-core/internal/apperr"
	"github.com/R3E-Network/automation-core/internal/domain"
)

// Append implements spec.md §4.C: assigns created_at/processing_mode when
// absent (domain.NewEvent already does so for callers that use it) and
// persists the row.
func (s *Store) Append(ctx context.Context, event *domain.Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.ProcessingMode == "" {
		event.ProcessingMode = domain.ModePoll
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "marshal event data", err)
	}

	const q = `
		INSERT INTO events (
			id, tenant_id, event_type, entity_type, entity_id, actor_id, data,
			processing_mode, retry_count, next_retry_at, last_error, processed_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err = s.db.ExecContext(ctx, q,
		event.ID, event.TenantID, event.EventType, event.EntityType, event.EntityID,
		event.ActorID, data, event.ProcessingMode, event.RetryCount, event.NextRetryAt,
		nullString(event.LastError), event.ProcessedAt, event.CreatedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "insert event", err)
	}
	return nil
}

// IsDuplicate implements spec.md §4.C's dedupe window check, preserved as
// the binding Open Question decision: keyed on (tenant, event_type,
// entity_id) only, ignoring data.
func (s *Store) IsDuplicate(ctx context.Context, tenantID, eventType, entityID string, window time.Duration) (bool, error) {
	const q = `
		SELECT EXISTS(
			SELECT 1 FROM events
			WHERE tenant_id = $1 AND event_type = $2 AND entity_id = $3
			  AND created_at >= $4
		)`
	var exists bool
	cutoff := time.Now().Add(-window)
	if err := s.db.GetContext(ctx, &exists, q, tenantID, eventType, entityID, cutoff); err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "check duplicate event", err)
	}
	return exists, nil
}

func (s *Store) MarkBroadcast(ctx context.Context, id string) error {
	const q = `UPDATE events SET processing_mode = $1 WHERE id = $2`
	return s.exec(ctx, q, domain.ModeBroadcast, id)
}

func (s *Store) MarkForPoll(ctx context.Context, id string) error {
	const q = `UPDATE events SET processing_mode = $1, retry_count = 0, next_retry_at = now() WHERE id = $2`
	return s.exec(ctx, q, domain.ModePoll, id)
}

// ClaimPending implements spec.md §4.C's recovery read: at-least-once
// delivery is acceptable per §8, so this is a plain SELECT rather than a
// SELECT ... FOR UPDATE SKIP LOCKED; a single poller instance is assumed.
func (s *Store) ClaimPending(ctx context.Context, batch int) ([]*domain.Event, error) {
	const q = `
		SELECT id, tenant_id, event_type, entity_type, entity_id, actor_id, data,
		       processing_mode, retry_count, next_retry_at, last_error, processed_at, created_at
		FROM events
		WHERE processing_mode = $1 AND next_retry_at <= now()
		ORDER BY created_at ASC
		LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, domain.ModePoll, batch)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "claim pending events", err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		e, data, err := scanEvent(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan pending event", err)
		}
		if err := json.Unmarshal(data, &e.Data); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "unmarshal event data", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) Complete(ctx context.Context, id string) error {
	const q = `UPDATE events SET processing_mode = $1, processed_at = now() WHERE id = $2`
	return s.exec(ctx, q, domain.ModeCompleted, id)
}

// FailAttempt implements spec.md §4.C's backoff schedule and the
// MaxPollRetries terminal transition.
func (s *Store) FailAttempt(ctx context.Context, id string, errMsg string) error {
	const selQ = `SELECT retry_count FROM events WHERE id = $1`
	var retryCount int
	if err := s.db.GetContext(ctx, &retryCount, selQ, id); err != nil {
		if isNoRows(err) {
			return apperr.New(apperr.KindNotFound, "event not found")
		}
		return apperr.Wrap(apperr.KindInternal, "load event retry_count", err)
	}
	retryCount++

	if retryCount >= domain.MaxPollRetries {
		const q = `UPDATE events SET processing_mode = $1, retry_count = $2, last_error = $3 WHERE id = $4`
		return s.exec(ctx, q, domain.ModeFailed, retryCount, errMsg, id)
	}

	nextRetry := time.Now().Add(domain.NextBackoff(retryCount))
	const q = `UPDATE events SET retry_count = $1, next_retry_at = $2, last_error = $3 WHERE id = $4`
	return s.exec(ctx, q, retryCount, nextRetry, errMsg, id)
}

func (s *Store) exec(ctx context.Context, q string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return apperr.Wrap(apperr.KindInternal, "execute statement", err)
	}
	return nil
}

func scanEvent(rows *sql.Rows) (*domain.Event, []byte, error) {
	e := &domain.Event{}
	var data []byte
	err := rows.Scan(
		&e.ID, &e.TenantID, &e.EventType, &e.EntityType, &e.EntityID, &e.ActorID, &data,
		&e.ProcessingMode, &e.RetryCount, &e.NextRetryAt, &e.LastError, &e.ProcessedAt, &e.CreatedAt,
	)
	return e, data, err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
