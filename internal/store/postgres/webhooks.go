package postgres

import (
	"context"

	"github.com/lib/pq"

	"github.com/R3E-Network/automation-core/internal/apperr"
	"github.com/R3E-Network/automation-core/internal/domain"
)

// Create implements spec.md §4.K's registration step; the secret is stored
// pre-encrypted by the caller (pkg/secretutil), never in cleartext.
func (s *Store) Create(ctx context.Context, webhook *domain.InboundWebhook) error {
	const q = `
		INSERT INTO inbound_webhooks (
			id, tenant_id, url, secret_ciphertext, events, form_id, status, health_status,
			consecutive_failures, success_count, failure_count, average_latency_ms,
			last_success_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err := s.db.ExecContext(ctx, q,
		webhook.ID, webhook.TenantID, webhook.URL, webhook.SecretCiphertext, pq.StringArray(webhook.Events),
		webhook.FormID, webhook.Status, webhook.HealthStatus, webhook.ConsecutiveFailures,
		webhook.SuccessCount, webhook.FailureCount, webhook.AverageLatencyMs,
		webhook.LastSuccessAt, webhook.CreatedAt, webhook.UpdatedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "insert inbound webhook", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.InboundWebhook, error) {
	const q = `
		SELECT id, tenant_id, url, secret_ciphertext, events, form_id, status, health_status,
		       consecutive_failures, success_count, failure_count, average_latency_ms,
		       last_success_at, deleted_at, created_at, updated_at
		FROM inbound_webhooks WHERE id = $1 AND deleted_at IS NULL`
	w, events, err := scanWebhook(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if isNoRows(err) {
			return nil, apperr.New(apperr.KindNotFound, "webhook not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "scan webhook", err)
	}
	w.Events = events
	return w, nil
}

func (s *Store) List(ctx context.Context, tenantID string) ([]*domain.InboundWebhook, error) {
	const q = `
		SELECT id, tenant_id, url, secret_ciphertext, events, form_id, status, health_status,
		       consecutive_failures, success_count, failure_count, average_latency_ms,
		       last_success_at, deleted_at, created_at, updated_at
		FROM inbound_webhooks WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list webhooks", err)
	}
	defer rows.Close()

	var webhooks []*domain.InboundWebhook
	for rows.Next() {
		w, events, err := scanWebhook(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan webhook row", err)
		}
		w.Events = events
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

// SoftDelete implements §4.K: webhooks are never hard-deleted so in-flight
// outbound deliveries can still reference them.
func (s *Store) SoftDelete(ctx context.Context, id, tenantID string) error {
	const q = `UPDATE inbound_webhooks SET deleted_at = now(), status = $1, updated_at = now() WHERE id = $2 AND tenant_id = $3`
	return s.exec(ctx, q, domain.WebhookDisabled, id, tenantID)
}

func (s *Store) RecordDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error {
	const q = `
		INSERT INTO webhook_deliveries (
			id, webhook_id, event_name, payload_hash, signature, status, status_code,
			error_message, response_time_ms, attempt, delivered_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := s.db.ExecContext(ctx, q,
		delivery.ID, delivery.WebhookID, delivery.EventName, delivery.PayloadHash, delivery.Signature,
		delivery.Status, delivery.StatusCode, nullString(delivery.ErrorMessage), delivery.ResponseTimeMs,
		delivery.Attempt, delivery.DeliveredAt, delivery.CreatedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "insert webhook delivery", err)
	}
	return nil
}

// RecordSuccess implements §4.I's health recovery: a delivered attempt
// resets consecutive_failures and restores healthy status.
func (s *Store) RecordSuccess(ctx context.Context, webhookID string, latencyMs int64) error {
	const q = `
		UPDATE inbound_webhooks SET
			consecutive_failures = 0,
			health_status = $1,
			success_count = success_count + 1,
			average_latency_ms = CASE WHEN success_count = 0 THEN $2
			                          ELSE (average_latency_ms * success_count + $2) / (success_count + 1) END,
			last_success_at = now(),
			updated_at = now()
		WHERE id = $3`
	return s.exec(ctx, q, domain.HealthHealthy, latencyMs, webhookID)
}

// RecordFailure implements §4.I's degradation ladder: >=5 consecutive
// failures degrades, >=10 marks unhealthy and disables the webhook
// (circuit-broken until an operator re-enables it).
func (s *Store) RecordFailure(ctx context.Context, webhookID string) (domain.HealthStatus, error) {
	const selQ = `SELECT consecutive_failures FROM inbound_webhooks WHERE id = $1`
	var failures int
	if err := s.db.GetContext(ctx, &failures, selQ, webhookID); err != nil {
		if isNoRows(err) {
			return "", apperr.New(apperr.KindNotFound, "webhook not found")
		}
		return "", apperr.Wrap(apperr.KindInternal, "load webhook consecutive_failures", err)
	}
	failures++

	health := domain.HealthHealthy
	switch {
	case failures >= 10:
		health = domain.HealthUnhealthy
	case failures >= 5:
		health = domain.HealthDegraded
	}

	if health == domain.HealthUnhealthy {
		const q = `
			UPDATE inbound_webhooks SET
				consecutive_failures = $1, failure_count = failure_count + 1,
				health_status = $2, status = $3, updated_at = now()
			WHERE id = $4`
		if err := s.exec(ctx, q, failures, health, domain.WebhookDisabled, webhookID); err != nil {
			return "", err
		}
		return health, nil
	}

	const q = `
		UPDATE inbound_webhooks SET
			consecutive_failures = $1, failure_count = failure_count + 1,
			health_status = $2, updated_at = now()
		WHERE id = $3`
	if err := s.exec(ctx, q, failures, health, webhookID); err != nil {
		return "", err
	}
	return health, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWebhook(row rowScanner) (*domain.InboundWebhook, []string, error) {
	w := &domain.InboundWebhook{}
	var events pq.StringArray
	err := row.Scan(
		&w.ID, &w.TenantID, &w.URL, &w.SecretCiphertext, &events, &w.FormID, &w.Status, &w.HealthStatus,
		&w.ConsecutiveFailures, &w.SuccessCount, &w.FailureCount, &w.AverageLatencyMs,
		&w.LastSuccessAt, &w.DeletedAt, &w.CreatedAt, &w.UpdatedAt,
	)
	return w, []string(events), err
}
