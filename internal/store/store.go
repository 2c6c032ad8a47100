// Package store declares the persistence ports the orchestration core's
// components depend on (Event Store, Trigger/Action loader, DLQ, Webhook
// CRUD). Concrete implementations live under internal/store/postgres,
// grounded on the teacher's internal/app/storage/postgres raw-SQL idiom:
// database/sql plus github.com/lib/pq and github.com/jmoiron/sqlx for
// struct scanning, no ORM.
package store

import (
	"context"
	"time"

	"github.com/R3E-Network/automation-core/internal/domain"
)

// EventStore implements spec.md §4.C.
type EventStore interface {
	Append(ctx context.Context, event *domain.Event) error
	IsDuplicate(ctx context.Context, tenantID, eventType, entityID string, window time.Duration) (bool, error)
	MarkBroadcast(ctx context.Context, id string) error
	MarkForPoll(ctx context.Context, id string) error
	ClaimPending(ctx context.Context, batch int) ([]*domain.Event, error)
	Complete(ctx context.Context, id string) error
	FailAttempt(ctx context.Context, id string, errMsg string) error
}

// TriggerStore loads triggers and their action chains, implementing
// spec.md §4.E's loader dependency plus the action-chain read side of §4.F.
type TriggerStore interface {
	ActiveTriggersForEvent(ctx context.Context, tenantID, eventType string) ([]*domain.Trigger, error)
	ActionsForTrigger(ctx context.Context, triggerID string) ([]*domain.Action, error)
	RecordExecution(ctx context.Context, exec *domain.ActionExecution) error
}

// DLQStore implements spec.md §4.G.
type DLQStore interface {
	Add(ctx context.Context, entry *domain.DLQEntry) error
	Get(ctx context.Context, id string) (*domain.DLQEntry, error)
	UpdateStatus(ctx context.Context, id string, status domain.DLQStatus, lastError string) error
	MarkFailed(ctx context.Context, id string, reason string) error
	Delete(ctx context.Context, id string, force bool) error
	Stats(ctx context.Context, tenantID string, from, to *time.Time) (map[domain.DLQStatus]int64, error)
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
	Pending(ctx context.Context, tenantID, eventType string, limit, offset int) ([]*domain.DLQEntry, error)
}

// WebhookStore implements the persistence side of spec.md §4.K and the
// health bookkeeping of §4.I.
type WebhookStore interface {
	Create(ctx context.Context, webhook *domain.InboundWebhook) error
	Get(ctx context.Context, id string) (*domain.InboundWebhook, error)
	List(ctx context.Context, tenantID string) ([]*domain.InboundWebhook, error)
	SoftDelete(ctx context.Context, id, tenantID string) error
	RecordDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error
	RecordSuccess(ctx context.Context, webhookID string, latencyMs int64) error
	RecordFailure(ctx context.Context, webhookID string) (domain.HealthStatus, error)
}
