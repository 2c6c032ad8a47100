// Package domain holds the entities shared by every component of the
// orchestration core: events, triggers, actions, executions, webhooks and
// the dead-letter queue. Types here carry no persistence or transport
// concerns; those live in internal/store and internal/webhookapi.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the symbolic event names the matcher understands.
// The set is small; other values are still accepted (event_type is a string
// on the wire), match any trigger registered with the same string, and are
// folded into bucket labels by metrics.NormalizeEventType.
type EventType string

const (
	EventFormSubmitted       EventType = "form.submitted"
	EventFormApproved        EventType = "form.approved"
	EventFormRejected        EventType = "form.rejected"
	EventUserCreated         EventType = "user.created"
	EventUserUpdated         EventType = "user.updated"
	EventWorkflowStarted     EventType = "workflow.started"
	EventWorkflowStateChange EventType = "workflow.state_changed"
	EventWorkflowCompleted   EventType = "workflow.completed"
	EventIntegrationSynced   EventType = "integration.synced"
	EventIntegrationFailed   EventType = "integration.failed"
	EventWebhookReceived     EventType = "webhook.received"
	EventScheduleTick        EventType = "schedule.tick"
)

// ProcessingMode tracks where an Event sits in the publish/poll lifecycle.
type ProcessingMode string

const (
	ModeBroadcast ProcessingMode = "broadcast"
	ModePoll       ProcessingMode = "poll"
	ModeCompleted  ProcessingMode = "completed"
	ModeFailed     ProcessingMode = "failed"
)

// Terminal reports whether the mode is a final state (completed or failed).
func (m ProcessingMode) Terminal() bool {
	return m == ModeCompleted || m == ModeFailed
}

// Event is the immutable record of something that happened, per spec.md §3.
// Only the Bus and its poller mutate an Event after creation.
type Event struct {
	ID             string         `db:"id" json:"id"`
	TenantID       string         `db:"tenant_id" json:"tenant_id"`
	EventType      string         `db:"event_type" json:"event_type"`
	EntityType     string         `db:"entity_type" json:"entity_type"`
	EntityID       string         `db:"entity_id" json:"entity_id"`
	ActorID        *string        `db:"actor_id" json:"actor_id,omitempty"`
	Data           map[string]any `db:"-" json:"data"`
	ProcessingMode ProcessingMode `db:"processing_mode" json:"processing_mode"`
	RetryCount     int            `db:"retry_count" json:"retry_count"`
	NextRetryAt    *time.Time     `db:"next_retry_at" json:"next_retry_at,omitempty"`
	LastError      string         `db:"last_error" json:"last_error,omitempty"`
	ProcessedAt    *time.Time     `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// NewEvent builds an Event ready for Store.Append: it assigns an id when
// absent and sets the initial poll mode, matching §4.C "append".
func NewEvent(tenantID, eventType, entityType, entityID string, data map[string]any) *Event {
	return &Event{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		EventType:      eventType,
		EntityType:     entityType,
		EntityID:       entityID,
		Data:           data,
		ProcessingMode: ModePoll,
		CreatedAt:      time.Now(),
	}
}

// NextBackoff implements §4.C fail_attempt's 2^retry_count second schedule.
func NextBackoff(retryCount int) time.Duration {
	if retryCount > 30 {
		retryCount = 30 // guard against overflow; unreachable in practice, capped at 10 below
	}
	return time.Duration(1<<uint(retryCount)) * time.Second
}

// MaxPollRetries is the retry_count threshold at which a poll-mode event
// becomes terminally failed (§4.C).
const MaxPollRetries = 10
