package domain

import "time"

// WebhookStatus is the operator-controlled lifecycle of an InboundWebhook.
type WebhookStatus string

const (
	WebhookActive   WebhookStatus = "active"
	WebhookPaused   WebhookStatus = "paused"
	WebhookDisabled WebhookStatus = "disabled"
)

// HealthStatus reflects recent outbound delivery success, per §4.I.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// Priority maps a HealthStatus to the outbound queue's priority number;
// lower sorts earlier, per §4.I.
func (h HealthStatus) Priority() int {
	switch h {
	case HealthHealthy:
		return 1
	case HealthUnknown:
		return 2
	case HealthDegraded:
		return 3
	case HealthUnhealthy:
		return 5
	default:
		return 2
	}
}

// InboundWebhook is a tenant-registered HTTP endpoint (§3).
type InboundWebhook struct {
	ID                  string       `db:"id" json:"id"`
	TenantID            string       `db:"tenant_id" json:"tenant_id"`
	URL                 string       `db:"url" json:"url"`
	SecretCiphertext    string       `db:"secret_ciphertext" json:"-"`
	Events              []string     `db:"-" json:"events"`
	FormID              *string      `db:"form_id" json:"form_id,omitempty"`
	Status              WebhookStatus `db:"status" json:"status"`
	HealthStatus        HealthStatus `db:"health_status" json:"health_status"`
	ConsecutiveFailures int          `db:"consecutive_failures" json:"consecutive_failures"`
	SuccessCount        int64        `db:"success_count" json:"success_count"`
	FailureCount        int64        `db:"failure_count" json:"failure_count"`
	AverageLatencyMs    float64      `db:"average_latency_ms" json:"average_latency_ms"`
	LastSuccessAt       *time.Time   `db:"last_success_at" json:"last_success_at,omitempty"`
	DeletedAt           *time.Time   `db:"deleted_at" json:"-"`
	CreatedAt           time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at" json:"updated_at"`
}

// DeliveryStatus is the outcome of one WebhookDelivery attempt.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// WebhookDelivery records one outbound delivery attempt (§3).
type WebhookDelivery struct {
	ID             string         `db:"id" json:"id"`
	WebhookID      string         `db:"webhook_id" json:"webhook_id"`
	EventName      string         `db:"event_name" json:"event_name"`
	PayloadHash    string         `db:"payload_hash" json:"payload_hash"`
	Signature      string         `db:"signature" json:"signature"`
	Status         DeliveryStatus `db:"status" json:"status"`
	StatusCode     int            `db:"status_code" json:"status_code"`
	ErrorMessage   string         `db:"error_message" json:"error_message,omitempty"`
	ResponseTimeMs int64          `db:"response_time_ms" json:"response_time_ms"`
	Attempt        int            `db:"attempt" json:"attempt"`
	DeliveredAt    *time.Time     `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// DLQStatus is the lifecycle of one dead-letter entry (§3, §4.G).
type DLQStatus string

const (
	DLQPending    DLQStatus = "pending"
	DLQProcessing DLQStatus = "processing"
	DLQResolved   DLQStatus = "resolved"
	DLQFailed     DLQStatus = "failed"
	DLQIgnored    DLQStatus = "ignored"
)

// DLQEntry is a persisted record of a terminally failed action (§3).
type DLQEntry struct {
	ID             string         `db:"id" json:"id"`
	EventID        string         `db:"event_id" json:"event_id"`
	TriggerID      string         `db:"trigger_id" json:"trigger_id"`
	ActionID       string         `db:"action_id" json:"action_id"`
	FailureReason  string         `db:"failure_reason" json:"failure_reason"`
	FailureCount   int            `db:"failure_count" json:"failure_count"`
	LastError      string         `db:"last_error" json:"last_error"`
	EventSnapshot  map[string]any `db:"-" json:"event_snapshot"`
	ActionSnapshot map[string]any `db:"-" json:"action_snapshot"`
	Status         DLQStatus      `db:"status" json:"status"`
	RetryAfter     *time.Time     `db:"retry_after" json:"retry_after,omitempty"`
	ResolvedAt     *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}
