// Package metrics hosts the Observability core's Prometheus registry
// (spec.md §4.J), grounded on the teacher's pkg/metrics dedicated-registry
// pattern: a package-level Registry distinct from the default Prometheus
// registry, with every metric's cardinality bounded by normalizing inputs
// through a fixed taxonomy before they become label values (invariant 8).
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "automation_core"

// Registry is this service's dedicated Prometheus registry; it is wired
// into the HTTP metrics handler explicitly rather than relying on the
// global default registry (process-wide singleton, initialized once, per
// spec.md §9).
var Registry = prometheus.NewRegistry()

var (
	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "events", Name: "published_total",
		Help: "Events successfully persisted by the bus.",
	}, []string{"event_type", "mode"})

	EventsDuplicate = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "events", Name: "duplicate_total",
		Help: "Events rejected as duplicates within the dedupe window.",
	}, []string{"event_type"})

	PollerClaimed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "poller", Name: "claimed_total",
		Help: "Events claimed by the poller for reprocessing.",
	}, []string{"event_type"})

	TriggerMatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "trigger", Name: "matches_total",
		Help: "Triggers matched per event.",
	}, []string{"event_type"})

	ActionExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "action", Name: "executions_total",
		Help: "Action execution attempts by action type and terminal status.",
	}, []string{"type", "status"})

	ActionRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "action", Name: "retries_total",
		Help: "Action retry attempts by action type.",
	}, []string{"type"})

	ActionCompensationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "action", Name: "compensations_total",
		Help: "Compensation (rollback) invocations by action type.",
	}, []string{"type"})

	ActionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "action", Name: "duration_seconds",
		Help:    "Action execution wall-clock duration.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"type"})

	DLQDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "dlq", Name: "depth",
		Help: "Current count of DLQ entries by status.",
	}, []string{"status"})

	DLQAdded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "dlq", Name: "added_total",
		Help: "Entries added or incremented in the dead-letter queue.",
	}, []string{"action_type"})

	WebhookDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "webhook", Name: "deliveries_total",
		Help: "Outbound webhook delivery attempts.",
	}, []string{"status"})

	WebhookHealth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "webhook", Name: "health",
		Help: "Current webhook health as an enum gauge (1 = current state).",
	}, []string{"health_status"})

	InboundRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "inbound", Name: "requests_total",
		Help: "Inbound webhook requests by outcome.",
	}, []string{"outcome"})

	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "breaker", Name: "state",
		Help: "Circuit breaker state as an enum gauge (0=closed,1=half_open,2=open).",
	}, []string{"name"})

	LogsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "logging", Name: "dropped_total",
		Help: "Log records dropped by the rate-limited logger.",
	}, []string{"level"})
)

var registerOnce sync.Once

// MustRegister registers every collector above against Registry exactly
// once; safe to call repeatedly (e.g. from tests constructing the wiring
// multiple times in one process).
func MustRegister() {
	registerOnce.Do(func() {
		Registry.MustRegister(
			EventsPublished, EventsDuplicate, PollerClaimed, TriggerMatches,
			ActionExecutionsTotal, ActionRetriesTotal, ActionCompensationsTotal, ActionDuration,
			DLQDepth, DLQAdded,
			WebhookDeliveries, WebhookHealth,
			InboundRequests, CircuitBreakerState, LogsDropped,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler exposes Registry over HTTP for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// NormalizeEventType bounds event-type label cardinality to the fixed
// taxonomy named in spec.md §4.J plus its bucket keys, satisfying invariant
// 8 (event-type cardinality <= 100).
func NormalizeEventType(eventType string) string {
	switch eventType {
	case "form.submitted", "form.approved", "form.rejected",
		"user.created", "user.updated",
		"workflow.started", "workflow.state_changed", "workflow.completed",
		"integration.synced", "integration.failed",
		"webhook.received", "schedule.tick":
		return eventType
	case "":
		return "unknown_event"
	default:
		return bucketEventType(eventType)
	}
}

func bucketEventType(eventType string) string {
	switch {
	case looksLikeUUID(eventType):
		return "generic_uuid_event"
	case hasDigitRun(eventType):
		return "generic_random_event"
	case len(eventType) > 0 && eventType[0] == '_':
		return "custom_event"
	default:
		if i := indexByte(eventType, '.'); i >= 0 {
			return eventType[:i] + ".other"
		}
		return "dynamic_event"
	}
}

func looksLikeUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, c := range s {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return false
			}
			continue
		}
		if !isHex(byte(c)) {
			return false
		}
	}
	return true
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hasDigitRun(s string) bool {
	run := 0
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			run++
			if run >= 6 {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// NormalizeErrorName bounds error-label cardinality to the fixed set named
// in spec.md §4.J (invariant 8: error-type cardinality <= 50).
func NormalizeErrorName(kind string) string {
	switch kind {
	case "timeout", "network_timeout":
		return "network_timeout"
	case "connection_refused":
		return "connection_refused"
	case "connection_reset":
		return "connection_reset"
	case "dns_resolution_failed":
		return "dns_resolution_failed"
	case "validation", "validation_error":
		return "validation_error"
	case "database_error":
		return "database_error"
	case "auth_unauthorized":
		return "auth_unauthorized"
	case "auth_forbidden", "auth":
		return "auth_forbidden"
	case "timeout_error":
		return "timeout_error"
	case "rate_limited", "rate_limit_exceeded":
		return "rate_limit_exceeded"
	default:
		return "unknown_error"
	}
}
