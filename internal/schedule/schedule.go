// Package schedule implements the cron-sourced synthetic-event scheduler
// supplementing spec.md's event model: a cron spec registered per tenant
// emits a domain.EventScheduleTick event onto the bus at each firing,
// letting a Trigger react to "every N minutes" the same way it reacts to
// any other event, without a dedicated time-trigger type.
package schedule

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/automation-core/internal/domain"
	"github.com/R3E-Network/automation-core/pkg/logging"
)

// EventPublisher is the narrow surface Scheduler needs from internal/eventbus.
type EventPublisher interface {
	Publish(ctx context.Context, tenantID, eventType, entityType, entityID string, data map[string]any) (*domain.Event, error)
}

// Scheduler wraps robfig/cron, emitting one event per registered entry.
type Scheduler struct {
	cron      *cron.Cron
	publisher EventPublisher
	logger    *logging.Logger
}

// New constructs a Scheduler.
func New(publisher EventPublisher, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		publisher: publisher,
		logger:    logger,
	}
}

// Entry is one tenant's cron registration.
type Entry struct {
	TenantID   string
	Spec       string // six-field cron expression with a leading seconds field (cron.WithSeconds), or a descriptor such as "@every 1m"
	ScheduleID string
	Data       map[string]any
}

// Register adds entry to the scheduler; it takes effect after Start.
func (s *Scheduler) Register(entry Entry) (cron.EntryID, error) {
	return s.cron.AddFunc(entry.Spec, func() {
		ctx := context.Background()
		data := make(map[string]any, len(entry.Data)+1)
		for k, v := range entry.Data {
			data[k] = v
		}
		data["schedule_id"] = entry.ScheduleID
		if _, err := s.publisher.Publish(ctx, entry.TenantID, string(domain.EventScheduleTick), "schedule", entry.ScheduleID, data); err != nil {
			s.logger.Error(ctx, "schedule tick emit failed", err, map[string]any{
				"tenant_id": entry.TenantID, "schedule_id": entry.ScheduleID,
			})
		}
	})
}

// Remove unregisters a previously-registered entry.
func (s *Scheduler) Remove(id cron.EntryID) { s.cron.Remove(id) }

// Start begins firing registered entries.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts firing, then blocks until any in-flight job completes.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }
