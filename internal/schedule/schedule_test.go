package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/automation-core/internal/domain"
	"github.com/R3E-Network/automation-core/pkg/logging"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (p *fakePublisher) Publish(ctx context.Context, tenantID, eventType, entityType, entityID string, data map[string]any) (*domain.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	event := &domain.Event{TenantID: tenantID, EventType: eventType, EntityType: entityType, EntityID: entityID, Data: data}
	p.events = append(p.events, event)
	return event, nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func newLogger() *logging.Logger {
	return logging.New("schedule-test", "error", "json")
}

func TestRegisterFiresScheduleTickEvent(t *testing.T) {
	publisher := &fakePublisher{}
	sched := New(publisher, newLogger())

	id, err := sched.Register(Entry{
		TenantID:   "tenant-1",
		Spec:       "* * * * * *", // every second, seconds-enabled per cron.WithSeconds()
		ScheduleID: "sched-1",
		Data:       map[string]any{"foo": "bar"},
	})
	require.NoError(t, err)
	defer sched.Remove(id)

	sched.Start()
	defer sched.Stop()

	require.Eventually(t, func() bool { return publisher.count() > 0 }, 3*time.Second, 50*time.Millisecond)

	publisher.mu.Lock()
	event := publisher.events[0]
	publisher.mu.Unlock()

	assert.Equal(t, "tenant-1", event.TenantID)
	assert.Equal(t, string(domain.EventScheduleTick), event.EventType)
	assert.Equal(t, "schedule", event.EntityType)
	assert.Equal(t, "sched-1", event.EntityID)
	assert.Equal(t, "sched-1", event.Data["schedule_id"])
	assert.Equal(t, "bar", event.Data["foo"])
}

func TestRegisterRejectsInvalidSpec(t *testing.T) {
	sched := New(&fakePublisher{}, newLogger())
	_, err := sched.Register(Entry{TenantID: "tenant-1", Spec: "not a cron spec", ScheduleID: "sched-1"})
	assert.Error(t, err)
}

func TestRemoveStopsFurtherTicks(t *testing.T) {
	publisher := &fakePublisher{}
	sched := New(publisher, newLogger())

	id, err := sched.Register(Entry{TenantID: "tenant-1", Spec: "* * * * * *", ScheduleID: "sched-1"})
	require.NoError(t, err)

	sched.Start()
	defer sched.Stop()
	require.Eventually(t, func() bool { return publisher.count() > 0 }, 3*time.Second, 50*time.Millisecond)

	sched.Remove(id)
	countAfterRemove := publisher.count()
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, countAfterRemove, publisher.count())
}
