// Package eventbus implements spec.md §4.D's single ingress for every
// event: persist-before-broadcast publish, pattern-based subscription, and
// a poller recovery path. Grounded on pkg/pgnotify/bus.go's LISTEN/NOTIFY
// transport (kept for cross-process fan-out) with the Supabase-Realtime
// table-change feature dropped, since no SPEC_FULL.md component observes
// raw table changes — only the domain events this package publishes.
package eventbus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/R3E-Network/automation-core/internal/apperr"
	"github.com/R3E-Network/automation-core/internal/domain"
	"github.com/R3E-Network/automation-core/internal/resilience"
	"github.com/R3E-Network/automation-core/internal/store"
	"github.com/R3E-Network/automation-core/pkg/logging"
	"github.com/R3E-Network/automation-core/pkg/metrics"
	"github.com/R3E-Network/automation-core/pkg/tracing"
)

// DedupeWindow is the duration within which an identical
// (tenant, event_type, entity_id) triple is rejected as a duplicate,
// per spec.md §4.C.
const DedupeWindow = 5 * time.Minute

// Handler processes one delivered event. Handler errors never abort the rest
// of the run: the broadcast fan-out logs them, and the poller records the
// first one through EventStore.FailAttempt.
type Handler func(ctx context.Context, event *domain.Event) error

type subscription struct {
	pattern string
	re      *regexp.Regexp
	handler Handler
}

// Bus is the event bus described by spec.md §4.D.
type Bus struct {
	store   store.EventStore
	breaker resilience.Breaker
	logger  *logging.Logger
	tracer  *tracing.Tracer

	notifyDB *sql.DB
	listener *pq.Listener
	channel  string

	mu   sync.RWMutex
	subs []subscription

	pollInterval time.Duration
	pollBatch    int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config parameterizes New.
type Config struct {
	Channel      string
	PollInterval time.Duration
	PollBatch    int
}

// New constructs a Bus. notifyDB supplies the pg_notify/LISTEN connection;
// it may be the same *sql.DB the store uses or a dedicated one (LISTEN
// holds its connection open, so a dedicated *sql.DB or *pq.Listener DSN is
// typically preferable in production).
func New(eventStore store.EventStore, breaker resilience.Breaker, logger *logging.Logger, tracer *tracing.Tracer, notifyDB *sql.DB, dsn string, cfg Config) *Bus {
	if cfg.Channel == "" {
		cfg.Channel = "automation_events"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PollBatch <= 0 {
		cfg.PollBatch = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		store:        eventStore,
		breaker:      breaker,
		logger:       logger,
		tracer:       tracer,
		notifyDB:     notifyDB,
		channel:      cfg.Channel,
		pollInterval: cfg.PollInterval,
		pollBatch:    cfg.PollBatch,
		ctx:          ctx,
		cancel:       cancel,
	}

	reportProblem := func(_ pq.ListenerEventType, err error) {
		if err != nil {
			b.logger.Error(ctx, "event bus listener error", err, nil)
		}
	}
	b.listener = pq.NewListener(dsn, 10*time.Second, time.Minute, reportProblem)

	return b
}

// Start begins the LISTEN consumer and the poller loop. Both run until Stop
// is called.
func (b *Bus) Start() error {
	if err := b.listener.Listen(b.channel); err != nil {
		return fmt.Errorf("eventbus: listen %s: %w", b.channel, err)
	}
	b.wg.Add(2)
	go b.listenLoop()
	go b.pollLoop()
	return nil
}

// Stop shuts down the listener and poller goroutines.
func (b *Bus) Stop() error {
	b.cancel()
	b.wg.Wait()
	return b.listener.Close()
}

// Subscribe registers handler for every event whose event_type matches
// pattern (exact string or "*"-glob, translated to an anchored regex).
func (b *Bus) Subscribe(pattern string, handler Handler) error {
	re, err := compilePattern(pattern)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid subscribe pattern", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{pattern: pattern, re: re, handler: handler})
	return nil
}

// Publish implements spec.md §4.D's publish algorithm: sanitize, dedupe,
// persist, then attempt broadcast through the circuit breaker, falling back
// to poll mode on any failure. The caller always sees success once the
// event survives step 3 (persist).
func (b *Bus) Publish(ctx context.Context, tenantID, eventType, entityType, entityID string, data map[string]any) (*domain.Event, error) {
	return b.publish(ctx, tenantID, eventType, entityType, entityID, data, nil)
}

// PublishWithActor is Publish with a non-nil actor_id.
func (b *Bus) PublishWithActor(ctx context.Context, tenantID, eventType, entityType, entityID, actorID string, data map[string]any) (*domain.Event, error) {
	return b.publish(ctx, tenantID, eventType, entityType, entityID, data, &actorID)
}

func (b *Bus) publish(ctx context.Context, tenantID, eventType, entityType, entityID string, data map[string]any, actorID *string) (*domain.Event, error) {
	var event *domain.Event
	err := b.tracer.Instrument(ctx, "event.emit", map[string]string{
		"event.tenant_id":  tenantID,
		"event.event_type": eventType,
	}, func(ctx context.Context) error {
		// Step 1: sanitize.
		sanitized, _ := SanitizeData(data).(map[string]any)

		// Step 2: dedupe.
		dup, err := b.store.IsDuplicate(ctx, tenantID, eventType, entityID, DedupeWindow)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "check duplicate event", err)
		}
		if dup {
			metrics.EventsDuplicate.WithLabelValues(metrics.NormalizeEventType(eventType)).Inc()
			return apperr.New(apperr.KindDuplicateEvent, "duplicate event within dedupe window")
		}

		// Step 3: persist.
		event = domain.NewEvent(tenantID, eventType, entityType, entityID, sanitized)
		event.ActorID = actorID
		if err := b.store.Append(ctx, event); err != nil {
			return apperr.Wrap(apperr.KindInternal, "persist event", err)
		}

		// Step 4/5: best-effort broadcast via the breaker; persist already
		// succeeded so the caller sees success regardless of this outcome.
		mode := "poll"
		broadcastErr := b.breaker.Execute(ctx, func(ctx context.Context) error {
			return b.broadcast(ctx, event)
		})
		if broadcastErr == nil {
			if err := b.store.MarkBroadcast(ctx, event.ID); err != nil {
				b.logger.Error(ctx, "mark event broadcast failed", err, map[string]any{"event_id": event.ID})
			} else {
				event.ProcessingMode = domain.ModeBroadcast
				mode = "broadcast"
			}
		} else {
			b.logger.Warn(ctx, "event broadcast failed, falling back to poll", map[string]any{
				"event_id": event.ID, "error": broadcastErr.Error(),
			})
			if err := b.store.MarkForPoll(ctx, event.ID); err != nil {
				b.logger.Error(ctx, "mark event for poll failed", err, map[string]any{"event_id": event.ID})
			}
		}
		metrics.EventsPublished.WithLabelValues(metrics.NormalizeEventType(eventType), mode).Inc()
		return nil
	})

	if err != nil {
		return nil, err
	}
	return event, nil
}

// broadcast publishes the event over pg_notify and fans it out to
// in-process subscribers immediately (so a single-process deployment
// doesn't need to round-trip through Postgres to hear its own publish).
func (b *Bus) broadcast(ctx context.Context, event *domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "marshal event for broadcast", err)
	}
	if _, err := b.notifyDB.ExecContext(ctx, "SELECT pg_notify($1, $2)", b.channel, string(payload)); err != nil {
		return apperr.Wrap(apperr.KindTransport, "pg_notify", err)
	}
	b.fanOut(context.WithoutCancel(ctx), event)
	return nil
}

func (b *Bus) fanOut(ctx context.Context, event *domain.Event) {
	b.mu.RLock()
	matching := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.re.MatchString(event.EventType) {
			matching = append(matching, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matching {
		if err := h(ctx, event); err != nil {
			b.logger.Error(ctx, "event subscriber handler failed", err, map[string]any{
				"event_id": event.ID, "event_type": event.EventType,
			})
		}
	}
}

func (b *Bus) listenLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case n := <-b.listener.Notify:
			if n == nil {
				continue // connection lost; pq.Listener reconnects automatically
			}
			var event domain.Event
			if err := json.Unmarshal([]byte(n.Extra), &event); err != nil {
				b.logger.Error(b.ctx, "discard malformed event notification", err, nil)
				continue
			}
			b.fanOut(b.ctx, &event)
		case <-time.After(90 * time.Second):
			go func() {
				if err := b.listener.Ping(); err != nil {
					b.logger.Error(b.ctx, "event bus listener ping failed", err, nil)
				}
			}()
		}
	}
}

// pollLoop implements spec.md §4.D's poller: the recovery path when
// broadcast is unavailable, providing at-least-once delivery.
func (b *Bus) pollLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.pollOnce(b.ctx)
		}
	}
}

func (b *Bus) pollOnce(ctx context.Context) {
	events, err := b.store.ClaimPending(ctx, b.pollBatch)
	if err != nil {
		b.logger.Error(ctx, "poller claim_pending failed", err, nil)
		return
	}
	for _, event := range events {
		metrics.PollerClaimed.WithLabelValues(metrics.NormalizeEventType(event.EventType)).Inc()
		b.processPolled(ctx, event)
	}
}

func (b *Bus) processPolled(ctx context.Context, event *domain.Event) {
	b.mu.RLock()
	matching := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.re.MatchString(event.EventType) {
			matching = append(matching, s.handler)
		}
	}
	b.mu.RUnlock()

	var firstErr error
	for _, h := range matching {
		if err := h(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		if err := b.store.FailAttempt(ctx, event.ID, firstErr.Error()); err != nil {
			b.logger.Error(ctx, "poller fail_attempt failed", err, map[string]any{"event_id": event.ID})
		}
		return
	}
	if err := b.store.Complete(ctx, event.ID); err != nil {
		b.logger.Error(ctx, "poller complete failed", err, map[string]any{"event_id": event.ID})
	}
}
