// Command server is the orchestration core's long-running process: it
// wires the event bus, trigger matcher, action executor, DLQ service, and
// both webhook directions behind one HTTP listener, following the
// teacher's cmd/appserver entry point (flag-driven DSN/migration
// selection, signal-based graceful shutdown).
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/automation-core/internal/domain"
	"github.com/R3E-Network/automation-core/internal/dlq"
	"github.com/R3E-Network/automation-core/internal/eventbus"
	"github.com/R3E-Network/automation-core/internal/executor"
	"github.com/R3E-Network/automation-core/internal/matcher"
	platformdb "github.com/R3E-Network/automation-core/internal/platform/database"
	"github.com/R3E-Network/automation-core/internal/platform/migrations"
	"github.com/R3E-Network/automation-core/internal/resilience"
	"github.com/R3E-Network/automation-core/internal/schedule"
	"github.com/R3E-Network/automation-core/internal/store/postgres"
	"github.com/R3E-Network/automation-core/internal/urlguard"
	"github.com/R3E-Network/automation-core/internal/webhookapi"
	"github.com/R3E-Network/automation-core/internal/webhookinbound"
	"github.com/R3E-Network/automation-core/internal/webhookoutbound"
	"github.com/R3E-Network/automation-core/pkg/config"
	"github.com/R3E-Network/automation-core/pkg/logging"
	"github.com/R3E-Network/automation-core/pkg/metrics"
	"github.com/R3E-Network/automation-core/pkg/tracing"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to config)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env)")
	configPath := flag.String("config", "", "path to a YAML configuration file")
	runMigrations := flag.Bool("migrate", true, "apply database migrations on startup")
	flag.Parse()

	var cfg *config.Config
	var err error
	if trimmed := strings.TrimSpace(*configPath); trimmed != "" {
		cfg, err = config.LoadFile(trimmed)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if trimmed := strings.TrimSpace(*dsn); trimmed != "" {
		cfg.Database.DSN = trimmed
	}
	if trimmed := strings.TrimSpace(*addr); trimmed != "" {
		parts := strings.SplitN(trimmed, ":", 2)
		if len(parts) == 2 {
			cfg.Server.Host = parts[0]
			if port, err := strconv.Atoi(parts[1]); err == nil {
				cfg.Server.Port = port
			}
		}
	}

	logger := logging.New("automation-core", cfg.Logging.Level, cfg.Logging.Format)
	logger.SetRateLimit(cfg.RateLimit.LogPerSecond, cfg.RateLimit.LogBurst)
	tracer := buildTracer(cfg, logger)
	rootCtx := context.Background()

	dsnVal := cfg.Database.DSN
	if dsnVal == "" {
		log.Fatalf("no database DSN configured (set DATABASE_URL, -dsn, or database.dsn)")
	}

	rawDB, err := platformdb.Open(rootCtx, dsnVal)
	if err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}
	defer rawDB.Close()

	if *runMigrations || cfg.Database.MigrateOnStart {
		if err := migrations.Apply(rawDB, "migrations"); err != nil {
			log.Fatalf("apply migrations: %v", err)
		}
	}

	store, err := postgres.Open(rootCtx, dsnVal)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	breaker := newBreaker(cfg.Resilience.Backend, "event-bus", resilience.DefaultConfig())
	bus := eventbus.New(store, breaker, logger, tracer, rawDB, dsnVal, eventbus.Config{
		Channel:      cfg.PubSub.Channel,
		PollInterval: time.Duration(cfg.Runtime.PollerInterval) * time.Second,
		PollBatch:    cfg.Runtime.PollerBatchSize,
	})

	masterKey := []byte(cfg.Security.EncryptionKey)
	guard := urlguard.New(cfg.Security.AllowedDomains)
	webhooks := webhookapi.New(store, guard, masterKey)

	endpoints := map[domain.ActionType]string{
		domain.ActionSendEmail:       cfg.Integration.EmailEndpoint,
		domain.ActionSendSMS:         cfg.Integration.SMSEndpoint,
		domain.ActionUpdateCRM:       cfg.Integration.CRMEndpoint,
		domain.ActionCreateTask:      cfg.Integration.TaskEndpoint,
		domain.ActionTriggerWorkflow: cfg.Integration.WorkflowEndpoint,
		domain.ActionCustom:          cfg.Integration.CustomEndpoint,
	}
	collaborator := executor.NewHTTPCollaborator(&http.Client{Timeout: 15 * time.Second}, endpoints)
	actionExecutor := executor.New(store, collaborator, store, tracer, logger)

	dlqExecutor := dlq.CollaboratorExecutor{Dispatch: collaborator.Dispatch}
	dlqService := dlq.New(store, dlqExecutor, logger)

	outbound := webhookoutbound.New(store, webhooks, logger, cfg.Runtime.DeliveryConcurrency)
	outbound.Start()
	defer outbound.Stop()

	var cache *redis.Client
	if pubsubURL := cfg.PubSub.URL; pubsubURL != "" {
		opts, err := redis.ParseURL(pubsubURL)
		if err != nil {
			logger.Error(rootCtx, "parse redis url for inbound cache failed", err, nil)
		} else {
			cache = redis.NewClient(opts)
			defer cache.Close()
		}
	}
	inbound := webhookinbound.New(store, webhooks, bus, cache, logger)

	scheduler := schedule.New(bus, logger)
	scheduler.Start()
	defer scheduler.Stop()

	// The single handler that turns an emitted event into matched triggers'
	// action chains, and fans matching events out to any subscribed
	// outbound webhooks, per spec.md §4.E/§4.F/§4.I.
	if err := bus.Subscribe("*", func(ctx context.Context, event *domain.Event) error {
		triggers, err := matcher.Match(ctx, store, event)
		if err != nil {
			logger.Error(ctx, "trigger match failed", err, map[string]any{"event_id": event.ID})
			return err
		}
		for _, trigger := range triggers {
			if err := actionExecutor.ExecuteChain(ctx, event, trigger); err != nil {
				logger.Error(ctx, "action chain failed", err, map[string]any{
					"event_id": event.ID, "trigger_id": trigger.ID,
				})
			}
		}
		dispatchToOutboundWebhooks(ctx, store, outbound, event, logger)
		return nil
	}); err != nil {
		log.Fatalf("subscribe action dispatcher: %v", err)
	}

	if err := bus.Start(); err != nil {
		log.Fatalf("start event bus: %v", err)
	}
	defer bus.Stop()

	router := buildRouter(webhooks, inbound, dlqService)
	listenAddr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	httpServer := &http.Server{Addr: listenAddr, Handler: router}

	go func() {
		log.Printf("automation-core listening on %s", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}

// dispatchToOutboundWebhooks enqueues a delivery job for every active
// webhook of event's tenant subscribed to its event type, per spec.md §4.I.
func dispatchToOutboundWebhooks(ctx context.Context, webhooks interface {
	List(ctx context.Context, tenantID string) ([]*domain.InboundWebhook, error)
}, queue *webhookoutbound.Queue, event *domain.Event, logger *logging.Logger) {
	subscribed, err := webhooks.List(ctx, event.TenantID)
	if err != nil {
		logger.Error(ctx, "list webhooks for outbound dispatch failed", err, map[string]any{"event_id": event.ID})
		return
	}
	for _, wh := range subscribed {
		if wh.Status != domain.WebhookActive {
			continue
		}
		for _, subscribedEvent := range wh.Events {
			if subscribedEvent == event.EventType || subscribedEvent == "*" {
				queue.Enqueue(webhookoutbound.NewJob(wh, event.EventType, event.Data))
				break
			}
		}
	}
}

func buildRouter(webhooks *webhookapi.Service, inbound *webhookinbound.Receiver, dlqService *dlq.Service) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Post("/webhooks/inbound/{tenant_id}/{webhook_id}", inbound.ServeHTTP)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/", webhookCreateHandler(webhooks))
		r.Get("/", webhookListHandler(webhooks))
		r.Get("/{id}", webhookGetHandler(webhooks))
		r.Delete("/{id}", webhookDeleteHandler(webhooks))
	})

	r.Route("/api/v1/dlq", func(r chi.Router) {
		r.Get("/", dlqPendingHandler(dlqService))
		r.Post("/{id}/retry", dlqRetryHandler(dlqService))
		r.Delete("/{id}", dlqDeleteHandler(dlqService))
	})

	return r
}

// newBreaker selects the Breaker implementation per cfg.Resilience.Backend:
// "gobreaker" routes through the sony/gobreaker-based adapter, anything else
// (including the default, empty string) uses the hand-rolled state machine.
func newBreaker(backend, name string, cfg resilience.Config) resilience.Breaker {
	if backend == "gobreaker" {
		return resilience.NewGobreakerAdapter(name, cfg)
	}
	return resilience.New(name, cfg)
}

func buildTracer(cfg *config.Config, logger *logging.Logger) *tracing.Tracer {
	endpoint := strings.TrimSpace(cfg.Tracing.Endpoint)
	if endpoint == "" {
		return tracing.New(nil, "automation-core")
	}
	provider, _, err := tracing.NewOTLPTracerProvider(context.Background(), tracing.OTLPConfig{
		Endpoint:           endpoint,
		Insecure:           cfg.Tracing.Insecure,
		ServiceName:        cfg.Tracing.ServiceName,
		ResourceAttributes: cfg.Tracing.ResourceAttributes,
		SampleRatio:        cfg.Tracing.SampleRatio,
	})
	if err != nil {
		logger.Error(context.Background(), "configure otlp tracer failed, falling back to no-op", err, nil)
		return tracing.New(nil, "automation-core")
	}
	return tracing.ConfigureGlobalTracer(provider, "automation-core")
}
