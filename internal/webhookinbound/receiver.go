// Package webhookinbound implements the Inbound Webhook Receiver of
// spec.md §4.H: lookup, rate limiting, signature verification, body-size
// and nesting-depth guards, payload caching, and re-entry onto the event
// bus as a domain.Event.
package webhookinbound

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/R3E-Network/automation-core/internal/apperr"
	"github.com/R3E-Network/automation-core/internal/domain"
	"github.com/R3E-Network/automation-core/internal/store"
	"github.com/R3E-Network/automation-core/internal/webhookapi"
	"github.com/R3E-Network/automation-core/pkg/logging"
	"github.com/R3E-Network/automation-core/pkg/secretutil"
	"github.com/R3E-Network/automation-core/pkg/walk"
	"github.com/R3E-Network/automation-core/infrastructure/ratelimit"
)

const (
	maxBodyBytes   = 10 << 20 // 10 MB, spec.md §4.H step 5
	maxCacheBytes  = 1 << 20  // 1 MB, step 6
	maxNestDepth   = 64       // step 5
	cacheTTL       = 24 * time.Hour
	rateLimitBurst = 100 // 100 requests / 60s, step 3
)

// EventPublisher is the narrow surface Receiver needs from internal/eventbus.
type EventPublisher interface {
	Publish(ctx context.Context, tenantID, eventType, entityType, entityID string, data map[string]any) (*domain.Event, error)
}

// Receiver implements the handler chain of spec.md §4.H.
type Receiver struct {
	webhooks  store.WebhookStore
	secrets   *webhookapi.Service
	publisher EventPublisher
	cache     *redis.Client
	logger    *logging.Logger

	mu       sync.Mutex
	limiters map[string]*ratelimit.RateLimiter
}

// New constructs a Receiver.
func New(webhooks store.WebhookStore, secrets *webhookapi.Service, publisher EventPublisher, cache *redis.Client, logger *logging.Logger) *Receiver {
	return &Receiver{
		webhooks:  webhooks,
		secrets:   secrets,
		publisher: publisher,
		cache:     cache,
		logger:    logger,
		limiters:  make(map[string]*ratelimit.RateLimiter),
	}
}

// limiterFor lazily builds the per-webhook limiter adapted from the
// teacher's infrastructure/ratelimit.RateLimiter, configured so its primary
// bucket refills at rateLimitBurst/60 per second with a burst of
// rateLimitBurst — the "100 requests / 60s" token bucket step 3 requires.
func (r *Receiver) limiterFor(webhookID string) *ratelimit.RateLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[webhookID]
	if !ok {
		l = ratelimit.New(ratelimit.RateLimitConfig{RequestsPerSecond: float64(rateLimitBurst) / 60, Burst: rateLimitBurst})
		r.limiters[webhookID] = l
	}
	return l
}

// ServeHTTP implements POST /webhooks/inbound/{tenant_id}/{webhook_id}.
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	tenantID := chi.URLParam(req, "tenant_id")
	webhookID := chi.URLParam(req, "webhook_id")

	if _, err := uuid.Parse(webhookID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid UUID")
		return
	}

	webhook, err := r.webhooks.Get(ctx, webhookID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			writeError(w, http.StatusNotFound, "webhook not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if webhook.TenantID != tenantID {
		writeError(w, http.StatusForbidden, "organization mismatch")
		return
	}
	if webhook.Status == domain.WebhookDisabled || webhook.Status == domain.WebhookPaused {
		writeError(w, http.StatusForbidden, fmt.Sprintf("webhook is %s", webhook.Status))
		return
	}

	limiter := r.limiterFor(webhookID)
	if !limiter.Allow() {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	secret, err := r.secrets.DecryptSecret(webhook)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "secret unavailable")
		return
	}
	if !secretutil.Verify(body, req.Header.Get("X-Signature"), secret) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if walk.MaxDepth(payload) > maxNestDepth {
		writeError(w, http.StatusBadRequest, "payload nesting too deep")
		return
	}
	if _, ok := payload["event"]; !ok {
		writeError(w, http.StatusBadRequest, "missing top-level \"event\" field")
		return
	}

	timestamp, _ := payload["timestamp"].(string)
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339)
		payload["timestamp"] = timestamp
	}

	if len(body) <= maxCacheBytes && r.cache != nil {
		key := fmt.Sprintf("inbound:%s:%s:%s", tenantID, webhookID, timestamp)
		if err := r.cache.Set(ctx, key, body, cacheTTL).Err(); err != nil {
			r.logger.Error(ctx, "inbound webhook cache write failed", err, map[string]any{"webhook_id": webhookID})
			writeError(w, http.StatusServiceUnavailable, "cache unavailable")
			return
		}
	}

	eventType, _ := payload["event"].(string)
	if _, err := r.publisher.Publish(ctx, tenantID, eventType, "webhook", webhookID, payload); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to emit event")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true, "webhook_id": webhookID, "status": "processed",
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
