// Package webhookoutbound implements the Outbound Webhook Delivery Queue of
// spec.md §4.I: a health-prioritized job queue, a bounded worker pool, and
// the retry/health-transition policy around each delivery attempt.
package webhookoutbound

import (
	"bytes"
	"container/heap"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/automation-core/internal/domain"
	"github.com/R3E-Network/automation-core/internal/store"
	"github.com/R3E-Network/automation-core/internal/webhookapi"
	"github.com/R3E-Network/automation-core/pkg/logging"
	"github.com/R3E-Network/automation-core/pkg/metrics"
	"github.com/R3E-Network/automation-core/pkg/secretutil"
)

func signatureHeader(body []byte, secret string) string { return secretutil.SignatureHeader(body, secret) }

const (
	maxAttempts   = 4 // 1 + 3 retries, spec.md §4.I
	backoffBaseMs = 30_000
	callTimeout   = 10 * time.Second
)

// attemptDelay returns the sleep before the given 1-based attempt, per
// spec.md §4.I's 0, 30s, 60s, 120s schedule.
func attemptDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return time.Duration(backoffBaseMs*(1<<uint(attempt-2))) * time.Millisecond
}

// Job is one queued delivery, per spec.md §4.I's {webhook, payload} shape.
type Job struct {
	ID        string
	Webhook   *domain.InboundWebhook
	EventName string
	Payload   map[string]any
	Attempt   int
	index     int // heap bookkeeping
}

// NewJob builds a delivery job with the collision-resistant id spec.md §4.I
// requires: {webhook_id}-{ms_epoch}-{8 random bytes hex}.
func NewJob(webhook *domain.InboundWebhook, eventName string, payload map[string]any) *Job {
	var rnd [8]byte
	_, _ = rand.Read(rnd[:])
	return &Job{
		ID:        fmt.Sprintf("%s-%d-%s", webhook.ID, time.Now().UnixMilli(), hex.EncodeToString(rnd[:])),
		Webhook:   webhook,
		EventName: eventName,
		Payload:   payload,
		Attempt:   1,
	}
}

// priorityQueue orders jobs by the webhook's current health, per §4.I:
// healthy=1, unknown=2, degraded=3, unhealthy=5; lower sorts earlier.
type priorityQueue []*Job

func (q priorityQueue) Len() int { return len(q) }
func (q priorityQueue) Less(i, j int) bool {
	return q[i].Webhook.HealthStatus.Priority() < q[j].Webhook.HealthStatus.Priority()
}
func (q priorityQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}
func (q *priorityQueue) Push(x any) {
	job := x.(*Job)
	job.index = len(*q)
	*q = append(*q, job)
}
func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return job
}

// Queue is the priority job queue plus its worker pool.
type Queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items priorityQueue

	webhooks store.WebhookStore
	secrets  *webhookapi.Service
	client   *http.Client
	logger   *logging.Logger

	concurrency int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New constructs a Queue with the given worker concurrency (default 8 per
// spec.md §5).
func New(webhooks store.WebhookStore, secrets *webhookapi.Service, logger *logging.Logger, concurrency int) *Queue {
	if concurrency < 1 {
		concurrency = 8
	}
	q := &Queue{
		webhooks:    webhooks,
		secrets:     secrets,
		client:      &http.Client{Timeout: callTimeout},
		logger:      logger,
		concurrency: concurrency,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds a job to the priority queue.
func (q *Queue) Enqueue(job *Job) {
	q.mu.Lock()
	heap.Push(&q.items, job)
	q.mu.Unlock()
	q.cond.Signal()
}

// Start launches the worker pool.
func (q *Queue) Start() {
	q.ctx, q.cancel = context.WithCancel(context.Background())
	for i := 0; i < q.concurrency; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

// Stop drains the queue's condition variable and waits for workers to exit.
func (q *Queue) Stop() {
	q.cancel()
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		job := q.dequeue()
		if job == nil {
			return // context canceled
		}
		q.deliver(q.ctx, job)
	}
}

func (q *Queue) dequeue() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if q.ctx.Err() != nil {
			return nil
		}
		q.cond.Wait()
	}
	return heap.Pop(&q.items).(*Job)
}

// deliver implements spec.md §4.I's worker: sign, POST with a 10s timeout,
// record the delivery, and update the webhook's health.
func (q *Queue) deliver(ctx context.Context, job *Job) {
	secret, err := q.secrets.DecryptSecret(job.Webhook)
	if err != nil {
		q.logger.Error(ctx, "webhook delivery: decrypt secret failed", err, map[string]any{"webhook_id": job.Webhook.ID})
		q.recordAndMaybeRequeue(ctx, job, 0, "", err.Error())
		return
	}

	body, err := json.Marshal(job.Payload)
	if err != nil {
		q.logger.Error(ctx, "webhook delivery: marshal payload failed", err, map[string]any{"webhook_id": job.Webhook.ID})
		return
	}
	signature := signatureHeader(body, secret)

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, job.Webhook.URL, bytes.NewReader(body))
	if err != nil {
		q.recordAndMaybeRequeue(ctx, job, 0, signature, err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", signature)
	req.Header.Set("User-Agent", "automation-core-WebhookDelivery/1.0")

	resp, err := q.client.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		reason := "request_timeout"
		if callCtx.Err() == nil {
			reason = err.Error()
		}
		q.recordAndMaybeRequeue(ctx, job, 0, signature, reason)
		return
	}
	defer resp.Body.Close()

	metrics.WebhookDeliveries.WithLabelValues(statusLabel(resp.StatusCode)).Inc()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		q.recordDelivery(ctx, job, domain.DeliveryDelivered, resp.StatusCode, signature, "", latency)
		if err := q.webhooks.RecordSuccess(ctx, job.Webhook.ID, latency); err != nil {
			q.logger.Error(ctx, "webhook delivery: record success failed", err, map[string]any{"webhook_id": job.Webhook.ID})
		}
		return
	}

	q.recordAndMaybeRequeue(ctx, job, resp.StatusCode, signature, fmt.Sprintf("status %d", resp.StatusCode))
}

func (q *Queue) recordAndMaybeRequeue(ctx context.Context, job *Job, statusCode int, signature, reason string) {
	q.recordDelivery(ctx, job, domain.DeliveryFailed, statusCode, signature, reason, 0)

	health, err := q.webhooks.RecordFailure(ctx, job.Webhook.ID)
	if err != nil {
		q.logger.Error(ctx, "webhook delivery: record failure failed", err, map[string]any{"webhook_id": job.Webhook.ID})
	} else {
		job.Webhook.HealthStatus = health
	}

	if job.Attempt >= maxAttempts {
		q.logger.Warn(ctx, "webhook delivery exhausted retries", map[string]any{
			"webhook_id": job.Webhook.ID, "job_id": job.ID, "reason": reason,
		})
		return
	}

	next := *job
	next.Attempt++
	go func() {
		time.Sleep(attemptDelay(next.Attempt))
		q.Enqueue(&next)
	}()
}

func (q *Queue) recordDelivery(ctx context.Context, job *Job, status domain.DeliveryStatus, statusCode int, signature, errMsg string, latencyMs int64) {
	now := time.Now()
	delivery := &domain.WebhookDelivery{
		ID:             uuid.NewString(),
		WebhookID:      job.Webhook.ID,
		EventName:      job.EventName,
		PayloadHash:    payloadHash(job.Payload),
		Signature:      signature,
		Status:         status,
		StatusCode:     statusCode,
		ErrorMessage:   errMsg,
		ResponseTimeMs: latencyMs,
		Attempt:        job.Attempt,
		CreatedAt:      now,
	}
	if status == domain.DeliveryDelivered {
		delivery.DeliveredAt = &now
	}
	if err := q.webhooks.RecordDelivery(ctx, delivery); err != nil {
		q.logger.Error(ctx, "webhook delivery: persist delivery record failed", err, map[string]any{"webhook_id": job.Webhook.ID})
	}
}

func payloadHash(payload map[string]any) string {
	b, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func statusLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "success"
	case code >= 400 && code < 500:
		return "client_error"
	case code >= 500:
		return "server_error"
	default:
		return "unknown"
	}
}
