// Package executor implements the Action Chain Executor of spec.md §4.F —
// "the hardest part": ordered action execution, per-attempt retry with the
// spec's exact backoff formula, three error-handling strategies, a single
// uncounted retry on CRM token expiry, and DLQ handoff on terminal failure.
package executor

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/automation-core/internal/apperr"
	"github.com/R3E-Network/automation-core/internal/domain"
	"github.com/R3E-Network/automation-core/pkg/logging"
	"github.com/R3E-Network/automation-core/pkg/metrics"
	"github.com/R3E-Network/automation-core/pkg/redact"
	"github.com/R3E-Network/automation-core/pkg/tracing"
)

// ActionStore is the read/write surface the executor needs from
// internal/store.TriggerStore.
type ActionStore interface {
	ActionsForTrigger(ctx context.Context, triggerID string) ([]*domain.Action, error)
	RecordExecution(ctx context.Context, exec *domain.ActionExecution) error
}

// DLQSink is the write surface the executor needs from internal/store.DLQStore.
type DLQSink interface {
	Add(ctx context.Context, entry *domain.DLQEntry) error
}

// Executor runs a Trigger's action chain for one Event.
type Executor struct {
	store        ActionStore
	collaborator Collaborator
	dlq          DLQSink
	tracer       *tracing.Tracer
	logger       *logging.Logger
}

// New constructs an Executor.
func New(store ActionStore, collaborator Collaborator, dlq DLQSink, tracer *tracing.Tracer, logger *logging.Logger) *Executor {
	return &Executor{store: store, collaborator: collaborator, dlq: dlq, tracer: tracer, logger: logger}
}

type executedStep struct {
	action domain.Action
	result map[string]any
}

// ExecuteChain implements spec.md §4.F's execute_chain: load actions sorted
// by (order, id), run each sequentially, and on error consult
// trigger.error_handling for stop/continue/rollback behavior.
func (e *Executor) ExecuteChain(ctx context.Context, event *domain.Event, trigger *domain.Trigger) error {
	actions, err := e.store.ActionsForTrigger(ctx, trigger.ID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "load trigger actions", err)
	}

	return e.tracer.Instrument(ctx, "action_chain_execution", map[string]string{
		"trigger_id":   trigger.ID,
		"event_id":     event.ID,
		"action_count": strconv.Itoa(len(actions)),
	}, func(ctx context.Context) error {
		executed := make([]executedStep, 0, len(actions))

		for _, action := range actions {
			result, execErr := e.executeAction(ctx, event, trigger, action)
			if execErr == nil {
				executed = append(executed, executedStep{action: *action, result: result})
				continue
			}

			switch trigger.ErrorHandling {
			case domain.ContinueOnError:
				e.logger.Warn(ctx, "action failed, continuing chain", map[string]any{
					"trigger_id": trigger.ID, "action_id": action.ID, "error": redact.RedactErrorStack(execErr.Error()),
				})
				continue
			case domain.RollbackOnError:
				e.compensate(ctx, event, executed)
				return execErr
			default: // StopOnFirstError, and any unrecognized value defaults to the safest strategy
				return execErr
			}
		}
		return nil
	})
}

// executeAction implements spec.md §4.F's execute_action: per-attempt
// retry loop with interpolation, timeout, and DLQ handoff on terminal
// failure.
func (e *Executor) executeAction(ctx context.Context, event *domain.Event, trigger *domain.Trigger, action *domain.Action) (map[string]any, error) {
	maxAttempts := action.RetryConfig.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	tokenRetried := false
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := e.attempt(ctx, event, trigger, action, attempt)
		if err == nil {
			return result, nil
		}

		if apperr.IsTokenExpired(err) && !tokenRetried {
			// CRM token-expiry special case: retry the same attempt once
			// without counting it against max_attempts. No token refresh
			// is made here; a second expiry is handled like any other error.
			tokenRetried = true
			attempt--
			lastErr = err
			continue
		}

		lastErr = err
		if !apperr.RetryableErr(err) {
			e.sendToDLQ(ctx, event, trigger, action, "non_retryable_failure", err)
			return nil, err
		}

		metrics.ActionRetriesTotal.WithLabelValues(string(action.ActionType)).Inc()
		if attempt == maxAttempts {
			e.sendToDLQ(ctx, event, trigger, action, "retries_exhausted", err)
			return nil, err
		}
		time.Sleep(action.RetryConfig.Delay(attempt))
	}
	return nil, lastErr
}

func (e *Executor) attempt(ctx context.Context, event *domain.Event, trigger *domain.Trigger, action *domain.Action, attemptNum int) (map[string]any, error) {
	start := time.Now()
	exec := &domain.ActionExecution{
		ID:        uuid.NewString(),
		EventID:   event.ID,
		TriggerID: trigger.ID,
		ActionID:  action.ID,
		Attempt:   attemptNum,
		StartedAt: start,
		CreatedAt: start,
	}

	var result map[string]any
	err := e.tracer.Instrument(ctx, "action.execute", map[string]string{
		"action_type": string(action.ActionType),
		"attempt":     strconv.Itoa(attemptNum),
	}, func(ctx context.Context) error {
		interpolated := interpolate(action.Config, event)

		timeout := time.Duration(action.TimeoutMs) * time.Millisecond
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		dispatched, dispatchErr := e.collaborator.Dispatch(callCtx, action.ActionType, interpolated)
		if dispatchErr != nil {
			if callCtx.Err() != nil && apperr.KindOf(dispatchErr) != apperr.KindTimeout {
				dispatchErr = apperr.New(apperr.KindTimeout, "action dispatch timed out")
			}
			return dispatchErr
		}
		result = dispatched
		return nil
	})

	completed := time.Now()
	exec.CompletedAt = &completed
	metrics.ActionDuration.WithLabelValues(string(action.ActionType)).Observe(completed.Sub(start).Seconds())

	if err != nil {
		exec.Status = domain.ExecFailed
		exec.Error = redact.RedactErrorStack(err.Error())
		metrics.ActionExecutionsTotal.WithLabelValues(string(action.ActionType), "failed").Inc()
	} else {
		exec.Status = domain.ExecSuccess
		exec.Response = result
		metrics.ActionExecutionsTotal.WithLabelValues(string(action.ActionType), "success").Inc()
	}

	if recErr := e.store.RecordExecution(ctx, exec); recErr != nil {
		e.logger.Error(ctx, "record action execution failed", recErr, map[string]any{"action_id": action.ID})
	}

	return result, err
}

// compensate implements spec.md §4.F's compensation walk: reverse order,
// critical actions only, errors recorded but never abort the remaining walk.
func (e *Executor) compensate(ctx context.Context, event *domain.Event, executed []executedStep) {
	for i := len(executed) - 1; i >= 0; i-- {
		step := executed[i]
		if !step.action.IsCritical {
			continue
		}
		rollback := domain.RollbackAction(step.action, step.result)
		metrics.ActionCompensationsTotal.WithLabelValues(string(step.action.ActionType)).Inc()

		_, err := e.collaborator.Dispatch(ctx, rollback.ActionType, interpolate(rollback.Config, event))
		if err == nil {
			continue
		}

		e.logger.Error(ctx, "compensation action failed", err, map[string]any{"action_id": step.action.ID})
		e.dlqAdd(ctx, domain.DLQEntry{
			ID:             uuid.NewString(),
			EventID:        event.ID,
			TriggerID:      step.action.TriggerID,
			ActionID:       step.action.ID,
			FailureReason:  "compensation_failed",
			LastError:      redact.RedactErrorStack(err.Error()),
			EventSnapshot:  eventSnapshot(event),
			ActionSnapshot: actionSnapshot(&step.action),
		})
	}
}

func (e *Executor) sendToDLQ(ctx context.Context, event *domain.Event, trigger *domain.Trigger, action *domain.Action, reason string, cause error) {
	e.dlqAdd(ctx, domain.DLQEntry{
		ID:             uuid.NewString(),
		EventID:        event.ID,
		TriggerID:      trigger.ID,
		ActionID:       action.ID,
		FailureReason:  reason,
		LastError:      redact.RedactErrorStack(cause.Error()),
		EventSnapshot:  eventSnapshot(event),
		ActionSnapshot: actionSnapshot(action),
	})
}

func (e *Executor) dlqAdd(ctx context.Context, entry domain.DLQEntry) {
	metrics.DLQAdded.WithLabelValues(string(entry.ActionSnapshot["action_type"].(string))).Inc()
	if err := e.dlq.Add(ctx, &entry); err != nil {
		e.logger.Error(ctx, "dlq add failed", err, map[string]any{"event_id": entry.EventID, "action_id": entry.ActionID})
	}
}

// eventSnapshot/actionSnapshot freeze the event/action as a plain map so a
// later DLQ retry is independent of subsequent mutation or deletion of the
// originating rows (spec.md §4.G).
func eventSnapshot(event *domain.Event) map[string]any {
	return map[string]any{
		"id": event.ID, "tenant_id": event.TenantID, "event_type": event.EventType,
		"entity_type": event.EntityType, "entity_id": event.EntityID, "data": event.Data,
	}
}

func actionSnapshot(action *domain.Action) map[string]any {
	return map[string]any{
		"id": action.ID, "trigger_id": action.TriggerID, "action_type": string(action.ActionType),
		"config": action.Config, "timeout_ms": action.TimeoutMs, "is_critical": action.IsCritical,
	}
}
