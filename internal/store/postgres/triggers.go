package postgres

import (
	"context"
	"encoding/json"

	"github.com/lib/pq"

	"github.com/R3E-Network/automation-core/internal/apperr"
	"github.com/R3E-Network/automation-core/internal/domain"
)

// ActiveTriggersForEvent implements the matcher.TriggerLoader port: the
// candidate set spec.md §4.E filters by scope/conditions. Only active
// triggers for the given tenant (or platform-level triggers, tenant_id
// null) and event_type are considered.
func (s *Store) ActiveTriggersForEvent(ctx context.Context, tenantID, eventType string) ([]*domain.Trigger, error) {
	const q = `
		SELECT id, tenant_id, name, level, event_type, status, scope, priority,
		       error_handling, created_by, created_at, updated_at, form_ids, conditions
		FROM event_triggers
		WHERE event_type = $1 AND status = $2 AND (tenant_id = $3 OR tenant_id IS NULL)
		ORDER BY priority ASC`
	rows, err := s.db.QueryContext(ctx, q, eventType, domain.StatusActive, tenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "query active triggers", err)
	}
	defer rows.Close()

	var triggers []*domain.Trigger
	for rows.Next() {
		t := &domain.Trigger{}
		var formIDs pq.StringArray
		var conditionsJSON []byte
		if err := rows.Scan(
			&t.ID, &t.TenantID, &t.Name, &t.Level, &t.EventType, &t.Status, &t.Scope,
			&t.Priority, &t.ErrorHandling, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
			&formIDs, &conditionsJSON,
		); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan trigger", err)
		}
		t.FormIDs = []string(formIDs)
		if len(conditionsJSON) > 0 {
			if err := json.Unmarshal(conditionsJSON, &t.Conditions); err != nil {
				return nil, apperr.Wrap(apperr.KindInternal, "unmarshal trigger conditions", err)
			}
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

// ActionsForTrigger loads a trigger's action chain ordered by (order, id)
// per spec.md §4.F step 1.
func (s *Store) ActionsForTrigger(ctx context.Context, triggerID string) ([]*domain.Action, error) {
	const q = `
		SELECT id, trigger_id, action_type, order_num, timeout_ms, is_critical, config, retry_config
		FROM trigger_actions
		WHERE trigger_id = $1
		ORDER BY order_num ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, q, triggerID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "query trigger actions", err)
	}
	defer rows.Close()

	var actions []*domain.Action
	for rows.Next() {
		a := &domain.Action{}
		var configJSON, retryJSON []byte
		if err := rows.Scan(&a.ID, &a.TriggerID, &a.ActionType, &a.Order, &a.TimeoutMs, &a.IsCritical, &configJSON, &retryJSON); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan trigger action", err)
		}
		if len(configJSON) > 0 {
			if err := json.Unmarshal(configJSON, &a.Config); err != nil {
				return nil, apperr.Wrap(apperr.KindInternal, "unmarshal action config", err)
			}
		}
		if len(retryJSON) > 0 {
			if err := json.Unmarshal(retryJSON, &a.RetryConfig); err != nil {
				return nil, apperr.Wrap(apperr.KindInternal, "unmarshal action retry_config", err)
			}
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// RecordExecution appends one ActionExecution row; rows are never updated
// in place (§3: "append-only: one row per attempt").
func (s *Store) RecordExecution(ctx context.Context, exec *domain.ActionExecution) error {
	response, err := json.Marshal(exec.Response)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "marshal execution response", err)
	}
	const q = `
		INSERT INTO action_executions (
			id, event_id, trigger_id, action_id, status, attempt, started_at, completed_at, response, error, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err = s.db.ExecContext(ctx, q,
		exec.ID, exec.EventID, exec.TriggerID, exec.ActionID, exec.Status, exec.Attempt,
		exec.StartedAt, exec.CompletedAt, response, nullString(exec.Error), exec.CreatedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "insert action execution", err)
	}
	return nil
}
