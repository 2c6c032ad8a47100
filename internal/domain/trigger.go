package domain

import "time"

// TriggerLevel distinguishes platform-wide rules from tenant/user rules.
type TriggerLevel string

const (
	LevelPlatform     TriggerLevel = "platform"
	LevelOrganization TriggerLevel = "organization"
	LevelUserDefined  TriggerLevel = "user_defined"
)

// TriggerStatus is the lifecycle state of a Trigger.
type TriggerStatus string

const (
	StatusActive   TriggerStatus = "active"
	StatusInactive TriggerStatus = "inactive"
	StatusDraft    TriggerStatus = "draft"
)

// TriggerScope narrows which entities of event_type a Trigger applies to.
type TriggerScope string

const (
	ScopeAllForms      TriggerScope = "all_forms"
	ScopeSpecificForms TriggerScope = "specific_forms"
)

// ErrorHandling selects the Action Chain Executor's failure strategy (§4.F).
type ErrorHandling string

const (
	StopOnFirstError  ErrorHandling = "stop_on_first_error"
	ContinueOnError   ErrorHandling = "continue_on_error"
	RollbackOnError   ErrorHandling = "rollback_on_error"
)

// ConditionOperator enumerates the TriggerCondition comparators (§3).
type ConditionOperator string

const (
	OpEquals         ConditionOperator = "equals"
	OpNotEquals      ConditionOperator = "not_equals"
	OpContains       ConditionOperator = "contains"
	OpNotContains    ConditionOperator = "not_contains"
	OpGreaterThan    ConditionOperator = "greater_than"
	OpLessThan       ConditionOperator = "less_than"
	OpGreaterOrEqual ConditionOperator = "greater_or_equal"
	OpLessOrEqual    ConditionOperator = "less_or_equal"
	OpIn             ConditionOperator = "in"
	OpNotIn          ConditionOperator = "not_in"
	OpIsNull         ConditionOperator = "is_null"
	OpIsNotNull      ConditionOperator = "is_not_null"
)

// TriggerCondition is one predicate in a Trigger's conjunction (§3, §4.E).
type TriggerCondition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    any               `json:"value,omitempty"`
}

// Trigger is a declarative rule mapping a tenant's event to an action chain.
type Trigger struct {
	ID            string             `db:"id" json:"id"`
	TenantID      *string            `db:"tenant_id" json:"tenant_id,omitempty"`
	Name          string             `db:"name" json:"name"`
	Level         TriggerLevel       `db:"level" json:"level"`
	EventType     string             `db:"event_type" json:"event_type"`
	Status        TriggerStatus      `db:"status" json:"status"`
	Scope         TriggerScope       `db:"scope" json:"scope"`
	FormIDs       []string           `db:"-" json:"form_ids,omitempty"`
	Conditions    []TriggerCondition `db:"-" json:"conditions,omitempty"`
	Priority      int                `db:"priority" json:"priority"`
	ErrorHandling ErrorHandling      `db:"error_handling" json:"error_handling"`
	CreatedBy     string             `db:"created_by" json:"created_by"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updated_at"`
}

// MatchesScope applies the §4.E scope filter.
func (t *Trigger) MatchesScope(entityID string) bool {
	if t.Scope == ScopeAllForms {
		return true
	}
	if len(t.FormIDs) == 0 {
		return false
	}
	for _, id := range t.FormIDs {
		if id == entityID {
			return true
		}
	}
	return false
}

// ActionType enumerates the Action dispatch targets (§3).
type ActionType string

const (
	ActionSendWebhook     ActionType = "send_webhook"
	ActionSendEmail       ActionType = "send_email"
	ActionSendSMS         ActionType = "send_sms"
	ActionUpdateCRM       ActionType = "update_crm"
	ActionCreateTask      ActionType = "create_task"
	ActionTriggerWorkflow ActionType = "trigger_workflow"
	ActionCustom          ActionType = "custom"
	// actionRollback is synthesized internally by the executor during
	// compensation (§4.F); it is never persisted as a Trigger's own Action.
	actionRollback ActionType = "rollback"
)

// RetryConfig bounds an Action's retry behavior (§3).
type RetryConfig struct {
	MaxAttempts      int     `json:"max_attempts"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
	InitialDelayMs   int     `json:"initial_delay_ms"`
}

// Delay returns the sleep duration after the given 1-based attempt fails,
// before the next one, per §4.F: initial_delay_ms * backoff_multiplier^(attempt-1).
func (r RetryConfig) Delay(attempt int) time.Duration {
	mult := 1.0
	for i := 1; i < attempt; i++ {
		mult *= r.BackoffMultiplier
	}
	return time.Duration(float64(r.InitialDelayMs)*mult) * time.Millisecond
}

// Action is one step in a Trigger's chain.
type Action struct {
	ID          string         `db:"id" json:"id"`
	TriggerID   string         `db:"trigger_id" json:"trigger_id"`
	ActionType  ActionType     `db:"action_type" json:"action_type"`
	Order       int            `db:"order_num" json:"order"`
	Config      map[string]any `db:"-" json:"config"`
	RetryConfig RetryConfig    `db:"-" json:"retry_config"`
	TimeoutMs   int            `db:"timeout_ms" json:"timeout_ms"`
	IsCritical  bool           `db:"is_critical" json:"is_critical"`
}

// rollbackAction builds the synthetic compensation step described in §4.F:
// type "rollback", config augmented with operation + rollback_data.
func rollbackAction(a Action, rollbackData any) Action {
	cfg := make(map[string]any, len(a.Config)+2)
	for k, v := range a.Config {
		cfg[k] = v
	}
	cfg["operation"] = a.Config["rollback_operation"]
	cfg["rollback_data"] = rollbackData
	return Action{
		ID:         a.ID,
		TriggerID:  a.TriggerID,
		ActionType: actionRollback,
		Order:      a.Order,
		Config:     cfg,
		TimeoutMs:  a.TimeoutMs,
		IsCritical: a.IsCritical,
	}
}

// RollbackAction is the exported constructor used by the executor package.
func RollbackAction(a Action, rollbackData any) Action { return rollbackAction(a, rollbackData) }

// ActionRollback is the exported form of the synthetic compensation
// action type, so the executor package can recognize a rollback Action by
// type without re-deriving the sentinel string.
const ActionRollback = actionRollback

// ExecutionStatus is the lifecycle of one ActionExecution attempt.
type ExecutionStatus string

const (
	ExecPending   ExecutionStatus = "pending"
	ExecRunning   ExecutionStatus = "running"
	ExecSuccess   ExecutionStatus = "success"
	ExecFailed    ExecutionStatus = "failed"
	ExecRetrying  ExecutionStatus = "retrying"
	ExecCancelled ExecutionStatus = "cancelled"
)

// ActionExecution is one attempt of one action for one event (§3). Records
// are append-only: one row per attempt, never mutated into the next.
type ActionExecution struct {
	ID          string          `db:"id" json:"id"`
	EventID     string          `db:"event_id" json:"event_id"`
	TriggerID   string          `db:"trigger_id" json:"trigger_id"`
	ActionID    string          `db:"action_id" json:"action_id"`
	Status      ExecutionStatus `db:"status" json:"status"`
	Attempt     int             `db:"attempt" json:"attempt"`
	StartedAt   time.Time       `db:"started_at" json:"started_at"`
	CompletedAt *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	Response    map[string]any  `db:"-" json:"response,omitempty"`
	Error       string          `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
