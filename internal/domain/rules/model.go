package rules

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/claimops/claimops/internal/domain/claims"
	"github.com/claimops/claimops/internal/domain/scoring"
)

// ErrConflictingActions means an enabled rule set would fire distinct
// exclusive actions for one event. This is a configuration fault: the
// evaluation aborts before any action runs and nothing is retried.
var ErrConflictingActions = errors.New("conflicting exclusive actions for event")

// EventType is the closed set of triggers a rule can bind to.
type EventType string

const (
	EventClaimScored           EventType = "claim_scored"
	EventClaimSubmitted        EventType = "claim_submitted"
	EventPayerResponseReceived EventType = "payer_response_received"
	EventManualOverride        EventType = "manual_override"
)

func (e EventType) Valid() bool {
	switch e {
	case EventClaimScored, EventClaimSubmitted, EventPayerResponseReceived, EventManualOverride:
		return true
	}
	return false
}

// ActionType is the closed set of effects a rule can dispatch.
type ActionType string

const (
	ActionAutoSubmit ActionType = "auto_submit"
	ActionNotify     ActionType = "notify"
	ActionEscalate   ActionType = "escalate"
	ActionNoOp       ActionType = "no_op"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionAutoSubmit, ActionNotify, ActionEscalate, ActionNoOp:
		return true
	}
	return false
}

// Exclusive reports whether the action claims sole ownership of the
// claim's disposition. Two matched rules firing distinct exclusive
// actions for one event is a configuration conflict.
func (a ActionType) Exclusive() bool {
	return a == ActionAutoSubmit || a == ActionEscalate
}

// Event is one occurrence a rule set is evaluated against. Score is nil
// for lifecycle events that happen before scoring.
type Event struct {
	Type    EventType
	Claim   *claims.ClaimRecord
	Score   *scoring.ClaimScore
	Context map[string]interface{}
}

// AutomationRule binds a condition expression to an action for one
// event type. The engine reads rules; configuration management writes
// them.
type AutomationRule struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	EventType  EventType  `db:"event_type" json:"event_type"`
	Condition  string     `db:"condition" json:"condition"`
	ActionType ActionType `db:"action_type" json:"action_type"`
	Enabled    bool       `db:"enabled" json:"enabled"`
	Priority   int        `db:"priority" json:"priority"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// ExecutionStatus is the per-rule outcome.
type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "success"
	StatusFailed  ExecutionStatus = "failed"
	StatusSkipped ExecutionStatus = "skipped"
)

// ExecutionResult is one rule's outcome within an evaluation pass.
type ExecutionResult struct {
	RuleID   uuid.UUID       `json:"rule_id"`
	RuleName string          `json:"rule_name"`
	Action   ActionType      `json:"action"`
	Status   ExecutionStatus `json:"status"`
	Detail   string          `json:"detail,omitempty"`
}

// ExecutionLog is the persisted audit row for one rule outcome.
// Append-only; never deleted.
type ExecutionLog struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	RuleID     uuid.UUID       `db:"rule_id" json:"rule_id"`
	ClaimID    uuid.UUID       `db:"claim_id" json:"claim_id"`
	EventType  EventType       `db:"event_type" json:"event_type"`
	ActionType ActionType      `db:"action_type" json:"action_type"`
	Status     ExecutionStatus `db:"status" json:"status"`
	Detail     string          `db:"detail" json:"detail,omitempty"`
	ExecutedAt time.Time       `db:"executed_at" json:"executed_at"`
}

// ActionHandler performs the real-world effect of one action type:
// payer-portal submission, notification, escalation. Handlers are
// external collaborators; the engine's responsibility ends at dispatch
// plus recording the outcome. Retries belong to the caller's dispatch
// layer.
type ActionHandler interface {
	Execute(ctx context.Context, event Event, rule *AutomationRule) error
}

// ActionHandlerFunc adapts a function to ActionHandler.
type ActionHandlerFunc func(ctx context.Context, event Event, rule *AutomationRule) error

func (f ActionHandlerFunc) Execute(ctx context.Context, event Event, rule *AutomationRule) error {
	return f(ctx, event, rule)
}
