package rules

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/expr-lang/expr"
	"github.com/rs/zerolog"

	"github.com/claimops/claimops/internal/platform/telemetry"
)

// Engine evaluates a rule set against one event. Rules run in
// descending priority order; each rule's outcome is persisted to the
// execution log before the next rule is evaluated, so a crash mid-pass
// leaves a truthful audit trail.
type Engine struct {
	handlers  map[ActionType]ActionHandler
	logs      ExecutionLogRepository
	telemetry *telemetry.Provider
	timeout   time.Duration
	log       zerolog.Logger
}

func NewEngine(logs ExecutionLogRepository, tel *telemetry.Provider, timeout time.Duration, log zerolog.Logger) *Engine {
	return &Engine{
		handlers:  make(map[ActionType]ActionHandler),
		logs:      logs,
		telemetry: tel,
		timeout:   timeout,
		log:       log.With().Str("component", "rules").Logger(),
	}
}

// RegisterHandler binds the collaborator that performs an action type.
func (e *Engine) RegisterHandler(action ActionType, h ActionHandler) {
	e.handlers[action] = h
}

// Evaluate runs every rule bound to the event's type. A handler failure
// is recorded as a failed result and does not halt sibling rules; the
// only abort path is a configuration conflict, detected before any
// action runs.
func (e *Engine) Evaluate(ctx context.Context, event Event, ruleSet []*AutomationRule) ([]ExecutionResult, error) {
	ordered := make([]*AutomationRule, 0, len(ruleSet))
	for _, r := range ruleSet {
		if r.EventType == event.Type {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })

	env := conditionEnv(event)

	// First pass: decide which rules fire, without side effects.
	type evaluated struct {
		rule    *AutomationRule
		fires   bool
		skipped string
		failed  string
	}
	plan := make([]evaluated, 0, len(ordered))
	var exclusive []ActionType
	for _, r := range ordered {
		ev := evaluated{rule: r}
		switch {
		case !r.Enabled:
			ev.skipped = "rule disabled"
		default:
			fires, err := evalCondition(r.Condition, env)
			if err != nil {
				ev.failed = fmt.Sprintf("condition error: %v", err)
			} else if !fires {
				ev.skipped = "condition not met"
			} else {
				ev.fires = true
				if r.ActionType.Exclusive() && !containsAction(exclusive, r.ActionType) {
					exclusive = append(exclusive, r.ActionType)
				}
			}
		}
		plan = append(plan, ev)
	}

	if len(exclusive) > 1 {
		return nil, fmt.Errorf("%w: %v", ErrConflictingActions, exclusive)
	}

	// Second pass: dispatch and record, one rule at a time.
	results := make([]ExecutionResult, 0, len(plan))
	for _, ev := range plan {
		res := ExecutionResult{RuleID: ev.rule.ID, RuleName: ev.rule.Name, Action: ev.rule.ActionType}
		switch {
		case ev.skipped != "":
			res.Status = StatusSkipped
			res.Detail = ev.skipped
		case ev.failed != "":
			res.Status = StatusFailed
			res.Detail = ev.failed
		default:
			res.Status, res.Detail = e.dispatch(ctx, event, ev.rule)
		}
		e.record(ctx, event, ev.rule, res)
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) dispatch(ctx context.Context, event Event, rule *AutomationRule) (ExecutionStatus, string) {
	handler, ok := e.handlers[rule.ActionType]
	if !ok {
		return StatusFailed, fmt.Sprintf("no handler registered for action %s", rule.ActionType)
	}
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := handler.Execute(callCtx, event, rule); err != nil {
		return StatusFailed, err.Error()
	}
	return StatusSuccess, ""
}

// record persists one outcome. An audit write failure is logged but
// does not fail the pass; the in-memory result is still returned.
func (e *Engine) record(ctx context.Context, event Event, rule *AutomationRule, res ExecutionResult) {
	e.telemetry.RuleExecution(string(res.Status))
	entry := &ExecutionLog{
		RuleID:     rule.ID,
		EventType:  event.Type,
		ActionType: rule.ActionType,
		Status:     res.Status,
		Detail:     res.Detail,
		ExecutedAt: time.Now().UTC(),
	}
	if event.Claim != nil {
		entry.ClaimID = event.Claim.ID
	}
	if err := e.logs.Append(ctx, entry); err != nil {
		e.log.Error().Err(err).
			Str("rule_id", rule.ID.String()).
			Msg("append execution log")
	}
}

// conditionEnv binds claim, score, and event context into the
// expression environment. Score fields default to zero for lifecycle
// events that happen before scoring.
func conditionEnv(event Event) map[string]interface{} {
	env := map[string]interface{}{
		"event":                string(event.Type),
		"amount":               0.0,
		"currency":             "",
		"procedure_code":       "",
		"diagnosis_code":       "",
		"outcome":              "",
		"eligibility_verified": false,
		"tier":                 0,
		"overall_confidence":   0.0,
		"denial_risk":          0.0,
		"fraud_risk":           0.0,
		"compliance_risk":      0.0,
		"recommended_action":   "",
	}
	if c := event.Claim; c != nil {
		env["amount"] = c.Amount
		env["currency"] = c.Currency
		env["procedure_code"] = c.ProcedureCode
		env["diagnosis_code"] = c.DiagnosisCode
		env["outcome"] = string(c.Outcome)
		env["eligibility_verified"] = c.EligibilityVerified
	}
	if s := event.Score; s != nil {
		env["tier"] = s.AutomationTier
		env["overall_confidence"] = s.OverallConfidence
		env["denial_risk"] = s.DenialRisk
		env["fraud_risk"] = s.FraudRisk
		env["compliance_risk"] = s.ComplianceRisk
		env["recommended_action"] = string(s.RecommendedAction)
	}
	for k, v := range event.Context {
		env[k] = v
	}
	return env
}

// evalCondition compiles and runs one expression. An empty condition
// always fires.
func evalCondition(condition string, env map[string]interface{}) (bool, error) {
	if condition == "" {
		return true, nil
	}
	program, err := expr.Compile(condition, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	fires, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not evaluate to a boolean")
	}
	return fires, nil
}

func containsAction(actions []ActionType, a ActionType) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}
