package rules

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimops/claimops/internal/domain/claims"
	"github.com/claimops/claimops/internal/domain/scoring"
)

type Service struct {
	rules  RuleRepository
	logs   ExecutionLogRepository
	engine *Engine
	log    zerolog.Logger
}

func NewService(ruleRepo RuleRepository, logs ExecutionLogRepository, engine *Engine, log zerolog.Logger) *Service {
	return &Service{
		rules:  ruleRepo,
		logs:   logs,
		engine: engine,
		log:    log.With().Str("component", "rules").Logger(),
	}
}

// -- Rule configuration --

func (s *Service) CreateRule(ctx context.Context, r *AutomationRule) error {
	if err := validateRule(r); err != nil {
		return err
	}
	return s.rules.Create(ctx, r)
}

func (s *Service) UpdateRule(ctx context.Context, r *AutomationRule) error {
	if err := validateRule(r); err != nil {
		return err
	}
	if _, err := s.rules.GetByID(ctx, r.ID); err != nil {
		return fmt.Errorf("load rule: %w", err)
	}
	return s.rules.Update(ctx, r)
}

func (s *Service) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	if _, err := s.rules.GetByID(ctx, id); err != nil {
		return fmt.Errorf("load rule: %w", err)
	}
	return s.rules.SetEnabled(ctx, id, enabled)
}

func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (*AutomationRule, error) {
	return s.rules.GetByID(ctx, id)
}

func (s *Service) ListRules(ctx context.Context, limit, offset int) ([]*AutomationRule, int, error) {
	return s.rules.List(ctx, limit, offset)
}

func (s *Service) ListExecutionLogs(ctx context.Context, claimID uuid.UUID, limit, offset int) ([]*ExecutionLog, int, error) {
	return s.logs.ListByClaim(ctx, claimID, limit, offset)
}

// validateRule rejects unknown variants and conditions that do not
// compile, so bad configuration fails at write time rather than during
// event evaluation.
func validateRule(r *AutomationRule) error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !r.EventType.Valid() {
		return fmt.Errorf("unknown event type: %s", r.EventType)
	}
	if !r.ActionType.Valid() {
		return fmt.Errorf("unknown action type: %s", r.ActionType)
	}
	if r.Condition != "" {
		// Event context can bind extra keys at evaluation time, so
		// undefined variables are allowed here; only syntax and type
		// faults are rejected at write time.
		env := conditionEnv(Event{})
		if _, err := expr.Compile(r.Condition, expr.Env(env), expr.AllowUndefinedVariables(), expr.AsBool()); err != nil {
			return fmt.Errorf("condition does not compile: %w", err)
		}
	}
	return nil
}

// -- Event evaluation --

// HandleEvent loads the rules bound to the event's type and evaluates
// them. ErrConflictingActions surfaces to the caller; it is a
// configuration fault, not a transient failure.
func (s *Service) HandleEvent(ctx context.Context, event Event) ([]ExecutionResult, error) {
	ruleSet, err := s.rules.ListByEvent(ctx, event.Type)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return s.engine.Evaluate(ctx, event, ruleSet)
}

// ManualOverride fires the manual_override event for a claim, binding
// the operator-supplied context into the rule environment.
func (s *Service) ManualOverride(ctx context.Context, claim *claims.ClaimRecord, overrideCtx map[string]interface{}) ([]ExecutionResult, error) {
	return s.HandleEvent(ctx, Event{Type: EventManualOverride, Claim: claim, Context: overrideCtx})
}

// -- Lifecycle adapters --
//
// These satisfy the hook interfaces of the claims and scoring packages.
// Evaluation faults are logged, not propagated: the originating write
// has already committed.

func (s *Service) ClaimScored(ctx context.Context, claim *claims.ClaimRecord, score *scoring.ClaimScore) {
	s.fire(ctx, Event{Type: EventClaimScored, Claim: claim, Score: score})
}

func (s *Service) ClaimSubmitted(ctx context.Context, claim *claims.ClaimRecord) {
	s.fire(ctx, Event{Type: EventClaimSubmitted, Claim: claim})
}

func (s *Service) PayerResponseReceived(ctx context.Context, claim *claims.ClaimRecord) {
	s.fire(ctx, Event{Type: EventPayerResponseReceived, Claim: claim})
}

func (s *Service) fire(ctx context.Context, event Event) {
	if _, err := s.HandleEvent(ctx, event); err != nil {
		s.log.Error().Err(err).
			Str("event", string(event.Type)).
			Msg("rule evaluation failed")
	}
}
