package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimops/claimops/internal/domain/claims"
	"github.com/claimops/claimops/internal/domain/scoring"
	"github.com/claimops/claimops/internal/platform/telemetry"
)

type mockLogRepo struct {
	entries []*ExecutionLog
}

func (m *mockLogRepo) Append(_ context.Context, l *ExecutionLog) error {
	l.ID = uuid.New()
	m.entries = append(m.entries, l)
	return nil
}

func (m *mockLogRepo) ListByClaim(_ context.Context, claimID uuid.UUID, _, _ int) ([]*ExecutionLog, int, error) {
	var out []*ExecutionLog
	for _, l := range m.entries {
		if l.ClaimID == claimID {
			out = append(out, l)
		}
	}
	return out, len(out), nil
}

func newTestEngine() (*Engine, *mockLogRepo) {
	logs := &mockLogRepo{}
	engine := NewEngine(logs, telemetry.NewProvider("test", "test"), 5*time.Second, zerolog.Nop())
	return engine, logs
}

func scoredEvent(tier int, confidence float64) Event {
	return Event{
		Type:  EventClaimScored,
		Claim: &claims.ClaimRecord{ID: uuid.New(), Amount: 1500, Outcome: claims.OutcomePending},
		Score: &scoring.ClaimScore{AutomationTier: tier, OverallConfidence: confidence},
	}
}

func rule(name string, priority int, action ActionType, condition string) *AutomationRule {
	return &AutomationRule{
		ID:         uuid.New(),
		Name:       name,
		EventType:  EventClaimScored,
		Condition:  condition,
		ActionType: action,
		Enabled:    true,
		Priority:   priority,
	}
}

func TestEvaluate_PriorityOrderAndConditions(t *testing.T) {
	engine, logs := newTestEngine()
	engine.RegisterHandler(ActionNotify, ActionHandlerFunc(func(context.Context, Event, *AutomationRule) error {
		return nil
	}))

	low := rule("low", 1, ActionNotify, `tier == 1`)
	high := rule("high", 10, ActionNotify, `tier == 1`)
	mismatch := rule("wrong tier", 5, ActionNotify, `tier == 3`)

	results, err := engine.Evaluate(context.Background(), scoredEvent(1, 85), []*AutomationRule{low, mismatch, high})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].RuleName != "high" || results[1].RuleName != "wrong tier" || results[2].RuleName != "low" {
		t.Errorf("evaluation order = %s, %s, %s; want descending priority",
			results[0].RuleName, results[1].RuleName, results[2].RuleName)
	}
	if results[0].Status != StatusSuccess || results[2].Status != StatusSuccess {
		t.Errorf("matching rules got %s/%s, want success", results[0].Status, results[2].Status)
	}
	if results[1].Status != StatusSkipped {
		t.Errorf("non-matching condition got %s, want skipped", results[1].Status)
	}
	if len(logs.entries) != 3 {
		t.Errorf("appended %d log rows, want one per rule", len(logs.entries))
	}
}

func TestEvaluate_DisabledRuleSkipped(t *testing.T) {
	engine, _ := newTestEngine()
	r := rule("disabled", 1, ActionNotify, "")
	r.Enabled = false

	results, err := engine.Evaluate(context.Background(), scoredEvent(1, 85), []*AutomationRule{r})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if results[0].Status != StatusSkipped || results[0].Detail != "rule disabled" {
		t.Errorf("got (%s, %q), want skipped rule", results[0].Status, results[0].Detail)
	}
}

func TestEvaluate_EventTypeMismatchNotEvaluated(t *testing.T) {
	engine, logs := newTestEngine()
	r := rule("submitted only", 1, ActionNotify, "")
	r.EventType = EventClaimSubmitted

	results, err := engine.Evaluate(context.Background(), scoredEvent(1, 85), []*AutomationRule{r})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results for mismatched event type, want 0", len(results))
	}
	if len(logs.entries) != 0 {
		t.Errorf("appended %d log rows, want 0", len(logs.entries))
	}
}

func TestEvaluate_PartialFailureLeavesSiblingSuccess(t *testing.T) {
	engine, logs := newTestEngine()
	engine.RegisterHandler(ActionNotify, ActionHandlerFunc(func(context.Context, Event, *AutomationRule) error {
		return errors.New("notification gateway unreachable")
	}))
	engine.RegisterHandler(ActionNoOp, ActionHandlerFunc(func(context.Context, Event, *AutomationRule) error {
		return nil
	}))

	failing := rule("failing notify", 10, ActionNotify, "")
	healthy := rule("healthy noop", 1, ActionNoOp, "")

	results, err := engine.Evaluate(context.Background(), scoredEvent(2, 70), []*AutomationRule{failing, healthy})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if results[0].Status != StatusFailed {
		t.Errorf("failing rule got %s, want failed", results[0].Status)
	}
	if results[0].Detail == "" {
		t.Error("failed result must carry the captured error")
	}
	if results[1].Status != StatusSuccess {
		t.Errorf("sibling rule got %s, want success despite the earlier failure", results[1].Status)
	}

	var statuses []ExecutionStatus
	for _, l := range logs.entries {
		statuses = append(statuses, l.Status)
	}
	if len(statuses) != 2 || statuses[0] != StatusFailed || statuses[1] != StatusSuccess {
		t.Errorf("log statuses = %v, want [failed success]", statuses)
	}
}

func TestEvaluate_ConflictingExclusiveActions(t *testing.T) {
	engine, logs := newTestEngine()
	engine.RegisterHandler(ActionAutoSubmit, ActionHandlerFunc(func(context.Context, Event, *AutomationRule) error {
		t.Fatal("no action may run once a conflict is detected")
		return nil
	}))
	engine.RegisterHandler(ActionEscalate, ActionHandlerFunc(func(context.Context, Event, *AutomationRule) error {
		t.Fatal("no action may run once a conflict is detected")
		return nil
	}))

	submit := rule("auto submit", 10, ActionAutoSubmit, "")
	escalate := rule("escalate", 5, ActionEscalate, "")

	_, err := engine.Evaluate(context.Background(), scoredEvent(1, 90), []*AutomationRule{submit, escalate})
	if !errors.Is(err, ErrConflictingActions) {
		t.Fatalf("err = %v, want ErrConflictingActions", err)
	}
	if len(logs.entries) != 0 {
		t.Errorf("appended %d log rows, want 0 — evaluation aborts before dispatch", len(logs.entries))
	}
}

func TestEvaluate_SameExclusiveActionTwiceIsNotAConflict(t *testing.T) {
	engine, _ := newTestEngine()
	var calls int
	engine.RegisterHandler(ActionAutoSubmit, ActionHandlerFunc(func(context.Context, Event, *AutomationRule) error {
		calls++
		return nil
	}))

	a := rule("submit a", 10, ActionAutoSubmit, "")
	b := rule("submit b", 5, ActionAutoSubmit, "")

	results, err := engine.Evaluate(context.Background(), scoredEvent(1, 90), []*AutomationRule{a, b})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(results) != 2 || calls != 2 {
		t.Errorf("got %d results and %d calls, want 2 and 2", len(results), calls)
	}
}

func TestEvaluate_ConditionErrorFailsOnlyThatRule(t *testing.T) {
	engine, _ := newTestEngine()
	engine.RegisterHandler(ActionNotify, ActionHandlerFunc(func(context.Context, Event, *AutomationRule) error {
		return nil
	}))

	broken := rule("broken condition", 10, ActionNotify, `no_such_field > 5`)
	healthy := rule("healthy", 1, ActionNotify, `amount > 1000`)

	results, err := engine.Evaluate(context.Background(), scoredEvent(1, 85), []*AutomationRule{broken, healthy})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if results[0].Status != StatusFailed {
		t.Errorf("broken rule got %s, want failed", results[0].Status)
	}
	if results[1].Status != StatusSuccess {
		t.Errorf("healthy rule got %s, want success", results[1].Status)
	}
}

func TestEvaluate_EventContextBoundIntoConditions(t *testing.T) {
	engine, _ := newTestEngine()
	engine.RegisterHandler(ActionEscalate, ActionHandlerFunc(func(context.Context, Event, *AutomationRule) error {
		return nil
	}))

	event := Event{
		Type:    EventManualOverride,
		Claim:   &claims.ClaimRecord{ID: uuid.New(), Amount: 2500},
		Context: map[string]interface{}{"reason": "coding dispute"},
	}
	r := rule("escalate disputes", 1, ActionEscalate, `reason == "coding dispute" && amount > 1000`)
	r.EventType = EventManualOverride

	results, err := engine.Evaluate(context.Background(), event, []*AutomationRule{r})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if results[0].Status != StatusSuccess {
		t.Errorf("got %s, want success for matching context condition", results[0].Status)
	}
}

func TestEvaluate_HandlerTimeout(t *testing.T) {
	logs := &mockLogRepo{}
	engine := NewEngine(logs, telemetry.NewProvider("test", "test"), 20*time.Millisecond, zerolog.Nop())
	engine.RegisterHandler(ActionNotify, ActionHandlerFunc(func(ctx context.Context, _ Event, _ *AutomationRule) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	}))

	results, err := engine.Evaluate(context.Background(), scoredEvent(2, 70), []*AutomationRule{rule("slow", 1, ActionNotify, "")})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if results[0].Status != StatusFailed {
		t.Errorf("got %s, want failed for timed-out handler", results[0].Status)
	}
}
