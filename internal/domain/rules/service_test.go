package rules

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimops/claimops/internal/platform/telemetry"
)

type mockRuleRepo struct {
	items map[uuid.UUID]*AutomationRule
}

func newMockRuleRepo() *mockRuleRepo {
	return &mockRuleRepo{items: make(map[uuid.UUID]*AutomationRule)}
}

func (m *mockRuleRepo) Create(_ context.Context, r *AutomationRule) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	m.items[r.ID] = r
	return nil
}

func (m *mockRuleRepo) GetByID(_ context.Context, id uuid.UUID) (*AutomationRule, error) {
	r, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return r, nil
}

func (m *mockRuleRepo) Update(_ context.Context, r *AutomationRule) error {
	m.items[r.ID] = r
	return nil
}

func (m *mockRuleRepo) SetEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	r, ok := m.items[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	r.Enabled = enabled
	return nil
}

func (m *mockRuleRepo) List(_ context.Context, _, _ int) ([]*AutomationRule, int, error) {
	var out []*AutomationRule
	for _, r := range m.items {
		out = append(out, r)
	}
	return out, len(out), nil
}

func (m *mockRuleRepo) ListByEvent(_ context.Context, event EventType) ([]*AutomationRule, error) {
	var out []*AutomationRule
	for _, r := range m.items {
		if r.EventType == event {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestService() (*Service, *mockRuleRepo, *mockLogRepo) {
	ruleRepo := newMockRuleRepo()
	logs := &mockLogRepo{}
	engine := NewEngine(logs, telemetry.NewProvider("test", "test"), time.Second, zerolog.Nop())
	engine.RegisterHandler(ActionNoOp, ActionHandlerFunc(func(context.Context, Event, *AutomationRule) error {
		return nil
	}))
	return NewService(ruleRepo, logs, engine, zerolog.Nop()), ruleRepo, logs
}

func TestCreateRule_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	valid := &AutomationRule{
		Name:       "notify high tier",
		EventType:  EventClaimScored,
		Condition:  `tier == 3`,
		ActionType: ActionNotify,
		Enabled:    true,
	}
	if err := svc.CreateRule(ctx, valid); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}

	tests := []struct {
		name string
		rule AutomationRule
	}{
		{"missing name", AutomationRule{EventType: EventClaimScored, ActionType: ActionNotify}},
		{"unknown event type", AutomationRule{Name: "x", EventType: "claim_deleted", ActionType: ActionNotify}},
		{"unknown action type", AutomationRule{Name: "x", EventType: EventClaimScored, ActionType: "explode"}},
		{"broken condition", AutomationRule{Name: "x", EventType: EventClaimScored, ActionType: ActionNotify, Condition: `tier ==`}},
		{"non-boolean condition", AutomationRule{Name: "x", EventType: EventClaimScored, ActionType: ActionNotify, Condition: `amount + 1`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.rule
			if err := svc.CreateRule(ctx, &r); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCreateRule_AllowsContextVariables(t *testing.T) {
	svc, _, _ := newTestService()
	r := &AutomationRule{
		Name:       "escalate disputes",
		EventType:  EventManualOverride,
		Condition:  `reason == "coding dispute"`,
		ActionType: ActionEscalate,
	}
	if err := svc.CreateRule(context.Background(), r); err != nil {
		t.Fatalf("context-variable condition rejected: %v", err)
	}
}

func TestHandleEvent_LoadsRulesForEventType(t *testing.T) {
	svc, repo, logs := newTestService()
	ctx := context.Background()

	repo.Create(ctx, &AutomationRule{
		Name: "scored noop", EventType: EventClaimScored, ActionType: ActionNoOp, Enabled: true,
	})
	repo.Create(ctx, &AutomationRule{
		Name: "submitted noop", EventType: EventClaimSubmitted, ActionType: ActionNoOp, Enabled: true,
	})

	results, err := svc.HandleEvent(ctx, scoredEvent(2, 70))
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 — only claim_scored rules apply", len(results))
	}
	if results[0].RuleName != "scored noop" || results[0].Status != StatusSuccess {
		t.Errorf("got (%s, %s), want (scored noop, success)", results[0].RuleName, results[0].Status)
	}
	if len(logs.entries) != 1 {
		t.Errorf("appended %d log rows, want 1", len(logs.entries))
	}
}
