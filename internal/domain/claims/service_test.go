package claims

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Repositories --

type mockCustomerRepo struct {
	items map[uuid.UUID]*Customer
}

func newMockCustomerRepo() *mockCustomerRepo {
	return &mockCustomerRepo{items: make(map[uuid.UUID]*Customer)}
}

func (m *mockCustomerRepo) Create(_ context.Context, c *Customer) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	m.items[c.ID] = c
	return nil
}

func (m *mockCustomerRepo) GetByID(_ context.Context, id uuid.UUID) (*Customer, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return c, nil
}

func (m *mockCustomerRepo) List(_ context.Context, limit, offset int) ([]*Customer, int, error) {
	var result []*Customer
	for _, c := range m.items {
		result = append(result, c)
	}
	return result, len(result), nil
}

type mockPayerRepo struct {
	items map[uuid.UUID]*Payer
}

func newMockPayerRepo() *mockPayerRepo {
	return &mockPayerRepo{items: make(map[uuid.UUID]*Payer)}
}

func (m *mockPayerRepo) Create(_ context.Context, p *Payer) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	m.items[p.ID] = p
	return nil
}

func (m *mockPayerRepo) GetByID(_ context.Context, id uuid.UUID) (*Payer, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return p, nil
}

func (m *mockPayerRepo) List(_ context.Context, limit, offset int) ([]*Payer, int, error) {
	var result []*Payer
	for _, p := range m.items {
		result = append(result, p)
	}
	return result, len(result), nil
}

func (m *mockPayerRepo) ListByCustomer(_ context.Context, _ uuid.UUID) ([]*Payer, error) {
	var result []*Payer
	for _, p := range m.items {
		result = append(result, p)
	}
	return result, nil
}

type mockClaimRepo struct {
	items map[uuid.UUID]*ClaimRecord
}

func newMockClaimRepo() *mockClaimRepo {
	return &mockClaimRepo{items: make(map[uuid.UUID]*ClaimRecord)}
}

func (m *mockClaimRepo) Create(_ context.Context, c *ClaimRecord) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	m.items[c.ID] = c
	return nil
}

func (m *mockClaimRepo) GetByID(_ context.Context, id uuid.UUID) (*ClaimRecord, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return c, nil
}

func (m *mockClaimRepo) ListByCustomer(_ context.Context, customerID uuid.UUID, limit, offset int) ([]*ClaimRecord, int, error) {
	var result []*ClaimRecord
	for _, c := range m.items {
		if c.CustomerID == customerID {
			result = append(result, c)
		}
	}
	return result, len(result), nil
}

func (m *mockClaimRepo) RecordDecision(_ context.Context, id uuid.UUID, outcome Outcome, decidedAt time.Time) error {
	c, ok := m.items[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	c.Outcome = outcome
	c.DecidedAt = &decidedAt
	return nil
}

func newTestService() (*Service, *mockClaimRepo) {
	claimRepo := newMockClaimRepo()
	return NewService(newMockCustomerRepo(), newMockPayerRepo(), claimRepo), claimRepo
}

var testDefaults = CustomerDefaults{
	DriftThreshold:     0.20,
	MinVolume:          30,
	BaselineWindowDays: 90,
	CurrentWindowDays:  7,
}

// -- Tests --

func TestCreateCustomer_AppliesDefaults(t *testing.T) {
	svc, _ := newTestService()

	cust := &Customer{Name: "Acme Health"}
	if err := svc.CreateCustomer(context.Background(), cust, testDefaults); err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if cust.DriftThreshold != 0.20 {
		t.Errorf("drift_threshold = %g, want default 0.20", cust.DriftThreshold)
	}
	if cust.MinVolume != 30 {
		t.Errorf("min_volume = %d, want default 30", cust.MinVolume)
	}
}

func TestCreateCustomer_RequiresName(t *testing.T) {
	svc, _ := newTestService()
	if err := svc.CreateCustomer(context.Background(), &Customer{}, testDefaults); err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestIngest_Validation(t *testing.T) {
	svc, _ := newTestService()
	base := func() *ClaimRecord {
		return &ClaimRecord{
			CustomerID:    uuid.New(),
			PayerID:       uuid.New(),
			Amount:        1200.50,
			ProcedureCode: "99213",
			DiagnosisCode: "E11.9",
			SubmittedAt:   time.Now(),
		}
	}

	if err := svc.Ingest(context.Background(), base()); err != nil {
		t.Fatalf("valid claim rejected: %v", err)
	}

	c := base()
	c.CustomerID = uuid.Nil
	if err := svc.Ingest(context.Background(), c); err == nil {
		t.Error("expected error for missing customer_id")
	}

	c = base()
	c.Amount = 0
	if err := svc.Ingest(context.Background(), c); err == nil {
		t.Error("expected error for zero amount")
	}

	c = base()
	c.SubmittedAt = time.Time{}
	if err := svc.Ingest(context.Background(), c); err == nil {
		t.Error("expected error for missing submitted_at")
	}
}

func TestIngest_DefaultsOutcomePending(t *testing.T) {
	svc, _ := newTestService()
	c := &ClaimRecord{
		CustomerID:  uuid.New(),
		PayerID:     uuid.New(),
		Amount:      500,
		SubmittedAt: time.Now(),
	}
	if err := svc.Ingest(context.Background(), c); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if c.Outcome != OutcomePending {
		t.Errorf("outcome = %s, want pending", c.Outcome)
	}
	if c.Currency != "USD" {
		t.Errorf("currency = %s, want USD default", c.Currency)
	}
}

func TestRecordPayerResponse(t *testing.T) {
	svc, repo := newTestService()
	submitted := time.Now().Add(-48 * time.Hour)
	claim := &ClaimRecord{
		CustomerID:  uuid.New(),
		PayerID:     uuid.New(),
		Amount:      900,
		SubmittedAt: submitted,
		Outcome:     OutcomePending,
	}
	repo.Create(context.Background(), claim)

	decided := time.Now()
	got, err := svc.RecordPayerResponse(context.Background(), claim.ID, OutcomeDenied, decided, false)
	if err != nil {
		t.Fatalf("record response: %v", err)
	}
	if got.Outcome != OutcomeDenied {
		t.Errorf("outcome = %s, want denied", got.Outcome)
	}
	if got.DecidedAt == nil || !got.DecidedAt.Equal(decided) {
		t.Errorf("decided_at = %v, want %v", got.DecidedAt, decided)
	}
}

func TestRecordPayerResponse_DecidedClaimIsImmutable(t *testing.T) {
	svc, repo := newTestService()
	decided := time.Now()
	claim := &ClaimRecord{
		CustomerID:  uuid.New(),
		PayerID:     uuid.New(),
		Amount:      900,
		SubmittedAt: time.Now().Add(-24 * time.Hour),
		Outcome:     OutcomeApproved,
		DecidedAt:   &decided,
	}
	repo.Create(context.Background(), claim)

	if _, err := svc.RecordPayerResponse(context.Background(), claim.ID, OutcomeDenied, time.Now(), false); err == nil {
		t.Fatal("expected error re-deciding without corrective flag")
	}

	// Corrective reprocessing is the explicit escape hatch.
	got, err := svc.RecordPayerResponse(context.Background(), claim.ID, OutcomeDenied, time.Now(), true)
	if err != nil {
		t.Fatalf("corrective reprocess: %v", err)
	}
	if got.Outcome != OutcomeDenied {
		t.Errorf("outcome = %s, want denied after corrective reprocess", got.Outcome)
	}
}

func TestRecordPayerResponse_RejectsPendingOutcome(t *testing.T) {
	svc, repo := newTestService()
	claim := &ClaimRecord{
		CustomerID:  uuid.New(),
		PayerID:     uuid.New(),
		Amount:      900,
		SubmittedAt: time.Now(),
		Outcome:     OutcomePending,
	}
	repo.Create(context.Background(), claim)

	if _, err := svc.RecordPayerResponse(context.Background(), claim.ID, OutcomePending, time.Now(), false); err == nil {
		t.Fatal("expected error for non-terminal outcome")
	}
}

func TestDecisionHours(t *testing.T) {
	submitted := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	decided := submitted.Add(36 * time.Hour)
	c := &ClaimRecord{SubmittedAt: submitted, DecidedAt: &decided}
	if got := c.DecisionHours(); got != 36 {
		t.Errorf("DecisionHours = %g, want 36", got)
	}
	c.DecidedAt = nil
	if got := c.DecisionHours(); got != 0 {
		t.Errorf("DecisionHours for undecided = %g, want 0", got)
	}
}
