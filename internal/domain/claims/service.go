package claims

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventNotifier receives claim lifecycle notifications after the write
// commits. Implementations own their failure handling; a notifier fault
// never unwinds the completed write.
type EventNotifier interface {
	ClaimSubmitted(ctx context.Context, c *ClaimRecord)
	PayerResponseReceived(ctx context.Context, c *ClaimRecord)
}

type Service struct {
	customers CustomerRepository
	payers    PayerRepository
	claims    ClaimRepository
	notifier  EventNotifier
}

func NewService(customers CustomerRepository, payers PayerRepository, claims ClaimRepository) *Service {
	return &Service{customers: customers, payers: payers, claims: claims}
}

// SetNotifier attaches the lifecycle hook. Wired after construction
// because the automation layer depends on this package.
func (s *Service) SetNotifier(n EventNotifier) { s.notifier = n }

// -- Customer --

// CustomerDefaults carries drift tuning applied when a customer is
// created without explicit values.
type CustomerDefaults struct {
	DriftThreshold     float64
	MinVolume          int
	BaselineWindowDays int
	CurrentWindowDays  int
}

func (s *Service) CreateCustomer(ctx context.Context, c *Customer, defaults CustomerDefaults) error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.DriftThreshold == 0 {
		c.DriftThreshold = defaults.DriftThreshold
	}
	if c.MinVolume == 0 {
		c.MinVolume = defaults.MinVolume
	}
	if c.BaselineWindowDays == 0 {
		c.BaselineWindowDays = defaults.BaselineWindowDays
	}
	if c.CurrentWindowDays == 0 {
		c.CurrentWindowDays = defaults.CurrentWindowDays
	}
	if c.DriftThreshold <= 0 {
		return fmt.Errorf("drift_threshold must be positive, got %g", c.DriftThreshold)
	}
	if c.MinVolume < 1 {
		return fmt.Errorf("min_volume must be at least 1, got %d", c.MinVolume)
	}
	return s.customers.Create(ctx, c)
}

func (s *Service) GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error) {
	return s.customers.GetByID(ctx, id)
}

func (s *Service) ListCustomers(ctx context.Context, limit, offset int) ([]*Customer, int, error) {
	return s.customers.List(ctx, limit, offset)
}

// -- Payer --

func (s *Service) CreatePayer(ctx context.Context, p *Payer) error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.PayerCode == "" {
		return fmt.Errorf("payer_code is required")
	}
	return s.payers.Create(ctx, p)
}

func (s *Service) GetPayer(ctx context.Context, id uuid.UUID) (*Payer, error) {
	return s.payers.GetByID(ctx, id)
}

func (s *Service) ListPayers(ctx context.Context, limit, offset int) ([]*Payer, int, error) {
	return s.payers.List(ctx, limit, offset)
}

func (s *Service) ListPayersByCustomer(ctx context.Context, customerID uuid.UUID) ([]*Payer, error) {
	return s.payers.ListByCustomer(ctx, customerID)
}

// -- Claim --

// Ingest accepts an already-validated claim from the upstream parser.
// Type coercion and format handling happen there; this layer only
// enforces referential and business invariants.
func (s *Service) Ingest(ctx context.Context, c *ClaimRecord) error {
	if c.CustomerID == uuid.Nil {
		return fmt.Errorf("customer_id is required")
	}
	if c.PayerID == uuid.Nil {
		return fmt.Errorf("payer_id is required")
	}
	if c.Amount <= 0 {
		return fmt.Errorf("amount must be positive, got %g", c.Amount)
	}
	if c.SubmittedAt.IsZero() {
		return fmt.Errorf("submitted_at is required")
	}
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.Outcome == "" {
		c.Outcome = OutcomePending
	}
	if !c.Outcome.Valid() {
		return fmt.Errorf("invalid outcome: %s", c.Outcome)
	}
	if err := s.claims.Create(ctx, c); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.ClaimSubmitted(ctx, c)
	}
	return nil
}

func (s *Service) GetClaim(ctx context.Context, id uuid.UUID) (*ClaimRecord, error) {
	return s.claims.GetByID(ctx, id)
}

func (s *Service) ListClaimsByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*ClaimRecord, int, error) {
	return s.claims.ListByCustomer(ctx, customerID, limit, offset)
}

// RecordPayerResponse applies the payer's decision to a claim. A decided
// claim is immutable: re-deciding requires the corrective flag, which
// marks an explicit reprocessing pass rather than a stray duplicate
// webhook delivery.
func (s *Service) RecordPayerResponse(ctx context.Context, id uuid.UUID, outcome Outcome, decidedAt time.Time, corrective bool) (*ClaimRecord, error) {
	if !outcome.Terminal() {
		return nil, fmt.Errorf("payer response outcome must be approved or denied, got %s", outcome)
	}
	if decidedAt.IsZero() {
		decidedAt = time.Now().UTC()
	}

	claim, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load claim: %w", err)
	}
	if claim.Outcome.Terminal() && !corrective {
		return nil, fmt.Errorf("claim %s already decided (%s); corrective reprocessing required", id, claim.Outcome)
	}
	if decidedAt.Before(claim.SubmittedAt) {
		return nil, fmt.Errorf("decided_at %s precedes submission %s", decidedAt, claim.SubmittedAt)
	}

	if err := s.claims.RecordDecision(ctx, id, outcome, decidedAt); err != nil {
		return nil, err
	}
	claim.Outcome = outcome
	claim.DecidedAt = &decidedAt
	if s.notifier != nil {
		s.notifier.PayerResponseReceived(ctx, claim)
	}
	return claim, nil
}
