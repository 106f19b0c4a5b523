package claims

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the payer's decision state for a claim.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeApproved Outcome = "approved"
	OutcomeDenied   Outcome = "denied"
)

// Valid reports whether o is a known outcome value.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomePending, OutcomeApproved, OutcomeDenied:
		return true
	}
	return false
}

// Terminal reports whether the payer has decided the claim.
func (o Outcome) Terminal() bool {
	return o == OutcomeApproved || o == OutcomeDenied
}

// Customer owns claims and the drift tuning applied to its payers. The
// customer row is also the lock target that serializes concurrent drift
// detection for the same customer.
type Customer struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	DriftThreshold     float64   `db:"drift_threshold" json:"drift_threshold"`
	MinVolume          int       `db:"min_volume" json:"min_volume"`
	BaselineWindowDays int       `db:"baseline_window_days" json:"baseline_window_days"`
	CurrentWindowDays  int       `db:"current_window_days" json:"current_window_days"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// Payer is the insurance organization that decides claims.
type Payer struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	PayerCode string    `db:"payer_code" json:"payer_code"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ClaimRecord is one submitted claim. Decision fields are written once
// when the payer response arrives; after that the record is immutable
// except for explicitly flagged corrective reprocessing.
type ClaimRecord struct {
	ID                  uuid.UUID              `db:"id" json:"id"`
	CustomerID          uuid.UUID              `db:"customer_id" json:"customer_id"`
	PayerID             uuid.UUID              `db:"payer_id" json:"payer_id"`
	Amount              float64                `db:"amount" json:"amount"`
	Currency            string                 `db:"currency" json:"currency"`
	ProcedureCode       string                 `db:"procedure_code" json:"procedure_code"`
	DiagnosisCode       string                 `db:"diagnosis_code" json:"diagnosis_code"`
	EligibilityVerified bool                   `db:"eligibility_verified" json:"eligibility_verified"`
	DocumentationHint   float64                `db:"documentation_score_hint" json:"documentation_score_hint"`
	SubmittedAt         time.Time              `db:"submitted_at" json:"submitted_at"`
	Outcome             Outcome                `db:"outcome" json:"outcome"`
	DecidedAt           *time.Time             `db:"decided_at" json:"decided_at,omitempty"`
	Raw                 map[string]interface{} `db:"raw" json:"raw,omitempty"`
	CreatedAt           time.Time              `db:"created_at" json:"created_at"`
}

// DecisionHours returns the submitted-to-decided latency in hours, or 0
// for undecided claims.
func (c *ClaimRecord) DecisionHours() float64 {
	if c.DecidedAt == nil {
		return 0
	}
	return c.DecidedAt.Sub(c.SubmittedAt).Hours()
}
