package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ScoringVersion is stamped on every ClaimScore row so audit queries can
// tell which formula generation produced a score.
const ScoringVersion = "v1"

// RecommendedAction is the router's disposition for a scored claim.
type RecommendedAction string

const (
	ActionAutoSubmit   RecommendedAction = "auto_submit"
	ActionQueueReview  RecommendedAction = "queue_review"
	ActionManualReview RecommendedAction = "manual_review"
)

// ClaimScore is one scoring pass over one claim. Rows are append-only:
// re-scoring a claim inserts a new row and never touches prior ones.
type ClaimScore struct {
	ID                      uuid.UUID          `db:"id" json:"id"`
	ClaimID                 uuid.UUID          `db:"claim_id" json:"claim_id"`
	ScoringVersion          string             `db:"scoring_version" json:"scoring_version"`
	CodingConfidence        float64            `db:"coding_confidence" json:"coding_confidence"`
	EligibilityConfidence   float64            `db:"eligibility_confidence" json:"eligibility_confidence"`
	NecessityConfidence     float64            `db:"necessity_confidence" json:"necessity_confidence"`
	DocumentationConfidence float64            `db:"documentation_confidence" json:"documentation_confidence"`
	DenialRisk              float64            `db:"denial_risk" json:"denial_risk"`
	FraudRisk               float64            `db:"fraud_risk" json:"fraud_risk"`
	ComplianceRisk          float64            `db:"compliance_risk" json:"compliance_risk"`
	OverallConfidence       float64            `db:"overall_confidence" json:"overall_confidence"`
	AutomationTier          int                `db:"automation_tier" json:"automation_tier"`
	RecommendedAction       RecommendedAction  `db:"recommended_action" json:"recommended_action"`
	FeatureImportance       map[string]float64 `db:"feature_importance" json:"feature_importance"`
	ScoredAt                time.Time          `db:"scored_at" json:"scored_at"`
}

// Weights blends the four confidence dimensions into overall_confidence.
// They are injected configuration, never hard-coded in the formulas.
type Weights struct {
	Coding        float64
	Eligibility   float64
	Necessity     float64
	Documentation float64
}

const weightEpsilon = 1e-9

// Validate rejects weight sets that do not sum to 1.0.
func (w Weights) Validate() error {
	sum := w.Coding + w.Eligibility + w.Necessity + w.Documentation
	if math.Abs(sum-1.0) > weightEpsilon {
		return fmt.Errorf("scoring weights must sum to 1.0, got %g", sum)
	}
	for name, v := range map[string]float64{
		"coding": w.Coding, "eligibility": w.Eligibility,
		"necessity": w.Necessity, "documentation": w.Documentation,
	} {
		if v < 0 {
			return fmt.Errorf("scoring weight %s must not be negative, got %g", name, v)
		}
	}
	return nil
}

// Features is the contextual input to a scoring pass: payer history
// aggregates plus coding metadata extracted by the upstream parser.
type Features struct {
	// PayerDenialRate is the payer's historical denied/decided ratio in [0,1].
	PayerDenialRate float64 `json:"payer_denial_rate"`
	// PayerAvgDecisionHours is the payer's mean submitted-to-decided latency.
	PayerAvgDecisionHours float64 `json:"payer_avg_decision_hours"`
	// CodingComplexity in [0,1], from the upstream coding analyzer.
	CodingComplexity float64 `json:"coding_complexity"`
	// FraudSignals counts anomaly flags raised upstream for this claim.
	FraudSignals int `json:"fraud_signals"`
	// ComplianceFlags counts regulatory flags raised upstream.
	ComplianceFlags int `json:"compliance_flags"`
	// HasEligibilityData reports whether any eligibility response exists,
	// verified or not.
	HasEligibilityData bool `json:"has_eligibility_data"`
}

// WorkQueueItem is a review-tier score whose claim has no terminal
// action yet. It is a query result, never stored state.
type WorkQueueItem struct {
	ClaimID           uuid.UUID         `db:"claim_id" json:"claim_id"`
	ScoreID           uuid.UUID         `db:"score_id" json:"score_id"`
	CustomerID        uuid.UUID         `db:"customer_id" json:"customer_id"`
	PayerID           uuid.UUID         `db:"payer_id" json:"payer_id"`
	Amount            float64           `db:"amount" json:"amount"`
	AutomationTier    int               `db:"automation_tier" json:"automation_tier"`
	OverallConfidence float64           `db:"overall_confidence" json:"overall_confidence"`
	RecommendedAction RecommendedAction `db:"recommended_action" json:"recommended_action"`
	ScoredAt          time.Time         `db:"scored_at" json:"scored_at"`
}
