package scoring

import (
	"errors"
	"fmt"
	"time"

	"github.com/claimops/claimops/internal/domain/claims"
)

// ErrInsufficientData means required coding or eligibility input is
// missing. The claim stays unscored; the upstream feed owns the fix.
var ErrInsufficientData = errors.New("insufficient data to score claim")

const highAmountThreshold = 10000

// Engine computes ClaimScores. Score is a pure function of its inputs:
// identical claim, features, and weights always produce an identical
// score, which the audit trail depends on.
type Engine struct {
	weights Weights
}

func NewEngine(weights Weights) (*Engine, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Engine{weights: weights}, nil
}

// Score evaluates one claim against its contextual features. It never
// persists anything; the caller inserts the returned row.
func (e *Engine) Score(claim *claims.ClaimRecord, features Features) (*ClaimScore, error) {
	if claim.ProcedureCode == "" {
		return nil, fmt.Errorf("%w: missing procedure code", ErrInsufficientData)
	}
	if claim.DiagnosisCode == "" {
		return nil, fmt.Errorf("%w: missing diagnosis code", ErrInsufficientData)
	}
	if !claim.EligibilityVerified && !features.HasEligibilityData {
		return nil, fmt.Errorf("%w: no eligibility data for claim %s", ErrInsufficientData, claim.ID)
	}

	s := &ClaimScore{
		ClaimID:                 claim.ID,
		ScoringVersion:          ScoringVersion,
		CodingConfidence:        clamp(100 - 60*features.CodingComplexity),
		EligibilityConfidence:   eligibilityConfidence(claim.EligibilityVerified),
		NecessityConfidence:     necessityConfidence(claim.Amount, features.PayerDenialRate),
		DocumentationConfidence: clamp(claim.DocumentationHint),
		DenialRisk:              clamp(100*features.PayerDenialRate + 15*features.CodingComplexity),
		FraudRisk:               clamp(25 * float64(features.FraudSignals)),
		ComplianceRisk:          clamp(30 * float64(features.ComplianceFlags)),
		ScoredAt:                time.Now().UTC(),
	}

	w := e.weights
	s.OverallConfidence = w.Coding*s.CodingConfidence +
		w.Eligibility*s.EligibilityConfidence +
		w.Necessity*s.NecessityConfidence +
		w.Documentation*s.DocumentationConfidence

	// Contribution of each dimension to the overall score, normalized
	// so the map sums to at most 1.
	s.FeatureImportance = map[string]float64{
		"coding":        w.Coding * s.CodingConfidence / 100,
		"eligibility":   w.Eligibility * s.EligibilityConfidence / 100,
		"necessity":     w.Necessity * s.NecessityConfidence / 100,
		"documentation": w.Documentation * s.DocumentationConfidence / 100,
	}
	return s, nil
}

func eligibilityConfidence(verified bool) float64 {
	if verified {
		return 95
	}
	return 35
}

func necessityConfidence(amount, payerDenialRate float64) float64 {
	v := 100 - 50*payerDenialRate
	if amount > highAmountThreshold {
		v -= 10
	}
	return clamp(v)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
