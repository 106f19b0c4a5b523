package scoring

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/claimops/claimops/internal/domain/claims"
)

func testWeights() Weights {
	return Weights{Coding: 0.35, Eligibility: 0.25, Necessity: 0.20, Documentation: 0.20}
}

func testClaim() *claims.ClaimRecord {
	return &claims.ClaimRecord{
		ID:                  uuid.New(),
		Amount:              5000,
		ProcedureCode:       "99213",
		DiagnosisCode:       "E11.9",
		EligibilityVerified: true,
		DocumentationHint:   88,
	}
}

func TestWeightsValidate(t *testing.T) {
	if err := testWeights().Validate(); err != nil {
		t.Fatalf("valid weights rejected: %v", err)
	}

	w := testWeights()
	w.Coding = 0.40
	if err := w.Validate(); err == nil {
		t.Error("expected error for weights summing to 1.05")
	}

	w = Weights{Coding: 1.5, Eligibility: -0.5, Necessity: 0, Documentation: 0}
	if err := w.Validate(); err == nil {
		t.Error("expected error for negative weight")
	}
}

func TestScore_KnownInputs(t *testing.T) {
	engine, err := NewEngine(testWeights())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	features := Features{
		PayerDenialRate:  0.2,
		CodingComplexity: 0.5,
	}

	s, err := engine.Score(testClaim(), features)
	if err != nil {
		t.Fatalf("score: %v", err)
	}

	if s.CodingConfidence != 70 {
		t.Errorf("coding_confidence = %g, want 70", s.CodingConfidence)
	}
	if s.EligibilityConfidence != 95 {
		t.Errorf("eligibility_confidence = %g, want 95", s.EligibilityConfidence)
	}
	if s.NecessityConfidence != 90 {
		t.Errorf("necessity_confidence = %g, want 90", s.NecessityConfidence)
	}
	if s.DocumentationConfidence != 88 {
		t.Errorf("documentation_confidence = %g, want 88", s.DocumentationConfidence)
	}

	// 0.35*70 + 0.25*95 + 0.20*90 + 0.20*88 = 83.85
	if math.Abs(s.OverallConfidence-83.85) > 1e-9 {
		t.Errorf("overall_confidence = %g, want 83.85", s.OverallConfidence)
	}

	var importanceSum float64
	for _, v := range s.FeatureImportance {
		importanceSum += v
	}
	if importanceSum > 1+1e-9 {
		t.Errorf("feature importance sums to %g, must not exceed 1", importanceSum)
	}
}

func TestScore_Deterministic(t *testing.T) {
	engine, _ := NewEngine(testWeights())
	router := NewRouter(DefaultThresholds())
	claim := testClaim()
	features := Features{PayerDenialRate: 0.15, CodingComplexity: 0.3, FraudSignals: 1}

	first, err := engine.Score(claim, features)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	firstTier, firstAction := router.Route(first)

	for i := 0; i < 10; i++ {
		s, err := engine.Score(claim, features)
		if err != nil {
			t.Fatalf("score run %d: %v", i, err)
		}
		if s.OverallConfidence != first.OverallConfidence {
			t.Fatalf("run %d: overall_confidence = %g, first run gave %g", i, s.OverallConfidence, first.OverallConfidence)
		}
		tier, action := router.Route(s)
		if tier != firstTier || action != firstAction {
			t.Fatalf("run %d: routed to (%d, %s), first run gave (%d, %s)", i, tier, action, firstTier, firstAction)
		}
	}
}

func TestScore_InsufficientData(t *testing.T) {
	engine, _ := NewEngine(testWeights())

	c := testClaim()
	c.ProcedureCode = ""
	if _, err := engine.Score(c, Features{}); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("missing procedure code: err = %v, want ErrInsufficientData", err)
	}

	c = testClaim()
	c.DiagnosisCode = ""
	if _, err := engine.Score(c, Features{}); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("missing diagnosis code: err = %v, want ErrInsufficientData", err)
	}

	c = testClaim()
	c.EligibilityVerified = false
	if _, err := engine.Score(c, Features{HasEligibilityData: false}); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("no eligibility data: err = %v, want ErrInsufficientData", err)
	}
	if _, err := engine.Score(c, Features{HasEligibilityData: true}); err != nil {
		t.Errorf("unverified but present eligibility data should score: %v", err)
	}
}

func TestScore_ClampsToRange(t *testing.T) {
	engine, _ := NewEngine(testWeights())
	claim := testClaim()
	claim.DocumentationHint = 250
	features := Features{
		PayerDenialRate:  0.95,
		CodingComplexity: 1.0,
		FraudSignals:     9,
		ComplianceFlags:  9,
	}

	s, err := engine.Score(claim, features)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	for name, v := range map[string]float64{
		"coding_confidence":        s.CodingConfidence,
		"documentation_confidence": s.DocumentationConfidence,
		"denial_risk":              s.DenialRisk,
		"fraud_risk":               s.FraudRisk,
		"compliance_risk":          s.ComplianceRisk,
	} {
		if v < 0 || v > 100 {
			t.Errorf("%s = %g, outside [0,100]", name, v)
		}
	}
	if s.FraudRisk != 100 {
		t.Errorf("fraud_risk = %g, want clamped to 100", s.FraudRisk)
	}
}

func TestScore_HighAmountPenalty(t *testing.T) {
	engine, _ := NewEngine(testWeights())

	low := testClaim()
	low.Amount = 9999
	high := testClaim()
	high.Amount = 10001

	sLow, err := engine.Score(low, Features{})
	if err != nil {
		t.Fatalf("score low: %v", err)
	}
	sHigh, err := engine.Score(high, Features{})
	if err != nil {
		t.Fatalf("score high: %v", err)
	}
	if sHigh.NecessityConfidence != sLow.NecessityConfidence-10 {
		t.Errorf("high-amount necessity = %g, want %g", sHigh.NecessityConfidence, sLow.NecessityConfidence-10)
	}
}

func TestNewEngine_RejectsBadWeights(t *testing.T) {
	if _, err := NewEngine(Weights{Coding: 0.5, Eligibility: 0.5, Necessity: 0.5}); err == nil {
		t.Fatal("expected error for weights summing to 1.5")
	}
}
