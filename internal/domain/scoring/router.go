package scoring

// Thresholds is the tier classification table. Injected so tests can
// assert exact boundaries without touching production defaults.
type Thresholds struct {
	// SafetyRiskFloor: any single risk at or above this forces tier 3.
	SafetyRiskFloor float64
	// AutoConfidence is the overall_confidence floor for tier 1.
	AutoConfidence float64
	// AutoDenialCeiling and AutoFraudCeiling bound the risks tier 1 tolerates.
	AutoDenialCeiling float64
	AutoFraudCeiling  float64
	// ReviewConfidence is the overall_confidence floor for tier 2.
	ReviewConfidence float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		SafetyRiskFloor:   50,
		AutoConfidence:    80,
		AutoDenialCeiling: 25,
		AutoFraudCeiling:  10,
		ReviewConfidence:  60,
	}
}

// Router maps a ClaimScore to an automation tier and action. It is
// stateless; Route mutates nothing.
type Router struct {
	t Thresholds
}

func NewRouter(t Thresholds) *Router {
	return &Router{t: t}
}

// Route classifies a score. The safety override runs before the
// threshold table: a single elevated risk sends the claim to manual
// review no matter how confident the score is. The remaining rows are
// evaluated in order; the first match wins.
func (r *Router) Route(s *ClaimScore) (int, RecommendedAction) {
	t := r.t
	if s.DenialRisk >= t.SafetyRiskFloor || s.FraudRisk >= t.SafetyRiskFloor || s.ComplianceRisk >= t.SafetyRiskFloor {
		return 3, ActionManualReview
	}
	if s.OverallConfidence >= t.AutoConfidence && s.DenialRisk < t.AutoDenialCeiling && s.FraudRisk < t.AutoFraudCeiling {
		return 1, ActionAutoSubmit
	}
	if s.OverallConfidence >= t.ReviewConfidence {
		return 2, ActionQueueReview
	}
	return 3, ActionManualReview
}
