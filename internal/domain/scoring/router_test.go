package scoring

import "testing"

func TestRoute_TierTable(t *testing.T) {
	router := NewRouter(DefaultThresholds())

	tests := []struct {
		name       string
		score      ClaimScore
		wantTier   int
		wantAction RecommendedAction
	}{
		{
			name:       "high confidence low risk auto-submits",
			score:      ClaimScore{OverallConfidence: 92, DenialRisk: 10, FraudRisk: 2},
			wantTier:   1,
			wantAction: ActionAutoSubmit,
		},
		{
			name:       "confidence exactly 80 qualifies for tier 1",
			score:      ClaimScore{OverallConfidence: 80.0, DenialRisk: 24.9, FraudRisk: 9.9},
			wantTier:   1,
			wantAction: ActionAutoSubmit,
		},
		{
			name:       "confidence 79.9 drops to tier 2",
			score:      ClaimScore{OverallConfidence: 79.9, DenialRisk: 24.9, FraudRisk: 9.9},
			wantTier:   2,
			wantAction: ActionQueueReview,
		},
		{
			name:       "denial risk at ceiling blocks tier 1",
			score:      ClaimScore{OverallConfidence: 90, DenialRisk: 25, FraudRisk: 2},
			wantTier:   2,
			wantAction: ActionQueueReview,
		},
		{
			name:       "fraud risk at ceiling blocks tier 1",
			score:      ClaimScore{OverallConfidence: 90, DenialRisk: 5, FraudRisk: 10},
			wantTier:   2,
			wantAction: ActionQueueReview,
		},
		{
			name:       "confidence exactly 60 queues for review",
			score:      ClaimScore{OverallConfidence: 60.0},
			wantTier:   2,
			wantAction: ActionQueueReview,
		},
		{
			name:       "low confidence goes to manual review",
			score:      ClaimScore{OverallConfidence: 59.9},
			wantTier:   3,
			wantAction: ActionManualReview,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, action := router.Route(&tt.score)
			if tier != tt.wantTier || action != tt.wantAction {
				t.Errorf("Route() = (%d, %s), want (%d, %s)", tier, action, tt.wantTier, tt.wantAction)
			}
		})
	}
}

func TestRoute_SafetyOverride(t *testing.T) {
	router := NewRouter(DefaultThresholds())

	tests := []struct {
		name  string
		score ClaimScore
	}{
		{"fraud risk 60 with confidence 95", ClaimScore{OverallConfidence: 95, FraudRisk: 60}},
		{"fraud risk exactly 50", ClaimScore{OverallConfidence: 95, FraudRisk: 50}},
		{"denial risk 50", ClaimScore{OverallConfidence: 95, DenialRisk: 50}},
		{"compliance risk 50", ClaimScore{OverallConfidence: 95, ComplianceRisk: 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, action := router.Route(&tt.score)
			if tier != 3 || action != ActionManualReview {
				t.Errorf("Route() = (%d, %s), want safety override to (3, manual_review)", tier, action)
			}
		})
	}
}

func TestRoute_RiskJustBelowFloorDoesNotOverride(t *testing.T) {
	router := NewRouter(DefaultThresholds())
	tier, _ := router.Route(&ClaimScore{OverallConfidence: 95, FraudRisk: 49.9, DenialRisk: 10})
	if tier == 3 {
		t.Error("risk below the safety floor must not force tier 3")
	}
}
