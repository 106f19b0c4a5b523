package scoring

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimops/claimops/internal/domain/claims"
	"github.com/claimops/claimops/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// =========== Score Repository ===========

type scoreRepoPG struct{ pool *pgxpool.Pool }

func NewScoreRepoPG(pool *pgxpool.Pool) ScoreRepository { return &scoreRepoPG{pool: pool} }

const scoreCols = `id, claim_id, scoring_version, coding_confidence, eligibility_confidence,
	necessity_confidence, documentation_confidence, denial_risk, fraud_risk, compliance_risk,
	overall_confidence, automation_tier, recommended_action, feature_importance, scored_at`

func scanScore(row pgx.Row) (*ClaimScore, error) {
	var s ClaimScore
	err := row.Scan(&s.ID, &s.ClaimID, &s.ScoringVersion, &s.CodingConfidence,
		&s.EligibilityConfidence, &s.NecessityConfidence, &s.DocumentationConfidence,
		&s.DenialRisk, &s.FraudRisk, &s.ComplianceRisk, &s.OverallConfidence,
		&s.AutomationTier, &s.RecommendedAction, &s.FeatureImportance, &s.ScoredAt)
	return &s, err
}

func (r *scoreRepoPG) Insert(ctx context.Context, s *ClaimScore) error {
	s.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO claim_score (id, claim_id, scoring_version, coding_confidence,
			eligibility_confidence, necessity_confidence, documentation_confidence,
			denial_risk, fraud_risk, compliance_risk, overall_confidence,
			automation_tier, recommended_action, feature_importance, scored_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		s.ID, s.ClaimID, s.ScoringVersion, s.CodingConfidence,
		s.EligibilityConfidence, s.NecessityConfidence, s.DocumentationConfidence,
		s.DenialRisk, s.FraudRisk, s.ComplianceRisk, s.OverallConfidence,
		s.AutomationTier, s.RecommendedAction, s.FeatureImportance, s.ScoredAt)
	return err
}

func (r *scoreRepoPG) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*ClaimScore, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+scoreCols+` FROM claim_score WHERE claim_id = $1 ORDER BY scored_at DESC`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ClaimScore
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *scoreRepoPG) LatestByClaim(ctx context.Context, claimID uuid.UUID) (*ClaimScore, error) {
	return scanScore(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+scoreCols+` FROM claim_score WHERE claim_id = $1 ORDER BY scored_at DESC LIMIT 1`, claimID))
}

// workQueueFrom selects the latest score per claim for a customer and
// keeps review-tier rows whose claim has no terminal action logged.
const workQueueFrom = `
	FROM (
		SELECT DISTINCT ON (s.claim_id) s.claim_id, s.id AS score_id, c.customer_id,
			c.payer_id, c.amount, s.automation_tier, s.overall_confidence,
			s.recommended_action, s.scored_at
		FROM claim_score s
		JOIN claim c ON c.id = s.claim_id
		WHERE c.customer_id = $1
		ORDER BY s.claim_id, s.scored_at DESC
	) latest
	WHERE latest.automation_tier IN (2, 3)
	AND NOT EXISTS (
		SELECT 1 FROM execution_log l
		WHERE l.claim_id = latest.claim_id
		AND l.status = 'success'
		AND l.action_type IN ('auto_submit', 'escalate')
	)`

func (r *scoreRepoPG) WorkQueue(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*WorkQueueItem, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*)`+workQueueFrom, customerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT latest.claim_id, latest.score_id, latest.customer_id, latest.payer_id,
			latest.amount, latest.automation_tier, latest.overall_confidence,
			latest.recommended_action, latest.scored_at`+workQueueFrom+`
		ORDER BY latest.scored_at ASC LIMIT $2 OFFSET $3`,
		customerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*WorkQueueItem
	for rows.Next() {
		var w WorkQueueItem
		if err := rows.Scan(&w.ClaimID, &w.ScoreID, &w.CustomerID, &w.PayerID,
			&w.Amount, &w.AutomationTier, &w.OverallConfidence,
			&w.RecommendedAction, &w.ScoredAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &w)
	}
	return items, total, rows.Err()
}

// =========== Feature Source ===========

// featureSourcePG aggregates payer history from decided claims and
// picks coding metadata out of the claim's raw ingest payload.
type featureSourcePG struct{ pool *pgxpool.Pool }

func NewFeatureSourcePG(pool *pgxpool.Pool) FeatureSource { return &featureSourcePG{pool: pool} }

func (f *featureSourcePG) Features(ctx context.Context, claim *claims.ClaimRecord) (Features, error) {
	var feat Features
	err := conn(ctx, f.pool).QueryRow(ctx, `
		SELECT
			COALESCE(COUNT(*) FILTER (WHERE outcome = 'denied')::float / NULLIF(COUNT(*), 0), 0),
			COALESCE(AVG(EXTRACT(EPOCH FROM (decided_at - submitted_at)) / 3600), 0)
		FROM claim
		WHERE payer_id = $1 AND outcome IN ('approved', 'denied')`,
		claim.PayerID).Scan(&feat.PayerDenialRate, &feat.PayerAvgDecisionHours)
	if err != nil {
		return Features{}, err
	}

	feat.CodingComplexity = rawFloat(claim.Raw, "coding_complexity")
	feat.FraudSignals = int(rawFloat(claim.Raw, "fraud_signals"))
	feat.ComplianceFlags = int(rawFloat(claim.Raw, "compliance_flags"))
	feat.HasEligibilityData = claim.EligibilityVerified || rawBool(claim.Raw, "eligibility_checked")
	return feat, nil
}

func rawFloat(raw map[string]interface{}, key string) float64 {
	if raw == nil {
		return 0
	}
	switch v := raw[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func rawBool(raw map[string]interface{}, key string) bool {
	if raw == nil {
		return false
	}
	b, _ := raw[key].(bool)
	return b
}
