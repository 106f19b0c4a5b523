package scoring

import (
	"context"

	"github.com/google/uuid"

	"github.com/claimops/claimops/internal/domain/claims"
)

// ScoreRepository persists scores. Insert only appends; there is no
// update path by design of the audit trail.
type ScoreRepository interface {
	Insert(ctx context.Context, s *ClaimScore) error
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*ClaimScore, error)
	LatestByClaim(ctx context.Context, claimID uuid.UUID) (*ClaimScore, error)
	WorkQueue(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*WorkQueueItem, int, error)
}

// FeatureSource resolves the contextual features for a claim: payer
// history aggregates plus coding metadata from the ingest payload.
type FeatureSource interface {
	Features(ctx context.Context, claim *claims.ClaimRecord) (Features, error)
}
