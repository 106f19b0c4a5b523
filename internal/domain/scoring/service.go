package scoring

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimops/claimops/internal/domain/claims"
	"github.com/claimops/claimops/internal/platform/telemetry"
)

// ScoredSink receives every persisted score so downstream automation
// can react to it. Implementations own their failure handling; a sink
// fault never unwinds a completed scoring pass.
type ScoredSink interface {
	ClaimScored(ctx context.Context, claim *claims.ClaimRecord, score *ClaimScore)
}

type Service struct {
	claims    claims.ClaimRepository
	scores    ScoreRepository
	features  FeatureSource
	engine    *Engine
	router    *Router
	telemetry *telemetry.Provider
	sink      ScoredSink
	log       zerolog.Logger
}

func NewService(claimRepo claims.ClaimRepository, scores ScoreRepository, features FeatureSource,
	engine *Engine, router *Router, tel *telemetry.Provider, log zerolog.Logger) *Service {
	return &Service{
		claims:    claimRepo,
		scores:    scores,
		features:  features,
		engine:    engine,
		router:    router,
		telemetry: tel,
		log:       log.With().Str("component", "scoring").Logger(),
	}
}

// SetSink attaches the downstream automation hook. Wired after
// construction because the rules layer depends on this package.
func (s *Service) SetSink(sink ScoredSink) { s.sink = sink }

// ScoreClaim runs the full pass for one claim: resolve features, score,
// route, persist. The insert is append-only, so retrying a dispatch
// produces a new row rather than corrupting an existing one.
func (s *Service) ScoreClaim(ctx context.Context, claimID uuid.UUID) (*ClaimScore, error) {
	claim, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("load claim: %w", err)
	}

	features, err := s.features.Features(ctx, claim)
	if err != nil {
		return nil, fmt.Errorf("resolve features: %w", err)
	}

	score, err := s.engine.Score(claim, features)
	if err != nil {
		return nil, err
	}
	score.AutomationTier, score.RecommendedAction = s.router.Route(score)

	if err := s.scores.Insert(ctx, score); err != nil {
		return nil, fmt.Errorf("insert score: %w", err)
	}
	s.telemetry.ClaimScored(score.AutomationTier)
	s.log.Info().
		Str("claim_id", claim.ID.String()).
		Int("tier", score.AutomationTier).
		Float64("overall_confidence", score.OverallConfidence).
		Msg("claim scored")

	if s.sink != nil {
		s.sink.ClaimScored(ctx, claim, score)
	}
	return score, nil
}

func (s *Service) ListScores(ctx context.Context, claimID uuid.UUID) ([]*ClaimScore, error) {
	return s.scores.ListByClaim(ctx, claimID)
}

func (s *Service) WorkQueue(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*WorkQueueItem, int, error) {
	items, total, err := s.scores.WorkQueue(ctx, customerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	s.telemetry.SetWorkQueueDepth(int64(total))
	return items, total, nil
}
