package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimops/claimops/internal/domain/claims"
	"github.com/claimops/claimops/internal/domain/drift"
	"github.com/claimops/claimops/internal/platform/telemetry"
)

// DriftDetector is the slice of the drift package this service needs.
type DriftDetector interface {
	Detect(ctx context.Context, customer *claims.Customer, payer *claims.Payer, metric drift.Metric, window drift.Window) (*drift.DriftEvent, error)
}

// RunPublisher is notified once a run's artifact is ready.
type RunPublisher interface {
	ReportReady(ctx context.Context, run *ReportRun)
}

// Service orchestrates weekly drift reports. It owns every ReportRun
// status transition; callers hand it resolved entities and never touch
// run state themselves.
type Service struct {
	runs        RunRepository
	detector    DriftDetector
	telemetry   *telemetry.Provider
	publisher   RunPublisher
	artifactDir string
	log         zerolog.Logger
}

func NewService(runs RunRepository, detector DriftDetector, tel *telemetry.Provider, artifactDir string, log zerolog.Logger) *Service {
	return &Service{
		runs:        runs,
		detector:    detector,
		telemetry:   tel,
		artifactDir: artifactDir,
		log:         log.With().Str("component", "reports").Logger(),
	}
}

// SetPublisher attaches the ready-run notification hook.
func (s *Service) SetPublisher(p RunPublisher) { s.publisher = p }

// ScheduleWeeklyReport creates a pending run for the trailing 7-day
// period. An open run for the same customer and period is returned
// as-is rather than duplicated, so overlapping sweeps stay idempotent.
func (s *Service) ScheduleWeeklyReport(ctx context.Context, customer *claims.Customer) (*ReportRun, error) {
	periodEnd := time.Now().UTC().Truncate(24 * time.Hour)
	periodStart := periodEnd.AddDate(0, 0, -7)

	existing, err := s.runs.FindOpenRun(ctx, customer.ID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("find open run: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	run := &ReportRun{
		CustomerID:  customer.ID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Status:      StatusPending,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create report run: %w", err)
	}
	return run, nil
}

// ComputeReportDrift transitions the run to computing and invokes the
// detector for every (payer, metric) pair in the run's period. A
// detector error marks the run failed with the captured detail.
func (s *Service) ComputeReportDrift(ctx context.Context, run *ReportRun, customer *claims.Customer, payers []*claims.Payer) (*DriftSummary, error) {
	if run.Status != StatusPending {
		return nil, fmt.Errorf("run %s is %s, expected pending", run.ID, run.Status)
	}
	run.Status = StatusComputing
	if err := s.runs.UpdateStatus(ctx, run); err != nil {
		return nil, fmt.Errorf("mark run computing: %w", err)
	}

	summary := &DriftSummary{
		CustomerID:    customer.ID,
		PeriodStart:   run.PeriodStart,
		PeriodEnd:     run.PeriodEnd,
		PayersChecked: len(payers),
	}
	window := drift.Window{Start: run.PeriodStart, End: run.PeriodEnd}
	for _, payer := range payers {
		for _, metric := range drift.Metrics() {
			event, err := s.detector.Detect(ctx, customer, payer, metric, window)
			if err != nil {
				s.markFailed(ctx, run, fmt.Sprintf("detect %s for payer %s: %v", metric, payer.ID, err))
				return nil, err
			}
			summary.ChecksRun++
			if event != nil {
				summary.Events = append(summary.Events, event)
			}
		}
	}
	return summary, nil
}

// GenerateReportArtifact renders the summary as a JSON artifact and
// completes the run.
func (s *Service) GenerateReportArtifact(ctx context.Context, run *ReportRun, summary *DriftSummary) (ArtifactRef, error) {
	if run.Status != StatusComputing {
		return "", fmt.Errorf("run %s is %s, expected computing", run.ID, run.Status)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		s.markFailed(ctx, run, fmt.Sprintf("render summary: %v", err))
		return "", err
	}
	if err := os.MkdirAll(s.artifactDir, 0o755); err != nil {
		s.markFailed(ctx, run, fmt.Sprintf("create artifact dir: %v", err))
		return "", err
	}
	path := filepath.Join(s.artifactDir, fmt.Sprintf("drift-report-%s.json", run.ID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.markFailed(ctx, run, fmt.Sprintf("write artifact: %v", err))
		return "", err
	}

	now := time.Now().UTC()
	run.Status = StatusReady
	run.ArtifactRef = path
	run.CompletedAt = &now
	if err := s.runs.UpdateStatus(ctx, run); err != nil {
		return "", fmt.Errorf("mark run ready: %w", err)
	}
	s.telemetry.ReportRunCompleted(string(StatusReady))
	if s.publisher != nil {
		s.publisher.ReportReady(ctx, run)
	}
	return ArtifactRef(path), nil
}

// Run executes the full pipeline for one customer: schedule, compute,
// render. Already-completed periods come back as the existing run.
func (s *Service) Run(ctx context.Context, customer *claims.Customer, payers []*claims.Payer) (*ReportRun, error) {
	run, err := s.ScheduleWeeklyReport(ctx, customer)
	if err != nil {
		return nil, err
	}
	if run.Status != StatusPending {
		// An overlapping sweep already picked this run up.
		return run, nil
	}
	summary, err := s.ComputeReportDrift(ctx, run, customer, payers)
	if err != nil {
		return run, err
	}
	if _, err := s.GenerateReportArtifact(ctx, run, summary); err != nil {
		return run, err
	}
	return run, nil
}

func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*ReportRun, error) {
	return s.runs.GetByID(ctx, id)
}

func (s *Service) ListRuns(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*ReportRun, int, error) {
	return s.runs.ListByCustomer(ctx, customerID, limit, offset)
}

func (s *Service) markFailed(ctx context.Context, run *ReportRun, detail string) {
	now := time.Now().UTC()
	run.Status = StatusFailed
	run.ErrorDetail = detail
	run.CompletedAt = &now
	if err := s.runs.UpdateStatus(ctx, run); err != nil {
		s.log.Error().Err(err).Str("run_id", run.ID.String()).Msg("mark run failed")
	}
	s.telemetry.ReportRunCompleted(string(StatusFailed))
}
