package reports

import (
	"time"

	"github.com/google/uuid"

	"github.com/claimops/claimops/internal/domain/drift"
)

// RunStatus is the report run lifecycle: pending -> computing ->
// ready or failed. Transitions are owned exclusively by the Service.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusComputing RunStatus = "computing"
	StatusReady     RunStatus = "ready"
	StatusFailed    RunStatus = "failed"
)

// Open reports whether the run is still in flight.
func (s RunStatus) Open() bool {
	return s == StatusPending || s == StatusComputing
}

// ReportRun is one weekly drift report for one customer and period.
type ReportRun struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	CustomerID  uuid.UUID  `db:"customer_id" json:"customer_id"`
	PeriodStart time.Time  `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time  `db:"period_end" json:"period_end"`
	Status      RunStatus  `db:"status" json:"status"`
	ArtifactRef string     `db:"artifact_ref" json:"artifact_ref,omitempty"`
	ErrorDetail string     `db:"error_detail" json:"error_detail,omitempty"`
	RequestedAt time.Time  `db:"requested_at" json:"requested_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// DriftSummary aggregates one run's detection results.
type DriftSummary struct {
	CustomerID    uuid.UUID           `json:"customer_id"`
	PeriodStart   time.Time           `json:"period_start"`
	PeriodEnd     time.Time           `json:"period_end"`
	PayersChecked int                 `json:"payers_checked"`
	ChecksRun     int                 `json:"checks_run"`
	Events        []*drift.DriftEvent `json:"events"`
}

// ArtifactRef points at a rendered report artifact.
type ArtifactRef string
