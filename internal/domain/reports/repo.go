package reports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RunRepository interface {
	Create(ctx context.Context, r *ReportRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*ReportRun, error)
	// FindOpenRun returns a pending or computing run for the same
	// customer and period, or nil when none exists.
	FindOpenRun(ctx context.Context, customerID uuid.UUID, periodStart, periodEnd time.Time) (*ReportRun, error)
	UpdateStatus(ctx context.Context, r *ReportRun) error
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*ReportRun, int, error)
}
