package rules

import (
	"context"

	"github.com/google/uuid"
)

type RuleRepository interface {
	Create(ctx context.Context, r *AutomationRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*AutomationRule, error)
	Update(ctx context.Context, r *AutomationRule) error
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	List(ctx context.Context, limit, offset int) ([]*AutomationRule, int, error)
	ListByEvent(ctx context.Context, event EventType) ([]*AutomationRule, error)
}

// ExecutionLogRepository is append-only; there is no update or delete.
type ExecutionLogRepository interface {
	Append(ctx context.Context, l *ExecutionLog) error
	ListByClaim(ctx context.Context, claimID uuid.UUID, limit, offset int) ([]*ExecutionLog, int, error)
}
