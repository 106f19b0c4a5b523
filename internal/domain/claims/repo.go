package claims

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type CustomerRepository interface {
	Create(ctx context.Context, c *Customer) error
	GetByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	List(ctx context.Context, limit, offset int) ([]*Customer, int, error)
}

type PayerRepository interface {
	Create(ctx context.Context, p *Payer) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payer, error)
	List(ctx context.Context, limit, offset int) ([]*Payer, int, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*Payer, error)
}

type ClaimRepository interface {
	Create(ctx context.Context, c *ClaimRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*ClaimRecord, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*ClaimRecord, int, error)
	RecordDecision(ctx context.Context, id uuid.UUID, outcome Outcome, decidedAt time.Time) error
}
