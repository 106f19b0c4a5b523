package reports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type runRepoPG struct{ pool *pgxpool.Pool }

func NewRunRepoPG(pool *pgxpool.Pool) RunRepository { return &runRepoPG{pool: pool} }

const runCols = `id, customer_id, period_start, period_end, status, artifact_ref,
	error_detail, requested_at, completed_at`

func scanRun(row pgx.Row) (*ReportRun, error) {
	var r ReportRun
	err := row.Scan(&r.ID, &r.CustomerID, &r.PeriodStart, &r.PeriodEnd, &r.Status,
		&r.ArtifactRef, &r.ErrorDetail, &r.RequestedAt, &r.CompletedAt)
	return &r, err
}

func (p *runRepoPG) Create(ctx context.Context, r *ReportRun) error {
	r.ID = uuid.New()
	if r.RequestedAt.IsZero() {
		r.RequestedAt = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO report_run (id, customer_id, period_start, period_end, status, requested_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		r.ID, r.CustomerID, r.PeriodStart, r.PeriodEnd, r.Status, r.RequestedAt)
	return err
}

func (p *runRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ReportRun, error) {
	return scanRun(p.pool.QueryRow(ctx,
		`SELECT `+runCols+` FROM report_run WHERE id = $1`, id))
}

func (p *runRepoPG) FindOpenRun(ctx context.Context, customerID uuid.UUID, periodStart, periodEnd time.Time) (*ReportRun, error) {
	r, err := scanRun(p.pool.QueryRow(ctx, `
		SELECT `+runCols+` FROM report_run
		WHERE customer_id = $1 AND period_start = $2 AND period_end = $3
		AND status IN ('pending', 'computing')
		ORDER BY requested_at LIMIT 1`,
		customerID, periodStart, periodEnd))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (p *runRepoPG) UpdateStatus(ctx context.Context, r *ReportRun) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE report_run
		SET status = $2, artifact_ref = $3, error_detail = $4, completed_at = $5
		WHERE id = $1`,
		r.ID, r.Status, r.ArtifactRef, r.ErrorDetail, r.CompletedAt)
	return err
}

func (p *runRepoPG) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*ReportRun, int, error) {
	var total int
	if err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM report_run WHERE customer_id = $1`, customerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := p.pool.Query(ctx,
		`SELECT `+runCols+` FROM report_run WHERE customer_id = $1 ORDER BY requested_at DESC LIMIT $2 OFFSET $3`,
		customerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ReportRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, r)
	}
	return items, total, rows.Err()
}
