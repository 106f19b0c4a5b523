package claims

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

// =========== Customer Repository ===========

type customerRepoPG struct{ pool *pgxpool.Pool }

func NewCustomerRepoPG(pool *pgxpool.Pool) CustomerRepository { return &customerRepoPG{pool: pool} }

const customerCols = `id, name, drift_threshold, min_volume, baseline_window_days, current_window_days, created_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.DriftThreshold, &c.MinVolume,
		&c.BaselineWindowDays, &c.CurrentWindowDays, &c.CreatedAt)
	return &c, err
}

func (r *customerRepoPG) Create(ctx context.Context, c *Customer) error {
	c.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO customer (id, name, drift_threshold, min_volume, baseline_window_days, current_window_days)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.Name, c.DriftThreshold, c.MinVolume, c.BaselineWindowDays, c.CurrentWindowDays)
	return err
}

func (r *customerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Customer, error) {
	return scanCustomer(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+customerCols+` FROM customer WHERE id = $1`, id))
}

func (r *customerRepoPG) List(ctx context.Context, limit, offset int) ([]*Customer, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM customer`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+customerCols+` FROM customer ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

// =========== Payer Repository ===========

type payerRepoPG struct{ pool *pgxpool.Pool }

func NewPayerRepoPG(pool *pgxpool.Pool) PayerRepository { return &payerRepoPG{pool: pool} }

const payerCols = `id, name, payer_code, created_at`

func scanPayer(row pgx.Row) (*Payer, error) {
	var p Payer
	err := row.Scan(&p.ID, &p.Name, &p.PayerCode, &p.CreatedAt)
	return &p, err
}

func (r *payerRepoPG) Create(ctx context.Context, p *Payer) error {
	p.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO payer (id, name, payer_code) VALUES ($1,$2,$3)`,
		p.ID, p.Name, p.PayerCode)
	return err
}

func (r *payerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Payer, error) {
	return scanPayer(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+payerCols+` FROM payer WHERE id = $1`, id))
}

func (r *payerRepoPG) List(ctx context.Context, limit, offset int) ([]*Payer, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM payer`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+payerCols+` FROM payer ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Payer
	for rows.Next() {
		p, err := scanPayer(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *payerRepoPG) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*Payer, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT DISTINCT p.id, p.name, p.payer_code, p.created_at
		FROM payer p JOIN claim c ON c.payer_id = p.id
		WHERE c.customer_id = $1 ORDER BY p.name`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Payer
	for rows.Next() {
		p, err := scanPayer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// =========== Claim Repository ===========

type claimRepoPG struct{ pool *pgxpool.Pool }

func NewClaimRepoPG(pool *pgxpool.Pool) ClaimRepository { return &claimRepoPG{pool: pool} }

const claimCols = `id, customer_id, payer_id, amount, currency, procedure_code, diagnosis_code,
	eligibility_verified, documentation_score_hint, submitted_at, outcome, decided_at, raw, created_at`

func scanClaim(row pgx.Row) (*ClaimRecord, error) {
	var c ClaimRecord
	err := row.Scan(&c.ID, &c.CustomerID, &c.PayerID, &c.Amount, &c.Currency,
		&c.ProcedureCode, &c.DiagnosisCode, &c.EligibilityVerified, &c.DocumentationHint,
		&c.SubmittedAt, &c.Outcome, &c.DecidedAt, &c.Raw, &c.CreatedAt)
	return &c, err
}

func (r *claimRepoPG) Create(ctx context.Context, c *ClaimRecord) error {
	c.ID = uuid.New()
	if c.Outcome == "" {
		c.Outcome = OutcomePending
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO claim (id, customer_id, payer_id, amount, currency, procedure_code,
			diagnosis_code, eligibility_verified, documentation_score_hint, submitted_at, outcome, raw)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		c.ID, c.CustomerID, c.PayerID, c.Amount, c.Currency, c.ProcedureCode,
		c.DiagnosisCode, c.EligibilityVerified, c.DocumentationHint, c.SubmittedAt, c.Outcome, c.Raw)
	return err
}

func (r *claimRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ClaimRecord, error) {
	return scanClaim(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+claimCols+` FROM claim WHERE id = $1`, id))
}

func (r *claimRepoPG) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*ClaimRecord, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM claim WHERE customer_id = $1`, customerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+claimCols+` FROM claim WHERE customer_id = $1 ORDER BY submitted_at DESC LIMIT $2 OFFSET $3`,
		customerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ClaimRecord
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *claimRepoPG) RecordDecision(ctx context.Context, id uuid.UUID, outcome Outcome, decidedAt time.Time) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE claim SET outcome = $2, decided_at = $3 WHERE id = $1`,
		id, outcome, decidedAt)
	return err
}
