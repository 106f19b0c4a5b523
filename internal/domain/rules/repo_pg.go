package rules

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

// =========== Rule Repository ===========

type ruleRepoPG struct{ pool *pgxpool.Pool }

func NewRuleRepoPG(pool *pgxpool.Pool) RuleRepository { return &ruleRepoPG{pool: pool} }

const ruleCols = `id, name, event_type, condition, action_type, enabled, priority, created_at, updated_at`

func scanRule(row pgx.Row) (*AutomationRule, error) {
	var r AutomationRule
	err := row.Scan(&r.ID, &r.Name, &r.EventType, &r.Condition, &r.ActionType,
		&r.Enabled, &r.Priority, &r.CreatedAt, &r.UpdatedAt)
	return &r, err
}

func (p *ruleRepoPG) Create(ctx context.Context, r *AutomationRule) error {
	r.ID = uuid.New()
	_, err := conn(ctx, p.pool).Exec(ctx, `
		INSERT INTO automation_rule (id, name, event_type, condition, action_type, enabled, priority)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		r.ID, r.Name, r.EventType, r.Condition, r.ActionType, r.Enabled, r.Priority)
	return err
}

func (p *ruleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AutomationRule, error) {
	return scanRule(conn(ctx, p.pool).QueryRow(ctx,
		`SELECT `+ruleCols+` FROM automation_rule WHERE id = $1`, id))
}

func (p *ruleRepoPG) Update(ctx context.Context, r *AutomationRule) error {
	_, err := conn(ctx, p.pool).Exec(ctx, `
		UPDATE automation_rule
		SET name = $2, event_type = $3, condition = $4, action_type = $5,
			enabled = $6, priority = $7, updated_at = now()
		WHERE id = $1`,
		r.ID, r.Name, r.EventType, r.Condition, r.ActionType, r.Enabled, r.Priority)
	return err
}

func (p *ruleRepoPG) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	_, err := conn(ctx, p.pool).Exec(ctx,
		`UPDATE automation_rule SET enabled = $2, updated_at = now() WHERE id = $1`, id, enabled)
	return err
}

func (p *ruleRepoPG) List(ctx context.Context, limit, offset int) ([]*AutomationRule, int, error) {
	var total int
	if err := conn(ctx, p.pool).QueryRow(ctx, `SELECT COUNT(*) FROM automation_rule`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, p.pool).Query(ctx,
		`SELECT `+ruleCols+` FROM automation_rule ORDER BY priority DESC, created_at LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*AutomationRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, r)
	}
	return items, total, rows.Err()
}

func (p *ruleRepoPG) ListByEvent(ctx context.Context, event EventType) ([]*AutomationRule, error) {
	rows, err := conn(ctx, p.pool).Query(ctx,
		`SELECT `+ruleCols+` FROM automation_rule WHERE event_type = $1 ORDER BY priority DESC, created_at`, event)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AutomationRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// =========== Execution Log Repository ===========

type executionLogRepoPG struct{ pool *pgxpool.Pool }

func NewExecutionLogRepoPG(pool *pgxpool.Pool) ExecutionLogRepository {
	return &executionLogRepoPG{pool: pool}
}

const logCols = `id, rule_id, claim_id, event_type, action_type, status, detail, executed_at`

func (p *executionLogRepoPG) Append(ctx context.Context, l *ExecutionLog) error {
	l.ID = uuid.New()
	if l.ExecutedAt.IsZero() {
		l.ExecutedAt = time.Now().UTC()
	}
	_, err := conn(ctx, p.pool).Exec(ctx, `
		INSERT INTO execution_log (id, rule_id, claim_id, event_type, action_type, status, detail, executed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		l.ID, l.RuleID, l.ClaimID, l.EventType, l.ActionType, l.Status, l.Detail, l.ExecutedAt)
	return err
}

func (p *executionLogRepoPG) ListByClaim(ctx context.Context, claimID uuid.UUID, limit, offset int) ([]*ExecutionLog, int, error) {
	var total int
	if err := conn(ctx, p.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM execution_log WHERE claim_id = $1`, claimID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, p.pool).Query(ctx,
		`SELECT `+logCols+` FROM execution_log WHERE claim_id = $1 ORDER BY executed_at DESC LIMIT $2 OFFSET $3`,
		claimID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ExecutionLog
	for rows.Next() {
		var l ExecutionLog
		if err := rows.Scan(&l.ID, &l.RuleID, &l.ClaimID, &l.EventType, &l.ActionType,
			&l.Status, &l.Detail, &l.ExecutedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &l)
	}
	return items, total, rows.Err()
}
