package drift

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimops/claimops/internal/platform/db"
)

// errAlreadyRecorded is internal to the store: it aborts the creation
// transaction when the existence check finds a prior event.
var errAlreadyRecorded = errors.New("drift event already recorded")

type eventStorePG struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewEventStorePG(pool *pgxpool.Pool, lockTimeout time.Duration) EventStore {
	return &eventStorePG{pool: pool, lockTimeout: lockTimeout}
}

// CreateLocked serializes concurrent drift writers on the customer row.
// One transaction covers the whole check-then-insert: SET LOCAL
// lock_timeout bounds the wait, SELECT FOR UPDATE takes the lock, then
// the existence check and insert run under it. Different customers
// proceed in parallel; only same-customer writers queue.
func (s *eventStorePG) CreateLocked(ctx context.Context, e *DriftEvent) (bool, error) {
	err := db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		tx := db.TxFromContext(ctx)

		// lock_timeout does not take bind parameters.
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}

		var lockedID uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM customer WHERE id = $1 FOR UPDATE`, e.CustomerID).Scan(&lockedID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("customer %s not found", e.CustomerID)
			}
			return fmt.Errorf("lock customer: %w", err)
		}

		var exists bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM drift_event
				WHERE customer_id = $1 AND payer_id = $2 AND metric = $3
				AND window_start = $4 AND window_end = $5
			)`,
			e.CustomerID, e.PayerID, e.Metric, e.WindowStart, e.WindowEnd).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check existing event: %w", err)
		}
		if exists {
			return errAlreadyRecorded
		}

		e.ID = uuid.New()
		e.DetectedAt = time.Now().UTC()
		_, err = tx.Exec(ctx, `
			INSERT INTO drift_event (id, customer_id, payer_id, metric, baseline_value,
				current_value, delta, window_start, window_end, detected_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			e.ID, e.CustomerID, e.PayerID, e.Metric, e.BaselineValue,
			e.CurrentValue, e.Delta, e.WindowStart, e.WindowEnd, e.DetectedAt)
		return err
	})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errAlreadyRecorded):
		return false, nil
	case db.IsUniqueViolation(err):
		// Another writer slipped in despite the lock. The constraint is
		// the second line of defense; treat it as already recorded.
		return false, nil
	case db.IsLockNotAvailable(err):
		return false, fmt.Errorf("%w: customer %s", ErrLockTimeout, e.CustomerID)
	default:
		return false, err
	}
}

const eventCols = `id, customer_id, payer_id, metric, baseline_value, current_value,
	delta, window_start, window_end, detected_at`

func (s *eventStorePG) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*DriftEvent, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM drift_event WHERE customer_id = $1`, customerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventCols+` FROM drift_event WHERE customer_id = $1 ORDER BY detected_at DESC LIMIT $2 OFFSET $3`,
		customerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*DriftEvent
	for rows.Next() {
		var e DriftEvent
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.PayerID, &e.Metric, &e.BaselineValue,
			&e.CurrentValue, &e.Delta, &e.WindowStart, &e.WindowEnd, &e.DetectedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &e)
	}
	return items, total, rows.Err()
}

// =========== Metric Source ===========

type metricSourcePG struct{ pool *pgxpool.Pool }

func NewMetricSourcePG(pool *pgxpool.Pool) MetricSource { return &metricSourcePG{pool: pool} }

// Sample aggregates decided claims only; pending claims have no outcome
// or latency to measure.
func (m *metricSourcePG) Sample(ctx context.Context, customerID, payerID uuid.UUID, metric Metric, window Window) (Sample, error) {
	var s Sample
	var err error
	switch metric {
	case MetricDenialRate:
		err = m.pool.QueryRow(ctx, `
			SELECT COALESCE(COUNT(*) FILTER (WHERE outcome = 'denied')::float / NULLIF(COUNT(*), 0), 0), COUNT(*)
			FROM claim
			WHERE customer_id = $1 AND payer_id = $2
			AND outcome IN ('approved', 'denied')
			AND decided_at >= $3 AND decided_at < $4`,
			customerID, payerID, window.Start, window.End).Scan(&s.Value, &s.Volume)
	case MetricDecisionTime:
		err = m.pool.QueryRow(ctx, `
			SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (decided_at - submitted_at)) / 3600), 0), COUNT(*)
			FROM claim
			WHERE customer_id = $1 AND payer_id = $2
			AND outcome IN ('approved', 'denied')
			AND decided_at >= $3 AND decided_at < $4`,
			customerID, payerID, window.Start, window.End).Scan(&s.Value, &s.Volume)
	default:
		return Sample{}, fmt.Errorf("unknown metric: %s", metric)
	}
	return s, err
}
