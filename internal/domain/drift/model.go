package drift

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLockTimeout means the customer row lock could not be acquired
// within the bounded wait. The caller retries with backoff; the
// condition is never silently dropped.
var ErrLockTimeout = errors.New("timed out waiting for customer drift lock")

// Metric is a payer behavior aggregate the detector watches.
type Metric string

const (
	// MetricDenialRate is denied/total over decided claims.
	MetricDenialRate Metric = "denial_rate"
	// MetricDecisionTime is mean submitted-to-decided hours.
	MetricDecisionTime Metric = "decision_time"
)

func (m Metric) Valid() bool {
	return m == MetricDenialRate || m == MetricDecisionTime
}

// Metrics lists every watched metric, in detection order.
func Metrics() []Metric {
	return []Metric{MetricDenialRate, MetricDecisionTime}
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// TrailingWindow returns the days-long window ending at end.
func TrailingWindow(end time.Time, days int) Window {
	return Window{Start: end.AddDate(0, 0, -days), End: end}
}

// Sample is a metric aggregate over one window. Volume is the number of
// decided claims backing the value.
type Sample struct {
	Value  float64
	Volume int
}

// DriftEvent records one detected behavioral shift. Immutable once
// created; at most one exists per (customer, payer, metric, window).
type DriftEvent struct {
	ID            uuid.UUID `db:"id" json:"id"`
	CustomerID    uuid.UUID `db:"customer_id" json:"customer_id"`
	PayerID       uuid.UUID `db:"payer_id" json:"payer_id"`
	Metric        Metric    `db:"metric" json:"metric"`
	BaselineValue float64   `db:"baseline_value" json:"baseline_value"`
	CurrentValue  float64   `db:"current_value" json:"current_value"`
	Delta         float64   `db:"delta" json:"delta"`
	WindowStart   time.Time `db:"window_start" json:"window_start"`
	WindowEnd     time.Time `db:"window_end" json:"window_end"`
	DetectedAt    time.Time `db:"detected_at" json:"detected_at"`
}
