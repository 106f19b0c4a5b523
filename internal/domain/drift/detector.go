package drift

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimops/claimops/internal/domain/claims"
	"github.com/claimops/claimops/internal/platform/telemetry"
)

// epsilon keeps the relative-change division defined when the baseline
// is zero.
const epsilon = 1e-9

// MetricSource aggregates one metric over one window.
type MetricSource interface {
	Sample(ctx context.Context, customerID, payerID uuid.UUID, metric Metric, window Window) (Sample, error)
}

// EventStore persists drift events. CreateLocked is the system's one
// mandatory critical section: the existence check and insert must
// execute atomically under an exclusive lock on the owning customer,
// with the uniqueness constraint as a second line of defense. It
// returns created=false when another writer already recorded the
// window.
type EventStore interface {
	CreateLocked(ctx context.Context, e *DriftEvent) (created bool, err error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*DriftEvent, int, error)
}

// EventPublisher fans a newly recorded event out to external consumers.
// Publication failures are the publisher's problem; a recorded event is
// never rolled back over one.
type EventPublisher interface {
	DriftDetected(ctx context.Context, event *DriftEvent)
}

// Detector compares a payer's current-window behavior against its
// trailing baseline and records a DriftEvent when the relative change
// reaches the customer's threshold.
type Detector struct {
	source    MetricSource
	store     EventStore
	telemetry *telemetry.Provider
	publisher EventPublisher
	log       zerolog.Logger
}

func NewDetector(source MetricSource, store EventStore, tel *telemetry.Provider, log zerolog.Logger) *Detector {
	return &Detector{
		source:    source,
		store:     store,
		telemetry: tel,
		log:       log.With().Str("component", "drift").Logger(),
	}
}

// SetPublisher attaches the outbound event hook.
func (d *Detector) SetPublisher(p EventPublisher) { d.publisher = p }

// Detect evaluates one (customer, payer, metric) tuple for the given
// current window. The baseline covers the customer's configured number
// of trailing days ending where the current window starts.
//
// It returns (nil, nil) when there is no drift, when either window
// lacks the customer's minimum decided-claim volume, or when the event
// for this window is already recorded — re-detection is an idempotent
// no-op. ErrLockTimeout surfaces for caller retry.
func (d *Detector) Detect(ctx context.Context, customer *claims.Customer, payer *claims.Payer, metric Metric, window Window) (*DriftEvent, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("unknown metric: %s", metric)
	}

	baselineWindow := TrailingWindow(window.Start, customer.BaselineWindowDays)
	baseline, err := d.source.Sample(ctx, customer.ID, payer.ID, metric, baselineWindow)
	if err != nil {
		return nil, fmt.Errorf("sample baseline: %w", err)
	}
	current, err := d.source.Sample(ctx, customer.ID, payer.ID, metric, window)
	if err != nil {
		return nil, fmt.Errorf("sample current window: %w", err)
	}

	// Below minimum volume the comparison is statistically meaningless;
	// insufficient data is not drift.
	if baseline.Volume < customer.MinVolume || current.Volume < customer.MinVolume {
		return nil, nil
	}

	relChange := math.Abs(current.Value-baseline.Value) / math.Max(baseline.Value, epsilon)
	if relChange < customer.DriftThreshold {
		return nil, nil
	}

	event := &DriftEvent{
		CustomerID:    customer.ID,
		PayerID:       payer.ID,
		Metric:        metric,
		BaselineValue: baseline.Value,
		CurrentValue:  current.Value,
		Delta:         current.Value - baseline.Value,
		WindowStart:   window.Start,
		WindowEnd:     window.End,
	}
	created, err := d.store.CreateLocked(ctx, event)
	if err != nil {
		return nil, err
	}
	if !created {
		d.telemetry.DriftDuplicateSuppressed()
		return nil, nil
	}

	d.telemetry.DriftEventDetected(string(metric))
	d.log.Info().
		Str("customer_id", customer.ID.String()).
		Str("payer_id", payer.ID.String()).
		Str("metric", string(metric)).
		Float64("baseline", baseline.Value).
		Float64("current", current.Value).
		Msg("payer drift detected")
	if d.publisher != nil {
		d.publisher.DriftDetected(ctx, event)
	}
	return event, nil
}

// ListEvents returns recorded drift events for a customer, newest first.
func (d *Detector) ListEvents(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*DriftEvent, int, error) {
	return d.store.ListByCustomer(ctx, customerID, limit, offset)
}
