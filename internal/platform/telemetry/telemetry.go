// Package telemetry exposes the engine's operational counters and gauges
// with a Prometheus text exposition endpoint, using only standard library
// constructs. The engine increments counters; the collection protocol is
// owned by whatever scrapes /metrics.
package telemetry

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Counter store — keyed by (metricName, label1, label2, ...)
// ---------------------------------------------------------------------------

type counterStore struct {
	mu    sync.RWMutex
	items map[string]*int64
}

func newCounterStore() *counterStore {
	return &counterStore{items: make(map[string]*int64)}
}

func (s *counterStore) inc(key string) {
	s.mu.RLock()
	p, ok := s.items[key]
	s.mu.RUnlock()
	if ok {
		atomic.AddInt64(p, 1)
		return
	}
	s.mu.Lock()
	p, ok = s.items[key]
	if !ok {
		v := int64(1)
		s.items[key] = &v
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	atomic.AddInt64(p, 1)
}

func (s *counterStore) get(key string) int64 {
	s.mu.RLock()
	p, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

func (s *counterStore) snapshot() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[string]int64, len(s.items))
	for k, p := range s.items {
		cp[k] = atomic.LoadInt64(p)
	}
	return cp
}

// ---------------------------------------------------------------------------
// Gauge store — keyed by name
// ---------------------------------------------------------------------------

type gaugeStore struct {
	mu    sync.RWMutex
	items map[string]*int64
}

func newGaugeStore() *gaugeStore {
	return &gaugeStore{items: make(map[string]*int64)}
}

func (s *gaugeStore) set(name string, val int64) {
	s.mu.RLock()
	p, ok := s.items[name]
	s.mu.RUnlock()
	if ok {
		atomic.StoreInt64(p, val)
		return
	}
	s.mu.Lock()
	p, ok = s.items[name]
	if !ok {
		v := val
		s.items[name] = &v
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	atomic.StoreInt64(p, val)
}

func (s *gaugeStore) get(name string) int64 {
	s.mu.RLock()
	p, ok := s.items[name]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

// ---------------------------------------------------------------------------
// Provider — the main entry point
// ---------------------------------------------------------------------------

// Provider manages the engine's metric state.
type Provider struct {
	serviceName    string
	serviceVersion string

	counters *counterStore
	gauges   *gaugeStore
}

// NewProvider creates and initialises the metrics provider.
func NewProvider(serviceName, serviceVersion string) *Provider {
	if serviceName == "" {
		serviceName = "claims-server"
	}
	if serviceVersion == "" {
		serviceVersion = "0.0.0"
	}
	return &Provider{
		serviceName:    serviceName,
		serviceVersion: serviceVersion,
		counters:       newCounterStore(),
		gauges:         newGaugeStore(),
	}
}

// ClaimScored increments the scored-claims counter for the routed tier.
func (p *Provider) ClaimScored(tier int) {
	p.counters.inc(fmt.Sprintf("claims.scored|%d", tier))
}

// RuleExecution increments the rule execution counter by outcome status
// (success, failed, skipped).
func (p *Provider) RuleExecution(status string) {
	p.counters.inc("rules.executions|" + status)
}

// DriftEventDetected increments the drift event counter for a metric type.
func (p *Provider) DriftEventDetected(metric string) {
	p.counters.inc("drift.events|" + metric)
}

// DriftDuplicateSuppressed counts drift inserts suppressed by the
// uniqueness constraint — a healthy signal under concurrent recomputation.
func (p *Provider) DriftDuplicateSuppressed() {
	p.counters.inc("drift.suppressed")
}

// ReportRunCompleted increments the report run counter by final status
// (ready, failed).
func (p *Provider) ReportRunCompleted(status string) {
	p.counters.inc("reports.runs|" + status)
}

// SetWorkQueueDepth records the current number of claims awaiting review.
func (p *Provider) SetWorkQueueDepth(n int64) {
	p.gauges.set("work_queue.depth", n)
}

// GetCounter returns the current value of a counter key, for tests.
func (p *Provider) GetCounter(key string) int64 {
	return p.counters.get(key)
}

// GetGauge returns the current value of the named gauge.
func (p *Provider) GetGauge(name string) int64 {
	return p.gauges.get(name)
}

// ---------------------------------------------------------------------------
// PrometheusHandler
// ---------------------------------------------------------------------------

// PrometheusHandler returns an Echo handler that serves metrics in
// Prometheus text exposition format at /metrics.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder
		counters := p.counters.snapshot()

		b.WriteString("# HELP claims_scored_total Total claims scored, by automation tier.\n")
		b.WriteString("# TYPE claims_scored_total counter\n")
		writeLabeled(&b, counters, "claims.scored", "claims_scored_total", "tier")
		b.WriteByte('\n')

		b.WriteString("# HELP rule_executions_total Total automation rule executions, by outcome.\n")
		b.WriteString("# TYPE rule_executions_total counter\n")
		writeLabeled(&b, counters, "rules.executions", "rule_executions_total", "status")
		b.WriteByte('\n')

		b.WriteString("# HELP drift_events_total Total payer drift events detected, by metric.\n")
		b.WriteString("# TYPE drift_events_total counter\n")
		writeLabeled(&b, counters, "drift.events", "drift_events_total", "metric")
		b.WriteByte('\n')

		b.WriteString("# HELP drift_duplicates_suppressed_total Drift inserts suppressed by the uniqueness constraint.\n")
		b.WriteString("# TYPE drift_duplicates_suppressed_total counter\n")
		fmt.Fprintf(&b, "drift_duplicates_suppressed_total %d\n\n", counters["drift.suppressed"])

		b.WriteString("# HELP report_runs_total Total report runs completed, by final status.\n")
		b.WriteString("# TYPE report_runs_total counter\n")
		writeLabeled(&b, counters, "reports.runs", "report_runs_total", "status")
		b.WriteByte('\n')

		b.WriteString("# HELP work_queue_depth Claims currently awaiting human review.\n")
		b.WriteString("# TYPE work_queue_depth gauge\n")
		fmt.Fprintf(&b, "work_queue_depth %d\n", p.gauges.get("work_queue.depth"))

		return c.String(http.StatusOK, b.String())
	}
}

// writeLabeled emits every counter under prefix as promName{label="value"}.
func writeLabeled(b *strings.Builder, counters map[string]int64, prefix, promName, label string) {
	for key, val := range counters {
		parts := strings.SplitN(key, "|", 2)
		if len(parts) == 2 && parts[0] == prefix {
			fmt.Fprintf(b, "%s{%s=%q} %d\n", promName, label, parts[1], val)
		}
	}
}
