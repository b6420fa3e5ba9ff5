package anomaly

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tiliavir/ttt-anomalies/internal/model"
)

// recentRuns is the number of runs averaged into AverageRunMs.
const recentRuns = 10

// PerformanceMetrics describes the most recent committed run.
type PerformanceMetrics struct {
	LastRunMs         int64   `json:"last_run_ms"`
	AverageRunMs      int64   `json:"average_run_ms"`
	TotalRuns         int     `json:"total_runs"`
	BucketsRecomputed int     `json:"buckets_recomputed"`
	BucketsCached     int     `json:"buckets_cached"`
	CacheHitRatio     float64 `json:"cache_hit_ratio"`
	SkippedEntries    int     `json:"skipped_entries"`
	DiscardedRuns     int     `json:"discarded_runs"`
	FailedRuns        int     `json:"failed_runs"`
}

// Monitor records run timings and cache effectiveness, and mirrors them into
// Prometheus collectors when a registerer is supplied.
type Monitor struct {
	enabled bool

	mu      sync.Mutex
	metrics PerformanceMetrics
	recent  []time.Duration

	runDuration prometheus.Histogram
	buckets     *prometheus.CounterVec
	runs        *prometheus.CounterVec
	skipped     prometheus.Counter
	anomalies   *prometheus.GaugeVec
}

// NewMonitor builds a monitor. A nil registerer keeps the collectors
// unregistered; a disabled monitor records nothing. A non-empty instance is
// added as the "engine" label so several engines can share a registerer;
// engines registering the same label share their collectors.
func NewMonitor(enabled bool, reg prometheus.Registerer, instance string) (*Monitor, error) {
	var labels prometheus.Labels
	if instance != "" {
		labels = prometheus.Labels{"engine": instance}
	}
	m := &Monitor{enabled: enabled}
	var err error
	if m.runDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   "tta",
		Subsystem:   "anomaly",
		Name:        "run_duration_seconds",
		Help:        "Duration of committed anomaly detection runs in seconds",
		ConstLabels: labels,
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})); err != nil {
		return nil, err
	}
	if m.buckets, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "tta",
		Subsystem:   "anomaly",
		Name:        "buckets_total",
		Help:        "User-days evaluated, by whether the cached classification was reused",
		ConstLabels: labels,
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if m.runs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "tta",
		Subsystem:   "anomaly",
		Name:        "runs_total",
		Help:        "Anomaly detection runs by outcome",
		ConstLabels: labels,
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if m.skipped, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "tta",
		Subsystem:   "anomaly",
		Name:        "skipped_entries_total",
		Help:        "Malformed time entries left out of aggregation",
		ConstLabels: labels,
	})); err != nil {
		return nil, err
	}
	if m.anomalies, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   "tta",
		Subsystem:   "anomaly",
		Name:        "current",
		Help:        "Anomalies currently held, by type and status",
		ConstLabels: labels,
	}, []string{"type", "status"})); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing the collector already registered under the
// same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if reg == nil {
		return c, nil
	}
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, fmt.Errorf("register anomaly metrics: %w", err)
}

// RecordRun stores the figures of a committed run.
func (m *Monitor) RecordRun(d time.Duration, recomputed, cached, skipped int) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	m.recent = append(m.recent, d)
	if len(m.recent) > recentRuns {
		m.recent = m.recent[1:]
	}
	var sum time.Duration
	for _, r := range m.recent {
		sum += r
	}
	m.metrics.LastRunMs = d.Milliseconds()
	m.metrics.AverageRunMs = (sum / time.Duration(len(m.recent))).Milliseconds()
	m.metrics.TotalRuns++
	m.metrics.BucketsRecomputed = recomputed
	m.metrics.BucketsCached = cached
	m.metrics.SkippedEntries = skipped
	if total := recomputed + cached; total > 0 {
		m.metrics.CacheHitRatio = float64(cached) / float64(total)
	} else {
		m.metrics.CacheHitRatio = 0
	}
	m.mu.Unlock()

	m.runDuration.Observe(d.Seconds())
	m.buckets.WithLabelValues("recomputed").Add(float64(recomputed))
	m.buckets.WithLabelValues("cached").Add(float64(cached))
	m.runs.WithLabelValues("committed").Inc()
	m.skipped.Add(float64(skipped))
}

// RecordDiscard counts a run superseded by a newer generation.
func (m *Monitor) RecordDiscard() {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	m.metrics.DiscardedRuns++
	m.mu.Unlock()
	m.runs.WithLabelValues("discarded").Inc()
}

// RecordFailure counts a run that returned an error.
func (m *Monitor) RecordFailure() {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	m.metrics.FailedRuns++
	m.mu.Unlock()
	m.runs.WithLabelValues("failed").Inc()
}

// ObserveAnomalies publishes the per type and status counts of a snapshot.
func (m *Monitor) ObserveAnomalies(snapshot []model.Anomaly) {
	if !m.enabled {
		return
	}
	m.anomalies.Reset()
	for _, a := range snapshot {
		m.anomalies.WithLabelValues(string(a.Type), string(a.Status)).Inc()
	}
}

// Metrics returns a copy of the current figures.
func (m *Monitor) Metrics() PerformanceMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}
