package core

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives one observation per Store operation. applied is
// false when the operation was a no-op (unknown id, stale timer).
type MetricsRecorder interface {
	Observe(op Op, applied bool, d time.Duration)
	ObserveSize(n int)
}

type noopMetrics struct{}

func (noopMetrics) Observe(Op, bool, time.Duration) {}
func (noopMetrics) ObserveSize(int)                 {}

func resultLabel(applied bool) string {
	if applied {
		return "applied"
	}
	return "noop"
}

var expvarSeq uint64

// ExpvarMetricsRecorder publishes per-operation totals via expvar, for
// deployments that do not scrape Prometheus.
type ExpvarMetricsRecorder struct {
	name      string
	mu        sync.Mutex
	durations map[Op]float64
	results   map[Op]map[string]int64
	houses    int
}

// ExpvarMetricsSnapshot is a read-only view of the recorded metrics.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[Op]float64          `json:"durations_ms_total"`
	Results     map[Op]map[string]int64 `json:"results_total"`
	Houses      int                     `json:"houses"`
	RecordedAt  time.Time               `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name. An empty name
// gets a generated unique one.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("citybuilder_store_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{
		name:      name,
		durations: make(map[Op]float64),
		results:   make(map[Op]map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot returns a copy of the aggregated metrics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	durations := make(map[Op]float64, len(r.durations))
	for op, total := range r.durations {
		durations[op] = total
	}
	results := make(map[Op]map[string]int64, len(r.results))
	for op, counts := range r.results {
		cpy := make(map[string]int64, len(counts))
		for k, v := range counts {
			cpy[k] = v
		}
		results[op] = cpy
	}
	return ExpvarMetricsSnapshot{
		DurationsMS: durations,
		Results:     results,
		Houses:      r.houses,
		RecordedAt:  time.Now().UTC(),
	}
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(op Op, applied bool, d time.Duration) {
	if op == "" {
		return
	}
	r.mu.Lock()
	r.durations[op] += float64(d) / float64(time.Millisecond)
	if _, ok := r.results[op]; !ok {
		r.results[op] = make(map[string]int64, 2)
	}
	r.results[op][resultLabel(applied)]++
	r.mu.Unlock()
}

// ObserveSize implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) ObserveSize(n int) {
	r.mu.Lock()
	r.houses = n
	r.mu.Unlock()
}

// PrometheusRecorder exports Store metrics as Prometheus collectors.
type PrometheusRecorder struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
	houses   prometheus.Gauge
}

// NewPrometheusRecorder registers the Store collectors with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citybuilder",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "House collection operations by result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "citybuilder",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Time spent applying house collection operations.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}, []string{"op"}),
		houses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "citybuilder",
			Name:      "houses",
			Help:      "Houses currently in the collection, including ones awaiting purge.",
		}),
	}
	for _, c := range []prometheus.Collector{r.ops, r.duration, r.houses} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register store metrics: %w", err)
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusRecorder) Observe(op Op, applied bool, d time.Duration) {
	r.ops.WithLabelValues(string(op), resultLabel(applied)).Inc()
	r.duration.WithLabelValues(string(op)).Observe(d.Seconds())
}

// ObserveSize implements MetricsRecorder.
func (r *PrometheusRecorder) ObserveSize(n int) { r.houses.Set(float64(n)) }

// MultiRecorder fans observations out to several recorders.
type MultiRecorder []MetricsRecorder

// Observe implements MetricsRecorder.
func (m MultiRecorder) Observe(op Op, applied bool, d time.Duration) {
	for _, r := range m {
		r.Observe(op, applied, d)
	}
}

// ObserveSize implements MetricsRecorder.
func (m MultiRecorder) ObserveSize(n int) {
	for _, r := range m {
		r.ObserveSize(n)
	}
}
