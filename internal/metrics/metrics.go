// Package metrics records import pipeline activity. Counters are kept both
// as atomics for the JSON stats endpoint and in a Prometheus registry for
// scraping.
package metrics

import (
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
	OutcomePanic   = "panic"
)

type Metrics struct {
	startTime time.Time

	importsTotal   atomic.Int64
	importsValid   atomic.Int64
	importsInvalid atomic.Int64
	importsPanic   atomic.Int64
	itemsImported  atomic.Int64
	rowErrors      atomic.Int64

	uploads         atomic.Int64
	cleanupFailures atomic.Int64
	duplicates      atomic.Int64
	activeImports   atomic.Int64

	durations     []time.Duration
	durationsLock sync.Mutex

	byFormat     map[string]*atomic.Int64
	byFormatLock sync.Mutex

	registry       *prometheus.Registry
	promImports    *prometheus.CounterVec
	promItems      *prometheus.CounterVec
	promRowErrors  *prometheus.CounterVec
	promDuration   *prometheus.HistogramVec
	promUploads    prometheus.Counter
	promCleanup    prometheus.Counter
	promDuplicates *prometheus.CounterVec
	promActive     prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

func New() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
		durations: make([]time.Duration, 0, 1000),
		byFormat:  make(map[string]*atomic.Int64),
		registry:  prometheus.NewRegistry(),
	}

	m.promImports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chravel_imports_total",
		Help: "Import calls by kind, source format and outcome",
	}, []string{"kind", "format", "outcome"})
	m.promItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chravel_import_items_total",
		Help: "Items returned by successful imports",
	}, []string{"kind", "format"})
	m.promRowErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chravel_import_errors_total",
		Help: "Error strings attached to import results",
	}, []string{"kind", "format"})
	m.promDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chravel_import_duration_seconds",
		Help:    "Import call latency",
		Buckets: []float64{.005, .025, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"kind", "format"})
	m.promUploads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chravel_temp_uploads_total",
		Help: "Temporary objects uploaded for AI extraction",
	})
	m.promCleanup = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chravel_temp_cleanup_failures_total",
		Help: "Temporary objects whose removal failed",
	})
	m.promDuplicates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chravel_duplicates_total",
		Help: "Items flagged as duplicates of stored items",
	}, []string{"kind"})
	m.promActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chravel_active_imports",
		Help: "Imports currently running",
	})

	m.registry.MustRegister(
		m.promImports, m.promItems, m.promRowErrors, m.promDuration,
		m.promUploads, m.promCleanup, m.promDuplicates, m.promActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordImport counts one finished import call.
func (m *Metrics) RecordImport(kind, format, outcome string, items, errs int, d time.Duration) {
	m.importsTotal.Add(1)
	switch outcome {
	case OutcomeValid:
		m.importsValid.Add(1)
		m.itemsImported.Add(int64(items))
	case OutcomePanic:
		m.importsPanic.Add(1)
	default:
		m.importsInvalid.Add(1)
	}
	m.rowErrors.Add(int64(errs))

	m.byFormatLock.Lock()
	c, ok := m.byFormat[format]
	if !ok {
		c = &atomic.Int64{}
		m.byFormat[format] = c
	}
	m.byFormatLock.Unlock()
	c.Add(1)

	m.durationsLock.Lock()
	if len(m.durations) >= 1000 {
		m.durations = m.durations[1:]
	}
	m.durations = append(m.durations, d)
	m.durationsLock.Unlock()

	m.promImports.WithLabelValues(kind, format, outcome).Inc()
	m.promItems.WithLabelValues(kind, format).Add(float64(items))
	m.promRowErrors.WithLabelValues(kind, format).Add(float64(errs))
	m.promDuration.WithLabelValues(kind, format).Observe(d.Seconds())
}

func (m *Metrics) RecordUpload() {
	m.uploads.Add(1)
	m.promUploads.Inc()
}

func (m *Metrics) RecordCleanupFailure() {
	m.cleanupFailures.Add(1)
	m.promCleanup.Inc()
}

func (m *Metrics) RecordDuplicates(kind string, n int) {
	m.duplicates.Add(int64(n))
	m.promDuplicates.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) ImportStarted() {
	m.activeImports.Add(1)
	m.promActive.Inc()
}

func (m *Metrics) ImportFinished() {
	m.activeImports.Add(-1)
	m.promActive.Dec()
}

// Registry exposes the Prometheus registry for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type Snapshot struct {
	Uptime          time.Duration    `json:"uptime"`
	ImportsTotal    int64            `json:"imports_total"`
	ImportsValid    int64            `json:"imports_valid"`
	ImportsInvalid  int64            `json:"imports_invalid"`
	ImportsPanic    int64            `json:"imports_panic"`
	ItemsImported   int64            `json:"items_imported"`
	RowErrors       int64            `json:"row_errors"`
	Uploads         int64            `json:"uploads"`
	CleanupFailures int64            `json:"cleanup_failures"`
	Duplicates      int64            `json:"duplicates"`
	ActiveImports   int64            `json:"active_imports"`
	AvgDuration     time.Duration    `json:"avg_duration"`
	P99Duration     time.Duration    `json:"p99_duration"`
	ByFormat        map[string]int64 `json:"by_format"`
	SuccessRate     float64          `json:"success_rate"`
}

func (m *Metrics) Snapshot() *Snapshot {
	s := &Snapshot{
		Uptime:          time.Since(m.startTime),
		ImportsTotal:    m.importsTotal.Load(),
		ImportsValid:    m.importsValid.Load(),
		ImportsInvalid:  m.importsInvalid.Load(),
		ImportsPanic:    m.importsPanic.Load(),
		ItemsImported:   m.itemsImported.Load(),
		RowErrors:       m.rowErrors.Load(),
		Uploads:         m.uploads.Load(),
		CleanupFailures: m.cleanupFailures.Load(),
		Duplicates:      m.duplicates.Load(),
		ActiveImports:   m.activeImports.Load(),
		ByFormat:        make(map[string]int64),
	}

	if s.ImportsTotal > 0 {
		s.SuccessRate = float64(s.ImportsValid) / float64(s.ImportsTotal) * 100
	}

	m.durationsLock.Lock()
	if len(m.durations) > 0 {
		var total time.Duration
		for _, d := range m.durations {
			total += d
		}
		s.AvgDuration = total / time.Duration(len(m.durations))

		sorted := make([]time.Duration, len(m.durations))
		copy(sorted, m.durations)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		p99Index := int(float64(len(sorted)) * 0.99)
		if p99Index >= len(sorted) {
			p99Index = len(sorted) - 1
		}
		s.P99Duration = sorted[p99Index]
	}
	m.durationsLock.Unlock()

	m.byFormatLock.Lock()
	for k, v := range m.byFormat {
		s.ByFormat[k] = v.Load()
	}
	m.byFormatLock.Unlock()

	return s
}
