package export

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for exports.
type Metrics struct {
	exports *prometheus.CounterVec
	rows    *prometheus.CounterVec
	capHits *prometheus.CounterVec
	batches *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers export metrics against registerer, or the default registerer
// when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	exports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_exports_total",
		Help: "Exports partitioned by table, format and status.",
	}, []string{"table", "format", "status"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_export_rows_total",
		Help: "Rows written to export files per table.",
	}, []string{"table"})
	capHits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_export_cap_hits_total",
		Help: "Exports truncated by the batch safety cap.",
	}, []string{"table"})
	batches := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backoffice_export_batches",
		Help:    "Batches fetched per export.",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	}, []string{"table"})
	registerer.MustRegister(exports, rows, capHits, batches)
	return &Metrics{exports: exports, rows: rows, capHits: capHits, batches: batches}
}

func (m *Metrics) observe(table string, format Format, res Result, batches int, capped bool) {
	if m == nil {
		return
	}
	status := "success"
	if !res.Success {
		status = "failure"
	}
	m.exports.WithLabelValues(table, string(format), status).Inc()
	if res.Success {
		m.rows.WithLabelValues(table).Add(float64(res.Count))
	}
	if capped {
		m.capHits.WithLabelValues(table).Inc()
	}
	m.batches.WithLabelValues(table).Observe(float64(batches))
}
