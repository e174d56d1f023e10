// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the scan pipeline's instruments. All methods are safe for
// concurrent use.
type Metrics struct {
	scansInitiated *prometheus.CounterVec
	scansFinished  *prometheus.CounterVec
	scanDuration   prometheus.Histogram
	queueDepth     prometheus.Gauge
}

// New creates and registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scansInitiated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "axescan_scans_initiated_total",
			Help: "Scan initiation requests, partitioned by cache outcome.",
		}, []string{"cached"}),
		scansFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "axescan_scans_finished_total",
			Help: "Scans reaching a terminal state, partitioned by status.",
		}, []string{"status"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "axescan_scan_duration_seconds",
			Help:    "Wall time of scan execution from dequeue to terminal write.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 45, 60, 90, 120},
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "axescan_queue_depth",
			Help: "Scan jobs waiting in the execution queue.",
		}),
	}
	reg.MustRegister(m.scansInitiated, m.scansFinished, m.scanDuration, m.queueDepth)
	return m
}

func (m *Metrics) ScanInitiated(cached bool) {
	label := "false"
	if cached {
		label = "true"
	}
	m.scansInitiated.WithLabelValues(label).Inc()
}

func (m *Metrics) ScanFinished(status string, took time.Duration) {
	m.scansFinished.WithLabelValues(status).Inc()
	m.scanDuration.Observe(took.Seconds())
}

func (m *Metrics) QueueDepthInc() { m.queueDepth.Inc() }
func (m *Metrics) QueueDepthDec() { m.queueDepth.Dec() }
