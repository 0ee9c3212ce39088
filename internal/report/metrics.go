package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus collectors for launched processes.
// Each instance owns its registry so several can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	launches     *prometheus.CounterVec
	exits        *prometheus.CounterVec
	up           *prometheus.GaugeVec
	residentMem  *prometheus.GaugeVec
	cpuPercent   *prometheus.GaugeVec
	runDurations *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		launches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecolaunch_launches_total",
				Help: "Total processes started",
			},
			[]string{"app"},
		),
		exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecolaunch_exits_total",
				Help: "Total process exits by reason",
			},
			[]string{"app", "reason"},
		),
		up: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ecolaunch_process_up",
				Help: "1 while the process is running",
			},
			[]string{"app"},
		),
		residentMem: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ecolaunch_process_resident_memory_bytes",
				Help: "Resident memory of the launched process",
			},
			[]string{"app"},
		),
		cpuPercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ecolaunch_process_cpu_percent",
				Help: "CPU usage of the launched process (100 = one core)",
			},
			[]string{"app"},
		),
		runDurations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ecolaunch_run_duration_seconds",
				Help:    "How long launched processes ran",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"app"},
		),
	}

	m.registry.MustRegister(
		m.launches,
		m.exits,
		m.up,
		m.residentMem,
		m.cpuPercent,
		m.runDurations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry for handlers and exporters
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordStart marks the app as running
func (m *Metrics) RecordStart(app string) {
	m.launches.WithLabelValues(app).Inc()
	m.up.WithLabelValues(app).Set(1)
}

// RecordSample updates resource gauges from a process sample
func (m *Metrics) RecordSample(app string, rssBytes uint64, cpuPercent float64) {
	m.residentMem.WithLabelValues(app).Set(float64(rssBytes))
	m.cpuPercent.WithLabelValues(app).Set(cpuPercent)
}

// RecordResult updates counters from a finished run.
// This is the only place exit metrics change.
func (m *Metrics) RecordResult(r *Result) {
	m.up.WithLabelValues(r.App).Set(0)
	m.exits.WithLabelValues(r.App, string(r.ExitReason)).Inc()
	m.runDurations.WithLabelValues(r.App).Observe(r.Duration.Seconds())
	m.cpuPercent.WithLabelValues(r.App).Set(0)
	m.residentMem.WithLabelValues(r.App).Set(0)
}
