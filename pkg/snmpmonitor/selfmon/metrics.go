// Package selfmon exposes the monitor's own health as Prometheus metrics.
// A Metrics value implements the observer interfaces of the scheduler, the
// alarm engine and the aggregation service, and the collector's sample sink.
package selfmon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/collector"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/scheduler"
)

const namespace = "snmpmon"

// Metrics holds every self-monitoring collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	polls          *prometheus.CounterVec
	pollDuration   prometheus.Histogram
	cycleDuration  prometheus.Histogram
	cycleDevices   prometheus.Gauge
	lastCycle      prometheus.Gauge
	skippedTicks   prometheus.Counter
	samples        *prometheus.CounterVec
	alarmsFired    *prometheus.CounterVec
	alarmsResolved prometheus.Counter
	aggRuns        *prometheus.CounterVec
}

// New registers the collectors on a fresh registry. counterEntries, when
// non-nil, is sampled on every scrape for the counter snapshot gauge.
func New(counterEntries func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_polls_total",
			Help:      "Device collection passes by outcome.",
		}, []string{"outcome"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "device_poll_duration_seconds",
			Help:      "Duration of one device collection pass.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Duration of one polling cycle over all due devices.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		cycleDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_cycle_devices",
			Help:      "Devices polled in the last cycle.",
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_cycle_last_timestamp_seconds",
			Help:      "Unix time the last polling cycle started.",
		}),
		skippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_skipped_total",
			Help:      "Scheduler ticks skipped because a cycle was still running.",
		}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_written_total",
			Help:      "Samples persisted, by metric type.",
		}, []string{"metric"}),
		alarmsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarms_fired_total",
			Help:      "Alarm firings by severity and whether a new alarm was opened.",
		}, []string{"severity", "new"}),
		alarmsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarms_resolved_total",
			Help:      "Alarms resolved automatically or by an operator.",
		}),
		aggRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_runs_total",
			Help:      "Aggregation window runs by tier and outcome.",
		}, []string{"tier", "outcome"}),
	}

	m.registry.MustRegister(
		m.polls,
		m.pollDuration,
		m.cycleDuration,
		m.cycleDevices,
		m.lastCycle,
		m.skippedTicks,
		m.samples,
		m.alarmsFired,
		m.alarmsResolved,
		m.aggRuns,
		collectors.NewGoCollector(),
	)
	if counterEntries != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "counter_snapshots",
			Help:      "Counter snapshots held for rate computation.",
		}, func() float64 { return float64(counterEntries()) }))
	}
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ─────────────────────────────────────────────────────────────────────────────
// Observers
// ─────────────────────────────────────────────────────────────────────────────

// TickSkipped implements scheduler.Observer.
func (m *Metrics) TickSkipped() { m.skippedTicks.Inc() }

// CycleCompleted implements scheduler.Observer.
func (m *Metrics) CycleCompleted(r scheduler.CycleReport) {
	m.cycleDuration.Observe(r.Duration.Seconds())
	m.cycleDevices.Set(float64(r.Devices))
	m.lastCycle.Set(float64(r.StartedAt.Unix()))
}

// DevicePolled implements scheduler.Observer.
func (m *Metrics) DevicePolled(r collector.Result) {
	outcome := "success"
	switch {
	case errors.Is(r.Err, collector.ErrStore):
		outcome = "store_error"
	case !r.Success:
		outcome = "failure"
	}
	m.polls.WithLabelValues(outcome).Inc()
	m.pollDuration.Observe(r.Duration.Seconds())
}

// AlarmFired implements alarm.Observer.
func (m *Metrics) AlarmFired(a *models.Alarm, created bool) {
	isNew := "false"
	if created {
		isNew = "true"
	}
	m.alarmsFired.WithLabelValues(string(a.Severity), isNew).Inc()
}

// AlarmResolved implements alarm.Observer.
func (m *Metrics) AlarmResolved(*models.Alarm) { m.alarmsResolved.Inc() }

// AggregationRun implements aggregation.Observer.
func (m *Metrics) AggregationRun(tier models.Tier, applied bool, err error) {
	outcome := "applied"
	switch {
	case err != nil:
		outcome = "error"
	case !applied:
		outcome = "skipped"
	}
	m.aggRuns.WithLabelValues(string(tier), outcome).Inc()
}

// HandleBatch implements collector.SampleSink.
func (m *Metrics) HandleBatch(_ context.Context, b models.SampleBatch) error {
	for _, s := range b.Samples {
		m.samples.WithLabelValues(string(s.MetricType)).Inc()
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Server
// ─────────────────────────────────────────────────────────────────────────────

// NewServer returns an HTTP server exposing /metrics and /healthz on addr.
func (m *Metrics) NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
