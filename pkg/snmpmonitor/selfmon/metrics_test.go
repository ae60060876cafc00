package selfmon_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/collector"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/scheduler"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/selfmon"
)

// value returns the value of the metric family name whose labels contain
// every pair in labels. Counters, gauges and histogram sample counts are
// supported.
func value(t *testing.T, m *selfmon.Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	next:
		for _, metric := range f.GetMetric() {
			have := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				have[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if have[k] != v {
					continue next
				}
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				return float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestObservers(t *testing.T) {
	m := selfmon.New(func() int { return 7 })

	m.DevicePolled(collector.Result{Success: true, Duration: time.Second})
	m.DevicePolled(collector.Result{Success: true, Duration: time.Second})
	m.DevicePolled(collector.Result{Err: errors.New("timeout")})
	m.DevicePolled(collector.Result{Err: fmt.Errorf("insert samples: %w", collector.ErrStore)})
	m.TickSkipped()
	m.CycleCompleted(scheduler.CycleReport{StartedAt: time.Unix(1700000000, 0), Duration: 3 * time.Second, Devices: 3})
	m.AlarmFired(&models.Alarm{Severity: models.SeverityCritical}, true)
	m.AlarmFired(&models.Alarm{Severity: models.SeverityCritical}, false)
	m.AlarmResolved(&models.Alarm{})
	m.AggregationRun(models.TierHourly, true, nil)
	m.AggregationRun(models.TierHourly, false, nil)
	m.AggregationRun(models.TierDaily, false, errors.New("db down"))
	_ = m.HandleBatch(context.Background(), models.SampleBatch{Samples: []models.Sample{
		{MetricType: models.MetricCPUUsage},
		{MetricType: models.MetricCPUUsage},
		{MetricType: models.MetricUptime},
	}})

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"snmpmon_device_polls_total", map[string]string{"outcome": "success"}, 2},
		{"snmpmon_device_polls_total", map[string]string{"outcome": "failure"}, 1},
		{"snmpmon_device_polls_total", map[string]string{"outcome": "store_error"}, 1},
		{"snmpmon_device_poll_duration_seconds", nil, 4},
		{"snmpmon_poll_ticks_skipped_total", nil, 1},
		{"snmpmon_poll_cycle_devices", nil, 3},
		{"snmpmon_poll_cycle_last_timestamp_seconds", nil, 1700000000},
		{"snmpmon_alarms_fired_total", map[string]string{"severity": "critical", "new": "true"}, 1},
		{"snmpmon_alarms_fired_total", map[string]string{"severity": "critical", "new": "false"}, 1},
		{"snmpmon_alarms_resolved_total", nil, 1},
		{"snmpmon_aggregation_runs_total", map[string]string{"tier": "hourly", "outcome": "applied"}, 1},
		{"snmpmon_aggregation_runs_total", map[string]string{"tier": "hourly", "outcome": "skipped"}, 1},
		{"snmpmon_aggregation_runs_total", map[string]string{"tier": "daily", "outcome": "error"}, 1},
		{"snmpmon_samples_written_total", map[string]string{"metric": "cpu_usage"}, 2},
		{"snmpmon_samples_written_total", map[string]string{"metric": "uptime"}, 1},
		{"snmpmon_counter_snapshots", nil, 7},
	}
	for _, tt := range tests {
		if got := value(t, m, tt.name, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}
}

func TestServer(t *testing.T) {
	m := selfmon.New(nil)
	m.TickSkipped()
	srv := httptest.NewServer(m.NewServer("").Handler)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "snmpmon_poll_ticks_skipped_total 1") {
		t.Errorf("/metrics missing skipped ticks:\n%s", body)
	}

	resp, err = srv.Client().Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("/healthz status = %d", resp.StatusCode)
	}
}
