package aggregation_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/aggregation"
)

// ─────────────────────────────────────────────────────────────────────────────
// fakeStore — ledger and upsert semantics in memory
// ─────────────────────────────────────────────────────────────────────────────

type window struct {
	tier  models.Tier
	start time.Time
}

type rowKey struct {
	tier   models.Tier
	metric models.MetricType
	bucket time.Time
}

type fakeStore struct {
	mu      sync.Mutex
	raw     map[time.Time][]models.BucketSummary // by window start
	ledger  map[window]bool
	rows    map[rowKey]aggregation.Bucket
	failAt  map[time.Time]int // window start -> remaining failures
	cutoffs map[string]time.Time
}

var errBoom = errors.New("boom")

func newFakeStore() *fakeStore {
	return &fakeStore{
		raw:     make(map[time.Time][]models.BucketSummary),
		ledger:  make(map[window]bool),
		rows:    make(map[rowKey]aggregation.Bucket),
		failAt:  make(map[time.Time]int),
		cutoffs: make(map[string]time.Time),
	}
}

func (f *fakeStore) SummarizeSamples(_ context.Context, start, _ time.Time) ([]models.BucketSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt[start] > 0 {
		f.failAt[start]--
		return nil, errBoom
	}
	return append([]models.BucketSummary(nil), f.raw[start]...), nil
}

func (f *fakeStore) SummarizeHourly(_ context.Context, start, end time.Time) ([]models.BucketSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byMetric := make(map[models.MetricType]aggregation.Bucket)
	for k, b := range f.rows {
		if k.tier == models.TierHourly && !k.bucket.Before(start) && k.bucket.Before(end) {
			byMetric[k.metric] = aggregation.Combine(byMetric[k.metric], b)
		}
	}
	var out []models.BucketSummary
	for m, b := range byMetric {
		out = append(out, models.BucketSummary{DeviceID: 1, MetricType: m, BucketStart: start, Avg: b.Avg, Min: b.Min, Max: b.Max, Count: b.Count})
	}
	return out, nil
}

func (f *fakeStore) upsert(tier models.Tier, start time.Time, sums []models.BucketSummary) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := window{tier, start}
	if f.ledger[w] {
		return false
	}
	f.ledger[w] = true
	for _, s := range sums {
		k := rowKey{tier, s.MetricType, s.BucketStart}
		f.rows[k] = aggregation.Combine(f.rows[k], aggregation.Bucket{Avg: s.Avg, Min: s.Min, Max: s.Max, Count: s.Count})
	}
	return true
}

func (f *fakeStore) UpsertHourly(_ context.Context, start, _ time.Time, sums []models.BucketSummary) (bool, error) {
	return f.upsert(models.TierHourly, start, sums), nil
}

func (f *fakeStore) UpsertDaily(_ context.Context, start, _ time.Time, sums []models.BucketSummary) (bool, error) {
	return f.upsert(models.TierDaily, start, sums), nil
}

func (f *fakeStore) DeleteSamplesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs["raw"] = cutoff
	return 5, nil
}

func (f *fakeStore) DeleteOlderThan(_ context.Context, tier models.Tier, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs[string(tier)] = cutoff
	return 2, nil
}

func (f *fakeStore) DeleteRunsOlderThan(_ context.Context, tier models.Tier, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs["runs/"+string(tier)] = cutoff
	return 1, nil
}

func (f *fakeStore) row(tier models.Tier, bucket time.Time) aggregation.Bucket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[rowKey{tier, models.MetricCPUUsage, bucket}]
}

type runCounter struct {
	mu               sync.Mutex
	applied, skipped int
	failed           int
}

func (r *runCounter) AggregationRun(_ models.Tier, applied bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err != nil:
		r.failed++
	case applied:
		r.applied++
	default:
		r.skipped++
	}
}

var day = time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)

func cpuSummary(avg, lo, hi float64, n int64) []models.BucketSummary {
	return []models.BucketSummary{{DeviceID: 1, MetricType: models.MetricCPUUsage, Avg: avg, Min: lo, Max: hi, Count: n}}
}

// ─────────────────────────────────────────────────────────────────────────────
// Combine
// ─────────────────────────────────────────────────────────────────────────────

func TestCombine(t *testing.T) {
	tests := []struct {
		name     string
		old, new aggregation.Bucket
		want     aggregation.Bucket
	}{
		{
			name: "weighted average",
			old:  aggregation.Bucket{Avg: 10, Min: 5, Max: 15, Count: 2},
			new:  aggregation.Bucket{Avg: 40, Min: 40, Max: 40, Count: 1},
			want: aggregation.Bucket{Avg: 20, Min: 5, Max: 40, Count: 3},
		},
		{
			name: "empty existing",
			new:  aggregation.Bucket{Avg: 7, Min: 7, Max: 7, Count: 1},
			want: aggregation.Bucket{Avg: 7, Min: 7, Max: 7, Count: 1},
		},
		{
			name: "empty incoming",
			old:  aggregation.Bucket{Avg: 3, Min: 1, Max: 5, Count: 4},
			want: aggregation.Bucket{Avg: 3, Min: 1, Max: 5, Count: 4},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := aggregation.Combine(tc.old, tc.new); got != tc.want {
				t.Fatalf("Combine = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestCombine_OrderIndependent(t *testing.T) {
	parts := []aggregation.Bucket{
		{Avg: 12.5, Min: 3, Max: 20, Count: 4},
		{Avg: 80, Min: 75, Max: 90, Count: 1},
		{Avg: 33.3, Min: 30, Max: 40, Count: 7},
	}
	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 0, 2}}
	var first aggregation.Bucket
	for n, order := range orders {
		var acc aggregation.Bucket
		for _, i := range order {
			acc = aggregation.Combine(acc, parts[i])
		}
		if n == 0 {
			first = acc
			continue
		}
		if acc.Count != first.Count || acc.Min != first.Min || acc.Max != first.Max || math.Abs(acc.Avg-first.Avg) > 1e-9 {
			t.Fatalf("order %v = %+v, want %+v", order, acc, first)
		}
	}
	if first.Count != 12 || first.Min != 3 || first.Max != 90 {
		t.Fatalf("combined = %+v", first)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Windows
// ─────────────────────────────────────────────────────────────────────────────

func TestAggregateHourly_RunsOnce(t *testing.T) {
	st := newFakeStore()
	hour := day.Add(9 * time.Hour)
	st.raw[hour] = cpuSummary(20, 10, 30, 3)
	obs := &runCounter{}
	svc := aggregation.New(st, aggregation.Options{Observer: obs})

	for i, want := range []bool{true, false, false} {
		rep, err := svc.AggregateHourly(context.Background(), hour, hour.Add(time.Hour))
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if rep.Applied != want || rep.Groups != 1 {
			t.Fatalf("run %d: report %+v, want applied=%v", i, rep, want)
		}
	}
	got := st.row(models.TierHourly, hour)
	if got != (aggregation.Bucket{Avg: 20, Min: 10, Max: 30, Count: 3}) {
		t.Fatalf("hourly row = %+v, counted more than once", got)
	}
	if obs.applied != 1 || obs.skipped != 2 {
		t.Errorf("observer applied=%d skipped=%d", obs.applied, obs.skipped)
	}
}

func TestAggregateHourly_StampsBucketStart(t *testing.T) {
	st := newFakeStore()
	// A half-hour window inside 09:00 lands in the 09:00 bucket.
	start := day.Add(9*time.Hour + 30*time.Minute)
	st.raw[start] = cpuSummary(50, 50, 50, 1)
	svc := aggregation.New(st, aggregation.Options{})

	if _, err := svc.AggregateHourly(context.Background(), start, start.Add(30*time.Minute)); err != nil {
		t.Fatalf("AggregateHourly: %v", err)
	}
	if got := st.row(models.TierHourly, day.Add(9*time.Hour)); got.Count != 1 {
		t.Fatalf("09:00 bucket = %+v", got)
	}
}

func TestAggregate_InvalidWindowRejected(t *testing.T) {
	st := newFakeStore()
	svc := aggregation.New(st, aggregation.Options{})
	ctx := context.Background()
	half := day.Add(30 * time.Minute)

	tests := []struct {
		name string
		run  func() error
	}{
		{"empty hourly", func() error { _, err := svc.AggregateHourly(ctx, day, day); return err }},
		{"inverted daily", func() error { _, err := svc.AggregateDaily(ctx, day, day.Add(-time.Hour)); return err }},
		{"hourly spans two hours", func() error { _, err := svc.AggregateHourly(ctx, day, day.Add(2*time.Hour)); return err }},
		{"hourly crosses the hour", func() error { _, err := svc.AggregateHourly(ctx, half, half.Add(time.Hour)); return err }},
		{"daily spans two days", func() error { _, err := svc.AggregateDaily(ctx, day, day.AddDate(0, 0, 2)); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, aggregation.ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
	if got := st.row(models.TierHourly, day); got.Count != 0 {
		t.Fatalf("rejected window wrote %+v", got)
	}
}

func TestAggregateDaily_FromHourly(t *testing.T) {
	st := newFakeStore()
	st.raw[day] = cpuSummary(10, 2, 12, 3)
	st.raw[day.Add(time.Hour)] = cpuSummary(50, 45, 70, 1)
	svc := aggregation.New(st, aggregation.Options{})
	ctx := context.Background()

	if _, err := svc.BackfillHourly(ctx, day, day.Add(2*time.Hour)); err != nil {
		t.Fatalf("BackfillHourly: %v", err)
	}
	rep, err := svc.AggregateDaily(ctx, day, day.AddDate(0, 0, 1))
	if err != nil || !rep.Applied {
		t.Fatalf("AggregateDaily = %+v, %v", rep, err)
	}
	got := st.row(models.TierDaily, day)
	if got.Count != 4 || got.Min != 2 || got.Max != 70 || got.Avg != 20 {
		t.Fatalf("daily row = %+v, want avg 20 min 2 max 70 count 4", got)
	}
}

func TestRunPrevious(t *testing.T) {
	st := newFakeStore()
	svc := aggregation.New(st, aggregation.Options{})
	now := day.Add(14*time.Hour + 7*time.Minute)

	rep, err := svc.RunPreviousHour(context.Background(), now)
	if err != nil {
		t.Fatalf("RunPreviousHour: %v", err)
	}
	if !rep.Start.Equal(day.Add(13*time.Hour)) || !rep.End.Equal(day.Add(14*time.Hour)) {
		t.Errorf("previous hour = %v..%v", rep.Start, rep.End)
	}

	rep, err = svc.RunPreviousDay(context.Background(), now)
	if err != nil {
		t.Fatalf("RunPreviousDay: %v", err)
	}
	if !rep.Start.Equal(day.AddDate(0, 0, -1)) || !rep.End.Equal(day) {
		t.Errorf("previous day = %v..%v", rep.Start, rep.End)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Backfill
// ─────────────────────────────────────────────────────────────────────────────

func TestBackfillHourly_ContinuesPastFailures(t *testing.T) {
	st := newFakeStore()
	for h := 0; h < 4; h++ {
		st.raw[day.Add(time.Duration(h)*time.Hour)] = cpuSummary(float64(h), 0, 10, 1)
	}
	st.failAt[day.Add(2*time.Hour)] = 1
	svc := aggregation.New(st, aggregation.Options{})
	ctx := context.Background()

	rep, err := svc.BackfillHourly(ctx, day.Add(10*time.Minute), day.Add(4*time.Hour))
	if !errors.Is(err, errBoom) {
		t.Fatalf("error = %v, want errBoom joined", err)
	}
	if rep != (aggregation.BackfillReport{Windows: 4, Applied: 3, Failed: 1}) {
		t.Fatalf("report = %+v", rep)
	}

	// Re-running the range after the failure applies only the missing hour.
	rep, err = svc.BackfillHourly(ctx, day, day.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if rep != (aggregation.BackfillReport{Windows: 4, Applied: 1, Skipped: 3}) {
		t.Fatalf("rerun report = %+v", rep)
	}
	for h := 0; h < 4; h++ {
		if got := st.row(models.TierHourly, day.Add(time.Duration(h)*time.Hour)); got.Count != 1 {
			t.Errorf("hour %d count = %d, want 1", h, got.Count)
		}
	}
}

func TestBackfillDaily_StopsOnCancel(t *testing.T) {
	svc := aggregation.New(newFakeStore(), aggregation.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := svc.BackfillDaily(ctx, day, day.AddDate(0, 0, 5))
	if !errors.Is(err, context.Canceled) || rep.Windows != 0 {
		t.Fatalf("cancelled backfill = %+v, %v", rep, err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Cleanup
// ─────────────────────────────────────────────────────────────────────────────

func TestCleanup(t *testing.T) {
	st := newFakeStore()
	now := day.Add(12 * time.Hour)
	svc := aggregation.New(st, aggregation.Options{Clock: func() time.Time { return now }})

	rep, err := svc.Cleanup(context.Background(), aggregation.RetentionPolicy{
		Raw:    30 * 24 * time.Hour,
		Hourly: 365 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if rep != (aggregation.CleanupReport{Samples: 5, Hourly: 2, Runs: 2}) {
		t.Fatalf("report = %+v", rep)
	}
	want := map[string]time.Time{
		"raw":         now.Add(-30 * 24 * time.Hour),
		"hourly":      now.Add(-365 * 24 * time.Hour),
		"runs/hourly": now.Add(-30 * 24 * time.Hour),
		"runs/daily":  now.Add(-365 * 24 * time.Hour),
	}
	if len(st.cutoffs) != len(want) {
		t.Fatalf("cutoffs = %v; daily tier with zero retention must be kept", st.cutoffs)
	}
	for k, w := range want {
		if !st.cutoffs[k].Equal(w) {
			t.Errorf("cutoff %s = %v, want %v", k, st.cutoffs[k], w)
		}
	}
}
