// Package aggregation rolls raw samples into hourly buckets and hourly
// buckets into daily ones, and enforces per-tier retention.
//
// Buckets are aligned in UTC. Each source window is applied at most once
// through the store's run ledger, so re-running a window or an overlapping
// backfill after a crash never double counts.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vpbank/snmp_monitor/models"
)

// Store is the persistence surface of the pipeline.
type Store interface {
	SummarizeSamples(ctx context.Context, start, end time.Time) ([]models.BucketSummary, error)
	SummarizeHourly(ctx context.Context, start, end time.Time) ([]models.BucketSummary, error)
	UpsertHourly(ctx context.Context, start, end time.Time, summaries []models.BucketSummary) (bool, error)
	UpsertDaily(ctx context.Context, start, end time.Time, summaries []models.BucketSummary) (bool, error)

	DeleteSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, tier models.Tier, cutoff time.Time) (int64, error)
	DeleteRunsOlderThan(ctx context.Context, tier models.Tier, cutoff time.Time) (int64, error)
}

// Observer is told about every window attempt.
type Observer interface {
	AggregationRun(tier models.Tier, applied bool, err error)
}

// Options configures a Service.
type Options struct {
	Observer Observer
	Clock    func() time.Time
	Logger   *slog.Logger
}

// Service runs aggregation windows and retention.
type Service struct {
	store    Store
	observer Observer
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Service on store.
func New(store Store, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{store: store, observer: opts.Observer, now: opts.Clock, logger: opts.Logger}
}

// WindowReport describes one aggregation window.
type WindowReport struct {
	Tier    models.Tier
	Start   time.Time
	End     time.Time
	Groups  int
	Applied bool // false when the window had been applied before
}

// ─────────────────────────────────────────────────────────────────────────────
// Single windows
// ─────────────────────────────────────────────────────────────────────────────

// ErrInvalid is returned for a window that is empty or spans more than one
// bucket.
var ErrInvalid = errors.New("invalid aggregation window")

// AggregateHourly folds the raw samples of [start, end) into the hourly
// bucket containing start. The window must not extend past that hour.
func (s *Service) AggregateHourly(ctx context.Context, start, end time.Time) (WindowReport, error) {
	rep := WindowReport{Tier: models.TierHourly, Start: start.UTC(), End: end.UTC()}
	bucket := HourStart(rep.Start)
	if err := checkWindow(rep, bucket.Add(time.Hour)); err != nil {
		return rep, err
	}
	err := s.apply(ctx, &rep, bucket, s.store.SummarizeSamples, s.store.UpsertHourly)
	return rep, err
}

// AggregateDaily folds the hourly rows of [start, end) into the daily
// bucket containing start. The window must not extend past that UTC day.
func (s *Service) AggregateDaily(ctx context.Context, start, end time.Time) (WindowReport, error) {
	rep := WindowReport{Tier: models.TierDaily, Start: start.UTC(), End: end.UTC()}
	bucket := DayStart(rep.Start)
	if err := checkWindow(rep, bucket.AddDate(0, 0, 1)); err != nil {
		return rep, err
	}
	err := s.apply(ctx, &rep, bucket, s.store.SummarizeHourly, s.store.UpsertDaily)
	return rep, err
}

func checkWindow(rep WindowReport, bucketEnd time.Time) error {
	switch {
	case !rep.End.After(rep.Start):
		return fmt.Errorf("aggregation: %s window %s..%s is empty: %w", rep.Tier, rep.Start, rep.End, ErrInvalid)
	case rep.End.After(bucketEnd):
		return fmt.Errorf("aggregation: %s window %s..%s crosses the bucket end %s: %w", rep.Tier, rep.Start, rep.End, bucketEnd, ErrInvalid)
	}
	return nil
}

type (
	summarizeFunc func(ctx context.Context, start, end time.Time) ([]models.BucketSummary, error)
	upsertFunc    func(ctx context.Context, start, end time.Time, summaries []models.BucketSummary) (bool, error)
)

func (s *Service) apply(ctx context.Context, rep *WindowReport, bucket time.Time, summarize summarizeFunc, upsert upsertFunc) (err error) {
	defer func() {
		if s.observer != nil {
			s.observer.AggregationRun(rep.Tier, rep.Applied, err)
		}
	}()

	sums, err := summarize(ctx, rep.Start, rep.End)
	if err != nil {
		return fmt.Errorf("aggregation: summarize %s window %s: %w", rep.Tier, rep.Start.Format(time.RFC3339), err)
	}
	for i := range sums {
		sums[i].BucketStart = bucket
	}
	rep.Groups = len(sums)

	applied, err := upsert(ctx, rep.Start, rep.End, sums)
	if err != nil {
		return fmt.Errorf("aggregation: %w", err)
	}
	rep.Applied = applied
	if applied {
		s.logger.Debug("aggregation: window applied",
			"tier", string(rep.Tier),
			"start", rep.Start,
			"groups", rep.Groups,
		)
	} else {
		s.logger.Debug("aggregation: window already applied",
			"tier", string(rep.Tier),
			"start", rep.Start,
		)
	}
	return nil
}

// RunPreviousHour aggregates the last complete hour before now.
func (s *Service) RunPreviousHour(ctx context.Context, now time.Time) (WindowReport, error) {
	end := HourStart(now)
	return s.AggregateHourly(ctx, end.Add(-time.Hour), end)
}

// RunPreviousDay aggregates the last complete UTC day before now.
func (s *Service) RunPreviousDay(ctx context.Context, now time.Time) (WindowReport, error) {
	end := DayStart(now)
	return s.AggregateDaily(ctx, end.AddDate(0, 0, -1), end)
}

// ─────────────────────────────────────────────────────────────────────────────
// Backfill
// ─────────────────────────────────────────────────────────────────────────────

// BackfillReport summarises a backfill range.
type BackfillReport struct {
	Windows int // attempted
	Applied int
	Skipped int // applied before
	Failed  int
}

// BackfillHourly aggregates every hour overlapping [from, to), one bucket
// at a time. A failed bucket does not stop the range; the failures are
// returned joined.
func (s *Service) BackfillHourly(ctx context.Context, from, to time.Time) (BackfillReport, error) {
	return s.backfill(ctx, HourStart(from), to.UTC(), func(t time.Time) time.Time { return t.Add(time.Hour) }, s.AggregateHourly)
}

// BackfillDaily aggregates every UTC day overlapping [from, to).
func (s *Service) BackfillDaily(ctx context.Context, from, to time.Time) (BackfillReport, error) {
	return s.backfill(ctx, DayStart(from), to.UTC(), func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }, s.AggregateDaily)
}

func (s *Service) backfill(ctx context.Context, first, to time.Time, next func(time.Time) time.Time, run func(context.Context, time.Time, time.Time) (WindowReport, error)) (BackfillReport, error) {
	var (
		rep  BackfillReport
		errs []error
	)
	for start := first; start.Before(to); start = next(start) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rep.Windows++
		w, err := run(ctx, start, next(start))
		switch {
		case err != nil:
			rep.Failed++
			errs = append(errs, err)
			s.logger.Warn("aggregation: backfill window failed",
				"start", start,
				"error", err.Error(),
			)
		case w.Applied:
			rep.Applied++
		default:
			rep.Skipped++
		}
	}
	return rep, errors.Join(errs...)
}

// ─────────────────────────────────────────────────────────────────────────────
// Retention
// ─────────────────────────────────────────────────────────────────────────────

// RetentionPolicy is the age beyond which each tier is deleted. A zero
// duration keeps the tier forever.
type RetentionPolicy struct {
	Raw    time.Duration
	Hourly time.Duration
	Daily  time.Duration
}

// CleanupReport counts the deleted rows per tier.
type CleanupReport struct {
	Samples int64
	Hourly  int64
	Daily   int64
	Runs    int64
}

// Cleanup deletes rows strictly older than now minus each tier's retention.
// Ledger rows go with the source tier they describe: once the raw samples of
// a window are gone it can no longer be re-run.
func (s *Service) Cleanup(ctx context.Context, p RetentionPolicy) (CleanupReport, error) {
	now := s.now().UTC()
	var (
		rep  CleanupReport
		errs []error
	)
	del := func(label string, keep time.Duration, fn func(cutoff time.Time) (int64, error), into *int64) {
		if keep <= 0 {
			return
		}
		n, err := fn(now.Add(-keep))
		if err != nil {
			errs = append(errs, fmt.Errorf("aggregation: cleanup %s: %w", label, err))
			return
		}
		*into += n
	}

	del("samples", p.Raw, func(c time.Time) (int64, error) { return s.store.DeleteSamplesBefore(ctx, c) }, &rep.Samples)
	del("hourly", p.Hourly, func(c time.Time) (int64, error) { return s.store.DeleteOlderThan(ctx, models.TierHourly, c) }, &rep.Hourly)
	del("daily", p.Daily, func(c time.Time) (int64, error) { return s.store.DeleteOlderThan(ctx, models.TierDaily, c) }, &rep.Daily)
	del("hourly runs", p.Raw, func(c time.Time) (int64, error) { return s.store.DeleteRunsOlderThan(ctx, models.TierHourly, c) }, &rep.Runs)
	del("daily runs", p.Hourly, func(c time.Time) (int64, error) { return s.store.DeleteRunsOlderThan(ctx, models.TierDaily, c) }, &rep.Runs)

	s.logger.Info("aggregation: cleanup complete",
		"samples", rep.Samples,
		"hourly", rep.Hourly,
		"daily", rep.Daily,
		"runs", rep.Runs,
	)
	return rep, errors.Join(errs...)
}

// ─────────────────────────────────────────────────────────────────────────────
// Bucket alignment
// ─────────────────────────────────────────────────────────────────────────────

// HourStart truncates t to the start of its UTC hour.
func HourStart(t time.Time) time.Time { return t.UTC().Truncate(time.Hour) }

// DayStart truncates t to the start of its UTC day.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
