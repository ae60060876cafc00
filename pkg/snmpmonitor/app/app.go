// Package app wires the monitor's components together and manages their
// lifecycle.
//
// Poll path:
//
//	Scheduler → [ants pool] → Collector → Store.InsertSamples
//	                                    → sinks: Alarm Engine, selfmon, export
//	          → connectivity alarms on failed polls
//
// Background jobs (cron, UTC):
//
//	hourly   → aggregate previous hour
//	daily    → aggregate previous day
//	cleanup  → retention per tier, stale counter snapshots
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	jsonformat "github.com/vpbank/snmp_monitor/format/json"
	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/aggregation"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/alarm"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/collector"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/config"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/poller"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/scheduler"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/secret"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/selfmon"
	"github.com/vpbank/snmp_monitor/producer/metrics"
	"github.com/vpbank/snmp_monitor/storage/gormstore"
	filetransport "github.com/vpbank/snmp_monitor/transport/file"
)

// CounterMaxAge is how long a counter snapshot may go without an update
// before the cleanup job drops it.
const CounterMaxAge = 24 * time.Hour

// shutdownTimeout bounds the metrics server shutdown.
const shutdownTimeout = 5 * time.Second

// ─────────────────────────────────────────────────────────────────────────────
// App
// ─────────────────────────────────────────────────────────────────────────────

// App owns every long-lived component. Create one with New, run it with Run
// or drive single operations from the CLI, and release it with Close.
type App struct {
	cfg    config.Config
	logger *slog.Logger
	now    func() time.Time

	store     *gormstore.Store
	box       *secret.Box
	collector *collector.Engine
	alarms    *alarm.Engine
	sched     *scheduler.Scheduler
	agg       *aggregation.Service
	metrics   *selfmon.Metrics
	export    *filetransport.Sink
}

// deps are the seams tests replace.
type deps struct {
	dialer poller.Dialer
	clock  func() time.Time
	getenv func(string) string
}

// New opens the store, migrates it, and builds every component from cfg.
// The secret box passphrase is read from the environment variable named by
// cfg.Secrets.PassphraseEnv.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	return newApp(cfg, logger, deps{})
}

func newApp(cfg config.Config, logger *slog.Logger, d deps) (_ *App, err error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if d.clock == nil {
		d.clock = utcNow
	}
	if d.getenv == nil {
		d.getenv = os.Getenv
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for name, spec := range map[string]string{
		"hourly":  cfg.Aggregation.Hourly,
		"daily":   cfg.Aggregation.Daily,
		"cleanup": cfg.Aggregation.Cleanup,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("app: aggregation.%s %q: %w: %w", name, spec, config.ErrInvalid, err)
		}
	}

	a := &App{cfg: cfg, logger: logger, now: d.clock}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// ── 1. Secrets ──────────────────────────────────────────────────────
	pass := d.getenv(cfg.Secrets.PassphraseEnv)
	if pass == "" {
		return nil, fmt.Errorf("app: secrets: environment variable %s is empty", cfg.Secrets.PassphraseEnv)
	}
	if a.box, err = secret.New(pass, cfg.Secrets.Salt); err != nil {
		return nil, fmt.Errorf("app: secrets: %w", err)
	}

	// ── 2. Store ────────────────────────────────────────────────────────
	db, err := gormstore.Open(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.Debug)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.store = gormstore.New(db)
	if err := gormstore.Migrate(db); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	// ── 3. Observers and sinks ──────────────────────────────────────────
	counters := metrics.NewCounterStore()
	a.metrics = selfmon.New(counters.Len)
	a.alarms = alarm.New(a.store.Rules, a.store.Alarms, alarm.Options{
		Observer: a.metrics,
		Clock:    d.clock,
		Logger:   logger,
	})
	sinks := []collector.SampleSink{a.alarms, a.metrics}
	if cfg.Export.Path != "" {
		tr, err := filetransport.Open(filetransport.RotateConfig{
			Path:       cfg.Export.Path,
			MaxSizeMB:  cfg.Export.MaxSizeMB,
			MaxBackups: cfg.Export.MaxBackups,
			MaxAgeDays: cfg.Export.MaxAgeDays,
			Compress:   cfg.Export.Compress,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("app: export: %w", err)
		}
		a.export = filetransport.NewSink(jsonformat.New(jsonformat.Config{}, logger), tr)
		sinks = append(sinks, a.export)
	}

	// ── 4. Collector ────────────────────────────────────────────────────
	a.collector = collector.New(a.store, collector.Options{
		Dialer:           d.dialer,
		Secrets:          a.box,
		Counters:         counters,
		Sinks:            sinks,
		DefaultCommunity: cfg.SNMP.Community,
		Timeout:          cfg.SNMP.Timeout.Std(),
		Retries:          cfg.SNMP.Retries,
		Clock:            d.clock,
		Logger:           logger,
	})

	// ── 5. Scheduler ────────────────────────────────────────────────────
	a.sched, err = scheduler.New(a.store, a.collector, scheduler.Options{
		Interval:     cfg.Scheduler.Interval.Std(),
		BatchSize:    cfg.Scheduler.BatchSize,
		Connectivity: a.alarms,
		Observer:     a.metrics,
		Clock:        d.clock,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	// ── 6. Aggregation ──────────────────────────────────────────────────
	a.agg = aggregation.New(a.store, aggregation.Options{
		Observer: a.metrics,
		Clock:    d.clock,
		Logger:   logger,
	})

	logger.Info("app: components ready",
		"driver", cfg.Database.Driver,
		"interval", cfg.Scheduler.Interval.String(),
		"batch_size", cfg.Scheduler.BatchSize,
		"export", cfg.Export.Path != "",
		"metrics", cfg.Metrics.Listen,
	)
	return a, nil
}

// Store exposes the persistence layer.
func (a *App) Store() *gormstore.Store { return a.store }

// Metrics exposes the self-monitoring collectors.
func (a *App) Metrics() *selfmon.Metrics { return a.metrics }

// ─────────────────────────────────────────────────────────────────────────────
// Run
// ─────────────────────────────────────────────────────────────────────────────

// Run starts the scheduler, the cron jobs and, when configured, the metrics
// server. It blocks until ctx is cancelled or a component fails, and returns
// after every component has stopped.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	c := a.newCron(gctx)
	c.Start()
	a.logger.Info("app: background jobs scheduled", "jobs", len(c.Entries()))

	g.Go(func() error {
		a.sched.Start(gctx)
		return nil
	})

	if a.cfg.Metrics.Listen != "" {
		srv := a.metrics.NewServer(a.cfg.Metrics.Listen)
		g.Go(func() error {
			a.logger.Info("app: metrics server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		<-c.Stop().Done()
		return nil
	})

	err := g.Wait()
	a.logger.Info("app: stopped")
	return err
}

// newCron registers the aggregation and cleanup jobs. Specs were validated
// by New.
func (a *App) newCron(ctx context.Context) *cron.Cron {
	cl := cronLogger{a.logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	_, _ = c.AddFunc(a.cfg.Aggregation.Hourly, func() {
		if _, err := a.agg.RunPreviousHour(ctx, a.now()); err != nil {
			a.logger.Error("app: hourly aggregation failed", "error", err.Error())
		}
	})
	_, _ = c.AddFunc(a.cfg.Aggregation.Daily, func() {
		if _, err := a.agg.RunPreviousDay(ctx, a.now()); err != nil {
			a.logger.Error("app: daily aggregation failed", "error", err.Error())
		}
	})
	_, _ = c.AddFunc(a.cfg.Aggregation.Cleanup, func() {
		if _, err := a.Cleanup(ctx); err != nil {
			a.logger.Error("app: cleanup failed", "error", err.Error())
		}
	})
	return c
}

// ─────────────────────────────────────────────────────────────────────────────
// One-shot operations
// ─────────────────────────────────────────────────────────────────────────────

// Collect polls deviceID once, outside the recurring cycle. Connectivity
// alarms are raised and resolved as for a scheduled poll.
func (a *App) Collect(ctx context.Context, deviceID uint) collector.Result {
	return a.sched.PollDevice(ctx, deviceID)
}

// Discover enumerates the interfaces of deviceID.
func (a *App) Discover(ctx context.Context, deviceID uint) ([]models.InterfaceInfo, error) {
	return a.collector.DiscoverInterfaces(ctx, deviceID)
}

// TestConnection opens a session to t and reads the system group.
func (a *App) TestConnection(ctx context.Context, t poller.Target) (collector.SystemInfo, error) {
	if t.Timeout == 0 {
		t.Timeout = a.cfg.SNMP.Timeout.Std()
	}
	if t.Retries == 0 {
		t.Retries = a.cfg.SNMP.Retries
	}
	return a.collector.TestConnection(ctx, t)
}

// Backfill aggregates every window of tier overlapping [from, to).
func (a *App) Backfill(ctx context.Context, tier models.Tier, from, to time.Time) (aggregation.BackfillReport, error) {
	switch tier {
	case models.TierHourly:
		return a.agg.BackfillHourly(ctx, from, to)
	case models.TierDaily:
		return a.agg.BackfillDaily(ctx, from, to)
	default:
		return aggregation.BackfillReport{}, fmt.Errorf("app: backfill: unsupported tier %q", tier)
	}
}

// Cleanup applies the retention policy and drops stale counter snapshots.
func (a *App) Cleanup(ctx context.Context) (aggregation.CleanupReport, error) {
	rep, err := a.agg.Cleanup(ctx, aggregation.RetentionPolicy{
		Raw:    a.cfg.Retention.Raw.Std(),
		Hourly: a.cfg.Retention.Hourly.Std(),
		Daily:  a.cfg.Retention.Daily.Std(),
	})
	purged := a.collector.Counters().Purge(CounterMaxAge, a.now())
	a.logger.Info("app: cleanup complete",
		"samples", rep.Samples,
		"hourly", rep.Hourly,
		"daily", rep.Daily,
		"runs", rep.Runs,
		"counter_snapshots", purged,
	)
	return rep, err
}

// Seed upserts the inventory seeds with their credentials sealed. Every
// seed is attempted; failures are reported together.
func (a *App) Seed(ctx context.Context, seeds []config.DeviceSeed) (int, error) {
	var errs []error
	n := 0
	for _, s := range seeds {
		cred, err := s.Credential(a.box.Seal)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		dev := s.Device()
		if _, err := a.store.UpsertSeed(ctx, &dev, cred); err != nil {
			errs = append(errs, fmt.Errorf("app: seed %s: %w", s.Name, err))
			continue
		}
		n++
	}
	a.logger.Info("app: devices seeded", "count", n, "failed", len(errs))
	return n, errors.Join(errs...)
}

// Close releases the worker pool, the export file and the store. It is safe
// to call on a partially built App.
func (a *App) Close() error {
	var errs []error
	if a.sched != nil {
		a.sched.Close()
	}
	if a.export != nil {
		if err := a.export.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ─────────────────────────────────────────────────────────────────────────────
// Utilities
// ─────────────────────────────────────────────────────────────────────────────

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug("app: cron: "+msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error("app: cron: "+msg, append(kv, "error", err.Error())...)
}

// utcNow keeps every component on UTC so that stored timestamps compare
// with the UTC-aligned aggregation windows.
func utcNow() time.Time { return time.Now().UTC() }

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
