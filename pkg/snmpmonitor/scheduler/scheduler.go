// Package scheduler drives periodic collection. Each tick lists the devices
// that are due, polls them in sequential batches with the members of a
// batch running concurrently on a bounded worker pool, and turns failed
// polls into connectivity alarms. Ticks never overlap: a tick that fires
// while the previous cycle is still running is skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/collector"
)

// ─────────────────────────────────────────────────────────────────────────────
// Collaborators — interfaces for dependency injection
// ─────────────────────────────────────────────────────────────────────────────

// DeviceLister yields the devices due for polling.
type DeviceLister interface {
	ListDue(ctx context.Context, now time.Time) ([]models.Device, error)
}

// Collector runs one collection pass. *collector.Engine satisfies it.
type Collector interface {
	Collect(ctx context.Context, deviceID uint) collector.Result
}

// ConnectivityReporter raises and clears connectivity alarms.
// *alarm.Engine satisfies it.
type ConnectivityReporter interface {
	RaiseConnectivity(ctx context.Context, deviceID uint, deviceName string, cause error, at time.Time) (*models.Alarm, error)
	ResolveConnectivity(ctx context.Context, deviceID uint, at time.Time) (*models.Alarm, error)
}

// Observer is told about cycles and individual polls.
type Observer interface {
	TickSkipped()
	CycleCompleted(r CycleReport)
	DevicePolled(r collector.Result)
}

// ─────────────────────────────────────────────────────────────────────────────
// Scheduler
// ─────────────────────────────────────────────────────────────────────────────

// Defaults.
const (
	DefaultInterval  = 60 * time.Second
	DefaultBatchSize = 10
)

// Options configures a Scheduler. Zero values pick the defaults.
type Options struct {
	Interval     time.Duration
	BatchSize    int
	Connectivity ConnectivityReporter
	Observer     Observer
	Clock        func() time.Time
	Logger       *slog.Logger
}

// CycleReport summarises one executed tick.
type CycleReport struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Devices   int
	Succeeded int
	Failed    int
}

// Scheduler runs polling cycles.
type Scheduler struct {
	devices DeviceLister
	coll    Collector
	opts    Options
	now     func() time.Time
	logger  *slog.Logger
	pool    *ants.Pool

	running atomic.Bool // single-flight guard of the cycle
	ticks   sync.WaitGroup
	done    chan struct{}
}

// New creates a Scheduler. The scheduler does NOT start automatically; call
// Start to begin ticking, or Tick to run one cycle.
func New(devices DeviceLister, coll Collector, opts Options) (*Scheduler, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	pool, err := ants.NewPool(opts.BatchSize, ants.WithPanicHandler(func(p interface{}) {
		opts.Logger.Error("scheduler: worker panic", "panic", fmt.Sprint(p))
	}))
	if err != nil {
		return nil, fmt.Errorf("scheduler: create pool: %w", err)
	}
	return &Scheduler{
		devices: devices,
		coll:    coll,
		opts:    opts,
		now:     opts.Clock,
		logger:  opts.Logger,
		pool:    pool,
		done:    make(chan struct{}),
	}, nil
}

// Start ticks immediately and then every Interval until ctx is cancelled.
// Ticks are fired without waiting for the previous cycle, so the guard in
// Tick decides whether a cycle runs. Start blocks until ctx is done and the
// in-flight cycle has finished.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.done)
	defer s.ticks.Wait()

	s.logger.Info("scheduler: started",
		"interval", s.opts.Interval.String(),
		"batch_size", s.opts.BatchSize,
	)
	fire := func() {
		s.ticks.Add(1)
		go func() {
			defer s.ticks.Done()
			s.Tick(ctx)
		}()
	}

	fire()
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: stopping")
			return
		case <-ticker.C:
			fire()
		}
	}
}

// Stop waits for Start to return and releases the worker pool. The caller
// must cancel the context passed to Start before calling Stop.
func (s *Scheduler) Stop() {
	<-s.done
	s.pool.Release()
}

// Close releases the worker pool of a scheduler that was never started.
func (s *Scheduler) Close() { s.pool.Release() }

// Running reports whether a cycle is in progress.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Tick runs one cycle unless another is in progress. It returns false when
// the tick was skipped.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("scheduler: previous cycle still running, tick skipped")
		if s.opts.Observer != nil {
			s.opts.Observer.TickSkipped()
		}
		return false
	}
	defer s.running.Store(false)

	rep := s.runCycle(ctx)
	if s.opts.Observer != nil {
		s.opts.Observer.CycleCompleted(rep)
	}
	return true
}

func (s *Scheduler) runCycle(ctx context.Context) CycleReport {
	start := s.now()
	rep := CycleReport{ID: uuid.NewString(), StartedAt: start}
	logger := s.logger.With("cycle_id", rep.ID)

	due, err := s.devices.ListDue(ctx, start)
	if err != nil {
		logger.Error("scheduler: list due devices failed", "error", err.Error())
		rep.Duration = s.now().Sub(start)
		return rep
	}
	rep.Devices = len(due)

	var succeeded, failed atomic.Int64
	for lo := 0; lo < len(due); lo += s.opts.BatchSize {
		if ctx.Err() != nil {
			break
		}
		hi := min(lo+s.opts.BatchSize, len(due))
		var wg sync.WaitGroup
		for i := lo; i < hi; i++ {
			d := due[i]
			task := func() {
				defer wg.Done()
				if s.poll(ctx, d.ID, logger).Success {
					succeeded.Add(1)
				} else {
					failed.Add(1)
				}
			}
			wg.Add(1)
			if err := s.pool.Submit(task); err != nil {
				// Pool closed or overloaded: run on the cycle goroutine.
				logger.Warn("scheduler: pool submit failed, polling inline",
					"device_id", d.ID,
					"error", err.Error(),
				)
				task()
			}
		}
		wg.Wait()
	}

	rep.Succeeded = int(succeeded.Load())
	rep.Failed = int(failed.Load())
	rep.Duration = s.now().Sub(start)
	logger.Info("scheduler: cycle complete",
		"devices", rep.Devices,
		"succeeded", rep.Succeeded,
		"failed", rep.Failed,
		"duration", rep.Duration.String(),
	)
	return rep
}

// PollDevice collects one device outside the cycle, with the same failure
// handling. It does not take the cycle guard.
func (s *Scheduler) PollDevice(ctx context.Context, deviceID uint) collector.Result {
	return s.poll(ctx, deviceID, s.logger.With("manual", true))
}

// poll runs one collection; a panic becomes a failed result.
func (s *Scheduler) poll(ctx context.Context, deviceID uint, logger *slog.Logger) (res collector.Result) {
	defer func() {
		if p := recover(); p != nil {
			res = collector.Result{DeviceID: deviceID, Err: fmt.Errorf("scheduler: collection panicked: %v", p)}
		}
		s.report(ctx, res, logger)
	}()
	return s.coll.Collect(ctx, deviceID)
}

func (s *Scheduler) report(ctx context.Context, res collector.Result, logger *slog.Logger) {
	if s.opts.Observer != nil {
		s.opts.Observer.DevicePolled(res)
	}
	at := s.now()
	conn := s.opts.Connectivity

	if res.Success {
		logger.Debug("scheduler: device polled",
			"device_id", res.DeviceID,
			"samples", res.SampleCount,
			"duration", res.Duration.String(),
		)
		if conn != nil {
			if _, err := conn.ResolveConnectivity(ctx, res.DeviceID, at); err != nil {
				logger.Warn("scheduler: resolve connectivity alarm failed",
					"device_id", res.DeviceID,
					"error", err.Error(),
				)
			}
		}
		return
	}

	if errors.Is(res.Err, collector.ErrStore) {
		logger.Error("scheduler: device poll not recorded",
			"device_id", res.DeviceID,
			"error", res.Err.Error(),
		)
		return
	}

	cause := res.Err
	if cause == nil {
		cause = fmt.Errorf("collection failed")
	}
	logger.Warn("scheduler: device poll failed",
		"device_id", res.DeviceID,
		"error", cause.Error(),
	)
	if conn != nil {
		// The alarm must be recorded even when the cycle context is done.
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if _, err := conn.RaiseConnectivity(actx, res.DeviceID, res.DeviceName, cause, at); err != nil {
			logger.Error("scheduler: raise connectivity alarm failed",
				"device_id", res.DeviceID,
				"error", err.Error(),
			)
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// noopWriter — discard log output when no logger is provided
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
