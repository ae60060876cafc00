// Package collector implements one collection pass against one device:
// system info and vendor detection, per-vendor device metrics, interface
// counter rates, persistence of the resulting samples and the device's poll
// bookkeeping.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/poller"
	"github.com/vpbank/snmp_monitor/producer/metrics"
	"github.com/vpbank/snmp_monitor/snmp/registry"
)

// ─────────────────────────────────────────────────────────────────────────────
// Collaborators
// ─────────────────────────────────────────────────────────────────────────────

// Store is the persistence surface used by the engine.
type Store interface {
	GetDevice(ctx context.Context, id uint) (*models.Device, error)
	UpdatePollResult(ctx context.Context, d *models.Device) error

	ListMonitored(ctx context.Context, deviceID uint) ([]models.InterfaceInfo, error)
	UpsertInterfaces(ctx context.Context, deviceID uint, ifaces []models.InterfaceInfo) ([]models.InterfaceInfo, error)
	UpdateOperStatus(ctx context.Context, interfaceID uint, status int, at time.Time) error

	InsertSamples(ctx context.Context, samples []models.Sample) error
}

// Opener decrypts sealed credential fields.
type Opener interface {
	Open(sealed string) (string, error)
}

// SampleSink receives every persisted batch. Sinks run synchronously after
// the insert; a sink error is logged and does not fail the collection.
type SampleSink interface {
	HandleBatch(ctx context.Context, batch models.SampleBatch) error
}

// ErrStore marks a collection that reached the device but could not be
// recorded. Such a result is not a connectivity failure.
var ErrStore = errors.New("store failure")

// SinkFunc adapts a function to SampleSink.
type SinkFunc func(ctx context.Context, batch models.SampleBatch) error

func (f SinkFunc) HandleBatch(ctx context.Context, b models.SampleBatch) error { return f(ctx, b) }

// ─────────────────────────────────────────────────────────────────────────────
// Engine
// ─────────────────────────────────────────────────────────────────────────────

// Options configures an Engine. Zero values pick the defaults.
type Options struct {
	Dialer           poller.Dialer
	Secrets          Opener // nil: credential fields are used as stored
	Counters         *metrics.CounterStore
	Sinks            []SampleSink
	DefaultCommunity string
	Timeout          time.Duration // per-request agent timeout
	Retries          int
	PassTimeout      time.Duration // upper bound for a whole collection pass
	Clock            func() time.Time
	Logger           *slog.Logger
}

// Result is the outcome of one collection pass.
type Result struct {
	DeviceID    uint
	DeviceName  string
	Success     bool
	SampleCount int
	Vendor      registry.Vendor
	Duration    time.Duration
	Err         error
}

// Engine runs collection passes. It is safe for concurrent use by the
// scheduler's workers; the only shared mutable state is the counter store.
type Engine struct {
	store    Store
	dialer   poller.Dialer
	secrets  Opener
	counters *metrics.CounterStore
	sinks    []SampleSink
	opts     Options
	now      func() time.Time
	logger   *slog.Logger
}

// DefaultPassTimeout bounds one collection pass.
const DefaultPassTimeout = 2 * time.Minute

// New creates an Engine backed by store.
func New(store Store, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if opts.Dialer == nil {
		opts.Dialer = poller.Dial
	}
	if opts.Counters == nil {
		opts.Counters = metrics.NewCounterStore()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.PassTimeout <= 0 {
		opts.PassTimeout = DefaultPassTimeout
	}
	return &Engine{
		store:    store,
		dialer:   opts.Dialer,
		secrets:  opts.Secrets,
		counters: opts.Counters,
		sinks:    opts.Sinks,
		opts:     opts,
		now:      opts.Clock,
		logger:   opts.Logger,
	}
}

// Counters exposes the engine's counter store for housekeeping.
func (e *Engine) Counters() *metrics.CounterStore { return e.counters }

// Collect runs one collection pass for deviceID. Failures are reported in
// Result.Err; the device row is always updated when it could be loaded.
func (e *Engine) Collect(ctx context.Context, deviceID uint) (res Result) {
	start := e.now()
	res = Result{DeviceID: deviceID}
	defer func() { res.Duration = e.now().Sub(start) }()

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	dev, err := e.store.GetDevice(ctx, deviceID)
	if err != nil {
		res.Err = fmt.Errorf("collector: load device %d: %w: %w", deviceID, ErrStore, err)
		return res
	}
	res.DeviceName = dev.Name

	target, err := e.TargetFor(dev)
	if err != nil {
		res.Err = err
		e.markDown(ctx, dev, start, err)
		return res
	}

	sess, err := e.dial(ctx, target)
	if err != nil {
		res.Err = fmt.Errorf("collector: device %s: %w", dev.Name, err)
		e.markDown(ctx, dev, start, res.Err)
		return res
	}
	defer sess.Close()

	info, err := readSystemInfo(ctx, sess)
	if err != nil {
		res.Err = fmt.Errorf("collector: device %s: %w", dev.Name, err)
		e.markDown(ctx, dev, start, res.Err)
		return res
	}
	info.apply(dev)
	res.Vendor = registry.Vendor(dev.Vendor)

	collectedAt := e.now().UTC()
	batch := metrics.NewBatch(dev.ID, dev.Name, collectedAt)
	batch.SetVendor(dev.Vendor)
	if info.HasUptime {
		batch.Add(models.MetricUptime, metrics.TicksToSeconds(info.Uptime))
	}

	st := &State{DeviceID: dev.ID, Vendor: res.Vendor, Counters: e.counters, Now: collectedAt}
	passErr := e.collectDevice(ctx, sess, StrategyFor(res.Vendor), st, batch)

	var degraded bool
	if passErr == nil {
		degraded, passErr = e.collectInterfaces(ctx, sess, dev, batch)
	}

	// Samples read before a mid-pass failure are kept.
	storeErr := e.persist(ctx, batch)
	res.SampleCount = batch.Len()

	if passErr != nil {
		if storeErr != nil {
			passErr = errors.Join(passErr, storeErr)
		}
		res.Err = fmt.Errorf("collector: device %s: %w", dev.Name, passErr)
		e.markDown(ctx, dev, collectedAt, res.Err)
		return res
	}

	t := collectedAt
	dev.LastPollAt = &t
	dev.LastPollOK = true
	dev.LastError = ""
	dev.Status = models.StatusUp
	if degraded {
		dev.Status = models.StatusWarning
	}
	if err := e.store.UpdatePollResult(ctx, dev); err != nil {
		storeErr = errors.Join(storeErr, fmt.Errorf("update device: %w", err))
	}
	if storeErr != nil {
		// The device answered; only the bookkeeping failed.
		res.Err = fmt.Errorf("collector: device %s: %w: %w", dev.Name, ErrStore, storeErr)
		return res
	}
	res.Success = true

	e.logger.Debug("collector: pass complete",
		"device_id", dev.ID,
		"device", dev.Name,
		"vendor", dev.Vendor,
		"samples", res.SampleCount,
	)
	return res
}

// deviceMetric pairs a metric with the strategy method producing it.
type deviceMetric struct {
	metric models.MetricType
	fn     func(context.Context, poller.Session, *State) (*float64, error)
}

func capabilities(s Strategy) []deviceMetric {
	return []deviceMetric{
		{models.MetricCPUUsage, s.CPU},
		{models.MetricMemoryUsage, s.Memory},
		{models.MetricTemperature, s.Temperature},
		{models.MetricDiskUsage, s.Disk},
		{models.MetricLoadAverage, s.Load},
		{models.MetricSwapUsage, s.Swap},
		{models.MetricTCPConnections, s.TCPConnections},
		{models.MetricProcessCount, s.ProcessCount},
	}
}

// collectDevice runs every capability of s. A nil value or an agent-level
// error only drops that metric; a transport error ends the pass.
func (e *Engine) collectDevice(ctx context.Context, sess poller.Session, s Strategy, st *State, batch *metrics.Batch) error {
	for _, c := range capabilities(s) {
		v, err := c.fn(ctx, sess, st)
		if err != nil {
			if poller.IsTransportError(err) || ctx.Err() != nil {
				return err
			}
			e.logger.Debug("collector: metric unavailable",
				"device_id", st.DeviceID,
				"metric", string(c.metric),
				"error", err.Error(),
			)
			continue
		}
		batch.AddOptional(c.metric, v)
	}
	return nil
}

func (e *Engine) persist(ctx context.Context, batch *metrics.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	if err := e.store.InsertSamples(ctx, batch.Samples()); err != nil {
		return fmt.Errorf("insert samples: %w", err)
	}
	result := batch.Result()
	for _, s := range e.sinks {
		if err := s.HandleBatch(ctx, result); err != nil {
			e.logger.Warn("collector: sample sink failed",
				"device_id", result.DeviceID,
				"error", err.Error(),
			)
		}
	}
	return nil
}

// markDown records a failed attempt on the device row.
func (e *Engine) markDown(ctx context.Context, dev *models.Device, at time.Time, cause error) {
	t := at
	dev.LastPollAt = &t
	dev.LastPollOK = false
	dev.Status = models.StatusDown
	dev.LastError = truncate(cause.Error(), 512)
	// The pass context may already be expired; the bookkeeping write must
	// still land.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.store.UpdatePollResult(wctx, dev); err != nil {
		e.logger.Error("collector: record failed poll",
			"device_id", dev.ID,
			"error", err.Error(),
		)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Sessions
// ─────────────────────────────────────────────────────────────────────────────

// TargetFor builds the session target of d, decrypting its credential.
func (e *Engine) TargetFor(d *models.Device) (poller.Target, error) {
	t := poller.Target{
		Address: d.Address,
		Port:    uint16(d.Port),
		Version: d.Version,
		Timeout: e.opts.Timeout,
		Retries: e.opts.Retries,
	}
	if t.Version == "" {
		t.Version = poller.Version2c
	}
	c := d.Credential
	if c == nil {
		t.Community = e.opts.DefaultCommunity
		return t, t.Validate()
	}

	var err error
	open := func(sealed string) string {
		if sealed == "" || err != nil {
			return ""
		}
		if e.secrets == nil {
			return sealed
		}
		var plain string
		plain, err = e.secrets.Open(sealed)
		return plain
	}
	t.Community = open(c.Community)
	t.Username = c.Username
	t.AuthProtocol = c.AuthProtocol
	t.AuthKey = open(c.AuthKey)
	t.PrivProtocol = c.PrivProtocol
	t.PrivKey = open(c.PrivKey)
	if err != nil {
		return poller.Target{}, fmt.Errorf("collector: device %s: decrypt credential: %w", d.Name, err)
	}
	if t.Community == "" && t.Version != poller.Version3 {
		t.Community = e.opts.DefaultCommunity
	}
	return t, t.Validate()
}

func (e *Engine) dial(ctx context.Context, t poller.Target) (poller.Session, error) {
	if t.Timeout == 0 {
		t.Timeout = e.opts.Timeout
	}
	if t.Retries == 0 {
		t.Retries = e.opts.Retries
	}
	return e.dialer(ctx, t)
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.opts.PassTimeout)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ─────────────────────────────────────────────────────────────────────────────
// noopWriter — discard log output when no logger is provided
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
