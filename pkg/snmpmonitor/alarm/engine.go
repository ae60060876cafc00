// Package alarm evaluates samples against threshold rules. A sustained
// condition is debounced in memory, fired alarms are deduplicated per
// (device, interface, metric, rule) tuple, and open alarms resolve on their
// own once a new sample no longer triggers their rule.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vpbank/snmp_monitor/models"
)

// ErrInvalidTransition is returned by operator actions outside the alarm
// transition table.
var ErrInvalidTransition = models.ErrInvalidTransition

// RuleStore yields the enabled rules of a metric.
type RuleStore interface {
	ActiveRulesForMetric(ctx context.Context, metric models.MetricType) ([]models.AlarmRule, error)
}

// AlarmStore persists alarms. FindOpen and Get return models.ErrNotFound
// when there is no matching row.
type AlarmStore interface {
	FindOpen(ctx context.Context, key models.AlarmKey) (*models.Alarm, error)
	OpenForDeviceMetric(ctx context.Context, deviceID, interfaceID uint, metric models.MetricType) ([]models.Alarm, error)
	Create(ctx context.Context, a *models.Alarm) error
	Save(ctx context.Context, a *models.Alarm) error
	Get(ctx context.Context, id uint) (*models.Alarm, error)
}

// Observer is told about alarm lifecycle events. created is false when an
// existing open alarm absorbed the occurrence.
type Observer interface {
	AlarmFired(a *models.Alarm, created bool)
	AlarmResolved(a *models.Alarm)
}

// Options configures an Engine.
type Options struct {
	Observer Observer
	Clock    func() time.Time
	Logger   *slog.Logger
}

// Engine evaluates rules. It is safe for concurrent use.
type Engine struct {
	rules    RuleStore
	alarms   AlarmStore
	observer Observer
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[models.AlarmKey]time.Time // first triggering sample time
}

// New creates an Engine.
func New(rules RuleStore, alarms AlarmStore, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		rules:    rules,
		alarms:   alarms,
		observer: opts.Observer,
		now:      opts.Clock,
		logger:   opts.Logger,
		pending:  make(map[models.AlarmKey]time.Time),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Rule evaluation
// ─────────────────────────────────────────────────────────────────────────────

// ruleCache memoises rule lookups for the samples of one batch.
type ruleCache map[models.MetricType][]models.AlarmRule

func (e *Engine) rulesFor(ctx context.Context, cache ruleCache, metric models.MetricType) ([]models.AlarmRule, error) {
	if rules, ok := cache[metric]; ok {
		return rules, nil
	}
	rules, err := e.rules.ActiveRulesForMetric(ctx, metric)
	if err != nil {
		return nil, fmt.Errorf("alarm: load rules for %s: %w", metric, err)
	}
	cache[metric] = rules
	return rules, nil
}

// Evaluate checks s against every enabled rule of its metric that applies
// to its device and returns the alarms fired.
func (e *Engine) Evaluate(ctx context.Context, s models.Sample) ([]*models.Alarm, error) {
	return e.evaluate(ctx, ruleCache{}, s)
}

func (e *Engine) evaluate(ctx context.Context, cache ruleCache, s models.Sample) ([]*models.Alarm, error) {
	rules, err := e.rulesFor(ctx, cache, s.MetricType)
	if err != nil {
		return nil, err
	}
	var (
		fired []*models.Alarm
		errs  []error
	)
	for i := range rules {
		rule := &rules[i]
		if !rule.AppliesToDevice(s.DeviceID) {
			continue
		}
		key := models.AlarmKey{
			DeviceID:    s.DeviceID,
			InterfaceID: s.InterfaceID,
			MetricType:  s.MetricType,
			RuleID:      rule.ID,
		}
		sev, threshold, ok := rule.Evaluate(s.Value)
		if !e.sustained(key, ok, rule.DurationSeconds, s.CollectedAt) {
			continue
		}
		a, err := e.fire(ctx, key, rule, sev, threshold, s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fired = append(fired, a)
	}
	return fired, errors.Join(errs...)
}

// sustained applies the duration debounce to one evaluation. A rule without
// a duration fires on the first triggering sample; otherwise the condition
// must hold from the first triggering sample for at least the duration.
func (e *Engine) sustained(key models.AlarmKey, triggered bool, durationSeconds int, at time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !triggered {
		delete(e.pending, key)
		return false
	}
	if durationSeconds <= 0 {
		return true
	}
	since, ok := e.pending[key]
	if !ok {
		e.pending[key] = at
		return false
	}
	return at.Sub(since) >= time.Duration(durationSeconds)*time.Second
}

// Pending returns the number of conditions waiting out their duration.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// fire records an occurrence on the open alarm of key, or opens a new one.
func (e *Engine) fire(ctx context.Context, key models.AlarmKey, rule *models.AlarmRule, sev models.Severity, threshold float64, s models.Sample) (*models.Alarm, error) {
	existing, err := e.alarms.FindOpen(ctx, key)
	switch {
	case err == nil:
		existing.OccurrenceCount++
		existing.LastOccurrence = s.CollectedAt
		existing.CurrentValue = s.Value
		existing.ThresholdValue = threshold
		existing.Severity = sev
		existing.Message = message(rule, sev, threshold, s)
		if err := e.alarms.Save(ctx, existing); err != nil {
			return nil, fmt.Errorf("alarm: update alarm %d: %w", existing.ID, err)
		}
		e.fired(existing, false)
		return existing, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("alarm: find open alarm for rule %d: %w", rule.ID, err)
	}

	a := &models.Alarm{
		DeviceID:        key.DeviceID,
		InterfaceID:     key.InterfaceID,
		MetricType:      key.MetricType,
		RuleID:          rule.ID,
		Severity:        sev,
		Status:          models.AlarmActive,
		Title:           title(key.MetricType, sev, rule.Name),
		Message:         message(rule, sev, threshold, s),
		CurrentValue:    s.Value,
		ThresholdValue:  threshold,
		FirstOccurrence: s.CollectedAt,
		LastOccurrence:  s.CollectedAt,
		OccurrenceCount: 1,
	}
	if err := e.alarms.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("alarm: create alarm for rule %d: %w", rule.ID, err)
	}
	e.logger.Info("alarm: fired",
		"alarm_id", a.ID,
		"device_id", a.DeviceID,
		"metric", string(a.MetricType),
		"severity", string(a.Severity),
		"value", a.CurrentValue,
	)
	e.fired(a, true)
	return a, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Auto resolution
// ─────────────────────────────────────────────────────────────────────────────

// AutoResolve re-checks the open alarms of s's device, interface and metric
// against s and resolves those whose rule no longer triggers. Alarms whose
// rule was disabled or deleted are resolved as well.
func (e *Engine) AutoResolve(ctx context.Context, s models.Sample) ([]*models.Alarm, error) {
	return e.autoResolve(ctx, ruleCache{}, s)
}

func (e *Engine) autoResolve(ctx context.Context, cache ruleCache, s models.Sample) ([]*models.Alarm, error) {
	open, err := e.alarms.OpenForDeviceMetric(ctx, s.DeviceID, s.InterfaceID, s.MetricType)
	if err != nil {
		return nil, fmt.Errorf("alarm: list open alarms: %w", err)
	}
	if len(open) == 0 {
		return nil, nil
	}
	rules, err := e.rulesFor(ctx, cache, s.MetricType)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.AlarmRule, len(rules))
	for i := range rules {
		byID[rules[i].ID] = &rules[i]
	}

	var (
		resolved []*models.Alarm
		errs     []error
	)
	for i := range open {
		a := &open[i]
		var note string
		rule, ok := byID[a.RuleID]
		switch {
		case !ok:
			note = "auto-resolved: rule no longer active"
		case !rule.AppliesToDevice(a.DeviceID):
			note = "auto-resolved: device no longer in rule scope"
		default:
			if _, _, triggered := rule.Evaluate(s.Value); triggered {
				continue
			}
			note = fmt.Sprintf("auto-resolved: %s back to %s", a.MetricType.Label(), formatValue(s.Value, s.MetricType))
		}
		if err := a.Transition(models.AlarmResolved, s.CollectedAt); err != nil {
			errs = append(errs, err)
			continue
		}
		a.ResolutionNote = note
		a.CurrentValue = s.Value
		if err := e.alarms.Save(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("alarm: resolve alarm %d: %w", a.ID, err))
			continue
		}
		e.logger.Info("alarm: auto-resolved",
			"alarm_id", a.ID,
			"device_id", a.DeviceID,
			"metric", string(a.MetricType),
		)
		e.resolved(a)
		resolved = append(resolved, a)
	}
	return resolved, errors.Join(errs...)
}

// Process evaluates then auto-resolves every sample in order. Failures on
// one sample do not stop the others.
func (e *Engine) Process(ctx context.Context, samples []models.Sample) error {
	cache := ruleCache{}
	var errs []error
	for _, s := range samples {
		if s.MetricType == models.MetricConnectivity {
			continue
		}
		if _, err := e.evaluate(ctx, cache, s); err != nil {
			errs = append(errs, err)
		}
		if _, err := e.autoResolve(ctx, cache, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleBatch lets the engine receive the collector's sample batches.
func (e *Engine) HandleBatch(ctx context.Context, batch models.SampleBatch) error {
	return e.Process(ctx, batch.Samples)
}

func (e *Engine) fired(a *models.Alarm, created bool) {
	if e.observer != nil {
		e.observer.AlarmFired(a, created)
	}
}

func (e *Engine) resolved(a *models.Alarm) {
	if e.observer != nil {
		e.observer.AlarmResolved(a)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// noopWriter — discard log output when no logger is provided
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
