package alarm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vpbank/snmp_monitor/models"
)

func connectivityKey(deviceID uint) models.AlarmKey {
	return models.AlarmKey{DeviceID: deviceID, MetricType: models.MetricConnectivity}
}

// RaiseConnectivity records a failed poll of deviceID as a critical
// connectivity alarm. Repeated failures bump the open alarm.
func (e *Engine) RaiseConnectivity(ctx context.Context, deviceID uint, deviceName string, cause error, at time.Time) (*models.Alarm, error) {
	key := connectivityKey(deviceID)
	reason := "poll failed"
	if cause != nil {
		reason = cause.Error()
	}

	existing, err := e.alarms.FindOpen(ctx, key)
	switch {
	case err == nil:
		existing.OccurrenceCount++
		existing.LastOccurrence = at
		existing.Message = truncate(reason, 1024)
		if err := e.alarms.Save(ctx, existing); err != nil {
			return nil, fmt.Errorf("alarm: update connectivity alarm %d: %w", existing.ID, err)
		}
		e.fired(existing, false)
		return existing, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("alarm: find connectivity alarm: %w", err)
	}

	name := deviceName
	if name == "" {
		name = fmt.Sprintf("device %d", deviceID)
	}
	a := &models.Alarm{
		DeviceID:        deviceID,
		MetricType:      models.MetricConnectivity,
		Severity:        models.SeverityCritical,
		Status:          models.AlarmActive,
		Title:           fmt.Sprintf("Device unreachable: %s", name),
		Message:         truncate(reason, 1024),
		FirstOccurrence: at,
		LastOccurrence:  at,
		OccurrenceCount: 1,
	}
	if err := e.alarms.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("alarm: create connectivity alarm: %w", err)
	}
	e.logger.Warn("alarm: device unreachable",
		"alarm_id", a.ID,
		"device_id", deviceID,
		"error", reason,
	)
	e.fired(a, true)
	return a, nil
}

// ResolveConnectivity resolves the open connectivity alarm of deviceID. It
// returns nil when there is none.
func (e *Engine) ResolveConnectivity(ctx context.Context, deviceID uint, at time.Time) (*models.Alarm, error) {
	a, err := e.alarms.FindOpen(ctx, connectivityKey(deviceID))
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("alarm: find connectivity alarm: %w", err)
	}
	if err := a.Transition(models.AlarmResolved, at); err != nil {
		return nil, err
	}
	a.ResolutionNote = "auto-resolved: device reachable again"
	if err := e.alarms.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("alarm: resolve connectivity alarm %d: %w", a.ID, err)
	}
	e.logger.Info("alarm: device reachable again", "alarm_id", a.ID, "device_id", deviceID)
	e.resolved(a)
	return a, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Operator actions
// ─────────────────────────────────────────────────────────────────────────────

// Acknowledge marks an active alarm as seen by an operator.
func (e *Engine) Acknowledge(ctx context.Context, id uint, by string) (*models.Alarm, error) {
	a, err := e.alarms.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("alarm: load alarm %d: %w", id, err)
	}
	if err := a.Transition(models.AlarmAcknowledged, e.now()); err != nil {
		return nil, err
	}
	a.AcknowledgedBy = by
	if err := e.alarms.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("alarm: acknowledge alarm %d: %w", id, err)
	}
	return a, nil
}

// Resolve closes an alarm by hand.
func (e *Engine) Resolve(ctx context.Context, id uint, note string) (*models.Alarm, error) {
	a, err := e.alarms.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("alarm: load alarm %d: %w", id, err)
	}
	if err := a.Transition(models.AlarmResolved, e.now()); err != nil {
		return nil, err
	}
	a.ResolutionNote = truncate(note, 512)
	if err := e.alarms.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("alarm: resolve alarm %d: %w", id, err)
	}
	e.resolved(a)
	return a, nil
}
