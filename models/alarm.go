package models

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"
)

// Severity of a fired rule.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Operator compares a sample value against a threshold.
type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// Compare applies op to value and threshold. NaN never matches.
func (op Operator) Compare(value, threshold float64) bool {
	if math.IsNaN(value) || math.IsNaN(threshold) {
		return false
	}
	switch op {
	case OpGreater:
		return value > threshold
	case OpGreaterEqual:
		return value >= threshold
	case OpLess:
		return value < threshold
	case OpLessEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	case OpNotEqual:
		return value != threshold
	default:
		return false
	}
}

// AlarmRule is a threshold rule for one metric type.
type AlarmRule struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Name            string     `gorm:"size:128;uniqueIndex;not null" json:"name"`
	MetricType      MetricType `gorm:"size:40;not null;index" json:"metric_type"`
	Operator        Operator   `gorm:"size:4;not null" json:"operator"`
	Warning         *float64   `json:"warning,omitempty"`
	Critical        float64    `gorm:"not null" json:"critical"`
	DurationSeconds int        `gorm:"not null;default:0" json:"duration_seconds"`
	DeviceIDs       []uint     `gorm:"serializer:json" json:"device_ids,omitempty"` // empty = all devices
	Enabled         bool       `gorm:"not null;default:true;index" json:"enabled"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (AlarmRule) TableName() string { return "alarm_rules" }

// AppliesToDevice reports whether the rule's scope includes deviceID.
func (r *AlarmRule) AppliesToDevice(deviceID uint) bool {
	return len(r.DeviceIDs) == 0 || slices.Contains(r.DeviceIDs, deviceID)
}

// Evaluate checks the critical threshold first, then warning. It returns the
// matched severity and threshold.
func (r *AlarmRule) Evaluate(value float64) (Severity, float64, bool) {
	if r.Operator.Compare(value, r.Critical) {
		return SeverityCritical, r.Critical, true
	}
	if r.Warning != nil && r.Operator.Compare(value, *r.Warning) {
		return SeverityWarning, *r.Warning, true
	}
	return "", 0, false
}

// Validate rejects malformed rules before they are stored.
func (r *AlarmRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.MetricType == "" {
		return fmt.Errorf("rule %q: metric type is required", r.Name)
	}
	if !r.Operator.Valid() {
		return fmt.Errorf("rule %q: unknown operator %q", r.Name, r.Operator)
	}
	if r.DurationSeconds < 0 {
		return fmt.Errorf("rule %q: negative duration", r.Name)
	}
	return nil
}

// AlarmStatus is the lifecycle state of an alarm row. Pending is tracked in
// memory by the engine and never persisted.
type AlarmStatus string

const (
	AlarmPending      AlarmStatus = "pending"
	AlarmActive       AlarmStatus = "active"
	AlarmAcknowledged AlarmStatus = "acknowledged"
	AlarmResolved     AlarmStatus = "resolved"
)

var alarmTransitions = map[AlarmStatus][]AlarmStatus{
	AlarmPending:      {AlarmActive, AlarmResolved},
	AlarmActive:       {AlarmAcknowledged, AlarmResolved},
	AlarmAcknowledged: {AlarmResolved},
}

// CanTransition reports whether from → to is an allowed alarm transition.
func CanTransition(from, to AlarmStatus) bool {
	return slices.Contains(alarmTransitions[from], to)
}

// Open reports whether the alarm still counts for deduplication.
func (s AlarmStatus) Open() bool {
	return s == AlarmActive || s == AlarmAcknowledged
}

// AlarmKey identifies the tuple an alarm deduplicates on.
type AlarmKey struct {
	DeviceID    uint
	InterfaceID uint
	MetricType  MetricType
	RuleID      uint
}

// Alarm is one incident. RuleID is 0 for connectivity alarms.
type Alarm struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	DeviceID        uint        `gorm:"not null;index:idx_alarm_tuple,priority:1" json:"device_id"`
	InterfaceID     uint        `gorm:"not null;default:0;index:idx_alarm_tuple,priority:2" json:"interface_id,omitempty"`
	MetricType      MetricType  `gorm:"size:40;not null;index:idx_alarm_tuple,priority:3" json:"metric_type"`
	RuleID          uint        `gorm:"not null;default:0;index:idx_alarm_tuple,priority:4" json:"rule_id,omitempty"`
	Severity        Severity    `gorm:"size:16;not null" json:"severity"`
	Status          AlarmStatus `gorm:"size:16;not null;index" json:"status"`
	Title           string      `gorm:"size:255" json:"title"`
	Message         string      `gorm:"size:1024" json:"message"`
	CurrentValue    float64     `json:"current_value"`
	ThresholdValue  float64     `json:"threshold_value"`
	FirstOccurrence time.Time   `json:"first_occurrence"`
	LastOccurrence  time.Time   `json:"last_occurrence"`
	OccurrenceCount int         `gorm:"not null;default:1" json:"occurrence_count"`

	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `gorm:"size:128" json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolutionNote string     `gorm:"size:512" json:"resolution_note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Alarm) TableName() string { return "alarms" }

// Key returns the dedup tuple of the alarm.
func (a *Alarm) Key() AlarmKey {
	return AlarmKey{DeviceID: a.DeviceID, InterfaceID: a.InterfaceID, MetricType: a.MetricType, RuleID: a.RuleID}
}

// Transition moves the alarm to status to, or fails when the move is not in
// the transition table.
func (a *Alarm) Transition(to AlarmStatus, at time.Time) error {
	if !CanTransition(a.Status, to) {
		return fmt.Errorf("alarm %d: %s -> %s: %w", a.ID, a.Status, to, ErrInvalidTransition)
	}
	a.Status = to
	switch to {
	case AlarmAcknowledged:
		t := at
		a.AcknowledgedAt = &t
	case AlarmResolved:
		t := at
		a.ResolvedAt = &t
	}
	return nil
}

var (
	// ErrInvalidTransition is returned for alarm moves outside the transition table.
	ErrInvalidTransition = errors.New("invalid alarm transition")

	// ErrNotFound is returned by stores when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")
)
