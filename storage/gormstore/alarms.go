package gormstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/vpbank/snmp_monitor/models"
)

// GormRuleRepository stores alarm rules.
type GormRuleRepository struct {
	db *gorm.DB
}

// NewGormRuleRepository creates a rule repository on db.
func NewGormRuleRepository(db *gorm.DB) *GormRuleRepository {
	return &GormRuleRepository{db: db}
}

// ActiveRulesForMetric returns the enabled rules of metric ordered by ID.
func (r *GormRuleRepository) ActiveRulesForMetric(ctx context.Context, metric models.MetricType) ([]models.AlarmRule, error) {
	var out []models.AlarmRule
	err := r.db.WithContext(ctx).
		Where("metric_type = ? AND enabled = ?", metric, true).
		Order("id").
		Find(&out).Error
	return out, err
}

// ListRules returns every rule ordered by ID.
func (r *GormRuleRepository) ListRules(ctx context.Context) ([]models.AlarmRule, error) {
	var out []models.AlarmRule
	err := r.db.WithContext(ctx).Order("id").Find(&out).Error
	return out, err
}

// CreateRule validates and inserts rule.
func (r *GormRuleRepository) CreateRule(ctx context.Context, rule *models.AlarmRule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("gormstore: %w", err)
	}
	enabled := rule.Enabled
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rule).Error; err != nil {
			return err
		}
		if !enabled {
			rule.Enabled = false
			return tx.Model(rule).Update("enabled", false).Error
		}
		return nil
	})
}

// GormAlarmRepository stores alarms.
type GormAlarmRepository struct {
	db *gorm.DB
}

// NewGormAlarmRepository creates an alarm repository on db.
func NewGormAlarmRepository(db *gorm.DB) *GormAlarmRepository {
	return &GormAlarmRepository{db: db}
}

var openStatuses = []models.AlarmStatus{models.AlarmActive, models.AlarmAcknowledged}

// FindOpen returns the active or acknowledged alarm of key, or ErrNotFound.
func (r *GormAlarmRepository) FindOpen(ctx context.Context, key models.AlarmKey) (*models.Alarm, error) {
	var a models.Alarm
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND interface_id = ? AND metric_type = ? AND rule_id = ? AND status IN ?",
			key.DeviceID, key.InterfaceID, key.MetricType, key.RuleID, openStatuses).
		Order("id DESC").
		First(&a).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// OpenForDeviceMetric returns the open alarms of one device, interface and
// metric across all rules.
func (r *GormAlarmRepository) OpenForDeviceMetric(ctx context.Context, deviceID, interfaceID uint, metric models.MetricType) ([]models.Alarm, error) {
	var out []models.Alarm
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND interface_id = ? AND metric_type = ? AND status IN ?",
			deviceID, interfaceID, metric, openStatuses).
		Order("id").
		Find(&out).Error
	return out, err
}

// ListOpen returns every open alarm, newest first.
func (r *GormAlarmRepository) ListOpen(ctx context.Context) ([]models.Alarm, error) {
	var out []models.Alarm
	err := r.db.WithContext(ctx).Where("status IN ?", openStatuses).Order("id DESC").Find(&out).Error
	return out, err
}

// Create inserts a new alarm.
func (r *GormAlarmRepository) Create(ctx context.Context, a *models.Alarm) error {
	return r.db.WithContext(ctx).Create(a).Error
}

// Save writes every column of a.
func (r *GormAlarmRepository) Save(ctx context.Context, a *models.Alarm) error {
	return r.db.WithContext(ctx).Save(a).Error
}

// Get loads an alarm by ID.
func (r *GormAlarmRepository) Get(ctx context.Context, id uint) (*models.Alarm, error) {
	var a models.Alarm
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}
