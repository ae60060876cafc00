package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vpbank/snmp_monitor/models"
)

// GormDeviceRepository stores devices and their credentials.
type GormDeviceRepository struct {
	db *gorm.DB
}

// NewGormDeviceRepository creates a device repository on db.
func NewGormDeviceRepository(db *gorm.DB) *GormDeviceRepository {
	return &GormDeviceRepository{db: db}
}

// GetDevice loads a device together with its credential.
func (r *GormDeviceRepository) GetDevice(ctx context.Context, id uint) (*models.Device, error) {
	var d models.Device
	err := r.db.WithContext(ctx).Preload("Credential").First(&d, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// GetDeviceByName loads a device by its unique name.
func (r *GormDeviceRepository) GetDeviceByName(ctx context.Context, name string) (*models.Device, error) {
	var d models.Device
	err := r.db.WithContext(ctx).Preload("Credential").Where("name = ?", name).First(&d).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// ListDevices returns every device ordered by ID.
func (r *GormDeviceRepository) ListDevices(ctx context.Context) ([]models.Device, error) {
	var out []models.Device
	if err := r.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListDue returns the enabled devices that are due at now: never polled, or
// polled at least one interval ago. The interval is per device, so the
// final check runs on the loaded rows.
func (r *GormDeviceRepository) ListDue(ctx context.Context, now time.Time) ([]models.Device, error) {
	var enabled []models.Device
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("id").
		Find(&enabled).Error
	if err != nil {
		return nil, err
	}
	due := enabled[:0]
	for i := range enabled {
		if enabled[i].Due(now) {
			due = append(due, enabled[i])
		}
	}
	return due, nil
}

// UpdatePollResult writes the poll bookkeeping and system fields of d.
func (r *GormDeviceRepository) UpdatePollResult(ctx context.Context, d *models.Device) error {
	res := r.db.WithContext(ctx).Model(&models.Device{}).Where("id = ?", d.ID).Updates(map[string]interface{}{
		"last_poll_at": d.LastPollAt,
		"last_poll_ok": d.LastPollOK,
		"last_error":   d.LastError,
		"status":       d.Status,
		"vendor":       d.Vendor,
		"model":        d.Model,
		"device_class": d.DeviceClass,
		"sys_descr":    d.SysDescr,
		"sys_name":     d.SysName,
		"sys_location": d.SysLocation,
		"sys_contact":  d.SysContact,
		"sys_uptime":   d.SysUptime,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("device %d: %w", d.ID, ErrNotFound)
	}
	return nil
}

// SetEnabled toggles polling for a device.
func (r *GormDeviceRepository) SetEnabled(ctx context.Context, id uint, enabled bool) error {
	return r.db.WithContext(ctx).Model(&models.Device{}).Where("id = ?", id).
		Update("enabled", enabled).Error
}

// UpsertSeed creates the device named d.Name or updates its connection
// settings, and replaces its credential when cred is non-nil. Poll
// bookkeeping of an existing device is left untouched.
func (r *GormDeviceRepository) UpsertSeed(ctx context.Context, d *models.Device, cred *models.Credential) (*models.Device, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Device
		err := tx.Where("name = ?", d.Name).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if d.Status == "" {
				d.Status = models.StatusUnknown
			}
			if err := tx.Omit(clause.Associations).Create(d).Error; err != nil {
				return err
			}
			// enabled carries a column default, so a false value is not
			// written by Create.
			if !d.Enabled {
				if err := tx.Model(d).Update("enabled", false).Error; err != nil {
					return err
				}
			}
		case err != nil:
			return err
		default:
			d.ID = existing.ID
			if err := tx.Model(&existing).Updates(map[string]interface{}{
				"address":       d.Address,
				"port":          d.Port,
				"version":       d.Version,
				"poll_interval": d.PollInterval,
				"enabled":       d.Enabled,
			}).Error; err != nil {
				return err
			}
		}
		if cred == nil {
			return nil
		}
		cred.DeviceID = d.ID
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"community", "username", "auth_protocol", "auth_key",
				"priv_protocol", "priv_key", "updated_at",
			}),
		}).Create(cred).Error
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: seed device %s: %w", d.Name, err)
	}
	return r.GetDevice(ctx, d.ID)
}
