package gormstore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vpbank/snmp_monitor/models"
)

// GormInterfaceRepository stores discovered interfaces.
type GormInterfaceRepository struct {
	db *gorm.DB
}

// NewGormInterfaceRepository creates an interface repository on db.
func NewGormInterfaceRepository(db *gorm.DB) *GormInterfaceRepository {
	return &GormInterfaceRepository{db: db}
}

// ListInterfaces returns every interface of deviceID ordered by ifIndex.
func (r *GormInterfaceRepository) ListInterfaces(ctx context.Context, deviceID uint) ([]models.InterfaceInfo, error) {
	var out []models.InterfaceInfo
	err := r.db.WithContext(ctx).Where("device_id = ?", deviceID).Order("if_index").Find(&out).Error
	return out, err
}

// ListMonitored returns the monitored interfaces of deviceID.
func (r *GormInterfaceRepository) ListMonitored(ctx context.Context, deviceID uint) ([]models.InterfaceInfo, error) {
	var out []models.InterfaceInfo
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND monitored = ?", deviceID, true).
		Order("if_index").
		Find(&out).Error
	return out, err
}

// UpsertInterfaces inserts or refreshes interfaces keyed by (device,
// ifIndex). Existing rows keep their ID and Monitored flag. The stored rows
// are returned in ifIndex order.
func (r *GormInterfaceRepository) UpsertInterfaces(ctx context.Context, deviceID uint, ifaces []models.InterfaceInfo) ([]models.InterfaceInfo, error) {
	if len(ifaces) == 0 {
		return nil, nil
	}
	rows := make([]models.InterfaceInfo, len(ifaces))
	indexes := make([]int, len(ifaces))
	for i, iface := range ifaces {
		iface.ID = 0
		iface.DeviceID = deviceID
		rows[i] = iface
		indexes[i] = iface.IfIndex
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}, {Name: "if_index"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "descr", "alias", "mac", "speed", "high_speed",
			"admin_status", "oper_status", "updated_at",
		}),
	}).CreateInBatches(rows, 200).Error
	if err != nil {
		return nil, err
	}

	var out []models.InterfaceInfo
	err = r.db.WithContext(ctx).
		Where("device_id = ? AND if_index IN ?", deviceID, indexes).
		Order("if_index").
		Find(&out).Error
	return out, err
}

// UpdateOperStatus records an operational status change.
func (r *GormInterfaceRepository) UpdateOperStatus(ctx context.Context, interfaceID uint, status int, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.InterfaceInfo{}).Where("id = ?", interfaceID).
		Updates(map[string]interface{}{
			"oper_status": status,
			"last_change": at,
		}).Error
}

// SetMonitored includes or excludes an interface from collection.
func (r *GormInterfaceRepository) SetMonitored(ctx context.Context, interfaceID uint, monitored bool) error {
	return r.db.WithContext(ctx).Model(&models.InterfaceInfo{}).Where("id = ?", interfaceID).
		Update("monitored", monitored).Error
}
