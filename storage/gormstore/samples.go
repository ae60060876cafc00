package gormstore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/vpbank/snmp_monitor/models"
)

// sampleBatchSize bounds the rows per INSERT statement.
const sampleBatchSize = 500

// GormSampleRepository stores raw samples.
type GormSampleRepository struct {
	db *gorm.DB
}

// NewGormSampleRepository creates a sample repository on db.
func NewGormSampleRepository(db *gorm.DB) *GormSampleRepository {
	return &GormSampleRepository{db: db}
}

// InsertSamples writes samples in batches. Timestamps are stored in UTC;
// SQLite keeps times as text, so mixed zones would break range predicates.
func (r *GormSampleRepository) InsertSamples(ctx context.Context, samples []models.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	rows := make([]models.Sample, len(samples))
	for i, smp := range samples {
		smp.CollectedAt = smp.CollectedAt.UTC()
		rows[i] = smp
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, sampleBatchSize).Error
}

// ListSamples returns the samples of one device and metric in [start, end).
func (r *GormSampleRepository) ListSamples(ctx context.Context, deviceID uint, metric models.MetricType, start, end time.Time) ([]models.Sample, error) {
	var out []models.Sample
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND metric_type = ? AND collected_at >= ? AND collected_at < ?", deviceID, metric, start.UTC(), end.UTC()).
		Order("collected_at").
		Find(&out).Error
	return out, err
}

// summaryRow is the scan target of the grouping queries.
type summaryRow struct {
	DeviceID    uint
	InterfaceID uint
	MetricType  models.MetricType
	AvgValue    float64
	MinValue    float64
	MaxValue    float64
	SampleCount int64
}

func (s summaryRow) bucket(start time.Time) models.BucketSummary {
	return models.BucketSummary{
		DeviceID:    s.DeviceID,
		InterfaceID: s.InterfaceID,
		MetricType:  s.MetricType,
		BucketStart: start,
		Avg:         s.AvgValue,
		Min:         s.MinValue,
		Max:         s.MaxValue,
		Count:       s.SampleCount,
	}
}

// SummarizeSamples groups the raw samples of [start, end) by device,
// interface and metric. Every summary is stamped with start.
func (r *GormSampleRepository) SummarizeSamples(ctx context.Context, start, end time.Time) ([]models.BucketSummary, error) {
	var rows []summaryRow
	err := r.db.WithContext(ctx).Model(&models.Sample{}).
		Select("device_id, interface_id, metric_type, " +
			"AVG(value) AS avg_value, MIN(value) AS min_value, MAX(value) AS max_value, COUNT(*) AS sample_count").
		Where("collected_at >= ? AND collected_at < ?", start.UTC(), end.UTC()).
		Group("device_id, interface_id, metric_type").
		Order("device_id, interface_id, metric_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.BucketSummary, len(rows))
	for i, row := range rows {
		out[i] = row.bucket(start)
	}
	return out, nil
}

// DeleteSamplesBefore removes raw samples strictly older than cutoff.
func (r *GormSampleRepository) DeleteSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("collected_at < ?", cutoff.UTC()).Delete(&models.Sample{})
	return res.RowsAffected, res.Error
}
