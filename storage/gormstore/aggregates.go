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

// GormAggregateRepository stores the hourly and daily tiers and the
// aggregation run ledger.
type GormAggregateRepository struct {
	db *gorm.DB
}

// NewGormAggregateRepository creates an aggregate repository on db.
func NewGormAggregateRepository(db *gorm.DB) *GormAggregateRepository {
	return &GormAggregateRepository{db: db}
}

// errWindowApplied aborts the transaction of an already recorded window.
var errWindowApplied = errors.New("window already applied")

// UpsertHourly folds summaries of the raw window [start, end) into the
// hourly tier. It reports false when the window had already been applied.
func (r *GormAggregateRepository) UpsertHourly(ctx context.Context, start, end time.Time, summaries []models.BucketSummary) (bool, error) {
	rows := make([]models.HourlyAggregate, len(summaries))
	for i, s := range summaries {
		rows[i] = models.HourlyAggregate{
			DeviceID:    s.DeviceID,
			InterfaceID: s.InterfaceID,
			MetricType:  s.MetricType,
			BucketStart: s.BucketStart.UTC(),
			AvgValue:    s.Avg,
			MinValue:    s.Min,
			MaxValue:    s.Max,
			SampleCount: s.Count,
		}
	}
	return r.applyWindow(ctx, models.TierHourly, start, end, len(rows), func(tx *gorm.DB) error {
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(r.combineClause(models.HourlyAggregate{}.TableName())).CreateInBatches(rows, 200).Error
	})
}

// UpsertDaily folds summaries of the hourly window [start, end) into the
// daily tier. It reports false when the window had already been applied.
func (r *GormAggregateRepository) UpsertDaily(ctx context.Context, start, end time.Time, summaries []models.BucketSummary) (bool, error) {
	rows := make([]models.DailyAggregate, len(summaries))
	for i, s := range summaries {
		rows[i] = models.DailyAggregate{
			DeviceID:    s.DeviceID,
			InterfaceID: s.InterfaceID,
			MetricType:  s.MetricType,
			BucketStart: s.BucketStart.UTC(),
			AvgValue:    s.Avg,
			MinValue:    s.Min,
			MaxValue:    s.Max,
			SampleCount: s.Count,
		}
	}
	return r.applyWindow(ctx, models.TierDaily, start, end, len(rows), func(tx *gorm.DB) error {
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(r.combineClause(models.DailyAggregate{}.TableName())).CreateInBatches(rows, 200).Error
	})
}

// applyWindow records the ledger row and runs write in one transaction. A
// ledger conflict means the window was applied before; nothing is written.
func (r *GormAggregateRepository) applyWindow(ctx context.Context, tier models.Tier, start, end time.Time, groups int, write func(tx *gorm.DB) error) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run := models.AggregationRun{Tier: tier, WindowStart: start.UTC(), WindowEnd: end.UTC(), Groups: groups}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&run)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errWindowApplied
		}
		return write(tx)
	})
	switch {
	case errors.Is(err, errWindowApplied):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("gormstore: upsert %s window %s: %w", tier, start.Format(time.RFC3339), err)
	}
	return true, nil
}

// combineClause merges an incoming bucket into the stored one: count-weighted
// average, extreme min and max, summed count.
func (r *GormAggregateRepository) combineClause(table string) clause.OnConflict {
	least, greatest := "LEAST", "GREATEST"
	if r.db.Dialector.Name() == DriverSQLite {
		least, greatest = "MIN", "MAX"
	}
	col := func(name string) string { return table + "." + name }
	return clause.OnConflict{
		Columns: []clause.Column{
			{Name: "device_id"}, {Name: "interface_id"}, {Name: "metric_type"}, {Name: "bucket_start"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"avg_value": gorm.Expr(fmt.Sprintf(
				"(%s * %s + excluded.avg_value * excluded.sample_count) / (%s + excluded.sample_count)",
				col("avg_value"), col("sample_count"), col("sample_count"))),
			"min_value":    gorm.Expr(fmt.Sprintf("%s(%s, excluded.min_value)", least, col("min_value"))),
			"max_value":    gorm.Expr(fmt.Sprintf("%s(%s, excluded.max_value)", greatest, col("max_value"))),
			"sample_count": gorm.Expr(fmt.Sprintf("%s + excluded.sample_count", col("sample_count"))),
			"updated_at":   gorm.Expr("excluded.updated_at"),
		}),
	}
}

// SummarizeHourly groups the hourly rows of [start, end) for the daily tier.
// Averages are weighted by sample count. Every summary is stamped with start.
func (r *GormAggregateRepository) SummarizeHourly(ctx context.Context, start, end time.Time) ([]models.BucketSummary, error) {
	var rows []summaryRow
	err := r.db.WithContext(ctx).Model(&models.HourlyAggregate{}).
		Select("device_id, interface_id, metric_type, " +
			"SUM(avg_value * sample_count) / SUM(sample_count) AS avg_value, " +
			"MIN(min_value) AS min_value, MAX(max_value) AS max_value, SUM(sample_count) AS sample_count").
		Where("bucket_start >= ? AND bucket_start < ? AND sample_count > 0", start.UTC(), end.UTC()).
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

// ListHourly returns the hourly rows with bucket start in [start, end).
func (r *GormAggregateRepository) ListHourly(ctx context.Context, start, end time.Time) ([]models.HourlyAggregate, error) {
	var out []models.HourlyAggregate
	err := r.db.WithContext(ctx).
		Where("bucket_start >= ? AND bucket_start < ?", start.UTC(), end.UTC()).
		Order("bucket_start, device_id, interface_id, metric_type").
		Find(&out).Error
	return out, err
}

// ListDaily returns the daily rows with bucket start in [start, end).
func (r *GormAggregateRepository) ListDaily(ctx context.Context, start, end time.Time) ([]models.DailyAggregate, error) {
	var out []models.DailyAggregate
	err := r.db.WithContext(ctx).
		Where("bucket_start >= ? AND bucket_start < ?", start.UTC(), end.UTC()).
		Order("bucket_start, device_id, interface_id, metric_type").
		Find(&out).Error
	return out, err
}

// DeleteOlderThan removes the rows of tier strictly older than cutoff.
func (r *GormAggregateRepository) DeleteOlderThan(ctx context.Context, tier models.Tier, cutoff time.Time) (int64, error) {
	var model interface{}
	switch tier {
	case models.TierHourly:
		model = &models.HourlyAggregate{}
	case models.TierDaily:
		model = &models.DailyAggregate{}
	default:
		return 0, fmt.Errorf("gormstore: no aggregate table for tier %q", tier)
	}
	res := r.db.WithContext(ctx).Where("bucket_start < ?", cutoff.UTC()).Delete(model)
	return res.RowsAffected, res.Error
}

// DeleteRunsOlderThan removes ledger rows of tier whose window ended
// strictly before cutoff.
func (r *GormAggregateRepository) DeleteRunsOlderThan(ctx context.Context, tier models.Tier, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("tier = ? AND window_end < ?", tier, cutoff.UTC()).
		Delete(&models.AggregationRun{})
	return res.RowsAffected, res.Error
}
