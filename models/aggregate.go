package models

import "time"

// Tier names an aggregation level.
type Tier string

const (
	TierRaw    Tier = "raw"
	TierHourly Tier = "hourly"
	TierDaily  Tier = "daily"
)

// BucketSummary is the avg/min/max/count of one (device, interface, metric)
// group within a bucket. It is both the read shape of a grouping query and the
// write shape of an aggregate upsert.
type BucketSummary struct {
	DeviceID    uint
	InterfaceID uint
	MetricType  MetricType
	BucketStart time.Time
	Avg         float64
	Min         float64
	Max         float64
	Count       int64
}

// HourlyAggregate holds at most one row per (device, interface, metric, hour).
type HourlyAggregate struct {
	ID          uint       `gorm:"primaryKey" json:"-"`
	DeviceID    uint       `gorm:"not null;uniqueIndex:idx_hourly_key,priority:1" json:"device_id"`
	InterfaceID uint       `gorm:"not null;default:0;uniqueIndex:idx_hourly_key,priority:2" json:"interface_id,omitempty"`
	MetricType  MetricType `gorm:"size:40;not null;uniqueIndex:idx_hourly_key,priority:3" json:"metric_type"`
	BucketStart time.Time  `gorm:"not null;uniqueIndex:idx_hourly_key,priority:4;index" json:"bucket_start"`
	AvgValue    float64    `gorm:"not null" json:"avg"`
	MinValue    float64    `gorm:"not null" json:"min"`
	MaxValue    float64    `gorm:"not null" json:"max"`
	SampleCount int64      `gorm:"not null" json:"count"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (HourlyAggregate) TableName() string { return "hourly_aggregates" }

// DailyAggregate holds at most one row per (device, interface, metric, day).
type DailyAggregate struct {
	ID          uint       `gorm:"primaryKey" json:"-"`
	DeviceID    uint       `gorm:"not null;uniqueIndex:idx_daily_key,priority:1" json:"device_id"`
	InterfaceID uint       `gorm:"not null;default:0;uniqueIndex:idx_daily_key,priority:2" json:"interface_id,omitempty"`
	MetricType  MetricType `gorm:"size:40;not null;uniqueIndex:idx_daily_key,priority:3" json:"metric_type"`
	BucketStart time.Time  `gorm:"not null;uniqueIndex:idx_daily_key,priority:4;index" json:"bucket_start"`
	AvgValue    float64    `gorm:"not null" json:"avg"`
	MinValue    float64    `gorm:"not null" json:"min"`
	MaxValue    float64    `gorm:"not null" json:"max"`
	SampleCount int64      `gorm:"not null" json:"count"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (DailyAggregate) TableName() string { return "daily_aggregates" }

// AggregationRun records that a source window has been folded into a tier.
// Re-running a recorded window is a no-op, which keeps the additive combine
// from double counting.
type AggregationRun struct {
	ID          uint      `gorm:"primaryKey"`
	Tier        Tier      `gorm:"size:16;not null;uniqueIndex:idx_run_window,priority:1"`
	WindowStart time.Time `gorm:"not null;uniqueIndex:idx_run_window,priority:2"`
	WindowEnd   time.Time `gorm:"not null;uniqueIndex:idx_run_window,priority:3"`
	Groups      int       `gorm:"not null"`
	CreatedAt   time.Time `gorm:"index"`
}

func (AggregationRun) TableName() string { return "aggregation_runs" }
