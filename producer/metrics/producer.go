// Package metrics turns raw SNMP readings into samples. It owns the
// in-memory counter state used for rate computation, the counter-wrap and
// utilization arithmetic, and the Batch builder that stamps every sample of
// one poll with the same collection time.
package metrics

import (
	"time"

	"github.com/vpbank/snmp_monitor/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Batch — per-poll sample builder
// ─────────────────────────────────────────────────────────────────────────────

// Batch accumulates the samples of one poll. It is not safe for concurrent
// use; each collection owns its own Batch.
type Batch struct {
	batch models.SampleBatch
}

// NewBatch starts a batch for device stamped at collectedAt.
func NewBatch(deviceID uint, deviceName string, collectedAt time.Time) *Batch {
	return &Batch{batch: models.SampleBatch{
		DeviceID:    deviceID,
		DeviceName:  deviceName,
		CollectedAt: collectedAt,
	}}
}

// SetVendor records the vendor detected during the poll.
func (b *Batch) SetVendor(vendor string) { b.batch.Vendor = vendor }

// CollectedAt is the timestamp shared by every sample of the batch.
func (b *Batch) CollectedAt() time.Time { return b.batch.CollectedAt }

// Add appends a device-level sample. Non-finite values are dropped so that
// a division artefact never reaches storage; Add reports whether the sample
// was kept.
func (b *Batch) Add(metric models.MetricType, value float64) bool {
	return b.AddInterface(metric, 0, value)
}

// AddInterface appends a sample scoped to an interface.
func (b *Batch) AddInterface(metric models.MetricType, interfaceID uint, value float64) bool {
	if !Finite(value) {
		return false
	}
	b.batch.Samples = append(b.batch.Samples, models.Sample{
		DeviceID:    b.batch.DeviceID,
		InterfaceID: interfaceID,
		MetricType:  metric,
		Value:       value,
		Unit:        metric.Unit(),
		CollectedAt: b.batch.CollectedAt,
	})
	return true
}

// AddOptional appends v when the strategy produced a value.
func (b *Batch) AddOptional(metric models.MetricType, v *float64) bool {
	if v == nil {
		return false
	}
	return b.Add(metric, *v)
}

// Len returns the number of samples collected so far.
func (b *Batch) Len() int { return len(b.batch.Samples) }

// Samples returns the collected samples.
func (b *Batch) Samples() []models.Sample { return b.batch.Samples }

// Result returns the finished batch.
func (b *Batch) Result() models.SampleBatch { return b.batch }
