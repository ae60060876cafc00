// Package json serialises persisted sample batches for export. Each batch
// becomes one JSON record:
//
//	{
//	  "device_id": 7,
//	  "device_name": "core-sw-01",
//	  "vendor": "cisco",
//	  "collected_at": "2026-02-26T10:30:00Z",
//	  "samples": [ { "device_id": 7, "metric_type": "cpu_usage", "value": 41.5, … } ]
//	}
//
// In flattened mode every sample is its own record, tagged with the device
// name and vendor.
package json

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vpbank/snmp_monitor/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Formatter interface
// ─────────────────────────────────────────────────────────────────────────────

// Formatter serialises a sample batch into a byte slice.
type Formatter interface {
	Format(batch models.SampleBatch) ([]byte, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls JSONFormatter behaviour.
type Config struct {
	// PrettyPrint emits indented, human-readable JSON when true.
	PrettyPrint bool

	// Indent is the indent string used when PrettyPrint=true.
	// Defaults to two spaces when empty and PrettyPrint=true.
	Indent string

	// Flatten emits one record per sample, newline separated.
	Flatten bool
}

// ─────────────────────────────────────────────────────────────────────────────
// JSONFormatter
// ─────────────────────────────────────────────────────────────────────────────

// JSONFormatter implements Formatter using encoding/json. It is safe for
// concurrent use; all fields are immutable after construction.
type JSONFormatter struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a JSONFormatter. If logger is nil, a no-op logger is
// substituted.
func New(cfg Config, logger *slog.Logger) *JSONFormatter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.PrettyPrint && cfg.Indent == "" {
		cfg.Indent = "  "
	}
	if cfg.Flatten {
		// One record per line.
		cfg.PrettyPrint = false
	}
	return &JSONFormatter{cfg: cfg, logger: logger}
}

// flatSample is the record shape of flattened mode.
type flatSample struct {
	DeviceID    uint              `json:"device_id"`
	DeviceName  string            `json:"device_name"`
	Vendor      string            `json:"vendor,omitempty"`
	InterfaceID uint              `json:"interface_id,omitempty"`
	MetricType  models.MetricType `json:"metric_type"`
	Value       float64           `json:"value"`
	Unit        string            `json:"unit,omitempty"`
	CollectedAt time.Time         `json:"collected_at"`
}

// Format serialises batch. An empty batch is an error; the collector never
// persists one.
func (f *JSONFormatter) Format(batch models.SampleBatch) ([]byte, error) {
	if len(batch.Samples) == 0 {
		return nil, fmt.Errorf("format/json: batch of device %d has no samples", batch.DeviceID)
	}

	var (
		data []byte
		err  error
	)
	switch {
	case f.cfg.Flatten:
		data, err = f.flatten(batch)
	case f.cfg.PrettyPrint:
		data, err = json.MarshalIndent(batch, "", f.cfg.Indent)
	default:
		data, err = json.Marshal(batch)
	}
	if err != nil {
		f.logger.Error("format/json: marshal failed",
			"device_id", batch.DeviceID,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("format/json: marshal: %w", err)
	}

	f.logger.Debug("format/json: formatted batch",
		"device_id", batch.DeviceID,
		"device", batch.DeviceName,
		"samples", len(batch.Samples),
		"bytes", len(data),
	)
	return data, nil
}

func (f *JSONFormatter) flatten(batch models.SampleBatch) ([]byte, error) {
	var buf bytes.Buffer
	for n, s := range batch.Samples {
		if n > 0 {
			buf.WriteByte('\n')
		}
		line, err := json.Marshal(flatSample{
			DeviceID:    s.DeviceID,
			DeviceName:  batch.DeviceName,
			Vendor:      batch.Vendor,
			InterfaceID: s.InterfaceID,
			MetricType:  s.MetricType,
			Value:       s.Value,
			Unit:        s.Unit,
			CollectedAt: s.CollectedAt,
		})
		if err != nil {
			return nil, err
		}
		buf.Write(line)
	}
	return buf.Bytes(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

// noopWriter discards all log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
