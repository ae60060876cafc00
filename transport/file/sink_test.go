package file_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	fmtjson "github.com/vpbank/snmp_monitor/format/json"
	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/transport/file"
)

func batch(device string) models.SampleBatch {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return models.SampleBatch{
		DeviceID:    1,
		DeviceName:  device,
		CollectedAt: at,
		Samples: []models.Sample{
			{DeviceID: 1, MetricType: models.MetricCPUUsage, Value: 12, CollectedAt: at},
		},
	}
}

func TestSink_WritesOneLinePerBatch(t *testing.T) {
	var buf bytes.Buffer
	sink := file.NewSink(fmtjson.New(fmtjson.Config{}, nil), file.New(file.Config{Writer: &buf}, nil))

	for _, name := range []string{"r1", "r2"} {
		if err := sink.HandleBatch(context.Background(), batch(name)); err != nil {
			t.Fatalf("HandleBatch: %v", err)
		}
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], `"device_name":"r2"`) {
		t.Errorf("line 2 = %s", lines[1])
	}
}

type failFormatter struct{}

func (failFormatter) Format(models.SampleBatch) ([]byte, error) { return nil, errors.New("bad") }

func TestSink_FormatError(t *testing.T) {
	var buf bytes.Buffer
	sink := file.NewSink(failFormatter{}, file.New(file.Config{Writer: &buf}, nil))
	if err := sink.HandleBatch(context.Background(), batch("r1")); err == nil {
		t.Fatal("format error swallowed")
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %q after a format error", buf.String())
	}
}

func TestOpen_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export", "samples.jsonl")
	tr, err := file.Open(file.RotateConfig{Path: path, MaxSizeMB: 1, MaxBackups: 2}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sink := file.NewSink(fmtjson.New(fmtjson.Config{Flatten: true}, nil), tr)
	if err := sink.HandleBatch(context.Background(), batch("r1")); err != nil {
		t.Fatalf("HandleBatch: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), `"metric_type":"cpu_usage"`) {
		t.Errorf("export = %s", data)
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := file.Open(file.RotateConfig{}, nil); err == nil {
		t.Error("empty path accepted")
	}
}
