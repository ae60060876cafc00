package file

import (
	"context"
	"fmt"

	"github.com/vpbank/snmp_monitor/models"
)

// Formatter serialises one sample batch.
type Formatter interface {
	Format(batch models.SampleBatch) ([]byte, error)
}

// Sink formats every batch it receives and sends it on a Transport. It
// satisfies the collector's sample sink interface.
type Sink struct {
	format Formatter
	out    Transport
}

// NewSink pairs f with t.
func NewSink(f Formatter, t Transport) *Sink {
	return &Sink{format: f, out: t}
}

// HandleBatch formats and sends b.
func (s *Sink) HandleBatch(_ context.Context, b models.SampleBatch) error {
	data, err := s.format.Format(b)
	if err != nil {
		return fmt.Errorf("transport/file: sink: %w", err)
	}
	return s.out.Send(data)
}

// Close closes the transport.
func (s *Sink) Close() error { return s.out.Close() }
