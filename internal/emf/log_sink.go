package emf

import (
	"context"
	"io"
	"sync"

	"batch-metrics/internal/model"
)

// LogSink writes one EMF document per line. Under Lambda the writer is
// stdout and CloudWatch Logs extracts the metrics from the log group.
type LogSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLogSink returns a LogSink writing to w.
func NewLogSink(w io.Writer) *LogSink {
	return &LogSink{w: w}
}

// Put validates and writes rec as a single line.
func (s *LogSink) Put(ctx context.Context, rec model.MetricRecord) error {
	b, err := Marshal(rec)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b = append(b, '\n')

	// one Write per line so concurrent records never interleave
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(b)
	return err
}
