package emf

import (
	"context"
	"fmt"
	"time"

	"batch-metrics/internal/model"
)

// Sink receives one metric submission per call. Implementations must be
// safe for concurrent use; the orchestrator emits from several workers.
type Sink interface {
	Put(ctx context.Context, rec model.MetricRecord) error
}

// Emitter
//
// Stamps the namespace, bounds each submission with a timeout and hands
// the record to the sink. Rejections are not retried: the record is
// reported as failed and the batch moves on.
type Emitter struct {
	sink      Sink
	namespace string
	timeout   time.Duration
}

// NewEmitter returns an Emitter. A zero timeout leaves the caller's
// deadline in charge.
func NewEmitter(sink Sink, namespace string, timeout time.Duration) *Emitter {
	if namespace == "" {
		namespace = model.DefaultNamespace
	}
	return &Emitter{sink: sink, namespace: namespace, timeout: timeout}
}

// Emit submits rec. The record timestamp is always the event's own.
func (e *Emitter) Emit(ctx context.Context, rec model.MetricRecord) error {
	if rec.Namespace == "" {
		rec.Namespace = e.namespace
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if err := e.sink.Put(ctx, rec); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("emit %s: %w", metricNames(rec), ctxErr)
		}
		return fmt.Errorf("emit %s: %w", metricNames(rec), err)
	}
	return nil
}

func metricNames(rec model.MetricRecord) string {
	if len(rec.Metrics) == 1 {
		return rec.Metrics[0].Name
	}
	return fmt.Sprintf("%d metrics", len(rec.Metrics))
}
