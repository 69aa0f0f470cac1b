// Package export forwards every raw lifecycle record of a batch to a
// durable stream (Firehose, or an S3 archive object) for audit and
// offline analysis.
package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"batch-metrics/internal/model"

	json "github.com/goccy/go-json"
)

// DeliveryResult reports, per input record, whether the sink accepted it.
type DeliveryResult struct {
	Accepted    []bool
	FailedCount int
}

// Failed returns the indexes of the rejected records.
func (r DeliveryResult) Failed() []int {
	var idx []int
	for i, ok := range r.Accepted {
		if !ok {
			idx = append(idx, i)
		}
	}
	return idx
}

// Sink writes a batch of serialized records in one call.
type Sink interface {
	PutBatch(ctx context.Context, records [][]byte) (DeliveryResult, error)
}

// Forwarder
//
// The sink's batch API cannot redeliver only the failed subset, so any
// rejected record (or a transport error) fails the whole batch with
// model.ErrBatchDelivery and the transport redelivers all of it.
type Forwarder struct {
	sink    Sink
	timeout time.Duration
}

// NewForwarder returns a Forwarder. A zero timeout leaves the caller's
// deadline in charge.
func NewForwarder(sink Sink, timeout time.Duration) *Forwarder {
	return &Forwarder{sink: sink, timeout: timeout}
}

// Forward writes payloads to the sink as one batch.
func (f *Forwarder) Forward(ctx context.Context, payloads [][]byte) (DeliveryResult, error) {
	if len(payloads) == 0 {
		return DeliveryResult{}, nil
	}

	records := make([][]byte, len(payloads))
	for i, p := range payloads {
		records[i] = Serialize(p)
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	res, err := f.sink.PutBatch(ctx, records)
	if err != nil {
		return res, fmt.Errorf("forward %d records: %w: %w", len(records), model.ErrBatchDelivery, err)
	}
	if res.FailedCount > 0 {
		return res, fmt.Errorf("forward: %d of %d records rejected (%v): %w",
			res.FailedCount, len(records), res.Failed(), model.ErrBatchDelivery)
	}
	return res, nil
}

// Serialize returns the record as written to the stream: compact JSON
// when the payload is JSON, the payload bytes otherwise.
func Serialize(payload []byte) []byte {
	if json.Valid(payload) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, payload); err == nil {
			return buf.Bytes()
		}
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out
}
