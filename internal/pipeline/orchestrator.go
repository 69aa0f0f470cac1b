// Package pipeline runs one inbound batch end to end: every record through
// normalization and metric emission, and the whole batch through the
// durable export, with failures isolated per record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"batch-metrics/internal/export"
	"batch-metrics/internal/metrics"
	"batch-metrics/internal/model"
	"batch-metrics/internal/normalize"

	"github.com/aws/aws-lambda-go/events"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Emitter submits one metric record.
type Emitter interface {
	Emit(ctx context.Context, rec model.MetricRecord) error
}

// Forwarder writes the raw records of a batch to the durable stream.
type Forwarder interface {
	Forward(ctx context.Context, payloads [][]byte) (export.DeliveryResult, error)
}

// Options wires an Orchestrator. Forwarder may be nil when export is off.
type Options struct {
	Normalizer *normalize.Normalizer
	Emitter    Emitter
	Forwarder  Forwarder
	Metrics    *metrics.Metrics
	Workers    int
}

// Failure is one record that produced no metric.
type Failure struct {
	RecordID string `json:"recordId"`
	Kind     string `json:"kind"`
	Reason   string `json:"reason"`
}

// Outcome summarizes a batch. Processed + Failed + Skipped == Total.
type Outcome struct {
	BatchID   string    `json:"batchId"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Exported  int       `json:"exported"`
	Failures  []Failure `json:"failures,omitempty"`
}

type status int

const (
	statusSkipped status = iota
	statusProcessed
	statusFailed
)

type result struct {
	status status
	err    error
}

// Orchestrator
//
// Holds no per-batch state; one instance serves every invocation of the
// process and concurrent ProcessBatch calls are safe.
type Orchestrator struct {
	normalizer *normalize.Normalizer
	emitter    Emitter
	forwarder  Forwarder
	metrics    *metrics.Metrics
	workers    int
}

// New returns an Orchestrator. Workers below 1 means sequential.
func New(opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Orchestrator{
		normalizer: opts.Normalizer,
		emitter:    opts.Emitter,
		forwarder:  opts.Forwarder,
		metrics:    opts.Metrics,
		workers:    opts.Workers,
	}
}

// ProcessSQSEvent runs the records of a Lambda SQS event.
func (o *Orchestrator) ProcessSQSEvent(ctx context.Context, ev events.SQSEvent) (Outcome, error) {
	batch := make([]model.Record, len(ev.Records))
	for i, m := range ev.Records {
		batch[i] = model.Record{ID: m.MessageId, Body: []byte(m.Body)}
	}
	return o.ProcessBatch(ctx, batch)
}

// ProcessEnvelope decodes an SQS event JSON document and runs it.
func (o *Orchestrator) ProcessEnvelope(ctx context.Context, body []byte) (Outcome, error) {
	var ev events.SQSEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return o.fatal(Outcome{BatchID: uuid.NewString()}, fmt.Errorf("decode envelope: %v: %w", err, model.ErrFatalEnvelope))
	}
	return o.ProcessSQSEvent(ctx, ev)
}

// ProcessBatch normalizes, emits and exports one batch of records.
//
//  1. empty batch: FatalEnvelope, nothing else runs
//  2. export of the whole batch starts concurrently with the metric path
//  3. records fan out over at most Workers goroutines; a record error is
//     logged, counted and recorded in the Outcome, never returned
//  4. records not started when ctx ends are Skipped
//
// The returned error is non-nil only for batch scoped failures (export
// delivery, cancellation), in which case the transport redelivers the
// whole batch. Emission is idempotent so the redelivery is safe.
func (o *Orchestrator) ProcessBatch(ctx context.Context, batch []model.Record) (Outcome, error) {
	out := Outcome{BatchID: uuid.NewString(), Total: len(batch)}

	if len(batch) == 0 {
		return o.fatal(out, fmt.Errorf("empty batch: %w", model.ErrFatalEnvelope))
	}

	o.metrics.BatchesTotal.Inc()
	o.metrics.RecordsTotal.Add(float64(len(batch)))

	// ---- export, concurrently with the metric path ----
	var (
		exportWG  sync.WaitGroup
		exportRes export.DeliveryResult
		exportErr error
	)
	if o.forwarder != nil {
		exportWG.Add(1)
		go func() {
			defer exportWG.Done()
			exportRes, exportErr = o.export(ctx, batch)
		}()
	}

	// ---- per record fan-out ----
	results := make([]result, len(batch))

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i := range batch {
		if ctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = o.processRecord(ctx, batch[i])
			return nil
		})
	}
	_ = g.Wait()
	exportWG.Wait()

	// ---- aggregate ----
	for i, r := range results {
		switch r.status {
		case statusProcessed:
			out.Processed++
		case statusFailed:
			out.Failed++
			f := Failure{RecordID: batch[i].ID, Kind: model.KindOf(r.err), Reason: r.err.Error()}
			out.Failures = append(out.Failures, f)
			o.metrics.RecordFailure(f.Kind)
			log.Warn().
				Str("batch_id", out.BatchID).
				Str("record_id", f.RecordID).
				Str("kind", f.Kind).
				Err(r.err).
				Msg("record failed")
		default:
			out.Skipped++
		}
	}
	o.metrics.RecordsProcessedTotal.Add(float64(out.Processed))
	for _, ok := range exportRes.Accepted {
		if ok {
			out.Exported++
		}
	}

	var ctxErr error
	if out.Skipped > 0 {
		ctxErr = fmt.Errorf("batch %s: %d records not started: %w", out.BatchID, out.Skipped, ctx.Err())
	}
	err := errors.Join(exportErr, ctxErr)

	ev := log.Info()
	if err != nil {
		o.metrics.BatchesFailedTotal.Inc()
		ev = log.Error().Err(err)
	}
	ev.Str("batch_id", out.BatchID).
		Int("total", out.Total).
		Int("processed", out.Processed).
		Int("failed", out.Failed).
		Int("skipped", out.Skipped).
		Int("exported", out.Exported).
		Msg("batch done")

	return out, err
}

func (o *Orchestrator) processRecord(ctx context.Context, r model.Record) result {
	rec, err := o.normalizer.Process(r.Body)
	if err != nil {
		return result{status: statusFailed, err: err}
	}

	o.metrics.MetricSubmissionsTotal.Inc()
	if err := o.emitter.Emit(ctx, rec); err != nil {
		return result{status: statusFailed, err: err}
	}

	log.Debug().Str("record_id", r.ID).Int64("timestamp", rec.Timestamp).Int("metrics", len(rec.Metrics)).Msg("record emitted")
	return result{status: statusProcessed}
}

func (o *Orchestrator) export(ctx context.Context, batch []model.Record) (export.DeliveryResult, error) {
	payloads := make([][]byte, len(batch))
	for i, r := range batch {
		payloads[i] = r.Body
	}

	res, err := o.forwarder.Forward(ctx, payloads)

	failed := res.FailedCount
	if err != nil && len(res.Accepted) == 0 {
		failed = len(batch)
	}
	o.metrics.ExportRecordsTotal.Add(float64(len(batch)))
	o.metrics.ExportFailedRecordsTotal.Add(float64(failed))
	return res, err
}

func (o *Orchestrator) fatal(out Outcome, err error) (Outcome, error) {
	o.metrics.BatchesTotal.Inc()
	o.metrics.BatchesFailedTotal.Inc()
	log.Error().Err(err).Str("batch_id", out.BatchID).Msg("batch rejected")
	return out, err
}
