package export

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/firehose"
	"github.com/aws/aws-sdk-go-v2/service/firehose/types"
)

// FirehoseAPI is the part of the Firehose client the sink uses.
type FirehoseAPI interface {
	PutRecordBatch(ctx context.Context, in *firehose.PutRecordBatchInput, optFns ...func(*firehose.Options)) (*firehose.PutRecordBatchOutput, error)
}

// FirehoseSink writes records to a delivery stream with PutRecordBatch.
type FirehoseSink struct {
	client FirehoseAPI
	stream string
}

// NewFirehoseSink returns a sink for the named delivery stream.
func NewFirehoseSink(client FirehoseAPI, stream string) *FirehoseSink {
	return &FirehoseSink{client: client, stream: stream}
}

// PutRecordBatch limits per call.
const (
	FirehoseMaxRecords = 500
	FirehoseMaxBytes   = 4 << 20
)

// PutBatch writes records in as many PutRecordBatch calls as the per-call
// limits require, in order.
//
// Per-record status comes from RequestResponses, which Firehose returns
// in request order. A response missing for a record counts as a failure.
// A transport error on any call fails the whole batch.
func (s *FirehoseSink) PutBatch(ctx context.Context, records [][]byte) (DeliveryResult, error) {
	res := DeliveryResult{Accepted: make([]bool, len(records))}

	for start := 0; start < len(records); {
		end := chunkEnd(records, start)
		if err := s.put(ctx, records[start:end], res.Accepted[start:end]); err != nil {
			return DeliveryResult{}, err
		}
		start = end
	}

	for _, ok := range res.Accepted {
		if !ok {
			res.FailedCount++
		}
	}
	return res, nil
}

func (s *FirehoseSink) put(ctx context.Context, records [][]byte, accepted []bool) error {
	in := &firehose.PutRecordBatchInput{
		DeliveryStreamName: aws.String(s.stream),
		Records:            make([]types.Record, len(records)),
	}
	for i, r := range records {
		in.Records[i] = types.Record{Data: r}
	}

	out, err := s.client.PutRecordBatch(ctx, in)
	if err != nil {
		return err
	}
	for i := range records {
		accepted[i] = i < len(out.RequestResponses) && out.RequestResponses[i].ErrorCode == nil
	}
	return nil
}

// chunkEnd returns the end of the call starting at start. A call always
// carries at least one record; an oversized one is left for Firehose to reject.
func chunkEnd(records [][]byte, start int) int {
	size := 0
	end := start
	for end < len(records) && end-start < FirehoseMaxRecords {
		size += len(records[end])
		if size > FirehoseMaxBytes && end > start {
			break
		}
		end++
	}
	return end
}
