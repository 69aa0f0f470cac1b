package emf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"batch-metrics/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/smithy-go"
)

// maxDatumsPerCall is the PutMetricData request limit.
const maxDatumsPerCall = 1000

// CloudWatchAPI is the part of the CloudWatch client the sink uses.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchSink
//
// Publishes through PutMetricData instead of log extraction. The API has
// no notion of properties or of several dimension sets per datum, so each
// metric is written once per dimension (plus once without dimensions when
// the record has none). Properties are not published.
type CloudWatchSink struct {
	client CloudWatchAPI
}

// NewCloudWatchSink wraps a CloudWatch client.
func NewCloudWatchSink(client CloudWatchAPI) *CloudWatchSink {
	return &CloudWatchSink{client: client}
}

// Put validates rec and publishes its datums.
func (s *CloudWatchSink) Put(ctx context.Context, rec model.MetricRecord) error {
	if err := Validate(rec); err != nil {
		return err
	}

	data := Datums(rec)
	for start := 0; start < len(data); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(data))

		_, err := s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(rec.Namespace),
			MetricData: data[start:end],
		})
		if err != nil {
			return classify(err)
		}
	}
	return nil
}

// Datums expands rec into one datum per (metric, dimension) pair.
func Datums(rec model.MetricRecord) []types.MetricDatum {
	ts := time.UnixMilli(rec.Timestamp).UTC()

	datum := func(m model.Metric, dims []types.Dimension) types.MetricDatum {
		return types.MetricDatum{
			MetricName: aws.String(m.Name),
			Dimensions: dims,
			Timestamp:  aws.Time(ts),
			Value:      aws.Float64(m.Value),
			Unit:       types.StandardUnit(m.Unit),
		}
	}

	out := make([]types.MetricDatum, 0, len(rec.Metrics)*max(len(rec.Dimensions), 1))
	for _, m := range rec.Metrics {
		if len(rec.Dimensions) == 0 {
			out = append(out, datum(m, nil))
			continue
		}
		for _, d := range rec.Dimensions {
			out = append(out, datum(m, []types.Dimension{{Name: aws.String(d.Name), Value: aws.String(d.Value)}}))
		}
	}
	return out
}

// classify maps client-side API faults (validation, limits) to
// ErrSinkRejected; everything else is returned as is.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultClient {
		return fmt.Errorf("%s: %s: %w", apiErr.ErrorCode(), apiErr.ErrorMessage(), model.ErrSinkRejected)
	}
	return err
}
