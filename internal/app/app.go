// Package app wires configuration, AWS clients and the pipeline for the
// entry points under cmd/.
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"batch-metrics/internal/canon"
	"batch-metrics/internal/config"
	"batch-metrics/internal/emf"
	"batch-metrics/internal/export"
	"batch-metrics/internal/metrics"
	"batch-metrics/internal/normalize"
	"batch-metrics/internal/pipeline"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/firehose"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// App is everything an entry point needs to serve batches.
type App struct {
	Config       config.Config
	Metrics      *metrics.Metrics
	Orchestrator *pipeline.Orchestrator
}

// Clients holds the AWS clients the sinks may use. Nil fields are built
// from the default AWS config on demand.
type Clients struct {
	CloudWatch emf.CloudWatchAPI
	Firehose   export.FirehoseAPI
	S3         export.S3API
}

// New validates cfg and builds the pipeline with AWS clients from the
// default credential chain.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	awsCfg, err := awsCfgLib.LoadDefaultConfig(ctx, awsCfgLib.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return Build(cfg, newClients(cfg, awsCfg), os.Stdout)
}

// newClients creates only the clients the configured sinks use.
func newClients(cfg config.Config, awsCfg aws.Config) Clients {
	var c Clients
	if cfg.MetricsSink == config.MetricsSinkCloudWatch {
		c.CloudWatch = cloudwatch.NewFromConfig(awsCfg)
	}
	switch cfg.ExportSink {
	case config.ExportSinkFirehose:
		c.Firehose = firehose.NewFromConfig(awsCfg)
	case config.ExportSinkS3:
		// ArchiveSink owns the retry policy; the SDK must not retry
		// underneath it.
		c.S3 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.Retryer = aws.NopRetryer{}
		})
	}
	return c
}

// Build wires the pipeline from cfg and the given clients. EMF lines go
// to emfOut (stdout under Lambda, where CloudWatch Logs extracts them).
func Build(cfg config.Config, clients Clients, emfOut io.Writer) (*App, error) {
	var sink emf.Sink
	switch cfg.MetricsSink {
	case config.MetricsSinkCloudWatch:
		if clients.CloudWatch == nil {
			return nil, fmt.Errorf("metrics sink %q: no CloudWatch client", cfg.MetricsSink)
		}
		sink = emf.NewCloudWatchSink(clients.CloudWatch)
	default:
		sink = emf.NewLogSink(emfOut)
	}

	var fw pipeline.Forwarder
	switch cfg.ExportSink {
	case config.ExportSinkFirehose:
		if clients.Firehose == nil {
			return nil, fmt.Errorf("export sink %q: no Firehose client", cfg.ExportSink)
		}
		fw = export.NewForwarder(export.NewFirehoseSink(clients.Firehose, cfg.JobsStatesStream), cfg.ExportTimeout)
	case config.ExportSinkS3:
		if clients.S3 == nil {
			return nil, fmt.Errorf("export sink %q: no S3 client", cfg.ExportSink)
		}
		archive := export.NewArchiveSink(clients.S3, export.ArchiveConfig{
			Bucket:         cfg.ExportBucket,
			Prefix:         cfg.ExportPrefix,
			InstanceID:     cfg.InstanceID,
			Attempts:       cfg.ExportRetries,
			AttemptTimeout: cfg.ExportTimeout,
		})
		// per-attempt timeouts bound the archive; no outer deadline
		fw = export.NewForwarder(archive, 0)
	}

	m := metrics.New()
	orch := pipeline.New(pipeline.Options{
		Normalizer: normalize.New(canon.New(cfg.ClusterSuffix), cfg.MetricsNamespace),
		Emitter:    emf.NewEmitter(sink, cfg.MetricsNamespace, cfg.SinkTimeout),
		Forwarder:  fw,
		Metrics:    m,
		Workers:    cfg.Workers,
	})

	log.Info().
		Str("metrics_sink", cfg.MetricsSink).
		Str("export_sink", cfg.ExportSink).
		Int("workers", cfg.Workers).
		Msg("pipeline ready")

	return &App{Config: cfg, Metrics: m, Orchestrator: orch}, nil
}
