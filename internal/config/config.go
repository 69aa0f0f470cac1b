// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Metrics sinks.
const (
	MetricsSinkEMF        = "emf"
	MetricsSinkCloudWatch = "cloudwatch"
)

// Export sinks.
const (
	ExportSinkFirehose = "firehose"
	ExportSinkS3       = "s3"
	ExportSinkNone     = "none"
)

// Config
//
// Everything the pipeline reads from the environment. Built once by Load()
// at startup and passed explicitly to the components; never mutated
// afterwards.
type Config struct {

	// ---------------------------
	// AWS / identity
	// ---------------------------

	AWSRegion   string
	ServiceName string
	InstanceID  string // hostname (Lambda sandbox / ECS task), random hex as fallback

	// ---------------------------
	// Metric emission
	// ---------------------------

	MetricsNamespace string        // "AWSBatchMetrics"; override only in tests
	ClusterSuffix    string        // cluster name suffix marker, e.g. "_Batch"
	MetricsSink      string        // emf | cloudwatch
	SinkTimeout      time.Duration // per emit call

	// ---------------------------
	// Raw record export
	// ---------------------------
	// SDK retries are forced to 0 for the S3 client; ExportRetries is the
	// only retry count in play so latency stays predictable.

	ExportSink       string // firehose | s3 | none
	JobsStatesStream string // Firehose delivery stream
	ExportBucket     string
	ExportPrefix     string
	ExportTimeout    time.Duration
	ExportRetries    int

	// ---------------------------
	// Processing
	// ---------------------------

	Workers     int    // records processed concurrently per batch
	HTTPAddr    string // cmd/server only
	MaxBodySize int64  // cmd/server only

	// ---------------------------
	// Logging
	// ---------------------------

	LogLevel   string
	LogPretty  bool
	LogSampleN uint32
}

// Load
//
// Reads the environment. AWS_REGION is required (fail-fast); the rest
// have defaults suitable for the Lambda deployment.
func Load() Config {
	return Config{
		AWSRegion:   must("AWS_REGION"),
		ServiceName: getEnv("SERVICE_NAME", "batch-metrics"),
		InstanceID:  fallbackInstanceID(),

		MetricsNamespace: getEnv("METRICS_NAMESPACE", "AWSBatchMetrics"),
		ClusterSuffix:    getEnv("CLUSTER_SUFFIX", "_Batch"),
		MetricsSink:      strings.ToLower(getEnv("METRICS_SINK", MetricsSinkEMF)),
		SinkTimeout:      getEnvDur("SINK_TIMEOUT", 2*time.Second),

		ExportSink:       strings.ToLower(getEnv("EXPORT_SINK", ExportSinkFirehose)),
		JobsStatesStream: os.Getenv("JOBS_STATES_STREAM"),
		ExportBucket:     os.Getenv("EXPORT_BUCKET"),
		ExportPrefix:     getEnv("EXPORT_PREFIX", "jobs-states"),
		ExportTimeout:    getEnvDur("EXPORT_TIMEOUT", 5*time.Second),
		ExportRetries:    getEnvInt("EXPORT_RETRIES", 3),

		Workers:     getEnvInt("WORKERS", 8),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		MaxBodySize: getEnvInt64("MAX_BODY_SIZE", 6*1024*1024),

		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogPretty:  getEnvBool("LOG_PRETTY", false),
		LogSampleN: uint32(getEnvInt("LOG_SAMPLE_N", 0)),
	}
}

// Validate checks the cross-field rules Load cannot express per key.
func (c Config) Validate() error {
	var errs []error

	switch c.MetricsSink {
	case MetricsSinkEMF, MetricsSinkCloudWatch:
	default:
		errs = append(errs, fmt.Errorf("METRICS_SINK=%q: want emf or cloudwatch", c.MetricsSink))
	}

	switch c.ExportSink {
	case ExportSinkFirehose:
		if c.JobsStatesStream == "" {
			errs = append(errs, errors.New("EXPORT_SINK=firehose requires JOBS_STATES_STREAM"))
		}
	case ExportSinkS3:
		if c.ExportBucket == "" {
			errs = append(errs, errors.New("EXPORT_SINK=s3 requires EXPORT_BUCKET"))
		}
	case ExportSinkNone:
	default:
		errs = append(errs, fmt.Errorf("EXPORT_SINK=%q: want firehose, s3 or none", c.ExportSink))
	}

	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("WORKERS=%d: must be >= 1", c.Workers))
	}
	if c.SinkTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SINK_TIMEOUT=%s: must be > 0", c.SinkTimeout))
	}
	if c.ExportTimeout <= 0 {
		errs = append(errs, fmt.Errorf("EXPORT_TIMEOUT=%s: must be > 0", c.ExportTimeout))
	}
	if c.ExportRetries < 1 {
		errs = append(errs, fmt.Errorf("EXPORT_RETRIES=%d: must be >= 1", c.ExportRetries))
	}
	if c.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_BODY_SIZE=%d: must be > 0", c.MaxBodySize))
	}

	return errors.Join(errs...)
}

// must / getEnv*
//
// must: required key, missing means the process cannot do anything useful
// so it exits immediately. getEnv*: optional keys, but a present value
// that does not parse is still fatal, never silently replaced by the default.
func must(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("missing required env: %s", key)
	}
	return v
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int env %s=%q: %v", key, v, err)
	}
	return n
}

func getEnvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("invalid int64 env %s=%q: %v", key, v, err)
	}
	return n
}

func getEnvDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration env %s=%q: %v", key, v, err)
	}
	return d
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("invalid bool env %s=%q: %v", key, v, err)
	}
	return b
}

// fallbackInstanceID
//
// Identifies this process in logs and archive object names.
//   - hostname (unique per Lambda sandbox / ECS task)
//   - fallback: 12 random hex chars
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
