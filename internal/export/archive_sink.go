package export

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3API is the part of the S3 client the archive sink uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchiveConfig configures ArchiveSink.
type ArchiveConfig struct {
	Bucket     string
	Prefix     string
	InstanceID string

	// Attempts is the number of PutObject tries. The client is built with
	// SDK retries disabled so this is the only retry policy in play.
	Attempts int
	// AttemptTimeout bounds each PutObject call.
	AttemptTimeout time.Duration
}

// ArchiveSink
//
// Writes the whole batch as one gzip JSONL object. S3 has no partial
// writes, so every record is accepted or none is.
type ArchiveSink struct {
	cfg    ArchiveConfig
	client S3API
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewArchiveSink returns an ArchiveSink writing with client.
func NewArchiveSink(client S3API, cfg ArchiveConfig) *ArchiveSink {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &ArchiveSink{
		cfg:    cfg,
		client: client,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// PutBatch encodes records and uploads them as a single object.
func (s *ArchiveSink) PutBatch(ctx context.Context, records [][]byte) (DeliveryResult, error) {
	failed := DeliveryResult{Accepted: make([]bool, len(records)), FailedCount: len(records)}

	data, err := EncodeJSONLGZ(records)
	if err != nil {
		return failed, err
	}

	now := s.now()
	key := BuildS3Key(s.cfg.Prefix, now, NewFilename(now, s.cfg.InstanceID))

	if err := s.uploadWithRetry(ctx, key, data); err != nil {
		return failed, err
	}

	ok := DeliveryResult{Accepted: make([]bool, len(records))}
	for i := range ok.Accepted {
		ok.Accepted[i] = true
	}
	log.Debug().Str("key", key).Int("records", len(records)).Int("bytes", len(data)).Msg("archived batch")
	return ok, nil
}

// uploadWithRetry
//
// - exponential backoff from 200ms, capped at 2s
// - a fresh reader per attempt, the body is consumed by each try
// - gives up as soon as ctx is done
func (s *ArchiveSink) uploadWithRetry(ctx context.Context, key string, body []byte) error {
	var lastErr error
	backoff := 200 * time.Millisecond

	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.putObject(ctx, key, bytes.NewReader(body), int64(len(body)))
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Str("key", key).Int("attempt", attempt).Msg("archive put failed")

		if attempt == s.cfg.Attempts {
			break
		}
		if err := s.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = min(backoff*2, 2*time.Second)
	}

	return lastErr
}

func (s *ArchiveSink) putObject(ctx context.Context, key string, body io.Reader, size int64) error {
	if s.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.AttemptTimeout)
		defer cancel()
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.cfg.Bucket),
		Key:             aws.String(key),
		Body:            body,
		ContentLength:   aws.Int64(size),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("gzip"),
	})
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
