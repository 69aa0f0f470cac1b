package main

import (
	"context"

	"batch-metrics/internal/app"
	"batch-metrics/internal/config"
	"batch-metrics/internal/logger"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"
)

// Lambda entry point, triggered by the SQS queues carrying Batch job
// state changes, instance registrations and task placements.
//
// Clients and the pipeline are built once per sandbox and reused for
// every invocation. A returned error makes Lambda leave the whole batch
// on the queue for redelivery; record level failures are only logged.
func main() {
	cfg := config.Load()
	logger.Init(cfg)

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init failed")
	}

	lambda.Start(func(ctx context.Context, ev events.SQSEvent) error {
		_, err := a.Orchestrator.ProcessSQSEvent(ctx, ev)
		return err
	})
}
