package main

import (
	"context"
	"os"

	"batch-metrics/internal/config"
	"batch-metrics/internal/fleet"
	"batch-metrics/internal/logger"

	"github.com/aws/aws-lambda-go/lambda"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type options struct {
	Region   string `long:"region" env:"AWS_REGION" description:"AWS region"`
	Marker   string `long:"marker" env:"LAUNCH_TEMPLATE_MARKER" default:"Batch-lt" description:"launch template name fragment of Batch managed groups"`
	DryRun   bool   `long:"dry-run" description:"report matching groups without enabling metrics"`
	LogLevel string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"log level"`
	Lambda   bool   `long:"lambda" env:"FLEET_BOOTSTRAP_LAMBDA" description:"serve as a Lambda function (e.g. a scheduled rule) instead of running once"`
}

// One-shot bootstrap enabling 1-minute group metrics on the Auto Scaling
// groups behind Batch compute environments. Runs from a terminal or, with
// --lambda, as a scheduled function.
func main() {
	opts := getCLIArgs()

	logger.Init(config.Config{
		ServiceName: "batch-metrics-fleet",
		LogLevel:    opts.LogLevel,
		InstanceID:  hostname(),
	})

	ctx := context.Background()
	var loadOpts []func(*awsCfgLib.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsCfgLib.WithRegion(opts.Region))
	}
	awsCfg, err := awsCfgLib.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("load AWS config")
	}

	r := fleet.New(autoscaling.NewFromConfig(awsCfg), opts.Marker, opts.DryRun)

	if opts.Lambda {
		lambda.Start(func(ctx context.Context) (fleet.Report, error) {
			rep, err := r.Reconcile(ctx)
			if err != nil {
				return rep, err
			}
			return rep, rep.Err()
		})
		return
	}

	rep, err := r.Reconcile(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("reconcile failed")
	}
	if err := rep.Err(); err != nil {
		log.Error().Err(err).Msg("some groups were not updated")
		os.Exit(1)
	}
}

func getCLIArgs() options {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	return opts
}

func hostname() string {
	h, _ := os.Hostname()
	return h
}
