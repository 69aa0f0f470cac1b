package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"batch-metrics/internal/app"
	"batch-metrics/internal/config"
	"batch-metrics/internal/logger"
	"batch-metrics/internal/server"

	"github.com/rs/zerolog/log"
)

// HTTP entry point for running the pipeline outside Lambda (local runs,
// an ECS service fed by an SQS poller).
func main() {

	// ====================================================================
	// GOMAXPROCS
	// ====================================================================
	// Fargate limits CPU by vCPU share while the Go runtime sees every
	// host core. Default to 1 unless GOMAXPROCS says otherwise.
	if v := os.Getenv("GOMAXPROCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			runtime.GOMAXPROCS(n)
		}
	} else {
		runtime.GOMAXPROCS(1)
	}

	cfg := config.Load()
	logger.Init(cfg)

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init failed")
	}

	h := server.NewHandler(cfg, a.Metrics, a.Orchestrator)

	// ====================================================================
	// HTTP server
	// ====================================================================
	// WriteTimeout covers a whole batch: every emit and the export run
	// inside the request.
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      h.Routes(),
		ReadTimeout:  8 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ====================================================================
	// Graceful shutdown
	// ====================================================================
	// On SIGTERM stop accepting requests and let in-flight batches finish
	// within the grace period. Batches cut off by the deadline return an
	// error to their caller and are redelivered.
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("batch metrics server listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server terminated")
	}

	<-done
	log.Info().Msg("shutdown complete")
}
