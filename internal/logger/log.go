// internal/logger/log.go
package logger

import (
	"io"
	"os"
	"strings"

	"batch-metrics/internal/config"

	stdlog "log"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init
//
// Configures the global zerolog logger once at startup.
//
//  1. level from LOG_LEVEL (info when unset or unparseable)
//  2. LOG_PRETTY=true: console writer for local runs; otherwise JSON
//     lines on stdout, which Lambda ships to CloudWatch Logs
//  3. "service" and "instance" on every line
//  4. LOG_SAMPLE_N > 1 keeps 1/N debug and info lines; warn and error
//     are never sampled
//
// EMF metric lines do not go through this logger, they are written to
// stdout by emf.LogSink so sampling can never drop a metric.
func Init(cfg config.Config) {
	zlog.Logger = New(cfg, os.Stdout)

	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}

// New builds the logger Init installs, writing to out.
func New(cfg config.Config, out io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil && cfg.LogLevel != "" {
		level = l
	}
	zerolog.SetGlobalLevel(level)

	w := out
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	base := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	if cfg.LogSampleN > 1 {
		return base.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
		})
	}
	return base
}
