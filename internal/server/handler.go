package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"batch-metrics/internal/config"
	"batch-metrics/internal/metrics"
	"batch-metrics/internal/model"
	"batch-metrics/internal/pipeline"
	"batch-metrics/internal/pool"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// BatchProcessor runs one SQS-event document.
type BatchProcessor interface {
	ProcessEnvelope(ctx context.Context, body []byte) (pipeline.Outcome, error)
}

type Handler struct {
	cfg       config.Config
	metrics   *metrics.Metrics
	processor BatchProcessor
}

func NewHandler(cfg config.Config, m *metrics.Metrics, p BatchProcessor) *Handler {
	return &Handler{
		cfg:       cfg,
		metrics:   m,
		processor: p,
	}
}

// Routes
//
//   - POST /batch : SQS-event JSON document, processed synchronously
//   - /metrics    : prometheus text format
//   - /health     : "ok"
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/batch", h.HandleBatch)
	mux.Handle("/metrics", h.metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// HandleBatch
//
//  1. body capped at MaxBodySize, read into a pooled buffer
//  2. the orchestrator runs the batch under the request context
//  3. 200 + Outcome on success (record failures included);
//     400 for a fatal envelope, 502 for a failed export and 500 for
//     anything else, so the caller redelivers
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	defer r.Body.Close()

	buf := pool.GetBody()
	defer pool.PutBody(buf, h.cfg.MaxBodySize*2)

	if _, err := io.Copy(buf, r.Body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	out, err := h.processor.ProcessEnvelope(r.Context(), buf.Bytes())
	log.Debug().
		Str("caller", callerIP(r)).
		Str("batch_id", out.BatchID).
		Int("bytes", buf.Len()).
		Msg("batch request")

	status := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, model.ErrFatalEnvelope):
		status = http.StatusBadRequest
	case model.BatchScoped(err):
		// export failed; the caller redelivers the whole batch
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, response{Outcome: out, Error: errString(err)})
}

type response struct {
	pipeline.Outcome
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
