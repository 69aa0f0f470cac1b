package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"batch-metrics/internal/config"
	"batch-metrics/internal/metrics"
	"batch-metrics/internal/model"
	"batch-metrics/internal/pipeline"
)

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) ProcessEnvelope(ctx context.Context, body []byte) (pipeline.Outcome, error) {
	args := m.Called(ctx, body)
	return args.Get(0).(pipeline.Outcome), args.Error(1)
}

func newTestServer(t *testing.T, p BatchProcessor, maxBody int64) *httptest.Server {
	t.Helper()
	h := NewHandler(config.Config{MaxBodySize: maxBody}, metrics.New(), p)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleBatch(t *testing.T) {
	tests := []struct {
		name       string
		outcome    pipeline.Outcome
		err        error
		wantStatus int
	}{
		{"ok", pipeline.Outcome{BatchID: "b1", Total: 2, Processed: 1, Failed: 1}, nil, http.StatusOK},
		{"fatal envelope", pipeline.Outcome{BatchID: "b2"}, fmt.Errorf("empty batch: %w", model.ErrFatalEnvelope), http.StatusBadRequest},
		{"delivery failure", pipeline.Outcome{BatchID: "b3", Total: 1}, fmt.Errorf("forward: %w", model.ErrBatchDelivery), http.StatusBadGateway},
		{"cancelled", pipeline.Outcome{BatchID: "b4", Total: 1}, context.Canceled, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProcessor{}
			p.On("ProcessEnvelope", mock.Anything, []byte(`{"Records":[]}`)).Return(tt.outcome, tt.err).Once()
			srv := newTestServer(t, p, 1024)

			resp, err := http.Post(srv.URL+"/batch", "application/json", strings.NewReader(`{"Records":[]}`))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var got struct {
				BatchID   string `json:"batchId"`
				Processed int    `json:"processed"`
				Error     string `json:"error"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			assert.Equal(t, tt.outcome.BatchID, got.BatchID)
			assert.Equal(t, tt.outcome.Processed, got.Processed)
			assert.Equal(t, tt.err != nil, got.Error != "")
			p.AssertExpectations(t)
		})
	}
}

func TestHandleBatchRejectsLargeBody(t *testing.T) {
	p := &mockProcessor{}
	srv := newTestServer(t, p, 8)

	resp, err := http.Post(srv.URL+"/batch", "application/json", strings.NewReader(`{"Records":[{"body":"x"}]}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	p.AssertNotCalled(t, "ProcessEnvelope", mock.Anything, mock.Anything)
}

func TestHandleBatchMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &mockProcessor{}, 1024)

	resp, err := http.Get(srv.URL + "/batch")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, &mockProcessor{}, 1024)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "batch_metrics_batches_total")
}

func TestCallerIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		remote string
		want   string
	}{
		{"forwarded", "10.0.1.5, 10.0.0.2", "10.0.0.2:5555", "10.0.1.5"},
		{"skips garbage", "unknown, 203.0.113.7", "10.0.0.2:5555", "203.0.113.7"},
		{"remote addr", "", "127.0.0.1:4000", "127.0.0.1"},
		{"nothing usable", "", "pipe", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/batch", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, callerIP(r))
		})
	}
}
