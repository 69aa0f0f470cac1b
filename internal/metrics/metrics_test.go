package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreIndependentPerInstance(t *testing.T) {
	a, b := New(), New()

	a.BatchesTotal.Inc()
	a.RecordFailure("MalformedEvent")
	a.RecordFailure("MalformedEvent")
	a.RecordFailure("Timeout")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.BatchesTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.BatchesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.RecordFailuresTotal.WithLabelValues("MalformedEvent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.RecordFailuresTotal.WithLabelValues("Timeout")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.RecordsTotal.Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "batch_metrics_records_total 3")
}
