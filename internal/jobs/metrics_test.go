package jobmetrics

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerCountsOutcomes(t *testing.T) {
	m := NewMetrics()

	_ = m.Track("audit:record").End(nil)
	err := m.Track("audit:record").End(errors.New("db down"))
	_ = m.Track("audit:record").End(fmt.Errorf("bad payload: %w", asynq.SkipRetry))

	assert.EqualError(t, err, "db down")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("audit:record", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("audit:record", StatusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("audit:record", StatusDropped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("audit:record")))
}

func TestNilMetricsTrackerIsSafe(t *testing.T) {
	var m *Metrics
	assert.NoError(t, m.Track("x").End(nil))
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesTaskMetrics(t *testing.T) {
	m := NewMetrics()
	_ = m.Track("audit:record").End(nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `backoffice_task_runs_total{status="success",task="audit:record"} 1`)
}
