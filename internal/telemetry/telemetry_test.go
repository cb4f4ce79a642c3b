package telemetry

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordRunLifecycle(t *testing.T) {
	t.Parallel()

	m := New()
	m.RunStarted()
	assert.InDelta(t, 1, testutil.ToFloat64(m.activeRuns), 0)

	m.CandidateFinished(true, 2, 3.5)
	m.CandidateFinished(false, 3, 1.0)
	m.EventPublished("log")
	m.EventPublished("log")
	m.EventDropped("run")
	m.RunFinished("completed", 3*time.Second)

	assert.InDelta(t, 0, testutil.ToFloat64(m.activeRuns), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues("completed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.candidates.WithLabelValues("true")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.events.WithLabelValues("log")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.eventsDropped), 0)
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.RunStarted()
	m.RunFinished("failed", time.Second)
	m.CandidateFinished(true, 1, 4)
	m.EventPublished("log")
	m.EventDropped("run")
}

func TestHandlerServesMetrics(t *testing.T) {
	t.Parallel()

	m := New()
	m.EventPublished("run_status")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `quorum_events_published_total{type="run_status"} 1`)
}
