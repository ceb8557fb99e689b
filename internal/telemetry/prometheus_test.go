package telemetry_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judgehost/judgehost/internal/telemetry"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	return rec.Body.String()
}

func TestPrometheusMetricsRendersRecordedCounter(t *testing.T) {
	metrics, handler, err := telemetry.NewPrometheusMetrics()
	require.NoError(t, err)

	metrics.IncCounter("tool.errors", 1, "tool", "judge")
	metrics.IncCounter("tool.errors", 2, "tool", "judge")

	body := scrape(t, handler)
	assert.Contains(t, body, "tool_errors")
	assert.Contains(t, body, `tool="judge"`)
	assert.Contains(t, body, "3")
}

func TestPrometheusMetricsRendersRecordedTimer(t *testing.T) {
	metrics, handler, err := telemetry.NewPrometheusMetrics()
	require.NoError(t, err)

	metrics.RecordTimer("tool.duration", 250*time.Millisecond, "tool", "judge")

	body := scrape(t, handler)
	assert.Contains(t, body, "tool_duration")
}

func TestPrometheusMetricsInstancesAreIndependent(t *testing.T) {
	first, firstHandler, err := telemetry.NewPrometheusMetrics()
	require.NoError(t, err)
	_, secondHandler, err := telemetry.NewPrometheusMetrics()
	require.NoError(t, err)

	first.IncCounter("judgments.created", 1)

	assert.Contains(t, scrape(t, firstHandler), "judgments_created")
	assert.NotContains(t, scrape(t, secondHandler), "judgments_created")
}
