package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestEndpoint(t *testing.T) {
	tests := map[string]string{
		"/api/tasks":                      "/api/tasks",
		"/api/tasks/42":                   "/api/tasks/{id}",
		"/api/jobs/123/annotations":       "/api/jobs/{id}/annotations",
		"/api/tasks/1/2":                  "/api/tasks/{id}/{id}",
		"/api/tasks/42/data/meta":         "/api/tasks/{id}/data/meta",
		"/api/cloudstorages/4837/content": "/api/cloudstorages/{id}/content",
	}
	for in, want := range tests {
		assert.Equal(t, want, Endpoint(in), in)
	}
}

func TestRecording(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveRequest("GET", "/api/jobs/1", 200, 30*time.Millisecond)
	m.ObserveRequest("GET", "/api/jobs/2", 200, 30*time.Millisecond)
	m.RecordRetry("/api/jobs/2")
	m.RecordItem("assign", "ok")
	m.RecordItem("assign", "ok")
	m.RecordItem("assign", "failed")

	assert.InDelta(t, 2, counterValue(t, m.requestsTotal.WithLabelValues("GET", "/api/jobs/{id}", "200")), 0)
	assert.InDelta(t, 1, counterValue(t, m.retriesTotal.WithLabelValues("/api/jobs/{id}")), 0)
	assert.InDelta(t, 2, counterValue(t, m.itemsTotal.WithLabelValues("assign", "ok")), 0)
	assert.InDelta(t, 1, counterValue(t, m.itemsTotal.WithLabelValues("assign", "failed")), 0)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", "/api/tasks", 200, time.Millisecond)
	m.RecordRetry("/api/tasks")
	m.RecordItem("x", "y")
	m.RecordRun("status", "id", time.Second)
	assert.NoError(t, m.WriteTextfile("ignored.prom"))
}

func TestDoubleRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewMetrics(registry)
	require.NoError(t, err)
	_, err = NewMetrics(registry)
	require.Error(t, err)
}

func TestWriteTextfile(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	m.RecordRun("progress", "run-1", 2*time.Second)

	path := filepath.Join(t.TempDir(), "cvat_tools.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path) //nolint:gosec // test path
	require.NoError(t, err)
	assert.Contains(t, string(data), `cvat_tools_run_info{command="progress",run_id="run-1"} 1`)
	assert.Contains(t, string(data), `cvat_tools_run_duration_seconds{command="progress"} 2`)
}
