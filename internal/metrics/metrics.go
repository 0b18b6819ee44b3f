// Package metrics provides Prometheus metrics for CVAT API calls and the
// items each subcommand processes. A run writes them once, at exit, to a
// node_exporter textfile.
package metrics

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the Prometheus collectors of one run
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	itemsTotal      *prometheus.CounterVec
	runInfo         *prometheus.GaugeVec
	lastRunSeconds  *prometheus.GaugeVec
}

// NewMetrics creates and registers the collectors on registry
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register cvat-tools metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cvat_tools_api_requests_total",
		Help: "CVAT API requests by method, endpoint and status code",
	}, []string{"method", "endpoint", "status"})

	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cvat_tools_api_request_duration_seconds",
		Help:    "CVAT API request latency",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"method", "endpoint"})

	m.retriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cvat_tools_api_retries_total",
		Help: "Retried CVAT API requests",
	}, []string{"endpoint"})

	m.itemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cvat_tools_items_total",
		Help: "Items handled by an operation, by result",
	}, []string{"operation", "result"})

	m.runInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cvat_tools_run_info",
		Help: "Set to 1 for the command of the current run",
	}, []string{"command", "run_id"})

	m.lastRunSeconds = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cvat_tools_run_duration_seconds",
		Help: "Wall time of the run",
	}, []string{"command"})
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.requestsTotal.Describe(ch)
	m.requestDuration.Describe(ch)
	m.retriesTotal.Describe(ch)
	m.itemsTotal.Describe(ch)
	m.runInfo.Describe(ch)
	m.lastRunSeconds.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.requestsTotal.Collect(ch)
	m.requestDuration.Collect(ch)
	m.retriesTotal.Collect(ch)
	m.itemsTotal.Collect(ch)
	m.runInfo.Collect(ch)
	m.lastRunSeconds.Collect(ch)
}

var idSegment = regexp.MustCompile(`/\d+(/|$)`)

// Endpoint collapses numeric path segments so that label cardinality stays
// bounded: /api/jobs/123/annotations -> /api/jobs/{id}/annotations.
func Endpoint(path string) string {
	for idSegment.MatchString(path) {
		path = idSegment.ReplaceAllString(path, "/{id}$1")
	}
	return path
}

// ObserveRequest records one API call. status is 0 for transport errors.
func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	endpoint := Endpoint(path)
	m.requestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}

// RecordRetry counts a retried request
func (m *Metrics) RecordRetry(path string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(Endpoint(path)).Inc()
}

// RecordItem counts an item processed by an operation, e.g. ("assign", "ok")
func (m *Metrics) RecordItem(operation, result string) {
	if m == nil {
		return
	}
	m.itemsTotal.WithLabelValues(operation, result).Inc()
}

// RecordRun marks the command and run id and its duration
func (m *Metrics) RecordRun(command, runID string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runInfo.WithLabelValues(command, runID).Set(1)
	m.lastRunSeconds.WithLabelValues(command).Set(elapsed.Seconds())
}

// WriteTextfile writes all metrics in the text exposition format
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
