// Package metrics exposes Prometheus metrics for the API server.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kubedeck"

// Collector owns a private Prometheus registry and the server's metrics.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	PermissionWrites    *prometheus.CounterVec
	TabOperations       *prometheus.CounterVec
}

// NewCollector creates a Collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status_code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		PermissionWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_group_writes_total",
			Help:      "Permission group saves and deletes by outcome",
		}, []string{"operation", "status"}),
		TabOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "browser_tab_operations_total",
			Help:      "Resource browser tab operations",
		}, []string{"operation"}),
	}
	reg.MustRegister(c.HTTPRequestsTotal, c.HTTPRequestDuration, c.PermissionWrites, c.TabOperations)
	return c
}

// ObserveSessions exports the number of open browser sessions and tabs.
// The functions are called on every scrape.
func (c *Collector) ObserveSessions(sessions, tabs func() int) {
	c.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browser_sessions_open",
			Help:      "Number of open resource browser sessions",
		}, func() float64 { return float64(sessions()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browser_tabs_open",
			Help:      "Number of tabs across open resource browser sessions",
		}, func() float64 { return float64(tabs()) }),
	)
}

// Handler returns an HTTP handler that serves Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request metric.
func (c *Collector) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	label := routeLabel(path)
	c.HTTPRequestsTotal.WithLabelValues(method, label, strconv.Itoa(statusCode)).Inc()
	c.HTTPRequestDuration.WithLabelValues(method, label).Observe(duration.Seconds())
}

// RecordPermissionWrite counts a permission group save or delete.
func (c *Collector) RecordPermissionWrite(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.PermissionWrites.WithLabelValues(operation, status).Inc()
}

// RecordTabOperation counts a tab operation.
func (c *Collector) RecordTabOperation(operation string) {
	c.TabOperations.WithLabelValues(operation).Inc()
}

// Middleware records every request passing through next.
func (c *Collector) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			c.RecordHTTPRequest(r.Method, r.URL.Path, rec.status, time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// routeLabel keeps the path label bounded: ids and resource names are cut
// off after the collection name.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 1 && (parts[0] == "health" || parts[0] == "metrics"):
		return "/" + parts[0]
	case len(parts) >= 2 && parts[0] == "api":
		if parts[1] == "resource-browser" && len(parts) >= 3 {
			return "/api/resource-browser/" + parts[2]
		}
		return "/api/" + parts[1]
	default:
		return "other"
	}
}
