// Package telemetry provides application-level observability for gatepass.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<GP_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint returns data in the Prometheus text exposition
// format and is intended to be scraped every 15 to 60 seconds. It is NOT served by
// the Gin router, so it is unreachable through the public API ingress path.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Validation outcome counters and latency histograms
//   - Passcode issuance and access record write counters
//   - Expiry sweeper counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /v1/access/validate)
// rather than the raw request URL. Validation metrics use the closed fail-reason
// enum, so every label set is bounded.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Validation metrics, recorded by the validation engine for every attempt.
//
// ValidationsTotal is a CounterVec with labels {credential, result, reason}.
// "credential" is the presented format (static, qr, rolling), "result" is
// success or failed, and "reason" is the closed fail-reason enum ("" when the
// attempt succeeded). The reason enum is bounded, so cardinality stays low.
//
// Example PromQL queries:
//   - Rejection rate by reason:  sum by (reason) (rate(validations_total{result="failed"}[5m]))
//   - Success ratio:             sum(rate(validations_total{result="success"}[5m])) / sum(rate(validations_total[5m]))
var (
	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validations_total",
			Help: "Total number of credential validation attempts, by credential format, result, and fail reason.",
		},
		[]string{"credential", "result", "reason"},
	)

	ValidationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "validation_duration_seconds",
			Help:    "Histogram of end-to-end validation latencies, by credential format.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"credential"},
	)
)

// Domain counters.
//
// PasscodesIssuedTotal counts newly minted passcodes by type (employee, visitor).
// AccessRecordsWrittenTotal counts audit appends by result; a widening gap
// between validations_total and access_records_written_total indicates the
// best-effort audit path is dropping writes and warrants an alert.
// PasscodesSweptTotal counts passcodes flipped to expired by the background sweeper.
var (
	PasscodesIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passcodes_issued_total",
			Help: "Total number of passcodes issued, by passcode type.",
		},
		[]string{"type"},
	)

	AccessRecordsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_records_written_total",
			Help: "Total number of access records appended to the audit log, by result.",
		},
		[]string{"result"},
	)

	AccessRecordWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "access_record_write_failures_total",
			Help: "Total number of audit log appends that failed and were dropped after logging.",
		},
	)

	PasscodesSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "passcodes_swept_total",
			Help: "Total number of passcodes marked expired by the background expiry sweeper.",
		},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
