package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	completionsTotal           *prometheus.CounterVec
	certificateCollisionsTotal prometheus.Counter
	schedulerAssignmentsTotal  *prometheus.CounterVec
	schedulerRunSeconds        prometheus.Histogram
	remindersSentTotal         *prometheus.CounterVec
	auditExportsTotal          *prometheus.CounterVec
	auditSkippedRowsTotal      *prometheus.CounterVec
	dashboardCacheTotal        *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compliance_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		completionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_completions_total",
			Help: "Completion attempts by outcome.",
		}, []string{"outcome"})

		certificateCollisionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compliance_certificate_collisions_total",
			Help: "Certificate id collisions resolved by retrying.",
		})

		schedulerAssignmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_scheduler_assignments_total",
			Help: "Assignments created by the recurrence scheduler.",
		}, []string{"rule"})

		schedulerRunSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "compliance_scheduler_run_seconds",
			Help:    "Duration of scheduler runs.",
			Buckets: prometheus.DefBuckets,
		})

		remindersSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_reminders_total",
			Help: "Expiry reminders by outcome.",
		}, []string{"outcome"})

		auditExportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_audit_queries_total",
			Help: "Audit report queries by format.",
		}, []string{"format"})

		auditSkippedRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_audit_skipped_rows_total",
			Help: "Report rows skipped because of missing references.",
		}, []string{"reason"})

		dashboardCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_dashboard_cache_total",
			Help: "Dashboard cache lookups by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			completionsTotal,
			certificateCollisionsTotal,
			schedulerAssignmentsTotal,
			schedulerRunSeconds,
			remindersSentTotal,
			auditExportsTotal,
			auditSkippedRowsTotal,
			dashboardCacheTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// Completions counts completion attempts labelled by outcome.
func Completions() *prometheus.CounterVec {
	RegisterMetrics()
	return completionsTotal
}

// CertificateCollisions counts certificate id retries.
func CertificateCollisions() prometheus.Counter {
	RegisterMetrics()
	return certificateCollisionsTotal
}

// SchedulerAssignments counts assignments created per rule.
func SchedulerAssignments() *prometheus.CounterVec {
	RegisterMetrics()
	return schedulerAssignmentsTotal
}

// SchedulerRunDuration observes scheduler run durations.
func SchedulerRunDuration() prometheus.Histogram {
	RegisterMetrics()
	return schedulerRunSeconds
}

// RemindersSent counts reminder deliveries labelled by outcome.
func RemindersSent() *prometheus.CounterVec {
	RegisterMetrics()
	return remindersSentTotal
}

// AuditQueries counts audit queries labelled by output format.
func AuditQueries() *prometheus.CounterVec {
	RegisterMetrics()
	return auditExportsTotal
}

// AuditSkippedRows counts report rows skipped for data problems.
func AuditSkippedRows() *prometheus.CounterVec {
	RegisterMetrics()
	return auditSkippedRowsTotal
}

// DashboardCache counts dashboard cache hits and misses.
func DashboardCache() *prometheus.CounterVec {
	RegisterMetrics()
	return dashboardCacheTotal
}
