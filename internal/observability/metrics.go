package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runsql_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runsql_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	statementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runsql_statements_total",
			Help: "Executed statements by policy and outcome.",
		},
		[]string{"policy", "outcome"},
	)

	statementDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runsql_statement_duration_seconds",
			Help:    "Statement execution latency by policy.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"policy"},
	)

	statementCancellationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "runsql_statement_cancellations_total",
			Help: "Statements aborted by an out-of-band cancel.",
		},
	)

	deprecatedFlagTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "runsql_deprecated_flag_total",
			Help: "Requests still using the legacy stop-on-error flag.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		statementsTotal,
		statementDurationSeconds,
		statementCancellationsTotal,
		deprecatedFlagTotal,
	)
}

func ObserveStatement(policy, outcome string, duration time.Duration) {
	statementsTotal.WithLabelValues(policy, outcome).Inc()
	statementDurationSeconds.WithLabelValues(policy).Observe(duration.Seconds())
}

func IncrementCancellation() {
	statementCancellationsTotal.Inc()
}

func IncrementDeprecatedFlag() {
	deprecatedFlagTotal.Inc()
}
