// Package metrics provides Prometheus instrumentation for splitledger.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Split domain metrics
	splitCreateTotal     *prometheus.CounterVec
	splitLinePaidTotal   *prometheus.CounterVec
	splitTransitionTotal *prometheus.CounterVec

	// DAO domain metrics
	daoCheckTotal        *prometheus.CounterVec
	daoVerificationTotal *prometheus.CounterVec

	// Recurring plan metrics
	planDueTotal *prometheus.CounterVec

	// Deployment domain metrics
	deploymentRecordTotal *prometheus.CounterVec

	// Event delivery
	eventPublishFailures *prometheus.CounterVec
)

// Init initializes the metrics system.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	constLabels := prometheus.Labels{"service": svcName}

	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: constLabels,
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method", "path"},
	)

	splitCreateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "split_request_create_total",
			Help:        "Total number of split request creations",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)

	splitLinePaidTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "split_line_paid_total",
			Help:        "Total number of line payment confirmations",
			ConstLabels: constLabels,
		},
		[]string{"result"},
	)

	splitTransitionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "split_request_transition_total",
			Help:        "Total number of split request status transitions",
			ConstLabels: constLabels,
		},
		[]string{"to"},
	)

	daoCheckTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "dao_membership_check_total",
			Help:        "Total number of DAO membership checks",
			ConstLabels: constLabels,
		},
		[]string{"result"},
	)

	daoVerificationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "dao_verification_set_total",
			Help:        "Total number of DAO verification decisions",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)

	planDueTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "recurring_plan_due_total",
			Help:        "Total number of recurring plan occurrences processed",
			ConstLabels: constLabels,
		},
		[]string{"result"},
	)

	deploymentRecordTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "deployment_record_total",
			Help:        "Total number of delegation deployments recorded",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)

	eventPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "event_publish_failures_total",
			Help:        "Total number of events that could not be published",
			ConstLabels: constLabels,
		},
		[]string{"type"},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
