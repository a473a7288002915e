package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the engine. Components that
// receive a nil *Metrics skip instrumentation, which keeps tests free of
// duplicate-registration issues with the default registry.
type Metrics struct {
	// Engine
	EventsApplied  *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec
	EventsDropped  prometheus.Counter
	EventDuration  prometheus.Histogram
	RollbackErrors prometheus.Counter

	// Dispatcher
	LanesActive  prometheus.Gauge
	MailboxDepth *prometheus.GaugeVec
	EventsPosted prometheus.Counter
	PostFailures prometheus.Counter

	// Report
	ReportAccounts prometheus.Counter
	ReportRuns     prometheus.Counter
}

// NewMetrics creates and registers every instrument on the default
// registry. Call it once per process.
func NewMetrics() *Metrics {
	durationBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.005,
	}

	return &Metrics{
		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pay_engine_events_applied_total",
			Help: "Events successfully applied to an account",
		}, []string{"kind"}),

		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pay_engine_events_rejected_total",
			Help: "Events rejected by a business rule",
		}, []string{"kind", "reason"}),

		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pay_engine_events_dropped_total",
			Help: "Events dropped before the store for an invalid amount",
		}),

		EventDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pay_engine_event_duration_seconds",
			Help:    "Per-event processing time inside a lane",
			Buckets: durationBuckets,
		}),

		RollbackErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pay_engine_rollback_errors_total",
			Help: "Compensating rollbacks that themselves failed",
		}),

		LanesActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pay_dispatch_lanes_active",
			Help: "Lanes spawned since startup",
		}),

		MailboxDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pay_dispatch_mailbox_depth",
			Help: "Queued events per lane mailbox",
		}, []string{"shard"}),

		EventsPosted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pay_dispatch_events_posted_total",
			Help: "Events accepted by the dispatcher",
		}),

		PostFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pay_dispatch_post_failures_total",
			Help: "Events the dispatcher could not enqueue",
		}),

		ReportAccounts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pay_report_accounts_total",
			Help: "Account snapshots emitted across all reports",
		}),

		ReportRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pay_report_runs_total",
			Help: "Report generations",
		}),
	}
}
