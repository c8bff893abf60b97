package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the events service.
type Metrics struct {
	ActionsCommitted   *prometheus.CounterVec
	IdempotentReplays  prometheus.Counter
	AppendConflicts    prometheus.Counter
	ValidationFailures prometheus.Counter
	IndexCalls         prometheus.Counter
	IndexFailures      prometheus.Counter
	RequestLatency     *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics. Construct once per
// process; promauto registers against the default registry.
func New() *Metrics {
	return &Metrics{
		ActionsCommitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "events_actions_committed_total",
			Help: "Total number of actions appended to event documents, by action type",
		}, []string{"action"}),
		IdempotentReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "events_idempotent_replays_total",
			Help: "Total number of calls answered from the recorded-result cache",
		}),
		AppendConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "events_append_conflicts_total",
			Help: "Total number of optimistic append attempts that lost a version race",
		}),
		ValidationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "events_validation_failures_total",
			Help: "Total number of declaration payloads rejected by form validation",
		}),
		IndexCalls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "events_index_calls_total",
			Help: "Total number of search index refresh invocations",
		}),
		IndexFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "events_index_failures_total",
			Help: "Total number of failed search index refresh invocations",
		}),
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "events_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// ActionCommitted records one committed action of the given type.
func (m *Metrics) ActionCommitted(action string) {
	if m == nil {
		return
	}
	m.ActionsCommitted.WithLabelValues(action).Inc()
}
