package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the provisioning worker.
type Metrics struct {
	EventsConsumed   prometheus.Counter
	UsersProvisioned prometheus.Counter
	EventsSkipped    *prometheus.CounterVec
	EventsFailed     *prometheus.CounterVec
	DeadLettered     prometheus.Counter
	ResolveLatency   prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		EventsConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "provisioner_events_consumed_total",
			Help: "Total number of user.created events consumed",
		}),
		UsersProvisioned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "provisioner_users_provisioned_total",
			Help: "Total number of users inserted into the account store",
		}),
		EventsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "provisioner_events_skipped_total",
			Help: "Total number of events skipped, labeled by reason",
		}, []string{"reason"}),
		EventsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "provisioner_events_failed_total",
			Help: "Total number of events that failed, labeled by stage",
		}, []string{"stage"}),
		DeadLettered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "provisioner_events_dead_lettered_total",
			Help: "Total number of failed events republished to the dead-letter topic",
		}),
		ResolveLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "provisioner_resolve_latency_seconds",
			Help:    "Latency of identity service resolution in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncrementEventsConsumed increments the consumed events counter by 1.
func (m *Metrics) IncrementEventsConsumed() {
	m.EventsConsumed.Inc()
}

// IncrementUsersProvisioned increments the provisioned users counter by 1.
func (m *Metrics) IncrementUsersProvisioned() {
	m.UsersProvisioned.Inc()
}

// IncrementEventsSkipped increments the skipped events counter with a reason label.
func (m *Metrics) IncrementEventsSkipped(reason string) {
	m.EventsSkipped.WithLabelValues(reason).Inc()
}

// IncrementEventsFailed increments the failed events counter with a stage label.
func (m *Metrics) IncrementEventsFailed(stage string) {
	m.EventsFailed.WithLabelValues(stage).Inc()
}

// IncrementDeadLettered increments the dead-lettered events counter by 1.
func (m *Metrics) IncrementDeadLettered() {
	m.DeadLettered.Inc()
}

// ObserveResolveLatency records the latency of one identity resolution.
func (m *Metrics) ObserveResolveLatency(durationSeconds float64) {
	m.ResolveLatency.Observe(durationSeconds)
}
