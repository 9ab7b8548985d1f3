package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

// SubscriptionMetrics counts subscription lifecycle transitions and webhook
// reconciliation outcomes.
type SubscriptionMetrics interface {
	IncActivated(packName string)
	IncCancelled(packName string)
	IncExpired(packName string)
	IncRefunded(packName string)
	IncWebhookEvent(eventType, outcome string)
	ObserveSweepDuration(sweep string, d time.Duration)
	ObserveSweepRows(sweep string, rows int)
}

type subscriptionMetrics struct {
	log           *logger.Logger
	transitions   *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
	sweepRows     *prometheus.HistogramVec
}

// NewSubscriptionMetrics registers the subscription metric set.
func NewSubscriptionMetrics(registry *prometheus.Registry, log *logger.Logger) SubscriptionMetrics {
	transitions := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "The total number of subscription state transitions",
		},
		[]string{"transition", "pack"},
	)

	webhookEvents := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "The total number of processed webhook events",
		},
		[]string{"event_type", "outcome"},
	)

	sweepDuration := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_sweep_duration_seconds",
			Help:    "Duration of scheduler sweeps",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sweep"},
	)

	sweepRows := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_sweep_rows",
			Help:    "Rows handled per scheduler sweep",
			Buckets: prometheus.ExponentialBuckets(1, 4, 6),
		},
		[]string{"sweep"},
	)

	return &subscriptionMetrics{
		log:           log,
		transitions:   transitions,
		webhookEvents: webhookEvents,
		sweepDuration: sweepDuration,
		sweepRows:     sweepRows,
	}
}

func (m *subscriptionMetrics) IncActivated(packName string) {
	m.transitions.WithLabelValues("activated", packName).Inc()
}

func (m *subscriptionMetrics) IncCancelled(packName string) {
	m.transitions.WithLabelValues("cancelled", packName).Inc()
}

func (m *subscriptionMetrics) IncExpired(packName string) {
	m.transitions.WithLabelValues("expired", packName).Inc()
}

func (m *subscriptionMetrics) IncRefunded(packName string) {
	m.transitions.WithLabelValues("refunded", packName).Inc()
}

func (m *subscriptionMetrics) IncWebhookEvent(eventType, outcome string) {
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *subscriptionMetrics) ObserveSweepDuration(sweep string, d time.Duration) {
	m.sweepDuration.WithLabelValues(sweep).Observe(d.Seconds())
}

func (m *subscriptionMetrics) ObserveSweepRows(sweep string, rows int) {
	m.sweepRows.WithLabelValues(sweep).Observe(float64(rows))
}

// NoopSubscriptionMetrics discards all observations. Used in tests.
type NoopSubscriptionMetrics struct{}

func (NoopSubscriptionMetrics) IncActivated(string)                        {}
func (NoopSubscriptionMetrics) IncCancelled(string)                        {}
func (NoopSubscriptionMetrics) IncExpired(string)                          {}
func (NoopSubscriptionMetrics) IncRefunded(string)                         {}
func (NoopSubscriptionMetrics) IncWebhookEvent(string, string)             {}
func (NoopSubscriptionMetrics) ObserveSweepDuration(string, time.Duration) {}
func (NoopSubscriptionMetrics) ObserveSweepRows(string, int)               {}
