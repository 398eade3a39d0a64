package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DeliveryMetrics records per-channel delivery outcomes.
type DeliveryMetrics struct {
	attempts *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewDeliveryMetrics registers the delivery metrics on the provided registerer.
func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	if reg == nil {
		return &DeliveryMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_attempts_total",
		Help: "Individual delivery attempts, including retries.",
	}, []string{"channel"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_outcomes_total",
		Help: "Terminal delivery outcomes per endpoint.",
	}, []string{"channel", "result"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "delivery_duration_seconds",
		Help:    "Wall clock from first attempt to terminal outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})
	reg.MustRegister(attempts, outcomes, duration)
	return &DeliveryMetrics{
		attempts: attempts,
		outcomes: outcomes,
		duration: duration,
	}
}

// IncAttempt counts one delivery attempt for the channel.
func (d *DeliveryMetrics) IncAttempt(channel string) {
	if d == nil || d.attempts == nil {
		return
	}
	d.attempts.WithLabelValues(normalizeLabel(channel)).Inc()
}

// IncOutcome counts one terminal outcome for the channel.
func (d *DeliveryMetrics) IncOutcome(channel string, success bool) {
	if d == nil || d.outcomes == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	d.outcomes.WithLabelValues(normalizeLabel(channel), result).Inc()
}

// ObserveDuration records the terminal delivery duration for the channel.
func (d *DeliveryMetrics) ObserveDuration(channel string, duration time.Duration) {
	if d == nil || d.duration == nil {
		return
	}
	d.duration.WithLabelValues(normalizeLabel(channel)).Observe(duration.Seconds())
}
