// Package observability exposes Prometheus collectors for purchase activity.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eventpass"

// Metrics reports purchases, charges, receipt verification and outbox delivery.
// A nil *Metrics is a no-op.
type Metrics struct {
	purchases        *prometheus.CounterVec
	purchaseDuration *prometheus.HistogramVec
	charges          *prometheus.CounterVec
	verifications    *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg, reusing collectors that are
// already registered under the same names.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	purchases := registerOrReuse(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purchases",
			Name:      "total",
			Help:      "Purchase attempts by kind and outcome code.",
		},
		[]string{"kind", "outcome"},
	))
	purchaseDuration := registerOrReuse(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "purchases",
			Name:      "duration_seconds",
			Help:      "Time spent completing a purchase, including the payment charge.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	))
	charges := registerOrReuse(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "charges_total",
			Help:      "Payment processor charges by outcome.",
		},
		[]string{"outcome"},
	))
	verifications := registerOrReuse(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "receipts",
			Name:      "verifications_total",
			Help:      "Receipt lookups by signature validity.",
		},
		[]string{"kind", "valid"},
	))
	deliveries := registerOrReuse(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox event processing attempts by event type and outcome.",
		},
		[]string{"event_type", "outcome"},
	))
	return &Metrics{
		purchases:        purchases,
		purchaseDuration: purchaseDuration,
		charges:          charges,
		verifications:    verifications,
		deliveries:       deliveries,
	}
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, collector C) C {
	if err := reg.Register(collector); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

// ObservePurchase records one purchase attempt.
func (m *Metrics) ObservePurchase(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(kind, outcome).Inc()
	m.purchaseDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// IncCharge records one processor charge outcome.
func (m *Metrics) IncCharge(outcome string) {
	if m == nil {
		return
	}
	m.charges.WithLabelValues(outcome).Inc()
}

// IncVerification records one receipt verification.
func (m *Metrics) IncVerification(kind string, valid bool) {
	if m == nil {
		return
	}
	label := "false"
	if valid {
		label = "true"
	}
	m.verifications.WithLabelValues(kind, label).Inc()
}

// IncDelivery records one outbox processing attempt.
func (m *Metrics) IncDelivery(eventType, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(eventType, outcome).Inc()
}
