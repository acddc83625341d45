package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder exposes rate limiter and payment metrics through Prometheus.
// It satisfies ratelimit.Observer.
type Recorder struct {
	decisions *prometheus.CounterVec
	payments  *prometheus.CounterVec
}

// New registers the recorder's collectors on reg. buckets reports the number
// of tracked limiter keys.
func New(reg prometheus.Registerer, buckets func() int) *Recorder {
	r := &Recorder{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimit_decisions_total",
				Help: "Admission decisions made by the rate limiter",
			},
			[]string{"outcome"},
		),
		payments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_total",
				Help: "Payments processed by final status",
			},
			[]string{"status"},
		),
	}
	reg.MustRegister(r.decisions, r.payments)
	if buckets != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "ratelimit_buckets",
				Help: "Number of caller keys tracked by the rate limiter",
			},
			func() float64 { return float64(buckets()) },
		))
	}
	return r
}

// Observe records a single admission decision.
func (r *Recorder) Observe(_ string, allowed bool) {
	outcome := "rejected"
	if allowed {
		outcome = "allowed"
	}
	r.decisions.WithLabelValues(outcome).Inc()
}

// RecordPayment counts a payment by final status.
func (r *Recorder) RecordPayment(status string) {
	r.payments.WithLabelValues(status).Inc()
}
