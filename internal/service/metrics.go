package service

import "github.com/prometheus/client_golang/prometheus"

// Allocation outcomes recorded by Metrics.
const (
	OutcomeFulfilled = "fulfilled"
	// OutcomeExhausted: fewer free tickets than requested existed.
	OutcomeExhausted = "exhausted"
	// OutcomeContended: enough tickets were free but others held their locks.
	OutcomeContended = "contended"
	OutcomeError     = "error"
)

// Metrics counts allocation and cancellation outcomes.  A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	allocations   *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	claimed       prometheus.Counter
	released      prometheus.Counter
}

// NewMetrics registers the booking collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tickets",
			Name:      "allocations_total",
			Help:      "Allocation attempts by outcome.",
		}, []string{"outcome"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tickets",
			Name:      "cancellations_total",
			Help:      "Cancellation attempts by outcome.",
		}, []string{"outcome"}),
		claimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickets",
			Name:      "claimed_total",
			Help:      "Tickets claimed by fulfilled orders.",
		}),
		released: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickets",
			Name:      "released_total",
			Help:      "Tickets released by cancelled orders.",
		}),
	}
	reg.MustRegister(m.allocations, m.cancellations, m.claimed, m.released)
	return m
}

func (m *Metrics) allocation(outcome string, tickets int) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(outcome).Inc()
	if outcome == OutcomeFulfilled {
		m.claimed.Add(float64(tickets))
	}
}

func (m *Metrics) cancellation(outcome string, tickets int) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(outcome).Inc()
	m.released.Add(float64(tickets))
}
