package payments

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks reconciliation outcomes and verifier latency.
type Metrics struct {
	outcomes *prometheus.CounterVec
	verify   *prometheus.HistogramVec
	ignored  prometheus.Counter
	settle   prometheus.Counter
}

// NewMetrics registers payment collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_payment_reconcile_total",
			Help: "Payment callbacks reconciled by outcome.",
		}, []string{"outcome"}),
		verify: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_payment_verify_duration_seconds",
			Help:    "Latency of payment verifier calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		ignored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_payment_mock_flag_ignored_total",
			Help: "Callbacks that asserted the mock flag while mock payments were disabled.",
		}),
		settle: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_payment_settle_failures_total",
			Help: "Confirmed payments whose document could not be settled yet.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(m.outcomes, m.verify, m.ignored, m.settle)
	}
	return m
}

func (m *Metrics) observeOutcome(outcome Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) observeVerify(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.verify.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (m *Metrics) observeMockIgnored() {
	if m == nil {
		return
	}
	m.ignored.Inc()
}

func (m *Metrics) observeSettleFailure() {
	if m == nil {
		return
	}
	m.settle.Inc()
}
