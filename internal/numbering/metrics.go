package numbering

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts retry activity of the generator.
type Metrics struct {
	conflicts *prometheus.CounterVec
	exhausted *prometheus.CounterVec
}

// NewMetrics registers the numbering collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_document_number_conflicts_total",
		Help: "Candidate document numbers rejected by the unique constraint.",
	}, []string{"type"})
	exhausted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_document_number_failures_total",
		Help: "Number generations that ran out of retry attempts.",
	}, []string{"type"})
	if registerer != nil {
		registerer.MustRegister(conflicts, exhausted)
	}
	return &Metrics{conflicts: conflicts, exhausted: exhausted}
}

func (m *Metrics) observeConflict(docType DocumentType) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(string(docType)).Inc()
}

func (m *Metrics) observeExhausted(docType DocumentType) {
	if m == nil {
		return
	}
	m.exhausted.WithLabelValues(string(docType)).Inc()
}
