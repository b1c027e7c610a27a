package docstore

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts transaction outcomes per backend. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	outcomes *prometheus.CounterVec
	backend  string
}

// NewMetrics registers the transaction counters against registerer.
func NewMetrics(registerer prometheus.Registerer, backend string) *Metrics {
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carepoint_docstore_tx_total",
		Help: "Document store transaction attempts partitioned by backend and outcome.",
	}, []string{"backend", "outcome"})
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if err := registerer.Register(outcomes); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			outcomes = already.ExistingCollector.(*prometheus.CounterVec)
		} else {
			panic(err)
		}
	}
	return &Metrics{outcomes: outcomes, backend: backend}
}

func (m *Metrics) committed()  { m.inc("commit") }
func (m *Metrics) conflicted() { m.inc("conflict") }
func (m *Metrics) aborted()    { m.inc("abort") }

func (m *Metrics) inc(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(m.backend, outcome).Inc()
}
