package btree

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts structural tree events, mirroring core/storage's
// in-process-only Prometheus instrumentation (no HTTP exporter wired;
// exposing /metrics is networked surface and out of scope).
type Metrics struct {
	Inserts         prometheus.Counter
	Updates         prometheus.Counter
	Deletes         prometheus.Counter
	Splits          prometheus.Counter
	Merges          prometheus.Counter
	Redistributions prometheus.Counter
}

// NewMetrics builds a Metrics set, registering it into reg if non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Inserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbordb", Subsystem: "btree", Name: "inserts_total",
			Help: "Number of successful Insert calls.",
		}),
		Updates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbordb", Subsystem: "btree", Name: "updates_total",
			Help: "Number of successful Update calls.",
		}),
		Deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbordb", Subsystem: "btree", Name: "deletes_total",
			Help: "Number of successful Delete calls.",
		}),
		Splits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbordb", Subsystem: "btree", Name: "splits_total",
			Help: "Number of node splits performed.",
		}),
		Merges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbordb", Subsystem: "btree", Name: "merges_total",
			Help: "Number of node merges performed.",
		}),
		Redistributions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbordb", Subsystem: "btree", Name: "redistributions_total",
			Help: "Number of sibling redistributions performed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Inserts, m.Updates, m.Deletes, m.Splits, m.Merges, m.Redistributions)
	}
	return m
}
