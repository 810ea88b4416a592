// Package telemetry exposes Prometheus metrics for the chart data layer:
// query and save/delete outcomes plus transaction sizing.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the chartcore metric instruments. Instruments are always
// usable; they are only registered when a Registerer is supplied.
type Metrics struct {
	QueriesDispatched prometheus.Counter
	QueriesLoaded     prometheus.Counter
	QueryErrors       prometheus.Counter

	SavesAttempted prometheus.Counter
	SavesSucceeded prometheus.Counter
	SaveErrors     prometheus.Counter

	DeletesAttempted prometheus.Counter
	DeleteErrors     prometheus.Counter

	TransactionEntries prometheus.Histogram
}

// New creates the metric set. reg may be nil, in which case the instruments
// collect but are not exported anywhere (useful in tests).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueriesDispatched: counter("queries_dispatched_total", "Distinct queries dispatched to the remote server."),
		QueriesLoaded:     counter("queries_loaded_total", "Queries that resolved successfully."),
		QueryErrors:       counter("query_errors_total", "Queries that resolved to an error state."),
		SavesAttempted:    counter("saves_attempted_total", "Save transactions submitted."),
		SavesSucceeded:    counter("saves_succeeded_total", "Save transactions confirmed by the server."),
		SaveErrors:        counter("save_errors_total", "Save transactions rejected or failed."),
		DeletesAttempted:  counter("deletes_attempted_total", "Immediate deletes issued."),
		DeleteErrors:      counter("delete_errors_total", "Immediate deletes that failed remotely."),
		TransactionEntries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chartcore",
			Name:      "transaction_entries",
			Help:      "Entry count per submitted save transaction.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.QueriesDispatched, m.QueriesLoaded, m.QueryErrors,
			m.SavesAttempted, m.SavesSucceeded, m.SaveErrors,
			m.DeletesAttempted, m.DeleteErrors,
			m.TransactionEntries,
		)
	}
	return m
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chartcore",
		Name:      name,
		Help:      help,
	})
}
