// Package metrics exports the validation engine metrics to prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/scionproto/scion/pkg/metrics/v2"
	"github.com/scionproto/scion/pkg/private/prom"

	"github.com/fancl20/sigval/pkg/revocation"
)

// Metrics exposes validation metrics as functions that return counters.
type Metrics struct {
	Verdicts func(kind, indication string) metrics.Counter
	// Revocation are the metrics of revocation evidence selection.
	Revocation revocation.Metrics
}

// New creates the metrics. Without options the counters are registered with
// the default prometheus registerer.
func New(opts ...metrics.Option) Metrics {
	auto := metrics.ApplyOptions(opts...).Auto()

	verdicts := auto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_verdicts_total",
			Help: "Number of verdicts produced, by token kind and indication",
		},
		[]string{"kind", "indication"},
	)
	selections := auto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_revocation_selections_total",
			Help: "Number of revocation evidence selections, by source",
		},
		[]string{"source", prom.LabelResult},
	)
	cacheLookups := auto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_cache_lookups_total",
			Help: "Total number of revocation cache lookups",
		},
		[]string{"type", prom.LabelResult},
	)

	return Metrics{
		Verdicts: func(kind, indication string) metrics.Counter {
			return verdicts.WithLabelValues(kind, indication)
		},
		Revocation: revocation.Metrics{
			Selections: func(source, result string) metrics.Counter {
				return selections.WithLabelValues(source, result)
			},
			CacheLookups: func(typ, result string) metrics.Counter {
				return cacheLookups.WithLabelValues(typ, result)
			},
		},
	}
}
