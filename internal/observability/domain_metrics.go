package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlquery_translations_total",
			Help: "Total number of translation attempts by provider and result.",
		},
		[]string{"provider", "result"},
	)
	translationLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nlquery_translation_latency_ms",
			Help:    "Language model translation latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		},
	)
	statementsClassifiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlquery_statements_classified_total",
			Help: "Total number of candidate statements by classification.",
		},
		[]string{"classification"},
	)
	statementsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nlquery_statements_rejected_total",
			Help: "Total number of candidate statements rejected by policy.",
		},
	)
	executionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nlquery_execution_latency_ms",
			Help:    "SQL execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
		},
	)
	schemaCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlquery_schema_cache_lookups_total",
			Help: "Total number of schema cache lookups by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		translationsTotal,
		translationLatencyMs,
		statementsClassifiedTotal,
		statementsRejectedTotal,
		executionLatencyMs,
		schemaCacheLookupsTotal,
	)
}

func ObserveTranslation(provider, result string, elapsed time.Duration) {
	translationsTotal.WithLabelValues(provider, result).Inc()
	if result == "ok" {
		translationLatencyMs.Observe(float64(elapsed.Milliseconds()))
	}
}

func ObserveClassification(classification string, rejected bool) {
	statementsClassifiedTotal.WithLabelValues(classification).Inc()
	if rejected {
		statementsRejectedTotal.Inc()
	}
}

func ObserveExecution(elapsed time.Duration) {
	executionLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveSchemaCacheLookup(hit bool) {
	if hit {
		schemaCacheLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		schemaCacheLookupsTotal.WithLabelValues("miss").Inc()
	}
}
