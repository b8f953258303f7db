// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_job_runs_total",
		Help: "Background job iterations, labeled by result (ok, error, panic)",
	}, []string{"job", "result"})

	JobLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storefront_job_last_success_timestamp_seconds",
		Help: "Unix time of the last successful iteration of each job",
	}, []string{"job"})

	JobRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storefront_job_running",
		Help: "1 while an iteration of the job is executing",
	}, []string{"job"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_job_duration_seconds",
		Help:    "Duration of background job iterations",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"job"})

	LedgerOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_ledger_outcomes_total",
		Help: "Ledger operation outcomes, labeled by operation and outcome",
	}, []string{"op", "outcome"})

	ReconcilerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_reconciler_entries_total",
		Help: "Feed entries handled by the deposit reconciler, labeled by result",
	}, []string{"result"})

	PriceProviderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_price_provider_failures_total",
		Help: "Failed price provider calls",
	}, []string{"provider"})
)
