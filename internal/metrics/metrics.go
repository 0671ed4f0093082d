package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoanTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_transitions_total",
			Help: "Total number of loan status transitions by target status and category",
		},
		[]string{"status", "category"},
	)

	EmiPayments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emi_payments_total",
			Help: "Total number of installment payment attempts by result",
		},
		[]string{"result"},
	)

	ForeclosureSettlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreclosure_settlements_total",
			Help: "Total number of foreclosure settlement attempts by result",
		},
		[]string{"result"},
	)

	OverdueEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emi_entries_marked_overdue_total",
			Help: "Total number of installments moved to overdue",
		},
	)

	DependencyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loan_dependency_call_duration_seconds",
			Help:    "Duration of ledger, bureau and pricing calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dependency", "operation"},
	)
)

// ObserveDependency records the duration of a call started at start.
func ObserveDependency(dependency, operation string, start time.Time) {
	DependencyDuration.WithLabelValues(dependency, operation).Observe(time.Since(start).Seconds())
}
