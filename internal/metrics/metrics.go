package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_ledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arena_ledger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	LedgerTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_ledger_transactions_total",
			Help: "Total number of committed ledger rows",
		},
		[]string{"type"},
	)

	HoldTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_ledger_hold_transitions_total",
			Help: "Total number of hold state transitions",
		},
		[]string{"status"},
	)

	DepositRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_ledger_deposit_requests_total",
			Help: "Total number of deposit request state changes",
		},
		[]string{"status"},
	)

	HoldSweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_ledger_hold_sweep_runs_total",
			Help: "Total number of hold expiry sweeps",
		},
		[]string{"result"},
	)

	NotificationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arena_ledger_notification_failures_total",
			Help: "Total number of notifications that could not be delivered",
		},
	)
)

// RecordTransactions counts committed ledger rows by type.
func RecordTransactions(types ...string) {
	for _, t := range types {
		LedgerTransactionsTotal.WithLabelValues(t).Inc()
	}
}

// RecordHolds counts n holds entering status.
func RecordHolds(status string, n int) {
	if n <= 0 {
		return
	}
	HoldTransitionsTotal.WithLabelValues(status).Add(float64(n))
}

// RecordDepositRequest counts a deposit request entering status.
func RecordDepositRequest(status string) {
	DepositRequestsTotal.WithLabelValues(status).Inc()
}
