// Package metrics registers the process-wide prometheus counters and
// gauges used across the order pool, matching engine and consensus state
// machine. Grounded on github.com/luxfi/evm's metrics/prometheus/prometheus.go
// and the reservationsGaugeName gauge pattern in core/txpool/txpool.go.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "angstrom"

var (
	OrdersAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "orderpool", Name: "orders_accepted_total",
		Help: "Orders admitted into the pool.",
	})
	OrdersRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "orderpool", Name: "orders_rejected_total",
		Help: "Orders rejected by validation.",
	})
	OrdersDuplicate = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "orderpool", Name: "orders_duplicate_total",
		Help: "Orders ingested whose hash was already known (idempotent no-op).",
	})
	OrdersTransitioned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "orderpool", Name: "orders_transitioned_total",
		Help: "Validation requests answered with TransitionedToBlock.",
	})

	RoundDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "consensus", Name: "round_duration_seconds",
		Help: "Wall-clock duration of a consensus round from BidAggregation to terminal state.",
	})
	RoundQuorumTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "consensus", Name: "round_quorum_timeouts_total",
		Help: "Rounds that ended without reaching quorum.",
	})
	RoundsCommitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "consensus", Name: "rounds_committed_total",
		Help: "Rounds that reached a 2f+1 aggregate commit.",
	})

	MatcherIterations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "matching", Name: "iterations_total",
		Help: "single_match iterations executed across all pools.",
	})
	MatcherCheckpointRollbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "matching", Name: "checkpoint_rollbacks_total",
		Help: "Times a matcher rolled back to its last checkpoint after an error.",
	})
)

func init() {
	prometheus.MustRegister(
		OrdersAccepted, OrdersRejected, OrdersDuplicate, OrdersTransitioned,
		RoundDuration, RoundQuorumTimeouts, RoundsCommitted,
		MatcherIterations, MatcherCheckpointRollbacks,
	)
}
