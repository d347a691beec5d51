package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesRequested = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridehail", Name: "rides_requested_total", Help: "Total ride requests accepted into dispatch"})
	RidesAccepted  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridehail", Name: "rides_accepted_total", Help: "Total rides claimed by a driver"})
	AcceptLost     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridehail", Name: "accept_conflicts_total", Help: "Accept attempts that lost the claim race"})
	RidesCancelled = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridehail", Name: "rides_cancelled_total", Help: "Total cancelled rides"})

	ProposalsOpened   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridehail", Name: "price_proposals_total", Help: "Total price proposals opened"})
	ProposalsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridehail", Name: "price_proposals_resolved_total", Help: "Price proposals resolved by outcome"},
		[]string{"outcome"},
	)

	Settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridehail", Name: "settlements_total", Help: "Completed ride settlements by payment method"},
		[]string{"method"},
	)
	SettlementAmount = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ridehail",
		Name:      "settlement_amount",
		Help:      "Final ride price distribution",
		Buckets:   prometheus.ExponentialBuckets(100, 2, 10),
	})
	LedgerEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridehail", Name: "ledger_entries_total", Help: "Ledger entries written by category"},
		[]string{"category"},
	)
)
