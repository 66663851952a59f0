package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BlocksScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymirror_blocks_scanned_total",
		Help: "The total number of blocks scanned for settlement events",
	})

	FillsObserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymirror_fills_observed_total",
		Help: "The total number of OrderFilled events decoded",
	})

	TradesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymirror_trades_detected_total",
		Help: "Target account trades detected, by side and role",
	}, []string{"side", "role"})

	MirrorOrders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymirror_mirror_orders_total",
		Help: "Mirror attempts reaching a terminal state, by status and side",
	}, []string{"status", "side"})

	MirrorAborts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymirror_mirror_aborts_total",
		Help: "Mirror attempts aborted before or during submission, by reason",
	}, []string{"reason"})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymirror_reconnects_total",
		Help: "RPC reconnect attempts after a connectivity fault",
	})

	GammaLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymirror_gamma_lookups_total",
		Help: "Market metadata lookups, by result",
	}, []string{"result"})
)
