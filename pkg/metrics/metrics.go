// Package metrics exposes the node's Prometheus instrumentation. Collectors
// are registered on the default registry and served by the API's /metrics
// endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spotdex",
		Name:      "orders_submitted_total",
		Help:      "Orders accepted onto the book.",
	}, []string{"engine", "side"})

	OrdersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spotdex",
		Name:      "orders_rejected_total",
		Help:      "Order submissions rejected at admission.",
	}, []string{"engine", "reason"})

	OrdersCanceled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spotdex",
		Name:      "orders_canceled_total",
		Help:      "Orders canceled by their creator.",
	}, []string{"engine"})

	RestingOrders = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "spotdex",
		Name:      "resting_orders",
		Help:      "Orders currently resting on the book.",
	}, []string{"engine", "side"})

	DustPruned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spotdex",
		Name:      "dust_pruned_total",
		Help:      "Orders removed by post-match dust pruning.",
	}, []string{"engine", "side"})

	TradesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spotdex",
		Name:      "trades_executed_total",
		Help:      "Trades settled.",
	}, []string{"engine"})

	TradedVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spotdex",
		Name:      "traded_volume_total",
		Help:      "Cumulative settled volume, buyer leg, base units.",
	}, []string{"engine"})

	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "spotdex",
		Name:      "cycles_total",
		Help:      "Matching cycles completed.",
	})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "spotdex",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of one full matching cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "spotdex",
		Name:      "queue_depth",
		Help:      "Requests waiting for the next cycle.",
	})
)
