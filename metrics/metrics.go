package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodswing_decisions_total",
			Help: "Strategy decisions by target side.",
		},
		[]string{"asset", "target"},
	)

	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodswing_orders_submitted_total",
			Help: "Orders submitted to the exchange gateway, by kind.",
		},
		[]string{"asset", "kind"},
	)

	OrderRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moodswing_order_retries_total",
			Help: "Order submissions that had to be retried.",
		},
	)

	Liquidations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moodswing_liquidations_total",
			Help: "Forced position closures recorded by the ledger.",
		},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moodswing_equity",
			Help: "Mark-to-market equity of the account.",
		},
	)

	SmoothedSignal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moodswing_smoothed_signal",
			Help: "Most recent smoothed sentiment index.",
		},
	)

	CyclesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodswing_cycles_skipped_total",
			Help: "Live cycles skipped, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		Decisions, OrdersSubmitted, OrderRetries,
		Liquidations, EquityGauge, SmoothedSignal, CyclesSkipped,
	)
}

// Handler exposes the registry for the live-mode HTTP endpoint.
func Handler() http.Handler { return promhttp.Handler() }
