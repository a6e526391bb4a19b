// Package obs exposes the keeper's Prometheus metrics.
//
// Primary series:
//   - keeper_cycles_total{result}            – reconciliation cycles by outcome
//   - keeper_orders_placed_total{kind,side}  – orders submitted to the venue
//   - keeper_orders_canceled_total           – orders canceled by the keeper
//   - keeper_rate_limit_pauses_total         – venue throttling pauses entered
//   - keeper_protective_replacements_total   – stop orders cancel-replaced
//   - keeper_position_amount{symbol}         – signed position size (gauge)
//   - keeper_open_orders{symbol}             – resting order count (gauge)
//
// Registered in init and served by the HTTP handler from Handler.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mtxCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_cycles_total",
			Help: "Reconciliation cycles by outcome",
		},
		[]string{"result"},
	)

	mtxOrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_orders_placed_total",
			Help: "Orders submitted to the venue",
		},
		[]string{"kind", "side"},
	)

	mtxOrdersCanceled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keeper_orders_canceled_total",
			Help: "Orders canceled by the keeper",
		},
	)

	mtxRateLimitPauses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keeper_rate_limit_pauses_total",
			Help: "Venue throttling pauses entered",
		},
	)

	mtxProtectiveReplaced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keeper_protective_replacements_total",
			Help: "Protective stop orders cancel-replaced",
		},
	)

	gaugePosition = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keeper_position_amount",
			Help: "Signed position size",
		},
		[]string{"symbol"},
	)

	gaugeOpenOrders = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keeper_open_orders",
			Help: "Resting order count",
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(
		mtxCycles,
		mtxOrdersPlaced,
		mtxOrdersCanceled,
		mtxRateLimitPauses,
		mtxProtectiveReplaced,
		gaugePosition,
		gaugeOpenOrders,
	)
}

func CycleCompleted(result string) { mtxCycles.WithLabelValues(result).Inc() }

func OrderPlaced(kind, side string) { mtxOrdersPlaced.WithLabelValues(kind, side).Inc() }

func OrdersCanceled(n int) { mtxOrdersCanceled.Add(float64(n)) }

func RateLimitPause() { mtxRateLimitPauses.Inc() }

func ProtectiveReplaced() { mtxProtectiveReplaced.Inc() }

func SetPosition(symbol string, amount float64) {
	gaugePosition.WithLabelValues(symbol).Set(amount)
}

func SetOpenOrders(symbol string, n int) {
	gaugeOpenOrders.WithLabelValues(symbol).Set(float64(n))
}

// Handler serves the metrics endpoint.
func Handler() http.Handler { return promhttp.Handler() }
