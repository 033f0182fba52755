// Package metrics holds the Prometheus collectors updated by the trading loops.
//
//   - signals_total{result}            scanned window entries by outcome
//   - orders_total{kind,result}        order placements (kind: limit|market)
//   - reconcile_cycles_total{result}   reconciliation polls (ok|error)
//   - positions_open                   keys currently in position
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Signal scan outcomes.
const (
	SignalDispatched  = "dispatched"
	SignalIncomplete  = "incomplete"
	SignalBlacklisted = "blacklisted"
)

var registry = prometheus.NewRegistry()

var (
	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_total",
			Help: "Scanned signal messages split by outcome.",
		},
		[]string{"result"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Order placements split by order kind and result.",
		},
		[]string{"kind", "result"},
	)

	ReconcileCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_cycles_total",
			Help: "Position reconciliation polls split by result.",
		},
		[]string{"result"},
	)

	// PositionsOpen is refreshed after every successful reconciliation.
	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "positions_open",
			Help: "Number of (symbol, side) keys currently in position.",
		},
	)
)

func init() {
	registry.MustRegister(Signals, Orders, ReconcileCycles, PositionsOpen)
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Registry exposes the collectors, mainly for tests.
func Registry() *prometheus.Registry {
	return registry
}

// Handler serves the registry in the Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
