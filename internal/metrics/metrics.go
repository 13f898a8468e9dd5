// Package metrics exposes decision, risk and backtest counters as
// Prometheus metrics on a private registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all trader metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	Decisions        *prometheus.CounterVec
	DecisionDuration prometheus.Histogram
	RiskRejections   *prometheus.CounterVec
	RegimeSwitches   *prometheus.CounterVec
	ActiveRegime     prometheus.Gauge
	Trades           *prometheus.CounterVec
	RealizedPnL      prometheus.Counter
	Equity           prometheus.Gauge
	BacktestRuns     prometheus.Counter
}

// NewCollector creates a collector registered on its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trader_decisions_total",
				Help: "Decision cycles by regime stage and outcome",
			},
			[]string{"stage", "outcome"},
		),

		DecisionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trader_decision_duration_seconds",
				Help:    "Duration of a decision cycle in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
		),

		RiskRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trader_risk_rejections_total",
				Help: "Plans vetoed by the risk gate by rule",
			},
			[]string{"rule"},
		),

		RegimeSwitches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trader_regime_switches_total",
				Help: "Regime changes by from/to stage",
			},
			[]string{"from_regime", "to_regime"},
		),

		ActiveRegime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trader_active_regime",
				Help: "Most recently classified regime index (0-9)",
			},
		),

		Trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trader_trades_total",
				Help: "Executed fills by type (BUY, TP, SL, PARTIAL)",
			},
			[]string{"type"},
		),

		RealizedPnL: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trader_realized_pnl_abs_total",
				Help: "Sum of absolute realized PnL across closed positions",
			},
		),

		Equity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trader_equity",
				Help: "Current account equity in quote currency",
			},
		),

		BacktestRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trader_backtest_runs_total",
				Help: "Completed backtest runs",
			},
		),
	}

	c.registry.MustRegister(
		c.Decisions,
		c.DecisionDuration,
		c.RiskRejections,
		c.RegimeSwitches,
		c.ActiveRegime,
		c.Trades,
		c.RealizedPnL,
		c.Equity,
		c.BacktestRuns,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveDecision counts a decision cycle.
func (c *Collector) ObserveDecision(stage int, outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.Decisions.WithLabelValues(strconv.Itoa(stage), outcome).Inc()
	c.DecisionDuration.Observe(took.Seconds())
}

// ObserveRiskRejection counts a veto by rule.
func (c *Collector) ObserveRiskRejection(rule string) {
	if c == nil {
		return
	}
	c.RiskRejections.WithLabelValues(rule).Inc()
}

// ObserveRegime records the current regime and counts a switch when it
// differs from the previous one. prev < 0 means no previous regime.
func (c *Collector) ObserveRegime(prev, current int) {
	if c == nil {
		return
	}
	c.ActiveRegime.Set(float64(current))
	if prev >= 0 && prev != current {
		c.RegimeSwitches.WithLabelValues(strconv.Itoa(prev), strconv.Itoa(current)).Inc()
	}
}

// ObserveTrade counts a fill and, for exits, its realized PnL.
func (c *Collector) ObserveTrade(tradeType string, pnl float64) {
	if c == nil {
		return
	}
	c.Trades.WithLabelValues(tradeType).Inc()
	if pnl < 0 {
		pnl = -pnl
	}
	c.RealizedPnL.Add(pnl)
}

// SetEquity records the latest equity value.
func (c *Collector) SetEquity(v float64) {
	if c == nil {
		return
	}
	c.Equity.Set(v)
}

// ObserveBacktestRun counts a completed backtest.
func (c *Collector) ObserveBacktestRun() {
	if c == nil {
		return
	}
	c.BacktestRuns.Inc()
}

// WriteTextfile writes all metrics in the Prometheus text format, for the
// node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
