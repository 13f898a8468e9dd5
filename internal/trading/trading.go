// Package trading replays candle series through the decision pipeline
// against a simulated account, and sweeps backtests in parallel.
package trading

import (
	"time"

	"regime-trader/internal/decision"
	"regime-trader/internal/models"
)

// Decider produces one decision per bar. *decision.Orchestrator implements
// it.
type Decider interface {
	DecideOrder(candles []models.Candle, balance float64) (*decision.Decision, error)
}

// Backtest defaults.
const (
	DefaultLookback       = 60
	DefaultBarsPerDay     = 288
	DefaultMinOrderAmount = 5500
	DefaultTicker         = "KRW-BTC"
	ReportTradeLimit      = 20
	ReportEquityStride    = 10
)

// BacktestConfig represents backtesting configuration.
type BacktestConfig struct {
	Ticker         string  `json:"ticker"`
	InitialBalance float64 `json:"initial_balance"`
	FeeRate        float64 `json:"fee_rate"`
	// MinOrderAmount is the cash level that must be exceeded before a new
	// entry is attempted.
	MinOrderAmount float64 `json:"min_order_amount"`
	Lookback       int     `json:"lookback"`
	BarsPerDay     int     `json:"bars_per_day"`
	StagedExits    bool    `json:"staged_exits"`
	// MaxPositions caps simultaneously open positions. Zero means no cap.
	MaxPositions   int     `json:"max_positions,omitempty"`
}

// DefaultBacktestConfig returns the standard 5-minute-bar settings.
func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{
		Ticker:         DefaultTicker,
		InitialBalance: 1_000_000,
		FeeRate:        0.0005,
		MinOrderAmount: DefaultMinOrderAmount,
		Lookback:       DefaultLookback,
		BarsPerDay:     DefaultBarsPerDay,
	}
}

// withDefaults fills zero fields. A zero FeeRate is kept.
func (c BacktestConfig) withDefaults() BacktestConfig {
	def := DefaultBacktestConfig()
	if c.Ticker == "" {
		c.Ticker = def.Ticker
	}
	if c.InitialBalance <= 0 {
		c.InitialBalance = def.InitialBalance
	}
	if c.MinOrderAmount <= 0 {
		c.MinOrderAmount = def.MinOrderAmount
	}
	if c.Lookback <= 0 {
		c.Lookback = def.Lookback
	}
	if c.BarsPerDay <= 0 {
		c.BarsPerDay = def.BarsPerDay
	}
	return c
}

// BacktestMetrics summarizes a completed run.
type BacktestMetrics struct {
	InitialCapital    float64     `json:"initial_capital"`
	FinalValue        float64     `json:"final_value"`
	TotalReturnPct    float64     `json:"total_return_pct"`
	TotalTrades       int         `json:"total_trades"`
	WinningTrades     int         `json:"winning_trades"`
	LosingTrades      int         `json:"losing_trades"`
	WinRatePct        float64     `json:"win_rate_pct"`
	AvgWin            float64     `json:"avg_win"`
	AvgLoss           float64     `json:"avg_loss"`
	ProfitFactor      float64     `json:"profit_factor"`
	MaxDrawdownPct    float64     `json:"max_drawdown_pct"`
	SharpeRatio       float64     `json:"sharpe_ratio"`
	TotalFeesPaid     float64     `json:"total_fees_paid"`
	FeeImpactPct      float64     `json:"fee_impact_pct"`
	StageDistribution map[int]int `json:"market_stage_distribution"`
}

// BacktestResult represents backtesting results.
type BacktestResult struct {
	RunID        string          `json:"run_id"`
	Config       BacktestConfig  `json:"config"`
	Metrics      BacktestMetrics `json:"metrics"`
	Trades       []models.Trade  `json:"trades"`
	EquityCurve  []EquityPoint   `json:"equity_curve"`
	MarketStates []MarketState   `json:"market_states"`
	StartedAt    time.Time       `json:"started_at"`
	Duration     time.Duration   `json:"duration"`
}

// EquityPoint represents a point on the equity curve. Equity is measured
// after exits and before the bar's entry; Cash and Positions after it.
type EquityPoint struct {
	Time        time.Time `json:"time"`
	Equity      float64   `json:"equity"`
	Cash        float64   `json:"cash"`
	Positions   int       `json:"positions"`
	MarketState int       `json:"market_state"`
}

// MarketState records the classification of one replayed bar.
type MarketState struct {
	Time      time.Time `json:"time"`
	Index     int       `json:"index"`
	Stage     string    `json:"stage"`
	RSI       float64   `json:"rsi"`
	VolumeRel float64   `json:"volume_rel"`
	Outcome   string    `json:"outcome"`
}
