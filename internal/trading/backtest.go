package trading

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"regime-trader/internal/broker"
	"regime-trader/internal/decision"
	apperrors "regime-trader/internal/errors"
	"regime-trader/internal/logging"
	"regime-trader/internal/metrics"
	"regime-trader/internal/models"
	"regime-trader/internal/notify"
	"regime-trader/internal/risk"
)

// BacktestEngine replays a series bar by bar. An engine owns its account and
// is not safe for concurrent use; run parallel backtests on separate
// engines.
type BacktestEngine struct {
	cfg      BacktestConfig
	decider  Decider
	gate     *risk.Gate
	account  *broker.PaperBroker
	notifier notify.Notifier
	metrics  *metrics.Collector
	logger   zerolog.Logger

	equity     []EquityPoint
	states     []MarketState
	stages     map[int]int
	lastRegime int
}

// EngineOption configures a BacktestEngine.
type EngineOption func(*BacktestEngine)

// WithGate sets the risk gate whose daily counters and outcome history the
// engine maintains. It should be the gate the decider evaluates against.
func WithGate(gate *risk.Gate) EngineOption {
	return func(e *BacktestEngine) {
		e.gate = gate
	}
}

// WithNotifier sets the event notifier.
func WithNotifier(n notify.Notifier) EngineOption {
	return func(e *BacktestEngine) {
		e.notifier = n
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) EngineOption {
	return func(e *BacktestEngine) {
		e.metrics = c
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *BacktestEngine) {
		e.logger = logger
	}
}

// NewBacktestEngine creates an engine driving decider over a fresh paper
// account.
func NewBacktestEngine(cfg BacktestConfig, decider Decider, opts ...EngineOption) *BacktestEngine {
	cfg = cfg.withDefaults()
	e := &BacktestEngine{
		cfg:     cfg,
		decider: decider,
		account: broker.NewPaperBroker(broker.PaperBrokerConfig{
			InitialBalance: cfg.InitialBalance,
			FeeRate:        cfg.FeeRate,
		}),
		notifier: notify.NewNoOpNotifier(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.reset()
	return e
}

// Config returns the effective configuration.
func (e *BacktestEngine) Config() BacktestConfig {
	return e.cfg
}

// Account returns the simulated account.
func (e *BacktestEngine) Account() *broker.PaperBroker {
	return e.account
}

func (e *BacktestEngine) reset() {
	e.account.Reset()
	e.equity = nil
	e.states = nil
	e.stages = make(map[int]int)
	e.lastRegime = -1
}

// Run replays candles from the lookback bar onwards. Each bar: reset the
// daily risk counters on day boundaries, settle take-profit and stop-loss
// exits against the bar's range, optionally take staged profits, record
// equity, ask the decider for an entry and execute it when cash allows.
func (e *BacktestEngine) Run(ctx context.Context, candles []models.Candle) (*BacktestResult, error) {
	if e.decider == nil {
		return nil, fmt.Errorf("backtest: no decider configured")
	}
	if err := models.ValidateSeries(candles); err != nil {
		return nil, err
	}

	e.reset()
	started := time.Now()
	runID := uuid.NewString()
	logger := logging.WithSymbol(logging.WithRunID(e.logger, runID), e.cfg.Ticker)
	logger.Info().
		Int("bars", len(candles)).
		Int("lookback", e.cfg.Lookback).
		Float64("fee_rate", e.account.FeeRate()).
		Float64("initial", e.account.InitialBalance()).
		Msg("Backtest started")

	for i := e.cfg.Lookback; i < len(candles); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar := candles[i]

		if i%e.cfg.BarsPerDay == 0 && e.gate != nil {
			e.gate.ResetDaily()
		}

		if _, err := e.CheckExits(ctx, bar); err != nil {
			return nil, err
		}
		if e.cfg.StagedExits {
			if err := e.TakeStagedProfits(ctx, bar); err != nil {
				return nil, err
			}
		}

		equity, _ := e.account.Equity(ctx, bar.Close)
		cash, _ := e.account.Cash(ctx)

		// Spent cash still gets a decision so every bar carries a regime;
		// the cash guard below keeps its plan unused.
		balance := cash
		if balance <= 0 {
			balance = equity
		}

		regimeIdx := -1
		if balance > 0 {
			d, err := e.decider.DecideOrder(candles[:i+1], balance)
			if err != nil {
				return nil, fmt.Errorf("bar %d: %w", i, err)
			}
			regimeIdx = int(d.RegimeIndex)
			e.observe(ctx, bar, d)

			if d.Plan != nil && cash > e.cfg.MinOrderAmount && e.hasCapacity(ctx) {
				if _, err := e.ExecuteBuy(ctx, bar, d); err != nil && !errors.Is(err, apperrors.ErrInsufficientFunds) {
					return nil, fmt.Errorf("bar %d: %w", i, err)
				}
			}
		}

		cash, _ = e.account.Cash(ctx)
		positions, _ := e.account.Positions(ctx)
		e.equity = append(e.equity, EquityPoint{
			Time:        bar.Timestamp,
			Equity:      equity,
			Cash:        cash,
			Positions:   len(positions),
			MarketState: regimeIdx,
		})
		e.metrics.SetEquity(equity)
	}

	finalValue, _ := e.account.Equity(ctx, models.LastClose(candles))
	result := &BacktestResult{
		RunID:        runID,
		Config:       e.cfg,
		Trades:       e.account.Trades(),
		EquityCurve:  e.equity,
		MarketStates: e.states,
		StartedAt:    started,
		Duration:     time.Since(started),
	}
	result.Metrics = CalculateMetrics(e.cfg, finalValue, result.Trades, e.equity, e.stages, e.account.TotalFees())
	e.metrics.ObserveBacktestRun()

	logger.Info().
		Float64("final_value", result.Metrics.FinalValue).
		Float64("return_pct", result.Metrics.TotalReturnPct).
		Int("trades", result.Metrics.TotalTrades).
		Dur("took", result.Duration).
		Msg("Backtest finished")
	return result, nil
}

// observe records the bar's classification and emits regime and risk
// events.
func (e *BacktestEngine) observe(ctx context.Context, bar models.Candle, d *decision.Decision) {
	idx := int(d.RegimeIndex)
	e.stages[idx]++
	e.states = append(e.states, MarketState{
		Time:      bar.Timestamp,
		Index:     idx,
		Stage:     d.StageName,
		RSI:       d.Snapshot.RSI,
		VolumeRel: d.Snapshot.RelativeVolume,
		Outcome:   string(d.Outcome),
	})

	e.metrics.ObserveRegime(e.lastRegime, idx)
	if e.lastRegime >= 0 && e.lastRegime != idx {
		e.notify(e.notifier.SendRegimeChange(ctx, e.lastRegime, idx, d.StageName))
	}
	e.lastRegime = idx

	if d.Rejection != nil {
		e.notify(e.notifier.SendRiskAlert(ctx, d.Rejection.Rule, d.Rejection.Current, d.Rejection.Limit))
	}
}

func (e *BacktestEngine) hasCapacity(ctx context.Context) bool {
	if e.cfg.MaxPositions <= 0 {
		return true
	}
	positions, _ := e.account.Positions(ctx)
	return len(positions) < e.cfg.MaxPositions
}

// ExecuteBuy opens a position for an approved decision at the bar close.
func (e *BacktestEngine) ExecuteBuy(ctx context.Context, bar models.Candle, d *decision.Decision) (*models.Position, error) {
	if d == nil || d.Plan == nil {
		return nil, apperrors.NewOrderError("", e.cfg.Ticker, "BUY", "no plan", apperrors.ErrInvalidOrder)
	}
	pos, err := e.account.Buy(ctx, broker.BuyRequest{
		Ticker: e.cfg.Ticker,
		Plan:   *d.Plan,
		Price:  bar.Close,
		Time:   bar.Timestamp,
	})
	if err != nil {
		e.logger.Debug().Err(err).Time("bar", bar.Timestamp).Msg("Entry skipped")
		return nil, err
	}

	logging.LogTrade(e.logger, pos.ID, pos.Quantity, pos.EntryPrice, pos.EntryFee)
	e.metrics.ObserveTrade(string(models.TradeBuy), 0)
	e.notify(e.notifier.SendEntry(ctx, pos, d.StageName))
	return pos, nil
}

// CheckExits closes every open position whose take-profit lies at or below
// the bar high, or whose stop-loss lies at or above the bar low. The exit
// fills at the breached level; take-profit wins when both are touched.
func (e *BacktestEngine) CheckExits(ctx context.Context, bar models.Candle) ([]models.Trade, error) {
	positions, err := e.account.Positions(ctx)
	if err != nil {
		return nil, err
	}

	var closed []models.Trade
	for _, pos := range positions {
		var price float64
		var kind models.TradeType
		switch {
		case pos.TakeProfit > 0 && bar.High >= pos.TakeProfit:
			price, kind = pos.TakeProfit, models.TradeTakeProfit
		case pos.StopLoss > 0 && bar.Low <= pos.StopLoss:
			price, kind = pos.StopLoss, models.TradeStopLoss
		default:
			continue
		}

		trade, err := e.sell(ctx, broker.SellRequest{
			PositionID: pos.ID,
			Price:      price,
			Type:       kind,
			Time:       bar.Timestamp,
		})
		if err != nil {
			return closed, err
		}
		closed = append(closed, *trade)
	}
	return closed, nil
}

// sell executes an exit and books its outcome.
func (e *BacktestEngine) sell(ctx context.Context, req broker.SellRequest) (*models.Trade, error) {
	trade, err := e.account.Sell(ctx, req)
	if err != nil {
		return nil, err
	}
	if e.gate != nil {
		e.gate.RecordTradeOutcome(trade.PnL)
	}
	logging.LogExit(e.logger, trade.PositionID, string(trade.Type), trade.Quantity, trade.Price, trade.PnL)
	e.metrics.ObserveTrade(string(trade.Type), trade.PnL)
	e.notify(e.notifier.SendExit(ctx, trade))
	return trade, nil
}

func (e *BacktestEngine) notify(err error) {
	if err != nil {
		e.logger.Warn().Err(err).Msg("Notification failed")
	}
}

// CalculateMetrics derives the run summary. Wins and losses count exit
// fills with positive and negative PnL; total_trades counts entries.
// Drawdown is measured from the first equity point's peak. The Sharpe ratio
// annualizes per-bar returns scaled by bars per day and is zero with fewer
// than two returns.
func CalculateMetrics(cfg BacktestConfig, finalValue float64, trades []models.Trade, equity []EquityPoint, stages map[int]int, totalFees float64) BacktestMetrics {
	m := BacktestMetrics{
		InitialCapital:    cfg.InitialBalance,
		FinalValue:        finalValue,
		TotalFeesPaid:     totalFees,
		StageDistribution: make(map[int]int, len(stages)),
	}
	for k, v := range stages {
		m.StageDistribution[k] = v
	}
	if cfg.InitialBalance > 0 {
		m.TotalReturnPct = (finalValue - cfg.InitialBalance) / cfg.InitialBalance * 100
		m.FeeImpactPct = totalFees / cfg.InitialBalance * 100
	}

	var winSum, lossSum float64
	for _, t := range trades {
		switch {
		case t.Type == models.TradeBuy:
			m.TotalTrades++
		case t.PnL > 0:
			m.WinningTrades++
			winSum += t.PnL
		case t.PnL < 0:
			m.LosingTrades++
			lossSum += t.PnL
		}
	}
	decided := m.WinningTrades + m.LosingTrades
	m.WinRatePct = float64(m.WinningTrades) / math.Max(1, float64(decided)) * 100
	if m.WinningTrades > 0 {
		m.AvgWin = winSum / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = math.Abs(lossSum / float64(m.LosingTrades))
	}
	if m.AvgLoss > 0 {
		m.ProfitFactor = m.AvgWin / m.AvgLoss
	} else {
		m.ProfitFactor = m.AvgWin
	}

	m.MaxDrawdownPct = maxDrawdown(equity)
	m.SharpeRatio = sharpe(equity, cfg.BarsPerDay)
	return m
}

func maxDrawdown(equity []EquityPoint) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0].Equity
	var worst float64
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			worst = math.Max(worst, (peak-p.Equity)/peak*100)
		}
	}
	return worst
}

func sharpe(equity []EquityPoint, barsPerDay int) float64 {
	var scaled []float64
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			continue
		}
		scaled = append(scaled, (equity[i].Equity/prev-1)*float64(barsPerDay))
	}
	if len(scaled) < 2 {
		return 0
	}

	var sum float64
	for _, r := range scaled {
		sum += r
	}
	mean := sum / float64(len(scaled))

	var ss float64
	for _, r := range scaled {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(len(scaled)-1))
	return math.Sqrt(365) * mean / (std + 1e-9)
}
