package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"regime-trader/internal/analysis/regime"
	"regime-trader/internal/analysis/snapshot"
	"regime-trader/internal/logging"
	"regime-trader/internal/models"
	"regime-trader/internal/performance"
	"regime-trader/internal/risk"
)

// DefaultFeeRates is the fee-sensitivity grid.
var DefaultFeeRates = []float64{0.0001, 0.0002, 0.0005, 0.001, 0.002}

// Market analysis thresholds.
const (
	HighVolatilityBandWidth = 0.05
	HighRelativeVolume      = 1.5
)

// DeciderFactory builds an independent decider and the gate it evaluates
// against. Each backtest in a sweep gets its own pair.
type DeciderFactory func() (Decider, *risk.Gate)

// FeeResult is one point of the fee sweep.
type FeeResult struct {
	FeeRate        float64 `json:"fee_rate"`
	TotalReturnPct float64 `json:"return"`
	SharpeRatio    float64 `json:"sharpe"`
	TotalTrades    int     `json:"trades"`
}

// MarketAnalysis summarizes the classified conditions of a series.
type MarketAnalysis struct {
	StageDistribution map[int]int `json:"stage_distribution"`
	AvgRSI            float64     `json:"avg_rsi"`
	AvgVolumeRel      float64     `json:"avg_volume_rel"`
	AvgBBWidth        float64     `json:"avg_bb_width"`
	AvgMomentum       float64     `json:"avg_momentum"`
	VolatilityPeriods int         `json:"volatility_periods"`
	HighVolumePeriods int         `json:"high_volume_periods"`
	TotalPeriods      int         `json:"total_periods"`
}

// OptimizationReport is the comprehensive optimizer output.
type OptimizationReport struct {
	BaseResults    BacktestMetrics `json:"base_results"`
	FeeAnalysis    []FeeResult     `json:"fee_analysis"`
	BestFeeRate    float64         `json:"best_fee_rate"`
	MarketAnalysis MarketAnalysis  `json:"market_analysis"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Optimizer runs independent backtests in parallel on a worker pool.
type Optimizer struct {
	base    BacktestConfig
	factory DeciderFactory
	workers int
	opts    []EngineOption
	logger  zerolog.Logger
}

// NewOptimizer creates an optimizer. opts are applied to every engine after
// the per-run gate, so they should not override it.
func NewOptimizer(base BacktestConfig, factory DeciderFactory, workers int, logger zerolog.Logger, opts ...EngineOption) *Optimizer {
	return &Optimizer{
		base:    base.withDefaults(),
		factory: factory,
		workers: workers,
		opts:    opts,
		logger:  logger,
	}
}

func (o *Optimizer) backtestTask(candles []models.Candle, feeRate float64) performance.Task[*BacktestResult] {
	return func(ctx context.Context) (*BacktestResult, error) {
		cfg := o.base
		cfg.FeeRate = feeRate
		decider, gate := o.factory()
		opts := append([]EngineOption{WithGate(gate), WithLogger(o.logger)}, o.opts...)
		result, err := NewBacktestEngine(cfg, decider, opts...).Run(ctx, candles)
		if err != nil {
			return nil, fmt.Errorf("fee %.4f: %w", feeRate, err)
		}
		return result, nil
	}
}

// runAll runs one backtest per fee rate. Results keep the order of rates.
func (o *Optimizer) runAll(ctx context.Context, candles []models.Candle, rates []float64) ([]*BacktestResult, error) {
	pool := performance.NewWorkerPool(o.workers)
	pool.Start()
	defer pool.Stop()

	tasks := make([]performance.Task[*BacktestResult], len(rates))
	for i, rate := range rates {
		tasks[i] = o.backtestTask(candles, rate)
	}
	results, err := performance.RunAll(ctx, pool, tasks)

	stats := pool.Stats()
	mem := performance.MemoryStats()
	opLog := logging.WithOperation(o.logger, "fee_sweep")
	opLog.Debug().
		Int("workers", pool.Workers()).
		Uint64("completed", stats.TasksDone).
		Str("heap", performance.FormatBytes(mem.HeapAlloc)).
		Int("goroutines", mem.Goroutines).
		Msg("Backtests finished")
	return results, err
}

func feeResult(r *BacktestResult) FeeResult {
	return FeeResult{
		FeeRate:        r.Config.FeeRate,
		TotalReturnPct: r.Metrics.TotalReturnPct,
		SharpeRatio:    r.Metrics.SharpeRatio,
		TotalTrades:    r.Metrics.TotalTrades,
	}
}

// FeeSweep runs one backtest per fee rate in parallel.
func (o *Optimizer) FeeSweep(ctx context.Context, candles []models.Candle, rates []float64) ([]FeeResult, error) {
	results, err := o.runAll(ctx, candles, rates)
	if err != nil {
		return nil, err
	}
	out := make([]FeeResult, len(results))
	for i, r := range results {
		out[i] = feeResult(r)
	}
	return out, nil
}

// AnalyzeMarket classifies every bar from lookback onwards and averages the
// snapshot fields the regimes are built from. Momentum is the plain mean of
// the 1, 3 and 7 day changes.
func AnalyzeMarket(ctx context.Context, candles []models.Candle, lookback int) (MarketAnalysis, error) {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	a := MarketAnalysis{StageDistribution: make(map[int]int)}

	var rsi, vol, width, momentum float64
	for i := lookback; i < len(candles); i++ {
		if err := ctx.Err(); err != nil {
			return MarketAnalysis{}, err
		}
		snap := snapshot.Build(candles[:i+1])
		a.StageDistribution[int(regime.Classify(snap))]++

		rsi += snap.RSI
		vol += snap.RelativeVolume
		width += snap.BBWidth
		momentum += (snap.Change1D + snap.Change3D + snap.Change7D) / 3
		if snap.BBWidth > HighVolatilityBandWidth {
			a.VolatilityPeriods++
		}
		if snap.RelativeVolume > HighRelativeVolume {
			a.HighVolumePeriods++
		}
		a.TotalPeriods++
	}

	if n := float64(a.TotalPeriods); n > 0 {
		a.AvgRSI = rsi / n
		a.AvgVolumeRel = vol / n
		a.AvgBBWidth = width / n
		a.AvgMomentum = momentum / n
	}
	return a, nil
}

// Run produces the comprehensive report: a base backtest at the configured
// fee, the fee sweep and the market analysis. The best fee rate is the one
// with the highest return.
func (o *Optimizer) Run(ctx context.Context, candles []models.Candle, rates []float64) (*OptimizationReport, error) {
	if err := models.ValidateSeries(candles); err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		rates = DefaultFeeRates
	}

	o.logger.Info().
		Int("bars", len(candles)).
		Int("fee_rates", len(rates)).
		Int("workers", o.workers).
		Msg("Optimization started")

	all := append([]float64{o.base.FeeRate}, rates...)
	results, err := o.runAll(ctx, candles, all)
	if err != nil {
		return nil, err
	}

	analysis, err := AnalyzeMarket(ctx, candles, o.base.Lookback)
	if err != nil {
		return nil, err
	}

	sweep := make([]FeeResult, len(rates))
	for i, r := range results[1:] {
		sweep[i] = feeResult(r)
	}

	report := &OptimizationReport{
		BaseResults:    results[0].Metrics,
		FeeAnalysis:    sweep,
		MarketAnalysis: analysis,
		Timestamp:      time.Now().UTC(),
	}
	best := report.FeeAnalysis[0]
	for _, r := range report.FeeAnalysis[1:] {
		if r.TotalReturnPct > best.TotalReturnPct {
			best = r
		}
	}
	report.BestFeeRate = best.FeeRate

	o.logger.Info().
		Float64("best_fee_rate", report.BestFeeRate).
		Float64("base_return_pct", report.BaseResults.TotalReturnPct).
		Msg("Optimization finished")
	return report, nil
}
