package trading

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regime-trader/internal/decision"
	"regime-trader/internal/risk"
	"regime-trader/internal/strategy"
)

func orchestratorFactory() (Decider, *risk.Gate) {
	gate := risk.NewGate(risk.DefaultLimits())
	return decision.New(strategy.DefaultTable(), gate), gate
}

func TestOptimizerRun(t *testing.T) {
	candles := loadFixture(t)
	opt := NewOptimizer(DefaultBacktestConfig(), orchestratorFactory, 3, zerolog.Nop())

	report, err := opt.Run(context.Background(), candles, nil)
	require.NoError(t, err)

	require.Len(t, report.FeeAnalysis, len(DefaultFeeRates))
	for i, r := range report.FeeAnalysis {
		assert.Equal(t, DefaultFeeRates[i], r.FeeRate)
	}
	assert.Contains(t, DefaultFeeRates, report.BestFeeRate)
	for _, r := range report.FeeAnalysis {
		for _, best := range report.FeeAnalysis {
			if best.FeeRate == report.BestFeeRate {
				assert.GreaterOrEqual(t, best.TotalReturnPct, r.TotalReturnPct)
			}
		}
	}

	// The base run uses the configured 0.0005 fee, which is also on the grid.
	for _, r := range report.FeeAnalysis {
		if r.FeeRate == 0.0005 {
			assert.Equal(t, report.BaseResults.TotalReturnPct, r.TotalReturnPct)
			assert.Equal(t, report.BaseResults.TotalTrades, r.TotalTrades)
		}
	}

	assert.Equal(t, len(candles)-DefaultLookback, report.MarketAnalysis.TotalPeriods)
}

func TestFeeSweepMatchesSequentialRuns(t *testing.T) {
	candles := loadFixture(t)
	rates := []float64{0.0001, 0.002}
	opt := NewOptimizer(DefaultBacktestConfig(), orchestratorFactory, 2, zerolog.Nop())

	sweep, err := opt.FeeSweep(context.Background(), candles, rates)
	require.NoError(t, err)

	for i, rate := range rates {
		cfg := DefaultBacktestConfig()
		cfg.FeeRate = rate
		decider, gate := orchestratorFactory()
		result, err := NewBacktestEngine(cfg, decider, WithGate(gate)).Run(context.Background(), candles)
		require.NoError(t, err)

		assert.Equal(t, result.Metrics.TotalReturnPct, sweep[i].TotalReturnPct)
		assert.Equal(t, result.Metrics.TotalTrades, sweep[i].TotalTrades)
	}
}

func TestAnalyzeMarket(t *testing.T) {
	candles := loadFixture(t)
	a, err := AnalyzeMarket(context.Background(), candles, 60)
	require.NoError(t, err)

	var total int
	for idx, n := range a.StageDistribution {
		assert.True(t, idx >= 0 && idx <= 9)
		total += n
	}
	assert.Equal(t, len(candles)-60, total)
	assert.Equal(t, total, a.TotalPeriods)
	assert.True(t, a.AvgRSI >= 0 && a.AvgRSI <= 100)
	assert.Greater(t, a.AvgVolumeRel, 0.0)
	assert.LessOrEqual(t, a.VolatilityPeriods, total)
	assert.LessOrEqual(t, a.HighVolumePeriods, total)
}

func TestAnalyzeMarketShortSeries(t *testing.T) {
	a, err := AnalyzeMarket(context.Background(), flatBars(10, 100), 60)
	require.NoError(t, err)
	assert.Zero(t, a.TotalPeriods)
	assert.Zero(t, a.AvgRSI)
}
