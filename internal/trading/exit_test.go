package trading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regime-trader/internal/models"
)

func TestStagedProfitAction(t *testing.T) {
	tests := []struct {
		name     string
		qty      float64
		stage    int
		price    float64
		level    int
		action   ExitAction
		fraction float64
		stop     float64
	}{
		{"below first level", 10, 0, 10_100, 0, ExitNone, 0, 0},
		{"1.5 percent tightens to entry", 10, 0, 10_200, 1, ExitRaiseStop, 0, 10_050},
		{"3 percent", 10, 0, 10_400, 2, ExitRaiseStop, 0, 10_200},
		{"5 percent small position raises stop", 2, 0, 10_600, 3, ExitRaiseStop, 0, 10_300},
		{"5 percent large position sells 30", 10, 0, 10_600, 3, ExitPartial, 0.3, 0},
		{"8 percent sells half", 10, 0, 10_850, 4, ExitPartial, 0.5, 0},
		{"8 percent small position sells all", 1, 0, 10_850, 4, ExitFull, 0, 0},
		{"10 percent sells all", 10, 0, 11_100, 5, ExitFull, 0, 0},
		{"level already taken", 10, 3, 10_600, 0, ExitNone, 0, 0},
		{"higher level after lower", 10, 3, 10_900, 4, ExitPartial, 0.5, 0},
		{"loss", 10, 0, 9_000, 0, ExitNone, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := models.Position{ID: "p", Quantity: tt.qty, EntryPrice: 10_000, ProfitStage: tt.stage}
			sig := StagedProfitAction(pos, tt.price)
			assert.Equal(t, tt.action, sig.Action)
			if tt.action == ExitNone {
				return
			}
			assert.Equal(t, tt.level, sig.Level)
			assert.InDelta(t, tt.fraction, sig.Fraction, 1e-12)
			assert.InDelta(t, tt.stop, sig.StopLoss, 1e-9)
			assert.NotEmpty(t, sig.Reason)
		})
	}
}

func TestEngineTakesStagedProfitsOnce(t *testing.T) {
	candles := []models.Candle{
		bar(0, 10_000, 10_000, 10_000),
		bar(1, 10_000, 10_000, 10_000),
		bar(2, 10_650, 10_550, 10_600),
		bar(3, 10_650, 10_600, 10_650),
	}
	plan := &models.OrderPlan{Side: models.OrderSideBuy, Quantity: 10, TakeProfit: 20_000, StopLoss: 9_000}
	cfg := DefaultBacktestConfig()
	cfg.Lookback = 1
	cfg.StagedExits = true

	engine := NewBacktestEngine(cfg, &scriptedDecider{plans: []*models.OrderPlan{plan}})
	result, err := engine.Run(context.Background(), candles)
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	partial := result.Trades[1]
	assert.Equal(t, models.TradePartial, partial.Type)
	assert.InDelta(t, 3.0, partial.Quantity, 1e-9)
	assert.Equal(t, 10_600.0, partial.Price)
	// revenue 31800, exit fee 15.9, entry fee share 15.
	assert.InDelta(t, 31_800-15.9-30_000-15, partial.PnL, 1e-6)

	positions, err := engine.Account().Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 7.0, positions[0].Quantity, 1e-9)
	assert.Equal(t, 3, positions[0].ProfitStage)
	assert.Equal(t, 9_000.0, positions[0].StopLoss)
}

func TestEngineRaisesStopThenExits(t *testing.T) {
	candles := []models.Candle{
		bar(0, 10_000, 10_000, 10_000),
		bar(1, 10_000, 10_000, 10_000),
		bar(2, 10_400, 10_350, 10_400),
		bar(3, 10_250, 10_100, 10_150),
	}
	plan := &models.OrderPlan{Side: models.OrderSideBuy, Quantity: 1, TakeProfit: 20_000, StopLoss: 9_000}
	cfg := DefaultBacktestConfig()
	cfg.Lookback = 1
	cfg.StagedExits = true

	result, err := NewBacktestEngine(cfg, &scriptedDecider{plans: []*models.OrderPlan{plan}}).Run(context.Background(), candles)
	require.NoError(t, err)

	// Bar 2 lifts the stop to 10200; bar 3 trades through it.
	require.Len(t, result.Trades, 2)
	assert.Equal(t, models.TradeStopLoss, result.Trades[1].Type)
	assert.Equal(t, 10_200.0, result.Trades[1].Price)
	assert.Greater(t, result.Trades[1].PnL, 0.0)
}

func TestStagedExitsOffByDefault(t *testing.T) {
	candles := []models.Candle{
		bar(0, 10_000, 10_000, 10_000),
		bar(1, 10_000, 10_000, 10_000),
		bar(2, 11_200, 11_100, 11_200),
	}
	plan := &models.OrderPlan{Side: models.OrderSideBuy, Quantity: 10, TakeProfit: 20_000, StopLoss: 9_000}
	cfg := DefaultBacktestConfig()
	cfg.Lookback = 1

	result, err := NewBacktestEngine(cfg, &scriptedDecider{plans: []*models.OrderPlan{plan}}).Run(context.Background(), candles)
	require.NoError(t, err)
	assert.Len(t, result.Trades, 1)
}
