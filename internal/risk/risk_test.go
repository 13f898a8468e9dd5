package risk

import (
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regime-trader/internal/models"
)

func buyPlan(qty, sl float64) *models.OrderPlan {
	return &models.OrderPlan{Side: models.OrderSideBuy, Quantity: qty, StopLoss: sl}
}

func TestFixedFractionSize(t *testing.T) {
	assert.Equal(t, 2.0, FixedFractionSize(1_000_000, 0.10, 50_000))
	assert.Equal(t, 0.0, FixedFractionSize(-1_000, 0.10, 50_000))
	assert.Equal(t, 0.333333, FixedFractionSize(1, 1, 3))
}

func TestFee(t *testing.T) {
	assert.Equal(t, 500.0, Fee(1_000_000, 0.0005))
}

func TestKellyFraction(t *testing.T) {
	// kelly = (0.6*3 - 0.4*1.5)/1.5 = 0.8 -> 0.2
	frac, ok := KellyFraction(KellyStats{WinRate: 0.6, AvgWin: 3, AvgLoss: 1.5}, 0.15)
	require.True(t, ok)
	assert.InDelta(t, 0.2, frac, 1e-12)

	// Large edge is capped at 0.25.
	frac, _ = KellyFraction(KellyStats{WinRate: 0.9, AvgWin: 10, AvgLoss: 1}, 0.15)
	assert.Equal(t, KellyCap, frac)

	// Negative edge is floored at half the base fraction.
	frac, _ = KellyFraction(KellyStats{WinRate: 0.2, AvgWin: 1, AvgLoss: 2}, 0.15)
	assert.InDelta(t, 0.075, frac, 1e-12)

	_, ok = KellyFraction(KellyStats{WinRate: 0.5, AvgWin: 1, AvgLoss: 0}, 0.15)
	assert.False(t, ok)
	_, ok = KellyFraction(KellyStats{WinRate: 0, AvgWin: 1, AvgLoss: 1}, 0.15)
	assert.False(t, ok)

	assert.Equal(t, FixedFractionSize(1_000_000, 0.15, 50_000),
		KellySize(1_000_000, KellyStats{WinRate: 0, AvgLoss: 1}, 0.15, 50_000))
}

func TestGateDailyLossBlocksTrading(t *testing.T) {
	gate := NewGate(DefaultLimits())
	require.True(t, gate.CheckTradeAllowed(1_000_000, buyPlan(1, 0), 50_000))

	gate.RecordTradeOutcome(-60_000)

	for _, plan := range []*models.OrderPlan{nil, buyPlan(0.001, 0), buyPlan(1, 49_900)} {
		assert.False(t, gate.CheckTradeAllowed(1_000_000, plan, 50_000))
	}
	violation := gate.Evaluate(1_000_000, buyPlan(0.001, 0), 50_000)
	require.NotNil(t, violation)
	assert.Equal(t, RuleDailyLoss, violation.Rule)

	gate.ResetDaily()
	assert.True(t, gate.CheckTradeAllowed(1_000_000, buyPlan(0.001, 0), 50_000))
	assert.Equal(t, 1, gate.OutcomeCount(), "reset keeps history")
}

func TestGatePositionSize(t *testing.T) {
	gate := NewGate(DefaultLimits())

	// 5 * 50,000 / 1,000,000 = 0.25
	violation := gate.Evaluate(1_000_000, buyPlan(5, 0), 50_000)
	require.NotNil(t, violation)
	assert.Equal(t, RulePositionSize, violation.Rule)

	// 2 * 50,000 / 1,000,000 = 0.10
	assert.True(t, gate.CheckTradeAllowed(1_000_000, buyPlan(2, 0), 50_000))
}

func TestGateTradeRiskAndCount(t *testing.T) {
	gate := NewGate(DefaultLimits())

	// 2 * 15,000 = 30,000 > 20,000
	violation := gate.Evaluate(1_000_000, buyPlan(2, 35_000), 50_000)
	require.NotNil(t, violation)
	assert.Equal(t, RuleTradeRisk, violation.Rule)

	// 2 * 5,000 = 10,000 <= 20,000
	assert.True(t, gate.CheckTradeAllowed(1_000_000, buyPlan(2, 45_000), 50_000))

	for i := 0; i < DefaultMaxTradesPerDay; i++ {
		gate.RecordTradeOutcome(1)
	}
	violation = gate.Evaluate(1_000_000, buyPlan(2, 45_000), 50_000)
	require.NotNil(t, violation)
	assert.Equal(t, RuleTradeCount, violation.Rule)
}

func TestGateNegativeStopLoss(t *testing.T) {
	gate := NewGate(DefaultLimits())

	// 2 * |50,000 - (-2,500)| = 105,000 > 20,000
	violation := gate.Evaluate(1_000_000, buyPlan(2, -2_500), 50_000)
	require.NotNil(t, violation)
	assert.Equal(t, RuleTradeRisk, violation.Rule)
	assert.InDelta(t, 105_000, violation.Current, 1e-9)

	// A stop far below price is measured the same way.
	violation = gate.Evaluate(1_000_000, buyPlan(2, 100), 50_000)
	require.NotNil(t, violation)
	assert.Equal(t, RuleTradeRisk, violation.Rule)
}

func TestGateRejectsNilPlanAndBadBalance(t *testing.T) {
	gate := NewGate(DefaultLimits())
	assert.Equal(t, RuleNoPlan, gate.Evaluate(1_000_000, nil, 50_000).Rule)
	assert.Equal(t, RuleBalance, gate.Evaluate(0, buyPlan(1, 0), 50_000).Rule)
}

func TestRecordTradeOutcome(t *testing.T) {
	gate := NewGate(DefaultLimits())
	gate.RecordTradeOutcome(25_000)
	gate.RecordTradeOutcome(-10_000)

	state := gate.State()
	assert.Equal(t, 15_000.0, state.DailyPnL)
	assert.Equal(t, 2, state.TradesToday)

	outcomes := gate.Outcomes()
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Win)
	assert.InDelta(t, 2.5, outcomes[0].PnLPercent, 1e-12)
	assert.False(t, outcomes[1].Win)
	assert.InDelta(t, -1.0, outcomes[1].PnLPercent, 1e-12)
}

func TestKellyStats(t *testing.T) {
	gate := NewGate(DefaultLimits())
	for i := 0; i < 9; i++ {
		gate.RecordTradeOutcome(10_000)
	}
	stats := gate.KellyStats()
	assert.Equal(t, DefaultWinRate, stats.WinRate)
	assert.Equal(t, DefaultAvgWin, stats.AvgWin)
	assert.Equal(t, DefaultAvgLoss, stats.AvgLoss)

	gate.RecordTradeOutcome(10_000)
	stats = gate.KellyStats()
	assert.Equal(t, 1.0, stats.WinRate)
	assert.InDelta(t, 1.0, stats.AvgWin, 1e-12)
	assert.Equal(t, DefaultAvgLoss, stats.AvgLoss, "no losses uses the default")

	for i := 0; i < 10; i++ {
		gate.RecordTradeOutcome(-20_000)
	}
	stats = gate.KellyStats()
	assert.InDelta(t, 0.5, stats.WinRate, 1e-12)
	assert.InDelta(t, 2.0, stats.AvgLoss, 1e-12)
}

func TestOutcomeHistoryEvictsOldest(t *testing.T) {
	h := NewOutcomeHistory(3)
	for i := 1; i <= 5; i++ {
		h.Push(models.TradeOutcome{PnLPercent: float64(i)})
	}
	require.Equal(t, 3, h.Len())
	got := h.Outcomes()
	assert.Equal(t, []float64{3, 4, 5}, []float64{got[0].PnLPercent, got[1].PnLPercent, got[2].PnLPercent})
}

func TestGateConcurrentUse(t *testing.T) {
	gate := NewGate(DefaultLimits())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				gate.RecordTradeOutcome(1)
				gate.CheckTradeAllowed(1_000_000, buyPlan(1, 0), 50_000)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, gate.State().TradesToday)
	assert.Equal(t, DefaultHistorySize, gate.OutcomeCount())
}

func TestProperty_HistoryBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("outcome history never exceeds 50 and keeps the newest", prop.ForAll(
		func(pnls []float64) bool {
			gate := NewGate(DefaultLimits())
			for _, p := range pnls {
				gate.RecordTradeOutcome(p)
			}
			outcomes := gate.Outcomes()
			if len(outcomes) > DefaultHistorySize {
				return false
			}
			if len(pnls) == 0 {
				return len(outcomes) == 0
			}
			last := outcomes[len(outcomes)-1]
			return last.Win == (pnls[len(pnls)-1] > 0)
		},
		gen.SliceOf(gen.Float64Range(-100_000, 100_000)),
	))

	properties.TestingRun(t)
}
