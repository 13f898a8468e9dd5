package strategy

import (
	"math"

	"regime-trader/internal/analysis/indicators"
	"regime-trader/internal/models"
)

// Default ATR multipliers and the minimum distance from price, in ATRs.
const (
	DefaultTPMultiplier = 2.0
	DefaultSLMultiplier = 1.5
	MinATRDistance      = 0.2
)

// DynamicTPSL places take-profit and stop-loss at ATR(14) multiples around
// price, each at least MinATRDistance ATRs away. ok is false when the
// series has no positive ATR reading yet.
func DynamicTPSL(candles []models.Candle, price, tpMult, slMult float64) (tp, sl float64, ok bool) {
	atr := indicators.LastFinite(indicators.CalculateATR(candles, 14), 0)
	if !(atr > 0) {
		return 0, 0, false
	}

	tp = price + atr*tpMult
	sl = price - atr*slMult

	if tp < price+atr*MinATRDistance {
		tp = price + atr*MinATRDistance
	}
	if sl > price-atr*MinATRDistance {
		sl = price - atr*MinATRDistance
	}
	return tp, sl, true
}

// Default volatility band for the pre-filter.
const (
	DefaultMinVolatility = 0.015
	DefaultMaxVolatility = 0.08
	DefaultVolWindow     = 20
	DefaultBarsPerDay    = 24 * 12
)

// VolatilityFilter screens out markets that are too quiet or too wild to
// trade.
type VolatilityFilter struct {
	Min        float64
	Max        float64
	Window     int
	BarsPerDay int
}

// DefaultVolatilityFilter returns the standard 5-minute-bar filter.
func DefaultVolatilityFilter() VolatilityFilter {
	return VolatilityFilter{
		Min:        DefaultMinVolatility,
		Max:        DefaultMaxVolatility,
		Window:     DefaultVolWindow,
		BarsPerDay: DefaultBarsPerDay,
	}
}

// Check returns the scaled volatility of the last Window returns and
// whether it lies within [Min, Max]. Fewer than Window returns fail.
func (f VolatilityFilter) Check(candles []models.Candle) (vol float64, ok bool) {
	vol, enough := indicators.AnnualizedVolatility(models.Closes(candles), f.Window, f.BarsPerDay)
	if !enough || math.IsNaN(vol) {
		return vol, false
	}
	return vol, vol >= f.Min && vol <= f.Max
}
