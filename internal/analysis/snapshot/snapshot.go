// Package snapshot reduces a candle series to the fixed set of indicator
// readings the regime classifier scores.
package snapshot

import (
	"regime-trader/internal/analysis/indicators"
	"regime-trader/internal/models"
)

// Neutral readings used when a series is too short to warm an indicator up.
const (
	NeutralRSI            = 50.0
	NeutralStochastic     = 50.0
	NeutralRelativeVolume = 1.0
	NeutralBandWidth      = 0.03
)

// Snapshot is a point-in-time summary of the latest bar of a series.
type Snapshot struct {
	Change1D       float64 `json:"close_changes_1d"`
	Change3D       float64 `json:"close_changes_3d"`
	Change7D       float64 `json:"close_changes_7d"`
	RSI            float64 `json:"rsi"`
	MACD           float64 `json:"macd"`
	MACDSignal     float64 `json:"macd_signal"`
	EMA20vs50      float64 `json:"ema20_vs_50"`
	EMA50vs100     float64 `json:"ema50_vs_100"`
	BBWidth        float64 `json:"bb_width"`
	ATR            float64 `json:"atr_val"`
	RelativeVolume float64 `json:"volume_rel_5d"`
	StochK         float64 `json:"stoch_k"`
	StochD         float64 `json:"stoch_d"`
}

// Build computes a Snapshot from candles sorted oldest first. Every field is
// the most recent finite value of its series; indicators with no finite
// value yet read neutral. Build has no side effects.
func Build(candles []models.Candle) Snapshot {
	closes := models.Closes(candles)

	ema20 := indicators.LastFinite(indicators.CalculateEMA(closes, 20), 0)
	ema50 := indicators.LastFinite(indicators.CalculateEMA(closes, 50), 0)
	ema100 := indicators.LastFinite(indicators.CalculateEMA(closes, 100), 0)
	macd := indicators.CalculateMACD(closes, 12, 26, 9)
	bb := indicators.CalculateBollinger(closes, 20, 2)
	stoch := indicators.CalculateStochastic(candles, 14, 3, 3)

	return Snapshot{
		Change1D:       PercentChange(closes, 1),
		Change3D:       PercentChange(closes, 3),
		Change7D:       PercentChange(closes, 7),
		RSI:            indicators.LastFinite(indicators.CalculateRSI(closes, 14), NeutralRSI),
		MACD:           indicators.LastFinite(macd.Line, 0),
		MACDSignal:     indicators.LastFinite(macd.Signal, 0),
		EMA20vs50:      ema20 - ema50,
		EMA50vs100:     ema50 - ema100,
		BBWidth:        indicators.LastFinite(bb.Width, NeutralBandWidth),
		ATR:            indicators.LastFinite(indicators.CalculateATR(candles, 14), 0),
		RelativeVolume: indicators.LastFinite(indicators.RelativeVolume(candles, 5), NeutralRelativeVolume),
		StochK:         indicators.LastFinite(stoch.K, NeutralStochastic),
		StochD:         indicators.LastFinite(stoch.D, NeutralStochastic),
	}
}

// PercentChange returns the close change over the last n bars in percent,
// or 0 when the series holds n bars or fewer.
func PercentChange(closes []float64, n int) float64 {
	if n <= 0 || len(closes) <= n {
		return 0
	}
	prev := closes[len(closes)-1-n]
	if prev == 0 {
		return 0
	}
	return (closes[len(closes)-1]/prev - 1) * 100
}
