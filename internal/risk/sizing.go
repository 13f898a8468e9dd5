// Package risk provides position sizing and the per-account risk gate.
package risk

import "math"

// Kelly sizing constants.
const (
	// KellyScale is the fraction of full Kelly used for sizing.
	KellyScale = 0.25
	// KellyCap caps the Kelly-derived fraction of balance.
	KellyCap = 0.25
	// KellyFloorRatio floors the Kelly fraction at this share of the base fraction.
	KellyFloorRatio = 0.5
)

// Round6 rounds v to six decimal places.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// FixedFractionSize returns the base-asset quantity worth fraction of
// balance at price, rounded to six decimals and never negative.
func FixedFractionSize(balance, fraction, price float64) float64 {
	qty := math.Max(0, balance*fraction/math.Max(price, 1e-9))
	return Round6(qty)
}

// Fee returns the exchange fee for a notional amount.
func Fee(notional, rate float64) float64 {
	return notional * rate
}

// KellyStats summarizes recent trade outcomes. AvgWin and AvgLoss are
// percentages; AvgLoss is positive.
type KellyStats struct {
	WinRate float64 `json:"win_rate"`
	AvgWin  float64 `json:"avg_win"`
	AvgLoss float64 `json:"avg_loss"`
	Trades  int     `json:"trades"`
}

// KellyFraction returns the quarter-Kelly fraction capped at KellyCap and
// floored at half of baseFraction. ok is false when the stats cannot
// support Kelly sizing and the base fraction should be used.
func KellyFraction(stats KellyStats, baseFraction float64) (fraction float64, ok bool) {
	if stats.AvgLoss == 0 || stats.WinRate <= 0 {
		return baseFraction, false
	}
	kelly := (stats.WinRate*stats.AvgWin - (1-stats.WinRate)*stats.AvgLoss) / stats.AvgLoss
	fraction = math.Min(kelly*KellyScale, KellyCap)
	fraction = math.Max(fraction, baseFraction*KellyFloorRatio)
	return fraction, true
}

// KellySize sizes a position with the Kelly fraction, falling back to the
// base fraction when KellyFraction cannot apply.
func KellySize(balance float64, stats KellyStats, baseFraction, price float64) float64 {
	fraction, _ := KellyFraction(stats, baseFraction)
	return FixedFractionSize(balance, fraction, price)
}
