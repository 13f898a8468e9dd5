// Package regime scores a market snapshot into one of ten regimes, from 0
// (extreme panic) to 9 (extreme greed).
package regime

import (
	"fmt"
	"math"

	"regime-trader/internal/analysis/snapshot"
)

// Index is a market regime in [Min, Max].
type Index int

const (
	Min     Index = 0
	Neutral Index = 5
	Max     Index = 9
)

var stageNames = [...]string{
	"0: Extreme Panic",
	"1: Strong Down",
	"2: Down Persist",
	"3: Weak Down",
	"4: Bearish Turn",
	"5: Neutral Box",
	"6: Bullish Turn",
	"7: Weak Up",
	"8: Strong Up",
	"9: Extreme Greed",
}

// StageName returns the display name of an index.
func StageName(idx Index) string {
	if idx < Min || idx > Max {
		return fmt.Sprintf("Unknown(%d)", int(idx))
	}
	return stageNames[idx]
}

func (i Index) String() string {
	return StageName(i)
}

// Valid reports whether the index is within [Min, Max].
func (i Index) Valid() bool {
	return i >= Min && i <= Max
}

// Clamp limits v to [Min, Max].
func Clamp(v int) Index {
	if v < int(Min) {
		return Min
	}
	if v > int(Max) {
		return Max
	}
	return Index(v)
}

// Scores holds the component scores behind a classification.
type Scores struct {
	Momentum      float64 `json:"momentum"`
	MomentumScore int     `json:"momentum_score"`
	TrendScore    int     `json:"trend_score"`
	VolScore      int     `json:"vol_score"`
	VolumeBoost   int     `json:"volume_boost"`
	OscAdjust     int     `json:"osc_adjust"`
	Raw           float64 `json:"raw"`
}

// Classify maps a snapshot to a regime index.
func Classify(s snapshot.Snapshot) Index {
	idx, _ := Score(s)
	return idx
}

// Score classifies a snapshot and returns the intermediate scores.
func Score(s snapshot.Snapshot) (Index, Scores) {
	var sc Scores

	sc.Momentum = Momentum(s)
	sc.MomentumScore = momentumScore(sc.Momentum)
	sc.TrendScore = trendScore(s)
	sc.VolScore = volatilityScore(s.BBWidth)
	sc.VolumeBoost = volumeBoost(s.RelativeVolume)
	sc.OscAdjust = oscillatorAdjust(s)

	sc.Raw = float64(sc.MomentumScore)*0.4 +
		float64(sc.TrendScore)*0.35 +
		float64(sc.VolScore)*0.25 +
		float64(sc.VolumeBoost)*0.3 +
		float64(sc.OscAdjust)*0.2

	return Clamp(int(math.Round(sc.Raw))), sc
}

// Momentum blends the 1/3/7-day changes. A 1-day move beyond 5% weighs 0.5,
// otherwise 0.3, so the quiet-market weights sum to 0.8 rather than 1.0.
func Momentum(s snapshot.Snapshot) float64 {
	w1d := 0.3
	if math.Abs(s.Change1D) > 5 {
		w1d = 0.5
	}
	return s.Change1D*w1d + s.Change3D*0.3 + s.Change7D*0.2
}

var momentumCuts = [...]float64{-15, -10, -5, -2, 0, 2, 5, 10, 15}

func momentumScore(mom float64) int {
	for i, cut := range momentumCuts {
		if mom < cut {
			return i
		}
	}
	return 9
}

func trendScore(s snapshot.Snapshot) int {
	points := 0.0
	if s.EMA20vs50 > 0 {
		points += 1.5
	}
	if s.EMA50vs100 > 0 {
		points += 1.5
	}
	if s.MACD > s.MACDSignal {
		points += 2.0
	}
	if s.MACD > 0 {
		points += 1.0
	}
	score := int(math.Floor(points*1.5 + 0.5))
	if score > 9 {
		score = 9
	}
	return score
}

// volatilityScore checks the band width from wide to narrow; the first
// matching branch wins, so the 0.01 branch is reached only through 0.02.
func volatilityScore(width float64) int {
	switch {
	case width > 0.08:
		return 7
	case width > 0.05:
		return 6
	case width < 0.02:
		return 3
	case width < 0.01:
		return 2
	}
	return 5
}

func volumeBoost(rel float64) int {
	switch {
	case rel > 2.0:
		return 2
	case rel > 1.5:
		return 1
	case rel < 0.5:
		return -1
	}
	return 0
}

func oscillatorAdjust(s snapshot.Snapshot) int {
	adj := 0
	switch {
	case s.RSI > 80:
		adj = 1
	case s.RSI < 20:
		adj = -1
	}
	switch {
	case s.StochK > 80 && s.StochD > 80:
		adj++
	case s.StochK < 20 && s.StochD < 20:
		adj--
	}
	return adj
}
