package indicators

import (
	"fmt"
	"math"

	"regime-trader/internal/models"
)

// CalculateRSI computes the Relative Strength Index with Wilder smoothing:
// exponential means (alpha=1/period) of the clipped positive and negative
// deltas. The first element has no delta and is NaN. A window with neither
// gains nor losses reads 50.
func CalculateRSI(values []float64, period int) []float64 {
	n := len(values)
	out := nanSeries(n)
	if period <= 0 || n < 2 {
		return out
	}

	up := nanSeries(n)
	down := nanSeries(n)
	for i := 1; i < n; i++ {
		delta := values[i] - values[i-1]
		up[i] = math.Max(delta, 0)
		down[i] = math.Max(-delta, 0)
	}

	alpha := 1.0 / float64(period)
	avgUp := ewm(up, alpha, nanSeries(n))
	avgDown := ewm(down, alpha, nanSeries(n))

	for i := 1; i < n; i++ {
		if avgUp[i]+avgDown[i] < epsilon*epsilon {
			out[i] = 50
			continue
		}
		rs := avgUp[i] / (avgDown[i] + epsilon)
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// RSI calculates the Relative Strength Index.
type RSI struct {
	period int
}

// NewRSI creates a new RSI indicator.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI_%d", r.period)
}

func (r *RSI) Period() int {
	return r.period
}

func (r *RSI) Calculate(candles []models.Candle) ([]float64, error) {
	if r.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	return CalculateRSI(closePrices(candles), r.period), nil
}

// StochasticResult holds smoothed %K and %D, aligned with the input.
type StochasticResult struct {
	K []float64
	D []float64
}

// CalculateStochastic computes raw %K over kPeriod bars, smooths it with a
// smoothK-bar mean and derives %D as a dPeriod-bar mean of smoothed %K.
// A zero high-low range yields a raw %K of 0.
func CalculateStochastic(candles []models.Candle, kPeriod, dPeriod, smoothK int) StochasticResult {
	n := len(candles)
	if kPeriod <= 0 || dPeriod <= 0 || smoothK <= 0 {
		return StochasticResult{K: nanSeries(n), D: nanSeries(n)}
	}

	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
	}

	rawK := nanSeries(n)
	for i := kPeriod - 1; i < n; i++ {
		highestHigh := highest(highs[i-kPeriod+1 : i+1])
		lowestLow := lowest(lows[i-kPeriod+1 : i+1])
		rawK[i] = 100 * (candles[i].Close - lowestLow) / (highestHigh - lowestLow + epsilon)
	}

	k := rollingMean(rawK, smoothK)
	d := rollingMean(k, dPeriod)
	return StochasticResult{K: k, D: d}
}

// Stochastic calculates the Stochastic Oscillator (%K and %D).
type Stochastic struct {
	kPeriod int
	dPeriod int
	smooth  int
}

// NewStochastic creates a new Stochastic indicator.
func NewStochastic(kPeriod, dPeriod, smooth int) *Stochastic {
	return &Stochastic{
		kPeriod: kPeriod,
		dPeriod: dPeriod,
		smooth:  smooth,
	}
}

func (s *Stochastic) Name() string {
	return fmt.Sprintf("Stochastic_%d_%d_%d", s.kPeriod, s.dPeriod, s.smooth)
}

func (s *Stochastic) Period() int {
	return s.kPeriod + s.smooth + s.dPeriod - 2
}

func (s *Stochastic) Calculate(candles []models.Candle) (map[string][]float64, error) {
	if s.kPeriod <= 0 || s.dPeriod <= 0 || s.smooth <= 0 {
		return nil, ErrInvalidPeriod
	}

	res := CalculateStochastic(candles, s.kPeriod, s.dPeriod, s.smooth)
	return map[string][]float64{
		"percent_k": res.K,
		"percent_d": res.D,
	}, nil
}
