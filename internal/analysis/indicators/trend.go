package indicators

import (
	"fmt"
	"math"

	"regime-trader/internal/models"
)

// CalculateEMA calculates an exponential moving average on raw values with
// smoothing factor 2/(span+1). The average is seeded with the first finite
// value and updated recursively (no bias adjustment). Leading NaN inputs
// stay NaN; a NaN after seeding carries the previous average forward.
func CalculateEMA(values []float64, span int) []float64 {
	out := nanSeries(len(values))
	if span <= 0 {
		return out
	}
	return ewm(values, 2.0/float64(span+1), out)
}

// ewm is the recursive exponential mean shared by EMA and RSI.
func ewm(values []float64, alpha float64, out []float64) []float64 {
	seeded := false
	var prev float64
	for i, v := range values {
		if !seeded {
			if math.IsNaN(v) {
				continue
			}
			prev = v
			seeded = true
			out[i] = prev
			continue
		}
		if !math.IsNaN(v) {
			prev = prev + alpha*(v-prev)
		}
		out[i] = prev
	}
	return out
}

// EMA calculates Exponential Moving Average of closes.
type EMA struct {
	period int
}

// NewEMA creates a new EMA indicator.
func NewEMA(period int) *EMA {
	return &EMA{period: period}
}

func (e *EMA) Name() string {
	return fmt.Sprintf("EMA_%d", e.period)
}

func (e *EMA) Period() int {
	return e.period
}

func (e *EMA) Calculate(candles []models.Candle) ([]float64, error) {
	if e.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	return CalculateEMA(closePrices(candles), e.period), nil
}

// MACDResult holds the three MACD series, aligned with the input.
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// CalculateMACD computes EMA(fast)-EMA(slow), its EMA(signal) and the
// difference between the two.
func CalculateMACD(values []float64, fast, slow, signal int) MACDResult {
	n := len(values)
	fastEMA := CalculateEMA(values, fast)
	slowEMA := CalculateEMA(values, slow)

	line := make([]float64, n)
	for i := 0; i < n; i++ {
		line[i] = fastEMA[i] - slowEMA[i]
	}

	signalLine := CalculateEMA(line, signal)
	hist := make([]float64, n)
	for i := 0; i < n; i++ {
		hist[i] = line[i] - signalLine[i]
	}

	return MACDResult{Line: line, Signal: signalLine, Histogram: hist}
}

// MACD calculates Moving Average Convergence Divergence.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD creates a new MACD indicator with default periods (12, 26, 9).
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
	}
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD_%d_%d_%d", m.fastPeriod, m.slowPeriod, m.signalPeriod)
}

func (m *MACD) Period() int {
	return m.slowPeriod + m.signalPeriod - 1
}

func (m *MACD) Calculate(candles []models.Candle) (map[string][]float64, error) {
	if m.fastPeriod <= 0 || m.slowPeriod <= 0 || m.signalPeriod <= 0 {
		return nil, ErrInvalidPeriod
	}

	res := CalculateMACD(closePrices(candles), m.fastPeriod, m.slowPeriod, m.signalPeriod)
	return map[string][]float64{
		"macd":      res.Line,
		"signal":    res.Signal,
		"histogram": res.Histogram,
	}, nil
}
