package indicators

import (
	"fmt"
	"math"

	"regime-trader/internal/models"
)

// CalculateATR computes the Average True Range as a simple rolling mean of
// true range over period bars.
func CalculateATR(candles []models.Candle, period int) []float64 {
	n := len(candles)
	if period <= 0 {
		return nanSeries(n)
	}

	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		var prev *models.Candle
		if i > 0 {
			prev = &candles[i-1]
		}
		tr[i] = trueRange(candles[i], prev)
	}
	return rollingMean(tr, period)
}

// ATR calculates the Average True Range.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR_%d", a.period)
}

func (a *ATR) Period() int {
	return a.period
}

func (a *ATR) Calculate(candles []models.Candle) ([]float64, error) {
	if a.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	return CalculateATR(candles, a.period), nil
}

// BollingerResult holds band series, aligned with the input.
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
	// Width is (upper-lower)/middle, NaN where middle is zero.
	Width []float64
}

// CalculateBollinger computes a rolling mean +/- stdDevMul population
// standard deviations.
func CalculateBollinger(values []float64, period int, stdDevMul float64) BollingerResult {
	n := len(values)
	res := BollingerResult{
		Upper:  nanSeries(n),
		Middle: nanSeries(n),
		Lower:  nanSeries(n),
		Width:  nanSeries(n),
	}
	if period <= 0 {
		return res
	}

	for i := period - 1; i < n; i++ {
		slice := values[i-period+1 : i+1]
		if hasNaN(slice) {
			continue
		}
		sma := mean(slice)
		sd := popStdDev(slice)

		res.Middle[i] = sma
		res.Upper[i] = sma + stdDevMul*sd
		res.Lower[i] = sma - stdDevMul*sd
		if sma != 0 {
			res.Width[i] = (res.Upper[i] - res.Lower[i]) / sma
		}
	}
	return res
}

// BollingerBands calculates Bollinger Bands.
type BollingerBands struct {
	period    int
	stdDevMul float64
}

// NewBollingerBands creates a new Bollinger Bands indicator.
func NewBollingerBands(period int, stdDevMul float64) *BollingerBands {
	return &BollingerBands{
		period:    period,
		stdDevMul: stdDevMul,
	}
}

func (b *BollingerBands) Name() string {
	return fmt.Sprintf("BollingerBands_%d_%.1f", b.period, b.stdDevMul)
}

func (b *BollingerBands) Period() int {
	return b.period
}

func (b *BollingerBands) Calculate(candles []models.Candle) (map[string][]float64, error) {
	if b.period <= 0 || b.stdDevMul <= 0 {
		return nil, ErrInvalidPeriod
	}

	res := CalculateBollinger(closePrices(candles), b.period, b.stdDevMul)
	return map[string][]float64{
		"upper":  res.Upper,
		"middle": res.Middle,
		"lower":  res.Lower,
		"width":  res.Width,
	}, nil
}

// RelativeVolume returns each bar's volume divided by the trailing window
// mean volume (epsilon-guarded). Positions without a full window are NaN.
func RelativeVolume(candles []models.Candle, window int) []float64 {
	vols := make([]float64, len(candles))
	for i, c := range candles {
		vols[i] = c.Volume
	}
	avg := rollingMean(vols, window)
	out := nanSeries(len(candles))
	for i := range vols {
		if math.IsNaN(avg[i]) {
			continue
		}
		out[i] = vols[i] / (avg[i] + epsilon)
	}
	return out
}

// AnnualizedVolatility returns the sample standard deviation of the last
// window close-to-close returns scaled by sqrt(barsPerDay). ok is false when
// fewer than window returns exist.
func AnnualizedVolatility(closes []float64, window, barsPerDay int) (vol float64, ok bool) {
	if window < 2 || len(closes) < window+1 {
		return 0, false
	}
	returns := make([]float64, 0, window)
	for i := len(closes) - window; i < len(closes); i++ {
		prev := closes[i-1]
		if prev == 0 {
			return 0, false
		}
		returns = append(returns, closes[i]/prev-1)
	}
	return SampleStdDev(returns) * math.Sqrt(float64(barsPerDay)), true
}
