package indicators

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"regime-trader/internal/models"
)

// Property: for any valid candle series, bounded oscillators stay inside
// their mathematical range and every series has the input's length:
// - RSI: [0, 100]
// - Stochastic %K and %D: [0, 100]
// - ATR and Bollinger width: >= 0

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// candleGen generates valid candle data with realistic OHLCV values
func candleGen() gopter.Gen {
	return gen.Struct(reflect.TypeOf(models.Candle{}), map[string]gopter.Gen{
		"Open":   gen.Float64Range(100.0, 1000.0),
		"High":   gen.Float64Range(100.0, 1000.0),
		"Low":    gen.Float64Range(100.0, 1000.0),
		"Close":  gen.Float64Range(100.0, 1000.0),
		"Volume": gen.Float64Range(1000, 10000000),
	}).Map(sanitizeCandle)
}

func sanitizeCandle(c models.Candle) models.Candle {
	if c.Open <= 0 {
		c.Open = 100.0
	}
	if c.Close <= 0 {
		c.Close = 100.0
	}
	if c.Low <= 0 {
		c.Low = 100.0
	}
	c.High = math.Max(c.High, math.Max(c.Open, c.Close))
	c.Low = math.Min(c.Low, math.Min(c.Open, c.Close))
	if c.Volume < 0 {
		c.Volume = 0
	}
	return c
}

// candleSliceGen generates a slice of valid candles on a 5-minute grid
func candleSliceGen(minLen, maxLen int) gopter.Gen {
	return gen.SliceOfN(maxLen, candleGen()).Map(func(candles []models.Candle) []models.Candle {
		if len(candles) == 0 {
			candles = append(candles, models.Candle{Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000})
		}
		for len(candles) < minLen {
			candles = append(candles, candles[len(candles)-1])
		}
		for i := range candles {
			candles[i] = sanitizeCandle(candles[i])
			candles[i].Timestamp = baseTime.Add(time.Duration(i) * 5 * time.Minute)
		}
		return candles
	})
}

func propertyParams() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	// Shrinking can bypass generator constraints.
	parameters.MaxShrinkCount = 0
	return parameters
}

func TestProperty_RSIWithinBounds(t *testing.T) {
	properties := gopter.NewProperties(propertyParams())

	properties.Property("RSI values are within [0, 100]", prop.ForAll(
		func(candles []models.Candle) bool {
			values := CalculateRSI(models.Closes(candles), 14)
			if len(values) != len(candles) || !math.IsNaN(values[0]) {
				return false
			}
			for _, v := range values[1:] {
				if math.IsNaN(v) || v < 0 || v > 100 {
					return false
				}
			}
			return true
		},
		candleSliceGen(20, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_StochasticWithinBounds(t *testing.T) {
	properties := gopter.NewProperties(propertyParams())

	properties.Property("Stochastic %K and %D values are within [0, 100]", prop.ForAll(
		func(candles []models.Candle) bool {
			stoch := NewStochastic(14, 3, 3)
			values, err := stoch.Calculate(candles)
			if err != nil {
				return false
			}

			for _, key := range []string{"percent_k", "percent_d"} {
				series := values[key]
				if len(series) != len(candles) {
					return false
				}
				for i := stoch.Period(); i < len(series); i++ {
					// epsilon in the denominator keeps %K fractionally below 100
					if series[i] < 0 || series[i] > 100 {
						return false
					}
				}
			}
			return true
		},
		candleSliceGen(25, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_VolatilityNonNegative(t *testing.T) {
	properties := gopter.NewProperties(propertyParams())

	properties.Property("ATR and Bollinger width are non-negative", prop.ForAll(
		func(candles []models.Candle) bool {
			atr := CalculateATR(candles, 14)
			for i := 13; i < len(atr); i++ {
				if math.IsNaN(atr[i]) || atr[i] < 0 {
					return false
				}
			}
			bb := CalculateBollinger(models.Closes(candles), 20, 2)
			for i := 19; i < len(bb.Width); i++ {
				if math.IsNaN(bb.Width[i]) || bb.Width[i] < 0 {
					return false
				}
				if bb.Lower[i] > bb.Middle[i] || bb.Middle[i] > bb.Upper[i] {
					return false
				}
			}
			return true
		},
		candleSliceGen(30, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_EMABoundedByInput(t *testing.T) {
	properties := gopter.NewProperties(propertyParams())

	properties.Property("EMA stays between the series min and max", prop.ForAll(
		func(candles []models.Candle) bool {
			closes := models.Closes(candles)
			lo, hi := lowest(closes), highest(closes)
			for _, v := range CalculateEMA(closes, 20) {
				if v < lo-1e-9 || v > hi+1e-9 {
					return false
				}
			}
			return true
		},
		candleSliceGen(1, 100),
	))

	properties.TestingRun(t)
}
