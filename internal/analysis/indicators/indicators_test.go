package indicators

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"regime-trader/internal/models"
)

func flatCandles(n int, price float64) []models.Candle {
	candles := make([]models.Candle, n)
	for i := range candles {
		candles[i] = models.Candle{
			Timestamp: baseTime.Add(time.Duration(i) * 5 * time.Minute),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    1000,
		}
	}
	return candles
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestFlatSeries(t *testing.T) {
	candles := flatCandles(120, 100)
	closes := models.Closes(candles)

	if got := Last(CalculateEMA(closes, 20)); got != 100 {
		t.Errorf("EMA20 = %v, want 100", got)
	}

	macd := CalculateMACD(closes, 12, 26, 9)
	if got := Last(macd.Line); got != 0 {
		t.Errorf("MACD line = %v, want 0", got)
	}
	if got := Last(macd.Signal); got != 0 {
		t.Errorf("MACD signal = %v, want 0", got)
	}

	if got := Last(CalculateRSI(closes, 14)); got != 50 {
		t.Errorf("RSI = %v, want 50", got)
	}

	if got := Last(CalculateATR(candles, 14)); got != 0 {
		t.Errorf("ATR = %v, want 0", got)
	}

	if got := Last(CalculateBollinger(closes, 20, 2).Width); got != 0 {
		t.Errorf("BB width = %v, want 0", got)
	}

	stoch := CalculateStochastic(candles, 14, 3, 3)
	if got := Last(stoch.K); got != 0 {
		t.Errorf("stoch K = %v, want 0", got)
	}

	if got := Last(RelativeVolume(candles, 5)); !almostEqual(got, 1, 1e-9) {
		t.Errorf("relative volume = %v, want 1", got)
	}
}

func TestCalculateEMA(t *testing.T) {
	values := []float64{1, 2, 3}
	// alpha = 2/(3+1) = 0.5
	got := CalculateEMA(values, 3)
	want := []float64{1, 1.5, 2.25}
	for i := range want {
		if !almostEqual(got[i], want[i], 1e-12) {
			t.Errorf("EMA[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	withGap := CalculateEMA([]float64{math.NaN(), 4, math.NaN(), 8}, 3)
	if !math.IsNaN(withGap[0]) {
		t.Errorf("leading NaN should stay NaN, got %v", withGap[0])
	}
	if withGap[1] != 4 || withGap[2] != 4 || withGap[3] != 6 {
		t.Errorf("EMA with gap = %v", withGap)
	}
}

func TestCalculateRSI(t *testing.T) {
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = float64(100 + i)
	}
	if got := Last(CalculateRSI(rising, 14)); got < 99.9 {
		t.Errorf("RSI of monotonic rise = %v, want ~100", got)
	}

	falling := make([]float64, 30)
	for i := range falling {
		falling[i] = float64(200 - i)
	}
	if got := Last(CalculateRSI(falling, 14)); got > 0.1 {
		t.Errorf("RSI of monotonic fall = %v, want ~0", got)
	}

	if got := CalculateRSI([]float64{1}, 14); len(got) != 1 || !math.IsNaN(got[0]) {
		t.Errorf("single value RSI = %v, want [NaN]", got)
	}
}

func TestCalculateATR(t *testing.T) {
	candles := []models.Candle{
		{High: 10, Low: 8, Close: 9},
		{High: 12, Low: 9, Close: 11},
		{High: 11, Low: 10, Close: 10},
	}
	// TR = 2, max(3, 3, 0) = 3, max(1, 0, 1) = 1
	atr := CalculateATR(candles, 3)
	if !math.IsNaN(atr[1]) {
		t.Errorf("ATR before full window should be NaN, got %v", atr[1])
	}
	if !almostEqual(atr[2], 2, 1e-12) {
		t.Errorf("ATR = %v, want 2", atr[2])
	}
}

func TestCalculateBollinger(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	bb := CalculateBollinger(values, 4, 2)
	// population std of 1..4 is sqrt(1.25)
	sd := math.Sqrt(1.25)
	if !almostEqual(bb.Middle[3], 2.5, 1e-12) {
		t.Errorf("middle = %v", bb.Middle[3])
	}
	if !almostEqual(bb.Upper[3], 2.5+2*sd, 1e-12) {
		t.Errorf("upper = %v", bb.Upper[3])
	}
	if !almostEqual(bb.Width[3], 4*sd/2.5, 1e-12) {
		t.Errorf("width = %v", bb.Width[3])
	}

	zero := CalculateBollinger([]float64{0, 0, 0}, 3, 2)
	if !math.IsNaN(zero.Width[2]) {
		t.Errorf("width with zero middle should be NaN, got %v", zero.Width[2])
	}
}

func TestAnnualizedVolatility(t *testing.T) {
	closes := make([]float64, 21)
	for i := range closes {
		closes[i] = 100
	}
	vol, ok := AnnualizedVolatility(closes, 20, 288)
	if !ok || vol != 0 {
		t.Errorf("flat volatility = %v, %v", vol, ok)
	}

	if _, ok := AnnualizedVolatility(closes[:20], 20, 288); ok {
		t.Error("expected not ok with fewer than 20 returns")
	}
}

func TestLastFinite(t *testing.T) {
	if got := LastFinite([]float64{1, 2, math.NaN()}, 9); got != 2 {
		t.Errorf("LastFinite = %v, want 2", got)
	}
	if got := LastFinite(nil, 9); got != 9 {
		t.Errorf("LastFinite(nil) = %v, want 9", got)
	}
	if got := LastFinite([]float64{math.Inf(1)}, 9); got != 9 {
		t.Errorf("LastFinite(+Inf) = %v, want 9", got)
	}
}

func TestInvalidPeriod(t *testing.T) {
	candles := flatCandles(10, 100)
	if _, err := NewEMA(0).Calculate(candles); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("EMA(0) err = %v", err)
	}
	if _, err := NewMACD(12, 0, 9).Calculate(candles); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("MACD err = %v", err)
	}
	if _, err := NewBollingerBands(20, 0).Calculate(candles); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("Bollinger err = %v", err)
	}
}

func TestEngineCalculateAll(t *testing.T) {
	candles := flatCandles(150, 50000)
	engine := DefaultEngine(2)

	results, err := engine.CalculateAll(context.Background(), candles)
	if err != nil {
		t.Fatalf("CalculateAll: %v", err)
	}

	for _, name := range []string{"RSI_14", "EMA_20", "ATR_14", "MACD_12_26_9.macd", "BollingerBands_20_2.0.width", "Stochastic_14_3_3.percent_k"} {
		series, ok := results[name]
		if !ok {
			t.Errorf("missing result %s (have %v)", name, results.Names())
			continue
		}
		if len(series) != len(candles) {
			t.Errorf("%s length = %d, want %d", name, len(series), len(candles))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.CalculateAll(ctx, candles); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled CalculateAll err = %v", err)
	}

	if _, err := engine.Calculate(context.Background(), "nope", candles); err == nil {
		t.Error("expected error for unknown indicator")
	}
	rsi, err := engine.Calculate(context.Background(), "RSI_14", candles)
	if err != nil || Last(rsi) != 50 {
		t.Errorf("RSI_14 on flat series = %v, %v", Last(rsi), err)
	}
	if names := engine.ListIndicators(); len(names) != 8 || names[0] != "ATR_14" {
		t.Errorf("ListIndicators = %v", names)
	}
}
