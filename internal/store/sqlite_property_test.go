package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"regime-trader/internal/models"
)

// Saving candles and reading them back yields equivalent bars.
func TestProperty_CandleRoundTripConsistency(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "candles.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	tickers := []string{"KRW-BTC", "KRW-ETH", "KRW-XRP", "KRW-SOL"}
	timeframeGen := gen.OneConstOf("1m", "5m", "15m", "1h")

	run := 0
	properties.Property("save then retrieve produces equivalent data", prop.ForAll(
		func(tickerIdx int, timeframe string, count int, basePrice, baseVolume float64) bool {
			ctx := context.Background()
			run++
			ticker := fmt.Sprintf("%s_%d", tickers[tickerIdx%len(tickers)], run)

			candles := generateTestCandles(count, basePrice, baseVolume)
			if err := store.SaveCandles(ctx, ticker, timeframe, candles); err != nil {
				t.Logf("Failed to save candles: %v", err)
				return false
			}

			from := candles[0].Timestamp.Add(-time.Second)
			to := candles[len(candles)-1].Timestamp.Add(time.Second)
			retrieved, err := store.GetCandles(ctx, ticker, timeframe, from, to)
			if err != nil {
				t.Logf("Failed to get candles: %v", err)
				return false
			}

			if len(retrieved) != len(candles) {
				t.Logf("Count mismatch: expected %d, got %d", len(candles), len(retrieved))
				return false
			}
			for i, orig := range candles {
				if !candlesEqual(orig, retrieved[i]) {
					t.Logf("Candle mismatch at index %d: original=%+v, retrieved=%+v", i, orig, retrieved[i])
					return false
				}
			}
			return true
		},
		gen.IntRange(0, len(tickers)-1),
		timeframeGen,
		gen.IntRange(1, 300),
		gen.Float64Range(1_000, 100_000_000),
		gen.Float64Range(0, 1e7),
	))

	properties.Property("saving an empty slice succeeds", prop.ForAll(
		func(timeframe string) bool {
			return store.SaveCandles(context.Background(), "KRW-EMPTY", timeframe, nil) == nil
		},
		timeframeGen,
	))

	properties.TestingRun(t)
}

// generateTestCandles creates valid 5-minute candles.
func generateTestCandles(count int, basePrice, baseVolume float64) []models.Candle {
	candles := make([]models.Candle, count)
	baseTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < count; i++ {
		variation := float64(i%10) * 0.01 * basePrice
		open := basePrice + variation
		close := basePrice + variation*0.5

		candles[i] = models.Candle{
			Timestamp: baseTime.Add(time.Duration(i) * 5 * time.Minute),
			Open:      open,
			High:      math.Max(open, close) * 1.01,
			Low:       math.Min(open, close) * 0.99,
			Close:     close,
			Volume:    baseVolume + float64(i)*0.5,
		}
	}
	return candles
}

func candlesEqual(a, b models.Candle) bool {
	return a.Timestamp.Equal(b.Timestamp) &&
		a.Open == b.Open &&
		a.High == b.High &&
		a.Low == b.Low &&
		a.Close == b.Close &&
		a.Volume == b.Volume
}
