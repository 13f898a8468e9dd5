package marketdata

import (
	"math"
	"math/rand"
	"time"

	"regime-trader/internal/models"
)

// Generator defaults.
const (
	DefaultPeriods    = 5000
	DefaultSeed       = 42
	DefaultStartPrice = 50_000
	baseVolume        = 1_000_000
)

// DefaultStart is the first bar of generated series.
var DefaultStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// GenerateConfig controls the synthetic series.
type GenerateConfig struct {
	Periods    int
	Seed       int64
	StartPrice float64
	Start      time.Time
	Interval   time.Duration
}

// DefaultGenerateConfig returns the standard 5-minute series settings.
func DefaultGenerateConfig() GenerateConfig {
	return GenerateConfig{
		Periods:    DefaultPeriods,
		Seed:       DefaultSeed,
		StartPrice: DefaultStartPrice,
		Start:      DefaultStart,
		Interval:   BarInterval,
	}
}

// Generate builds a seeded random-walk series: a slow sinusoidal drift of
// 0.2% plus 0.5% Gaussian noise per bar, exponential volume noise over a
// base of one million, and highs and lows up to 1% beyond the close. Equal
// configs yield equal series.
func Generate(cfg GenerateConfig) []models.Candle {
	def := DefaultGenerateConfig()
	if cfg.Periods <= 0 {
		cfg.Periods = def.Periods
	}
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = def.StartPrice
	}
	if cfg.Start.IsZero() {
		cfg.Start = def.Start
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	candles := make([]models.Candle, cfg.Periods)
	price := cfg.StartPrice

	for i := range candles {
		trend := math.Sin(float64(i)/100) * 0.002
		noise := rng.NormFloat64() * 0.005
		price *= 1 + trend + noise

		volume := baseVolume + rng.ExpFloat64()*0.5*baseVolume
		high := price * (1 + rng.Float64()*0.01)
		low := price * (1 - rng.Float64()*0.01)

		candles[i] = models.Candle{
			Timestamp: cfg.Start.Add(time.Duration(i) * cfg.Interval),
			Open:      price,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    volume,
		}
	}
	return candles
}
