// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"regime-trader/internal/models"
	"regime-trader/internal/trading"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Candles
	SaveCandles(ctx context.Context, ticker, timeframe string, candles []models.Candle) error
	GetCandles(ctx context.Context, ticker, timeframe string, from, to time.Time) ([]models.Candle, error)
	GetCandlesFreshness(ctx context.Context, ticker, timeframe string) (time.Time, error)

	// Backtest runs
	SaveBacktest(ctx context.Context, result *trading.BacktestResult) error
	ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error)
	GetRun(ctx context.Context, id string) (*RunSummary, error)
	GetRunTrades(ctx context.Context, runID string) ([]models.Trade, error)
	GetMarketStates(ctx context.Context, runID string) ([]trading.MarketState, error)
	DeleteRun(ctx context.Context, id string) error

	// Lifecycle
	Close() error
}

// RunFilter represents filters for querying backtest runs.
type RunFilter struct {
	Ticker    string
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}

// RunSummary is a stored backtest run without its trades and states.
type RunSummary struct {
	ID        string                  `json:"id"`
	Ticker    string                  `json:"ticker"`
	StartedAt time.Time               `json:"started_at"`
	Duration  time.Duration           `json:"duration"`
	Config    trading.BacktestConfig  `json:"config"`
	Metrics   trading.BacktestMetrics `json:"metrics"`
}
