// Package broker provides the account gateway that approved order plans are
// handed to, and a simulated implementation for backtests and paper runs.
package broker

import (
	"context"
	"time"

	"regime-trader/internal/models"
)

// Gateway defines the execution and account operations the trading engine
// needs. Decision logic never calls it directly; callers act on approved
// plans through it.
type Gateway interface {
	// Orders
	Buy(ctx context.Context, req BuyRequest) (*models.Position, error)
	Sell(ctx context.Context, req SellRequest) (*models.Trade, error)
	RaiseStopLoss(ctx context.Context, positionID string, stopLoss float64) error

	// Account
	Cash(ctx context.Context) (float64, error)
	Positions(ctx context.Context) ([]models.Position, error)
	Equity(ctx context.Context, price float64) (float64, error)
}

// BuyRequest opens a long position from an approved plan.
type BuyRequest struct {
	Ticker string
	Plan   models.OrderPlan
	Price  float64
	Time   time.Time
}

// SellRequest closes all or part of an open position. A zero or
// oversized Quantity closes the whole position.
type SellRequest struct {
	PositionID string
	Quantity   float64
	Price      float64
	Type       models.TradeType
	Time       time.Time
	Note       string
}
