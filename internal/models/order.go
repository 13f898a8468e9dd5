package models

import "time"

// OrderPlan is a proposed entry produced by a strategy. Quantity is a
// base-asset amount; prices are in quote currency. A zero TakeProfit or
// StopLoss means the level is unset.
type OrderPlan struct {
	Side       OrderSide `json:"side"`
	Quantity   float64   `json:"qty"`
	TakeProfit float64   `json:"tp,omitempty"`
	StopLoss   float64   `json:"sl,omitempty"`
	Note       string    `json:"note"`
}

// IsBuy reports whether the plan opens a long position.
func (p *OrderPlan) IsBuy() bool {
	return p != nil && p.Side == OrderSideBuy
}

// HasStopLoss reports whether a stop-loss level is set. Any non-zero
// level counts, including a nonsensical negative one.
func (p *OrderPlan) HasStopLoss() bool {
	return p != nil && p.StopLoss != 0
}

// Notional returns quantity valued at price.
func (p *OrderPlan) Notional(price float64) float64 {
	if p == nil {
		return 0
	}
	return p.Quantity * price
}

// Position represents an open long position held by a caller.
type Position struct {
	ID         string    `json:"id"`
	Ticker     string    `json:"ticker"`
	Quantity   float64   `json:"qty"`
	EntryPrice float64   `json:"entry_price"`
	TakeProfit float64   `json:"tp"`
	StopLoss   float64   `json:"sl"`
	EntryTime  time.Time `json:"entry_time"`
	EntryFee   float64   `json:"entry_fee"`
	Note       string    `json:"note"`
	// ProfitStage is the highest staged profit-taking level already acted on.
	ProfitStage int `json:"profit_stage,omitempty"`
}

// Value returns the position valued at price.
func (p *Position) Value(price float64) float64 {
	return p.Quantity * price
}

// ProfitPercent returns the unrealized gain at price relative to entry.
func (p *Position) ProfitPercent(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (price/p.EntryPrice - 1) * 100
}
