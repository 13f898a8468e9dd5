package models

import "time"

// TradeType labels a ledger entry.
type TradeType string

const (
	TradeBuy        TradeType = "BUY"
	TradeTakeProfit TradeType = "TP"
	TradeStopLoss   TradeType = "SL"
	TradePartial    TradeType = "PARTIAL"
)

// IsExit reports whether the entry closes (part of) a position.
func (t TradeType) IsExit() bool {
	return t != TradeBuy
}

// Trade is a single fill recorded by a simulated or live account.
type Trade struct {
	ID         string    `json:"id"`
	PositionID string    `json:"position_id"`
	Time       time.Time `json:"time"`
	Type       TradeType `json:"type"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"qty"`
	Fee        float64   `json:"fee"`
	PnL        float64   `json:"pnl,omitempty"`
	PnLPercent float64   `json:"pnl_pct,omitempty"`
	Note       string    `json:"note"`
}

// TradeOutcome is one closed-position result kept for Kelly sizing.
type TradeOutcome struct {
	Win        bool    `json:"win"`
	PnLPercent float64 `json:"pnl_pct"`
}
