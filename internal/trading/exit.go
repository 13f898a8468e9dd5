package trading

import (
	"context"
	"fmt"

	"regime-trader/internal/broker"
	"regime-trader/internal/models"
)

// ExitAction is what a staged profit level does to a position.
type ExitAction string

const (
	ExitNone      ExitAction = "none"
	ExitFull      ExitAction = "full_sell"
	ExitPartial   ExitAction = "partial_sell"
	ExitRaiseStop ExitAction = "raise_stop"
)

// Staged exit thresholds, in quote currency.
const (
	// Below this position value a 50% partial becomes a full sell.
	SmallPositionValue = 20_000
	// At or above this position value the 5% level sells instead of
	// tightening the stop.
	LargePositionValue = 40_000
	// Partial sells worth less than this are promoted to a full close.
	MinPartialValue = 5_000
)

// ExitSignal is the staged profit decision for one position at one price.
type ExitSignal struct {
	PositionID string
	Level      int
	Action     ExitAction
	// Fraction of the position to sell, for ExitPartial.
	Fraction float64
	// StopLoss is the new stop level, for ExitRaiseStop.
	StopLoss float64
	Reason   string
}

// StagedProfitAction maps unrealized profit at price to a staged exit.
// Levels already acted on (pos.ProfitStage) produce ExitNone.
//
//	>= 10%   level 5  sell all
//	>= 8%    level 4  sell 50%, or all below SmallPositionValue
//	>= 5%    level 3  sell 30% at or above LargePositionValue, else stop to entry+3%
//	>= 3%    level 2  stop to entry+2%
//	>= 1.5%  level 1  stop to entry+0.5%
func StagedProfitAction(pos models.Position, price float64) ExitSignal {
	profit := pos.ProfitPercent(price)
	value := pos.Value(price)
	sig := ExitSignal{PositionID: pos.ID, Action: ExitNone}

	switch {
	case profit >= 10:
		sig.Level, sig.Action = 5, ExitFull
	case profit >= 8:
		sig.Level, sig.Action, sig.Fraction = 4, ExitPartial, 0.5
		if value < SmallPositionValue {
			sig.Action, sig.Fraction = ExitFull, 0
		}
	case profit >= 5:
		sig.Level = 3
		if value >= LargePositionValue {
			sig.Action, sig.Fraction = ExitPartial, 0.3
		} else {
			sig.Action, sig.StopLoss = ExitRaiseStop, pos.EntryPrice*1.03
		}
	case profit >= 3:
		sig.Level, sig.Action, sig.StopLoss = 2, ExitRaiseStop, pos.EntryPrice*1.02
	case profit >= 1.5:
		sig.Level, sig.Action, sig.StopLoss = 1, ExitRaiseStop, pos.EntryPrice*1.005
	default:
		return sig
	}

	if sig.Level <= pos.ProfitStage {
		return ExitSignal{PositionID: pos.ID, Action: ExitNone}
	}
	if sig.Action == ExitPartial && value*sig.Fraction < MinPartialValue {
		sig.Action, sig.Fraction = ExitFull, 0
	}
	sig.Reason = fmt.Sprintf("staged profit %.2f%% (level %d)", profit, sig.Level)
	return sig
}

// TakeStagedProfits applies StagedProfitAction to every open position at the
// bar close.
func (e *BacktestEngine) TakeStagedProfits(ctx context.Context, bar models.Candle) error {
	positions, err := e.account.Positions(ctx)
	if err != nil {
		return err
	}

	for _, pos := range positions {
		sig := StagedProfitAction(pos, bar.Close)
		switch sig.Action {
		case ExitNone:
			continue
		case ExitFull:
			if _, err := e.sell(ctx, broker.SellRequest{
				PositionID: pos.ID,
				Price:      bar.Close,
				Type:       models.TradeTakeProfit,
				Time:       bar.Timestamp,
				Note:       sig.Reason,
			}); err != nil {
				return err
			}
			continue
		case ExitPartial:
			if _, err := e.sell(ctx, broker.SellRequest{
				PositionID: pos.ID,
				Quantity:   pos.Quantity * sig.Fraction,
				Price:      bar.Close,
				Type:       models.TradePartial,
				Time:       bar.Timestamp,
				Note:       sig.Reason,
			}); err != nil {
				return err
			}
		case ExitRaiseStop:
			if err := e.account.RaiseStopLoss(ctx, pos.ID, sig.StopLoss); err != nil {
				return err
			}
			e.logger.Debug().
				Str("position_id", pos.ID).
				Float64("sl", sig.StopLoss).
				Int("level", sig.Level).
				Msg("Stop-loss raised")
		}
		e.account.MarkProfitStage(pos.ID, sig.Level)
	}
	return nil
}
