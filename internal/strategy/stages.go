package strategy

import (
	"math"

	"regime-trader/internal/analysis/indicators"
	"regime-trader/internal/analysis/snapshot"
	"regime-trader/internal/models"
	"regime-trader/internal/risk"
)

// FeeBuffer is added to static take-profit targets to cover the round trip.
const FeeBuffer = 0.0005

func plan(balance, fraction, price, tp, sl float64, note string) *models.OrderPlan {
	return &models.OrderPlan{
		Side:       models.OrderSideBuy,
		Quantity:   risk.FixedFractionSize(balance, fraction, price),
		TakeProfit: tp,
		StopLoss:   sl,
		Note:       note,
	}
}

// ExtremePanicScalp buys capitulation: RSI at or below 20, volume at least
// twice normal and a daily drop of at least 8%.
func ExtremePanicScalp(candles []models.Candle, snap snapshot.Snapshot, balance float64) *models.OrderPlan {
	price := models.LastClose(candles)
	if snap.RSI > 20 || snap.RelativeVolume < 2.0 || snap.Change1D > -8 {
		return nil
	}
	if !(snap.ATR > 0) {
		return nil
	}
	minProfit := math.Max(0.025, snap.ATR*3/price)
	tp := price * (1 + minProfit + FeeBuffer*2)
	sl := price - snap.ATR*1.5
	return plan(balance, 0.08, price, tp, sl, "Stage0: enhanced panic scalp")
}

// StrongDownBounce buys an oversold bounce while MACD is well below signal.
func StrongDownBounce(candles []models.Candle, snap snapshot.Snapshot, balance float64) *models.OrderPlan {
	price := models.LastClose(candles)
	if snap.StochK > 25 || snap.MACD > snap.MACDSignal*0.9 || snap.Change1D > -5 {
		return nil
	}
	if !(snap.ATR > 0) {
		return nil
	}
	minProfit := math.Max(0.02, snap.ATR*2.5/price)
	tp := price * (1 + minProfit + FeeBuffer*2)
	sl := price - snap.ATR*1.2
	return plan(balance, 0.12, price, tp, sl, "Stage1: enhanced bounce")
}

// ConservativeBreakout buys when MACD is near or above signal with normal
// volume and RSI above 35.
func ConservativeBreakout(candles []models.Candle, snap snapshot.Snapshot, balance float64) *models.OrderPlan {
	price := models.LastClose(candles)
	if !(snap.MACD > snap.MACDSignal*0.95 && snap.RelativeVolume > 0.8 && snap.RSI > 35) {
		return nil
	}
	return plan(balance, 0.08, price, price*(1.02+FeeBuffer), price*0.985, "Stage2: conservative")
}

// WeakDownSwing buys a swing when bands are not too tight and RSI is at
// least 35.
func WeakDownSwing(candles []models.Candle, snap snapshot.Snapshot, balance float64) *models.OrderPlan {
	price := models.LastClose(candles)
	if snap.BBWidth < 0.015 || snap.RSI < 35 {
		return nil
	}
	return plan(balance, 0.08, price, price*(1.015+FeeBuffer), price*0.99, "Stage3: weak swing")
}

// DefensiveTrendFollow buys when MACD is above signal and RSI is at most 65.
func DefensiveTrendFollow(candles []models.Candle, snap snapshot.Snapshot, balance float64) *models.OrderPlan {
	price := models.LastClose(candles)
	if snap.MACD <= snap.MACDSignal || snap.RSI > 65 {
		return nil
	}
	return plan(balance, 0.10, price, price*(1.02+FeeBuffer), price*0.99, "Stage4: defensive TF")
}

// NeutralBoxScalp buys near the lower Bollinger band inside a moderate
// range, targeting the middle band.
func NeutralBoxScalp(candles []models.Candle, snap snapshot.Snapshot, balance float64) *models.OrderPlan {
	price := models.LastClose(candles)
	if snap.BBWidth > 0.06 || snap.BBWidth < 0.01 {
		return nil
	}

	bb := indicators.CalculateBollinger(models.Closes(candles), 20, 2)
	lower, middle := indicators.Last(bb.Lower), indicators.Last(bb.Middle)
	if math.IsNaN(lower) || math.IsNaN(middle) {
		return nil
	}
	if price >= lower*1.01 {
		return nil
	}

	tp := math.Max(middle, price*1.01) * (1 + FeeBuffer)
	// The stop sits under the band, and never at or above price.
	sl := math.Min(lower*0.995, price*0.995)
	return plan(balance, 0.12, price, tp, sl, "Stage5: BB scalp")
}

// BreakoutEntry buys an early uptrend: EMA20 above EMA50, relative volume
// of at least 1.2 and MACD above signal.
func BreakoutEntry(candles []models.Candle, snap snapshot.Snapshot, balance float64) *models.OrderPlan {
	price := models.LastClose(candles)
	if !(snap.EMA20vs50 > 0 && snap.RelativeVolume >= 1.2 && snap.MACD > snap.MACDSignal) {
		return nil
	}
	return plan(balance, 0.12, price, price*(1.03+FeeBuffer), price*0.985, "Stage6: breakout")
}

// TrendFollowAdd adds to an aligned uptrend with above-normal volume and RSI
// below 70.
func TrendFollowAdd(candles []models.Candle, snap snapshot.Snapshot, balance float64) *models.OrderPlan {
	price := models.LastClose(candles)
	if !(snap.EMA20vs50 > 0 && snap.EMA50vs100 > 0 && snap.RelativeVolume > 1.0 && snap.RSI < 70) {
		return nil
	}
	return plan(balance, 0.15, price, price*(1.05+FeeBuffer), price*0.985, "Stage7: trend add")
}

// AggressiveBreakout buys a strong breakout: RSI at most 75, relative volume
// of at least 1.5 and MACD above signal.
func AggressiveBreakout(candles []models.Candle, snap snapshot.Snapshot, balance float64) *models.OrderPlan {
	price := models.LastClose(candles)
	if !(snap.RSI <= 75 && snap.RelativeVolume >= 1.5 && snap.MACD > snap.MACDSignal) {
		return nil
	}
	return plan(balance, 0.20, price, price*(1.06+FeeBuffer), price*0.99, "Stage8: aggressive")
}

// TakeProfitReduce takes a small position unless both RSI and %K are
// stretched.
func TakeProfitReduce(candles []models.Candle, snap snapshot.Snapshot, balance float64) *models.OrderPlan {
	price := models.LastClose(candles)
	if !(snap.RSI < 75 || snap.StochK < 85) {
		return nil
	}
	return plan(balance, 0.05, price, price*(1.08+FeeBuffer), price*0.985, "Stage9: profit take")
}
