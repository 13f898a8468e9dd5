package models

import (
	"math"

	apperrors "regime-trader/internal/errors"
)

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateSeries checks that a candle series is usable for a decision:
// non-empty, strictly ascending timestamps, finite positive prices,
// open and close within [low, high] and non-negative volume. The returned error matches
// errors.ErrInvalidInput.
func ValidateSeries(candles []Candle) error {
	if len(candles) == 0 {
		return apperrors.NewInputError("candles", -1, "series is empty")
	}
	for i, c := range candles {
		if i > 0 && !c.Timestamp.After(candles[i-1].Timestamp) {
			return apperrors.NewInputError("timestamp", i, "series must be sorted ascending without duplicates")
		}
		for _, f := range []struct {
			name  string
			value float64
		}{
			{"open", c.Open}, {"high", c.High}, {"low", c.Low}, {"close", c.Close},
		} {
			if !finite(f.value) || f.value <= 0 {
				return apperrors.NewInputError(f.name, i, "price must be finite and positive")
			}
		}
		if c.High < c.Low {
			return apperrors.NewInputError("high", i, "high is below low")
		}
		if c.Open < c.Low || c.Open > c.High {
			return apperrors.NewInputError("open", i, "open is outside the high-low range")
		}
		if c.Close < c.Low || c.Close > c.High {
			return apperrors.NewInputError("close", i, "close is outside the high-low range")
		}
		if !finite(c.Volume) || c.Volume < 0 {
			return apperrors.NewInputError("volume", i, "volume must be finite and non-negative")
		}
	}
	return nil
}

// Validate checks the price-level invariant of a buy plan at price: a set
// take-profit must be above price and a set stop-loss strictly between zero
// and price.
func (p *OrderPlan) Validate(price float64) error {
	if p == nil {
		return nil
	}
	if !finite(p.Quantity) || p.Quantity < 0 {
		return apperrors.NewInputError("qty", -1, "quantity must be finite and non-negative")
	}
	if !p.IsBuy() {
		return nil
	}
	if p.TakeProfit != 0 && !(p.TakeProfit > price) {
		return apperrors.NewInputError("tp", -1, "take-profit must be above price")
	}
	if p.StopLoss != 0 && !(p.StopLoss < price) {
		return apperrors.NewInputError("sl", -1, "stop-loss must be below price")
	}
	if p.StopLoss < 0 || !finite(p.StopLoss) {
		return apperrors.NewInputError("sl", -1, "stop-loss must be positive")
	}
	return nil
}
