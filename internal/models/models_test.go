package models

import (
	"errors"
	"math"
	"testing"
	"time"

	apperrors "regime-trader/internal/errors"
)

func series(n int) []Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Candle, n)
	for i := range out {
		out[i] = Candle{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      100, High: 101, Low: 99, Close: 100, Volume: 10,
		}
	}
	return out
}

func TestValidateSeries(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]Candle) []Candle
		field  string
	}{
		{"valid", func(c []Candle) []Candle { return c }, ""},
		{"empty", func(c []Candle) []Candle { return nil }, "candles"},
		{"unsorted", func(c []Candle) []Candle { c[2].Timestamp = c[0].Timestamp; return c }, "timestamp"},
		{"zero close", func(c []Candle) []Candle { c[1].Close = 0; return c }, "close"},
		{"nan open", func(c []Candle) []Candle { c[1].Open = math.NaN(); return c }, "open"},
		{"high below low", func(c []Candle) []Candle { c[1].High = 98; return c }, "high"},
		{"open below low", func(c []Candle) []Candle { c[1].Open = 98.5; return c }, "open"},
		{"close above high", func(c []Candle) []Candle { c[3].Close = 102; return c }, "close"},
		{"negative volume", func(c []Candle) []Candle { c[1].Volume = -1; return c }, "volume"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSeries(tt.mutate(series(5)))
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, apperrors.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			var inputErr *apperrors.InputError
			if !errors.As(err, &inputErr) || inputErr.Field != tt.field {
				t.Errorf("expected field %q, got %v", tt.field, err)
			}
		})
	}
}

func TestOrderPlanValidate(t *testing.T) {
	ok := &OrderPlan{Side: OrderSideBuy, Quantity: 1, TakeProfit: 110, StopLoss: 90}
	if err := ok.Validate(100); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (&OrderPlan{Side: OrderSideBuy, Quantity: 1, TakeProfit: 100}).Validate(100); err == nil {
		t.Error("expected error for take-profit at price")
	}
	if err := (&OrderPlan{Side: OrderSideBuy, Quantity: 1, StopLoss: 101}).Validate(100); err == nil {
		t.Error("expected error for stop-loss above price")
	}
	negative := &OrderPlan{Side: OrderSideBuy, Quantity: 1, TakeProfit: 110, StopLoss: -5}
	if err := negative.Validate(100); err == nil {
		t.Error("expected error for negative stop-loss")
	}
	if !negative.HasStopLoss() {
		t.Error("a negative stop-loss still counts as set")
	}
	var nilPlan *OrderPlan
	if err := nilPlan.Validate(100); err != nil {
		t.Errorf("nil plan: %v", err)
	}
}

func TestPosition(t *testing.T) {
	p := &Position{Quantity: 2, EntryPrice: 50000}
	if got := p.Value(51000); got != 102000 {
		t.Errorf("Value = %v", got)
	}
	if got := p.ProfitPercent(55000); math.Abs(got-10) > 1e-9 {
		t.Errorf("ProfitPercent = %v", got)
	}
	if LastClose(nil) != 0 {
		t.Error("LastClose(nil) should be 0")
	}
}
