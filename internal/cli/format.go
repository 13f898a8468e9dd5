package cli

import (
	"fmt"
	"time"

	"regime-trader/internal/models"
	"regime-trader/pkg/utils"
)

// FormatDateTime formats a bar or run time in UTC.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// FormatPrice formats a price with precision suited to its magnitude.
func FormatPrice(price float64) string {
	if price >= 100 {
		return utils.FormatKRW(price)
	}
	return fmt.Sprintf("₩%.4f", price)
}

// FormatRatio formats a dimensionless ratio such as Sharpe or profit factor.
func FormatRatio(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// FormatLevels formats an order plan's exit levels, or "-" when unset.
func FormatLevels(plan *models.OrderPlan) string {
	if plan == nil {
		return "-"
	}
	tp, sl := "-", "-"
	if plan.TakeProfit > 0 {
		tp = FormatPrice(plan.TakeProfit)
	}
	if plan.HasStopLoss() {
		sl = FormatPrice(plan.StopLoss)
	}
	return fmt.Sprintf("TP %s / SL %s", tp, sl)
}
