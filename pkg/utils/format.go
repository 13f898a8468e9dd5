// Package utils provides shared formatting and retry helpers.
package utils

import (
	"fmt"
	"math"
	"strings"
)

// FormatKRW formats an amount in won with thousands separators and no
// fractional part, e.g. "₩1,234,567".
func FormatKRW(amount float64) string {
	negative := amount < 0
	s := groupThousands(fmt.Sprintf("%.0f", math.Abs(amount)))
	if negative && s != "0" {
		return "-₩" + s
	}
	return "₩" + s
}

// groupThousands inserts commas every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var sb strings.Builder
	head := n % 3
	if head > 0 {
		sb.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(s[i : i+3])
	}
	return sb.String()
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatPnL formats a realized or unrealized PnL with an explicit sign.
func FormatPnL(pnl float64) string {
	formatted := FormatKRW(pnl)
	if pnl > 0 {
		return "+" + formatted
	}
	return formatted
}

// FormatQuantity formats a coin quantity with up to eight decimals and no
// trailing zeros.
func FormatQuantity(qty float64) string {
	s := fmt.Sprintf("%.8f", qty)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// FormatCompact formats a won amount in compact form (K/M/B).
func FormatCompact(amount float64) string {
	abs := math.Abs(amount)
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("₩%.2fB", amount/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("₩%.2fM", amount/1e6)
	case abs >= 1e4:
		return fmt.Sprintf("₩%.1fK", amount/1e3)
	}
	return FormatKRW(amount)
}
