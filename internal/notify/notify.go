// Package notify delivers human-readable trading events (entries, exits,
// risk alerts, regime changes) to configured channels.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"regime-trader/internal/models"
	"regime-trader/pkg/utils"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendEntry(ctx context.Context, pos *models.Position, stage string) error
	SendExit(ctx context.Context, trade *models.Trade) error
	SendRiskAlert(ctx context.Context, rule string, current, limit float64) error
	SendRegimeChange(ctx context.Context, from, to int, stage string) error
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationTrade  NotificationType = "trade"
	NotificationRisk   NotificationType = "risk"
	NotificationRegime NotificationType = "regime"
	NotificationError  NotificationType = "error"
	NotificationInfo   NotificationType = "info"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll        NotificationLevel = "all"
	LevelTradesOnly NotificationLevel = "trades_only"
	LevelErrorsOnly NotificationLevel = "errors_only"
)

// ParseLevel maps a config string to a level, defaulting to LevelAll.
func ParseLevel(s string) NotificationLevel {
	switch NotificationLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LevelTradesOnly:
		return LevelTradesOnly
	case LevelErrorsOnly:
		return LevelErrorsOnly
	default:
		return LevelAll
	}
}

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
	mu       sync.RWMutex
}

// NewMultiNotifier creates a notifier filtering at level.
func NewMultiNotifier(level NotificationLevel, channels ...NotificationChannel) *MultiNotifier {
	if level == "" {
		level = LevelAll
	}
	return &MultiNotifier{
		channels: channels,
		level:    level,
	}
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// shouldSend checks if a notification should be sent based on the level filter.
// Risk alerts count as errors.
func (mn *MultiNotifier) shouldSend(notifType NotificationType) bool {
	switch mn.level {
	case LevelTradesOnly:
		return notifType == NotificationTrade
	case LevelErrorsOnly:
		return notifType == NotificationError || notifType == NotificationRisk
	default:
		return true
	}
}

// Send sends a notification to all enabled channels.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if ch.IsEnabled() {
			if err := ch.Send(ctx, n); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SendEntry announces a newly opened position.
func (mn *MultiNotifier) SendEntry(ctx context.Context, pos *models.Position, stage string) error {
	title := fmt.Sprintf("BUY %s", pos.Ticker)
	message := fmt.Sprintf(
		"Stage: %s\nQuantity: %s\nEntry: %s\nTP: %s\nSL: %s",
		stage,
		utils.FormatQuantity(pos.Quantity),
		utils.FormatKRW(pos.EntryPrice),
		utils.FormatKRW(pos.TakeProfit),
		utils.FormatKRW(pos.StopLoss),
	)

	return mn.Send(ctx, Notification{
		Type:      NotificationTrade,
		Title:     title,
		Message:   message,
		Timestamp: pos.EntryTime,
		Data: map[string]interface{}{
			"position_id": pos.ID,
			"ticker":      pos.Ticker,
			"stage":       stage,
			"quantity":    pos.Quantity,
			"entry_price": pos.EntryPrice,
			"tp":          pos.TakeProfit,
			"sl":          pos.StopLoss,
		},
	})
}

// SendExit announces a full or partial close.
func (mn *MultiNotifier) SendExit(ctx context.Context, trade *models.Trade) error {
	title := fmt.Sprintf("%s exit", trade.Type)
	message := fmt.Sprintf(
		"Quantity: %s\nExit: %s\nP&L: %s (%s)",
		utils.FormatQuantity(trade.Quantity),
		utils.FormatKRW(trade.Price),
		utils.FormatPnL(trade.PnL),
		utils.FormatPercent(trade.PnLPercent),
	)
	if trade.Note != "" {
		message += "\nNote: " + trade.Note
	}

	return mn.Send(ctx, Notification{
		Type:      NotificationTrade,
		Title:     title,
		Message:   message,
		Timestamp: trade.Time,
		Data: map[string]interface{}{
			"position_id": trade.PositionID,
			"type":        string(trade.Type),
			"quantity":    trade.Quantity,
			"price":       trade.Price,
			"pnl":         trade.PnL,
			"pnl_percent": trade.PnLPercent,
		},
	})
}

// SendRiskAlert reports a risk-gate veto.
func (mn *MultiNotifier) SendRiskAlert(ctx context.Context, rule string, current, limit float64) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationRisk,
		Title:   "Risk limit hit",
		Message: fmt.Sprintf("Rule: %s\nCurrent: %.4f\nLimit: %.4f", rule, current, limit),
		Data: map[string]interface{}{
			"rule":    rule,
			"current": current,
			"limit":   limit,
		},
	})
}

// SendRegimeChange reports a change of classified regime.
func (mn *MultiNotifier) SendRegimeChange(ctx context.Context, from, to int, stage string) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationRegime,
		Title:   "Regime change",
		Message: fmt.Sprintf("%d -> %s", from, stage),
		Data: map[string]interface{}{
			"from":  from,
			"to":    to,
			"stage": stage,
		},
	})
}

// LogChannel writes notifications to a zerolog logger.
type LogChannel struct {
	logger zerolog.Logger
}

// NewLogChannel creates a channel logging at info level.
func NewLogChannel(logger zerolog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Name returns the channel name.
func (l *LogChannel) Name() string {
	return "log"
}

// IsEnabled always returns true.
func (l *LogChannel) IsEnabled() bool {
	return true
}

// Send logs the notification with its data fields.
func (l *LogChannel) Send(ctx context.Context, n Notification) error {
	event := l.logger.Info()
	if n.Type == NotificationRisk || n.Type == NotificationError {
		event = l.logger.Warn()
	}
	event.
		Str("type", string(n.Type)).
		Fields(n.Data).
		Msg(n.Title)
	return nil
}

// NoOpNotifier is a notifier that does nothing.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Send does nothing.
func (n *NoOpNotifier) Send(ctx context.Context, notif Notification) error {
	return nil
}

// SendEntry does nothing.
func (n *NoOpNotifier) SendEntry(ctx context.Context, pos *models.Position, stage string) error {
	return nil
}

// SendExit does nothing.
func (n *NoOpNotifier) SendExit(ctx context.Context, trade *models.Trade) error {
	return nil
}

// SendRiskAlert does nothing.
func (n *NoOpNotifier) SendRiskAlert(ctx context.Context, rule string, current, limit float64) error {
	return nil
}

// SendRegimeChange does nothing.
func (n *NoOpNotifier) SendRegimeChange(ctx context.Context, from, to int, stage string) error {
	return nil
}

var (
	_ Notifier = (*MultiNotifier)(nil)
	_ Notifier = (*NoOpNotifier)(nil)
)
