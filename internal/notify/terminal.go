package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// TerminalChannel prints one line per notification, optionally colored by
// type.
type TerminalChannel struct {
	w            io.Writer
	colorEnabled bool
	enabled      bool
	mu           sync.Mutex
}

// NewTerminalChannel creates a channel writing to w.
func NewTerminalChannel(w io.Writer, colorEnabled bool) *TerminalChannel {
	return &TerminalChannel{
		w:            w,
		colorEnabled: colorEnabled,
		enabled:      true,
	}
}

// SetEnabled enables or disables output.
func (tc *TerminalChannel) SetEnabled(enabled bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.enabled = enabled
}

// Name returns the channel name.
func (tc *TerminalChannel) Name() string {
	return "terminal"
}

// IsEnabled reports whether output is on.
func (tc *TerminalChannel) IsEnabled() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.enabled
}

// Send writes the formatted notification.
func (tc *TerminalChannel) Send(ctx context.Context, n Notification) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	_, err := fmt.Fprintln(tc.w, FormatNotification(n, tc.colorEnabled))
	return err
}

// FormatNotification formats a notification for terminal display. Message
// lines are joined with " | ".
func FormatNotification(n Notification, colorEnabled bool) string {
	var sb strings.Builder

	var typeIndicator, color, resetColor string
	if colorEnabled {
		resetColor = "\033[0m"
	}

	switch n.Type {
	case NotificationTrade:
		typeIndicator = "TRADE"
		if colorEnabled {
			color = "\033[36m" // Cyan
		}
	case NotificationRisk:
		typeIndicator = "RISK"
		if colorEnabled {
			color = "\033[33m" // Yellow
		}
	case NotificationRegime:
		typeIndicator = "REGIME"
		if colorEnabled {
			color = "\033[35m" // Magenta
		}
	case NotificationError:
		typeIndicator = "ERROR"
		if colorEnabled {
			color = "\033[31m" // Red
		}
	default:
		typeIndicator = "INFO"
	}

	sb.WriteString(fmt.Sprintf("%s[%s] %s%s", color, n.Timestamp.Format("2006-01-02 15:04"), typeIndicator, resetColor))
	if n.Title != "" {
		sb.WriteString(" | " + n.Title)
	}
	if n.Message != "" {
		sb.WriteString(" | " + strings.ReplaceAll(n.Message, "\n", " | "))
	}
	return sb.String()
}
