package notify

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"regime-trader/internal/models"
)

type captureChannel struct {
	got []Notification
	err error
}

func (c *captureChannel) Name() string    { return "capture" }
func (c *captureChannel) IsEnabled() bool { return true }
func (c *captureChannel) Send(_ context.Context, n Notification) error {
	c.got = append(c.got, n)
	return c.err
}

func TestLevelFiltering(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		level NotificationLevel
		want  []NotificationType
	}{
		{LevelAll, []NotificationType{NotificationTrade, NotificationRisk, NotificationRegime}},
		{LevelTradesOnly, []NotificationType{NotificationTrade}},
		{LevelErrorsOnly, []NotificationType{NotificationRisk}},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			ch := &captureChannel{}
			mn := NewMultiNotifier(tt.level, ch)

			if err := mn.SendExit(ctx, &models.Trade{Type: models.TradeTakeProfit, Price: 52_000, Quantity: 1, PnL: 1_900}); err != nil {
				t.Fatalf("SendExit: %v", err)
			}
			if err := mn.SendRiskAlert(ctx, "max_position_pct", 0.25, 0.2); err != nil {
				t.Fatalf("SendRiskAlert: %v", err)
			}
			if err := mn.SendRegimeChange(ctx, 5, 7, "7: Weak Bull"); err != nil {
				t.Fatalf("SendRegimeChange: %v", err)
			}

			var types []NotificationType
			for _, n := range ch.got {
				types = append(types, n.Type)
				if n.Timestamp.IsZero() {
					t.Errorf("%s notification has no timestamp", n.Type)
				}
			}
			if !reflect.DeepEqual(types, tt.want) {
				t.Errorf("delivered %v, want %v", types, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want NotificationLevel
	}{
		{"Trades_Only", LevelTradesOnly},
		{" errors_only ", LevelErrorsOnly},
		{"verbose", LevelAll},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSendCollectsChannelErrors(t *testing.T) {
	mn := NewMultiNotifier(LevelAll, &captureChannel{err: errors.New("down")}, &captureChannel{})
	err := mn.Send(context.Background(), Notification{Type: NotificationInfo, Title: "hi"})
	if err == nil {
		t.Fatal("expected an error from the failing channel")
	}
	if !strings.Contains(err.Error(), "capture: down") {
		t.Errorf("error %q does not name the channel", err)
	}
}

func TestEntryMessage(t *testing.T) {
	ch := &captureChannel{}
	mn := NewMultiNotifier(LevelAll, ch)
	pos := &models.Position{ID: "p1", Ticker: "KRW-BTC", Quantity: 2, EntryPrice: 50_000, TakeProfit: 52_000, StopLoss: 49_000, EntryTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	if err := mn.SendEntry(context.Background(), pos, "7: Weak Bull"); err != nil {
		t.Fatalf("SendEntry: %v", err)
	}
	if len(ch.got) != 1 {
		t.Fatalf("got %d notifications, want 1", len(ch.got))
	}
	n := ch.got[0]
	if n.Title != "BUY KRW-BTC" {
		t.Errorf("Title = %q", n.Title)
	}
	for _, want := range []string{"Entry: ₩50,000", "TP: ₩52,000"} {
		if !strings.Contains(n.Message, want) {
			t.Errorf("message %q missing %q", n.Message, want)
		}
	}
	if !n.Timestamp.Equal(pos.EntryTime) {
		t.Errorf("Timestamp = %v, want entry time", n.Timestamp)
	}
	if n.Data["position_id"] != "p1" {
		t.Errorf("position_id = %v", n.Data["position_id"])
	}
}

func TestTerminalChannel(t *testing.T) {
	var buf bytes.Buffer
	tc := NewTerminalChannel(&buf, false)
	mn := NewMultiNotifier(LevelAll, tc)

	if err := mn.SendRiskAlert(context.Background(), "daily_loss_limit_pct", -60_000, -50_000); err != nil {
		t.Fatalf("SendRiskAlert: %v", err)
	}
	line := buf.String()
	if !strings.Contains(line, "RISK | Risk limit hit | Rule: daily_loss_limit_pct") {
		t.Errorf("unexpected line %q", line)
	}
	if n := strings.Count(line, "\n"); n != 1 {
		t.Errorf("wrote %d lines, want 1", n)
	}

	tc.SetEnabled(false)
	if err := mn.SendRiskAlert(context.Background(), "x", 0, 0); err != nil {
		t.Fatalf("SendRiskAlert: %v", err)
	}
	if buf.String() != line {
		t.Errorf("disabled channel still wrote: %q", buf.String())
	}
}

func TestLogChannel(t *testing.T) {
	var buf bytes.Buffer
	mn := NewMultiNotifier(LevelAll, NewLogChannel(zerolog.New(&buf)))

	if err := mn.SendRegimeChange(context.Background(), 3, 8, "8: Strong Bull"); err != nil {
		t.Fatalf("SendRegimeChange: %v", err)
	}
	for _, want := range []string{`"type":"regime"`, `"to":8`, `"message":"Regime change"`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log %s missing %s", buf.String(), want)
		}
	}
}
