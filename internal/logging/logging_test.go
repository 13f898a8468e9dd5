package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"":      zerolog.InfoLevel,
		"loud":  zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trader.log")
	logger := NewLoggerWithConfig(LogConfig{Level: "debug", File: true, FilePath: path, MaxSize: 1})
	logger.Info().Msg("hello")

	if logger.GetLevel() != zerolog.DebugLevel {
		t.Errorf("level = %v", logger.GetLevel())
	}
}

func TestEventHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	LogRiskRejection(logger, "max_position_pct", 0.25, 0.2)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if entry["event"] != "risk_rejection" || entry["rule"] != "max_position_pct" {
		t.Errorf("unexpected entry: %v", entry)
	}

	buf.Reset()
	LogDecision(logger, 6, "6: Bullish Turn", 0.5, "")
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if entry["message"] != "Order proposed" {
		t.Errorf("message = %v", entry["message"])
	}
}

func TestContextLogger(t *testing.T) {
	if FromContext(context.Background()).GetLevel() != zerolog.Disabled {
		t.Error("expected Nop logger without context value")
	}

	var buf bytes.Buffer
	logger := WithRunID(zerolog.New(&buf), "run-1")
	ctx := WithLogger(context.Background(), logger)
	ctxLogger := FromContext(ctx)
	ctxLogger.Info().Msg("x")
	if !bytes.Contains(buf.Bytes(), []byte(`"run_id":"run-1"`)) {
		t.Errorf("missing run_id: %s", buf.String())
	}
}
