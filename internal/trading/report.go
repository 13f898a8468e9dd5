package trading

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"regime-trader/internal/models"
)

// Report is the persisted summary of a backtest run.
type Report struct {
	RunID       string          `json:"run_id"`
	Metrics     BacktestMetrics `json:"metrics"`
	Trades      []models.Trade  `json:"trades"`
	EquityCurve []EquityPoint   `json:"equity_curve"`
	Timestamp   time.Time       `json:"timestamp"`
}

// BuildReport trims a result to its last ReportTradeLimit trades and every
// ReportEquityStride-th equity point.
func BuildReport(result *BacktestResult) Report {
	trades := result.Trades
	if len(trades) > ReportTradeLimit {
		trades = trades[len(trades)-ReportTradeLimit:]
	}

	equity := make([]EquityPoint, 0, len(result.EquityCurve)/ReportEquityStride+1)
	for i := 0; i < len(result.EquityCurve); i += ReportEquityStride {
		equity = append(equity, result.EquityCurve[i])
	}

	return Report{
		RunID:       result.RunID,
		Metrics:     result.Metrics,
		Trades:      append([]models.Trade(nil), trades...),
		EquityCurve: equity,
		Timestamp:   time.Now().UTC(),
	}
}

// SaveJSON writes v as indented JSON, creating parent directories.
func SaveJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// LoadReport reads a report written by SaveJSON.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &r, nil
}
