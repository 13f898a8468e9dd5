package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"regime-trader/internal/analysis/regime"
	"regime-trader/internal/decision"
	"regime-trader/pkg/utils"
)

// addAnalysisCommands adds analysis commands.
func addAnalysisCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newAnalyzeCmd(app))
}

func newAnalyzeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <csv>",
		Short: "Run one decision cycle on the latest bar",
		Long: `Classify the latest bar of a series and run the full decision pipeline on it:
volatility filter, regime classification, the regime's strategy, dynamic
TP/SL, and the risk gate.

The gate starts empty, so sizing uses the default Kelly statistics.`,
		Example: `  trader analyze sample_data.csv
  trader analyze sample_data.csv --balance 5000000 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			candles, err := loadCandles(app, args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}

			balance, _ := cmd.Flags().GetFloat64("balance")
			if balance <= 0 {
				balance = app.Config.Trading.InitialBalance
			}

			decider, _, err := app.newDecider()
			if err != nil {
				return err
			}
			d, err := decider.DecideOrder(candles, balance)
			if err != nil {
				output.Error("Decision failed: %v", err)
				return err
			}
			_, scores := regime.Score(d.Snapshot)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"time":     candles[len(candles)-1].Timestamp,
					"balance":  balance,
					"decision": d,
					"scores":   scores,
				})
			}

			displayDecision(output, d, scores, balance)
			output.Dim("As of %s, %d bars", FormatDateTime(candles[len(candles)-1].Timestamp), len(candles))
			return nil
		},
	}

	cmd.Flags().Float64("balance", 0, "account balance (default: trading.initial_balance)")

	return cmd
}

func displayDecision(output *Output, d *decision.Decision, scores regime.Scores, balance float64) {
	output.Bold("Market Regime")
	output.Printf("  Stage:        %s\n", d.StageName)
	output.Printf("  Price:        %s\n", FormatPrice(d.Price))
	output.Printf("  Volatility:   %.4f\n", d.Volatility)
	if d.FilterReason == "" {
		output.Printf("  Scores:       momentum %.2f → %d, trend %d, vol %d, volume %d, osc %d (raw %.2f)\n",
			scores.Momentum, scores.MomentumScore, scores.TrendScore, scores.VolScore,
			scores.VolumeBoost, scores.OscAdjust, scores.Raw)
	}
	output.Println()

	s := d.Snapshot
	output.Bold("Snapshot")
	output.Printf("  Change 1D/3D/7D: %s / %s / %s\n",
		output.FormatPercent(s.Change1D), output.FormatPercent(s.Change3D), output.FormatPercent(s.Change7D))
	output.Printf("  RSI:             %.2f\n", s.RSI)
	output.Printf("  MACD / Signal:   %.2f / %.2f\n", s.MACD, s.MACDSignal)
	output.Printf("  EMA20 vs 50:     %.2f\n", s.EMA20vs50)
	output.Printf("  EMA50 vs 100:    %.2f\n", s.EMA50vs100)
	output.Printf("  BB Width:        %.4f\n", s.BBWidth)
	output.Printf("  ATR:             %.2f\n", s.ATR)
	output.Printf("  Relative Volume: %.2f\n", s.RelativeVolume)
	output.Printf("  Stoch K / D:     %.2f / %.2f\n", s.StochK, s.StochD)
	output.Println()

	output.Bold("Decision")
	output.Printf("  Outcome:      %s\n", d.Outcome)
	switch {
	case d.Plan != nil:
		notional := d.Plan.Notional(d.Price)
		output.Success("  BUY %s (%s, %.1f%% of %s)",
			utils.FormatQuantity(d.Plan.Quantity), FormatPrice(notional),
			notional/balance*100, FormatPrice(balance))
		output.Printf("  Levels:       %s\n", FormatLevels(d.Plan))
		output.Printf("  Note:         %s\n", d.Plan.Note)
		if d.Kelly {
			output.Dim("  Sized by Kelly statistics")
		}
	case d.Rejection != nil:
		output.Warning("  Rejected: %s", d.Rejection.Error())
	case d.FilterReason != "":
		output.Warning("  Filtered: %s", d.FilterReason)
	default:
		output.Printf("  %s\n", noPlanReason(d.Outcome))
	}
}

func noPlanReason(o decision.Outcome) string {
	switch o {
	case decision.OutcomeNoStrategy:
		return "No active strategy for this regime"
	case decision.OutcomeNoSignal:
		return "Strategy conditions not met"
	}
	return fmt.Sprintf("No order (%s)", o)
}
