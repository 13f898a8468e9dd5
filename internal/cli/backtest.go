package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sort"

	"github.com/spf13/cobra"

	"regime-trader/internal/analysis/regime"
	"regime-trader/internal/metrics"
	"regime-trader/internal/models"
	"regime-trader/internal/store"
	"regime-trader/internal/trading"
	"regime-trader/pkg/utils"
)

// candleTimeframe is the bar interval stored alongside replayed series.
const candleTimeframe = "5m"

// addBacktestCommands adds backtesting and run history commands.
func addBacktestCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newBacktestCmd(app))
	rootCmd.AddCommand(newOptimizeCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
}

func newBacktestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest <csv>",
		Short: "Replay a series through the decision pipeline",
		Long: `Replay a 5-minute OHLCV series bar by bar. Each bar first fills take-profit
and stop-loss exits, then runs one decision cycle on the history so far and
buys when a plan is approved.

The JSON report keeps the last 20 trades and every 10th equity point.`,
		Example: `  trader backtest sample_data.csv
  trader backtest sample_data.csv --fee 0.001 --staged-exits
  trader backtest sample_data.csv --save --metrics-out backtest.prom`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			candles, err := loadCandles(app, args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}

			cfg := app.Config.BacktestConfig()
			if cmd.Flags().Changed("initial") {
				cfg.InitialBalance, _ = cmd.Flags().GetFloat64("initial")
			}
			if cmd.Flags().Changed("fee") {
				cfg.FeeRate, _ = cmd.Flags().GetFloat64("fee")
			}
			if cmd.Flags().Changed("lookback") {
				cfg.Lookback, _ = cmd.Flags().GetInt("lookback")
			}
			if cmd.Flags().Changed("staged-exits") {
				cfg.StagedExits, _ = cmd.Flags().GetBool("staged-exits")
			}

			app.Metrics = metrics.NewCollector()
			decider, gate, err := app.newDecider()
			if err != nil {
				return err
			}
			echo, _ := cmd.Flags().GetBool("notify")
			engine := trading.NewBacktestEngine(cfg, decider,
				trading.WithGate(gate),
				trading.WithNotifier(app.newNotifier(output, echo, cmd)),
				trading.WithMetrics(app.Metrics),
				trading.WithLogger(app.Logger),
			)

			result, err := engine.Run(ctx, candles)
			if err != nil {
				output.Error("Backtest failed: %v", err)
				return err
			}

			reportPath, _ := cmd.Flags().GetString("report")
			if reportPath == "" && app.Config.Backtest.SaveResults {
				reportPath = app.Config.Backtest.ReportPath
			}
			if reportPath != "" {
				if err := trading.SaveJSON(reportPath, trading.BuildReport(result)); err != nil {
					output.Error("%v", err)
					return err
				}
			}

			if save, _ := cmd.Flags().GetBool("save"); save {
				if err := saveRun(ctx, app, cfg.Ticker, candles, result); err != nil {
					output.Error("Failed to save run: %v", err)
					return err
				}
			}

			if path, _ := cmd.Flags().GetString("metrics-out"); path != "" {
				if err := app.Metrics.WriteTextfile(path); err != nil {
					output.Error("Failed to write metrics: %v", err)
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(trading.BuildReport(result))
			}

			displayMetrics(output, result.Metrics)
			showTrades, _ := cmd.Flags().GetInt("trades")
			if showTrades > 0 && len(result.Trades) > 0 {
				trades := result.Trades
				if len(trades) > showTrades {
					trades = trades[len(trades)-showTrades:]
				}
				output.Println()
				displayTrades(output, trades)
			}
			output.Println()
			output.Dim("Run %s: %d bars in %s", result.RunID, len(candles), FormatDuration(result.Duration))
			if reportPath != "" {
				output.Dim("Report saved to %s", reportPath)
			}
			return nil
		},
	}

	cmd.Flags().Float64("initial", 0, "initial balance (default: trading.initial_balance)")
	cmd.Flags().Float64("fee", 0, "fee rate per side (default: trading.fee_rate)")
	cmd.Flags().Int("lookback", 0, "bars before the first decision (default: backtest.lookback)")
	cmd.Flags().String("report", "", "JSON report path (default: backtest.report_path when save_results is set)")
	cmd.Flags().Bool("save", false, "save the run and its bars to the database")
	cmd.Flags().String("metrics-out", "", "write Prometheus metrics in textfile format")
	cmd.Flags().Bool("staged-exits", false, "take partial profits at fixed levels")
	cmd.Flags().Bool("notify", false, "echo trade and regime events to stderr")
	cmd.Flags().Int("trades", 10, "number of recent trades to show")

	return cmd
}

func saveRun(ctx context.Context, app *App, ticker string, candles []models.Candle, result *trading.BacktestResult) error {
	s, err := app.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.SaveCandles(ctx, ticker, candleTimeframe, candles); err != nil {
		return err
	}
	if err := s.SaveBacktest(ctx, result); err != nil {
		return err
	}
	app.Logger.Info().Str("run_id", result.RunID).Msg("Backtest saved")
	return nil
}

func displayMetrics(output *Output, m trading.BacktestMetrics) {
	output.Bold("Backtest Results")
	output.Printf("  Initial Capital: %s\n", FormatPrice(m.InitialCapital))
	output.Printf("  Final Value:     %s\n", FormatPrice(m.FinalValue))
	output.Printf("  Total Return:    %s\n", output.FormatPercent(m.TotalReturnPct))
	output.Printf("  Max Drawdown:    %.2f%%\n", m.MaxDrawdownPct)
	output.Printf("  Sharpe Ratio:    %s\n", FormatRatio(m.SharpeRatio))
	output.Println()

	output.Bold("Trades")
	output.Printf("  Entries:         %d\n", m.TotalTrades)
	output.Printf("  Wins / Losses:   %d / %d (%.1f%%)\n", m.WinningTrades, m.LosingTrades, m.WinRatePct)
	output.Printf("  Avg Win / Loss:  %s / %s\n", utils.FormatKRW(m.AvgWin), utils.FormatKRW(m.AvgLoss))
	output.Printf("  Profit Factor:   %s\n", FormatRatio(m.ProfitFactor))
	output.Printf("  Fees Paid:       %s (%.2f%% of capital)\n", utils.FormatKRW(m.TotalFeesPaid), m.FeeImpactPct)

	if len(m.StageDistribution) > 0 {
		output.Println()
		displayStages(output, m.StageDistribution)
	}
}

func displayStages(output *Output, dist map[int]int) {
	stages := make([]int, 0, len(dist))
	total := 0
	for s, n := range dist {
		stages = append(stages, s)
		total += n
	}
	sort.Ints(stages)

	table := NewTable(output, "STAGE", "BARS", "SHARE")
	for _, s := range stages {
		table.AddRow(regime.StageName(regime.Index(s)), fmt.Sprintf("%d", dist[s]),
			fmt.Sprintf("%.1f%%", float64(dist[s])/float64(total)*100))
	}
	table.Render()
}

func displayTrades(output *Output, trades []models.Trade) {
	table := NewTable(output, "TIME", "TYPE", "QTY", "PRICE", "FEE", "PNL", "NOTE")
	for _, t := range trades {
		pnl := "-"
		if t.Type.IsExit() {
			pnl = output.FormatPnL(t.PnL)
		}
		table.AddRow(
			FormatDateTime(t.Time),
			string(t.Type),
			utils.FormatQuantity(t.Quantity),
			FormatPrice(t.Price),
			utils.FormatKRW(t.Fee),
			pnl,
			t.Note,
		)
	}
	table.Render()
}

func newOptimizeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize <csv>",
		Short: "Sweep fee rates and summarize market conditions",
		Long: `Run the base backtest and one backtest per fee rate in parallel, each with
its own engine and risk gate, then classify every bar of the series to
summarize the market conditions it covers.`,
		Example: `  trader optimize sample_data.csv
  trader optimize sample_data.csv --workers 8 --fees 0.0005,0.001`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			candles, err := loadCandles(app, args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}

			workers, _ := cmd.Flags().GetInt("workers")
			rates, _ := cmd.Flags().GetFloat64Slice("fees")
			app.Metrics = metrics.NewCollector()

			opt := trading.NewOptimizer(app.Config.BacktestConfig(), app.deciderFactory(), workers, app.Logger,
				trading.WithMetrics(app.Metrics))
			report, err := opt.Run(ctx, candles, rates)
			if err != nil {
				output.Error("Optimization failed: %v", err)
				return err
			}

			if out, _ := cmd.Flags().GetString("out"); out != "" {
				if err := trading.SaveJSON(out, report); err != nil {
					output.Error("%v", err)
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(report)
			}

			displayMetrics(output, report.BaseResults)
			output.Println()

			output.Bold("Fee Sensitivity")
			table := NewTable(output, "FEE", "RETURN", "SHARPE", "TRADES")
			for _, r := range report.FeeAnalysis {
				fee := fmt.Sprintf("%.4f%%", r.FeeRate*100)
				if r.FeeRate == report.BestFeeRate {
					fee += " *"
				}
				table.AddRow(fee, output.FormatPercent(r.TotalReturnPct), FormatRatio(r.SharpeRatio), fmt.Sprintf("%d", r.TotalTrades))
			}
			table.Render()
			output.Println()

			ma := report.MarketAnalysis
			output.Bold("Market Conditions (%d bars)", ma.TotalPeriods)
			output.Printf("  Avg RSI:             %.2f\n", ma.AvgRSI)
			output.Printf("  Avg Relative Volume: %.2f\n", ma.AvgVolumeRel)
			output.Printf("  Avg BB Width:        %.4f\n", ma.AvgBBWidth)
			output.Printf("  Avg Momentum:        %.2f%%\n", ma.AvgMomentum)
			output.Printf("  High Volatility:     %d bars (BB width > %.2f)\n", ma.VolatilityPeriods, trading.HighVolatilityBandWidth)
			output.Printf("  High Volume:         %d bars (relative volume > %.1f)\n", ma.HighVolumePeriods, trading.HighRelativeVolume)
			return nil
		},
	}

	cmd.Flags().IntP("workers", "w", runtime.NumCPU(), "parallel backtests")
	cmd.Flags().Float64Slice("fees", nil, "fee rates to sweep (default: 0.0001,0.0002,0.0005,0.001,0.002)")
	cmd.Flags().String("out", "optimization_results.json", "JSON report path, empty to skip")

	return cmd
}

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved backtest runs",
		Long:  "List backtest runs saved with 'trader backtest --save', newest first.",
		Example: `  trader history
  trader history --limit 5 --ticker KRW-BTC
  trader history show <run-id>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s, err := app.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			filter := store.RunFilter{}
			filter.Limit, _ = cmd.Flags().GetInt("limit")
			filter.Ticker, _ = cmd.Flags().GetString("ticker")

			runs, err := s.ListRuns(cmd.Context(), filter)
			if err != nil {
				output.Error("Failed to list runs: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Info("No saved runs")
				return nil
			}

			table := NewTable(output, "RUN", "TICKER", "STARTED", "RETURN", "TRADES", "WIN RATE", "MAX DD", "SHARPE")
			for _, r := range runs {
				table.AddRow(
					r.ID,
					r.Ticker,
					FormatDateTime(r.StartedAt),
					output.FormatPercent(r.Metrics.TotalReturnPct),
					fmt.Sprintf("%d", r.Metrics.TotalTrades),
					fmt.Sprintf("%.1f%%", r.Metrics.WinRatePct),
					fmt.Sprintf("%.2f%%", r.Metrics.MaxDrawdownPct),
					FormatRatio(r.Metrics.SharpeRatio),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntP("limit", "n", 20, "maximum runs to list")
	cmd.Flags().String("ticker", "", "only runs for this ticker")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a saved run and its trades",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s, err := app.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := s.GetRun(cmd.Context(), args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}
			trades, err := s.GetRunTrades(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"run":    run,
					"trades": trades,
				})
			}

			output.Bold("Run %s", run.ID)
			output.Dim("  %s, started %s, took %s", run.Ticker, FormatDateTime(run.StartedAt), FormatDuration(run.Duration))
			output.Println()
			displayMetrics(output, run.Metrics)
			if len(trades) > 0 {
				output.Println()
				displayTrades(output, trades)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s, err := app.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteRun(cmd.Context(), args[0]); err != nil {
				output.Error("%v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": args[0]})
			}
			output.Success("Deleted run %s", args[0])
			return nil
		},
	})

	return cmd
}
