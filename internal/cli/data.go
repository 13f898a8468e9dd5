package cli

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"regime-trader/internal/analysis/indicators"
	apperrors "regime-trader/internal/errors"
	"regime-trader/internal/marketdata"
	"regime-trader/internal/models"
)

// addDataCommands adds market data commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newGenerateCmd(app))
	rootCmd.AddCommand(newIndicatorsCmd(app))
}

func newGenerateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic 5-minute OHLCV series",
		Long: `Generate a seeded synthetic 5-minute OHLCV series and write it as CSV.

The same seed always produces the same series, so generated files are
suitable as backtest fixtures.`,
		Example: `  trader generate
  trader generate --out data/btc.csv --periods 10000 --seed 7`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			out, _ := cmd.Flags().GetString("out")
			gen := marketdata.DefaultGenerateConfig()
			gen.Periods, _ = cmd.Flags().GetInt("periods")
			gen.Seed, _ = cmd.Flags().GetInt64("seed")
			gen.StartPrice, _ = cmd.Flags().GetFloat64("start-price")

			if gen.Periods <= 0 {
				return fmt.Errorf("--periods must be positive")
			}
			if gen.StartPrice <= 0 {
				return fmt.Errorf("--start-price must be positive")
			}

			candles := marketdata.Generate(gen)
			if err := marketdata.WriteCSVFile(out, candles); err != nil {
				output.Error("Failed to write %s: %v", out, err)
				return err
			}

			first, last := candles[0], candles[len(candles)-1]
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"path":  out,
					"bars":  len(candles),
					"from":  first.Timestamp,
					"to":    last.Timestamp,
					"first": first.Close,
					"last":  last.Close,
				})
			}
			output.Success("Wrote %d bars to %s", len(candles), out)
			output.Dim("  %s → %s, close %s → %s",
				FormatDateTime(first.Timestamp), FormatDateTime(last.Timestamp),
				FormatPrice(first.Close), FormatPrice(last.Close))
			return nil
		},
	}

	def := marketdata.DefaultGenerateConfig()
	cmd.Flags().StringP("out", "o", "sample_data.csv", "output CSV path")
	cmd.Flags().Int("periods", def.Periods, "number of bars")
	cmd.Flags().Int64("seed", def.Seed, "random seed")
	cmd.Flags().Float64("start-price", def.StartPrice, "first close price")

	return cmd
}

func newIndicatorsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indicators <csv>",
		Short: "Show the latest value of every indicator",
		Long: `Compute every indicator the market snapshot uses, in parallel, and show the
most recent finite value of each series.`,
		Example: `  trader indicators sample_data.csv
  trader indicators sample_data.csv --workers 8 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			candles, err := loadCandles(app, args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}

			workers, _ := cmd.Flags().GetInt("workers")
			results, err := indicators.DefaultEngine(workers).CalculateAll(ctx, candles)
			if err != nil {
				output.Error("Indicator calculation failed: %v", err)
				return err
			}

			latest := make(map[string]*float64, len(results))
			for _, name := range results.Names() {
				v := indicators.LastFinite(results[name], math.NaN())
				if math.IsNaN(v) {
					latest[name] = nil
					continue
				}
				latest[name] = &v
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"time":       candles[len(candles)-1].Timestamp,
					"bars":       len(candles),
					"indicators": latest,
				})
			}

			output.Bold("Indicators at %s (%d bars)", FormatDateTime(candles[len(candles)-1].Timestamp), len(candles))
			output.Println()
			table := NewTable(output, "INDICATOR", "VALUE")
			for _, name := range results.Names() {
				value := "n/a"
				if v := latest[name]; v != nil {
					value = fmt.Sprintf("%.4f", *v)
				}
				table.AddRow(name, value)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntP("workers", "w", 4, "parallel workers")

	return cmd
}

// loadCandles reads a CSV series and logs its span.
func loadCandles(app *App, path string) ([]models.Candle, error) {
	candles, err := marketdata.LoadCSVFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("loading %s: %w", path, apperrors.ErrInsufficientData)
	}
	app.Logger.Debug().
		Str("path", path).
		Int("bars", len(candles)).
		Time("from", candles[0].Timestamp).
		Time("to", candles[len(candles)-1].Timestamp).
		Msg("Loaded candles")
	return candles, nil
}
