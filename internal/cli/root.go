package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"regime-trader/internal/config"
	"regime-trader/internal/decision"
	"regime-trader/internal/logging"
	"regime-trader/internal/metrics"
	"regime-trader/internal/notify"
	"regime-trader/internal/risk"
	"regime-trader/internal/store"
	"regime-trader/internal/strategy"
	"regime-trader/internal/trading"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// skipConfigAnnotation marks commands that run without loading config.toml.
const skipConfigAnnotation = "skip-config"

// App holds the application dependencies.
type App struct {
	ConfigDir string
	Config    *config.Config
	Logger    zerolog.Logger
	Metrics   *metrics.Collector
}

// NewRootCmd creates the root command for the CLI. Configuration and the
// logger are loaded before each command runs, from the directory named by
// --config.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Regime Trader - regime-based crypto trading backtester",
		Long: `Regime Trader classifies each 5-minute bar into one of ten market regimes,
from extreme panic to extreme greed, and runs the regime's entry strategy
through volatility, sizing, and risk checks.

Use it to inspect decisions on historical data, replay a series through the
backtest engine, and sweep fee rates in parallel.

Use 'trader help <command>' for more information about a command.
Use 'trader examples' to see common workflows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app.ConfigDir, _ = cmd.Flags().GetString("config")
			if app.ConfigDir == "" {
				app.ConfigDir = config.DefaultConfigDir()
			}
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			cfg, err := config.Load(app.ConfigDir)
			if err != nil {
				return err
			}
			app.Config = cfg
			app.Logger = logging.NewLoggerWithConfig(cfg.LogConfig())

			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			app.Logger.Debug().Str("config_dir", app.ConfigDir).Msg("Configuration loaded")
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/regime-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	addAnalysisCommands(rootCmd, app)
	addBacktestCommands(rootCmd, app)
	addHelpCommands(rootCmd)

	return rootCmd
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Regime Trader v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Show configuration file path",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := config.ConfigPath(app.ConfigDir)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a configuration template",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			force, _ := cmd.Flags().GetBool("force")
			path, err := config.WriteTemplate(app.ConfigDir, force)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Success("Configuration written to %s", path)
			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "overwrite existing files")
	cmd.AddCommand(initCmd)

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Risk Configuration")
	output.Printf("  Max Position:     %.1f%%\n", cfg.Risk.MaxPositionPct*100)
	output.Printf("  Max Trade Risk:   %.1f%%\n", cfg.Risk.MaxTradeRiskPct*100)
	output.Printf("  Daily Loss Limit: %.1f%%\n", cfg.Risk.DailyLossLimitPct*100)
	output.Printf("  Max Trades/Day:   %d\n", cfg.Risk.MaxTradesPerDay)
	output.Printf("  Kelly History:    %d\n", cfg.Risk.HistorySize)
	output.Println()

	output.Bold("Trading Configuration")
	output.Printf("  Ticker:           %s\n", cfg.Trading.Ticker)
	output.Printf("  Fee Rate:         %.4f%%\n", cfg.Trading.FeeRate*100)
	output.Printf("  Min Order:        %s\n", FormatPrice(cfg.Trading.MinOrderAmount))
	output.Printf("  Max Positions:    %d\n", cfg.Trading.MaxConcurrentPositions)
	output.Printf("  Initial Balance:  %s\n", FormatPrice(cfg.Trading.InitialBalance))
	output.Println()

	output.Bold("Strategy Configuration")
	output.Printf("  Active Stages:    %v\n", cfg.Strategy.ActiveStages)
	output.Printf("  TP / SL (ATR):    %.1f / %.1f\n", cfg.Strategy.TPATRMult, cfg.Strategy.SLATRMult)
	output.Printf("  Volatility Band:  %.3f - %.3f\n", cfg.Strategy.MinVolatility, cfg.Strategy.MaxVolatility)
	output.Printf("  Kelly Min Trades: %d\n", cfg.Strategy.KellyMinTrades)
	output.Println()

	output.Bold("Backtest Configuration")
	output.Printf("  Lookback:         %d bars\n", cfg.Backtest.Lookback)
	output.Printf("  Bars per Day:     %d\n", cfg.Backtest.BarsPerDay)
	output.Printf("  Report:           %s (save: %v)\n", cfg.Backtest.ReportPath, cfg.Backtest.SaveResults)
	output.Printf("  Staged Exits:     %v\n", cfg.Backtest.StagedExits)
	output.Printf("  Position Cap:     %d (0 = none)\n", cfg.Backtest.MaxPositions)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:          %v\n", cfg.Notifications.Enabled)
	output.Printf("  Level:            %s\n", cfg.Notifications.Level)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Database:         %s\n", cfg.Storage.DBPath)
	output.Printf("  Log File:         %s\n", cfg.Logging.File)
}

// newDecider builds an orchestrator and its risk gate from the loaded
// configuration. Each call returns fresh state.
func (app *App) newDecider() (*decision.Orchestrator, *risk.Gate, error) {
	policy, err := app.Config.Policy()
	if err != nil {
		return nil, nil, err
	}
	gate := risk.NewGate(app.Config.RiskLimits(), risk.WithLogger(app.Logger))
	opts := []decision.Option{
		decision.WithLogger(app.Logger),
		decision.WithConfig(app.Config.DecisionConfig()),
	}
	if app.Metrics != nil {
		opts = append(opts, decision.WithRecorder(app.Metrics))
	}
	return decision.New(strategy.NewTable(policy), gate, opts...), gate, nil
}

// deciderFactory adapts newDecider for the optimizer. The policy was
// validated at load time.
func (app *App) deciderFactory() trading.DeciderFactory {
	return func() (trading.Decider, *risk.Gate) {
		d, gate, err := app.newDecider()
		if err != nil {
			panic(fmt.Sprintf("building decider: %v", err))
		}
		return d, gate
	}
}

// newNotifier returns the notifier configured for this run. Events always go
// to the log; terminal echo is added when requested.
func (app *App) newNotifier(output *Output, echo bool, cmd *cobra.Command) notify.Notifier {
	if !app.Config.Notifications.Enabled {
		return notify.NewNoOpNotifier()
	}
	mn := notify.NewMultiNotifier(notify.ParseLevel(app.Config.Notifications.Level), notify.NewLogChannel(app.Logger))
	if echo && !output.IsJSON() {
		mn.AddChannel(notify.NewTerminalChannel(cmd.ErrOrStderr(), output.ColorEnabled()))
	}
	return mn
}

// openStore opens the SQLite database named in the configuration.
func (app *App) openStore() (store.DataStore, error) {
	s, err := store.NewSQLiteStore(app.Config.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", app.Config.Storage.DBPath, err)
	}
	return s, nil
}
