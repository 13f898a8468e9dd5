// Package config provides configuration management for the trading application.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"regime-trader/internal/decision"
	apperrors "regime-trader/internal/errors"
	"regime-trader/internal/logging"
	"regime-trader/internal/risk"
	"regime-trader/internal/strategy"
	"regime-trader/internal/trading"
)

// Config holds all application configuration.
type Config struct {
	Risk          RiskConfig         `mapstructure:"risk"`
	Trading       TradingConfig      `mapstructure:"trading"`
	Strategy      StrategyConfig     `mapstructure:"strategy"`
	Backtest      BacktestConfig     `mapstructure:"backtest"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Storage       StorageConfig      `mapstructure:"storage"`
}

// RiskConfig holds risk gate limits, as fractions of balance.
type RiskConfig struct {
	MaxPositionPct    float64 `mapstructure:"max_position_pct"`
	MaxTradeRiskPct   float64 `mapstructure:"max_trade_risk_pct"`
	DailyLossLimitPct float64 `mapstructure:"daily_loss_limit_pct"`
	MaxTradesPerDay   int     `mapstructure:"max_trades_per_day"`
	HistorySize       int     `mapstructure:"history_size"`
}

// TradingConfig holds account and execution settings.
type TradingConfig struct {
	Ticker                 string  `mapstructure:"ticker"`
	FeeRate                float64 `mapstructure:"fee_rate"`
	MinOrderAmount         float64 `mapstructure:"min_order_amount"`
	MaxConcurrentPositions int     `mapstructure:"max_concurrent_positions"`
	InitialBalance         float64 `mapstructure:"initial_balance"`
}

// StrategyConfig holds the regime policy and level parameters.
type StrategyConfig struct {
	ActiveStages   []int   `mapstructure:"active_stages"`
	TPATRMult      float64 `mapstructure:"tp_atr_mult"`
	SLATRMult      float64 `mapstructure:"sl_atr_mult"`
	MinVolatility  float64 `mapstructure:"min_volatility"`
	MaxVolatility  float64 `mapstructure:"max_volatility"`
	KellyMinTrades int     `mapstructure:"kelly_min_trades"`
}

// BacktestConfig holds replay settings.
type BacktestConfig struct {
	Lookback    int    `mapstructure:"lookback"`
	BarsPerDay  int    `mapstructure:"bars_per_day"`
	SaveResults bool   `mapstructure:"save_results"`
	ReportPath  string `mapstructure:"report_path"`
	StagedExits bool   `mapstructure:"staged_exits"`

	// MaxPositions caps open positions during a replay. Zero means no cap.
	MaxPositions int `mapstructure:"max_positions"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	Console    bool   `mapstructure:"console"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"` // all, trades_only, errors_only
}

// StorageConfig holds the database location.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// envBindings maps config keys to the environment variables that override
// them.
var envBindings = map[string]string{
	"risk.max_position_pct":            "MAX_POSITION_PCT",
	"risk.max_trade_risk_pct":          "MAX_TRADE_RISK_PCT",
	"risk.daily_loss_limit_pct":        "DAILY_LOSS_LIMIT_PCT",
	"trading.fee_rate":                 "FEE_RATE",
	"trading.min_order_amount":         "MIN_ORDER_AMOUNT",
	"trading.max_concurrent_positions": "MAX_CONCURRENT_POSITIONS",
	"backtest.lookback":                "BACKTEST_LOOKBACK",
	"logging.level":                    "LOG_LEVEL",
	"logging.file":                     "LOG_FILE",
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "regime-trader")
	}
	return filepath.Join(home, ".config", "regime-trader")
}

// ConfigPath returns the config file location in configDir.
func ConfigPath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("risk.max_position_pct", risk.DefaultMaxPositionPct)
	v.SetDefault("risk.max_trade_risk_pct", risk.DefaultMaxTradeRiskPct)
	v.SetDefault("risk.daily_loss_limit_pct", risk.DefaultDailyLossLimitPct)
	v.SetDefault("risk.max_trades_per_day", risk.DefaultMaxTradesPerDay)
	v.SetDefault("risk.history_size", risk.DefaultHistorySize)

	v.SetDefault("trading.ticker", trading.DefaultTicker)
	v.SetDefault("trading.fee_rate", 0.0005)
	v.SetDefault("trading.min_order_amount", trading.DefaultMinOrderAmount)
	v.SetDefault("trading.max_concurrent_positions", 3)
	v.SetDefault("trading.initial_balance", 1_000_000)

	v.SetDefault("strategy.active_stages", []int{6, 7, 8})
	v.SetDefault("strategy.tp_atr_mult", strategy.DefaultTPMultiplier)
	v.SetDefault("strategy.sl_atr_mult", strategy.DefaultSLMultiplier)
	v.SetDefault("strategy.min_volatility", strategy.DefaultMinVolatility)
	v.SetDefault("strategy.max_volatility", strategy.DefaultMaxVolatility)
	v.SetDefault("strategy.kelly_min_trades", risk.DefaultKellyMinTrades)

	v.SetDefault("backtest.lookback", trading.DefaultLookback)
	v.SetDefault("backtest.bars_per_day", trading.DefaultBarsPerDay)
	v.SetDefault("backtest.save_results", true)
	v.SetDefault("backtest.report_path", "backtest_results.json")
	v.SetDefault("backtest.staged_exits", false)
	v.SetDefault("backtest.max_positions", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", filepath.Join(configDir, "logs", "trader.log"))
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.level", "all")

	v.SetDefault("storage.db_path", filepath.Join(configDir, "trader.db"))
}

// Default returns the built-in configuration for configDir, without reading
// files or the environment.
func Default(configDir string) *Config {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	v := viper.New()
	setDefaults(v, configDir)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is created from the template and defaults apply. A .env file
// in configDir or the working directory is loaded before environment
// overrides are read; variables already set in the environment win.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	if err := loadDotEnv(filepath.Join(configDir, ".env"), ".env"); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, configDir)
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	applyEnvOverrides(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("loading config.toml: %w: %w", apperrors.ErrConfigInvalid, err)
		}
		if _, err := WriteTemplate(configDir, false); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w: %w", apperrors.ErrConfigInvalid, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func applyEnvOverrides(v *viper.Viper) {
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	invalid := func(field string, value interface{}, msg string) error {
		return fmt.Errorf("%w: %w", apperrors.ErrConfigInvalid, apperrors.NewValidationError(field, value, msg))
	}

	r := c.Risk
	if r.MaxPositionPct <= 0 || r.MaxPositionPct > 1 {
		return invalid("risk.max_position_pct", r.MaxPositionPct, "must be in (0, 1]")
	}
	if r.MaxTradeRiskPct <= 0 || r.MaxTradeRiskPct > 0.1 {
		return invalid("risk.max_trade_risk_pct", r.MaxTradeRiskPct, "must be in (0, 0.1]")
	}
	if r.DailyLossLimitPct <= 0 || r.DailyLossLimitPct > 0.5 {
		return invalid("risk.daily_loss_limit_pct", r.DailyLossLimitPct, "must be in (0, 0.5]")
	}
	if r.MaxTradesPerDay <= 0 {
		return invalid("risk.max_trades_per_day", r.MaxTradesPerDay, "must be positive")
	}
	if r.HistorySize <= 0 {
		return invalid("risk.history_size", r.HistorySize, "must be positive")
	}

	t := c.Trading
	if t.FeeRate < 0 || t.FeeRate >= 0.1 {
		return invalid("trading.fee_rate", t.FeeRate, "must be in [0, 0.1)")
	}
	if t.MinOrderAmount < 5000 {
		return invalid("trading.min_order_amount", t.MinOrderAmount, "must be at least 5000")
	}
	if t.MaxConcurrentPositions < 0 {
		return invalid("trading.max_concurrent_positions", t.MaxConcurrentPositions, "must not be negative")
	}
	if t.InitialBalance <= 0 {
		return invalid("trading.initial_balance", t.InitialBalance, "must be positive")
	}

	s := c.Strategy
	if _, err := strategy.PolicyFromInts(s.ActiveStages); err != nil {
		return invalid("strategy.active_stages", s.ActiveStages, err.Error())
	}
	if s.TPATRMult <= 0 || s.SLATRMult <= 0 {
		return invalid("strategy.tp_atr_mult", s.TPATRMult, "ATR multipliers must be positive")
	}
	if s.MinVolatility < 0 || s.MaxVolatility <= s.MinVolatility {
		return invalid("strategy.max_volatility", s.MaxVolatility, "must exceed min_volatility")
	}
	if s.KellyMinTrades < 0 {
		return invalid("strategy.kelly_min_trades", s.KellyMinTrades, "must not be negative")
	}

	b := c.Backtest
	if b.Lookback <= 0 {
		return invalid("backtest.lookback", b.Lookback, "must be positive")
	}
	if b.BarsPerDay <= 0 {
		return invalid("backtest.bars_per_day", b.BarsPerDay, "must be positive")
	}
	if b.MaxPositions < 0 {
		return invalid("backtest.max_positions", b.MaxPositions, "must not be negative")
	}

	return nil
}

// RiskLimits returns the risk gate limits.
func (c *Config) RiskLimits() risk.Limits {
	limits := risk.DefaultLimits()
	limits.MaxPositionPct = c.Risk.MaxPositionPct
	limits.MaxTradeRiskPct = c.Risk.MaxTradeRiskPct
	limits.DailyLossLimitPct = c.Risk.DailyLossLimitPct
	limits.MaxTradesPerDay = c.Risk.MaxTradesPerDay
	limits.HistorySize = c.Risk.HistorySize
	return limits
}

// Policy returns the active-stage policy.
func (c *Config) Policy() (strategy.Policy, error) {
	return strategy.PolicyFromInts(c.Strategy.ActiveStages)
}

// DecisionConfig returns the orchestrator parameters.
func (c *Config) DecisionConfig() decision.Config {
	cfg := decision.DefaultConfig()
	cfg.TPMultiplier = c.Strategy.TPATRMult
	cfg.SLMultiplier = c.Strategy.SLATRMult
	cfg.Volatility.Min = c.Strategy.MinVolatility
	cfg.Volatility.Max = c.Strategy.MaxVolatility
	cfg.Volatility.BarsPerDay = c.Backtest.BarsPerDay
	cfg.KellyMinTrades = c.Strategy.KellyMinTrades
	return cfg
}

// BacktestConfig returns the engine configuration.
func (c *Config) BacktestConfig() trading.BacktestConfig {
	return trading.BacktestConfig{
		Ticker:         c.Trading.Ticker,
		InitialBalance: c.Trading.InitialBalance,
		FeeRate:        c.Trading.FeeRate,
		MinOrderAmount: c.Trading.MinOrderAmount,
		Lookback:       c.Backtest.Lookback,
		BarsPerDay:     c.Backtest.BarsPerDay,
		StagedExits:    c.Backtest.StagedExits,
		MaxPositions:   c.Backtest.MaxPositions,
	}
}

// LogConfig returns the logger configuration.
func (c *Config) LogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Logging.Level,
		Console:    c.Logging.Console,
		File:       c.Logging.File != "",
		FilePath:   c.Logging.File,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
	}
}
