package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Regime Trader Configuration

[risk]
# Maximum position value as a fraction of balance
max_position_pct = 0.20
# Maximum loss at the stop as a fraction of balance
max_trade_risk_pct = 0.02
# Daily realized loss limit as a fraction of the PnL base
daily_loss_limit_pct = 0.05
# Maximum entries per day
max_trades_per_day = 20
# Closed trade returns kept for Kelly sizing
history_size = 50

[trading]
ticker = "KRW-BTC"
# Fee charged on each side of a trade
fee_rate = 0.0005
# Cash must exceed this before a new entry is attempted
min_order_amount = 5500.0
# Maximum simultaneously open positions, 0 for no cap
max_concurrent_positions = 3
initial_balance = 1000000.0

[strategy]
# Regime indices (0-9) allowed to open positions
active_stages = [6, 7, 8]
# Take profit and stop loss distances in ATR units
tp_atr_mult = 2.0
sl_atr_mult = 1.5
# Annualized daily volatility band for entries
min_volatility = 0.015
max_volatility = 0.08
# Closed trades needed before Kelly sizing replaces the defaults
kelly_min_trades = 10

[backtest]
# Bars of history required before the first decision
lookback = 60
# 5-minute bars per day
bars_per_day = 288
save_results = true
report_path = "backtest_results.json"
# Scale out of winners at fixed profit levels
staged_exits = false
# Cap on simultaneously open positions (0 = no cap)
max_positions = 0

[logging]
# Log level: debug, info, warn, error
level = "info"
# Log file path (defaults to <config dir>/logs/trader.log)
# file = ""
console = true
# Rotation: size in MB, backup count, age in days
max_size = 100
max_backups = 7
max_age = 30

[notifications]
enabled = true
# Notification level: all, trades_only, errors_only
level = "all"

[storage]
# SQLite database path (defaults to <config dir>/trader.db)
# db_path = ""
`

const envTemplate = `# Regime Trader environment overrides
# MAX_POSITION_PCT=0.20
# MAX_TRADE_RISK_PCT=0.02
# DAILY_LOSS_LIMIT_PCT=0.05
# FEE_RATE=0.0005
# MIN_ORDER_AMOUNT=5500
# MAX_CONCURRENT_POSITIONS=3
# BACKTEST_LOOKBACK=60
# LOG_LEVEL=info
# LOG_FILE=
`

// WriteTemplate writes config.toml and a commented .env template into
// configDir and returns the config path. Existing files are kept unless
// force is set.
func WriteTemplate(configDir string, force bool) (string, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	path := ConfigPath(configDir)
	if err := writeIfAbsent(path, configTemplate, 0644, force); err != nil {
		return "", fmt.Errorf("writing config template: %w", err)
	}
	if err := writeIfAbsent(filepath.Join(configDir, ".env.example"), envTemplate, 0600, force); err != nil {
		return "", fmt.Errorf("writing env template: %w", err)
	}

	return path, nil
}

func writeIfAbsent(path, content string, perm os.FileMode, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}
	return os.WriteFile(path, []byte(content), perm)
}
