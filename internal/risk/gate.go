package risk

import (
	"math"
	"sync"

	"github.com/rs/zerolog"

	apperrors "regime-trader/internal/errors"
	"regime-trader/internal/logging"
	"regime-trader/internal/models"
)

// Default limits.
const (
	DefaultMaxPositionPct    = 0.20
	DefaultMaxTradeRiskPct   = 0.02
	DefaultDailyLossLimitPct = 0.05
	DefaultMaxTradesPerDay   = 20
	DefaultHistorySize       = 50
	// DefaultPnLBase converts a realized PnL into the percent stored in the
	// outcome history.
	DefaultPnLBase = 1_000_000
)

// Kelly fallbacks used until enough outcomes are recorded.
const (
	DefaultKellyMinTrades = 10
	DefaultWinRate        = 0.5
	DefaultAvgWin         = 0.02
	DefaultAvgLoss        = 0.015
)

// Rule names reported in RiskError.Rule.
const (
	RuleNoPlan       = "no_plan"
	RuleBalance      = "balance"
	RulePositionSize = "max_position_pct"
	RuleDailyLoss    = "daily_loss_limit_pct"
	RuleTradeRisk    = "max_trade_risk_pct"
	RuleTradeCount   = "max_trades_per_day"
)

// Limits configures a Gate.
type Limits struct {
	MaxPositionPct    float64
	MaxTradeRiskPct   float64
	DailyLossLimitPct float64
	MaxTradesPerDay   int
	HistorySize       int
	PnLBase           float64
}

// DefaultLimits returns the standard account limits.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionPct:    DefaultMaxPositionPct,
		MaxTradeRiskPct:   DefaultMaxTradeRiskPct,
		DailyLossLimitPct: DefaultDailyLossLimitPct,
		MaxTradesPerDay:   DefaultMaxTradesPerDay,
		HistorySize:       DefaultHistorySize,
		PnLBase:           DefaultPnLBase,
	}
}

// State is a point-in-time copy of a gate's counters.
type State struct {
	DailyPnL    float64 `json:"daily_pnl"`
	TradesToday int     `json:"trades_today"`
	Outcomes    int     `json:"outcomes"`
}

// Gate enforces per-account admission limits and records closed-trade
// outcomes for Kelly sizing. All methods are safe for concurrent use.
type Gate struct {
	mu          sync.Mutex
	limits      Limits
	dailyPnL    float64
	tradesToday int
	history     *OutcomeHistory
	logger      zerolog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the gate logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// NewGate creates a gate with the given limits. Zero-valued limits take
// their defaults.
func NewGate(limits Limits, opts ...Option) *Gate {
	def := DefaultLimits()
	if limits.MaxPositionPct <= 0 {
		limits.MaxPositionPct = def.MaxPositionPct
	}
	if limits.MaxTradeRiskPct <= 0 {
		limits.MaxTradeRiskPct = def.MaxTradeRiskPct
	}
	if limits.DailyLossLimitPct <= 0 {
		limits.DailyLossLimitPct = def.DailyLossLimitPct
	}
	if limits.MaxTradesPerDay <= 0 {
		limits.MaxTradesPerDay = def.MaxTradesPerDay
	}
	if limits.HistorySize <= 0 {
		limits.HistorySize = def.HistorySize
	}
	if limits.PnLBase <= 0 {
		limits.PnLBase = def.PnLBase
	}
	g := &Gate{
		limits:  limits,
		history: NewOutcomeHistory(limits.HistorySize),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Limits returns the configured limits.
func (g *Gate) Limits() Limits {
	return g.limits
}

// CheckTradeAllowed reports whether plan may be executed at price.
func (g *Gate) CheckTradeAllowed(balance float64, plan *models.OrderPlan, price float64) bool {
	return g.Evaluate(balance, plan, price) == nil
}

// Evaluate checks plan against the limits and returns the first violated
// rule, or nil when the trade is allowed. Rules are checked in order: plan
// presence, position size, daily loss, per-trade risk, trade count.
func (g *Gate) Evaluate(balance float64, plan *models.OrderPlan, price float64) *apperrors.RiskError {
	g.mu.Lock()
	defer g.mu.Unlock()

	violation := g.evaluate(balance, plan, price)
	if violation != nil {
		logging.LogRiskRejection(g.logger, violation.Rule, violation.Current, violation.Limit)
	}
	return violation
}

func (g *Gate) evaluate(balance float64, plan *models.OrderPlan, price float64) *apperrors.RiskError {
	if plan == nil {
		return apperrors.NewRiskError(RuleNoPlan, 0, 0, "no order plan")
	}
	if !(balance > 0) {
		return apperrors.NewRiskError(RuleBalance, balance, 0, "balance must be positive")
	}

	positionPct := plan.Notional(price) / balance
	if positionPct > g.limits.MaxPositionPct {
		return apperrors.NewRiskError(RulePositionSize, positionPct, g.limits.MaxPositionPct, "position exceeds maximum share of balance")
	}

	lossLimit := -balance * g.limits.DailyLossLimitPct
	if g.dailyPnL < lossLimit {
		return apperrors.NewRiskError(RuleDailyLoss, g.dailyPnL, lossLimit, "daily loss limit reached")
	}

	if plan.HasStopLoss() {
		potentialLoss := plan.Quantity * math.Abs(price-plan.StopLoss)
		maxLoss := balance * g.limits.MaxTradeRiskPct
		if potentialLoss > maxLoss {
			return apperrors.NewRiskError(RuleTradeRisk, potentialLoss, maxLoss, "stop-loss risk exceeds per-trade limit")
		}
	}

	if g.tradesToday >= g.limits.MaxTradesPerDay {
		return apperrors.NewRiskError(RuleTradeCount, float64(g.tradesToday), float64(g.limits.MaxTradesPerDay), "daily trade count reached")
	}

	return nil
}

// RecordTradeOutcome books the realized PnL of a closed position.
func (g *Gate) RecordTradeOutcome(pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dailyPnL += pnl
	g.tradesToday++
	g.history.Push(models.TradeOutcome{
		Win:        pnl > 0,
		PnLPercent: pnl / g.limits.PnLBase * 100,
	})
}

// ResetDaily clears the daily PnL and trade count. The outcome history is
// kept.
func (g *Gate) ResetDaily() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dailyPnL = 0
	g.tradesToday = 0
}

// State returns a copy of the current counters.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	return State{
		DailyPnL:    g.dailyPnL,
		TradesToday: g.tradesToday,
		Outcomes:    g.history.Len(),
	}
}

// OutcomeCount returns the number of recorded outcomes.
func (g *Gate) OutcomeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.history.Len()
}

// Outcomes returns the recorded outcomes, oldest first.
func (g *Gate) Outcomes() []models.TradeOutcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.history.Outcomes()
}

// KellyStats computes win rate and average win and loss percentages over
// the recorded outcomes. Fewer than DefaultKellyMinTrades outcomes yield
// the defaults; a side with no outcomes uses its default average.
func (g *Gate) KellyStats() KellyStats {
	outcomes := g.Outcomes()
	stats := KellyStats{
		WinRate: DefaultWinRate,
		AvgWin:  DefaultAvgWin,
		AvgLoss: DefaultAvgLoss,
		Trades:  len(outcomes),
	}
	if len(outcomes) < DefaultKellyMinTrades {
		return stats
	}

	var wins, losses int
	var winSum, lossSum float64
	for _, o := range outcomes {
		if o.Win {
			wins++
			winSum += o.PnLPercent
		} else {
			losses++
			lossSum += o.PnLPercent
		}
	}

	stats.WinRate = float64(wins) / float64(len(outcomes))
	if wins > 0 {
		stats.AvgWin = winSum / float64(wins)
	}
	if losses > 0 {
		stats.AvgLoss = math.Abs(lossSum / float64(losses))
	}
	return stats
}
