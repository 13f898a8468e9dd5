// Package decision composes the snapshot, classifier, strategy table,
// sizing and risk gate into the single order-decision entry point.
package decision

import (
	"time"

	"github.com/rs/zerolog"

	"regime-trader/internal/analysis/regime"
	"regime-trader/internal/analysis/snapshot"
	apperrors "regime-trader/internal/errors"
	"regime-trader/internal/logging"
	"regime-trader/internal/models"
	"regime-trader/internal/risk"
	"regime-trader/internal/strategy"
)

// Filter reasons.
const (
	FilterVolatility = "volatility_out_of_range"
)

// VolatilityStageName is reported when the pre-filter short-circuits.
const VolatilityStageName = "Volatility Filter - Outside Range"

// Outcome labels a decision for metrics and logs.
type Outcome string

const (
	OutcomeFiltered   Outcome = "filtered"
	OutcomeNoStrategy Outcome = "no_strategy"
	OutcomeNoSignal   Outcome = "no_signal"
	OutcomeRejected   Outcome = "rejected"
	OutcomeApproved   Outcome = "approved"
)

// Decision is the full record of one decision cycle. Plan is nil whenever no
// order should be placed.
type Decision struct {
	RegimeIndex  regime.Index         `json:"index"`
	Snapshot     snapshot.Snapshot    `json:"snapshot"`
	Plan         *models.OrderPlan    `json:"plan"`
	StageName    string               `json:"stage_name"`
	FilterReason string               `json:"filter_reason,omitempty"`
	Volatility   float64              `json:"volatility"`
	Outcome      Outcome              `json:"outcome"`
	Rejection    *apperrors.RiskError `json:"rejection,omitempty"`
	Price        float64              `json:"price"`
	Kelly        bool                 `json:"kelly_sized"`
}

// Recorder receives decision telemetry. *metrics.Collector implements it.
type Recorder interface {
	ObserveDecision(stage int, outcome string, took time.Duration)
	ObserveRiskRejection(rule string)
}

// Config holds orchestrator parameters.
type Config struct {
	TPMultiplier   float64
	SLMultiplier   float64
	Volatility     strategy.VolatilityFilter
	KellyMinTrades int
}

// DefaultConfig returns the standard parameters.
func DefaultConfig() Config {
	return Config{
		TPMultiplier:   strategy.DefaultTPMultiplier,
		SLMultiplier:   strategy.DefaultSLMultiplier,
		Volatility:     strategy.DefaultVolatilityFilter(),
		KellyMinTrades: risk.DefaultKellyMinTrades,
	}
}

// Orchestrator runs decision cycles against one account's risk gate. The
// gate may be nil, in which case neither Kelly sizing nor risk checks run.
type Orchestrator struct {
	table    *strategy.Table
	gate     *risk.Gate
	cfg      Config
	logger   zerolog.Logger
	recorder Recorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithRecorder sets a telemetry recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithConfig overrides the default parameters.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		o.cfg = cfg
	}
}

// New creates an orchestrator over table and gate.
func New(table *strategy.Table, gate *risk.Gate, opts ...Option) *Orchestrator {
	if table == nil {
		table = strategy.DefaultTable()
	}
	o := &Orchestrator{
		table:  table,
		gate:   gate,
		cfg:    DefaultConfig(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Gate returns the risk gate, which may be nil.
func (o *Orchestrator) Gate() *risk.Gate {
	return o.gate
}

// DecideOrder runs one decision cycle on candles, sorted oldest first, for
// an account holding balance. The error is non-nil only for malformed
// input; filtered, signal-less and vetoed cycles return a Decision with a
// nil Plan.
func (o *Orchestrator) DecideOrder(candles []models.Candle, balance float64) (*Decision, error) {
	start := time.Now()

	if err := models.ValidateSeries(candles); err != nil {
		return nil, err
	}
	if !(balance > 0) {
		return nil, apperrors.NewInputError("balance", -1, "balance must be positive")
	}

	d := o.decide(candles, balance)

	logging.LogDecision(o.logger, int(d.RegimeIndex), d.StageName, planQty(d.Plan), string(d.Outcome))
	if o.recorder != nil {
		o.recorder.ObserveDecision(int(d.RegimeIndex), string(d.Outcome), time.Since(start))
		if d.Rejection != nil {
			o.recorder.ObserveRiskRejection(d.Rejection.Rule)
		}
	}
	return d, nil
}

func (o *Orchestrator) decide(candles []models.Candle, balance float64) *Decision {
	price := models.LastClose(candles)
	d := &Decision{
		Snapshot: snapshot.Build(candles),
		Price:    price,
	}

	vol, ok := o.cfg.Volatility.Check(candles)
	d.Volatility = vol
	if !ok {
		d.RegimeIndex = regime.Neutral
		d.StageName = VolatilityStageName
		d.FilterReason = FilterVolatility
		d.Outcome = OutcomeFiltered
		return d
	}

	d.RegimeIndex = regime.Classify(d.Snapshot)
	d.StageName = regime.StageName(d.RegimeIndex)

	strat, found := o.table.Lookup(d.RegimeIndex)
	if !found {
		d.Outcome = OutcomeNoStrategy
		return d
	}

	plan := strat.Propose(candles, d.Snapshot, balance)
	if plan == nil {
		d.Outcome = OutcomeNoSignal
		return d
	}

	if plan.IsBuy() {
		if tp, sl, ok := strategy.DynamicTPSL(candles, price, o.cfg.TPMultiplier, o.cfg.SLMultiplier); ok {
			plan.TakeProfit, plan.StopLoss = tp, sl
		}
	}

	if o.gate != nil && o.gate.OutcomeCount() >= o.cfg.KellyMinTrades {
		baseFraction := plan.Notional(price) / balance
		plan.Quantity = risk.KellySize(balance, o.gate.KellyStats(), baseFraction, price)
		d.Kelly = true
	}

	if o.gate != nil {
		if violation := o.gate.Evaluate(balance, plan, price); violation != nil {
			d.Rejection = violation
			d.Outcome = OutcomeRejected
			return d
		}
	}

	if err := plan.Validate(price); err != nil {
		o.logger.Error().Err(err).Str("stage", d.StageName).Msg("Strategy produced an invalid plan")
		d.Outcome = OutcomeNoSignal
		return d
	}

	d.Plan = plan
	d.Outcome = OutcomeApproved
	return d
}

func planQty(p *models.OrderPlan) float64 {
	if p == nil {
		return 0
	}
	return p.Quantity
}
