// Package strategy holds the regime-indexed entry rules and the table that
// selects which of them are live.
package strategy

import (
	"fmt"
	"sort"

	"regime-trader/internal/analysis/regime"
	"regime-trader/internal/analysis/snapshot"
	"regime-trader/internal/models"
)

// Func proposes an entry for the latest bar of candles, or returns nil when
// its condition does not hold. Funcs are pure.
type Func func(candles []models.Candle, snap snapshot.Snapshot, balance float64) *models.OrderPlan

// Strategy is a named entry rule bound to one regime.
type Strategy struct {
	Stage    regime.Index
	Name     string
	Fraction float64
	Propose  Func
}

// DefaultActiveStages are the regimes traded unless configured otherwise.
var DefaultActiveStages = []regime.Index{6, 7, 8}

// Policy is the set of regimes whose strategies are enabled.
type Policy struct {
	active map[regime.Index]bool
}

// NewPolicy creates a policy enabling the given stages. Out-of-range stages
// are an error.
func NewPolicy(stages ...regime.Index) (Policy, error) {
	p := Policy{active: make(map[regime.Index]bool, len(stages))}
	for _, s := range stages {
		if !s.Valid() {
			return Policy{}, fmt.Errorf("stage %d out of range [%d, %d]", int(s), int(regime.Min), int(regime.Max))
		}
		p.active[s] = true
	}
	return p, nil
}

// DefaultPolicy enables DefaultActiveStages.
func DefaultPolicy() Policy {
	p, _ := NewPolicy(DefaultActiveStages...)
	return p
}

// PolicyFromInts builds a policy from config values.
func PolicyFromInts(stages []int) (Policy, error) {
	idx := make([]regime.Index, len(stages))
	for i, s := range stages {
		idx[i] = regime.Index(s)
	}
	return NewPolicy(idx...)
}

// Enabled reports whether stage is active.
func (p Policy) Enabled(stage regime.Index) bool {
	return p.active[stage]
}

// Stages returns the active stages in ascending order.
func (p Policy) Stages() []regime.Index {
	out := make([]regime.Index, 0, len(p.active))
	for s := range p.active {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Table maps active regimes to their strategies. It is built once and read
// only afterwards.
type Table struct {
	entries map[regime.Index]Strategy
}

// NewTable builds a table holding the registry entries enabled by policy.
func NewTable(policy Policy) *Table {
	t := &Table{entries: make(map[regime.Index]Strategy)}
	for _, s := range Registry() {
		if policy.Enabled(s.Stage) {
			t.entries[s.Stage] = s
		}
	}
	return t
}

// NewCustomTable builds a table from explicit strategies. A later entry for
// the same stage replaces an earlier one.
func NewCustomTable(strategies ...Strategy) *Table {
	t := &Table{entries: make(map[regime.Index]Strategy, len(strategies))}
	for _, s := range strategies {
		t.entries[s.Stage] = s
	}
	return t
}

// DefaultTable builds a table with DefaultPolicy.
func DefaultTable() *Table {
	return NewTable(DefaultPolicy())
}

// Lookup returns the strategy for idx. A disabled or unknown regime returns
// false.
func (t *Table) Lookup(idx regime.Index) (Strategy, bool) {
	s, ok := t.entries[idx]
	return s, ok
}

// Stages returns the stages present in the table in ascending order.
func (t *Table) Stages() []regime.Index {
	out := make([]regime.Index, 0, len(t.entries))
	for s := range t.entries {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Registry returns all ten strategies, ordered by stage.
func Registry() []Strategy {
	return []Strategy{
		{Stage: 0, Name: "extreme panic scalp", Fraction: 0.08, Propose: ExtremePanicScalp},
		{Stage: 1, Name: "strong down bounce", Fraction: 0.12, Propose: StrongDownBounce},
		{Stage: 2, Name: "conservative breakout", Fraction: 0.08, Propose: ConservativeBreakout},
		{Stage: 3, Name: "weak down swing", Fraction: 0.08, Propose: WeakDownSwing},
		{Stage: 4, Name: "defensive trend follow", Fraction: 0.10, Propose: DefensiveTrendFollow},
		{Stage: 5, Name: "neutral box scalp", Fraction: 0.12, Propose: NeutralBoxScalp},
		{Stage: 6, Name: "breakout entry", Fraction: 0.12, Propose: BreakoutEntry},
		{Stage: 7, Name: "trend follow add", Fraction: 0.15, Propose: TrendFollowAdd},
		{Stage: 8, Name: "aggressive breakout", Fraction: 0.20, Propose: AggressiveBreakout},
		{Stage: 9, Name: "take profit reduce", Fraction: 0.05, Propose: TakeProfitReduce},
	}
}
