package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := NewCollector()

	c.ObserveDecision(6, "approved", time.Millisecond)
	c.ObserveDecision(6, "approved", time.Millisecond)
	c.ObserveDecision(5, "filtered", time.Millisecond)
	c.ObserveRiskRejection("max_position_pct")
	c.ObserveRegime(-1, 6)
	c.ObserveRegime(6, 6)
	c.ObserveRegime(6, 7)
	c.ObserveTrade("SL", -1200)
	c.SetEquity(1_010_000)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Decisions.WithLabelValues("6", "approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Decisions.WithLabelValues("5", "filtered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RiskRejections.WithLabelValues("max_position_pct")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.RegimeSwitches))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.ActiveRegime))
	assert.Equal(t, 1200.0, testutil.ToFloat64(c.RealizedPnL))
	assert.Equal(t, 1_010_000.0, testutil.ToFloat64(c.Equity))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveDecision(1, "no_signal", time.Second)
	c.ObserveRiskRejection("x")
	c.ObserveRegime(1, 2)
	c.ObserveTrade("BUY", 0)
	c.SetEquity(1)
	c.ObserveBacktestRun()
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector()
	c.ObserveBacktestRun()

	path := filepath.Join(t.TempDir(), "trader.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "trader_backtest_runs_total 1"))
}
