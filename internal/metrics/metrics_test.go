package metrics

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func units18(n int64) sdkmath.Int { return sdkmath.NewIntWithDecimal(n, 18) }

func TestVaultGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveVault("loop", units18(25), sdkmath.NewIntWithDecimal(105, 16))
	assert.InDelta(t, 25, testutil.ToFloat64(m.totalAssets.WithLabelValues("loop")), 1e-9)
	assert.InDelta(t, 1.05, testutil.ToFloat64(m.tokenPerAsset.WithLabelValues("loop")), 1e-9)

	m.ObserveHarvest("loop", units18(-2))
	assert.InDelta(t, -2, testutil.ToFloat64(m.harvestPnl.WithLabelValues("loop")), 1e-9)

	m.ObserveLoanToValue("wsteth-loop", 800_000_000)
	assert.InDelta(t, 0.8, testutil.ToFloat64(m.loanToValue.WithLabelValues("wsteth-loop")), 1e-9)

	m.ObserveReverts(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.reverts))
}

func TestAllocationDropsRemovedStrategies(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAllocation("multi", []string{"a", "b"}, []uint64{6000, 4000}, []sdkmath.Int{units18(6), units18(4)})
	assert.Equal(t, 2, testutil.CollectAndCount(m.weights))
	assert.Equal(t, 6000.0, testutil.ToFloat64(m.weights.WithLabelValues("multi", "a")))

	m.ObserveAllocation("multi", []string{"b"}, []uint64{10_000}, []sdkmath.Int{units18(10)})
	assert.Equal(t, 1, testutil.CollectAndCount(m.weights))
	assert.Equal(t, 1, testutil.CollectAndCount(m.holdings))
	assert.InDelta(t, 10, testutil.ToFloat64(m.holdings.WithLabelValues("multi", "b")), 1e-9)
}

func TestCycleCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCycle(0.5, false)
	m.ObserveCycle(1.5, true)
	m.ObserveCycle(0.1, false)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("failed")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "levvault_keeper_cycle_duration_seconds" {
			found = true
			assert.Equal(t, uint64(3), f.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveVault("v", units18(1), units18(1))
	m.ObserveCycle(1, false)
	m.ObserveAllocation("v", nil, nil, nil)
}
