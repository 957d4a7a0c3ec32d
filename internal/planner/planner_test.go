package planner

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/types"
	"github.com/elys-network/levvault/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func units(n int64) sdkmath.Int { return sdkmath.NewIntWithDecimal(n, 18) }

func ints(xs ...int64) []sdkmath.Int {
	out := make([]sdkmath.Int, len(xs))
	for i, x := range xs {
		out[i] = sdkmath.NewInt(x)
	}
	return out
}

func deltaStrings(cmd types.AdjustPositions) []string {
	out := make([]string, len(cmd.Deltas))
	for i, d := range cmd.Deltas {
		out[i] = d.String()
	}
	return out
}

var noLimits = types.WeightParameters{MaxWeightBps: types.BasisPointScale}

func TestPlanReallocation(t *testing.T) {
	tests := []struct {
		name        string
		holdings    []sdkmath.Int
		weights     []uint64
		params      types.WeightParameters
		wantIndices []int
		wantDeltas  []string
	}{
		{
			name:        "even split",
			holdings:    []sdkmath.Int{units(60), units(40)},
			weights:     []uint64{5000, 5000},
			params:      noLimits,
			wantIndices: []int{0, 1},
			wantDeltas:  []string{units(-10).String(), units(10).String()},
		},
		{
			name:        "partial weights are normalized",
			holdings:    []sdkmath.Int{units(50), units(50)},
			weights:     []uint64{3000, 1000},
			params:      noLimits,
			wantIndices: []int{1, 0},
			wantDeltas:  []string{units(-25).String(), units(25).String()},
		},
		{
			name:        "small drift dropped and withdrawal scaled to deposits",
			holdings:    []sdkmath.Int{units(40), units(31), units(29)},
			weights:     []uint64{3400, 3300, 3300},
			params:      types.WeightParameters{RebalanceThresholdBps: 200},
			wantIndices: []int{0, 2},
			wantDeltas:  []string{units(-4).String(), units(4).String()},
		},
		{
			name:        "move cap",
			holdings:    []sdkmath.Int{units(60), units(40)},
			weights:     []uint64{5000, 5000},
			params:      types.WeightParameters{MaxMoveBps: 100},
			wantIndices: []int{0, 1},
			wantDeltas:  []string{units(-1).String(), units(1).String()},
		},
		{
			name:        "rounding goes to the last weighted strategy",
			holdings:    ints(70, 0, 0),
			weights:     []uint64{3334, 3333, 3333},
			params:      noLimits,
			wantIndices: []int{0, 1, 2},
			wantDeltas:  []string{"-47", "23", "24"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := PlanReallocation(tt.holdings, tt.weights, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIndices, cmd.Indices)
			assert.Equal(t, tt.wantDeltas, deltaStrings(cmd))
			require.NoError(t, vault.ValidateAdjustment(cmd, len(tt.holdings)))
		})
	}
}

func TestPlanReallocationScalesManyWithdrawals(t *testing.T) {
	// Two overweight strategies feed one underweight strategy under a 3 unit cap.
	cmd, err := PlanReallocation(
		[]sdkmath.Int{units(45), units(45), units(10)},
		[]uint64{3000, 3000, 4000},
		types.WeightParameters{MaxMoveBps: 300},
	)
	require.NoError(t, err)
	require.NoError(t, vault.ValidateAdjustment(cmd, 3))

	sum := sdkmath.ZeroInt()
	for _, d := range cmd.Deltas {
		if d.IsPositive() {
			sum = sum.Add(d)
		}
	}
	assert.Equal(t, units(3).String(), sum.String())
	assert.Equal(t, 2, cmd.Indices[2])
}

func TestPlanReallocationNothingToDo(t *testing.T) {
	_, err := PlanReallocation([]sdkmath.Int{units(51), units(49)}, []uint64{5000, 5000}, types.WeightParameters{RebalanceThresholdBps: 200})
	require.ErrorIs(t, err, ErrNothingToRebalance)

	_, err = PlanReallocation(ints(0, 0), []uint64{5000, 5000}, noLimits)
	require.ErrorIs(t, err, ErrNothingToRebalance)

	_, err = PlanReallocation([]sdkmath.Int{units(50), units(50)}, []uint64{5000, 5000}, noLimits)
	require.ErrorIs(t, err, ErrNothingToRebalance)
}

func TestPlanReallocationRejectsBadInput(t *testing.T) {
	_, err := PlanReallocation(nil, nil, noLimits)
	require.ErrorIs(t, err, ErrInvalidHoldings)

	_, err = PlanReallocation(ints(1, 2), []uint64{10_000}, noLimits)
	require.ErrorIs(t, err, types.ErrInvalidWeightsLength)

	_, err = PlanReallocation(ints(1, -2), []uint64{5000, 5000}, noLimits)
	require.ErrorIs(t, err, ErrInvalidHoldings)

	_, err = PlanReallocation(ints(1, 2), []uint64{0, 0}, noLimits)
	require.ErrorIs(t, err, ErrInvalidTargetWeights)

	_, err = PlanReallocation(ints(1, 2), []uint64{6000, 6000}, noLimits)
	require.ErrorIs(t, err, ErrInvalidTargetWeights)
}
