package analyzer

import (
	"math"
	"testing"
	"time"

	"github.com/elys-network/levvault/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func series(indices ...float64) []types.YieldSample {
	out := make([]types.YieldSample, len(indices))
	for i, idx := range indices {
		out[i] = types.YieldSample{Timestamp: t0.Add(time.Duration(i) * time.Hour), Index: idx}
	}
	return out
}

func TestVolatilityOfSteadyGrowthIsZero(t *testing.T) {
	s := series(1, 1.01, 1.0201, 1.030301)
	vol, err := CalculateVolatility(s, 8760)
	require.NoError(t, err)
	assert.InDelta(t, 0, vol, 1e-9)

	yield, err := CalculateYield(s, 8760)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(1.01)*8760, yield, 1e-6)
}

func TestVolatilitySortsAndSkipsBadSamples(t *testing.T) {
	s := []types.YieldSample{
		{Timestamp: t0.Add(2 * time.Hour), Index: 1.1},
		{Timestamp: t0, Index: 1},
		{Timestamp: t0.Add(time.Hour), Index: 1.21},
	}
	vol, err := CalculateVolatility(s, 1)
	require.NoError(t, err)
	// Returns are ln(1.21) and ln(1.1/1.21); population std is half their gap.
	want := math.Abs(math.Log(1.21)-math.Log(1.1/1.21)) / 2
	assert.InDelta(t, want, vol, 1e-12)

	_, err = CalculateVolatility(series(1), 1)
	require.ErrorIs(t, err, ErrInsufficientData)
	_, err = CalculateYield(series(0, 0), 1)
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestScoreStrategies(t *testing.T) {
	params := types.WeightParameters{AnnualizationFactor: 8760, VolatilityPenalty: 1}
	scores, err := ScoreStrategies(
		[]string{"steady", "new", "losing"},
		[][]types.YieldSample{series(1, 1.001, 1.002001), nil, series(1, 0.99, 0.9801)},
		params,
	)
	require.NoError(t, err)
	require.Len(t, scores, 3)

	assert.Greater(t, scores[0].Score, 1.0)
	assert.Equal(t, 3, scores[0].Samples)
	assert.Equal(t, scoreFloor, scores[1].Score)
	assert.Equal(t, scoreFloor, scores[2].Score)
	assert.Less(t, scores[2].Yield, 0.0)

	_, err = ScoreStrategies([]string{"a"}, nil, params)
	require.ErrorIs(t, err, ErrInvalidScoringParameters)
	_, err = ScoreStrategies(nil, nil, types.WeightParameters{})
	require.ErrorIs(t, err, ErrInvalidScoringParameters)
}

func scored(scores ...float64) []types.StrategyScore {
	out := make([]types.StrategyScore, len(scores))
	for i, s := range scores {
		out[i] = types.StrategyScore{Index: i, Score: s}
	}
	return out
}

func TestDetermineTargetWeights(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		params types.WeightParameters
		want   []uint64
	}{
		{"proportional", []float64{3, 1}, types.WeightParameters{MaxWeightBps: 10_000}, []uint64{7500, 2500}},
		{"capped at max", []float64{3, 1}, types.WeightParameters{MaxWeightBps: 6000}, []uint64{6000, 4000}},
		{"remainder to best", []float64{1, 1, 1}, types.WeightParameters{MaxWeightBps: 10_000}, []uint64{3334, 3333, 3333}},
		{
			"floored strategies keep min",
			[]float64{0.2, scoreFloor, scoreFloor},
			types.WeightParameters{MinWeightBps: 1000, MaxWeightBps: 8000},
			[]uint64{8000, 1000, 1000},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetermineTargetWeights(scored(tt.scores...), len(tt.scores), tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			var sum uint64
			for _, w := range got {
				sum += w
			}
			assert.Equal(t, types.BasisPointScale, sum)
		})
	}
}

func TestDetermineTargetWeightsRejectsImpossibleBounds(t *testing.T) {
	_, err := DetermineTargetWeights(scored(1, 1, 1), 3, types.WeightParameters{MinWeightBps: 4000, MaxWeightBps: 10_000})
	require.ErrorIs(t, err, ErrAllocationImpossible)

	_, err = DetermineTargetWeights(scored(1, 1), 2, types.WeightParameters{MaxWeightBps: 4000})
	require.ErrorIs(t, err, ErrAllocationImpossible)

	_, err = DetermineTargetWeights(scored(1, 1), 2, types.WeightParameters{MinWeightBps: 5000, MaxWeightBps: 4000})
	require.ErrorIs(t, err, ErrInvalidAllocationConstraints)

	_, err = DetermineTargetWeights(scored(1), 2, types.WeightParameters{MaxWeightBps: 10_000})
	require.ErrorIs(t, err, ErrInvalidAllocationConstraints)

	_, err = DetermineTargetWeights(nil, 0, types.WeightParameters{MaxWeightBps: 10_000})
	require.ErrorIs(t, err, ErrNoValidStrategies)

	_, err = DetermineTargetWeights(scored(1, 0), 2, types.WeightParameters{MaxWeightBps: 10_000})
	require.Error(t, err)
}
