/*

This file contains the conversion of strategy scores into target weights.

*/

package analyzer

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/elys-network/levvault/internal/logger"
	"github.com/elys-network/levvault/internal/types"
)

var weightLogger = logger.GetForComponent("weight_selector")
var ErrNoValidStrategies = errors.New("no strategies with valid scores found")
var ErrInvalidAllocationConstraints = errors.New("invalid allocation constraints")
var ErrAllocationImpossible = errors.New("allocation constraints cannot be satisfied")

const maxAllocationIterations = 20 // Prevent potential infinite loops in constraint logic

// DetermineTargetWeights calculates a weight in basis points for each scored strategy,
// proportional to score and clamped to [MinWeightBps, MaxWeightBps]. The result is
// indexed by StrategyScore.Index, has length n and sums to exactly BasisPointScale.
func DetermineTargetWeights(scores []types.StrategyScore, n int, params types.WeightParameters) ([]uint64, error) {
	if n == 0 || len(scores) == 0 {
		return nil, ErrNoValidStrategies
	}
	if len(scores) != n {
		return nil, fmt.Errorf("%w: %d scores for %d strategies", ErrInvalidAllocationConstraints, len(scores), n)
	}

	scale := float64(types.BasisPointScale)
	minAlloc := float64(params.MinWeightBps) / scale
	maxAlloc := float64(params.MaxWeightBps) / scale
	if params.MaxWeightBps == 0 || params.MaxWeightBps > types.BasisPointScale {
		return nil, fmt.Errorf("%w: max weight %d bps", ErrInvalidAllocationConstraints, params.MaxWeightBps)
	}
	if params.MinWeightBps > params.MaxWeightBps {
		return nil, fmt.Errorf("%w: min weight %d bps above max %d bps", ErrInvalidAllocationConstraints, params.MinWeightBps, params.MaxWeightBps)
	}
	// Check if the bounds can be met at all
	if params.MinWeightBps*uint64(n) > types.BasisPointScale {
		return nil, fmt.Errorf("%w: %d strategies at %d bps minimum", ErrAllocationImpossible, n, params.MinWeightBps)
	}
	if params.MaxWeightBps*uint64(n) < types.BasisPointScale {
		return nil, fmt.Errorf("%w: %d strategies at %d bps maximum", ErrAllocationImpossible, n, params.MaxWeightBps)
	}

	scoreByIndex := make(map[int]float64, n)
	for _, s := range scores {
		if s.Index < 0 || s.Index >= n {
			return nil, fmt.Errorf("%w: score index %d", ErrInvalidAllocationConstraints, s.Index)
		}
		if _, dup := scoreByIndex[s.Index]; dup {
			return nil, fmt.Errorf("%w: score index %d listed twice", ErrInvalidAllocationConstraints, s.Index)
		}
		if math.IsNaN(s.Score) || math.IsInf(s.Score, 0) || s.Score <= 0 {
			return nil, fmt.Errorf("strategy %d has invalid score: %f", s.Index, s.Score)
		}
		scoreByIndex[s.Index] = s.Score
	}

	allocations := make(map[int]float64, n)
	locked := make(map[int]float64)
	unlocked := make(map[int]float64, n)
	for idx, score := range scoreByIndex {
		unlocked[idx] = score
	}

	iteration := 0
	madeChanges := true
	for madeChanges && iteration < maxAllocationIterations {
		madeChanges = false
		iteration++

		remaining := 1.0
		for _, alloc := range locked {
			remaining -= alloc
		}
		if remaining < -0.00001 {
			return nil, errors.New("allocation constraint enforcement resulted in over-allocation")
		}
		if remaining < 0 {
			remaining = 0
		}
		if len(unlocked) == 0 {
			break
		}

		totalUnlocked := 0.0
		for _, score := range unlocked {
			totalUnlocked += score
		}

		var toLock []int
		for idx, score := range unlocked {
			alloc := score / totalUnlocked * remaining
			allocations[idx] = alloc
			if alloc < minAlloc {
				locked[idx] = minAlloc
				toLock = append(toLock, idx)
				madeChanges = true
			} else if alloc > maxAlloc {
				locked[idx] = maxAlloc
				toLock = append(toLock, idx)
				madeChanges = true
			}
		}
		for _, idx := range toLock {
			delete(unlocked, idx)
		}
	}
	if iteration == maxAllocationIterations && madeChanges {
		return nil, fmt.Errorf("allocation constraint enforcement failed to converge after %d iterations", maxAllocationIterations)
	}
	for idx, alloc := range locked {
		allocations[idx] = alloc
	}

	weights, err := toBasisPoints(allocations, scoreByIndex, n, params)
	if err != nil {
		return nil, err
	}

	weightLogger.Info().Interface("weights", weights).Msg("Target weights calculated")
	return weights, nil
}

// toBasisPoints floors every allocation to whole basis points and hands the
// rounding remainder, one point at a time, to the best scored strategies that
// still have room under the maximum.
func toBasisPoints(allocations, scores map[int]float64, n int, params types.WeightParameters) ([]uint64, error) {
	weights := make([]uint64, n)
	var sum uint64
	for idx := 0; idx < n; idx++ {
		alloc := allocations[idx]
		w := uint64(math.Floor(alloc*float64(types.BasisPointScale) + 1e-9))
		if w < params.MinWeightBps {
			w = params.MinWeightBps
		}
		if w > params.MaxWeightBps {
			w = params.MaxWeightBps
		}
		weights[idx] = w
		sum += w
	}
	if sum > types.BasisPointScale {
		return nil, fmt.Errorf("%w: weights sum to %d", ErrAllocationImpossible, sum)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	for remainder := types.BasisPointScale - sum; remainder > 0; {
		progressed := false
		for _, idx := range order {
			if remainder == 0 {
				break
			}
			if weights[idx] < params.MaxWeightBps {
				weights[idx]++
				remainder--
				progressed = true
			}
		}
		if !progressed {
			return nil, fmt.Errorf("%w: %d bps left unassigned", ErrAllocationImpossible, remainder)
		}
	}
	return weights, nil
}
