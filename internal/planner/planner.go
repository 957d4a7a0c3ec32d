package planner

import (
	"errors"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/logger"
	"github.com/elys-network/levvault/internal/types"
	"github.com/elys-network/levvault/internal/utils"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidHoldings      = errors.New("holdings contain invalid values")
	ErrInvalidTargetWeights = errors.New("target weights contain invalid values")
	ErrNothingToRebalance   = errors.New("holdings are within the rebalance threshold")
)

// Move is one strategy's side of a reallocation.
type Move struct {
	Index  int
	Delta  sdkmath.Int
	Target sdkmath.Int
}

// PlanReallocation builds the AdjustPositions command that moves the strategy
// holdings towards targetWeights. Weights are normalized by their sum, so a
// vector below 100% still describes a full split of the deployed capital.
//
// Drift below RebalanceThresholdBps of the deployed total is ignored. Withdrawals
// are capped at MaxMoveBps of the total when it is set, and the larger side is
// scaled down so the command always sums to zero. ErrNothingToRebalance is
// returned when no strategy needs to move.
func PlanReallocation(holdings []sdkmath.Int, targetWeights []uint64, params types.WeightParameters) (types.AdjustPositions, error) {
	planLogger := logger.GetForComponent("reallocation_planner")

	total, err := validateInputs(holdings, targetWeights)
	if err != nil {
		planLogger.Error().Err(err).Msg("Input validation failed")
		return types.AdjustPositions{}, err
	}
	if !total.IsPositive() {
		return types.AdjustPositions{}, ErrNothingToRebalance
	}

	withdrawals, deposits := analyzeRequiredChanges(holdings, targetWeights, total, params, planLogger)
	if len(withdrawals) == 0 || len(deposits) == 0 {
		planLogger.Info().
			Int("withdrawals", len(withdrawals)).
			Int("deposits", len(deposits)).
			Msg("No balanced reallocation needed")
		return types.AdjustPositions{}, ErrNothingToRebalance
	}

	withdrawals = applyRebalancingLimits(withdrawals, total, params, planLogger)
	withdrawals, deposits = balance(withdrawals, deposits)

	moves := make([]Move, 0, len(withdrawals)+len(deposits))
	for _, m := range append(withdrawals, deposits...) {
		if !m.Delta.IsZero() {
			moves = append(moves, m)
		}
	}
	if len(moves) < 2 {
		return types.AdjustPositions{}, ErrNothingToRebalance
	}

	sort.SliceStable(moves, func(i, j int) bool {
		if moves[i].Delta.Equal(moves[j].Delta) {
			return moves[i].Index < moves[j].Index
		}
		return moves[i].Delta.LT(moves[j].Delta)
	})

	cmd := types.AdjustPositions{
		Indices: make([]int, len(moves)),
		Deltas:  make([]sdkmath.Int, len(moves)),
	}
	for i, m := range moves {
		cmd.Indices[i] = m.Index
		cmd.Deltas[i] = m.Delta
	}

	planLogger.Info().
		Ints("indices", cmd.Indices).
		Interface("deltas", cmd.Deltas).
		Msg("Reallocation planned")
	return cmd, nil
}

func validateInputs(holdings []sdkmath.Int, targetWeights []uint64) (sdkmath.Int, error) {
	if len(holdings) == 0 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: no strategies", ErrInvalidHoldings)
	}
	if len(holdings) != len(targetWeights) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d holdings, %d weights", types.ErrInvalidWeightsLength, len(holdings), len(targetWeights))
	}
	total := sdkmath.ZeroInt()
	for i, h := range holdings {
		if h.IsNil() || h.IsNegative() {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: strategy %d holds %v", ErrInvalidHoldings, i, h)
		}
		total = total.Add(h)
	}
	var weightSum uint64
	for _, w := range targetWeights {
		weightSum += w
	}
	if weightSum == 0 || weightSum > types.BasisPointScale {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: weights sum to %d", ErrInvalidTargetWeights, weightSum)
	}
	return total, nil
}

// analyzeRequiredChanges splits the per-strategy drift into withdrawals and
// deposits, dropping drift below the threshold.
func analyzeRequiredChanges(
	holdings []sdkmath.Int,
	targetWeights []uint64,
	total sdkmath.Int,
	params types.WeightParameters,
	planLogger zerolog.Logger,
) (withdrawals, deposits []Move) {
	var weightSum uint64
	for _, w := range targetWeights {
		weightSum += w
	}
	threshold := utils.ApplyBps(total, params.RebalanceThresholdBps)

	assigned := sdkmath.ZeroInt()
	lastWeighted := -1
	for i, w := range targetWeights {
		if w > 0 {
			lastWeighted = i
		}
	}

	for i, h := range holdings {
		var target sdkmath.Int
		if i == lastWeighted {
			target = total.Sub(assigned)
		} else {
			target = utils.MulDiv(total, sdkmath.NewIntFromUint64(targetWeights[i]), sdkmath.NewIntFromUint64(weightSum))
		}
		assigned = assigned.Add(target)

		delta := target.Sub(h)
		planLogger.Debug().
			Int("strategy", i).
			Str("current", h.String()).
			Str("target", target.String()).
			Str("delta", delta.String()).
			Msg("Strategy reallocation analysis")

		if delta.Abs().LTE(threshold) {
			continue
		}
		m := Move{Index: i, Delta: delta, Target: target}
		if delta.IsNegative() {
			withdrawals = append(withdrawals, m)
		} else {
			deposits = append(deposits, m)
		}
	}
	return withdrawals, deposits
}

// applyRebalancingLimits scales the withdrawals down to MaxMoveBps of the total.
func applyRebalancingLimits(withdrawals []Move, total sdkmath.Int, params types.WeightParameters, planLogger zerolog.Logger) []Move {
	if params.MaxMoveBps == 0 {
		return withdrawals
	}
	maxWithdrawal := utils.ApplyBps(total, params.MaxMoveBps)
	out := sumAbs(withdrawals)
	if out.LTE(maxWithdrawal) {
		return withdrawals
	}

	planLogger.Warn().
		Str("totalWithdrawal", out.String()).
		Str("maxWithdrawal", maxWithdrawal.String()).
		Msg("Withdrawal amount exceeds limit, scaling down withdrawals")
	return scaleTo(withdrawals, maxWithdrawal)
}

// balance scales the larger side down to the smaller so the deltas sum to zero.
func balance(withdrawals, deposits []Move) ([]Move, []Move) {
	out := sumAbs(withdrawals)
	in := sumAbs(deposits)
	switch {
	case out.GT(in):
		withdrawals = scaleTo(withdrawals, in)
	case in.GT(out):
		deposits = scaleTo(deposits, out)
	}
	return withdrawals, deposits
}

// scaleTo shrinks every move proportionally so their magnitudes add up to
// target. The largest move absorbs the rounding.
func scaleTo(moves []Move, target sdkmath.Int) []Move {
	current := sumAbs(moves)
	if current.IsZero() {
		return moves
	}
	scaled := make([]Move, len(moves))
	largest := 0
	assigned := sdkmath.ZeroInt()
	for i, m := range moves {
		mag := utils.MulDiv(m.Delta.Abs(), target, current)
		assigned = assigned.Add(mag)
		scaled[i] = Move{Index: m.Index, Target: m.Target, Delta: withSign(mag, m.Delta)}
		if m.Delta.Abs().GT(moves[largest].Delta.Abs()) {
			largest = i
		}
	}
	rest := target.Sub(assigned)
	scaled[largest].Delta = withSign(scaled[largest].Delta.Abs().Add(rest), moves[largest].Delta)
	return scaled
}

func withSign(mag, like sdkmath.Int) sdkmath.Int {
	if like.IsNegative() {
		return mag.Neg()
	}
	return mag
}

func sumAbs(moves []Move) sdkmath.Int {
	sum := sdkmath.ZeroInt()
	for _, m := range moves {
		sum = sum.Add(m.Delta.Abs())
	}
	return sum
}
