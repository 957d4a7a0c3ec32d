/*

This file contains the scoring of strategies from their harvest history.

A strategy's score is its annualized yield minus a volatility penalty. Strategies
without enough history score at the floor, so the weight bounds alone decide
their share until data accumulates.

*/

package analyzer

import (
	"errors"
	"fmt"
	"math"

	"github.com/elys-network/levvault/internal/logger"
	"github.com/elys-network/levvault/internal/types"
)

var ErrInvalidScoringParameters = errors.New("invalid scoring parameters")

var scoreLogger = logger.GetForComponent("strategy_scorer")

// scoreFloor keeps every score positive so the allocation stays proportional.
const scoreFloor = 1e-6

// ScoreStrategies scores each named strategy from its growth index history.
// history is indexed like names; a missing or short history is not an error.
func ScoreStrategies(names []string, history [][]types.YieldSample, params types.WeightParameters) ([]types.StrategyScore, error) {
	if len(names) != len(history) {
		return nil, fmt.Errorf("%w: %d names, %d histories", ErrInvalidScoringParameters, len(names), len(history))
	}
	if params.AnnualizationFactor <= 0 || math.IsNaN(params.AnnualizationFactor) || math.IsInf(params.AnnualizationFactor, 0) {
		return nil, fmt.Errorf("%w: annualization factor %f", ErrInvalidScoringParameters, params.AnnualizationFactor)
	}
	if params.VolatilityPenalty < 0 || math.IsNaN(params.VolatilityPenalty) {
		return nil, fmt.Errorf("%w: volatility penalty %f", ErrInvalidScoringParameters, params.VolatilityPenalty)
	}

	scores := make([]types.StrategyScore, len(names))
	for i, name := range names {
		s := types.StrategyScore{Index: i, Name: name, Samples: len(history[i]), Score: scoreFloor}

		yield, err := CalculateYield(history[i], params.AnnualizationFactor)
		if errors.Is(err, ErrInsufficientData) {
			scoreLogger.Debug().Str("strategy", name).Int("samples", s.Samples).Msg("Not enough history, scoring at floor")
			scores[i] = s
			continue
		}
		if err != nil {
			return nil, err
		}
		volatility, err := CalculateVolatility(history[i], params.AnnualizationFactor)
		if err != nil {
			return nil, err
		}

		s.Yield = yield
		s.Volatility = volatility
		score := yield - params.VolatilityPenalty*volatility
		if math.IsNaN(score) || math.IsInf(score, 0) {
			return nil, fmt.Errorf("strategy %s has invalid score: %f", name, score)
		}
		s.Score = math.Max(score, scoreFloor)
		scores[i] = s

		scoreLogger.Debug().
			Str("strategy", name).
			Float64("yield", yield).
			Float64("volatility", volatility).
			Float64("score", s.Score).
			Msg("Strategy scored")
	}
	return scores, nil
}
