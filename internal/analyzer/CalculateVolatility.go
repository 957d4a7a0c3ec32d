package analyzer

import (
	"errors"
	"math"
	"sort"

	"github.com/elys-network/levvault/internal/types"
)

// ErrInsufficientData indicates that not enough data points were provided
// to calculate volatility (need at least 2 points for 1 return).
var ErrInsufficientData = errors.New("insufficient data points to calculate volatility")

// logReturns sorts samples chronologically and returns the log return between
// consecutive positive index values.
func logReturns(samples []types.YieldSample) []float64 {
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})

	returns := make([]float64, 0, len(samples))
	for i := 1; i < len(samples); i++ {
		current := samples[i].Index
		previous := samples[i-1].Index
		// A non-positive index would break math.Log
		if previous <= 0 || current <= 0 {
			continue
		}
		returns = append(returns, math.Log(current/previous))
	}
	return returns
}

// CalculateVolatility calculates the annualized volatility of a strategy's growth index.
// It uses logarithmic returns and the population standard deviation.
// The annualizationFactor should match the sampling frequency (e.g., 52560 for 10 minute cycles).
func CalculateVolatility(samples []types.YieldSample, annualizationFactor float64) (float64, error) {
	if len(samples) < 2 {
		return 0, ErrInsufficientData
	}

	returns := logReturns(samples)
	n := len(returns)
	if n == 0 {
		return 0, ErrInsufficientData
	}

	mean := meanOf(returns)

	var sumSqDiff float64
	for _, r := range returns {
		sumSqDiff += math.Pow(r-mean, 2)
	}
	variance := sumSqDiff / float64(n)

	return math.Sqrt(variance) * math.Sqrt(annualizationFactor), nil
}

// CalculateYield returns the annualized mean log return of the growth index.
func CalculateYield(samples []types.YieldSample, annualizationFactor float64) (float64, error) {
	if len(samples) < 2 {
		return 0, ErrInsufficientData
	}
	returns := logReturns(samples)
	if len(returns) == 0 {
		return 0, ErrInsufficientData
	}
	return meanOf(returns) * annualizationFactor, nil
}

func meanOf(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
