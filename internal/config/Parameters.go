/*

This file contains the default deployment parameters for the leveraged vault.

The values mirror a conservative wstETH/WETH loop: the position runs well inside
the market's liquidation threshold and every fee stays below 10%.

*/

package config

import (
	"time"

	"github.com/elys-network/levvault/internal/types"
)

// DefaultPolicyParameters is used when no policy file is configured and no
// active parameters are stored in the database.
var DefaultPolicyParameters = types.PolicyParameters{
	TargetLoanToValue: 800_000_000, // 80% debt/collateral after a deploy.
	// Leaves 13 points to a 93% liquidation threshold.

	MaxLoanToValue: 850_000_000, // Harvest deleverages above 85%.

	LoopCount: 10, // Geometric series terms used to size the flash loan.

	MaxSlippage: 10_000_000, // 1% on every swap leg.

	PriceMaxAge: time.Hour, // Oracle answers older than this are rejected.
}

// DefaultVault holds the single-vault fee and cap defaults.
var DefaultVault = VaultSection{
	Name:              "wsteth-loop-vault",
	StrategyName:      "wsteth-loop",
	PerformanceFeeBps: 1000, // 10% of positive pnl, minted as shares.
	WithdrawalFeeBps:  50,   // 0.5% of the proceeds.
}

// DefaultMulti spreads the multi-strategy vault over the leveraged loop and two
// plain supply markets.
var DefaultMulti = MultiSection{
	Name:                  "weth-yield",
	Strategies:            []string{"wsteth-loop-multi", "supply-core", "supply-prime"},
	Weights:               []uint64{4000, 3500, 2500},
	PerformanceFeeBps:     1000,
	WithdrawalFeeBps:      30,
	MinWeightBps:          1000, // A strategy kept in the set gets at least 10%.
	MaxWeightBps:          6000, // And at most 60%.
	RebalanceThresholdBps: 200,  // Reallocate only when a holding drifts 2% from target.
	YieldLookback:         24,   // Harvests used to score a strategy.
	MaxMoveBps:            2500, // At most a quarter of the capital moves per cycle.
	VolatilityPenalty:     0.5,
}

// DefaultMarket describes the simulated venues.
var DefaultMarket = MarketSection{
	CollateralPrice:         "1.2",
	LoanToValuePPB:          900_000_000,
	LiquidationThresholdPPB: 930_000_000,
	FlashLoanFeeBps:         9,
	SwapFeeBps:              30,
	CollateralYieldBps:      3,
	SupplyRateBps:           1,
	BorrowRateBps:           2,
}

// DefaultFile is the complete default deployment.
func DefaultFile() File {
	return File{
		Version: CurrentPolicyVersion,
		Policy: PolicySection{
			TargetLoanToValuePPB: DefaultPolicyParameters.TargetLoanToValue,
			MaxLoanToValuePPB:    DefaultPolicyParameters.MaxLoanToValue,
			LoopCount:            DefaultPolicyParameters.LoopCount,
			MaxSlippagePPB:       DefaultPolicyParameters.MaxSlippage,
			PriceMaxAge:          Duration{DefaultPolicyParameters.PriceMaxAge},
		},
		Vault:  DefaultVault,
		Multi:  cloneMulti(DefaultMulti),
		Market: DefaultMarket,
	}
}

func cloneMulti(m MultiSection) MultiSection {
	m.Strategies = append([]string(nil), m.Strategies...)
	m.Weights = append([]uint64(nil), m.Weights...)
	return m
}
