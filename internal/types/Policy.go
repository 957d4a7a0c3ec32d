/*

This file contains the policy types of a leveraged position together with the
fixed-point scales used across the protocol.

*/

package types

import (
	"fmt"
	"time"
)

const (
	// LoanToValueScale is 100% expressed in parts-per-billion.
	LoanToValueScale uint64 = 1_000_000_000
	// BasisPointScale is 100% expressed in basis points.
	BasisPointScale uint64 = 10_000
	// MaxLoops is the largest loop count accepted by the leverage math.
	MaxLoops uint64 = 20
	// PriceDecimals is the fixed-point precision of oracle prices.
	PriceDecimals = 18
)

// PolicyParameters holds the risk band and execution bounds of one leveraged strategy.
// Loan-to-value and slippage are in parts-per-billion.
type PolicyParameters struct {
	TargetLoanToValue uint64        `json:"target_loan_to_value" toml:"target_loan_to_value"` // LTV the strategy levers up to on deploy and returns to on harvest.
	MaxLoanToValue    uint64        `json:"max_loan_to_value" toml:"max_loan_to_value"`       // LTV above which harvest deleverages.
	LoopCount         uint64        `json:"loop_count" toml:"loop_count"`                     // Number of borrow/resupply iterations modelled by the leverage ratio.
	MaxSlippage       uint64        `json:"max_slippage" toml:"max_slippage"`                 // Worst accepted swap shortfall against the oracle quote.
	PriceMaxAge       time.Duration `json:"price_max_age" toml:"price_max_age"`               // Oldest oracle answer accepted for a risk-sensitive calculation.
}

// Validate checks the policy bounds. The target must sit inside the band and the
// band must stay below 100%, otherwise the leverage series diverges.
func (p PolicyParameters) Validate() error {
	if p.TargetLoanToValue == 0 || p.TargetLoanToValue > p.MaxLoanToValue {
		return fmt.Errorf("%w: target %d must be in (0, max %d]", ErrInvalidLoanToValue, p.TargetLoanToValue, p.MaxLoanToValue)
	}
	if p.MaxLoanToValue >= LoanToValueScale {
		return fmt.Errorf("%w: max %d must be below %d", ErrInvalidLoanToValue, p.MaxLoanToValue, LoanToValueScale)
	}
	if p.LoopCount > MaxLoops {
		return fmt.Errorf("%w: %d", ErrInvalidNumberOfLoops, p.LoopCount)
	}
	if p.MaxSlippage >= LoanToValueScale {
		return fmt.Errorf("%w: max slippage %d", ErrInvalidPolicy, p.MaxSlippage)
	}
	if p.PriceMaxAge <= 0 {
		return fmt.Errorf("%w: price max age must be positive", ErrInvalidPolicy)
	}
	return nil
}
