/*

This file contains the interfaces of the external collaborators a strategy relies on:
price oracle, flash loan provider, lending market and swap router.

*/

package types

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// FlashLoanCallbackSuccess is the value a borrower must return from OnFlashLoan.
var FlashLoanCallbackSuccess = crypto.Keccak256Hash([]byte("ERC3156FlashBorrower.onFlashLoan"))

// Price is an oracle answer in 1e18 fixed point.
type Price struct {
	Value     sdkmath.Int `json:"value"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Oracle returns the latest price of an asset pair.
type Oracle interface {
	LatestPrice(ctx context.Context) (Price, error)
}

// FreshPrice reads the oracle and rejects answers older than maxAge at now.
func FreshPrice(ctx context.Context, oracle Oracle, now time.Time, maxAge time.Duration) (Price, error) {
	price, err := oracle.LatestPrice(ctx)
	if err != nil {
		return Price{}, err
	}
	if now.Sub(price.UpdatedAt) > maxAge {
		return Price{}, fmt.Errorf("%w: updated at %s, max age %s", ErrPriceOutdated, price.UpdatedAt.UTC().Format(time.RFC3339), maxAge)
	}
	if !price.Value.IsPositive() {
		return Price{}, fmt.Errorf("%w: non-positive price", ErrPriceOutdated)
	}
	return price, nil
}

// FlashBorrower receives flash loan callbacks.
type FlashBorrower interface {
	Address() common.Address
	OnFlashLoan(ctx context.Context, sender, initiator common.Address, asset string, amount, fee sdkmath.Int, data []byte) (common.Hash, error)
}

// FlashLender lends an asset for the duration of one callback.
type FlashLender interface {
	Address() common.Address
	MaxFlashLoan(asset string) sdkmath.Int
	FlashFee(asset string, amount sdkmath.Int) (sdkmath.Int, error)
	FlashLoan(ctx context.Context, initiator common.Address, receiver FlashBorrower, asset string, amount sdkmath.Int, data []byte) error
}

// AccountData summarizes an account in the lending market base currency.
// LTV and LiquidationThreshold are in parts-per-billion, HealthFactor in 1e18.
type AccountData struct {
	TotalCollateralBase  sdkmath.Int `json:"total_collateral_base"`
	TotalDebtBase        sdkmath.Int `json:"total_debt_base"`
	LTV                  uint64      `json:"ltv"`
	LiquidationThreshold uint64      `json:"liquidation_threshold"`
	HealthFactor         sdkmath.Int `json:"health_factor"`
}

// LendingMarket is an AAVE-style money market. Supply and Repay pull funds
// through the caller's allowance.
type LendingMarket interface {
	Address() common.Address
	Supply(ctx context.Context, caller common.Address, asset string, amount sdkmath.Int) error
	Withdraw(ctx context.Context, caller common.Address, asset string, amount sdkmath.Int, to common.Address) (sdkmath.Int, error)
	Borrow(ctx context.Context, caller common.Address, asset string, amount sdkmath.Int) error
	Repay(ctx context.Context, caller common.Address, asset string, amount sdkmath.Int) (sdkmath.Int, error)
	CollateralBalance(account common.Address, asset string) sdkmath.Int
	DebtBalance(account common.Address, asset string) sdkmath.Int
	UserAccountData(ctx context.Context, account common.Address) (AccountData, error)
}

// SwapMode selects which side of a swap is fixed.
type SwapMode uint8

const (
	ExactIn SwapMode = iota
	ExactOut
)

func (m SwapMode) String() string {
	switch m {
	case ExactIn:
		return "exact_in"
	case ExactOut:
		return "exact_out"
	default:
		return fmt.Sprintf("swap_mode(%d)", uint8(m))
	}
}

// SwapParams describes a swap. With ExactIn, AmountOut is the minimum accepted
// output; with ExactOut, AmountIn is the maximum accepted input.
type SwapParams struct {
	UnderlyingIn  string      `json:"underlying_in"`
	UnderlyingOut string      `json:"underlying_out"`
	Mode          SwapMode    `json:"mode"`
	AmountIn      sdkmath.Int `json:"amount_in"`
	AmountOut     sdkmath.Int `json:"amount_out"`
	Payload       []byte      `json:"payload,omitempty"`
}

// SwapResult reports the amounts actually exchanged.
type SwapResult struct {
	AmountIn  sdkmath.Int `json:"amount_in"`
	AmountOut sdkmath.Int `json:"amount_out"`
}

// SwapRouter exchanges assets. Inputs are pulled through the caller's allowance.
type SwapRouter interface {
	Address() common.Address
	ExecuteSwap(ctx context.Context, caller common.Address, params SwapParams) (SwapResult, error)
}
