// Package leverage holds the pure fixed-point math of a looped lending position.
// Loan-to-value is in parts-per-billion, percentages in basis points.
package leverage

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/types"
)

var (
	ppbScale = sdkmath.NewIntFromUint64(types.LoanToValueScale)
	bpsScale = sdkmath.NewIntFromUint64(types.BasisPointScale)
)

// LeverageRatio returns the total amount deposited when base is supplied,
// borrowed against at ltv and re-supplied loops times:
// sum(base * ltv^i) for i in [0, loops]. Every term is truncated before it
// feeds the next one.
func LeverageRatio(base sdkmath.Int, ltv uint64, loops uint64) (sdkmath.Int, error) {
	if base.IsNil() || base.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %v", types.ErrInvalidDeployAmount, base)
	}
	if ltv == 0 || ltv > types.LoanToValueScale {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d", types.ErrInvalidLoanToValue, ltv)
	}
	if loops > types.MaxLoops {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d (max %d)", types.ErrInvalidNumberOfLoops, loops, types.MaxLoops)
	}

	ltvInt := sdkmath.NewIntFromUint64(ltv)
	total := base
	prev := base
	for i := uint64(0); i < loops; i++ {
		prev = prev.Mul(ltvInt).Quo(ppbScale)
		if prev.IsZero() {
			break
		}
		total = total.Add(prev)
	}
	return total, nil
}

// DeltaPosition scales both legs of a position by burnBps/10000.
// At 10000 the deltas are the full collateral and debt.
// A proportional scale-down leaves the LTV unchanged, so harvest deleverages
// with DebtToPay instead; this only sizes partial exits.
func DeltaPosition(burnBps uint64, collateral, debt sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	if burnBps == 0 || burnBps > types.BasisPointScale {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: %d bps", types.ErrInvalidPercentageValue, burnBps)
	}
	return DeltaPositionFraction(sdkmath.NewIntFromUint64(burnBps), bpsScale, collateral, debt)
}

// DeltaPositionFraction scales both legs by num/den with 0 < num <= den.
// Undeploy uses it with num = amount and den = equity so the unwind is exact
// instead of quantized to basis points.
func DeltaPositionFraction(num, den, collateral, debt sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	if !num.IsPositive() || !den.IsPositive() || num.GT(den) {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: %v/%v", types.ErrInvalidPercentageValue, num, den)
	}
	if collateral.IsNegative() || debt.IsNegative() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: negative position leg", types.ErrInvalidPercentageValue)
	}
	if num.Equal(den) {
		return collateral, debt, nil
	}
	return collateral.Mul(num).Quo(den), debt.Mul(num).Quo(den), nil
}

// LoanToValue returns debt/collateral in parts-per-billion, rounded up so a
// position is never reported as safer than it is. An empty position is 0.
func LoanToValue(collateral, debt sdkmath.Int) uint64 {
	if !debt.IsPositive() {
		return 0
	}
	if !collateral.IsPositive() {
		return types.LoanToValueScale
	}
	num := debt.Mul(ppbScale)
	ltv := num.Quo(collateral)
	if !num.Mod(collateral).IsZero() {
		ltv = ltv.AddRaw(1)
	}
	if !ltv.IsUint64() {
		return ^uint64(0)
	}
	return ltv.Uint64()
}

// DebtToPay returns the debt that has to be repaid, funded by selling an equal
// value of collateral, to bring the position back to targetLTV:
// (debt - target*collateral) / (1 - target). Zero when already at or under target.
func DebtToPay(targetLTV uint64, collateral, debt sdkmath.Int) (sdkmath.Int, error) {
	if targetLTV >= types.LoanToValueScale {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: target %d", types.ErrInvalidLoanToValue, targetLTV)
	}
	if collateral.IsNegative() || debt.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: negative position leg", types.ErrInvalidLoanToValue)
	}
	target := sdkmath.NewIntFromUint64(targetLTV)
	excess := debt.Mul(ppbScale).Sub(target.Mul(collateral))
	if !excess.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	denom := ppbScale.Sub(target)
	pay := excess.Quo(denom)
	if !excess.Mod(denom).IsZero() {
		pay = pay.AddRaw(1)
	}
	if pay.GT(debt) {
		pay = debt
	}
	return pay, nil
}
