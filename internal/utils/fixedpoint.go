package utils

import (
	sdkmath "cosmossdk.io/math"
)

// OneE18 is 1.0 in 18-decimal fixed point.
var OneE18 = sdkmath.NewIntWithDecimal(1, 18)

// MulDiv returns a*b/c rounded toward zero.
func MulDiv(a, b, c sdkmath.Int) sdkmath.Int {
	return a.Mul(b).Quo(c)
}

// MulDivUp returns a*b/c rounded up for non-negative operands.
func MulDivUp(a, b, c sdkmath.Int) sdkmath.Int {
	num := a.Mul(b)
	q := num.Quo(c)
	if !num.Mod(c).IsZero() {
		q = q.AddRaw(1)
	}
	return q
}

// ApplyBps returns amount*bps/10000 rounded down.
func ApplyBps(amount sdkmath.Int, bps uint64) sdkmath.Int {
	return MulDiv(amount, sdkmath.NewIntFromUint64(bps), sdkmath.NewInt(10_000))
}

// ApplyBpsUp returns amount*bps/10000 rounded up.
func ApplyBpsUp(amount sdkmath.Int, bps uint64) sdkmath.Int {
	return MulDivUp(amount, sdkmath.NewIntFromUint64(bps), sdkmath.NewInt(10_000))
}

// ApplyPPB returns amount*ppb/1e9 rounded down.
func ApplyPPB(amount sdkmath.Int, ppb uint64) sdkmath.Int {
	return MulDiv(amount, sdkmath.NewIntFromUint64(ppb), sdkmath.NewInt(1_000_000_000))
}

// MinInt returns the smaller of a and b.
func MinInt(a, b sdkmath.Int) sdkmath.Int {
	if a.LT(b) {
		return a
	}
	return b
}
