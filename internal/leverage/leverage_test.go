package leverage

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func units(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 18)
}

func TestLeverageRatioClosedForm(t *testing.T) {
	got, err := LeverageRatio(units(10), 800_000_000, 10)
	require.NoError(t, err)

	// 10 * (1 - 0.8^11) / 0.2
	want, ok := sdkmath.NewIntFromString("45705032704000000000")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestLeverageRatioIdentityAtZeroLoops(t *testing.T) {
	for _, ltv := range []uint64{1, 250_000_000, 800_000_000, types.LoanToValueScale} {
		got, err := LeverageRatio(units(3), ltv, 0)
		require.NoError(t, err)
		assert.Equal(t, units(3), got, "ltv %d", ltv)
	}
}

func TestLeverageRatioIsMonotonic(t *testing.T) {
	base := units(1000)

	prev := base
	for loops := uint64(1); loops <= types.MaxLoops; loops++ {
		got, err := LeverageRatio(base, 700_000_000, loops)
		require.NoError(t, err)
		assert.True(t, got.GT(prev), "loops %d: %s <= %s", loops, got, prev)
		prev = got
	}

	prev = base
	for ltv := uint64(100_000_000); ltv <= types.LoanToValueScale; ltv += 100_000_000 {
		got, err := LeverageRatio(base, ltv, 5)
		require.NoError(t, err)
		assert.True(t, got.GT(prev), "ltv %d: %s <= %s", ltv, got, prev)
		prev = got
	}
}

func TestLeverageRatioRejectsInvalidInputs(t *testing.T) {
	_, err := LeverageRatio(units(1), 0, 3)
	require.ErrorIs(t, err, types.ErrInvalidLoanToValue)

	_, err = LeverageRatio(units(1), types.LoanToValueScale+1, 3)
	require.ErrorIs(t, err, types.ErrInvalidLoanToValue)

	_, err = LeverageRatio(units(1), 500_000_000, types.MaxLoops+1)
	require.ErrorIs(t, err, types.ErrInvalidNumberOfLoops)

	_, err = LeverageRatio(sdkmath.NewInt(-1), 500_000_000, 1)
	require.ErrorIs(t, err, types.ErrInvalidDeployAmount)
}

func TestDeltaPositionFullUnwind(t *testing.T) {
	c, d := units(45), units(35)
	dc, dd, err := DeltaPosition(types.BasisPointScale, c, d)
	require.NoError(t, err)
	assert.Equal(t, c, dc)
	assert.Equal(t, d, dd)
}

func TestDeltaPositionScalesLegsProportionally(t *testing.T) {
	c, d := units(40), units(30)
	for _, bps := range []uint64{1, 1250, 5000, 9999} {
		dc, dd, err := DeltaPosition(bps, c, d)
		require.NoError(t, err)
		// dc/c == dd/d  <=>  dc*d == dd*c
		assert.Equal(t, dc.Mul(d), dd.Mul(c), "bps %d", bps)
	}
}

func TestDeltaPositionRejectsOutOfRangePercentage(t *testing.T) {
	_, _, err := DeltaPosition(0, units(1), units(1))
	require.ErrorIs(t, err, types.ErrInvalidPercentageValue)

	_, _, err = DeltaPosition(types.BasisPointScale+1, units(1), units(1))
	require.ErrorIs(t, err, types.ErrInvalidPercentageValue)

	_, _, err = DeltaPositionFraction(units(2), units(1), units(1), units(1))
	require.ErrorIs(t, err, types.ErrInvalidPercentageValue)
}

func TestLoanToValue(t *testing.T) {
	assert.Equal(t, uint64(0), LoanToValue(sdkmath.ZeroInt(), sdkmath.ZeroInt()))
	assert.Equal(t, uint64(800_000_000), LoanToValue(units(10), units(8)))
	assert.Equal(t, uint64(333_333_334), LoanToValue(sdkmath.NewInt(3), sdkmath.NewInt(1)), "rounds up")
	assert.Equal(t, types.LoanToValueScale, LoanToValue(sdkmath.ZeroInt(), sdkmath.NewInt(1)))
}

func TestDebtToPayRestoresTarget(t *testing.T) {
	c, d := units(100), units(90)
	target := uint64(800_000_000)

	pay, err := DebtToPay(target, c, d)
	require.NoError(t, err)
	// (90 - 0.8*100) / 0.2 = 50
	assert.Equal(t, units(50), pay)
	assert.Equal(t, target, LoanToValue(c.Sub(pay), d.Sub(pay)))

	pay, err = DebtToPay(target, c, units(70))
	require.NoError(t, err)
	assert.True(t, pay.IsZero(), "position already under target")

	_, err = DebtToPay(types.LoanToValueScale, c, d)
	require.ErrorIs(t, err, types.ErrInvalidLoanToValue)
}
