package utils

import (
	"math"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat64ToSDKIntRoundsToNearest(t *testing.T) {
	got, err := Float64ToSDKInt(1.99, 1)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(20), got)

	got, err = Float64ToSDKInt(1.5, 18)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewIntWithDecimal(15, 17), got)

	got, err = Float64ToSDKInt(0, 18)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestFloat64ToSDKIntRejectsBadInput(t *testing.T) {
	_, err := Float64ToSDKInt(-1, 6)
	require.ErrorIs(t, err, ErrAmountNegative)
	_, err = Float64ToSDKInt(math.NaN(), 6)
	require.ErrorIs(t, err, ErrNotFinite)
	_, err = Float64ToSDKInt(math.Inf(1), 6)
	require.ErrorIs(t, err, ErrNotFinite)
}
