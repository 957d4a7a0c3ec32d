package chain

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferFromConsumesAllowance(t *testing.T) {
	ledger := NewTokenLedger()
	require.NoError(t, ledger.Mint("weth", alice, sdkmath.NewInt(50)))
	require.NoError(t, ledger.Approve("weth", alice, bob, sdkmath.NewInt(30)))

	require.NoError(t, ledger.TransferFrom("weth", bob, alice, carol, sdkmath.NewInt(20)))
	assert.Equal(t, sdkmath.NewInt(10), ledger.Allowance("weth", alice, bob))
	assert.Equal(t, sdkmath.NewInt(20), ledger.BalanceOf("weth", carol))

	err := ledger.TransferFrom("weth", bob, alice, carol, sdkmath.NewInt(11))
	require.ErrorIs(t, err, types.ErrInsufficientAllowance)

	require.NoError(t, ledger.TransferFrom("weth", bob, alice, carol, sdkmath.NewInt(10)))
	assert.True(t, ledger.Allowance("weth", alice, bob).IsZero())
}

func TestTransferRejectsOverdraft(t *testing.T) {
	ledger := NewTokenLedger()
	require.NoError(t, ledger.Mint("weth", alice, sdkmath.NewInt(5)))

	err := ledger.Transfer("weth", alice, bob, sdkmath.NewInt(6))
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
	assert.Equal(t, sdkmath.NewInt(5), ledger.BalanceOf("weth", alice))
}

func TestMintAndBurnTrackSupply(t *testing.T) {
	ledger := NewTokenLedger()
	require.NoError(t, ledger.Mint("eth", alice, sdkmath.NewInt(9)))
	require.NoError(t, ledger.Mint("eth", bob, sdkmath.NewInt(1)))
	require.NoError(t, ledger.Burn("eth", alice, sdkmath.NewInt(4)))

	assert.Equal(t, sdkmath.NewInt(6), ledger.TotalSupply("eth"))
	require.ErrorIs(t, ledger.Burn("eth", bob, sdkmath.NewInt(2)), types.ErrInsufficientBalance)
	assert.Equal(t, []string{"eth"}, ledger.Denoms())
}

func TestDeriveAddressIsDeterministic(t *testing.T) {
	assert.Equal(t, DeriveAddress("vault"), DeriveAddress("vault"))
	assert.NotEqual(t, DeriveAddress("vault"), DeriveAddress("strategy"))
}
