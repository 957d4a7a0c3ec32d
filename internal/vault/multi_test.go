package vault

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/chain"
	"github.com/elys-network/levvault/internal/events"
	"github.com/elys-network/levvault/internal/strategy"
	"github.com/elys-network/levvault/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multiName = "weth-multi"

func dec(n int64, exp int) sdkmath.Int { return sdkmath.NewIntWithDecimal(n, exp) }

func (h *harness) newSupply(t *testing.T, name string) *strategy.Supply {
	t.Helper()
	s, err := strategy.NewSupply(strategy.SupplyConfig{
		Runtime: h.rt,
		Ledger:  h.ledger,
		Name:    name,
		Owner:   chain.DeriveAddress(multiName),
		Asset:   "weth",
		Market:  h.market,
	})
	require.NoError(t, err)
	return s
}

func (h *harness) newMulti(t *testing.T, weights ...uint64) *MultiStrategyVault {
	t.Helper()
	settings := defaultSettings()
	settings.WithdrawalFeeBps = 100
	var allocations []Allocation
	for i, w := range weights {
		allocations = append(allocations, Allocation{
			Strategy: h.newSupply(t, "supply-"+string(rune('a'+i))),
			Weight:   w,
		})
	}
	v, err := NewMulti(Config{
		Runtime:  h.rt,
		Ledger:   h.ledger,
		Name:     multiName,
		Asset:    "weth",
		Governor: governor,
		Operator: operator,
		Settings: settings,
	}, allocations)
	require.NoError(t, err)
	return v
}

func depositMulti(t *testing.T, h *harness, v *MultiStrategyVault, amount sdkmath.Int) sdkmath.Int {
	t.Helper()
	h.fund(t, alice, v.Address(), amount)
	shares, err := v.Deposit(context.Background(), alice, amount, alice)
	require.NoError(t, err)
	return shares
}

func TestMultiDepositSplitsByWeight(t *testing.T) {
	h := newHarness(t)
	v := h.newMulti(t, 6000, 4000)

	shares := depositMulti(t, h, v, units(100))
	assert.Equal(t, units(100), shares)
	assert.Equal(t, []sdkmath.Int{units(60), units(40)}, v.Holdings())
	assert.True(t, v.Idle().IsZero())
	assert.Equal(t, units(100), v.TotalAssets())
	assertShareConservation(t, v)
}

func TestMultiPartialWeightsDeployEverything(t *testing.T) {
	h := newHarness(t)
	v := h.newMulti(t, 3000, 1000)

	depositMulti(t, h, v, units(100))
	assert.Equal(t, []sdkmath.Int{units(75), units(25)}, v.Holdings())
	assert.True(t, v.Idle().IsZero())
}

func TestMultiAdjustPositionsMovesCapital(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.newMulti(t, 6000, 4000)
	depositMulti(t, h, v, units(100))

	_, err := v.Rebalance(ctx, alice, []types.RebalanceCommand{types.Harvest{}})
	require.ErrorIs(t, err, types.ErrNoPermissions)

	report, err := v.Rebalance(ctx, operator, []types.RebalanceCommand{
		types.AdjustPositions{Indices: []int{0, 1}, Deltas: []sdkmath.Int{units(-10), units(10)}},
	})
	require.NoError(t, err)
	assert.Equal(t, []sdkmath.Int{units(50), units(50)}, v.Holdings())
	assert.Equal(t, units(10), report.AssetsMoved)
	assert.Equal(t, []types.RebalanceActionType{types.RebalanceAdjustPositions}, report.Actions)
	assert.Equal(t, units(100), v.TotalAssets())
	assert.Equal(t, units(100), v.TotalSupply())
}

func TestMultiAdjustPositionsRejectsBadCommands(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.newMulti(t, 6000, 4000)
	depositMulti(t, h, v, units(100))
	vaultWeth := h.ledger.BalanceOf("weth", v.Address())
	marketWeth := h.ledger.BalanceOf("weth", h.market.Address())

	cases := []struct {
		name string
		cmd  types.AdjustPositions
		err  error
	}{
		{"unsorted", types.AdjustPositions{Indices: []int{1, 0}, Deltas: []sdkmath.Int{units(10), units(-10)}}, types.ErrInvalidDeltas},
		{"nonzero sum", types.AdjustPositions{Indices: []int{0, 1}, Deltas: []sdkmath.Int{units(-1), units(2)}}, types.ErrInvalidDeltas},
		{"length mismatch", types.AdjustPositions{Indices: []int{0, 1}, Deltas: []sdkmath.Int{units(0)}}, types.ErrInvalidDeltas},
		{"empty", types.AdjustPositions{}, types.ErrInvalidDeltas},
		{"out of range", types.AdjustPositions{Indices: []int{0, 2}, Deltas: []sdkmath.Int{units(-1), units(1)}}, types.ErrInvalidStrategyIndex},
		{"negative index", types.AdjustPositions{Indices: []int{-1, 0}, Deltas: []sdkmath.Int{units(-1), units(1)}}, types.ErrInvalidStrategyIndex},
		{"duplicate", types.AdjustPositions{Indices: []int{0, 0}, Deltas: []sdkmath.Int{units(-1), units(1)}}, types.ErrInvalidStrategyIndex},
		{"overdrawn", types.AdjustPositions{Indices: []int{0, 1}, Deltas: []sdkmath.Int{units(-70), units(70)}}, types.ErrInsufficientBalance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Rebalance(ctx, operator, []types.RebalanceCommand{tc.cmd})
			require.ErrorIs(t, err, tc.err)
			assert.Equal(t, []sdkmath.Int{units(60), units(40)}, v.Holdings())
			assert.Equal(t, vaultWeth.String(), h.ledger.BalanceOf("weth", v.Address()).String())
			assert.Equal(t, marketWeth, h.ledger.BalanceOf("weth", h.market.Address()))
		})
	}
}

func TestMultiRebalanceRollsBackEarlierCommands(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.newMulti(t, 6000, 4000)
	depositMulti(t, h, v, units(100))
	reverts := h.rt.Reverts()

	_, err := v.Rebalance(ctx, operator, []types.RebalanceCommand{
		types.SetWeights{Weights: []uint64{5000, 5000}},
		types.AdjustPositions{Indices: []int{0, 1}, Deltas: []sdkmath.Int{units(-10), units(10)}},
		types.AdjustPositions{Indices: []int{1, 0}, Deltas: []sdkmath.Int{units(-100), units(100)}},
	})
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
	assert.Equal(t, []uint64{6000, 4000}, v.Weights())
	assert.Equal(t, []sdkmath.Int{units(60), units(40)}, v.Holdings())
	assert.Equal(t, units(60), h.market.CollateralBalance(v.Strategies()[0].Address(), "weth"))
	assert.Equal(t, reverts+1, h.rt.Reverts())
	assert.Empty(t, h.rt.Events().Filter(events.KindWeightsUpdated))
}

func TestMultiSetWeights(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.newMulti(t, 6000, 4000)

	_, err := v.Rebalance(ctx, operator, []types.RebalanceCommand{types.SetWeights{Weights: []uint64{10_000}}})
	require.ErrorIs(t, err, types.ErrInvalidWeightsLength)
	_, err = v.Rebalance(ctx, operator, []types.RebalanceCommand{types.SetWeights{Weights: []uint64{6000, 5000}}})
	require.ErrorIs(t, err, types.ErrInvalidWeights)

	report, err := v.Rebalance(ctx, operator, []types.RebalanceCommand{types.SetWeights{Weights: []uint64{2000, 8000}}})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2000, 8000}, report.WeightsApplied)
	assert.Equal(t, []uint64{2000, 8000}, v.Weights())

	updates := h.rt.Events().Filter(events.KindWeightsUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, []uint64{2000, 8000}, updates[0].Weights)

	depositMulti(t, h, v, units(10))
	assert.Equal(t, []sdkmath.Int{units(2), units(8)}, v.Holdings())
}

type bogusCommand struct{}

func (bogusCommand) Action() types.RebalanceActionType { return "BOGUS" }

func TestMultiRejectsUnknownCommands(t *testing.T) {
	h := newHarness(t)
	v := h.newMulti(t, 6000, 4000)

	_, err := v.Rebalance(context.Background(), operator, []types.RebalanceCommand{bogusCommand{}})
	require.ErrorIs(t, err, types.ErrUnknownCommand)
	_, err = v.Rebalance(context.Background(), operator, []types.RebalanceCommand{nil})
	require.ErrorIs(t, err, types.ErrUnknownCommand)
}

func TestMultiHarvestMintsPerformanceFee(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.newMulti(t, 6000, 4000)
	depositMulti(t, h, v, units(100))

	require.NoError(t, h.market.AccrueInterest(ctx, "weth", 100, 0))
	report, err := v.Rebalance(ctx, operator, []types.RebalanceCommand{types.Harvest{}})
	require.NoError(t, err)

	assert.Equal(t, []sdkmath.Int{dec(6, 17), dec(4, 17)}, report.HarvestPnl)
	assert.Equal(t, units(1), report.TotalPnl)
	// 0.1 of fee priced at 100 shares over 100.9 of post-fee assets
	assert.Equal(t, sdkmath.NewInt(99108027750247770), report.FeeShares)
	assert.Equal(t, report.FeeShares, v.BalanceOf(feeReceiver))
	assert.Equal(t, units(101), v.TotalAssets())
	assertShareConservation(t, v)

	// a second harvest with no interest is a no-op
	report, err = v.Rebalance(ctx, operator, []types.RebalanceCommand{types.Harvest{}})
	require.NoError(t, err)
	assert.True(t, report.TotalPnl.IsZero())
	assert.True(t, report.FeeShares.IsZero())
}

func TestMultiRedeemTakesFeeInSharesAndWithdrawsProRata(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.newMulti(t, 6000, 4000)
	depositMulti(t, h, v, units(100))

	out, err := v.Redeem(ctx, alice, units(50), alice, alice)
	require.NoError(t, err)
	assert.Equal(t, dec(495, 17), out)
	assert.Equal(t, dec(495, 17), h.ledger.BalanceOf("weth", alice))
	assert.Equal(t, dec(5, 17), v.BalanceOf(feeReceiver))
	assert.Equal(t, units(50), v.BalanceOf(alice))
	assert.Equal(t, dec(505, 17), v.TotalSupply())
	assert.Equal(t, []sdkmath.Int{dec(303, 17), dec(202, 17)}, v.Holdings())
	assert.Equal(t, dec(505, 17), v.TotalAssets())
	assert.Equal(t, units(1), v.TokenPerAsset())
	assertShareConservation(t, v)

	withdraws := h.rt.Events().Filter(events.KindWithdraw)
	require.Len(t, withdraws, 1)
	assert.Equal(t, dec(495, 17), withdraws[0].Shares)
}

func TestMultiWithdrawGrossesUpForFee(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.newMulti(t, 6000, 4000)
	depositMulti(t, h, v, units(100))

	taken, err := v.Withdraw(ctx, alice, units(10), alice, alice)
	require.NoError(t, err)
	// 10 shares grossed up by 1/(1-1%), rounded up
	expected, ok := sdkmath.NewIntFromString("10101010101010101011")
	require.True(t, ok)
	assert.Equal(t, expected, taken)
	assert.Equal(t, units(10), h.ledger.BalanceOf("weth", alice))
	assert.Equal(t, units(100).Sub(taken), v.BalanceOf(alice))
	assertShareConservation(t, v)
}

func TestMultiRedeemUsesIdleFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.newMulti(t, 6000, 4000)
	depositMulti(t, h, v, units(100))

	_, err := v.Rebalance(ctx, operator, []types.RebalanceCommand{types.SetWeights{Weights: []uint64{0, 0}}})
	require.NoError(t, err)
	depositMulti(t, h, v, units(20))
	require.Equal(t, units(20), v.Idle())

	_, err = v.Redeem(ctx, alice, units(10), alice, alice)
	require.NoError(t, err)
	assert.Equal(t, []sdkmath.Int{units(60), units(40)}, v.Holdings())
	assert.Equal(t, units(20).Sub(dec(99, 17)), v.Idle())
}

func TestMultiAddAndRemoveStrategy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.newMulti(t, 6000, 4000)
	depositMulti(t, h, v, units(100))

	extra := h.newSupply(t, "supply-extra")
	require.ErrorIs(t, v.AddStrategy(ctx, alice, extra, 0), types.ErrNoPermissions)
	require.ErrorIs(t, v.AddStrategy(ctx, governor, extra, 1), types.ErrInvalidWeights)
	require.Error(t, v.AddStrategy(ctx, governor, v.Strategies()[0], 0))
	require.NoError(t, v.AddStrategy(ctx, governor, extra, 0))
	assert.Len(t, v.Strategies(), 3)
	assert.Equal(t, []uint64{6000, 4000, 0}, v.Weights())

	_, err := v.RemoveStrategy(ctx, governor, 3)
	require.ErrorIs(t, err, types.ErrInvalidStrategyIndex)
	_, err = v.RemoveStrategy(ctx, operator, 0)
	require.ErrorIs(t, err, types.ErrNoPermissions)

	removed := v.Strategies()[0]
	recovered, err := v.RemoveStrategy(ctx, governor, 0)
	require.NoError(t, err)
	assert.Equal(t, units(60), recovered)
	assert.Equal(t, []uint64{4000, 0}, v.Weights())
	assert.Equal(t, units(100), v.Holdings()[0])
	assert.True(t, v.Holdings()[1].IsZero())
	assert.True(t, removed.TotalAssets().IsZero())
	assert.Equal(t, units(100), v.TotalAssets())

	removals := h.rt.Events().Filter(events.KindStrategyRemoved)
	require.Len(t, removals, 1)
	assert.Equal(t, removed.Address(), removals[0].From)
	assert.Equal(t, units(60), removals[0].Amount)
}

func TestMultiMintIssuesExactShares(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.newMulti(t, 6000, 4000)
	depositMulti(t, h, v, units(100))
	require.NoError(t, h.market.AccrueInterest(ctx, "weth", 100, 0))

	h.fund(t, bob, v.Address(), units(20))
	pulled, err := v.Mint(ctx, bob, units(10), bob)
	require.NoError(t, err)
	assert.Equal(t, units(10), v.BalanceOf(bob))
	assert.True(t, pulled.GT(units(10)), "pulled %s", pulled)
	assert.Equal(t, units(20).Sub(pulled), h.ledger.BalanceOf("weth", bob))
	assertShareConservation(t, v)

	_, err = v.Mint(ctx, bob, sdkmath.ZeroInt(), bob)
	require.ErrorIs(t, err, types.ErrInvalidDepositAmount)
}

func TestMultiRemoveStrategyChargesFinalHarvest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.newMulti(t, 6000, 4000)
	depositMulti(t, h, v, units(100))
	require.NoError(t, h.market.AccrueInterest(ctx, "weth", 100, 0))

	recovered, err := v.RemoveStrategy(ctx, governor, 0)
	require.NoError(t, err)
	assert.Equal(t, dec(606, 17), recovered)
	assert.True(t, v.BalanceOf(feeReceiver).IsPositive())
	assertShareConservation(t, v)
}

func TestNewMultiValidatesAllocations(t *testing.T) {
	h := newHarness(t)
	s := h.newSupply(t, "supply-a")
	cfg := Config{Runtime: h.rt, Ledger: h.ledger, Name: multiName, Asset: "weth", Governor: governor, Operator: operator, Settings: defaultSettings()}

	_, err := NewMulti(cfg, []Allocation{{Strategy: s, Weight: 10_001}})
	require.ErrorIs(t, err, types.ErrInvalidWeights)
	_, err = NewMulti(cfg, []Allocation{{Strategy: s, Weight: 5000}, {Strategy: s, Weight: 5000}})
	require.Error(t, err)

	cfg.Asset = "usdc"
	_, err = NewMulti(cfg, []Allocation{{Strategy: s, Weight: 5000}})
	require.ErrorIs(t, err, types.ErrAssetMismatch)
}
