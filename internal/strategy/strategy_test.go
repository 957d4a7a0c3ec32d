package strategy

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/chain"
	"github.com/elys-network/levvault/internal/events"
	"github.com/elys-network/levvault/internal/simulations"
	"github.com/elys-network/levvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	debtAsset       = "weth"
	collateralAsset = "wsteth"
)

var (
	owner    = chain.DeriveAddress("vault")
	governor = chain.DeriveAddress("governor")
	stranger = chain.DeriveAddress("stranger")
)

func units(n int64) sdkmath.Int { return sdkmath.NewIntWithDecimal(n, 18) }

func testPolicy() types.PolicyParameters {
	return types.PolicyParameters{
		TargetLoanToValue: 800_000_000,
		MaxLoanToValue:    850_000_000,
		LoopCount:         10,
		MaxSlippage:       10_000_000,
		PriceMaxAge:       time.Hour,
	}
}

type world struct {
	rt       *chain.Runtime
	ledger   *chain.TokenLedger
	feed     *simulations.PriceFeed
	lender   *simulations.FlashLender
	market   *simulations.LendingMarket
	dex      *simulations.DEX
	strategy *Leveraged
	now      time.Time
}

func newWorld(t *testing.T) *world {
	t.Helper()
	return newWorldWith(t, 30, testPolicy())
}

func newWorldWith(t *testing.T, dexFeeBps uint64, policy types.PolicyParameters) *world {
	t.Helper()
	w := &world{now: time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)}
	w.rt = chain.NewRuntime()
	w.rt.SetClock(func() time.Time { return w.now })
	w.ledger = chain.NewTokenLedger()
	w.rt.Register(w.ledger)

	prices := simulations.NewPriceBook()
	w.feed = simulations.NewPriceFeed(sdkmath.NewIntWithDecimal(12, 17), w.now)
	prices.Set(collateralAsset, w.feed)

	w.lender = simulations.NewFlashLender(w.rt, w.ledger, "flash-lender", 9)
	w.market = simulations.NewLendingMarket(w.rt, w.ledger, prices, simulations.MarketConfig{
		Name:                 "lending-market",
		LTV:                  900_000_000,
		LiquidationThreshold: 930_000_000,
	})
	w.dex = simulations.NewDEX(w.rt, w.ledger, prices, "dex", dexFeeBps)

	require.NoError(t, w.ledger.Mint(debtAsset, w.lender.Address(), units(1000)))
	require.NoError(t, w.ledger.Mint(debtAsset, w.market.Address(), units(1000)))
	require.NoError(t, w.ledger.Mint(debtAsset, w.dex.Address(), units(1000)))
	require.NoError(t, w.ledger.Mint(collateralAsset, w.dex.Address(), units(1000)))

	s, err := NewLeveraged(LeveragedConfig{
		Runtime:         w.rt,
		Ledger:          w.ledger,
		Name:            "wsteth-loop",
		Owner:           owner,
		Governor:        governor,
		CollateralAsset: collateralAsset,
		DebtAsset:       debtAsset,
		Oracle:          w.feed,
		FlashLender:     w.lender,
		Market:          w.market,
		Swapper:         w.dex,
		Policy:          policy,
	})
	require.NoError(t, err)
	w.strategy = s
	return w
}

func (w *world) fund(t *testing.T, amount sdkmath.Int) {
	t.Helper()
	require.NoError(t, w.ledger.Mint(debtAsset, owner, amount))
	require.NoError(t, w.ledger.Approve(debtAsset, owner, w.strategy.Address(), amount))
}

func (w *world) deploy(t *testing.T, amount sdkmath.Int) sdkmath.Int {
	t.Helper()
	w.fund(t, amount)
	leveraged, err := w.strategy.Deploy(context.Background(), owner, amount)
	require.NoError(t, err)
	return leveraged
}

func (w *world) setPrice(p sdkmath.Int) {
	w.feed.SetPrice(p, w.now)
}

func TestDeployMatchesLeverageClosedForm(t *testing.T) {
	w := newWorld(t)
	lenderBefore := w.ledger.BalanceOf(debtAsset, w.lender.Address())

	leveraged := w.deploy(t, units(10))

	expected, ok := sdkmath.NewIntFromString("45705032704000000000")
	require.True(t, ok)
	assert.Equal(t, expected, leveraged)

	pos := w.strategy.Position()
	assert.LessOrEqual(t, pos.LoanToValue, testPolicy().MaxLoanToValue)
	assert.Greater(t, pos.LoanToValue, uint64(750_000_000))
	assert.True(t, w.strategy.TotalAssets().IsPositive())
	assert.True(t, w.strategy.TotalAssets().LT(units(10)), "swap and flash fees come out of equity")
	assert.Equal(t, w.strategy.TotalAssets(), w.strategy.Deployed())
	assert.True(t, w.ledger.BalanceOf(debtAsset, w.lender.Address()).GT(lenderBefore), "flash fee paid")
	assert.True(t, w.ledger.BalanceOf(debtAsset, w.strategy.Address()).IsZero())

	deploys := w.rt.Events().Filter(events.KindStrategyDeploy)
	require.Len(t, deploys, 1)
	assert.Equal(t, owner, deploys[0].From)
	assert.Equal(t, units(10), deploys[0].Amount)
	updates := w.rt.Events().Filter(events.KindStrategyAmountUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, w.strategy.Deployed(), updates[0].Amount)
}

func TestDeployRejectsInvalidCalls(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.fund(t, units(10))

	_, err := w.strategy.Deploy(ctx, owner, sdkmath.ZeroInt())
	require.ErrorIs(t, err, types.ErrInvalidDeployAmount)

	_, err = w.strategy.Deploy(ctx, stranger, units(1))
	require.ErrorIs(t, err, types.ErrNoPermissions)

	w.feed.SetPrice(sdkmath.NewIntWithDecimal(12, 17), w.now.Add(-2*time.Hour))
	_, err = w.strategy.Deploy(ctx, owner, units(1))
	require.ErrorIs(t, err, types.ErrPriceOutdated)

	assert.Equal(t, units(10), w.ledger.BalanceOf(debtAsset, owner))
	assert.True(t, w.strategy.Position().IsEmpty())
	assert.Zero(t, w.rt.Events().Len())
}

func TestDeployRevertsWhenAboveMaxLoanToValue(t *testing.T) {
	policy := testPolicy()
	policy.MaxLoanToValue = 800_000_000
	policy.MaxSlippage = 50_000_000
	// a 3% swap fee pushes the looped position just past 80%
	w := newWorldWith(t, 300, policy)
	w.fund(t, units(10))
	balances := w.ledger.Snapshot()

	_, err := w.strategy.Deploy(context.Background(), owner, units(10))
	require.ErrorIs(t, err, types.ErrMaxLoanToValueExceeded)
	assert.Equal(t, balances, w.ledger.Snapshot())
	assert.True(t, w.market.DebtBalance(w.strategy.Address(), debtAsset).IsZero())
}

func TestUndeployBeyondEquityLeavesStateUnchanged(t *testing.T) {
	w := newWorld(t)
	w.deploy(t, units(10))
	pos := w.strategy.Position()
	deployed := w.strategy.Deployed()
	balances := w.ledger.Snapshot()
	logLen := w.rt.Events().Len()

	_, err := w.strategy.Undeploy(context.Background(), owner, units(10))
	require.ErrorIs(t, err, types.ErrCollateralLowerThanDebt)

	assert.Equal(t, pos, w.strategy.Position())
	assert.Equal(t, deployed, w.strategy.Deployed())
	assert.Equal(t, balances, w.ledger.Snapshot())
	assert.Equal(t, logLen, w.rt.Events().Len())
}

func TestUndeployPartialKeepsLoanToValue(t *testing.T) {
	w := newWorld(t)
	w.deploy(t, units(10))
	before := w.strategy.Position()

	remitted, err := w.strategy.Undeploy(context.Background(), owner, units(5))
	require.NoError(t, err)

	assert.True(t, remitted.IsPositive())
	assert.True(t, remitted.LTE(units(5)))
	assert.Equal(t, remitted, w.ledger.BalanceOf(debtAsset, owner))

	after := w.strategy.Position()
	assert.InDelta(t, float64(before.LoanToValue), float64(after.LoanToValue), 5_000_000)
	assert.True(t, after.Equity().IsPositive())

	undeploys := w.rt.Events().Filter(events.KindStrategyUndeploy)
	require.Len(t, undeploys, 1)
	assert.Equal(t, remitted, undeploys[0].Amount)
}

func TestUndeployFullEquityClosesPosition(t *testing.T) {
	w := newWorld(t)
	w.deploy(t, units(10))

	remitted, err := w.strategy.Undeploy(context.Background(), owner, w.strategy.TotalAssets())
	require.NoError(t, err)

	assert.True(t, w.market.DebtBalance(w.strategy.Address(), debtAsset).IsZero())
	assert.True(t, w.market.CollateralBalance(w.strategy.Address(), collateralAsset).IsZero())
	assert.True(t, w.strategy.Position().IsEmpty())
	assert.True(t, w.strategy.TotalAssets().IsZero())
	assert.True(t, remitted.GT(units(9)))

	_, err = w.strategy.Undeploy(context.Background(), owner, units(1))
	require.ErrorIs(t, err, types.ErrNoCollateralMarginToScale)
}

func TestHarvestReportsProfit(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.deploy(t, units(10))
	deployed := w.strategy.Deployed()

	pnl, err := w.strategy.Harvest(ctx, owner)
	require.NoError(t, err)
	assert.True(t, pnl.IsZero())
	assert.Empty(t, w.rt.Events().Filter(events.KindStrategyProfit))

	w.setPrice(sdkmath.NewIntWithDecimal(13, 17))
	pnl, err = w.strategy.Harvest(ctx, owner)
	require.NoError(t, err)
	require.True(t, pnl.IsPositive())
	assert.Equal(t, deployed.Add(pnl), w.strategy.Deployed())

	profits := w.rt.Events().Filter(events.KindStrategyProfit)
	require.Len(t, profits, 1)
	assert.Equal(t, pnl, profits[0].Amount)
}

func TestHarvestDeleveragesAboveBand(t *testing.T) {
	w := newWorld(t)
	w.deploy(t, units(10))
	debtBefore := w.market.DebtBalance(w.strategy.Address(), debtAsset)

	w.setPrice(sdkmath.NewIntWithDecimal(11, 17))
	pnl, err := w.strategy.Harvest(context.Background(), owner)
	require.NoError(t, err)

	assert.True(t, pnl.IsNegative())
	pos := w.strategy.Position()
	assert.LessOrEqual(t, pos.LoanToValue, testPolicy().MaxLoanToValue)
	assert.True(t, w.market.DebtBalance(w.strategy.Address(), debtAsset).LT(debtBefore))

	losses := w.rt.Events().Filter(events.KindStrategyLoss)
	require.Len(t, losses, 1)
	assert.Equal(t, pnl.Neg(), losses[0].Amount)
	assert.Equal(t, pos.Equity(), w.strategy.Deployed())
}

func TestHarvestRequiresOwnerAndFreshPrice(t *testing.T) {
	w := newWorld(t)
	w.deploy(t, units(10))

	_, err := w.strategy.Harvest(context.Background(), stranger)
	require.ErrorIs(t, err, types.ErrNoPermissions)

	w.now = w.now.Add(2 * time.Hour)
	_, err = w.strategy.Harvest(context.Background(), owner)
	require.ErrorIs(t, err, types.ErrPriceOutdated)
}

func TestOnFlashLoanRejectsSpoofedCallbacks(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	s := w.strategy
	data, err := flashArgs.Pack(uint8(opDeploy), units(1).BigInt(), units(0).BigInt())
	require.NoError(t, err)

	_, err = s.OnFlashLoan(ctx, stranger, s.Address(), debtAsset, units(1), sdkmath.ZeroInt(), data)
	require.ErrorIs(t, err, types.ErrInvalidFlashLoanSender)

	_, err = s.OnFlashLoan(ctx, w.lender.Address(), s.Address(), collateralAsset, units(1), sdkmath.ZeroInt(), data)
	require.ErrorIs(t, err, types.ErrInvalidFlashLoanAsset)

	_, err = s.OnFlashLoan(ctx, w.lender.Address(), s.Address(), debtAsset, units(1), sdkmath.ZeroInt(), data)
	require.ErrorIs(t, err, types.ErrFailedToAuthenticateArgs)

	// a real loan aimed at the strategy by someone else
	lenderBefore := w.ledger.BalanceOf(debtAsset, w.lender.Address())
	err = w.lender.FlashLoan(ctx, stranger, s, debtAsset, units(1), data)
	require.ErrorIs(t, err, types.ErrFailedToAuthenticateArgs)
	assert.Equal(t, lenderBefore, w.ledger.BalanceOf(debtAsset, w.lender.Address()))
	assert.True(t, w.ledger.BalanceOf(debtAsset, s.Address()).IsZero())
}

func TestFlashArgsRoundTrip(t *testing.T) {
	data, err := flashArgs.Pack(uint8(opUndeploy), units(3).BigInt(), units(0).AddRaw(7).BigInt())
	require.NoError(t, err)
	op, arg, nonce, err := DecodeFlashArgs(data)
	require.NoError(t, err)
	assert.Equal(t, uint8(opUndeploy), op)
	assert.Equal(t, units(3), arg)
	assert.Equal(t, uint64(7), nonce)
}

func TestSetPolicy(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	policy := testPolicy()
	policy.LoopCount = 5

	require.ErrorIs(t, w.strategy.SetPolicy(ctx, stranger, policy), types.ErrNoPermissions)

	bad := policy
	bad.TargetLoanToValue = 900_000_000
	require.ErrorIs(t, w.strategy.SetPolicy(ctx, governor, bad), types.ErrInvalidLoanToValue)

	require.NoError(t, w.strategy.SetPolicy(ctx, governor, policy))
	assert.Equal(t, uint64(5), w.strategy.Policy().LoopCount)
	assert.Len(t, w.rt.Events().Filter(events.KindPolicyUpdated), 1)
}

func TestNewLeveragedValidatesConfig(t *testing.T) {
	_, err := NewLeveraged(LeveragedConfig{Runtime: chain.NewRuntime(), Ledger: chain.NewTokenLedger(), Name: "x"})
	require.Error(t, err)
}

func TestSupplyStrategyHarvestsInterest(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	s, err := NewSupply(SupplyConfig{
		Runtime: w.rt,
		Ledger:  w.ledger,
		Name:    "weth-supply",
		Owner:   owner,
		Asset:   debtAsset,
		Market:  w.market,
	})
	require.NoError(t, err)

	require.NoError(t, w.ledger.Mint(debtAsset, owner, units(100)))
	require.NoError(t, w.ledger.Approve(debtAsset, owner, s.Address(), units(100)))
	_, err = s.Deploy(ctx, owner, units(100))
	require.NoError(t, err)
	assert.Equal(t, units(100), s.TotalAssets())

	require.NoError(t, w.market.AccrueInterest(ctx, debtAsset, 100, 0))
	pnl, err := s.Harvest(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, units(1), pnl)
	assert.Equal(t, units(101), s.TotalAssets())

	_, err = s.Undeploy(ctx, owner, units(200))
	require.ErrorIs(t, err, types.ErrInsufficientBalance)

	got, err := s.Undeploy(ctx, owner, units(101))
	require.NoError(t, err)
	assert.Equal(t, units(101), got)
	assert.Equal(t, units(101), w.ledger.BalanceOf(debtAsset, owner))
	assert.True(t, s.TotalAssets().IsZero())

	_, err = s.Deploy(ctx, common.Address{}, units(1))
	require.ErrorIs(t, err, types.ErrNoPermissions)
}
