package simulations

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/chain"
	"github.com/elys-network/levvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func units(n int64) sdkmath.Int { return sdkmath.NewIntWithDecimal(n, 18) }

type fixture struct {
	rt     *chain.Runtime
	ledger *chain.TokenLedger
	prices *PriceBook
	feed   *PriceFeed
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rt := chain.NewRuntime()
	rt.SetClock(func() time.Time { return now })
	ledger := chain.NewTokenLedger()
	rt.Register(ledger)
	prices := NewPriceBook()
	// 1 wsteth = 1.2 weth
	feed := NewPriceFeed(sdkmath.NewIntWithDecimal(12, 17), now)
	prices.Set("wsteth", feed)
	return &fixture{rt: rt, ledger: ledger, prices: prices, feed: feed, now: now}
}

var user = chain.DeriveAddress("user")

func TestDEXExactInAndExactOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dex := NewDEX(f.rt, f.ledger, f.prices, "dex", 30)
	require.NoError(t, f.ledger.Mint("wsteth", dex.Address(), units(1000)))
	require.NoError(t, f.ledger.Mint("weth", dex.Address(), units(1000)))
	require.NoError(t, f.ledger.Mint("weth", user, units(12)))
	require.NoError(t, f.ledger.Approve("weth", user, dex.Address(), units(12)))

	res, err := dex.ExecuteSwap(ctx, user, types.SwapParams{
		UnderlyingIn: "weth", UnderlyingOut: "wsteth", Mode: types.ExactIn,
		AmountIn: units(12), AmountOut: sdkmath.ZeroInt(),
	})
	require.NoError(t, err)
	// 12 weth -> 10 wsteth gross, minus 0.3%
	assert.Equal(t, sdkmath.NewIntWithDecimal(997, 16), res.AmountOut)
	assert.Equal(t, res.AmountOut, f.ledger.BalanceOf("wsteth", user))

	quote, err := dex.Quote(ctx, types.SwapParams{
		UnderlyingIn: "wsteth", UnderlyingOut: "weth", Mode: types.ExactOut, AmountOut: units(6),
	})
	require.NoError(t, err)
	// ceil(6 * 1e4 / (1.2 * 9970))
	expected, ok := sdkmath.NewIntFromString("5015045135406218656")
	require.True(t, ok)
	assert.Equal(t, expected, quote.AmountIn)
	assert.Equal(t, units(6), quote.AmountOut)
}

func TestDEXEnforcesMinimumOut(t *testing.T) {
	f := newFixture(t)
	dex := NewDEX(f.rt, f.ledger, f.prices, "dex", 30)
	require.NoError(t, f.ledger.Mint("wsteth", dex.Address(), units(100)))
	require.NoError(t, f.ledger.Mint("weth", user, units(12)))
	require.NoError(t, f.ledger.Approve("weth", user, dex.Address(), units(12)))

	_, err := dex.ExecuteSwap(context.Background(), user, types.SwapParams{
		UnderlyingIn: "weth", UnderlyingOut: "wsteth", Mode: types.ExactIn,
		AmountIn: units(12), AmountOut: units(10),
	})
	require.ErrorIs(t, err, types.ErrSlippageExceeded)
	assert.Equal(t, units(12), f.ledger.BalanceOf("weth", user))
}

func TestLendingMarketEnforcesBorrowLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	market := NewLendingMarket(f.rt, f.ledger, f.prices, MarketConfig{Name: "market", LTV: 800_000_000, LiquidationThreshold: 850_000_000})
	require.NoError(t, f.ledger.Mint("weth", market.Address(), units(100)))
	require.NoError(t, f.ledger.Mint("wsteth", user, units(10)))
	require.NoError(t, f.ledger.Approve("wsteth", user, market.Address(), units(10)))

	require.NoError(t, market.Supply(ctx, user, "wsteth", units(10)))
	// 10 wsteth = 12 weth, limit 9.6 weth
	err := market.Borrow(ctx, user, "weth", units(10))
	require.ErrorIs(t, err, ErrUnhealthyPosition)
	assert.True(t, market.DebtBalance(user, "weth").IsZero())

	require.NoError(t, market.Borrow(ctx, user, "weth", units(9)))
	data, err := market.UserAccountData(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, units(12), data.TotalCollateralBase)
	assert.Equal(t, units(9), data.TotalDebtBase)

	_, err = market.Withdraw(ctx, user, "wsteth", units(5), user)
	require.ErrorIs(t, err, ErrUnhealthyPosition)

	require.NoError(t, f.ledger.Approve("weth", user, market.Address(), units(9)))
	repaid, err := market.Repay(ctx, user, "weth", units(20))
	require.NoError(t, err)
	assert.Equal(t, units(9), repaid)
}

func TestLendingMarketAccruesInterest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	market := NewLendingMarket(f.rt, f.ledger, f.prices, MarketConfig{Name: "market", LTV: 800_000_000, LiquidationThreshold: 850_000_000})
	require.NoError(t, f.ledger.Mint("weth", user, units(100)))
	require.NoError(t, f.ledger.Approve("weth", user, market.Address(), units(100)))
	require.NoError(t, market.Supply(ctx, user, "weth", units(100)))

	require.NoError(t, market.AccrueInterest(ctx, "weth", 50, 0))
	assert.Equal(t, units(1005).QuoRaw(10), market.CollateralBalance(user, "weth"))

	got, err := market.Withdraw(ctx, user, "weth", units(1005).QuoRaw(10), user)
	require.NoError(t, err)
	assert.Equal(t, got, f.ledger.BalanceOf("weth", user))
}

type borrower struct {
	address common.Address
	ledger  *chain.TokenLedger
	ret     common.Hash
	repay   bool
	calls   int
}

func (b *borrower) Address() common.Address { return b.address }

func (b *borrower) OnFlashLoan(ctx context.Context, sender, initiator common.Address, asset string, amount, fee sdkmath.Int, data []byte) (common.Hash, error) {
	b.calls++
	if b.repay {
		if err := b.ledger.Approve(asset, b.address, sender, amount.Add(fee)); err != nil {
			return common.Hash{}, err
		}
	}
	return b.ret, nil
}

func TestFlashLenderPullsRepaymentWithFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lender := NewFlashLender(f.rt, f.ledger, "lender", 9)
	require.NoError(t, f.ledger.Mint("weth", lender.Address(), units(50)))

	b := &borrower{address: user, ledger: f.ledger, ret: types.FlashLoanCallbackSuccess, repay: true}
	fee, err := lender.FlashFee("weth", units(10))
	require.NoError(t, err)
	require.NoError(t, f.ledger.Mint("weth", user, fee))

	require.NoError(t, lender.FlashLoan(ctx, user, b, "weth", units(10), nil))
	assert.Equal(t, units(50).Add(fee), f.ledger.BalanceOf("weth", lender.Address()))
	assert.Equal(t, 1, b.calls)
}

func TestFlashLenderRejectsBadCallback(t *testing.T) {
	f := newFixture(t)
	lender := NewFlashLender(f.rt, f.ledger, "lender", 0)
	require.NoError(t, f.ledger.Mint("weth", lender.Address(), units(50)))

	b := &borrower{address: user, ledger: f.ledger, ret: common.Hash{}, repay: true}
	err := lender.FlashLoan(context.Background(), user, b, "weth", units(10), nil)
	require.ErrorIs(t, err, ErrFlashLoanCallbackFailed)
	assert.Equal(t, units(50), f.ledger.BalanceOf("weth", lender.Address()))
	assert.True(t, f.ledger.BalanceOf("weth", user).IsZero())

	_, err = lender.FlashFee("weth", sdkmath.NewInt(-1))
	require.Error(t, err)
	require.ErrorIs(t, lender.FlashLoan(context.Background(), user, b, "weth", units(51), nil), ErrFlashLoanTooLarge)
}
