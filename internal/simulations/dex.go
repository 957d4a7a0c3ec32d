package simulations

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/chain"
	"github.com/elys-network/levvault/internal/logger"
	"github.com/elys-network/levvault/internal/types"
	"github.com/elys-network/levvault/internal/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// DEX swaps at the price book rate minus a fee, settling against its own
// reserves on the ledger.
type DEX struct {
	rt      *chain.Runtime
	ledger  *chain.TokenLedger
	prices  *PriceBook
	address common.Address
	feeBps  uint64
	logger  zerolog.Logger
}

func NewDEX(rt *chain.Runtime, ledger *chain.TokenLedger, prices *PriceBook, name string, feeBps uint64) *DEX {
	return &DEX{
		rt:      rt,
		ledger:  ledger,
		prices:  prices,
		address: chain.DeriveAddress(name),
		feeBps:  feeBps,
		logger:  logger.GetForComponent("swap_simulator"),
	}
}

func (d *DEX) Address() common.Address { return d.address }

// Quote computes the swap without executing it. For ExactIn the input is
// params.AmountIn, for ExactOut the output is params.AmountOut.
func (d *DEX) Quote(ctx context.Context, params types.SwapParams) (types.SwapResult, error) {
	if params.UnderlyingIn == params.UnderlyingOut {
		return types.SwapResult{}, fmt.Errorf("swap: identical assets %s", params.UnderlyingIn)
	}
	priceIn, err := d.prices.Price(ctx, params.UnderlyingIn)
	if err != nil {
		return types.SwapResult{}, err
	}
	priceOut, err := d.prices.Price(ctx, params.UnderlyingOut)
	if err != nil {
		return types.SwapResult{}, err
	}
	net := sdkmath.NewIntFromUint64(types.BasisPointScale - d.feeBps)
	scale := sdkmath.NewIntFromUint64(types.BasisPointScale)

	switch params.Mode {
	case types.ExactIn:
		if !params.AmountIn.IsPositive() {
			return types.SwapResult{}, fmt.Errorf("swap: exact-in amount must be positive, got %s", params.AmountIn)
		}
		gross := utils.MulDiv(params.AmountIn, priceIn, priceOut)
		return types.SwapResult{AmountIn: params.AmountIn, AmountOut: utils.MulDiv(gross, net, scale)}, nil
	case types.ExactOut:
		if !params.AmountOut.IsPositive() {
			return types.SwapResult{}, fmt.Errorf("swap: exact-out amount must be positive, got %s", params.AmountOut)
		}
		in := utils.MulDivUp(params.AmountOut.Mul(priceOut), scale, priceIn.Mul(net))
		return types.SwapResult{AmountIn: in, AmountOut: params.AmountOut}, nil
	default:
		return types.SwapResult{}, fmt.Errorf("swap: unknown mode %s", params.Mode)
	}
}

// ExecuteSwap pulls the input through the caller's allowance and pays out of reserves.
func (d *DEX) ExecuteSwap(ctx context.Context, caller common.Address, params types.SwapParams) (types.SwapResult, error) {
	var result types.SwapResult
	err := d.rt.Atomic(ctx, func(ctx context.Context) error {
		quote, err := d.Quote(ctx, params)
		if err != nil {
			return err
		}
		switch params.Mode {
		case types.ExactIn:
			if !params.AmountOut.IsNil() && quote.AmountOut.LT(params.AmountOut) {
				return fmt.Errorf("%w: out %s below minimum %s", types.ErrSlippageExceeded, quote.AmountOut, params.AmountOut)
			}
		case types.ExactOut:
			if !params.AmountIn.IsNil() && params.AmountIn.IsPositive() && quote.AmountIn.GT(params.AmountIn) {
				return fmt.Errorf("%w: in %s above maximum %s", types.ErrSlippageExceeded, quote.AmountIn, params.AmountIn)
			}
		}
		if err := d.ledger.TransferFrom(params.UnderlyingIn, d.address, caller, d.address, quote.AmountIn); err != nil {
			return fmt.Errorf("swap input: %w", err)
		}
		if err := d.ledger.Transfer(params.UnderlyingOut, d.address, caller, quote.AmountOut); err != nil {
			return fmt.Errorf("swap reserves: %w", err)
		}
		result = quote
		return nil
	})
	if err != nil {
		return types.SwapResult{}, err
	}
	d.logger.Debug().
		Str("in", params.UnderlyingIn).
		Str("out", params.UnderlyingOut).
		Str("mode", params.Mode.String()).
		Str("amountIn", result.AmountIn.String()).
		Str("amountOut", result.AmountOut.String()).
		Msg("Swap executed")
	return result, nil
}
