package simulations

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/chain"
	"github.com/elys-network/levvault/internal/logger"
	"github.com/elys-network/levvault/internal/types"
	"github.com/elys-network/levvault/internal/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

var (
	ErrFlashLoanTooLarge       = errors.New("flash loan exceeds available liquidity")
	ErrFlashLoanCallbackFailed = errors.New("flash loan callback failed")
)

// FlashLender is an ERC-3156 style lender backed by its own ledger balance.
type FlashLender struct {
	rt      *chain.Runtime
	ledger  *chain.TokenLedger
	address common.Address
	feeBps  uint64
	logger  zerolog.Logger
}

func NewFlashLender(rt *chain.Runtime, ledger *chain.TokenLedger, name string, feeBps uint64) *FlashLender {
	return &FlashLender{
		rt:      rt,
		ledger:  ledger,
		address: chain.DeriveAddress(name),
		feeBps:  feeBps,
		logger:  logger.GetForComponent("flash_lender"),
	}
}

func (f *FlashLender) Address() common.Address { return f.address }

func (f *FlashLender) MaxFlashLoan(asset string) sdkmath.Int {
	return f.ledger.BalanceOf(asset, f.address)
}

func (f *FlashLender) FlashFee(asset string, amount sdkmath.Int) (sdkmath.Int, error) {
	if amount.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("flash fee: negative amount %s", amount)
	}
	return utils.ApplyBpsUp(amount, f.feeBps), nil
}

// FlashLoan sends amount to receiver, runs its callback and pulls amount plus
// fee back through the receiver's allowance, all inside one transaction.
func (f *FlashLender) FlashLoan(ctx context.Context, initiator common.Address, receiver types.FlashBorrower, asset string, amount sdkmath.Int, data []byte) error {
	return f.rt.Atomic(ctx, func(ctx context.Context) error {
		if !amount.IsPositive() {
			return fmt.Errorf("flash loan: amount must be positive, got %s", amount)
		}
		if available := f.MaxFlashLoan(asset); amount.GT(available) {
			return fmt.Errorf("%w: %s%s requested, %s%s available", ErrFlashLoanTooLarge, amount, asset, available, asset)
		}
		fee, err := f.FlashFee(asset, amount)
		if err != nil {
			return err
		}

		if err := f.ledger.Transfer(asset, f.address, receiver.Address(), amount); err != nil {
			return err
		}
		ret, err := receiver.OnFlashLoan(ctx, f.address, initiator, asset, amount, fee, data)
		if err != nil {
			return err
		}
		if ret != types.FlashLoanCallbackSuccess {
			return ErrFlashLoanCallbackFailed
		}
		if err := f.ledger.TransferFrom(asset, f.address, receiver.Address(), f.address, amount.Add(fee)); err != nil {
			return fmt.Errorf("flash loan repayment: %w", err)
		}

		f.logger.Debug().
			Str("asset", asset).
			Str("amount", amount.String()).
			Str("fee", fee.String()).
			Str("receiver", receiver.Address().Hex()).
			Msg("Flash loan settled")
		return nil
	})
}
