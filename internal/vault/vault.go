// Package vault implements ERC-4626 style share accounting over one leveraged
// strategy and over a weighted set of strategies.
package vault

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/chain"
	"github.com/elys-network/levvault/internal/events"
	"github.com/elys-network/levvault/internal/logger"
	"github.com/elys-network/levvault/internal/types"
	"github.com/elys-network/levvault/internal/utils"
	"github.com/ethereum/go-ethereum/common"
)

// Config holds what a vault needs at construction.
type Config struct {
	Runtime  *chain.Runtime
	Ledger   *chain.TokenLedger
	Name     string
	Asset    string
	Governor common.Address
	Operator common.Address
	Settings Settings
}

// Vault issues shares against a single strategy. Its total assets are the
// strategy's equity.
type Vault struct {
	*base
	strategy Strategy
}

// New creates a single-strategy vault. The strategy must be owned by
// chain.DeriveAddress(cfg.Name).
func New(cfg Config, strategy Strategy) (*Vault, error) {
	if strategy == nil {
		return nil, errors.New("vault config: strategy is required")
	}
	if strategy.Asset() != cfg.Asset {
		return nil, fmt.Errorf("vault config: %w: strategy takes %s, vault %s", types.ErrAssetMismatch, strategy.Asset(), cfg.Asset)
	}
	b, err := newBase(cfg.Runtime, cfg.Ledger, cfg.Name, cfg.Asset, cfg.Governor, cfg.Operator, cfg.Settings, logger.GetForComponent("vault"))
	if err != nil {
		return nil, fmt.Errorf("vault config: %w", err)
	}
	v := &Vault{base: b, strategy: strategy}
	b.totalAssets = strategy.TotalAssets
	cfg.Runtime.Register(v)
	return v, nil
}

func (v *Vault) Strategy() Strategy { return v.strategy }

// Deposit pulls assets from caller, deploys them and mints shares to receiver
// priced on the equity the deployment actually added.
func (v *Vault) Deposit(ctx context.Context, caller common.Address, assets sdkmath.Int, receiver common.Address) (sdkmath.Int, error) {
	minted := sdkmath.ZeroInt()
	err := v.rt.Atomic(ctx, func(ctx context.Context) error {
		if !v.TotalSupply().IsZero() {
			if _, _, err := v.harvest(ctx); err != nil {
				return err
			}
		}
		if err := v.checkDeposit(assets, receiver); err != nil {
			return err
		}
		before := v.TotalAssets()
		if err := v.ledger.TransferFrom(v.asset, v.address, caller, v.address, assets); err != nil {
			return fmt.Errorf("deposit: %w", err)
		}
		if err := v.deploy(ctx, assets); err != nil {
			return err
		}
		shares, err := v.sharesFor(v.TotalAssets().Sub(before), before)
		if err != nil {
			return err
		}
		if err := v.mint(receiver, shares); err != nil {
			return err
		}
		v.rt.Emit(events.Deposit(v.address, caller, receiver, assets, shares))
		minted = shares

		v.logger.Info().
			Str("caller", caller.Hex()).
			Str("receiver", receiver.Hex()).
			Str("assets", assets.String()).
			Str("shares", shares.String()).
			Msg("Deposit")
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return minted, nil
}

// Mint mints exactly shares to receiver. It pulls what they are worth, rounded
// up, and tops the deposit up until deployment costs are covered. Returns the
// assets pulled.
func (v *Vault) Mint(ctx context.Context, caller common.Address, shares sdkmath.Int, receiver common.Address) (sdkmath.Int, error) {
	assets := sdkmath.ZeroInt()
	err := v.rt.Atomic(ctx, func(ctx context.Context) error {
		if shares.IsNil() || !shares.IsPositive() {
			return fmt.Errorf("%w: %v shares", types.ErrInvalidDepositAmount, shares)
		}
		if !v.TotalSupply().IsZero() {
			if _, _, err := v.harvest(ctx); err != nil {
				return err
			}
		}
		pulled, err := v.fundShares(ctx, caller, receiver, shares, v.deploy)
		if err != nil {
			return err
		}
		if err := v.mint(receiver, shares); err != nil {
			return err
		}
		v.rt.Emit(events.Deposit(v.address, caller, receiver, pulled, shares))
		assets = pulled

		v.logger.Info().
			Str("caller", caller.Hex()).
			Str("receiver", receiver.Hex()).
			Str("assets", pulled.String()).
			Str("shares", shares.String()).
			Msg("Mint")
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return assets, nil
}

func (v *Vault) deploy(ctx context.Context, amount sdkmath.Int) error {
	if err := v.ledger.Approve(v.asset, v.address, v.strategy.Address(), amount); err != nil {
		return err
	}
	_, err := v.strategy.Deploy(ctx, v.address, amount)
	return err
}

// Redeem burns shares of owner and sends the proceeds, net of the
// withdrawal fee, to receiver. Returns the assets received.
func (v *Vault) Redeem(ctx context.Context, caller common.Address, shares sdkmath.Int, receiver, owner common.Address) (sdkmath.Int, error) {
	paid := sdkmath.ZeroInt()
	err := v.rt.Atomic(ctx, func(ctx context.Context) error {
		if _, _, err := v.harvest(ctx); err != nil {
			return err
		}
		out, err := v.redeem(ctx, caller, shares, receiver, owner)
		paid = out
		return err
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return paid, nil
}

// Withdraw pays exactly assets to receiver. The strategy is unwound until the
// proceeds cover assets plus the withdrawal fee, and owner gives up the shares
// worth the equity that left the strategy, rounded up. The fee receiver gets
// the fee and any rounding surplus. Returns the shares burned.
func (v *Vault) Withdraw(ctx context.Context, caller common.Address, assets sdkmath.Int, receiver, owner common.Address) (sdkmath.Int, error) {
	burned := sdkmath.ZeroInt()
	err := v.rt.Atomic(ctx, func(ctx context.Context) error {
		if assets.IsNil() || !assets.IsPositive() {
			return fmt.Errorf("%w: %v", types.ErrNotEnoughBalanceToWithdraw, assets)
		}
		if receiver == (common.Address{}) {
			return errors.New("withdraw: receiver cannot be the zero address")
		}
		if _, _, err := v.harvest(ctx); err != nil {
			return err
		}

		settings := v.Settings()
		target := assets
		if owner != settings.FeeReceiver && settings.WithdrawalFeeBps > 0 {
			target = withFee(assets, settings.WithdrawalFeeBps)
		}
		before, supply := v.TotalAssets(), v.TotalSupply()
		proceeds, err := v.unwind(ctx, target)
		if err != nil {
			return err
		}
		shares, err := toShares(before.Sub(v.TotalAssets()), before, supply, true)
		if err != nil {
			return err
		}
		if err := v.checkRedeem(owner, shares); err != nil {
			return err
		}
		if err := v.spendAllowance(owner, caller, shares); err != nil {
			return err
		}
		if err := v.burn(owner, shares); err != nil {
			return err
		}

		fee := proceeds.Sub(assets)
		if fee.IsPositive() {
			if err := v.ledger.Transfer(v.asset, v.address, settings.FeeReceiver, fee); err != nil {
				return err
			}
		}
		if err := v.ledger.Transfer(v.asset, v.address, receiver, assets); err != nil {
			return err
		}
		v.rt.Emit(events.Withdraw(v.address, caller, receiver, owner, assets, shares))
		burned = shares

		v.logger.Info().
			Str("owner", owner.Hex()).
			Str("receiver", receiver.Hex()).
			Str("shares", shares.String()).
			Str("assets", assets.String()).
			Str("fee", fee.String()).
			Msg("Withdraw")
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return burned, nil
}

// unwind undeploys equity in rounds until the vault has received at least
// target. Returns the proceeds.
func (v *Vault) unwind(ctx context.Context, target sdkmath.Int) (sdkmath.Int, error) {
	proceeds, spent := sdkmath.ZeroInt(), sdkmath.ZeroInt()
	for round := 0; round < maxCostRounds && proceeds.LT(target); round++ {
		amount := utils.MinInt(grossUp(target.Sub(proceeds), spent, proceeds), v.strategy.TotalAssets())
		if !amount.IsPositive() {
			break
		}
		out, err := v.strategy.Undeploy(ctx, v.address, amount)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		proceeds, spent = proceeds.Add(out), spent.Add(amount)
	}
	if proceeds.LT(target) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: unwound %s of %s", types.ErrNotEnoughBalanceToWithdraw, proceeds, target)
	}
	return proceeds, nil
}

func (v *Vault) redeem(ctx context.Context, caller common.Address, shares sdkmath.Int, receiver, owner common.Address) (sdkmath.Int, error) {
	if receiver == (common.Address{}) {
		return sdkmath.ZeroInt(), errors.New("redeem: receiver cannot be the zero address")
	}
	if err := v.checkRedeem(owner, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := v.spendAllowance(owner, caller, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}
	assets := toAssets(shares, v.TotalAssets(), v.TotalSupply(), false)
	if !assets.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s shares are worth nothing", types.ErrNotEnoughBalanceToWithdraw, shares)
	}
	if err := v.burn(owner, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}
	proceeds, err := v.strategy.Undeploy(ctx, v.address, assets)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	settings := v.Settings()
	fee := sdkmath.ZeroInt()
	if owner != settings.FeeReceiver && settings.WithdrawalFeeBps > 0 {
		fee = utils.MinInt(utils.ApplyBpsUp(proceeds, settings.WithdrawalFeeBps), proceeds)
		if err := v.ledger.Transfer(v.asset, v.address, settings.FeeReceiver, fee); err != nil {
			return sdkmath.ZeroInt(), err
		}
	}
	out := proceeds.Sub(fee)
	if err := v.ledger.Transfer(v.asset, v.address, receiver, out); err != nil {
		return sdkmath.ZeroInt(), err
	}
	v.rt.Emit(events.Withdraw(v.address, caller, receiver, owner, out, shares))

	v.logger.Info().
		Str("owner", owner.Hex()).
		Str("receiver", receiver.Hex()).
		Str("shares", shares.String()).
		Str("assets", out.String()).
		Str("fee", fee.String()).
		Msg("Withdraw")
	return out, nil
}

// Rebalance harvests the strategy and mints the performance fee. Operator only.
func (v *Vault) Rebalance(ctx context.Context, caller common.Address) (sdkmath.Int, error) {
	pnl := sdkmath.ZeroInt()
	err := v.rt.Atomic(ctx, func(ctx context.Context) error {
		if err := v.requireOperator(caller); err != nil {
			return err
		}
		p, _, err := v.harvest(ctx)
		pnl = p
		return err
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return pnl, nil
}

// harvest runs the strategy harvest and mints fee shares on profit.
func (v *Vault) harvest(ctx context.Context) (sdkmath.Int, sdkmath.Int, error) {
	pnl, err := v.strategy.Harvest(ctx, v.address)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	feeShares, err := v.mintFee(v.performanceFeeShares(pnl))
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	if !pnl.IsZero() {
		v.logger.Info().
			Str("pnl", pnl.String()).
			Str("feeShares", feeShares.String()).
			Str("tokenPerAsset", v.TokenPerAsset().String()).
			Msg("Harvested")
	}
	return pnl, feeShares, nil
}

func (v *Vault) Snapshot() any { return v.snapshotShares() }

func (v *Vault) Restore(snapshot any) { v.restoreShares(snapshot.(shareState)) }
