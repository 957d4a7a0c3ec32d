package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/chain"
	"github.com/elys-network/levvault/internal/events"
	"github.com/elys-network/levvault/internal/logger"
	"github.com/elys-network/levvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// SupplyConfig wires a supply strategy to its market.
type SupplyConfig struct {
	Runtime *chain.Runtime
	Ledger  *chain.TokenLedger
	Name    string
	Owner   common.Address
	Asset   string
	Market  types.LendingMarket
}

// Supply lends its asset to a market without leverage. Profit is the
// interest credited to its supplied balance.
type Supply struct {
	rt      *chain.Runtime
	ledger  *chain.TokenLedger
	name    string
	address common.Address
	owner   common.Address
	asset   string
	market  types.LendingMarket
	logger  zerolog.Logger

	mu       sync.RWMutex
	deployed sdkmath.Int
}

func NewSupply(cfg SupplyConfig) (*Supply, error) {
	switch {
	case cfg.Runtime == nil || cfg.Ledger == nil || cfg.Market == nil:
		return nil, errors.New("supply strategy config: runtime, ledger and market are required")
	case cfg.Name == "" || cfg.Asset == "":
		return nil, errors.New("supply strategy config: name and asset cannot be empty")
	case cfg.Owner == (common.Address{}):
		return nil, errors.New("supply strategy config: owner cannot be the zero address")
	}
	s := &Supply{
		rt:       cfg.Runtime,
		ledger:   cfg.Ledger,
		name:     cfg.Name,
		address:  chain.DeriveAddress(cfg.Name),
		owner:    cfg.Owner,
		asset:    cfg.Asset,
		market:   cfg.Market,
		logger:   logger.GetForComponent("supply_strategy").With().Str("strategy", cfg.Name).Logger(),
		deployed: sdkmath.ZeroInt(),
	}
	cfg.Runtime.Register(s)
	return s, nil
}

func (s *Supply) Name() string { return s.name }
func (s *Supply) Address() common.Address { return s.address }
func (s *Supply) Asset() string { return s.asset }

// TotalAssets is the supplied balance recorded at the last update.
func (s *Supply) TotalAssets() sdkmath.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deployed
}

func (s *Supply) Deploy(ctx context.Context, caller common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	err := s.rt.Atomic(ctx, func(ctx context.Context) error {
		if amount.IsNil() || !amount.IsPositive() {
			return fmt.Errorf("%w: %v", types.ErrInvalidDeployAmount, amount)
		}
		if caller != s.owner {
			return fmt.Errorf("%w: %s is not the owner", types.ErrNoPermissions, caller.Hex())
		}
		if err := s.ledger.TransferFrom(s.asset, s.address, caller, s.address, amount); err != nil {
			return fmt.Errorf("deploy: %w", err)
		}
		if err := s.ledger.Approve(s.asset, s.address, s.market.Address(), amount); err != nil {
			return err
		}
		if err := s.market.Supply(ctx, s.address, s.asset, amount); err != nil {
			return err
		}
		deployed := s.setDeployed(s.TotalAssets().Add(amount))
		s.rt.Emit(events.StrategyDeploy(s.address, caller, amount))
		s.rt.Emit(events.StrategyAmountUpdate(s.address, deployed))
		s.logger.Debug().Str("amount", amount.String()).Str("deployed", deployed.String()).Msg("Supplied")
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amount, nil
}

func (s *Supply) Undeploy(ctx context.Context, caller common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	err := s.rt.Atomic(ctx, func(ctx context.Context) error {
		if amount.IsNil() || !amount.IsPositive() {
			return fmt.Errorf("%w: %v", types.ErrInvalidDeployAmount, amount)
		}
		if caller != s.owner {
			return fmt.Errorf("%w: %s is not the owner", types.ErrNoPermissions, caller.Hex())
		}
		supplied := s.market.CollateralBalance(s.address, s.asset)
		if supplied.IsZero() {
			return types.ErrNoCollateralMarginToScale
		}
		if amount.GT(supplied) {
			return fmt.Errorf("%w: undeploy %s exceeds supplied %s", types.ErrInsufficientBalance, amount, supplied)
		}
		if _, err := s.market.Withdraw(ctx, s.address, s.asset, amount, caller); err != nil {
			return err
		}
		deployed := s.setDeployed(s.TotalAssets().Sub(amount))
		s.rt.Emit(events.StrategyUndeploy(s.address, caller, amount))
		s.rt.Emit(events.StrategyAmountUpdate(s.address, deployed))
		s.logger.Debug().Str("amount", amount.String()).Str("deployed", deployed.String()).Msg("Withdrawn")
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amount, nil
}

// Harvest reports the interest earned since the last update.
func (s *Supply) Harvest(ctx context.Context, caller common.Address) (sdkmath.Int, error) {
	pnl := sdkmath.ZeroInt()
	err := s.rt.Atomic(ctx, func(ctx context.Context) error {
		if caller != s.owner {
			return fmt.Errorf("%w: %s is not the owner", types.ErrNoPermissions, caller.Hex())
		}
		previous := s.TotalAssets()
		current := s.setDeployed(s.market.CollateralBalance(s.address, s.asset))
		pnl = current.Sub(previous)
		switch {
		case pnl.IsPositive():
			s.rt.Emit(events.StrategyProfit(s.address, pnl))
		case pnl.IsNegative():
			s.rt.Emit(events.StrategyLoss(s.address, pnl.Neg()))
		default:
			return nil
		}
		s.rt.Emit(events.StrategyAmountUpdate(s.address, current))
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return pnl, nil
}

func (s *Supply) setDeployed(amount sdkmath.Int) sdkmath.Int {
	if amount.IsNegative() {
		amount = sdkmath.ZeroInt()
	}
	s.mu.Lock()
	s.deployed = amount
	s.mu.Unlock()
	return amount
}

func (s *Supply) Snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deployed
}

func (s *Supply) Restore(snapshot any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deployed = snapshot.(sdkmath.Int)
}
