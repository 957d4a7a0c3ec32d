package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/chain"
	"github.com/elys-network/levvault/internal/config"
	"github.com/elys-network/levvault/internal/logger"
	"github.com/elys-network/levvault/internal/router"
	"github.com/elys-network/levvault/internal/simulations"
	"github.com/elys-network/levvault/internal/strategy"
	"github.com/elys-network/levvault/internal/utils"
	"github.com/elys-network/levvault/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Well-known accounts of a simulated deployment.
var (
	Governor    = chain.DeriveAddress("governor")
	Operator    = chain.DeriveAddress("keeper")
	FeeReceiver = chain.DeriveAddress("treasury")
)

const (
	lenderName = "flash-lender"
	marketName = "lending-market"
	dexName    = "dex"
	routerName = "vault-router"
)

// Assets names the denoms of a deployment and the liquidity given to each venue.
type Assets struct {
	Debt          string
	Collateral    string
	Native        string
	LiquiditySeed uint64 // whole units
}

// AssetsFromConfig reads the asset globals populated by config.LoadConfig.
func AssetsFromConfig() Assets {
	return Assets{
		Debt:          config.DebtAsset,
		Collateral:    config.CollateralAsset,
		Native:        config.NativeAsset,
		LiquiditySeed: config.LiquiditySeed,
	}
}

func (a Assets) validate() error {
	switch {
	case a.Debt == "" || a.Collateral == "":
		return errors.New("debt and collateral assets are required")
	case a.Debt == a.Collateral || a.Debt == a.Native:
		return fmt.Errorf("debt asset %q must differ from %q and %q", a.Debt, a.Collateral, a.Native)
	case a.LiquiditySeed == 0:
		return errors.New("liquidity seed must be positive")
	}
	return nil
}

// Protocol is a complete in-process deployment: venues, strategies, vaults
// and the router, all registered with one runtime.
type Protocol struct {
	Runtime        *chain.Runtime
	Ledger         *chain.TokenLedger
	Prices         *simulations.PriceBook
	CollateralFeed *simulations.PriceFeed
	Lender         *simulations.FlashLender
	Market         *simulations.LendingMarket
	DEX            *simulations.DEX
	Router         *router.Router

	// Single-strategy vault and its leveraged loop. Nil in multi mode.
	Vault     *vault.Vault
	Leveraged *strategy.Leveraged

	// Multi-strategy vault. The first allocation is a leveraged loop, the
	// rest supply the debt asset to the market. Nil in single mode.
	Multi          *vault.MultiStrategyVault
	MultiLeveraged *strategy.Leveraged
	MultiNames     []string

	assets          Assets
	market          config.MarketSection
	collateralPrice sdkmath.Int
	logger          zerolog.Logger
}

// NewSimulatedProtocol builds every component described by file. Mode is one
// of the config.VaultMode* values; an empty mode deploys both vaults.
func NewSimulatedProtocol(ctx context.Context, file config.File, assets Assets, mode string, clock func() time.Time) (*Protocol, error) {
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("deployment file: %w", err)
	}
	if err := assets.validate(); err != nil {
		return nil, fmt.Errorf("deployment assets: %w", err)
	}
	if mode == "" {
		mode = config.VaultModeBoth
	}
	if clock == nil {
		clock = time.Now
	}

	dec, err := sdkmath.LegacyNewDecFromStr(file.Market.CollateralPrice)
	if err != nil {
		return nil, fmt.Errorf("collateral price: %w", err)
	}

	p := &Protocol{
		Runtime:         chain.NewRuntime(),
		Ledger:          chain.NewTokenLedger(),
		Prices:          simulations.NewPriceBook(),
		assets:          assets,
		market:          file.Market,
		collateralPrice: dec.MulInt(utils.OneE18).TruncateInt(),
		logger:          logger.GetForComponent("deploy"),
	}
	p.Runtime.SetClock(clock)
	p.Runtime.Register(p.Ledger)

	p.CollateralFeed = simulations.NewPriceFeed(p.collateralPrice, p.Runtime.Now())
	p.Prices.Set(assets.Collateral, p.CollateralFeed)
	p.Lender = simulations.NewFlashLender(p.Runtime, p.Ledger, lenderName, file.Market.FlashLoanFeeBps)
	p.Market = simulations.NewLendingMarket(p.Runtime, p.Ledger, p.Prices, simulations.MarketConfig{
		Name:                 marketName,
		LTV:                  file.Market.LoanToValuePPB,
		LiquidationThreshold: file.Market.LiquidationThresholdPPB,
	})
	p.DEX = simulations.NewDEX(p.Runtime, p.Ledger, p.Prices, dexName, file.Market.SwapFeeBps)
	if err := p.seedLiquidity(); err != nil {
		return nil, err
	}

	p.Router, err = router.New(router.Config{
		Runtime:      p.Runtime,
		Ledger:       p.Ledger,
		Name:         routerName,
		Governor:     Governor,
		NativeDenom:  assets.Native,
		WrappedDenom: assets.Debt,
	})
	if err != nil {
		return nil, err
	}
	for _, pair := range [][2]string{{assets.Collateral, assets.Debt}, {assets.Debt, assets.Collateral}} {
		if err := p.Router.EnableRoute(ctx, Governor, pair[0], pair[1], p.DEX); err != nil {
			return nil, fmt.Errorf("enable route %s/%s: %w", pair[0], pair[1], err)
		}
	}

	if mode != config.VaultModeMulti {
		if err := p.deploySingle(ctx, file); err != nil {
			return nil, err
		}
	}
	if mode != config.VaultModeSingle {
		if err := p.deployMulti(ctx, file); err != nil {
			return nil, err
		}
	}

	p.logger.Info().
		Str("mode", mode).
		Str("debtAsset", assets.Debt).
		Str("collateralAsset", assets.Collateral).
		Str("collateralPrice", p.collateralPrice.String()).
		Msg("Simulated protocol deployed")
	return p, nil
}

func (p *Protocol) seedLiquidity() error {
	seed := sdkmath.NewIntWithDecimal(int64(p.assets.LiquiditySeed), 18)
	for _, acct := range []common.Address{p.Lender.Address(), p.Market.Address(), p.DEX.Address()} {
		if err := p.Ledger.Mint(p.assets.Debt, acct, seed); err != nil {
			return fmt.Errorf("seed %s liquidity: %w", p.assets.Debt, err)
		}
	}
	if err := p.Ledger.Mint(p.assets.Collateral, p.DEX.Address(), seed); err != nil {
		return fmt.Errorf("seed %s liquidity: %w", p.assets.Collateral, err)
	}
	return nil
}

func (p *Protocol) newLeveraged(name string, owner common.Address, file config.File) (*strategy.Leveraged, error) {
	return strategy.NewLeveraged(strategy.LeveragedConfig{
		Runtime:         p.Runtime,
		Ledger:          p.Ledger,
		Name:            name,
		Owner:           owner,
		Governor:        Governor,
		CollateralAsset: p.assets.Collateral,
		DebtAsset:       p.assets.Debt,
		Oracle:          p.CollateralFeed,
		FlashLender:     p.Lender,
		Market:          p.Market,
		Swapper:         p.DEX,
		Policy:          file.PolicyParameters(),
	})
}

func (p *Protocol) deploySingle(ctx context.Context, file config.File) error {
	s, err := p.newLeveraged(file.Vault.StrategyName, chain.DeriveAddress(file.Vault.Name), file)
	if err != nil {
		return err
	}
	perAccount, total := file.VaultCaps()
	v, err := vault.New(vault.Config{
		Runtime:  p.Runtime,
		Ledger:   p.Ledger,
		Name:     file.Vault.Name,
		Asset:    p.assets.Debt,
		Governor: Governor,
		Operator: Operator,
		Settings: vault.Settings{
			FeeReceiver:          FeeReceiver,
			PerformanceFeeBps:    file.Vault.PerformanceFeeBps,
			WithdrawalFeeBps:     file.Vault.WithdrawalFeeBps,
			MaxDepositPerAccount: perAccount,
			MaxTotalDeposits:     total,
		},
	}, s)
	if err != nil {
		return err
	}
	if err := p.Router.RegisterVault(ctx, Governor, v); err != nil {
		return err
	}
	p.Vault, p.Leveraged = v, s
	return nil
}

func (p *Protocol) deployMulti(ctx context.Context, file config.File) error {
	owner := chain.DeriveAddress(file.Multi.Name)
	allocations := make([]vault.Allocation, 0, len(file.Multi.Strategies))
	for i, name := range file.Multi.Strategies {
		var s vault.Strategy
		if i == 0 {
			lev, err := p.newLeveraged(name, owner, file)
			if err != nil {
				return err
			}
			p.MultiLeveraged = lev
			s = lev
		} else {
			sup, err := strategy.NewSupply(strategy.SupplyConfig{
				Runtime: p.Runtime,
				Ledger:  p.Ledger,
				Name:    name,
				Owner:   owner,
				Asset:   p.assets.Debt,
				Market:  p.Market,
			})
			if err != nil {
				return err
			}
			s = sup
		}
		allocations = append(allocations, vault.Allocation{Strategy: s, Weight: file.Multi.Weights[i]})
	}

	m, err := vault.NewMulti(vault.Config{
		Runtime:  p.Runtime,
		Ledger:   p.Ledger,
		Name:     file.Multi.Name,
		Asset:    p.assets.Debt,
		Governor: Governor,
		Operator: Operator,
		Settings: vault.Settings{
			FeeReceiver:       FeeReceiver,
			PerformanceFeeBps: file.Multi.PerformanceFeeBps,
			WithdrawalFeeBps:  file.Multi.WithdrawalFeeBps,
		},
	}, allocations)
	if err != nil {
		return err
	}
	if err := p.Router.RegisterVault(ctx, Governor, m); err != nil {
		return err
	}
	p.Multi = m
	p.MultiNames = append([]string(nil), file.Multi.Strategies...)
	return nil
}

// Assets returns the denoms of the deployment.
func (p *Protocol) Assets() Assets { return p.assets }

// Fund mints amount of the debt asset to account and approves spender for
// its whole balance.
func (p *Protocol) Fund(account, spender common.Address, amount sdkmath.Int) error {
	if err := p.Ledger.Mint(p.assets.Debt, account, amount); err != nil {
		return err
	}
	return p.Ledger.Approve(p.assets.Debt, account, spender, p.Ledger.BalanceOf(p.assets.Debt, account))
}

// SeedDeposits funds depositor and deposits amount into every deployed vault.
func (p *Protocol) SeedDeposits(ctx context.Context, depositor common.Address, amount sdkmath.Int) error {
	type depositor4626 interface {
		Name() string
		Address() common.Address
		Deposit(ctx context.Context, caller common.Address, assets sdkmath.Int, receiver common.Address) (sdkmath.Int, error)
	}
	var targets []depositor4626
	if p.Vault != nil {
		targets = append(targets, p.Vault)
	}
	if p.Multi != nil {
		targets = append(targets, p.Multi)
	}
	for _, v := range targets {
		if err := p.Fund(depositor, v.Address(), amount); err != nil {
			return err
		}
		shares, err := v.Deposit(ctx, depositor, amount, depositor)
		if err != nil {
			return fmt.Errorf("seed deposit into %s: %w", v.Name(), err)
		}
		p.logger.Info().Str("vault", v.Name()).Str("assets", amount.String()).Str("shares", shares.String()).Msg("Seed deposit")
	}
	return nil
}

// SetCollateralPrice publishes a new collateral price stamped with the
// runtime clock.
func (p *Protocol) SetCollateralPrice(price sdkmath.Int) {
	p.collateralPrice = price
	p.CollateralFeed.SetPrice(price, p.Runtime.Now())
}

// Advance moves the simulated markets forward by one period: the oracle is
// refreshed, collateral earns its yield, and debt-asset suppliers and
// borrowers accrue interest.
func (p *Protocol) Advance(ctx context.Context) error {
	p.CollateralFeed.SetPrice(p.collateralPrice, p.Runtime.Now())
	if err := p.Market.AccrueInterest(ctx, p.assets.Collateral, p.market.CollateralYieldBps, 0); err != nil {
		return fmt.Errorf("accrue %s: %w", p.assets.Collateral, err)
	}
	if err := p.Market.AccrueInterest(ctx, p.assets.Debt, p.market.SupplyRateBps, p.market.BorrowRateBps); err != nil {
		return fmt.Errorf("accrue %s: %w", p.assets.Debt, err)
	}
	return nil
}
