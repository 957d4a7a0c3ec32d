package simulations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/chain"
	"github.com/elys-network/levvault/internal/logger"
	"github.com/elys-network/levvault/internal/types"
	"github.com/elys-network/levvault/internal/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

var (
	ErrUnhealthyPosition     = errors.New("lending market: borrow limit exceeded")
	ErrInsufficientSupply    = errors.New("lending market: insufficient supplied balance")
	ErrInsufficientLiquidity = errors.New("lending market: insufficient liquidity")
)

// MarketConfig holds the risk parameters of a simulated lending market.
// LTV and LiquidationThreshold are in parts-per-billion.
type MarketConfig struct {
	Name                 string
	LTV                  uint64
	LiquidationThreshold uint64
}

// LendingMarket is an AAVE-style money market. Collateral and debt are tracked
// per asset and valued through the price book.
type LendingMarket struct {
	rt      *chain.Runtime
	ledger  *chain.TokenLedger
	prices  *PriceBook
	cfg     MarketConfig
	address common.Address
	logger  zerolog.Logger

	mu         sync.RWMutex
	collateral map[string]map[common.Address]sdkmath.Int
	debt       map[string]map[common.Address]sdkmath.Int
}

func NewLendingMarket(rt *chain.Runtime, ledger *chain.TokenLedger, prices *PriceBook, cfg MarketConfig) *LendingMarket {
	m := &LendingMarket{
		rt:         rt,
		ledger:     ledger,
		prices:     prices,
		cfg:        cfg,
		address:    chain.DeriveAddress(cfg.Name),
		logger:     logger.GetForComponent("lending_market").With().Str("market", cfg.Name).Logger(),
		collateral: make(map[string]map[common.Address]sdkmath.Int),
		debt:       make(map[string]map[common.Address]sdkmath.Int),
	}
	rt.Register(m)
	return m
}

func (m *LendingMarket) Address() common.Address { return m.address }

func read(book map[string]map[common.Address]sdkmath.Int, asset string, account common.Address) sdkmath.Int {
	if v, ok := book[asset][account]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

func write(book map[string]map[common.Address]sdkmath.Int, asset string, account common.Address, v sdkmath.Int) {
	if book[asset] == nil {
		book[asset] = make(map[common.Address]sdkmath.Int)
	}
	if v.IsZero() {
		delete(book[asset], account)
		return
	}
	book[asset][account] = v
}

func (m *LendingMarket) CollateralBalance(account common.Address, asset string) sdkmath.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return read(m.collateral, asset, account)
}

func (m *LendingMarket) DebtBalance(account common.Address, asset string) sdkmath.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return read(m.debt, asset, account)
}

func (m *LendingMarket) Supply(ctx context.Context, caller common.Address, asset string, amount sdkmath.Int) error {
	return m.rt.Atomic(ctx, func(ctx context.Context) error {
		if !amount.IsPositive() {
			return fmt.Errorf("supply: amount must be positive, got %s", amount)
		}
		if err := m.ledger.TransferFrom(asset, m.address, caller, m.address, amount); err != nil {
			return fmt.Errorf("supply: %w", err)
		}
		m.mu.Lock()
		write(m.collateral, asset, caller, read(m.collateral, asset, caller).Add(amount))
		m.mu.Unlock()
		return nil
	})
}

func (m *LendingMarket) Withdraw(ctx context.Context, caller common.Address, asset string, amount sdkmath.Int, to common.Address) (sdkmath.Int, error) {
	err := m.rt.Atomic(ctx, func(ctx context.Context) error {
		if !amount.IsPositive() {
			return fmt.Errorf("withdraw: amount must be positive, got %s", amount)
		}
		m.mu.Lock()
		supplied := read(m.collateral, asset, caller)
		if supplied.LT(amount) {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s%s supplied, %s%s requested", ErrInsufficientSupply, supplied, asset, amount, asset)
		}
		write(m.collateral, asset, caller, supplied.Sub(amount))
		m.mu.Unlock()

		if err := m.checkHealth(ctx, caller); err != nil {
			return err
		}
		if err := m.ledger.Transfer(asset, m.address, to, amount); err != nil {
			return fmt.Errorf("%w: %w", ErrInsufficientLiquidity, err)
		}
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amount, nil
}

func (m *LendingMarket) Borrow(ctx context.Context, caller common.Address, asset string, amount sdkmath.Int) error {
	return m.rt.Atomic(ctx, func(ctx context.Context) error {
		if !amount.IsPositive() {
			return fmt.Errorf("borrow: amount must be positive, got %s", amount)
		}
		m.mu.Lock()
		write(m.debt, asset, caller, read(m.debt, asset, caller).Add(amount))
		m.mu.Unlock()

		if err := m.checkHealth(ctx, caller); err != nil {
			return err
		}
		if err := m.ledger.Transfer(asset, m.address, caller, amount); err != nil {
			return fmt.Errorf("%w: %w", ErrInsufficientLiquidity, err)
		}
		return nil
	})
}

// Repay pays down at most the outstanding debt and returns the amount repaid.
func (m *LendingMarket) Repay(ctx context.Context, caller common.Address, asset string, amount sdkmath.Int) (sdkmath.Int, error) {
	repaid := sdkmath.ZeroInt()
	err := m.rt.Atomic(ctx, func(ctx context.Context) error {
		if !amount.IsPositive() {
			return fmt.Errorf("repay: amount must be positive, got %s", amount)
		}
		owed := m.DebtBalance(caller, asset)
		repaid = utils.MinInt(owed, amount)
		if repaid.IsZero() {
			return nil
		}
		if err := m.ledger.TransferFrom(asset, m.address, caller, m.address, repaid); err != nil {
			return fmt.Errorf("repay: %w", err)
		}
		m.mu.Lock()
		write(m.debt, asset, caller, owed.Sub(repaid))
		m.mu.Unlock()
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return repaid, nil
}

func (m *LendingMarket) assetsOf(account common.Address) (collateral, debt map[string]sdkmath.Int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	collateral, debt = make(map[string]sdkmath.Int), make(map[string]sdkmath.Int)
	for asset, book := range m.collateral {
		if v, ok := book[account]; ok {
			collateral[asset] = v
		}
	}
	for asset, book := range m.debt {
		if v, ok := book[account]; ok {
			debt[asset] = v
		}
	}
	return collateral, debt
}

func (m *LendingMarket) UserAccountData(ctx context.Context, account common.Address) (types.AccountData, error) {
	collateral, debt := m.assetsOf(account)
	data := types.AccountData{
		TotalCollateralBase:  sdkmath.ZeroInt(),
		TotalDebtBase:        sdkmath.ZeroInt(),
		LTV:                  m.cfg.LTV,
		LiquidationThreshold: m.cfg.LiquidationThreshold,
	}
	for asset, amount := range collateral {
		v, err := m.prices.Value(ctx, asset, amount)
		if err != nil {
			return types.AccountData{}, err
		}
		data.TotalCollateralBase = data.TotalCollateralBase.Add(v)
	}
	for asset, amount := range debt {
		v, err := m.prices.Value(ctx, asset, amount)
		if err != nil {
			return types.AccountData{}, err
		}
		data.TotalDebtBase = data.TotalDebtBase.Add(v)
	}

	if data.TotalDebtBase.IsZero() {
		data.HealthFactor = sdkmath.NewIntFromUint64(^uint64(0))
	} else {
		weighted := utils.ApplyPPB(data.TotalCollateralBase, m.cfg.LiquidationThreshold)
		data.HealthFactor = utils.MulDiv(weighted, utils.OneE18, data.TotalDebtBase)
	}
	return data, nil
}

func (m *LendingMarket) checkHealth(ctx context.Context, account common.Address) error {
	data, err := m.UserAccountData(ctx, account)
	if err != nil {
		return err
	}
	if data.TotalDebtBase.IsZero() {
		return nil
	}
	limit := utils.ApplyPPB(data.TotalCollateralBase, m.cfg.LTV)
	if data.TotalDebtBase.GT(limit) {
		return fmt.Errorf("%w: debt %s, limit %s", ErrUnhealthyPosition, data.TotalDebtBase, limit)
	}
	return nil
}

// AccrueInterest grows every supplied balance of asset by supplyBps and every
// borrowed balance by borrowBps. The market mints the supply side so it stays solvent.
func (m *LendingMarket) AccrueInterest(ctx context.Context, asset string, supplyBps, borrowBps uint64) error {
	return m.rt.Atomic(ctx, func(ctx context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()

		minted := sdkmath.ZeroInt()
		for _, account := range sortedAccounts(m.collateral[asset]) {
			bal := m.collateral[asset][account]
			interest := utils.ApplyBps(bal, supplyBps)
			m.collateral[asset][account] = bal.Add(interest)
			minted = minted.Add(interest)
		}
		for _, account := range sortedAccounts(m.debt[asset]) {
			bal := m.debt[asset][account]
			m.debt[asset][account] = bal.Add(utils.ApplyBpsUp(bal, borrowBps))
		}
		if minted.IsPositive() {
			if err := m.ledger.Mint(asset, m.address, minted); err != nil {
				return err
			}
		}
		m.logger.Debug().Str("asset", asset).Uint64("supplyBps", supplyBps).Uint64("borrowBps", borrowBps).Msg("Interest accrued")
		return nil
	})
}

func sortedAccounts(book map[common.Address]sdkmath.Int) []common.Address {
	out := make([]common.Address, 0, len(book))
	for a := range book {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

type marketState struct {
	collateral map[string]map[common.Address]sdkmath.Int
	debt       map[string]map[common.Address]sdkmath.Int
}

func copyBook(src map[string]map[common.Address]sdkmath.Int) map[string]map[common.Address]sdkmath.Int {
	dst := make(map[string]map[common.Address]sdkmath.Int, len(src))
	for asset, book := range src {
		cp := make(map[common.Address]sdkmath.Int, len(book))
		for k, v := range book {
			cp[k] = v
		}
		dst[asset] = cp
	}
	return dst
}

func (m *LendingMarket) Snapshot() any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return marketState{collateral: copyBook(m.collateral), debt: copyBook(m.debt)}
}

func (m *LendingMarket) Restore(snapshot any) {
	s := snapshot.(marketState)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collateral, m.debt = s.collateral, s.debt
}
