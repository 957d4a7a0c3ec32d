package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/chain"
	"github.com/elys-network/levvault/internal/events"
	"github.com/elys-network/levvault/internal/types"
	"github.com/elys-network/levvault/internal/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// MinShares is the dust floor: a share balance is either zero or at least this.
var MinShares = sdkmath.NewInt(1000)

// maxCostRounds bounds how often Mint and Withdraw top up a deploy or an
// unwind whose venue costs left them short.
const maxCostRounds = 4

// costDust pads every top-up round so venue rounding cannot leave a
// wei-sized shortfall.
var costDust = sdkmath.NewInt(1000)

// Unlimited is what MaxDeposit reports when no cap applies.
var Unlimited = sdkmath.NewIntFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)))

// Settings are the governance-controlled vault parameters. Zero caps mean
// no cap.
type Settings struct {
	FeeReceiver          common.Address `json:"fee_receiver" toml:"fee_receiver"`
	PerformanceFeeBps    uint64         `json:"performance_fee_bps" toml:"performance_fee_bps"`
	WithdrawalFeeBps     uint64         `json:"withdrawal_fee_bps" toml:"withdrawal_fee_bps"`
	MaxDepositPerAccount sdkmath.Int    `json:"max_deposit_per_account" toml:"-"`
	MaxTotalDeposits     sdkmath.Int    `json:"max_total_deposits" toml:"-"`
}

// Validate checks fee bounds and normalizes nil caps to zero.
func (s *Settings) Validate() error {
	if s.FeeReceiver == (common.Address{}) {
		return errors.New("fee receiver cannot be the zero address")
	}
	if s.PerformanceFeeBps >= types.BasisPointScale {
		return fmt.Errorf("performance fee %d bps must be below %d", s.PerformanceFeeBps, types.BasisPointScale)
	}
	if s.WithdrawalFeeBps >= types.BasisPointScale {
		return fmt.Errorf("withdrawal fee %d bps must be below %d", s.WithdrawalFeeBps, types.BasisPointScale)
	}
	if s.MaxDepositPerAccount.IsNil() {
		s.MaxDepositPerAccount = sdkmath.ZeroInt()
	}
	if s.MaxTotalDeposits.IsNil() {
		s.MaxTotalDeposits = sdkmath.ZeroInt()
	}
	if s.MaxDepositPerAccount.IsNegative() || s.MaxTotalDeposits.IsNegative() {
		return errors.New("deposit caps cannot be negative")
	}
	return nil
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

type shareState struct {
	totalShares sdkmath.Int
	balances    map[common.Address]sdkmath.Int
	allowances  map[allowanceKey]sdkmath.Int
	settings    Settings
	operator    common.Address
}

// base carries the share ledger and roles shared by both vault kinds.
// totalAssets is supplied by the embedding vault.
type base struct {
	rt          *chain.Runtime
	ledger      *chain.TokenLedger
	name        string
	address     common.Address
	asset       string
	governor    common.Address
	logger      zerolog.Logger
	totalAssets func() sdkmath.Int

	mu    sync.RWMutex
	state shareState
}

func newBase(rt *chain.Runtime, ledger *chain.TokenLedger, name, asset string, governor, operator common.Address, settings Settings, log zerolog.Logger) (*base, error) {
	if rt == nil || ledger == nil {
		return nil, errors.New("runtime and ledger are required")
	}
	if name == "" || asset == "" {
		return nil, errors.New("name and asset cannot be empty")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &base{
		rt:       rt,
		ledger:   ledger,
		name:     name,
		address:  chain.DeriveAddress(name),
		asset:    asset,
		governor: governor,
		logger:   log.With().Str("vault", name).Logger(),
		state: shareState{
			totalShares: sdkmath.ZeroInt(),
			balances:    make(map[common.Address]sdkmath.Int),
			allowances:  make(map[allowanceKey]sdkmath.Int),
			settings:    settings,
			operator:    operator,
		},
	}, nil
}

func (b *base) Name() string { return b.name }

// Address is the vault account. Strategies driven by the vault must be owned by it.
func (b *base) Address() common.Address { return b.address }

func (b *base) Asset() string { return b.asset }

func (b *base) Governor() common.Address { return b.governor }

func (b *base) Operator() common.Address {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.operator
}

func (b *base) Settings() Settings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.settings
}

func (b *base) TotalSupply() sdkmath.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.totalShares
}

func (b *base) BalanceOf(account common.Address) sdkmath.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balanceLocked(account)
}

func (b *base) Allowance(owner, spender common.Address) sdkmath.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if a, ok := b.state.allowances[allowanceKey{owner, spender}]; ok {
		return a
	}
	return sdkmath.ZeroInt()
}

// Holders returns every account with a non-zero share balance.
func (b *base) Holders() map[common.Address]sdkmath.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[common.Address]sdkmath.Int, len(b.state.balances))
	for k, v := range b.state.balances {
		out[k] = v
	}
	return out
}

func (b *base) balanceLocked(account common.Address) sdkmath.Int {
	if v, ok := b.state.balances[account]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

func (b *base) setBalanceLocked(account common.Address, v sdkmath.Int) {
	if v.IsZero() {
		delete(b.state.balances, account)
		return
	}
	b.state.balances[account] = v
}

// checkFloor rejects balances strictly between zero and MinShares.
func checkFloor(account common.Address, balance sdkmath.Int) error {
	if balance.IsPositive() && balance.LT(MinShares) {
		return fmt.Errorf("%w: %s would hold %s shares (min %s)", types.ErrInvalidShareBalance, account.Hex(), balance, MinShares)
	}
	return nil
}

func (b *base) mint(to common.Address, shares sdkmath.Int) error {
	if !shares.IsPositive() {
		return nil
	}
	b.mu.Lock()
	next := b.balanceLocked(to).Add(shares)
	if err := checkFloor(to, next); err != nil {
		b.mu.Unlock()
		return err
	}
	b.setBalanceLocked(to, next)
	b.state.totalShares = b.state.totalShares.Add(shares)
	b.mu.Unlock()
	b.rt.Emit(events.Transfer(b.address, common.Address{}, to, shares))
	return nil
}

func (b *base) burn(from common.Address, shares sdkmath.Int) error {
	if !shares.IsPositive() {
		return nil
	}
	b.mu.Lock()
	bal := b.balanceLocked(from)
	if bal.LT(shares) {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s holds %s shares, burning %s", types.ErrNotEnoughBalanceToWithdraw, from.Hex(), bal, shares)
	}
	next := bal.Sub(shares)
	if err := checkFloor(from, next); err != nil {
		b.mu.Unlock()
		return err
	}
	b.setBalanceLocked(from, next)
	b.state.totalShares = b.state.totalShares.Sub(shares)
	b.mu.Unlock()
	b.rt.Emit(events.Transfer(b.address, from, common.Address{}, shares))
	return nil
}

// burnWithFee burns shares of from and moves fee shares of from to feeTo in
// one step, so only the final balances are held to the floor.
func (b *base) burnWithFee(from, feeTo common.Address, shares, fee sdkmath.Int) error {
	if !fee.IsPositive() {
		return b.burn(from, shares)
	}
	b.mu.Lock()
	bal := b.balanceLocked(from)
	total := shares.Add(fee)
	if bal.LT(total) {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s holds %s shares, needs %s", types.ErrNotEnoughBalanceToWithdraw, from.Hex(), bal, total)
	}
	fromNext, feeNext := bal.Sub(total), b.balanceLocked(feeTo).Add(fee)
	if err := checkFloor(from, fromNext); err != nil {
		b.mu.Unlock()
		return err
	}
	if err := checkFloor(feeTo, feeNext); err != nil {
		b.mu.Unlock()
		return err
	}
	b.setBalanceLocked(from, fromNext)
	b.setBalanceLocked(feeTo, feeNext)
	b.state.totalShares = b.state.totalShares.Sub(shares)
	b.mu.Unlock()
	b.rt.Emit(events.Transfer(b.address, from, feeTo, fee))
	b.rt.Emit(events.Transfer(b.address, from, common.Address{}, shares))
	return nil
}

func (b *base) move(from, to common.Address, shares sdkmath.Int) error {
	if shares.IsNegative() {
		return fmt.Errorf("transfer: negative shares %s", shares)
	}
	if to == (common.Address{}) {
		return errors.New("transfer: receiver cannot be the zero address")
	}
	b.mu.Lock()
	bal := b.balanceLocked(from)
	if bal.LT(shares) {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s holds %s shares, moving %s", types.ErrInsufficientBalance, from.Hex(), bal, shares)
	}
	if from != to {
		fromNext, toNext := bal.Sub(shares), b.balanceLocked(to).Add(shares)
		if err := checkFloor(from, fromNext); err != nil {
			b.mu.Unlock()
			return err
		}
		if err := checkFloor(to, toNext); err != nil {
			b.mu.Unlock()
			return err
		}
		b.setBalanceLocked(from, fromNext)
		b.setBalanceLocked(to, toNext)
	}
	b.mu.Unlock()
	b.rt.Emit(events.Transfer(b.address, from, to, shares))
	return nil
}

func (b *base) spendAllowance(owner, spender common.Address, shares sdkmath.Int) error {
	if owner == spender {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := allowanceKey{owner, spender}
	allowed, ok := b.state.allowances[key]
	if !ok {
		allowed = sdkmath.ZeroInt()
	}
	if allowed.LT(shares) {
		return fmt.Errorf("%w: %s may spend %s shares of %s, needs %s", types.ErrInsufficientAllowance, spender.Hex(), allowed, owner.Hex(), shares)
	}
	if remaining := allowed.Sub(shares); remaining.IsZero() {
		delete(b.state.allowances, key)
	} else {
		b.state.allowances[key] = remaining
	}
	return nil
}

// Transfer moves shares from caller to to.
func (b *base) Transfer(ctx context.Context, caller, to common.Address, shares sdkmath.Int) error {
	return b.rt.Atomic(ctx, func(ctx context.Context) error {
		return b.move(caller, to, shares)
	})
}

// Approve lets spender move up to shares of caller's balance.
func (b *base) Approve(ctx context.Context, caller, spender common.Address, shares sdkmath.Int) error {
	return b.rt.Atomic(ctx, func(ctx context.Context) error {
		if shares.IsNil() || shares.IsNegative() {
			return fmt.Errorf("approve: invalid shares %v", shares)
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		key := allowanceKey{caller, spender}
		if shares.IsZero() {
			delete(b.state.allowances, key)
		} else {
			b.state.allowances[key] = shares
		}
		return nil
	})
}

// TransferFrom moves shares out of from using caller's allowance.
func (b *base) TransferFrom(ctx context.Context, caller, from, to common.Address, shares sdkmath.Int) error {
	return b.rt.Atomic(ctx, func(ctx context.Context) error {
		if err := b.spendAllowance(from, caller, shares); err != nil {
			return err
		}
		return b.move(from, to, shares)
	})
}

// SetSettings replaces fees, fee receiver and caps. Governor only.
func (b *base) SetSettings(ctx context.Context, caller common.Address, settings Settings) error {
	return b.rt.Atomic(ctx, func(ctx context.Context) error {
		if caller != b.governor {
			return fmt.Errorf("%w: %s is not the governor", types.ErrNoPermissions, caller.Hex())
		}
		if err := settings.Validate(); err != nil {
			return err
		}
		b.mu.Lock()
		b.state.settings = settings
		b.mu.Unlock()
		b.rt.Emit(events.PolicyUpdated(b.address, "settings"))
		return nil
	})
}

// SetOperator hands the rebalance role to operator. Governor only.
func (b *base) SetOperator(ctx context.Context, caller, operator common.Address) error {
	return b.rt.Atomic(ctx, func(ctx context.Context) error {
		if caller != b.governor {
			return fmt.Errorf("%w: %s is not the governor", types.ErrNoPermissions, caller.Hex())
		}
		b.mu.Lock()
		b.state.operator = operator
		b.mu.Unlock()
		b.rt.Emit(events.PolicyUpdated(b.address, "operator"))
		return nil
	})
}

func (b *base) requireOperator(caller common.Address) error {
	if caller != b.Operator() {
		return fmt.Errorf("%w: %s is not the operator", types.ErrNoPermissions, caller.Hex())
	}
	return nil
}

// TotalAssets is the value managed by the vault in its asset.
func (b *base) TotalAssets() sdkmath.Int {
	return b.totalAssets()
}

// toShares converts assets at the rate assets/shares. The first deposit
// mints 1:1.
func toShares(amount, assets, shares sdkmath.Int, roundUp bool) (sdkmath.Int, error) {
	if shares.IsZero() {
		return amount, nil
	}
	if !assets.IsPositive() {
		return sdkmath.ZeroInt(), types.ErrInvalidAssetsState
	}
	if roundUp {
		return utils.MulDivUp(amount, shares, assets), nil
	}
	return utils.MulDiv(amount, shares, assets), nil
}

func toAssets(amount, assets, shares sdkmath.Int, roundUp bool) sdkmath.Int {
	if shares.IsZero() {
		return amount
	}
	if roundUp {
		return utils.MulDivUp(amount, assets, shares)
	}
	return utils.MulDiv(amount, assets, shares)
}

func (b *base) ConvertToShares(assets sdkmath.Int) (sdkmath.Int, error) {
	return toShares(assets, b.TotalAssets(), b.TotalSupply(), false)
}

func (b *base) ConvertToAssets(shares sdkmath.Int) sdkmath.Int {
	return toAssets(shares, b.TotalAssets(), b.TotalSupply(), false)
}

func (b *base) PreviewDeposit(assets sdkmath.Int) (sdkmath.Int, error) {
	return b.ConvertToShares(assets)
}

// PreviewMint prices shares at the current rate, rounded up. Mint pulls more
// when deploying costs something.
func (b *base) PreviewMint(shares sdkmath.Int) sdkmath.Int {
	return toAssets(shares, b.TotalAssets(), b.TotalSupply(), true)
}

func (b *base) PreviewRedeem(shares sdkmath.Int) sdkmath.Int {
	return b.ConvertToAssets(shares)
}

// PreviewWithdraw prices assets at the current rate. Withdraw burns more when
// unwinding costs something or a withdrawal fee applies.
func (b *base) PreviewWithdraw(assets sdkmath.Int) (sdkmath.Int, error) {
	return toShares(assets, b.TotalAssets(), b.TotalSupply(), true)
}

// TokenPerAsset is the value of one share in 1e18 fixed point.
func (b *base) TokenPerAsset() sdkmath.Int {
	supply := b.TotalSupply()
	if supply.IsZero() {
		return utils.OneE18
	}
	return utils.MulDiv(b.TotalAssets(), utils.OneE18, supply)
}

// MaxDeposit is the largest deposit receiver can make under both caps.
func (b *base) MaxDeposit(receiver common.Address) sdkmath.Int {
	settings := b.Settings()
	limit := Unlimited
	if settings.MaxTotalDeposits.IsPositive() {
		room := settings.MaxTotalDeposits.Sub(b.TotalAssets())
		if !room.IsPositive() {
			return sdkmath.ZeroInt()
		}
		limit = utils.MinInt(limit, room)
	}
	if settings.MaxDepositPerAccount.IsPositive() {
		room := settings.MaxDepositPerAccount.Sub(b.ConvertToAssets(b.BalanceOf(receiver)))
		if !room.IsPositive() {
			return sdkmath.ZeroInt()
		}
		limit = utils.MinInt(limit, room)
	}
	return limit
}

func (b *base) checkDeposit(assets sdkmath.Int, receiver common.Address) error {
	if assets.IsNil() || !assets.IsPositive() {
		return fmt.Errorf("%w: %v", types.ErrInvalidDepositAmount, assets)
	}
	if receiver == (common.Address{}) {
		return fmt.Errorf("%w: receiver cannot be the zero address", types.ErrInvalidDepositAmount)
	}
	if limit := b.MaxDeposit(receiver); assets.GT(limit) {
		return fmt.Errorf("%w: %s requested, %s allowed", types.ErrMaxDepositReached, assets, limit)
	}
	return nil
}

// sharesFor prices a deposit that raised managed assets from before by deposited.
func (b *base) sharesFor(deposited, before sdkmath.Int) (sdkmath.Int, error) {
	if !deposited.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: nothing was deposited", types.ErrInvalidDepositAmount)
	}
	shares, err := toShares(deposited, before, b.TotalSupply(), false)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !shares.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: deposit rounds to zero shares", types.ErrInvalidDepositAmount)
	}
	return shares, nil
}

// grossUp scales a shortfall by the spent/got ratio of earlier rounds.
func grossUp(shortfall, spent, got sdkmath.Int) sdkmath.Int {
	if !spent.IsPositive() || !got.IsPositive() {
		return shortfall
	}
	return utils.MulDivUp(shortfall, spent, got).Add(costDust)
}

// withFee returns the gross amount that leaves amount once bps is taken.
func withFee(amount sdkmath.Int, bps uint64) sdkmath.Int {
	keep := types.BasisPointScale - bps
	return utils.MulDivUp(amount, sdkmath.NewIntFromUint64(types.BasisPointScale), sdkmath.NewIntFromUint64(keep))
}

// fundShares pulls assets from caller and passes them to deploy, round after
// round, until managed assets have grown by the value of shares at the rate
// before the call. The minter pays the deployment costs. Returns the assets
// pulled.
func (b *base) fundShares(ctx context.Context, caller, receiver common.Address, shares sdkmath.Int, deploy func(context.Context, sdkmath.Int) error) (sdkmath.Int, error) {
	if receiver == (common.Address{}) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: receiver cannot be the zero address", types.ErrInvalidDepositAmount)
	}
	before := b.TotalAssets()
	required := toAssets(shares, before, b.TotalSupply(), true)
	limit := b.MaxDeposit(receiver)
	pulled := sdkmath.ZeroInt()
	for round := 0; round < maxCostRounds; round++ {
		added := b.TotalAssets().Sub(before)
		if added.GTE(required) {
			return pulled, nil
		}
		next := grossUp(required.Sub(added), pulled, added)
		if total := pulled.Add(next); total.GT(limit) {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %s requested, %s allowed", types.ErrMaxDepositReached, total, limit)
		}
		if err := b.ledger.TransferFrom(b.asset, b.address, caller, b.address, next); err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("mint: %w", err)
		}
		if err := deploy(ctx, next); err != nil {
			return sdkmath.ZeroInt(), err
		}
		pulled = pulled.Add(next)
	}
	if added := b.TotalAssets().Sub(before); added.LT(required) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: deployed %s of %s after %d rounds", types.ErrInvalidDepositAmount, added, required, maxCostRounds)
	}
	return pulled, nil
}

// checkRedeem validates that owner can burn shares and keep a legal balance.
func (b *base) checkRedeem(owner common.Address, shares sdkmath.Int) error {
	if shares.IsNil() || !shares.IsPositive() {
		return fmt.Errorf("%w: %v shares", types.ErrNotEnoughBalanceToWithdraw, shares)
	}
	bal := b.BalanceOf(owner)
	if shares.GT(bal) {
		return fmt.Errorf("%w: %s holds %s shares, redeeming %s", types.ErrNotEnoughBalanceToWithdraw, owner.Hex(), bal, shares)
	}
	return checkFloor(owner, bal.Sub(shares))
}

// performanceFeeShares prices fee = pnl*bps as new shares that dilute
// holders by exactly fee: fee*S/(A-fee), with A already including pnl.
func (b *base) performanceFeeShares(pnl sdkmath.Int) sdkmath.Int {
	settings := b.Settings()
	supply := b.TotalSupply()
	if !pnl.IsPositive() || settings.PerformanceFeeBps == 0 || supply.IsZero() {
		return sdkmath.ZeroInt()
	}
	fee := utils.ApplyBps(pnl, settings.PerformanceFeeBps)
	assets := b.TotalAssets()
	if !fee.IsPositive() || assets.LTE(fee) {
		return sdkmath.ZeroInt()
	}
	return utils.MulDiv(fee, supply, assets.Sub(fee))
}

// mintFee mints fee shares to the fee receiver. A mint that would leave the
// receiver under MinShares is waived.
func (b *base) mintFee(shares sdkmath.Int) (sdkmath.Int, error) {
	if !shares.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	receiver := b.Settings().FeeReceiver
	if b.BalanceOf(receiver).Add(shares).LT(MinShares) {
		b.logger.Debug().Str("shares", shares.String()).Msg("Fee below share floor, waived")
		return sdkmath.ZeroInt(), nil
	}
	if err := b.mint(receiver, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return shares, nil
}

func (b *base) snapshotShares() shareState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.state
	s.balances = make(map[common.Address]sdkmath.Int, len(b.state.balances))
	for k, v := range b.state.balances {
		s.balances[k] = v
	}
	s.allowances = make(map[allowanceKey]sdkmath.Int, len(b.state.allowances))
	for k, v := range b.state.allowances {
		s.allowances[k] = v
	}
	return s
}

func (b *base) restoreShares(s shareState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
}
