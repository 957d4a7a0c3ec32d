// Package strategy holds the yield sources a vault deploys into: a looped
// collateral/debt position funded by flash loans, and a plain market supply.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/chain"
	"github.com/elys-network/levvault/internal/events"
	"github.com/elys-network/levvault/internal/leverage"
	"github.com/elys-network/levvault/internal/logger"
	"github.com/elys-network/levvault/internal/types"
	"github.com/elys-network/levvault/internal/utils"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

// maxAdjustIterations bounds the deleverage passes of one harvest.
const maxAdjustIterations = 3

type flashOp uint8

const (
	opDeploy flashOp = iota + 1
	opUndeploy
	opDeleverage
)

func (op flashOp) String() string {
	switch op {
	case opDeploy:
		return "deploy"
	case opUndeploy:
		return "undeploy"
	case opDeleverage:
		return "deleverage"
	default:
		return fmt.Sprintf("flash_op(%d)", uint8(op))
	}
}

// flashArgs is the callback payload: (op, argument, nonce).
var flashArgs = mustArguments("uint8", "uint256", "uint256")

func mustArguments(kinds ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(kinds))
	for _, kind := range kinds {
		t, err := abi.NewType(kind, "", nil)
		if err != nil {
			panic(fmt.Sprintf("abi type %s: %v", kind, err))
		}
		args = append(args, abi.Argument{Type: t})
	}
	return args
}

// pendingOp authenticates the one flash loan callback the strategy expects.
// It is consumed by the first callback that matches it.
type pendingOp struct {
	op     flashOp
	amount sdkmath.Int
	arg    sdkmath.Int
	price  sdkmath.Int
	digest common.Hash
}

// LeveragedConfig wires a leveraged strategy to its collaborators.
type LeveragedConfig struct {
	Runtime         *chain.Runtime
	Ledger          *chain.TokenLedger
	Name            string
	Owner           common.Address
	Governor        common.Address
	CollateralAsset string
	DebtAsset       string
	Oracle          types.Oracle // collateral priced in debt asset, 1e18
	FlashLender     types.FlashLender
	Market          types.LendingMarket
	Swapper         types.SwapRouter
	Policy          types.PolicyParameters
}

func (c LeveragedConfig) validate() error {
	switch {
	case c.Runtime == nil || c.Ledger == nil:
		return errors.New("runtime and ledger are required")
	case c.Name == "":
		return errors.New("name cannot be empty")
	case c.CollateralAsset == "" || c.DebtAsset == "" || c.CollateralAsset == c.DebtAsset:
		return fmt.Errorf("collateral %q and debt %q must be distinct assets", c.CollateralAsset, c.DebtAsset)
	case c.Oracle == nil || c.FlashLender == nil || c.Market == nil || c.Swapper == nil:
		return errors.New("oracle, flash lender, market and swapper are required")
	case c.Owner == (common.Address{}):
		return errors.New("owner cannot be the zero address")
	}
	return c.Policy.Validate()
}

type leveragedState struct {
	position types.Position
	deployed sdkmath.Int
	policy   types.PolicyParameters
	pending  *pendingOp
	nonce    uint64
}

// Leveraged owns one collateral/debt position in a lending market. Capital
// is levered up and unwound through flash loans so every transition is a
// single transaction.
type Leveraged struct {
	rt         *chain.Runtime
	ledger     *chain.TokenLedger
	name       string
	address    common.Address
	owner      common.Address
	governor   common.Address
	collateral string
	debt       string
	oracle     types.Oracle
	lender     types.FlashLender
	market     types.LendingMarket
	swapper    types.SwapRouter
	logger     zerolog.Logger

	mu    sync.RWMutex
	state leveragedState
}

// NewLeveraged creates the strategy and registers it with the runtime.
func NewLeveraged(cfg LeveragedConfig) (*Leveraged, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("leveraged strategy config: %w", err)
	}
	s := &Leveraged{
		rt:         cfg.Runtime,
		ledger:     cfg.Ledger,
		name:       cfg.Name,
		address:    chain.DeriveAddress(cfg.Name),
		owner:      cfg.Owner,
		governor:   cfg.Governor,
		collateral: cfg.CollateralAsset,
		debt:       cfg.DebtAsset,
		oracle:     cfg.Oracle,
		lender:     cfg.FlashLender,
		market:     cfg.Market,
		swapper:    cfg.Swapper,
		logger:     logger.GetForComponent("leveraged_strategy").With().Str("strategy", cfg.Name).Logger(),
		state: leveragedState{
			position: types.EmptyPosition(),
			deployed: sdkmath.ZeroInt(),
			policy:   cfg.Policy,
		},
	}
	cfg.Runtime.Register(s)
	return s, nil
}

func (s *Leveraged) Name() string { return s.name }
func (s *Leveraged) Address() common.Address { return s.address }
func (s *Leveraged) Asset() string { return s.debt }
func (s *Leveraged) CollateralAsset() string { return s.collateral }
func (s *Leveraged) Owner() common.Address { return s.owner }
func (s *Leveraged) Governor() common.Address { return s.governor }

// TotalAssets is the equity of the stored position, floored at zero.
func (s *Leveraged) TotalAssets() sdkmath.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	equity := s.state.position.Equity()
	if equity.IsNegative() {
		return sdkmath.ZeroInt()
	}
	return equity
}

// Position returns the position as of the last deploy, undeploy or harvest.
func (s *Leveraged) Position() types.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.position
}

// Deployed returns the equity recorded at the last update.
func (s *Leveraged) Deployed() sdkmath.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.deployed
}

func (s *Leveraged) Policy() types.PolicyParameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.policy
}

// SetPolicy replaces the policy parameters. Governor only.
func (s *Leveraged) SetPolicy(ctx context.Context, caller common.Address, policy types.PolicyParameters) error {
	return s.rt.Atomic(ctx, func(ctx context.Context) error {
		if caller != s.governor {
			return fmt.Errorf("%w: %s is not the governor", types.ErrNoPermissions, caller.Hex())
		}
		if err := policy.Validate(); err != nil {
			return err
		}
		s.mu.Lock()
		s.state.policy = policy
		s.mu.Unlock()
		s.rt.Emit(events.PolicyUpdated(s.address, s.name))
		s.logger.Info().
			Uint64("targetLTV", policy.TargetLoanToValue).
			Uint64("maxLTV", policy.MaxLoanToValue).
			Uint64("loops", policy.LoopCount).
			Msg("Policy updated")
		return nil
	})
}

// Deploy pulls amount of the debt asset from caller and levers it up to
// LeverageRatio(amount, target, loops). Returns the leveraged amount.
func (s *Leveraged) Deploy(ctx context.Context, caller common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	leveraged := sdkmath.ZeroInt()
	err := s.rt.Atomic(ctx, func(ctx context.Context) error {
		if amount.IsNil() || !amount.IsPositive() {
			return fmt.Errorf("%w: %v", types.ErrInvalidDeployAmount, amount)
		}
		if caller != s.owner {
			return fmt.Errorf("%w: %s is not the owner", types.ErrNoPermissions, caller.Hex())
		}
		policy := s.Policy()
		price, err := s.freshPrice(ctx, policy)
		if err != nil {
			return err
		}
		if err := s.ledger.TransferFrom(s.debt, s.address, caller, s.address, amount); err != nil {
			return fmt.Errorf("deploy: %w", err)
		}

		total, err := leverage.LeverageRatio(amount, policy.TargetLoanToValue, policy.LoopCount)
		if err != nil {
			return err
		}
		loan := total.Sub(amount)
		if loan.IsZero() {
			if err := s.supplyAsCollateral(ctx, total, price, policy); err != nil {
				return err
			}
		} else if err := s.flashLoan(ctx, opDeploy, loan, total, price); err != nil {
			return err
		}

		pos, err := s.refreshPosition(price)
		if err != nil {
			return err
		}
		if pos.LoanToValue > policy.MaxLoanToValue {
			return fmt.Errorf("%w: %d > %d", types.ErrMaxLoanToValueExceeded, pos.LoanToValue, policy.MaxLoanToValue)
		}
		deployed := s.setDeployed(pos.Equity())

		s.rt.Emit(events.StrategyDeploy(s.address, caller, amount))
		s.rt.Emit(events.StrategyAmountUpdate(s.address, deployed))
		leveraged = total

		s.logger.Info().
			Str("amount", amount.String()).
			Str("leveraged", total.String()).
			Uint64("ltv", pos.LoanToValue).
			Str("equity", deployed.String()).
			Msg("Strategy deployed")
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return leveraged, nil
}

// Undeploy unwinds amount of equity proportionally from both legs and sends
// the proceeds in the debt asset to caller. Returns the amount remitted.
func (s *Leveraged) Undeploy(ctx context.Context, caller common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	remitted := sdkmath.ZeroInt()
	err := s.rt.Atomic(ctx, func(ctx context.Context) error {
		if amount.IsNil() || !amount.IsPositive() {
			return fmt.Errorf("%w: %v", types.ErrInvalidDeployAmount, amount)
		}
		if caller != s.owner {
			return fmt.Errorf("%w: %s is not the owner", types.ErrNoPermissions, caller.Hex())
		}
		policy := s.Policy()
		price, err := s.freshPrice(ctx, policy)
		if err != nil {
			return err
		}
		pos, err := s.refreshPosition(price)
		if err != nil {
			return err
		}
		equity := pos.Equity()
		switch {
		case equity.IsNegative():
			return fmt.Errorf("%w: collateral %s, debt %s", types.ErrCollateralLowerThanDebt, pos.CollateralValue, pos.DebtValue)
		case equity.IsZero():
			return types.ErrNoCollateralMarginToScale
		case amount.GT(equity):
			return fmt.Errorf("%w: undeploy %s exceeds equity %s", types.ErrCollateralLowerThanDebt, amount, equity)
		}

		collBal := s.market.CollateralBalance(s.address, s.collateral)
		debtBal := s.market.DebtBalance(s.address, s.debt)
		collDelta, debtDelta, err := leverage.DeltaPositionFraction(amount, equity, collBal, debtBal)
		if err != nil {
			return err
		}

		before := s.ledger.BalanceOf(s.debt, s.address)
		if debtDelta.IsZero() {
			if _, err := s.withdrawAndSell(ctx, collDelta, price, policy); err != nil {
				return err
			}
		} else if err := s.flashLoan(ctx, opUndeploy, debtDelta, collDelta, price); err != nil {
			return err
		}
		proceeds := s.ledger.BalanceOf(s.debt, s.address).Sub(before)
		if proceeds.IsPositive() {
			if err := s.ledger.Transfer(s.debt, s.address, caller, proceeds); err != nil {
				return err
			}
		}

		after, err := s.refreshPosition(price)
		if err != nil {
			return err
		}
		if after.Equity().IsNegative() {
			return fmt.Errorf("%w: collateral %s, debt %s", types.ErrCollateralLowerThanDebt, after.CollateralValue, after.DebtValue)
		}
		deployed := s.setDeployed(after.Equity())

		s.rt.Emit(events.StrategyUndeploy(s.address, caller, proceeds))
		s.rt.Emit(events.StrategyAmountUpdate(s.address, deployed))
		remitted = proceeds

		s.logger.Info().
			Str("amount", amount.String()).
			Str("remitted", proceeds.String()).
			Str("collateralDelta", collDelta.String()).
			Str("debtDelta", debtDelta.String()).
			Str("equity", deployed.String()).
			Msg("Strategy undeployed")
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return remitted, nil
}

// Harvest revalues the position, deleverages back to the target when the
// loan-to-value is above the band and reports the signed equity change since
// the last update.
func (s *Leveraged) Harvest(ctx context.Context, caller common.Address) (sdkmath.Int, error) {
	pnl := sdkmath.ZeroInt()
	err := s.rt.Atomic(ctx, func(ctx context.Context) error {
		if caller != s.owner {
			return fmt.Errorf("%w: %s is not the owner", types.ErrNoPermissions, caller.Hex())
		}
		if s.market.CollateralBalance(s.address, s.collateral).IsZero() && s.market.DebtBalance(s.address, s.debt).IsZero() {
			return nil
		}
		policy := s.Policy()
		price, err := s.freshPrice(ctx, policy)
		if err != nil {
			return err
		}
		pos, err := s.refreshPosition(price)
		if err != nil {
			return err
		}
		if pos.Equity().IsNegative() {
			return fmt.Errorf("%w: collateral %s, debt %s", types.ErrCollateralLowerThanDebt, pos.CollateralValue, pos.DebtValue)
		}

		adjusted := false
		for i := 0; i < maxAdjustIterations && pos.LoanToValue > policy.MaxLoanToValue; i++ {
			pay, err := leverage.DebtToPay(policy.TargetLoanToValue, pos.CollateralValue, pos.DebtValue)
			if err != nil {
				return err
			}
			if pay.IsZero() {
				break
			}
			s.logger.Warn().
				Int("pass", i+1).
				Uint64("ltv", pos.LoanToValue).
				Uint64("maxLTV", policy.MaxLoanToValue).
				Str("repay", pay.String()).
				Msg("Loan to value above band, deleveraging")
			if err := s.flashLoan(ctx, opDeleverage, pay, pay, price); err != nil {
				return err
			}
			if pos, err = s.refreshPosition(price); err != nil {
				return err
			}
			adjusted = true
		}
		if pos.LoanToValue > policy.MaxLoanToValue {
			return fmt.Errorf("%w: %d after %d passes", types.ErrMaxLoanToValueExceeded, pos.LoanToValue, maxAdjustIterations)
		}

		previous := s.Deployed()
		equity := pos.Equity()
		pnl = equity.Sub(previous)
		switch {
		case pnl.IsPositive():
			s.rt.Emit(events.StrategyProfit(s.address, pnl))
		case pnl.IsNegative():
			s.rt.Emit(events.StrategyLoss(s.address, pnl.Neg()))
		}
		if !pnl.IsZero() || adjusted {
			s.rt.Emit(events.StrategyAmountUpdate(s.address, s.setDeployed(equity)))
		}

		s.logger.Info().
			Str("pnl", pnl.String()).
			Str("equity", equity.String()).
			Uint64("ltv", pos.LoanToValue).
			Bool("deleveraged", adjusted).
			Msg("Strategy harvested")
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return pnl, nil
}

// OnFlashLoan runs the second half of an operation the strategy started.
// Anyone can call it, so it only acts on the single pending operation.
func (s *Leveraged) OnFlashLoan(ctx context.Context, sender, initiator common.Address, asset string, amount, fee sdkmath.Int, data []byte) (common.Hash, error) {
	if sender != s.lender.Address() {
		return common.Hash{}, fmt.Errorf("%w: %s", types.ErrInvalidFlashLoanSender, sender.Hex())
	}
	if asset != s.debt {
		return common.Hash{}, fmt.Errorf("%w: %s", types.ErrInvalidFlashLoanAsset, asset)
	}

	s.mu.Lock()
	pending := s.state.pending
	if pending == nil || initiator != s.address || !amount.Equal(pending.amount) || crypto.Keccak256Hash(data) != pending.digest {
		s.mu.Unlock()
		return common.Hash{}, types.ErrFailedToAuthenticateArgs
	}
	s.state.pending = nil
	s.mu.Unlock()

	var err error
	switch pending.op {
	case opDeploy:
		err = s.onDeployLoan(ctx, pending, fee)
	case opUndeploy:
		err = s.onUndeployLoan(ctx, pending, fee)
	case opDeleverage:
		err = s.onDeleverageLoan(ctx, pending, fee)
	default:
		err = fmt.Errorf("%w: flash operation %s", types.ErrFailedToAuthenticateArgs, pending.op)
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s callback: %w", pending.op, err)
	}
	if err := s.ledger.Approve(s.debt, s.address, sender, amount.Add(fee)); err != nil {
		return common.Hash{}, err
	}
	return types.FlashLoanCallbackSuccess, nil
}

// onDeployLoan swaps the whole levered amount into collateral, supplies it and
// borrows back the flash loan plus fee.
func (s *Leveraged) onDeployLoan(ctx context.Context, op *pendingOp, fee sdkmath.Int) error {
	policy := s.Policy()
	if err := s.supplyAsCollateral(ctx, op.arg, op.price, policy); err != nil {
		return err
	}
	return s.market.Borrow(ctx, s.address, s.debt, op.amount.Add(fee))
}

// onUndeployLoan repays debt with the loan, then releases and sells the
// matching collateral.
func (s *Leveraged) onUndeployLoan(ctx context.Context, op *pendingOp, fee sdkmath.Int) error {
	if err := s.repay(ctx, op.amount); err != nil {
		return err
	}
	_, err := s.withdrawAndSell(ctx, op.arg, op.price, s.Policy())
	return err
}

// onDeleverageLoan repays debt with the loan and sells just enough collateral
// to cover the loan plus fee. Unsold collateral goes back to the market.
func (s *Leveraged) onDeleverageLoan(ctx context.Context, op *pendingOp, fee sdkmath.Int) error {
	policy := s.Policy()
	if err := s.repay(ctx, op.amount); err != nil {
		return err
	}
	needed := op.amount.Add(fee)
	maxIn := utils.MulDivUp(needed, utils.OneE18, op.price)
	maxIn = utils.MulDivUp(maxIn, sdkmath.NewIntFromUint64(types.LoanToValueScale+policy.MaxSlippage), sdkmath.NewIntFromUint64(types.LoanToValueScale))
	maxIn = utils.MinInt(maxIn, s.market.CollateralBalance(s.address, s.collateral))

	if _, err := s.market.Withdraw(ctx, s.address, s.collateral, maxIn, s.address); err != nil {
		return err
	}
	if err := s.ledger.Approve(s.collateral, s.address, s.swapper.Address(), maxIn); err != nil {
		return err
	}
	res, err := s.swapper.ExecuteSwap(ctx, s.address, types.SwapParams{
		UnderlyingIn:  s.collateral,
		UnderlyingOut: s.debt,
		Mode:          types.ExactOut,
		AmountIn:      maxIn,
		AmountOut:     needed,
	})
	if err != nil {
		return err
	}
	if err := s.ledger.Approve(s.collateral, s.address, s.swapper.Address(), sdkmath.ZeroInt()); err != nil {
		return err
	}
	if leftover := maxIn.Sub(res.AmountIn); leftover.IsPositive() {
		if err := s.ledger.Approve(s.collateral, s.address, s.market.Address(), leftover); err != nil {
			return err
		}
		return s.market.Supply(ctx, s.address, s.collateral, leftover)
	}
	return nil
}

// supplyAsCollateral sells amount of the debt asset for collateral and
// supplies everything received.
func (s *Leveraged) supplyAsCollateral(ctx context.Context, amount, price sdkmath.Int, policy types.PolicyParameters) error {
	minOut := utils.MulDiv(amount, utils.OneE18, price)
	minOut = utils.ApplyPPB(minOut, types.LoanToValueScale-policy.MaxSlippage)
	if err := s.ledger.Approve(s.debt, s.address, s.swapper.Address(), amount); err != nil {
		return err
	}
	res, err := s.swapper.ExecuteSwap(ctx, s.address, types.SwapParams{
		UnderlyingIn:  s.debt,
		UnderlyingOut: s.collateral,
		Mode:          types.ExactIn,
		AmountIn:      amount,
		AmountOut:     minOut,
	})
	if err != nil {
		return err
	}
	if err := s.ledger.Approve(s.collateral, s.address, s.market.Address(), res.AmountOut); err != nil {
		return err
	}
	return s.market.Supply(ctx, s.address, s.collateral, res.AmountOut)
}

// withdrawAndSell releases amount of collateral and sells it for the debt
// asset. Returns the debt asset received.
func (s *Leveraged) withdrawAndSell(ctx context.Context, amount, price sdkmath.Int, policy types.PolicyParameters) (sdkmath.Int, error) {
	if !amount.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	if _, err := s.market.Withdraw(ctx, s.address, s.collateral, amount, s.address); err != nil {
		return sdkmath.ZeroInt(), err
	}
	minOut := utils.MulDiv(amount, price, utils.OneE18)
	minOut = utils.ApplyPPB(minOut, types.LoanToValueScale-policy.MaxSlippage)
	if err := s.ledger.Approve(s.collateral, s.address, s.swapper.Address(), amount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	res, err := s.swapper.ExecuteSwap(ctx, s.address, types.SwapParams{
		UnderlyingIn:  s.collateral,
		UnderlyingOut: s.debt,
		Mode:          types.ExactIn,
		AmountIn:      amount,
		AmountOut:     minOut,
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return res.AmountOut, nil
}

func (s *Leveraged) repay(ctx context.Context, amount sdkmath.Int) error {
	if err := s.ledger.Approve(s.debt, s.address, s.market.Address(), amount); err != nil {
		return err
	}
	_, err := s.market.Repay(ctx, s.address, s.debt, amount)
	return err
}

// flashLoan records the pending operation and borrows amount of the debt asset.
func (s *Leveraged) flashLoan(ctx context.Context, op flashOp, amount, arg, price sdkmath.Int) error {
	s.mu.Lock()
	s.state.nonce++
	nonce := s.state.nonce
	s.mu.Unlock()

	data, err := flashArgs.Pack(uint8(op), arg.BigInt(), new(big.Int).SetUint64(nonce))
	if err != nil {
		return fmt.Errorf("encode flash loan args: %w", err)
	}
	s.mu.Lock()
	s.state.pending = &pendingOp{op: op, amount: amount, arg: arg, price: price, digest: crypto.Keccak256Hash(data)}
	s.mu.Unlock()

	if err := s.lender.FlashLoan(ctx, s.address, s, s.debt, amount, data); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.pending != nil {
		s.state.pending = nil
		return fmt.Errorf("%w: %s callback never ran", types.ErrFailedToAuthenticateArgs, op)
	}
	return nil
}

func (s *Leveraged) freshPrice(ctx context.Context, policy types.PolicyParameters) (sdkmath.Int, error) {
	price, err := types.FreshPrice(ctx, s.oracle, s.rt.Now(), policy.PriceMaxAge)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return price.Value, nil
}

// refreshPosition reads both legs from the market and stores the position
// valued at price.
func (s *Leveraged) refreshPosition(price sdkmath.Int) (types.Position, error) {
	if !price.IsPositive() {
		return types.Position{}, types.ErrPriceOutdated
	}
	collateral := utils.MulDiv(s.market.CollateralBalance(s.address, s.collateral), price, utils.OneE18)
	debt := s.market.DebtBalance(s.address, s.debt)
	pos := types.Position{
		CollateralValue: collateral,
		DebtValue:       debt,
		LoanToValue:     leverage.LoanToValue(collateral, debt),
	}
	s.mu.Lock()
	s.state.position = pos
	s.mu.Unlock()
	return pos, nil
}

func (s *Leveraged) setDeployed(equity sdkmath.Int) sdkmath.Int {
	if equity.IsNegative() {
		equity = sdkmath.ZeroInt()
	}
	s.mu.Lock()
	s.state.deployed = equity
	s.mu.Unlock()
	return equity
}

// DecodeFlashArgs unpacks a callback payload into (operation, argument, nonce).
func DecodeFlashArgs(data []byte) (uint8, sdkmath.Int, uint64, error) {
	values, err := flashArgs.Unpack(data)
	if err != nil {
		return 0, sdkmath.ZeroInt(), 0, err
	}
	if len(values) != 3 {
		return 0, sdkmath.ZeroInt(), 0, fmt.Errorf("flash args: expected 3 values, got %d", len(values))
	}
	op, ok1 := values[0].(uint8)
	arg, ok2 := values[1].(*big.Int)
	nonce, ok3 := values[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return 0, sdkmath.ZeroInt(), 0, errors.New("flash args: unexpected value types")
	}
	return op, sdkmath.NewIntFromBigInt(arg), nonce.Uint64(), nil
}

func (s *Leveraged) Snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := s.state
	if cp.pending != nil {
		p := *cp.pending
		cp.pending = &p
	}
	return cp
}

func (s *Leveraged) Restore(snapshot any) {
	st := snapshot.(leveragedState)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}
