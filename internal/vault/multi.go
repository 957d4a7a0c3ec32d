package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/events"
	"github.com/elys-network/levvault/internal/logger"
	"github.com/elys-network/levvault/internal/types"
	"github.com/elys-network/levvault/internal/utils"
	"github.com/ethereum/go-ethereum/common"
)

// Allocation pairs a strategy with its target weight in basis points.
type Allocation struct {
	Strategy Strategy
	Weight   uint64
}

type allocationState struct {
	strategies []Strategy
	weights    []uint64
}

// MultiStrategyVault splits deposits across weighted strategies and moves
// capital between them on operator command. Undeployed funds stay idle in
// the vault account and count toward total assets.
type MultiStrategyVault struct {
	*base

	allocMu sync.RWMutex
	alloc   allocationState
}

// NewMulti creates a multi-strategy vault. Every strategy must take the vault
// asset and be owned by chain.DeriveAddress(cfg.Name).
func NewMulti(cfg Config, allocations []Allocation) (*MultiStrategyVault, error) {
	b, err := newBase(cfg.Runtime, cfg.Ledger, cfg.Name, cfg.Asset, cfg.Governor, cfg.Operator, cfg.Settings, logger.GetForComponent("multi_vault"))
	if err != nil {
		return nil, fmt.Errorf("multi vault config: %w", err)
	}
	v := &MultiStrategyVault{base: b}
	for i, a := range allocations {
		if err := v.checkStrategy(a.Strategy); err != nil {
			return nil, fmt.Errorf("multi vault config: strategy %d: %w", i, err)
		}
		v.alloc.strategies = append(v.alloc.strategies, a.Strategy)
		v.alloc.weights = append(v.alloc.weights, a.Weight)
	}
	if err := validateWeights(v.alloc.weights, len(v.alloc.strategies)); err != nil {
		return nil, fmt.Errorf("multi vault config: %w", err)
	}
	b.totalAssets = v.totalAssets
	cfg.Runtime.Register(v)
	return v, nil
}

func (v *MultiStrategyVault) checkStrategy(s Strategy) error {
	if s == nil {
		return errors.New("strategy is nil")
	}
	if s.Asset() != v.asset {
		return fmt.Errorf("%w: strategy takes %s, vault %s", types.ErrAssetMismatch, s.Asset(), v.asset)
	}
	for _, existing := range v.alloc.strategies {
		if existing.Address() == s.Address() {
			return fmt.Errorf("strategy %s already allocated", s.Address().Hex())
		}
	}
	return nil
}

func validateWeights(weights []uint64, n int) error {
	if len(weights) != n {
		return fmt.Errorf("%w: %d weights for %d strategies", types.ErrInvalidWeightsLength, len(weights), n)
	}
	var sum uint64
	for _, w := range weights {
		if w > types.BasisPointScale {
			return fmt.Errorf("%w: weight %d above %d", types.ErrInvalidWeights, w, types.BasisPointScale)
		}
		sum += w
	}
	if sum > types.BasisPointScale {
		return fmt.Errorf("%w: sum %d above %d", types.ErrInvalidWeights, sum, types.BasisPointScale)
	}
	return nil
}

// Strategies returns the strategies in allocation order.
func (v *MultiStrategyVault) Strategies() []Strategy {
	v.allocMu.RLock()
	defer v.allocMu.RUnlock()
	return append([]Strategy(nil), v.alloc.strategies...)
}

// Weights returns the weights in allocation order.
func (v *MultiStrategyVault) Weights() []uint64 {
	v.allocMu.RLock()
	defer v.allocMu.RUnlock()
	return append([]uint64(nil), v.alloc.weights...)
}

// Holdings returns each strategy's total assets in allocation order.
func (v *MultiStrategyVault) Holdings() []sdkmath.Int {
	strategies := v.Strategies()
	out := make([]sdkmath.Int, len(strategies))
	for i, s := range strategies {
		out[i] = s.TotalAssets()
	}
	return out
}

// Idle is the vault's undeployed balance.
func (v *MultiStrategyVault) Idle() sdkmath.Int {
	return v.ledger.BalanceOf(v.asset, v.address)
}

func (v *MultiStrategyVault) totalAssets() sdkmath.Int {
	return v.Idle().Add(sumInts(v.Holdings()))
}

// Deposit pulls assets, splits them by weight and mints shares on the
// increase in total assets.
func (v *MultiStrategyVault) Deposit(ctx context.Context, caller common.Address, assets sdkmath.Int, receiver common.Address) (sdkmath.Int, error) {
	minted := sdkmath.ZeroInt()
	err := v.rt.Atomic(ctx, func(ctx context.Context) error {
		if !v.TotalSupply().IsZero() {
			if _, err := v.harvestAll(ctx); err != nil {
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
		if err := v.deploySplit(ctx, assets); err != nil {
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

// Mint mints exactly shares to receiver, pulling what they are worth plus
// any deployment costs. Returns the assets pulled.
func (v *MultiStrategyVault) Mint(ctx context.Context, caller common.Address, shares sdkmath.Int, receiver common.Address) (sdkmath.Int, error) {
	assets := sdkmath.ZeroInt()
	err := v.rt.Atomic(ctx, func(ctx context.Context) error {
		if shares.IsNil() || !shares.IsPositive() {
			return fmt.Errorf("%w: %v shares", types.ErrInvalidDepositAmount, shares)
		}
		if !v.TotalSupply().IsZero() {
			if _, err := v.harvestAll(ctx); err != nil {
				return err
			}
		}
		pulled, err := v.fundShares(ctx, caller, receiver, shares, v.deploySplit)
		if err != nil {
			return err
		}
		if err := v.mint(receiver, shares); err != nil {
			return err
		}
		v.rt.Emit(events.Deposit(v.address, caller, receiver, pulled, shares))
		assets = pulled

		v.logger.Info().
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

// Redeem burns shares of owner net of the withdrawal fee, which is paid to
// the fee receiver in shares, and sends the proceeds to receiver.
func (v *MultiStrategyVault) Redeem(ctx context.Context, caller common.Address, shares sdkmath.Int, receiver, owner common.Address) (sdkmath.Int, error) {
	paid := sdkmath.ZeroInt()
	err := v.rt.Atomic(ctx, func(ctx context.Context) error {
		if _, err := v.harvestAll(ctx); err != nil {
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

// Withdraw pays exactly assets to receiver. Owner gives up the shares worth
// assets plus the unwinding costs, rounded up, grossed up by the withdrawal
// fee which goes to the fee receiver in shares. Returns the shares taken from
// owner.
func (v *MultiStrategyVault) Withdraw(ctx context.Context, caller common.Address, assets sdkmath.Int, receiver, owner common.Address) (sdkmath.Int, error) {
	taken := sdkmath.ZeroInt()
	err := v.rt.Atomic(ctx, func(ctx context.Context) error {
		if assets.IsNil() || !assets.IsPositive() {
			return fmt.Errorf("%w: %v", types.ErrNotEnoughBalanceToWithdraw, assets)
		}
		if receiver == (common.Address{}) {
			return errors.New("withdraw: receiver cannot be the zero address")
		}
		if _, err := v.harvestAll(ctx); err != nil {
			return err
		}

		before, supply := v.TotalAssets(), v.TotalSupply()
		if err := v.freeIdle(ctx, assets); err != nil {
			return err
		}
		cost := before.Sub(v.TotalAssets())
		net, err := toShares(assets.Add(cost), before, supply, true)
		if err != nil {
			return err
		}
		settings := v.Settings()
		fee := sdkmath.ZeroInt()
		if owner != settings.FeeReceiver && settings.WithdrawalFeeBps > 0 {
			fee = withFee(net, settings.WithdrawalFeeBps).Sub(net)
			if v.BalanceOf(settings.FeeReceiver).Add(fee).LT(MinShares) {
				fee = sdkmath.ZeroInt()
			}
		}
		shares := net.Add(fee)
		if err := v.checkRedeem(owner, shares); err != nil {
			return err
		}
		if err := v.spendAllowance(owner, caller, shares); err != nil {
			return err
		}
		if err := v.burnWithFee(owner, settings.FeeReceiver, net, fee); err != nil {
			return err
		}
		if err := v.ledger.Transfer(v.asset, v.address, receiver, assets); err != nil {
			return err
		}
		v.rt.Emit(events.Withdraw(v.address, caller, receiver, owner, assets, net))
		taken = shares

		v.logger.Info().
			Str("owner", owner.Hex()).
			Str("receiver", receiver.Hex()).
			Str("shares", shares.String()).
			Str("feeShares", fee.String()).
			Str("assets", assets.String()).
			Str("cost", cost.String()).
			Msg("Withdraw")
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return taken, nil
}

// freeIdle unwinds strategies pro rata until the idle balance covers amount.
// Rounds after the first are grossed up by the unwinding costs seen so far.
func (v *MultiStrategyVault) freeIdle(ctx context.Context, amount sdkmath.Int) error {
	spent, got := sdkmath.ZeroInt(), sdkmath.ZeroInt()
	for round := 0; round < maxCostRounds; round++ {
		idle := v.Idle()
		if idle.GTE(amount) {
			return nil
		}
		held := sumInts(v.Holdings())
		request := utils.MinInt(grossUp(amount.Sub(idle), spent, got), held)
		if !request.IsPositive() {
			break
		}
		if _, err := v.withdrawProRata(ctx, idle.Add(request)); err != nil {
			return err
		}
		spent = spent.Add(held.Sub(sumInts(v.Holdings())))
		got = got.Add(v.Idle().Sub(idle))
	}
	if idle := v.Idle(); idle.LT(amount) {
		return fmt.Errorf("%w: freed %s of %s", types.ErrNotEnoughBalanceToWithdraw, idle, amount)
	}
	return nil
}

func sumInts(xs []sdkmath.Int) sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, x := range xs {
		total = total.Add(x)
	}
	return total
}

func (v *MultiStrategyVault) redeem(ctx context.Context, caller common.Address, shares sdkmath.Int, receiver, owner common.Address) (sdkmath.Int, error) {
	if receiver == (common.Address{}) {
		return sdkmath.ZeroInt(), errors.New("redeem: receiver cannot be the zero address")
	}
	if err := v.checkRedeem(owner, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := v.spendAllowance(owner, caller, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}

	settings := v.Settings()
	fee := sdkmath.ZeroInt()
	if owner != settings.FeeReceiver && settings.WithdrawalFeeBps > 0 {
		fee = utils.ApplyBpsUp(shares, settings.WithdrawalFeeBps)
		if v.BalanceOf(settings.FeeReceiver).Add(fee).LT(MinShares) {
			fee = sdkmath.ZeroInt()
		}
	}
	net := shares.Sub(fee)
	assets := toAssets(net, v.TotalAssets(), v.TotalSupply(), false)
	if !assets.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s shares are worth nothing", types.ErrNotEnoughBalanceToWithdraw, net)
	}
	if err := v.burnWithFee(owner, settings.FeeReceiver, net, fee); err != nil {
		return sdkmath.ZeroInt(), err
	}
	out, err := v.withdrawProRata(ctx, assets)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := v.ledger.Transfer(v.asset, v.address, receiver, out); err != nil {
		return sdkmath.ZeroInt(), err
	}
	v.rt.Emit(events.Withdraw(v.address, caller, receiver, owner, out, net))

	v.logger.Info().
		Str("owner", owner.Hex()).
		Str("receiver", receiver.Hex()).
		Str("shares", shares.String()).
		Str("feeShares", fee.String()).
		Str("assets", out.String()).
		Msg("Withdraw")
	return out, nil
}

// deploySplit sends amount from the idle balance to the strategies by
// weight. The last weighted strategy takes the rounding remainder; with no
// weights the amount stays idle.
func (v *MultiStrategyVault) deploySplit(ctx context.Context, amount sdkmath.Int) error {
	strategies, weights := v.Strategies(), v.Weights()
	var total uint64
	last := -1
	for i, w := range weights {
		total += w
		if w > 0 {
			last = i
		}
	}
	if total == 0 || !amount.IsPositive() {
		return nil
	}
	remaining := amount
	for i, w := range weights {
		if w == 0 {
			continue
		}
		part := utils.MulDiv(amount, sdkmath.NewIntFromUint64(w), sdkmath.NewIntFromUint64(total))
		if i == last {
			part = remaining
		}
		remaining = remaining.Sub(part)
		if err := v.deployTo(ctx, strategies[i], part); err != nil {
			return err
		}
	}
	return nil
}

func (v *MultiStrategyVault) deployTo(ctx context.Context, s Strategy, amount sdkmath.Int) error {
	if !amount.IsPositive() {
		return nil
	}
	if err := v.ledger.Approve(v.asset, v.address, s.Address(), amount); err != nil {
		return err
	}
	_, err := s.Deploy(ctx, v.address, amount)
	return err
}

// withdrawProRata frees amount into the idle balance, idle funds first and
// the rest from strategies in proportion to their holdings. Returns what is
// available to pay out, at most amount.
func (v *MultiStrategyVault) withdrawProRata(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error) {
	idle := v.Idle()
	if idle.GTE(amount) {
		return amount, nil
	}
	need := amount.Sub(idle)
	strategies := v.Strategies()
	holdings := v.Holdings()
	held := sdkmath.ZeroInt()
	last := -1
	for i, h := range holdings {
		held = held.Add(h)
		if h.IsPositive() {
			last = i
		}
	}
	if held.LT(need) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: need %s, strategies hold %s", types.ErrNotEnoughBalanceToWithdraw, need, held)
	}
	remaining := need
	for i, h := range holdings {
		if !h.IsPositive() {
			continue
		}
		part := utils.MulDiv(need, h, held)
		if i == last {
			part = utils.MinInt(remaining, h)
		}
		remaining = remaining.Sub(part)
		if !part.IsPositive() {
			continue
		}
		if _, err := strategies[i].Undeploy(ctx, v.address, part); err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("strategy %d: %w", i, err)
		}
	}
	return utils.MinInt(amount, v.Idle()), nil
}

// Rebalance executes commands in order. Operator only.
func (v *MultiStrategyVault) Rebalance(ctx context.Context, caller common.Address, commands []types.RebalanceCommand) (types.RebalanceReport, error) {
	report := types.RebalanceReport{TotalPnl: sdkmath.ZeroInt(), FeeShares: sdkmath.ZeroInt(), AssetsMoved: sdkmath.ZeroInt()}
	err := v.rt.Atomic(ctx, func(ctx context.Context) error {
		if err := v.requireOperator(caller); err != nil {
			return err
		}
		for i, cmd := range commands {
			if cmd == nil {
				return fmt.Errorf("command %d: %w: nil", i, types.ErrUnknownCommand)
			}
			var err error
			switch c := cmd.(type) {
			case types.SetWeights:
				err = v.setWeights(c.Weights)
				if err == nil {
					report.WeightsApplied = append([]uint64(nil), c.Weights...)
				}
			case types.AdjustPositions:
				var moved sdkmath.Int
				moved, err = v.adjustPositions(ctx, c)
				if err == nil {
					report.AssetsMoved = report.AssetsMoved.Add(moved)
				}
			case types.Harvest:
				var res harvestResult
				res, err = v.harvestAll(ctx)
				if err == nil {
					report.HarvestPnl = res.pnl
					report.TotalPnl = report.TotalPnl.Add(res.total)
					report.FeeShares = report.FeeShares.Add(res.feeShares)
				}
			default:
				err = fmt.Errorf("%w: %T", types.ErrUnknownCommand, cmd)
			}
			if err != nil {
				return fmt.Errorf("command %d (%s): %w", i, cmd.Action(), err)
			}
			report.Actions = append(report.Actions, cmd.Action())
		}
		return nil
	})
	if err != nil {
		return types.RebalanceReport{}, err
	}
	v.logger.Info().
		Int("commands", len(commands)).
		Str("assetsMoved", report.AssetsMoved.String()).
		Str("pnl", report.TotalPnl.String()).
		Msg("Rebalanced")
	return report, nil
}

func (v *MultiStrategyVault) setWeights(weights []uint64) error {
	if err := validateWeights(weights, len(v.Strategies())); err != nil {
		return err
	}
	v.allocMu.Lock()
	v.alloc.weights = append([]uint64(nil), weights...)
	v.allocMu.Unlock()
	v.rt.Emit(events.WeightsUpdated(v.address, weights))
	return nil
}

// ValidateAdjustment checks an AdjustPositions command against n strategies
// without executing it.
func ValidateAdjustment(cmd types.AdjustPositions, n int) error {
	if len(cmd.Indices) == 0 || len(cmd.Indices) != len(cmd.Deltas) {
		return fmt.Errorf("%w: %d indices, %d deltas", types.ErrInvalidDeltas, len(cmd.Indices), len(cmd.Deltas))
	}
	seen := make(map[int]struct{}, len(cmd.Indices))
	for _, idx := range cmd.Indices {
		if idx < 0 || idx >= n {
			return fmt.Errorf("%w: %d of %d", types.ErrInvalidStrategyIndex, idx, n)
		}
		if _, dup := seen[idx]; dup {
			return fmt.Errorf("%w: %d listed twice", types.ErrInvalidStrategyIndex, idx)
		}
		seen[idx] = struct{}{}
	}
	sum := sdkmath.ZeroInt()
	for i, d := range cmd.Deltas {
		if d.IsNil() {
			return fmt.Errorf("%w: delta %d is unset", types.ErrInvalidDeltas, i)
		}
		if i > 0 && d.LT(cmd.Deltas[i-1]) {
			return fmt.Errorf("%w: deltas not sorted ascending at %d", types.ErrInvalidDeltas, i)
		}
		sum = sum.Add(d)
	}
	if !sum.IsZero() {
		return fmt.Errorf("%w: deltas sum to %s", types.ErrInvalidDeltas, sum)
	}
	return nil
}

// adjustPositions withdraws the negative deltas then deploys the positive
// ones. The last deposit is capped at what the withdrawals freed.
func (v *MultiStrategyVault) adjustPositions(ctx context.Context, cmd types.AdjustPositions) (sdkmath.Int, error) {
	strategies := v.Strategies()
	if err := ValidateAdjustment(cmd, len(strategies)); err != nil {
		return sdkmath.ZeroInt(), err
	}
	lastPositive := -1
	for i, d := range cmd.Deltas {
		if d.IsPositive() {
			lastPositive = i
		}
	}

	moved := sdkmath.ZeroInt()
	for i, d := range cmd.Deltas {
		if !d.IsNegative() {
			continue
		}
		s := strategies[cmd.Indices[i]]
		if _, err := s.Undeploy(ctx, v.address, d.Neg()); err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("strategy %d: %w", cmd.Indices[i], err)
		}
		moved = moved.Add(d.Neg())
	}
	for i, d := range cmd.Deltas {
		if !d.IsPositive() {
			continue
		}
		amount := d
		if i == lastPositive {
			amount = utils.MinInt(d, v.Idle())
		}
		if err := v.deployTo(ctx, strategies[cmd.Indices[i]], amount); err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("strategy %d: %w", cmd.Indices[i], err)
		}
	}
	return moved, nil
}

type harvestResult struct {
	pnl       []sdkmath.Int
	total     sdkmath.Int
	feeShares sdkmath.Int
}

// harvestAll harvests every strategy and mints the performance fee on the
// summed pnl.
func (v *MultiStrategyVault) harvestAll(ctx context.Context) (harvestResult, error) {
	res := harvestResult{total: sdkmath.ZeroInt(), feeShares: sdkmath.ZeroInt()}
	for i, s := range v.Strategies() {
		pnl, err := s.Harvest(ctx, v.address)
		if err != nil {
			return harvestResult{}, fmt.Errorf("strategy %d: %w", i, err)
		}
		res.pnl = append(res.pnl, pnl)
		res.total = res.total.Add(pnl)
	}
	fee, err := v.mintFee(v.performanceFeeShares(res.total))
	if err != nil {
		return harvestResult{}, err
	}
	res.feeShares = fee
	if !res.total.IsZero() {
		v.logger.Info().
			Str("pnl", res.total.String()).
			Str("feeShares", fee.String()).
			Str("tokenPerAsset", v.TokenPerAsset().String()).
			Msg("Harvested")
	}
	return res, nil
}

// AddStrategy appends a strategy with weight. Governor only.
func (v *MultiStrategyVault) AddStrategy(ctx context.Context, caller common.Address, s Strategy, weight uint64) error {
	return v.rt.Atomic(ctx, func(ctx context.Context) error {
		if caller != v.governor {
			return fmt.Errorf("%w: %s is not the governor", types.ErrNoPermissions, caller.Hex())
		}
		v.allocMu.RLock()
		err := v.checkStrategy(s)
		v.allocMu.RUnlock()
		if err != nil {
			return err
		}
		weights := append(v.Weights(), weight)
		if err := validateWeights(weights, len(weights)); err != nil {
			return err
		}
		v.allocMu.Lock()
		v.alloc.strategies = append(append([]Strategy(nil), v.alloc.strategies...), s)
		v.alloc.weights = weights
		v.allocMu.Unlock()
		v.rt.Emit(events.StrategyAdded(v.address, s.Address(), weight))
		v.logger.Info().Str("strategy", s.Address().Hex()).Uint64("weight", weight).Msg("Strategy added")
		return nil
	})
}

// RemoveStrategy unwinds the strategy at index, drops it and spreads the
// recovered assets over the remaining weights. Governor only.
func (v *MultiStrategyVault) RemoveStrategy(ctx context.Context, caller common.Address, index int) (sdkmath.Int, error) {
	recovered := sdkmath.ZeroInt()
	err := v.rt.Atomic(ctx, func(ctx context.Context) error {
		if caller != v.governor {
			return fmt.Errorf("%w: %s is not the governor", types.ErrNoPermissions, caller.Hex())
		}
		strategies := v.Strategies()
		if index < 0 || index >= len(strategies) {
			return fmt.Errorf("%w: %d of %d", types.ErrInvalidStrategyIndex, index, len(strategies))
		}
		s := strategies[index]
		pnl, err := s.Harvest(ctx, v.address)
		if err != nil {
			return err
		}
		if _, err := v.mintFee(v.performanceFeeShares(pnl)); err != nil {
			return err
		}
		if held := s.TotalAssets(); held.IsPositive() {
			out, err := s.Undeploy(ctx, v.address, held)
			if err != nil {
				return err
			}
			recovered = out
		}

		v.allocMu.Lock()
		next := allocationState{}
		for i := range v.alloc.strategies {
			if i == index {
				continue
			}
			next.strategies = append(next.strategies, v.alloc.strategies[i])
			next.weights = append(next.weights, v.alloc.weights[i])
		}
		v.alloc = next
		v.allocMu.Unlock()

		if err := v.deploySplit(ctx, recovered); err != nil {
			return err
		}
		v.rt.Emit(events.StrategyRemoved(v.address, s.Address(), recovered))
		v.logger.Info().Str("strategy", s.Address().Hex()).Str("recovered", recovered.String()).Msg("Strategy removed")
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return recovered, nil
}

type multiState struct {
	shares shareState
	alloc  allocationState
}

func (v *MultiStrategyVault) Snapshot() any {
	v.allocMu.RLock()
	alloc := allocationState{
		strategies: append([]Strategy(nil), v.alloc.strategies...),
		weights:    append([]uint64(nil), v.alloc.weights...),
	}
	v.allocMu.RUnlock()
	return multiState{shares: v.snapshotShares(), alloc: alloc}
}

func (v *MultiStrategyVault) Restore(snapshot any) {
	s := snapshot.(multiState)
	v.restoreShares(s.shares)
	v.allocMu.Lock()
	v.alloc = s.alloc
	v.allocMu.Unlock()
}
