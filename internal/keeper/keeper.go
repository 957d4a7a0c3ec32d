package keeper

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/analyzer"
	"github.com/elys-network/levvault/internal/chain"
	"github.com/elys-network/levvault/internal/logger"
	"github.com/elys-network/levvault/internal/metrics"
	"github.com/elys-network/levvault/internal/planner"
	"github.com/elys-network/levvault/internal/state"
	"github.com/elys-network/levvault/internal/types"
	"github.com/elys-network/levvault/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// recentCycles is how many snapshots the keeper keeps in memory.
	recentCycles = 100
	// minSamples is the history a strategy needs before weights are planned.
	minSamples = 2
)

// PositionSource is a strategy whose leveraged position the keeper reports.
type PositionSource interface {
	Name() string
	Position() types.Position
}

// Keeper drives the periodic maintenance of the vaults: harvesting, fee
// minting, weight planning and reallocation.
type Keeper struct {
	logger zerolog.Logger
	cfg    Config

	mu         sync.RWMutex
	cycleCount int
	history    [][]types.YieldSample
	index      []float64
	scores     []types.StrategyScore
	recent     []types.CycleSnapshot
}

// Config holds the collaborators of a keeper. Vault and Multi are both
// optional but at least one is required.
type Config struct {
	Name     string
	Runtime  *chain.Runtime
	Operator common.Address

	Vault *vault.Vault
	Multi *vault.MultiStrategyVault
	// StrategyNames labels the multi vault's strategies in allocation order.
	StrategyNames []string
	// Positions are reported in metrics; the first one goes into snapshots.
	Positions []PositionSource

	WeightParams  types.WeightParameters
	YieldLookback int

	Metrics        *metrics.Metrics
	PolicyParamsID *int64

	// Advance runs at the start of every cycle, before any state is read.
	Advance func(ctx context.Context) error
}

// New creates a keeper. When the state store is connected the yield history of
// every multi-vault strategy is loaded from it.
func New(cfg Config) (*Keeper, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("keeper configuration validation failed: %w", err)
	}

	k := &Keeper{
		logger:  logger.GetForComponent("keeper").With().Str("keeper", cfg.Name).Logger(),
		cfg:     cfg,
		history: make([][]types.YieldSample, len(cfg.StrategyNames)),
		index:   make([]float64, len(cfg.StrategyNames)),
	}
	for i := range k.index {
		k.index[i] = 1
	}
	if state.Enabled() {
		k.loadHistory()
	}

	k.logger.Info().
		Bool("singleVault", cfg.Vault != nil).
		Bool("multiVault", cfg.Multi != nil).
		Strs("strategies", cfg.StrategyNames).
		Msg("Keeper created")
	return k, nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.Name == "":
		return errors.New("keeper name cannot be empty")
	case cfg.Runtime == nil:
		return errors.New("runtime cannot be nil")
	case cfg.Vault == nil && cfg.Multi == nil:
		return errors.New("at least one vault is required")
	case cfg.Operator == (common.Address{}):
		return errors.New("operator cannot be the zero address")
	}
	if cfg.Multi != nil {
		if n := len(cfg.Multi.Strategies()); len(cfg.StrategyNames) != n {
			return fmt.Errorf("%d strategy names for %d strategies", len(cfg.StrategyNames), n)
		}
		if cfg.YieldLookback < 2 {
			return fmt.Errorf("yield lookback must be at least 2, got %d", cfg.YieldLookback)
		}
	}
	return nil
}

func (k *Keeper) loadHistory() {
	for i, name := range k.cfg.StrategyNames {
		samples, err := state.LoadYieldHistory(name, k.cfg.YieldLookback)
		if err != nil {
			k.logger.Warn().Err(err).Str("strategy", name).Msg("Failed to load yield history, starting empty")
			continue
		}
		k.history[i] = samples
		if len(samples) > 0 {
			k.index[i] = samples[len(samples)-1].Index
		}
	}
}

// RunLoop runs a cycle immediately and then once per interval until ctx is done.
func (k *Keeper) RunLoop(ctx context.Context, interval time.Duration) {
	k.logger.Info().Dur("interval", interval).Msg("Starting keeper loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	k.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			k.logger.Info().Msg("Keeper loop stopped due to context cancellation")
			return
		case <-ticker.C:
			k.RunCycle(ctx)
		}
	}
}

// RunCycle executes one maintenance cycle and returns its snapshot. Failures
// of a step are recorded in the snapshot; later steps still run.
func (k *Keeper) RunCycle(ctx context.Context) types.CycleSnapshot {
	start := time.Now()
	cycleID := uuid.New().String()
	cycleLogger := k.logger.With().Str("cycle_id", cycleID).Logger()

	snapshot := types.CycleSnapshot{
		CycleNumber:    k.nextCycleNumber(),
		CycleID:        cycleID,
		Timestamp:      k.cfg.Runtime.Now(),
		PolicyParamsID: k.cfg.PolicyParamsID,
		VaultPnl:       sdkmath.ZeroInt(),
		MultiPnl:       sdkmath.ZeroInt(),
	}
	fail := func(step string, err error) {
		cycleLogger.Error().Err(err).Str("step", step).Msg("Cycle step failed")
		snapshot.Errors = append(snapshot.Errors, fmt.Sprintf("%s: %v", step, err))
	}
	cycleLogger.Info().Int("cycleNumber", snapshot.CycleNumber).Msg("--- Starting keeper cycle ---")

	if k.cfg.Advance != nil {
		if err := k.cfg.Advance(ctx); err != nil {
			fail("advance", err)
		}
	}

	// --- Step 1: Initial state ---
	snapshot.InitialVault, snapshot.InitialPosition, snapshot.InitialAlloc = k.captureState()

	// --- Step 2: Single vault harvest ---
	if k.cfg.Vault != nil {
		pnl, err := k.cfg.Vault.Rebalance(ctx, k.cfg.Operator)
		if err != nil {
			fail("vault rebalance", err)
		} else {
			snapshot.VaultPnl = pnl
			k.cfg.Metrics.ObserveHarvest(k.cfg.Vault.Name(), pnl)
			cycleLogger.Info().Str("pnl", pnl.String()).Msg("Step 2: Vault harvested")
		}
	}

	// --- Step 3: Multi vault harvest, scoring and reallocation ---
	if k.cfg.Multi != nil {
		k.runMulti(ctx, &snapshot, cycleLogger, fail)
	}

	// --- Step 4: Final state ---
	snapshot.FinalVault, snapshot.FinalPosition, snapshot.FinalAlloc = k.captureState()
	k.observe()
	k.cfg.Metrics.ObserveCycle(time.Since(start).Seconds(), len(snapshot.Errors) > 0)

	k.saveCycleSnapshot(&snapshot, cycleLogger)
	k.logEndOfCycleState(start, snapshot, cycleLogger)
	return snapshot
}

func (k *Keeper) runMulti(ctx context.Context, snapshot *types.CycleSnapshot, cycleLogger zerolog.Logger, fail func(string, error)) {
	m := k.cfg.Multi
	before := m.Holdings()
	report, err := m.Rebalance(ctx, k.cfg.Operator, []types.RebalanceCommand{types.Harvest{}})
	if err != nil {
		fail("multi harvest", err)
		return
	}
	snapshot.MultiPnl = report.TotalPnl
	k.cfg.Metrics.ObserveHarvest(m.Name(), report.TotalPnl)
	k.recordYield(before, report.HarvestPnl, snapshot.Timestamp)
	cycleLogger.Info().Str("pnl", report.TotalPnl.String()).Msg("Step 3a: Multi vault harvested")

	scores, err := analyzer.ScoreStrategies(k.cfg.StrategyNames, k.History(), k.cfg.WeightParams)
	if err != nil {
		fail("score strategies", err)
		return
	}
	k.mu.Lock()
	k.scores = scores
	k.mu.Unlock()
	if !slices.ContainsFunc(scores, func(s types.StrategyScore) bool { return s.Samples >= minSamples }) {
		cycleLogger.Info().Msg("Step 3b: Not enough yield history, keeping current weights")
		return
	}

	weights, err := analyzer.DetermineTargetWeights(scores, len(scores), k.cfg.WeightParams)
	if err != nil {
		fail("target weights", err)
		return
	}
	snapshot.TargetWeights = weights
	cycleLogger.Info().Interface("weights", weights).Msg("Step 3b: Target weights determined")

	var commands []types.RebalanceCommand
	if !slices.Equal(weights, m.Weights()) {
		commands = append(commands, types.SetWeights{Weights: weights})
	}
	adjustment, err := planner.PlanReallocation(m.Holdings(), weights, k.cfg.WeightParams)
	switch {
	case errors.Is(err, planner.ErrNothingToRebalance):
		cycleLogger.Info().Msg("Step 3c: Holdings within threshold, no reallocation")
	case err != nil:
		fail("plan reallocation", err)
		return
	default:
		snapshot.Adjustment = &adjustment
		commands = append(commands, adjustment)
	}
	if len(commands) == 0 {
		return
	}

	report, err = m.Rebalance(ctx, k.cfg.Operator, commands)
	if err != nil {
		fail("multi reallocation", err)
		return
	}
	cycleLogger.Info().
		Str("assetsMoved", report.AssetsMoved.String()).
		Int("commands", len(commands)).
		Msg("Step 3c: Multi vault reallocated")
}

// recordYield advances the growth index of every strategy that held capital
// before the harvest.
func (k *Keeper) recordYield(before, pnl []sdkmath.Int, at time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for i := range k.index {
		if i >= len(before) || i >= len(pnl) || !before[i].IsPositive() {
			continue
		}
		ret := sdkmath.LegacyNewDecFromInt(pnl[i]).QuoInt(before[i])
		r, err := ret.Float64()
		if err != nil {
			k.logger.Warn().Err(err).Str("strategy", k.cfg.StrategyNames[i]).Msg("Failed to convert harvest return")
			continue
		}
		k.index[i] *= 1 + r
		sample := types.YieldSample{Timestamp: at, Index: k.index[i]}

		k.history[i] = append(k.history[i], sample)
		if over := len(k.history[i]) - k.cfg.YieldLookback; over > 0 {
			k.history[i] = append([]types.YieldSample(nil), k.history[i][over:]...)
		}
		if state.Enabled() {
			if err := state.SaveYieldSample(k.cfg.StrategyNames[i], sample); err != nil {
				k.logger.Error().Err(err).Str("strategy", k.cfg.StrategyNames[i]).Msg("Failed to save yield sample")
			}
		}
	}
}

func (k *Keeper) captureState() (vs types.VaultState, pos types.Position, alloc types.AllocationState) {
	k.cfg.Runtime.View(func() {
		switch {
		case k.cfg.Vault != nil:
			vs = vaultState(k.cfg.Vault.TotalAssets(), k.cfg.Vault.TotalSupply(), k.cfg.Vault.TokenPerAsset())
		case k.cfg.Multi != nil:
			vs = vaultState(k.cfg.Multi.TotalAssets(), k.cfg.Multi.TotalSupply(), k.cfg.Multi.TokenPerAsset())
		}

		pos = types.EmptyPosition()
		if len(k.cfg.Positions) > 0 {
			pos = k.cfg.Positions[0].Position()
		}

		if k.cfg.Multi != nil {
			alloc = types.AllocationState{Weights: k.cfg.Multi.Weights(), Holdings: k.cfg.Multi.Holdings()}
		}
	})
	return vs, pos, alloc
}

func vaultState(assets, shares, tokenPerAsset sdkmath.Int) types.VaultState {
	return types.VaultState{TotalAssets: assets, TotalShares: shares, TokenPerAsset: tokenPerAsset}
}

func (k *Keeper) observe() {
	m := k.cfg.Metrics
	if m == nil {
		return
	}
	k.cfg.Runtime.View(func() {
		if v := k.cfg.Vault; v != nil {
			m.ObserveVault(v.Name(), v.TotalAssets(), v.TokenPerAsset())
		}
		if v := k.cfg.Multi; v != nil {
			m.ObserveVault(v.Name(), v.TotalAssets(), v.TokenPerAsset())
			m.ObserveAllocation(v.Name(), k.cfg.StrategyNames, v.Weights(), v.Holdings())
		}
		for _, p := range k.cfg.Positions {
			m.ObserveLoanToValue(p.Name(), p.Position().LoanToValue)
		}
	})
	m.ObserveReverts(k.cfg.Runtime.Reverts())
}

// nextCycleNumber advances the persisted counter, or the in-memory one when no
// store is connected or the store fails.
func (k *Keeper) nextCycleNumber() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	if state.Enabled() {
		n, err := state.IncrementCycleNumber(k.cfg.Name)
		if err == nil {
			k.cycleCount = n
			return n
		}
		k.logger.Error().Err(err).Msg("Failed to increment cycle number, using in-memory counter")
	}
	k.cycleCount++
	return k.cycleCount
}

func (k *Keeper) saveCycleSnapshot(snapshot *types.CycleSnapshot, cycleLogger zerolog.Logger) {
	if state.Enabled() {
		id, err := state.SaveCycleSnapshot(*snapshot)
		if err != nil {
			cycleLogger.Error().Err(err).Msg("Failed to save cycle snapshot")
		} else {
			snapshot.SnapshotID = id
		}
	}
	if snapshot.SnapshotID == 0 {
		snapshot.SnapshotID = int64(snapshot.CycleNumber)
	}

	k.mu.Lock()
	k.recent = append(k.recent, *snapshot)
	if over := len(k.recent) - recentCycles; over > 0 {
		k.recent = append([]types.CycleSnapshot(nil), k.recent[over:]...)
	}
	k.mu.Unlock()
}

func (k *Keeper) logEndOfCycleState(start time.Time, snapshot types.CycleSnapshot, cycleLogger zerolog.Logger) {
	ev := cycleLogger.Info()
	if len(snapshot.Errors) > 0 {
		ev = cycleLogger.Warn().Strs("errors", snapshot.Errors)
	}
	ev.
		Int("cycleNumber", snapshot.CycleNumber).
		Str("totalAssets", snapshot.FinalVault.TotalAssets.String()).
		Str("tokenPerAsset", snapshot.FinalVault.TokenPerAsset.String()).
		Uint64("ltv", snapshot.FinalPosition.LoanToValue).
		Dur("duration", time.Since(start)).
		Msg("--- Keeper cycle finished ---")
}

// History returns a copy of the yield samples per strategy.
func (k *Keeper) History() [][]types.YieldSample {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([][]types.YieldSample, len(k.history))
	for i, h := range k.history {
		out[i] = append([]types.YieldSample(nil), h...)
	}
	return out
}

// Scores returns the scores computed by the last cycle.
func (k *Keeper) Scores() []types.StrategyScore {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return append([]types.StrategyScore(nil), k.scores...)
}

// RecentCycles returns up to limit of the latest snapshots, newest first.
func (k *Keeper) RecentCycles(limit int) []types.CycleSnapshot {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if limit <= 0 || limit > len(k.recent) {
		limit = len(k.recent)
	}
	out := make([]types.CycleSnapshot, 0, limit)
	for i := len(k.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, k.recent[i])
	}
	return out
}

// Cycle returns the in-memory snapshot with the given id.
func (k *Keeper) Cycle(id int64) (types.CycleSnapshot, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for i := len(k.recent) - 1; i >= 0; i-- {
		if k.recent[i].SnapshotID == id {
			return k.recent[i], true
		}
	}
	return types.CycleSnapshot{}, false
}
