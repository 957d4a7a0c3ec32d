package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/events"
	"github.com/elys-network/levvault/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = DeriveAddress("alice")
	bob   = DeriveAddress("bob")
	carol = DeriveAddress("carol")
)

func newTestRuntime(t *testing.T) (*Runtime, *TokenLedger) {
	t.Helper()
	rt := NewRuntime()
	ledger := NewTokenLedger()
	rt.Register(ledger)
	return rt, ledger
}

func TestAtomicRestoresLedgerAndEventsOnError(t *testing.T) {
	rt, ledger := newTestRuntime(t)
	ctx := context.Background()
	require.NoError(t, ledger.Mint("usdc", alice, sdkmath.NewInt(100)))

	boom := errors.New("boom")
	err := rt.Atomic(ctx, func(ctx context.Context) error {
		require.NoError(t, ledger.Transfer("usdc", alice, bob, sdkmath.NewInt(60)))
		rt.Emit(events.StrategyProfit(alice, sdkmath.NewInt(1)))
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, sdkmath.NewInt(100), ledger.BalanceOf("usdc", alice))
	assert.True(t, ledger.BalanceOf("usdc", bob).IsZero())
	assert.Equal(t, 0, rt.Events().Len())
	assert.Equal(t, uint64(1), rt.Reverts())
}

func TestAtomicNestedCallsJoinOuterTransaction(t *testing.T) {
	rt, ledger := newTestRuntime(t)
	ctx := context.Background()
	require.NoError(t, ledger.Mint("usdc", alice, sdkmath.NewInt(100)))

	err := rt.Atomic(ctx, func(ctx context.Context) error {
		inner := rt.Atomic(ctx, func(ctx context.Context) error {
			assert.True(t, InTx(ctx))
			return ledger.Transfer("usdc", alice, bob, sdkmath.NewInt(40))
		})
		require.NoError(t, inner)
		return ledger.Transfer("usdc", alice, carol, sdkmath.NewInt(100))
	})

	require.ErrorIs(t, err, types.ErrInsufficientBalance)
	assert.Equal(t, sdkmath.NewInt(100), ledger.BalanceOf("usdc", alice), "inner transfer must be rolled back with the outer one")
	assert.True(t, ledger.BalanceOf("usdc", bob).IsZero())
}

func TestAtomicRecoversPanics(t *testing.T) {
	rt, ledger := newTestRuntime(t)
	require.NoError(t, ledger.Mint("usdc", alice, sdkmath.NewInt(5)))

	err := rt.Atomic(context.Background(), func(ctx context.Context) error {
		require.NoError(t, ledger.Burn("usdc", alice, sdkmath.NewInt(5)))
		panic("unexpected")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected")
	assert.Equal(t, sdkmath.NewInt(5), ledger.BalanceOf("usdc", alice))
	assert.Equal(t, sdkmath.NewInt(5), ledger.TotalSupply("usdc"))
}

func TestCommitHooksOnlySeeCommittedEvents(t *testing.T) {
	rt, _ := newTestRuntime(t)
	var seen []events.Event
	rt.OnCommit(func(committed []events.Event) { seen = append(seen, committed...) })

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rt.SetClock(func() time.Time { return now })

	require.NoError(t, rt.Atomic(context.Background(), func(ctx context.Context) error {
		rt.Emit(events.StrategyProfit(alice, sdkmath.NewInt(7)))
		return nil
	}))
	_ = rt.Atomic(context.Background(), func(ctx context.Context) error {
		rt.Emit(events.StrategyLoss(alice, sdkmath.NewInt(3)))
		return errors.New("revert")
	})

	require.Len(t, seen, 1)
	assert.Equal(t, events.KindStrategyProfit, seen[0].Kind)
	assert.Equal(t, uint64(1), seen[0].Seq)
	assert.Equal(t, now, seen[0].Time)

	// the reverted event's sequence number is reused
	require.NoError(t, rt.Atomic(context.Background(), func(ctx context.Context) error {
		rt.Emit(events.StrategyLoss(alice, sdkmath.NewInt(3)))
		return nil
	}))
	assert.Equal(t, uint64(2), seen[1].Seq)
}

func TestAtomicRejectsCancelledContext(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := rt.Atomic(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestViewWaitsForRunningTransaction(t *testing.T) {
	rt, ledger := newTestRuntime(t)
	ctx := context.Background()
	require.NoError(t, ledger.Mint("usdc", alice, sdkmath.NewInt(100)))

	started, release := make(chan struct{}), make(chan struct{})
	txDone := make(chan error, 1)
	go func() {
		txDone <- rt.Atomic(ctx, func(ctx context.Context) error {
			if err := ledger.Transfer("usdc", alice, bob, sdkmath.NewInt(60)); err != nil {
				return err
			}
			close(started)
			<-release
			return errors.New("reverted")
		})
	}()
	<-started

	seen := make(chan sdkmath.Int, 1)
	go rt.View(func() { seen <- ledger.BalanceOf("usdc", alice) })

	select {
	case v := <-seen:
		t.Fatalf("view ran inside a transaction and saw %s", v)
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.Error(t, <-txDone)
	assert.Equal(t, sdkmath.NewInt(100), <-seen)
	assert.Equal(t, uint64(1), rt.Reverts())
}

func TestViewCanReadReverts(t *testing.T) {
	rt, _ := newTestRuntime(t)
	var n uint64
	rt.View(func() { n = rt.Reverts() })
	assert.Zero(t, n)
}
