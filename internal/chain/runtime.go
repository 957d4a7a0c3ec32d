// Package chain is the host ledger: a single-writer transactional runtime with
// snapshot/restore semantics, a token ledger and the event log.
package chain

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elys-network/levvault/internal/events"
	"github.com/elys-network/levvault/internal/logger"
	"github.com/rs/zerolog"
)

// Participant is a stateful component whose state is rolled back when a
// transaction fails.
type Participant interface {
	Snapshot() any
	Restore(snapshot any)
}

// CommitHook receives the events of a committed transaction.
type CommitHook func(committed []events.Event)

type txKey struct{}

// Runtime executes transactions one at a time. A failed transaction leaves no
// trace in any registered participant or in the event log.
type Runtime struct {
	mu           sync.Mutex
	participants []Participant
	log          *events.Log
	clock        func() time.Time
	hooks        []CommitHook
	logger       zerolog.Logger
	reverts      atomic.Uint64
}

// NewRuntime creates a runtime using the wall clock.
func NewRuntime() *Runtime {
	rt := &Runtime{
		log:    events.NewLog(),
		clock:  time.Now,
		logger: logger.GetForComponent("runtime"),
	}
	rt.participants = append(rt.participants, rt.log)
	return rt
}

// Register adds participants whose state follows transaction outcomes.
func (rt *Runtime) Register(ps ...Participant) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.participants = append(rt.participants, ps...)
}

// OnCommit subscribes a hook to committed events.
func (rt *Runtime) OnCommit(hook CommitHook) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.hooks = append(rt.hooks, hook)
}

// SetClock replaces the time source.
func (rt *Runtime) SetClock(clock func() time.Time) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.clock = clock
}

// Now returns the current block time.
func (rt *Runtime) Now() time.Time {
	return rt.clock()
}

// Events returns the event log.
func (rt *Runtime) Events() *events.Log {
	return rt.log
}

// Reverts returns how many outermost transactions were rolled back.
func (rt *Runtime) Reverts() uint64 {
	return rt.reverts.Load()
}

// Emit stamps and appends an event to the log.
func (rt *Runtime) Emit(e events.Event) {
	e.Time = rt.clock()
	rt.log.Append(e)
}

// InTx reports whether ctx belongs to a running transaction.
func InTx(ctx context.Context) bool {
	return ctx.Value(txKey{}) != nil
}

// Atomic runs fn as one transaction. Nested calls join the enclosing
// transaction; the outermost call restores every participant when fn returns
// an error or panics.
func (rt *Runtime) Atomic(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if InTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rt.mu.Lock()
	snapshots := make([]any, len(rt.participants))
	for i, p := range rt.participants {
		snapshots[i] = p.Snapshot()
	}
	mark := rt.log.Len()
	hooks := append([]CommitHook(nil), rt.hooks...)

	committed := false
	defer func() {
		if !committed {
			for i, p := range rt.participants {
				p.Restore(snapshots[i])
			}
			rt.reverts.Add(1)
		}
		rt.mu.Unlock()

		if committed && len(hooks) > 0 {
			if emitted := rt.log.Since(mark); len(emitted) > 0 {
				for _, hook := range hooks {
					hook(emitted)
				}
			}
		}
	}()

	func() {
		defer func() {
			if r := recover(); r != nil {
				rt.logger.Error().Interface("panic", r).Msg("Transaction panicked, state restored")
				err = fmt.Errorf("transaction panicked: %v", r)
			}
		}()
		err = fn(context.WithValue(ctx, txKey{}, struct{}{}))
	}()

	if err == nil {
		committed = true
	} else {
		rt.logger.Debug().Err(err).Msg("Transaction reverted")
	}
	return err
}

// View runs fn between transactions: it waits for the running transaction to
// commit or revert and blocks new ones until fn returns. fn must only read;
// starting a transaction from it deadlocks.
func (rt *Runtime) View(fn func()) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	fn()
}
