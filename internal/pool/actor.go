package pool

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// command is a typed mutation dispatched to an Actor's single goroutine.
// Only one command runs at a time per pool, enforcing spec.md §5's
// single-writer rule while letting every Get* method on State take its
// own read lock and run concurrently with the others.
type command struct {
	apply func(ctx context.Context) error
	reply chan error
}

// Actor serializes all mutations to one pool's State through a single
// goroutine, so event application always happens in the exact order the
// indexer observed it on chain (spec.md §5, §9: "the pool's cyclic
// reference to the indexer becomes a channel of typed event messages").
// Reads bypass the actor entirely and go straight to State's locked
// getters.
type Actor struct {
	state *State
	cmds  chan command
	done  chan struct{}
	log   *logrus.Entry
}

// NewActor starts an Actor's dispatch goroutine for state. Call Close to
// stop it.
func NewActor(state *State, log *logrus.Entry) *Actor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	a := &Actor{
		state: state,
		cmds:  make(chan command),
		done:  make(chan struct{}),
		log:   log.WithField("pool", state.Address().Hex()),
	}
	go a.run()
	return a
}

func (a *Actor) run() {
	defer close(a.done)
	for cmd := range a.cmds {
		err := cmd.apply(context.Background())
		if err != nil {
			a.log.WithError(err).Warn("event application failed")
		}
		cmd.reply <- err
	}
}

// Close stops the dispatch goroutine. Pending commands already enqueued
// still run to completion first.
func (a *Actor) Close() {
	close(a.cmds)
	<-a.done
}

// submit enqueues a mutation and blocks for its result, or returns early
// if ctx is canceled first (the mutation still runs to completion
// either way: cancellation only stops the caller from waiting on it).
func (a *Actor) submit(ctx context.Context, apply func(ctx context.Context) error) error {
	reply := make(chan error, 1)
	select {
	case a.cmds <- command{apply: apply, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplyShield applies a Shield event through the actor.
func (a *Actor) ApplyShield(ctx context.Context, ev ShieldEvent, blockHeight uint64) error {
	return a.submit(ctx, func(ctx context.Context) error {
		if err := a.state.applyShield(ctx, ev); err != nil {
			return fmt.Errorf("apply shield (commitment %s): %w", ev.Commitment.Hex(), err)
		}
		a.state.mu.Lock()
		a.state.lastSyncBlock = blockHeight
		a.state.mu.Unlock()
		return nil
	})
}

// ApplyTransfer applies a Transfer event through the actor.
func (a *Actor) ApplyTransfer(ctx context.Context, ev TransferEvent, blockHeight uint64) error {
	return a.submit(ctx, func(ctx context.Context) error {
		if err := a.state.applyTransfer(ctx, ev); err != nil {
			return fmt.Errorf("apply transfer (nullifier %s): %w", ev.NullifierHash.Hex(), err)
		}
		a.state.mu.Lock()
		a.state.lastSyncBlock = blockHeight
		a.state.mu.Unlock()
		return nil
	})
}

// ApplyUnshield applies an Unshield event through the actor.
func (a *Actor) ApplyUnshield(ctx context.Context, ev UnshieldEvent, blockHeight uint64) error {
	return a.submit(ctx, func(ctx context.Context) error {
		if err := a.state.applyUnshield(ctx, ev); err != nil {
			return fmt.Errorf("apply unshield (nullifier %s): %w", ev.NullifierHash.Hex(), err)
		}
		a.state.mu.Lock()
		a.state.lastSyncBlock = blockHeight
		a.state.mu.Unlock()
		return nil
	})
}

// ApplySwap applies a Swap event through the actor.
func (a *Actor) ApplySwap(ctx context.Context, ev SwapEvent, blockHeight uint64) error {
	return a.submit(ctx, func(ctx context.Context) error {
		if err := a.state.applySwap(ctx, ev); err != nil {
			return fmt.Errorf("apply swap (nullifier %s): %w", ev.InputNullifier.Hex(), err)
		}
		a.state.mu.Lock()
		a.state.lastSyncBlock = blockHeight
		a.state.mu.Unlock()
		return nil
	})
}

// Quarantine marks the pool unsafe outside the normal event-application
// path, e.g. when the indexer detects a reorg it cannot reconcile
// (spec.md §5, §7).
func (a *Actor) Quarantine(ctx context.Context, reason error) error {
	return a.submit(ctx, func(_ context.Context) error {
		a.state.mu.Lock()
		a.state.unsafe = true
		a.state.mu.Unlock()
		a.log.WithError(reason).Error("pool quarantined")
		return nil
	})
}

// State exposes the underlying aggregate for read-only access. Mutation
// methods on State remain unexported; only this package's apply* helpers
// (invoked above) can reach them.
func (a *Actor) State() *State {
	return a.state
}
