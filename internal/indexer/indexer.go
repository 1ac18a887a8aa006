// Package indexer implements the dual-mode chain follower (spec.md
// §4.4): a bounded-range catch-up query sorted and applied strictly in
// (blockNumber, logIndex) order, and a live subscription with polling
// fallback, dispatching decoded events into a pool.Actor. No direct
// teacher analog exists (m1zr-ccoin mines its own chain rather than
// following one); the daemon lifecycle below is grounded on the
// teacher's cmd/ccoind/main.go run(ctx, cfg) shape, generalized to
// logrus structured logging per the ambient-stack decision.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/notfartdev/zdoge-sub003/internal/chain"
	"github.com/notfartdev/zdoge-sub003/internal/pool"
	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

// SyncStore persists the indexer's resume point across restarts.
// internal/storage.PostgresStore satisfies this structurally.
type SyncStore interface {
	LastSyncBlock(ctx context.Context) (uint64, error)
	SetLastSyncBlock(ctx context.Context, height uint64) error
}

// Config controls catch-up/live/backpressure behavior.
type Config struct {
	// BacklogThreshold is the block-count gap above which live
	// subscription is paused in favor of catch-up (spec.md §5).
	BacklogThreshold uint64
	// ReorgDepth is the configured finality depth (default 1). The
	// indexer stores it but does not read it: it performs no reorg
	// detection and no rollback, and applies logs as they arrive.
	ReorgDepth uint64
	// PollInterval is how often the polling fallback re-checks the
	// chain head when live subscription is unavailable or has failed.
	PollInterval time.Duration
}

// DefaultConfig returns spec.md §9's resolved defaults.
func DefaultConfig() Config {
	return Config{
		BacklogThreshold: 5000,
		ReorgDepth:       1,
		PollInterval:     4 * time.Second,
	}
}

// Indexer follows one pool contract's event log and applies it to one
// pool.Actor.
type Indexer struct {
	client      *chain.Client
	actor       *pool.Actor
	poolAddress types.Address
	store       SyncStore
	cfg         Config
	log         *logrus.Entry

	// pendingSwaps holds Swap events awaiting their LeafInserted log
	// (Swap's own log carries no indexed leafIndex), keyed by tx hash.
	pendingSwaps map[types.Hash]pool.SwapEvent
}

// New creates an Indexer for one pool.
func New(client *chain.Client, actor *pool.Actor, poolAddress types.Address, store SyncStore, cfg Config, log *logrus.Entry) *Indexer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Indexer{
		client:       client,
		actor:        actor,
		poolAddress:  poolAddress,
		store:        store,
		cfg:          cfg,
		log:          log.WithField("pool", poolAddress.Hex()),
		pendingSwaps: make(map[types.Hash]pool.SwapEvent),
	}
}

// Run drives the indexer until ctx is canceled: an initial catch-up,
// then live subscription (falling back to polling if unavailable or if
// the subscription drops), interleaved with further catch-up passes
// whenever the backlog grows past BacklogThreshold.
func (ix *Indexer) Run(ctx context.Context) error {
	if err := ix.CatchUp(ctx); err != nil {
		return fmt.Errorf("initial catch-up: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		backlog, err := ix.backlog(ctx)
		if err != nil {
			ix.log.WithError(err).Warn("backlog check failed, retrying")
			if !sleepCtx(ctx, ix.cfg.PollInterval) {
				return nil
			}
			continue
		}

		if backlog > ix.cfg.BacklogThreshold || !ix.client.HasLiveSubscription() {
			if err := ix.CatchUp(ctx); err != nil {
				ix.log.WithError(err).Warn("catch-up pass failed")
			}
			if !sleepCtx(ctx, ix.cfg.PollInterval) {
				return nil
			}
			continue
		}

		if err := ix.runLive(ctx); err != nil && !errors.Is(err, context.Canceled) {
			ix.log.WithError(err).Warn("live subscription dropped, falling back to polling")
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (ix *Indexer) backlog(ctx context.Context) (uint64, error) {
	head, err := ix.client.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	last := ix.actor.State().LastSyncBlock()
	if head <= last {
		return 0, nil
	}
	return head - last, nil
}

// CatchUp runs spec.md §4.4 mode 1: a bounded range query from
// lastSyncBlock to the current head, sorted and applied in strict
// (blockNumber, logIndex) order.
func (ix *Indexer) CatchUp(ctx context.Context) error {
	from := ix.actor.State().LastSyncBlock()
	if from > 0 {
		from++ // lastSyncBlock is inclusive of what's already applied
	}
	head, err := ix.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get block number: %w", err)
	}
	if head < from {
		return nil
	}

	logs, err := ix.client.FetchLogs(ctx, ix.poolAddress, from, head)
	if err != nil {
		return fmt.Errorf("fetch logs: %w", err)
	}
	chain.SortLogs(logs)

	for _, l := range logs {
		if err := ix.apply(ctx, l); err != nil {
			return fmt.Errorf("apply log (block %d, index %d): %w", l.BlockNumber, l.Index, err)
		}
	}

	if err := ix.store.SetLastSyncBlock(ctx, head); err != nil {
		return fmt.Errorf("persist last sync block: %w", err)
	}
	return nil
}

func (ix *Indexer) runLive(ctx context.Context) error {
	logCh, sub, err := ix.client.SubscribeLogs(ctx, ix.poolAddress)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return fmt.Errorf("subscription error: %w", err)
		case l := <-logCh:
			if err := ix.apply(ctx, l); err != nil {
				return fmt.Errorf("apply live log (block %d, index %d): %w", l.BlockNumber, l.Index, err)
			}
			if err := ix.store.SetLastSyncBlock(ctx, l.BlockNumber); err != nil {
				ix.log.WithError(err).Warn("persist last sync block failed")
			}
		}
	}
}

func (ix *Indexer) apply(ctx context.Context, l gethtypes.Log) error {
	switch ix.client.EventName(l) {
	case "Shield":
		ev, err := ix.client.DecodeShield(l)
		if err != nil {
			return err
		}
		return ix.actor.ApplyShield(ctx, ev, l.BlockNumber)
	case "Transfer":
		ev, err := ix.client.DecodeTransfer(l)
		if err != nil {
			return err
		}
		return ix.actor.ApplyTransfer(ctx, ev, l.BlockNumber)
	case "Unshield":
		ev, err := ix.client.DecodeUnshield(l)
		if err != nil {
			return err
		}
		return ix.actor.ApplyUnshield(ctx, ev, l.BlockNumber)
	case "Swap":
		ev, err := ix.client.DecodeSwap(l)
		if err != nil {
			return err
		}
		ix.pendingSwaps[ev.TxHash] = ev
		return nil
	case "LeafInserted":
		leafEv, err := ix.client.DecodeLeafInserted(l)
		if err != nil {
			return err
		}
		txHash := types.Hash(l.TxHash)
		pending, ok := ix.pendingSwaps[txHash]
		if !ok || pending.OutputCommitment != leafEv.Leaf {
			return nil // belongs to a Shield/Transfer, which already carries its leafIndex
		}
		delete(ix.pendingSwaps, txHash)
		pending.LeafIndex = leafEv.LeafIndex
		return ix.actor.ApplySwap(ctx, pending, l.BlockNumber)
	default:
		ix.log.WithField("topic0", l.Topics[0].Hex()).Debug("ignoring unrecognized log")
		return nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
