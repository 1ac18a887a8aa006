// Package pool implements the per-pool aggregate state (spec.md §4.3):
// the commitment accumulator, commitment metadata, nullifier set, memo
// log, and per-token shielded balances, mutated exclusively by a single
// per-pool actor (spec.md §5, §9).
package pool

import (
	"context"
	"errors"
	"sync"

	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

// ErrNullifierSpent is returned by MarkSpent for an already-spent
// nullifier (spec.md I4).
var ErrNullifierSpent = errors.New("pool: nullifier already spent")

// NullifierStore is the durable backing for a pool's nullifier set.
// internal/storage provides a PostgreSQL-backed implementation; tests use
// an in-memory one.
type NullifierStore interface {
	HasNullifier(ctx context.Context, nullifier types.Hash) (bool, error)
	AddNullifier(ctx context.Context, nullifier types.Hash, txHash types.Hash, blockHeight uint64) error
}

// nullifierSet layers an in-memory cache over a NullifierStore, grounded
// on the teacher's internal/zkp/nullifier.go NullifierSet — generalized
// to drop client-side nullifier derivation (out of scope per spec.md §1)
// and keep only the grow-only spent-tracking behavior spec.md I4 needs.
type nullifierSet struct {
	mu    sync.RWMutex
	cache map[types.Hash]struct{}
	store NullifierStore
}

func newNullifierSet(store NullifierStore) *nullifierSet {
	return &nullifierSet{cache: make(map[types.Hash]struct{}), store: store}
}

func (ns *nullifierSet) IsSpent(ctx context.Context, nullifier types.Hash) (bool, error) {
	ns.mu.RLock()
	_, inCache := ns.cache[nullifier]
	ns.mu.RUnlock()
	if inCache {
		return true, nil
	}
	return ns.store.HasNullifier(ctx, nullifier)
}

// MarkSpent records nullifier as spent. Per spec.md I4, re-submission of
// a known nullifier must fail before any other state change, so callers
// must check IsSpent themselves first (MarkSpent alone re-checks too,
// but the accumulator insert for the same event must not have already
// happened).
func (ns *nullifierSet) MarkSpent(ctx context.Context, nullifier, txHash types.Hash, blockHeight uint64) error {
	spent, err := ns.IsSpent(ctx, nullifier)
	if err != nil {
		return err
	}
	if spent {
		return ErrNullifierSpent
	}

	if err := ns.store.AddNullifier(ctx, nullifier, txHash, blockHeight); err != nil {
		return err
	}

	ns.mu.Lock()
	ns.cache[nullifier] = struct{}{}
	ns.mu.Unlock()
	return nil
}

// Count returns the number of nullifiers marked spent in this process's
// lifetime, for stats(pool) (spec.md §4.4).
func (ns *nullifierSet) Count() int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return len(ns.cache)
}

// MemNullifierStore is an in-memory NullifierStore for tests and for
// pools run without durable persistence.
type MemNullifierStore struct {
	mu    sync.RWMutex
	spent map[types.Hash]struct{}
}

// NewMemNullifierStore creates an empty in-memory nullifier store.
func NewMemNullifierStore() *MemNullifierStore {
	return &MemNullifierStore{spent: make(map[types.Hash]struct{})}
}

func (s *MemNullifierStore) HasNullifier(_ context.Context, nullifier types.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.spent[nullifier]
	return ok, nil
}

func (s *MemNullifierStore) AddNullifier(_ context.Context, nullifier, _ types.Hash, _ uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.spent[nullifier]; ok {
		return ErrNullifierSpent
	}
	s.spent[nullifier] = struct{}{}
	return nil
}
