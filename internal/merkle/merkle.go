// Package merkle implements the fixed-depth, append-only commitment
// accumulator (spec.md §4.2): a D=20 incremental Merkle tree over
// field.MimcHash2, with precomputed zero-subtrees and a bounded R=30
// ring of historical roots. Generalized from the teacher's
// internal/zkp/merkle.go CommitmentTree, which ran the same incremental-
// insert algorithm over sha256 and an unbounded node cache; here the
// node function is field.MimcHash2 (bit-exact with the on-chain hasher)
// and the TreeStore also persists the historical-root ring so
// IsKnownRoot survives a restart.
package merkle

import (
	"context"
	"errors"
	"sync"

	"github.com/notfartdev/zdoge-sub003/internal/field"
	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

// Depth is the fixed accumulator depth (capacity 2^Depth leaves).
const Depth = 20

// HistorySize is the number of past roots retained for is_known_root
// (spec.md I5).
const HistorySize = 30

// Tree errors.
var (
	ErrCapacityExceeded = errors.New("merkle: tree capacity exceeded")
	ErrNotFound         = errors.New("merkle: leaf index not found")
	ErrOutOfSync        = errors.New("merkle: pool is out of sync with chain")
)

// ZeroSubtrees are the empty-subtree values Z[0..Depth]: Z[0] is the
// agreed empty-leaf value (the zero field element) and
// Z[i+1] = mimc_hash2(Z[i], Z[i]).
var ZeroSubtrees = computeZeroSubtrees()

func computeZeroSubtrees() [Depth + 1]types.Hash {
	var z [Depth + 1]types.Hash
	z[0] = types.EmptyHash
	for i := 0; i < Depth; i++ {
		z[i+1] = field.MimcHash2(z[i], z[i])
	}
	return z
}

// Store persists tree nodes, size, root, and the historical-root ring.
// An implementation owns exactly one pool's tree.
type Store interface {
	GetNode(ctx context.Context, level int, index uint64) (types.Hash, bool, error)
	SetNode(ctx context.Context, level int, index uint64, hash types.Hash) error

	GetSize(ctx context.Context) (uint64, error)
	SetSize(ctx context.Context, size uint64) error

	GetRoot(ctx context.Context) (types.Hash, error)
	SetRoot(ctx context.Context, root types.Hash) error

	// HistoricalRoots returns the current ring contents, oldest first.
	HistoricalRoots(ctx context.Context) ([]types.Hash, error)
	// PushHistoricalRoot appends a root to the ring, evicting the oldest
	// entry once the ring holds HistorySize entries.
	PushHistoricalRoot(ctx context.Context, root types.Hash) error
}

// Path is a Merkle authentication path from a leaf to the root.
type Path struct {
	Elements [Depth]types.Hash
	// Indices[i] is true if the node at level i is a right child.
	Indices  [Depth]bool
	LeafIdx  uint64
	Root     types.Hash
}

// Tree is the fixed-depth incremental commitment accumulator.
type Tree struct {
	mu sync.RWMutex

	store Store

	size uint64
	root types.Hash
}

// New wraps store as a Tree, initializing an empty tree if the store has
// no prior state.
func New(ctx context.Context, store Store) (*Tree, error) {
	t := &Tree{store: store}

	size, err := store.GetSize(ctx)
	if err != nil {
		return nil, err
	}
	t.size = size

	if size == 0 {
		t.root = ZeroSubtrees[Depth]
		return t, nil
	}

	root, err := store.GetRoot(ctx)
	if err != nil {
		return nil, err
	}
	t.root = root
	return t, nil
}

// Size returns the number of leaves inserted so far.
func (t *Tree) Size() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}

// Root returns the current accumulator root.
func (t *Tree) Root() types.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// Insert appends leaf at the next position and returns its leafIndex
// (spec.md §4.2 insert). Cost is Depth hashes, none of them suspending
// (spec.md §5): the Store implementation is expected to be in-memory or
// to batch its persistence outside the hot path.
func (t *Tree) Insert(ctx context.Context, leaf types.Hash) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	const maxLeaves = uint64(1) << Depth
	if t.size >= maxLeaves {
		return 0, ErrCapacityExceeded
	}

	index := t.size
	if err := t.store.SetNode(ctx, 0, index, leaf); err != nil {
		return 0, err
	}

	current := leaf
	idx := index
	for level := 0; level < Depth; level++ {
		siblingIdx := idx ^ 1
		sibling, ok, err := t.store.GetNode(ctx, level, siblingIdx)
		if err != nil {
			return 0, err
		}
		if !ok {
			sibling = ZeroSubtrees[level]
		}

		var parent types.Hash
		if idx%2 == 0 {
			parent = field.MimcHash2(current, sibling)
		} else {
			parent = field.MimcHash2(sibling, current)
		}

		idx /= 2
		current = parent
		if err := t.store.SetNode(ctx, level+1, idx, current); err != nil {
			return 0, err
		}
	}

	t.size = index + 1
	t.root = current

	if err := t.store.SetSize(ctx, t.size); err != nil {
		return 0, err
	}
	if err := t.store.SetRoot(ctx, t.root); err != nil {
		return 0, err
	}
	if err := t.store.PushHistoricalRoot(ctx, t.root); err != nil {
		return 0, err
	}

	return index, nil
}

// IsKnownRoot reports whether r is the current root or one of the most
// recent HistorySize-1 roots (spec.md I5).
func (t *Tree) IsKnownRoot(ctx context.Context, r types.Hash) (bool, error) {
	t.mu.RLock()
	current := t.root
	t.mu.RUnlock()

	if r == current {
		return true, nil
	}

	history, err := t.store.HistoricalRoots(ctx)
	if err != nil {
		return false, err
	}
	for _, h := range history {
		if h == r {
			return true, nil
		}
	}
	return false, nil
}

// Path returns the authentication path for a past leaf along with the
// current root (spec.md §4.2 path). A leaf whose historical root has
// since aged out of the ring is still served; the caller validates
// against the current root.
func (t *Tree) Path(ctx context.Context, leafIndex uint64) (*Path, error) {
	t.mu.RLock()
	size := t.size
	root := t.root
	t.mu.RUnlock()

	if leafIndex >= size {
		return nil, ErrNotFound
	}

	p := &Path{LeafIdx: leafIndex, Root: root}
	idx := leafIndex
	for level := 0; level < Depth; level++ {
		siblingIdx := idx ^ 1
		sibling, ok, err := t.store.GetNode(ctx, level, siblingIdx)
		if err != nil {
			return nil, err
		}
		if !ok {
			sibling = ZeroSubtrees[level]
		}
		p.Elements[level] = sibling
		p.Indices[level] = idx%2 == 1
		idx /= 2
	}
	return p, nil
}

// VerifyPath folds leaf with path up to a root and reports whether it
// equals expectedRoot (spec.md P2).
func VerifyPath(leaf types.Hash, path *Path, expectedRoot types.Hash) bool {
	current := leaf
	for i := 0; i < Depth; i++ {
		if path.Indices[i] {
			current = field.MimcHash2(path.Elements[i], current)
		} else {
			current = field.MimcHash2(current, path.Elements[i])
		}
	}
	return current == expectedRoot
}

// ReferenceRoot recomputes the root of a tree containing exactly the
// given leaves (in leafIndex order) from scratch, for use by property
// tests checking spec.md P1 against Tree.Root.
func ReferenceRoot(leaves []types.Hash) types.Hash {
	return referenceNode(Depth, 0, leaves)
}

func referenceNode(height int, index uint64, leaves []types.Hash) types.Hash {
	if height == 0 {
		if index < uint64(len(leaves)) {
			return leaves[index]
		}
		return ZeroSubtrees[0]
	}
	left := referenceNode(height-1, index*2, leaves)
	right := referenceNode(height-1, index*2+1, leaves)
	return field.MimcHash2(left, right)
}
