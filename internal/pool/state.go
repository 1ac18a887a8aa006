package pool

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"

	"github.com/notfartdev/zdoge-sub003/internal/merkle"
	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

// ErrCommitmentExists is returned when an event's commitment was already
// inserted (spec.md I3).
var ErrCommitmentExists = errors.New("pool: commitment already exists")

// ErrLeafIndexMismatch is the fatal invariant violation from spec.md §4.4:
// the leafIndex produced by inserting a commitment disagreed with the
// leafIndex the chain emitted (I2, I3). The pool is quarantined on this.
var ErrLeafIndexMismatch = errors.New("pool: inserted leafIndex disagrees with chain event")

// Stats is the read-only summary returned by stats(pool) (spec.md §4.4).
type Stats struct {
	TotalCommitments uint64
	TotalNullifiers  int
	ShieldedBalances map[types.Address]*big.Int
	Root             types.Hash
}

// RootInfo is the response shape for get_root(pool).
type RootInfo struct {
	Root             types.Hash
	TotalCommitments uint64
}

// PathInfo is the response shape for get_path(pool, leafIndex).
type PathInfo struct {
	PathElements [merkle.Depth]types.Hash
	PathIndices  [merkle.Depth]bool
	Root         types.Hash
}

// State is one pool's in-memory aggregate (spec.md §4.3). Mutators
// (applyShield etc.) are unexported: only Actor may call them, enforcing
// the single-writer rule from spec.md §5. Reads take the read lock
// directly and may run concurrently with each other and with the next
// mutation's setup, observing a consistent snapshot at the instant they
// read.
type State struct {
	mu sync.RWMutex

	address types.Address
	tree    *merkle.Tree
	nulls   *nullifierSet

	commitments map[types.Hash]types.CommitmentMeta
	// memosByNullifier indexes TransferMemo entries for Get by nullifier;
	// memosOrdered keeps (timestamp, seq) insertion order for paging.
	memosByNullifier map[types.Hash]types.TransferMemo
	memosOrdered     []types.TransferMemo
	memoSeq          uint64

	totalShielded map[types.Address]*big.Int

	lastSyncBlock uint64
	// unsafe marks the pool quarantined after an invariant violation
	// (spec.md §4.4, §7): reads of spent-status continue, but get_path
	// returns ErrOutOfSync until an operator-triggered resync succeeds.
	unsafe bool
}

// New creates an empty pool aggregate for address, backed by the given
// merkle.Store and NullifierStore.
func New(ctx context.Context, address types.Address, treeStore merkle.Store, nullStore NullifierStore) (*State, error) {
	tree, err := merkle.New(ctx, treeStore)
	if err != nil {
		return nil, err
	}
	return &State{
		address:          address,
		tree:             tree,
		nulls:            newNullifierSet(nullStore),
		commitments:      make(map[types.Hash]types.CommitmentMeta),
		memosByNullifier: make(map[types.Hash]types.TransferMemo),
		totalShielded:    make(map[types.Address]*big.Int),
	}, nil
}

// Address returns the pool's contract address.
func (s *State) Address() types.Address {
	return s.address
}

// LastSyncBlock returns the last chain height applied to this pool.
func (s *State) LastSyncBlock() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSyncBlock
}

// IsSafe reports whether the pool has not been quarantined by an
// invariant violation (spec.md §4.4, §7).
func (s *State) IsSafe() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.unsafe
}

// GetRoot implements get_root(pool) (spec.md §4.4).
func (s *State) GetRoot() RootInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return RootInfo{Root: s.tree.Root(), TotalCommitments: s.tree.Size()}
}

// GetPath implements get_path(pool, leafIndex) (spec.md §4.4).
func (s *State) GetPath(ctx context.Context, leafIndex uint64) (*PathInfo, error) {
	s.mu.RLock()
	unsafe := s.unsafe
	s.mu.RUnlock()
	if unsafe {
		return nil, merkle.ErrOutOfSync
	}

	path, err := s.tree.Path(ctx, leafIndex)
	if err != nil {
		return nil, err
	}
	return &PathInfo{PathElements: path.Elements, PathIndices: path.Indices, Root: path.Root}, nil
}

// IsKnownRoot exposes the accumulator's historical-root check for the
// relay executor's "root known" policy gate (spec.md §4.5 gate 4).
func (s *State) IsKnownRoot(ctx context.Context, root types.Hash) (bool, error) {
	return s.tree.IsKnownRoot(ctx, root)
}

// IsNullifierSpent implements is_nullifier_spent(pool, nullifierHash)
// (spec.md §4.4, P6: monotone false->true only).
func (s *State) IsNullifierSpent(ctx context.Context, nullifier types.Hash) (bool, error) {
	return s.nulls.IsSpent(ctx, nullifier)
}

// GetCommitment returns the metadata recorded for a commitment.
func (s *State) GetCommitment(commitment types.Hash) (types.CommitmentMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.commitments[commitment]
	return meta, ok
}

// GetMemos implements get_memos(pool, sinceTimestamp?) (spec.md §4.4):
// ordered by (timestamp asc, then insertion order).
func (s *State) GetMemos(sinceTimestamp uint64) []types.TransferMemo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := sort.Search(len(s.memosOrdered), func(i int) bool {
		return s.memosOrdered[i].Timestamp >= sinceTimestamp
	})
	out := make([]types.TransferMemo, len(s.memosOrdered)-idx)
	copy(out, s.memosOrdered[idx:])
	return out
}

// Stats implements stats(pool) (spec.md §4.4).
func (s *State) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balances := make(map[types.Address]*big.Int, len(s.totalShielded))
	for token, amt := range s.totalShielded {
		balances[token] = new(big.Int).Set(amt)
	}
	return Stats{
		TotalCommitments: s.tree.Size(),
		TotalNullifiers:  s.nulls.Count(),
		ShieldedBalances: balances,
		Root:             s.tree.Root(),
	}
}

// --- mutators: unexported, called only from Actor ---

func (s *State) addBalance(token types.Address, delta *big.Int) {
	cur, ok := s.totalShielded[token]
	if !ok {
		cur = new(big.Int)
		s.totalShielded[token] = cur
	}
	cur.Add(cur, delta)
}

func (s *State) insertCommitment(ctx context.Context, commitment types.Hash, wantLeafIndex uint64, meta types.CommitmentMeta) error {
	if _, exists := s.commitments[commitment]; exists {
		return ErrCommitmentExists
	}

	gotIndex, err := s.tree.Insert(ctx, commitment)
	if err != nil {
		return err
	}
	if gotIndex != wantLeafIndex {
		s.unsafe = true
		return ErrLeafIndexMismatch
	}

	meta.LeafIndex = gotIndex
	s.commitments[commitment] = meta
	return nil
}

func (s *State) nextMemoSeq() uint64 {
	seq := s.memoSeq
	s.memoSeq++
	return seq
}

func (s *State) appendMemo(m types.TransferMemo) {
	m = m.WithSeq(s.nextMemoSeq())
	s.memosByNullifier[m.NullifierHash] = m

	pos := sort.Search(len(s.memosOrdered), func(i int) bool {
		return s.memosOrdered[i].Timestamp > m.Timestamp
	})
	s.memosOrdered = append(s.memosOrdered, types.TransferMemo{})
	copy(s.memosOrdered[pos+1:], s.memosOrdered[pos:])
	s.memosOrdered[pos] = m
}

// ShieldEvent mirrors the chain's Shield log (spec.md §6).
type ShieldEvent struct {
	Commitment  types.Hash
	LeafIndex   uint64
	Token       types.Address
	Amount      *big.Int
	Timestamp   uint64
	BlockNumber uint64
	TxHash      types.Hash
}

func (s *State) applyShield(ctx context.Context, ev ShieldEvent) error {
	if _, exists := s.commitments[ev.Commitment]; exists {
		// Already applied (e.g. replay, spec.md P4): idempotent no-op.
		return nil
	}
	meta := types.CommitmentMeta{
		Token:       ev.Token,
		Amount:      ev.Amount.String(),
		Timestamp:   ev.Timestamp,
		BlockNumber: ev.BlockNumber,
		TxHash:      ev.TxHash,
		Kind:        types.CommitmentKindShield,
	}
	if err := s.insertCommitment(ctx, ev.Commitment, ev.LeafIndex, meta); err != nil {
		return err
	}
	s.addBalance(ev.Token, ev.Amount)
	return nil
}

// TransferEvent mirrors the chain's Transfer log (spec.md §6).
type TransferEvent struct {
	NullifierHash      types.Hash
	OutputCommitment1  types.Hash
	OutputCommitment2  types.Hash
	LeafIndex1         uint64
	LeafIndex2         uint64
	EncryptedMemo1     []byte
	EncryptedMemo2     []byte
	Timestamp          uint64
	BlockNumber        uint64
	TxHash             types.Hash
}

func (s *State) applyTransfer(ctx context.Context, ev TransferEvent) error {
	alreadySpent, err := s.nulls.IsSpent(ctx, ev.NullifierHash)
	if err != nil {
		return err
	}
	if alreadySpent {
		// spec.md P4: replaying the same log twice must be idempotent,
		// but spec.md I4 requires re-submission of a *new* spend with a
		// known nullifier to fail. We distinguish replay (same event
		// already fully applied) from a genuine double-spend by checking
		// whether the outputs are already recorded too.
		if _, exists := s.commitments[ev.OutputCommitment1]; exists {
			return nil
		}
		return ErrNullifierSpent
	}

	if err := s.nulls.MarkSpent(ctx, ev.NullifierHash, ev.TxHash, ev.BlockNumber); err != nil {
		return err
	}

	out1 := types.CommitmentMeta{Timestamp: ev.Timestamp, BlockNumber: ev.BlockNumber, TxHash: ev.TxHash, Kind: types.CommitmentKindTransfer}
	if err := s.insertCommitment(ctx, ev.OutputCommitment1, ev.LeafIndex1, out1); err != nil {
		return err
	}
	out2 := out1
	if err := s.insertCommitment(ctx, ev.OutputCommitment2, ev.LeafIndex2, out2); err != nil {
		return err
	}

	s.appendMemo(types.TransferMemo{
		NullifierHash: ev.NullifierHash,
		Outputs:       []types.Hash{ev.OutputCommitment1, ev.OutputCommitment2},
		Memos:         [][]byte{ev.EncryptedMemo1, ev.EncryptedMemo2},
		LeafIndices:   []uint64{ev.LeafIndex1, ev.LeafIndex2},
		Timestamp:     ev.Timestamp,
		TxHash:        ev.TxHash,
	})
	return nil
}

// UnshieldEvent mirrors the chain's Unshield log (spec.md §6).
type UnshieldEvent struct {
	NullifierHash types.Hash
	Recipient     types.Address
	Token         types.Address
	Amount        *big.Int
	Fee           *big.Int
	Timestamp     uint64
	BlockNumber   uint64
	TxHash        types.Hash
}

// applyUnshield has no accumulator insert to check for replay against
// (unlike applyTransfer/applySwap, which can tell a log replay apart
// from a genuine double-spend by whether the output commitment already
// exists). A log replay and a second spend of the same nullifier are
// therefore indistinguishable here and both treated as a no-op; the
// indexer's log-ordering and dedup guarantees (spec.md §5) are what
// actually keep a genuine double-unshield from reaching this far.
func (s *State) applyUnshield(ctx context.Context, ev UnshieldEvent) error {
	spent, err := s.nulls.IsSpent(ctx, ev.NullifierHash)
	if err != nil {
		return err
	}
	if spent {
		return nil // replay of an already-applied event (P4)
	}
	if err := s.nulls.MarkSpent(ctx, ev.NullifierHash, ev.TxHash, ev.BlockNumber); err != nil {
		return err
	}

	total := new(big.Int).Add(ev.Amount, ev.Fee)
	s.addBalance(ev.Token, new(big.Int).Neg(total))
	return nil
}

// SwapEvent mirrors the chain's Swap log (spec.md §6).
type SwapEvent struct {
	InputNullifier  types.Hash
	OutputCommitment types.Hash
	LeafIndex       uint64
	TokenIn         types.Address
	TokenOut        types.Address
	AmountIn        *big.Int
	AmountOut       *big.Int
	EncryptedMemo   []byte
	Timestamp       uint64
	BlockNumber     uint64
	TxHash          types.Hash
}

func (s *State) applySwap(ctx context.Context, ev SwapEvent) error {
	spent, err := s.nulls.IsSpent(ctx, ev.InputNullifier)
	if err != nil {
		return err
	}
	if spent {
		if _, exists := s.commitments[ev.OutputCommitment]; exists {
			return nil // replay (P4)
		}
		return ErrNullifierSpent
	}
	if err := s.nulls.MarkSpent(ctx, ev.InputNullifier, ev.TxHash, ev.BlockNumber); err != nil {
		return err
	}

	meta := types.CommitmentMeta{Timestamp: ev.Timestamp, BlockNumber: ev.BlockNumber, TxHash: ev.TxHash, Kind: types.CommitmentKindSwap}
	if err := s.insertCommitment(ctx, ev.OutputCommitment, ev.LeafIndex, meta); err != nil {
		return err
	}

	s.addBalance(ev.TokenIn, new(big.Int).Neg(ev.AmountIn))
	s.addBalance(ev.TokenOut, ev.AmountOut)

	s.appendMemo(types.TransferMemo{
		NullifierHash: ev.InputNullifier,
		Outputs:       []types.Hash{ev.OutputCommitment},
		Memos:         [][]byte{ev.EncryptedMemo},
		LeafIndices:   []uint64{ev.LeafIndex},
		Timestamp:     ev.Timestamp,
		TxHash:        ev.TxHash,
	})
	return nil
}
