package relay

import (
	"crypto/sha256"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

const dedupWindow = 30 * time.Second

type dedupKey [32]byte

type dedupEntry struct {
	txHash  types.Hash
	expires time.Time
}

// DedupRing suppresses duplicate submissions of the same logical
// request within a short window (spec.md §4.5 "Deduplication"), keyed
// by the request's canonicalized content so a client's retried POST
// with an identical payload is recognized even across proof
// re-encoding.
type DedupRing struct {
	mu      sync.Mutex
	entries map[dedupKey]dedupEntry
}

// NewDedupRing creates an empty ring.
func NewDedupRing() *DedupRing {
	return &DedupRing{entries: make(map[dedupKey]dedupEntry)}
}

// Lookup returns the tx hash stored for key, if present and unexpired.
func (r *DedupRing) Lookup(key dedupKey) (types.Hash, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked()
	e, ok := r.entries[key]
	if !ok {
		return types.Hash{}, false
	}
	return e.txHash, true
}

// Store records txHash for key, valid for the dedup window.
func (r *DedupRing) Store(key dedupKey, txHash types.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = dedupEntry{txHash: txHash, expires: time.Now().Add(dedupWindow)}
}

func (r *DedupRing) evictLocked() {
	now := time.Now()
	for k, e := range r.entries {
		if now.After(e.expires) {
			delete(r.entries, k)
		}
	}
}

// canonicalKey builds the dedup key from (pool, operation, recipient,
// sorted nullifiers, sorted amounts, fee) (spec.md §4.5).
func canonicalKey(req Request) dedupKey {
	h := sha256.New()
	h.Write(req.PoolAddress[:])
	h.Write([]byte(req.Operation))
	h.Write(req.Recipient[:])

	nulls := append([]types.Hash(nil), req.NullifierHashes...)
	sort.Slice(nulls, func(i, j int) bool { return lessHash(nulls[i], nulls[j]) })
	for _, n := range nulls {
		h.Write(n[:])
	}

	amounts := collectAmounts(req)
	sort.Slice(amounts, func(i, j int) bool { return amounts[i].Cmp(amounts[j]) < 0 })
	for _, a := range amounts {
		h.Write(a.Bytes())
	}

	if fee := primaryFee(req); fee != nil {
		h.Write(fee.Bytes())
	}

	var key dedupKey
	copy(key[:], h.Sum(nil))
	return key
}

func lessHash(a, b types.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func collectAmounts(req Request) []*big.Int {
	var out []*big.Int
	if req.SwapAmount != nil {
		out = append(out, req.SwapAmount)
	}
	out = append(out, req.Amounts...)
	return out
}
