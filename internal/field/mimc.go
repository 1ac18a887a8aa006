package field

import (
	"fmt"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

// MimcRounds is the fixed round count of the on-chain MiMC-Sponge hasher
// (spec.md §4.1). Every tree node, commitment, and nullifier goes through
// this function; deviating from the contract's round count or key
// schedule makes every proof fail verification on-chain — this is a
// compatibility contract, not a design choice.
const MimcRounds = 220

// mimcRoundConstants holds the per-round additive constants. Constant 0
// and the last constant are fixed to zero, matching the reference
// MiMC-Sponge key schedule; the rest are derived once at init time by
// iterating Keccak256 from the ASCII seed "mimcsponge", interpreting each
// digest little-endian before reducing modulo p.
var mimcRoundConstants [MimcRounds]Element

func init() {
	cur := keccak256([]byte("mimcsponge"))
	for i := 1; i < MimcRounds-1; i++ {
		cur = keccak256(cur)
		mimcRoundConstants[i] = FromBytesBE(reverseBytes(cur))
	}
}

func keccak256(b []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	return h.Sum(nil)
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// MimcHash2 computes the 2-to-1 MiMC-Sponge hash used for Merkle nodes,
// commitment structures, and nullifiers (spec.md §4.1). It runs the
// Feistel sponge construction with key 0: at each round, the S-box input
// is xL + c[i], and xL/xR swap with the S-box output folded into the new
// xL, except on the final round where only xR absorbs it.
func MimcHash2(left, right types.Hash) types.Hash {
	xl := FromHash(left)
	xr := FromHash(right)

	for i := 0; i < MimcRounds; i++ {
		t := xl
		if i > 0 {
			t = Add(xl, mimcRoundConstants[i])
		}
		t5 := Pow5(t)

		if i < MimcRounds-1 {
			nextXl := Add(xr, t5)
			xr = xl
			xl = nextXl
		} else {
			xr = Add(xr, t5)
		}
	}

	return xl.ToHash()
}

// knownVectorOutput is the published circomlib MiMC-Sponge(220-round,
// key 0) test vector for hash(1, 2), the same constant the reference
// on-chain verifier pins (spec.md §8 vector test 1). SelfTest checks
// this implementation's key schedule and round count against it.
const knownVectorOutput = "19814528709687996974327303300007262407299337699931755045444536231730794546528"

// KnownVector returns the pinned inputs and expected output for the
// published MiMC-Sponge(1, 2) test vector.
func KnownVector() (left, right, expected types.Hash) {
	n, ok := new(big.Int).SetString(knownVectorOutput, 10)
	if !ok {
		panic("field: malformed known-vector constant")
	}
	var out types.Hash
	n.FillBytes(out[:])
	return FromUint64(1).ToHash(), FromUint64(2).ToHash(), out
}

// SelfTest runs MimcHash2 against the pinned known-answer vector and
// fails closed (spec.md §7: "Cryptographic failure ... the process
// refuses to serve") if this build's hasher does not reproduce it —
// a mismatched round count, key schedule, or round-constant derivation
// would silently desynchronize every commitment and nullifier from the
// on-chain verifier's view of them.
func SelfTest() error {
	left, right, expected := KnownVector()
	got := MimcHash2(left, right)
	if got != expected {
		return fmt.Errorf("field: MimcHash2 known-vector mismatch: got %s, want %s", got.Hex(), expected.Hex())
	}
	return nil
}
