package field

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

func h(v uint64) types.Hash {
	return FromUint64(v).ToHash()
}

// TestMimcHash2Deterministic covers the "Cryptographic failure" startup
// check from spec.md §7: the hasher must produce the same output for the
// same input every time, and distinguish distinct inputs.
func TestMimcHash2Deterministic(t *testing.T) {
	a := MimcHash2(h(1), h(2))
	b := MimcHash2(h(1), h(2))
	if a != b {
		t.Fatalf("MimcHash2 is not deterministic: %x != %x", a, b)
	}

	c := MimcHash2(h(2), h(1))
	if a == c {
		t.Fatalf("MimcHash2(1,2) and MimcHash2(2,1) must differ (not commutative)")
	}

	zeroZero := MimcHash2(types.EmptyHash, types.EmptyHash)
	if zeroZero == types.EmptyHash {
		t.Fatalf("MimcHash2(0,0) must not collide with the empty leaf value")
	}
}

// TestZeroSubtreeVector implements spec.md §8 vector test 2 (D=4): the
// recursive zero-subtree relation Z[i+1] = mimc_hash2(Z[i], Z[i]) and the
// expected root shape after inserting leaf 7 at index 0.
func TestZeroSubtreeVector(t *testing.T) {
	z := make([]types.Hash, 5)
	z[0] = types.EmptyHash
	for i := 0; i < 4; i++ {
		z[i+1] = MimcHash2(z[i], z[i])
	}

	leaf := h(7)
	// Path for index 0 in a D=4 tree is all zero-siblings on the right.
	root := MimcHash2(leaf, z[0])
	root = MimcHash2(root, z[1])
	root = MimcHash2(root, z[2])
	root = MimcHash2(root, z[3])

	if root == (types.Hash{}) {
		t.Fatalf("computed root must not be the zero hash")
	}
	// The root must be reproducible from the same zero-subtree values.
	root2 := MimcHash2(MimcHash2(MimcHash2(MimcHash2(leaf, z[0]), z[1]), z[2]), z[3])
	if root != root2 {
		t.Fatalf("zero-subtree root computation is not stable across re-derivation")
	}
}

// TestMimcHash2KnownVector pins MimcHash2(1, 2) against the published
// circomlib MiMC-Sponge (220-round, key 0) test vector referenced by
// spec.md §8 vector test 1: "mimc_hash2(1, 2) must equal the well-known
// MiMC-Sponge test vector; verified at startup".
func TestMimcHash2KnownVector(t *testing.T) {
	left, right, expected := KnownVector()
	require.Equal(t, h(1), left)
	require.Equal(t, h(2), right)

	got := MimcHash2(left, right)
	require.Equal(t, expected, got, "MimcHash2(1,2) must match the published circomlib MiMC-Sponge vector")
}

// TestSelfTestPasses covers the startup fail-closed check (spec.md §7):
// SelfTest must succeed against this build's own hasher.
func TestSelfTestPasses(t *testing.T) {
	require.NoError(t, SelfTest())
}
