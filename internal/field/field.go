// Package field implements BN254 scalar-field arithmetic and the
// MiMC-Sponge hash that the on-chain commitment accumulator uses for
// every tree node, commitment, and nullifier (spec.md §4.1). Generalized
// from the Pedersen-commitment scalar handling in the teacher's
// internal/zkp/pedersen.go, which already leans on gnark-crypto's
// bn254/fr element type for modular arithmetic.
package field

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

// Element is a BN254 scalar-field element, i.e. an integer in [0, p).
type Element struct {
	inner fr.Element
}

// Zero is the additive identity.
func Zero() Element {
	return Element{}
}

// FromBytesBE parses a big-endian byte slice, reducing modulo p.
func FromBytesBE(b []byte) Element {
	var e Element
	e.inner.SetBytes(b)
	return e
}

// FromHash converts a wire Hash to a field element.
func FromHash(h types.Hash) Element {
	return FromBytesBE(h[:])
}

// FromUint64 builds a field element from a small integer.
func FromUint64(v uint64) Element {
	var e Element
	e.inner.SetUint64(v)
	return e
}

// ToBytesBE renders e as 32-byte big-endian, zero-padded.
func (e Element) ToBytesBE() [32]byte {
	return e.inner.Bytes()
}

// ToHash renders e as a wire Hash.
func (e Element) ToHash() types.Hash {
	return types.Hash(e.inner.Bytes())
}

// Equal reports whether a and e represent the same field element.
func (e Element) Equal(o Element) bool {
	return e.inner.Equal(&o.inner)
}

// Add returns a + b mod p.
func Add(a, b Element) Element {
	var r Element
	r.inner.Add(&a.inner, &b.inner)
	return r
}

// Sub returns a - b mod p.
func Sub(a, b Element) Element {
	var r Element
	r.inner.Sub(&a.inner, &b.inner)
	return r
}

// Mul returns a * b mod p.
func Mul(a, b Element) Element {
	var r Element
	r.inner.Mul(&a.inner, &b.inner)
	return r
}

// Inv returns the multiplicative inverse of e. The zero element's
// "inverse" is conventionally zero, matching gnark-crypto's Element.Inverse.
func Inv(e Element) Element {
	var r Element
	r.inner.Inverse(&e.inner)
	return r
}

// Pow5 returns e^5, the MiMC round function's S-box exponent.
func Pow5(e Element) Element {
	sq := Mul(e, e)
	quad := Mul(sq, sq)
	return Mul(quad, e)
}
