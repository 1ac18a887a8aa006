// Package types defines the wire-level data model shared by the indexer,
// the relay executor, and the HTTP surface: field-element hashes,
// addresses, commitment metadata, and proof bundles.
package types

import (
	"encoding/hex"
	"strings"
)

// Sizes for the fixed-width wire types. A Hash holds a BN254 scalar-field
// element, always rendered as 32-byte big-endian hex on the wire.
const (
	HashSize    = 32
	AddressSize = 20
)

// Hash is a 32-byte big-endian field element: a commitment, nullifier,
// Merkle node, or root.
type Hash [HashSize]byte

// Address is a 20-byte EVM account or token address.
type Address [AddressSize]byte

// EmptyHash is the zero field element, used as the tree's empty-leaf value.
var EmptyHash = Hash{}

// EmptyAddress is the zero address, the native-asset sentinel (spec.md §4.5).
var EmptyAddress = Address{}

// IsEmpty reports whether h is the zero hash.
func (h Hash) IsEmpty() bool {
	return h == EmptyHash
}

// Bytes returns h as a byte slice.
func (h Hash) Bytes() []byte {
	return h[:]
}

// Hex returns the 0x-prefixed, zero-padded big-endian hex encoding.
func (h Hash) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) String() string {
	return h.Hex()
}

// HashFromBytes left-copies b into a Hash, truncating or zero-padding on
// the left as needed so short inputs land in the low-order bytes.
func HashFromBytes(b []byte) Hash {
	var h Hash
	if len(b) >= HashSize {
		copy(h[:], b[len(b)-HashSize:])
		return h
	}
	copy(h[HashSize-len(b):], b)
	return h
}

// HashFromHex parses a 0x-prefixed or bare hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	b, err := decodeHex(s)
	if err != nil {
		return Hash{}, err
	}
	return HashFromBytes(b), nil
}

// Hex returns the 0x-prefixed hex encoding of the address.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string {
	return a.Hex()
}

// IsNative reports whether a is the native-asset sentinel (zero address).
func (a Address) IsNative() bool {
	return a == EmptyAddress
}

// AddressFromBytes left-pads/truncates b into an Address.
func AddressFromBytes(b []byte) Address {
	var a Address
	if len(b) >= AddressSize {
		copy(a[:], b[len(b)-AddressSize:])
		return a
	}
	copy(a[AddressSize-len(b):], b)
	return a
}

// AddressFromHex parses a 0x-prefixed or bare hex string into an Address.
func AddressFromHex(s string) (Address, error) {
	b, err := decodeHex(s)
	if err != nil {
		return Address{}, err
	}
	return AddressFromBytes(b), nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}
