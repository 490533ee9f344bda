// Package consensus implements the PoST consensus core: wire codecs, block
// and transaction structures, challenge derivation, difficulty adjustment,
// proof validation, and the validation pipelines that orchestrate them.
package consensus

import "encoding/hex"

// Hash32 is a 32-byte digest.
type Hash32 [32]byte

// String returns the lowercase hex encoding of the hash.
func (h Hash32) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero hash.
func (h Hash32) IsZero() bool {
	return h == Hash32{}
}

// PublicKey is a 33-byte compressed secp256k1 point.
type PublicKey [33]byte

// String returns the lowercase hex encoding of the public key.
func (p PublicKey) String() string {
	return hex.EncodeToString(p[:])
}

// IsZero reports whether p is the all-zero key (never a valid point).
func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

// Less reports whether p sorts strictly before other under byte-wise
// comparison. Used to key account maps deterministically without relying on
// a textual encoding.
func (p PublicKey) Less(other PublicKey) bool {
	for i := range p {
		if p[i] != other[i] {
			return p[i] < other[i]
		}
	}
	return false
}

// Signature is a 64-byte detached signature (32-byte R || 32-byte s for
// secp256k1 Schnorr).
type Signature [64]byte

// IsZero reports whether s is the all-zero (i.e. absent) signature.
func (s Signature) IsZero() bool {
	return s == Signature{}
}

// Amount is a non-negative quantity of the native asset.
type Amount = int64

// Nonce is a per-account sequential replay counter.
type Nonce = int64

// Height is a block height, zero-indexed at genesis.
type Height = int64

// Epoch is a challenge-response round number, zero-indexed at genesis.
type Epoch = int64

// Difficulty is a strictly positive consensus difficulty value.
type Difficulty = int64
