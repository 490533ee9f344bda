// Package cryptosuite provides the secp256k1/Schnorr signing and
// verification capability the consensus core depends on through its
// SignatureVerifier contract, plus a BlockSigner for the miner side.
package cryptosuite

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	"postchain.dev/node/consensus"
)

// BlockSigner signs a 32-byte hash and exposes the signer's public key,
// satisfying the core's BlockSigner contract.
type BlockSigner interface {
	Sign(hash consensus.Hash32) (consensus.Signature, error)
	PublicKey() consensus.PublicKey
}

// PrivateKey wraps a secp256k1 private key for Schnorr signing over the
// consensus package's fixed-width types.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret scalar.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

// Sign produces a Schnorr signature over hash.
func (pk *PrivateKey) Sign(hash consensus.Hash32) (consensus.Signature, error) {
	sig, err := schnorr.Sign(pk.key, hash[:])
	if err != nil {
		return consensus.Signature{}, fmt.Errorf("schnorr sign: %w", err)
	}
	var out consensus.Signature
	copy(out[:], sig.Serialize())
	return out, nil
}

// PublicKey returns the signer's compressed 33-byte public key.
func (pk *PrivateKey) PublicKey() consensus.PublicKey {
	var out consensus.PublicKey
	copy(out[:], pk.key.PubKey().SerializeCompressed())
	return out
}

// Zero securely zeroes the private key's in-memory scalar.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// Secp256k1Suite implements consensus.SignatureVerifier over Schnorr
// signatures and compressed secp256k1 public keys. It carries no state.
type Secp256k1Suite struct{}

// Verify checks a Schnorr signature against hash and a compressed public
// key, returning false on any malformed input rather than an error since
// the verifier contract has no error return.
func (Secp256k1Suite) Verify(hash consensus.Hash32, sig consensus.Signature, pubkey consensus.PublicKey) bool {
	parsedKey, err := secp256k1.ParsePubKey(pubkey[:])
	if err != nil {
		return false
	}
	parsedSig, err := schnorr.ParseSignature(sig[:])
	if err != nil {
		return false
	}
	return parsedSig.Verify(hash[:], parsedKey)
}

// ValidPublicKey reports whether pubkey decodes to a point on secp256k1.
func (Secp256k1Suite) ValidPublicKey(pubkey consensus.PublicKey) bool {
	_, err := secp256k1.ParsePubKey(pubkey[:])
	return err == nil
}
