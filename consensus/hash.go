package consensus

import "crypto/sha256"

// sha256Sum returns the SHA-256 digest of b, the fixed hash function used
// throughout the consensus layer.
func sha256Sum(b []byte) Hash32 {
	return sha256.Sum256(b)
}

// sha256Concat hashes the concatenation of the given byte slices without an
// intermediate allocation of the full buffer for each caller.
func sha256Concat(parts ...[]byte) Hash32 {
	h := sha256.New()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var out Hash32
	copy(out[:], h.Sum(nil))
	return out
}
