package consensus

// Domain-separation tags for the transaction Merkle tree, mirroring the
// teacher's leaf/inner-node prefix convention (merkleRootTagged).
const (
	merkleLeafTag byte = 0x00
	merkleNodeTag byte = 0x01
)

// BuildMerkleRoot computes the transaction Merkle root over a list of
// transaction hashes. An empty list yields the all-zero root. A single-leaf
// list yields the tagged leaf hash, not the bare hash, so a block with one
// transaction still commits through the same tagged construction as any
// other block.
func BuildMerkleRoot(txHashes []Hash32) Hash32 {
	if len(txHashes) == 0 {
		return Hash32{}
	}

	level := make([]Hash32, len(txHashes))
	for i, h := range txHashes {
		level[i] = sha256Concat([]byte{merkleLeafTag}, h[:])
	}

	for len(level) > 1 {
		next := make([]Hash32, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				// Odd promotion: carry the lone node forward unchanged.
				next = append(next, level[i])
				continue
			}
			next = append(next, sha256Concat([]byte{merkleNodeTag}, level[i][:], level[i+1][:]))
		}
		level = next
	}
	return level[0]
}

// VerifyMerklePath reports whether folding leaf with path per orientation
// reconstructs root. This validates inclusion in a plot's externally
// constructed Merkle tree, whose own domain-separation conventions (if any)
// are opaque to this package, so no tag is applied here — only the fold
// itself is checked. orientation[i] == false means the accumulator is the left
// child at step i (sibling path[i] is appended on the right); true means the
// reverse. path and orientation must have equal length.
func VerifyMerklePath(leaf Hash32, path []Hash32, orientation []bool, root Hash32) bool {
	if len(path) != len(orientation) {
		return false
	}
	cur := leaf
	for i, sibling := range path {
		if orientation[i] {
			cur = sha256Concat(sibling[:], cur[:])
		} else {
			cur = sha256Concat(cur[:], sibling[:])
		}
	}
	return cur == root
}
