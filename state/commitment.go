package state

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"postchain.dev/node/consensus"
)

// StateRoot computes a deterministic commitment over an account map: sort
// addresses byte-wise, hash each (address, balance, nonce) leaf, and fold
// the leaves through the same tagged Merkle construction the transaction
// root uses, so two nodes holding identical account maps always agree on
// the same root regardless of map iteration order.
func StateRoot(accounts map[consensus.PublicKey]AccountState) consensus.Hash32 {
	addrs := make([]consensus.PublicKey, 0, len(accounts))
	for addr := range accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })

	leaves := make([]consensus.Hash32, len(addrs))
	for i, addr := range addrs {
		leaves[i] = accountLeafHash(addr, accounts[addr])
	}
	return consensus.BuildMerkleRoot(leaves)
}

func accountLeafHash(addr consensus.PublicKey, acc AccountState) consensus.Hash32 {
	buf := make([]byte, 0, len(addr)+16)
	buf = append(buf, addr[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(acc.Balance))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(acc.Nonce))
	return sha256.Sum256(buf)
}
