package consensus

// DeriveChallenge computes the deterministic per-epoch challenge
// SHA256(parent_hash ‖ epoch_le_u64). epoch must be non-negative.
func DeriveChallenge(parentHash Hash32, epoch Epoch) (Hash32, error) {
	if epoch < 0 {
		return Hash32{}, newErr(ErrInvalidArgument, "epoch must be non-negative")
	}
	epochBytes := appendI64LE(nil, epoch)
	return sha256Concat(parentHash[:], epochBytes), nil
}

// DeriveGenesisChallenge computes SHA256(utf8(network_id)). network_id must
// be non-empty.
func DeriveGenesisChallenge(networkID string) (Hash32, error) {
	if networkID == "" {
		return Hash32{}, newErr(ErrInvalidArgument, "network_id must be non-empty")
	}
	return sha256Concat([]byte(networkID)), nil
}

// VerifyChallenge recomputes DeriveChallenge and compares it to want.
func VerifyChallenge(parentHash Hash32, epoch Epoch, want Hash32) bool {
	got, err := DeriveChallenge(parentHash, epoch)
	if err != nil {
		return false
	}
	return got == want
}

// VerifyGenesisChallenge recomputes DeriveGenesisChallenge and compares it
// to want.
func VerifyGenesisChallenge(networkID string, want Hash32) bool {
	got, err := DeriveGenesisChallenge(networkID)
	if err != nil {
		return false
	}
	return got == want
}
