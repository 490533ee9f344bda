package consensus

// ProofValidationInput bundles a PoST proof together with the claimed and
// independently-expected values it is checked against. In the block
// validation pipeline the claimed and the expected challenge/plot root are
// both taken from the header's own fields, so they always agree there; the
// header's challenge is checked against chain state in an earlier step.
// Exposing both separately lets the validator be exercised standalone,
// outside a full header, where each mismatch can be produced directly.
type ProofValidationInput struct {
	Proof BlockProof

	// ClaimedChallenge/ClaimedPlotRoot/ClaimedScore are the values the
	// proof purports to have been produced against.
	ClaimedChallenge Hash32
	ClaimedPlotRoot  Hash32
	ClaimedScore     Hash32

	ExpectedChallenge Hash32
	ExpectedPlotRoot  Hash32

	// DifficultyTarget, if non-nil, gates acceptance on score < target.
	DifficultyTarget *Hash32

	// SkipScoreChecks bypasses both the score-recompute and
	// DifficultyTarget checks, accepting whatever ClaimedScore/plot root the
	// header carries as long as the Merkle path still folds. Set for the
	// genesis block, whose proof_score/plot_root are zero placeholders
	// rather than the output of an actual plot (plotting is a Non-goal).
	SkipScoreChecks bool

	// TreeHeight, if non-zero, must equal len(Proof.MerklePath). Zero means
	// "use len(Proof.MerklePath)" (no separate check).
	TreeHeight int
}

// ComputeProofScore derives the score a proof earns against challenge:
// SHA256(challenge ‖ leaf_value). A miner stamps this into the header's
// proof_score field before signing; Validate independently recomputes it
// and rejects any mismatch.
func ComputeProofScore(challenge, leafValue Hash32) Hash32 {
	return sha256Concat(challenge[:], leafValue[:])
}

// ProofValidator checks a PoST proof against expected challenge, plot
// commitment, and (optionally) a difficulty target, in the fixed order laid
// out below; the first failing check is returned.
type ProofValidator struct{}

// NewProofValidator constructs a ProofValidator. It carries no state.
func NewProofValidator() *ProofValidator {
	return &ProofValidator{}
}

// Validate runs the five ordered proof checks:
//  1. claimed challenge matches the expected one.
//  2. claimed plot root matches the expected one.
//  3. score recomputes to SHA256(challenge ‖ leaf_value), unless
//     SkipScoreChecks is set.
//  4. if a difficulty target is supplied and SkipScoreChecks is unset, score
//     is strictly less than it under unsigned big-endian comparison.
//  5. folding leaf_value with merkle_path per orientation_bits reaches the
//     claimed plot root.
//
// Lower score wins: a proof is only acceptable when its score sits below
// the target, never merely close to it.
func (v *ProofValidator) Validate(in ProofValidationInput) error {
	if in.ClaimedChallenge != in.ExpectedChallenge {
		return newErr(ErrChallengeMismatch, "proof challenge does not match expected challenge")
	}
	if in.ClaimedPlotRoot != in.ExpectedPlotRoot {
		return newErr(ErrPlotRootMismatch, "proof plot root does not match expected plot root")
	}

	if !in.SkipScoreChecks {
		gotScore := sha256Concat(in.ClaimedChallenge[:], in.Proof.LeafValue[:])
		if gotScore != in.ClaimedScore {
			return newErr(ErrScoreMismatch, "recomputed score does not match claimed score")
		}

		if in.DifficultyTarget != nil {
			if compareHash32(gotScore, *in.DifficultyTarget) >= 0 {
				return newErr(ErrScoreAboveTarget, "proof score is not below the difficulty target")
			}
		}
	}

	if in.TreeHeight != 0 && in.TreeHeight != len(in.Proof.MerklePath) {
		return newErr(ErrInvalidMerklePath, "merkle path length does not match declared tree height")
	}

	if !VerifyMerklePath(in.Proof.LeafValue, in.Proof.MerklePath, in.Proof.OrientationBits, in.ClaimedPlotRoot) {
		return newErr(ErrInvalidMerklePath, "merkle path does not fold to the claimed plot root")
	}
	return nil
}

// compareHash32 returns -1, 0, or 1 comparing a and b as unsigned big-endian
// 256-bit integers.
func compareHash32(a, b Hash32) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
