package consensus

import "testing"

func TestComputeProofScore_Deterministic(t *testing.T) {
	var challenge, leaf Hash32
	challenge[0], leaf[0] = 0x1, 0x2

	a := ComputeProofScore(challenge, leaf)
	b := ComputeProofScore(challenge, leaf)
	if a != b {
		t.Fatal("ComputeProofScore() should be deterministic")
	}
	if a == sha256Concat(leaf[:], challenge[:]) {
		t.Error("score must not be order-reversible: challenge and leaf are not interchangeable")
	}
}

func trivialProof(challenge, leaf Hash32) BlockProof {
	return BlockProof{LeafValue: leaf, PlotMetadata: BlockPlotMetadata{LeafCount: 1}}
}

func TestProofValidator_AcceptsConsistentProofBelowTarget(t *testing.T) {
	var challenge, leaf Hash32
	challenge[0], leaf[0] = 0x1, 0x2
	score := ComputeProofScore(challenge, leaf)

	// A target of all-0xff bytes accepts any score strictly less than it.
	target := Hash32{}
	for i := range target {
		target[i] = 0xff
	}

	v := NewProofValidator()
	err := v.Validate(ProofValidationInput{
		Proof:             trivialProof(challenge, leaf),
		ClaimedChallenge:  challenge,
		ClaimedPlotRoot:   leaf,
		ClaimedScore:      score,
		ExpectedChallenge: challenge,
		ExpectedPlotRoot:  leaf,
		DifficultyTarget:  &target,
	})
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}

func TestProofValidator_RejectsScoreAboveTarget(t *testing.T) {
	var challenge, leaf Hash32
	challenge[0], leaf[0] = 0x1, 0x2
	score := ComputeProofScore(challenge, leaf)

	// A target of all-zero bytes rejects every nonzero score.
	target := Hash32{}

	v := NewProofValidator()
	err := v.Validate(ProofValidationInput{
		Proof:             trivialProof(challenge, leaf),
		ClaimedChallenge:  challenge,
		ClaimedPlotRoot:   leaf,
		ClaimedScore:      score,
		ExpectedChallenge: challenge,
		ExpectedPlotRoot:  leaf,
		DifficultyTarget:  &target,
	})
	if CodeOf(err) != ErrScoreAboveTarget {
		t.Errorf("Validate() code = %v, want ErrScoreAboveTarget", CodeOf(err))
	}
}

func TestProofValidator_RejectsChallengeMismatch(t *testing.T) {
	var challenge, otherChallenge, leaf Hash32
	challenge[0], otherChallenge[0], leaf[0] = 0x1, 0x99, 0x2

	v := NewProofValidator()
	err := v.Validate(ProofValidationInput{
		Proof:             trivialProof(challenge, leaf),
		ClaimedChallenge:  challenge,
		ClaimedPlotRoot:   leaf,
		ClaimedScore:      ComputeProofScore(challenge, leaf),
		ExpectedChallenge: otherChallenge,
		ExpectedPlotRoot:  leaf,
	})
	if CodeOf(err) != ErrChallengeMismatch {
		t.Errorf("Validate() code = %v, want ErrChallengeMismatch", CodeOf(err))
	}
}

func TestProofValidator_RejectsScoreMismatch(t *testing.T) {
	var challenge, leaf, forgedScore Hash32
	challenge[0], leaf[0] = 0x1, 0x2
	forgedScore[0] = 0xde

	v := NewProofValidator()
	err := v.Validate(ProofValidationInput{
		Proof:             trivialProof(challenge, leaf),
		ClaimedChallenge:  challenge,
		ClaimedPlotRoot:   leaf,
		ClaimedScore:      forgedScore,
		ExpectedChallenge: challenge,
		ExpectedPlotRoot:  leaf,
	})
	if CodeOf(err) != ErrScoreMismatch {
		t.Errorf("Validate() code = %v, want ErrScoreMismatch", CodeOf(err))
	}
}

func TestProofValidator_RejectsBadMerklePath(t *testing.T) {
	var challenge, leaf, wrongRoot Hash32
	challenge[0], leaf[0], wrongRoot[0] = 0x1, 0x2, 0xaa

	v := NewProofValidator()
	err := v.Validate(ProofValidationInput{
		Proof:             trivialProof(challenge, leaf),
		ClaimedChallenge:  challenge,
		ClaimedPlotRoot:   wrongRoot,
		ClaimedScore:      ComputeProofScore(challenge, leaf),
		ExpectedChallenge: challenge,
		ExpectedPlotRoot:  wrongRoot,
	})
	if CodeOf(err) != ErrInvalidMerklePath {
		t.Errorf("Validate() code = %v, want ErrInvalidMerklePath", CodeOf(err))
	}
}
