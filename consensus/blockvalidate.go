package consensus

import "context"

// maxFutureSkewSecs is the allowed clock drift for an incoming header's
// timestamp, ahead of the validator's own clock.
const maxFutureSkewSecs = 120

// BlockValidationConfig parameterizes BlockValidator.
type BlockValidationConfig struct {
	SupportedVersion uint8
}

// BlockValidator orchestrates header, timestamp, signature, chain-state,
// transaction, Merkle-root, and proof checks in a fixed order; the first
// failing step is returned and the rest are skipped.
type BlockValidator struct {
	cfg      BlockValidationConfig
	verifier SignatureVerifier
	proofv   *ProofValidator
	now      func() int64
}

// NewBlockValidator constructs a BlockValidator. now supplies the
// validator's current-time reference for timestamp skew checks.
func NewBlockValidator(cfg BlockValidationConfig, verifier SignatureVerifier, now func() int64) *BlockValidator {
	return &BlockValidator{
		cfg:      cfg,
		verifier: verifier,
		proofv:   NewProofValidator(),
		now:      now,
	}
}

// Validate runs the full pipeline against block b, checking it against the
// given chain state, which must describe the tip b is built on.
func (v *BlockValidator) Validate(ctx context.Context, b Block, chain ChainState) error {
	if err := v.validateHeaderStructure(b.Header); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := v.validateTimestamp(b.Header); err != nil {
		return err
	}

	if err := v.validateHeaderSignature(b.Header); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	isGenesis := isGenesisCandidate(b.Header, chain)

	if err := v.validateAgainstChainState(b.Header, chain, isGenesis); err != nil {
		return err
	}

	if err := v.validateTransactions(b.Body.Transactions); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := v.validateTxRoot(b); err != nil {
		return err
	}

	if err := v.validateProof(b.Header, b.Body.Proof, isGenesis); err != nil {
		return err
	}
	return nil
}

// isGenesisCandidate reports whether h is a height-0 block extending an
// empty chain. Genesis carries placeholder proof fields rather than a real
// plotted proof (plotting is a Non-goal), so it is exempted from the
// parent-linkage and proof-score checks elsewhere in the pipeline.
func isGenesisCandidate(h BlockHeader, chain ChainState) bool {
	return chain.TipHash().IsZero() && chain.TipHeight() == 0 && h.Height == 0
}

func (v *BlockValidator) validateHeaderStructure(h BlockHeader) error {
	if h.Version != v.cfg.SupportedVersion {
		return newErr(ErrUnsupportedVersion, "unsupported header version")
	}
	if h.Height < 0 {
		return newErr(ErrInvalidHeight, "height must be >= 0")
	}
	if !h.HasSignature() {
		return newErr(ErrHeaderNotSigned, "header signature is not populated")
	}
	if h.Difficulty <= 0 {
		return newErr(ErrInvalidDifficulty, "difficulty must be > 0")
	}
	if v.verifier != nil && !v.verifier.ValidPublicKey(h.MinerID) {
		return newErr(ErrInvalidHeaderSignature, "miner_id is not a valid public key")
	}
	return nil
}

func (v *BlockValidator) validateTimestamp(h BlockHeader) error {
	now := v.now()
	if h.Timestamp < 0 || h.Timestamp > now+maxFutureSkewSecs {
		return newErr(ErrInvalidTimestamp, "timestamp outside the allowed skew window")
	}
	return nil
}

func (v *BlockValidator) validateHeaderSignature(h BlockHeader) error {
	if v.verifier == nil {
		return newErr(ErrInvalidHeaderSignature, "no signature verifier configured")
	}
	hash := HashHeader(h)
	if !v.verifier.Verify(hash, h.Signature, h.MinerID) {
		return newErr(ErrInvalidHeaderSignature, "header signature does not verify under miner_id")
	}
	return nil
}

func (v *BlockValidator) validateAgainstChainState(h BlockHeader, chain ChainState, isGenesis bool) error {
	if !isGenesis {
		if h.ParentHash != chain.TipHash() {
			return newErr(ErrInvalidParentHash, "parent_hash does not match chain tip")
		}
		if h.Height != chain.TipHeight()+1 {
			return newErr(ErrInvalidHeight, "height does not follow chain tip")
		}
	}
	if h.Difficulty != chain.ExpectedDifficulty() {
		return newErr(ErrInvalidDifficulty, "difficulty does not match expected difficulty")
	}
	if h.Epoch != chain.ExpectedEpoch() {
		return newErr(ErrInvalidEpoch, "epoch does not match expected epoch")
	}
	if h.Challenge != chain.ExpectedChallenge() {
		return newErr(ErrInvalidChallenge, "challenge does not match expected challenge")
	}
	return nil
}

// validateTransactions checks every transaction's basic structural rules
// and signature. Balance and nonce sequencing against account state is
// StateManager's responsibility when the block is actually applied, not
// this pipeline's.
func (v *BlockValidator) validateTransactions(txs []Transaction) error {
	for _, tx := range txs {
		if tx.Signature.IsZero() || tx.Amount <= 0 || tx.Fee < 0 || tx.Nonce < 0 || tx.Sender == tx.Recipient {
			return newErr(ErrInvalidTransaction, "transaction fails basic structural rules")
		}
		if v.verifier != nil && !v.verifier.Verify(HashTx(tx), tx.Signature, tx.Sender) {
			return newErr(ErrInvalidTransactionSig, "transaction signature does not verify")
		}
	}
	return nil
}

func (v *BlockValidator) validateTxRoot(b Block) error {
	root := BuildMerkleRoot(TxHashes(b.Body.Transactions))
	if root != b.Header.TxRoot {
		return newErr(ErrInvalidTransactionRoot, "transaction merkle root does not match header")
	}
	return nil
}

// validateProof runs the PoST proof through ProofValidator. The genesis
// block is exempt from the score-recompute and difficulty-target checks: its
// header carries placeholder zero plot_root/proof_score fields rather than a
// plotted proof, since real plotting is out of scope for this
// implementation. It still must present a structurally valid trivial proof
// (the zero leaf folds to the zero plot root with an empty Merkle path).
func (v *BlockValidator) validateProof(h BlockHeader, proof BlockProof, isGenesis bool) error {
	input := ProofValidationInput{
		Proof:             proof,
		ClaimedChallenge:  h.Challenge,
		ClaimedPlotRoot:   h.PlotRoot,
		ClaimedScore:      h.ProofScore,
		ExpectedChallenge: h.Challenge,
		ExpectedPlotRoot:  h.PlotRoot,
		SkipScoreChecks:   isGenesis,
	}
	if !isGenesis {
		target, err := DifficultyToTarget(h.Difficulty)
		if err != nil {
			return newErr(ErrInvalidProof, "unable to derive difficulty target")
		}
		input.DifficultyTarget = &target
	}
	return wrapProofErr(v.proofv.Validate(input))
}

// wrapProofErr maps ProofValidator error codes onto the block-level
// InvalidProof/ProofScoreTooHigh taxonomy, preserving the rest unchanged.
func wrapProofErr(err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) == ErrScoreAboveTarget {
		return newErr(ErrProofScoreTooHigh, "proof score is not below the difficulty target")
	}
	return newErr(ErrInvalidProof, err.Error())
}
