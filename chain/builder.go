package chain

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"postchain.dev/node/consensus"
)

// TxDrainer supplies the pending transactions a Builder assembles into a
// new block. mempool.Pool satisfies this.
type TxDrainer interface {
	Drain(maxCount int) []consensus.Transaction
}

// Signer signs a block header's hash and exposes the signer's own public
// key as the block's miner_id. cryptosuite.PrivateKey satisfies this.
type Signer interface {
	Sign(hash consensus.Hash32) (consensus.Signature, error)
	PublicKey() consensus.PublicKey
}

// CoinbasePolicy computes the block subsidy due at height, independent of
// transaction fees. The zero policy (DefaultCoinbasePolicy) always returns
// 0, leaving the miner's reward as the sum of transaction fees.
type CoinbasePolicy func(height consensus.Height) consensus.Amount

// DefaultCoinbasePolicy is the no-subsidy CoinbasePolicy.
func DefaultCoinbasePolicy(consensus.Height) consensus.Amount { return 0 }

// BuildParams are the chain-derived fields a Builder cannot determine on
// its own; the caller (typically driven by epoch.Manager and a difficulty
// adjuster) supplies them fresh for every block.
type BuildParams struct {
	ParentHash consensus.Hash32
	Height     consensus.Height
	Difficulty consensus.Difficulty
	Epoch      consensus.Epoch
	Challenge  consensus.Hash32
	Proof      consensus.BlockProof
}

// Builder assembles a candidate block from pending transactions and a PoST
// proof, signs it, and self-validates it before handing it back — a block
// this node would itself reject never leaves BuildBlock.
type Builder struct {
	pool     TxDrainer
	signer   Signer
	validate *consensus.BlockValidator
	cfg      BuilderConfig
	coinbase CoinbasePolicy
	now      func() int64
	log      zerolog.Logger
}

// BuilderConfig parameterizes Builder.
type BuilderConfig struct {
	MaxTransactions  int
	SupportedVersion uint8
}

// NewBuilder constructs a Builder. coinbase may be nil, in which case
// DefaultCoinbasePolicy is used.
func NewBuilder(pool TxDrainer, signer Signer, validator *consensus.BlockValidator, cfg BuilderConfig, coinbase CoinbasePolicy, now func() int64, logger zerolog.Logger) *Builder {
	if coinbase == nil {
		coinbase = DefaultCoinbasePolicy
	}
	return &Builder{
		pool:     pool,
		signer:   signer,
		validate: validator,
		cfg:      cfg,
		coinbase: coinbase,
		now:      now,
		log:      logger.With().Str("component", "chain").Logger(),
	}
}

// BuildBlock drains up to cfg.MaxTransactions pending transactions, builds
// their Merkle root, assembles and signs a header from params, and
// self-validates the result against chain before returning it.
func (b *Builder) BuildBlock(ctx context.Context, params BuildParams, chain consensus.ChainState) (consensus.Block, error) {
	txs := b.pool.Drain(b.cfg.MaxTransactions)
	txRoot := consensus.BuildMerkleRoot(consensus.TxHashes(txs))

	header := consensus.BlockHeader{
		Version:    b.cfg.SupportedVersion,
		ParentHash: params.ParentHash,
		Height:     params.Height,
		Timestamp:  b.now(),
		Difficulty: params.Difficulty,
		Epoch:      params.Epoch,
		Challenge:  params.Challenge,
		PlotRoot:   params.Proof.PlotMetadata.PlotID,
		ProofScore: consensus.ComputeProofScore(params.Challenge, params.Proof.LeafValue),
		TxRoot:     txRoot,
		MinerID:    b.signer.PublicKey(),
	}

	hash := consensus.HashHeader(header)
	sig, err := b.signer.Sign(hash)
	if err != nil {
		return consensus.Block{}, fmt.Errorf("chain: sign header: %w", err)
	}
	header = header.WithSignature(sig)

	block := consensus.Block{
		Header: header,
		Body: consensus.BlockBody{
			Transactions: txs,
			Proof:        params.Proof,
		},
	}

	if err := b.validate.Validate(ctx, block, chain); err != nil {
		b.log.Error().Err(err).Int64("height", params.Height).Msg("assembled block failed self-validation")
		return consensus.Block{}, fmt.Errorf("chain: assembled block rejected by self-validation: %w", err)
	}

	if subsidy := b.coinbase(params.Height); subsidy != 0 {
		b.log.Warn().Int64("height", params.Height).Int64("subsidy", subsidy).Msg("non-zero coinbase subsidy is not yet credited by state application")
	}

	b.log.Info().Int64("height", params.Height).Int("tx_count", len(txs)).Msg("built block")
	return block, nil
}
