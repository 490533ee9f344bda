// Command postchain-node is the long-running daemon: it loads a Config,
// opens the bbolt-backed chain store, wires every consensus component
// together, bootstraps genesis on first run, and then either idles until
// signaled to stop or produces a bounded run of demonstration blocks to
// exercise the full validate/apply/persist pipeline end to end.
//
// It does not implement peer-to-peer networking: blocks and transactions
// arrive only through -genesis (at bootstrap) and the -demo-blocks smoke-test
// path, consistent with plot/proof generation and wire transport both being
// out of scope for the consensus core itself.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"postchain.dev/node/chain"
	"postchain.dev/node/chainstore"
	"postchain.dev/node/consensus"
	"postchain.dev/node/cryptosuite"
	"postchain.dev/node/epoch"
	"postchain.dev/node/mempool"
	"postchain.dev/node/nodecfg"
	"postchain.dev/node/state"
)

// multiStringFlag accumulates repeated occurrences of a flag, mirroring the
// -peer flag convention of collecting one address per occurrence.
type multiStringFlag []string

func (m *multiStringFlag) String() string { return strings.Join(*m, ",") }

func (m *multiStringFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("postchain-node", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "path to a JSON config file (defaults overlaid by flags below)")
	network := fs.String("network", "", "network id (overrides config)")
	dataDir := fs.String("data-dir", "", "data directory (overrides config)")
	bindAddr := fs.String("bind-addr", "", "bind address (overrides config)")
	logLevel := fs.String("log-level", "", "log level: debug|info|warn|error (overrides config)")
	maxPeers := fs.Int("max-peers", 0, "maximum peer count, 0 keeps the config default")
	peersCSV := fs.String("peers", "", "comma-separated peer addresses, merged with -peer")
	var peerFlags multiStringFlag
	fs.Var(&peerFlags, "peer", "peer address; may be repeated")
	genesisPath := fs.String("genesis", "", "path to a hex-encoded genesis block, required on first run")
	keyPath := fs.String("key", "", "path to a hex-encoded miner private key; an ephemeral key is generated if omitted")
	demoBlocks := fs.Int("demo-blocks", 0, "produce this many demonstration blocks against an empty proof source, then continue or exit")
	demoExit := fs.Bool("demo-exit", false, "exit immediately after -demo-blocks completes instead of idling")
	printConfigFlag := fs.Bool("print-config", false, "print the effective configuration as JSON and exit")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	cfg := nodecfg.DefaultConfig()
	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "postchain-node: read config: %v\n", err)
			return 2
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			fmt.Fprintf(stderr, "postchain-node: parse config: %v\n", err)
			return 2
		}
	}
	if *network != "" {
		cfg.Network = *network
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *bindAddr != "" {
		cfg.BindAddr = *bindAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *maxPeers > 0 {
		cfg.MaxPeers = *maxPeers
	}
	peerTokens := append(append([]string{}, peerFlags...), *peersCSV)
	if merged := nodecfg.NormalizePeers(append(cfg.Peers, peerTokens...)...); len(merged) > 0 {
		cfg.Peers = merged
	}

	if err := nodecfg.ValidateConfig(cfg); err != nil {
		fmt.Fprintf(stderr, "postchain-node: invalid configuration: %v\n", err)
		return 2
	}

	if *printConfigFlag {
		printConfig(stdout, cfg)
		return 0
	}

	logger := newLogger(stderr, cfg.LogLevel).With().Str("component", "node").Logger()

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		logger.Error().Err(err).Msg("create data directory")
		return 1
	}

	store, err := chainstore.Open(filepath.Join(cfg.DataDir, "chain.db"))
	if err != nil {
		logger.Error().Err(err).Msg("open chain store")
		return 1
	}
	defer store.Close()

	now := func() int64 { return time.Now().Unix() }

	verifier := cryptosuite.Secp256k1Suite{}
	stateMgr := state.NewManager(nodecfg.StateConfig(cfg), verifier, store)
	pool := mempool.New(cfg.Mempool)
	work := chain.NewWorkCache(store, store)

	genesisChallenge, err := consensus.DeriveGenesisChallenge(cfg.Network)
	if err != nil {
		logger.Error().Err(err).Msg("derive genesis challenge")
		return 1
	}

	tipHash, hasTip, err := store.GetBestBlockHash()
	if err != nil {
		logger.Error().Err(err).Msg("read best block hash")
		return 1
	}
	var tipHeight consensus.Height
	var tipDifficulty consensus.Difficulty
	if !hasTip {
		genesisBlock, err := loadGenesisBlock(*genesisPath)
		if err != nil {
			logger.Error().Err(err).Msg("load genesis block")
			return 1
		}
		if err := bootstrapGenesis(store, stateMgr, work, verifier, now, genesisBlock, genesisChallenge, cfg.SupportedVersion); err != nil {
			logger.Error().Err(err).Msg("bootstrap genesis block")
			return 1
		}
		tipHash = consensus.HashHeader(genesisBlock.Header)
		tipHeight = genesisBlock.Header.Height
		tipDifficulty = genesisBlock.Header.Difficulty
		logger.Info().Str("hash", tipHash.String()).Msg("bootstrapped genesis block")
	} else {
		tipHeight, err = store.GetChainHeight()
		if err != nil {
			logger.Error().Err(err).Msg("read chain height")
			return 1
		}
		tipHeader, ok, err := store.GetHeaderByHash(tipHash)
		if err != nil || !ok {
			logger.Error().Err(err).Msg("read tip header")
			return 1
		}
		tipDifficulty = tipHeader.Difficulty
		logger.Info().Str("hash", tipHash.String()).Int64("height", tipHeight).Msg("resumed from existing chain")
	}

	epochMgr := epoch.NewManager(epoch.Config{DurationSecs: cfg.Epoch.DurationSecs}, genesisChallenge, now)

	txv := consensus.NewTransactionValidator(consensus.TransactionValidationConfig{
		MinFee:                     cfg.TxValidation.MinFee,
		MaxFee:                     cfg.TxValidation.MaxFee,
		MaxTransactionsPerBlock:    cfg.TxValidation.MaxTransactionsPerBlock,
		CheckDuplicateTransactions: cfg.TxValidation.CheckDuplicateTransactions,
		MaxTransactionSize:         cfg.TxValidation.MaxTransactionSize,
		SupportedVersion:           cfg.TxValidation.SupportedVersion,
	}, verifier)

	reorganizer := chain.NewReorganizer(store, store, stateMgr, pool, work, txv, cfg.Reorg, now, logger)
	reorganizer.Subscribe(func(ev chain.ChainReorgEvent) {
		logger.Warn().
			Int64("fork_height", ev.ForkHeight).
			Str("old_tip", ev.OldTipHash.String()).
			Str("new_tip", ev.NewTipHash.String()).
			Msg("chain reorganized")
	})

	signer, err := loadOrGenerateSigner(*keyPath, logger)
	if err != nil {
		logger.Error().Err(err).Msg("load miner key")
		return 1
	}

	blockValidator := consensus.NewBlockValidator(consensus.BlockValidationConfig{SupportedVersion: cfg.SupportedVersion}, verifier, now)
	builder := chain.NewBuilder(pool, signer, blockValidator, chain.BuilderConfig{
		MaxTransactions:  cfg.Mempool.MaxTransactionsPerBlock,
		SupportedVersion: cfg.SupportedVersion,
	}, nil, now, logger)

	live := &liveChainState{
		store:      store,
		epochMgr:   epochMgr,
		tipHash:    tipHash,
		tipHeight:  tipHeight,
		difficulty: tipDifficulty,
	}

	if *demoBlocks > 0 {
		if err := runDemoBlocks(store, stateMgr, pool, work, builder, live, *demoBlocks, logger); err != nil {
			logger.Error().Err(err).Msg("demo block production failed")
			return 1
		}
	}

	if *demoExit {
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger.Info().Str("bind_addr", cfg.BindAddr).Int("peers", len(cfg.Peers)).Msg("node ready")
	<-ctx.Done()
	logger.Info().Msg("shutting down")
	return 0
}

// liveChainState adapts store/epoch state to consensus.ChainState, updated
// in place as runDemoBlocks connects new blocks.
type liveChainState struct {
	store      *chainstore.ChainStorage
	epochMgr   *epoch.Manager
	tipHash    consensus.Hash32
	tipHeight  consensus.Height
	difficulty consensus.Difficulty
}

func (s *liveChainState) TipHash() consensus.Hash32   { return s.tipHash }
func (s *liveChainState) TipHeight() consensus.Height { return s.tipHeight }
func (s *liveChainState) ExpectedDifficulty() consensus.Difficulty {
	return s.difficulty
}
func (s *liveChainState) ExpectedEpoch() consensus.Epoch {
	return s.epochMgr.Current().Epoch
}
func (s *liveChainState) ExpectedChallenge() consensus.Hash32 {
	return s.epochMgr.Current().Challenge
}

// runDemoBlocks builds, validates, and connects demoBlocks blocks in
// sequence on top of live's current tip, using a single-leaf proof (an empty
// Merkle path folds straight to the leaf) derived deterministically from the
// parent hash and the new block's height. It stands in for a real plotter/prover, which is out
// of scope here.
func runDemoBlocks(store *chainstore.ChainStorage, stateMgr *state.Manager, pool *mempool.Pool, work *chain.WorkCache, builder *chain.Builder, live *liveChainState, count int, logger zerolog.Logger) error {
	for i := 0; i < count; i++ {
		epochSnap := live.epochMgr.Current()
		leaf := demoLeaf(live.tipHash, live.tipHeight+1)

		params := chain.BuildParams{
			ParentHash: live.tipHash,
			Height:     live.tipHeight + 1,
			Difficulty: live.difficulty,
			Epoch:      epochSnap.Epoch,
			Challenge:  epochSnap.Challenge,
			Proof: consensus.BlockProof{
				LeafValue:    leaf,
				PlotMetadata: consensus.BlockPlotMetadata{LeafCount: 1, PlotID: leaf},
			},
		}

		block, err := builder.BuildBlock(context.Background(), params, live)
		if err != nil {
			return fmt.Errorf("build block at height %d: %w", params.Height, err)
		}

		if _, err := stateMgr.ApplyBlock(block); err != nil {
			return fmt.Errorf("apply block at height %d: %w", params.Height, err)
		}
		if err := store.StoreBlock(block); err != nil {
			return fmt.Errorf("store block at height %d: %w", params.Height, err)
		}
		hash := consensus.HashHeader(block.Header)
		parentCumDiff, err := work.CumulativeDifficulty(params.ParentHash)
		if err != nil {
			return fmt.Errorf("read cumulative difficulty at height %d: %w", params.Height, err)
		}
		if err := work.Set(hash, parentCumDiff+params.Difficulty); err != nil {
			return fmt.Errorf("record cumulative difficulty at height %d: %w", params.Height, err)
		}
		if err := store.SetBestBlockHash(hash); err != nil {
			return err
		}
		if err := store.SetChainHeight(params.Height); err != nil {
			return err
		}

		txHashes := make([]consensus.Hash32, len(block.Body.Transactions))
		for j, tx := range block.Body.Transactions {
			txHashes[j] = consensus.HashTx(tx)
		}
		pool.Remove(txHashes)

		live.tipHash = hash
		live.tipHeight = params.Height
		if live.epochMgr.Expired() {
			if _, err := live.epochMgr.Advance(hash); err != nil {
				return fmt.Errorf("advance epoch after height %d: %w", params.Height, err)
			}
		}

		logger.Info().Int64("height", params.Height).Str("hash", hash.String()).Msg("connected demo block")
	}
	return nil
}

// demoLeaf derives a deterministic, non-adversarial leaf value for
// runDemoBlocks; it carries no proof-of-space meaning beyond letting the
// single-leaf Merkle check pass.
func demoLeaf(parent consensus.Hash32, height consensus.Height) consensus.Hash32 {
	var heightBytes [8]byte
	for i := range heightBytes {
		heightBytes[i] = byte(height >> (8 * i))
	}
	sum := sha256.Sum256(append(append([]byte{}, parent[:]...), heightBytes[:]...))
	return consensus.Hash32(sum)
}

// loadGenesisBlock reads a hex-encoded, EncodeBlock-serialized genesis block
// from path.
func loadGenesisBlock(path string) (consensus.Block, error) {
	if path == "" {
		return consensus.Block{}, fmt.Errorf("postchain-node: -genesis is required on first run (no existing chain found)")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return consensus.Block{}, err
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return consensus.Block{}, fmt.Errorf("postchain-node: genesis file is not valid hex: %w", err)
	}
	return consensus.DecodeBlock(decoded)
}

// genesisChainState reports the tip/expectation values a height-0 block must
// match: no parent, epoch zero, the network's genesis challenge, and the
// difficulty the genesis block itself declares (trusted at bootstrap, the
// way a hardcoded checkpoint would be).
type genesisChainState struct {
	difficulty consensus.Difficulty
	challenge  consensus.Hash32
}

func (g genesisChainState) TipHash() consensus.Hash32             { return consensus.Hash32{} }
func (g genesisChainState) TipHeight() consensus.Height           { return 0 }
func (g genesisChainState) ExpectedDifficulty() consensus.Difficulty { return g.difficulty }
func (g genesisChainState) ExpectedEpoch() consensus.Epoch        { return 0 }
func (g genesisChainState) ExpectedChallenge() consensus.Hash32   { return g.challenge }

// bootstrapGenesis validates block as an acceptable height-0 block, applies
// it to state, and persists it plus the chain-tip bookkeeping the rest of the
// node relies on.
func bootstrapGenesis(store *chainstore.ChainStorage, stateMgr *state.Manager, work *chain.WorkCache, verifier consensus.SignatureVerifier, now func() int64, block consensus.Block, genesisChallenge consensus.Hash32, supportedVersion uint8) error {
	validator := consensus.NewBlockValidator(consensus.BlockValidationConfig{SupportedVersion: supportedVersion}, verifier, now)
	chainState := genesisChainState{difficulty: block.Header.Difficulty, challenge: genesisChallenge}
	if err := validator.Validate(context.Background(), block, chainState); err != nil {
		return fmt.Errorf("genesis block rejected: %w", err)
	}
	if _, err := stateMgr.ApplyBlock(block); err != nil {
		return err
	}
	if err := store.StoreBlock(block); err != nil {
		return err
	}
	hash := consensus.HashHeader(block.Header)
	if err := work.Set(hash, block.Header.Difficulty); err != nil {
		return err
	}
	if err := store.SetBestBlockHash(hash); err != nil {
		return err
	}
	return store.SetChainHeight(block.Header.Height)
}

// loadOrGenerateSigner reads a hex-encoded 32-byte private key from path, or
// generates and logs a warning about an ephemeral one if path is empty.
func loadOrGenerateSigner(path string, logger zerolog.Logger) (*cryptosuite.PrivateKey, error) {
	if path == "" {
		logger.Warn().Msg("no -key given, generating an ephemeral miner key for this run only")
		return cryptosuite.GenerateKey()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	keyBytes, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("postchain-node: key file is not valid hex: %w", err)
	}
	return cryptosuite.PrivateKeyFromBytes(keyBytes)
}

// newLogger builds a zerolog.Logger writing to w at the level named by
// level, falling back to info on an unrecognized name.
func newLogger(w io.Writer, level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(parsed).With().Timestamp().Logger()
}

// printConfig writes cfg to w as indented, non-HTML-escaped JSON.
func printConfig(w io.Writer, cfg nodecfg.Config) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	_ = enc.Encode(cfg)
}
