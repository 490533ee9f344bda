// Package nodecfg assembles every component's configuration into one
// validated Config, the way node.Config gathers network/storage settings
// for the daemon to load once at startup.
package nodecfg

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"postchain.dev/node/chain"
	"postchain.dev/node/consensus"
	"postchain.dev/node/mempool"
	"postchain.dev/node/state"
)

// Config is the full set of settings a postchain node needs to start.
type Config struct {
	Network  string   `json:"network"`
	DataDir  string   `json:"data_dir"`
	BindAddr string   `json:"bind_addr"`
	LogLevel string   `json:"log_level"`
	Peers    []string `json:"peers"`
	MaxPeers int      `json:"max_peers"`

	SupportedVersion uint8 `json:"supported_version"`

	Mempool    mempool.Config                       `json:"mempool"`
	TxValidation consensus.TransactionValidationConfig `json:"tx_validation"`
	Difficulty consensus.DifficultyAdjustmentConfig `json:"difficulty"`
	Epoch      EpochConfig                          `json:"epoch"`
	Reorg      chain.ReorgConfig                     `json:"reorg"`
}

// EpochConfig parameterizes epoch.Manager; kept here rather than imported
// from the epoch package, which otherwise has no reason to know about JSON
// struct tags or config validation.
type EpochConfig struct {
	DurationSecs int64 `json:"duration_secs"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// DefaultDataDir returns the user's home directory joined with .postchain,
// falling back to a relative path if the home directory cannot be resolved.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".postchain"
	}
	return filepath.Join(home, ".postchain")
}

// DefaultConfig returns a Config suitable for a single local devnet node.
func DefaultConfig() Config {
	return Config{
		Network:          "devnet",
		DataDir:          DefaultDataDir(),
		BindAddr:         "0.0.0.0:29111",
		LogLevel:         "info",
		Peers:            nil,
		MaxPeers:         64,
		SupportedVersion: 1,
		Mempool: mempool.Config{
			MaxTransactions:         10_000,
			MaxTransactionsPerBlock: 2_000,
			MinFee:                  0,
		},
		TxValidation: consensus.TransactionValidationConfig{
			MinFee:                     0,
			MaxFee:                     1_000_000,
			MaxTransactionsPerBlock:    2_000,
			CheckDuplicateTransactions: true,
			MaxTransactionSize:         1_024,
			SupportedVersion:           1,
		},
		Difficulty: consensus.DifficultyAdjustmentConfig{
			TargetBlockTimeSecs:      30,
			AdjustmentIntervalBlocks: 100,
			DampeningFactor:          4,
			MinDifficulty:            1,
			MaxDifficulty:            1 << 40,
		},
		Epoch: EpochConfig{DurationSecs: 600},
		Reorg: chain.ReorgConfig{MaxReorgDepth: 100},
	}
}

// NormalizePeers splits and deduplicates a set of comma-joined peer address
// tokens, trimming whitespace and preserving first-seen order.
func NormalizePeers(raw ...string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, token := range raw {
		for _, p := range strings.Split(token, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// ValidateConfig checks the node, mempool, tx-validation, epoch and reorg
// settings, failing on the first violation found. The difficulty section is
// not checked here.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return errors.New("nodecfg: network is required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("nodecfg: data_dir is required")
	}
	if err := validateAddr(cfg.BindAddr); err != nil {
		return fmt.Errorf("nodecfg: invalid bind_addr: %w", err)
	}
	for _, peer := range cfg.Peers {
		if err := validatePeerAddr(peer); err != nil {
			return fmt.Errorf("nodecfg: invalid peer %q: %w", peer, err)
		}
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("nodecfg: invalid log_level %q", cfg.LogLevel)
	}
	if cfg.MaxPeers <= 0 {
		return errors.New("nodecfg: max_peers must be > 0")
	}
	if cfg.MaxPeers > 4096 {
		return errors.New("nodecfg: max_peers must be <= 4096")
	}

	if cfg.Mempool.MaxTransactions <= 0 {
		return errors.New("nodecfg: mempool.max_transactions must be > 0")
	}
	if cfg.Mempool.MaxTransactionsPerBlock <= 0 {
		return errors.New("nodecfg: mempool.max_transactions_per_block must be > 0")
	}
	if cfg.TxValidation.MaxFee < cfg.TxValidation.MinFee {
		return errors.New("nodecfg: tx_validation.max_fee must be >= min_fee")
	}
	if cfg.TxValidation.MaxTransactionSize <= 0 {
		return errors.New("nodecfg: tx_validation.max_transaction_size must be > 0")
	}
	if cfg.Epoch.DurationSecs < 1 || cfg.Epoch.DurationSecs > 3600 {
		return errors.New("nodecfg: epoch.duration_secs must be in [1, 3600]")
	}
	if cfg.Reorg.MaxReorgDepth <= 0 {
		return errors.New("nodecfg: reorg.max_reorg_depth must be > 0")
	}
	return nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	if strings.Contains(host, " ") {
		return errors.New("invalid host")
	}
	return nil
}

func validatePeerAddr(addr string) error {
	if err := validateAddr(addr); err != nil {
		return err
	}
	host, _, _ := net.SplitHostPort(addr)
	if strings.TrimSpace(host) == "" {
		return errors.New("missing host")
	}
	return nil
}

// StateConfig adapts this package's tx-validation settings to state.Config,
// the shape state.NewManager expects.
func StateConfig(cfg Config) state.Config {
	return state.Config{
		MinFee:                     cfg.TxValidation.MinFee,
		MaxFee:                     cfg.TxValidation.MaxFee,
		MaxTransactionsPerBlock:    cfg.TxValidation.MaxTransactionsPerBlock,
		CheckDuplicateTransactions: cfg.TxValidation.CheckDuplicateTransactions,
		MaxTransactionSize:         cfg.TxValidation.MaxTransactionSize,
		SupportedVersion:           cfg.SupportedVersion,
	}
}
