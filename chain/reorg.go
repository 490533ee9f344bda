package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"postchain.dev/node/consensus"
	"postchain.dev/node/state"
)

// ErrReorgTooDeep is returned when the fork point lies deeper than the
// configured maximum reorg depth below the current tip.
var ErrReorgTooDeep = errors.New("chain: fork point exceeds maximum reorg depth")

// ErrForkNotReconcilable is returned when the local chain cannot be walked
// back to a hash shared with the alternative branch.
var ErrForkNotReconcilable = errors.New("chain: alternative branch shares no ancestor with the local chain")

// ReorgConfig bounds how deep a reorganization may reach below the current
// tip before it is rejected outright.
type ReorgConfig struct {
	MaxReorgDepth int64
}

// BlockStore is the block-level persistence a Reorganizer reads and writes.
type BlockStore interface {
	GetBlockByHash(hash consensus.Hash32) (consensus.Block, bool, error)
	GetHeaderByHash(hash consensus.Hash32) (consensus.BlockHeader, bool, error)
	StoreBlock(block consensus.Block) error
	MarkOrphaned(hash consensus.Hash32) error
}

// MetadataStore is the chain-tip bookkeeping a Reorganizer reads and writes.
type MetadataStore interface {
	GetBestBlockHash() (consensus.Hash32, bool, error)
	SetBestBlockHash(hash consensus.Hash32) error
	GetChainHeight() (consensus.Height, error)
	SetChainHeight(height consensus.Height) error
}

// StateApplier is the subset of state.Manager a Reorganizer drives: applying
// connected blocks, and snapshotting around the whole attempt so a failure
// midway through leaves state untouched.
type StateApplier interface {
	ApplyBlock(block consensus.Block) (consensus.Hash32, error)
	Snapshot() state.SnapshotID
	Revert(id state.SnapshotID) error
	Release(id state.SnapshotID)
}

// MempoolAdmitter is the mempool surface a Reorganizer uses to drop
// newly-confirmed transactions and re-admit ones displaced by a reorg.
type MempoolAdmitter interface {
	consensus.TransactionIndex
	Add(tx consensus.Transaction) error
	Remove(hashes []consensus.Hash32)
}

// Reorganizer switches the best chain to a heavier alternative branch when
// one is presented, reverting and re-applying blocks against StateApplier
// and persisting the result to BlockStore/MetadataStore.
type Reorganizer struct {
	blocks BlockStore
	meta   MetadataStore
	state  StateApplier
	pool   MempoolAdmitter
	work   *WorkCache
	txv    *consensus.TransactionValidator
	cfg    ReorgConfig
	now    func() int64
	bus    *eventBus
	log    zerolog.Logger
}

// NewReorganizer constructs a Reorganizer. now supplies the wall-clock
// reference stamped onto emitted ChainReorgEvents.
func NewReorganizer(blocks BlockStore, meta MetadataStore, st StateApplier, pool MempoolAdmitter, work *WorkCache, txv *consensus.TransactionValidator, cfg ReorgConfig, now func() int64, logger zerolog.Logger) *Reorganizer {
	return &Reorganizer{
		blocks: blocks,
		meta:   meta,
		state:  st,
		pool:   pool,
		work:   work,
		txv:    txv,
		cfg:    cfg,
		now:    now,
		bus:    &eventBus{},
		log:    logger.With().Str("component", "chain").Logger(),
	}
}

// Subscribe registers l to receive future ChainReorgEvents.
func (r *Reorganizer) Subscribe(l ReorgListener) {
	r.bus.subscribe(l)
}

// TryReorganize compares the cumulative difficulty of altTip's branch
// against the current best chain and, if it is heavier, switches to it:
// reverting local-only blocks back to the fork point, applying the
// alternative branch's blocks forward, and updating the best tip. Returns
// whether a switch occurred.
//
// altChainBlocks holds every block on the alternative branch, oldest to
// newest, excluding altTip (which is appended after it) and including any
// ancestors shared with the local chain needed to locate the fork point.
func (r *Reorganizer) TryReorganize(ctx context.Context, altTip consensus.Block, altChainBlocks []consensus.Block) (bool, error) {
	currentTipHash, hasTip, err := r.meta.GetBestBlockHash()
	if err != nil {
		return false, err
	}
	currentTipHeight, err := r.meta.GetChainHeight()
	if err != nil {
		return false, err
	}

	var currentCumDiff consensus.Difficulty
	if hasTip {
		currentCumDiff, err = r.work.CumulativeDifficulty(currentTipHash)
		if err != nil {
			return false, err
		}
	}

	fullAlt := append(append([]consensus.Block{}, altChainBlocks...), altTip)
	sort.Slice(fullAlt, func(i, j int) bool { return fullAlt[i].Header.Height < fullAlt[j].Header.Height })

	altHashSet := make(map[consensus.Hash32]bool, len(fullAlt))
	for _, b := range fullAlt {
		altHashSet[consensus.HashHeader(b.Header)] = true
	}

	altCumDiff, err := r.altCumulativeDifficulty(fullAlt)
	if err != nil {
		return false, err
	}
	if altCumDiff <= currentCumDiff {
		r.log.Debug().Int64("alt_cum_diff", altCumDiff).Int64("current_cum_diff", currentCumDiff).Msg("alternative branch is not heavier, ignoring")
		return false, nil
	}

	forkHeight, err := r.findForkPoint(altHashSet, currentTipHash, hasTip)
	if err != nil {
		return false, err
	}
	if hasTip && currentTipHeight-forkHeight > r.cfg.MaxReorgDepth {
		r.log.Warn().Int64("fork_height", forkHeight).Int64("tip_height", currentTipHeight).Msg("rejecting reorg deeper than max_reorg_depth")
		return false, ErrReorgTooDeep
	}

	altTipHash := consensus.HashHeader(altTip.Header)
	snapID := r.state.Snapshot()
	reverted, appliedHashes, revertedBlocks, appliedBlocks, err := r.execute(ctx, currentTipHash, hasTip, forkHeight, fullAlt, altTipHash)
	if err != nil {
		_ = r.state.Revert(snapID)
		r.state.Release(snapID)
		r.log.Error().Err(err).Msg("reorg failed mid-execution, state reverted to pre-reorg snapshot")
		return false, err
	}
	r.state.Release(snapID)

	r.pool.Remove(appliedHashes)
	r.reAdmitOrphaned(reverted)

	r.log.Info().
		Int64("fork_height", forkHeight).
		Str("old_tip", currentTipHash.String()).
		Str("new_tip", altTipHash.String()).
		Int("reverted", revertedBlocks).
		Int("applied", appliedBlocks).
		Msg("reorganized to heavier branch")

	r.bus.publish(ChainReorgEvent{
		ForkHeight:    forkHeight,
		OldTipHash:    currentTipHash,
		OldTipHeight:  currentTipHeight,
		NewTipHash:    altTipHash,
		NewTipHeight:  altTip.Header.Height,
		RevertedCount: revertedBlocks,
		AppliedCount:  appliedBlocks,
		Timestamp:     r.now(),
	})
	return true, nil
}

// altCumulativeDifficulty sums the difficulty of every block in fullAlt
// (sorted ascending by height) on top of the cumulative difficulty already
// known for the oldest block's parent.
func (r *Reorganizer) altCumulativeDifficulty(fullAlt []consensus.Block) (consensus.Difficulty, error) {
	if len(fullAlt) == 0 {
		return 0, fmt.Errorf("chain: empty alternative chain")
	}
	base, err := r.work.CumulativeDifficulty(fullAlt[0].Header.ParentHash)
	if err != nil {
		return 0, err
	}
	running := base
	for _, b := range fullAlt {
		running += b.Header.Difficulty
	}
	return running, nil
}

// findForkPoint walks the local chain backward from currentTipHash until it
// finds a hash also present in altHashSet — the deepest ancestor the two
// branches share — and returns its height. Hitting the genesis parent
// (zero hash) with no match means the branches share only genesis, height
// 0. A local hash with no stored header midway through the walk means the
// branches cannot be reconciled from the blocks on hand.
func (r *Reorganizer) findForkPoint(altHashSet map[consensus.Hash32]bool, currentTipHash consensus.Hash32, hasTip bool) (consensus.Height, error) {
	if !hasTip {
		return 0, nil
	}
	cur := currentTipHash
	for {
		if altHashSet[cur] {
			header, ok, err := r.blocks.GetHeaderByHash(cur)
			if err != nil {
				return 0, err
			}
			if !ok {
				return 0, ErrForkNotReconcilable
			}
			return header.Height, nil
		}
		if cur.IsZero() {
			return 0, nil
		}
		header, ok, err := r.blocks.GetHeaderByHash(cur)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrForkNotReconcilable
		}
		cur = header.ParentHash
	}
}

// execute performs the actual branch switch: disconnecting local blocks
// down to forkHeight, then connecting every alternative block above it.
// Returns the transactions displaced by disconnection, the hashes of
// transactions newly confirmed by connection, and the count of blocks
// disconnected/connected respectively (not to be confused with the
// transaction counts carried by the first two return values).
func (r *Reorganizer) execute(ctx context.Context, currentTipHash consensus.Hash32, hasTip bool, forkHeight consensus.Height, fullAlt []consensus.Block, altTipHash consensus.Hash32) ([]consensus.Transaction, []consensus.Hash32, int, int, error) {
	var reverted []consensus.Transaction
	var revertedBlocks int

	if hasTip {
		cur := currentTipHash
		for !cur.IsZero() {
			header, ok, err := r.blocks.GetHeaderByHash(cur)
			if err != nil {
				return nil, nil, 0, 0, err
			}
			if !ok {
				return nil, nil, 0, 0, fmt.Errorf("chain: header %s missing during disconnect", cur)
			}
			if header.Height <= forkHeight {
				break
			}
			if err := ctx.Err(); err != nil {
				return nil, nil, 0, 0, err
			}

			block, ok, err := r.blocks.GetBlockByHash(cur)
			if err != nil {
				return nil, nil, 0, 0, err
			}
			if !ok {
				return nil, nil, 0, 0, fmt.Errorf("chain: block %s missing during disconnect", cur)
			}

			reverted = append(reverted, block.Body.Transactions...)
			revertedBlocks++
			if err := r.blocks.MarkOrphaned(cur); err != nil {
				return nil, nil, 0, 0, err
			}
			cur = header.ParentHash
		}
	}

	var appliedHashes []consensus.Hash32
	var appliedBlocks int
	for _, b := range fullAlt {
		if b.Header.Height <= forkHeight {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, 0, 0, err
		}

		hash := consensus.HashHeader(b.Header)
		if _, err := r.state.ApplyBlock(b); err != nil {
			return nil, nil, 0, 0, err
		}
		if err := r.blocks.StoreBlock(b); err != nil {
			return nil, nil, 0, 0, err
		}
		parentCumDiff, err := r.work.CumulativeDifficulty(b.Header.ParentHash)
		if err != nil {
			return nil, nil, 0, 0, err
		}
		if err := r.work.Set(hash, parentCumDiff+b.Header.Difficulty); err != nil {
			return nil, nil, 0, 0, err
		}
		appliedBlocks++
		for _, tx := range b.Body.Transactions {
			appliedHashes = append(appliedHashes, consensus.HashTx(tx))
		}
	}

	if err := r.meta.SetBestBlockHash(altTipHash); err != nil {
		return nil, nil, 0, 0, err
	}
	if err := r.meta.SetChainHeight(fullAlt[len(fullAlt)-1].Header.Height); err != nil {
		return nil, nil, 0, 0, err
	}

	return reverted, appliedHashes, revertedBlocks, appliedBlocks, nil
}

// reAdmitOrphaned offers every transaction displaced by disconnection back
// to the mempool, re-validated against current (post-switch) account state
// rather than trusted blindly — a transaction a disconnected block included
// may no longer be valid against the new chain's state.
func (r *Reorganizer) reAdmitOrphaned(txs []consensus.Transaction) {
	for _, tx := range txs {
		if err := r.txv.ValidateStandalone(tx, r.stateAsAccountView(), r.pool); err != nil {
			continue
		}
		_ = r.pool.Add(tx)
	}
}

// stateAsAccountView narrows StateApplier down to the AccountView
// ValidateStandalone needs; consensus.AccountView is implemented by state.Manager,
// which is always the concrete type wired in as StateApplier.
func (r *Reorganizer) stateAsAccountView() consensus.AccountView {
	v, ok := r.state.(consensus.AccountView)
	if !ok {
		return noAccounts{}
	}
	return v
}

type noAccounts struct{}

func (noAccounts) GetAccount(consensus.PublicKey) (consensus.Amount, consensus.Nonce, bool) {
	return 0, 0, false
}
