// Package state holds the account-based world state and its atomic
// block-application pipeline: validate every transaction in a block against
// a tentative view of account balances and nonces, then commit the whole
// batch or none of it.
package state

import (
	"errors"
	"sync"

	"postchain.dev/node/consensus"
)

// Errors surfaced by Manager.
var (
	ErrStateTransitionFailed = errors.New("state transition failed: block transactions do not validate against current state")
	ErrInvalidSnapshot       = errors.New("invalid or already-released snapshot id")
)

// AccountState is the persistent balance/nonce pair held for one address.
// An address with no entry is treated as balance 0, nonce 0.
type AccountState struct {
	Balance consensus.Amount
	Nonce   consensus.Nonce
}

// SnapshotID identifies a point-in-time copy of the account map taken by
// Snapshot, to be restored by Revert or discarded by Release.
type SnapshotID uint64

// Config parameterizes the per-transaction checks ApplyBlock and
// ValidateBlockState run before any state mutation is committed.
type Config struct {
	MinFee                     int64
	MaxFee                     int64
	MaxTransactionsPerBlock    int
	CheckDuplicateTransactions bool
	MaxTransactionSize         int
	SupportedVersion           uint8
}

// ConsistencyChecker is the storage-layer integrity check CheckConsistency
// delegates to. A Manager with no checker configured is trivially
// consistent, since it holds no state beyond the in-memory account map.
type ConsistencyChecker interface {
	CheckIntegrity() bool
}

// mapView adapts a bare account map to consensus.AccountView without
// involving Manager's lock, so it can be used both from a caller already
// holding the write lock (ApplyBlock) and from a fresh read lock
// (ValidateBlockState).
type mapView map[consensus.PublicKey]AccountState

func (v mapView) GetAccount(addr consensus.PublicKey) (consensus.Amount, consensus.Nonce, bool) {
	acc, ok := v[addr]
	if !ok {
		return 0, 0, false
	}
	return acc.Balance, acc.Nonce, true
}

// Manager owns the account map and serializes every mutation through
// ApplyBlock. Concurrent reads (GetBalance, GetNonce, StateRoot) may proceed
// while no apply is in flight; Go's sync.RWMutex blocks new readers once a
// writer is waiting, so a steady stream of readers cannot starve a pending
// apply.
type Manager struct {
	mu       sync.RWMutex
	accounts map[consensus.PublicKey]AccountState
	txv      *consensus.TransactionValidator
	checker  ConsistencyChecker

	snapMu    sync.Mutex
	snapshots map[SnapshotID]map[consensus.PublicKey]AccountState
	nextID    SnapshotID
}

// NewManager constructs an empty Manager. checker may be nil.
func NewManager(cfg Config, verifier consensus.SignatureVerifier, checker ConsistencyChecker) *Manager {
	txCfg := consensus.TransactionValidationConfig{
		MinFee:                     cfg.MinFee,
		MaxFee:                     cfg.MaxFee,
		MaxTransactionsPerBlock:    cfg.MaxTransactionsPerBlock,
		CheckDuplicateTransactions: cfg.CheckDuplicateTransactions,
		MaxTransactionSize:         cfg.MaxTransactionSize,
		SupportedVersion:           cfg.SupportedVersion,
	}
	return &Manager{
		accounts:  make(map[consensus.PublicKey]AccountState),
		txv:       consensus.NewTransactionValidator(txCfg, verifier),
		checker:   checker,
		snapshots: make(map[SnapshotID]map[consensus.PublicKey]AccountState),
	}
}

// GetAccount implements consensus.AccountView.
func (m *Manager) GetAccount(addr consensus.PublicKey) (consensus.Amount, consensus.Nonce, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return mapView(m.accounts).GetAccount(addr)
}

// GetBalance returns addr's balance, or 0 if it has no account entry.
func (m *Manager) GetBalance(addr consensus.PublicKey) consensus.Amount {
	bal, _, _ := m.GetAccount(addr)
	return bal
}

// GetNonce returns addr's nonce, or 0 if it has no account entry.
func (m *Manager) GetNonce(addr consensus.PublicKey) consensus.Nonce {
	_, nonce, _ := m.GetAccount(addr)
	return nonce
}

// StateRoot returns the current account map's commitment.
func (m *Manager) StateRoot() consensus.Hash32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return StateRoot(m.accounts)
}

// ValidateBlockState is a pure predicate: it checks every transaction in
// block order against a tentative view seeded from current account state,
// without mutating anything. Returns the first violation, or nil.
func (m *Manager) ValidateBlockState(txs []consensus.Transaction) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.validateLocked(txs)
}

func (m *Manager) validateLocked(txs []consensus.Transaction) error {
	ctx := consensus.NewBlockValidationContext()
	view := mapView(m.accounts)
	for _, tx := range txs {
		if err := m.txv.ValidateInBlock(tx, view, ctx); err != nil {
			return err
		}
	}
	return nil
}

// ApplyBlock validates block.Body.Transactions against current state and,
// if they all pass, atomically debits senders, credits recipients, credits
// the miner with the sum of fees, and returns the resulting state root.
// Nothing is mutated if validation fails.
func (m *Manager) ApplyBlock(block consensus.Block) (consensus.Hash32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validateLocked(block.Body.Transactions); err != nil {
		return consensus.Hash32{}, ErrStateTransitionFailed
	}

	overrides := make(map[consensus.PublicKey]AccountState)
	lookup := func(addr consensus.PublicKey) AccountState {
		if acc, ok := overrides[addr]; ok {
			return acc
		}
		return m.accounts[addr]
	}

	var totalFees consensus.Amount
	for _, tx := range block.Body.Transactions {
		sender := lookup(tx.Sender)
		sender.Balance -= tx.Amount + tx.Fee
		sender.Nonce++
		overrides[tx.Sender] = sender

		recipient := lookup(tx.Recipient)
		recipient.Balance += tx.Amount
		overrides[tx.Recipient] = recipient

		totalFees += tx.Fee
	}

	if totalFees > 0 {
		miner := lookup(block.Header.MinerID)
		miner.Balance += totalFees
		overrides[block.Header.MinerID] = miner
	}

	for addr, acc := range overrides {
		m.accounts[addr] = acc
	}

	return StateRoot(m.accounts), nil
}

// Snapshot captures the current account map and returns an id to Revert or
// Release it by.
func (m *Manager) Snapshot() SnapshotID {
	m.mu.RLock()
	copyAccounts := make(map[consensus.PublicKey]AccountState, len(m.accounts))
	for addr, acc := range m.accounts {
		copyAccounts[addr] = acc
	}
	m.mu.RUnlock()

	m.snapMu.Lock()
	defer m.snapMu.Unlock()
	id := m.nextID
	m.nextID++
	m.snapshots[id] = copyAccounts
	return id
}

// Revert restores the account map to the state captured by Snapshot(id).
// Reverting an unknown or already-released id is fatal: it returns
// ErrInvalidSnapshot rather than silently doing nothing.
func (m *Manager) Revert(id SnapshotID) error {
	m.snapMu.Lock()
	snap, ok := m.snapshots[id]
	m.snapMu.Unlock()
	if !ok {
		return ErrInvalidSnapshot
	}

	restored := make(map[consensus.PublicKey]AccountState, len(snap))
	for addr, acc := range snap {
		restored[addr] = acc
	}

	m.mu.Lock()
	m.accounts = restored
	m.mu.Unlock()
	return nil
}

// Release frees the resources held by Snapshot(id). Releasing an unknown or
// already-released id is a no-op, not an error.
func (m *Manager) Release(id SnapshotID) {
	m.snapMu.Lock()
	defer m.snapMu.Unlock()
	delete(m.snapshots, id)
}

// CheckConsistency delegates to the configured storage-layer integrity
// checker. With none configured, the in-memory account map carries no
// integrity invariant of its own, so it reports true.
func (m *Manager) CheckConsistency() bool {
	if m.checker == nil {
		return true
	}
	return m.checker.CheckIntegrity()
}
