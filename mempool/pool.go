// Package mempool holds validated transactions awaiting block inclusion,
// ordered by fee so a BlockBuilder can draw the most valuable set first.
package mempool

import (
	"errors"
	"sort"
	"sync"

	"postchain.dev/node/consensus"
)

// Pool errors.
var (
	ErrAlreadyExists = errors.New("transaction already in mempool")
	ErrFeeTooLow     = errors.New("transaction fee below minimum")
	ErrPoolFull      = errors.New("mempool is full and incoming fee does not exceed the lowest entry")
)

// Config parameterizes Pool.
type Config struct {
	MaxTransactions          int
	MaxTransactionsPerBlock int
	MinFee                   int64
}

// Pool holds validated transactions, keyed by hash, ordered by
// (-fee, hash) for deterministic, cross-node-reproducible draining.
type Pool struct {
	mu  sync.RWMutex
	cfg Config
	txs map[consensus.Hash32]consensus.Transaction
}

// New creates an empty Pool.
func New(cfg Config) *Pool {
	return &Pool{
		cfg: cfg,
		txs: make(map[consensus.Hash32]consensus.Transaction),
	}
}

// Add admits tx, enforcing the minimum fee, duplicate rejection, and the
// full-pool eviction rule: when the pool is at capacity, the incoming
// transaction displaces the lowest-priority entry only if its fee is
// strictly greater; otherwise it is rejected.
func (p *Pool) Add(tx consensus.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tx.Fee < p.cfg.MinFee {
		return ErrFeeTooLow
	}

	hash := consensus.HashTx(tx)
	if _, exists := p.txs[hash]; exists {
		return ErrAlreadyExists
	}

	if len(p.txs) >= p.cfg.MaxTransactions {
		lowestHash, lowestFee, ok := p.lowestPriorityLocked()
		if !ok || tx.Fee <= lowestFee {
			return ErrPoolFull
		}
		delete(p.txs, lowestHash)
	}

	p.txs[hash] = tx
	return nil
}

// Remove deletes the transactions identified by hashes, ignoring any hash
// not present in the pool. Used after a drained batch is actually included
// in a block.
func (p *Pool) Remove(hashes []consensus.Hash32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range hashes {
		delete(p.txs, h)
	}
}

// Contains reports whether hash is currently in the pool.
func (p *Pool) Contains(hash consensus.Hash32) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.txs[hash]
	return ok
}

// Count returns the number of transactions currently held.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// Drain returns up to min(maxCount, MaxTransactionsPerBlock, |pool|)
// transactions in priority order, without removing them. Callers call
// Remove explicitly once the drained transactions are actually included.
func (p *Pool) Drain(maxCount int) []consensus.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	limit := maxCount
	if p.cfg.MaxTransactionsPerBlock < limit {
		limit = p.cfg.MaxTransactionsPerBlock
	}
	if len(p.txs) < limit {
		limit = len(p.txs)
	}
	if limit <= 0 {
		return nil
	}

	type prioritized struct {
		tx   consensus.Transaction
		hash consensus.Hash32
	}
	entries := make([]prioritized, 0, len(p.txs))
	for hash, tx := range p.txs {
		entries = append(entries, prioritized{tx: tx, hash: hash})
	}
	sort.Slice(entries, func(i, j int) bool {
		return lessPriority(entries[i].tx, entries[i].hash, entries[j].tx, entries[j].hash)
	})

	out := make([]consensus.Transaction, limit)
	for i := 0; i < limit; i++ {
		out[i] = entries[i].tx
	}
	return out
}

// Clear empties the pool. The reorganizer does not call it: it removes
// confirmed hashes and re-admits orphaned transactions one by one.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs = make(map[consensus.Hash32]consensus.Transaction)
}

// lessPriority orders by (-fee, hash): higher fee first, ties broken by
// byte-wise hash comparison so draining is reproducible across nodes that
// hold the same mempool contents.
func lessPriority(a consensus.Transaction, aHash consensus.Hash32, b consensus.Transaction, bHash consensus.Hash32) bool {
	if a.Fee != b.Fee {
		return a.Fee > b.Fee
	}
	for i := range aHash {
		if aHash[i] != bHash[i] {
			return aHash[i] < bHash[i]
		}
	}
	return false
}

// lowestPriorityLocked returns the entry that sorts last under lessPriority
// (the one Drain would return last and eviction displaces first).
func (p *Pool) lowestPriorityLocked() (consensus.Hash32, int64, bool) {
	var worstHash consensus.Hash32
	var worstFee int64
	found := false
	for hash, tx := range p.txs {
		if !found || lessPriority(p.txs[worstHash], worstHash, tx, hash) {
			worstHash = hash
			worstFee = tx.Fee
			found = true
		}
	}
	return worstHash, worstFee, found
}
