package chain

import (
	"fmt"
	"sync"

	"postchain.dev/node/consensus"
)

// HeaderSource looks up a stored block's header by hash.
type HeaderSource interface {
	GetHeaderByHash(hash consensus.Hash32) (consensus.BlockHeader, bool, error)
}

// DifficultyStore persists the cumulative-difficulty entry computed for a
// block hash, so it need not be recomputed on every lookup.
type DifficultyStore interface {
	GetCumulativeDifficulty(hash consensus.Hash32) (consensus.Difficulty, bool, error)
	SetCumulativeDifficulty(hash consensus.Hash32, diff consensus.Difficulty) error
}

// WorkCache computes and memoizes cumulative difficulty (the running sum of
// every ancestor's difficulty, genesis through hash) used to compare
// competing branches. It is write-through: an in-memory map backs the
// durable store, and a lookup that misses both walks back to the nearest
// known ancestor, then fills forward.
//
// Two goroutines racing on the same unmemoized hash may each walk back and
// recompute independently; both arrive at the same sum, so whichever writes
// last simply overwrites the other's identical value.
type WorkCache struct {
	headers HeaderSource
	store   DifficultyStore

	mu  sync.Mutex
	mem map[consensus.Hash32]consensus.Difficulty
}

// NewWorkCache constructs a WorkCache backed by headers for ancestor lookup
// and store for durable memoization.
func NewWorkCache(headers HeaderSource, store DifficultyStore) *WorkCache {
	return &WorkCache{
		headers: headers,
		store:   store,
		mem:     make(map[consensus.Hash32]consensus.Difficulty),
	}
}

// CumulativeDifficulty returns Σ difficulty over every block from genesis
// through hash inclusive. hash must already be known to headers.
func (c *WorkCache) CumulativeDifficulty(hash consensus.Hash32) (consensus.Difficulty, error) {
	if hash.IsZero() {
		return 0, nil
	}
	if d, ok := c.lookupMem(hash); ok {
		return d, nil
	}
	if d, ok, err := c.store.GetCumulativeDifficulty(hash); err != nil {
		return 0, err
	} else if ok {
		c.storeMem(hash, d)
		return d, nil
	}

	type ancestor struct {
		hash       consensus.Hash32
		difficulty consensus.Difficulty
	}
	var unresolved []ancestor
	base := consensus.Difficulty(0)
	cur := hash
	for {
		header, ok, err := c.headers.GetHeaderByHash(cur)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("chain: header %s not found while computing cumulative difficulty", cur)
		}
		unresolved = append(unresolved, ancestor{hash: cur, difficulty: header.Difficulty})

		if header.ParentHash.IsZero() {
			break
		}
		if d, ok := c.lookupMem(header.ParentHash); ok {
			base = d
			break
		}
		if d, ok, err := c.store.GetCumulativeDifficulty(header.ParentHash); err != nil {
			return 0, err
		} else if ok {
			base = d
			break
		}
		cur = header.ParentHash
	}

	for i, j := 0, len(unresolved)-1; i < j; i, j = i+1, j-1 {
		unresolved[i], unresolved[j] = unresolved[j], unresolved[i]
	}

	running := base
	for _, a := range unresolved {
		running += a.difficulty
		if err := c.Set(a.hash, running); err != nil {
			return 0, err
		}
	}
	return running, nil
}

// Set records diff as hash's cumulative difficulty, write-through to the
// durable store. Callers that already know a block's cumulative difficulty
// (e.g. while connecting a new tip) use this instead of paying for a
// redundant ancestor walk.
func (c *WorkCache) Set(hash consensus.Hash32, diff consensus.Difficulty) error {
	if err := c.store.SetCumulativeDifficulty(hash, diff); err != nil {
		return err
	}
	c.storeMem(hash, diff)
	return nil
}

func (c *WorkCache) lookupMem(hash consensus.Hash32) (consensus.Difficulty, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.mem[hash]
	return d, ok
}

func (c *WorkCache) storeMem(hash consensus.Hash32, diff consensus.Difficulty) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem[hash] = diff
}
