package chain

import (
	"sync"

	"postchain.dev/node/consensus"
)

// ChainReorgEvent describes a completed reorganization: the branch point and
// the old/new tips either side of it.
type ChainReorgEvent struct {
	ForkHeight    consensus.Height
	OldTipHash    consensus.Hash32
	OldTipHeight  consensus.Height
	NewTipHash    consensus.Hash32
	NewTipHeight  consensus.Height
	RevertedCount int
	AppliedCount  int
	Timestamp     int64
}

// ReorgListener receives a ChainReorgEvent after a reorganization commits.
type ReorgListener func(ChainReorgEvent)

// eventBus fans a ChainReorgEvent out to every subscriber, fire-and-forget,
// in registration order.
type eventBus struct {
	mu        sync.Mutex
	listeners []ReorgListener
}

func (b *eventBus) subscribe(l ReorgListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

func (b *eventBus) publish(event ChainReorgEvent) {
	b.mu.Lock()
	listeners := append([]ReorgListener(nil), b.listeners...)
	b.mu.Unlock()
	for _, l := range listeners {
		l(event)
	}
}
