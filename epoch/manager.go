// Package epoch tracks the current challenge-response round: an epoch
// number, its derived challenge, and the time it started. Advancing to a
// new epoch rolls all three forward together under one lock.
package epoch

import (
	"sync"

	"postchain.dev/node/consensus"
)

// Config parameterizes Manager. DurationSecs must be in [1, 3600].
type Config struct {
	DurationSecs int64
}

// Snapshot is a consistent, point-in-time read of the manager's state.
type Snapshot struct {
	Epoch     consensus.Epoch
	Challenge consensus.Hash32
	StartTime int64
}

// Listener receives ChallengeAvailable notifications. Handlers must not
// block the emitter; slow subscribers should buffer internally.
type Listener func(ChallengeAvailable)

// ChallengeAvailable announces that a new challenge has been broadcast for
// a given epoch.
type ChallengeAvailable struct {
	Challenge consensus.Hash32
	Epoch     consensus.Epoch
	StartTime int64
}

// Manager holds (epoch, challenge, start_time) behind a single lock; every
// accessor and mutator takes it, so readers never observe a torn mix of an
// old challenge paired with a new epoch number.
type Manager struct {
	cfg Config
	now func() int64

	mu        sync.Mutex
	epoch     consensus.Epoch
	challenge consensus.Hash32
	startTime int64

	listenersMu sync.Mutex
	listeners   []Listener
}

// NewManager constructs a Manager seeded with the genesis challenge at
// epoch 0. now supplies the wall-clock reference for start-time stamping
// and expiry checks.
func NewManager(cfg Config, genesisChallenge consensus.Hash32, now func() int64) *Manager {
	return &Manager{
		cfg:       cfg,
		now:       now,
		epoch:     0,
		challenge: genesisChallenge,
		startTime: now(),
	}
}

// Current returns a consistent snapshot of the manager's state.
func (m *Manager) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{Epoch: m.epoch, Challenge: m.challenge, StartTime: m.startTime}
}

// Expired reports whether the current epoch has run for at least
// cfg.DurationSecs.
func (m *Manager) Expired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now()-m.startTime >= m.cfg.DurationSecs
}

// Advance derives the challenge for the next epoch from parentHash and
// rolls (epoch, challenge, start_time) forward atomically, then broadcasts
// ChallengeAvailable to every registered listener. Returns the new
// snapshot.
func (m *Manager) Advance(parentHash consensus.Hash32) (Snapshot, error) {
	m.mu.Lock()
	nextEpoch := m.epoch + 1
	challenge, err := consensus.DeriveChallenge(parentHash, nextEpoch)
	if err != nil {
		m.mu.Unlock()
		return Snapshot{}, err
	}
	now := m.now()
	m.epoch = nextEpoch
	m.challenge = challenge
	m.startTime = now
	snap := Snapshot{Epoch: m.epoch, Challenge: m.challenge, StartTime: m.startTime}
	m.mu.Unlock()

	m.broadcast(ChallengeAvailable{Challenge: snap.Challenge, Epoch: snap.Epoch, StartTime: snap.StartTime})
	return snap, nil
}

// Subscribe registers l to receive future ChallengeAvailable events.
func (m *Manager) Subscribe(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

// broadcast fires event to every listener. Events are fire-and-forget: a
// panicking or slow listener is the listener's own problem, not the
// emitter's, so each is invoked directly in registration order.
func (m *Manager) broadcast(event ChallengeAvailable) {
	m.listenersMu.Lock()
	listeners := append([]Listener(nil), m.listeners...)
	m.listenersMu.Unlock()
	for _, l := range listeners {
		l(event)
	}
}
