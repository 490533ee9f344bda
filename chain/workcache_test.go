package chain

import (
	"testing"

	"postchain.dev/node/consensus"
)

type fakeHeaderStore struct {
	headers map[consensus.Hash32]consensus.BlockHeader
	diffs   map[consensus.Hash32]consensus.Difficulty
}

func newFakeHeaderStore() *fakeHeaderStore {
	return &fakeHeaderStore{
		headers: make(map[consensus.Hash32]consensus.BlockHeader),
		diffs:   make(map[consensus.Hash32]consensus.Difficulty),
	}
}

func (f *fakeHeaderStore) GetHeaderByHash(hash consensus.Hash32) (consensus.BlockHeader, bool, error) {
	h, ok := f.headers[hash]
	return h, ok, nil
}

func (f *fakeHeaderStore) GetCumulativeDifficulty(hash consensus.Hash32) (consensus.Difficulty, bool, error) {
	d, ok := f.diffs[hash]
	return d, ok, nil
}

func (f *fakeHeaderStore) SetCumulativeDifficulty(hash consensus.Hash32, diff consensus.Difficulty) error {
	f.diffs[hash] = diff
	return nil
}

// chainOf builds a 1..n height chain of headers rooted at genesis (zero
// parent hash), each with the given per-block difficulty, and registers
// them with store. Returns the hash of each block by height, 1-indexed.
func chainOf(store *fakeHeaderStore, difficulties ...consensus.Difficulty) []consensus.Hash32 {
	hashes := make([]consensus.Hash32, len(difficulties))
	var parent consensus.Hash32
	for i, d := range difficulties {
		h := consensus.BlockHeader{ParentHash: parent, Height: int64(i + 1), Difficulty: d, MinerID: consensus.PublicKey{byte(i + 1)}}
		hash := consensus.HashHeader(h)
		store.headers[hash] = h
		hashes[i] = hash
		parent = hash
	}
	return hashes
}

func TestWorkCache_CumulativeDifficulty_WalksBackAndFillsForward(t *testing.T) {
	store := newFakeHeaderStore()
	hashes := chainOf(store, 100, 200, 300)

	wc := NewWorkCache(store, store)
	got, err := wc.CumulativeDifficulty(hashes[2])
	if err != nil {
		t.Fatalf("CumulativeDifficulty() error: %v", err)
	}
	if got != 600 {
		t.Errorf("CumulativeDifficulty(tip) = %d, want 600", got)
	}

	for i, want := range []consensus.Difficulty{100, 300, 600} {
		got, err := wc.CumulativeDifficulty(hashes[i])
		if err != nil {
			t.Fatalf("CumulativeDifficulty(height %d) error: %v", i+1, err)
		}
		if got != want {
			t.Errorf("CumulativeDifficulty(height %d) = %d, want %d", i+1, got, want)
		}
	}
}

func TestWorkCache_CumulativeDifficulty_CachesEachPrefix(t *testing.T) {
	store := newFakeHeaderStore()
	hashes := chainOf(store, 10, 20, 30)

	wc := NewWorkCache(store, store)
	if _, err := wc.CumulativeDifficulty(hashes[2]); err != nil {
		t.Fatalf("CumulativeDifficulty() error: %v", err)
	}

	for i, want := range []consensus.Difficulty{10, 30, 60} {
		d, ok, err := store.GetCumulativeDifficulty(hashes[i])
		if err != nil || !ok {
			t.Fatalf("expected durable cache entry at height %d, ok=%v err=%v", i+1, ok, err)
		}
		if d != want {
			t.Errorf("cached cumulative difficulty at height %d = %d, want %d", i+1, d, want)
		}
	}
}

func TestWorkCache_CumulativeDifficulty_ZeroHashIsGenesisParent(t *testing.T) {
	store := newFakeHeaderStore()
	wc := NewWorkCache(store, store)
	got, err := wc.CumulativeDifficulty(consensus.Hash32{})
	if err != nil {
		t.Fatalf("CumulativeDifficulty(zero) error: %v", err)
	}
	if got != 0 {
		t.Errorf("CumulativeDifficulty(zero) = %d, want 0", got)
	}
}

func TestWorkCache_CumulativeDifficulty_UnknownHash(t *testing.T) {
	store := newFakeHeaderStore()
	wc := NewWorkCache(store, store)
	var unknown consensus.Hash32
	unknown[0] = 0xff
	if _, err := wc.CumulativeDifficulty(unknown); err == nil {
		t.Error("CumulativeDifficulty() of an unknown hash should error")
	}
}

func TestWorkCache_Set_IsVisibleToSubsequentLookups(t *testing.T) {
	store := newFakeHeaderStore()
	wc := NewWorkCache(store, store)
	var hash consensus.Hash32
	hash[0] = 0x5
	if err := wc.Set(hash, 777); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	got, err := wc.CumulativeDifficulty(hash)
	if err != nil {
		t.Fatalf("CumulativeDifficulty() error: %v", err)
	}
	if got != 777 {
		t.Errorf("CumulativeDifficulty() after Set = %d, want 777", got)
	}
}
