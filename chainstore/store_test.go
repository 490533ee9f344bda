package chainstore

import (
	"path/filepath"
	"testing"

	"postchain.dev/node/consensus"
	"postchain.dev/node/state"
)

func openTestStore(t *testing.T) *ChainStorage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chain.db")
	cs, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func TestOpen_ProvisionsBuckets(t *testing.T) {
	cs := openTestStore(t)
	if !cs.CheckIntegrity() {
		t.Error("CheckIntegrity() should report true immediately after Open")
	}
}

func TestAccountStorage_RoundTrip(t *testing.T) {
	cs := openTestStore(t)
	var addr consensus.PublicKey
	addr[0] = 0x42

	if _, ok, err := cs.GetAccount(addr); err != nil || ok {
		t.Fatalf("GetAccount() on unset address: ok=%v err=%v, want false, nil", ok, err)
	}

	want := state.AccountState{Balance: 1234, Nonce: 5}
	if err := cs.PutAccount(addr, want); err != nil {
		t.Fatalf("PutAccount() error: %v", err)
	}

	got, ok, err := cs.GetAccount(addr)
	if err != nil {
		t.Fatalf("GetAccount() error: %v", err)
	}
	if !ok || got != want {
		t.Errorf("GetAccount() = %+v, ok=%v, want %+v, true", got, ok, want)
	}
}

func TestBlockStorage_RoundTrip(t *testing.T) {
	cs := openTestStore(t)
	block := consensus.Block{
		Header: consensus.BlockHeader{
			Version:    1,
			Height:     0,
			Difficulty: 1000,
		},
		Body: consensus.BlockBody{
			Proof: consensus.BlockProof{
				PlotMetadata: consensus.BlockPlotMetadata{LeafCount: 1},
			},
		},
	}

	if err := cs.StoreBlock(block); err != nil {
		t.Fatalf("StoreBlock() error: %v", err)
	}

	hash := consensus.HashHeader(block.Header)
	got, ok, err := cs.GetBlockByHash(hash)
	if err != nil {
		t.Fatalf("GetBlockByHash() error: %v", err)
	}
	if !ok {
		t.Fatal("GetBlockByHash() should find the stored block")
	}
	if got.Header.Difficulty != 1000 {
		t.Errorf("stored block difficulty = %d, want 1000", got.Header.Difficulty)
	}

	header, ok, err := cs.GetHeaderByHash(hash)
	if err != nil || !ok {
		t.Fatalf("GetHeaderByHash() ok=%v err=%v", ok, err)
	}
	if header.Difficulty != 1000 {
		t.Errorf("header difficulty = %d, want 1000", header.Difficulty)
	}
}

func TestBlockStorage_MarkOrphaned(t *testing.T) {
	cs := openTestStore(t)
	var hash consensus.Hash32
	hash[0] = 0x7

	if orphaned, err := cs.IsOrphaned(hash); err != nil || orphaned {
		t.Fatalf("IsOrphaned() before marking: %v, %v, want false, nil", orphaned, err)
	}
	if err := cs.MarkOrphaned(hash); err != nil {
		t.Fatalf("MarkOrphaned() error: %v", err)
	}
	if orphaned, err := cs.IsOrphaned(hash); err != nil || !orphaned {
		t.Fatalf("IsOrphaned() after marking: %v, %v, want true, nil", orphaned, err)
	}
}

func TestMetadataStorage_BestBlockHashAndHeight(t *testing.T) {
	cs := openTestStore(t)

	if _, ok, err := cs.GetBestBlockHash(); err != nil || ok {
		t.Fatalf("GetBestBlockHash() before set: ok=%v err=%v, want false, nil", ok, err)
	}

	var hash consensus.Hash32
	hash[0] = 0x9
	if err := cs.SetBestBlockHash(hash); err != nil {
		t.Fatalf("SetBestBlockHash() error: %v", err)
	}
	got, ok, err := cs.GetBestBlockHash()
	if err != nil || !ok || got != hash {
		t.Errorf("GetBestBlockHash() = %v, ok=%v, err=%v, want %v, true, nil", got, ok, err, hash)
	}

	if height, err := cs.GetChainHeight(); err != nil || height != 0 {
		t.Fatalf("GetChainHeight() before set = %d, err=%v, want 0, nil", height, err)
	}
	if err := cs.SetChainHeight(42); err != nil {
		t.Fatalf("SetChainHeight() error: %v", err)
	}
	if height, err := cs.GetChainHeight(); err != nil || height != 42 {
		t.Errorf("GetChainHeight() = %d, err=%v, want 42, nil", height, err)
	}
}

func TestMetadataStorage_CumulativeDifficulty(t *testing.T) {
	cs := openTestStore(t)
	var hash consensus.Hash32
	hash[0] = 0x3

	if _, ok, err := cs.GetCumulativeDifficulty(hash); err != nil || ok {
		t.Fatalf("GetCumulativeDifficulty() before set: ok=%v err=%v, want false, nil", ok, err)
	}
	if err := cs.SetCumulativeDifficulty(hash, 5_000_000); err != nil {
		t.Fatalf("SetCumulativeDifficulty() error: %v", err)
	}
	got, ok, err := cs.GetCumulativeDifficulty(hash)
	if err != nil || !ok || got != 5_000_000 {
		t.Errorf("GetCumulativeDifficulty() = %d, ok=%v, err=%v, want 5000000, true, nil", got, ok, err)
	}
}

func TestWriteBatch_CommitAndRollback(t *testing.T) {
	cs := openTestStore(t)

	batch, err := cs.Begin()
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	if err := batch.Put("metadata", []byte("custom_key"), []byte("value")); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}

	batch2, err := cs.Begin()
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	if err := batch2.Put("metadata", []byte("rolled_back_key"), []byte("value")); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if err := batch2.Rollback(); err != nil {
		t.Fatalf("Rollback() error: %v", err)
	}
}

func TestWriteBatch_UnknownColumnFamily(t *testing.T) {
	cs := openTestStore(t)
	batch, err := cs.Begin()
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	defer batch.Rollback()

	if err := batch.Put("not_a_bucket", []byte("k"), []byte("v")); err == nil {
		t.Error("Put() on an unknown column family should error")
	}
}
