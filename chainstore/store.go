// Package chainstore provides the durable, bbolt-backed implementation of
// the storage contracts the core depends on: accounts, blocks, and chain
// metadata, each in its own bucket.
package chainstore

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"postchain.dev/node/consensus"
	"postchain.dev/node/state"
)

var (
	bucketAccounts = []byte("accounts")
	bucketBlocks   = []byte("blocks")
	bucketMetadata = []byte("metadata")
)

var (
	metaBestBlockHash        = []byte("best_block_hash")
	metaChainHeight          = []byte("chain_height")
	metaCumulativeDifficulty = []byte("cumulative_difficulty:")
)

// AccountStorage persists account state keyed by address.
type AccountStorage interface {
	GetAccount(addr consensus.PublicKey) (state.AccountState, bool, error)
	PutAccount(addr consensus.PublicKey, acc state.AccountState) error
}

// BlockStorage persists full blocks and their headers, and tracks orphan
// status for reverted blocks.
type BlockStorage interface {
	GetBlockByHash(hash consensus.Hash32) (consensus.Block, bool, error)
	GetHeaderByHash(hash consensus.Hash32) (consensus.BlockHeader, bool, error)
	StoreBlock(block consensus.Block) error
	MarkOrphaned(hash consensus.Hash32) error
}

// MetadataStorage tracks chain-tip bookkeeping: best block, height, and
// per-block cumulative difficulty.
type MetadataStorage interface {
	GetBestBlockHash() (consensus.Hash32, bool, error)
	SetBestBlockHash(hash consensus.Hash32) error
	GetChainHeight() (consensus.Height, error)
	SetChainHeight(height consensus.Height) error
	GetCumulativeDifficulty(hash consensus.Hash32) (consensus.Difficulty, bool, error)
	SetCumulativeDifficulty(hash consensus.Hash32, diff consensus.Difficulty) error
}

// WriteBatch stages a set of bucket writes for atomic commit. Its zero
// value is not usable; obtain one from ChainStorage.Begin.
type WriteBatch struct {
	tx *bolt.Tx
}

// Put stages a write of value under key in the named column family.
func (b *WriteBatch) Put(cf string, key, value []byte) error {
	bucket := b.tx.Bucket([]byte(cf))
	if bucket == nil {
		return fmt.Errorf("chainstore: unknown column family %q", cf)
	}
	return bucket.Put(key, value)
}

// Commit finalizes every staged write atomically.
func (b *WriteBatch) Commit() error {
	return b.tx.Commit()
}

// Rollback discards every staged write.
func (b *WriteBatch) Rollback() error {
	return b.tx.Rollback()
}

// ChainStorage is the bbolt-backed store satisfying AccountStorage,
// BlockStorage, and MetadataStorage, plus raw write-batch access for
// callers that need to stage writes across column families atomically.
type ChainStorage struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a bbolt database at path, provisioning
// the accounts/blocks/metadata buckets.
func Open(path string) (*ChainStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("chainstore: path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("chainstore: create data dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("chainstore: open bbolt: %w", err)
	}

	cs := &ChainStorage{db: db}
	if err := cs.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketAccounts, bucketBlocks, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return cs, nil
}

// Close releases the underlying database handle.
func (cs *ChainStorage) Close() error {
	if cs == nil || cs.db == nil {
		return nil
	}
	return cs.db.Close()
}

// Begin starts a writable transaction and returns a WriteBatch over it.
// Callers must Commit or Rollback.
func (cs *ChainStorage) Begin() (*WriteBatch, error) {
	tx, err := cs.db.Begin(true)
	if err != nil {
		return nil, err
	}
	return &WriteBatch{tx: tx}, nil
}

// CheckIntegrity reports whether the accounts, blocks and metadata buckets
// are all present, satisfying state.ConsistencyChecker. It does not run
// bbolt's page-level consistency check.
func (cs *ChainStorage) CheckIntegrity() bool {
	err := cs.db.View(func(tx *bolt.Tx) error {
		for _, name := range []string{"accounts", "blocks", "metadata"} {
			if tx.Bucket([]byte(name)) == nil {
				return fmt.Errorf("missing bucket %q", name)
			}
		}
		return nil
	})
	return err == nil
}

// --- AccountStorage ---

func (cs *ChainStorage) GetAccount(addr consensus.PublicKey) (state.AccountState, bool, error) {
	var out state.AccountState
	var ok bool
	err := cs.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketAccounts).Get(addr[:])
		if v == nil {
			return nil
		}
		acc, err := decodeAccount(v)
		if err != nil {
			return err
		}
		out = acc
		ok = true
		return nil
	})
	return out, ok, err
}

func (cs *ChainStorage) PutAccount(addr consensus.PublicKey, acc state.AccountState) error {
	val := encodeAccount(acc)
	return cs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).Put(addr[:], val)
	})
}

func encodeAccount(acc state.AccountState) []byte {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out[0:8], uint64(acc.Balance))
	binary.LittleEndian.PutUint64(out[8:16], uint64(acc.Nonce))
	return out
}

func decodeAccount(b []byte) (state.AccountState, error) {
	if len(b) != 16 {
		return state.AccountState{}, fmt.Errorf("chainstore: account record: want 16 bytes, got %d", len(b))
	}
	return state.AccountState{
		Balance: int64(binary.LittleEndian.Uint64(b[0:8])),
		Nonce:   int64(binary.LittleEndian.Uint64(b[8:16])),
	}, nil
}

// --- BlockStorage ---

func (cs *ChainStorage) GetBlockByHash(hash consensus.Hash32) (consensus.Block, bool, error) {
	var out consensus.Block
	var ok bool
	err := cs.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlocks).Get(hash[:])
		if v == nil {
			return nil
		}
		block, err := consensus.DecodeBlock(v)
		if err != nil {
			return err
		}
		out = block
		ok = true
		return nil
	})
	return out, ok, err
}

func (cs *ChainStorage) GetHeaderByHash(hash consensus.Hash32) (consensus.BlockHeader, bool, error) {
	block, ok, err := cs.GetBlockByHash(hash)
	if err != nil || !ok {
		return consensus.BlockHeader{}, ok, err
	}
	return block.Header, true, nil
}

func (cs *ChainStorage) StoreBlock(block consensus.Block) error {
	hash := consensus.HashHeader(block.Header)
	encoded, err := consensus.EncodeBlock(block)
	if err != nil {
		return fmt.Errorf("chainstore: encode block: %w", err)
	}
	return cs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlocks).Put(hash[:], encoded)
	})
}

// MarkOrphaned records that the block at hash has been reverted off the
// best chain. Orphan status is tracked in the metadata bucket under a
// per-hash key rather than a separate bucket, since it is the only
// per-block flag this store needs.
func (cs *ChainStorage) MarkOrphaned(hash consensus.Hash32) error {
	key := append([]byte("orphaned:"), hash[:]...)
	return cs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put(key, []byte{1})
	})
}

// IsOrphaned reports whether hash was previously marked orphaned.
func (cs *ChainStorage) IsOrphaned(hash consensus.Hash32) (bool, error) {
	key := append([]byte("orphaned:"), hash[:]...)
	var out bool
	err := cs.db.View(func(tx *bolt.Tx) error {
		out = tx.Bucket(bucketMetadata).Get(key) != nil
		return nil
	})
	return out, err
}

// --- MetadataStorage ---

func (cs *ChainStorage) GetBestBlockHash() (consensus.Hash32, bool, error) {
	var out consensus.Hash32
	var ok bool
	err := cs.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMetadata).Get(metaBestBlockHash)
		if v == nil {
			return nil
		}
		if len(v) != 32 {
			return fmt.Errorf("chainstore: best_block_hash: want 32 bytes, got %d", len(v))
		}
		copy(out[:], v)
		ok = true
		return nil
	})
	return out, ok, err
}

func (cs *ChainStorage) SetBestBlockHash(hash consensus.Hash32) error {
	return cs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put(metaBestBlockHash, hash[:])
	})
}

func (cs *ChainStorage) GetChainHeight() (consensus.Height, error) {
	var out consensus.Height
	err := cs.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMetadata).Get(metaChainHeight)
		if v == nil {
			return nil
		}
		if len(v) != 8 {
			return fmt.Errorf("chainstore: chain_height: want 8 bytes, got %d", len(v))
		}
		out = int64(binary.LittleEndian.Uint64(v))
		return nil
	})
	return out, err
}

func (cs *ChainStorage) SetChainHeight(height consensus.Height) error {
	val := make([]byte, 8)
	binary.LittleEndian.PutUint64(val, uint64(height))
	return cs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put(metaChainHeight, val)
	})
}

func (cs *ChainStorage) GetCumulativeDifficulty(hash consensus.Hash32) (consensus.Difficulty, bool, error) {
	key := append(append([]byte(nil), metaCumulativeDifficulty...), hash[:]...)
	var out consensus.Difficulty
	var ok bool
	err := cs.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMetadata).Get(key)
		if v == nil {
			return nil
		}
		if len(v) != 8 {
			return fmt.Errorf("chainstore: cumulative_difficulty: want 8 bytes, got %d", len(v))
		}
		out = int64(binary.LittleEndian.Uint64(v))
		ok = true
		return nil
	})
	return out, ok, err
}

func (cs *ChainStorage) SetCumulativeDifficulty(hash consensus.Hash32, diff consensus.Difficulty) error {
	key := append(append([]byte(nil), metaCumulativeDifficulty...), hash[:]...)
	val := make([]byte, 8)
	binary.LittleEndian.PutUint64(val, uint64(diff))
	return cs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put(key, val)
	})
}
