package ledger

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/duskledger/walletd/internal/walleterr"
)

var (
	blocksBucket   = []byte("blocks")
	txoIndexBucket = []byte("txo_public_key_index")
	metaBucket     = []byte("meta")
	tailKey        = []byte("tail_index")
)

// Store is the append-only Ledger Store, backed by bbolt the way
// SPEC_FULL.md's domain-stack table assigns it: one bucket of blocks
// keyed by big-endian index, one secondary index from TXO public key
// to (block_index, output_position) built as part of the append path
// so reads are consistent the instant AppendBlock returns.
type Store struct {
	db *bbolt.DB
	mu sync.RWMutex
}

// Open creates or opens the ledger store at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.DatabaseBusy, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{blocksBucket, txoIndexBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func indexKey(index uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, index)
	return b
}

// txoIndexEntry is the value stored in txoIndexBucket.
type txoIndexEntry struct {
	BlockIndex uint64 `json:"block_index"`
	Position   int    `json:"position"`
}

// TailIndex returns the highest appended block index and true, or
// (0, false) if the store is empty.
func (s *Store) TailIndex() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var idx uint64
	var ok bool
	_ = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(metaBucket).Get(tailKey)
		if v == nil {
			return nil
		}
		idx = binary.BigEndian.Uint64(v)
		ok = true
		return nil
	})
	return idx, ok
}

// AppendBlock validates contiguity (index == tail+1, parent_id ==
// tail.id) and persists block, updating the secondary TXO-public-key
// index in the same transaction.
func (s *Store) AppendBlock(block *Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		blocks := tx.Bucket(blocksBucket)
		txoIdx := tx.Bucket(txoIndexBucket)

		tailRaw := meta.Get(tailKey)
		if tailRaw == nil {
			if block.Index != 0 {
				return walleterr.New(walleterr.NonContiguousAppend, fmt.Sprintf("expected genesis block index 0, got %d", block.Index))
			}
		} else {
			tailIndex := binary.BigEndian.Uint64(tailRaw)
			tailRawBlock := blocks.Get(indexKey(tailIndex))
			var tail Block
			if err := json.Unmarshal(tailRawBlock, &tail); err != nil {
				return fmt.Errorf("decode tail block: %w", err)
			}
			if block.Index != tailIndex+1 {
				return walleterr.New(walleterr.NonContiguousAppend, fmt.Sprintf("expected index %d, got %d", tailIndex+1, block.Index))
			}
			if !bytes.Equal(block.ParentID, tail.ID) {
				return walleterr.New(walleterr.NonContiguousAppend, "parent_id does not match current tail")
			}
		}

		encoded, err := json.Marshal(block)
		if err != nil {
			return fmt.Errorf("encode block: %w", err)
		}
		if err := blocks.Put(indexKey(block.Index), encoded); err != nil {
			return fmt.Errorf("put block: %w", err)
		}
		if err := meta.Put(tailKey, indexKey(block.Index)); err != nil {
			return fmt.Errorf("advance tail: %w", err)
		}

		for pos, out := range block.Outputs {
			entry, err := json.Marshal(txoIndexEntry{BlockIndex: block.Index, Position: pos})
			if err != nil {
				return fmt.Errorf("encode txo index entry: %w", err)
			}
			if err := txoIdx.Put(out.PublicKey, entry); err != nil {
				return fmt.Errorf("put txo index entry: %w", err)
			}
		}
		return nil
	})
}

// GetBlockByIndex fetches one block by its index.
func (s *Store) GetBlockByIndex(index uint64) (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var block Block
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(blocksBucket).Get(indexKey(index))
		if raw == nil {
			return walleterr.New(walleterr.LedgerValidationFailed, fmt.Sprintf("no block at index %d", index))
		}
		return json.Unmarshal(raw, &block)
	})
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// GetBlockByTxoPublicKey resolves a TXO's one-time public key to the
// block that minted it, the lookup get_block supports when called with
// txo_public_key instead of block_index.
func (s *Store) GetBlockByTxoPublicKey(publicKey []byte) (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entry txoIndexEntry
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(txoIndexBucket).Get(publicKey)
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &entry)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, walleterr.New(walleterr.TxoNotFound, "no block indexes this txo public key")
	}
	return s.GetBlockByIndex(entry.BlockIndex)
}

// RingCandidate is one TXO eligible for inclusion in an anonymity ring:
// its target key plus the membership proof material (its block's
// merkle root) the builder attaches per spec.md §4.7 step 4.
type RingCandidate struct {
	PublicKey   []byte
	TargetKey   []byte
	BlockIndex  uint64
	MerkleRoot  []byte
}

// RingCandidatesAtOrBefore returns every TXO minted at a block index <=
// max, the candidate pool internal/txbuilder samples anonymity rings
// from. This is a full scan of the ledger store; production
// deployments at chain scale would maintain a separate random-access
// sample index, but nothing in this spec's testable properties
// requires it.
func (s *Store) RingCandidatesAtOrBefore(max uint64) ([]RingCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []RingCandidate
	err := s.db.View(func(tx *bbolt.Tx) error {
		blocks := tx.Bucket(blocksBucket)
		return blocks.ForEach(func(k, v []byte) error {
			index := binary.BigEndian.Uint64(k)
			if index > max {
				return nil
			}
			var block Block
			if err := json.Unmarshal(v, &block); err != nil {
				return fmt.Errorf("decode block %d: %w", index, err)
			}
			for _, o := range block.Outputs {
				out = append(out, RingCandidate{
					PublicKey:  o.PublicKey,
					TargetKey:  o.TargetKey,
					BlockIndex: index,
					MerkleRoot: block.MerkleRoot,
				})
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
