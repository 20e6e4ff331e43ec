// Package chainstore persists finalized blocks and headers and provides
// height/hash lookups, backed by a single ordered key/value store plus one
// read-only trie opened per historical root for tx/vote/receipt retrieval.
package chainstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/llfchain/storage"
	"github.com/tolelom/llfchain/trie"
	"github.com/tolelom/llfchain/types"
)

// ErrNotFound is returned when a height, hash, tx or vote lookup misses.
var ErrNotFound = errors.New("chainstore: not found")

const (
	keyTopHeader = "top_header"
)

func heightKey(height int64) []byte {
	var buf [32]byte
	binary.BigEndian.PutUint64(buf[24:], uint64(height))
	return buf[:]
}

// blockKey is the bare SHA3-256 hex block_hash: every key other than
// top_header, the height index, and the tx/vote lookup indices is a
// content hash, keyed as-is with no prefix.
func blockKey(hash string) []byte { return []byte(hash) }

func txLookupKey(hash string) []byte { return []byte("lookup::tx::" + hash) }

func voteLookupKey(hash string) []byte { return []byte("lookup::vote::" + hash) }

// lookup is the (height, index) pair a tx/vote lookup key maps to.
type lookup struct {
	Height int64 `json:"height"`
	Index  int   `json:"index"`
}

// ChainStore is the persistent block/header index.
type ChainStore struct {
	db storage.DB
}

// New opens a ChainStore over db.
func New(db storage.DB) *ChainStore {
	return &ChainStore{db: db}
}

// TopHeight returns the height of the most recently committed block, or
// -1 if the chain is empty.
func (c *ChainStore) TopHeight() (int64, error) {
	raw, err := c.db.Get([]byte(keyTopHeader))
	if err == storage.ErrNotFound {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}
	if len(raw) != 8 {
		return -1, fmt.Errorf("chainstore: malformed top_header value")
	}
	return int64(binary.BigEndian.Uint64(raw)), nil
}

// Header returns the header at height.
func (c *ChainStore) Header(height int64) (*types.BlockHeader, error) {
	raw, err := c.db.Get(heightKey(height))
	if err == storage.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var h types.BlockHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("chainstore: decode header at %d: %w", height, err)
	}
	return &h, nil
}

// Block returns the full block stored under hash.
func (c *ChainStore) Block(hash string) (*types.Block, error) {
	raw, err := c.db.Get(blockKey(hash))
	if err == storage.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var b types.Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("chainstore: decode block %s: %w", hash, err)
	}
	return &b, nil
}

// BlockByHeight returns the block at height, via its header's block hash.
func (c *ChainStore) BlockByHeight(height int64) (*types.Block, error) {
	h, err := c.Header(height)
	if err != nil {
		return nil, err
	}
	return c.Block(h.BlockHash)
}

// LookupTx returns the (height, index) of tx hash within its finalized
// block.
func (c *ChainStore) LookupTx(txHash string) (height int64, index int, err error) {
	return c.readLookup(txLookupKey(txHash))
}

// LookupVote returns the (height, index) of vote hash within its
// finalized block.
func (c *ChainStore) LookupVote(voteHash string) (height int64, index int, err error) {
	return c.readLookup(voteLookupKey(voteHash))
}

func (c *ChainStore) readLookup(key []byte) (int64, int, error) {
	raw, err := c.db.Get(key)
	if err == storage.ErrNotFound {
		return 0, 0, ErrNotFound
	}
	if err != nil {
		return 0, 0, err
	}
	var l lookup
	if err := json.Unmarshal(raw, &l); err != nil {
		return 0, 0, fmt.Errorf("chainstore: decode lookup: %w", err)
	}
	return l.Height, l.Index, nil
}

// Commit writes the top-header pointer, the height→header index, the
// hash→block record, and every tx/vote lookup entry in one atomic batch.
func (c *ChainStore) Commit(block *types.Block) error {
	batch := c.db.NewBatch()

	headerRaw, err := json.Marshal(block.Header)
	if err != nil {
		return fmt.Errorf("chainstore: encode header: %w", err)
	}
	blockRaw, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("chainstore: encode block: %w", err)
	}

	var top [8]byte
	binary.BigEndian.PutUint64(top[:], uint64(block.Header.Height))
	batch.Set([]byte(keyTopHeader), top[:])
	batch.Set(heightKey(block.Header.Height), headerRaw)
	batch.Set(blockKey(block.Header.BlockHash), blockRaw)

	for i, tx := range block.Transactions {
		raw, err := json.Marshal(lookup{Height: block.Header.Height, Index: i})
		if err != nil {
			return fmt.Errorf("chainstore: encode tx lookup: %w", err)
		}
		batch.Set(txLookupKey(tx.Hash), raw)
	}
	for i, v := range block.Votes {
		raw, err := json.Marshal(lookup{Height: block.Header.Height, Index: i})
		if err != nil {
			return fmt.Errorf("chainstore: encode vote lookup: %w", err)
		}
		batch.Set(voteLookupKey(v.Hash), raw)
	}

	return batch.Write()
}

// OpenTxTrie opens a read-only trie at header.TxRoot for reconstructing
// one transaction by index.
func (c *ChainStore) OpenTxTrie(header *types.BlockHeader) *trie.Trie {
	return trie.New(header.TxRoot, c.db)
}

// OpenVoteTrie opens a read-only trie at header.VoteRoot.
func (c *ChainStore) OpenVoteTrie(header *types.BlockHeader) *trie.Trie {
	return trie.New(header.VoteRoot, c.db)
}

// OpenReceiptTrie opens a read-only trie at header.ReceiptRoot.
func (c *ChainStore) OpenReceiptTrie(header *types.BlockHeader) *trie.Trie {
	return trie.New(header.ReceiptRoot, c.db)
}

// IndexKey returns the fixed-width trie key for the i-th item of a
// tx/vote/receipt list, trie_key(i_as_32B) in the reference layout.
func IndexKey(i int) string {
	var buf [32]byte
	binary.BigEndian.PutUint64(buf[24:], uint64(i))
	return trie.Key(buf[:])
}

// ComputeTxRoot builds a transient, hash-only trie over an ordered
// transaction list the same way a block's persisted tx trie is built, and
// returns its root. Used both to stamp a proposed candidate's tx_root and
// to verify one already claimed by a header, without touching any backing
// store.
func ComputeTxRoot(txs []*types.Transaction) (string, error) {
	tr := trie.NewEmpty(nil)
	for i, tx := range txs {
		raw, err := json.Marshal(tx)
		if err != nil {
			return "", fmt.Errorf("chainstore: encode tx %d: %w", i, err)
		}
		if _, err := tr.Put(IndexKey(i), raw); err != nil {
			return "", err
		}
	}
	return tr.Root(), nil
}

// ComputeVoteRoot builds a transient, hash-only trie over an ordered vote
// list and returns its root.
func ComputeVoteRoot(votes []*types.Vote) (string, error) {
	tr := trie.NewEmpty(nil)
	for i, v := range votes {
		raw, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("chainstore: encode vote %d: %w", i, err)
		}
		if _, err := tr.Put(IndexKey(i), raw); err != nil {
			return "", err
		}
	}
	return tr.Root(), nil
}
