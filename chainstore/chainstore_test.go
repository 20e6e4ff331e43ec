package chainstore

import (
	"testing"

	"github.com/tolelom/llfchain/storage"
	"github.com/tolelom/llfchain/types"
)

type memDB struct{ data map[string][]byte }

func newMemDB() *memDB { return &memDB{data: make(map[string][]byte)} }

func (m *memDB) Get(key []byte) ([]byte, error) {
	v, ok := m.data[string(key)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}
func (m *memDB) Set(key, value []byte) error                { m.data[string(key)] = value; return nil }
func (m *memDB) Delete(key []byte) error                    { delete(m.data, string(key)); return nil }
func (m *memDB) NewIterator(prefix []byte) storage.Iterator { return nil }
func (m *memDB) NewBatch() storage.Batch                    { return &memBatch{db: m} }
func (m *memDB) Close() error                                { return nil }

type memBatch struct {
	db  *memDB
	ops map[string][]byte
}

func (b *memBatch) Set(key, value []byte) {
	if b.ops == nil {
		b.ops = make(map[string][]byte)
	}
	b.ops[string(key)] = value
}
func (b *memBatch) Delete(key []byte) { b.ops[string(key)] = nil }
func (b *memBatch) Reset()            { b.ops = nil }
func (b *memBatch) Write() error {
	for k, v := range b.ops {
		b.db.data[k] = v
	}
	return nil
}

func sampleBlock(height int64) *types.Block {
	h := types.BlockHeader{Height: height, BlockHash: "hash-at-height", TxRoot: "txroot"}
	return &types.Block{
		Header:       h,
		Transactions: []*types.Transaction{{Hash: "tx1"}, {Hash: "tx2"}},
		Votes:        []*types.Vote{{Hash: "vote1"}},
	}
}

func TestCommitAndRetrieveBlock(t *testing.T) {
	cs := New(newMemDB())
	block := sampleBlock(1)
	if err := cs.Commit(block); err != nil {
		t.Fatal(err)
	}

	top, err := cs.TopHeight()
	if err != nil || top != 1 {
		t.Fatalf("TopHeight: got (%d, %v) want (1, nil)", top, err)
	}

	header, err := cs.Header(1)
	if err != nil {
		t.Fatal(err)
	}
	if header.BlockHash != "hash-at-height" {
		t.Errorf("Header: got %+v", header)
	}

	got, err := cs.Block("hash-at-height")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Transactions) != 2 {
		t.Errorf("Block: got %d txs want 2", len(got.Transactions))
	}

	byHeight, err := cs.BlockByHeight(1)
	if err != nil || byHeight.Header.BlockHash != "hash-at-height" {
		t.Fatalf("BlockByHeight: got (%+v, %v)", byHeight, err)
	}
}

func TestTopHeightEmptyChain(t *testing.T) {
	cs := New(newMemDB())
	top, err := cs.TopHeight()
	if err != nil || top != -1 {
		t.Fatalf("TopHeight on empty chain: got (%d, %v) want (-1, nil)", top, err)
	}
}

func TestLookupTxAndVote(t *testing.T) {
	cs := New(newMemDB())
	block := sampleBlock(5)
	if err := cs.Commit(block); err != nil {
		t.Fatal(err)
	}

	height, idx, err := cs.LookupTx("tx2")
	if err != nil || height != 5 || idx != 1 {
		t.Fatalf("LookupTx: got (%d, %d, %v) want (5, 1, nil)", height, idx, err)
	}

	height, idx, err = cs.LookupVote("vote1")
	if err != nil || height != 5 || idx != 0 {
		t.Fatalf("LookupVote: got (%d, %d, %v) want (5, 0, nil)", height, idx, err)
	}

	if _, _, err := cs.LookupTx("nonexistent"); err != ErrNotFound {
		t.Errorf("LookupTx(missing): got %v want ErrNotFound", err)
	}
}

func TestHeaderNotFound(t *testing.T) {
	cs := New(newMemDB())
	if _, err := cs.Header(99); err != ErrNotFound {
		t.Errorf("Header(missing): got %v want ErrNotFound", err)
	}
}
