package trie

import (
	"bytes"
	"testing"

	"github.com/tolelom/llfchain/storage"
)

// memDB is a minimal in-memory storage.DB for trie tests.
type memDB struct{ data map[string][]byte }

func newMemDB() *memDB { return &memDB{data: make(map[string][]byte)} }

func (m *memDB) Get(key []byte) ([]byte, error) {
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}
func (m *memDB) Set(key, value []byte) error { m.data[string(key)] = value; return nil }
func (m *memDB) Delete(key []byte) error     { delete(m.data, string(key)); return nil }
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

func TestPutGetSingleKey(t *testing.T) {
	tr := NewEmpty(newMemDB())
	key := Key([]byte("gBx00112233"))
	if _, err := tr.Put(key, []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := tr.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Errorf("Get: got %q want %q", got, "hello")
	}
}

func TestGetMissingKey(t *testing.T) {
	tr := NewEmpty(newMemDB())
	if _, err := tr.Put(Key([]byte("a")), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Get(Key([]byte("b"))); err != ErrNotFound {
		t.Errorf("Get(missing): got err %v want ErrNotFound", err)
	}
}

func TestPutManyKeysAndOverwrite(t *testing.T) {
	tr := NewEmpty(newMemDB())
	entries := map[string]string{
		"alice":   "100",
		"bob":     "200",
		"charlie": "300",
		"dave":    "400",
	}
	keys := make(map[string]string)
	for addr, bal := range entries {
		k := Key([]byte(addr))
		keys[addr] = k
		if _, err := tr.Put(k, []byte(bal)); err != nil {
			t.Fatalf("Put(%s): %v", addr, err)
		}
	}
	for addr, bal := range entries {
		got, err := tr.Get(keys[addr])
		if err != nil {
			t.Fatalf("Get(%s): %v", addr, err)
		}
		if string(got) != bal {
			t.Errorf("Get(%s): got %q want %q", addr, got, bal)
		}
	}

	// Overwrite one key; the rest must be unaffected.
	if _, err := tr.Put(keys["bob"], []byte("999")); err != nil {
		t.Fatal(err)
	}
	got, err := tr.Get(keys["bob"])
	if err != nil || string(got) != "999" {
		t.Errorf("overwrite: got (%q, %v) want (%q, nil)", got, err, "999")
	}
	got, err = tr.Get(keys["alice"])
	if err != nil || string(got) != "100" {
		t.Errorf("alice should be unaffected: got (%q, %v)", got, err)
	}
}

func TestRootStableUnderInsertionOrder(t *testing.T) {
	entries := [][2]string{
		{"alice", "100"},
		{"bob", "200"},
		{"charlie", "300"},
		{"dave", "400"},
		{"erin", "500"},
	}

	buildRoot := func(order []int) string {
		tr := NewEmpty(newMemDB())
		var root string
		for _, i := range order {
			k, v := entries[i]
			r, err := tr.Put(Key([]byte(k)), []byte(v))
			if err != nil {
				t.Fatal(err)
			}
			root = r
		}
		return root
	}

	rootA := buildRoot([]int{0, 1, 2, 3, 4})
	rootB := buildRoot([]int{4, 3, 2, 1, 0})
	rootC := buildRoot([]int{2, 0, 4, 1, 3})

	if rootA != rootB || rootA != rootC {
		t.Errorf("root depends on insertion order: %s, %s, %s", rootA, rootB, rootC)
	}
}

func TestCommitPersistsAndReopens(t *testing.T) {
	db := newMemDB()
	tr := NewEmpty(db)
	key := Key([]byte("gBxfeedface"))
	root, err := tr.Put(key, []byte("persisted"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reopened := New(root, db)
	got, err := reopened.Get(key)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != "persisted" {
		t.Errorf("got %q want %q", got, "persisted")
	}
}

func TestCommitWithNoStoreFails(t *testing.T) {
	tr := NewEmpty(nil)
	if _, err := tr.Put(Key([]byte("x")), []byte("y")); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Commit(); err != ErrNoStore {
		t.Errorf("Commit with no store: got %v want ErrNoStore", err)
	}
}

func TestClearDropsUncommittedNodes(t *testing.T) {
	db := newMemDB()
	tr := NewEmpty(db)
	key := Key([]byte("gBx1"))
	root, err := tr.Put(key, []byte("v"))
	if err != nil {
		t.Fatal(err)
	}
	tr.Clear()
	if tr.Cached(root) {
		t.Error("Clear should drop the pending write cache")
	}
	// The root was never committed, so a fresh read-only trie at that
	// root sees nothing.
	fresh := New(root, db)
	if _, err := fresh.Get(key); err != ErrNotFound {
		t.Errorf("uncommitted node should not be visible after Clear: err=%v", err)
	}
}
