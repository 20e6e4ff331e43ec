package state

import (
	"testing"

	"github.com/tolelom/llfchain/storage"
	"github.com/tolelom/llfchain/trie"
)

type memDB struct{ data map[string][]byte }

func newMemDB() *memDB { return &memDB{data: make(map[string][]byte)} }

func (m *memDB) Get(key []byte) ([]byte, error) {
	v, ok := m.data[string(key)]
	if !ok {
		return nil, trie.ErrNotFound
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

func newStore() *StateStore {
	return New(trie.NewEmpty(newMemDB()), 100)
}

func TestBalanceRoundTrip(t *testing.T) {
	s := newStore()
	if err := s.SetBalance("gBxalice", 500); err != nil {
		t.Fatal(err)
	}
	bal, err := s.GetBalance("gBxalice")
	if err != nil || bal != 500 {
		t.Fatalf("GetBalance: got (%d, %v) want (500, nil)", bal, err)
	}
}

func TestComputeBalanceRejectsNegative(t *testing.T) {
	s := newStore()
	if err := s.SetBalance("gBxalice", 10); err != nil {
		t.Fatal(err)
	}
	if err := s.ComputeBalance("gBxalice", -20); err == nil {
		t.Error("expected ValidationError for negative balance")
	}
	bal, _ := s.GetBalance("gBxalice")
	if bal != 10 {
		t.Errorf("balance should be unchanged after rejected debit: got %d", bal)
	}
}

func TestIncreaseNonce(t *testing.T) {
	s := newStore()
	for i := 0; i < 3; i++ {
		if err := s.IncreaseNonce("gBxalice"); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.GetNonce("gBxalice")
	if err != nil || n != 3 {
		t.Fatalf("GetNonce: got (%d, %v) want (3, nil)", n, err)
	}
}

func TestSetDelegatedMovesBalanceAndAccumulates(t *testing.T) {
	s := newStore()
	if err := s.SetBalance("gBxalice", 1000); err != nil {
		t.Fatal(err)
	}
	if err := s.SetDelegated("gBxalice", "gBxbob", 100); err != nil {
		t.Fatal(err)
	}
	if err := s.SetDelegated("gBxalice", "gBxbob", 50); err != nil {
		t.Fatal(err)
	}

	bal, _ := s.GetBalance("gBxalice")
	if bal != 850 {
		t.Errorf("sender balance: got %d want 850", bal)
	}
	staked, _ := s.GetDelegatedBalance("gBxbob")
	if staked != 150 {
		t.Errorf("recipient delegated balance: got %d want 150", staked)
	}

	delegations, err := s.GetDelegated("gBxalice")
	if err != nil {
		t.Fatal(err)
	}
	if len(delegations) != 1 || delegations[0].Amount != 150 {
		t.Errorf("delegation record should accumulate into one entry of 150, got %+v", delegations)
	}
}

func TestDelegationKeyCollisionRejected(t *testing.T) {
	s := newStore()
	key := "deadbeef"
	if err := s.putDelegationRecord(key, "gBxalice", "gBxbob", 10); err != nil {
		t.Fatal(err)
	}
	// Same key, different (from, to) pair: a hash collision the store
	// must reject rather than silently merge.
	if err := s.putDelegationRecord(key, "gBxcarol", "gBxdave", 5); err == nil {
		t.Error("expected ValidationError on delegation key collision")
	}
}

func TestRegisterValidatorBelowMinimumIsNoop(t *testing.T) {
	s := newStore()
	s.SetBalance("gBxalice", 1000)
	if err := s.SetDelegated("gBxalice", "gBxalice", 50); err != nil { // below minimum=100
		t.Fatal(err)
	}
	if err := s.RegisterValidator("gBxalice", "node-1", "sig"); err != nil {
		t.Fatal(err)
	}
	set, err := s.GetValidatorSet()
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 0 {
		t.Errorf("validator should not be registered below minimum: %+v", set)
	}
}

func TestRegisterValidatorAtMinimumSucceeds(t *testing.T) {
	s := newStore()
	s.SetBalance("gBxalice", 1000)
	if err := s.SetDelegated("gBxalice", "gBxalice", 100); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterValidator("gBxalice", "node-1", "sig"); err != nil {
		t.Fatal(err)
	}
	ok, err := s.IsValidator("gBxalice")
	if err != nil || !ok {
		t.Fatalf("IsValidator: got (%v, %v) want (true, nil)", ok, err)
	}
	n, f, err := s.GetValidatorCount()
	if err != nil || n != 1 || f != 0 {
		t.Fatalf("GetValidatorCount: got (%d, %d, %v) want (1, 0, nil)", n, f, err)
	}
}

func TestGetAccountDelegateOnlyCountsSelfDelegation(t *testing.T) {
	s := newStore()
	s.SetBalance("gBxalice", 1000)
	s.SetDelegated("gBxalice", "gBxalice", 40)
	s.SetDelegated("gBxalice", "gBxbob", 30)

	self, err := s.GetAccountDelegate("gBxalice")
	if err != nil {
		t.Fatal(err)
	}
	if self != 40 {
		t.Errorf("GetAccountDelegate should only sum self-delegations: got %d want 40", self)
	}
}

func TestCommitThenReopenYieldsSameAccounts(t *testing.T) {
	db := newMemDB()
	tr := trie.NewEmpty(db)
	s := New(tr, 100)
	s.SetBalance("gBxalice", 777)
	root, err := s.Commit()
	if err != nil {
		t.Fatal(err)
	}

	reopened := New(trie.New(root, db), 100)
	bal, err := reopened.GetBalance("gBxalice")
	if err != nil || bal != 777 {
		t.Fatalf("GetBalance after reopen: got (%d, %v) want (777, nil)", bal, err)
	}
}

func TestClearDropsCachesAndUncommittedWrites(t *testing.T) {
	db := newMemDB()
	tr := trie.NewEmpty(db)
	s := New(tr, 100)
	s.SetBalance("gBxalice", 1)
	s.Clear()

	fresh := New(trie.NewEmpty(db), 100)
	bal, err := fresh.GetBalance("gBxalice")
	if err != nil || bal != 0 {
		t.Fatalf("uncommitted write should not survive Clear: got (%d, %v)", bal, err)
	}
}
