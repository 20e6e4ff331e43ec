package execution

import (
	"encoding/json"
	"testing"

	"github.com/tolelom/llfchain/crypto"
	"github.com/tolelom/llfchain/state"
	"github.com/tolelom/llfchain/storage"
	"github.com/tolelom/llfchain/trie"
	"github.com/tolelom/llfchain/types"
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

const chainVersion = 1

var testRates = FeeRates{Execute: 2, Create: 5, Call: 4}

func newFixture() (*Executor, *state.StateStore) {
	st := state.New(trie.NewEmpty(newMemDB()), 100)
	return New(st, chainVersion, testRates), st
}

func signedTransfer(t *testing.T, priv crypto.PrivateKey, recipient string, value, feeLimit int64) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{
		Version:   chainVersion,
		Type:      types.TxTransfer,
		Sender:    priv.Public().Hex(),
		Recipient: recipient,
		Value:     value,
		FeeLimit:  feeLimit,
		Timestamp: 1,
	}
	tx.Sign(priv)
	return tx
}

func TestPlainTransferCompletes(t *testing.T) {
	ex, st := newFixture()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	sender := pub.Address()
	recipient := "gBxbob"

	if err := st.SetBalance(sender, 1000); err != nil {
		t.Fatal(err)
	}

	tx := signedTransfer(t, priv, recipient, 100, 10)
	receipt, err := ex.Execute(1, 0, tx)
	if err != nil {
		t.Fatal(err)
	}
	if receipt.Status != types.ReceiptCompleted {
		t.Fatalf("status: got %s want completed (err=%s)", receipt.Status, receipt.ErrorMessage)
	}
	if receipt.FeePaid != testRates.Execute {
		t.Errorf("fee paid: got %d want %d", receipt.FeePaid, testRates.Execute)
	}

	senderBal, _ := st.GetBalance(sender)
	wantSender := int64(1000 - 100 - testRates.Execute)
	if senderBal != wantSender {
		t.Errorf("sender balance: got %d want %d", senderBal, wantSender)
	}
	recipientBal, _ := st.GetBalance(recipient)
	if recipientBal != 100 {
		t.Errorf("recipient balance: got %d want 100", recipientBal)
	}
	nonce, _ := st.GetNonce(sender)
	if nonce != 1 {
		t.Errorf("sender nonce: got %d want 1", nonce)
	}
}

func TestPayabilityFailureLeavesNonceAndBalanceUntouched(t *testing.T) {
	ex, st := newFixture()
	priv, pub, _ := crypto.GenerateKeyPair()
	sender := pub.Address()
	st.SetBalance(sender, 50)

	tx := signedTransfer(t, priv, "gBxbob", 100, 10)
	receipt, err := ex.Execute(1, 0, tx)
	if err != nil {
		t.Fatal(err)
	}
	if receipt.Status != types.ReceiptCancel {
		t.Fatalf("status: got %s want cancel", receipt.Status)
	}
	if receipt.FeePaid != 0 {
		t.Errorf("fee paid on an unadmitted tx: got %d want 0", receipt.FeePaid)
	}
	nonce, _ := st.GetNonce(sender)
	if nonce != 0 {
		t.Errorf("nonce should not bump when payability fails: got %d", nonce)
	}
	bal, _ := st.GetBalance(sender)
	if bal != 50 {
		t.Errorf("balance should be untouched: got %d", bal)
	}
}

func TestFeeOverrunCancelsButChargesFullLimit(t *testing.T) {
	ex, st := newFixture()
	priv, pub, _ := crypto.GenerateKeyPair()
	sender := pub.Address()
	contract := "gBccontract0000000000000000000000000001"
	st.SetBalance(sender, 1000)
	if err := st.SetCode(contract, []byte(`{"stub":true}`)); err != nil {
		t.Fatal(err)
	}

	// execute(2) + call(4) = 6 > fee_limit(3)
	tx := signedTransfer(t, priv, contract, 0, 3)
	receipt, err := ex.Execute(1, 0, tx)
	if err != nil {
		t.Fatal(err)
	}
	if receipt.Status != types.ReceiptCancel {
		t.Fatalf("status: got %s want cancel", receipt.Status)
	}
	if receipt.FeePaid != 3 {
		t.Errorf("fee paid: got %d want fee_limit(3)", receipt.FeePaid)
	}
	nonce, _ := st.GetNonce(sender)
	if nonce != 1 {
		t.Errorf("nonce should still bump once admission passed: got %d", nonce)
	}
	recipientBal, _ := st.GetBalance(contract)
	if recipientBal != 0 {
		t.Errorf("contract balance should be unchanged on fee overrun: got %d", recipientBal)
	}
}

func TestCreateInstallsCodeAndChargesCreateFee(t *testing.T) {
	ex, st := newFixture()
	priv, pub, _ := crypto.GenerateKeyPair()
	sender := pub.Address()
	st.SetBalance(sender, 1000)

	msg, _ := json.Marshal(precompileCode{IsPrecompiled: true, Codes: "(module)"})
	tx := &types.Transaction{
		Version:   chainVersion,
		Type:      types.TxCreate,
		Sender:    priv.Public().Hex(),
		Recipient: types.CreateSentinel,
		Value:     0,
		FeeLimit:  20,
		Message:   msg,
		Timestamp: 1,
	}
	tx.Sign(priv)

	receipt, err := ex.Execute(1, 0, tx)
	if err != nil {
		t.Fatal(err)
	}
	if receipt.Status != types.ReceiptCompleted {
		t.Fatalf("status: got %s want completed (err=%s)", receipt.Status, receipt.ErrorMessage)
	}
	if receipt.CreatedAddress == "" {
		t.Fatal("expected a created address")
	}
	if receipt.FeePaid != testRates.Execute+testRates.Create {
		t.Errorf("fee paid: got %d want %d", receipt.FeePaid, testRates.Execute+testRates.Create)
	}
	code, err := st.GetCode(receipt.CreatedAddress)
	if err != nil {
		t.Fatal(err)
	}
	if string(code) != "(module)" {
		t.Errorf("installed code: got %q want %q", code, "(module)")
	}
}

func TestCreateRejectsMalformedMessage(t *testing.T) {
	ex, st := newFixture()
	priv, pub, _ := crypto.GenerateKeyPair()
	sender := pub.Address()
	st.SetBalance(sender, 1000)

	tx := &types.Transaction{
		Version:   chainVersion,
		Type:      types.TxCreate,
		Sender:    priv.Public().Hex(),
		Recipient: types.CreateSentinel,
		FeeLimit:  20,
		Message:   []byte(`"not an object"`),
		Timestamp: 1,
	}
	tx.Sign(priv)

	receipt, err := ex.Execute(1, 0, tx)
	if err != nil {
		t.Fatal(err)
	}
	if receipt.Status != types.ReceiptCancel {
		t.Fatalf("status: got %s want cancel", receipt.Status)
	}
	// execute fee still charged, but not create (failed before ctx.Use(create)).
	if receipt.FeePaid != testRates.Execute {
		t.Errorf("fee paid: got %d want %d", receipt.FeePaid, testRates.Execute)
	}
}

func TestBadSignatureCancelsWithoutDebit(t *testing.T) {
	ex, st := newFixture()
	priv, pub, _ := crypto.GenerateKeyPair()
	sender := pub.Address()
	st.SetBalance(sender, 1000)

	tx := signedTransfer(t, priv, "gBxbob", 10, 10)
	tx.Signature = "00" // corrupt

	receipt, err := ex.Execute(1, 0, tx)
	if err != nil {
		t.Fatal(err)
	}
	if receipt.Status != types.ReceiptCancel {
		t.Fatalf("status: got %s want cancel", receipt.Status)
	}
	bal, _ := st.GetBalance(sender)
	if bal != 1000 {
		t.Errorf("balance should be untouched on signature failure: got %d", bal)
	}
}
