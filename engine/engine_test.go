package engine

import (
	"testing"
	"time"

	"github.com/tolelom/llfchain/chainstore"
	"github.com/tolelom/llfchain/crypto"
	"github.com/tolelom/llfchain/events"
	"github.com/tolelom/llfchain/execution"
	"github.com/tolelom/llfchain/internal/testutil"
	"github.com/tolelom/llfchain/state"
	"github.com/tolelom/llfchain/trie"
	"github.com/tolelom/llfchain/types"
)

const chainVersion = 1

func newFixture(t *testing.T) (*BlockEngine, *state.StateStore, *chainstore.ChainStore, *testutil.MemDB) {
	t.Helper()
	db := testutil.NewMemDB()
	st := state.New(trie.NewEmpty(db), 100)
	cs := chainstore.New(db)
	exec := execution.New(st, chainVersion, execution.FeeRates{Execute: 2, Create: 5, Call: 4})
	return New(db, st, cs, exec), st, cs, db
}

func signedVote(t *testing.T, priv crypto.PrivateKey, height int64, candidateHash string) *types.Vote {
	t.Helper()
	v := &types.Vote{Version: chainVersion, BlockHeight: height, CandidateHash: candidateHash, Creator: priv.Public().Hex()}
	v.Sign(priv)
	return v
}

func TestExecuteAndCommitAppliesRewardsAndPersists(t *testing.T) {
	eng, st, cs, _ := newFixture(t)

	senderPriv, senderPub, _ := crypto.GenerateKeyPair()
	sender := senderPub.Address()
	st.SetBalance(sender, 1000)

	voterPriv, _, _ := crypto.GenerateKeyPair()
	voterAddr := voterPriv.Public().Address()

	tx := &types.Transaction{
		Version: chainVersion, Type: types.TxTransfer,
		Sender: senderPriv.Public().Hex(), Recipient: "gBxbob",
		Value: 100, FeeLimit: 10, Timestamp: 1,
	}
	tx.Sign(senderPriv)

	header := types.BlockHeader{Height: 1, Version: chainVersion, ChainID: "test"}
	header.CandidateHash = header.ComputeCandidateHash()
	block := &types.Block{
		Header:       header,
		Transactions: []*types.Transaction{tx},
		Votes:        []*types.Vote{signedVote(t, voterPriv, 1, header.CandidateHash)},
	}

	executed, receipts, err := eng.Execute(block)
	if err != nil {
		t.Fatal(err)
	}
	if len(receipts) != 1 || receipts[0].Status != types.ReceiptCompleted {
		t.Fatalf("receipts: got %+v", receipts)
	}
	if executed.Header.ReceiptRoot == "" || executed.Header.StateRoot == "" {
		t.Fatalf("expected roots to be populated: %+v", executed.Header)
	}

	voterBal, _ := st.GetBalance(voterAddr)
	if voterBal != receipts[0].FeePaid {
		t.Errorf("voter reward: got %d want %d", voterBal, receipts[0].FeePaid)
	}

	if err := eng.Commit(executed); err != nil {
		t.Fatal(err)
	}

	top, err := cs.TopHeight()
	if err != nil || top != 1 {
		t.Fatalf("TopHeight after commit: got (%d, %v) want (1, nil)", top, err)
	}
}

func TestExecuteRejectsWrongHeight(t *testing.T) {
	eng, _, _, _ := newFixture(t)
	block := &types.Block{Header: types.BlockHeader{Height: 5}}
	if _, _, err := eng.Execute(block); err == nil {
		t.Error("expected a height mismatch error")
	}
}

func TestNoVotersSkipsRewardWithoutError(t *testing.T) {
	eng, st, _, _ := newFixture(t)
	senderPriv, senderPub, _ := crypto.GenerateKeyPair()
	st.SetBalance(senderPub.Address(), 1000)

	tx := &types.Transaction{
		Version: chainVersion, Type: types.TxTransfer,
		Sender: senderPriv.Public().Hex(), Recipient: "gBxbob",
		Value: 10, FeeLimit: 10, Timestamp: 1,
	}
	tx.Sign(senderPriv)

	header := types.BlockHeader{Height: 1, Version: chainVersion}
	header.CandidateHash = header.ComputeCandidateHash()
	block := &types.Block{Header: header, Transactions: []*types.Transaction{tx}}

	if _, _, err := eng.Execute(block); err != nil {
		t.Fatal(err)
	}
}

func TestExecuteWithTimeoutSucceedsWellWithinBudget(t *testing.T) {
	eng, st, _, _ := newFixture(t)
	senderPriv, senderPub, _ := crypto.GenerateKeyPair()
	st.SetBalance(senderPub.Address(), 1000)

	tx := &types.Transaction{
		Version: chainVersion, Type: types.TxTransfer,
		Sender: senderPriv.Public().Hex(), Recipient: "gBxbob",
		Value: 10, FeeLimit: 10, Timestamp: 1,
	}
	tx.Sign(senderPriv)

	header := types.BlockHeader{Height: 1, Version: chainVersion}
	header.CandidateHash = header.ComputeCandidateHash()
	block := &types.Block{Header: header, Transactions: []*types.Transaction{tx}}

	if _, _, err := eng.ExecuteWithTimeout(block, time.Second); err != nil {
		t.Fatal(err)
	}
}

func TestCommitEmitsBlockAndTxEvents(t *testing.T) {
	eng, st, _, _ := newFixture(t)

	emitter := events.NewEmitter()
	var seen []events.EventType
	emitter.Subscribe(events.EventTxExecuted, func(ev events.Event) { seen = append(seen, ev.Type) })
	emitter.Subscribe(events.EventBlockCommit, func(ev events.Event) { seen = append(seen, ev.Type) })
	eng.SetEmitter(emitter)

	senderPriv, senderPub, _ := crypto.GenerateKeyPair()
	st.SetBalance(senderPub.Address(), 1000)
	tx := &types.Transaction{
		Version: chainVersion, Type: types.TxTransfer,
		Sender: senderPriv.Public().Hex(), Recipient: "gBxbob",
		Value: 10, FeeLimit: 10, Timestamp: 1,
	}
	tx.Sign(senderPriv)

	header := types.BlockHeader{Height: 1, Version: chainVersion}
	header.CandidateHash = header.ComputeCandidateHash()
	block := &types.Block{Header: header, Transactions: []*types.Transaction{tx}}

	executed, _, err := eng.Execute(block)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Commit(executed); err != nil {
		t.Fatal(err)
	}

	if len(seen) != 2 || seen[0] != events.EventTxExecuted || seen[1] != events.EventBlockCommit {
		t.Fatalf("expected [tx_executed, block_commit], got %v", seen)
	}
}
