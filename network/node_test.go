package network

import (
	"sync"
	"testing"
	"time"

	"github.com/tolelom/llfchain/crypto"
	"github.com/tolelom/llfchain/types"
)

type stubReceiver struct {
	mu  sync.Mutex
	txs []*types.Transaction
}

func (s *stubReceiver) ReceiveTx(tx *types.Transaction, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, tx)
	return nil
}
func (s *stubReceiver) ReceiveCandidate(*types.Block) error                         { return nil }
func (s *stubReceiver) ReceiveVote(*types.Vote) error                              { return nil }
func (s *stubReceiver) ReceiveConfirm(*types.Confirm) error                        { return nil }
func (s *stubReceiver) ReceiveFinalize(*types.Block, *types.BlockHeader) error     { return nil }

func (s *stubReceiver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txs)
}

func TestBusBroadcastsTxToConnectedPeer(t *testing.T) {
	server := &stubReceiver{}
	serverBus := NewBus("server", "127.0.0.1:0", server, nil, nil)
	if err := serverBus.Start(); err != nil {
		t.Fatal(err)
	}
	defer serverBus.Stop()

	clientBus := NewBus("client", "127.0.0.1:0", &stubReceiver{}, nil, nil)
	if err := clientBus.Start(); err != nil {
		t.Fatal(err)
	}
	defer clientBus.Stop()

	addr := serverBus.listener.Addr().String()
	if err := clientBus.AddPeer("server", addr); err != nil {
		t.Fatal(err)
	}

	priv, _, _ := crypto.GenerateKeyPair()
	tx := &types.Transaction{Version: 1, Type: types.TxTransfer, Sender: priv.Public().Hex(), Recipient: "gBxbob", Value: 1, FeeLimit: 1, Timestamp: 1}
	tx.Sign(priv)

	if err := clientBus.BroadcastTx(tx); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for server.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if server.count() != 1 {
		t.Fatalf("server received %d txs, want 1", server.count())
	}
}
