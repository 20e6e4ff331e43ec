package node

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/tolelom/llfchain/config"
	"github.com/tolelom/llfchain/crypto"
)

func newTestConfig(t *testing.T, minimum int64) (*config.Config, crypto.PrivateKey) {
	t.Helper()

	nodePriv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	v1Priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.NodeID = "test-node"
	cfg.DataDir = t.TempDir()
	cfg.RPCPort = 0
	cfg.P2PPort = 0
	cfg.Genesis.CreatorPubKey = nodePriv.Public().Hex()
	cfg.Genesis.CreatorBalance = 1000
	cfg.Genesis.MinimumValidatorStake = minimum
	cfg.Genesis.Validators = []config.ValidatorConfig{
		{PubKey: v1Priv.Public().Hex(), NodeID: "v1", Signature: "sig1"},
	}
	return cfg, nodePriv
}

func TestNewDeclaresGenesisOnEmptyChain(t *testing.T) {
	cfg, priv := newTestConfig(t, 100)

	n, err := New(cfg, priv)
	if err != nil {
		t.Fatal(err)
	}
	defer n.db.Close()

	top, err := n.chain.TopHeight()
	if err != nil {
		t.Fatal(err)
	}
	if top != 0 {
		t.Fatalf("expected genesis committed at height 0, got %d", top)
	}
}

func TestReopeningExistingChainSkipsGenesis(t *testing.T) {
	cfg, priv := newTestConfig(t, 100)

	n1, err := New(cfg, priv)
	if err != nil {
		t.Fatal(err)
	}
	n1.db.Close()

	n2, err := New(cfg, priv)
	if err != nil {
		t.Fatal(err)
	}
	defer n2.db.Close()

	top, err := n2.chain.TopHeight()
	if err != nil {
		t.Fatal(err)
	}
	if top != 0 {
		t.Fatalf("expected still at height 0 after reopen, got %d", top)
	}
}

func TestStartServesRPCAndStopShutsDownCleanly(t *testing.T) {
	cfg, priv := newTestConfig(t, 100)

	n, err := New(cfg, priv)
	if err != nil {
		t.Fatal(err)
	}

	if err := n.Start(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var addr string
	for time.Now().Before(deadline) {
		if a := n.rpcServer.Addr(); a != nil {
			addr = a.String()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("rpc server never bound a port")
	}

	body, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "getBlockHeight"})
	resp, err := http.Post(fmt.Sprintf("http://%s/", addr), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out struct {
		Result int64 `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Result != 0 {
		t.Fatalf("getBlockHeight: got %d want 0", out.Result)
	}

	n.Stop()
}
