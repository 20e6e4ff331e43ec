package config

import (
	"testing"

	"github.com/tolelom/llfchain/chainstore"
	"github.com/tolelom/llfchain/crypto"
	"github.com/tolelom/llfchain/engine"
	"github.com/tolelom/llfchain/execution"
	"github.com/tolelom/llfchain/internal/testutil"
	"github.com/tolelom/llfchain/state"
	"github.com/tolelom/llfchain/trie"
)

func newGenesisFixture(t *testing.T, minimum int64) (*Config, *state.StateStore, *engine.BlockEngine) {
	t.Helper()
	db := testutil.NewMemDB()
	st := state.New(trie.NewEmpty(db), minimum)
	cs := chainstore.New(db)
	exec := execution.New(st, 1, execution.FeeRates{Execute: 2, Create: 5, Call: 4})
	eng := engine.New(db, st, cs, exec)

	creatorPriv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	v1Priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	v2Priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Genesis.CreatorPubKey = creatorPriv.Public().Hex()
	cfg.Genesis.CreatorBalance = 1000
	cfg.Genesis.MinimumValidatorStake = minimum
	cfg.Genesis.Validators = []ValidatorConfig{
		{PubKey: v1Priv.Public().Hex(), NodeID: "node1", Signature: "sig1"},
		{PubKey: v2Priv.Public().Hex(), NodeID: "node2", Signature: "sig2"},
	}
	return cfg, st, eng
}

func TestDeclareGenesisCreditsAndRegistersValidators(t *testing.T) {
	cfg, st, eng := newGenesisFixture(t, 100)

	block, err := DeclareGenesis(cfg, st, eng)
	if err != nil {
		t.Fatal(err)
	}
	if block.Header.Height != 0 {
		t.Fatalf("expected genesis height 0, got %d", block.Header.Height)
	}

	creatorPub, err := crypto.PubKeyFromHex(cfg.Genesis.CreatorPubKey)
	if err != nil {
		t.Fatal(err)
	}
	balance, err := st.GetBalance(creatorPub.Address())
	if err != nil {
		t.Fatal(err)
	}
	if balance != 800 {
		t.Fatalf("expected creator balance 800, got %d", balance)
	}

	for _, v := range cfg.Genesis.Validators {
		pub, err := crypto.PubKeyFromHex(v.PubKey)
		if err != nil {
			t.Fatal(err)
		}
		ok, err := st.IsValidator(pub.Address())
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("expected %s to be registered as a validator", pub.Address())
		}
	}
}

func TestDeclareGenesisRejectsStateRootMismatch(t *testing.T) {
	cfg, st, eng := newGenesisFixture(t, 100)
	cfg.Genesis.StateRoot = "not-the-real-root"

	if _, err := DeclareGenesis(cfg, st, eng); err == nil {
		t.Fatal("expected DeclareGenesis to reject a mismatched configured state_root")
	}
}
