package wallet

import (
	"testing"

	"github.com/tolelom/llfchain/crypto"
)

func TestSaveLoadKeyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	seed := "correct horse battery staple"
	if err := SaveKey(dir, seed, priv); err != nil {
		t.Fatal(err)
	}

	got, err := LoadKey(dir, seed)
	if err != nil {
		t.Fatal(err)
	}
	if got.Public().Hex() != priv.Public().Hex() {
		t.Fatalf("loaded key mismatch: got %s want %s", got.Public().Hex(), priv.Public().Hex())
	}
}

func TestLoadKeyRejectsWrongSeed(t *testing.T) {
	dir := t.TempDir()
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	if err := SaveKey(dir, "seed-one", priv); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadKey(dir, "seed-two"); err == nil {
		t.Fatal("expected LoadKey with wrong seed to fail")
	}
}

func TestKeyFileNameIsDeterministic(t *testing.T) {
	a := KeyFileName("same seed")
	b := KeyFileName("same seed")
	if a != b {
		t.Fatalf("expected deterministic filename, got %s and %s", a, b)
	}
	if KeyFileName("seed-one") == KeyFileName("seed-two") {
		t.Fatal("expected distinct seeds to produce distinct filenames")
	}
}
