package wallet

import (
	"encoding/json"

	"github.com/tolelom/llfchain/crypto"
	"github.com/tolelom/llfchain/types"
)

// Wallet holds a key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded secp256k1 public key (used as the
// "sender" field on a transaction).
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// Address returns the wallet's "gBx"-prefixed account address.
func (w *Wallet) Address() string {
	return w.pub.Address()
}

// NewTx builds and signs a transaction. chainVersion must match the
// target chain.
func (w *Wallet) NewTx(chainVersion int, typ types.TxType, recipient string, value, feeLimit, timestamp int64, message json.RawMessage) *types.Transaction {
	tx := &types.Transaction{
		Version:   chainVersion,
		Type:      typ,
		Sender:    w.pub.Hex(),
		Recipient: recipient,
		Value:     value,
		FeeLimit:  feeLimit,
		Message:   message,
		Timestamp: timestamp,
	}
	tx.Sign(w.priv)
	return tx
}

// Transfer builds and signs a plain transfer transaction.
func (w *Wallet) Transfer(chainVersion int, to string, value, feeLimit, timestamp int64) *types.Transaction {
	return w.NewTx(chainVersion, types.TxTransfer, to, value, feeLimit, timestamp, nil)
}
