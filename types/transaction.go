package types

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/llfchain/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	TxTransfer TxType = "transfer"
	TxCreate   TxType = "create"
	TxCall     TxType = "call"
)

// CreateSentinel is the recipient value marking a contract-creation
// transaction: Executor.IsCreate checks Recipient == CreateSentinel.
const CreateSentinel = ""

// Transaction is the atomic unit of chain work. Hash covers every field
// before it (Hash and Signature are excluded); Signature covers Hash.
type Transaction struct {
	Version   int             `json:"version"`
	Type      TxType          `json:"type"`
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient"`
	Value     int64           `json:"value"`
	FeeLimit  int64           `json:"fee_limit"`
	Message   json.RawMessage `json:"message,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Hash      string          `json:"tx_hash"`
	Signature string          `json:"signature"`
}

// txSigningBody holds every field hashed into Transaction.Hash.
type txSigningBody struct {
	Version   int             `json:"version"`
	Type      TxType          `json:"type"`
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient"`
	Value     int64           `json:"value"`
	FeeLimit  int64           `json:"fee_limit"`
	Message   json.RawMessage `json:"message,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// ComputeHash returns the deterministic hash of every field preceding Hash.
func (tx *Transaction) ComputeHash() string {
	body := txSigningBody{
		Version:   tx.Version,
		Type:      tx.Type,
		Sender:    tx.Sender,
		Recipient: tx.Recipient,
		Value:     tx.Value,
		FeeLimit:  tx.FeeLimit,
		Message:   tx.Message,
		Timestamp: tx.Timestamp,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign stamps Hash and Signature using priv.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	tx.Hash = tx.ComputeHash()
	tx.Signature = crypto.Sign(priv, []byte(tx.Hash))
}

// Verify checks tx.Hash matches the recomputed hash and the signature
// verifies against the sender's public key.
func (tx *Transaction) Verify() error {
	if computed := tx.ComputeHash(); tx.Hash != computed {
		return fmt.Errorf("tx hash mismatch: stored %s computed %s", tx.Hash, computed)
	}
	pub, err := crypto.PubKeyFromHex(tx.Sender)
	if err != nil {
		return fmt.Errorf("invalid sender pubkey: %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash), tx.Signature)
}

// IsCreate reports whether tx is a contract-creation transaction.
func (tx *Transaction) IsCreate() bool {
	return tx.Recipient == CreateSentinel
}
