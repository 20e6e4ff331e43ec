package network

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/llfchain/types"
)

// wireTx is the external transaction payload shape: {version,type,from,
// to,value,fee,message,timestamp,tx_hash,signature}. The internal
// types.Transaction uses sender/recipient/fee_limit field names for its
// own hash/sign computation; this is the boundary translation the
// external interface requires without renaming the internal model.
type wireTx struct {
	Version   int             `json:"version"`
	Type      types.TxType    `json:"type"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Value     int64           `json:"value"`
	Fee       int64           `json:"fee"`
	Message   json.RawMessage `json:"message,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Hash      string          `json:"tx_hash"`
	Signature string          `json:"signature"`
}

func encodeTx(tx *types.Transaction) ([]byte, error) {
	return json.Marshal(wireTx{
		Version: tx.Version, Type: tx.Type, From: tx.Sender, To: tx.Recipient,
		Value: tx.Value, Fee: tx.FeeLimit, Message: tx.Message, Timestamp: tx.Timestamp,
		Hash: tx.Hash, Signature: tx.Signature,
	})
}

func decodeTx(data []byte) (*types.Transaction, error) {
	var w wireTx
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode tx: %w", err)
	}
	return &types.Transaction{
		Version: w.Version, Type: w.Type, Sender: w.From, Recipient: w.To,
		Value: w.Value, FeeLimit: w.Fee, Message: w.Message, Timestamp: w.Timestamp,
		Hash: w.Hash, Signature: w.Signature,
	}, nil
}

// encodeConfirm and decodeConfirm translate to/from the wire's literal
// tuple [height, sender, block_hash, signature] — unlike every other
// message kind, confirm is not a JSON object on the wire.
func encodeConfirm(c *types.Confirm) ([]byte, error) {
	return json.Marshal([]any{c.Height, c.Creator, c.AggregatedHash, c.Signature})
}

func decodeConfirm(data []byte) (*types.Confirm, error) {
	var tuple [4]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return nil, fmt.Errorf("decode confirm: %w", err)
	}
	c := &types.Confirm{}
	if err := json.Unmarshal(tuple[0], &c.Height); err != nil {
		return nil, fmt.Errorf("decode confirm height: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &c.Creator); err != nil {
		return nil, fmt.Errorf("decode confirm sender: %w", err)
	}
	if err := json.Unmarshal(tuple[2], &c.AggregatedHash); err != nil {
		return nil, fmt.Errorf("decode confirm block hash: %w", err)
	}
	if err := json.Unmarshal(tuple[3], &c.Signature); err != nil {
		return nil, fmt.Errorf("decode confirm signature: %w", err)
	}
	c.Hash = c.ComputeHash()
	return c, nil
}
