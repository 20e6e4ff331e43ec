package types

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/llfchain/crypto"
)

// BlockHeader contains everything hashed and signed for one block. Field
// order matters: CandidateHash covers the first seven fields (PrevHash
// through ChainID), BlockHash covers every field up to FinalizeTimestamp.
type BlockHeader struct {
	PrevHash  string `json:"prev_hash"`
	Height    int64  `json:"height"`
	TxRoot    string `json:"tx_root"`
	Creator   string `json:"creator"`
	Timestamp int64  `json:"timestamp"`
	Version   int    `json:"version"`
	ChainID   string `json:"chain_id"`

	CandidateHash string `json:"candidate_block_hash"`

	VoteRoot          string `json:"vote_root"`
	ReceiptRoot       string `json:"receipt_root"`
	StateRoot         string `json:"state_root"`
	FinalizeTimestamp int64  `json:"finalize_timestamp"`

	BlockHash string `json:"block_hash"`
	Signature string `json:"signature"`
}

// candidateSigningBody is the first seven header fields, hashed to produce
// CandidateHash (the "pre-hash") — immutable from proposal onward.
type candidateSigningBody struct {
	PrevHash  string `json:"prev_hash"`
	Height    int64  `json:"height"`
	TxRoot    string `json:"tx_root"`
	Creator   string `json:"creator"`
	Timestamp int64  `json:"timestamp"`
	Version   int    `json:"version"`
	ChainID   string `json:"chain_id"`
}

// blockSigningBody is every header field up to and including
// FinalizeTimestamp, hashed to produce BlockHash after execution.
type blockSigningBody struct {
	candidateSigningBody
	CandidateHash     string `json:"candidate_block_hash"`
	VoteRoot          string `json:"vote_root"`
	ReceiptRoot       string `json:"receipt_root"`
	StateRoot         string `json:"state_root"`
	FinalizeTimestamp int64  `json:"finalize_timestamp"`
}

// ComputeCandidateHash returns the hash of the first seven header fields.
func (h *BlockHeader) ComputeCandidateHash() string {
	body := candidateSigningBody{
		PrevHash:  h.PrevHash,
		Height:    h.Height,
		TxRoot:    h.TxRoot,
		Creator:   h.Creator,
		Timestamp: h.Timestamp,
		Version:   h.Version,
		ChainID:   h.ChainID,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// ComputeBlockHash returns the hash of every header field up to and
// including FinalizeTimestamp.
func (h *BlockHeader) ComputeBlockHash() string {
	body := blockSigningBody{
		candidateSigningBody: candidateSigningBody{
			PrevHash:  h.PrevHash,
			Height:    h.Height,
			TxRoot:    h.TxRoot,
			Creator:   h.Creator,
			Timestamp: h.Timestamp,
			Version:   h.Version,
			ChainID:   h.ChainID,
		},
		CandidateHash:     h.CandidateHash,
		VoteRoot:          h.VoteRoot,
		ReceiptRoot:       h.ReceiptRoot,
		StateRoot:         h.StateRoot,
		FinalizeTimestamp: h.FinalizeTimestamp,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Block is a header plus its ordered transaction and vote lists.
type Block struct {
	Header       BlockHeader            `json:"header"`
	Transactions []*Transaction         `json:"transaction_list"`
	Votes        []*Vote                `json:"vote_list"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// SignCandidate stamps Header.CandidateHash and signs it, marking the block
// immutable from proposal onward.
func (b *Block) SignCandidate(priv crypto.PrivateKey) {
	b.Header.CandidateHash = b.Header.ComputeCandidateHash()
	b.Header.Signature = crypto.Sign(priv, []byte(b.Header.CandidateHash))
}

// SignFinal stamps Header.BlockHash (after StateRoot/ReceiptRoot/VoteRoot/
// FinalizeTimestamp are set by BlockEngine) and re-signs it.
func (b *Block) SignFinal(priv crypto.PrivateKey) {
	b.Header.BlockHash = b.Header.ComputeBlockHash()
	b.Header.Signature = crypto.Sign(priv, []byte(b.Header.BlockHash))
}

// VerifyCandidate checks Header.CandidateHash against the recomputed value
// and that Signature verifies against the creator's public key.
func (b *Block) VerifyCandidate() error {
	if computed := b.Header.ComputeCandidateHash(); b.Header.CandidateHash != computed {
		return fmt.Errorf("candidate hash mismatch: stored %s computed %s", b.Header.CandidateHash, computed)
	}
	pub, err := crypto.PubKeyFromHex(b.Header.Creator)
	if err != nil {
		return fmt.Errorf("invalid creator pubkey: %w", err)
	}
	return crypto.Verify(pub, []byte(b.Header.CandidateHash), b.Header.Signature)
}

// VerifyFinal checks Header.BlockHash against the recomputed value and that
// Signature verifies against the creator's public key.
func (b *Block) VerifyFinal() error {
	if computed := b.Header.ComputeBlockHash(); b.Header.BlockHash != computed {
		return fmt.Errorf("block hash mismatch: stored %s computed %s", b.Header.BlockHash, computed)
	}
	pub, err := crypto.PubKeyFromHex(b.Header.Creator)
	if err != nil {
		return fmt.Errorf("invalid creator pubkey: %w", err)
	}
	return crypto.Verify(pub, []byte(b.Header.BlockHash), b.Header.Signature)
}
