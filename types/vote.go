package types

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/llfchain/crypto"
)

// Vote records one validator's choice of candidate block at a height.
type Vote struct {
	Version           int    `json:"version"`
	BlockHeight       int64  `json:"block_height"`
	CandidateHash     string `json:"candidate_block_hash"`
	Creator           string `json:"creator"`
	Hash              string `json:"vote_hash"`
	Signature         string `json:"signature"`
}

type voteSigningBody struct {
	Version       int    `json:"version"`
	BlockHeight   int64  `json:"block_height"`
	CandidateHash string `json:"candidate_block_hash"`
	Creator       string `json:"creator"`
}

// ComputeHash returns the deterministic hash of every field preceding Hash.
func (v *Vote) ComputeHash() string {
	body := voteSigningBody{
		Version:       v.Version,
		BlockHeight:   v.BlockHeight,
		CandidateHash: v.CandidateHash,
		Creator:       v.Creator,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign stamps Hash and Signature using priv.
func (v *Vote) Sign(priv crypto.PrivateKey) {
	v.Hash = v.ComputeHash()
	v.Signature = crypto.Sign(priv, []byte(v.Hash))
}

// Verify checks v.Hash matches the recomputed hash and the signature
// verifies against the creator's public key.
func (v *Vote) Verify() error {
	if computed := v.ComputeHash(); v.Hash != computed {
		return fmt.Errorf("vote hash mismatch: stored %s computed %s", v.Hash, computed)
	}
	pub, err := crypto.PubKeyFromHex(v.Creator)
	if err != nil {
		return fmt.Errorf("invalid creator pubkey: %w", err)
	}
	return crypto.Verify(pub, []byte(v.Hash), v.Signature)
}
