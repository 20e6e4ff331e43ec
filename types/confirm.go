package types

import (
	"fmt"
	"strconv"

	"github.com/tolelom/llfchain/crypto"
)

// Confirm is the P3 message: a validator's attestation of the aggregated
// vote choice for one height. Unlike Transaction/Vote/BlockHeader, the
// wire format is the literal tuple (height, sender, block_hash), and the
// signed digest is sha3_hex(height || "," || sender || "," || block_hash)
// rather than a JSON-marshaled struct.
//
// Creator holds the signer's public-key hex, the same convention as
// Vote.Creator and BlockHeader.Creator, so Verify can recover the public
// key directly. Callers that need the signer's account address for a
// state lookup (e.g. IsValidator) must derive it themselves via
// crypto.PubKeyFromHex(c.Creator).Address().
type Confirm struct {
	Height         int64  `json:"height"`
	Creator        string `json:"creator"`
	AggregatedHash string `json:"aggregated_hash"`
	Hash           string `json:"confirm_hash"`
	Signature      string `json:"signature"`
}

// ComputeHash returns sha3_hex(height || "," || creator || "," || aggregated_hash).
func (c *Confirm) ComputeHash() string {
	body := strconv.FormatInt(c.Height, 10) + "," + c.Creator + "," + c.AggregatedHash
	return crypto.Hash([]byte(body))
}

// Sign stamps Hash and Signature using priv.
func (c *Confirm) Sign(priv crypto.PrivateKey) {
	c.Hash = c.ComputeHash()
	c.Signature = crypto.Sign(priv, []byte(c.Hash))
}

// Verify checks c.Hash matches the recomputed hash and the signature
// verifies against the creator's public key.
func (c *Confirm) Verify() error {
	if computed := c.ComputeHash(); c.Hash != computed {
		return fmt.Errorf("confirm hash mismatch: stored %s computed %s", c.Hash, computed)
	}
	pub, err := crypto.PubKeyFromHex(c.Creator)
	if err != nil {
		return fmt.Errorf("invalid creator pubkey: %w", err)
	}
	return crypto.Verify(pub, []byte(c.Hash), c.Signature)
}
