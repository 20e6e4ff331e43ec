// Package validation holds the pure structural and cryptographic checks
// applied to transactions, votes, candidate blocks and finalized blocks
// before they are admitted into a round or the chain.
package validation

import (
	"github.com/tolelom/llfchain/chainerr"
	"github.com/tolelom/llfchain/chainstore"
	"github.com/tolelom/llfchain/crypto"
	"github.com/tolelom/llfchain/types"
)

// AddressSize is the fixed length of a "gBx"/"gBc" address: a 3-byte
// prefix plus the 40-hex-char suffix of a hashed public key.
const AddressSize = len(crypto.AddrEOA) + 40

// ValidateAddress checks addr has one of the two known prefixes and the
// fixed address length.
func ValidateAddress(addr string) error {
	if len(addr) != AddressSize {
		return chainerr.NewValidationError("address %q: want length %d, got %d", addr, AddressSize, len(addr))
	}
	prefix := addr[:len(crypto.AddrEOA)]
	if prefix != crypto.AddrEOA && prefix != crypto.AddrContract {
		return chainerr.NewValidationError("address %q: unrecognized prefix %q", addr, prefix)
	}
	return nil
}

// ValidateCode rejects an empty code blob; a contract with no code is not
// a valid create target.
func ValidateCode(code []byte) error {
	if len(code) == 0 {
		return chainerr.NewValidationError("code is empty")
	}
	return nil
}

// ValidateTransaction checks a transaction's hash and signature.
func ValidateTransaction(tx *types.Transaction) error {
	if err := tx.Verify(); err != nil {
		return chainerr.NewValidationError("%v", err)
	}
	return nil
}

// ValidatePayable checks balance covers value + fee limit.
func ValidatePayable(tx *types.Transaction, balance int64) error {
	need := tx.Value + tx.FeeLimit
	if balance < need {
		return chainerr.NewValidationError("payment refused: needs %d, balance %d", need, balance)
	}
	return nil
}

// ValidateNonce checks the account's current nonce equals the nonce the
// transaction expects to consume.
func ValidateNonce(expected, actual uint64) error {
	if expected != actual {
		return chainerr.NewValidationError("nonce mismatch: account is at %d, transaction expects %d", actual, expected)
	}
	return nil
}

// ValidateVote checks a vote's hash and signature.
func ValidateVote(v *types.Vote) error {
	if err := v.Verify(); err != nil {
		return chainerr.NewValidationError("%v", err)
	}
	return nil
}

// ValidateCandidate checks a proposed block's candidate hash, signature,
// and that its tx-root matches the recomputed root of its transaction
// list.
func ValidateCandidate(block *types.Block) error {
	if err := block.VerifyCandidate(); err != nil {
		return chainerr.NewValidationError("%v", err)
	}
	root, err := computeListRoot(block.Transactions)
	if err != nil {
		return err
	}
	if root != block.Header.TxRoot {
		return chainerr.NewValidationError("tx root mismatch: header %s computed %s", block.Header.TxRoot, root)
	}
	return nil
}

// ValidateFinalize checks a finalized block's block-hash and signature.
func ValidateFinalize(block *types.Block) error {
	if err := block.VerifyFinal(); err != nil {
		return chainerr.NewValidationError("%v", err)
	}
	return nil
}

// ValidateHeaderLinkage checks header extends parent: chain-id equality,
// height == parent.Height+1, prev-hash equality, and a strictly
// increasing timestamp. parent is nil only for the genesis block, which
// skips the linkage checks.
func ValidateHeaderLinkage(header *types.BlockHeader, parent *types.BlockHeader, chainID string) error {
	if header.ChainID != chainID {
		return chainerr.NewValidationError("chain id mismatch: got %s want %s", header.ChainID, chainID)
	}
	if parent == nil {
		return nil
	}
	if header.Height != parent.Height+1 {
		return chainerr.NewValidationError("height mismatch: got %d want %d", header.Height, parent.Height+1)
	}
	if header.PrevHash != parent.BlockHash {
		return chainerr.NewValidationError("prev hash mismatch: got %s want %s", header.PrevHash, parent.BlockHash)
	}
	if header.Timestamp <= parent.Timestamp {
		return chainerr.NewValidationError("timestamp must strictly increase: got %d, parent %d", header.Timestamp, parent.Timestamp)
	}
	return nil
}

// ValidateBlock runs full structural validation on a finalized block:
// header linkage, tx-root and vote-root recomputation equality, and that
// every vote references this block's height.
func ValidateBlock(block *types.Block, parent *types.BlockHeader, chainID string) error {
	if err := ValidateHeaderLinkage(&block.Header, parent, chainID); err != nil {
		return err
	}
	txRoot, err := computeListRoot(block.Transactions)
	if err != nil {
		return err
	}
	if txRoot != block.Header.TxRoot {
		return chainerr.NewValidationError("tx root mismatch: header %s computed %s", block.Header.TxRoot, txRoot)
	}
	voteRoot, err := computeVoteListRoot(block.Votes)
	if err != nil {
		return err
	}
	if voteRoot != block.Header.VoteRoot {
		return chainerr.NewValidationError("vote root mismatch: header %s computed %s", block.Header.VoteRoot, voteRoot)
	}
	for _, v := range block.Votes {
		if v.BlockHeight != block.Header.Height {
			return chainerr.NewValidationError("vote height %d does not match block height %d", v.BlockHeight, block.Header.Height)
		}
	}
	return nil
}

// ValidateValidatorSet checks every address in addrs is a known
// validator id.
func ValidateValidatorSet(addrs []string, isValidator func(string) (bool, error)) error {
	for _, addr := range addrs {
		ok, err := isValidator(addr)
		if err != nil {
			return err
		}
		if !ok {
			return chainerr.NewValidationError("%s is not a registered validator", addr)
		}
	}
	return nil
}

// computeListRoot delegates to chainstore.ComputeTxRoot, wrapping any
// encode failure as a SerializeError.
func computeListRoot(txs []*types.Transaction) (string, error) {
	root, err := chainstore.ComputeTxRoot(txs)
	if err != nil {
		return "", chainerr.NewSerializeError("%v", err)
	}
	return root, nil
}

// computeVoteListRoot delegates to chainstore.ComputeVoteRoot.
func computeVoteListRoot(votes []*types.Vote) (string, error) {
	root, err := chainstore.ComputeVoteRoot(votes)
	if err != nil {
		return "", chainerr.NewSerializeError("%v", err)
	}
	return root, nil
}
