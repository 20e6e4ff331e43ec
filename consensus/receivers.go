package consensus

import (
	"fmt"

	"github.com/tolelom/llfchain/types"
	"github.com/tolelom/llfchain/validation"
)

// ReceiveTx validates and admits a transaction heard over the message
// bus into the local pending pool (the P0 propose source).
func (e *Engine) ReceiveTx(tx *types.Transaction, now int64) error {
	if err := validation.ValidateTransaction(tx); err != nil {
		return err
	}
	return e.txs.Add(tx, now)
}

// ReceiveCandidate validates and records a proposed candidate block for
// P1 Select to later collect.
func (e *Engine) ReceiveCandidate(block *types.Block) error {
	if err := validation.ValidateCandidate(block); err != nil {
		return err
	}
	e.candidate.Put(block)
	return nil
}

// ReceiveVote validates and records a cast vote for P2's aggregation.
func (e *Engine) ReceiveVote(v *types.Vote) error {
	if err := validation.ValidateVote(v); err != nil {
		return err
	}
	e.vote.Put(v)
	return nil
}

// ReceiveConfirm validates and records a confirm message for P3's
// quorum check.
func (e *Engine) ReceiveConfirm(c *types.Confirm) error {
	if err := c.Verify(); err != nil {
		return fmt.Errorf("invalid confirm signature: %w", err)
	}
	e.confirm.Put(c)
	return nil
}

// ReceiveFinalize validates and queues a finalized block for every
// validator's P4 commit step, including the node that authored it.
func (e *Engine) ReceiveFinalize(block *types.Block, parent *types.BlockHeader) error {
	if err := validation.ValidateFinalize(block); err != nil {
		return err
	}
	if err := validation.ValidateBlock(block, parent, e.chainID); err != nil {
		return err
	}
	e.finalize.Put(block)
	return nil
}
