// Package consensus drives the four-phase LLFC round: Propose, Select,
// Vote, Confirm, Finalize. One Engine runs one validator's view of the
// round; agreement across validators comes only from the messages they
// exchange over a Broadcaster, never from shared memory.
package consensus

import (
	"time"

	"github.com/tolelom/llfchain/chainerr"
	"github.com/tolelom/llfchain/chainstore"
	"github.com/tolelom/llfchain/crypto"
	"github.com/tolelom/llfchain/engine"
	"github.com/tolelom/llfchain/eventstore"
	"github.com/tolelom/llfchain/state"
	"github.com/tolelom/llfchain/types"
	"github.com/tolelom/llfchain/validation"
)

// Broadcaster fans a message out to every other validator. network.Bus
// implements this; tests use an in-memory stub.
type Broadcaster interface {
	BroadcastTx(*types.Transaction) error
	BroadcastCandidate(*types.Block) error
	BroadcastVote(*types.Vote) error
	BroadcastConfirm(*types.Confirm) error
	BroadcastFinalize(*types.Block) error
}

// MaxProposalTxs bounds a P0 proposal to the spec's fixed batch size.
const MaxProposalTxs = 60

// roundRetryDelay is how long a node waits before retrying a round after a
// RoundError with no finalize-queue fallback available.
const roundRetryDelay = 1 * time.Second

// DefaultExecutionTimeout bounds P4's block execution; exceeding it
// escalates to FinalizeError.
const DefaultExecutionTimeout = 30 * time.Second

// Engine runs the LLFC round for one validator identity against one
// height at a time.
type Engine struct {
	chainID string
	priv    crypto.PrivateKey
	pub     crypto.PublicKey

	state *state.StateStore
	chain *chainstore.ChainStore
	block *engine.BlockEngine

	txs       *eventstore.TxPool
	candidate *eventstore.CandidateStore
	vote      *eventstore.VoteStore
	confirm   *eventstore.ConfirmStore
	finalize  *eventstore.FinalizeQueue

	bus Broadcaster

	executionTimeout time.Duration
}

// New creates a consensus Engine for the local validator identified by
// priv.
func New(
	chainID string,
	priv crypto.PrivateKey,
	st *state.StateStore,
	chain *chainstore.ChainStore,
	blockEngine *engine.BlockEngine,
	txs *eventstore.TxPool,
	candidate *eventstore.CandidateStore,
	vote *eventstore.VoteStore,
	confirm *eventstore.ConfirmStore,
	finalize *eventstore.FinalizeQueue,
	bus Broadcaster,
) *Engine {
	return &Engine{
		chainID: chainID, priv: priv, pub: priv.Public(),
		state: st, chain: chain, block: blockEngine,
		txs: txs, candidate: candidate, vote: vote, confirm: confirm, finalize: finalize,
		bus:              bus,
		executionTimeout: DefaultExecutionTimeout,
	}
}

// SetExecutionTimeout overrides the P4 execution budget (config's
// execution_timeout_ms); the zero value is rejected, keeping the default.
func (e *Engine) SetExecutionTimeout(d time.Duration) {
	if d > 0 {
		e.executionTimeout = d
	}
}

// SetBroadcaster wires the message bus after construction: network.Bus
// itself needs this Engine as its Receiver, so the two can't be built in
// one step from either side.
func (e *Engine) SetBroadcaster(bus Broadcaster) {
	e.bus = bus
}

// RunRound drives one full height through P0-P4, retrying on RoundError
// per the round-failure handling table until it commits or the caller's
// context-free loop gives up (the caller decides whether to keep calling
// RunRound; this method returns once a block at height is committed or
// an unrecoverable error occurs).
func (e *Engine) RunRound(height int64, parent *types.BlockHeader) error {
	for {
		err := e.runOnce(height, parent)
		if err == nil {
			return nil
		}

		var roundErr *chainerr.RoundError
		if !asRoundError(err, &roundErr) {
			return err
		}

		if adopted, ok := e.finalize.Peek(height); ok {
			return e.adoptAndCommit(adopted, parent)
		}
		time.Sleep(roundRetryDelay)
	}
}

func asRoundError(err error, target **chainerr.RoundError) bool {
	re, ok := err.(*chainerr.RoundError)
	if ok {
		*target = re
	}
	return ok
}

// runOnce attempts P0 through P4 once, with no retry, returning whatever
// error (if any) one of the phases produced.
func (e *Engine) runOnce(height int64, parent *types.BlockHeader) error {
	if err := e.propose(height, parent); err != nil {
		return err
	}

	selected, err := e.selectCandidate(height, parent)
	if err != nil {
		return err
	}

	aggregated, err := e.voteAndAggregate(height, selected)
	if err != nil {
		return err
	}

	confirmed, err := e.confirmChoice(height, aggregated)
	if err != nil {
		return err
	}

	return e.finalizeRound(height, confirmed, parent)
}

// adoptAndCommit executes and commits a block this node did not itself
// finalize (another validator got there first), the fallback path for a
// RoundError encountered during P1-P3.
func (e *Engine) adoptAndCommit(block *types.Block, parent *types.BlockHeader) error {
	if err := validation.ValidateBlock(block, parent, e.chainID); err != nil {
		return chainerr.NewFinalizeError("adopted block failed validation: %v", err)
	}
	if err := validation.ValidateFinalize(block); err != nil {
		return chainerr.NewFinalizeError("adopted block signature invalid: %v", err)
	}
	if err := e.block.Commit(block); err != nil {
		return err
	}
	e.purge(block.Header.Height)
	return nil
}

// Adopt validates and commits a block obtained out-of-band (a sync-mode
// block fetch from a peer, rather than this node's own round), then
// purges round state up to its height. Exported for network/'s Syncer.
func (e *Engine) Adopt(block *types.Block, parent *types.BlockHeader) error {
	return e.adoptAndCommit(block, parent)
}

// purge clears every round store up to and including finalizedHeight.
func (e *Engine) purge(finalizedHeight int64) {
	e.candidate.Clear(finalizedHeight)
	e.vote.Clear(finalizedHeight)
	e.confirm.Clear(finalizedHeight)
	e.finalize.Clear(finalizedHeight)
}
