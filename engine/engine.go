// Package engine implements the BlockEngine ("Wagon"): it runs a
// confirmed block's transactions against the world state, computes the
// receipt/vote/tx roots and the reward split, and atomically commits the
// result.
package engine

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/tolelom/llfchain/chainerr"
	"github.com/tolelom/llfchain/chainstore"
	"github.com/tolelom/llfchain/crypto"
	"github.com/tolelom/llfchain/events"
	"github.com/tolelom/llfchain/execution"
	"github.com/tolelom/llfchain/state"
	"github.com/tolelom/llfchain/storage"
	"github.com/tolelom/llfchain/trie"
	"github.com/tolelom/llfchain/types"
)

// BlockEngine executes one block at a time against a single StateStore.
type BlockEngine struct {
	db    storage.DB
	state *state.StateStore
	chain *chainstore.ChainStore
	exec  *execution.Executor

	// pendingReceiptTrie and pendingVoteTrie hold the tries built by the
	// most recent Execute call, flushed by the following Commit call.
	pendingReceiptTrie *trie.Trie
	pendingVoteTrie    *trie.Trie

	// pendingReceipts is carried from Execute to Commit solely so Commit
	// can emit EventTxExecuted after the block is durable.
	pendingReceipts []*types.Receipt

	emitter *events.Emitter
}

// SetEmitter wires an event emitter; nil (the default) disables emission
// entirely, so it is safe to skip this call in tests and single-shot
// tools like genesis declaration.
func (e *BlockEngine) SetEmitter(em *events.Emitter) {
	e.emitter = em
}

// New returns a BlockEngine. db backs the per-block tx/vote/receipt tries;
// state and chain are the stores execution and finalization act on.
func New(db storage.DB, st *state.StateStore, chain *chainstore.ChainStore, exec *execution.Executor) *BlockEngine {
	return &BlockEngine{db: db, state: st, chain: chain, exec: exec}
}

// ExecuteWithTimeout runs Execute on a background goroutine and gives up
// after timeout, escalating to FinalizeError: the P4 Finalize outer budget
// a stalled or unbounded-loop transaction must not be allowed to exceed.
func (e *BlockEngine) ExecuteWithTimeout(block *types.Block, timeout time.Duration) (*types.Block, []*types.Receipt, error) {
	type result struct {
		block    *types.Block
		receipts []*types.Receipt
		err      error
	}
	done := make(chan result, 1)
	go func() {
		b, r, err := e.Execute(block)
		done <- result{b, r, err}
	}()

	select {
	case res := <-done:
		return res.block, res.receipts, res.err
	case <-time.After(timeout):
		return nil, nil, chainerr.NewFinalizeError("execute height %d: exceeded %s execution budget", block.Header.Height, timeout)
	}
}

// Execute runs every transaction in block against state in order, applies
// the voter reward split, and returns a copy of block with ReceiptRoot,
// VoteRoot and StateRoot populated. It does not persist anything — call
// Commit afterward (typically once the block has also been signed via
// types.Block.SignFinal using the new header fields this returns).
func (e *BlockEngine) Execute(block *types.Block) (*types.Block, []*types.Receipt, error) {
	top, err := e.chain.TopHeight()
	if err != nil {
		return nil, nil, err
	}
	if block.Header.Height != top+1 {
		return nil, nil, chainerr.NewValidationError(
			"engine executes at height %d, block is height %d", top+1, block.Header.Height)
	}

	receipts := make([]*types.Receipt, len(block.Transactions))
	var totalPaid int64
	for i, tx := range block.Transactions {
		r, err := e.exec.Execute(block.Header.Height, i, tx)
		if err != nil {
			return nil, nil, err
		}
		receipts[i] = r
		totalPaid += r.FeePaid
	}

	if block.Header.Height > 0 {
		if err := e.distributeRewards(block, totalPaid); err != nil {
			return nil, nil, err
		}
	}

	receiptTrie := trie.NewEmpty(e.db)
	for i, r := range receipts {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, nil, chainerr.NewSerializeError("receipt %d: %v", i, err)
		}
		if _, err := receiptTrie.Put(chainstore.IndexKey(i), raw); err != nil {
			return nil, nil, err
		}
	}
	voteTrie := trie.NewEmpty(e.db)
	for i, v := range block.Votes {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, nil, chainerr.NewSerializeError("vote %d: %v", i, err)
		}
		if _, err := voteTrie.Put(chainstore.IndexKey(i), raw); err != nil {
			return nil, nil, err
		}
	}

	out := *block
	out.Header.ReceiptRoot = receiptTrie.Root()
	out.Header.VoteRoot = voteTrie.Root()
	out.Header.StateRoot = e.state.StateRoot()
	out.Header.FinalizeTimestamp = time.Now().UnixNano()

	e.pendingReceiptTrie = receiptTrie
	e.pendingVoteTrie = voteTrie
	e.pendingReceipts = receipts
	return &out, receipts, nil
}

// distributeRewards splits totalPaid evenly (integer division, remainder
// discarded) among every vote whose CandidateHash matches the block's
// candidate hash — the voters of the winning candidate, not every cast
// vote. A height-0 (genesis) block has no voters to reward.
// TODO: weight by validator power/penalty instead of an equal split.
func (e *BlockEngine) distributeRewards(block *types.Block, totalPaid int64) error {
	var voters []string
	for _, v := range block.Votes {
		if v.CandidateHash == block.Header.CandidateHash {
			pub, err := crypto.PubKeyFromHex(v.Creator)
			if err != nil {
				return err
			}
			voters = append(voters, pub.Address())
		}
	}
	if len(voters) == 0 {
		return nil
	}
	reward := totalPaid / int64(len(voters))
	if reward == 0 {
		return nil
	}
	for _, addr := range voters {
		if err := e.state.ComputeBalance(addr, reward); err != nil {
			return err
		}
	}
	return nil
}

// Commit persists the block produced by a prior Execute call: the state
// trie, the block's tx trie (built here), the receipt/vote tries built
// during Execute, and the chain index entry, in that order. A CacheError from the state commit is
// escalated to FinalizeError, matching the reference wagon's _commit.
// Clear always runs afterward, regardless of outcome.
func (e *BlockEngine) Commit(block *types.Block) error {
	defer e.clear()

	if _, err := e.state.Commit(); err != nil {
		var cacheErr *chainerr.CacheError
		if errors.As(err, &cacheErr) {
			return chainerr.NewFinalizeError("state commit: %v", err)
		}
		return err
	}

	txTrie := trie.NewEmpty(e.db)
	for i, tx := range block.Transactions {
		raw, err := json.Marshal(tx)
		if err != nil {
			return chainerr.NewSerializeError("tx %d: %v", i, err)
		}
		if _, err := txTrie.Put(chainstore.IndexKey(i), raw); err != nil {
			return err
		}
	}
	if _, err := txTrie.Commit(); err != nil {
		return err
	}
	if e.pendingReceiptTrie != nil {
		if _, err := e.pendingReceiptTrie.Commit(); err != nil {
			return err
		}
	}
	if e.pendingVoteTrie != nil {
		if _, err := e.pendingVoteTrie.Commit(); err != nil {
			return err
		}
	}

	if err := e.chain.Commit(block); err != nil {
		return err
	}

	e.emit(block)
	return nil
}

func (e *BlockEngine) emit(block *types.Block) {
	if e.emitter == nil {
		return
	}
	for i, r := range e.pendingReceipts {
		e.emitter.Emit(events.Event{
			Type:        events.EventTxExecuted,
			TxID:        block.Transactions[i].Hash,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"status": r.Status, "fee_paid": r.FeePaid},
		})
	}
	e.emitter.Emit(events.Event{
		Type:        events.EventBlockCommit,
		BlockHeight: block.Header.Height,
		Data:        map[string]any{"block_hash": block.Header.BlockHash, "tx_count": len(block.Transactions)},
	})
}

func (e *BlockEngine) clear() {
	e.pendingReceiptTrie = nil
	e.pendingVoteTrie = nil
	e.pendingReceipts = nil
	e.state.Clear()
}

