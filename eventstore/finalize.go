package eventstore

import (
	"sort"
	"sync"

	"github.com/tolelom/llfchain/types"
)

// FinalizeQueue holds finalized blocks awaiting local execution and commit,
// keyed by height. Unlike the candidate/vote/confirm stores it has no
// timeout: a validator that falls behind must wait however long it takes
// for the block to arrive, and Drain pops in height order so a backlog of
// more than one queued block is replayed in sequence rather than skipped.
type FinalizeQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending map[int64]*types.Block
}

// NewFinalizeQueue creates an empty queue.
func NewFinalizeQueue() *FinalizeQueue {
	q := &FinalizeQueue{pending: make(map[int64]*types.Block)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put records a finalized block, waking any waiter.
func (q *FinalizeQueue) Put(block *types.Block) {
	q.mu.Lock()
	q.pending[block.Header.Height] = block
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Peek returns the block queued at exactly height without blocking — the
// non-blocking "has a finalized block already arrived" check the
// round-failure handling table uses before falling back to a retry.
func (q *FinalizeQueue) Peek(height int64) (*types.Block, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	b, ok := q.pending[height]
	return b, ok
}

// Wait blocks until a block at exactly height is queued, then returns it
// without removing it — a caller that wants catch-up semantics should use
// Drain instead.
func (q *FinalizeQueue) Wait(height int64) *types.Block {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if b, ok := q.pending[height]; ok {
			return b
		}
		q.cond.Wait()
	}
}

// Drain removes and returns every queued block with height > afterHeight,
// sorted ascending — the catch-up loop for when more than one finalized
// block has queued up while this validator executed the previous one.
func (q *FinalizeQueue) Drain(afterHeight int64) []*types.Block {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*types.Block
	for h, b := range q.pending {
		if h > afterHeight {
			out = append(out, b)
			delete(q.pending, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Header.Height < out[j].Header.Height })
	return out
}

// Clear drops every queued block at or below finalizedHeight.
func (q *FinalizeQueue) Clear(finalizedHeight int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for h := range q.pending {
		if h <= finalizedHeight {
			delete(q.pending, h)
		}
	}
}
