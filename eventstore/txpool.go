// Package eventstore holds the in-memory, round-scoped message stores the
// consensus engine reads from and purges as rounds advance: a pending
// transaction pool, per-height candidate/vote/confirm stores keyed by
// creator, and a finalize queue.
package eventstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/tolelom/llfchain/types"
)

const (
	maxPoolSize = 10_000
	maxTxAge    = int64(time.Hour)
	maxTxFuture = int64(5 * time.Minute)
)

// TxPool is a thread-safe pending-transaction pool, insertion-ordered for
// deterministic proposal selection.
type TxPool struct {
	mu  sync.RWMutex
	txs map[string]*types.Transaction
	ord []string
}

// NewTxPool creates an empty pool.
func NewTxPool() *TxPool {
	return &TxPool{txs: make(map[string]*types.Transaction)}
}

// Add validates and inserts a transaction: signature, pool capacity,
// duplicate-hash rejection, and a -1h/+5m timestamp window against now.
func (p *TxPool) Add(tx *types.Transaction, now int64) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("invalid tx signature: %w", err)
	}
	if now-tx.Timestamp > maxTxAge {
		return fmt.Errorf("transaction expired")
	}
	if tx.Timestamp-now > maxTxFuture {
		return fmt.Errorf("transaction timestamp too far in the future")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.txs) >= maxPoolSize {
		return fmt.Errorf("transaction pool full")
	}
	if _, exists := p.txs[tx.Hash]; exists {
		return fmt.Errorf("transaction already pending")
	}
	p.txs[tx.Hash] = tx
	p.ord = append(p.ord, tx.Hash)
	return nil
}

// Pending returns up to n pending transactions in insertion order — the
// candidate for a P0 proposal selection.
func (p *TxPool) Pending(n int) []*types.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make([]*types.Transaction, 0, n)
	for _, hash := range p.ord {
		if tx, ok := p.txs[hash]; ok {
			result = append(result, tx)
			if len(result) >= n {
				break
			}
		}
	}
	return result
}

// Remove deletes transactions by hash, called after a block that includes
// them commits.
func (p *TxPool) Remove(hashes []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		delete(p.txs, h)
		removed[h] = true
	}
	filtered := p.ord[:0]
	for _, h := range p.ord {
		if !removed[h] {
			filtered = append(filtered, h)
		}
	}
	p.ord = filtered
}

// Size returns the current number of pending transactions.
func (p *TxPool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}
