// Package execution implements the per-transaction state transition:
// signature/nonce/payability checks, fee metering, the create/call/
// transfer dispatch, and receipt emission.
package execution

import (
	"encoding/json"

	"github.com/tolelom/llfchain/chainerr"
	"github.com/tolelom/llfchain/types"
)

// FeeRates are the base-unit costs of the three billable operations.
type FeeRates struct {
	Execute int64
	Create  int64
	Call    int64
}

// ExecuteContext carries one transaction's in-flight execution state.
type ExecuteContext struct {
	Index          int
	Sender         string
	Recipient      string
	Value          int64
	FeeLimit       int64
	StartNonce     uint64
	Type           types.TxType
	Paid           int64
	Code           []byte
	Message        json.RawMessage
	CreatedAddress string
	ErrMsg         string
}

// IsCreate reports whether the transaction creates a contract.
func (c *ExecuteContext) IsCreate() bool {
	return c.Recipient == types.CreateSentinel
}

// Use adds rate to the running paid-fee total. Fails with FeeLimitedError
// once the cumulative total exceeds FeeLimit; the rate is still added so
// callers can read exactly how much was consumed.
func (c *ExecuteContext) Use(rate int64) error {
	c.Paid += rate
	if c.Paid > c.FeeLimit {
		return chainerr.NewFeeLimitedError("sender %s: paid %d exceeds fee limit %d", c.Sender, c.Paid, c.FeeLimit)
	}
	return nil
}

// PaidCapped returns the fee actually charged against the escrowed
// FeeLimit: Paid, but never more than FeeLimit itself.
func (c *ExecuteContext) PaidCapped() int64 {
	if c.Paid > c.FeeLimit {
		return c.FeeLimit
	}
	return c.Paid
}

func newContext(index int, tx *types.Transaction, startNonce uint64) *ExecuteContext {
	return &ExecuteContext{
		Index:      index,
		Sender:     tx.Sender,
		Recipient:  tx.Recipient,
		Value:      tx.Value,
		FeeLimit:   tx.FeeLimit,
		StartNonce: startNonce,
		Type:       tx.Type,
		Message:    tx.Message,
	}
}
