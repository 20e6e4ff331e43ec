package execution

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/llfchain/chainerr"
	"github.com/tolelom/llfchain/crypto"
	"github.com/tolelom/llfchain/state"
	"github.com/tolelom/llfchain/types"
)

// Executor applies one finalized transaction against the world state. It
// has no notion of a whole block — BlockEngine drives it once per
// transaction and collects the resulting receipts.
type Executor struct {
	state        *state.StateStore
	chainVersion int
	rates        FeeRates
}

// New returns an Executor bound to state, rejecting any transaction whose
// Version does not equal chainVersion, and billing at rates.
func New(st *state.StateStore, chainVersion int, rates FeeRates) *Executor {
	return &Executor{state: st, chainVersion: chainVersion, rates: rates}
}

// precompileCode is the parsed shape of a create transaction's message:
// the original's is_precompile probe reading the "is_precompiled" and
// "codes" keys.
type precompileCode struct {
	IsPrecompiled bool   `json:"is_precompiled"`
	Codes         string `json:"codes"`
}

// Execute runs transaction index of height against state, returning its
// receipt. Execute never returns an error for a transaction-level failure
// (bad signature, insufficient balance, fee overrun, ...) — those are
// captured as a cancel receipt; it returns an error only if the state
// layer itself misbehaves (a trie or serialize failure).
func (e *Executor) Execute(height int64, index int, tx *types.Transaction) (*types.Receipt, error) {
	ctx := newContext(index, tx, 0)

	senderAddr, fail := e.admit(ctx, tx)
	if fail != "" {
		return e.receipt(tx, height, ctx, types.ReceiptCancel, fail), nil
	}

	startNonce, err := e.state.GetNonce(senderAddr)
	if err != nil {
		return nil, err
	}
	ctx.Sender = senderAddr
	ctx.StartNonce = startNonce

	// step 4: debit the fee limit, bump the nonce, charge "execute".
	if err := e.state.ComputeBalance(senderAddr, -ctx.FeeLimit); err != nil {
		return e.receipt(tx, height, ctx, types.ReceiptCancel, err.Error()), nil
	}
	if err := e.state.IncreaseNonce(senderAddr); err != nil {
		return nil, err
	}
	if err := ctx.Use(e.rates.Execute); err != nil {
		return e.finish(tx, height, ctx, types.ReceiptCancel, err.Error())
	}

	var stepErr error
	switch {
	case ctx.IsCreate():
		stepErr = e.runCreate(ctx, tx)
	default:
		stepErr = e.runCallOrTransfer(ctx, tx)
	}

	status := types.ReceiptCompleted
	msg := ""
	if stepErr != nil {
		status = types.ReceiptCancel
		msg = stepErr.Error()
	}
	return e.finish(tx, height, ctx, status, msg)
}

// admit runs steps 1-3: version check, signature/hash verification, and
// the payability gate. It returns the sender's derived address and an
// empty failure string on success; on failure it returns a non-empty
// message and no nonce/fee debit has happened yet.
func (e *Executor) admit(ctx *ExecuteContext, tx *types.Transaction) (string, string) {
	if tx.Version != e.chainVersion {
		return "", fmt.Sprintf("tx version %d does not match chain version %d", tx.Version, e.chainVersion)
	}
	if err := tx.Verify(); err != nil {
		return "", err.Error()
	}
	pub, err := crypto.PubKeyFromHex(tx.Sender)
	if err != nil {
		return "", err.Error()
	}
	senderAddr := pub.Address()

	balance, err := e.state.GetBalance(senderAddr)
	if err != nil {
		return "", err.Error()
	}
	if balance < tx.Value+tx.FeeLimit {
		return "", fmt.Sprintf("payability: sender %s has %d, needs %d (value) + %d (fee limit)",
			senderAddr, balance, tx.Value, tx.FeeLimit)
	}
	return senderAddr, ""
}

// runCreate derives the contract address from (sender, start nonce),
// requires the target be unused, charges "create", and installs code
// parsed from the transaction message's precompile probe.
func (e *Executor) runCreate(ctx *ExecuteContext, tx *types.Transaction) error {
	var nonceBuf [8]byte
	putUint64(nonceBuf[:], ctx.StartNonce)
	created := crypto.ContractAddress(append([]byte(ctx.Sender), nonceBuf[:]...))

	existingNonce, err := e.state.GetNonce(created)
	if err != nil {
		return err
	}
	if existingNonce != 0 {
		return fmt.Errorf("already a contract address: %s", created)
	}

	var probe precompileCode
	if err := json.Unmarshal(ctx.Message, &probe); err != nil || probe.Codes == "" {
		return chainerr.NewValidationError("contract code build failed for %s", created)
	}

	if err := ctx.Use(e.rates.Create); err != nil {
		return err
	}

	ctx.CreatedAddress = created
	ctx.Code = []byte(probe.Codes)
	return e.state.SetCode(created, ctx.Code)
}

// runCallOrTransfer charges "call" against an existing contract, or moves
// value directly between two externally-owned accounts.
func (e *Executor) runCallOrTransfer(ctx *ExecuteContext, tx *types.Transaction) error {
	code, err := e.state.GetCode(ctx.Recipient)
	if err != nil {
		return err
	}
	if len(code) > 0 {
		ctx.Code = code
		return ctx.Use(e.rates.Call)
	}

	if err := e.state.ComputeBalance(ctx.Sender, -ctx.Value); err != nil {
		return err
	}
	return e.state.ComputeBalance(ctx.Recipient, ctx.Value)
}

// finish refunds the unused portion of the fee limit, unconditionally,
// then emits the receipt. This is step 8+9: the refund runs even when the
// transaction is being cancelled.
func (e *Executor) finish(tx *types.Transaction, height int64, ctx *ExecuteContext, status types.ReceiptStatus, msg string) (*types.Receipt, error) {
	remainder := ctx.FeeLimit - ctx.PaidCapped()
	if remainder > 0 {
		if err := e.state.ComputeBalance(ctx.Sender, remainder); err != nil {
			return nil, err
		}
	}
	return e.receipt(tx, height, ctx, status, msg), nil
}

func (e *Executor) receipt(tx *types.Transaction, height int64, ctx *ExecuteContext, status types.ReceiptStatus, msg string) *types.Receipt {
	r := &types.Receipt{
		TxHash:         tx.Hash,
		Height:         height,
		FeeLimit:       tx.FeeLimit,
		FeePaid:        ctx.PaidCapped(),
		CreatedAddress: ctx.CreatedAddress,
		Status:         status,
	}
	if status == types.ReceiptCancel {
		r.ErrorMessage = msg
	} else {
		r.Message = msg
	}
	return r
}

func putUint64(buf []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
}
