package rpc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tolelom/llfchain/chainstore"
	"github.com/tolelom/llfchain/eventstore"
	"github.com/tolelom/llfchain/state"
	"github.com/tolelom/llfchain/types"
)

// Handler holds all dependencies needed to serve RPC methods. This surface
// is intentionally narrow — it is an external collaborator of the
// consensus/execution core, not part of it.
type Handler struct {
	chain        *chainstore.ChainStore
	txs          *eventstore.TxPool
	state        *state.StateStore
	chainVersion int // expected tx version; used to reject cross-chain replay transactions
}

// NewHandler creates an RPC Handler.
func NewHandler(chain *chainstore.ChainStore, txs *eventstore.TxPool, st *state.StateStore, chainVersion int) *Handler {
	return &Handler{chain: chain, txs: txs, state: st, chainVersion: chainVersion}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return h.getBlockHeight(req)

	case "getBlock":
		return h.getBlock(req)

	case "getBalance":
		return h.getBalance(req)

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.txs.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBlockHeight(req Request) Response {
	top, err := h.chain.TopHeight()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, top)
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	var block *types.Block
	var err error
	switch {
	case params.Hash != "":
		block, err = h.chain.Block(params.Hash)
	case params.Height != nil:
		block, err = h.chain.BlockByHeight(*params.Height)
	default:
		var top int64
		top, err = h.chain.TopHeight()
		if err == nil {
			block, err = h.chain.BlockByHeight(top)
		}
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	acc, err := h.state.GetAccount(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": params.Address, "balance": acc.Balance, "nonce": acc.Nonce})
}

func (h *Handler) sendTx(req Request) Response {
	var tx types.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if tx.Version != h.chainVersion {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain version mismatch: got %d want %d", tx.Version, h.chainVersion))
	}
	if err := tx.Verify(); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if err := h.txs.Add(&tx, time.Now().UnixNano()); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]string{"tx_hash": tx.Hash})
}
