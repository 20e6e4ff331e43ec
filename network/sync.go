package network

import (
	"encoding/json"
	"log"

	"github.com/tolelom/llfchain/chainstore"
	"github.com/tolelom/llfchain/types"
)

// GetBlocksRequest asks a peer for blocks starting at FromHeight.
type GetBlocksRequest struct {
	FromHeight int64 `json:"from_height"`
	Limit      int   `json:"limit"`
}

// BlocksResponse carries a batch of blocks.
type BlocksResponse struct {
	Blocks []*types.Block `json:"blocks"`
}

// Adopter validates and commits a block obtained out-of-band during sync,
// re-bootstrapping from chain peers; consensus.Engine implements it.
type Adopter interface {
	Adopt(block *types.Block, parent *types.BlockHeader) error
}

// Syncer handles block synchronisation between nodes: a node that falls
// behind (FinalizeError re-bootstrap, or first start after a restart)
// requests the missing range and replays it in order.
type Syncer struct {
	bus     *Bus
	chain   *chainstore.ChainStore
	adopter Adopter
}

// NewSyncer creates a Syncer that requests missing blocks from peers and
// adopts them via adopter.
func NewSyncer(bus *Bus, chain *chainstore.ChainStore, adopter Adopter) *Syncer {
	s := &Syncer{bus: bus, chain: chain, adopter: adopter}
	bus.Handle(MsgGetBlocks, s.handleGetBlocks)
	bus.Handle(MsgBlocks, s.handleBlocks)
	return s
}

// RequestBlocks asks peer for blocks starting at fromHeight.
func (s *Syncer) RequestBlocks(peer *Peer, fromHeight int64) error {
	req, err := json.Marshal(GetBlocksRequest{FromHeight: fromHeight, Limit: 50})
	if err != nil {
		return err
	}
	return peer.Send(Message{Type: MsgGetBlocks, Payload: req})
}

func (s *Syncer) handleGetBlocks(peer *Peer, msg Message) {
	var req GetBlocksRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return
	}
	if req.Limit <= 0 || req.Limit > 200 {
		req.Limit = 50
	}
	blocks := make([]*types.Block, 0, req.Limit)
	for h := req.FromHeight; h < req.FromHeight+int64(req.Limit); h++ {
		b, err := s.chain.BlockByHeight(h)
		if err != nil {
			break
		}
		blocks = append(blocks, b)
	}
	data, err := json.Marshal(BlocksResponse{Blocks: blocks})
	if err != nil {
		return
	}
	_ = peer.Send(Message{Type: MsgBlocks, Payload: data})
}

func (s *Syncer) handleBlocks(_ *Peer, msg Message) {
	var resp BlocksResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		return
	}
	for _, b := range resp.Blocks {
		parent, err := s.chain.Header(b.Header.Height - 1)
		if err != nil && b.Header.Height > 0 {
			log.Printf("[sync] block %d: no local parent header yet: %v", b.Header.Height, err)
			continue
		}
		if err := s.adopter.Adopt(b, parent); err != nil {
			log.Printf("[sync] block %d adopt failed: %v", b.Header.Height, err)
			continue
		}
	}
}
