package consensus

import "github.com/tolelom/llfchain/types"

// Bootstrap returns the next height to run and the parent header to chain
// off, read from the persisted chain tip — the re-sync step a node runs
// at startup and again after a FinalizeError forces it back into sync
// mode.
func (e *Engine) Bootstrap() (nextHeight int64, parent *types.BlockHeader, err error) {
	top, err := e.chain.TopHeight()
	if err != nil {
		return 0, nil, err
	}
	if top < 0 {
		return 0, nil, nil
	}
	header, err := e.chain.Header(top)
	if err != nil {
		return 0, nil, err
	}
	return top + 1, header, nil
}

// CatchUp drains every finalized block past afterHeight and commits them
// in order — the >1-queued-blocks case from the round-failure handling
// table.
func (e *Engine) CatchUp(afterHeight int64) (int64, error) {
	for {
		backlog := e.finalize.Drain(afterHeight)
		if len(backlog) == 0 {
			return afterHeight, nil
		}
		for _, block := range backlog {
			parent, err := e.chain.Header(block.Header.Height - 1)
			if err != nil && block.Header.Height > 0 {
				return afterHeight, err
			}
			if err := e.adoptAndCommit(block, parent); err != nil {
				return afterHeight, err
			}
			afterHeight = block.Header.Height
		}
	}
}
