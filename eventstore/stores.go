package eventstore

import (
	"time"

	"github.com/tolelom/llfchain/types"
)

// Phase timeouts, per the round-failure handling table: P1 Select waits up
// to CandidateTimeout for candidates, P2 Vote up to VoteTimeout, P3 Confirm
// up to ConfirmTimeout. pollInterval is how often Wait rechecks the count.
const (
	CandidateTimeout = 3 * time.Second
	VoteTimeout      = 2 * time.Second
	ConfirmTimeout   = 2 * time.Second
	pollInterval     = 20 * time.Millisecond
)

// candidateEntry adapts *types.Block (a proposed candidate) to roundEntry.
type candidateEntry struct{ block *types.Block }

func (c candidateEntry) entryHeight() int64   { return c.block.Header.Height }
func (c candidateEntry) entryCreator() string { return c.block.Header.Creator }

// CandidateStore holds one proposed candidate block per (height, creator).
type CandidateStore struct{ *RoundStore[candidateEntry] }

// NewCandidateStore creates an empty candidate store.
func NewCandidateStore() *CandidateStore { return &CandidateStore{NewRoundStore[candidateEntry]()} }

// Put records a proposed candidate block.
func (s *CandidateStore) Put(block *types.Block) { s.RoundStore.Put(candidateEntry{block}) }

// Blocks returns every candidate block proposed at height.
func (s *CandidateStore) Blocks(height int64) []*types.Block {
	entries := s.RoundStore.Get(height)
	out := make([]*types.Block, len(entries))
	for i, e := range entries {
		out[i] = e.block
	}
	return out
}

// Wait blocks for candidates at height per the quorum+timeout rule.
func (s *CandidateStore) Wait(height int64, replicaCount, quorum int) ([]*types.Block, error) {
	entries, err := s.RoundStore.Wait(height, replicaCount, quorum, CandidateTimeout, pollInterval)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Block, len(entries))
	for i, e := range entries {
		out[i] = e.block
	}
	return out, nil
}

// voteEntry adapts *types.Vote to roundEntry.
type voteEntry struct{ vote *types.Vote }

func (v voteEntry) entryHeight() int64   { return v.vote.BlockHeight }
func (v voteEntry) entryCreator() string { return v.vote.Creator }

// VoteStore holds one cast vote per (height, creator).
type VoteStore struct{ *RoundStore[voteEntry] }

// NewVoteStore creates an empty vote store.
func NewVoteStore() *VoteStore { return &VoteStore{NewRoundStore[voteEntry]()} }

// Put records a cast vote.
func (s *VoteStore) Put(v *types.Vote) { s.RoundStore.Put(voteEntry{v}) }

// Votes returns every vote cast at height.
func (s *VoteStore) Votes(height int64) []*types.Vote {
	entries := s.RoundStore.Get(height)
	out := make([]*types.Vote, len(entries))
	for i, e := range entries {
		out[i] = e.vote
	}
	return out
}

// Wait blocks for votes at height per the quorum+timeout rule.
func (s *VoteStore) Wait(height int64, replicaCount, quorum int) ([]*types.Vote, error) {
	entries, err := s.RoundStore.Wait(height, replicaCount, quorum, VoteTimeout, pollInterval)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Vote, len(entries))
	for i, e := range entries {
		out[i] = e.vote
	}
	return out, nil
}

// confirmEntry adapts *types.Confirm to roundEntry.
type confirmEntry struct{ confirm *types.Confirm }

func (c confirmEntry) entryHeight() int64   { return c.confirm.Height }
func (c confirmEntry) entryCreator() string { return c.confirm.Creator }

// ConfirmStore holds one confirm message per (height, creator).
type ConfirmStore struct{ *RoundStore[confirmEntry] }

// NewConfirmStore creates an empty confirm store.
func NewConfirmStore() *ConfirmStore { return &ConfirmStore{NewRoundStore[confirmEntry]()} }

// Put records a confirm message.
func (s *ConfirmStore) Put(c *types.Confirm) { s.RoundStore.Put(confirmEntry{c}) }

// Confirms returns every confirm message recorded at height.
func (s *ConfirmStore) Confirms(height int64) []*types.Confirm {
	entries := s.RoundStore.Get(height)
	out := make([]*types.Confirm, len(entries))
	for i, e := range entries {
		out[i] = e.confirm
	}
	return out
}

// Wait blocks for confirms at height per the quorum+timeout rule.
func (s *ConfirmStore) Wait(height int64, replicaCount, quorum int) ([]*types.Confirm, error) {
	entries, err := s.RoundStore.Wait(height, replicaCount, quorum, ConfirmTimeout, pollInterval)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Confirm, len(entries))
	for i, e := range entries {
		out[i] = e.confirm
	}
	return out, nil
}
