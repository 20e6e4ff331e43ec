package consensus

import (
	"sort"
	"time"

	"github.com/tolelom/llfchain/chainerr"
	"github.com/tolelom/llfchain/chainstore"
	"github.com/tolelom/llfchain/crypto"
	"github.com/tolelom/llfchain/types"
	"github.com/tolelom/llfchain/validation"
)

// propose builds and broadcasts this node's candidate block for height,
// once at least one transaction is pending. It always contributes a
// candidate (even if another validator's turns out to win Select); P0
// never itself fails the round.
func (e *Engine) propose(height int64, parent *types.BlockHeader) error {
	pending := e.txs.Pending(MaxProposalTxs)
	for len(pending) == 0 {
		time.Sleep(pollBackoff)
		pending = e.txs.Pending(MaxProposalTxs)
	}

	header := types.BlockHeader{
		Height:    height,
		Version:   1,
		ChainID:   e.chainID,
		Creator:   e.pub.Hex(),
		Timestamp: time.Now().UnixNano(),
	}
	if parent != nil {
		header.PrevHash = parent.BlockHash
	}

	txRoot, err := chainstore.ComputeTxRoot(pending)
	if err != nil {
		return err
	}
	header.TxRoot = txRoot

	block := &types.Block{Header: header, Transactions: pending}
	block.SignCandidate(e.priv)

	e.candidate.Put(block)
	return e.bus.BroadcastCandidate(block)
}

const pollBackoff = 20 * time.Millisecond

// selectCandidate runs P1: wait for candidates, validate their creators
// are known validators, then apply the time-window, max-tx-count and
// hash-distance tiebreaks in order until exactly one remains.
func (e *Engine) selectCandidate(height int64, parent *types.BlockHeader) (*types.Block, error) {
	n, f, err := e.validatorCounts()
	if err != nil {
		return nil, err
	}
	quorum := n - f

	candidates, err := e.candidate.Wait(height, n, quorum)
	if err != nil {
		return nil, err
	}

	candidates, err = e.filterKnownValidators(candidates)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, chainerr.NewRoundError("height %d: no candidates from known validators", height)
	}

	candidates = filterTimeWindow(candidates)
	candidates = filterMaxTxCount(candidates)
	if len(candidates) > 1 {
		candidates = filterHashDistance(candidates, parent)
	}
	if len(candidates) != 1 {
		return nil, chainerr.NewRoundError("height %d: select narrowed to %d candidates, want 1", height, len(candidates))
	}
	return candidates[0], nil
}

func (e *Engine) validatorCounts() (n, f int, err error) {
	return e.state.GetValidatorCount()
}

func (e *Engine) filterKnownValidators(candidates []*types.Block) ([]*types.Block, error) {
	out := make([]*types.Block, 0, len(candidates))
	for _, b := range candidates {
		pub, err := crypto.PubKeyFromHex(b.Header.Creator)
		if err != nil {
			continue
		}
		ok, err := e.state.IsValidator(pub.Address())
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// filterTimeWindow keeps candidates whose timestamp falls in
// [t_min, datum+0.5s] where datum = t_min + (t_max-t_min)/2.
func filterTimeWindow(candidates []*types.Block) []*types.Block {
	if len(candidates) <= 1 {
		return candidates
	}
	tMin, tMax := candidates[0].Header.Timestamp, candidates[0].Header.Timestamp
	for _, b := range candidates {
		if b.Header.Timestamp < tMin {
			tMin = b.Header.Timestamp
		}
		if b.Header.Timestamp > tMax {
			tMax = b.Header.Timestamp
		}
	}
	datum := tMin + (tMax-tMin)/2
	upper := datum + int64(500*time.Millisecond)

	out := make([]*types.Block, 0, len(candidates))
	for _, b := range candidates {
		if b.Header.Timestamp >= tMin && b.Header.Timestamp <= upper {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return candidates
	}
	return out
}

// filterMaxTxCount keeps only the candidates carrying the most
// transactions; on a further tie keeps the one with the earliest first
// transaction timestamp.
func filterMaxTxCount(candidates []*types.Block) []*types.Block {
	if len(candidates) <= 1 {
		return candidates
	}
	max := 0
	for _, b := range candidates {
		if len(b.Transactions) > max {
			max = len(b.Transactions)
		}
	}
	out := make([]*types.Block, 0, len(candidates))
	for _, b := range candidates {
		if len(b.Transactions) == max {
			out = append(out, b)
		}
	}
	if len(out) <= 1 {
		return out
	}

	earliest := firstTxTimestamp(out[0])
	for _, b := range out[1:] {
		if ts := firstTxTimestamp(b); ts < earliest {
			earliest = ts
		}
	}
	tied := make([]*types.Block, 0, len(out))
	for _, b := range out {
		if firstTxTimestamp(b) == earliest {
			tied = append(tied, b)
		}
	}
	return tied
}

func firstTxTimestamp(b *types.Block) int64 {
	if len(b.Transactions) == 0 {
		return 0
	}
	return b.Transactions[0].Timestamp
}

// filterHashDistance picks the candidate whose pre_hash has the greatest
// byte-wise absolute distance from parent's block hash; ties break on the
// lexicographically smallest pre_hash.
func filterHashDistance(candidates []*types.Block, parent *types.BlockHeader) []*types.Block {
	var parentHash string
	if parent != nil {
		parentHash = parent.BlockHash
	}

	best := candidates[0]
	bestDist := hashDistance(parentHash, best.Header.CandidateHash)
	for _, b := range candidates[1:] {
		dist := hashDistance(parentHash, b.Header.CandidateHash)
		switch {
		case dist > bestDist:
			best, bestDist = b, dist
		case dist == bestDist && b.Header.CandidateHash < best.Header.CandidateHash:
			best = b
		}
	}
	return []*types.Block{best}
}

func hashDistance(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0
	for i := 0; i < n; i++ {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}

// voteAndAggregate runs P2: cast a vote for selected, collect votes from
// the validator set, and aggregate per the dissent-threshold rule.
func (e *Engine) voteAndAggregate(height int64, selected *types.Block) (string, error) {
	v := &types.Vote{
		Version:       selected.Header.Version,
		BlockHeight:   height,
		CandidateHash: selected.Header.CandidateHash,
		Creator:       e.pub.Hex(),
	}
	v.Sign(e.priv)
	e.vote.Put(v)
	if err := e.bus.BroadcastVote(v); err != nil {
		return "", err
	}

	n, f, err := e.state.GetValidatorCount()
	if err != nil {
		return "", err
	}
	quorum := n - f

	votes, err := e.vote.Wait(height, n, quorum)
	if err != nil {
		return "", err
	}
	votes, err = e.filterValidatorVotes(votes)
	if err != nil {
		return "", err
	}

	return aggregateVotes(votes, selected.Header.CandidateHash, f)
}

func (e *Engine) filterValidatorVotes(votes []*types.Vote) ([]*types.Vote, error) {
	out := make([]*types.Vote, 0, len(votes))
	for _, v := range votes {
		pub, err := crypto.PubKeyFromHex(v.Creator)
		if err != nil {
			continue
		}
		ok, err := e.state.IsValidator(pub.Address())
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// aggregateVotes implements the dissent rule: unanimous votes for H win
// outright; otherwise a single dissenting hash with count >= f overrides
// H, no dissenting hash reaching f keeps H, and two or more dissenting
// hashes reaching f are ambiguous.
func aggregateVotes(votes []*types.Vote, ownChoice string, f int) (string, error) {
	counts := make(map[string]int)
	for _, v := range votes {
		counts[v.CandidateHash]++
	}
	if len(counts) == 1 {
		for h := range counts {
			return h, nil
		}
	}

	var dissenting []string
	for h, c := range counts {
		if h != ownChoice && c >= f {
			dissenting = append(dissenting, h)
		}
	}
	switch len(dissenting) {
	case 0:
		return ownChoice, nil
	case 1:
		return dissenting[0], nil
	default:
		sort.Strings(dissenting)
		return "", chainerr.NewRoundError("ambiguous vote aggregation: %d dissenting hashes at or above threshold %d", len(dissenting), f)
	}
}

// confirmChoice runs P3: broadcast a confirm for aggregated, collect
// confirms, and require unanimity or quorum agreement.
func (e *Engine) confirmChoice(height int64, aggregated string) (string, error) {
	c := &types.Confirm{Height: height, Creator: e.pub.Hex(), AggregatedHash: aggregated}
	c.Sign(e.priv)
	e.confirm.Put(c)
	if err := e.bus.BroadcastConfirm(c); err != nil {
		return "", err
	}

	n, f, err := e.state.GetValidatorCount()
	if err != nil {
		return "", err
	}
	quorum := n - f

	confirms, err := e.confirm.Wait(height, n, quorum)
	if err != nil {
		return "", err
	}
	confirms, err = e.filterValidatorConfirms(confirms)
	if err != nil {
		return "", err
	}
	if len(confirms) < quorum {
		return "", chainerr.NewRoundError("height %d: only %d confirms, need quorum %d", height, len(confirms), quorum)
	}

	counts := make(map[string]int)
	for _, c := range confirms {
		counts[c.AggregatedHash]++
	}
	for hash, count := range counts {
		if count == len(confirms) || count >= quorum {
			return hash, nil
		}
	}
	return "", chainerr.NewRoundError("height %d: no confirmed hash reached quorum %d", height, quorum)
}

func (e *Engine) filterValidatorConfirms(confirms []*types.Confirm) ([]*types.Confirm, error) {
	out := make([]*types.Confirm, 0, len(confirms))
	for _, c := range confirms {
		pub, err := crypto.PubKeyFromHex(c.Creator)
		if err != nil {
			continue
		}
		ok, err := e.state.IsValidator(pub.Address())
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// finalizeRound runs P4: locate the confirmed candidate; if this node is
// its creator, build/execute/sign/broadcast the finalized block; every
// validator (creator included) then waits on the finalize queue and
// commits what arrives there.
func (e *Engine) finalizeRound(height int64, confirmedHash string, parent *types.BlockHeader) error {
	var matched *types.Block
	for _, b := range e.candidate.Blocks(height) {
		if b.Header.CandidateHash == confirmedHash {
			matched = b
			break
		}
	}
	if matched == nil {
		return chainerr.NewRoundError("height %d: no local candidate matches confirmed hash %s", height, confirmedHash)
	}

	if matched.Header.Creator == e.pub.Hex() {
		votes := e.vote.Votes(height)
		matched.Votes = votes
		voteRoot, err := chainstore.ComputeVoteRoot(votes)
		if err != nil {
			return err
		}
		matched.Header.VoteRoot = voteRoot

		executed, _, err := e.block.ExecuteWithTimeout(matched, e.executionTimeout)
		if err != nil {
			return chainerr.NewFinalizeError("execute height %d: %v", height, err)
		}
		executed.Header.FinalizeTimestamp = time.Now().UnixNano()
		executed.SignFinal(e.priv)

		e.finalize.Put(executed)
		if err := e.bus.BroadcastFinalize(executed); err != nil {
			return err
		}
	}

	block := e.finalize.Wait(height)
	if err := validation.ValidateBlock(block, parent, e.chainID); err != nil {
		return chainerr.NewFinalizeError("finalized block failed validation: %v", err)
	}
	if err := validation.ValidateFinalize(block); err != nil {
		return chainerr.NewFinalizeError("finalized block signature invalid: %v", err)
	}
	if err := e.block.Commit(block); err != nil {
		return err
	}
	e.purge(height)
	return nil
}
