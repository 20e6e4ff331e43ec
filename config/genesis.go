package config

import (
	"fmt"

	"github.com/tolelom/llfchain/chainerr"
	"github.com/tolelom/llfchain/chainstore"
	"github.com/tolelom/llfchain/crypto"
	"github.com/tolelom/llfchain/engine"
	"github.com/tolelom/llfchain/state"
	"github.com/tolelom/llfchain/types"
)

// DeclareGenesis runs the BlockEngine's genesis_declare: it credits the
// configured creator balance, then for each preconfigured validator moves
// minimum_validator_stake from the creator to the validator, self-delegates
// that stake, and registers it. It builds, executes and commits the
// resulting height-0 block, checking the computed state_root and
// block_hash against the configured constants; a mismatch is a
// ValidationError (the process's "genesis mismatch" exit condition).
//
// The config carries creator and validator identities as public-key hex
// (so the genesis declaration itself can be signed and verified like any
// other chain message); every state-store key is the address derived
// from that public key, since that is the convention the executor and
// consensus engine use for every other account lookup.
func DeclareGenesis(cfg *Config, st *state.StateStore, eng *engine.BlockEngine) (*types.Block, error) {
	g := cfg.Genesis

	creatorPub, err := crypto.PubKeyFromHex(g.CreatorPubKey)
	if err != nil {
		return nil, fmt.Errorf("genesis creator_pub_key: %w", err)
	}
	creatorAddr := creatorPub.Address()

	if err := st.ComputeBalance(creatorAddr, g.CreatorBalance); err != nil {
		return nil, err
	}

	for _, v := range g.Validators {
		pub, err := crypto.PubKeyFromHex(v.PubKey)
		if err != nil {
			return nil, fmt.Errorf("genesis validator %s pub_key: %w", v.NodeID, err)
		}
		addr := pub.Address()

		if err := st.ComputeBalance(creatorAddr, -g.MinimumValidatorStake); err != nil {
			return nil, err
		}
		if err := st.ComputeBalance(addr, g.MinimumValidatorStake); err != nil {
			return nil, err
		}
		if err := st.SetDelegated(addr, addr, g.MinimumValidatorStake); err != nil {
			return nil, err
		}
		if err := st.RegisterValidator(addr, v.NodeID, v.Signature); err != nil {
			return nil, err
		}
	}

	txRoot, err := chainstore.ComputeTxRoot(nil)
	if err != nil {
		return nil, err
	}

	block := &types.Block{
		Header: types.BlockHeader{
			PrevHash:  "",
			Height:    0,
			TxRoot:    txRoot,
			Creator:   "",
			Timestamp: 0,
			Version:   g.ChainVersion,
			ChainID:   g.ChainID,
		},
	}
	block.Header.CandidateHash = block.Header.ComputeCandidateHash()

	executed, _, err := eng.Execute(block)
	if err != nil {
		return nil, err
	}
	executed.Header.BlockHash = executed.Header.ComputeBlockHash()

	if g.StateRoot != "" && executed.Header.StateRoot != g.StateRoot {
		return nil, chainerr.NewValidationError(
			"genesis state_root mismatch: computed %s configured %s", executed.Header.StateRoot, g.StateRoot)
	}
	if g.BlockHash != "" && executed.Header.BlockHash != g.BlockHash {
		return nil, chainerr.NewValidationError(
			"genesis block_hash mismatch: computed %s configured %s", executed.Header.BlockHash, g.BlockHash)
	}

	if err := eng.Commit(executed); err != nil {
		return nil, err
	}
	return executed, nil
}
