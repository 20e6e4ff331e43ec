package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tolelom/llfchain/crypto"
	"github.com/tolelom/llfchain/execution"
)

// TLSConfig holds paths to the PEM files needed for mTLS.
// When nil or all paths empty, the node falls back to plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`   // CA certificate PEM path
	NodeCert string `json:"node_cert"` // node certificate PEM path
	NodeKey  string `json:"node_key"`  // node private key PEM path
}

// SeedPeer identifies a remote node to connect to on startup.
type SeedPeer struct {
	ID   string `json:"id"`   // remote node ID
	Addr string `json:"addr"` // host:port
}

// ValidatorConfig is one of the genesis-declared validators: the
// validator's public-key hex, its node ID, and the signature the creator
// used to authorize the registration (see BlockEngine.genesis_declare).
// genesis_declare derives the validator's account address from PubKey
// before touching the state store, the same way every other signed
// message in the chain keys its state lookups off a derived address
// rather than the raw public key.
type ValidatorConfig struct {
	PubKey    string `json:"pub_key"`
	NodeID    string `json:"node_id"`
	Signature string `json:"signature"`
}

// GenesisConfig describes the chain's genesis block: the creator's initial
// balance, the validators to register with a minimum self-delegated stake,
// and the constants genesis_declare must reproduce exactly or fail with
// ValidationError.
type GenesisConfig struct {
	ChainID               string            `json:"chain_id"`
	ChainVersion          int               `json:"chain_version"`
	CreatorPubKey         string            `json:"creator_pub_key"`
	CreatorBalance        int64             `json:"creator_balance"`
	MinimumValidatorStake int64             `json:"minimum_validator_stake"`
	Validators            []ValidatorConfig `json:"validators"`

	// Constants the computed genesis block must match; mismatch is a
	// ValidationError (spec's "genesis mismatch" exit code).
	StateRoot string `json:"state_root"`
	BlockHash string `json:"block_hash"`
}

// Config holds all node configuration.
type Config struct {
	NodeID  string `json:"node_id"`
	DataDir string `json:"data_dir"`
	RPCPort int    `json:"rpc_port"`
	P2PPort int    `json:"p2p_port"`

	// MaxCandidateTxs and the three phase timeouts below are loaded and
	// saved but not read by the node: P0 Propose uses the fixed
	// consensus.MaxProposalTxs (60) and the P1-P3 waits use the fixed
	// eventstore.CandidateTimeout/VoteTimeout/ConfirmTimeout (3s/2s/2s).
	MaxCandidateTxs int `json:"max_candidate_txs"`

	CandidateTimeoutMS int `json:"candidate_timeout_ms"`
	VoteTimeoutMS      int `json:"vote_timeout_ms"`
	ConfirmTimeoutMS   int `json:"confirm_timeout_ms"`
	ExecutionTimeoutMS int `json:"execution_timeout_ms"` // P4 Finalize execute budget; 0 → 30000

	FeeRates execution.FeeRates `json:"fee_rates"`

	Genesis GenesisConfig `json:"genesis"`

	SeedPeers    []SeedPeer `json:"seed_peers,omitempty"`     // initial peers to connect to
	TLS          *TLSConfig `json:"tls,omitempty"`            // nil → plain TCP
	RPCAuthToken string     `json:"rpc_auth_token,omitempty"` // empty → no auth
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:             "node0",
		DataDir:            "./data",
		RPCPort:            8545,
		P2PPort:            30303,
		MaxCandidateTxs:    60,
		CandidateTimeoutMS: 3000,
		VoteTimeoutMS:      2000,
		ConfirmTimeoutMS:   2000,
		ExecutionTimeoutMS: 30000,
		FeeRates:           execution.FeeRates{Execute: 2, Create: 5, Call: 4},
		Genesis: GenesisConfig{
			ChainID:      "llfchain-dev",
			ChainVersion: 1,
		},
	}
}

func (c *Config) CandidateTimeout() time.Duration { return time.Duration(c.CandidateTimeoutMS) * time.Millisecond }
func (c *Config) VoteTimeout() time.Duration      { return time.Duration(c.VoteTimeoutMS) * time.Millisecond }
func (c *Config) ConfirmTimeout() time.Duration   { return time.Duration(c.ConfirmTimeoutMS) * time.Millisecond }
func (c *Config) ExecutionTimeout() time.Duration { return time.Duration(c.ExecutionTimeoutMS) * time.Millisecond }

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Genesis.ChainID == "" {
		return fmt.Errorf("genesis.chain_id must not be empty")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port must be 1-65535, got %d", c.RPCPort)
	}
	if c.P2PPort <= 0 || c.P2PPort > 65535 {
		return fmt.Errorf("p2p_port must be 1-65535, got %d", c.P2PPort)
	}
	if c.RPCPort == c.P2PPort {
		return fmt.Errorf("rpc_port and p2p_port must not be the same (%d)", c.RPCPort)
	}
	if c.Genesis.MinimumValidatorStake <= 0 {
		return fmt.Errorf("genesis.minimum_validator_stake must be positive")
	}
	if _, err := crypto.PubKeyFromHex(c.Genesis.CreatorPubKey); err != nil {
		return fmt.Errorf("genesis.creator_pub_key: %w", err)
	}
	if len(c.Genesis.Validators) == 0 {
		return fmt.Errorf("genesis.validators must not be empty")
	}
	for i, v := range c.Genesis.Validators {
		if _, err := crypto.PubKeyFromHex(v.PubKey); err != nil {
			return fmt.Errorf("genesis.validators[%d].pub_key: %w", i, err)
		}
		if v.NodeID == "" {
			return fmt.Errorf("genesis.validators[%d].node_id must not be empty", i)
		}
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
