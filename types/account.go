package types

import "github.com/tolelom/llfchain/crypto"

// Account is one entry in the world state.
type Account struct {
	Address               string            `json:"address"`
	Nonce                 uint64            `json:"nonce"`
	Balance               int64             `json:"balance"`
	DelegatedList         []string          `json:"delegated_list,omitempty"`
	DelegatedStakeBalance int64             `json:"delegated_stake_balance"`
	ValidatorID           string            `json:"validator_id,omitempty"`
	RegistrationSignature string            `json:"registration_signature,omitempty"`
	State                 map[string]string `json:"state,omitempty"`
	CodeHash              string            `json:"code_hash,omitempty"`
}

// NewAccount returns a zero-value account for addr, the shape StateStore
// returns for an address that has never been written.
func NewAccount(addr string) *Account {
	return &Account{Address: addr}
}

// IsValidator reports whether the account has a registered node id.
func (a *Account) IsValidator() bool {
	return a.ValidatorID != ""
}

// IsContract reports whether the address is a contract address (gBc-
// prefixed) rather than an externally-owned account (gBx-prefixed).
func (a *Account) IsContract() bool {
	return len(a.Address) >= len(crypto.AddrContract) && a.Address[:len(crypto.AddrContract)] == crypto.AddrContract
}

// Delegation records a self-accumulating stake transfer from one account to
// another, keyed by DelegationKey(from, to).
type Delegation struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

// DelegationKey derives the trie key for a (from, to) delegation pair:
// hash(from||to).
func DelegationKey(from, to string) string {
	return crypto.HashConcat([]byte(from), []byte(to))
}
