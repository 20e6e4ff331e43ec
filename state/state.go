// Package state implements the world-state StateStore: accounts, balances,
// nonces, delegation, code and the validator registry, all persisted
// through a single Merkle-Patricia trie rooted at state_root.
package state

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tolelom/llfchain/chainerr"
	"github.com/tolelom/llfchain/trie"
	"github.com/tolelom/llfchain/types"
)

// constantRepKey is the reserved trie key holding the validator list, the
// Go analogue of the reference store's trie_key("constant_rep").
var constantRepKey = trie.Key([]byte("constant_rep"))

// StateStore is the world state over one Trie. Decoded accounts are
// cached by address; code blobs are cached by code hash. Not safe for
// concurrent use.
type StateStore struct {
	tr  *trie.Trie
	min int64

	accounts map[string]*types.Account
	codes    map[string][]byte
}

// New opens a StateStore over tr. min is the minimum self-delegated stake
// required for RegisterValidator to take effect.
func New(tr *trie.Trie, min int64) *StateStore {
	return &StateStore{
		tr:       tr,
		min:      min,
		accounts: make(map[string]*types.Account),
		codes:    make(map[string][]byte),
	}
}

// StateRoot returns the trie root backing this view.
func (s *StateStore) StateRoot() string {
	return s.tr.Root()
}

func accountKey(addr string) string {
	return trie.Key([]byte(addr))
}

func (s *StateStore) getAccount(addr string) (*types.Account, error) {
	if acc, ok := s.accounts[addr]; ok {
		return acc, nil
	}
	raw, err := s.tr.Get(accountKey(addr))
	if err == trie.ErrNotFound {
		acc := types.NewAccount(addr)
		s.accounts[addr] = acc
		return acc, nil
	}
	if err != nil {
		return nil, err
	}
	var acc types.Account
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, chainerr.NewSerializeError("account %s: %v", addr, err)
	}
	s.accounts[addr] = &acc
	return &acc, nil
}

func (s *StateStore) setAccount(acc *types.Account) error {
	raw, err := json.Marshal(acc)
	if err != nil {
		return chainerr.NewSerializeError("account %s: %v", acc.Address, err)
	}
	if _, err := s.tr.Put(accountKey(acc.Address), raw); err != nil {
		return err
	}
	s.accounts[acc.Address] = acc
	return nil
}

// GetAccount returns the decoded account at addr, a zero-value account if
// it has never been written.
func (s *StateStore) GetAccount(addr string) (*types.Account, error) {
	return s.getAccount(addr)
}

// GetBalance returns the account's balance.
func (s *StateStore) GetBalance(addr string) (int64, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// GetNonce returns the account's nonce.
func (s *StateStore) GetNonce(addr string) (uint64, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return 0, err
	}
	return acc.Nonce, nil
}

// GetDelegatedBalance returns the account's delegated-stake-balance (the
// total staked to it by any delegator).
func (s *StateStore) GetDelegatedBalance(addr string) (int64, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return 0, err
	}
	return acc.DelegatedStakeBalance, nil
}

// IncreaseNonce bumps addr's nonce by one.
func (s *StateStore) IncreaseNonce(addr string) error {
	acc, err := s.getAccount(addr)
	if err != nil {
		return err
	}
	acc.Nonce++
	return s.setAccount(acc)
}

// ComputeBalance adds the signed delta to addr's balance. Fails with
// ValidationError if the result would be negative.
func (s *StateStore) ComputeBalance(addr string, delta int64) error {
	acc, err := s.getAccount(addr)
	if err != nil {
		return err
	}
	next := acc.Balance + delta
	if next < 0 {
		return chainerr.NewValidationError("balance of %s would go negative (%d + %d)", addr, acc.Balance, delta)
	}
	acc.Balance = next
	return s.setAccount(acc)
}

// SetBalance overwrites addr's balance unconditionally.
func (s *StateStore) SetBalance(addr string, balance int64) error {
	acc, err := s.getAccount(addr)
	if err != nil {
		return err
	}
	acc.Balance = balance
	return s.setAccount(acc)
}

func (s *StateStore) computeStakeBalance(addr string, delta int64) error {
	acc, err := s.getAccount(addr)
	if err != nil {
		return err
	}
	acc.DelegatedStakeBalance += delta
	return s.setAccount(acc)
}

// GetCode returns the code blob for a contract address's code hash.
func (s *StateStore) GetCode(addr string) ([]byte, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc.CodeHash == "" {
		return nil, nil
	}
	if code, ok := s.codes[acc.CodeHash]; ok {
		return code, nil
	}
	raw, err := s.tr.Get(acc.CodeHash)
	if err == trie.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.codes[acc.CodeHash] = raw
	return raw, nil
}

// SetCode installs code on a contract account and caches it by code hash.
func (s *StateStore) SetCode(addr string, code []byte) error {
	acc, err := s.getAccount(addr)
	if err != nil {
		return err
	}
	hash := trie.Key(code)
	s.codes[hash] = code
	if _, err := s.tr.Put(hash, code); err != nil {
		return err
	}
	acc.CodeHash = hash
	return s.setAccount(acc)
}

// SetDelegated moves value from from's balance to to's delegated-stake-
// balance, recording the transfer under DelegationKey(from, to). Repeated
// calls for the same (from, to) pair accumulate into one record.
func (s *StateStore) SetDelegated(from, to string, value int64) error {
	fromAcc, err := s.getAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := s.getAccount(to)
	if err != nil {
		return err
	}

	key := types.DelegationKey(from, to)
	if !contains(fromAcc.DelegatedList, key) {
		fromAcc.DelegatedList = append(fromAcc.DelegatedList, key)
	}
	if !contains(toAcc.DelegatedList, key) {
		toAcc.DelegatedList = append(toAcc.DelegatedList, key)
	}
	if err := s.setAccount(fromAcc); err != nil {
		return err
	}
	if err := s.setAccount(toAcc); err != nil {
		return err
	}

	if err := s.ComputeBalance(from, -value); err != nil {
		return err
	}
	if err := s.computeStakeBalance(to, value); err != nil {
		return err
	}
	return s.putDelegationRecord(key, from, to, value)
}

func (s *StateStore) putDelegationRecord(key, from, to string, value int64) error {
	raw, err := s.tr.Get(key)
	if err == trie.ErrNotFound {
		rec := types.Delegation{From: from, To: to, Amount: value}
		return s.putDelegation(key, rec)
	}
	if err != nil {
		return err
	}
	var existing types.Delegation
	if err := json.Unmarshal(raw, &existing); err != nil {
		return chainerr.NewSerializeError("delegation %s: %v", key, err)
	}
	if existing.From != from || existing.To != to {
		return chainerr.NewValidationError("delegation key %s collides: stored (%s,%s), got (%s,%s)",
			key, existing.From, existing.To, from, to)
	}
	existing.Amount += value
	return s.putDelegation(key, existing)
}

func (s *StateStore) putDelegation(key string, rec types.Delegation) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return chainerr.NewSerializeError("delegation %s: %v", key, err)
	}
	_, err = s.tr.Put(key, raw)
	return err
}

// GetDelegated returns every delegation record addr is a party to (as
// sender or recipient).
func (s *StateStore) GetDelegated(addr string) ([]types.Delegation, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return nil, err
	}
	out := make([]types.Delegation, 0, len(acc.DelegatedList))
	for _, key := range acc.DelegatedList {
		raw, err := s.tr.Get(key)
		if err != nil {
			return nil, err
		}
		var rec types.Delegation
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, chainerr.NewSerializeError("delegation %s: %v", key, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetAccountDelegate sums addr's self-delegations (records where From ==
// To == addr), the figure RegisterValidator checks against minimum.
func (s *StateStore) GetAccountDelegate(addr string) (int64, error) {
	delegations, err := s.GetDelegated(addr)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, d := range delegations {
		if d.From == addr && d.To == addr {
			total += d.Amount
		}
	}
	return total, nil
}

// Commit asserts every cached account either matches what the trie
// currently holds for it or is absent there, then flushes the trie.
// Fails with CacheError on a mismatch.
func (s *StateStore) Commit() (string, error) {
	for addr, acc := range s.accounts {
		want, err := json.Marshal(acc)
		if err != nil {
			return "", chainerr.NewSerializeError("account %s: %v", addr, err)
		}
		got, err := s.tr.Get(accountKey(addr))
		if err == trie.ErrNotFound {
			continue
		}
		if err != nil {
			return "", err
		}
		if !bytes.Equal(got, want) {
			return "", chainerr.NewCacheError("account %s: cache and trie disagree", addr)
		}
	}
	root, err := s.tr.Commit()
	if err != nil {
		return "", fmt.Errorf("state: commit: %w", err)
	}
	return root, nil
}

// Clear drops the account/code caches and discards uncommitted trie nodes.
func (s *StateStore) Clear() {
	s.accounts = make(map[string]*types.Account)
	s.codes = make(map[string][]byte)
	s.tr.Clear()
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
