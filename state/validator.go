package state

import (
	"encoding/json"

	"github.com/tolelom/llfchain/chainerr"
	"github.com/tolelom/llfchain/trie"
)

// ValidatorRecord is one entry in the constant_rep validator list.
type ValidatorRecord struct {
	NodeID    string `json:"node_id"`
	Address   string `json:"address"`
	Delegated int64  `json:"delegated"`
}

// RegisterValidator attaches nodeID/signature to addr's account and
// appends it to the validator list, but only if addr's self-delegated
// stake (GetAccountDelegate) is at least the configured minimum. Below
// that threshold this is a silent no-op, not an error.
func (s *StateStore) RegisterValidator(addr, nodeID, signature string) error {
	self, err := s.GetAccountDelegate(addr)
	if err != nil {
		return err
	}
	if self < s.min {
		return nil
	}

	acc, err := s.getAccount(addr)
	if err != nil {
		return err
	}
	acc.ValidatorID = nodeID
	acc.RegistrationSignature = signature
	if err := s.setAccount(acc); err != nil {
		return err
	}

	list, err := s.constValidatorList()
	if err != nil {
		return err
	}
	list = append(list, ValidatorRecord{
		NodeID:    nodeID,
		Address:   addr,
		Delegated: acc.DelegatedStakeBalance,
	})
	return s.putConstValidatorList(list)
}

func (s *StateStore) constValidatorList() ([]ValidatorRecord, error) {
	raw, err := s.tr.Get(constantRepKey)
	if err == trie.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var list []ValidatorRecord
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, chainerr.NewSerializeError("validator list: %v", err)
	}
	return list, nil
}

func (s *StateStore) putConstValidatorList(list []ValidatorRecord) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return chainerr.NewSerializeError("validator list: %v", err)
	}
	_, err = s.tr.Put(constantRepKey, raw)
	return err
}

// GetConstValidatorList returns the full validator record list.
func (s *StateStore) GetConstValidatorList() ([]ValidatorRecord, error) {
	return s.constValidatorList()
}

// GetValidatorIDs returns every registered validator's node id.
func (s *StateStore) GetValidatorIDs() ([]string, error) {
	list, err := s.constValidatorList()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(list))
	for i, r := range list {
		ids[i] = r.NodeID
	}
	return ids, nil
}

// GetValidatorSet returns every registered validator's address.
func (s *StateStore) GetValidatorSet() ([]string, error) {
	list, err := s.constValidatorList()
	if err != nil {
		return nil, err
	}
	addrs := make([]string, len(list))
	for i, r := range list {
		addrs[i] = r.Address
	}
	return addrs, nil
}

// IsValidator reports whether addr is in the validator set.
func (s *StateStore) IsValidator(addr string) (bool, error) {
	set, err := s.GetValidatorSet()
	if err != nil {
		return false, err
	}
	for _, a := range set {
		if a == addr {
			return true, nil
		}
	}
	return false, nil
}

// GetValidatorCount returns the validator set size n and the tolerated
// byzantine fault count f = floor((n-1)/3).
func (s *StateStore) GetValidatorCount() (n int, f int, err error) {
	list, err := s.constValidatorList()
	if err != nil {
		return 0, 0, err
	}
	n = len(list)
	if n == 0 {
		return 0, 0, nil
	}
	f = (n - 1) / 3
	return n, f, nil
}

// Quorum returns n - f, the number of matching entries required to
// satisfy consensus at the current validator set size.
func (s *StateStore) Quorum() (int, error) {
	n, f, err := s.GetValidatorCount()
	if err != nil {
		return 0, err
	}
	return n - f, nil
}
