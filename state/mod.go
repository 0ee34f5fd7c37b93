// Package state defines the snapshot of a community contract as it is
// returned by a contract reader.
//
// A snapshot is read-only once it has been produced. The containers holding
// accounts preserve the order in which the accounts were inserted, which is
// the order the JSON document lists them in. The weighted selection of a
// holder depends on that order to be deterministic.
package state

import (
	"encoding/json"

	"golang.org/x/xerrors"
)

// Vote statuses.
const (
	StatusActive       = "active"
	StatusQuorumFailed = "quorumFailed"
	StatusPassed       = "passed"
	StatusFailed       = "failed"
)

// Vote types.
const (
	VoteMint       = "mint"
	VoteMintLocked = "mintLocked"
	VoteBurnVault  = "burnVault"
	VoteIndicative = "indicative"
	VoteSet        = "set"
)

// VaultEntry is an amount of tokens locked by an account between two block
// heights.
type VaultEntry struct {
	Balance uint64 `json:"balance"`
	Start   uint64 `json:"start"`
	End     uint64 `json:"end"`
}

// Vote is a proposal of the community and the tally of the ballots cast so
// far.
type Vote struct {
	Status      string      `json:"status"`
	Type        string      `json:"type"`
	Note        string      `json:"note"`
	Yays        uint64      `json:"yays"`
	Nays        uint64      `json:"nays"`
	Voted       []string    `json:"voted"`
	Start       uint64      `json:"start"`
	TotalWeight uint64      `json:"totalWeight"`
	Recipient   string      `json:"recipient,omitempty"`
	Target      string      `json:"target,omitempty"`
	Qty         uint64      `json:"qty,omitempty"`
	Key         string      `json:"key,omitempty"`
	Value       interface{} `json:"value,omitempty"`
	LockLength  uint64      `json:"lockLength,omitempty"`
}

// HasVoted returns true if the account already cast a ballot.
func (v Vote) HasVoted(addr string) bool {
	for _, voter := range v.Voted {
		if voter == addr {
			return true
		}
	}

	return false
}

// Snapshot is the state of a community contract at a given point in time.
type Snapshot struct {
	Name     string            `json:"name"`
	Ticker   string            `json:"ticker"`
	Balances Balances          `json:"balances"`
	Vault    Vault             `json:"vault"`
	Votes    []Vote            `json:"votes"`
	Roles    map[string]string `json:"roles"`
	Settings Settings          `json:"settings"`
}

// Decode parses a snapshot from its JSON representation.
func Decode(data []byte) (*Snapshot, error) {
	snap := &Snapshot{}

	err := json.Unmarshal(data, snap)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode snapshot: %v", err)
	}

	return snap, nil
}

// Encode returns the JSON representation of the snapshot.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode snapshot: %v", err)
	}

	return data, nil
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	clone := &Snapshot{
		Name:     s.Name,
		Ticker:   s.Ticker,
		Balances: s.Balances.Clone(),
		Vault:    s.Vault.Clone(),
		Votes:    make([]Vote, len(s.Votes)),
		Roles:    make(map[string]string, len(s.Roles)),
		Settings: s.Settings.Clone(),
	}

	for i, vote := range s.Votes {
		vote.Voted = append([]string{}, vote.Voted...)
		clone.Votes[i] = vote
	}

	for addr, role := range s.Roles {
		clone.Roles[addr] = role
	}

	return clone
}

// UnlockedBalance returns the balance of the account that is not locked in
// the vault.
func (s *Snapshot) UnlockedBalance(addr string) uint64 {
	return s.Balances.Get(addr)
}

// VaultBalance returns the sum of the balances the account locked in the
// vault.
func (s *Snapshot) VaultBalance(addr string) uint64 {
	total := uint64(0)
	for _, entry := range s.Vault.Get(addr) {
		total += entry.Balance
	}

	return total
}

// Balance returns the total balance of the account, locked or not.
func (s *Snapshot) Balance(addr string) uint64 {
	return s.UnlockedBalance(addr) + s.VaultBalance(addr)
}

// Role returns the role of the account if any, otherwise "member" when the
// account holds tokens, or an empty string.
func (s *Snapshot) Role(addr string) string {
	role, found := s.Roles[addr]
	if found {
		return role
	}

	if s.Balance(addr) > 0 {
		return "member"
	}

	return ""
}
