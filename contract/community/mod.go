// Package community implements the executor of the community contract.
//
// The executor applies one interaction to a state and returns the new state,
// or the result of a read function. The locked tokens of the vault give the
// voting weight of a member: an entry weighs its balance multiplied by the
// number of blocks it is locked for.
package community

import (
	"encoding/json"
	"fmt"

	"go.dedis.ch/community/contract"
	"go.dedis.ch/community/state"
	"golang.org/x/xerrors"
)

// Names of the read functions.
const (
	FuncBalance         = "balance"
	FuncUnlockedBalance = "unlockedBalance"
	FuncVaultBalance    = "vaultBalance"
	FuncRole            = "role"
)

// Error is an error raised by the contract when an interaction is rejected.
type Error struct {
	msg string
}

func newError(format string, args ...interface{}) Error {
	return Error{msg: fmt.Sprintf(format, args...)}
}

// Error implements error.
func (e Error) Error() string {
	return e.msg
}

type input struct {
	Function   string      `json:"function"`
	Target     string      `json:"target"`
	Qty        uint64      `json:"qty"`
	LockLength uint64      `json:"lockLength"`
	ID         int         `json:"id"`
	Cast       string      `json:"cast"`
	Type       string      `json:"type"`
	Recipient  string      `json:"recipient"`
	Note       string      `json:"note"`
	Key        string      `json:"key"`
	Value      interface{} `json:"value"`
}

// Result is the result of a read function.
type Result struct {
	Target  string `json:"target"`
	Ticker  string `json:"ticker,omitempty"`
	Balance uint64 `json:"balance"`
	Role    string `json:"role,omitempty"`
}

// Execute applies the interaction to the state. The given state is never
// modified. It returns the new state for a write function, or the result for a
// read function. An Error is returned when the contract rejects the
// interaction.
func Execute(snap *state.Snapshot, in contract.Interaction) (*state.Snapshot, json.RawMessage, error) {
	var params input

	err := json.Unmarshal(in.Input, &params)
	if err != nil {
		return nil, nil, newError("invalid input: %v", err)
	}

	next := snap.Clone()
	exec := executor{snap: next, caller: in.Caller, height: in.Height}

	switch params.Function {
	case FuncBalance, FuncUnlockedBalance, FuncVaultBalance, FuncRole:
		res, err := exec.read(params)
		if err != nil {
			return nil, nil, err
		}

		data, err := json.Marshal(res)
		if err != nil {
			return nil, nil, xerrors.Errorf("failed to encode result: %v", err)
		}

		return snap, data, nil
	case "transfer":
		err = exec.transfer(params)
	case "lock":
		err = exec.lock(params)
	case "unlock":
		err = exec.unlock()
	case "increaseVault":
		err = exec.increaseVault(params)
	case "propose":
		err = exec.propose(params)
	case "vote":
		err = exec.vote(params)
	case "finalize":
		err = exec.finalize(params)
	default:
		err = newError("no function supplied or function not recognised: '%s'", params.Function)
	}

	if err != nil {
		return nil, nil, err
	}

	return next, nil, nil
}

// Outcome returns the outcome of the interaction on the state.
func Outcome(snap *state.Snapshot, in contract.Interaction) contract.Outcome {
	next, result, err := Execute(snap, in)
	if err != nil {
		kind := contract.OutcomeException
		if xerrors.As(err, &Error{}) {
			kind = contract.OutcomeError
		}

		return contract.Outcome{Type: kind, Message: err.Error()}
	}

	return contract.Outcome{Type: contract.OutcomeOK, Result: result, State: next}
}

type executor struct {
	snap   *state.Snapshot
	caller string
	height uint64
}

func (e executor) read(params input) (Result, error) {
	target := params.Target
	if target == "" {
		target = e.caller
	}

	res := Result{Target: target, Ticker: e.snap.Ticker}

	switch params.Function {
	case FuncBalance:
		res.Balance = e.snap.Balance(target)
	case FuncUnlockedBalance:
		res.Balance = e.snap.UnlockedBalance(target)
	case FuncVaultBalance:
		res.Balance = e.vaultBalanceAt(target)
	case FuncRole:
		res.Role = e.snap.Role(target)
	}

	return res, nil
}

func (e executor) transfer(params input) error {
	if params.Qty == 0 {
		return newError("invalid value for 'qty', must be a positive integer")
	}

	if params.Target == "" {
		return newError("no target specified")
	}

	if params.Target == e.caller {
		return newError("target must be different from the caller")
	}

	balance := e.snap.Balances.Get(e.caller)
	if balance < params.Qty {
		return newError("caller balance not high enough to send %d token(s)", params.Qty)
	}

	e.snap.Balances.Set(e.caller, balance-params.Qty)
	e.snap.Balances.Add(params.Target, params.Qty)

	return nil
}

func (e executor) lock(params input) error {
	if params.Qty == 0 {
		return newError("quantity must be a positive integer")
	}

	err := e.checkLength(params.LockLength)
	if err != nil {
		return err
	}

	balance := e.snap.Balances.Get(e.caller)
	if balance < params.Qty {
		return newError("not enough balance")
	}

	e.snap.Balances.Set(e.caller, balance-params.Qty)
	e.snap.Vault.Append(e.caller, state.VaultEntry{
		Balance: params.Qty,
		Start:   e.height,
		End:     e.height + params.LockLength,
	})

	return nil
}

func (e executor) unlock() error {
	entries := e.snap.Vault.Get(e.caller)
	if len(entries) == 0 {
		return nil
	}

	kept := make([]state.VaultEntry, 0, len(entries))

	for _, entry := range entries {
		if entry.End <= e.height {
			e.snap.Balances.Add(e.caller, entry.Balance)
		} else {
			kept = append(kept, entry)
		}
	}

	if len(kept) == 0 {
		e.snap.Vault.Delete(e.caller)
	} else {
		e.snap.Vault.Set(e.caller, kept)
	}

	return nil
}

func (e executor) increaseVault(params input) error {
	err := e.checkLength(params.LockLength)
	if err != nil {
		return err
	}

	entries := e.snap.Vault.Get(e.caller)
	if params.ID < 0 || params.ID >= len(entries) {
		return newError("invalid vault ID")
	}

	if entries[params.ID].End <= e.height {
		return newError("this vault has ended")
	}

	entries[params.ID].End = e.height + params.LockLength
	e.snap.Vault.Set(e.caller, entries)

	return nil
}

func (e executor) propose(params input) error {
	if e.weight(e.caller, e.height+1) == 0 {
		return newError("caller needs to have locked balances")
	}

	vote := state.Vote{
		Status:      state.StatusActive,
		Type:        params.Type,
		Note:        params.Note,
		Voted:       []string{},
		Start:       e.height,
		TotalWeight: e.totalWeight(),
	}

	switch params.Type {
	case state.VoteMint, state.VoteMintLocked:
		if params.Recipient == "" {
			return newError("no recipient specified")
		}

		if params.Qty == 0 {
			return newError("invalid value for 'qty', must be a positive integer")
		}

		vote.Recipient = params.Recipient
		vote.Qty = params.Qty

		if params.Type == state.VoteMintLocked {
			err := e.checkLength(params.LockLength)
			if err != nil {
				return err
			}

			vote.LockLength = params.LockLength
		}
	case state.VoteBurnVault:
		if params.Target == "" {
			return newError("no target specified")
		}

		vote.Target = params.Target
	case state.VoteSet:
		if params.Key == "" {
			return newError("no key specified")
		}

		err := e.checkSetting(params.Key, params.Value)
		if err != nil {
			return err
		}

		vote.Key = params.Key
		vote.Value = params.Value
	case state.VoteIndicative:
	default:
		return newError("invalid vote type '%s'", params.Type)
	}

	e.snap.Votes = append(e.snap.Votes, vote)

	return nil
}

func (e executor) vote(params input) error {
	if params.Cast != "yay" && params.Cast != "nay" {
		return newError("vote cast type unsupported")
	}

	vote, err := e.activeVote(params.ID)
	if err != nil {
		return err
	}

	voteLength, _ := e.snap.Settings.Float(state.SettingVoteLength)
	if e.height >= vote.Start+uint64(voteLength) {
		return newError("vote has already concluded")
	}

	if vote.HasVoted(e.caller) {
		return newError("caller has already voted")
	}

	weight := e.weight(e.caller, vote.Start)
	if weight == 0 {
		return newError("caller does not have locked balances for this vote")
	}

	if params.Cast == "yay" {
		vote.Yays += weight
	} else {
		vote.Nays += weight
	}

	vote.Voted = append(vote.Voted, e.caller)

	return nil
}

func (e executor) finalize(params input) error {
	vote, err := e.activeVote(params.ID)
	if err != nil {
		return err
	}

	voteLength, _ := e.snap.Settings.Float(state.SettingVoteLength)
	if e.height < vote.Start+uint64(voteLength) {
		return newError("vote has not yet concluded")
	}

	quorum, _ := e.snap.Settings.Float(state.SettingQuorum)
	support, _ := e.snap.Settings.Float(state.SettingSupport)

	cast := float64(vote.Yays + vote.Nays)

	if float64(vote.TotalWeight)*quorum > cast {
		vote.Status = state.StatusQuorumFailed
		return nil
	}

	if cast == 0 || float64(vote.Yays)/cast <= support {
		vote.Status = state.StatusFailed
		return nil
	}

	vote.Status = state.StatusPassed

	switch vote.Type {
	case state.VoteMint:
		e.snap.Balances.Add(vote.Recipient, vote.Qty)
	case state.VoteMintLocked:
		e.snap.Vault.Append(vote.Recipient, state.VaultEntry{
			Balance: vote.Qty,
			Start:   e.height,
			End:     e.height + vote.LockLength,
		})
	case state.VoteBurnVault:
		e.snap.Vault.Delete(vote.Target)
	case state.VoteSet:
		e.snap.Settings.Set(vote.Key, vote.Value)
	}

	return nil
}

func (e executor) activeVote(id int) (*state.Vote, error) {
	if id < 0 || id >= len(e.snap.Votes) {
		return nil, newError("this vote doesn't exist")
	}

	vote := &e.snap.Votes[id]
	if vote.Status != state.StatusActive {
		return nil, newError("vote is not active")
	}

	return vote, nil
}

func (e executor) checkLength(length uint64) error {
	min, max := e.snap.Settings.LockBounds()
	if length < min || length > max {
		return newError("lock length out of range, must be between %d and %d", min, max)
	}

	return nil
}

func (e executor) checkSetting(key string, value interface{}) error {
	if !state.IsNumeric(key) {
		return nil
	}

	num, err := state.ToNumber(value)
	if err != nil {
		return newError("invalid value for '%s': %v", key, err)
	}

	switch key {
	case state.SettingQuorum, state.SettingSupport:
		if num <= 0 || num >= 1 {
			return newError("'%s' must be between 0 and 1", key)
		}
	case state.SettingLockMinLength:
		_, max := e.snap.Settings.LockBounds()
		if num < 1 || num > float64(max) {
			return newError("invalid minimum lock length")
		}
	case state.SettingLockMaxLength:
		min, _ := e.snap.Settings.LockBounds()
		if num < float64(min) {
			return newError("invalid maximum lock length")
		}
	default:
		if num < 1 {
			return newError("'%s' must be at least 1", key)
		}
	}

	return nil
}

// vaultBalanceAt returns the balance of the vault entries still locked at the
// current height.
func (e executor) vaultBalanceAt(addr string) uint64 {
	total := uint64(0)
	for _, entry := range e.snap.Vault.Get(addr) {
		if entry.Start <= e.height && entry.End > e.height {
			total += entry.Balance
		}
	}

	return total
}

// weight returns the voting weight of the account for a vote started at the
// height. Only the entries locked before the vote and still locked count.
func (e executor) weight(addr string, start uint64) uint64 {
	total := uint64(0)
	for _, entry := range e.snap.Vault.Get(addr) {
		if entry.Start < start && entry.End >= start {
			total += entry.Balance * (entry.End - entry.Start)
		}
	}

	return total
}

func (e executor) totalWeight() uint64 {
	total := uint64(0)
	for _, addr := range e.snap.Vault.Keys() {
		for _, entry := range e.snap.Vault.Get(addr) {
			total += entry.Balance * (entry.End - entry.Start)
		}
	}

	return total
}
