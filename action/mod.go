// Package action defines the actions a member can submit to a community
// contract.
//
// The set of actions is closed: only the types of this package implement the
// Action interface. Every action validates its parameters against the current
// state of the contract before anything is sent to the network.
package action

import (
	"encoding/json"
	"strconv"

	"go.dedis.ch/community/state"
	"golang.org/x/xerrors"
)

// Names of the contract functions.
const (
	NameTransfer      = "transfer"
	NameLock          = "lock"
	NameUnlock        = "unlock"
	NameIncreaseVault = "increaseVault"
	NamePropose       = "propose"
	NameVote          = "vote"
	NameFinalize      = "finalize"
)

// Ballots of a vote.
const (
	CastYay = "yay"
	CastNay = "nay"
)

// ErrInvalidParameter is returned when an action is rejected before any
// network call.
var ErrInvalidParameter = xerrors.New("invalid action parameter")

// Action is an action of a member on a community contract.
type Action interface {
	// Name returns the name of the contract function.
	Name() string

	// Validate checks the parameters of the action against the state of the
	// contract, and normalises them when necessary. The snapshot can be nil in
	// which case only the checks independent of the state are performed.
	Validate(snap *state.Snapshot, caller string) error

	// Input returns the payload of the interaction.
	Input() (json.RawMessage, error)

	isAction()
}

// Transfer moves unlocked tokens of the caller to the target.
//
// - implements action.Action
type Transfer struct {
	Target string
	Qty    uint64
}

// Name implements action.Action.
func (Transfer) Name() string {
	return NameTransfer
}

// Validate implements action.Action.
func (a *Transfer) Validate(snap *state.Snapshot, caller string) error {
	if a.Target == "" {
		return invalid("missing target")
	}

	if a.Target == caller {
		return invalid("target must be different from the caller")
	}

	if a.Qty == 0 {
		return invalid("quantity must be positive")
	}

	return nil
}

// Input implements action.Action.
func (a *Transfer) Input() (json.RawMessage, error) {
	return encode(map[string]interface{}{
		"function": NameTransfer,
		"target":   a.Target,
		"qty":      a.Qty,
	})
}

func (*Transfer) isAction() {}

// Lock moves unlocked tokens of the caller into the vault for a number of
// blocks.
//
// - implements action.Action
type Lock struct {
	Qty    uint64
	Length uint64
}

// Name implements action.Action.
func (Lock) Name() string {
	return NameLock
}

// Validate implements action.Action.
func (a *Lock) Validate(snap *state.Snapshot, caller string) error {
	if a.Qty == 0 {
		return invalid("quantity must be positive")
	}

	return checkLength(snap, a.Length)
}

// Input implements action.Action.
func (a *Lock) Input() (json.RawMessage, error) {
	return encode(map[string]interface{}{
		"function":   NameLock,
		"qty":        a.Qty,
		"lockLength": a.Length,
	})
}

func (*Lock) isAction() {}

// Unlock releases the vault entries of the caller that expired.
//
// - implements action.Action
type Unlock struct{}

// Name implements action.Action.
func (Unlock) Name() string {
	return NameUnlock
}

// Validate implements action.Action.
func (*Unlock) Validate(*state.Snapshot, string) error {
	return nil
}

// Input implements action.Action.
func (*Unlock) Input() (json.RawMessage, error) {
	return encode(map[string]interface{}{
		"function": NameUnlock,
	})
}

func (*Unlock) isAction() {}

// IncreaseVault extends the lock of a vault entry of the caller.
//
// - implements action.Action
type IncreaseVault struct {
	ID     int
	Length uint64
}

// Name implements action.Action.
func (IncreaseVault) Name() string {
	return NameIncreaseVault
}

// Validate implements action.Action.
func (a *IncreaseVault) Validate(snap *state.Snapshot, caller string) error {
	if a.ID < 0 {
		return invalid("vault id must not be negative")
	}

	if snap != nil && a.ID >= len(snap.Vault.Get(caller)) {
		return invalid("unknown vault id " + strconv.Itoa(a.ID))
	}

	return checkLength(snap, a.Length)
}

// Input implements action.Action.
func (a *IncreaseVault) Input() (json.RawMessage, error) {
	return encode(map[string]interface{}{
		"function":   NameIncreaseVault,
		"id":         a.ID,
		"lockLength": a.Length,
	})
}

func (*IncreaseVault) isAction() {}

// ProposeVote opens a new vote. The fields in use depend on the type of vote.
//
// - implements action.Action
type ProposeVote struct {
	Type      string
	Recipient string
	Qty       uint64
	Length    uint64
	Target    string
	Key       string
	Value     interface{}
	Note      string

	// normalized is the value of the setting as written in the payload. It is
	// derived from Value at each validation.
	normalized interface{}
}

// Name implements action.Action.
func (ProposeVote) Name() string {
	return NamePropose
}

// Validate implements action.Action. The value of a numeric setting is
// converted to a number, and quorum and support are converted to a fraction,
// in the payload only. Value is left untouched.
func (a *ProposeVote) Validate(snap *state.Snapshot, caller string) error {
	a.normalized = nil

	switch a.Type {
	case state.VoteMint:
		return a.checkMint()
	case state.VoteMintLocked:
		err := a.checkMint()
		if err != nil {
			return err
		}

		return checkLength(snap, a.Length)
	case state.VoteBurnVault:
		if a.Target == "" {
			return invalid("missing target")
		}
	case state.VoteIndicative:
		if a.Note == "" {
			return invalid("missing note")
		}
	case state.VoteSet:
		value, err := CheckSetting(a.Key, a.Value, currentSettings(snap))
		if err != nil {
			return err
		}

		a.normalized = value
	default:
		return invalid("unknown vote type '" + a.Type + "'")
	}

	return nil
}

func (a *ProposeVote) checkMint() error {
	if a.Recipient == "" {
		return invalid("missing recipient")
	}

	if a.Qty == 0 {
		return invalid("quantity must be positive")
	}

	return nil
}

// Input implements action.Action.
func (a *ProposeVote) Input() (json.RawMessage, error) {
	input := map[string]interface{}{
		"function": NamePropose,
		"type":     a.Type,
		"note":     a.Note,
	}

	switch a.Type {
	case state.VoteMint:
		input["recipient"] = a.Recipient
		input["qty"] = a.Qty
	case state.VoteMintLocked:
		input["recipient"] = a.Recipient
		input["qty"] = a.Qty
		input["lockLength"] = a.Length
	case state.VoteBurnVault:
		input["target"] = a.Target
	case state.VoteSet:
		input["key"] = a.Key
		input["value"] = a.Value

		if a.normalized != nil {
			input["value"] = a.normalized
		}
	}

	return encode(input)
}

func (*ProposeVote) isAction() {}

// Vote casts a ballot on an active vote.
//
// - implements action.Action
type Vote struct {
	ID   int
	Cast string
}

// Name implements action.Action.
func (Vote) Name() string {
	return NameVote
}

// Validate implements action.Action.
func (a *Vote) Validate(snap *state.Snapshot, caller string) error {
	if a.Cast != CastYay && a.Cast != CastNay {
		return invalid("cast must be '" + CastYay + "' or '" + CastNay + "'")
	}

	return checkVoteID(snap, a.ID)
}

// Input implements action.Action.
func (a *Vote) Input() (json.RawMessage, error) {
	return encode(map[string]interface{}{
		"function": NameVote,
		"id":       a.ID,
		"cast":     a.Cast,
	})
}

func (*Vote) isAction() {}

// Finalize closes a vote whose period ended and applies it if it passed.
//
// - implements action.Action
type Finalize struct {
	ID int
}

// Name implements action.Action.
func (Finalize) Name() string {
	return NameFinalize
}

// Validate implements action.Action.
func (a *Finalize) Validate(snap *state.Snapshot, caller string) error {
	return checkVoteID(snap, a.ID)
}

// Input implements action.Action.
func (a *Finalize) Input() (json.RawMessage, error) {
	return encode(map[string]interface{}{
		"function": NameFinalize,
		"id":       a.ID,
	})
}

func (*Finalize) isAction() {}

// CheckSetting returns the value of the setting once converted and validated
// against the current settings.
func CheckSetting(key string, value interface{}, current state.Settings) (interface{}, error) {
	if key == "" {
		return nil, invalid("missing setting key")
	}

	if value == nil {
		return nil, invalid("missing value of setting '" + key + "'")
	}

	if !state.IsNumeric(key) {
		return value, nil
	}

	num, err := state.ToNumber(value)
	if err != nil {
		return nil, xerrors.Errorf("setting '%s': %v: %w", key, err, ErrInvalidParameter)
	}

	switch key {
	case state.SettingQuorum, state.SettingSupport:
		if num <= 0 || num >= 100 {
			return nil, xerrors.Errorf("%s must be in (0, 100) but got %v: %w",
				key, num, ErrInvalidParameter)
		}

		return num / 100, nil
	case state.SettingVoteLength:
		if num < 1 {
			return nil, xerrors.Errorf("%s must be at least 1 but got %v: %w",
				key, num, ErrInvalidParameter)
		}
	case state.SettingLockMinLength:
		max, found := current.Float(state.SettingLockMaxLength)
		if num < 1 || (found && num > max) {
			return nil, xerrors.Errorf("%s must be in [1, %v] but got %v: %w",
				key, max, num, ErrInvalidParameter)
		}
	case state.SettingLockMaxLength:
		min, _ := current.Float(state.SettingLockMinLength)
		if num < min {
			return nil, xerrors.Errorf("%s must be at least %v but got %v: %w",
				key, min, num, ErrInvalidParameter)
		}
	}

	return num, nil
}

func checkLength(snap *state.Snapshot, length uint64) error {
	if length == 0 {
		return invalid("lock length must be positive")
	}

	if snap == nil {
		return nil
	}

	min, max := snap.Settings.LockBounds()
	if length < min || (max > 0 && length > max) {
		return xerrors.Errorf("lock length must be in [%d, %d] but got %d: %w",
			min, max, length, ErrInvalidParameter)
	}

	return nil
}

func checkVoteID(snap *state.Snapshot, id int) error {
	if id < 0 {
		return invalid("vote id must not be negative")
	}

	if snap != nil && id >= len(snap.Votes) {
		return invalid("unknown vote id " + strconv.Itoa(id))
	}

	return nil
}

func currentSettings(snap *state.Snapshot) state.Settings {
	if snap == nil {
		return state.Settings{}
	}

	return snap.Settings
}

func invalid(reason string) error {
	return xerrors.Errorf("%s: %w", reason, ErrInvalidParameter)
}

func encode(input map[string]interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode input: %v", err)
	}

	return data, nil
}
