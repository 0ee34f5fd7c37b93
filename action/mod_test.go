package action

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/community/state"
	"golang.org/x/xerrors"
)

func TestTransfer_Validate(t *testing.T) {
	a := &Transfer{Target: "bob", Qty: 5}
	require.NoError(t, a.Validate(nil, "alice"))
	require.Equal(t, NameTransfer, a.Name())

	err := (&Transfer{Qty: 5}).Validate(nil, "alice")
	requireInvalid(t, err, "missing target")

	err = (&Transfer{Target: "alice", Qty: 5}).Validate(nil, "alice")
	requireInvalid(t, err, "target must be different from the caller")

	err = (&Transfer{Target: "bob"}).Validate(nil, "alice")
	requireInvalid(t, err, "quantity must be positive")

	input, err := a.Input()
	require.NoError(t, err)
	require.JSONEq(t, `{"function":"transfer","target":"bob","qty":5}`, string(input))
}

func TestLock_Validate(t *testing.T) {
	snap := makeSnapshot()

	require.NoError(t, (&Lock{Qty: 1, Length: 10}).Validate(snap, "alice"))
	require.NoError(t, (&Lock{Qty: 1, Length: 1000}).Validate(nil, "alice"))

	err := (&Lock{Length: 10}).Validate(snap, "alice")
	requireInvalid(t, err, "quantity must be positive")

	err = (&Lock{Qty: 1}).Validate(snap, "alice")
	requireInvalid(t, err, "lock length must be positive")

	err = (&Lock{Qty: 1, Length: 101}).Validate(snap, "alice")
	requireInvalid(t, err, "lock length must be in [5, 100] but got 101")

	err = (&Lock{Qty: 1, Length: 4}).Validate(snap, "alice")
	requireInvalid(t, err, "lock length must be in [5, 100] but got 4")

	input, err := (&Lock{Qty: 2, Length: 10}).Input()
	require.NoError(t, err)
	require.JSONEq(t, `{"function":"lock","qty":2,"lockLength":10}`, string(input))
}

func TestUnlock_Validate(t *testing.T) {
	a := &Unlock{}
	require.NoError(t, a.Validate(nil, ""))

	input, err := a.Input()
	require.NoError(t, err)
	require.JSONEq(t, `{"function":"unlock"}`, string(input))
}

func TestIncreaseVault_Validate(t *testing.T) {
	snap := makeSnapshot()

	require.NoError(t, (&IncreaseVault{ID: 0, Length: 20}).Validate(snap, "alice"))

	err := (&IncreaseVault{ID: -1, Length: 20}).Validate(snap, "alice")
	requireInvalid(t, err, "vault id must not be negative")

	err = (&IncreaseVault{ID: 1, Length: 20}).Validate(snap, "alice")
	requireInvalid(t, err, "unknown vault id 1")

	err = (&IncreaseVault{ID: 0, Length: 20}).Validate(snap, "bob")
	requireInvalid(t, err, "unknown vault id 0")

	input, err := (&IncreaseVault{ID: 0, Length: 20}).Input()
	require.NoError(t, err)
	require.JSONEq(t, `{"function":"increaseVault","id":0,"lockLength":20}`, string(input))
}

func TestProposeVote_Validate(t *testing.T) {
	snap := makeSnapshot()

	require.NoError(t, (&ProposeVote{Type: state.VoteMint, Recipient: "bob", Qty: 1}).Validate(snap, ""))
	require.NoError(t, (&ProposeVote{Type: state.VoteBurnVault, Target: "bob"}).Validate(snap, ""))
	require.NoError(t, (&ProposeVote{Type: state.VoteIndicative, Note: "hello"}).Validate(snap, ""))

	err := (&ProposeVote{Type: state.VoteMint, Qty: 1}).Validate(snap, "")
	requireInvalid(t, err, "missing recipient")

	err = (&ProposeVote{Type: state.VoteMint, Recipient: "bob"}).Validate(snap, "")
	requireInvalid(t, err, "quantity must be positive")

	err = (&ProposeVote{Type: state.VoteMintLocked, Recipient: "bob", Qty: 1, Length: 1}).Validate(snap, "")
	requireInvalid(t, err, "lock length must be in [5, 100] but got 1")

	err = (&ProposeVote{Type: state.VoteMintLocked, Qty: 1}).Validate(snap, "")
	requireInvalid(t, err, "missing recipient")

	err = (&ProposeVote{Type: state.VoteBurnVault}).Validate(snap, "")
	requireInvalid(t, err, "missing target")

	err = (&ProposeVote{Type: state.VoteIndicative}).Validate(snap, "")
	requireInvalid(t, err, "missing note")

	err = (&ProposeVote{Type: "unknown"}).Validate(snap, "")
	requireInvalid(t, err, "unknown vote type 'unknown'")
}

func TestProposeVote_SetQuorum(t *testing.T) {
	a := &ProposeVote{Type: state.VoteSet, Key: state.SettingQuorum, Value: "50"}
	require.NoError(t, a.Validate(makeSnapshot(), ""))
	require.Equal(t, "50", a.Value)

	input, err := a.Input()
	require.NoError(t, err)
	require.JSONEq(t,
		`{"function":"propose","type":"set","key":"quorum","value":0.5,"note":""}`,
		string(input))

	// A second validation starts again from the original value.
	require.NoError(t, a.Validate(makeSnapshot(), ""))

	input, err = a.Input()
	require.NoError(t, err)
	require.JSONEq(t,
		`{"function":"propose","type":"set","key":"quorum","value":0.5,"note":""}`,
		string(input))

	a = &ProposeVote{Type: state.VoteSet, Key: state.SettingQuorum, Value: 150}
	err = a.Validate(makeSnapshot(), "")
	requireInvalid(t, err, "quorum must be in (0, 100) but got 150")
	require.Equal(t, 150, a.Value)
}

func TestProposeVote_SetLockMinLength(t *testing.T) {
	snap := makeSnapshot()
	snap.Settings.Set(state.SettingLockMaxLength, 3)

	a := &ProposeVote{Type: state.VoteSet, Key: state.SettingLockMinLength, Value: 5}
	err := a.Validate(snap, "")
	requireInvalid(t, err, "lockMinLength must be in [1, 3] but got 5")
}

func TestCheckSetting(t *testing.T) {
	current := makeSnapshot().Settings

	value, err := CheckSetting(state.SettingSupport, 75.0, current)
	require.NoError(t, err)
	require.Equal(t, 0.75, value)

	value, err = CheckSetting(state.SettingLockMinLength, json.Number("10"), current)
	require.NoError(t, err)
	require.Equal(t, 10.0, value)

	value, err = CheckSetting(state.SettingLockMaxLength, "50", current)
	require.NoError(t, err)
	require.Equal(t, 50.0, value)

	value, err = CheckSetting(state.SettingVoteLength, 2000, current)
	require.NoError(t, err)
	require.Equal(t, 2000.0, value)

	value, err = CheckSetting("communityLogo", "logo-tx", current)
	require.NoError(t, err)
	require.Equal(t, "logo-tx", value)

	_, err = CheckSetting("", 1, current)
	requireInvalid(t, err, "missing setting key")

	_, err = CheckSetting("communityLogo", nil, current)
	requireInvalid(t, err, "missing value of setting 'communityLogo'")

	_, err = CheckSetting(state.SettingQuorum, "abc", current)
	requireInvalid(t, err, "setting 'quorum': 'abc' is not a number")

	_, err = CheckSetting(state.SettingSupport, 0, current)
	requireInvalid(t, err, "support must be in (0, 100) but got 0")

	_, err = CheckSetting(state.SettingVoteLength, 0, current)
	requireInvalid(t, err, "voteLength must be at least 1 but got 0")

	_, err = CheckSetting(state.SettingLockMinLength, 0, current)
	requireInvalid(t, err, "lockMinLength must be in [1, 100] but got 0")

	_, err = CheckSetting(state.SettingLockMaxLength, 4, current)
	requireInvalid(t, err, "lockMaxLength must be at least 5 but got 4")

	// Without any bound, only the lower limit applies.
	value, err = CheckSetting(state.SettingLockMinLength, 1000, state.Settings{})
	require.NoError(t, err)
	require.Equal(t, 1000.0, value)
}

func TestVote_Validate(t *testing.T) {
	snap := makeSnapshot()

	require.NoError(t, (&Vote{ID: 0, Cast: CastYay}).Validate(snap, "alice"))
	require.NoError(t, (&Vote{ID: 0, Cast: CastNay}).Validate(snap, "alice"))

	err := (&Vote{ID: 0, Cast: "maybe"}).Validate(snap, "alice")
	requireInvalid(t, err, "cast must be 'yay' or 'nay'")

	err = (&Vote{ID: 1, Cast: CastYay}).Validate(snap, "alice")
	requireInvalid(t, err, "unknown vote id 1")

	err = (&Vote{ID: -1, Cast: CastYay}).Validate(nil, "alice")
	requireInvalid(t, err, "vote id must not be negative")

	input, err := (&Vote{ID: 0, Cast: CastYay}).Input()
	require.NoError(t, err)
	require.JSONEq(t, `{"function":"vote","id":0,"cast":"yay"}`, string(input))
}

func TestFinalize_Validate(t *testing.T) {
	require.NoError(t, (&Finalize{ID: 0}).Validate(makeSnapshot(), ""))
	require.NoError(t, (&Finalize{ID: 7}).Validate(nil, ""))

	err := (&Finalize{ID: 3}).Validate(makeSnapshot(), "")
	requireInvalid(t, err, "unknown vote id 3")

	input, err := (&Finalize{ID: 0}).Input()
	require.NoError(t, err)
	require.JSONEq(t, `{"function":"finalize","id":0}`, string(input))
}

// -----------------------------------------------------------------------------
// Utility functions

func makeSnapshot() *state.Snapshot {
	snap := &state.Snapshot{
		Name:     "Test",
		Ticker:   "TST",
		Balances: state.NewBalances("alice", uint64(10)),
		Votes:    []state.Vote{{Status: state.StatusActive, Type: state.VoteIndicative}},
	}

	snap.Vault.Append("alice", state.VaultEntry{Balance: 5, Start: 0, End: 10})
	snap.Settings.Set(state.SettingQuorum, 0.5)
	snap.Settings.Set(state.SettingLockMinLength, 5)
	snap.Settings.Set(state.SettingLockMaxLength, 100)

	return snap
}

func requireInvalid(t *testing.T, err error, reason string) {
	require.Error(t, err)
	require.True(t, xerrors.Is(err, ErrInvalidParameter))
	require.EqualError(t, err, reason+": "+ErrInvalidParameter.Error())
}
