package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/community/action"
	"go.dedis.ch/community/internal/testing/fake"
	"go.dedis.ch/community/state"
	"golang.org/x/xerrors"
)

func TestCommunity_SetState(t *testing.T) {
	_, _, c := makeCommunity(t, 10, 100)
	defer c.Close()

	params := DefaultStateParams()
	params.Name = "Test"
	params.Ticker = "TST"
	params.Balances = state.NewBalances("alice", uint64(100))
	params.Roles["alice"] = "Founder"
	params.Extra = [][2]interface{}{{"communityLogo", "logo-tx"}}

	snap, err := c.SetState(params)
	require.NoError(t, err)
	require.Equal(t, "Test", snap.Name)
	require.Equal(t, "Founder", snap.Roles["alice"])

	require.Equal(t, []string{
		state.SettingQuorum,
		state.SettingSupport,
		state.SettingVoteLength,
		state.SettingLockMinLength,
		state.SettingLockMaxLength,
		"communityLogo",
	}, snap.Settings.Keys())

	quorum, found := snap.Settings.Float(state.SettingQuorum)
	require.True(t, found)
	require.Equal(t, 0.5, quorum)

	min, max := snap.Settings.LockBounds()
	require.Equal(t, uint64(720), min)
	require.Equal(t, uint64(10000), max)
}

func TestCommunity_SetState_Invalid(t *testing.T) {
	_, _, c := makeCommunity(t, 10, 100)
	defer c.Close()

	params := DefaultStateParams()
	_, err := c.SetState(params)
	require.True(t, xerrors.Is(err, action.ErrInvalidParameter))
	require.Contains(t, err.Error(), "name and ticker are required")

	params.Name = "Test"
	params.Ticker = "TST"
	_, err = c.SetState(params)
	require.True(t, xerrors.Is(err, action.ErrInvalidParameter))
	require.Contains(t, err.Error(), "at least one holder is required")

	params.Balances = state.NewBalances("alice", uint64(1))
	params.Quorum = 100
	_, err = c.SetState(params)
	require.True(t, xerrors.Is(err, action.ErrInvalidParameter))
	require.Contains(t, err.Error(), "quorum must be in (0, 100)")

	params.Quorum = 50
	params.LockMinLength = 20000
	_, err = c.SetState(params)
	require.True(t, xerrors.Is(err, action.ErrInvalidParameter))
	require.Contains(t, err.Error(), "lockMinLength must be in [1, 10000]")

	params.LockMinLength = 10
	params.Extra = [][2]interface{}{{"", "oops"}}
	_, err = c.SetState(params)
	require.True(t, xerrors.Is(err, action.ErrInvalidParameter))
	require.Contains(t, err.Error(), "missing setting key")
}

func TestCommunity_Create(t *testing.T) {
	l, r, c := makeCommunity(t, 10, 100)
	defer c.Close()

	_, err := c.Create(context.Background())
	require.EqualError(t, err, "state of the community is not set")

	params := DefaultStateParams()
	params.Name = "Test"
	params.Ticker = "TST"
	params.Balances = state.NewBalances(c.Address(), uint64(100))

	_, err = c.SetState(params)
	require.NoError(t, err)

	id, err := c.Create(context.Background())
	require.NoError(t, err)
	require.Equal(t, "contract-community-source", id)
	require.Equal(t, id, c.ContractID())

	require.Len(t, l.Submitted, 1)
	name, found := l.Submitted[0].GetTag("Action")
	require.True(t, found)
	require.Equal(t, ActionCreate, name)

	require.Equal(t, 1, r.Calls.Count("CreateFromPayload"))

	balance, err := c.Balance(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, uint64(100), balance)

	r.ErrCreate = fake.GetError()
	_, err = c.Create(context.Background())
	require.EqualError(t, err, fake.Err("failed to create contract"))
}

func TestCommunity_Balances(t *testing.T) {
	_, _, c := makeCommunity(t, 10, 100)
	defer c.Close()

	_, err := c.Balance(context.Background(), "")
	require.Error(t, err)

	require.NoError(t, c.BindContract(context.Background(), "community"))

	balance, err := c.Balance(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, uint64(10), balance)

	unlocked, err := c.UnlockedBalance(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, uint64(0), unlocked)

	locked, err := c.VaultBalance(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, uint64(10), locked)

	unlocked, err = c.UnlockedBalance(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(100), unlocked)

	role, err := c.Role(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "member", role)

	role, err = c.Role(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, role)
}
