package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

const testState = `{
	"name": "Test",
	"ticker": "TST",
	"balances": {"zed": 10, "alice": 5, "bob": 0},
	"vault": {"carol": [{"balance": 3, "start": 1, "end": 100}], "alice": [{"balance": 2, "start": 1, "end": 50}, {"balance": 1, "start": 2, "end": 20}]},
	"votes": [{"status": "active", "type": "indicative", "note": "hello", "yays": 0, "nays": 0, "voted": [], "start": 1, "totalWeight": 10}],
	"roles": {"zed": "admin"},
	"settings": [["quorum", 0.5], ["support", 0.5], ["voteLength", 2000], ["lockMinLength", 100], ["lockMaxLength", 10000], ["communityLogo", ""]]
}`

func TestDecode(t *testing.T) {
	snap, err := Decode([]byte(testState))
	require.NoError(t, err)

	require.Equal(t, "TST", snap.Ticker)
	require.Equal(t, []string{"zed", "alice", "bob"}, snap.Balances.Keys())
	require.Equal(t, []string{"carol", "alice"}, snap.Vault.Keys())
	require.Len(t, snap.Votes, 1)
	require.Equal(t, VoteIndicative, snap.Votes[0].Type)

	quorum, found := snap.Settings.Float(SettingQuorum)
	require.True(t, found)
	require.Equal(t, 0.5, quorum)

	min, max := snap.Settings.LockBounds()
	require.Equal(t, uint64(100), min)
	require.Equal(t, uint64(10000), max)

	_, err = Decode([]byte(`{"balances": {"a": -1}}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid balance for 'a'")

	_, err = Decode([]byte(`{"balances": []}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected an object")

	_, err = Decode([]byte(`{"settings": [["quorum"]]}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid setting pair of length 1")
}

func TestSnapshot_Encode(t *testing.T) {
	snap, err := Decode([]byte(testState))
	require.NoError(t, err)

	data, err := snap.Encode()
	require.NoError(t, err)

	other, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, snap.Balances.Keys(), other.Balances.Keys())
	require.Equal(t, snap.Vault.Keys(), other.Vault.Keys())
	require.Equal(t, snap.Settings.Keys(), other.Settings.Keys())

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, `{"zed":10,"alice":5,"bob":0}`, string(raw["balances"]))
}

func TestSnapshot_Balances(t *testing.T) {
	snap, err := Decode([]byte(testState))
	require.NoError(t, err)

	require.Equal(t, uint64(5), snap.UnlockedBalance("alice"))
	require.Equal(t, uint64(3), snap.VaultBalance("alice"))
	require.Equal(t, uint64(8), snap.Balance("alice"))
	require.Equal(t, uint64(3), snap.Balance("carol"))
	require.Equal(t, uint64(0), snap.Balance("unknown"))

	require.Equal(t, "admin", snap.Role("zed"))
	require.Equal(t, "member", snap.Role("carol"))
	require.Equal(t, "", snap.Role("bob"))
}

func TestSnapshot_Clone(t *testing.T) {
	snap, err := Decode([]byte(testState))
	require.NoError(t, err)

	clone := snap.Clone()
	clone.Balances.Set("alice", 100)
	clone.Vault.Append("alice", VaultEntry{Balance: 1})
	clone.Votes[0].Voted = append(clone.Votes[0].Voted, "zed")
	clone.Roles["bob"] = "admin"
	clone.Settings.Set(SettingQuorum, 0.9)

	require.Equal(t, uint64(5), snap.Balances.Get("alice"))
	require.Len(t, snap.Vault.Get("alice"), 2)
	require.Empty(t, snap.Votes[0].Voted)
	require.NotContains(t, snap.Roles, "bob")

	quorum, _ := snap.Settings.Float(SettingQuorum)
	require.Equal(t, 0.5, quorum)
}

func TestBalances_Order(t *testing.T) {
	var b Balances
	b.Set("b", 1)
	b.Set("a", 2)
	b.Add("b", 2)
	b.Set("c", 3)

	require.Equal(t, []string{"b", "a", "c"}, b.Keys())
	require.Equal(t, uint64(3), b.Get("b"))
	require.Equal(t, uint64(8), b.Total())

	b.Delete("a")
	b.Delete("unknown")
	require.Equal(t, []string{"b", "c"}, b.Keys())
	require.False(t, b.Has("a"))
	require.Equal(t, 2, b.Len())

	b = NewBalances("x", 1, "y", uint64(2))
	require.Equal(t, []string{"x", "y"}, b.Keys())
}

func TestVault_Order(t *testing.T) {
	var v Vault
	v.Append("b", VaultEntry{Balance: 1})
	v.Append("a", VaultEntry{Balance: 2})
	v.Append("b", VaultEntry{Balance: 3})

	require.Equal(t, []string{"b", "a"}, v.Keys())
	require.Len(t, v.Get("b"), 2)

	v.Delete("b")
	require.Equal(t, []string{"a"}, v.Keys())
	require.Equal(t, 1, v.Len())

	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.Equal(t, `{"a":[{"balance":2,"start":0,"end":0}]}`, string(data))
}

func TestToNumber(t *testing.T) {
	num, err := ToNumber("42.5")
	require.NoError(t, err)
	require.Equal(t, 42.5, num)

	num, err = ToNumber(7)
	require.NoError(t, err)
	require.Equal(t, 7.0, num)

	num, err = ToNumber(json.Number("3"))
	require.NoError(t, err)
	require.Equal(t, 3.0, num)

	_, err = ToNumber("abc")
	require.EqualError(t, err, "'abc' is not a number")

	_, err = ToNumber(true)
	require.EqualError(t, err, "unsupported type 'bool'")

	require.True(t, IsNumeric(SettingLockMaxLength))
	require.False(t, IsNumeric("communityLogo"))
}
