package selector

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/community/state"
)

func TestMerge(t *testing.T) {
	balances := state.NewBalances("A", 10)

	var vault state.Vault
	vault.Set("A", []state.VaultEntry{{Balance: 5}})
	vault.Set("B", []state.VaultEntry{{Balance: 3}})
	vault.Set("C", nil)

	merged := Merge(balances, vault)
	require.Equal(t, []string{"A", "B"}, merged.Keys())
	require.Equal(t, uint64(15), merged.Get("A"))
	require.Equal(t, uint64(3), merged.Get("B"))
	require.Equal(t, uint64(18), merged.Total())

	// Inputs are not modified.
	require.Equal(t, uint64(10), balances.Get("A"))
	require.False(t, balances.Has("B"))
}

func TestWeights(t *testing.T) {
	weights, total := Weights(state.NewBalances("A", 1, "B", 3, "C", 0, "D", 6))
	require.Equal(t, uint64(10), total)
	require.Len(t, weights, 4)

	sum := 0.0
	for _, w := range weights {
		sum += w.Value
	}
	require.InDelta(t, 1.0, sum, 1e-9)
	require.Equal(t, Weight{Account: "C"}, weights[2])

	weights, total = Weights(state.NewBalances("A", 0))
	require.Equal(t, uint64(0), total)
	require.Equal(t, 0.0, weights[0].Value)
}

func TestSelect_Empty(t *testing.T) {
	_, found := Select(state.Balances{}, state.Vault{}, fixed(0.5))
	require.False(t, found)

	_, found = Select(state.NewBalances("A", 0, "B", 0), state.Vault{}, fixed(0))
	require.False(t, found)
}

func TestSelect_Order(t *testing.T) {
	balances := state.NewBalances("A", 10)

	var vault state.Vault
	vault.Set("A", []state.VaultEntry{{Balance: 5}})
	vault.Set("B", []state.VaultEntry{{Balance: 3}})

	// A holds 15/18 of the tokens.
	addr, found := Select(balances, vault, fixed(0))
	require.True(t, found)
	require.Equal(t, "A", addr)

	addr, _ = Select(balances, vault, fixed(15.0/18.0))
	require.Equal(t, "A", addr)

	addr, _ = Select(balances, vault, fixed(0.84))
	require.Equal(t, "B", addr)

	addr, _ = Select(balances, vault, fixed(0.999999))
	require.Equal(t, "B", addr)
}

func TestSelect_SkipZeroWeight(t *testing.T) {
	balances := state.NewBalances("zero", 0, "A", 1, "B", 1)

	addr, found := Select(balances, state.Vault{}, fixed(0))
	require.True(t, found)
	require.Equal(t, "A", addr)

	// Exactly on the boundary, the first account reaching the draw wins.
	addr, _ = Select(balances, state.Vault{}, fixed(0.5))
	require.Equal(t, "A", addr)

	addr, _ = Select(balances, state.Vault{}, fixed(0.5000001))
	require.Equal(t, "B", addr)
}

func TestSelect_NoSelectionAboveOne(t *testing.T) {
	_, found := Select(state.NewBalances("A", 1), state.Vault{}, fixed(1.5))
	require.False(t, found)
}

func TestSelectWeightedHolder(t *testing.T) {
	balances := state.NewBalances("A", 0, "B", 7)

	for i := 0; i < 20; i++ {
		addr, found := SelectWeightedHolder(balances, state.Vault{})
		require.True(t, found)
		require.Equal(t, "B", addr)
	}

	for i := 0; i < 20; i++ {
		r := DefaultDraw()
		require.GreaterOrEqual(t, r, 0.0)
		require.Less(t, r, 1.0)
	}
}

// -----------------------------------------------------------------------------
// Utility functions

func fixed(r float64) Draw {
	return func() float64 {
		return r
	}
}
