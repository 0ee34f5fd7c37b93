// Package selector implements the weighted selection of a token holder.
//
// The probability of an account to be selected is proportional to its
// holdings, including the tokens locked in the vault. The selection walks the
// accounts in insertion order and accumulates their weights until the running
// sum reaches a uniform random draw.
package selector

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"

	"go.dedis.ch/community/state"
)

// Draw returns a uniform random value in [0, 1).
type Draw func() float64

// Weight is the share of the total supply an account holds.
type Weight struct {
	Account string
	Value   float64
}

// Merge returns the balances with the vault entries of every account added to
// it. Accounts that only exist in the vault are appended after the existing
// ones. The inputs are left untouched.
func Merge(balances state.Balances, vault state.Vault) state.Balances {
	merged := balances.Clone()

	for _, addr := range vault.Keys() {
		entries := vault.Get(addr)
		if len(entries) == 0 {
			continue
		}

		sum := uint64(0)
		for _, entry := range entries {
			sum += entry.Balance
		}

		merged.Add(addr, sum)
	}

	return merged
}

// Weights returns the weight of every account of the merged balances, in
// order, alongside the total of tokens. Every weight is zero when the total
// is zero.
func Weights(merged state.Balances) ([]Weight, uint64) {
	total := merged.Total()
	keys := merged.Keys()

	weights := make([]Weight, len(keys))
	for i, addr := range keys {
		weights[i] = Weight{Account: addr}

		if total > 0 {
			weights[i].Value = float64(merged.Get(addr)) / float64(total)
		}
	}

	return weights, total
}

// Select picks an account with a probability proportional to its holdings
// using the given draw. It returns false when no account can be selected,
// which is the case when no tokens exist.
func Select(balances state.Balances, vault state.Vault, draw Draw) (string, bool) {
	weights, total := Weights(Merge(balances, vault))
	if total == 0 {
		return "", false
	}

	r := draw()
	sum := 0.0

	for _, w := range weights {
		sum += w.Value

		if sum >= r && w.Value > 0 {
			return w.Account, true
		}
	}

	return "", false
}

// SelectWeightedHolder picks an account with the default random source.
func SelectWeightedHolder(balances state.Balances, vault state.Vault) (string, bool) {
	return Select(balances, vault, DefaultDraw)
}

var (
	rngLock sync.Mutex
	rng     = rand.New(rand.NewSource(newSeed()))
)

// DefaultDraw is a draw using a pseudo-random generator seeded from the
// system's entropy. It is safe for concurrent use.
func DefaultDraw() float64 {
	rngLock.Lock()
	defer rngLock.Unlock()

	return rng.Float64()
}

func newSeed() int64 {
	var buffer [8]byte

	_, err := crand.Read(buffer[:])
	if err != nil {
		// The generator is not used for anything secret and any seed is
		// acceptable.
		return 0
	}

	return int64(binary.LittleEndian.Uint64(buffer[:]))
}
