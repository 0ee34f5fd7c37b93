package state

import (
	"bytes"
	"encoding/json"
	"strconv"

	"golang.org/x/xerrors"
)

// Balances is a mapping of accounts to an amount of tokens that remembers the
// order in which the accounts were inserted. The zero value is ready to use.
type Balances struct {
	keys   []string
	values map[string]uint64
}

// NewBalances creates balances from a list of account and amount pairs.
func NewBalances(pairs ...interface{}) Balances {
	var b Balances

	for i := 0; i+1 < len(pairs); i += 2 {
		b.Set(pairs[i].(string), toUint64(pairs[i+1]))
	}

	return b
}

// Get returns the amount of the account, or zero if it is unknown.
func (b Balances) Get(addr string) uint64 {
	return b.values[addr]
}

// Has returns true if the account is in the mapping.
func (b Balances) Has(addr string) bool {
	_, found := b.values[addr]
	return found
}

// Set assigns the amount to the account. A new account is appended after the
// existing ones.
func (b *Balances) Set(addr string, amount uint64) {
	if b.values == nil {
		b.values = make(map[string]uint64)
	}

	_, found := b.values[addr]
	if !found {
		b.keys = append(b.keys, addr)
	}

	b.values[addr] = amount
}

// Add increases the amount of the account.
func (b *Balances) Add(addr string, amount uint64) {
	b.Set(addr, b.Get(addr)+amount)
}

// Delete removes the account from the mapping.
func (b *Balances) Delete(addr string) {
	_, found := b.values[addr]
	if !found {
		return
	}

	delete(b.values, addr)

	for i, key := range b.keys {
		if key == addr {
			b.keys = append(b.keys[:i:i], b.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the accounts in insertion order.
func (b Balances) Keys() []string {
	return append([]string{}, b.keys...)
}

// Len returns the number of accounts.
func (b Balances) Len() int {
	return len(b.keys)
}

// Total returns the sum of all the amounts.
func (b Balances) Total() uint64 {
	total := uint64(0)
	for _, value := range b.values {
		total += value
	}

	return total
}

// Clone returns a deep copy of the mapping.
func (b Balances) Clone() Balances {
	var clone Balances
	for _, key := range b.keys {
		clone.Set(key, b.values[key])
	}

	return clone
}

// MarshalJSON implements json.Marshaler. It writes a JSON object with the
// accounts in insertion order.
func (b Balances) MarshalJSON() ([]byte, error) {
	return marshalOrdered(b.keys, func(key string) interface{} {
		return b.values[key]
	})
}

// UnmarshalJSON implements json.Unmarshaler. It keeps the order of the keys
// of the JSON object.
func (b *Balances) UnmarshalJSON(data []byte) error {
	*b = Balances{}

	return unmarshalOrdered(data, func(key string, raw json.RawMessage) error {
		amount, err := strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return xerrors.Errorf("invalid balance for '%s': %v", key, err)
		}

		b.Set(key, amount)

		return nil
	})
}

// Vault is a mapping of accounts to their locked entries that remembers the
// order in which the accounts were inserted. The zero value is ready to use.
type Vault struct {
	keys   []string
	values map[string][]VaultEntry
}

// Get returns the entries of the account.
func (v Vault) Get(addr string) []VaultEntry {
	return v.values[addr]
}

// Set replaces the entries of the account. A new account is appended after the
// existing ones.
func (v *Vault) Set(addr string, entries []VaultEntry) {
	if v.values == nil {
		v.values = make(map[string][]VaultEntry)
	}

	_, found := v.values[addr]
	if !found {
		v.keys = append(v.keys, addr)
	}

	v.values[addr] = entries
}

// Append adds an entry to the account.
func (v *Vault) Append(addr string, entry VaultEntry) {
	v.Set(addr, append(v.Get(addr), entry))
}

// Delete removes the account from the vault.
func (v *Vault) Delete(addr string) {
	_, found := v.values[addr]
	if !found {
		return
	}

	delete(v.values, addr)

	for i, key := range v.keys {
		if key == addr {
			v.keys = append(v.keys[:i:i], v.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the accounts in insertion order.
func (v Vault) Keys() []string {
	return append([]string{}, v.keys...)
}

// Len returns the number of accounts.
func (v Vault) Len() int {
	return len(v.keys)
}

// Clone returns a deep copy of the vault.
func (v Vault) Clone() Vault {
	var clone Vault
	for _, key := range v.keys {
		clone.Set(key, append([]VaultEntry{}, v.values[key]...))
	}

	return clone
}

// MarshalJSON implements json.Marshaler.
func (v Vault) MarshalJSON() ([]byte, error) {
	return marshalOrdered(v.keys, func(key string) interface{} {
		entries := v.values[key]
		if entries == nil {
			return []VaultEntry{}
		}

		return entries
	})
}

// UnmarshalJSON implements json.Unmarshaler. It keeps the order of the keys
// of the JSON object.
func (v *Vault) UnmarshalJSON(data []byte) error {
	*v = Vault{}

	return unmarshalOrdered(data, func(key string, raw json.RawMessage) error {
		var entries []VaultEntry

		err := json.Unmarshal(raw, &entries)
		if err != nil {
			return xerrors.Errorf("invalid vault for '%s': %v", key, err)
		}

		v.Set(key, entries)

		return nil
	})
}

func marshalOrdered(keys []string, get func(string) interface{}) ([]byte, error) {
	buffer := new(bytes.Buffer)
	buffer.WriteByte('{')

	for i, key := range keys {
		if i > 0 {
			buffer.WriteByte(',')
		}

		k, err := json.Marshal(key)
		if err != nil {
			return nil, xerrors.Errorf("failed to marshal key: %v", err)
		}

		val, err := json.Marshal(get(key))
		if err != nil {
			return nil, xerrors.Errorf("failed to marshal value: %v", err)
		}

		buffer.Write(k)
		buffer.WriteByte(':')
		buffer.Write(val)
	}

	buffer.WriteByte('}')

	return buffer.Bytes(), nil
}

func unmarshalOrdered(data []byte, fn func(key string, raw json.RawMessage) error) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return xerrors.Errorf("failed to read token: %v", err)
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return xerrors.Errorf("expected an object but got '%v'", tok)
	}

	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return xerrors.Errorf("failed to read key: %v", err)
		}

		key, ok := tok.(string)
		if !ok {
			return xerrors.Errorf("invalid key '%v'", tok)
		}

		var raw json.RawMessage

		err = dec.Decode(&raw)
		if err != nil {
			return xerrors.Errorf("failed to read value of '%s': %v", key, err)
		}

		err = fn(key, raw)
		if err != nil {
			return err
		}
	}

	_, err = dec.Token()
	if err != nil {
		return xerrors.Errorf("failed to read end of object: %v", err)
	}

	return nil
}

func toUint64(v interface{}) uint64 {
	switch value := v.(type) {
	case int:
		return uint64(value)
	case uint64:
		return value
	case int64:
		return uint64(value)
	default:
		panic(xerrors.Errorf("unsupported amount type '%T'", v))
	}
}
