package state

import (
	"encoding/json"
	"strconv"

	"golang.org/x/xerrors"
)

// Names of the settings the contract relies on.
const (
	SettingQuorum        = "quorum"
	SettingSupport       = "support"
	SettingVoteLength    = "voteLength"
	SettingLockMinLength = "lockMinLength"
	SettingLockMaxLength = "lockMaxLength"
)

// NumericSettings lists the settings that must hold a number.
var NumericSettings = []string{
	SettingQuorum,
	SettingSupport,
	SettingVoteLength,
	SettingLockMinLength,
	SettingLockMaxLength,
}

// IsNumeric returns true if the setting must hold a number.
func IsNumeric(key string) bool {
	for _, name := range NumericSettings {
		if name == key {
			return true
		}
	}

	return false
}

// Settings is an ordered list of named parameters. It is serialized as a list
// of [key, value] pairs. The zero value is ready to use.
type Settings struct {
	keys   []string
	values map[string]interface{}
}

// Get returns the value of the setting and true if it exists.
func (s Settings) Get(key string) (interface{}, bool) {
	value, found := s.values[key]
	return value, found
}

// Set assigns the value to the setting.
func (s *Settings) Set(key string, value interface{}) {
	if s.values == nil {
		s.values = make(map[string]interface{})
	}

	_, found := s.values[key]
	if !found {
		s.keys = append(s.keys, key)
	}

	s.values[key] = value
}

// Keys returns the names of the settings in insertion order.
func (s Settings) Keys() []string {
	return append([]string{}, s.keys...)
}

// Float returns the numeric value of the setting. It returns false if the
// setting does not exist or is not a number.
func (s Settings) Float(key string) (float64, bool) {
	value, found := s.values[key]
	if !found {
		return 0, false
	}

	num, err := ToNumber(value)
	if err != nil {
		return 0, false
	}

	return num, true
}

// Clone returns a copy of the settings.
func (s Settings) Clone() Settings {
	var clone Settings
	for _, key := range s.keys {
		clone.Set(key, s.values[key])
	}

	return clone
}

// LockBounds returns the minimum and maximum lock lengths.
func (s Settings) LockBounds() (uint64, uint64) {
	min, _ := s.Float(SettingLockMinLength)
	max, _ := s.Float(SettingLockMaxLength)

	return uint64(min), uint64(max)
}

// MarshalJSON implements json.Marshaler.
func (s Settings) MarshalJSON() ([]byte, error) {
	pairs := make([][2]interface{}, len(s.keys))
	for i, key := range s.keys {
		pairs[i] = [2]interface{}{key, s.values[key]}
	}

	return json.Marshal(pairs)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Settings) UnmarshalJSON(data []byte) error {
	*s = Settings{}

	var pairs [][]interface{}

	err := json.Unmarshal(data, &pairs)
	if err != nil {
		return xerrors.Errorf("failed to decode pairs: %v", err)
	}

	for _, pair := range pairs {
		if len(pair) != 2 {
			return xerrors.Errorf("invalid setting pair of length %d", len(pair))
		}

		key, ok := pair[0].(string)
		if !ok {
			return xerrors.Errorf("invalid setting key '%v'", pair[0])
		}

		s.Set(key, pair[1])
	}

	return nil
}

// ToNumber coerces a number or a numeric string into a float.
func ToNumber(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		num, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, xerrors.Errorf("'%s' is not a number", v)
		}

		return num, nil
	default:
		return 0, xerrors.Errorf("unsupported type '%T'", value)
	}
}
