package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestSha256Factory_New(t *testing.T) {
	f := NewSha256Factory()

	h := f.New()
	h.Write([]byte("deadbeef"))

	expected := sha256.Sum256([]byte("deadbeef"))
	require.Equal(t, expected[:], h.Sum(nil))
}

func TestAddress(t *testing.T) {
	addr, err := Address(fakePublicKey{data: []byte{1, 2, 3}})
	require.NoError(t, err)

	digest := sha256.Sum256([]byte{1, 2, 3})
	require.Equal(t, base64.RawURLEncoding.EncodeToString(digest[:]), addr)
	require.Len(t, addr, 43)

	_, err = Address(fakePublicKey{err: xerrors.New("oops")})
	require.EqualError(t, err, "oops")
}

// -----------------------------------------------------------------------------
// Utility functions

type fakePublicKey struct {
	PublicKey

	data []byte
	err  error
}

func (pk fakePublicKey) MarshalBinary() ([]byte, error) {
	return pk.data, pk.err
}
