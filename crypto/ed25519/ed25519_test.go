package ed25519

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/community/crypto"
	"go.dedis.ch/kyber/v3/sign/schnorr"
)

func TestPublicKey_New(t *testing.T) {
	point := suite.Point()
	pointBuf, err := point.MarshalBinary()
	require.NoError(t, err)

	pubKey, err := NewPublicKey(pointBuf)
	require.NoError(t, err)
	require.True(t, pubKey.GetPoint().Equal(point))

	_, err = NewPublicKey([]byte{})
	require.EqualError(t, err, "couldn't unmarshal point: invalid Ed25519 curve point")
}

func TestPublicKey_Verify(t *testing.T) {
	privKey := suite.Scalar().Pick(suite.RandomStream())
	pk := NewPublicKeyFromPoint(suite.Point().Mul(privKey, nil))

	msg := []byte("hello")
	signature, err := schnorr.Sign(suite, privKey, msg)
	require.NoError(t, err)

	err = pk.Verify(msg, NewSignature(signature))
	require.NoError(t, err)

	err = pk.Verify(msg, fakeSignature{})
	require.EqualError(t, err, "invalid signature type 'ed25519.fakeSignature'")

	err = pk.Verify([]byte("bye"), NewSignature(signature))
	require.Error(t, err)
	require.Contains(t, err.Error(), "schnorr verify failed")
}

func TestPublicKey_Equal(t *testing.T) {
	signer := NewSigner()

	require.True(t, signer.GetPublicKey().Equal(signer.GetPublicKey()))
	require.False(t, signer.GetPublicKey().Equal(NewSigner().GetPublicKey()))
	require.False(t, signer.GetPublicKey().Equal(fakeSignature{}))
}

func TestPublicKey_String(t *testing.T) {
	pk := NewSigner().GetPublicKey().(PublicKey)
	require.Len(t, pk.String(), len("schnorr:")+16)
}

func TestSignature_Equal(t *testing.T) {
	sig := NewSignature([]byte{1, 2, 3})

	require.True(t, sig.Equal(NewSignature([]byte{1, 2, 3})))
	require.False(t, sig.Equal(NewSignature([]byte{1, 2})))
	require.False(t, sig.Equal(fakeSignature{}))

	data, err := sig.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, data)
}

func TestPublicKeyFactory_FromBytes(t *testing.T) {
	signer := NewSigner()

	data, err := signer.GetPublicKey().MarshalBinary()
	require.NoError(t, err)

	pk, err := signer.GetPublicKeyFactory().FromBytes(data)
	require.NoError(t, err)
	require.True(t, pk.Equal(signer.GetPublicKey()))

	_, err = NewPublicKeyFactory().FromBytes(nil)
	require.EqualError(t, err,
		"failed to unmarshal the key: couldn't unmarshal point: invalid Ed25519 curve point")
}

func TestSigner_Sign(t *testing.T) {
	signer := NewSigner()

	sig, err := signer.Sign([]byte("deadbeef"))
	require.NoError(t, err)

	err = signer.GetPublicKey().Verify([]byte("deadbeef"), sig)
	require.NoError(t, err)
}

func TestSigner_Restore(t *testing.T) {
	data, err := Generator{}.Generate()
	require.NoError(t, err)

	signer, err := NewSignerFromBytes(data)
	require.NoError(t, err)

	again, err := NewSignerFromBytes(data)
	require.NoError(t, err)
	require.True(t, signer.GetPublicKey().Equal(again.GetPublicKey()))
	require.True(t, signer.GetPrivateKey().Equal(again.GetPrivateKey()))

	addr1, err := crypto.Address(signer.GetPublicKey())
	require.NoError(t, err)

	addr2, err := crypto.Address(again.GetPublicKey())
	require.NoError(t, err)
	require.Equal(t, addr1, addr2)

	_, err = NewSignerFromBytes([]byte{1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't unmarshal scalar")
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeSignature struct {
	crypto.Signature
}
