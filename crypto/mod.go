// Package crypto defines the cryptographic primitives used to sign the
// transactions sent to the ledger.
package crypto

import (
	"encoding"
	"hash"
)

// HashFactory is an interface to produce a hash digest.
type HashFactory interface {
	New() hash.Hash
}

// PublicKey is a public identity that can be used to verify a signature.
type PublicKey interface {
	encoding.BinaryMarshaler

	// Verify returns nil if the signature matches the message, otherwise an
	// error.
	Verify(msg []byte, signature Signature) error

	// Equal returns true when both keys are the same.
	Equal(other interface{}) bool
}

// PublicKeyFactory is a factory to create public keys.
type PublicKeyFactory interface {
	FromBytes(data []byte) (PublicKey, error)
}

// Signature is a verifiable element for a unique message.
type Signature interface {
	encoding.BinaryMarshaler

	Equal(other Signature) bool
}

// Signer provides the primitives to sign messages. It represents the wallet
// of the account that pays for the transactions.
type Signer interface {
	// GetPublicKey returns the public key of the signer.
	GetPublicKey() PublicKey

	// GetPublicKeyFactory returns a factory able to rebuild the public key of
	// the signer from its binary representation.
	GetPublicKeyFactory() PublicKeyFactory

	// Sign signs the message and returns the signature.
	Sign(msg []byte) (Signature, error)
}
