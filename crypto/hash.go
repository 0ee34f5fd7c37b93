package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"hash"
)

// sha256Factory is a hash factory that is using SHA256.
//
// - implements crypto.HashFactory
type sha256Factory struct{}

// NewSha256Factory returns a new instance of the factory.
func NewSha256Factory() HashFactory {
	return sha256Factory{}
}

// New implements crypto.HashFactory. It returns a new Hash instance.
func (f sha256Factory) New() hash.Hash {
	return sha256.New()
}

// Address returns the account address of a public key, which is the URL-safe
// base64 encoding of the SHA256 digest of the key.
func Address(pk PublicKey) (string, error) {
	data, err := pk.MarshalBinary()
	if err != nil {
		return "", err
	}

	digest := sha256.Sum256(data)

	return base64.RawURLEncoding.EncodeToString(digest[:]), nil
}
