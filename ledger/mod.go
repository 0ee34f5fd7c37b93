// Package ledger defines the abstraction of the client used to talk to the
// distributed ledger.
//
// The client provides the price of a transaction, the balance of an account,
// and the primitives to create, sign and submit a transaction. The ledger
// itself is an external collaborator: how the transactions are priced and
// ordered is out of the scope of this module.
package ledger

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"io"
	"math/big"
	"net/http"

	"go.dedis.ch/community/crypto"
	"golang.org/x/xerrors"
)

// Names of the standard tags attached to the transactions so that indexers
// can attribute them.
const (
	TagAppName    = "App-Name"
	TagAppVersion = "App-Version"
	TagContract   = "Community-Contract"
	TagTicker     = "Community-Ticker"
	TagAction     = "Action"
)

// Tag is a named value attached to a transaction.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Fields are the parameters to create a new transaction.
type Fields struct {
	Target   string
	Quantity *big.Int
	Data     []byte
	Tags     []Tag
}

// Transaction is a transaction of the ledger. It transfers a quantity of
// tokens to the target, and/or stores data with tags.
type Transaction struct {
	ID        string   `json:"id"`
	Anchor    string   `json:"last_tx"`
	Owner     []byte   `json:"owner"`
	Target    string   `json:"target"`
	Quantity  *big.Int `json:"quantity"`
	Reward    *big.Int `json:"reward"`
	Data      []byte   `json:"data"`
	Tags      []Tag    `json:"tags"`
	Signature []byte   `json:"signature"`
}

// AddTag appends a tag to the transaction. It must be called before the
// transaction is signed.
func (tx *Transaction) AddTag(name, value string) {
	tx.Tags = append(tx.Tags, Tag{Name: name, Value: value})
}

// GetTag returns the value of the first tag with the name.
func (tx *Transaction) GetTag(name string) (string, bool) {
	for _, tag := range tx.Tags {
		if tag.Name == name {
			return tag.Value, true
		}
	}

	return "", false
}

// Fingerprint writes a deterministic binary representation of the signed
// fields of the transaction.
func (tx *Transaction) Fingerprint(w io.Writer) error {
	chunks := [][]byte{
		[]byte(tx.Anchor),
		tx.Owner,
		[]byte(tx.Target),
		amountBytes(tx.Quantity),
		amountBytes(tx.Reward),
		tx.Data,
	}

	for _, tag := range tx.Tags {
		chunks = append(chunks, []byte(tag.Name), []byte(tag.Value))
	}

	length := make([]byte, 8)

	for _, chunk := range chunks {
		binary.LittleEndian.PutUint64(length, uint64(len(chunk)))

		_, err := w.Write(append(length, chunk...))
		if err != nil {
			return xerrors.Errorf("couldn't write chunk: %v", err)
		}
	}

	return nil
}

// Digest returns the hash of the fingerprint of the transaction.
func (tx *Transaction) Digest(f crypto.HashFactory) ([]byte, error) {
	h := f.New()

	err := tx.Fingerprint(h)
	if err != nil {
		return nil, xerrors.Errorf("failed to fingerprint: %v", err)
	}

	return h.Sum(nil), nil
}

// Status is the acknowledgment of the ledger to a submission.
type Status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Success returns true when the transaction was accepted.
func (s Status) Success() bool {
	return s.Code == http.StatusOK || s.Code == http.StatusAlreadyReported
}

// Client is the interface to interact with the ledger.
type Client interface {
	// GetPrice returns the price to store a payload of the given size.
	GetPrice(ctx context.Context, size int) (*big.Int, error)

	// GetBalance returns the balance of the account.
	GetBalance(ctx context.Context, addr string) (*big.Int, error)

	// CreateTransaction returns a new unsigned transaction owned by the
	// signer.
	CreateTransaction(ctx context.Context, fields Fields, signer crypto.Signer) (*Transaction, error)

	// Sign signs the transaction and sets its identifier.
	Sign(ctx context.Context, tx *Transaction, signer crypto.Signer) error

	// Submit sends the transaction to the ledger and returns the
	// acknowledgment.
	Submit(ctx context.Context, tx *Transaction) (Status, error)
}

// SignTransaction populates the owner, the signature and the identifier of
// the transaction. The identifier is the hash of the signature.
func SignTransaction(tx *Transaction, signer crypto.Signer) error {
	owner, err := signer.GetPublicKey().MarshalBinary()
	if err != nil {
		return xerrors.Errorf("failed to marshal public key: %v", err)
	}

	tx.Owner = owner

	hashFac := crypto.NewSha256Factory()

	digest, err := tx.Digest(hashFac)
	if err != nil {
		return xerrors.Errorf("failed to digest: %v", err)
	}

	sig, err := signer.Sign(digest)
	if err != nil {
		return xerrors.Errorf("signer: %v", err)
	}

	tx.Signature, err = sig.MarshalBinary()
	if err != nil {
		return xerrors.Errorf("failed to marshal signature: %v", err)
	}

	tx.ID = makeID(hashFac, tx.Signature)

	return nil
}

// VerifyTransaction returns nil when the signature and the identifier of the
// transaction are valid for its owner.
func VerifyTransaction(tx *Transaction, pkFac crypto.PublicKeyFactory, sigFac func([]byte) crypto.Signature) error {
	pubkey, err := pkFac.FromBytes(tx.Owner)
	if err != nil {
		return xerrors.Errorf("invalid owner: %v", err)
	}

	hashFac := crypto.NewSha256Factory()

	digest, err := tx.Digest(hashFac)
	if err != nil {
		return xerrors.Errorf("failed to digest: %v", err)
	}

	err = pubkey.Verify(digest, sigFac(tx.Signature))
	if err != nil {
		return xerrors.Errorf("invalid signature: %v", err)
	}

	if tx.ID != makeID(hashFac, tx.Signature) {
		return xerrors.Errorf("invalid identifier '%s'", tx.ID)
	}

	return nil
}

// OwnerAddress returns the account address of the owner of the transaction.
func OwnerAddress(tx *Transaction, pkFac crypto.PublicKeyFactory) (string, error) {
	pubkey, err := pkFac.FromBytes(tx.Owner)
	if err != nil {
		return "", xerrors.Errorf("invalid owner: %v", err)
	}

	addr, err := crypto.Address(pubkey)
	if err != nil {
		return "", xerrors.Errorf("failed to compute address: %v", err)
	}

	return addr, nil
}

func makeID(f crypto.HashFactory, sig []byte) string {
	h := f.New()
	h.Write(sig)

	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func amountBytes(amount *big.Int) []byte {
	if amount == nil {
		return nil
	}

	return []byte(amount.String())
}
