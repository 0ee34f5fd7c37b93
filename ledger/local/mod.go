// Package local implements a ledger client backed by a local key/value
// database.
//
// The ledger is meant for development networks. Transactions are applied as
// soon as they are submitted and there is no consensus. The price of a
// transaction is a base price plus a price per byte of data.
package local

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/community"
	"go.dedis.ch/community/core/store/kv"
	"go.dedis.ch/community/crypto"
	"go.dedis.ch/community/crypto/ed25519"
	"go.dedis.ch/community/ledger"
	"golang.org/x/xerrors"
)

var (
	bucketName = []byte("ledger")

	accountPrefix = []byte("acc:")
	txPrefix      = []byte("tx:")
)

// Option is the type of option to configure the ledger.
type Option func(*Ledger)

// WithPricing sets the base price of a transaction and the price per byte of
// its data.
func WithPricing(base, perByte int64) Option {
	return func(l *Ledger) {
		l.basePrice = big.NewInt(base)
		l.pricePerByte = big.NewInt(perByte)
	}
}

// WithLogger sets the logger of the ledger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// Ledger is a single-node ledger that stores the accounts and the
// transactions in a database.
//
// - implements ledger.Client
type Ledger struct {
	db           kv.DB
	basePrice    *big.Int
	pricePerByte *big.Int
	pkFac        crypto.PublicKeyFactory
	logger       zerolog.Logger
}

// NewLedger creates a ledger on top of the database.
func NewLedger(db kv.DB, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		db:           db,
		basePrice:    big.NewInt(0),
		pricePerByte: big.NewInt(0),
		pkFac:        ed25519.NewPublicKeyFactory(),
		logger:       community.Logger.With().Str("component", "ledger").Logger(),
	}

	for _, opt := range opts {
		opt(l)
	}

	err := db.Update(bucketName, func(kv.Bucket) error { return nil })
	if err != nil {
		return nil, xerrors.Errorf("failed to init bucket: %v", err)
	}

	return l, nil
}

// GetPrice implements ledger.Client. It returns the price to store data of the
// given size.
func (l *Ledger) GetPrice(ctx context.Context, size int) (*big.Int, error) {
	if size < 0 {
		return nil, xerrors.Errorf("invalid size %d", size)
	}

	price := new(big.Int).Mul(l.pricePerByte, big.NewInt(int64(size)))

	return price.Add(price, l.basePrice), nil
}

// GetBalance implements ledger.Client.
func (l *Ledger) GetBalance(ctx context.Context, addr string) (*big.Int, error) {
	var balance *big.Int

	err := l.db.View(bucketName, func(b kv.Bucket) error {
		var err error
		balance, err = readAmount(b, addr)
		return err
	})

	if err != nil {
		return nil, xerrors.Errorf("failed to read balance: %v", err)
	}

	return balance, nil
}

// CreateTransaction implements ledger.Client. The reward is the price of the
// data of the transaction.
func (l *Ledger) CreateTransaction(ctx context.Context, fields ledger.Fields,
	signer crypto.Signer) (*ledger.Transaction, error) {

	owner, err := signer.GetPublicKey().MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal public key: %v", err)
	}

	reward, err := l.GetPrice(ctx, len(fields.Data))
	if err != nil {
		return nil, xerrors.Errorf("failed to get price: %v", err)
	}

	quantity := fields.Quantity
	if quantity == nil {
		quantity = big.NewInt(0)
	}

	tx := &ledger.Transaction{
		Anchor:   xid.New().String(),
		Owner:    owner,
		Target:   fields.Target,
		Quantity: new(big.Int).Set(quantity),
		Reward:   reward,
		Data:     fields.Data,
		Tags:     append([]ledger.Tag{}, fields.Tags...),
	}

	return tx, nil
}

// Sign implements ledger.Client.
func (l *Ledger) Sign(ctx context.Context, tx *ledger.Transaction, signer crypto.Signer) error {
	err := ledger.SignTransaction(tx, signer)
	if err != nil {
		return xerrors.Errorf("failed to sign: %v", err)
	}

	return nil
}

// Submit implements ledger.Client. The transaction is verified and applied
// atomically. A rejection is reported in the status.
func (l *Ledger) Submit(ctx context.Context, tx *ledger.Transaction) (ledger.Status, error) {
	err := ledger.VerifyTransaction(tx, l.pkFac, toSignature)
	if err != nil {
		l.logger.Debug().Err(err).Msg("transaction rejected")

		return ledger.Status{Code: http.StatusBadRequest, Message: err.Error()}, nil
	}

	owner, err := ledger.OwnerAddress(tx, l.pkFac)
	if err != nil {
		return ledger.Status{Code: http.StatusBadRequest, Message: err.Error()}, nil
	}

	status := ledger.Status{Code: http.StatusOK, Message: "OK"}

	err = l.db.Update(bucketName, func(b kv.Bucket) error {
		key := append(append([]byte{}, txPrefix...), tx.ID...)

		if b.Get(key) != nil {
			status = ledger.Status{Code: http.StatusAlreadyReported, Message: "already submitted"}
			return nil
		}

		cost := new(big.Int).Add(amountOf(tx.Quantity), amountOf(tx.Reward))

		balance, err := readAmount(b, owner)
		if err != nil {
			return err
		}

		if balance.Cmp(cost) < 0 {
			status = ledger.Status{
				Code:    http.StatusGone,
				Message: "insufficient funds: " + balance.String() + " < " + cost.String(),
			}
			return nil
		}

		err = writeAmount(b, owner, balance.Sub(balance, cost))
		if err != nil {
			return err
		}

		if tx.Target != "" && amountOf(tx.Quantity).Sign() > 0 {
			target, err := readAmount(b, tx.Target)
			if err != nil {
				return err
			}

			err = writeAmount(b, tx.Target, target.Add(target, tx.Quantity))
			if err != nil {
				return err
			}
		}

		data, err := json.Marshal(tx)
		if err != nil {
			return xerrors.Errorf("failed to encode transaction: %v", err)
		}

		return b.Set(key, data)
	})

	if err != nil {
		return ledger.Status{}, xerrors.Errorf("failed to apply transaction: %v", err)
	}

	l.logger.Debug().
		Str("tx", tx.ID).
		Str("owner", owner).
		Str("target", tx.Target).
		Int("status", status.Code).
		Msg("transaction submitted")

	return status, nil
}

// Mint credits the account with the amount. It is the faucet of a development
// network.
func (l *Ledger) Mint(ctx context.Context, addr string, amount *big.Int) error {
	if addr == "" {
		return xerrors.New("missing address")
	}

	if amount == nil || amount.Sign() <= 0 {
		return xerrors.New("amount must be positive")
	}

	err := l.db.Update(bucketName, func(b kv.Bucket) error {
		balance, err := readAmount(b, addr)
		if err != nil {
			return err
		}

		return writeAmount(b, addr, balance.Add(balance, amount))
	})

	if err != nil {
		return xerrors.Errorf("failed to mint: %v", err)
	}

	l.logger.Info().Str("addr", addr).Str("amount", amount.String()).Msg("minted")

	return nil
}

// GetTransaction returns the transaction with the identifier.
func (l *Ledger) GetTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	var tx *ledger.Transaction

	err := l.db.View(bucketName, func(b kv.Bucket) error {
		data := b.Get(append(append([]byte{}, txPrefix...), id...))
		if data == nil {
			return xerrors.Errorf("transaction '%s' not found", id)
		}

		tx = &ledger.Transaction{}

		return json.Unmarshal(data, tx)
	})

	if err != nil {
		return nil, xerrors.Errorf("failed to read transaction: %v", err)
	}

	return tx, nil
}

// Transactions returns the number of applied transactions.
func (l *Ledger) Transactions(ctx context.Context) (int, error) {
	count := 0

	err := l.db.View(bucketName, func(b kv.Bucket) error {
		return b.Scan(txPrefix, func(k, v []byte) error {
			count++
			return nil
		})
	})

	if err != nil {
		return 0, xerrors.Errorf("failed to scan: %v", err)
	}

	return count, nil
}

func readAmount(b kv.Bucket, addr string) (*big.Int, error) {
	data := b.Get(append(append([]byte{}, accountPrefix...), addr...))
	if data == nil {
		return big.NewInt(0), nil
	}

	amount, ok := new(big.Int).SetString(string(data), 10)
	if !ok {
		return nil, xerrors.Errorf("invalid amount '%s' for '%s'", data, addr)
	}

	return amount, nil
}

func writeAmount(b kv.Bucket, addr string, amount *big.Int) error {
	return b.Set(append(append([]byte{}, accountPrefix...), addr...), []byte(amount.String()))
}

func amountOf(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}

	return v
}

func toSignature(data []byte) crypto.Signature {
	return ed25519.NewSignature(data)
}
