package fake

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync"

	"go.dedis.ch/community/crypto"
	"go.dedis.ch/community/ledger"
)

// Ledger is a fake implementation of ledger.Client. It records the calls and
// the submitted transactions.
//
// - implements ledger.Client
type Ledger struct {
	sync.Mutex

	Calls      *Call
	Price      *big.Int
	Balance    *big.Int
	Reward     *big.Int
	Status     ledger.Status
	Submitted  []*ledger.Transaction
	ErrPrice   error
	ErrBalance error
	ErrCreate  error
	ErrSign    error
	ErrSubmit  error

	counter int
}

// NewLedger returns a fake ledger that accepts every transaction.
func NewLedger(price, balance int64) *Ledger {
	return &Ledger{
		Calls:   NewCall(),
		Price:   big.NewInt(price),
		Balance: big.NewInt(balance),
		Reward:  big.NewInt(0),
		Status:  ledger.Status{Code: http.StatusOK},
	}
}

// GetPrice implements ledger.Client.
func (l *Ledger) GetPrice(ctx context.Context, size int) (*big.Int, error) {
	l.Calls.Add("GetPrice", size)

	if l.ErrPrice != nil {
		return nil, l.ErrPrice
	}

	return new(big.Int).Set(l.Price), nil
}

// GetBalance implements ledger.Client.
func (l *Ledger) GetBalance(ctx context.Context, addr string) (*big.Int, error) {
	l.Calls.Add("GetBalance", addr)

	if l.ErrBalance != nil {
		return nil, l.ErrBalance
	}

	return new(big.Int).Set(l.Balance), nil
}

// CreateTransaction implements ledger.Client.
func (l *Ledger) CreateTransaction(ctx context.Context, fields ledger.Fields,
	signer crypto.Signer) (*ledger.Transaction, error) {

	l.Calls.Add("CreateTransaction", fields)

	if l.ErrCreate != nil {
		return nil, l.ErrCreate
	}

	tx := &ledger.Transaction{
		Target:   fields.Target,
		Quantity: fields.Quantity,
		Reward:   new(big.Int).Set(l.Reward),
		Data:     fields.Data,
		Tags:     append([]ledger.Tag{}, fields.Tags...),
	}

	return tx, nil
}

// Sign implements ledger.Client. It assigns a sequential identifier.
func (l *Ledger) Sign(ctx context.Context, tx *ledger.Transaction, signer crypto.Signer) error {
	l.Calls.Add("Sign", tx)

	if l.ErrSign != nil {
		return l.ErrSign
	}

	l.Lock()
	l.counter++
	tx.ID = fmt.Sprintf("tx-%d", l.counter)
	l.Unlock()

	return nil
}

// Submit implements ledger.Client.
func (l *Ledger) Submit(ctx context.Context, tx *ledger.Transaction) (ledger.Status, error) {
	l.Calls.Add("Submit", tx)

	if l.ErrSubmit != nil {
		return ledger.Status{}, l.ErrSubmit
	}

	l.Lock()
	l.Submitted = append(l.Submitted, tx)
	l.Unlock()

	return l.Status, nil
}
