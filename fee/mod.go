// Package fee implements the charge of the fee paid for every action
// submitted to a community.
//
// The fee is the price of a reference payload on the ledger. It is transferred
// to a holder of the fee-collecting contract drawn at random, weighted by the
// tokens the holder owns, locked or not.
package fee

import (
	"context"
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/community"
	"go.dedis.ch/community/crypto"
	"go.dedis.ch/community/ledger"
	"go.dedis.ch/community/selector"
	"go.dedis.ch/community/state"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

const (
	// DefaultReferenceSize is the default size in bytes of the payload whose
	// price is the fee.
	DefaultReferenceSize = 1000

	// DefaultAppName is the default application name attached to the
	// transactions.
	DefaultAppName = "CommunityJS"

	// DefaultAppVersion is the default application version attached to the
	// transactions.
	DefaultAppVersion = "1.0.0"
)

var (
	// ErrInsufficientBalance is returned when the balance of the caller does
	// not cover the fee.
	ErrInsufficientBalance = xerrors.New("insufficient balance")

	// ErrNoEligibleRecipient is returned when no holder of the fee-collecting
	// contract can receive the fee.
	ErrNoEligibleRecipient = xerrors.New("no eligible fee recipient")

	// ErrSubmission is returned when the ledger does not accept the fee
	// transaction.
	ErrSubmission = xerrors.New("transaction submission failed")
)

var promCharges = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "community_fee_charges_total",
	Help: "total number of fee charges",
}, []string{"result"})

func init() {
	community.PromCollectors = append(community.PromCollectors, promCharges)
}

// StateSource provides the state of the fee-collecting contract.
type StateSource interface {
	GetState(ctx context.Context, useCache bool) (*state.Snapshot, error)
}

// Record is the summary of a fee charge.
type Record struct {
	Action    string
	Fee       *big.Int
	Recipient string
	TxID      string
}

// Option is the type of option to configure a charger.
type Option func(*Charger)

// WithReferenceSize sets the size of the payload whose price is the fee.
func WithReferenceSize(size int) Option {
	return func(c *Charger) {
		c.refSize = size
	}
}

// WithApp sets the application name and version attached to the
// transactions.
func WithApp(name, version string) Option {
	return func(c *Charger) {
		c.appName = name
		c.appVersion = version
	}
}

// WithDraw sets the random draw used to select the recipient.
func WithDraw(draw selector.Draw) Option {
	return func(c *Charger) {
		c.draw = draw
	}
}

// WithLogger sets the logger of the charger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Charger) {
		c.logger = l
	}
}

// Charger charges the fee of the actions of a signer.
type Charger struct {
	ledger     ledger.Client
	signer     crypto.Signer
	feeState   StateSource
	draw       selector.Draw
	refSize    int
	appName    string
	appVersion string
	logger     zerolog.Logger
}

// NewCharger creates a new charger for the signer. The recipients are drawn
// from the state of the fee-collecting contract.
func NewCharger(l ledger.Client, signer crypto.Signer, feeState StateSource, opts ...Option) *Charger {
	c := &Charger{
		ledger:     l,
		signer:     signer,
		feeState:   feeState,
		draw:       selector.DefaultDraw,
		refSize:    DefaultReferenceSize,
		appName:    DefaultAppName,
		appVersion: DefaultAppVersion,
		logger:     community.Logger.With().Str("component", "fee").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Tags returns the standard tags of a transaction of the action on the
// contract. The contract tag is omitted when the contract does not exist yet.
func (c *Charger) Tags(actionName, contractID, ticker string) []ledger.Tag {
	tags := []ledger.Tag{
		{Name: ledger.TagAppName, Value: c.appName},
		{Name: ledger.TagAppVersion, Value: c.appVersion},
	}

	if contractID != "" {
		tags = append(tags, ledger.Tag{Name: ledger.TagContract, Value: contractID})
	}

	return append(tags,
		ledger.Tag{Name: ledger.TagTicker, Value: ticker},
		ledger.Tag{Name: ledger.TagAction, Value: actionName})
}

// Cost returns the fee of one action.
func (c *Charger) Cost(ctx context.Context) (*big.Int, error) {
	fee, err := c.ledger.GetPrice(ctx, c.refSize)
	if err != nil {
		return nil, xerrors.Errorf("failed to get price: %v", err)
	}

	return fee, nil
}

// Charge transfers the fee of the action to a holder of the fee-collecting
// contract. It returns once the ledger accepted the transaction.
func (c *Charger) Charge(ctx context.Context, actionName, contractID, ticker string) (Record, error) {
	rec, err := c.charge(ctx, actionName, contractID, ticker)
	if err != nil {
		promCharges.WithLabelValues(resultOf(err)).Inc()
		return rec, err
	}

	promCharges.WithLabelValues("success").Inc()

	c.logger.Info().
		Str("action", rec.Action).
		Str("fee", rec.Fee.String()).
		Str("recipient", rec.Recipient).
		Str("tx", rec.TxID).
		Msg("fee charged")

	return rec, nil
}

func (c *Charger) charge(ctx context.Context, actionName, contractID, ticker string) (Record, error) {
	rec := Record{Action: actionName}

	addr, err := crypto.Address(c.signer.GetPublicKey())
	if err != nil {
		return rec, xerrors.Errorf("failed to get address: %v", err)
	}

	var balance *big.Int
	var feeSnap *state.Snapshot

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fee, err := c.Cost(gctx)
		rec.Fee = fee
		return err
	})

	g.Go(func() error {
		var err error
		balance, err = c.ledger.GetBalance(gctx, addr)
		if err != nil {
			return xerrors.Errorf("failed to get balance: %v", err)
		}

		return nil
	})

	g.Go(func() error {
		var err error
		feeSnap, err = c.feeState.GetState(gctx, true)
		if err != nil {
			return xerrors.Errorf("failed to read fee contract: %w", err)
		}

		return nil
	})

	err = g.Wait()
	if err != nil {
		return rec, err
	}

	if balance.Cmp(rec.Fee) < 0 {
		return rec, xerrors.Errorf("balance of %s is %v but fee is %v: %w",
			addr, balance, rec.Fee, ErrInsufficientBalance)
	}

	recipient, found := selector.Select(feeSnap.Balances, feeSnap.Vault, c.draw)
	if !found {
		return rec, ErrNoEligibleRecipient
	}

	rec.Recipient = recipient

	fields := ledger.Fields{
		Target:   recipient,
		Quantity: rec.Fee,
		Tags:     c.Tags(actionName, contractID, ticker),
	}

	tx, err := c.ledger.CreateTransaction(ctx, fields, c.signer)
	if err != nil {
		return rec, xerrors.Errorf("failed to create transaction: %v", err)
	}

	// The ledger takes the reward of the transaction on top of the fee.
	if tx.Reward != nil && tx.Reward.Sign() > 0 {
		total := new(big.Int).Add(rec.Fee, tx.Reward)

		if balance.Cmp(total) < 0 {
			return rec, xerrors.Errorf("balance of %s is %v but fee and reward are %v: %w",
				addr, balance, total, ErrInsufficientBalance)
		}
	}

	err = c.ledger.Sign(ctx, tx, c.signer)
	if err != nil {
		return rec, xerrors.Errorf("failed to sign transaction: %v", err)
	}

	status, err := c.ledger.Submit(ctx, tx)
	if err != nil {
		return rec, xerrors.Errorf("failed to submit: %v: %w", err, ErrSubmission)
	}

	if !status.Success() {
		return rec, xerrors.Errorf("ledger answered %d (%s): %w",
			status.Code, status.Message, ErrSubmission)
	}

	rec.TxID = tx.ID

	return rec, nil
}

func resultOf(err error) string {
	switch {
	case xerrors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case xerrors.Is(err, ErrNoEligibleRecipient):
		return "no_recipient"
	case xerrors.Is(err, ErrSubmission):
		return "rejected"
	default:
		return "failure"
	}
}
