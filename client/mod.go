// Package client implements the surface used by a member to interact with a
// community.
//
// A community client tracks two contracts: the community contract the member
// acts on, and the fee-collecting contract whose holders receive the fee of
// every action. The state of each contract is cached and refreshed
// independently.
//
// An action is submitted in two phases. The fee is first charged and the
// ledger must have accepted the fee transaction before the action is dry run
// against the contract. The action is written only if the dry run succeeds.
package client

import (
	"context"
	"sync"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/community"
	"go.dedis.ch/community/action"
	"go.dedis.ch/community/config"
	"go.dedis.ch/community/contract"
	"go.dedis.ch/community/crypto"
	"go.dedis.ch/community/fee"
	"go.dedis.ch/community/ledger"
	"go.dedis.ch/community/selector"
	"go.dedis.ch/community/state"
	"go.dedis.ch/community/statesync"
	"golang.org/x/xerrors"
)

// ActionCreate is the name of the action charged when a community is created.
const ActionCreate = "CreateCommunity"

// ErrActionRejected is returned when the dry run of an action fails. The
// action is not written in that case.
var ErrActionRejected = xerrors.New("action rejected")

// Option is the type of option to configure a client.
type Option func(*options)

type options struct {
	logger zerolog.Logger
	draw   selector.Draw
}

// WithLogger sets the logger of the client and its components.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithDraw sets the random draw used to select the fee recipients.
func WithDraw(draw selector.Draw) Option {
	return func(o *options) {
		o.draw = draw
	}
}

// Community is the client of a member of a community.
type Community struct {
	sync.Mutex

	ledger  ledger.Client
	reader  contract.Reader
	signer  crypto.Signer
	cfg     config.Config
	logger  zerolog.Logger
	draw    selector.Draw
	address string

	state    *statesync.Synchronizer
	feeState *statesync.Synchronizer
	charger  *fee.Charger

	draft *state.Snapshot
}

// New creates a client for the signer. No community contract is bound.
func New(l ledger.Client, r contract.Reader, signer crypto.Signer,
	cfg config.Config, opts ...Option) (*Community, error) {

	o := options{
		logger: community.Logger,
		draw:   selector.DefaultDraw,
	}

	for _, opt := range opts {
		opt(&o)
	}

	addr, err := crypto.Address(signer.GetPublicKey())
	if err != nil {
		return nil, xerrors.Errorf("failed to get address: %v", err)
	}

	logger := o.logger.With().Str("addr", addr).Logger()

	syncOpts := []statesync.Option{
		statesync.WithInterval(cfg.RefreshInterval),
		statesync.WithTimeout(cfg.ReloadTimeout),
	}

	c := &Community{
		ledger:  l,
		reader:  r,
		signer:  signer,
		cfg:     cfg,
		logger:  logger,
		draw:    o.draw,
		address: addr,
		state: statesync.New(r, append(syncOpts,
			statesync.WithLogger(logger.With().Str("sync", "community").Logger()))...),
		feeState: statesync.New(r, append(syncOpts,
			statesync.WithLogger(logger.With().Str("sync", "fee").Logger()))...),
	}

	c.charger = fee.NewCharger(l, signer, feeSource{c: c},
		fee.WithReferenceSize(cfg.FeeReferenceSize),
		fee.WithApp(cfg.AppName, cfg.AppVersion),
		fee.WithDraw(o.draw),
		fee.WithLogger(logger))

	return c, nil
}

// Address returns the account address of the member.
func (c *Community) Address() string {
	return c.address
}

// ContractSource returns the source of the contracts created by the client.
func (c *Community) ContractSource() string {
	return c.cfg.ContractSource
}

// ContractID returns the identifier of the bound community contract, or an
// empty string.
func (c *Community) ContractID() string {
	return c.state.ContractID()
}

// BindContract binds the client to the community contract. The binding
// succeeds only if the state of the contract can be read.
func (c *Community) BindContract(ctx context.Context, id string) error {
	err := c.state.Bind(ctx, id)
	if err != nil {
		return xerrors.Errorf("failed to bind: %w", err)
	}

	return nil
}

// Watch registers the observer that is notified of every new cached state of
// the community contract.
func (c *Community) Watch(obs statesync.Observer) {
	c.state.Watch(obs)
}

// GetState returns the state of the community contract.
func (c *Community) GetState(ctx context.Context, useCache bool) (*state.Snapshot, error) {
	return c.state.GetState(ctx, useCache)
}

// GetFeeState returns the state of the fee-collecting contract.
func (c *Community) GetFeeState(ctx context.Context, useCache bool) (*state.Snapshot, error) {
	err := c.bindFeeContract(ctx)
	if err != nil {
		return nil, err
	}

	return c.feeState.GetState(ctx, useCache)
}

// SelectWeightedHolder returns a holder drawn at random, weighted by the tokens
// it owns, locked or not. When the balances or the vault are nil, the ones of
// the fee-collecting contract are used.
func (c *Community) SelectWeightedHolder(ctx context.Context, balances *state.Balances,
	vault *state.Vault) (string, bool, error) {

	if balances == nil || vault == nil {
		snap, err := c.GetFeeState(ctx, true)
		if err != nil {
			return "", false, xerrors.Errorf("failed to read fee contract: %w", err)
		}

		if balances == nil {
			balances = &snap.Balances
		}

		if vault == nil {
			vault = &snap.Vault
		}
	}

	holder, found := selector.Select(*balances, *vault, c.draw)

	return holder, found, nil
}

// ActionCost returns the fee of one action.
func (c *Community) ActionCost(ctx context.Context) (string, error) {
	cost, err := c.charger.Cost(ctx)
	if err != nil {
		return "", err
	}

	return cost.String(), nil
}

// SubmitAction validates the action, charges its fee, then dry runs and
// writes it. It returns the identifier of the interaction transaction.
func (c *Community) SubmitAction(ctx context.Context, a action.Action) (string, error) {
	logger := c.logger.With().
		Str("request", xid.New().String()).
		Str("action", a.Name()).
		Logger()

	id, snap, err := c.state.GetBoundState(ctx, true)
	if err != nil {
		return "", xerrors.Errorf("failed to get state: %w", err)
	}

	err = a.Validate(snap, c.address)
	if err != nil {
		return "", xerrors.Errorf("invalid '%s': %w", a.Name(), err)
	}

	input, err := a.Input()
	if err != nil {
		return "", xerrors.Errorf("failed to get input: %v", err)
	}

	logger.Debug().RawJSON("input", input).Msg("charging fee")

	rec, err := c.charger.Charge(ctx, a.Name(), id, snap.Ticker)
	if err != nil {
		return "", xerrors.Errorf("failed to charge fee: %w", err)
	}

	outcome, err := c.reader.DryRunWrite(ctx, id, c.signer, input)
	if err != nil {
		return "", xerrors.Errorf("failed to dry run: %v", err)
	}

	if outcome.Failed() {
		logger.Warn().
			Str("fee-tx", rec.TxID).
			Str("reason", outcome.Message).
			Msg("action rejected by the dry run")

		return "", xerrors.Errorf("'%s' failed with %s '%s': %w",
			a.Name(), outcome.Type, outcome.Message, ErrActionRejected)
	}

	txID, err := c.reader.CommitWrite(ctx, id, c.signer, input,
		c.charger.Tags(a.Name(), id, snap.Ticker)...)
	if err != nil {
		return "", xerrors.Errorf("failed to write: %v", err)
	}

	logger.Info().
		Str("fee-tx", rec.TxID).
		Str("tx", txID).
		Msg("action submitted")

	return txID, nil
}

// Transfer transfers unlocked tokens to the target.
func (c *Community) Transfer(ctx context.Context, target string, qty uint64) (string, error) {
	return c.SubmitAction(ctx, &action.Transfer{Target: target, Qty: qty})
}

// LockBalance locks tokens in the vault for a number of blocks.
func (c *Community) LockBalance(ctx context.Context, qty, length uint64) (string, error) {
	return c.SubmitAction(ctx, &action.Lock{Qty: qty, Length: length})
}

// UnlockVault releases the expired vault entries.
func (c *Community) UnlockVault(ctx context.Context) (string, error) {
	return c.SubmitAction(ctx, &action.Unlock{})
}

// IncreaseVault extends the lock of a vault entry.
func (c *Community) IncreaseVault(ctx context.Context, id int, length uint64) (string, error) {
	return c.SubmitAction(ctx, &action.IncreaseVault{ID: id, Length: length})
}

// ProposeVote opens a new vote.
func (c *Community) ProposeVote(ctx context.Context, params action.ProposeVote) (string, error) {
	return c.SubmitAction(ctx, &params)
}

// Vote casts a ballot on an active vote.
func (c *Community) Vote(ctx context.Context, id int, cast string) (string, error) {
	return c.SubmitAction(ctx, &action.Vote{ID: id, Cast: cast})
}

// Finalize closes a vote whose period ended.
func (c *Community) Finalize(ctx context.Context, id int) (string, error) {
	return c.SubmitAction(ctx, &action.Finalize{ID: id})
}

// Close stops the background refreshes.
func (c *Community) Close() error {
	err := c.state.Close()
	if err != nil {
		return xerrors.Errorf("failed to close community sync: %v", err)
	}

	err = c.feeState.Close()
	if err != nil {
		return xerrors.Errorf("failed to close fee sync: %v", err)
	}

	return nil
}

// BindFeeContract replaces the fee-collecting contract of the configuration.
// When the state of the new contract cannot be read, the contract of the
// configuration is bound again on next use.
func (c *Community) BindFeeContract(ctx context.Context, id string) error {
	c.Lock()
	defer c.Unlock()

	err := c.feeState.Bind(ctx, id)
	if err != nil {
		return xerrors.Errorf("failed to bind fee contract: %w", err)
	}

	return nil
}

// FeeContractID returns the identifier of the fee-collecting contract.
func (c *Community) FeeContractID() string {
	id := c.feeState.ContractID()
	if id == "" {
		return c.cfg.FeeContract
	}

	return id
}

// bindFeeContract binds the fee-collecting contract of the configuration on
// first use.
func (c *Community) bindFeeContract(ctx context.Context) error {
	c.Lock()
	defer c.Unlock()

	if c.feeState.ContractID() != "" {
		return nil
	}

	err := c.feeState.Bind(ctx, c.cfg.FeeContract)
	if err != nil {
		return xerrors.Errorf("failed to bind fee contract: %w", err)
	}

	return nil
}

// feeSource provides the state of the fee-collecting contract to the charger.
//
// - implements fee.StateSource
type feeSource struct {
	c *Community
}

// GetState implements fee.StateSource.
func (s feeSource) GetState(ctx context.Context, useCache bool) (*state.Snapshot, error) {
	return s.c.GetFeeState(ctx, useCache)
}
