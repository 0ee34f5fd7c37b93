package controller

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"

	"go.dedis.ch/community"
	"go.dedis.ch/community/action"
	"go.dedis.ch/community/cli"
	"go.dedis.ch/community/cli/node"
	"go.dedis.ch/community/client"
	"go.dedis.ch/community/contract/native"
	"go.dedis.ch/community/crypto/ed25519"
	"go.dedis.ch/community/ledger/local"
	"go.dedis.ch/community/proxy"
	"go.dedis.ch/community/state"
	"golang.org/x/xerrors"
)

type bindAction struct{}

// Execute implements node.ActionTemplate. It binds the client to the contract.
func (bindAction) Execute(ctx node.Context) error {
	c, err := getClient(ctx.Injector)
	if err != nil {
		return err
	}

	id := ctx.Flags.String("id")

	err = c.BindContract(ctx.Ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "bound to %s\n", id)

	return nil
}

type stateAction struct{}

// Execute implements node.ActionTemplate. It prints the state of the bound
// contract, or the one of the fee-collecting contract.
func (stateAction) Execute(ctx node.Context) error {
	c, err := getClient(ctx.Injector)
	if err != nil {
		return err
	}

	useCache := !ctx.Flags.Bool("fresh")

	var snap *state.Snapshot
	if ctx.Flags.Bool("fee") {
		snap, err = c.GetFeeState(ctx.Ctx, useCache)
	} else {
		snap, err = c.GetState(ctx.Ctx, useCache)
	}

	if err != nil {
		return xerrors.Errorf("failed to get state: %w", err)
	}

	enc := json.NewEncoder(ctx.Out)
	enc.SetIndent("", "  ")

	err = enc.Encode(snap)
	if err != nil {
		return xerrors.Errorf("failed to encode state: %v", err)
	}

	return nil
}

type holderAction struct{}

// Execute implements node.ActionTemplate. It prints a holder of the
// fee-collecting contract drawn at random.
func (holderAction) Execute(ctx node.Context) error {
	c, err := getClient(ctx.Injector)
	if err != nil {
		return err
	}

	holder, found, err := c.SelectWeightedHolder(ctx.Ctx, nil, nil)
	if err != nil {
		return err
	}

	if !found {
		fmt.Fprintln(ctx.Out, "no holder")
		return nil
	}

	fmt.Fprintln(ctx.Out, holder)

	return nil
}

type costAction struct{}

// Execute implements node.ActionTemplate. It prints the fee of an action.
func (costAction) Execute(ctx node.Context) error {
	c, err := getClient(ctx.Injector)
	if err != nil {
		return err
	}

	cost, err := c.ActionCost(ctx.Ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(ctx.Out, cost)

	return nil
}

type balanceAction struct{}

// Execute implements node.ActionTemplate. It prints the balances of the
// account in the community and on the ledger.
func (balanceAction) Execute(ctx node.Context) error {
	c, err := getClient(ctx.Injector)
	if err != nil {
		return err
	}

	addr := ctx.Flags.String("address")
	if addr == "" {
		addr = c.Address()
	}

	var l *local.Ledger

	err = ctx.Injector.Resolve(&l)
	if err != nil {
		return xerrors.Errorf("failed to resolve ledger: %v", err)
	}

	wallet, err := l.GetBalance(ctx.Ctx, addr)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "address: %s\nledger: %v\n", addr, wallet)

	if c.ContractID() == "" {
		return nil
	}

	total, err := c.Balance(ctx.Ctx, addr)
	if err != nil {
		return err
	}

	unlocked, err := c.UnlockedBalance(ctx.Ctx, addr)
	if err != nil {
		return err
	}

	vault, err := c.VaultBalance(ctx.Ctx, addr)
	if err != nil {
		return err
	}

	role, err := c.Role(ctx.Ctx, addr)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "balance: %d\nunlocked: %d\nvault: %d\nrole: %s\n",
		total, unlocked, vault, role)

	return nil
}

type transferAction struct{}

// Execute implements node.ActionTemplate. It transfers unlocked tokens.
func (transferAction) Execute(ctx node.Context) error {
	qty, err := uintFlag(ctx.Flags, "qty")
	if err != nil {
		return err
	}

	return submit(ctx, &action.Transfer{Target: ctx.Flags.String("target"), Qty: qty})
}

type lockAction struct{}

// Execute implements node.ActionTemplate. It locks tokens in the vault.
func (lockAction) Execute(ctx node.Context) error {
	qty, err := uintFlag(ctx.Flags, "qty")
	if err != nil {
		return err
	}

	length, err := uintFlag(ctx.Flags, "length")
	if err != nil {
		return err
	}

	return submit(ctx, &action.Lock{Qty: qty, Length: length})
}

type unlockAction struct{}

// Execute implements node.ActionTemplate. It releases the expired entries of
// the vault.
func (unlockAction) Execute(ctx node.Context) error {
	return submit(ctx, &action.Unlock{})
}

type increaseAction struct{}

// Execute implements node.ActionTemplate. It extends the lock of a vault
// entry.
func (increaseAction) Execute(ctx node.Context) error {
	length, err := uintFlag(ctx.Flags, "length")
	if err != nil {
		return err
	}

	return submit(ctx, &action.IncreaseVault{ID: ctx.Flags.Int("id"), Length: length})
}

type proposeAction struct{}

// Execute implements node.ActionTemplate. It opens a new vote.
func (proposeAction) Execute(ctx node.Context) error {
	qty, err := uintFlag(ctx.Flags, "qty")
	if err != nil {
		return err
	}

	length, err := uintFlag(ctx.Flags, "length")
	if err != nil {
		return err
	}

	a := &action.ProposeVote{
		Type:      ctx.Flags.String("type"),
		Recipient: ctx.Flags.String("recipient"),
		Qty:       qty,
		Length:    length,
		Target:    ctx.Flags.String("target"),
		Key:       ctx.Flags.String("key"),
		Note:      ctx.Flags.String("note"),
	}

	value := ctx.Flags.String("value")
	if value != "" {
		a.Value = value
	}

	return submit(ctx, a)
}

type voteAction struct{}

// Execute implements node.ActionTemplate. It casts a ballot.
func (voteAction) Execute(ctx node.Context) error {
	return submit(ctx, &action.Vote{ID: ctx.Flags.Int("id"), Cast: ctx.Flags.String("cast")})
}

type finalizeAction struct{}

// Execute implements node.ActionTemplate. It closes a vote.
func (finalizeAction) Execute(ctx node.Context) error {
	return submit(ctx, &action.Finalize{ID: ctx.Flags.Int("id")})
}

type createAction struct{}

// Execute implements node.ActionTemplate. It reads the parameters of the
// community from the file, charges the creation fee and creates the contract.
// The parameters missing from the file keep their default value.
func (createAction) Execute(ctx node.Context) error {
	c, err := getClient(ctx.Injector)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(ctx.Flags.Path("state"))
	if err != nil {
		return xerrors.Errorf("failed to read file: %v", err)
	}

	params := client.DefaultStateParams()

	err = json.Unmarshal(data, &params)
	if err != nil {
		return xerrors.Errorf("failed to decode parameters: %v", err)
	}

	_, err = c.SetState(params)
	if err != nil {
		return xerrors.Errorf("invalid parameters: %w", err)
	}

	id, err := c.Create(ctx.Ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "created community %s\n", id)

	return nil
}

type exposeAction struct{}

// Execute implements node.ActionTemplate. It registers the handler that serves
// the cached state of the bound contract on the http endpoint.
func (exposeAction) Execute(ctx node.Context) error {
	c, err := getClient(ctx.Injector)
	if err != nil {
		return err
	}

	var srv proxy.Proxy

	err = ctx.Injector.Resolve(&srv)
	if err != nil {
		return xerrors.Errorf("failed to resolve the proxy: %v", err)
	}

	path := ctx.Flags.String("path")

	srv.RegisterHandler(path, stateHandler(c))
	fmt.Fprintf(ctx.Out, "registered state service on %q\n", path)

	return nil
}

func stateHandler(c *client.Community) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "only GET requests are supported", http.StatusMethodNotAllowed)
			return
		}

		snap, err := c.GetState(r.Context(), r.URL.Query().Get("fresh") != "true")
		if err != nil {
			community.Logger.Warn().Err(err).Msg("failed to serve state")
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")

		err = json.NewEncoder(w).Encode(snap)
		if err != nil {
			community.Logger.Warn().Err(err).Msg("failed to write state")
		}
	}
}

type mintAction struct{}

// Execute implements node.ActionTemplate. It credits an account of the local
// ledger.
func (mintAction) Execute(ctx node.Context) error {
	var l *local.Ledger

	err := ctx.Injector.Resolve(&l)
	if err != nil {
		return xerrors.Errorf("failed to resolve ledger: %v", err)
	}

	addr := ctx.Flags.String("address")
	if addr == "" {
		c, err := getClient(ctx.Injector)
		if err != nil {
			return err
		}

		addr = c.Address()
	}

	amount := big.NewInt(int64(ctx.Flags.Int("amount")))

	err = l.Mint(ctx.Ctx, addr, amount)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "minted %v to %s\n", amount, addr)

	return nil
}

type genesisAction struct{}

// Execute implements node.ActionTemplate. It creates a contract from a raw
// state without charging a fee, which bootstraps the fee-collecting contract
// of a development network.
func (genesisAction) Execute(ctx node.Context) error {
	var reader *native.Reader

	err := ctx.Injector.Resolve(&reader)
	if err != nil {
		return xerrors.Errorf("failed to resolve reader: %v", err)
	}

	var signer ed25519.Signer

	err = ctx.Injector.Resolve(&signer)
	if err != nil {
		return xerrors.Errorf("failed to resolve signer: %v", err)
	}

	c, err := getClient(ctx.Injector)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(ctx.Flags.Path("state"))
	if err != nil {
		return xerrors.Errorf("failed to read file: %v", err)
	}

	id, err := reader.CreateFromPayload(ctx.Ctx, c.ContractSource(), data, signer)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "created contract %s\n", id)

	if ctx.Flags.Bool("fee") {
		err = c.BindFeeContract(ctx.Ctx, id)
		if err != nil {
			return err
		}

		fmt.Fprintf(ctx.Out, "fee-collecting contract is %s\n", id)
	}

	return nil
}

func submit(ctx node.Context, a action.Action) error {
	c, err := getClient(ctx.Injector)
	if err != nil {
		return err
	}

	txID, err := c.SubmitAction(ctx.Ctx, a)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "%s submitted in transaction %s\n", a.Name(), txID)

	return nil
}

func getClient(inj node.Injector) (*client.Community, error) {
	var c *client.Community

	err := inj.Resolve(&c)
	if err != nil {
		return nil, xerrors.Errorf("failed to resolve client: %v", err)
	}

	return c, nil
}

func uintFlag(flags cli.Flags, name string) (uint64, error) {
	value := flags.Int(name)
	if value < 0 {
		return 0, xerrors.Errorf("%s must not be negative but got %d", name, value)
	}

	return uint64(value), nil
}
