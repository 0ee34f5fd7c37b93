// Package controller implements the commands of a community node.
//
// The daemon owns the community client: it loads the wallet of the member,
// opens the local ledger and contract reader, and keeps the states of the
// bound contracts fresh. Every command is executed by the daemon.
package controller

import (
	"context"

	"github.com/rs/zerolog"
	"go.dedis.ch/community"
	"go.dedis.ch/community/cli"
	"go.dedis.ch/community/cli/node"
	"go.dedis.ch/community/client"
	"go.dedis.ch/community/config"
	"go.dedis.ch/community/contract/native"
	"go.dedis.ch/community/core/store/kv"
	"go.dedis.ch/community/crypto/ed25519"
	"go.dedis.ch/community/crypto/loader"
	"go.dedis.ch/community/ledger/local"
	"go.dedis.ch/community/statesync"
	"golang.org/x/xerrors"
)

const defaultStatePath = "/community"

// NewController returns the initializer of the community client.
func NewController() node.Initializer {
	return controller{}
}

// controller creates the community client of the node and registers the
// commands to use it.
//
// - implements node.Initializer
type controller struct{}

// SetCommands implements node.Initializer.
func (controller) SetCommands(builder node.Builder) {
	builder.SetStartFlags(cli.StringFlag{
		Name:  config.FlagConfigFile,
		Usage: "path to the configuration file, by default config.yaml in the config folder",
	})

	cmd := builder.SetCommand("bind")
	cmd.SetDescription("bind the client to a community contract")
	cmd.SetFlags(cli.StringFlag{Name: "id", Usage: "identifier of the contract", Required: true})
	cmd.SetAction(builder.MakeAction(bindAction{}))

	cmd = builder.SetCommand("state")
	cmd.SetDescription("print the state of the community")
	cmd.SetFlags(
		cli.BoolFlag{Name: "fresh", Usage: "load the state instead of using the cache"},
		cli.BoolFlag{Name: "fee", Usage: "print the state of the fee-collecting contract"},
	)
	cmd.SetAction(builder.MakeAction(stateAction{}))

	cmd = builder.SetCommand("holder")
	cmd.SetDescription("draw a holder of the fee-collecting contract, weighted by its tokens")
	cmd.SetAction(builder.MakeAction(holderAction{}))

	cmd = builder.SetCommand("cost")
	cmd.SetDescription("print the fee of an action")
	cmd.SetAction(builder.MakeAction(costAction{}))

	cmd = builder.SetCommand("balance")
	cmd.SetDescription("print the balances of an account")
	cmd.SetFlags(cli.StringFlag{Name: "address", Usage: "the account, by default the wallet"})
	cmd.SetAction(builder.MakeAction(balanceAction{}))

	cmd = builder.SetCommand("transfer")
	cmd.SetDescription("transfer unlocked tokens")
	cmd.SetFlags(
		cli.StringFlag{Name: "target", Usage: "the recipient", Required: true},
		cli.IntFlag{Name: "qty", Usage: "the number of tokens", Required: true},
	)
	cmd.SetAction(builder.MakeAction(transferAction{}))

	cmd = builder.SetCommand("lock")
	cmd.SetDescription("lock tokens in the vault")
	cmd.SetFlags(
		cli.IntFlag{Name: "qty", Usage: "the number of tokens", Required: true},
		cli.IntFlag{Name: "length", Usage: "the number of blocks", Required: true},
	)
	cmd.SetAction(builder.MakeAction(lockAction{}))

	cmd = builder.SetCommand("unlock")
	cmd.SetDescription("release the expired vault entries")
	cmd.SetAction(builder.MakeAction(unlockAction{}))

	cmd = builder.SetCommand("increase")
	cmd.SetDescription("extend the lock of a vault entry")
	cmd.SetFlags(
		cli.IntFlag{Name: "id", Usage: "the index of the vault entry", Required: true},
		cli.IntFlag{Name: "length", Usage: "the number of blocks", Required: true},
	)
	cmd.SetAction(builder.MakeAction(increaseAction{}))

	cmd = builder.SetCommand("propose")
	cmd.SetDescription("open a new vote")
	cmd.SetFlags(
		cli.StringFlag{Name: "type", Usage: "mint, mintLocked, burnVault, indicative or set", Required: true},
		cli.StringFlag{Name: "recipient", Usage: "the recipient of a mint"},
		cli.IntFlag{Name: "qty", Usage: "the number of tokens of a mint"},
		cli.IntFlag{Name: "length", Usage: "the lock length of a locked mint"},
		cli.StringFlag{Name: "target", Usage: "the account whose vault is burnt"},
		cli.StringFlag{Name: "key", Usage: "the setting to change"},
		cli.StringFlag{Name: "value", Usage: "the new value of the setting"},
		cli.StringFlag{Name: "note", Usage: "the description of the vote"},
	)
	cmd.SetAction(builder.MakeAction(proposeAction{}))

	cmd = builder.SetCommand("vote")
	cmd.SetDescription("cast a ballot on an active vote")
	cmd.SetFlags(
		cli.IntFlag{Name: "id", Usage: "the index of the vote", Required: true},
		cli.StringFlag{Name: "cast", Usage: "yay or nay", Required: true},
	)
	cmd.SetAction(builder.MakeAction(voteAction{}))

	cmd = builder.SetCommand("finalize")
	cmd.SetDescription("close a vote whose period ended")
	cmd.SetFlags(cli.IntFlag{Name: "id", Usage: "the index of the vote", Required: true})
	cmd.SetAction(builder.MakeAction(finalizeAction{}))

	cmd = builder.SetCommand("create")
	cmd.SetDescription("create a new community and bind the client to it")
	cmd.SetFlags(cli.StringFlag{
		Name:     "state",
		Usage:    "path to the JSON file of the parameters of the community",
		Required: true,
	})
	cmd.SetAction(builder.MakeAction(createAction{}))

	cmd = builder.SetCommand("expose")
	cmd.SetDescription("serve the cached state of the community on the http endpoint")
	cmd.SetFlags(cli.StringFlag{Name: "path", Usage: "the handler path", Value: defaultStatePath})
	cmd.SetAction(builder.MakeAction(exposeAction{}))

	cmd = builder.SetCommand("devnet")
	cmd.SetDescription("manage the local development ledger")

	sub := cmd.SetSubCommand("mint")
	sub.SetDescription("credit an account of the ledger")
	sub.SetFlags(
		cli.StringFlag{Name: "address", Usage: "the account, by default the wallet"},
		cli.IntFlag{Name: "amount", Usage: "the amount", Required: true},
	)
	sub.SetAction(builder.MakeAction(mintAction{}))

	sub = cmd.SetSubCommand("genesis")
	sub.SetDescription("create a contract from a raw state without any fee")
	sub.SetFlags(
		cli.StringFlag{Name: "state", Usage: "path to the JSON file of the state", Required: true},
		cli.BoolFlag{Name: "fee", Usage: "use the contract as the fee-collecting contract"},
	)
	sub.SetAction(builder.MakeAction(genesisAction{}))
}

// OnStart implements node.Initializer. It creates the client on top of the
// database of the node and binds the contract of the configuration if any.
func (controller) OnStart(flags cli.Flags, inj node.Injector) error {
	cfg, err := config.FromFlags(flags)
	if err != nil {
		return xerrors.Errorf("failed to load config: %v", err)
	}

	var db kv.DB

	err = inj.Resolve(&db)
	if err != nil {
		return xerrors.Errorf("failed to resolve db: %v", err)
	}

	l, err := local.NewLedger(db, local.WithPricing(cfg.BasePrice, cfg.PricePerByte))
	if err != nil {
		return xerrors.Errorf("failed to create ledger: %v", err)
	}

	reader, err := native.NewReader(db, l)
	if err != nil {
		return xerrors.Errorf("failed to create reader: %v", err)
	}

	key, err := loader.NewFileLoader(cfg.WalletPath).LoadOrCreate(ed25519.Generator{})
	if err != nil {
		return xerrors.Errorf("failed to load wallet: %v", err)
	}

	signer, err := ed25519.NewSignerFromBytes(key)
	if err != nil {
		return xerrors.Errorf("failed to load wallet: %v", err)
	}

	c, err := client.New(l, reader, signer, cfg)
	if err != nil {
		return xerrors.Errorf("failed to create client: %v", err)
	}

	c.Watch(stateLogger{logger: community.Logger.With().Str("addr", c.Address()).Logger()})

	if cfg.Contract != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ReloadTimeout)
		defer cancel()

		// A contract missing from a fresh ledger can be bound later.
		err = c.BindContract(ctx, cfg.Contract)
		if err != nil {
			community.Logger.Warn().Err(err).Msg("configured contract is not bound")
		}
	}

	inj.Inject(l)
	inj.Inject(reader)
	inj.Inject(signer)
	inj.Inject(c)

	community.Logger.Info().Str("addr", c.Address()).Msg("community client started")

	return nil
}

// OnStop implements node.Initializer. It stops the refreshes of the client.
func (controller) OnStop(inj node.Injector) error {
	var c *client.Community

	err := inj.Resolve(&c)
	if err != nil {
		return xerrors.Errorf("failed to resolve client: %v", err)
	}

	err = c.Close()
	if err != nil {
		return xerrors.Errorf("failed to close client: %v", err)
	}

	return nil
}

// stateLogger logs a summary of every new state of the community.
//
// - implements statesync.Observer
type stateLogger struct {
	logger zerolog.Logger
}

// NotifyCallback implements statesync.Observer.
func (l stateLogger) NotifyCallback(evt statesync.Event) {
	l.logger.Info().
		Str("contract", evt.ContractID).
		Str("ticker", evt.Snapshot.Ticker).
		Int("holders", evt.Snapshot.Balances.Len()).
		Int("votes", len(evt.Snapshot.Votes)).
		Msg("community state updated")
}
