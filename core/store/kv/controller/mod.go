// Package controller opens the database of a node and makes it available to
// the other modules.
package controller

import (
	"go.dedis.ch/community/cli"
	"go.dedis.ch/community/cli/node"
	"go.dedis.ch/community/config"
	"go.dedis.ch/community/core/store/kv"
	"golang.org/x/xerrors"
)

type controller struct {
	openFn func(path string) (kv.DB, error)
}

// NewController returns an initializer that opens the database at the ledger
// path of the configuration.
func NewController() node.Initializer {
	return controller{
		openFn: kv.New,
	}
}

// SetCommands implements node.Initializer. It has no command.
func (controller) SetCommands(node.Builder) {}

// OnStart implements node.Initializer. It opens and injects the database.
func (c controller) OnStart(flags cli.Flags, inj node.Injector) error {
	cfg, err := config.FromFlags(flags)
	if err != nil {
		return xerrors.Errorf("failed to load config: %v", err)
	}

	db, err := c.openFn(cfg.LedgerPath)
	if err != nil {
		return xerrors.Errorf("db: %v", err)
	}

	inj.Inject(db)

	return nil
}

// OnStop implements node.Initializer. It closes the database.
func (controller) OnStop(inj node.Injector) error {
	var db kv.DB

	err := inj.Resolve(&db)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	err = db.Close()
	if err != nil {
		return xerrors.Errorf("while closing db: %v", err)
	}

	return nil
}
