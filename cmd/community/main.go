// Package main implements the community node.
//
// Unix example:
//
//	# Start the daemon that owns the wallet and the local ledger.
//	community --config /tmp/node start
//
//	# In another terminal, bootstrap a development network.
//	community --config /tmp/node devnet mint --amount 100000
//	community --config /tmp/node devnet genesis --state fee.json --fee
//	community --config /tmp/node create --state community.json
//	community --config /tmp/node transfer --target XX --qty 10
//
//	# Serve the metrics and the state of the community over http.
//	community --config /tmp/node proxy start --clientaddr 127.0.0.1:8080
//	community --config /tmp/node proxy prom
//	community --config /tmp/node expose
package main

import (
	"fmt"
	"io"
	"os"

	"go.dedis.ch/community/cli/node"
	client "go.dedis.ch/community/client/controller"
	db "go.dedis.ch/community/core/store/kv/controller"
	proxy "go.dedis.ch/community/proxy/http/controller"
)

type config struct {
	Channel chan os.Signal
	Writer  io.Writer
}

func main() {
	err := run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	return runWithCfg(args, config{Writer: os.Stdout})
}

func runWithCfg(args []string, cfg config) error {
	builder := node.NewBuilderWithCfg(
		cfg.Channel,
		cfg.Writer,
		db.NewController(),
		proxy.NewController(),
		client.NewController(),
	)

	app := builder.Build()

	err := app.Run(args)
	if err != nil {
		return err
	}

	return nil
}
