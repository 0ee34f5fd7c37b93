// Package controller implements the commands to run the HTTP endpoint of a
// node.
package controller

import (
	"go.dedis.ch/community/cli"
	"go.dedis.ch/community/cli/node"
	"go.dedis.ch/community/proxy"
)

const defaultAddr = "127.0.0.1:8080"

const defaultProm = "/metrics"

// NewController returns a new initializer for the HTTP endpoint.
func NewController() node.Initializer {
	return controller{}
}

// controller registers the commands to start the HTTP endpoint and to serve
// the Prometheus metrics on it.
//
// - implements node.Initializer
type controller struct{}

// SetCommands implements node.Initializer.
func (controller) SetCommands(builder node.Builder) {
	cmd := builder.SetCommand("proxy")
	cmd.SetDescription("manage the http endpoint of the node")

	sub := cmd.SetSubCommand("start")
	sub.SetDescription("start the http server")
	sub.SetFlags(cli.StringFlag{
		Name:  "clientaddr",
		Usage: "the address the http server listens on",
		Value: defaultAddr,
	})
	sub.SetAction(builder.MakeAction(startAction{}))

	sub = cmd.SetSubCommand("prom")
	sub.SetDescription("register the collectors and start a prometheus handler")
	sub.SetFlags(cli.StringFlag{
		Name:  "path",
		Usage: "the handler path",
		Value: defaultProm,
	})
	sub.SetAction(builder.MakeAction(promAction{}))
}

// OnStart implements node.Initializer. The server is started on demand by the
// start command.
func (controller) OnStart(cli.Flags, node.Injector) error {
	return nil
}

// OnStop implements node.Initializer. It stops the http server if it has been
// started.
func (controller) OnStop(inj node.Injector) error {
	var srv proxy.Proxy

	err := inj.Resolve(&srv)
	if err == nil {
		srv.Stop()
	}

	return nil
}
