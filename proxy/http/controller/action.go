package controller

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.dedis.ch/community"
	"go.dedis.ch/community/cli/node"
	"go.dedis.ch/community/proxy"
	"go.dedis.ch/community/proxy/http"
	"golang.org/x/xerrors"
)

var (
	defaultRetry = 100
	retryDelay   = 50 * time.Millisecond

	proxyFac = func(addr string) proxy.Proxy {
		return http.NewHTTP(addr)
	}

	registerer prometheus.Registerer = prometheus.DefaultRegisterer
)

type startAction struct{}

// Execute implements node.ActionTemplate. It starts and injects the http
// server.
func (startAction) Execute(ctx node.Context) error {
	var existing proxy.Proxy

	err := ctx.Injector.Resolve(&existing)
	if err == nil {
		return xerrors.Errorf("proxy already started on %v", existing.GetAddr())
	}

	srv := proxyFac(ctx.Flags.String("clientaddr"))

	go srv.Listen()

	for i := 0; i < defaultRetry && srv.GetAddr() == nil; i++ {
		time.Sleep(retryDelay)
	}

	if srv.GetAddr() == nil {
		srv.Stop()
		return xerrors.New("failed to start proxy server")
	}

	ctx.Injector.Inject(srv)

	fmt.Fprintf(ctx.Out, "started proxy server on %s", srv.GetAddr())

	return nil
}

type promAction struct{}

// Execute implements node.ActionTemplate. It registers the Prometheus handler.
func (promAction) Execute(ctx node.Context) error {
	var srv proxy.Proxy

	err := ctx.Injector.Resolve(&srv)
	if err != nil {
		return xerrors.Errorf("failed to resolve the proxy: %v", err)
	}

	for _, c := range community.PromCollectors {
		err = registerer.Register(c)
		if err != nil {
			fmt.Fprintf(ctx.Out, "ERROR: failed to register: %v\n", err)
		}
	}

	path := ctx.Flags.String("path")

	srv.RegisterHandler(path, promhttp.Handler().ServeHTTP)
	fmt.Fprintf(ctx.Out, "registered prometheus service on %q", path)

	return nil
}
