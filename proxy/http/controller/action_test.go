package controller

import (
	"bytes"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/community"
	"go.dedis.ch/community/cli/node"
	"go.dedis.ch/community/proxy"
)

func TestStartAction_Execute(t *testing.T) {
	out := new(bytes.Buffer)
	inj := node.NewInjector()

	ctx := node.Context{
		Injector: inj,
		Flags:    node.FlagSet{"clientaddr": "127.0.0.1:0"},
		Out:      out,
	}

	err := startAction{}.Execute(ctx)
	require.NoError(t, err)

	var srv proxy.Proxy
	require.NoError(t, inj.Resolve(&srv))

	defer srv.Stop()

	require.Equal(t, "started proxy server on "+srv.GetAddr().String(), out.String())

	err = startAction{}.Execute(ctx)
	require.EqualError(t, err, "proxy already started on "+srv.GetAddr().String())
}

func TestStartAction_Timeout(t *testing.T) {
	defer func(fac func(string) proxy.Proxy, retry int, delay time.Duration) {
		proxyFac = fac
		defaultRetry = retry
		retryDelay = delay
	}(proxyFac, defaultRetry, retryDelay)

	srv := &fakeProxy{}
	proxyFac = func(string) proxy.Proxy { return srv }
	defaultRetry = 2
	retryDelay = time.Millisecond

	ctx := node.Context{
		Injector: node.NewInjector(),
		Flags:    node.FlagSet{},
		Out:      new(bytes.Buffer),
	}

	err := startAction{}.Execute(ctx)
	require.EqualError(t, err, "failed to start proxy server")
	require.True(t, srv.stopped)
}

func TestPromAction_Execute(t *testing.T) {
	defer func(r prometheus.Registerer, c []prometheus.Collector) {
		registerer = r
		community.PromCollectors = c
	}(registerer, community.PromCollectors)

	registerer = prometheus.NewRegistry()
	community.PromCollectors = []prometheus.Collector{
		prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter"}),
	}

	srv := &fakeProxy{}
	inj := node.NewInjector()
	inj.Inject(srv)

	out := new(bytes.Buffer)
	ctx := node.Context{
		Injector: inj,
		Flags:    node.FlagSet{"path": "/metrics"},
		Out:      out,
	}

	err := promAction{}.Execute(ctx)
	require.NoError(t, err)
	require.Equal(t, `registered prometheus service on "/metrics"`, out.String())
	require.Equal(t, "/metrics", srv.path)

	// A second registration reports the duplicates without failing.
	out.Reset()
	err = promAction{}.Execute(ctx)
	require.NoError(t, err)
	require.Contains(t, out.String(), "ERROR: failed to register")
}

func TestPromAction_NoProxy(t *testing.T) {
	ctx := node.Context{
		Injector: node.NewInjector(),
		Flags:    node.FlagSet{},
		Out:      new(bytes.Buffer),
	}

	err := promAction{}.Execute(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to resolve the proxy: ")
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeProxy struct {
	proxy.Proxy

	stopped bool
	path    string
}

func (p *fakeProxy) Listen() {}

func (p *fakeProxy) GetAddr() net.Addr {
	return nil
}

func (p *fakeProxy) Stop() {
	p.stopped = true
}

func (p *fakeProxy) RegisterHandler(path string, handler func(http.ResponseWriter, *http.Request)) {
	p.path = path
}
