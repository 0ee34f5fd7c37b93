package controller

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/community/action"
	"go.dedis.ch/community/cli"
	"go.dedis.ch/community/cli/node"
	"go.dedis.ch/community/client"
	"go.dedis.ch/community/core/store/kv"
	"go.dedis.ch/community/proxy"
	"go.dedis.ch/community/state"
	"go.dedis.ch/community/statesync"
	"golang.org/x/xerrors"
)

func TestController_SetCommands(t *testing.T) {
	builder := &fakeBuilder{}

	NewController().SetCommands(builder)

	require.Len(t, builder.startFlags, 1)
	require.Equal(t, "config-file", builder.startFlags[0].(cli.StringFlag).Name)

	names := make([]string, len(builder.cmds))
	for i, cmd := range builder.cmds {
		names[i] = cmd.name
	}

	require.Equal(t, []string{"bind", "state", "holder", "cost", "balance", "transfer",
		"lock", "unlock", "increase", "propose", "vote", "finalize", "create", "expose",
		"devnet"}, names)

	devnet := builder.cmds[len(builder.cmds)-1]
	require.Len(t, devnet.subs, 2)
	require.Equal(t, "mint", devnet.subs[0].name)
	require.Equal(t, "genesis", devnet.subs[1].name)
}

func TestController_Scenario(t *testing.T) {
	dir, inj := start(t)

	c := mustClient(t, inj)
	addr := c.Address()

	out := execute(t, mintAction{}, inj, node.FlagSet{"amount": 1000})
	require.Equal(t, fmt.Sprintf("minted 1000 to %s\n", addr), out)

	feeFile := writeFile(t, dir, "fee.json",
		fmt.Sprintf(`{"name":"Fee","ticker":"FEE","balances":{"%s":1}}`, addr))

	out = execute(t, genesisAction{}, inj, node.FlagSet{"state": feeFile, "fee": true})
	require.Contains(t, out, "fee-collecting contract is ")
	require.NotEqual(t, "fee-contract", c.FeeContractID())

	out = execute(t, costAction{}, inj, node.FlagSet{})
	require.Equal(t, "5\n", out)

	out = execute(t, holderAction{}, inj, node.FlagSet{})
	require.Equal(t, addr+"\n", out)

	paramsFile := writeFile(t, dir, "community.json", fmt.Sprintf(`{
		"name": "Community",
		"ticker": "COM",
		"balances": {"%s": 1000},
		"lockMinLength": 1,
		"lockMaxLength": 100
	}`, addr))

	out = execute(t, createAction{}, inj, node.FlagSet{"state": paramsFile})
	require.True(t, strings.HasPrefix(out, "created community "))
	require.Equal(t, strings.TrimSpace(strings.TrimPrefix(out, "created community ")), c.ContractID())

	out = execute(t, transferAction{}, inj, node.FlagSet{"target": "bob", "qty": 10})
	require.True(t, strings.HasPrefix(out, "transfer submitted in transaction "))

	out = execute(t, lockAction{}, inj, node.FlagSet{"qty": 100, "length": 10})
	require.True(t, strings.HasPrefix(out, "lock submitted in transaction "))

	out = execute(t, stateAction{}, inj, node.FlagSet{"fresh": true})
	require.Contains(t, out, `"bob": 10`)
	require.Contains(t, out, `"ticker": "COM"`)

	out = execute(t, stateAction{}, inj, node.FlagSet{"fee": true})
	require.Contains(t, out, `"ticker": "FEE"`)

	out = execute(t, balanceAction{}, inj, node.FlagSet{})
	require.Contains(t, out, "balance: 990\n")
	require.Contains(t, out, "unlocked: 890\n")
	require.Contains(t, out, "vault: 100\n")

	out = execute(t, balanceAction{}, inj, node.FlagSet{"address": "bob"})
	require.Equal(t, "address: bob\nledger: 0\nbalance: 10\nunlocked: 10\nvault: 0\nrole: \n", out)

	out = execute(t, proposeAction{}, inj, node.FlagSet{"type": "indicative", "note": "hello"})
	require.True(t, strings.HasPrefix(out, "propose submitted in transaction "))

	// The actions are validated against the cached state.
	out = execute(t, stateAction{}, inj, node.FlagSet{"fresh": true})
	require.Contains(t, out, `"note": "hello"`)

	out = execute(t, voteAction{}, inj, node.FlagSet{"id": 0, "cast": "yay"})
	require.True(t, strings.HasPrefix(out, "vote submitted in transaction "))

	// The vote is still active so it cannot be finalized.
	err := finalizeAction{}.Execute(makeContext(inj, node.FlagSet{"id": 0}, new(bytes.Buffer)))
	require.Error(t, err)
	require.True(t, xerrors.Is(err, client.ErrActionRejected))

	err = unlockAction{}.Execute(makeContext(inj, node.FlagSet{}, new(bytes.Buffer)))
	require.NoError(t, err)

	err = increaseAction{}.Execute(makeContext(inj, node.FlagSet{"id": 0, "length": 20}, new(bytes.Buffer)))
	require.NoError(t, err)

	id := c.ContractID()

	out = execute(t, bindAction{}, inj, node.FlagSet{"id": id})
	require.Equal(t, "bound to "+id+"\n", out)
}

func TestController_InvalidFlags(t *testing.T) {
	_, inj := start(t)

	err := transferAction{}.Execute(makeContext(inj, node.FlagSet{"target": "bob", "qty": -1}, nil))
	require.EqualError(t, err, "qty must not be negative but got -1")

	err = lockAction{}.Execute(makeContext(inj, node.FlagSet{"qty": 1, "length": -1}, nil))
	require.EqualError(t, err, "length must not be negative but got -1")

	err = voteAction{}.Execute(makeContext(inj, node.FlagSet{"id": 0, "cast": "maybe"}, nil))
	require.Error(t, err)

	err = proposeAction{}.Execute(makeContext(inj, node.FlagSet{"type": "set", "key": "quorum"}, nil))
	require.Error(t, err)

	err = createAction{}.Execute(makeContext(inj, node.FlagSet{"state": "/unknown/file"}, nil))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read file: ")

	bad := writeFile(t, t.TempDir(), "bad.json", "{")

	err = createAction{}.Execute(makeContext(inj, node.FlagSet{"state": bad}, nil))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to decode parameters: ")

	empty := writeFile(t, t.TempDir(), "empty.json", "{}")

	err = createAction{}.Execute(makeContext(inj, node.FlagSet{"state": empty}, nil))
	require.Error(t, err)
	require.True(t, xerrors.Is(err, action.ErrInvalidParameter))

	err = genesisAction{}.Execute(makeContext(inj, node.FlagSet{"state": bad}, nil))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid initial state: ")

	err = bindAction{}.Execute(makeContext(inj, node.FlagSet{"id": "unknown"}, nil))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to bind: ")
}

func TestController_MissingDependencies(t *testing.T) {
	inj := node.NewInjector()

	templates := []node.ActionTemplate{
		bindAction{}, stateAction{}, holderAction{}, costAction{}, balanceAction{},
		unlockAction{}, createAction{}, exposeAction{}, mintAction{}, genesisAction{},
	}

	for _, tmpl := range templates {
		err := tmpl.Execute(makeContext(inj, node.FlagSet{}, nil))
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to resolve ")
	}

	err := NewController().OnStop(inj)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to resolve client: ")

	err = NewController().OnStart(node.FlagSet{"config": t.TempDir()}, inj)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to resolve db: ")

	path := writeFile(t, t.TempDir(), "config.yaml", "fee_reference_size: 0\n")

	err = NewController().OnStart(node.FlagSet{"config-file": path}, inj)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to load config: ")
}

func TestController_ConfiguredContract(t *testing.T) {
	dir := t.TempDir()

	// The unknown contract is reported but does not prevent the start.
	writeFile(t, dir, "config.yaml", "contract: unknown\nreload_timeout: 1s\n")

	inj := node.NewInjector()
	inj.Inject(openDB(t, dir))

	err := NewController().OnStart(node.FlagSet{"config": dir}, inj)
	require.NoError(t, err)

	c := mustClient(t, inj)
	require.Equal(t, "", c.ContractID())

	require.NoError(t, NewController().OnStop(inj))

	// The wallet is created once and loaded at the next start.
	addr := c.Address()

	err = NewController().OnStart(node.FlagSet{"config": dir}, inj)
	require.NoError(t, err)
	require.Equal(t, addr, mustClient(t, inj).Address())
	require.NoError(t, NewController().OnStop(inj))

	_, err = os.Stat(filepath.Join(dir, "wallet.key"))
	require.NoError(t, err)
}

func TestStateLogger_NotifyCallback(t *testing.T) {
	buffer := new(bytes.Buffer)

	obs := stateLogger{logger: zerolog.New(buffer)}
	obs.NotifyCallback(statesync.Event{
		ContractID: "abc",
		Snapshot: &state.Snapshot{
			Ticker:   "COM",
			Balances: state.NewBalances("alice", uint64(1), "bob", uint64(2)),
		},
	})

	require.Contains(t, buffer.String(), `"contract":"abc"`)
	require.Contains(t, buffer.String(), `"holders":2`)
	require.Contains(t, buffer.String(), `"message":"community state updated"`)
}

func TestExposeAction_Execute(t *testing.T) {
	dir, inj := start(t)

	err := exposeAction{}.Execute(makeContext(inj, node.FlagSet{"path": "/community"}, nil))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to resolve the proxy: ")

	srv := &fakeProxy{}
	inj.Inject(srv)

	out := execute(t, exposeAction{}, inj, node.FlagSet{"path": "/community"})
	require.Equal(t, "registered state service on \"/community\"\n", out)
	require.Equal(t, "/community", srv.path)

	// No contract is bound yet.
	rec := httptest.NewRecorder()
	srv.handler(rec, httptest.NewRequest(http.MethodGet, "/community", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c := mustClient(t, inj)

	execute(t, mintAction{}, inj, node.FlagSet{"amount": 100})

	stateFile := writeFile(t, dir, "state.json",
		fmt.Sprintf(`{"name":"Community","ticker":"COM","balances":{"%s":1}}`, c.Address()))

	out = execute(t, genesisAction{}, inj, node.FlagSet{"state": stateFile})
	id := strings.TrimSpace(strings.TrimPrefix(out, "created contract "))

	require.NoError(t, c.BindContract(context.Background(), id))

	rec = httptest.NewRecorder()
	srv.handler(rec, httptest.NewRequest(http.MethodGet, "/community?fresh=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), `"ticker":"COM"`)

	rec = httptest.NewRecorder()
	srv.handler(rec, httptest.NewRequest(http.MethodPost, "/community", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// -----------------------------------------------------------------------------
// Utility functions

func start(t *testing.T) (string, node.Injector) {
	dir := t.TempDir()

	writeFile(t, dir, "config.yaml", "base_price: 5\nprice_per_byte: 0\nrefresh_interval: 1h\n")

	inj := node.NewInjector()
	inj.Inject(openDB(t, dir))

	err := NewController().OnStart(node.FlagSet{"config": dir}, inj)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, NewController().OnStop(inj))
	})

	return dir, inj
}

func openDB(t *testing.T, dir string) kv.DB {
	db, err := kv.New(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}

func mustClient(t *testing.T, inj node.Injector) *client.Community {
	c, err := getClient(inj)
	require.NoError(t, err)

	return c
}

func makeContext(inj node.Injector, flags node.FlagSet, out *bytes.Buffer) node.Context {
	if out == nil {
		out = new(bytes.Buffer)
	}

	return node.Context{
		Ctx:      context.Background(),
		Injector: inj,
		Flags:    flags,
		Out:      out,
	}
}

func execute(t *testing.T, tmpl node.ActionTemplate, inj node.Injector, flags node.FlagSet) string {
	out := new(bytes.Buffer)

	err := tmpl.Execute(makeContext(inj, flags, out))
	require.NoError(t, err)

	return out.String()
}

func writeFile(t *testing.T, dir, name, content string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	return path
}

type fakeCommand struct {
	name string
	subs []*fakeCommand
}

func (c *fakeCommand) SetDescription(string) {}

func (c *fakeCommand) SetFlags(...cli.Flag) {}

func (c *fakeCommand) SetAction(cli.Action) {}

func (c *fakeCommand) SetSubCommand(name string) cli.CommandBuilder {
	sub := &fakeCommand{name: name}
	c.subs = append(c.subs, sub)

	return sub
}

type fakeBuilder struct {
	cmds       []*fakeCommand
	startFlags []cli.Flag
}

func (b *fakeBuilder) SetCommand(name string) cli.CommandBuilder {
	cmd := &fakeCommand{name: name}
	b.cmds = append(b.cmds, cmd)

	return cmd
}

func (b *fakeBuilder) SetStartFlags(flags ...cli.Flag) {
	b.startFlags = append(b.startFlags, flags...)
}

func (b *fakeBuilder) MakeAction(node.ActionTemplate) cli.Action {
	return nil
}

type fakeProxy struct {
	proxy.Proxy

	path    string
	handler func(http.ResponseWriter, *http.Request)
}

func (p *fakeProxy) RegisterHandler(path string, handler func(http.ResponseWriter, *http.Request)) {
	p.path = path
	p.handler = handler
}
