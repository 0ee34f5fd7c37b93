// Package ucli provides a cli builder implementation based on the urfave/cli
// library.
//
// When the builder has an environment prefix, every flag can also be set by
// the environment variable made of the prefix and the flag name in upper
// snake case, so that "fee-contract" is read from COMMUNITY_FEE_CONTRACT.
package ucli

import (
	"fmt"
	"strings"

	urfave "github.com/urfave/cli/v2"
	"go.dedis.ch/community/cli"
)

// Option is the type of option to configure the builder.
type Option func(*Builder)

// WithEnvPrefix sets the prefix of the environment variables of the flags.
func WithEnvPrefix(prefix string) Option {
	return func(b *Builder) {
		b.envPrefix = prefix
	}
}

// WithUsage sets the description of the application.
func WithUsage(usage string) Option {
	return func(b *Builder) {
		b.usage = usage
	}
}

// Builder implements a cli builder based on urfave/cli
//
// - implements cli.Builder
type Builder struct {
	commands  []*cmdBuilder
	name      string
	usage     string
	envPrefix string
	action    cli.Action
	flags     []cli.Flag
}

// NewBuilder returns a new initialized builder. Action defines the primary
// action of the application and can be nil when only commands are needed.
// Flags are the global flags available from all the commands.
func NewBuilder(name string, action cli.Action, flags []cli.Flag, opts ...Option) *Builder {
	b := &Builder{
		name:   name,
		action: action,
		flags:  flags,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Build implements cli.Builder.
func (b *Builder) Build() cli.Application {
	app := &urfave.App{
		Name:     b.name,
		Usage:    b.usage,
		Commands: b.buildCommands(b.commands),
		Action:   makeAction(b.action),
		Flags:    b.buildFlags(b.flags),
	}

	app.Setup()

	return app
}

// SetCommand implements cli.Builder.
func (b *Builder) SetCommand(name string) cli.CommandBuilder {
	cmd := &cmdBuilder{
		name: name,
	}
	b.commands = append(b.commands, cmd)

	return cmd
}

// cmdBuilder is the struct provided to build commands.
//
// - implements cli.CommandBuilder
type cmdBuilder struct {
	name        string
	description string
	action      cli.Action
	flags       []cli.Flag
	subcommands []*cmdBuilder
}

// SetDescription implements cli.CommandBuilder.
func (b *cmdBuilder) SetDescription(value string) {
	b.description = value
}

// SetFlags implements cli.CommandBuilder.
func (b *cmdBuilder) SetFlags(flags ...cli.Flag) {
	b.flags = append(b.flags, flags...)
}

// SetAction implements cli.CommandBuilder.
func (b *cmdBuilder) SetAction(action cli.Action) {
	b.action = action
}

// SetSubCommand implements cli.CommandBuilder.
func (b *cmdBuilder) SetSubCommand(name string) cli.CommandBuilder {
	builder := &cmdBuilder{
		name: name,
	}
	b.subcommands = append(b.subcommands, builder)

	return builder
}

// buildFlags converts the flags to their urfave/cli counterpart.
func (b *Builder) buildFlags(flags []cli.Flag) []urfave.Flag {
	res := make([]urfave.Flag, len(flags))

	for i, f := range flags {
		var flag urfave.Flag

		switch e := f.(type) {
		case cli.StringFlag:
			flag = &urfave.StringFlag{
				Name:     e.Name,
				Usage:    e.Usage,
				Required: e.Required,
				Value:    e.Value,
				EnvVars:  b.envVars(e.Name),
			}
		case cli.DurationFlag:
			flag = &urfave.DurationFlag{
				Name:     e.Name,
				Usage:    e.Usage,
				Required: e.Required,
				Value:    e.Value,
				EnvVars:  b.envVars(e.Name),
			}
		case cli.IntFlag:
			flag = &urfave.IntFlag{
				Name:     e.Name,
				Usage:    e.Usage,
				Required: e.Required,
				Value:    e.Value,
				EnvVars:  b.envVars(e.Name),
			}
		case cli.BoolFlag:
			flag = &urfave.BoolFlag{
				Name:     e.Name,
				Usage:    e.Usage,
				Required: e.Required,
				Value:    e.Value,
				EnvVars:  b.envVars(e.Name),
			}
		default:
			panic(fmt.Sprintf("flag type '%T' not supported", f))
		}

		res[i] = flag
	}

	return res
}

// buildCommands recursively converts the command builders to urfave commands.
func (b *Builder) buildCommands(cmds []*cmdBuilder) []*urfave.Command {
	commands := make([]*urfave.Command, len(cmds))

	for i, cmd := range cmds {
		commands[i] = &urfave.Command{
			Name:        cmd.name,
			Usage:       cmd.description,
			Action:      makeAction(cmd.action),
			Flags:       b.buildFlags(cmd.flags),
			Subcommands: b.buildCommands(cmd.subcommands),
		}
	}

	return commands
}

func (b *Builder) envVars(name string) []string {
	if b.envPrefix == "" {
		return nil
	}

	return []string{EnvName(b.envPrefix, name)}
}

// EnvName returns the name of the environment variable of the flag.
func EnvName(prefix, name string) string {
	return prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// makeAction transforms a cli.Action to its urfave form.
func makeAction(action cli.Action) urfave.ActionFunc {
	if action == nil {
		return nil
	}

	return func(ctx *urfave.Context) error {
		return action(flags{Context: ctx})
	}
}

// flags is the adapter of the urfave context.
//
// - implements cli.Flags
type flags struct {
	*urfave.Context
}

// Context returns the urfave context of the flags.
func Context(f cli.Flags) (*urfave.Context, bool) {
	adapter, ok := f.(flags)
	if !ok {
		return nil, false
	}

	return adapter.Context, true
}
