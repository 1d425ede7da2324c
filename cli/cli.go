package cli

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/berkus/linker-script/cli/cmd"
	"github.com/berkus/linker-script/pkg"
)

// CLI is the top-level command-line interface.
type CLI struct {
	Log   logConfig   `embed:"" group:"log"   prefix:"log-"`
	Pprof pprofConfig `embed:"" group:"pprof" prefix:"pprof-"`

	Check   cmd.Check   `cmd:"" default:"withargs" help:"Parse layout sources and report diagnostics."`
	Fmt     cmd.Fmt     `cmd:""                    help:"Reformat layout sources."`
	Version cmd.Version `cmd:""                    help:"Print version information."`
}

// Run executes the CLI with the given context and arguments. The exit
// function is called with the appropriate exit code on --help and
// usage errors.
func Run(ctx context.Context, exit func(code int), args ...string) error {
	var cli CLI

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Pre-scan logger flags so early parse diagnostics already honor
	// the requested level and format, regardless of flag position.
	cli.Log.scan(args)

	parser, err := kong.New(&cli,
		kong.Name(pkg.Name),
		kong.Description(pkg.Description),
		kong.UsageOnError(),
		kong.Exit(exit),
		kong.ExplicitGroups(
			[]kong.Group{cli.Log.group(), cli.Pprof.group()},
		),
		kong.BindSingletonProvider(func() context.Context {
			return ctx
		}),
		kong.ConfigureHelp(
			kong.HelpOptions{
				Compact: true,
				Summary: true,
			}),
		cli.Pprof.vars(),
	)
	if err != nil {
		return err
	}

	ktx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	// Finalize logger configuration with all parsed values, including
	// the flags the pre-scan does not cover.
	cli.Log.start(ctx)

	// No-op unless built with tag pprof and a mode is selected.
	defer cli.Pprof.start(ctx)()

	return ktx.Run(ctx)
}
