// Command conveyor builds, tests, and publishes a conda-packaged project
// across a matrix of interpreter versions and operating systems, with
// tag-gated deployment to package indexes, release pages, and docs
// hosting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conveyor-ci/conveyor/pkg/cliutil"
)

var argparser = &cobra.Command{
	Use:   "conveyor {[flags]|SUBCOMMAND...}",
	Short: "Build, test, and publish across a version/OS matrix",

	Args: cliutil.OnlySubcommands,
	RunE: cliutil.RunSubcommands,

	SilenceErrors: true, // main() will handle this after .ExecuteContext() returns
	SilenceUsage:  true, // our FlagErrorFunc will handle it
}

func init() {
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A canceled context is what makes dexec kill the build's children, so
	// an interrupted run does not leave conda or twine running detached.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	if err := argparser.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(argparser.ErrOrStderr(), "%s: error: %v\n", argparser.CommandPath(), err)
		os.Exit(1)
	}
}
