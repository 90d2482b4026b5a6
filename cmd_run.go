package main

import (
	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/conveyor-ci/conveyor/pkg/cliutil"
	"github.com/conveyor-ci/conveyor/pkg/pipefile"
	"github.com/conveyor-ci/conveyor/pkg/runner"
)

func init() {
	var flags struct {
		File        string
		Job         string
		OS          string
		Parallel    int
		SkipDeploy  bool
		Reprovision bool
		DryRun      bool
	}
	cmd := &cobra.Command{
		Use:   "run [flags]",
		Short: "Run the pipeline legs that match this host",
		Long: "Run the pipeline as a push of the current ref would: provision an " +
			"interpreter for each leg of the matrix that matches the host OS, then " +
			"run the install, script, after_success, and deploy phases in order.  " +
			"Legs are independent; one leg failing does not stop the others.",
		Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pipe, err := loadPipeline(flags.File)
			if err != nil {
				return err
			}
			state, err := detectState(ctx, ".")
			if err != nil {
				return err
			}

			ok, err := pipe.BranchFilter().Match(state.Branch, state.Tag)
			if err != nil {
				return err
			}
			if !ok {
				dlog.Infof(ctx, "branch %q is not in the branch filter; nothing to do", state.Branch)
				return nil
			}

			osName := flags.OS
			if flags.Job != "" && !cmd.Flags().Changed("os") {
				// An explicit --job wins over the host-OS default.
				osName = ""
			}
			jobs, err := selectJobs(pipe, osName, flags.Job)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				dlog.Infof(ctx, "no matrix legs for OS %q; nothing to do", osName)
				return nil
			}

			r := &runner.Runner{
				Pipe:        pipe,
				State:       state,
				SkipDeploy:  flags.SkipDeploy,
				DryRun:      flags.DryRun,
				Reprovision: flags.Reprovision,
			}
			return r.RunAll(ctx, jobs, flags.Parallel)
		},
	}
	cmd.Flags().StringVarP(&flags.File, "file", "f", pipefile.DefaultPath,
		"Read the pipeline description from `PIPEFILE`")
	cmd.Flags().StringVarP(&flags.Job, "job", "j", "",
		"Run only the leg named `NAME` instead of every leg that matches the host OS")
	cmd.Flags().StringVar(&flags.OS, "os", runner.HostOS(),
		"Run the legs for `OS` (\"linux\" or \"osx\")")
	cmd.Flags().IntVarP(&flags.Parallel, "parallel", "p", 1,
		"Run up to `N` legs at once")
	cmd.Flags().BoolVar(&flags.SkipDeploy, "skip-deploy", false,
		"Stop each leg after after_success; do not publish anything")
	cmd.Flags().BoolVar(&flags.Reprovision, "reprovision", false,
		"Rebuild each leg's interpreter prefix even if it already exists")
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false,
		"Log deploy uploads instead of performing them")

	argparser.AddCommand(cmd)
}
