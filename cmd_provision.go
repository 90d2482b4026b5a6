package main

import (
	"fmt"

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
		Reprovision bool
	}
	cmd := &cobra.Command{
		Use:   "provision [flags]",
		Short: "Set up the per-leg interpreter prefixes without running anything",
		Long: "Download the installer if needed and create the conda prefix for " +
			"each matching leg, so that a later \"conveyor run\" starts with its " +
			"interpreters already in place.",
		Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pipe, err := loadPipeline(flags.File)
			if err != nil {
				return err
			}
			if pipe.Provision == nil {
				dlog.Infof(ctx, "%s has no provision section; nothing to do", flags.File)
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

			r := &runner.Runner{Pipe: pipe}
			for _, job := range jobs {
				ctx := dlog.WithField(ctx, "leg", job.Name())
				prefix := r.PrefixFor(job)
				if err := r.Provisioner.Provision(ctx, job, prefix, flags.Reprovision); err != nil {
					return fmt.Errorf("leg %s: %w", job.Name(), err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.File, "file", "f", pipefile.DefaultPath,
		"Read the pipeline description from `PIPEFILE`")
	cmd.Flags().StringVarP(&flags.Job, "job", "j", "",
		"Provision only for the leg named `NAME`")
	cmd.Flags().StringVar(&flags.OS, "os", runner.HostOS(),
		"Provision the legs for `OS` (\"linux\" or \"osx\")")
	cmd.Flags().BoolVar(&flags.Reprovision, "reprovision", false,
		"Rebuild each prefix even if it already exists")

	argparser.AddCommand(cmd)
}
