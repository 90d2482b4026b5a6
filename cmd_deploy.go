package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/conveyor-ci/conveyor/pkg/artifact"
	"github.com/conveyor-ci/conveyor/pkg/cliutil"
	"github.com/conveyor-ci/conveyor/pkg/deploy"
	"github.com/conveyor-ci/conveyor/pkg/gitstate"
	"github.com/conveyor-ci/conveyor/pkg/matrix"
	"github.com/conveyor-ci/conveyor/pkg/pipefile"
	"github.com/conveyor-ci/conveyor/pkg/runner"
	"github.com/conveyor-ci/conveyor/pkg/verify"
)

func init() {
	var flags struct {
		File   string
		Job    string
		OS     string
		DryRun bool
		Verify bool
	}
	cmd := &cobra.Command{
		Use:   "deploy [flags]",
		Short: "Run only the deploy phase, against already-built artifacts",
		Long: "Evaluate the deploy gates for the current checkout and publish " +
			"whatever they let through, without rebuilding anything.  The build " +
			"and test phases must already have produced the files that the deploy " +
			"entries name.  With --verify, ask each package index afterwards " +
			"whether the uploads are actually visible.",
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

			osName := flags.OS
			if flags.Job != "" && !cmd.Flags().Changed("os") {
				// An explicit --job wins over the host-OS default.
				osName = ""
			}
			jobs, err := selectJobs(pipe, osName, flags.Job)
			if err != nil {
				return err
			}

			r := &runner.Runner{
				Pipe:   pipe,
				State:  state,
				DryRun: flags.DryRun,
			}
			errs := make([]error, len(jobs))
			for i, job := range jobs {
				if err := r.RunDeploy(ctx, job); err != nil {
					errs[i] = fmt.Errorf("leg %s: %w", job.Name(), err)
				}
			}
			if err := utilerrors.NewAggregate(errs); err != nil {
				return err
			}

			if !flags.Verify || flags.DryRun {
				return nil
			}
			return verifyUploads(ctx, pipe, state, r, jobs)
		},
	}
	cmd.Flags().StringVarP(&flags.File, "file", "f", pipefile.DefaultPath,
		"Read the pipeline description from `PIPEFILE`")
	cmd.Flags().StringVarP(&flags.Job, "job", "j", "",
		"Deploy only for the leg named `NAME`")
	cmd.Flags().StringVar(&flags.OS, "os", runner.HostOS(),
		"Deploy for the legs of `OS` (\"linux\" or \"osx\")")
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false,
		"Log the uploads instead of performing them")
	cmd.Flags().BoolVar(&flags.Verify, "verify", false,
		"After deploying, check the public indexes for the uploaded files")

	argparser.AddCommand(cmd)
}

// verifyUploads asks the public indexes whether the files the gates let
// through are actually visible there.  Destinations without a queryable
// index (releases, pages, script) are reported but not checked.
func verifyUploads(ctx context.Context, pipe *pipefile.Pipeline, state *gitstate.State,
	r *runner.Runner, jobs []matrix.Job,
) error {
	var pypi verify.IndexClient
	var conda verify.CondaClient

	missing := 0
	for _, job := range jobs {
		env := r.JobEnv(job, "")
		decisions, err := deploy.Route(pipe.Deploy, state, env.Get)
		if err != nil {
			return err
		}
		for _, d := range decisions {
			if !d.Matched {
				continue
			}
			switch {
			case d.Entry.Provider == "pypi":
			case d.Entry.Provider == "anaconda" && d.Entry.User != "":
			case d.Entry.Provider == "anaconda":
				dlog.Infof(ctx, "verify: %s: no user in the deploy entry to query by", d.ID)
				continue
			default:
				dlog.Infof(ctx, "verify: %s: no public index to check", d.ID)
				continue
			}
			files, err := artifact.Resolve(d.Entry.Files, env.Get)
			if err != nil {
				return fmt.Errorf("verify: %s: %w", d.ID, err)
			}
			for _, file := range files {
				base := filepath.Base(file.Path)
				var found bool
				switch d.Entry.Provider {
				case "pypi":
					found, err = pypi.HasFile(ctx, pipe.Project, base)
				case "anaconda":
					label := deploy.EffectiveLabel(d.Entry.Label, state.Tag)
					found, err = conda.HasFile(ctx, d.Entry.User, pipe.Project, base, label)
				}
				if err != nil {
					return fmt.Errorf("verify: %s: %w", d.ID, err)
				}
				if found {
					dlog.Infof(ctx, "verify: %s: %s: visible", d.ID, base)
				} else {
					dlog.Errorf(ctx, "verify: %s: %s: NOT visible", d.ID, base)
					missing++
				}
			}
		}
	}
	if missing > 0 {
		return fmt.Errorf("verify: %d uploads are not visible upstream", missing)
	}
	return nil
}
