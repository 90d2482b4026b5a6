// Package runner deals with executing build legs: the per-job sequence
// provision → install → script → after_success → before_deploy → deploy.
//
// Within a leg the phases are strictly fail-fast: the first command that
// exits non-zero aborts everything after it, deployment included.  Across
// legs there is no coupling at all: one leg failing never cancels its
// siblings, and the run reports every leg's outcome at the end.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"
	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/conveyor-ci/conveyor/pkg/deploy"
	"github.com/conveyor-ci/conveyor/pkg/gitstate"
	"github.com/conveyor-ci/conveyor/pkg/matrix"
	"github.com/conveyor-ci/conveyor/pkg/pipefile"
	"github.com/conveyor-ci/conveyor/pkg/provision"
	"github.com/conveyor-ci/conveyor/pkg/secrets"
)

// Phase names one stage of a leg.
type Phase string

const (
	PhaseProvision    Phase = "provision"
	PhaseInstall      Phase = "install"
	PhaseScript       Phase = "script"
	PhaseAfterSuccess Phase = "after_success"
	PhaseBeforeDeploy Phase = "before_deploy"
	PhaseDeploy       Phase = "deploy"
)

// Runner executes a pipeline's legs.
type Runner struct {
	Pipe  *pipefile.Pipeline
	State *gitstate.State

	// Workdir is where phase commands run; default ".".
	Workdir string

	// EnvRoot is where per-leg conda prefixes live; default
	// "<Workdir>/env", or the pipeline's provision.prefix.
	EnvRoot string

	// Provisioner bootstraps conda prefixes; a zero Provisioner is
	// filled from the pipeline's provision section.
	Provisioner *provision.Provisioner

	// Secrets, when non-nil, short-circuits environment resolution;
	// when nil each leg resolves exactly the names its matched deploy
	// entries ask for.
	Secrets *secrets.Store

	// BaseEnviron is the parent environment; default os.Environ().
	BaseEnviron []string

	SkipDeploy  bool
	DryRun      bool
	Reprovision bool
}

func (r *Runner) fillDefaults() {
	if r.Workdir == "" {
		r.Workdir = "."
	}
	if r.EnvRoot == "" {
		if r.Pipe.Provision != nil && r.Pipe.Provision.Prefix != "" {
			r.EnvRoot = r.Pipe.Provision.Prefix
		} else {
			r.EnvRoot = filepath.Join(r.Workdir, "env")
		}
	}
	if r.Provisioner == nil {
		r.Provisioner = &provision.Provisioner{Spec: r.Pipe.Provision}
	}
	if r.BaseEnviron == nil {
		r.BaseEnviron = os.Environ()
	}
}

// PrefixFor returns the conda prefix a leg provisions in to.
func (r *Runner) PrefixFor(job matrix.Job) string {
	r.fillDefaults()
	return filepath.Join(r.EnvRoot, job.Name())
}

// RunJob executes one leg start to finish.
func (r *Runner) RunJob(ctx context.Context, job matrix.Job) (err error) {
	r.fillDefaults()
	ctx = dlog.WithField(ctx, "leg", job.Name())
	defer func() {
		if err != nil {
			dlog.Errorf(ctx, "leg failed: %v", err)
		} else {
			dlog.Infof(ctx, "leg passed")
		}
	}()

	prefix := ""
	if r.Pipe.Provision != nil {
		prefix = r.PrefixFor(job)
		if err := r.Provisioner.Provision(ctx, job, prefix, r.Reprovision); err != nil {
			return fmt.Errorf("phase %s: %w", PhaseProvision, err)
		}
	}
	env := r.JobEnv(job, prefix)

	if err := r.runPhase(ctx, env, PhaseInstall, r.Pipe.Install); err != nil {
		return err
	}
	if err := r.runPhase(ctx, env, PhaseScript, r.Pipe.Script); err != nil {
		return err
	}
	if err := r.runPhase(ctx, env, PhaseAfterSuccess, r.Pipe.AfterSuccess); err != nil {
		return err
	}

	if r.SkipDeploy {
		dlog.Infof(ctx, "%s: skipped by request", PhaseDeploy)
		return nil
	}
	return r.runDeploy(ctx, env)
}

// RunDeploy executes only the deploy phase of a leg, against whatever
// artifacts are already in the working directory.  The leg's conda prefix
// is used if it exists, but nothing is provisioned.
func (r *Runner) RunDeploy(ctx context.Context, job matrix.Job) error {
	r.fillDefaults()
	ctx = dlog.WithField(ctx, "leg", job.Name())

	prefix := ""
	if r.Pipe.Provision != nil {
		if p := r.PrefixFor(job); fsExists(p) {
			prefix = p
		}
	}
	return r.runDeploy(ctx, r.JobEnv(job, prefix))
}

func fsExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (r *Runner) runPhase(ctx context.Context, env *Env, phase Phase, commands []string) error {
	for i, line := range commands {
		cmd := dexec.CommandContext(ctx, "sh", "-c", line)
		cmd.Dir = r.Workdir
		cmd.Env = env.Environ()
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("phase %s: command %d of %d (%q): %w",
				phase, i+1, len(commands), line, err)
		}
	}
	return nil
}

func (r *Runner) runDeploy(ctx context.Context, env *Env) error {
	decisions, err := deploy.Route(r.Pipe.Deploy, r.State, env.Get)
	if err != nil {
		return fmt.Errorf("phase %s: %w", PhaseDeploy, err)
	}
	matched := 0
	for _, d := range decisions {
		if d.Matched {
			matched++
		} else {
			dlog.Infof(ctx, "%s: %s: skipped (%s)", PhaseDeploy, d.ID, d.Reason)
		}
	}
	if matched == 0 {
		return nil
	}

	store := r.Secrets
	if store == nil {
		store, err = secrets.FromEnv(env.Lookup, secretNames(decisions)...)
		if err != nil {
			return fmt.Errorf("phase %s: %w", PhaseDeploy, err)
		}
	}

	// before_deploy only runs when something will actually deploy.
	if err := r.runPhase(ctx, env, PhaseBeforeDeploy, r.Pipe.BeforeDeploy); err != nil {
		return err
	}

	err = deploy.ExecuteAll(ctx, decisions, func(entry pipefile.Deployment) deploy.Request {
		return deploy.Request{
			Entry:   entry,
			Project: r.Pipe.Project,
			Dir:     r.Workdir,
			Tag:     r.State.Tag,
			Lookup:  env.Get,
			Environ: env.Environ(),
			Secrets: store,
			DryRun:  r.DryRun,
		}
	})
	if err != nil {
		return fmt.Errorf("phase %s: %w", PhaseDeploy, err)
	}
	return nil
}

// secretNames collects the env-var names the matched deploy entries
// authenticate with.
func secretNames(decisions []deploy.Decision) []string {
	var ret []string
	for _, d := range decisions {
		if !d.Matched {
			continue
		}
		if d.Entry.TokenEnv != "" {
			ret = append(ret, d.Entry.TokenEnv)
		}
		if d.Entry.PasswordEnv != "" {
			ret = append(ret, d.Entry.PasswordEnv)
		}
	}
	return ret
}

// RunAll executes legs with at most parallel running at once (<=1 means
// sequentially, in matrix order).  Legs are independent: a failure is
// recorded, not propagated, and the return value aggregates every failed
// leg.
func (r *Runner) RunAll(ctx context.Context, jobs []matrix.Job, parallel int) error {
	r.fillDefaults()
	if parallel < 1 {
		parallel = 1
	}

	var group errgroup.Group
	group.SetLimit(parallel)
	errs := make([]error, len(jobs))
	for i, job := range jobs {
		i, job := i, job
		group.Go(func() error {
			if err := r.RunJob(ctx, job); err != nil {
				errs[i] = fmt.Errorf("leg %s: %w", job.Name(), err)
			}
			return nil
		})
	}
	_ = group.Wait()
	return utilerrors.NewAggregate(errs)
}

// HostOS is the matrix-axis name for the OS this process runs on.
func HostOS() string {
	if runtime.GOOS == "darwin" {
		return "osx"
	}
	return runtime.GOOS
}

// FilterOS keeps the legs whose OS equals osName; empty keeps everything.
func FilterOS(jobs []matrix.Job, osName string) []matrix.Job {
	if osName == "" {
		return jobs
	}
	var ret []matrix.Job
	for _, job := range jobs {
		if job.OS == osName {
			ret = append(ret, job)
		}
	}
	return ret
}

// FilterName keeps the single named leg.
func FilterName(jobs []matrix.Job, name string) ([]matrix.Job, error) {
	if name == "" {
		return jobs, nil
	}
	for _, job := range jobs {
		if job.Name() == name {
			return []matrix.Job{job}, nil
		}
	}
	names := make([]string, 0, len(jobs))
	for _, job := range jobs {
		names = append(names, job.Name())
	}
	return nil, fmt.Errorf("no job named %q (have %q)", name, names)
}
