// Package deploy deals with publishing build artifacts to their
// destinations.
//
// Each deploy entry in the pipeline file names a provider (anaconda,
// pypi, releases, pages, script), the artifacts it publishes, and a gate.
// Routing evaluates the gates against the build's git state and job
// environment and says, per destination, whether this leg publishes there
// and why; execution then runs the matched entries in file order,
// stopping at the first failure.
package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"

	"github.com/conveyor-ci/conveyor/pkg/artifact"
	"github.com/conveyor-ci/conveyor/pkg/condition"
	"github.com/conveyor-ci/conveyor/pkg/gitstate"
	"github.com/conveyor-ci/conveyor/pkg/pipefile"
	"github.com/conveyor-ci/conveyor/pkg/relver"
	"github.com/conveyor-ci/conveyor/pkg/secrets"
)

// Decision is the routing verdict for one deploy entry on one leg.
type Decision struct {
	// ID is the destination the entry publishes to, with an "auto"
	// anaconda label already resolved against the build's tag.
	ID string

	// Entry is the deploy entry the verdict is about.
	Entry pipefile.Deployment

	// Matched says whether this leg publishes to ID.
	Matched bool

	// Reason says why, in plan output wording.
	Reason string
}

// Route evaluates every deploy entry's gate against the build state and
// the leg's environment.  The returned decisions are in pipeline-file
// order, one per entry, skipped entries included.
func Route(entries []pipefile.Deployment, state *gitstate.State, lookup func(name string) string) ([]Decision, error) {
	ret := make([]Decision, 0, len(entries))
	for i, entry := range entries {
		d := Decision{
			ID:    entry.DestinationID(),
			Entry: entry,
		}
		if entry.Provider == "anaconda" && state.IsTagBuild() {
			d.ID = "anaconda:" + EffectiveLabel(entry.Label, state.Tag)
		}

		if entry.On.Tags && !state.IsTagBuild() {
			d.Reason = "not a tag build"
			ret = append(ret, d)
			continue
		}
		if entry.On.Condition != "" {
			expr, err := condition.Parse(entry.On.Condition)
			if err != nil {
				return nil, fmt.Errorf("deploy[%d]: %w", i, err)
			}
			if !expr.Eval(lookup) {
				d.Reason = fmt.Sprintf("condition %q not met", entry.On.Condition)
				ret = append(ret, d)
				continue
			}
		}
		d.Matched = true
		d.Reason = "gate satisfied"
		ret = append(ret, d)
	}
	return ret, nil
}

// EffectiveLabel resolves an anaconda channel label against a tag: "dev"
// and "main" pass through, empty and "auto" are chosen by the tag's
// shape.  A tag that isn't a release version lands on "dev"; better to
// hide a weird tag there than to publish it to the channel users install
// from.
func EffectiveLabel(label, tag string) string {
	if label != "" && label != "auto" {
		return label
	}
	ver, err := relver.Parse(tag)
	if err != nil {
		return "dev"
	}
	return ver.Channel()
}

// Request carries everything one deploy entry's execution needs.
type Request struct {
	Entry   pipefile.Deployment
	Project string

	// Dir is the directory provider commands run in and that relative
	// artifact or docs paths resolve against; empty means the process
	// working directory.
	Dir string

	// Tag is the build's tag; gating has already established it is
	// non-empty for tag-gated entries.
	Tag string

	// Lookup resolves ${VAR} references in artifact patterns and $VAR
	// references in conditions; it is the leg's environment.
	Lookup func(name string) string

	// Environ is the leg's full environment, used as the base of every
	// provider command's environment and for finding the provider tools
	// themselves (the leg's prefix usually holds them).  Empty means the
	// process environment.
	Environ []string

	// Secrets must hold the entry's token_env/password_env name.
	Secrets *secrets.Store

	// DryRun logs what would run without running it.
	DryRun bool
}

// Execute publishes one deploy entry.
func Execute(ctx context.Context, req Request) (err error) {
	id := req.Entry.DestinationID()
	defer func() {
		if err != nil {
			err = fmt.Errorf("deploy %s: %w", id, err)
		}
	}()

	if req.Entry.Provider == "pages" {
		return pagesDeploy(ctx, req)
	}

	var files []artifact.File
	if len(req.Entry.Files) > 0 {
		patterns := make([]string, len(req.Entry.Files))
		for i, pattern := range req.Entry.Files {
			patterns[i] = req.resolvePath(pattern)
		}
		files, err = artifact.Resolve(patterns, req.Lookup)
		if err != nil {
			return err
		}
		for _, f := range files {
			dlog.Infof(ctx, "deploy %s: artifact %s", id, f)
		}
	}

	inv, err := Plan(req, files)
	if err != nil {
		return err
	}
	dlog.Infof(ctx, "deploy %s: running %q", id, req.Secrets.RedactArgv(inv.Argv))
	if req.DryRun {
		dlog.Infof(ctx, "deploy %s: dry run, skipping", id)
		return nil
	}

	childEnv := inv.Environ(req.environ())
	cmd := dexec.CommandContext(ctx, lookTool(inv.Argv[0], childEnv), inv.Argv[1:]...)
	cmd.Dir = req.Dir
	cmd.DisableLogging = inv.NoArgvLog
	cmd.Env = childEnv
	return cmd.Run()
}

func (req Request) environ() []string {
	if req.Environ != nil {
		return req.Environ
	}
	return os.Environ()
}

// lookTool resolves a bare command name against the PATH in environ, so
// that uploaders provisioned into the leg's prefix are found even though
// this process runs outside it.  Names that cannot be resolved are
// returned as-is and left for exec to report.
func lookTool(name string, environ []string) string {
	if filepath.Base(name) != name {
		return name
	}
	pathVar := ""
	for _, kv := range environ {
		if val, ok := strings.CutPrefix(kv, "PATH="); ok {
			pathVar = val
		}
	}
	for _, dir := range filepath.SplitList(pathVar) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
			return candidate
		}
	}
	return name
}

// resolvePath anchors a relative path at the request's directory.
func (req Request) resolvePath(path string) string {
	if req.Dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(req.Dir, path)
}

// ExecuteAll publishes the matched subset of decisions, in order,
// stopping at the first failure.
func ExecuteAll(ctx context.Context, decisions []Decision, mkReq func(entry pipefile.Deployment) Request) error {
	for _, d := range decisions {
		if !d.Matched {
			dlog.Infof(ctx, "deploy %s: skipped (%s)", d.ID, d.Reason)
			continue
		}
		if err := Execute(ctx, mkReq(d.Entry)); err != nil {
			return err
		}
	}
	return nil
}
