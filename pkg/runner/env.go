package runner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/conveyor-ci/conveyor/pkg/matrix"
	"github.com/conveyor-ci/conveyor/pkg/pipefile"
	"github.com/conveyor-ci/conveyor/pkg/reproducible"
)

// Env is the environment one leg's commands run with: the parent process
// environment plus the leg's overrides (CI_* variables, the conda prefix,
// the matrix env cell).  Later overrides win, and overrides win over the
// parent.
type Env struct {
	base      []string
	overrides []pipefile.EnvVar
}

// Lookup resolves one variable, os.LookupEnv-shaped.
func (e *Env) Lookup(name string) (string, bool) {
	for i := len(e.overrides) - 1; i >= 0; i-- {
		if e.overrides[i].Name == name {
			return e.overrides[i].Value, true
		}
	}
	for i := len(e.base) - 1; i >= 0; i-- {
		if val, ok := strings.CutPrefix(e.base[i], name+"="); ok {
			return val, true
		}
	}
	return "", false
}

// Get is Lookup with absent variables reading as empty, which is how the
// condition language and ${VAR} artifact patterns see the environment.
func (e *Env) Get(name string) string {
	val, _ := e.Lookup(name)
	return val
}

// Environ renders the environment for a child process: parent entries
// whose names aren't overridden, then the overrides.
func (e *Env) Environ() []string {
	overridden := make(map[string]struct{}, len(e.overrides))
	for _, kv := range e.overrides {
		overridden[kv.Name] = struct{}{}
	}
	ret := make([]string, 0, len(e.base)+len(e.overrides))
	for _, entry := range e.base {
		name, _, _ := strings.Cut(entry, "=")
		if _, ok := overridden[name]; ok {
			continue
		}
		ret = append(ret, entry)
	}
	seen := make(map[string]struct{}, len(e.overrides))
	for i := len(e.overrides) - 1; i >= 0; i-- {
		kv := e.overrides[i]
		if _, dup := seen[kv.Name]; dup {
			continue
		}
		seen[kv.Name] = struct{}{}
		ret = append(ret, kv.Name+"="+kv.Value)
	}
	return ret
}

// JobEnv assembles the environment for one leg.  prefix is the leg's
// conda prefix; empty means the leg runs unprovisioned and gets no
// CONDA_PREFIX or PATH rewrite.
func (r *Runner) JobEnv(job matrix.Job, prefix string) *Env {
	r.fillDefaults()
	env := &Env{base: r.BaseEnviron}

	baseLookup := func(name string) (string, bool) {
		e := &Env{base: r.BaseEnviron}
		return e.Lookup(name)
	}
	env.overrides = []pipefile.EnvVar{
		{Name: "CI_PROJECT", Value: r.Pipe.Project},
		{Name: "CI_OS", Value: job.OS},
		{Name: "CI_PYTHON", Value: job.Python},
		{Name: "CI_BRANCH", Value: r.State.Branch},
		{Name: "CI_TAG", Value: r.State.Tag},
		{Name: "CI_COMMIT", Value: r.State.Commit},
		{Name: "SOURCE_DATE_EPOCH", Value: reproducible.JobEpoch(baseLookup, r.State.CommitTime)},
	}
	if prefix != "" {
		path := filepath.Join(prefix, "bin")
		if parent, ok := baseLookup("PATH"); ok {
			path += string(os.PathListSeparator) + parent
		}
		env.overrides = append(env.overrides,
			pipefile.EnvVar{Name: "CONDA_PREFIX", Value: prefix},
			pipefile.EnvVar{Name: "PATH", Value: path},
		)
	}
	env.overrides = append(env.overrides, job.Extra...)
	return env
}
