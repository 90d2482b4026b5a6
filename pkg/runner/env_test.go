package runner_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyor-ci/conveyor/pkg/matrix"
	"github.com/conveyor-ci/conveyor/pkg/pipefile"
	"github.com/conveyor-ci/conveyor/pkg/runner"
)

func TestJobEnv(t *testing.T) {
	t.Parallel()
	state := testState()
	state.Tag = "1.2.1"
	r := &runner.Runner{
		Pipe:        &pipefile.Pipeline{Project: "molpack"},
		State:       state,
		BaseEnviron: []string{"PATH=/usr/bin:/bin", "HOME=/home/u"},
	}
	job := matrix.Job{
		OS:     "linux",
		Python: "2.7",
		Extra:  []pipefile.EnvVar{{Name: "NUMPY", Value: "1.16"}},
	}
	env := r.JobEnv(job, "/work/env/linux-py2.7")

	assert.Equal(t, "molpack", env.Get("CI_PROJECT"))
	assert.Equal(t, "linux", env.Get("CI_OS"))
	assert.Equal(t, "2.7", env.Get("CI_PYTHON"))
	assert.Equal(t, "master", env.Get("CI_BRANCH"))
	assert.Equal(t, "1.2.1", env.Get("CI_TAG"))
	assert.Equal(t, state.Commit, env.Get("CI_COMMIT"))
	assert.Equal(t, "1552314600", env.Get("SOURCE_DATE_EPOCH"))
	assert.Equal(t, "/work/env/linux-py2.7", env.Get("CONDA_PREFIX"))
	assert.Equal(t, "/work/env/linux-py2.7/bin:/usr/bin:/bin", env.Get("PATH"))
	assert.Equal(t, "1.16", env.Get("NUMPY"))
	assert.Equal(t, "/home/u", env.Get("HOME"), "parent entries shine through")
	assert.Equal(t, "", env.Get("NOT_SET"))

	_, ok := env.Lookup("NOT_SET")
	assert.False(t, ok)

	counts := make(map[string]int)
	for _, entry := range env.Environ() {
		name, _, _ := strings.Cut(entry, "=")
		counts[name]++
	}
	for name, n := range counts {
		assert.Equal(t, 1, n, "duplicate env entry %q", name)
	}
	assert.Equal(t, 1, counts["PATH"])
	assert.Equal(t, 1, counts["CI_TAG"])
}

func TestJobEnvUnprovisioned(t *testing.T) {
	t.Parallel()
	r := &runner.Runner{
		Pipe:        &pipefile.Pipeline{Project: "molpack"},
		State:       testState(),
		BaseEnviron: []string{"PATH=/usr/bin"},
	}
	env := r.JobEnv(matrix.Job{OS: "linux", Python: "2.7"}, "")
	assert.Equal(t, "/usr/bin", env.Get("PATH"), "no prefix, no PATH rewrite")
	_, ok := env.Lookup("CONDA_PREFIX")
	assert.False(t, ok)
}

func TestJobEnvEpochPassthrough(t *testing.T) {
	t.Parallel()
	r := &runner.Runner{
		Pipe:        &pipefile.Pipeline{Project: "molpack"},
		State:       testState(),
		BaseEnviron: []string{"PATH=/usr/bin", "SOURCE_DATE_EPOCH=1500000000"},
	}
	env := r.JobEnv(matrix.Job{OS: "linux", Python: "2.7"}, "")
	assert.Equal(t, "1500000000", env.Get("SOURCE_DATE_EPOCH"))
}

func TestJobEnvExtraWins(t *testing.T) {
	t.Parallel()
	r := &runner.Runner{
		Pipe:        &pipefile.Pipeline{Project: "molpack"},
		State:       testState(),
		BaseEnviron: []string{"PATH=/usr/bin"},
	}
	job := matrix.Job{
		OS:     "linux",
		Python: "2.7",
		Extra:  []pipefile.EnvVar{{Name: "CI_PYTHON", Value: "2.7.18"}},
	}
	env := r.JobEnv(job, "")
	assert.Equal(t, "2.7.18", env.Get("CI_PYTHON"),
		"the env axis may refine built-ins")

	jobs, err := matrix.Expand(pipefile.Matrix{OS: []string{"linux"}, Python: []string{"2.7"}})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}
