package deploy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyor-ci/conveyor/pkg/artifact"
	"github.com/conveyor-ci/conveyor/pkg/deploy"
	"github.com/conveyor-ci/conveyor/pkg/pipefile"
	"github.com/conveyor-ci/conveyor/pkg/secrets"
)

func testStore(t *testing.T) *secrets.Store {
	t.Helper()
	st, err := secrets.FromEnv(func(key string) (string, bool) {
		vals := map[string]string{
			"ANACONDA_TOKEN": "an-tok",
			"TWINE_PASSWORD": "pypi-tok",
			"GITHUB_TOKEN":   "gh-tok",
		}
		val, ok := vals[key]
		return val, ok
	}, "ANACONDA_TOKEN", "TWINE_PASSWORD", "GITHUB_TOKEN")
	require.NoError(t, err)
	return st
}

func testFiles() []artifact.File {
	return []artifact.File{
		{Path: "dist/molpack-1.2.1.tar.gz", Size: 10, SHA256: "aa"},
	}
}

func envMap(env []pipefile.EnvVar) map[string]string {
	ret := make(map[string]string, len(env))
	for _, kv := range env {
		ret[kv.Name] = kv.Value
	}
	return ret
}

func TestPlanAnaconda(t *testing.T) {
	t.Parallel()
	st := testStore(t)
	req := deploy.Request{
		Entry: pipefile.Deployment{
			Provider: "anaconda",
			Label:    "dev",
			User:     "molmod",
			TokenEnv: "ANACONDA_TOKEN",
		},
		Tag:     "1.2.1a3",
		Secrets: st,
	}
	inv, err := deploy.Plan(req, testFiles())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"anaconda", "-t", "an-tok", "upload", "--force",
		"--label", "dev", "--user", "molmod",
		"dist/molpack-1.2.1.tar.gz",
	}, inv.Argv)
	assert.True(t, inv.NoArgvLog, "an argv carrying a token must not be logged raw")
	assert.NotContains(t, st.RedactArgv(inv.Argv), "an-tok")
}

func TestPlanAnacondaAutoLabel(t *testing.T) {
	t.Parallel()
	st := testStore(t)
	req := deploy.Request{
		Entry: pipefile.Deployment{
			Provider: "anaconda",
			Label:    "auto",
			TokenEnv: "ANACONDA_TOKEN",
		},
		Tag:     "1.2.1",
		Secrets: st,
	}
	inv, err := deploy.Plan(req, testFiles())
	require.NoError(t, err)
	assert.Contains(t, inv.Argv, "main")
	assert.NotContains(t, inv.Argv, "--user")
}

func TestPlanPyPI(t *testing.T) {
	t.Parallel()
	req := deploy.Request{
		Entry: pipefile.Deployment{
			Provider:    "pypi",
			User:        "molmod-ci",
			PasswordEnv: "TWINE_PASSWORD",
		},
		Tag:     "1.2.1",
		Secrets: testStore(t),
	}
	inv, err := deploy.Plan(req, testFiles())
	require.NoError(t, err)
	assert.Equal(t, []string{"twine", "upload", "dist/molpack-1.2.1.tar.gz"}, inv.Argv)
	assert.False(t, inv.NoArgvLog)
	env := envMap(inv.Env)
	assert.Equal(t, "molmod-ci", env["TWINE_USERNAME"])
	assert.Equal(t, "pypi-tok", env["TWINE_PASSWORD"])
	assert.Equal(t, "1", env["TWINE_NON_INTERACTIVE"])
}

func TestPlanReleases(t *testing.T) {
	t.Parallel()
	st := testStore(t)

	t.Run("final", func(t *testing.T) {
		t.Parallel()
		req := deploy.Request{
			Entry: pipefile.Deployment{
				Provider: "releases",
				Repo:     "molmod/molmod",
				TokenEnv: "GITHUB_TOKEN",
			},
			Project: "molpack",
			Tag:     "1.2.1",
			Secrets: st,
		}
		inv, err := deploy.Plan(req, testFiles())
		require.NoError(t, err)
		assert.Equal(t, []string{
			"gh", "release", "create", "1.2.1",
			"--title", "molpack 1.2.1",
			"--generate-notes",
			"--repo", "molmod/molmod",
			"dist/molpack-1.2.1.tar.gz",
		}, inv.Argv)
		assert.Equal(t, "gh-tok", envMap(inv.Env)["GITHUB_TOKEN"])
	})

	t.Run("prerelease", func(t *testing.T) {
		t.Parallel()
		req := deploy.Request{
			Entry: pipefile.Deployment{
				Provider: "releases",
				TokenEnv: "GITHUB_TOKEN",
			},
			Tag:     "2.0b1",
			Secrets: st,
		}
		inv, err := deploy.Plan(req, testFiles())
		require.NoError(t, err)
		assert.Contains(t, inv.Argv, "--prerelease")
		assert.Contains(t, inv.Argv, "2.0b1")
	})
}

func TestPlanScript(t *testing.T) {
	t.Parallel()
	req := deploy.Request{
		Entry: pipefile.Deployment{
			Provider: "script",
			Script:   "make publish",
		},
		Secrets: testStore(t),
	}
	inv, err := deploy.Plan(req, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"sh", "-c", "make publish"}, inv.Argv)
}

func TestPlanErrors(t *testing.T) {
	t.Parallel()
	st := testStore(t)

	_, err := deploy.Plan(deploy.Request{
		Entry:   pipefile.Deployment{Provider: "anaconda", TokenEnv: "NOT_RESOLVED"},
		Secrets: st,
	}, testFiles())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_RESOLVED")

	_, err = deploy.Plan(deploy.Request{
		Entry:   pipefile.Deployment{Provider: "pages"},
		Secrets: st,
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no command plan")
}
