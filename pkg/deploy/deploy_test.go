package deploy_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyor-ci/conveyor/pkg/deploy"
	"github.com/conveyor-ci/conveyor/pkg/gitstate"
	"github.com/conveyor-ci/conveyor/pkg/pipefile"
)

func legLookup(jobOS, python, tag string) func(string) string {
	env := map[string]string{
		"CI_OS":     jobOS,
		"CI_PYTHON": python,
		"CI_TAG":    tag,
		"CI_BRANCH": "master",
	}
	return func(name string) string { return env[name] }
}

// TestRouteReference pins down the full routing table of the reference
// pipeline: which (os, python, tag) combinations publish where.
func TestRouteReference(t *testing.T) {
	t.Parallel()
	pipe, err := pipefile.Load("../pipefile/testdata/reference.yml")
	require.NoError(t, err)

	testcases := map[string]struct {
		OS      string
		Python  string
		Tag     string
		Matched []string
	}{
		"final-linux-27": {
			OS: "linux", Python: "2.7", Tag: "1.2.1",
			Matched: []string{"anaconda:main", "github-release", "pages", "pypi"},
		},
		"final-linux-36": {
			OS: "linux", Python: "3.6", Tag: "1.2.1",
			Matched: []string{"anaconda:main"},
		},
		"final-osx-27": {
			OS: "osx", Python: "2.7", Tag: "1.2.1",
			Matched: []string{"anaconda:main"},
		},
		"final-osx-36": {
			OS: "osx", Python: "3.6", Tag: "1.2.1",
			Matched: []string{"anaconda:main"},
		},
		"alpha-linux-27": {
			OS: "linux", Python: "2.7", Tag: "1.2.1a3",
			Matched: []string{"anaconda:dev", "github-release"},
		},
		"beta-osx-36": {
			OS: "osx", Python: "3.6", Tag: "2.0b1",
			Matched: []string{"anaconda:dev"},
		},
		"untagged-linux-27": {
			OS: "linux", Python: "2.7", Tag: "",
			Matched: []string{},
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			state := &gitstate.State{Branch: "master", Tag: tc.Tag}
			decisions, err := deploy.Route(pipe.Deploy, state, legLookup(tc.OS, tc.Python, tc.Tag))
			require.NoError(t, err)
			require.Len(t, decisions, len(pipe.Deploy))

			matched := []string{}
			for _, d := range decisions {
				if d.Matched {
					matched = append(matched, d.ID)
				} else {
					assert.NotEmpty(t, d.Reason)
				}
			}
			sort.Strings(matched)
			assert.Equal(t, tc.Matched, matched)
		})
	}
}

func TestRouteReasons(t *testing.T) {
	t.Parallel()
	entries := []pipefile.Deployment{
		{Provider: "pypi", On: pipefile.Gate{Tags: true, Condition: `$CI_OS == linux`}},
	}

	untagged := &gitstate.State{Branch: "master"}
	decisions, err := deploy.Route(entries, untagged, legLookup("linux", "2.7", ""))
	require.NoError(t, err)
	assert.False(t, decisions[0].Matched)
	assert.Equal(t, "not a tag build", decisions[0].Reason)

	tagged := &gitstate.State{Branch: "master", Tag: "1.0"}
	decisions, err = deploy.Route(entries, tagged, legLookup("osx", "2.7", "1.0"))
	require.NoError(t, err)
	assert.False(t, decisions[0].Matched)
	assert.Contains(t, decisions[0].Reason, `$CI_OS == linux`)

	decisions, err = deploy.Route(entries, tagged, legLookup("linux", "2.7", "1.0"))
	require.NoError(t, err)
	assert.True(t, decisions[0].Matched)
}

func TestRouteBadCondition(t *testing.T) {
	t.Parallel()
	entries := []pipefile.Deployment{
		{Provider: "pypi", On: pipefile.Gate{Tags: true, Condition: `$CI_OS ==`}},
	}
	state := &gitstate.State{Branch: "master", Tag: "1.0"}
	_, err := deploy.Route(entries, state, legLookup("linux", "2.7", "1.0"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deploy[0]")
}

func TestEffectiveLabel(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		Label    string
		Tag      string
		Expected string
	}{
		"explicit-dev":   {Label: "dev", Tag: "1.2.1", Expected: "dev"},
		"explicit-main":  {Label: "main", Tag: "2.0b1", Expected: "main"},
		"auto-final":     {Label: "auto", Tag: "1.2.1", Expected: "main"},
		"auto-alpha":     {Label: "auto", Tag: "1.2.1a3", Expected: "dev"},
		"auto-beta":      {Label: "", Tag: "2.0b1", Expected: "dev"},
		"auto-not-a-ver": {Label: "auto", Tag: "nightly", Expected: "dev"},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.Expected, deploy.EffectiveLabel(tc.Label, tc.Tag))
		})
	}
}
