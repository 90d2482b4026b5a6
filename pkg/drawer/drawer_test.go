package drawer_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyor-ci/conveyor/pkg/deploy"
	"github.com/conveyor-ci/conveyor/pkg/drawer"
)

func TestDOT(t *testing.T) {
	t.Parallel()
	plan := drawer.Plan{
		Project: "mol-pack",
		Legs: []drawer.Leg{
			{
				Name:   "linux-py2.7",
				Phases: []string{"install", "script"},
				Decisions: []deploy.Decision{
					{ID: "pypi", Matched: true, Reason: "gate satisfied"},
					{ID: "pages", Matched: true, Reason: "gate satisfied"},
				},
			},
			{
				Name:   "osx-py3.6",
				Phases: []string{"install", "script"},
				Decisions: []deploy.Decision{
					{ID: "pypi", Matched: false, Reason: `condition "$CI_OS == linux" not met`},
					{ID: "pages", Matched: false, Reason: `condition "$CI_OS == linux" not met`},
					{ID: "anaconda:dev", Matched: false, Reason: "not a tag build"},
				},
			},
		},
	}

	var out strings.Builder
	require.NoError(t, drawer.DOT(plan, &out))
	dot := out.String()

	assert.Contains(t, dot, "digraph")
	assert.Contains(t, dot, `"mol-pack" -> "linux-py2.7"`)
	assert.Contains(t, dot, `"mol-pack" -> "osx-py3.6"`)

	// Phase chain, per leg.
	assert.Contains(t, dot, `"linux-py2.7" -> "linux-py2.7/install"`)
	assert.Contains(t, dot, `"linux-py2.7/install" -> "linux-py2.7/script"`)
	assert.Contains(t, dot, `"osx-py3.6/install" -> "osx-py3.6/script"`)

	// Destinations hang off the final phase, and only where matched.
	assert.Contains(t, dot, `"linux-py2.7/script" -> "pypi"`)
	assert.Contains(t, dot, `"linux-py2.7/script" -> "pages"`)
	assert.NotContains(t, dot, `"osx-py3.6/script" -> "pypi"`)
	assert.NotContains(t, dot, `"osx-py3.6" -> "pypi"`)

	// anaconda:dev matched nowhere, so it is drawn greyed out.
	assert.Contains(t, dot, `fontcolor="grey"`)
}

func TestDOTNoPhases(t *testing.T) {
	t.Parallel()
	plan := drawer.Plan{
		Project: "solo",
		Legs: []drawer.Leg{
			{
				Name: "linux-py3.6",
				Decisions: []deploy.Decision{
					{ID: "pypi", Matched: true, Reason: "gate satisfied"},
				},
			},
		},
	}

	var out strings.Builder
	require.NoError(t, drawer.DOT(plan, &out))
	dot := out.String()

	// Without a phase chain the destination hangs off the leg itself.
	assert.Contains(t, dot, `"linux-py3.6" -> "pypi"`)
}
