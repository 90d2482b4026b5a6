package condition_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyor-ci/conveyor/pkg/condition"
)

func lookupIn(env map[string]string) func(string) string {
	return func(name string) string {
		return env[name]
	}
}

func TestEval(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"CI_OS":     "linux",
		"CI_PYTHON": "2.7",
		"CI_TAG":    "1.2.1a3",
		"CI_BRANCH": "master",
	}

	testcases := map[string]bool{
		`$CI_OS == linux`:                          true,
		`$CI_OS == osx`:                            false,
		`$CI_OS != osx`:                            true,
		`$CI_PYTHON == 2.7`:                        true,
		`$CI_OS == linux && $CI_PYTHON == 2.7`:     true,
		`$CI_OS == linux && $CI_PYTHON == 3.6`:     false,
		`$CI_TAG == *[ab]*`:                        true,
		`$CI_TAG != *[ab]*`:                        false,
		`$CI_OS == osx || $CI_PYTHON == 2.7`:       true,
		`$CI_OS == osx || $CI_PYTHON == 3.6`:       false,
		`$UNSET == ""`:                             true,
		`$UNSET != ""`:                             false,
		`$CI_BRANCH == "master"`:                   true,
		`($CI_OS == osx || $CI_OS == linux) && $CI_TAG == *[ab]*`: true,
		`$CI_OS == linux && $CI_PYTHON == 2.7 && $CI_TAG != *[ab]*`: false,
	}
	for input, expected := range testcases {
		input := input
		expected := expected
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			expr, err := condition.Parse(input)
			require.NoError(t, err)
			assert.Equal(t, expected, expr.Eval(lookupIn(env)))
		})
	}
}

func TestEvalFinalTag(t *testing.T) {
	t.Parallel()

	// The same gates as above, but for a final (non-prerelease) tag.
	env := map[string]string{
		"CI_OS":     "linux",
		"CI_PYTHON": "2.7",
		"CI_TAG":    "1.2.1",
	}
	testcases := map[string]bool{
		`$CI_TAG == *[ab]*`: false,
		`$CI_TAG != *[ab]*`: true,
		`$CI_OS == linux && $CI_PYTHON == 2.7 && $CI_TAG != *[ab]*`: true,
	}
	for input, expected := range testcases {
		input := input
		expected := expected
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			expr, err := condition.Parse(input)
			require.NoError(t, err)
			assert.Equal(t, expected, expr.Eval(lookupIn(env)))
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	testcases := []string{
		``,
		`$`,
		`CI_OS == linux`,
		`$CI_OS = linux`,
		`$CI_OS ==`,
		`$CI_OS == linux &&`,
		`($CI_OS == linux`,
		`$CI_OS == linux)`,
		`$CI_OS == linux $CI_PYTHON == 2.7`,
		`$A == [ab`,
		`$A == $B`,
		`$A == "unterminated`,
	}
	for _, input := range testcases {
		input := input
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			_, err := condition.Parse(input)
			assert.Error(t, err)
		})
	}
}

func TestString(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"CI_OS":  "linux",
		"CI_TAG": "2.0b1",
	}

	// String() output must parse back to an equivalent predicate.
	testcases := []string{
		`$CI_OS == linux`,
		`$CI_TAG == *[ab]*`,
		`$CI_OS == linux && $CI_TAG != *[ab]*`,
		`($CI_OS == osx || $CI_OS == linux) && $CI_TAG == *[ab]*`,
	}
	for _, input := range testcases {
		input := input
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			expr, err := condition.Parse(input)
			require.NoError(t, err)
			reparsed, err := condition.Parse(expr.String())
			require.NoError(t, err, "String() output must reparse: %q", expr.String())
			assert.Equal(t, expr.Eval(lookupIn(env)), reparsed.Eval(lookupIn(env)))
			assert.Equal(t, expr.String(), reparsed.String())
		})
	}
}
