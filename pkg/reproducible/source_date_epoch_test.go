package reproducible_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/conveyor-ci/conveyor/pkg/reproducible"
)

func TestJobEpoch(t *testing.T) {
	t.Parallel()
	commitTime := time.Date(2019, time.March, 11, 14, 30, 0, 0, time.UTC)

	testcases := map[string]struct {
		Env      map[string]string
		Expected string
	}{
		"from-commit":   {Env: nil, Expected: "1552314600"},
		"passthrough":   {Env: map[string]string{"SOURCE_DATE_EPOCH": "1500000000"}, Expected: "1500000000"},
		"garbage-env":   {Env: map[string]string{"SOURCE_DATE_EPOCH": "yesterday"}, Expected: "1552314600"},
		"empty-env-var": {Env: map[string]string{"SOURCE_DATE_EPOCH": ""}, Expected: "1552314600"},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			lookup := func(key string) (string, bool) {
				val, ok := tc.Env[key]
				return val, ok
			}
			assert.Equal(t, tc.Expected, reproducible.JobEpoch(lookup, commitTime))
		})
	}
}
