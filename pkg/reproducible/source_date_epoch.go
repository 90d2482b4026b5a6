// Package reproducible pins the timestamps that builds embed in their
// artifacts, following the SOURCE_DATE_EPOCH convention
// (https://reproducible-builds.org/specs/source-date-epoch/) so that
// rebuilding the same commit yields byte-identical files.
package reproducible

import (
	"os"
	"strconv"
	"sync"
	"time"
)

var (
	nowOnce sync.Once
	now     time.Time
)

// Now returns SOURCE_DATE_EPOCH as a time if the surrounding environment
// set one, and the wall clock otherwise.  The answer is computed once;
// every caller in the process sees the same instant.
func Now() time.Time {
	nowOnce.Do(func() {
		secs, err := strconv.ParseInt(os.Getenv("SOURCE_DATE_EPOCH"), 10, 64)
		if err == nil {
			now = time.Unix(secs, 0).UTC()
		} else {
			now = time.Now().UTC()
		}
	})
	return now
}

// JobEpoch computes the SOURCE_DATE_EPOCH value to inject in to a build
// job's environment: an epoch already asserted by the surrounding
// environment passes through unchanged, otherwise the commit's timestamp
// is used.
func JobEpoch(lookup func(key string) (string, bool), commitTime time.Time) string {
	if str, ok := lookup("SOURCE_DATE_EPOCH"); ok {
		if _, err := strconv.ParseInt(str, 10, 64); err == nil {
			return str
		}
	}
	return strconv.FormatInt(commitTime.Unix(), 10)
}
