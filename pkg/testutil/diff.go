// Package testutil holds helpers shared by the package tests.
package testutil

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pmezard/go-difflib/difflib"
)

var spewConfig = spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisableCapacities:       true,
	DisablePointerAddresses: true,
	SortKeys:                true,
}

// Dump renders a value deterministically (sorted map keys, no pointer
// addresses) so that two renderings of equal values are byte-equal.
func Dump(v interface{}) string {
	return spewConfig.Sdump(v)
}

// AssertEqualText compares two multi-line strings, reporting a unified
// diff on mismatch instead of testify's single-line quoting.
func AssertEqualText(t *testing.T, exp, act string) bool {
	t.Helper()

	if exp == act {
		return true
	}
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(exp),
		B:        difflib.SplitLines(act),
		FromFile: "Expected",
		FromDate: "",
		ToFile:   "Actual",
		ToDate:   "",
		Context:  1,
	})
	t.Errorf("text diff:\n%s", diff)
	return false
}

// AssertEqualDump compares two values by diffing their Dump renderings,
// for nested values whose testify failure output is unreadable.
func AssertEqualDump(t *testing.T, exp, act interface{}) bool {
	t.Helper()

	return AssertEqualText(t, Dump(exp), Dump(act))
}
