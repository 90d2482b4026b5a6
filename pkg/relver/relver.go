// Package relver implements the release tag scheme that gates publishing:
// a dotted release number with an optional alpha/beta marker.
//
//	N.N[.N][{a|b}N]
//
// Examples: "1.0", "2.6.4", "1.3a2", "2.0b1".  The scheme is a strict
// subset of the version scheme Python packaging tools accept, so every tag
// this package accepts is also a valid package version downstream.
package relver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a parsed release tag.
type Version struct {
	// Release segments: "1.2.1" => [1, 2, 1].  Two or three segments.
	Release []int
	// Pre is the alpha/beta marker, nil for final releases.
	Pre *PreRelease
}

// PreRelease is the "{a|b}N" tail of a prerelease tag.
type PreRelease struct {
	L string // "a" or "b"
	N int
}

var reVersion = regexp.MustCompile(`^` +
	`(?P<release>[0-9]+\.[0-9]+(?:\.[0-9]+)?)` +
	`(?:(?P<prel>[ab])(?P<pren>[0-9]+))?` +
	`$`)

// Parse parses a tag name in to a Version.  It accepts exactly the tag
// shapes that the default branch filter lets trigger a build; anything else
// is an error.
func Parse(str string) (*Version, error) {
	match := reVersion.FindStringSubmatch(str)
	if match == nil {
		return nil, fmt.Errorf("relver.Parse: invalid release tag: %q", str)
	}

	var ver Version
	for _, segStr := range strings.Split(match[reVersion.SubexpIndex("release")], ".") {
		segInt, err := strconv.Atoi(segStr)
		if err != nil {
			return nil, fmt.Errorf("relver.Parse: %w", err)
		}
		ver.Release = append(ver.Release, segInt)
	}

	if l := match[reVersion.SubexpIndex("prel")]; l != "" {
		n, err := strconv.Atoi(match[reVersion.SubexpIndex("pren")])
		if err != nil {
			return nil, fmt.Errorf("relver.Parse: %w", err)
		}
		ver.Pre = &PreRelease{L: l, N: n}
	}

	return &ver, nil
}

// String implements fmt.Stringer.
func (v Version) String() string {
	var ret strings.Builder
	for i, segment := range v.Release {
		if i > 0 {
			ret.WriteByte('.')
		}
		fmt.Fprintf(&ret, "%d", segment)
	}
	if v.Pre != nil {
		fmt.Fprintf(&ret, "%s%d", v.Pre.L, v.Pre.N)
	}
	return ret.String()
}

// IsPrerelease reports whether the tag carries an alpha or beta marker.
func (v Version) IsPrerelease() bool {
	return v.Pre != nil
}

// Channel returns the publishing channel a tag of this shape routes to:
// "dev" for prereleases, "main" for final releases.
func (v Version) Channel() string {
	if v.IsPrerelease() {
		return "dev"
	}
	return "main"
}

// Cmp compares two versions, returning -1, 0, or 1.  A missing third release
// segment counts as zero ("1.2" == "1.2.0"), and for an equal release number
// alphas sort before betas sort before the final release.
func (v Version) Cmp(other Version) int {
	for i := 0; i < len(v.Release) || i < len(other.Release); i++ {
		var a, b int
		if i < len(v.Release) {
			a = v.Release[i]
		}
		if i < len(other.Release) {
			b = other.Release[i]
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}

	switch {
	case v.Pre == nil && other.Pre == nil:
		return 0
	case v.Pre == nil:
		return 1
	case other.Pre == nil:
		return -1
	}
	if v.Pre.L != other.Pre.L {
		if v.Pre.L < other.Pre.L {
			return -1
		}
		return 1
	}
	switch {
	case v.Pre.N < other.Pre.N:
		return -1
	case v.Pre.N > other.Pre.N:
		return 1
	}
	return 0
}
