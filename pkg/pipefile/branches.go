package pipefile

import (
	"fmt"
	"regexp"
	"strings"
)

// Branches is the branch/tag filter: a build runs only if it matches one
// of the Only entries.  An entry is either a literal branch name or a
// "/regexp/" pattern.  For a tag build the entries are matched against
// the tag name, not the branch; that is what lets a version-shaped tag
// trigger a build from the filter's regexp entry.
type Branches struct {
	Only []string `json:"only"`
}

// DefaultBranches is the filter used when the pipeline file has no
// branches section: the main integration branches plus release-shaped
// tags.
func DefaultBranches() *Branches {
	return &Branches{Only: []string{
		"master",
		"main",
		`/^[0-9]+\.[0-9]+(\.[0-9]+)?([ab][0-9]+)?$/`,
	}}
}

// Match reports whether a build for the given branch and tag passes the
// filter.  tag is empty for branch builds.
func (b *Branches) Match(branch, tag string) (bool, error) {
	subject := branch
	if tag != "" {
		subject = tag
	}
	for _, entry := range b.Only {
		re, ok, err := entryRegexp(entry)
		if err != nil {
			return false, err
		}
		if ok {
			if re.MatchString(subject) {
				return true, nil
			}
			continue
		}
		if subject == entry {
			return true, nil
		}
	}
	return false, nil
}

// entryRegexp interprets a "/.../" entry.  ok is false for literal
// entries.
func entryRegexp(entry string) (re *regexp.Regexp, ok bool, err error) {
	if len(entry) < 2 || !strings.HasPrefix(entry, "/") || !strings.HasSuffix(entry, "/") {
		return nil, false, nil
	}
	re, err = regexp.Compile(entry[1 : len(entry)-1])
	if err != nil {
		return nil, false, fmt.Errorf("pipefile: branch filter %s: %w", entry, err)
	}
	return re, true, nil
}
