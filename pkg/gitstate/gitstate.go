// Package gitstate deals with inspecting the Git checkout that a build
// runs against: which branch is checked out, which tag (if any) points at
// HEAD, and the commit the build will be stamped with.
//
// Detection reads the repository directly; when the surrounding CI system
// already knows the answer it can override individual fields through the
// environment (CI_BRANCH, CI_TAG, CI_COMMIT) without gitstate second-guessing
// it.
package gitstate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/datawire/dlib/dlog"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/conveyor-ci/conveyor/pkg/relver"
)

// State describes the version-control state of a checkout.
type State struct {
	// Branch is the checked-out branch name, or "" when HEAD is detached.
	Branch string

	// Tag is the tag pointing at HEAD, or "" for an untagged commit.  When
	// several tags point at HEAD the one naming the highest release version
	// wins; if none of them parse as release versions the lexicographically
	// first wins.
	Tag string

	// Commit is the full hex hash of HEAD.
	Commit string

	// CommitTime is the committer timestamp of HEAD, in UTC.  Builds use it
	// as their SOURCE_DATE_EPOCH so that artifacts come out byte-identical
	// across reruns of the same commit.
	CommitTime time.Time
}

// Detect inspects the repository containing dir.
//
// dir may be anywhere inside the work tree; the enclosing ".git" is found
// the same way the git CLI finds it.
func Detect(ctx context.Context, dir string) (*State, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, fmt.Errorf("gitstate.Detect: %q: %w", dir, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("gitstate.Detect: %q: %w", dir, err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("gitstate.Detect: %q: %w", dir, err)
	}

	ret := &State{
		Commit:     head.Hash().String(),
		CommitTime: commit.Committer.When.UTC(),
	}
	if head.Name().IsBranch() {
		ret.Branch = head.Name().Short()
	}

	tags, err := tagsAt(repo, head.Hash())
	if err != nil {
		return nil, fmt.Errorf("gitstate.Detect: %q: %w", dir, err)
	}
	ret.Tag = pickTag(tags)
	if len(tags) > 1 {
		dlog.Infof(ctx, "gitstate: %d tags point at HEAD, using %q", len(tags), ret.Tag)
	}

	return ret, nil
}

// Override replaces fields of the detected state with values that the
// surrounding environment asserts, looking up CI_BRANCH, CI_TAG, and
// CI_COMMIT through lookup (usually os.LookupEnv).  A variable that is set
// but empty still overrides; this is how a CI system says "this is not a
// tag build" on a commit that happens to carry a tag.
func (state *State) Override(lookup func(key string) (string, bool)) {
	if val, ok := lookup("CI_BRANCH"); ok {
		state.Branch = val
	}
	if val, ok := lookup("CI_TAG"); ok {
		state.Tag = val
	}
	if val, ok := lookup("CI_COMMIT"); ok {
		state.Commit = val
	}
}

// IsTagBuild reports whether this state describes a tag build; deployment
// gating keys off of this.
func (state *State) IsTagBuild() bool {
	return state.Tag != ""
}

// tagsAt returns the names of all tags whose target is hash, resolving
// annotated tags through to the commit they point at.
func tagsAt(repo *git.Repository, hash plumbing.Hash) ([]string, error) {
	iter, err := repo.Tags()
	if err != nil {
		return nil, err
	}
	var ret []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		if tagObj, tagErr := repo.TagObject(ref.Hash()); tagErr == nil {
			target = tagObj.Target
		} else if !errors.Is(tagErr, plumbing.ErrObjectNotFound) {
			return tagErr
		}
		if target == hash {
			ret = append(ret, ref.Name().Short())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ret)
	return ret, nil
}

// pickTag chooses which of several tags at HEAD names the build: the
// highest parseable release version, falling back to the
// lexicographically first name when none parse.
func pickTag(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	best := ""
	var bestVer *relver.Version
	for _, tag := range tags {
		ver, err := relver.Parse(tag)
		if err != nil {
			continue
		}
		if bestVer == nil || bestVer.Cmp(*ver) < 0 {
			best, bestVer = tag, ver
		}
	}
	if best == "" {
		best = tags[0] // already sorted
	}
	return best
}

// ListVersionTags returns every tag in the repository that parses as a
// release version, sorted ascending.  The deploy planner uses this to warn
// when a build is about to publish a version older than one that already
// exists.
func ListVersionTags(dir string) ([]*relver.Version, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, fmt.Errorf("gitstate.ListVersionTags: %q: %w", dir, err)
	}
	iter, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("gitstate.ListVersionTags: %q: %w", dir, err)
	}
	var ret []*relver.Version
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ver, parseErr := relver.Parse(ref.Name().Short()); parseErr == nil {
			ret = append(ret, ver)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gitstate.ListVersionTags: %q: %w", dir, err)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Cmp(*ret[j]) < 0
	})
	return ret, nil
}
