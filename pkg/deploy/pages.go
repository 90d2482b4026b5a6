package deploy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/datawire/dlib/dlog"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/conveyor-ci/conveyor/pkg/reproducible"
)

// DefaultPagesBranch is where static-site hosting serves from.
const DefaultPagesBranch = "gh-pages"

// pagesDeploy publishes a local docs directory as the sole content of the
// pages branch.  It is implemented on go-git rather than a git binary: the
// whole history rewrite happens in memory and touches the network exactly
// once, at push time.
func pagesDeploy(ctx context.Context, req Request) error {
	branch := req.Entry.Branch
	if branch == "" {
		branch = DefaultPagesBranch
	}
	remoteURL := pagesRemoteURL(req.Entry.Repo)
	docsDir := req.resolvePath(req.Entry.LocalDir)

	localFiles, err := listLocalFiles(docsDir)
	if err != nil {
		return err
	}
	if len(localFiles) == 0 {
		return fmt.Errorf("docs dir %q is empty", docsDir)
	}
	if req.DryRun {
		dlog.Infof(ctx, "deploy pages: dry run, would push %d files to %q branch %q",
			len(localFiles), remoteURL, branch)
		return nil
	}

	token, err := req.secret()
	if err != nil {
		return err
	}
	var auth transport.AuthMethod
	if strings.HasPrefix(remoteURL, "http://") || strings.HasPrefix(remoteURL, "https://") {
		auth = &githttp.BasicAuth{Username: "x-access-token", Password: token}
	}

	storer := memory.NewStorage()
	worktreeFS := memfs.New()
	repo, err := git.CloneContext(ctx, storer, worktreeFS, &git.CloneOptions{
		URL:           remoteURL,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Auth:          auth,
	})
	switch {
	case err == nil:
		// existing branch, history continues
	case errors.Is(err, transport.ErrEmptyRemoteRepository),
		errors.Is(err, plumbing.ErrReferenceNotFound),
		errors.Is(err, git.NoMatchingRefSpecError{}):
		dlog.Infof(ctx, "deploy pages: branch %q not found upstream, starting fresh", branch)
		storer = memory.NewStorage()
		worktreeFS = memfs.New()
		repo, err = git.Init(storer, worktreeFS)
		if err != nil {
			return err
		}
		if _, err := repo.CreateRemote(&config.RemoteConfig{
			Name: "origin",
			URLs: []string{remoteURL},
		}); err != nil {
			return err
		}
	default:
		return fmt.Errorf("clone %q: %w", remoteURL, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return err
	}

	// The branch's content is replaced wholesale, so stale files from the
	// previous publish don't linger.
	entries, err := worktreeFS.ReadDir("/")
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name() == git.GitDirName {
			continue
		}
		if err := util.RemoveAll(worktreeFS, entry.Name()); err != nil {
			return err
		}
	}
	for relPath, srcPath := range localFiles {
		data, err := os.ReadFile(srcPath)
		if err != nil {
			return err
		}
		info, err := os.Stat(srcPath)
		if err != nil {
			return err
		}
		if err := util.WriteFile(worktreeFS, relPath, data, info.Mode().Perm()); err != nil {
			return err
		}
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return err
	}

	msg := "Deploy docs"
	if req.Tag != "" {
		msg += " for " + req.Tag
	}
	when := reproducible.Now()
	_, err = wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "conveyor",
			Email: "conveyor@localhost",
			When:  when,
		},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return err
	}

	head, err := repo.Head()
	if err != nil {
		return err
	}
	refSpec := config.RefSpec(fmt.Sprintf("+%s:refs/heads/%s", head.Name(), branch))
	dlog.Infof(ctx, "deploy pages: pushing %d files to %q branch %q",
		len(localFiles), remoteURL, branch)
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{refSpec},
		Auth:       auth,
		Force:      true,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		dlog.Infof(ctx, "deploy pages: already up to date")
		return nil
	}
	return err
}

// pagesRemoteURL turns an "owner/name" shorthand in to a clone URL;
// anything that already looks like a URL passes through.
func pagesRemoteURL(repo string) string {
	if strings.Contains(repo, "://") || strings.HasPrefix(repo, "git@") {
		return repo
	}
	return "https://github.com/" + repo + ".git"
}

// listLocalFiles maps branch-relative paths to absolute source paths for
// every regular file under dir.
func listLocalFiles(dir string) (map[string]string, error) {
	ret := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		ret[filepath.ToSlash(relPath)] = path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("docs dir %q: %w", dir, err)
	}
	return ret, nil
}
