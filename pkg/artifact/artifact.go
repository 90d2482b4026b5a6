// Package artifact deals with locating the files that a deployment
// publishes.
//
// Pipeline files name artifacts with shell-style glob patterns that may
// reference build variables ("dist/molpack-${CI_TAG}.tar.gz").  Resolution
// expands the variables, then the globs, and refuses to come back empty: a
// deployment that "succeeds" after uploading nothing is the most expensive
// possible way to discover a typo in a pattern.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File is a resolved artifact.
type File struct {
	// Path is the artifact's path as the glob matched it.
	Path string

	// Size is the artifact's size in bytes.
	Size int64

	// SHA256 is the hex digest of the artifact's content.
	SHA256 string
}

func (f File) String() string {
	return fmt.Sprintf("%s (%d bytes, sha256:%s)", f.Path, f.Size, f.SHA256)
}

// Resolve expands each pattern with expand (os.Expand semantics; pass the
// build's variable lookup) and then as a filepath glob, returning the
// matched regular files in pattern order with duplicates dropped.
//
// A pattern that matches nothing is an error, as is a literal path that
// does not exist.
func Resolve(patterns []string, expand func(name string) string) ([]File, error) {
	var ret []File
	seen := make(map[string]struct{})
	for _, pattern := range patterns {
		expanded := os.Expand(pattern, expand)
		matches, err := filepath.Glob(expanded)
		if err != nil {
			return nil, fmt.Errorf("artifact.Resolve: %q: %w", pattern, err)
		}
		added := 0
		for _, match := range matches {
			if _, dup := seen[match]; dup {
				added++
				continue
			}
			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("artifact.Resolve: %q: %w", pattern, err)
			}
			if !info.Mode().IsRegular() {
				continue
			}
			sum, err := hashFile(match)
			if err != nil {
				return nil, fmt.Errorf("artifact.Resolve: %q: %w", pattern, err)
			}
			seen[match] = struct{}{}
			ret = append(ret, File{
				Path:   match,
				Size:   info.Size(),
				SHA256: sum,
			})
			added++
		}
		if added == 0 {
			return nil, fmt.Errorf("artifact.Resolve: %q (expanded to %q) matched no files", pattern, expanded)
		}
	}
	return ret, nil
}

// Paths projects files down to their paths, for handing to a provider's
// command line.
func Paths(files []File) []string {
	ret := make([]string, 0, len(files))
	for _, f := range files {
		ret = append(ret, f.Path)
	}
	return ret
}

func hashFile(path string) (string, error) {
	reader, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = reader.Close()
	}()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, reader); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
