// Package provision deals with bootstrapping the per-job conda
// environment that build phases run in.
//
// Provisioning downloads the right miniconda installer for the job's OS
// and interpreter version (caching it across runs), installs it in to a
// per-job prefix, points conda at the pipeline's channels, upgrades conda
// itself, gates on the pipeline's minimum conda version, and installs the
// pipeline's package list.  A job whose provisioning fails runs nothing
// else.
package provision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/adrg/xdg"
	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"

	"github.com/conveyor-ci/conveyor/pkg/matrix"
	"github.com/conveyor-ci/conveyor/pkg/pipefile"
)

// DefaultBaseURL is where installer scripts come from when the pipeline
// file doesn't say otherwise.
const DefaultBaseURL = "https://repo.anaconda.com/miniconda"

// Provisioner installs and configures conda prefixes.
type Provisioner struct {
	// Spec is the pipeline's provision section; nil means all defaults.
	Spec *pipefile.Provision

	// CacheDir overrides where downloaded installers are kept.  Empty
	// means the user's XDG cache directory.
	CacheDir string

	// HTTPClient overrides the client used for installer downloads.
	HTTPClient *http.Client
}

func (p *Provisioner) fillDefaults() {
	if p.Spec == nil {
		p.Spec = &pipefile.Provision{}
	}
	if p.HTTPClient == nil {
		p.HTTPClient = http.DefaultClient
	}
}

// HTTPError is a non-200 response to an installer download.
type HTTPError struct {
	Status     string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %s", e.Status)
}

// InstallerName returns the miniconda installer filename for a job:
// Miniconda2 for a 2.x interpreter, Miniconda3 otherwise, crossed with the
// job's operating system.
func InstallerName(jobOS, python string) (string, error) {
	var gen string
	switch {
	case strings.HasPrefix(python, "2."):
		gen = "Miniconda2"
	case strings.HasPrefix(python, "3."):
		gen = "Miniconda3"
	default:
		return "", fmt.Errorf("provision: no installer for python version %q", python)
	}
	var osName string
	switch jobOS {
	case "linux":
		osName = "Linux"
	case "osx":
		osName = "MacOSX"
	default:
		return "", fmt.Errorf("provision: no installer for os %q", jobOS)
	}
	return fmt.Sprintf("%s-latest-%s-x86_64.sh", gen, osName), nil
}

// InstallerURL returns the download URL for a job's installer.
func (p *Provisioner) InstallerURL(job matrix.Job) (string, error) {
	p.fillDefaults()
	name, err := InstallerName(job.OS, job.Python)
	if err != nil {
		return "", err
	}
	base := p.Spec.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimSuffix(base, "/") + "/" + name, nil
}

// FetchInstaller returns a local path to the job's installer script,
// downloading it in to the cache if it isn't there already.  The SHA-256
// of the script that will be executed is always logged, cached or not.
func (p *Provisioner) FetchInstaller(ctx context.Context, job matrix.Job) (_ string, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("provision: fetch installer: %w", err)
		}
	}()
	p.fillDefaults()

	name, err := InstallerName(job.OS, job.Python)
	if err != nil {
		return "", err
	}
	var cachePath string
	if p.CacheDir != "" {
		if err := os.MkdirAll(p.CacheDir, 0o755); err != nil {
			return "", err
		}
		cachePath = filepath.Join(p.CacheDir, name)
	} else {
		cachePath, err = xdg.CacheFile(filepath.Join("conveyor", "installers", name))
		if err != nil {
			return "", err
		}
	}

	if _, statErr := os.Stat(cachePath); statErr == nil {
		dlog.Infof(ctx, "provision: using cached installer %q", cachePath)
	} else {
		requestURL, err := p.InstallerURL(job)
		if err != nil {
			return "", err
		}
		dlog.Infof(ctx, "provision: downloading %q", requestURL)
		if err := p.download(ctx, requestURL, cachePath); err != nil {
			return "", fmt.Errorf("GET %q => %w", requestURL, err)
		}
	}

	sum, err := hashFile(cachePath)
	if err != nil {
		return "", err
	}
	dlog.Infof(ctx, "provision: installer sha256:%s", sum)
	return cachePath, nil
}

func (p *Provisioner) download(ctx context.Context, requestURL, destPath string) (err error) {
	maybeSetErr := func(_err error) {
		if _err != nil && err == nil {
			err = _err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return err
	}
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		maybeSetErr(resp.Body.Close())
	}()
	if resp.StatusCode != http.StatusOK {
		return &HTTPError{Status: resp.Status, StatusCode: resp.StatusCode}
	}

	// Download to a temporary name so an interrupted transfer never
	// looks like a cached installer.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), "."+filepath.Base(destPath)+".")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), destPath)
}

// Provision makes sure prefix holds a configured conda environment for
// job.  An existing prefix is reused as-is unless reprovision is set, in
// which case it is deleted and rebuilt from scratch.
func (p *Provisioner) Provision(ctx context.Context, job matrix.Job, prefix string, reprovision bool) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("provision %q: %w", prefix, err)
		}
	}()
	p.fillDefaults()

	condaBin := filepath.Join(prefix, "bin", "conda")
	if _, statErr := os.Stat(condaBin); statErr == nil {
		if !reprovision {
			dlog.Infof(ctx, "provision: reusing existing prefix %q", prefix)
			return p.CheckCondaVersion(ctx, condaBin)
		}
		dlog.Infof(ctx, "provision: removing existing prefix %q", prefix)
		if err := os.RemoveAll(prefix); err != nil {
			return err
		}
	}

	installer, err := p.FetchInstaller(ctx, job)
	if err != nil {
		return err
	}
	if err := runCmd(ctx, "bash", installer, "-b", "-p", prefix); err != nil {
		return err
	}

	if err := runCmd(ctx, condaBin, "config", "--set", "always_yes", "yes", "--set", "changeps1", "no"); err != nil {
		return err
	}
	for _, channel := range p.Spec.Channels {
		if err := runCmd(ctx, condaBin, "config", "--add", "channels", channel); err != nil {
			return err
		}
	}
	if err := runCmd(ctx, condaBin, "update", "-q", "conda"); err != nil {
		return err
	}
	if err := p.CheckCondaVersion(ctx, condaBin); err != nil {
		return err
	}

	installArgs := append([]string{"install", "-q", "python=" + job.Python}, p.Spec.Packages...)
	return runCmd(ctx, condaBin, installArgs...)
}

// CheckCondaVersion runs `conda --version` and checks the reported
// version against the pipeline's min_conda constraint.  No constraint, no
// gate.
func (p *Provisioner) CheckCondaVersion(ctx context.Context, condaBin string) error {
	p.fillDefaults()
	if p.Spec.MinConda == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(p.Spec.MinConda)
	if err != nil {
		return fmt.Errorf("min_conda: %w", err)
	}

	out, err := dexec.CommandContext(ctx, condaBin, "--version").Output()
	if err != nil {
		return fmt.Errorf("conda --version: %w", err)
	}
	verStr := strings.TrimSpace(string(out))
	verStr = strings.TrimPrefix(verStr, "conda ")
	ver, err := semver.NewVersion(verStr)
	if err != nil {
		return fmt.Errorf("conda --version: parse %q: %w", verStr, err)
	}
	if !constraint.Check(ver) {
		return fmt.Errorf("conda %s does not satisfy min_conda %q", ver, p.Spec.MinConda)
	}
	dlog.Debugf(ctx, "provision: conda %s satisfies min_conda %q", ver, p.Spec.MinConda)
	return nil
}

func runCmd(ctx context.Context, name string, args ...string) error {
	cmd := dexec.CommandContext(ctx, name, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func hashFile(path string) (_ string, err error) {
	maybeSetErr := func(_err error) {
		if _err != nil && err == nil {
			err = _err
		}
	}
	reader, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		maybeSetErr(reader.Close())
	}()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, reader); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
