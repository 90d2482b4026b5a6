package pipefile

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/conveyor-ci/conveyor/pkg/condition"
)

//nolint:gochecknoglobals // Would be 'const'.
var knownOS = map[string]bool{
	"linux": true,
	"osx":   true,
}

//nolint:gochecknoglobals // Would be 'const'.
var knownProviders = map[string]bool{
	"anaconda": true,
	"pypi":     true,
	"releases": true,
	"pages":    true,
	"script":   true,
}

// BranchFilter returns the configured branch/tag filter, or the default
// one when the pipeline file has no branches section.
func (p *Pipeline) BranchFilter() *Branches {
	if p.Branches != nil {
		return p.Branches
	}
	return DefaultBranches()
}

// Validate checks the whole pipeline description and returns every
// problem found, aggregated, rather than stopping at the first.
func (p *Pipeline) Validate() error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if p.Project == "" {
		fail("project: must be set")
	}

	if len(p.Matrix.OS) == 0 {
		fail("matrix.os: at least one operating system is required")
	}
	for _, osName := range p.Matrix.OS {
		if !knownOS[osName] {
			fail("matrix.os: unknown operating system %q", osName)
		}
	}
	if len(p.Matrix.Python) == 0 {
		fail("matrix.python: at least one runtime version is required")
	}
	for _, entry := range p.Matrix.Env {
		if _, err := ParseEnvEntry(entry); err != nil {
			fail("matrix.env: %v", err)
		}
	}

	for _, entry := range p.BranchFilter().Only {
		if _, _, err := entryRegexp(entry); err != nil {
			fail("branches.only: %v", err)
		}
	}

	if p.Provision != nil && p.Provision.MinConda != "" {
		if _, err := semver.NewConstraint(p.Provision.MinConda); err != nil {
			fail("provision.min_conda: %q: %v", p.Provision.MinConda, err)
		}
	}

	if len(p.Script) == 0 {
		fail("script: at least one command is required")
	}

	for i, d := range p.Deploy {
		where := fmt.Sprintf("deploy[%d]", i)
		if !knownProviders[d.Provider] {
			fail("%s: unknown provider %q", where, d.Provider)
			continue
		}
		switch d.Provider {
		case "anaconda":
			switch d.Label {
			case "", "auto", "dev", "main":
			default:
				fail("%s: label must be \"dev\", \"main\", or \"auto\", not %q", where, d.Label)
			}
			if len(d.Files) == 0 {
				fail("%s: files: must name the packages to upload", where)
			}
			if d.TokenEnv == "" {
				fail("%s: token_env: must name the credential variable", where)
			}
		case "pypi":
			if len(d.Files) == 0 {
				fail("%s: files: must name the distributions to upload", where)
			}
			if d.User == "" {
				fail("%s: user: must be set", where)
			}
			if d.PasswordEnv == "" {
				fail("%s: password_env: must name the credential variable", where)
			}
		case "releases":
			if len(d.Files) == 0 {
				fail("%s: files: must name the release assets", where)
			}
			if d.TokenEnv == "" {
				fail("%s: token_env: must name the credential variable", where)
			}
		case "pages":
			if d.LocalDir == "" {
				fail("%s: local_dir: must name the directory to publish", where)
			}
			if d.Repo == "" {
				fail("%s: repo: must name the repository to push to", where)
			}
			if d.TokenEnv == "" {
				fail("%s: token_env: must name the credential variable", where)
			}
		case "script":
			if d.Script == "" {
				fail("%s: script: must be set", where)
			}
		}
		if d.On.Condition != "" {
			if _, err := condition.Parse(d.On.Condition); err != nil {
				fail("%s: on.condition: %v", where, err)
			}
		}
	}

	return utilerrors.NewAggregate(errs)
}

// Warnings returns non-fatal observations about the pipeline
// description.
func (p *Pipeline) Warnings() []string {
	var warnings []string
	for i, d := range p.Deploy {
		if !d.On.Tags {
			warnings = append(warnings,
				fmt.Sprintf("deploy[%d] (%s): not tag-gated; it will also publish branch builds",
					i, d.DestinationID()))
		}
	}
	if len(p.Deploy) > 0 && p.Provision == nil {
		warnings = append(warnings,
			"deploy entries present but no provision section; uploader tools must already be on PATH")
	}
	return warnings
}
