package deploy

import (
	"fmt"

	"github.com/conveyor-ci/conveyor/pkg/artifact"
	"github.com/conveyor-ci/conveyor/pkg/pipefile"
	"github.com/conveyor-ci/conveyor/pkg/relver"
)

// Invocation is the command a provider runs, separated from running it so
// that routing tests can assert on exactly what would execute.
type Invocation struct {
	Argv []string

	// Env is the variables added on top of the parent environment.
	Env []pipefile.EnvVar

	// NoArgvLog marks an argv that carries a secret; the executor
	// disables command-line logging and logs a redacted rendering
	// instead.
	NoArgvLog bool
}

// Environ renders the full child environment on top of the leg's.
func (inv *Invocation) Environ(base []string) []string {
	ret := append([]string(nil), base...)
	for _, kv := range inv.Env {
		ret = append(ret, kv.Name+"="+kv.Value)
	}
	return ret
}

// Plan assembles the command for one deploy entry.  files must already be
// resolved; the pages provider has no command and is not plannable.
func Plan(req Request, files []artifact.File) (*Invocation, error) {
	switch req.Entry.Provider {
	case "anaconda":
		return planAnaconda(req, files)
	case "pypi":
		return planPyPI(req, files)
	case "releases":
		return planReleases(req, files)
	case "script":
		return planScript(req)
	default:
		return nil, fmt.Errorf("provider %q has no command plan", req.Entry.Provider)
	}
}

func (req Request) secret() (string, error) {
	name := req.Entry.TokenEnv
	if name == "" {
		name = req.Entry.PasswordEnv
	}
	sec, ok := req.Secrets.Get(name)
	if !ok {
		return "", fmt.Errorf("secret %s was not resolved", name)
	}
	return sec.Value(), nil
}

// planAnaconda uploads conda packages to a channel label.  The anaconda
// CLI only takes the token on the command line, so the argv is marked
// unloggable.
func planAnaconda(req Request, files []artifact.File) (*Invocation, error) {
	token, err := req.secret()
	if err != nil {
		return nil, err
	}
	argv := []string{"anaconda", "-t", token, "upload", "--force",
		"--label", EffectiveLabel(req.Entry.Label, req.Tag)}
	if req.Entry.User != "" {
		argv = append(argv, "--user", req.Entry.User)
	}
	argv = append(argv, artifact.Paths(files)...)
	return &Invocation{Argv: argv, NoArgvLog: true}, nil
}

// planPyPI uploads sdists/wheels with twine; credentials travel in the
// child environment, never in the argv.
func planPyPI(req Request, files []artifact.File) (*Invocation, error) {
	password, err := req.secret()
	if err != nil {
		return nil, err
	}
	argv := append([]string{"twine", "upload"}, artifact.Paths(files)...)
	return &Invocation{
		Argv: argv,
		Env: []pipefile.EnvVar{
			{Name: "TWINE_USERNAME", Value: req.Entry.User},
			{Name: "TWINE_PASSWORD", Value: password},
			{Name: "TWINE_NON_INTERACTIVE", Value: "1"},
		},
	}, nil
}

// planReleases creates a source-control release for the tag with the gh
// CLI, marking it a prerelease when the tag says so.
func planReleases(req Request, files []artifact.File) (*Invocation, error) {
	token, err := req.secret()
	if err != nil {
		return nil, err
	}
	title := req.Tag
	if req.Project != "" {
		title = req.Project + " " + req.Tag
	}
	argv := []string{"gh", "release", "create", req.Tag,
		"--title", title,
		"--generate-notes"}
	if ver, verErr := relver.Parse(req.Tag); verErr == nil && ver.IsPrerelease() {
		argv = append(argv, "--prerelease")
	}
	if req.Entry.Repo != "" {
		argv = append(argv, "--repo", req.Entry.Repo)
	}
	argv = append(argv, artifact.Paths(files)...)
	return &Invocation{
		Argv: argv,
		Env:  []pipefile.EnvVar{{Name: "GITHUB_TOKEN", Value: token}},
	}, nil
}

// planScript runs an arbitrary command through the shell; the escape
// hatch for destinations conveyor has no provider for.
func planScript(req Request) (*Invocation, error) {
	if req.Entry.Script == "" {
		return nil, fmt.Errorf("script provider with no script")
	}
	return &Invocation{Argv: []string{"sh", "-c", req.Entry.Script}}, nil
}
