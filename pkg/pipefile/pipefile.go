// Package pipefile deals with loading and validating the declarative
// pipeline description ("conveyor.yml"): the build matrix, the branch/tag
// filter, the provisioning recipe, the phase command lists, and the
// tag-gated deploy entries.
package pipefile

import (
	"fmt"
	"os"
	"strings"

	"sigs.k8s.io/yaml"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "conveyor.yml"

// Pipeline is the root of the pipeline description.
type Pipeline struct {
	// Project is the name of the package being built and shipped.
	Project string `json:"project"`

	Matrix   Matrix    `json:"matrix"`
	Branches *Branches `json:"branches,omitempty"`

	// Provision describes the conda bootstrap that runs before the
	// install phase.  When absent, the install commands are expected to
	// set up whatever they need themselves.
	Provision *Provision `json:"provision,omitempty"`

	Install      []string `json:"install,omitempty"`
	Script       []string `json:"script"`
	AfterSuccess []string `json:"after_success,omitempty"`
	BeforeDeploy []string `json:"before_deploy,omitempty"`

	Deploy []Deployment `json:"deploy,omitempty"`
}

// Matrix declares the job axes.  Jobs are the cartesian product of the
// axes; see the matrix package.
type Matrix struct {
	OS     []string `json:"os"`
	Python []string `json:"python"`

	// Env is an optional extra axis; each entry is a space-separated
	// list of VAR=VAL assignments that one cell of the axis injects.
	Env []string `json:"env,omitempty"`
}

// Provision describes the conda bootstrap.
type Provision struct {
	// Prefix overrides the per-job install prefix.
	Prefix string `json:"prefix,omitempty"`
	// BaseURL overrides where installer scripts are downloaded from.
	BaseURL string `json:"base_url,omitempty"`

	Channels []string `json:"channels,omitempty"`
	Packages []string `json:"packages,omitempty"`

	// MinConda is a version constraint (">=4.5") that the provisioned
	// conda must satisfy.
	MinConda string `json:"min_conda,omitempty"`
}

// Deployment is one publishing destination plus its gate.
type Deployment struct {
	// Provider is one of "anaconda", "pypi", "releases", "pages",
	// "script".
	Provider string `json:"provider"`

	// Files are glob patterns (after ${VAR} expansion against the job
	// environment) naming the artifacts to publish.  Used by anaconda,
	// pypi, and releases.
	Files []string `json:"files,omitempty"`

	// Label is the anaconda channel label: "dev", "main", or "auto" to
	// pick by tag shape.  Empty means "auto".
	Label string `json:"label,omitempty"`

	// User is the account to publish as (anaconda owner, pypi user).
	User string `json:"user,omitempty"`

	// Repo is the "owner/name" repository for releases, or the push URL
	// for pages.
	Repo string `json:"repo,omitempty"`

	// LocalDir is the directory whose contents the pages provider
	// publishes.
	LocalDir string `json:"local_dir,omitempty"`

	// Branch is the branch the pages provider pushes to; defaults to
	// "gh-pages".
	Branch string `json:"branch,omitempty"`

	// Script is the command the script provider runs.
	Script string `json:"script,omitempty"`

	// TokenEnv and PasswordEnv name the environment variables holding
	// the credentials.  Values never appear in the pipeline file.
	TokenEnv    string `json:"token_env,omitempty"`
	PasswordEnv string `json:"password_env,omitempty"`

	On Gate `json:"on"`
}

// Gate guards a deployment.
type Gate struct {
	// Tags requires the build to be for a tag.
	Tags bool `json:"tags,omitempty"`
	// Condition is a predicate in the condition package's language.
	Condition string `json:"condition,omitempty"`
}

// DestinationID names the destination a deployment publishes to, for
// routing decisions and plan output.
func (d Deployment) DestinationID() string {
	switch d.Provider {
	case "anaconda":
		label := d.Label
		if label == "" {
			label = "auto"
		}
		return "anaconda:" + label
	case "releases":
		return "github-release"
	default:
		return d.Provider
	}
}

// Load reads and strictly parses a pipeline file.  Unknown keys are
// errors; a typoed gate must not silently widen a deploy.
func Load(path string) (*Pipeline, error) {
	if path == "" {
		path = DefaultPath
	}
	yamlBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(yamlBytes)
}

// Parse parses pipeline YAML.
func Parse(yamlBytes []byte) (*Pipeline, error) {
	var pipe Pipeline
	if err := yaml.Unmarshal(yamlBytes, &pipe, yaml.DisallowUnknownFields); err != nil {
		return nil, fmt.Errorf("pipefile: %w", err)
	}
	return &pipe, nil
}

// EnvVar is a parsed VAR=VAL assignment.
type EnvVar struct {
	Name  string
	Value string
}

// ParseEnvEntry parses one matrix.env cell: a space-separated list of
// VAR=VAL assignments.
func ParseEnvEntry(entry string) ([]EnvVar, error) {
	var vars []EnvVar
	for _, field := range strings.Fields(entry) {
		name, value, ok := strings.Cut(field, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("pipefile: %q is not a VAR=VAL assignment", field)
		}
		vars = append(vars, EnvVar{Name: name, Value: value})
	}
	return vars, nil
}
