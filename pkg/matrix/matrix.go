// Package matrix deals with expanding a pipeline's axis lists in to the
// concrete list of jobs ("legs") that a build runs.
//
// Every axis value combines with every value of every other axis; a build
// with two operating systems and two interpreter versions therefore runs
// four legs.  The expansion order is deterministic: the OS axis is the
// outer loop, then the interpreter axis, then the env axis, each in the
// order the pipeline file lists them.
package matrix

import (
	"fmt"

	"github.com/conveyor-ci/conveyor/pkg/pipefile"
)

// Job identifies a single leg of the build matrix.
type Job struct {
	// OS is the operating system the leg runs on ("linux" or "osx").
	OS string

	// Python is the interpreter version the leg provisions ("2.7", "3.6", ...).
	Python string

	// Extra is the env-axis cell for this leg; empty when the pipeline
	// declares no env axis.
	Extra []pipefile.EnvVar
}

// Name returns a short stable identifier for the job, suitable for log
// prefixes and state directories; e.g. "linux-py2.7".
func (job Job) Name() string {
	name := job.OS + "-py" + job.Python
	for _, kv := range job.Extra {
		name += "-" + kv.Value
	}
	return name
}

// Expand computes the cartesian product of the matrix axes.
//
// An absent env axis contributes a single empty cell rather than zeroing
// the product out.  Axis values must already have passed
// (*pipefile.Pipeline).Validate; Expand still refuses duplicate cells
// because they would produce two legs with the same name.
func Expand(m pipefile.Matrix) ([]Job, error) {
	envCells := make([][]pipefile.EnvVar, 0, len(m.Env)+1)
	if len(m.Env) == 0 {
		envCells = append(envCells, nil)
	}
	for _, entry := range m.Env {
		cell, err := pipefile.ParseEnvEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("matrix.Expand: %w", err)
		}
		envCells = append(envCells, cell)
	}

	jobs := make([]Job, 0, len(m.OS)*len(m.Python)*len(envCells))
	seen := make(map[string]struct{}, cap(jobs))
	for _, os := range m.OS {
		for _, python := range m.Python {
			for _, cell := range envCells {
				job := Job{
					OS:     os,
					Python: python,
					Extra:  cell,
				}
				if _, dup := seen[job.Name()]; dup {
					return nil, fmt.Errorf("matrix.Expand: duplicate job %q", job.Name())
				}
				seen[job.Name()] = struct{}{}
				jobs = append(jobs, job)
			}
		}
	}
	return jobs, nil
}
