package main

import (
	"context"
	"os"

	"github.com/conveyor-ci/conveyor/pkg/gitstate"
	"github.com/conveyor-ci/conveyor/pkg/matrix"
	"github.com/conveyor-ci/conveyor/pkg/pipefile"
	"github.com/conveyor-ci/conveyor/pkg/runner"
)

// loadPipeline reads and validates the pipeline file.
func loadPipeline(path string) (*pipefile.Pipeline, error) {
	pipe, err := pipefile.Load(path)
	if err != nil {
		return nil, err
	}
	if err := pipe.Validate(); err != nil {
		return nil, err
	}
	return pipe, nil
}

// detectState inspects the checkout, then applies CI_BRANCH/CI_TAG/
// CI_COMMIT overrides from the calling environment, so that a hosted CI
// system can hand conveyor the state it already knows.
func detectState(ctx context.Context, dir string) (*gitstate.State, error) {
	state, err := gitstate.Detect(ctx, dir)
	if err != nil {
		return nil, err
	}
	state.Override(os.LookupEnv)
	return state, nil
}

// selectJobs expands the matrix, narrowed to the requested OS (empty
// keeps every leg) and, when jobName is non-empty, to the one named leg.
func selectJobs(pipe *pipefile.Pipeline, osName, jobName string) ([]matrix.Job, error) {
	jobs, err := matrix.Expand(pipe.Matrix)
	if err != nil {
		return nil, err
	}
	jobs = runner.FilterOS(jobs, osName)
	return runner.FilterName(jobs, jobName)
}
