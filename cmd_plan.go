package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/conveyor-ci/conveyor/pkg/cliutil"
	"github.com/conveyor-ci/conveyor/pkg/deploy"
	"github.com/conveyor-ci/conveyor/pkg/drawer"
	"github.com/conveyor-ci/conveyor/pkg/gitstate"
	"github.com/conveyor-ci/conveyor/pkg/matrix"
	"github.com/conveyor-ci/conveyor/pkg/pipefile"
	"github.com/conveyor-ci/conveyor/pkg/relver"
	"github.com/conveyor-ci/conveyor/pkg/runner"
)

func init() {
	var flags struct {
		File   string
		Tag    string
		Branch string
		Format cliutil.Choice
		DOT    string
	}
	flags.Format = cliutil.Choice{Value: "table", Choices: []string{"table", "yaml"}}
	cmd := &cobra.Command{
		Use:   "plan [flags]",
		Short: "Show what a build of this checkout would do, without running it",
		Long: "Expand the build matrix, evaluate every deploy gate against the " +
			"checkout's branch and tag, and print which legs run and where each " +
			"leg publishes.  Use --tag to rehearse a release before pushing the " +
			"tag for real.",
		Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pipe, err := loadPipeline(flags.File)
			if err != nil {
				return err
			}

			state, err := detectState(ctx, ".")
			if err != nil {
				if flags.Tag == "" && flags.Branch == "" {
					return err
				}
				dlog.Infof(ctx, "not a git checkout (%v); planning from flags alone", err)
				state = &gitstate.State{}
			}
			if flags.Branch != "" {
				state.Branch = flags.Branch
			}
			if flags.Tag != "" {
				state.Tag = flags.Tag
			}

			filterOK, err := pipe.BranchFilter().Match(state.Branch, state.Tag)
			if err != nil {
				return err
			}

			jobs, err := matrix.Expand(pipe.Matrix)
			if err != nil {
				return err
			}

			r := &runner.Runner{Pipe: pipe, State: state}
			legs := make([]drawer.Leg, 0, len(jobs))
			for _, job := range jobs {
				env := r.JobEnv(job, "")
				decisions, err := deploy.Route(pipe.Deploy, state, env.Get)
				if err != nil {
					return err
				}
				deploys := false
				for _, d := range decisions {
					deploys = deploys || d.Matched
				}
				legs = append(legs, drawer.Leg{
					Name:      job.Name(),
					Phases:    legPhases(pipe, deploys),
					Decisions: decisions,
				})
			}

			warnings := pipe.Warnings()
			warnings = append(warnings, tagWarnings(state)...)

			if flags.DOT != "" {
				if err := writeDOT(flags.DOT, drawer.Plan{Project: pipe.Project, Legs: legs}); err != nil {
					return err
				}
			}

			if flags.Format.Value == "yaml" {
				return printPlanYAML(os.Stdout, pipe, state, filterOK, legs, warnings)
			}
			return printPlanTable(os.Stdout, pipe, state, filterOK, legs, warnings)
		},
	}
	cmd.Flags().StringVarP(&flags.File, "file", "f", pipefile.DefaultPath,
		"Read the pipeline description from `PIPEFILE`")
	cmd.Flags().StringVar(&flags.Tag, "tag", "",
		"Plan for `TAG` instead of the tag (if any) pointing at HEAD")
	cmd.Flags().StringVar(&flags.Branch, "branch", "",
		"Plan for `BRANCH` instead of the checked-out branch")
	cmd.Flags().Var(&flags.Format, "format",
		"Write the plan in this format")
	cmd.Flags().StringVar(&flags.DOT, "dot", "",
		"Also write the plan as a Graphviz document to `FILE` (\"-\" for stdout)")

	argparser.AddCommand(cmd)
}

// legPhases lists the phases a leg would run, for plan output.
func legPhases(pipe *pipefile.Pipeline, deploys bool) []string {
	var phases []string
	if pipe.Provision != nil {
		phases = append(phases, string(runner.PhaseProvision))
	}
	if len(pipe.Install) > 0 {
		phases = append(phases, string(runner.PhaseInstall))
	}
	phases = append(phases, string(runner.PhaseScript))
	if len(pipe.AfterSuccess) > 0 {
		phases = append(phases, string(runner.PhaseAfterSuccess))
	}
	if deploys && len(pipe.BeforeDeploy) > 0 {
		phases = append(phases, string(runner.PhaseBeforeDeploy))
	}
	return phases
}

// tagWarnings flags tags that will publish somewhere surprising.
func tagWarnings(state *gitstate.State) []string {
	if !state.IsTagBuild() {
		return nil
	}
	ver, err := relver.Parse(state.Tag)
	if err != nil {
		return []string{fmt.Sprintf(
			"tag %q is not a release version; anaconda uploads would land on the \"dev\" label",
			state.Tag)}
	}
	existing, err := gitstate.ListVersionTags(".")
	if err != nil || len(existing) == 0 {
		return nil
	}
	if newest := existing[len(existing)-1]; newest.Cmp(*ver) > 0 {
		return []string{fmt.Sprintf(
			"tag %s is older than existing release tag %s; \"latest\" style pointers will not move",
			ver, newest)}
	}
	return nil
}

func writeDOT(path string, plan drawer.Plan) error {
	if path == "-" {
		return drawer.DOT(plan, os.Stdout)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := drawer.DOT(plan, file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func printPlanTable(out io.Writer, pipe *pipefile.Pipeline, state *gitstate.State, filterOK bool,
	legs []drawer.Leg, warnings []string,
) error {
	fmt.Fprintf(out, "Project: %s\n", pipe.Project)
	if state.Commit != "" {
		fmt.Fprintf(out, "Commit:  %s\n", state.Commit)
	}
	if state.Branch != "" {
		fmt.Fprintf(out, "Branch:  %s\n", state.Branch)
	}
	if state.Tag != "" {
		fmt.Fprintf(out, "Tag:     %s\n", state.Tag)
	}
	if filterOK {
		fmt.Fprintln(out, "Filter:  matched; a push of this ref builds")
	} else {
		fmt.Fprintln(out, "Filter:  NOT matched; a push of this ref does not build")
	}
	fmt.Fprintln(out)

	table := tabwriter.NewWriter(
		out, // output
		0,   // minwidth
		1,   // tabwidth
		2,   // padding
		' ', // padchar
		0)   // flags
	for _, leg := range legs {
		if len(leg.Decisions) == 0 {
			fmt.Fprintf(table, "  %s\t(no deploy entries)\t\t\n", leg.Name)
			continue
		}
		for _, d := range leg.Decisions {
			action := "skip"
			if d.Matched {
				action = "publish"
			}
			fmt.Fprintf(table, "  %s\t%s\t%s\t%s\n", leg.Name, d.ID, action, d.Reason)
		}
	}
	if err := table.Flush(); err != nil {
		return err
	}

	for _, warning := range warnings {
		fmt.Fprintf(out, "\nwarning: %s\n", warning)
	}
	return nil
}

func printPlanYAML(out io.Writer, pipe *pipefile.Pipeline, state *gitstate.State, filterOK bool,
	legs []drawer.Leg, warnings []string,
) error {
	type yamlDest struct {
		ID      string `yaml:"id"`
		Publish bool   `yaml:"publish"`
		Reason  string `yaml:"reason"`
	}
	type yamlLeg struct {
		Name         string     `yaml:"name"`
		Phases       []string   `yaml:"phases,omitempty"`
		Destinations []yamlDest `yaml:"destinations,omitempty"`
	}
	doc := struct {
		Project     string    `yaml:"project"`
		Commit      string    `yaml:"commit,omitempty"`
		Branch      string    `yaml:"branch,omitempty"`
		Tag         string    `yaml:"tag,omitempty"`
		FilterMatch bool      `yaml:"filter_match"`
		Legs        []yamlLeg `yaml:"legs"`
		Warnings    []string  `yaml:"warnings,omitempty"`
	}{
		Project:     pipe.Project,
		Commit:      state.Commit,
		Branch:      state.Branch,
		Tag:         state.Tag,
		FilterMatch: filterOK,
		Warnings:    warnings,
	}
	for _, leg := range legs {
		yleg := yamlLeg{
			Name:   leg.Name,
			Phases: leg.Phases,
		}
		for _, d := range leg.Decisions {
			yleg.Destinations = append(yleg.Destinations, yamlDest{
				ID:      d.ID,
				Publish: d.Matched,
				Reason:  d.Reason,
			})
		}
		doc.Legs = append(doc.Legs, yleg)
	}

	bs, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if _, err := out.Write(bs); err != nil {
		return err
	}
	return nil
}
