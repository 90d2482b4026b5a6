package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/conveyor-ci/conveyor/pkg/cliutil"
	"github.com/conveyor-ci/conveyor/pkg/pipefile"
)

func init() {
	var flags struct {
		File string
	}
	cmd := &cobra.Command{
		Use:   "lint [flags]",
		Short: "Check the pipeline file for problems without running anything",
		Long: "Parse the pipeline file and report every problem in it: unknown " +
			"fields, unknown providers and operating systems, missing required " +
			"fields, and malformed gate conditions.  The exit status is non-zero " +
			"if any errors (not warnings) are found.",
		Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipe, err := pipefile.Load(flags.File)
			if err != nil {
				return err
			}

			problems := 0
			if err := pipe.Validate(); err != nil {
				var agg utilerrors.Aggregate
				if errors.As(err, &agg) {
					for _, e := range agg.Errors() {
						fmt.Printf("%s: error: %v\n", flags.File, e)
						problems++
					}
				} else {
					fmt.Printf("%s: error: %v\n", flags.File, err)
					problems++
				}
			}
			for _, warning := range pipe.Warnings() {
				fmt.Printf("%s: warning: %s\n", flags.File, warning)
			}

			if problems > 0 {
				return fmt.Errorf("%s: %d problems", flags.File, problems)
			}
			fmt.Printf("%s: OK\n", flags.File)
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.File, "file", "f", pipefile.DefaultPath,
		"Read the pipeline description from `PIPEFILE`")

	argparser.AddCommand(cmd)
}
