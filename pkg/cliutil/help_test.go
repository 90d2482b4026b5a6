package cliutil_test

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/conveyor-ci/conveyor/pkg/cliutil"
)

func TestWrap(t *testing.T) {
	t.Parallel()
	type testcase struct {
		InputWidth int
		InputStr   string
		Expected   string
	}
	testcases := map[string]testcase{
		"zero-width": {
			InputWidth: 0,
			InputStr:   strings.Repeat("spam ", 40),
			Expected:   strings.Repeat("spam ", 40),
		},
		"short": {
			InputWidth: 80,
			InputStr:   "fits on one line",
			Expected:   "fits on one line",
		},
		"sentence-spacing": {
			InputWidth: 30,
			InputStr:   "One sentence.  Two sentences, and the second one wraps.",
			Expected:   "One sentence.  Two\nsentences, and the\nsecond one wraps.",
		},
		"long-word": {
			InputWidth: 20,
			InputStr:   "a bcdefghijklmnopqrstuvwxyz c",
			Expected:   "a\nbcdefghijklmnopqrstuvwxyz\nc",
		},
	}
	for tcName, tcData := range testcases {
		tcData := tcData
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tcData.Expected, cliutil.Wrap(tcData.InputWidth, tcData.InputStr))
		})
	}
}

//nolint:paralleltest // can't use .Parallel() with .Setenv()
func TestHelpTemplate(t *testing.T) {
	t.Setenv("COLUMNS", "80")
	noopRunE := func(_ *cobra.Command, _ []string) error {
		return nil
	}
	type testcase struct {
		InputCmd     *cobra.Command
		ExpectedHelp string
	}
	testcases := map[string]testcase{
		"leaf": {
			InputCmd: func() *cobra.Command {
				cmd := &cobra.Command{
					Use:   "conveyor run [flags]",
					Args:  cobra.ExactArgs(0),
					Short: "Run the build matrix",
					Long: "Run every leg of the build matrix on this machine.  Each leg " +
						"provisions its own interpreter, so the first run can take a " +
						"while before any output shows up.",
					RunE: noopRunE,
				}
				cmd.Flags().BoolP("verbose", "v", false, "Log every provisioning step")
				cmd.Flags().StringP("job", "j", "", "Run only the leg named `NAME` instead "+
					"of every leg that matches the host OS")
				return cmd
			}(),
			ExpectedHelp: "" +
				// 0      1         2         3         4         5         6         7         8
				// 345678901234567890123456789012345678901234567890123456789012345678901234567890
				//                                                                          \n"  \n"
				"Usage: conveyor run [flags]\n" +
				"Run the build matrix\n" +
				"\n" +
				"Run every leg of the build matrix on this machine.  Each leg provisions\n" +
				"its own interpreter, so the first run can take a while before any output\n" +
				"shows up.\n" +
				"\n" +
				"Flags:\n" +
				"  -j, --job NAME   Run only the leg named NAME instead of every leg that\n" +
				"                   matches the host OS\n" +
				"  -v, --verbose    Log every provisioning step\n" +
				"",
		},
		"subcommands": {
			InputCmd: func() *cobra.Command {
				cmd := &cobra.Command{
					Use:   "conveyor {[flags]|SUBCOMMAND...}",
					Args:  cobra.ExactArgs(0),
					Short: "Build, test, and publish a conda project",
					RunE:  noopRunE,
				}
				cmd.AddCommand(&cobra.Command{
					Use:   "provision [flags]",
					Args:  cobra.ExactArgs(0),
					Short: "Create the conda environments for each leg of the matrix without running anything", //nolint:lll
					RunE:  noopRunE,
				})
				cmd.AddCommand(&cobra.Command{
					Use:   "lint [flags]",
					Args:  cobra.ExactArgs(0),
					Short: "Check the pipeline file",
					RunE:  noopRunE,
				})
				return cmd
			}(),
			ExpectedHelp: "" +
				// 0      1         2         3         4         5         6         7         8
				// 345678901234567890123456789012345678901234567890123456789012345678901234567890
				//                                                                          \n"  \n"
				"Usage: conveyor {[flags]|SUBCOMMAND...}\n" +
				"Build, test, and publish a conda project\n" +
				"\n" +
				"Available Commands:\n" +
				"  lint          Check the pipeline file\n" +
				"  provision     Create the conda environments for each leg of the matrix\n" +
				"                without running anything\n" +
				"\n" +
				"Use \"conveyor [command] --help\" for more information about a command.\n" +
				"",
		},
	}
	for tcName, tcData := range testcases {
		tcData := tcData
		t.Run(tcName, func(t *testing.T) {
			tcData.InputCmd.SetHelpTemplate(cliutil.HelpTemplate)

			var out strings.Builder
			tcData.InputCmd.SetOutput(&out)
			tcData.InputCmd.HelpFunc()(tcData.InputCmd, []string{"--help"})

			assert.Equal(t, tcData.ExpectedHelp, out.String())
		})
	}
}
