package cliutil

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func init() {
	cobra.AddTemplateFunc("getTerminalWidth", GetTerminalWidth)
	cobra.AddTemplateFunc("wrap", Wrap)
	cobra.AddTemplateFunc("wrapIndent", WrapIndent)
	cobra.AddTemplateFunc("add", func(args ...int) int {
		ret := 0
		for _, arg := range args {
			ret += arg
		}
		return ret
	})
}

const HelpTemplate = `Usage: {{ .UseLine }}

{{- /* Short help text ---------------------------------------------------- */}}
{{- if .Short }}
{{ .Short }}
{{- end }}

{{- /* Long help text ----------------------------------------------------- */}}
{{- if .Long }}

{{ .Long | wrap getTerminalWidth | trimTrailingWhitespaces }}
{{- end }}

{{- /* Aliases ------------------------------------------------------------ */}}
{{- if .Aliases }}

Aliases:
  {{ .NameAndAliases }}
{{- end }}

{{- /* Examples ----------------------------------------------------------- */}}
{{- if .HasExample }}

Examples:
{{ .Example }}
{{- end }}

{{- /* Subcommands -------------------------------------------------------- */}}
{{- if .HasAvailableSubCommands }}

Available Commands:
{{- range .Commands}}
  {{- if (or .IsAvailableCommand (eq .Name "help")) }}
    {{- "\n" }}  {{ rpad .Name .NamePadding }}   {{ .Short | wrapIndent (add .NamePadding 5) getTerminalWidth }}
  {{- end }}
{{- end }}
{{- end }}

{{- /* Local Flags -------------------------------------------------------- */}}
{{- if .HasAvailableLocalFlags }}

Flags:
{{ getTerminalWidth | .LocalFlags.FlagUsagesWrapped | trimTrailingWhitespaces }}
{{- end }}

{{- /* Global flags ------------------------------------------------------- */}}
{{- if .HasAvailableInheritedFlags }}

Global Flags:
{{ getTerminalWidth | .InheritedFlags.FlagUsagesWrapped | trimTrailingWhitespaces }}
{{- end }}

{{- /* Help topics -------------------------------------------------------- */}}
{{- if .HasHelpSubCommands }}

Additional help topics:
{{- range .Commands }}
  {{- if .IsAdditionalHelpTopicCommand }}
    {{- "\n" }}  {{ rpad .CommandPath .CommandPathPadding }}   {{ .Short | wrapIndent (add .NamePadding 5) getTerminalWidth }}
  {{- end }}
{{- end }}
{{- end }}

{{- /* Help footer -------------------------------------------------------- */}}
{{- if .HasAvailableSubCommands }}

Use "{{ .CommandPath }} [command] --help" for more information about a command.
{{- end}}
`

// GetTerminalWidth returns the width of the terminal that you should wrap text to.
//
// It obeys $COLUMNS if the shell or the user sets it, then falls back to
// detecting the size of stdout.  If stdout is not a terminal it returns 0,
// meaning "don't wrap".
func GetTerminalWidth() int {
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil {
		return cols
	}

	if cols, _, err := term.GetSize(1); err == nil {
		return cols
	}

	// Stdout is a terminal but we could not get its size; assume 80.
	if term.IsTerminal(1) {
		return 80
	}

	return 0
}

// Wrap the string `s` to a maximum width `w`.  Pass `w` == 0 to do no wrapping.
//
// In order to have some room for slop to avoid things like a short word being on a line by itself,
// most lines are actually wrapped to `w - 5`.
func Wrap(w int, s string) string {
	return wrap(0, w, s)
}

// Wrap the string `s` to a maximum width `w` with leading indent `i`.  The first line is not
// indented (this is assumed to be done by caller).  Pass `w` == 0 to do no wrapping
//
// In order to have some room for slop to avoid things like a short word being on a line by itself,
// most lines are actually wrapped to `w - 5`.
func WrapIndent(i, w int, s string) string {
	return wrap(i, w, s)
}

func wrap(indent, width int, str string) string {
	if width == 0 {
		return str
	}
	limit := width - 5

	var ret strings.Builder
	for lineNum, line := range strings.Split(str, "\n") {
		if lineNum > 0 {
			ret.WriteByte('\n')
		}
		col := indent
		for rest := line; rest != ""; {
			// Split off the leading whitespace and the word after it, so that
			// things like the double-space after a sentence survive wrapping.
			spaces := rest[:len(rest)-len(strings.TrimLeft(rest, " "))]
			word := rest[len(spaces):]
			if sp := strings.IndexByte(word, ' '); sp >= 0 {
				word, rest = word[:sp], word[sp:]
			} else {
				rest = ""
			}
			switch {
			case col == indent:
				// First word on the line; it goes here even if it is too wide.
				ret.WriteString(spaces)
				ret.WriteString(word)
				col += len(spaces) + len(word)
			case col+len(spaces)+len(word) >= limit:
				ret.WriteByte('\n')
				ret.WriteString(strings.Repeat(" ", indent))
				ret.WriteString(word)
				col = indent + len(word)
			default:
				ret.WriteString(spaces)
				ret.WriteString(word)
				col += len(spaces) + len(word)
			}
		}
	}
	return ret.String()
}
