package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/planline/internal/ui"
)

// helpRule rewrites every match of re in Cobra's help text.
type helpRule struct {
	re      *regexp.Regexp
	replace func(groups []string) string
}

var helpRules = []helpRule{
	// Section headers: unindented line ending with ":" (e.g. "Planning:", "Flags:").
	{
		re:      regexp.MustCompile(`(?m)^([A-Z][^\n]*:)\s*$`),
		replace: func(g []string) string { return ui.RenderAccent(strings.TrimSpace(g[0])) },
	},
	// Command names: two-space indent, a word, then two or more spaces.
	{
		re:      regexp.MustCompile(`(?m)^(  )(\S+)(  )`),
		replace: func(g []string) string { return g[1] + ui.RenderCommand(g[2]) + g[3] },
	},
	// Flag type annotations: "--hours float", "--dep stringArray".
	{
		re:      regexp.MustCompile(`(--?\S+\s+)(string|int|float|duration|stringArray|stringSlice)\b`),
		replace: func(g []string) string { return g[1] + ui.RenderMuted(g[2]) },
	},
	// Defaults: (default "http://localhost:8080").
	{
		re:      regexp.MustCompile(`\(default "[^"]*"\)`),
		replace: func(g []string) string { return ui.RenderMuted(g[0]) },
	},
}

// colorizedHelpFunc returns a Cobra help function that post-processes the
// default help text with ANSI colors when the terminal supports it.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		if noColor || !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}

		orig := cmd.OutOrStdout()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(orig)

		fmt.Fprint(orig, colorizeHelpOutput(buf.String()))
	}
}

// colorizeHelpOutput applies ANSI styling to Cobra's plain-text help.
func colorizeHelpOutput(s string) string {
	for _, rule := range helpRules {
		s = rule.re.ReplaceAllStringFunc(s, func(match string) string {
			return rule.replace(rule.re.FindStringSubmatch(match))
		})
	}
	return s
}
