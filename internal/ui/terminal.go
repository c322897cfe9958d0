package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor reports whether stdout should get ANSI colors. NO_COLOR
// (https://no-color.org) and TERM=dumb win over CLICOLOR_FORCE=1, which wins
// over CLICOLOR=0 and TTY detection.
func ShouldUseColor() bool {
	return colorEnabled(os.Getenv, IsTerminal(os.Stdout))
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func colorEnabled(getenv func(string) string, tty bool) bool {
	if getenv("NO_COLOR") != "" || getenv("TERM") == "dumb" {
		return false
	}
	if strings.TrimSpace(getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(getenv("CLICOLOR")) == "0" {
		return false
	}
	return tty
}
