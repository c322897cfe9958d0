package ui

import "fmt"

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorWarn   = 221 // yellow
	colorAlert  = 203 // red
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderCritical marks s as lying on the critical path.
func RenderCritical(s string) string { return paint(colorAlert, s) }

// RenderStatus colors a task or milestone status by how healthy it is.
func RenderStatus(status string) string {
	switch status {
	case "completed", "achieved":
		return paint(colorOK, status)
	case "in_progress", "at_risk":
		return paint(colorWarn, status)
	case "missed":
		return paint(colorAlert, status)
	case "cancelled":
		return paint(colorMuted, status)
	}
	return status
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
