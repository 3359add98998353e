// Package ui holds the terminal styling shared by the cardsync commands.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Semantic color palette.
var (
	colorAccent  = lipgloss.AdaptiveColor{Light: "#0077B6", Dark: "#00BFFF"}
	colorPass    = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#00E676"}
	colorWarn    = lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#FFD700"}
	colorFail    = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#FF5252"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#8C8C8C", Dark: "#636363"}
	colorHeading = lipgloss.AdaptiveColor{Light: "#1E1E2E", Dark: "#EEEEEE"}
)

var (
	accentStyle  = lipgloss.NewStyle().Foreground(colorAccent)
	passStyle    = lipgloss.NewStyle().Foreground(colorPass)
	warnStyle    = lipgloss.NewStyle().Foreground(colorWarn)
	failStyle    = lipgloss.NewStyle().Foreground(colorFail).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	headingStyle = lipgloss.NewStyle().Foreground(colorHeading).Bold(true)
)

func init() {
	// Piped output stays plain.
	if !IsTerminal(os.Stdout) || os.Getenv("NO_COLOR") != "" {
		DisableColor()
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// DisableColor turns off all styling.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// EnableColor forces 256-color output regardless of the attached terminal.
func EnableColor() {
	lipgloss.SetColorProfile(termenv.ANSI256)
}

// RenderAccent styles s as a highlight.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderPass styles s as a success marker.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn styles s as a warning.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail styles s as an error.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderMuted de-emphasizes s.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// RenderHeading styles a section heading.
func RenderHeading(s string) string { return headingStyle.Render(s) }
