package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)

// Warning prefixes a message with a styled "warning:" label. The styling is
// dropped when stderr is not a terminal or color is disabled.
func Warning(message string) string {
	prefix := "warning:"
	if ansiEnabled(os.Stderr) {
		prefix = warningStyle.Render(prefix)
	}
	return prefix + " " + message
}

func ansiEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
