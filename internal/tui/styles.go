package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors
	runningColor    = lipgloss.Color("10") // Green
	completedColor  = lipgloss.Color("8")  // Gray
	failedColor     = lipgloss.Color("9")  // Red
	pendingColor    = lipgloss.Color("11") // Yellow
	completingColor = lipgloss.Color("6")  // Cyan
	selectedBg      = lipgloss.Color("4")  // Blue
	borderColor     = lipgloss.Color("8")  // Gray
	focusColor      = lipgloss.Color("12") // Bright blue

	// Panel styles
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(0, 1)

	focusedPanelStyle = panelStyle.
				BorderForeground(focusColor)

	// Selection style
	selectedStyle = lipgloss.NewStyle().
			Background(selectedBg).
			Foreground(lipgloss.Color("15")).
			Bold(true)

	// Scheduler state styles
	runningStyle = lipgloss.NewStyle().
			Foreground(runningColor)

	completedStyle = lipgloss.NewStyle().
			Foreground(completedColor)

	failedStyle = lipgloss.NewStyle().
			Foreground(failedColor)

	pendingStyle = lipgloss.NewStyle().
			Foreground(pendingColor)

	completingStyle = lipgloss.NewStyle().
			Foreground(completingColor)

	// Text styles
	headerStyle = lipgloss.NewStyle().
			Bold(true)

	titleStyle = lipgloss.NewStyle().
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	dirStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	syncingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	connectedStyle = lipgloss.NewStyle().
			Foreground(runningColor)

	disconnectedStyle = lipgloss.NewStyle().
				Foreground(failedColor)
)

// styleForStatus colors a row by its Slurm state code
func styleForStatus(status string) lipgloss.Style {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "R", "RUNNING":
		return runningStyle
	case "PD", "PENDING", "CF", "CONFIGURING":
		return pendingStyle
	case "CG", "COMPLETING":
		return completingStyle
	case "CD", "COMPLETED":
		return completedStyle
	case "F", "FAILED", "CA", "CANCELLED", "TO", "TIMEOUT", "NF", "NODE_FAIL", "OOM", "OUT_OF_MEMORY":
		return failedStyle
	default:
		return lipgloss.NewStyle()
	}
}
