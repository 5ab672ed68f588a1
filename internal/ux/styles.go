// Package ux renders workflow progress and reports in the terminal.
package ux

import "github.com/charmbracelet/lipgloss"

// Semantic colors shared by the progress view and the report chrome.
var (
	ColorSuccess = lipgloss.Color("#8BC34A")
	ColorError   = lipgloss.Color("#e53935")
	ColorWarning = lipgloss.Color("#FFC107")
	ColorInfo    = lipgloss.Color("#2196F3")
	ColorMuted   = lipgloss.Color("#6b7280")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorInfo)
	successStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	errorStyle   = lipgloss.NewStyle().Foreground(ColorError)
	warnStyle    = lipgloss.NewStyle().Foreground(ColorWarning)
	mutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)

	// ErrorBanner wraps fatal workflow messages shown after the TUI exits.
	ErrorBanner = lipgloss.NewStyle().Bold(true).Foreground(ColorError)
	// VerdictBadge highlights the extracted verdict in list output.
	VerdictBadge = lipgloss.NewStyle().Bold(true).Foreground(ColorSuccess)
)
