// Package cli renders import progress, summaries and run listings for the
// terminal using lipgloss.
package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette.
var (
	accentColor  = lipgloss.Color("#5DADE2")
	successColor = lipgloss.Color("#4ECDC4")
	warningColor = lipgloss.Color("#FFE66D")
	errorColor   = lipgloss.Color("#FF6B6B")
	infoColor    = lipgloss.Color("#95E1D3")
	subtleColor  = lipgloss.Color("#666666")
	borderColor  = lipgloss.Color("#333")
)

var (
	// TitleStyle is used for box titles.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	// SuccessStyle marks added rows and completed runs.
	SuccessStyle = lipgloss.NewStyle().Foreground(successColor)
	// WarningStyle marks processing runs and skipped rows.
	WarningStyle = lipgloss.NewStyle().Foreground(warningColor)
	// ErrorStyle marks rejected rows and failed runs.
	ErrorStyle = lipgloss.NewStyle().Foreground(errorColor)
	// InfoStyle marks duplicates and hints.
	InfoStyle = lipgloss.NewStyle().Foreground(infoColor)
	// SubtleStyle is for links and secondary text.
	SubtleStyle = lipgloss.NewStyle().Foreground(subtleColor)

	// BoxStyle frames run summaries.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(1, 2)

	// TableCellStyle pads table columns.
	TableCellStyle = lipgloss.NewStyle().PaddingRight(2)
)

// Icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	ChartIcon   = "📈"
)

// FormatSuccess formats a success message with icon.
func FormatSuccess(message string) string {
	return SuccessStyle.Render(SuccessIcon + " " + message)
}

// FormatError formats an error message with icon.
func FormatError(message string) string {
	return ErrorStyle.Render(ErrorIcon + " " + message)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(message string) string {
	return WarningStyle.Render(WarningIcon + " " + message)
}

// FormatInfo formats an info message with icon.
func FormatInfo(message string) string {
	return InfoStyle.Render(InfoIcon + " " + message)
}

// RenderBox frames content under a title.
func RenderBox(title, content string) string {
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, TitleStyle.Render(title), content))
}
