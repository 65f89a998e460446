// Package theme provides the Lip Gloss palette and styles for sp's terminal
// output. It is a leaf package keyed by status name.
package theme

import "github.com/charmbracelet/lipgloss"

// Status colors.
var (
	ColorStarting = lipgloss.Color("#7c3aed")
	ColorRunning  = lipgloss.Color("#2563eb")
	ColorIdle     = lipgloss.Color("#4b5563")
	ColorInput    = lipgloss.Color("#d97706")
	ColorApproval = lipgloss.Color("#f59e0b")
	ColorError    = lipgloss.Color("#dc2626")
	ColorClosed   = lipgloss.Color("#374151")
	ColorDefault  = lipgloss.Color("#9ca3af")
)

// UI chrome colors.
var (
	ColorDimmed = lipgloss.Color("#6b7280")
	ColorBright = lipgloss.Color("#f9fafb")
)

var (
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorBright)
	DimStyle    = lipgloss.NewStyle().Foreground(ColorDimmed)
	CellStyle   = lipgloss.NewStyle().PaddingRight(2)
)

// StatusColor returns the color for a status name as it appears on the wire.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "starting":
		return ColorStarting
	case "running":
		return ColorRunning
	case "idle":
		return ColorIdle
	case "awaiting_input":
		return ColorInput
	case "awaiting_approval":
		return ColorApproval
	case "error":
		return ColorError
	case "closed":
		return ColorClosed
	default:
		return ColorDefault
	}
}

// StatusStyle colors a status; statuses that want the user are bold.
func StatusStyle(status string, attention bool) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(StatusColor(status)).Bold(attention)
}
