package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

// Colour palette for terminal output.
var (
	colourPrimary = lipgloss.Color("#7C3AED") // Purple
	colourMuted   = lipgloss.Color("#6C7086") // Medium gray
	colourSuccess = lipgloss.Color("#A6E3A1") // Green
	colourWarning = lipgloss.Color("#F9E2AF") // Yellow
	colourError   = lipgloss.Color("#F38BA8") // Red
)

// Pre-configured styles. lipgloss drops colour when output is not a terminal.
var (
	titleStyle   = lipgloss.NewStyle().Foreground(colourPrimary).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colourMuted)
	successStyle = lipgloss.NewStyle().Foreground(colourSuccess)
	warningStyle = lipgloss.NewStyle().Foreground(colourWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colourError).Bold(true)
)

// renderConnectionStatus colours a connection status.
func renderConnectionStatus(s domain.ConnectionStatus) string {
	switch s {
	case domain.ConnectionConnected:
		return successStyle.Render(string(s))
	case domain.ConnectionError:
		return errorStyle.Render(string(s))
	case domain.ConnectionConnecting:
		return warningStyle.Render(string(s))
	default:
		return mutedStyle.Render(string(s))
	}
}

// renderRunStatus colours a run outcome.
func renderRunStatus(s domain.RunStatus) string {
	switch s {
	case domain.RunSucceeded:
		return successStyle.Render(string(s))
	case domain.RunFailed:
		return errorStyle.Render(string(s))
	default:
		return warningStyle.Render(string(s))
	}
}

// renderDeliveryStatus colours an event delivery status.
func renderDeliveryStatus(s domain.DeliveryStatus) string {
	switch s {
	case domain.DeliverySucceeded:
		return successStyle.Render(string(s))
	case domain.DeliveryDeadLettered:
		return errorStyle.Render(string(s))
	default:
		return warningStyle.Render(string(s))
	}
}
