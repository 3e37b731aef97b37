package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/alesut/pixel-agents/internal/session"
	"github.com/alesut/pixel-agents/internal/ws"
)

var (
	colorActive  = lipgloss.Color("#d97706")
	colorWaiting = lipgloss.Color("#4b5563")
	colorBorder  = lipgloss.Color("#4b5563")
	colorDimmed  = lipgloss.Color("#6b7280")
	colorBright  = lipgloss.Color("#f9fafb")
	colorHealthy = lipgloss.Color("#22c55e")
	colorWarning = lipgloss.Color("#d97706")
	colorDanger  = lipgloss.Color("#dc2626")
)

var (
	styleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBright)

	styleDimmed = lipgloss.NewStyle().
			Foreground(colorDimmed)

	styleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBright)

	styleBar = lipgloss.NewStyle().
			Padding(0, 1).
			BorderStyle(lipgloss.DoubleBorder()).
			BorderForeground(colorBorder)
)

func statusColor(s session.Status) lipgloss.Color {
	if s == session.Active {
		return colorActive
	}
	return colorWaiting
}

func statusGlyph(s session.Status) string {
	if s == session.Active {
		return "⚙>"
	}
	return "◌"
}

func healthColor(s ws.HealthStatus) lipgloss.Color {
	switch s {
	case ws.StatusHealthy:
		return colorHealthy
	case ws.StatusDegraded:
		return colorWarning
	case ws.StatusFailed:
		return colorDanger
	default:
		return colorDimmed
	}
}
