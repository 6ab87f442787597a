package commands

import (
	"epoch/internal/model"

	"github.com/charmbracelet/lipgloss"
)

const (
	colorOnline  = "#22C55E"
	colorPaused  = "#F59E0B"
	colorOffline = "#EF4444"
	colorMuted   = "#6D7383"
	colorAccent  = "#7C3AED"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(colorOnline))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color(colorOffline))
)

func stateStyle(st model.State) lipgloss.Style {
	switch st {
	case model.StateOnline:
		return lipgloss.NewStyle().Foreground(lipgloss.Color(colorOnline))
	case model.StatePaused:
		return lipgloss.NewStyle().Foreground(lipgloss.Color(colorPaused))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color(colorOffline))
	}
}
