package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/JakeFAU/period-search-monitor/internal/progress"
)

var (
	subtext  = lipgloss.Color("#a6adc8")
	sapphire = lipgloss.Color("#74c7ec")
	green    = lipgloss.Color("#a6e3a1")
	peach    = lipgloss.Color("#fab387")
	red      = lipgloss.Color("#f38ba8")
	yellow   = lipgloss.Color("#f9e2af")

	titleStyle = lipgloss.NewStyle().Foreground(sapphire).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(subtext)
	labelStyle = lipgloss.NewStyle().Foreground(subtext).Width(10)
	paneStyle  = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(subtext).
			Padding(0, 1)

	sessionStyles = map[progress.SessionState]lipgloss.Style{
		progress.SessionRunning:   lipgloss.NewStyle().Foreground(sapphire).Bold(true),
		progress.SessionCompleted: lipgloss.NewStyle().Foreground(green).Bold(true),
		progress.SessionStopped:   lipgloss.NewStyle().Foreground(peach).Bold(true),
		progress.SessionFailed:    lipgloss.NewStyle().Foreground(red).Bold(true),
	}
	connectionStyles = map[progress.ConnectionState]lipgloss.Style{
		progress.ConnConnected:       lipgloss.NewStyle().Foreground(green),
		progress.ConnReconnecting:    lipgloss.NewStyle().Foreground(yellow),
		progress.ConnReconnectFailed: lipgloss.NewStyle().Foreground(red),
	}
	levelStyles = map[progress.LogLevel]lipgloss.Style{
		progress.LevelDebug: mutedStyle,
		progress.LevelWarn:  lipgloss.NewStyle().Foreground(yellow),
		progress.LevelError: lipgloss.NewStyle().Foreground(red),
	}
)

func styleFor[K comparable](styles map[K]lipgloss.Style, k K, fallback lipgloss.Style) lipgloss.Style {
	if s, ok := styles[k]; ok {
		return s
	}
	return fallback
}
