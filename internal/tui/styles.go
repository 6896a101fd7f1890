package tui

import "github.com/charmbracelet/lipgloss"

// Styles used by the load dialog.
type Styles struct {
	Title    lipgloss.Style
	Success  lipgloss.Style
	Failure  lipgloss.Style
	Muted    lipgloss.Style
	Progress lipgloss.Style
	Frame    lipgloss.Style
}

// DefaultStyles returns the GreenPath palette.
func DefaultStyles() Styles {
	green := lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#4ADE80"}
	red := lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	gray := lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}

	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(green),
		Success:  lipgloss.NewStyle().Foreground(green),
		Failure:  lipgloss.NewStyle().Foreground(red),
		Muted:    lipgloss.NewStyle().Foreground(gray),
		Progress: lipgloss.NewStyle().Bold(true),
		Frame: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(green).
			Padding(1, 2),
	}
}
