package tui

import "github.com/charmbracelet/lipgloss"

// One Dark palette
var (
	ColorFgPrimary = lipgloss.Color("#ABB2BF")
	ColorFgMuted   = lipgloss.Color("#636B78")
	ColorRed       = lipgloss.Color("#E06C75")
	ColorGreen     = lipgloss.Color("#98C379")
	ColorYellow    = lipgloss.Color("#E5C07B")
	ColorBlue      = lipgloss.Color("#61AFEF")
	ColorMagenta   = lipgloss.Color("#C678DD")
	ColorBorder    = lipgloss.Color("#3F4451")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta).
			Bold(true)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(1, 3)

	PhaseStyle = lipgloss.NewStyle().
			Bold(true).
			PaddingBottom(1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted)

	ValueStyle = lipgloss.NewStyle().
			Foreground(ColorFgPrimary)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorYellow)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed)
)

// phaseColor returns the accent color of a phase name.
func phaseColor(name string) lipgloss.Color {
	switch name {
	case "Inhale":
		return ColorGreen
	case "Hold":
		return ColorYellow
	case "Exhale":
		return ColorBlue
	default:
		return ColorFgPrimary
	}
}
