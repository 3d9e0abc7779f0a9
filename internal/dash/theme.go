package dash

import "github.com/charmbracelet/lipgloss"

// Palette follows the control-room look of the web dashboard: dark cards
// with an amber accent.
const (
	colorAccent  lipgloss.Color = "#f6a33d"
	colorText    lipgloss.Color = "#f5f5f5"
	colorMuted   lipgloss.Color = "#8a8d93"
	colorSurface lipgloss.Color = "#1a1d23"
	colorSuccess lipgloss.Color = "#4caf50"
	colorWarning lipgloss.Color = "#fdc51f"
	colorError   lipgloss.Color = "#ff6b6b"
	colorInfo    lipgloss.Color = "#64b5f6"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	labelStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorText)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle  = lipgloss.NewStyle().Foreground(colorError)
	okStyle     = lipgloss.NewStyle().Foreground(colorSuccess)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarning)
	infoStyle   = lipgloss.NewStyle().Foreground(colorInfo)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorSurface).Background(colorAccent).Padding(0, 1)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
	focusedCardStyle = cardStyle.BorderForeground(colorAccent)
	modalStyle       = lipgloss.NewStyle().
				Border(lipgloss.DoubleBorder()).
				BorderForeground(colorAccent).
				Padding(1, 2)
)

// statusStyle colors a recommended action or assignment.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case "Service", "Approved":
		return okStyle
	case "Standby", "Pending":
		return warnStyle
	case "IBL", "Rejected":
		return errorStyle
	}
	return mutedStyle
}
