package tui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("124")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	senderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	ownSenderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	dateLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("135"))

	replyStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("245"))

	deletedStyle = lipgloss.NewStyle().
			Faint(true).
			Italic(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

func connBadge(state string) string {
	switch state {
	case "open":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("● " + state)
	case "reconnecting", "connecting":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render("◌ " + state)
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("124")).Render("○ " + state)
	}
}
