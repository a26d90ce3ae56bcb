package chatui

import "github.com/charmbracelet/lipgloss"

var (
	colorUser      = lipgloss.Color("#00B7FF")
	colorAssistant = lipgloss.Color("#BD34EB")
	colorMuted     = lipgloss.Color("#6C7086")
	colorError     = lipgloss.Color("#F38BA8")
	colorWarning   = lipgloss.Color("#F9E2AF")

	userLabel      = lipgloss.NewStyle().Foreground(colorUser).Bold(true)
	assistantLabel = lipgloss.NewStyle().Foreground(colorAssistant).Bold(true)
	mutedText      = lipgloss.NewStyle().Foreground(colorMuted)
	errorText      = lipgloss.NewStyle().Foreground(colorError)
	warningText    = lipgloss.NewStyle().Foreground(colorWarning)
	inputPrompt    = lipgloss.NewStyle().Foreground(colorUser)
)
