package ui

import "github.com/charmbracelet/lipgloss"

// Lipgloss Styles - shared by the grid renderer and the main view
var (
	docStyle    = lipgloss.NewStyle().Margin(1, 2)
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("228")).Bold(true).Render
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	activeBox   = boxStyle.BorderForeground(lipgloss.Color("228"))
	promptStyle = lipgloss.NewStyle().MarginTop(1)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	resultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	waterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	shipStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Bold(true)
	hitStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#CD0000")).Bold(true)
	missStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)
