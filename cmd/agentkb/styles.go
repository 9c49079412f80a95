package main

import (
	"github.com/charmbracelet/lipgloss"

	"agentkb/internal/term"
)

var (
	trueStyle          = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	falseStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E57373"))
	indeterminateStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFB74D"))
	headerStyle        = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#9E9E9E"))
)

func renderResult(v term.Tribool) string {
	switch v {
	case term.True:
		return trueStyle.Render(v.String())
	case term.False:
		return falseStyle.Render(v.String())
	}
	return indeterminateStyle.Render(v.String())
}
