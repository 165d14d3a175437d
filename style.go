package main

import "github.com/charmbracelet/lipgloss"

// Style helpers for command help text.
var (
	paragraph = lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2).Render
	keyword   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#ECFD65"}).Render
)
