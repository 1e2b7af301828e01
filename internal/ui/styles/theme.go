// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for emberchat.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// HEADER STYLES
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderMeta  lipgloss.Style

	// ==========================================================================
	// MESSAGE STYLES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	UserText       lipgloss.Style
	MessageMeta    lipgloss.Style
	ErrorText      lipgloss.Style

	// ==========================================================================
	// INPUT AREA STYLES
	// ==========================================================================

	InputContainer   lipgloss.Style
	InputPrompt      lipgloss.Style
	InputPlaceholder lipgloss.Style

	// ==========================================================================
	// STATUS BAR STYLES
	// ==========================================================================

	StatusBar        lipgloss.Style
	StatusConnected  lipgloss.Style
	StatusDisconnect lipgloss.Style
	StatusUnknown    lipgloss.Style
	ShortcutKey      lipgloss.Style
	ShortcutDesc     lipgloss.Style

	// ==========================================================================
	// HISTORY BROWSER STYLES
	// ==========================================================================

	HistoryItem     lipgloss.Style
	HistorySelected lipgloss.Style
	HistoryPin      lipgloss.Style
	HistoryMeta     lipgloss.Style

	// ==========================================================================
	// MISC STYLES
	// ==========================================================================

	Spinner lipgloss.Style
}

// NewTheme creates a new theme with all styles configured. theme selects
// the palette ("dark" or "light"); any other value falls back to dark.
func NewTheme(theme string) *Theme {
	colorProfile := termenv.ColorProfile()

	isDark := theme != "light"
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
	}

	t.initStyles()
	return t
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	// Header
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Ember)

	t.HeaderMeta = lipgloss.NewStyle().
		Foreground(TextSecondary)

	// Messages
	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Ember)

	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.UserText = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.MessageMeta = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.ErrorText = lipgloss.NewStyle().
		Foreground(Rose)

	// Input
	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.InputPrompt = lipgloss.NewStyle().
		Bold(true).
		Foreground(Ember)

	t.InputPlaceholder = lipgloss.NewStyle().
		Foreground(TextMuted)

	// Status bar
	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.StatusConnected = lipgloss.NewStyle().Foreground(Emerald)
	t.StatusDisconnect = lipgloss.NewStyle().Foreground(Rose)
	t.StatusUnknown = lipgloss.NewStyle().Foreground(Amber)

	t.ShortcutKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(Ember)

	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	// History browser
	t.HistoryItem = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Padding(0, 1)

	t.HistorySelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(Ember).
		Background(SurfaceDim).
		Padding(0, 1)

	t.HistoryPin = lipgloss.NewStyle().
		Foreground(Amber)

	t.HistoryMeta = lipgloss.NewStyle().
		Foreground(TextMuted)

	// Misc
	t.Spinner = lipgloss.NewStyle().
		Foreground(Ember)
}
