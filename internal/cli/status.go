// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - Status command implementation for emberchat.
//
// CLI: Comprehensive help and examples for all commands
//
// Command: status
// Short:   Display backend connectivity and model status
// Aliases: s
//
// Examples:
//   emberchat status              Show backend status
//   emberchat s                   Show status (short alias)
//   emberchat status --json       Status in JSON format
//
// Status Sections:
//   Backend:       Active backend name, URL, selected model
//   Connectivity:  Probe result against the backend's /api/tags
//   Models:        Models installed on the backend
//   Conversations: Saved conversation counts
//
// Flags:
//   --json              Output in JSON format
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/morganforge/emberchat/internal/ollama"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	// Title style for the header
	statusTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("208")). // Ember orange
				MarginBottom(1)

	// Section header style
	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")). // White
			MarginTop(1)

	// Label style for field names
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")). // Light gray
			Width(14)

	// Value styles
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")) // White

	valueGreenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")) // Green

	valueRedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // Red

	valueDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")) // Dim

	// Separator line
	statusSeparatorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)

// =============================================================================
// HANDLE STATUS
// =============================================================================

// StatusData is the JSON payload for the status command.
type StatusData struct {
	Backend       StatusBackendInfo      `json:"backend"`
	Connectivity  string                 `json:"connectivity"`
	Models        []string               `json:"models"`
	Conversations StatusConversationInfo `json:"conversations"`
}

// StatusBackendInfo describes the active backend.
type StatusBackendInfo struct {
	Name          string `json:"name"`
	URL           string `json:"url"`
	SelectedModel string `json:"selected_model,omitempty"`
	ContextTurns  int    `json:"context_turns"`
}

// StatusConversationInfo summarizes the conversation store.
type StatusConversationInfo struct {
	Total  int `json:"total"`
	Pinned int `json:"pinned"`
}

// HandleStatus handles the "status" command.
// Probes the active backend and reports connectivity, installed models,
// and conversation counts.
func HandleStatus(args Args) error {
	e, err := openEnv()
	if err != nil {
		if args.JSON {
			return NewJSONErrorResponse("status", err).Print()
		}
		return err
	}

	data := collectStatus(e)

	if args.JSON {
		return NewJSONResponse("status", data).Print()
	}

	separator := strings.Repeat("=", 41)
	fmt.Println()
	fmt.Println(statusTitleStyle.Render("emberchat Status"))
	fmt.Println(statusSeparatorStyle.Render(separator))
	fmt.Println()

	fmt.Println(sectionStyle.Render("Backend"))
	fmt.Println(formatBackendStatus(data.Backend))
	fmt.Println()

	fmt.Println(sectionStyle.Render("Connectivity"))
	fmt.Println(formatConnectivity(data.Connectivity))
	fmt.Println()

	fmt.Println(sectionStyle.Render("Models"))
	fmt.Println(formatModels(data))
	fmt.Println()

	fmt.Println(sectionStyle.Render("Conversations"))
	fmt.Println(formatConversations(data.Conversations))
	fmt.Println()

	return nil
}

// collectStatus gathers everything the status command reports.
func collectStatus(e *env) StatusData {
	data := StatusData{Connectivity: "no_backend"}

	data.Conversations.Total = len(e.convs.List())
	data.Conversations.Pinned = len(e.convs.Pinned())

	active := e.backends.Active()
	if active == nil {
		return data
	}

	data.Backend = StatusBackendInfo{
		Name:          active.Name,
		URL:           active.BaseURL(),
		SelectedModel: active.SelectedModel,
		ContextTurns:  active.ContextTurns,
	}

	client := ollama.NewClient(active.BaseURL())
	ctx := context.Background()

	if err := client.CheckRunning(ctx); err != nil {
		data.Connectivity = "disconnected"
		return data
	}
	data.Connectivity = "connected"

	models, err := client.ListModels(ctx)
	if err == nil {
		for _, m := range models {
			data.Models = append(data.Models, m.Name)
		}
	}

	return data
}

// =============================================================================
// FORMAT HELPERS
// =============================================================================

// formatBackendStatus returns the formatted backend section.
func formatBackendStatus(info StatusBackendInfo) string {
	if info.Name == "" {
		return fmt.Sprintf("  %s%s",
			labelStyle.Render("Active:"),
			valueDimStyle.Render("None configured"))
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("  %s%s",
		labelStyle.Render("Active:"),
		valueStyle.Render(info.Name)))
	lines = append(lines, fmt.Sprintf("  %s%s",
		labelStyle.Render("URL:"),
		valueStyle.Render(info.URL)))

	model := info.SelectedModel
	if model == "" {
		lines = append(lines, fmt.Sprintf("  %s%s",
			labelStyle.Render("Model:"),
			valueDimStyle.Render("None selected")))
	} else {
		lines = append(lines, fmt.Sprintf("  %s%s",
			labelStyle.Render("Model:"),
			valueGreenStyle.Render(model)))
	}

	lines = append(lines, fmt.Sprintf("  %s%s",
		labelStyle.Render("Context:"),
		valueStyle.Render(fmt.Sprintf("%d turns", info.ContextTurns))))

	return strings.Join(lines, "\n")
}

// formatConnectivity returns the formatted connectivity line.
func formatConnectivity(state string) string {
	var statusStr string
	switch state {
	case "connected":
		statusStr = valueGreenStyle.Render("Connected")
	case "disconnected":
		statusStr = valueRedStyle.Render("Not reachable")
	default:
		statusStr = valueDimStyle.Render("No backend configured")
	}
	return fmt.Sprintf("  %s%s", labelStyle.Render("Ollama:"), statusStr)
}

// formatModels returns the formatted model list.
func formatModels(data StatusData) string {
	if data.Connectivity != "connected" {
		return fmt.Sprintf("  %s%s",
			labelStyle.Render("Installed:"),
			valueDimStyle.Render("unavailable"))
	}
	if len(data.Models) == 0 {
		return fmt.Sprintf("  %s%s",
			labelStyle.Render("Installed:"),
			valueDimStyle.Render("none (ollama pull a model first)"))
	}

	var lines []string
	for i, name := range data.Models {
		label := ""
		if i == 0 {
			label = "Installed:"
		}
		style := valueStyle
		if name == data.Backend.SelectedModel {
			style = valueGreenStyle
			name += " (selected)"
		}
		lines = append(lines, fmt.Sprintf("  %s%s",
			labelStyle.Render(label), style.Render(name)))
	}
	return strings.Join(lines, "\n")
}

// formatConversations returns the formatted conversation counts.
func formatConversations(info StatusConversationInfo) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("  %s%s",
		labelStyle.Render("Saved:"),
		valueStyle.Render(fmt.Sprintf("%d", info.Total))))
	lines = append(lines, fmt.Sprintf("  %s%s",
		labelStyle.Render("Pinned:"),
		valueStyle.Render(fmt.Sprintf("%d", info.Pinned))))
	return strings.Join(lines, "\n")
}
