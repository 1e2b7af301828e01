// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/morganforge/emberchat/internal/conversation"
	"github.com/morganforge/emberchat/internal/monitor"
	"github.com/morganforge/emberchat/internal/util"
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	if m.view == viewHistory {
		return m.viewHistory()
	}

	sections := []string{
		m.viewHeader(),
		m.viewport.View(),
		m.viewInput(),
		m.viewStatusBar(),
	}
	return strings.Join(sections, "\n")
}

// layout recomputes component sizes after a resize.
func (m *Model) layout() {
	headerHeight := 1
	inputHeight := 3
	statusHeight := 1

	vpHeight := m.height - headerHeight - inputHeight - statusHeight - 3
	if vpHeight < 3 {
		vpHeight = 3
	}

	if m.viewport.Width == 0 {
		m.viewport = viewport.New(m.width, vpHeight)
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = vpHeight
	}
	m.input.Width = m.width - 8

	m.refreshViewport(false)
}

// =============================================================================
// SECTIONS
// =============================================================================

func (m *Model) viewHeader() string {
	title := m.theme.HeaderTitle.Render("emberchat")
	conv := m.theme.HeaderMeta.Render(" · " + util.Truncate(m.convTitle, m.width/2))

	meta := ""
	if cfg := m.backends.Active(); cfg != nil {
		label := cfg.Name
		if cfg.SelectedModel != "" {
			label += " / " + cfg.SelectedModel
		}
		meta = m.theme.HeaderMeta.Render(label)
	}

	left := title + conv
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(meta) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + meta)
}

func (m *Model) viewInput() string {
	if m.state == StateStreaming {
		return m.theme.InputContainer.Width(m.width - 2).
			Render(m.spinner.View() + " waiting for response...")
	}
	return m.theme.InputContainer.Width(m.width - 2).
		Render(m.theme.InputPrompt.Render("> ") + m.input.View())
}

func (m *Model) viewStatusBar() string {
	dot := m.connDot()

	shortcuts := strings.Join([]string{
		m.theme.ShortcutKey.Render("enter") + m.theme.ShortcutDesc.Render(" send"),
		m.theme.ShortcutKey.Render("ctrl+n") + m.theme.ShortcutDesc.Render(" new"),
		m.theme.ShortcutKey.Render("ctrl+h") + m.theme.ShortcutDesc.Render(" history"),
		m.theme.ShortcutKey.Render("ctrl+c") + m.theme.ShortcutDesc.Render(" quit"),
	}, "  ")

	status := m.statusMsg
	if status == "" {
		status = shortcuts
	}

	gap := m.width - lipgloss.Width(dot) - lipgloss.Width(status) - 3
	if gap < 1 {
		gap = 1
	}
	return m.theme.StatusBar.Width(m.width).Render(dot + strings.Repeat(" ", gap) + status)
}

// connDot renders the connectivity indicator.
func (m *Model) connDot() string {
	switch m.connState {
	case monitor.StateConnected:
		return m.theme.StatusConnected.Render("● connected")
	case monitor.StateDisconnected:
		return m.theme.StatusDisconnect.Render("● disconnected")
	default:
		return m.theme.StatusUnknown.Render("● checking")
	}
}

// =============================================================================
// TRANSCRIPT RENDERING
// =============================================================================

// refreshViewport rebuilds the transcript text. goToBottom keeps the view
// pinned to the latest message while streaming.
func (m *Model) refreshViewport(goToBottom bool) {
	if m.viewport.Width == 0 {
		return
	}

	var sb strings.Builder
	for _, entry := range m.transcript {
		sb.WriteString(m.renderEntry(entry))
		sb.WriteString("\n")
	}

	if m.streamBuf != "" {
		sb.WriteString(m.theme.AssistantLabel.Render("assistant"))
		sb.WriteString("\n")
		sb.WriteString(m.renderMarkdown(m.streamBuf))
		sb.WriteString("\n")
	}

	m.viewport.SetContent(sb.String())
	if goToBottom {
		m.viewport.GotoBottom()
	}
}

// renderEntry formats one transcript row.
func (m *Model) renderEntry(entry transcriptEntry) string {
	switch entry.role {
	case conversation.RoleUser:
		return m.theme.UserLabel.Render("you") + "\n" +
			m.theme.UserText.Render(entry.content) + "\n"
	case "error":
		return m.theme.ErrorText.Render("✗ "+entry.content) + "\n"
	default:
		out := m.theme.AssistantLabel.Render("assistant") + "\n" +
			m.renderMarkdown(entry.content)
		if entry.meta != "" {
			out += m.theme.MessageMeta.Render(entry.meta) + "\n"
		}
		return out + "\n"
	}
}

// renderMarkdown renders assistant content through glamour, falling back
// to plain text when rendering fails.
func (m *Model) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n") + "\n"
}

// entryFor converts a stored message into a transcript row.
func (m *Model) entryFor(msg conversation.Message) transcriptEntry {
	entry := transcriptEntry{role: msg.Role, content: msg.Content}
	if msg.Role == conversation.RoleAssistant && m.cfg.UI.ShowTokenStats && msg.Tokens > 0 {
		entry.meta = fmt.Sprintf("%d tokens · first token %dms", msg.Tokens, msg.LatencyMs)
	}
	return entry
}

// =============================================================================
// HISTORY VIEW
// =============================================================================

func (m *Model) viewHistory() string {
	var sb strings.Builder
	sb.WriteString(m.theme.HeaderTitle.Render("conversations"))
	sb.WriteString("\n\n")

	if len(m.historyItems) == 0 {
		sb.WriteString(m.theme.HistoryMeta.Render("  no conversations yet"))
		sb.WriteString("\n")
	}

	for i, conv := range m.historyItems {
		pin := "  "
		if conv.Pinned {
			pin = m.theme.HistoryPin.Render("★ ")
		}
		line := pin + util.Truncate(conv.Title, m.width-30) +
			m.theme.HistoryMeta.Render(fmt.Sprintf("  %d msgs · %s",
				len(conv.Messages), conv.UpdatedAt.Format("Jan 2 15:04")))

		if i == m.historyIndex {
			sb.WriteString(m.theme.HistorySelected.Render(line))
		} else {
			sb.WriteString(m.theme.HistoryItem.Render(line))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	if m.renaming {
		sb.WriteString(m.theme.InputPrompt.Render("rename: ") + m.renameInput.View())
		sb.WriteString("\n\n")
		sb.WriteString(m.theme.ShortcutKey.Render("enter") + m.theme.ShortcutDesc.Render(" save  "))
		sb.WriteString(m.theme.ShortcutKey.Render("esc") + m.theme.ShortcutDesc.Render(" cancel"))
		return sb.String()
	}
	sb.WriteString(m.theme.ShortcutKey.Render("enter") + m.theme.ShortcutDesc.Render(" open  "))
	sb.WriteString(m.theme.ShortcutKey.Render("p") + m.theme.ShortcutDesc.Render(" pin  "))
	sb.WriteString(m.theme.ShortcutKey.Render("r") + m.theme.ShortcutDesc.Render(" rename  "))
	sb.WriteString(m.theme.ShortcutKey.Render("d") + m.theme.ShortcutDesc.Render(" delete  "))
	sb.WriteString(m.theme.ShortcutKey.Render("esc") + m.theme.ShortcutDesc.Render(" back"))
	return sb.String()
}
