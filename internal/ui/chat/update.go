// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/morganforge/emberchat/internal/conversation"
)

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		if m.view == viewHistory {
			return m.updateHistory(msg)
		}
		return m.updateChat(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StreamDeltaMsg:
		// A delta for a conversation the user already left is stale.
		if msg.ConvID == m.convID {
			m.streamBuf = msg.Content
			m.refreshViewport(true)
		}
		return m, m.waitForEvent()

	case StreamDoneMsg:
		if msg.ConvID == m.convID {
			m.state = StateReady
			m.streamBuf = ""
			m.openConversation(msg.Result.Conversation)
			m.input.Focus()
		}
		return m, m.waitForEvent()

	case StreamErrorMsg:
		if msg.ConvID == m.convID {
			m.state = StateReady
			m.streamBuf = ""
			m.transcript = append(m.transcript, transcriptEntry{
				role:    "error",
				content: msg.Message,
			})
			m.refreshViewport(true)
			m.input.Focus()
		}
		return m, m.waitForEvent()

	case TitleUpdatedMsg:
		if msg.ConvID == m.convID {
			m.convTitle = msg.Title
		}
		return m, m.waitForEvent()

	case ConnStateMsg:
		m.connState = msg.State
		return m, m.waitForEvent()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// updateChat handles keys while the transcript is showing.
func (m *Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Send):
		if m.state == StateStreaming {
			return m, nil
		}
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}

		m.input.Reset()
		m.input.Blur()
		m.state = StateStreaming
		m.transcript = append(m.transcript, transcriptEntry{role: conversation.RoleUser, content: text})
		m.refreshViewport(true)
		return m, m.startSend(text)

	case key.Matches(msg, m.keys.NewConv):
		if m.state == StateStreaming {
			return m, nil
		}
		m.newConversation()
		return m, nil

	case key.Matches(msg, m.keys.History):
		if m.state == StateStreaming {
			return m, nil
		}
		m.enterHistory()
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// HISTORY BROWSER
// =============================================================================

// enterHistory opens the conversation browser, pinned conversations first.
func (m *Model) enterHistory() {
	m.historyItems = append(m.convs.Pinned(), m.convs.Unpinned()...)
	m.historyIndex = 0
	m.view = viewHistory
}

// updateHistory handles keys in the conversation browser.
func (m *Model) updateHistory(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.renaming {
		return m.updateRename(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Back):
		m.view = viewChat
		m.input.Focus()
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.historyIndex > 0 {
			m.historyIndex--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.historyIndex < len(m.historyItems)-1 {
			m.historyIndex++
		}
		return m, nil

	case key.Matches(msg, m.keys.Open):
		if len(m.historyItems) > 0 {
			m.openConversation(m.historyItems[m.historyIndex])
			m.view = viewChat
			m.input.Focus()
		}
		return m, nil

	case key.Matches(msg, m.keys.Pin):
		if len(m.historyItems) > 0 {
			item := m.historyItems[m.historyIndex]
			if item.Pinned {
				m.convs.Unpin(item.ID)
			} else {
				m.convs.Pin(item.ID)
			}
			m.enterHistory()
		}
		return m, nil

	case key.Matches(msg, m.keys.Rename):
		if len(m.historyItems) > 0 {
			m.renaming = true
			m.renameInput.SetValue(m.historyItems[m.historyIndex].Title)
			m.renameInput.CursorEnd()
			m.renameInput.Focus()
		}
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		if len(m.historyItems) > 0 {
			deleted := m.historyItems[m.historyIndex]
			m.convs.Delete(deleted.ID)
			if deleted.ID == m.convID {
				m.resumeOrCreateConversation()
			}
			m.enterHistory()
			if m.historyIndex >= len(m.historyItems) && m.historyIndex > 0 {
				m.historyIndex--
			}
		}
		return m, nil
	}

	return m, nil
}

// updateRename handles keys while a conversation title is being edited.
func (m *Model) updateRename(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.renaming = false
		m.renameInput.Blur()
		return m, nil

	case key.Matches(msg, m.keys.Open):
		item := m.historyItems[m.historyIndex]
		title := strings.TrimSpace(m.renameInput.Value())
		if title != "" && title != item.Title {
			m.convs.Rename(item.ID, title)
			if item.ID == m.convID {
				m.convTitle = title
			}
			idx := m.historyIndex
			m.enterHistory()
			if idx < len(m.historyItems) {
				m.historyIndex = idx
			}
		}
		m.renaming = false
		m.renameInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.renameInput, cmd = m.renameInput.Update(msg)
	return m, cmd
}
