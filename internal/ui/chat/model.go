// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/morganforge/emberchat/internal/backend"
	chatpipe "github.com/morganforge/emberchat/internal/chat"
	"github.com/morganforge/emberchat/internal/config"
	"github.com/morganforge/emberchat/internal/conversation"
	"github.com/morganforge/emberchat/internal/monitor"
	"github.com/morganforge/emberchat/internal/ui/styles"
)

// =============================================================================
// CHAT STATE
// =============================================================================

// State represents the current state of the chat view.
type State int

const (
	StateReady     State = iota // Ready for input
	StateStreaming              // Receiving streaming response
)

// view selects which screen is showing.
type view int

const (
	viewChat view = iota
	viewHistory
)

// transcriptEntry is one rendered row of the conversation.
type transcriptEntry struct {
	role    string // "user", "assistant", "error"
	content string
	meta    string // token/latency line, may be empty
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	// Styling
	theme *styles.Theme
	cfg   *config.Config

	// Dimensions
	width  int
	height int

	// State
	state State
	view  view

	// Domain
	pipeline *chatpipe.Pipeline
	backends *backend.Registry
	convs    *conversation.Store
	monitor  *monitor.Monitor

	// Active conversation
	convID     string
	convTitle  string
	transcript []transcriptEntry
	streamBuf  string

	// Connectivity
	connState monitor.State

	// Events bridges pipeline callbacks and the monitor into the Bubble
	// Tea update loop.
	events chan tea.Msg

	// UI Components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	// Key bindings
	keys KeyMap

	// History browser
	historyItems []*conversation.Conversation
	historyIndex int
	renaming     bool
	renameInput  textinput.Model

	statusMsg string
}

// New creates the chat model. The events channel is shared with the
// monitor callback wired up in main.
func New(cfg *config.Config, pipeline *chatpipe.Pipeline, backends *backend.Registry, convs *conversation.Store, mon *monitor.Monitor, events chan tea.Msg) *Model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 0
	input.Focus()

	rename := textinput.New()
	rename.CharLimit = 120

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	theme := styles.NewTheme(cfg.UI.Theme)
	sp.Style = theme.Spinner

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	m := &Model{
		theme:       theme,
		cfg:         cfg,
		pipeline:    pipeline,
		backends:    backends,
		convs:       convs,
		monitor:     mon,
		events:      events,
		input:       input,
		renameInput: rename,
		spinner:     sp,
		renderer:    renderer,
		keys:        DefaultKeyMap(),
		connState:   monitor.StateUnknown,
	}

	m.resumeOrCreateConversation()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.waitForEvent(),
	)
}

// waitForEvent delivers the next pipeline or monitor event as a tea.Msg.
func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

// post queues an event without blocking the producer goroutine; a stale
// event is dropped rather than wedging the pipeline. Only safe for events
// the UI can afford to miss, like a superseded delta.
func (m *Model) post(msg tea.Msg) {
	select {
	case m.events <- msg:
	default:
	}
}

// postWait queues an event, waiting for channel space. Terminal stream
// events go through here: losing one would leave the model streaming
// forever with the input disabled.
func (m *Model) postWait(msg tea.Msg) {
	m.events <- msg
}

// resumeOrCreateConversation opens the most recent conversation, or starts
// a fresh one on first run.
func (m *Model) resumeOrCreateConversation() {
	if list := m.convs.List(); len(list) > 0 {
		m.openConversation(list[0])
		return
	}
	m.newConversation()
}

// newConversation starts an empty conversation on the active backend.
func (m *Model) newConversation() {
	model := ""
	if cfg := m.backends.Active(); cfg != nil {
		model = cfg.SelectedModel
	}

	conv, err := m.convs.New(model)
	if err != nil {
		m.statusMsg = "failed to create conversation: " + err.Error()
		return
	}
	m.openConversation(conv)
}

// openConversation loads a conversation into the transcript.
func (m *Model) openConversation(conv *conversation.Conversation) {
	m.convID = conv.ID
	m.convTitle = conv.Title
	m.streamBuf = ""
	m.transcript = m.transcript[:0]
	for _, msg := range conv.Messages {
		m.transcript = append(m.transcript, m.entryFor(msg))
	}
	m.refreshViewport(true)
}

// startSend launches the pipeline for the typed text.
func (m *Model) startSend(text string) tea.Cmd {
	convID := m.convID
	events := chatpipe.Events{
		OnDelta: func(cumulative string) {
			m.post(StreamDeltaMsg{ConvID: convID, Content: cumulative})
		},
		OnDone: func(res *chatpipe.Result) {
			m.postWait(StreamDoneMsg{ConvID: convID, Result: res})
		},
		OnError: func(message string) {
			m.postWait(StreamErrorMsg{ConvID: convID, Message: message})
		},
		OnTitleUpdated: func(id, title string) {
			m.post(TitleUpdatedMsg{ConvID: id, Title: title})
		},
	}

	return func() tea.Msg {
		// Errors surface through the events channel.
		m.pipeline.Send(context.Background(), convID, text, events)
		return nil
	}
}
