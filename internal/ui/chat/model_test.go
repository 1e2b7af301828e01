// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/morganforge/emberchat/internal/backend"
	chatpipe "github.com/morganforge/emberchat/internal/chat"
	"github.com/morganforge/emberchat/internal/config"
	"github.com/morganforge/emberchat/internal/conversation"
	"github.com/morganforge/emberchat/internal/monitor"
	"github.com/morganforge/emberchat/internal/prompt"
	"github.com/morganforge/emberchat/internal/store"
)

func newTestModel(t *testing.T) *Model {
	t.Helper()

	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	backends, err := backend.NewRegistry(s)
	if err != nil {
		t.Fatalf("backend.NewRegistry() error = %v", err)
	}
	prompts, err := prompt.NewRegistry(s)
	if err != nil {
		t.Fatalf("prompt.NewRegistry() error = %v", err)
	}
	convs, err := conversation.NewStore(s)
	if err != nil {
		t.Fatalf("conversation.NewStore() error = %v", err)
	}

	mon := monitor.NewWithInterval(nil, time.Hour)
	pipeline := chatpipe.New(backends, prompts, convs, mon, nil)
	events := make(chan tea.Msg, 16)

	m := New(config.Default(), pipeline, backends, convs, mon, events)
	m.width = 80
	m.height = 24
	m.layout()
	return m
}

func TestModel_StartsWithFreshConversation(t *testing.T) {
	m := newTestModel(t)

	if m.convID == "" {
		t.Fatal("model started without a conversation")
	}
	if m.convTitle != "Conversation #1" {
		t.Errorf("title = %q, want Conversation #1", m.convTitle)
	}
	if m.state != StateReady {
		t.Errorf("state = %d, want StateReady", m.state)
	}
}

func TestModel_ResumesMostRecentConversation(t *testing.T) {
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	convs, err := conversation.NewStore(s)
	if err != nil {
		t.Fatalf("conversation.NewStore() error = %v", err)
	}
	backends, _ := backend.NewRegistry(s)
	prompts, _ := prompt.NewRegistry(s)

	convs.New("llama3")
	recent, _ := convs.New("llama3")
	convs.Rename(recent.ID, "Most recent")

	mon := monitor.NewWithInterval(nil, time.Hour)
	pipeline := chatpipe.New(backends, prompts, convs, mon, nil)
	m := New(config.Default(), pipeline, backends, convs, mon, make(chan tea.Msg, 16))

	if m.convID != recent.ID {
		t.Errorf("resumed conversation = %s, want the most recent %s", m.convID, recent.ID)
	}
}

func TestModel_StaleStreamDeltaIsDiscarded(t *testing.T) {
	m := newTestModel(t)
	m.state = StateStreaming

	m.Update(StreamDeltaMsg{ConvID: "conv_other", Content: "stale text"})

	if m.streamBuf != "" {
		t.Errorf("streamBuf = %q, want a stale delta ignored", m.streamBuf)
	}
}

func TestModel_StreamDeltaUpdatesBuffer(t *testing.T) {
	m := newTestModel(t)
	m.state = StateStreaming

	m.Update(StreamDeltaMsg{ConvID: m.convID, Content: "Hel"})
	m.Update(StreamDeltaMsg{ConvID: m.convID, Content: "Hello"})

	if m.streamBuf != "Hello" {
		t.Errorf("streamBuf = %q, want cumulative %q", m.streamBuf, "Hello")
	}
}

func TestModel_StreamErrorAddsErrorRow(t *testing.T) {
	m := newTestModel(t)
	m.state = StateStreaming

	m.Update(StreamErrorMsg{ConvID: m.convID, Message: "Could not reach Ollama"})

	if m.state != StateReady {
		t.Errorf("state = %d, want StateReady after error", m.state)
	}
	if len(m.transcript) == 0 {
		t.Fatal("error row missing from transcript")
	}
	last := m.transcript[len(m.transcript)-1]
	if last.role != "error" || last.content != "Could not reach Ollama" {
		t.Errorf("last entry = %+v, want the diagnostic", last)
	}
}

func TestModel_TitleUpdate(t *testing.T) {
	m := newTestModel(t)

	m.Update(TitleUpdatedMsg{ConvID: m.convID, Title: "Go Generics Intro"})
	if m.convTitle != "Go Generics Intro" {
		t.Errorf("title = %q, want updated title", m.convTitle)
	}

	m.Update(TitleUpdatedMsg{ConvID: "conv_other", Title: "Unrelated"})
	if m.convTitle != "Go Generics Intro" {
		t.Errorf("title = %q, a foreign title update must not apply", m.convTitle)
	}
}

func TestModel_ConnStateMsg(t *testing.T) {
	m := newTestModel(t)

	m.Update(ConnStateMsg{State: monitor.StateConnected})
	if m.connState != monitor.StateConnected {
		t.Errorf("connState = %v, want connected", m.connState)
	}

	m.Update(ConnStateMsg{State: monitor.StateDisconnected})
	if m.connState != monitor.StateDisconnected {
		t.Errorf("connState = %v, want disconnected", m.connState)
	}
}

func TestModel_HistoryBrowserOrdering(t *testing.T) {
	m := newTestModel(t)
	second, _ := m.convs.New("llama3")
	m.convs.Pin(second.ID)

	m.enterHistory()

	if m.view != viewHistory {
		t.Fatal("history view did not open")
	}
	if len(m.historyItems) != 2 {
		t.Fatalf("history items = %d, want 2", len(m.historyItems))
	}
	// Pinned conversations sort first.
	if m.historyItems[0].ID != second.ID {
		t.Errorf("first item = %s, want the pinned conversation", m.historyItems[0].ID)
	}
}

func TestModel_TerminalEventSurvivesFullChannel(t *testing.T) {
	m := newTestModel(t)
	m.state = StateStreaming

	for i := 0; i < cap(m.events); i++ {
		m.post(StreamDeltaMsg{ConvID: m.convID, Content: "filler"})
	}

	conv, err := m.convs.Get(m.convID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	delivered := make(chan struct{})
	go func() {
		m.postWait(StreamDoneMsg{ConvID: m.convID, Result: &chatpipe.Result{Conversation: conv}})
		close(delivered)
	}()

	// Drain the backlog the way the update loop would; the terminal
	// event must come out even though the channel was full when sent.
	var done StreamDoneMsg
	for {
		msg := <-m.events
		if d, ok := msg.(StreamDoneMsg); ok {
			done = d
			break
		}
	}
	<-delivered

	m.Update(done)
	if m.state != StateReady {
		t.Errorf("state = %d, want StateReady after the terminal event", m.state)
	}
}

func TestModel_HistoryRename(t *testing.T) {
	m := newTestModel(t)
	m.enterHistory()

	m.updateHistory(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	if !m.renaming {
		t.Fatal("rename mode did not open")
	}
	if m.renameInput.Value() != "Conversation #1" {
		t.Errorf("rename input = %q, want the current title", m.renameInput.Value())
	}

	m.renameInput.SetValue("Ember notes")
	m.updateHistory(tea.KeyMsg{Type: tea.KeyEnter})

	if m.renaming {
		t.Error("rename mode still open after commit")
	}
	if m.convTitle != "Ember notes" {
		t.Errorf("open conversation title = %q, want the new title", m.convTitle)
	}
	got, err := m.convs.Get(m.convID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != "Ember notes" {
		t.Errorf("stored title = %q, want the new title", got.Title)
	}
}

func TestModel_HistoryRenameCancelled(t *testing.T) {
	m := newTestModel(t)
	m.enterHistory()

	m.updateHistory(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	m.renameInput.SetValue("Discarded")
	m.updateHistory(tea.KeyMsg{Type: tea.KeyEsc})

	if m.renaming {
		t.Error("rename mode still open after cancel")
	}
	if m.convTitle != "Conversation #1" {
		t.Errorf("title = %q, a cancelled rename must not apply", m.convTitle)
	}
}
