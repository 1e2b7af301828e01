// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morganforge/emberchat/internal/backend"
	"github.com/morganforge/emberchat/internal/conversation"
	"github.com/morganforge/emberchat/internal/monitor"
	"github.com/morganforge/emberchat/internal/ollama"
	"github.com/morganforge/emberchat/internal/prompt"
	"github.com/morganforge/emberchat/internal/store"
)

// =============================================================================
// FAKE CLIENT
// =============================================================================

// fakeClient scripts client responses and records what the pipeline sent.
type fakeClient struct {
	mu sync.Mutex

	streamChunks []ollama.StreamChunk
	streamErr    error
	streamCalls  [][]ollama.Message

	chatResp  *ollama.ChatResponse
	chatErr   error
	chatCalls [][]ollama.Message
}

func (f *fakeClient) ChatStream(ctx context.Context, model string, messages []ollama.Message, callback ollama.StreamCallback) error {
	f.mu.Lock()
	f.streamCalls = append(f.streamCalls, messages)
	f.mu.Unlock()

	for _, chunk := range f.streamChunks {
		callback(chunk)
	}
	return f.streamErr
}

func (f *fakeClient) Chat(ctx context.Context, model string, messages []ollama.Message) (*ollama.ChatResponse, error) {
	f.mu.Lock()
	f.chatCalls = append(f.chatCalls, messages)
	f.mu.Unlock()

	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return f.chatResp, nil
}

func (f *fakeClient) streamed() [][]ollama.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamCalls
}

// =============================================================================
// FIXTURE
// =============================================================================

type fixture struct {
	pipeline *Pipeline
	backends *backend.Registry
	prompts  *prompt.Registry
	convs    *conversation.Store
	monitor  *monitor.Monitor
	client   *fakeClient
	configID string
}

// newFixture builds a pipeline around one active backend with a selected
// model and an empty conversation store.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := store.New(t.TempDir())
	require.NoError(t, err)

	backends, err := backend.NewRegistry(s)
	require.NoError(t, err)
	prompts, err := prompt.NewRegistry(s)
	require.NoError(t, err)
	convs, err := conversation.NewStore(s)
	require.NoError(t, err)

	id, err := backends.Create(backend.Fields{
		Name: "Local", Host: "127.0.0.1", Port: "11434", ContextTurns: -1,
	})
	require.NoError(t, err)
	require.NoError(t, backends.SetSelectedModel(id, "llama3.2:3b"))

	client := &fakeClient{}
	mon := monitor.NewWithInterval(nil, time.Hour)

	return &fixture{
		pipeline: New(backends, prompts, convs, mon, func(string) Chatter { return client }),
		backends: backends,
		prompts:  prompts,
		convs:    convs,
		monitor:  mon,
		client:   client,
		configID: id,
	}
}

func doneChunk(promptTokens, completionTokens int) ollama.StreamChunk {
	return ollama.StreamChunk{
		Done:             true,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}
}

// =============================================================================
// PREFLIGHT
// =============================================================================

func TestSend_NoActiveBackend(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.backends.Delete(f.configID))

	var errMsg string
	err := f.pipeline.Send(context.Background(), "conv", "hi", Events{
		OnError: func(msg string) { errMsg = msg },
	})

	require.Error(t, err)
	assert.Contains(t, errMsg, "No backend configured")
	assert.Empty(t, f.client.streamed(), "preflight failure must not reach the network")
}

func TestSend_NoModelSelected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.backends.SetSelectedModel(f.configID, ""))

	var errMsg string
	err := f.pipeline.Send(context.Background(), "conv", "hi", Events{
		OnError: func(msg string) { errMsg = msg },
	})

	require.Error(t, err)
	assert.Contains(t, errMsg, "No model selected")
	assert.Empty(t, f.client.streamed())
}

func TestSend_DisconnectedBackend(t *testing.T) {
	f := newFixture(t)
	f.monitor.MarkDisconnected()

	var errMsg string
	err := f.pipeline.Send(context.Background(), "conv", "hi", Events{
		OnError: func(msg string) { errMsg = msg },
	})

	require.Error(t, err)
	assert.Contains(t, errMsg, "unreachable")
	assert.Empty(t, f.client.streamed())
}

func TestSend_WhileDisconnectedSchedulesRecheck(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	reachable := false
	f.monitor.SetProbe(func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if reachable {
			return nil
		}
		return ollama.ErrNotRunning
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.monitor.Run(ctx)

	waitForState(t, f.monitor, monitor.StateDisconnected)
	// Let any probe already queued by SetProbe run while still down.
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	reachable = true
	mu.Unlock()

	require.Error(t, f.pipeline.Send(context.Background(), "conv", "hi", Events{}))

	// The poll interval is an hour, so only the recheck scheduled by
	// the refused send can flip the state.
	waitForState(t, f.monitor, monitor.StateConnected)
}

func waitForState(t *testing.T, m *monitor.Monitor, want monitor.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("monitor state = %v, want %v", m.State(), want)
}

// =============================================================================
// STREAMING AND PERSISTENCE
// =============================================================================

func TestSend_StreamsAndPersists(t *testing.T) {
	f := newFixture(t)
	conv, err := f.convs.New("llama3.2:3b")
	require.NoError(t, err)

	f.client.streamChunks = []ollama.StreamChunk{
		{Content: "Hel"},
		{Content: "lo"},
		doneChunk(12, 5),
	}

	var deltas []string
	var result *Result
	err = f.pipeline.Send(context.Background(), conv.ID, "hi there", Events{
		OnDelta: func(cumulative string) { deltas = append(deltas, cumulative) },
		OnDone:  func(res *Result) { result = res },
	})
	require.NoError(t, err)

	// Every delta carries the cumulative text, not the fragment.
	assert.Equal(t, []string{"Hel", "Hello"}, deltas)

	require.NotNil(t, result)
	assert.Equal(t, "Hello", result.Content)
	assert.Equal(t, 12, result.PromptTokens)
	assert.Equal(t, 5, result.CompletionTokens)

	saved, err := f.convs.Get(conv.ID)
	require.NoError(t, err)
	require.Len(t, saved.Messages, 2)
	assert.Equal(t, 1, saved.ExchangeCount)

	user, assistant := saved.Messages[0], saved.Messages[1]
	assert.Equal(t, conversation.RoleUser, user.Role)
	assert.Equal(t, "hi there", user.Content)
	assert.Equal(t, 12, user.Tokens, "prompt_eval_count lands on the user message")
	assert.Equal(t, conversation.RoleAssistant, assistant.Role)
	assert.Equal(t, "Hello", assistant.Content)
	assert.Equal(t, 5, assistant.Tokens, "eval_count lands on the assistant message")
}

func TestSend_FailureMidStreamPersistsNothing(t *testing.T) {
	f := newFixture(t)
	conv, err := f.convs.New("llama3.2:3b")
	require.NoError(t, err)

	f.client.streamChunks = []ollama.StreamChunk{{Content: "partial answer"}}
	f.client.streamErr = ollama.ErrNotRunning

	var errMsg string
	err = f.pipeline.Send(context.Background(), conv.ID, "hi", Events{
		OnError: func(msg string) { errMsg = msg },
	})

	require.Error(t, err)
	assert.Contains(t, errMsg, "Could not reach Ollama")

	// The connection failure flips the monitor without waiting for a poll.
	assert.Equal(t, monitor.StateDisconnected, f.monitor.State())

	// Partial content is discarded; the conversation holds no half-exchange.
	saved, err := f.convs.Get(conv.ID)
	require.NoError(t, err)
	assert.Empty(t, saved.Messages)
	assert.Equal(t, 0, saved.ExchangeCount)
}

func TestSend_ModelErrorDoesNotMarkDisconnected(t *testing.T) {
	f := newFixture(t)
	conv, err := f.convs.New("llama3.2:3b")
	require.NoError(t, err)

	f.client.streamErr = ollama.ErrModelNotFound

	err = f.pipeline.Send(context.Background(), conv.ID, "hi", Events{})
	require.Error(t, err)

	// A missing model is not a connectivity problem.
	assert.NotEqual(t, monitor.StateDisconnected, f.monitor.State())
}

// =============================================================================
// MESSAGE ASSEMBLY
// =============================================================================

func TestSend_IncludesSystemPromptFirst(t *testing.T) {
	f := newFixture(t)
	conv, err := f.convs.New("llama3.2:3b")
	require.NoError(t, err)

	key := prompt.Key{ConfigID: f.configID, Model: "llama3.2:3b"}
	require.NoError(t, f.prompts.Set(key, "You are a pirate."))

	f.client.streamChunks = []ollama.StreamChunk{{Content: "arr"}, doneChunk(1, 1)}
	require.NoError(t, f.pipeline.Send(context.Background(), conv.ID, "ahoy", Events{}))

	calls := f.client.streamed()
	require.Len(t, calls, 1)
	sent := calls[0]
	require.Len(t, sent, 2)
	assert.Equal(t, "system", sent[0].Role)
	assert.Equal(t, "You are a pirate.", sent[0].Content)
	assert.Equal(t, "user", sent[1].Role)
}

func TestSend_ContextWindowLimitsHistory(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.backends.Update(f.configID, backend.Fields{
		Name: "Local", Host: "127.0.0.1", Port: "11434", ContextTurns: 2,
	}))

	conv, err := f.convs.New("llama3.2:3b")
	require.NoError(t, err)

	// Seed four exchanges directly in the store.
	for i := 0; i < 4; i++ {
		_, err := f.convs.AppendExchange(conv.ID,
			conversation.Message{Role: conversation.RoleUser, Content: "q", CreatedAt: time.Now()},
			conversation.Message{Role: conversation.RoleAssistant, Content: "a", CreatedAt: time.Now()},
		)
		require.NoError(t, err)
	}

	f.client.streamChunks = []ollama.StreamChunk{{Content: "ok"}, doneChunk(1, 1)}
	require.NoError(t, f.pipeline.Send(context.Background(), conv.ID, "new question", Events{}))

	sent := f.client.streamed()[0]
	// Two turns of history (4 messages) plus the new user message.
	require.Len(t, sent, 5)
	assert.Equal(t, "new question", sent[len(sent)-1].Content)
}

func TestSend_ZeroContextTurnsSendsNoHistory(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.backends.Update(f.configID, backend.Fields{
		Name: "Local", Host: "127.0.0.1", Port: "11434", ContextTurns: 0,
	}))

	conv, err := f.convs.New("llama3.2:3b")
	require.NoError(t, err)
	_, err = f.convs.AppendExchange(conv.ID,
		conversation.Message{Role: conversation.RoleUser, Content: "old", CreatedAt: time.Now()},
		conversation.Message{Role: conversation.RoleAssistant, Content: "older", CreatedAt: time.Now()},
	)
	require.NoError(t, err)

	f.client.streamChunks = []ollama.StreamChunk{{Content: "ok"}, doneChunk(1, 1)}
	require.NoError(t, f.pipeline.Send(context.Background(), conv.ID, "fresh", Events{}))

	sent := f.client.streamed()[0]
	require.Len(t, sent, 1)
	assert.Equal(t, "fresh", sent[0].Content)
}

func TestAssemble_NegativeContextTurnsSendsNoHistory(t *testing.T) {
	// The registry normalizes negatives on write, but a hand-edited
	// state file can still carry one; it must not panic the window math.
	f := newFixture(t)

	conv, err := f.convs.New("llama3.2:3b")
	require.NoError(t, err)
	_, err = f.convs.AppendExchange(conv.ID,
		conversation.Message{Role: conversation.RoleUser, Content: "old", CreatedAt: time.Now()},
		conversation.Message{Role: conversation.RoleAssistant, Content: "older", CreatedAt: time.Now()},
	)
	require.NoError(t, err)
	conv, err = f.convs.Get(conv.ID)
	require.NoError(t, err)

	cfg := &backend.Config{ID: f.configID, Name: "Local", ContextTurns: -1}
	messages := f.pipeline.assemble(cfg, "llama3.2:3b", conv, "fresh")

	require.Len(t, messages, 1)
	assert.Equal(t, "fresh", messages[0].Content)
}
