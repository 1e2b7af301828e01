// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat wires the backend registry, prompt registry, conversation
// store, and connectivity monitor into the streaming send pipeline.
package chat

import (
	"context"
	"log"
	"time"

	"github.com/morganforge/emberchat/internal/backend"
	"github.com/morganforge/emberchat/internal/conversation"
	"github.com/morganforge/emberchat/internal/monitor"
	"github.com/morganforge/emberchat/internal/ollama"
	"github.com/morganforge/emberchat/internal/prompt"
)

// =============================================================================
// CLIENT ABSTRACTION
// =============================================================================

// Chatter is the subset of the Ollama client the pipeline needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message) (*ollama.ChatResponse, error)
	ChatStream(ctx context.Context, model string, messages []ollama.Message, callback ollama.StreamCallback) error
}

// ClientFactory builds a client for a backend base URL. Each send resolves
// the active backend fresh, so a config edit takes effect on the next send.
type ClientFactory func(baseURL string) Chatter

// DefaultClientFactory returns the real Ollama client.
func DefaultClientFactory(baseURL string) Chatter {
	return ollama.NewClient(baseURL)
}

// =============================================================================
// EVENTS
// =============================================================================

// Events receives pipeline progress. Callbacks fire on the pipeline's
// goroutine; nil callbacks are skipped.
type Events struct {
	// OnDelta delivers the cumulative assistant text after every chunk.
	// The full text replaces whatever was shown before.
	OnDelta func(cumulative string)

	// OnDone fires once after a fully successful exchange.
	OnDone func(res *Result)

	// OnError delivers a user-facing diagnostic. The exchange is
	// abandoned; nothing was persisted.
	OnError func(message string)

	// OnTitleUpdated fires when the title generator renames the
	// conversation, possibly well after OnDone.
	OnTitleUpdated func(convID, title string)
}

// Result summarizes a completed exchange.
type Result struct {
	Conversation     *conversation.Conversation
	Content          string
	TTFT             time.Duration
	PromptTokens     int
	CompletionTokens int
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline executes sends against the active backend. One send at a time;
// the UI disables input while a send is in flight.
type Pipeline struct {
	backends  *backend.Registry
	prompts   *prompt.Registry
	convs     *conversation.Store
	monitor   *monitor.Monitor
	newClient ClientFactory
}

// New creates a pipeline. A nil factory uses the real Ollama client.
func New(backends *backend.Registry, prompts *prompt.Registry, convs *conversation.Store, mon *monitor.Monitor, factory ClientFactory) *Pipeline {
	if factory == nil {
		factory = DefaultClientFactory
	}
	return &Pipeline{
		backends:  backends,
		prompts:   prompts,
		convs:     convs,
		monitor:   mon,
		newClient: factory,
	}
}

// Send runs one exchange: preflight, assemble, stream, persist, title.
// Progress is reported through events; the returned error duplicates what
// OnError already delivered, for callers that prefer error handling.
func (p *Pipeline) Send(ctx context.Context, convID, text string, events Events) error {
	// Preflight. Fail fast with a user-facing diagnostic before any
	// network traffic.
	cfg := p.backends.Active()
	if cfg == nil {
		return p.fail(events, "No backend configured. Add one in settings before sending.")
	}
	model := cfg.SelectedModel
	if model == "" {
		return p.fail(events, "No model selected for backend \""+cfg.Name+"\". Pick a model first.")
	}
	if p.monitor != nil && p.monitor.State() == monitor.StateDisconnected {
		// Schedule a probe so a backend that came back is noticed
		// before the next poll tick.
		p.monitor.ForceCheck()
		return p.fail(events, "Backend \""+cfg.Name+"\" is unreachable. Check that Ollama is running at "+cfg.BaseURL()+".")
	}

	conv, err := p.convs.Get(convID)
	if err != nil {
		return p.fail(events, "Conversation no longer exists.")
	}

	messages := p.assemble(cfg, model, conv, text)

	// Stream. Deltas carry the cumulative text so the UI just replaces
	// its buffer.
	client := p.newClient(cfg.BaseURL())
	sentAt := time.Now()
	acc := ollama.NewStreamAccumulator()
	streamErr := client.ChatStream(ctx, model, messages, func(chunk ollama.StreamChunk) {
		acc.Add(chunk)
		if chunk.Error == nil && events.OnDelta != nil {
			events.OnDelta(acc.GetContent())
		}
	})
	if streamErr == nil {
		streamErr = acc.GetError()
	}

	if streamErr != nil {
		// Partial content is discarded; the store never holds a
		// half-exchange.
		if p.monitor != nil && (ollama.IsNotRunning(streamErr) || ollama.IsTimeout(streamErr)) {
			p.monitor.MarkDisconnected()
		}
		return p.fail(events, describeError(streamErr, cfg, model))
	}

	// Persist the exchange only now that the stream fully succeeded.
	userMsg := conversation.Message{
		Role:      conversation.RoleUser,
		Content:   text,
		CreatedAt: sentAt,
		Tokens:    acc.PromptTokens,
	}
	assistantMsg := conversation.Message{
		Role:      conversation.RoleAssistant,
		Content:   acc.GetContent(),
		CreatedAt: time.Now(),
		Tokens:    acc.CompletionTokens,
		LatencyMs: acc.TTFT().Milliseconds(),
	}

	updated, err := p.convs.AppendExchange(convID, userMsg, assistantMsg)
	if err != nil {
		return p.fail(events, "Failed to save the exchange: "+err.Error())
	}

	if events.OnDone != nil {
		events.OnDone(&Result{
			Conversation:     updated,
			Content:          acc.GetContent(),
			TTFT:             acc.TTFT(),
			PromptTokens:     acc.PromptTokens,
			CompletionTokens: acc.CompletionTokens,
		})
	}

	p.maybeGenerateTitle(client, model, updated, events)
	return nil
}

// assemble builds the request messages: system prompt first, then the
// context window oldest-first, then the new user message.
func (p *Pipeline) assemble(cfg *backend.Config, model string, conv *conversation.Conversation, text string) []ollama.Message {
	var messages []ollama.Message

	if p.prompts != nil {
		if sys := p.prompts.Get(prompt.Key{ConfigID: cfg.ID, Model: model}); sys != "" {
			messages = append(messages, ollama.NewSystemMessage(sys))
		}
	}

	// ContextTurns limits how many past exchanges ride along. Zero sends
	// none; so does a negative value from a hand-edited state file.
	window := conv.Messages
	if cfg.ContextTurns <= 0 {
		window = nil
	} else if limit := cfg.ContextTurns * 2; len(window) > limit {
		window = window[len(window)-limit:]
	}
	for _, m := range window {
		messages = append(messages, ollama.Message{Role: m.Role, Content: m.Content})
	}

	return append(messages, ollama.NewUserMessage(text))
}

// maybeGenerateTitle fires the title generator when the conversation hit a
// fresh milestone. Fire-and-forget; failures are logged, never shown.
func (p *Pipeline) maybeGenerateTitle(client Chatter, model string, conv *conversation.Conversation, events Events) {
	milestone, ok := titleMilestone(conv)
	if !ok {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
		defer cancel()

		title, err := GenerateTitle(ctx, client, model, conv)
		if err != nil {
			log.Printf("title generation failed for %s: %v", conv.ID, err)
			return
		}

		if err := p.convs.SetTitle(conv.ID, title, milestone); err != nil {
			log.Printf("title save failed for %s: %v", conv.ID, err)
			return
		}
		if events.OnTitleUpdated != nil {
			events.OnTitleUpdated(conv.ID, title)
		}
	}()
}

// fail reports a diagnostic and returns it as an error.
func (p *Pipeline) fail(events Events, message string) error {
	if events.OnError != nil {
		events.OnError(message)
	}
	return &PipelineError{Message: message}
}

// PipelineError is a user-facing send failure.
type PipelineError struct {
	Message string
}

func (e *PipelineError) Error() string { return e.Message }

// describeError turns a client error into a user-facing diagnostic.
func describeError(err error, cfg *backend.Config, model string) string {
	switch {
	case ollama.IsNotRunning(err):
		return "Could not reach Ollama at " + cfg.BaseURL() + ". Is it running?"
	case ollama.IsTimeout(err):
		return "The request to \"" + cfg.Name + "\" timed out."
	case ollama.IsModelNotFound(err):
		return "Model \"" + model + "\" is not available on \"" + cfg.Name + "\". Pull it with: ollama pull " + model
	default:
		return "The model returned an error: " + err.Error()
	}
}
