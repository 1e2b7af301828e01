// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot ask command for emberchat.
//
// CLI: Comprehensive help and examples for all commands
//
// Command: ask
// Short:   Ask a single question and stream the answer to stdout
//
// Examples:
//   emberchat ask "explain io.Reader in one paragraph"
//   emberchat ask -m llama3.2:3b "draft a commit message"
//   emberchat ask --save "summarize this design"
//   emberchat ask --plain "raw output" | tee answer.txt
//
// Flags:
//   -m, --model NAME    Override the selected model
//   --save              Save the exchange as a conversation
//   --plain             Skip markdown rendering
//   --json              Output the full answer as JSON
//
// On a TTY the answer is collected and rendered as markdown. When stdout
// is piped (or --plain is set) chunks stream through unmodified.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/morganforge/emberchat/internal/conversation"
	"github.com/morganforge/emberchat/internal/ollama"
	"github.com/morganforge/emberchat/internal/prompt"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer is the shared glamour renderer for markdown output.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		// Fall back to plain text if renderer initialization fails
		markdownRenderer = nil
	}
}

// renderMarkdown renders markdown content for terminal display.
// Returns the original content if rendering fails or renderer is unavailable.
func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}

	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// =============================================================================
// STYLES
// =============================================================================

var (
	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")) // Red

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")) // Dim
)

// =============================================================================
// HANDLE ASK
// =============================================================================

// AskData is the JSON payload for the ask command.
type AskData struct {
	Model            string `json:"model"`
	Question         string `json:"question"`
	Answer           string `json:"answer"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	DurationMs       int64  `json:"duration_ms"`
	ConversationID   string `json:"conversation_id,omitempty"`
}

// HandleAsk handles the "ask" command. Sends one question to the active
// backend and streams the answer.
func HandleAsk(args Args) error {
	question := strings.TrimSpace(args.Query)
	if question == "" {
		return fmt.Errorf("usage: emberchat ask \"question\"")
	}

	e, err := openEnv()
	if err != nil {
		if args.JSON {
			return NewJSONErrorResponse("ask", err).Print()
		}
		return err
	}

	client, active, err := e.client()
	if err != nil {
		if args.JSON {
			return NewJSONErrorResponse("ask", err).Print()
		}
		return err
	}

	model := args.Model
	if model == "" {
		model = active.SelectedModel
	}
	if model == "" {
		model = e.cfg.DefaultModel
	}
	if model == "" {
		err := fmt.Errorf("no model selected; run \"emberchat backends model NAME\"")
		if args.JSON {
			return NewJSONErrorResponse("ask", err).Print()
		}
		return err
	}

	// Assemble the request the same way the chat pipeline does: system
	// prompt first (when one exists for this backend and model), then
	// the question. One-shot asks carry no history.
	var messages []ollama.Message
	if sys := e.prompts.Get(prompt.Key{ConfigID: active.ID, Model: model}); sys != "" {
		messages = append(messages, ollama.NewSystemMessage(sys))
	}
	messages = append(messages, ollama.NewUserMessage(question))

	useMarkdown := IsStdoutTTY() && !args.JSON && args.Options["plain"] != "true"

	if !args.Quiet && !args.JSON {
		fmt.Println()
	}

	var answer strings.Builder
	var promptTokens, completionTokens int
	start := time.Now()

	ctx := context.Background()
	streamErr := client.ChatStream(ctx, model, messages, func(chunk ollama.StreamChunk) {
		if chunk.Error != nil {
			return
		}

		answer.WriteString(chunk.Content)

		// Stream live unless collecting for markdown rendering
		if !args.JSON && !useMarkdown {
			fmt.Print(chunk.Content)
		}

		if chunk.Done {
			promptTokens = chunk.PromptTokens
			completionTokens = chunk.CompletionTokens
		}
	})
	duration := time.Since(start)

	if streamErr != nil {
		if args.JSON {
			return NewJSONErrorResponse("ask", streamErr).Print()
		}
		fmt.Fprintf(os.Stderr, "%s %s\n", errorStyle.Render("[Error]"), describeAskError(streamErr, active.BaseURL(), model))
		return streamErr
	}

	data := AskData{
		Model:            model,
		Question:         question,
		Answer:           answer.String(),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		DurationMs:       duration.Milliseconds(),
	}

	if args.Options["save"] == "true" {
		if id, saveErr := saveAskExchange(e, model, question, data); saveErr == nil {
			data.ConversationID = id
		} else if !args.JSON {
			fmt.Fprintf(os.Stderr, "Warning: could not save conversation: %v\n", saveErr)
		}
	}

	if args.JSON {
		return NewJSONResponse("ask", data).Print()
	}

	if useMarkdown {
		fmt.Print(renderMarkdown(data.Answer))
	} else if !strings.HasSuffix(data.Answer, "\n") {
		fmt.Println()
	}

	if !args.Quiet && IsStderrTTY() {
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, statsStyle.Render(fmt.Sprintf(
			"%d prompt + %d completion tokens in %.1fs",
			promptTokens, completionTokens, duration.Seconds())))
	}
	if data.ConversationID != "" && !args.Quiet {
		fmt.Fprintf(os.Stderr, "Saved as %s\n", data.ConversationID)
	}

	return nil
}

// saveAskExchange persists the one-shot exchange as a new conversation.
func saveAskExchange(e *env, model, question string, data AskData) (string, error) {
	conv, err := e.convs.New(model)
	if err != nil {
		return "", err
	}

	now := time.Now()
	user := conversation.Message{
		Role:      conversation.RoleUser,
		Content:   question,
		CreatedAt: now.Add(-time.Duration(data.DurationMs) * time.Millisecond),
		Tokens:    data.PromptTokens,
	}
	assistant := conversation.Message{
		Role:      conversation.RoleAssistant,
		Content:   data.Answer,
		CreatedAt: now,
		Tokens:    data.CompletionTokens,
	}

	if _, err := e.convs.AppendExchange(conv.ID, user, assistant); err != nil {
		return "", err
	}
	return conv.ID, nil
}

// describeAskError maps client errors to actionable one-liners.
func describeAskError(err error, baseURL, model string) string {
	switch {
	case ollama.IsNotRunning(err):
		return fmt.Sprintf("cannot reach Ollama at %s (is it running?)", baseURL)
	case ollama.IsTimeout(err):
		return fmt.Sprintf("request to %s timed out", baseURL)
	case ollama.IsModelNotFound(err):
		return fmt.Sprintf("model %q is not installed (try: ollama pull %s)", model, model)
	default:
		return err.Error()
	}
}
