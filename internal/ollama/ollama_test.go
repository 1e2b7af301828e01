// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func TestCheckRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("probe path = %s, want /api/tags", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	if err := client.CheckRunning(context.Background()); err != nil {
		t.Errorf("CheckRunning() error = %v, want nil", err)
	}
}

func TestCheckRunning_NotRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // closed server refuses connections

	client := NewClient(srv.URL)
	err := client.CheckRunning(context.Background())
	if !IsNotRunning(err) {
		t.Errorf("CheckRunning() error = %v, want not-running", err)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %s, want /api/tags", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ListModelsResponse{
			Models: []ModelInfo{
				{Name: "llama3.2:3b", Size: 2 << 30},
				{Name: "mistral:7b"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("ListModels() returned %d models, want 2", len(models))
	}
	if models[0].Name != "llama3.2:3b" {
		t.Errorf("models[0].Name = %q, want llama3.2:3b", models[0].Name)
	}
}

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s, want /api/chat", r.URL.Path)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("Chat() must send stream:false")
		}
		json.NewEncoder(w).Encode(ChatResponse{
			Model:   req.Model,
			Message: Message{Role: "assistant", Content: "hi there"},
			Done:    true,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	resp, err := client.Chat(context.Background(), "llama3.2:3b", []Message{NewUserMessage("hi")})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Message.Content != "hi there" {
		t.Errorf("response content = %q, want %q", resp.Message.Content, "hi there")
	}
}

func TestChat_ModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Chat(context.Background(), "nope", nil)
	if !IsModelNotFound(err) {
		t.Errorf("Chat() error = %v, want model-not-found", err)
	}
}

func TestChat_APIErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(OllamaError{Error: "model requires more memory"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Chat(context.Background(), "big", nil)
	if err == nil || !strings.Contains(err.Error(), "more memory") {
		t.Errorf("Chat() error = %v, want the API error message surfaced", err)
	}
}

func TestChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("ChatStream() must send stream:true")
		}

		lines := []string{
			`{"model":"llama3.2:3b","message":{"role":"assistant","content":"Hel"},"done":false}`,
			`{"model":"llama3.2:3b","message":{"role":"assistant","content":"lo"},"done":false}`,
			`{"model":"llama3.2:3b","message":{"role":"assistant","content":""},"done":true,"eval_count":5,"prompt_eval_count":12}`,
		}
		for _, line := range lines {
			w.Write([]byte(line + "\n"))
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	acc := NewStreamAccumulator()
	err := client.ChatStream(context.Background(), "llama3.2:3b", []Message{NewUserMessage("hi")}, acc.Add)
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}

	if got := acc.GetContent(); got != "Hello" {
		t.Errorf("accumulated content = %q, want %q", got, "Hello")
	}
	if !acc.IsDone() {
		t.Error("accumulator not marked done")
	}
	if acc.CompletionTokens != 5 {
		t.Errorf("CompletionTokens = %d, want 5", acc.CompletionTokens)
	}
	if acc.PromptTokens != 12 {
		t.Errorf("PromptTokens = %d, want 12", acc.PromptTokens)
	}
	if acc.TTFT() <= 0 {
		t.Error("TTFT not recorded after first content chunk")
	}
}

func TestChatStream_SkipsMalformedLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":"ok"},"done":false}` + "\n"))
		w.Write([]byte("this is not json\n"))
		w.Write([]byte(`{"message":{"content":"!"},"done":true}` + "\n"))
	}))
	defer srv.Close()

	var logBuf bytes.Buffer
	log.SetOutput(&logBuf)
	defer log.SetOutput(os.Stderr)

	client := NewClient(srv.URL)
	acc := NewStreamAccumulator()
	if err := client.ChatStream(context.Background(), "m", nil, acc.Add); err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}
	if got := acc.GetContent(); got != "ok!" {
		t.Errorf("content = %q, want malformed line skipped", got)
	}
	if !strings.Contains(logBuf.String(), "malformed stream line") {
		t.Errorf("log = %q, want the skipped line recorded", logBuf.String())
	}
}

func TestChatStream_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":"slow"},"done":false}` + "\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	client := NewClient(srv.URL)
	err := client.ChatStream(ctx, "m", nil, func(StreamChunk) {})
	if err == nil {
		t.Fatal("ChatStream() should fail when the context expires mid-stream")
	}
}

func TestChatStreamChan_DeliversErrorChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient(srv.URL)
	var last StreamChunk
	for chunk := range client.ChatStreamChan(context.Background(), "m", nil) {
		last = chunk
	}
	if last.Error == nil || !last.Done {
		t.Errorf("final chunk = %+v, want Done with Error set", last)
	}
}

func TestStreamReader_FinalLineWithoutNewline(t *testing.T) {
	body := `{"message":{"content":"partial"},"done":true}`
	reader := NewStreamReader(strings.NewReader(body))

	var got []StreamChunk
	err := reader.Process(context.Background(), func(chunk StreamChunk) {
		got = append(got, chunk)
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(got) != 1 || got[0].Content != "partial" || !got[0].Done {
		t.Errorf("chunks = %+v, want the unterminated final line parsed", got)
	}
}

func TestClientErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &ClientError{Type: ErrTypeConnection, Message: "request failed", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause through Unwrap")
	}
	if got := err.Error(); got != "request failed: boom" {
		t.Errorf("Error() = %q", got)
	}
}

func TestChatResponse_TokensPerSecond(t *testing.T) {
	resp := &ChatResponse{EvalCount: 100, EvalDuration: int64(2 * time.Second)}
	if got := resp.TokensPerSecond(); got != 50 {
		t.Errorf("TokensPerSecond() = %v, want 50", got)
	}

	var zero ChatResponse
	if got := zero.TokensPerSecond(); got != 0 {
		t.Errorf("TokensPerSecond() with no duration = %v, want 0", got)
	}
}
