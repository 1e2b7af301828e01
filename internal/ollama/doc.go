// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
//
// This package implements a client for the Ollama local LLM server,
// supporting both streaming and non-streaming chat completions.
//
// # Key Types
//
//   - Client: HTTP client for Ollama API communication
//   - Message: Chat message with role and content
//   - ChatResponse: Response structure with message and metrics
//   - StreamReader: Newline-delimited JSON streaming response reader
//   - StreamChunk: One delta of a streaming response
//
// # Usage
//
// Create a client and send a chat request:
//
//	client := ollama.NewClient("http://127.0.0.1:11434")
//	resp, err := client.Chat(ctx, "llama3.2:3b", []ollama.Message{
//	    ollama.NewUserMessage("Hello"),
//	})
//
// For streaming responses:
//
//	err := client.ChatStream(ctx, model, messages, func(chunk ollama.StreamChunk) {
//	    fmt.Print(chunk.Content)
//	})
package ollama
