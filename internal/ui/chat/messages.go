// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"github.com/morganforge/emberchat/internal/chat"
	"github.com/morganforge/emberchat/internal/monitor"
)

// =============================================================================
// EVENT MESSAGES
// =============================================================================

// StreamDeltaMsg carries the cumulative assistant text mid-stream.
type StreamDeltaMsg struct {
	ConvID  string
	Content string
}

// StreamDoneMsg signals a fully persisted exchange.
type StreamDoneMsg struct {
	ConvID string
	Result *chat.Result
}

// StreamErrorMsg carries the user-facing diagnostic for a failed send.
type StreamErrorMsg struct {
	ConvID  string
	Message string
}

// TitleUpdatedMsg arrives when the title generator renames a conversation.
type TitleUpdatedMsg struct {
	ConvID string
	Title  string
}

// ConnStateMsg reports a connectivity transition from the monitor.
type ConnStateMsg struct {
	State monitor.State
}
