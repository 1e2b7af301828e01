// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/morganforge/emberchat/internal/conversation"
	"github.com/morganforge/emberchat/internal/ollama"
	"github.com/morganforge/emberchat/internal/util"
)

// titleTimeout bounds one title generation request.
const titleTimeout = 30 * time.Second

// titleSourceMessages is how many leading messages feed the summary. The
// opening of a conversation names its topic better than the tail.
const titleSourceMessages = 6

// earlyMilestones are the exchange counts that trigger a title refresh
// while a conversation is young. Past the last one, every eighth exchange
// triggers again.
var earlyMilestones = map[int]bool{1: true, 2: true, 3: true, 5: true, 8: true}

// titleMilestone reports whether the conversation just hit an unprocessed
// title milestone, and which one.
func titleMilestone(conv *conversation.Conversation) (int, bool) {
	if conv.ManuallyRenamed {
		return 0, false
	}

	n := conv.ExchangeCount
	hit := earlyMilestones[n] || (n > 8 && n%8 == 0)
	if !hit || n <= conv.LastTitleMilestone {
		return 0, false
	}
	return n, true
}

// GenerateTitle asks the model for a short title summarizing the start of
// the conversation.
func GenerateTitle(ctx context.Context, client Chatter, model string, conv *conversation.Conversation) (string, error) {
	source := conv.Messages
	if len(source) > titleSourceMessages {
		source = source[:titleSourceMessages]
	}
	if len(source) == 0 {
		return "", errors.New("conversation has no messages")
	}

	var transcript strings.Builder
	for _, m := range source {
		transcript.WriteString(m.Role)
		transcript.WriteString(": ")
		transcript.WriteString(m.Content)
		transcript.WriteString("\n")
	}

	messages := []ollama.Message{
		ollama.NewSystemMessage("You generate very short conversation titles. " +
			"Reply with only the title: 3 to 5 words, no quotes, no punctuation at the end."),
		ollama.NewUserMessage("Summarize this conversation into a 3-5 word title:\n\n" + transcript.String()),
	}

	resp, err := client.Chat(ctx, model, messages)
	if err != nil {
		return "", err
	}

	title := cleanTitle(resp.Message.Content)
	if title == "" {
		return "", errors.New("model returned an empty title")
	}
	return title, nil
}

// cleanTitle normalizes model output into a single-line title.
func cleanTitle(raw string) string {
	title := util.Flatten(strings.TrimSpace(raw))

	// Models love to quote their answers.
	for len(title) >= 2 {
		first, last := title[0], title[len(title)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			title = strings.TrimSpace(title[1 : len(title)-1])
			continue
		}
		break
	}

	return title
}
