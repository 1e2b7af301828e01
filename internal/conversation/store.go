// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation provides conversation persistence for emberchat.
package conversation

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/morganforge/emberchat/internal/store"
)

// keyConversations is the storage key for the whole collection.
const keyConversations = "conversations"

// =============================================================================
// TYPES
// =============================================================================

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one persisted chat message.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// Statistics. Tokens is back-filled on user messages once the backend
	// reports prompt_eval_count; LatencyMs is set on assistant messages only.
	Tokens    int   `json:"tokens,omitempty"`
	LatencyMs int64 `json:"latency_ms,omitempty"`
}

// Conversation is a persisted conversation.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []Message `json:"messages"`

	// ExchangeCount tracks completed user/assistant pairs. It is always
	// len(Messages)/2 because messages land in pairs.
	ExchangeCount int `json:"exchange_count"`

	// LastTitleMilestone records the highest exchange count at which the
	// title generator already ran, so a milestone fires at most once.
	LastTitleMilestone int `json:"last_title_milestone,omitempty"`

	Pinned bool `json:"pinned,omitempty"`

	// ManuallyRenamed stops the title generator from overwriting a title
	// the user chose.
	ManuallyRenamed bool `json:"manually_renamed,omitempty"`
}

// ErrNotFound is returned when a conversation doesn't exist.
var ErrNotFound = &Error{Message: "conversation not found"}

// Error represents a conversation-related error. It can be compared with
// errors.Is.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is implements errors.Is support.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// STORE
// =============================================================================

// Store handles conversation persistence. Safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	store *store.Store
	convs []*Conversation
}

// NewStore loads the conversation collection from the state store.
func NewStore(s *store.Store) (*Store, error) {
	cs := &Store{store: s}
	if _, err := s.Load(keyConversations, &cs.convs); err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}
	cs.sortLocked()
	return cs, nil
}

// =============================================================================
// CREATE / APPEND
// =============================================================================

// New creates and persists an empty conversation. The default title
// numbers conversations in creation order.
func (s *Store) New(model string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	conv := &Conversation{
		ID:        generateID(),
		Title:     fmt.Sprintf("Conversation #%d", len(s.convs)+1),
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.convs = append(s.convs, conv)
	s.sortLocked()
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return cloneConv(conv), nil
}

// AppendExchange appends a completed user/assistant pair, bumps the
// exchange count, and re-sorts the list by recency.
func (s *Store) AppendExchange(id string, user, assistant Message) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil {
		return nil, ErrNotFound
	}

	conv.Messages = append(conv.Messages, user, assistant)
	conv.ExchangeCount = len(conv.Messages) / 2
	conv.UpdatedAt = assistant.CreatedAt
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = time.Now()
	}

	s.sortLocked()
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return cloneConv(conv), nil
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Get retrieves a conversation by ID.
func (s *Store) Get(id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil {
		return nil, ErrNotFound
	}
	return cloneConv(conv), nil
}

// List returns all conversations, most recently active first.
func (s *Store) List() []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, cloneConv(c))
	}
	return out
}

// Pinned returns the pinned conversations, most recently active first.
func (s *Store) Pinned() []*Conversation {
	return s.filtered(true)
}

// Unpinned returns the unpinned conversations, most recently active first.
func (s *Store) Unpinned() []*Conversation {
	return s.filtered(false)
}

func (s *Store) filtered(pinned bool) []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Conversation
	for _, c := range s.convs {
		if c.Pinned == pinned {
			out = append(out, cloneConv(c))
		}
	}
	return out
}

// Search finds conversations whose title or messages contain the query,
// case-insensitively.
func (s *Store) Search(query string) []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	query = strings.ToLower(query)
	var out []*Conversation
	for _, c := range s.convs {
		if strings.Contains(strings.ToLower(c.Title), query) {
			out = append(out, cloneConv(c))
			continue
		}
		for _, m := range c.Messages {
			if strings.Contains(strings.ToLower(m.Content), query) {
				out = append(out, cloneConv(c))
				break
			}
		}
	}
	return out
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Pin marks a conversation as pinned.
func (s *Store) Pin(id string) error { return s.setPinned(id, true) }

// Unpin clears the pinned flag.
func (s *Store) Unpin(id string) error { return s.setPinned(id, false) }

func (s *Store) setPinned(id string, pinned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil {
		return ErrNotFound
	}
	conv.Pinned = pinned
	return s.saveLocked()
}

// Rename sets a user-chosen title and stops the title generator from
// touching it afterwards.
func (s *Store) Rename(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil {
		return ErrNotFound
	}
	conv.Title = title
	conv.ManuallyRenamed = true
	return s.saveLocked()
}

// SetTitle updates the title on behalf of the title generator, recording
// the milestone so it is not processed twice. A manually renamed
// conversation is left alone.
func (s *Store) SetTitle(id, title string, milestone int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil {
		return ErrNotFound
	}
	if conv.ManuallyRenamed {
		return nil
	}
	conv.Title = title
	conv.LastTitleMilestone = milestone
	return s.saveLocked()
}

// Delete removes a conversation.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.convs {
		if c.ID == id {
			s.convs = append(s.convs[:i], s.convs[i+1:]...)
			return s.saveLocked()
		}
	}
	return ErrNotFound
}

// =============================================================================
// HELPERS
// =============================================================================

// findLocked returns the live conversation or nil. Caller must hold s.mu.
func (s *Store) findLocked(id string) *Conversation {
	for _, c := range s.convs {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// sortLocked orders by last-activity time, most recent first. Caller must
// hold s.mu.
func (s *Store) sortLocked() {
	sort.SliceStable(s.convs, func(i, j int) bool {
		return s.convs[i].UpdatedAt.After(s.convs[j].UpdatedAt)
	})
}

// saveLocked persists the whole collection. Caller must hold s.mu.
func (s *Store) saveLocked() error {
	if err := s.store.Save(keyConversations, s.convs); err != nil {
		return fmt.Errorf("failed to save conversations: %w", err)
	}
	return nil
}

// cloneConv returns a copy so callers cannot mutate store state.
func cloneConv(c *Conversation) *Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return &out
}

// generateID creates a unique conversation ID.
func generateID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "conv_" + hex.EncodeToString(bytes)
}
