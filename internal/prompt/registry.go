// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prompt manages per-(backend, model) system prompts.
//
// Each key holds the currently active prompt plus an append-only version
// history, newest first, capped at MaxHistory entries. The key is an
// explicit struct rather than a delimited string so backend ids or model
// names containing a separator can never collide.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/morganforge/emberchat/internal/store"
)

// Storage keys within the state store.
const (
	keyPrompts = "prompts"
	keyHistory = "prompt_history"
)

// MaxHistory caps the version history per key; the oldest entry is evicted
// when a save would exceed it.
const MaxHistory = 50

// ErrNoSuchEntry is returned when a history index is out of range.
var ErrNoSuchEntry = errors.New("no such prompt history entry")

// Key identifies a prompt by backend config and model.
type Key struct {
	ConfigID string
	Model    string
}

// keySeparator joins the key parts in the serialized map form. The unit
// separator cannot appear in a uuid and is not accepted in Ollama model
// names.
const keySeparator = "\x1f"

// MarshalText serializes the key for use as a JSON map key.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.ConfigID + keySeparator + k.Model), nil
}

// UnmarshalText parses the serialized map form.
func (k *Key) UnmarshalText(text []byte) error {
	parts := strings.SplitN(string(text), keySeparator, 2)
	if len(parts) != 2 {
		return fmt.Errorf("malformed prompt key %q", text)
	}
	k.ConfigID = parts[0]
	k.Model = parts[1]
	return nil
}

// HistoryEntry is one saved prompt version.
type HistoryEntry struct {
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry is the prompt store. Safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	store *store.Store

	prompts map[Key]string
	history map[Key][]HistoryEntry
}

// NewRegistry loads prompt state from the store.
func NewRegistry(s *store.Store) (*Registry, error) {
	r := &Registry{
		store:   s,
		prompts: make(map[Key]string),
		history: make(map[Key][]HistoryEntry),
	}

	if _, err := s.Load(keyPrompts, &r.prompts); err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	if _, err := s.Load(keyHistory, &r.history); err != nil {
		return nil, fmt.Errorf("failed to load prompt history: %w", err)
	}

	return r, nil
}

// Get returns the active prompt for key, or "" if none is set.
func (r *Registry) Get(key Key) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prompts[key]
}

// Set saves the active prompt for key. A non-empty text also appends a
// history entry, even when identical to the previous version. An empty
// text clears the active prompt but leaves history untouched.
func (r *Registry) Set(key Key, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		delete(r.prompts, key)
		return r.saveLocked()
	}

	r.prompts[key] = text
	r.appendHistoryLocked(key, text)
	return r.saveLocked()
}

// History returns the version history for key, newest first.
func (r *Registry) History(key Key) []HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.history[key]
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out
}

// VersionNumber returns the display version for a history index: newest
// entry (index 0) carries the highest number. Not a stable identifier; it
// shifts as entries are deleted.
func (r *Registry) VersionNumber(key Key, index int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history[key]) - index
}

// DeleteHistoryEntry removes one version. Removing the entry that equals
// the active prompt promotes the newest remaining entry to active, or
// clears the active prompt when the history becomes empty. Removing any
// other entry leaves the active prompt alone.
func (r *Registry) DeleteHistoryEntry(key Key, index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.history[key]
	if index < 0 || index >= len(entries) {
		return ErrNoSuchEntry
	}

	deletingActive := entries[index].Prompt == r.prompts[key]
	entries = append(entries[:index], entries[index+1:]...)

	if len(entries) == 0 {
		delete(r.history, key)
		delete(r.prompts, key)
		return r.saveLocked()
	}

	r.history[key] = entries
	if deletingActive {
		// Promote without re-appending: history already holds the entry.
		r.prompts[key] = entries[0].Prompt
	}
	return r.saveLocked()
}

// SetActiveFromHistory makes an older version the active prompt again.
// Like any non-empty save this appends a fresh history entry.
func (r *Registry) SetActiveFromHistory(key Key, index int) error {
	r.mu.Lock()

	entries := r.history[key]
	if index < 0 || index >= len(entries) {
		r.mu.Unlock()
		return ErrNoSuchEntry
	}
	text := entries[index].Prompt
	r.mu.Unlock()

	return r.Set(key, text)
}

// DeleteForConfig drops all prompts and history belonging to a backend
// config, used when the config itself is deleted.
func (r *Registry) DeleteForConfig(configID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k := range r.prompts {
		if k.ConfigID == configID {
			delete(r.prompts, k)
		}
	}
	for k := range r.history {
		if k.ConfigID == configID {
			delete(r.history, k)
		}
	}
	return r.saveLocked()
}

// appendHistoryLocked prepends a version and enforces the cap. Caller must
// hold r.mu.
func (r *Registry) appendHistoryLocked(key Key, text string) {
	entries := append([]HistoryEntry{{Prompt: text, CreatedAt: time.Now()}}, r.history[key]...)
	if len(entries) > MaxHistory {
		entries = entries[:MaxHistory]
	}
	r.history[key] = entries
}

// saveLocked persists both maps. Caller must hold r.mu.
func (r *Registry) saveLocked() error {
	if err := r.store.Save(keyPrompts, r.prompts); err != nil {
		return fmt.Errorf("failed to save prompts: %w", err)
	}
	if err := r.store.Save(keyHistory, r.history); err != nil {
		return fmt.Errorf("failed to save prompt history: %w", err)
	}
	return nil
}
