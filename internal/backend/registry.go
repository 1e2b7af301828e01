// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend manages the list of configured chat backends.
//
// A backend is a named host:port pointing at an Ollama-compatible server.
// At most one backend is active at a time; the active backend is what the
// chat pipeline and connectivity monitor talk to.
package backend

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/morganforge/emberchat/internal/store"
)

// Storage keys within the state store.
const (
	keyBackends = "backends"
	keyActive   = "active_backend"
)

// DefaultContextTurns is the number of prior exchanges included as history
// when a config does not specify one.
const DefaultContextTurns = 10

// ErrNotFound is returned when a config id does not exist.
var ErrNotFound = errors.New("backend config not found")

// Config describes one backend server.
type Config struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Host         string `json:"host"`
	Port         string `json:"port"`
	ContextTurns int    `json:"context_turns"`
	Description  string `json:"description,omitempty"`

	// SelectedModel remembers the last model the user picked for this
	// backend. It is a convenience cache, reconciled opportunistically.
	SelectedModel string `json:"selected_model,omitempty"`
}

// BaseURL returns the HTTP base URL for this backend.
func (c *Config) BaseURL() string {
	return "http://" + c.Host + ":" + c.Port
}

// Fields holds the user-editable parts of a config.
type Fields struct {
	Name        string
	Host        string
	Port        string
	Description string

	// ContextTurns < 0 means "not set" and falls back to the default.
	ContextTurns int
}

// Registry is the CRUD surface over backend configs plus the active pointer.
type Registry struct {
	mu    sync.Mutex
	store *store.Store

	configs  []Config
	activeID string
}

// NewRegistry loads existing configs from the store.
func NewRegistry(s *store.Store) (*Registry, error) {
	r := &Registry{store: s}

	if _, err := s.Load(keyBackends, &r.configs); err != nil {
		return nil, fmt.Errorf("failed to load backend configs: %w", err)
	}
	if _, err := s.Load(keyActive, &r.activeID); err != nil {
		return nil, fmt.Errorf("failed to load active backend id: %w", err)
	}

	// A dangling active pointer (config deleted out from under us) is
	// treated as "no active backend".
	if r.activeID != "" && r.findLocked(r.activeID) == nil {
		r.activeID = ""
	}

	return r, nil
}

// List returns a copy of all configs.
func (r *Registry) List() []Config {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Config, len(r.configs))
	copy(out, r.configs)
	return out
}

// Get returns the config with the given id.
func (r *Registry) Get(id string) (Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c := r.findLocked(id); c != nil {
		return *c, nil
	}
	return Config{}, ErrNotFound
}

// Create validates fields, assigns an id, and persists the new config.
// The first config ever created becomes active automatically.
func (r *Registry) Create(f Fields) (string, error) {
	if err := validate(f); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cfg := Config{
		ID:           uuid.New().String(),
		Name:         f.Name,
		Host:         f.Host,
		Port:         f.Port,
		ContextTurns: contextTurnsOrDefault(f.ContextTurns),
		Description:  f.Description,
	}
	r.configs = append(r.configs, cfg)

	if len(r.configs) == 1 {
		r.activeID = cfg.ID
	}

	if err := r.saveLocked(); err != nil {
		return "", err
	}
	return cfg.ID, nil
}

// Update edits an existing config in place.
func (r *Registry) Update(id string, f Fields) error {
	if err := validate(f); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.findLocked(id)
	if c == nil {
		return ErrNotFound
	}

	c.Name = f.Name
	c.Host = f.Host
	c.Port = f.Port
	c.ContextTurns = contextTurnsOrDefault(f.ContextTurns)
	c.Description = f.Description

	return r.saveLocked()
}

// Delete removes a config. Deleting the active config clears the active
// pointer; dependent selected-model state goes with the record.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i := range r.configs {
		if r.configs[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}

	r.configs = append(r.configs[:idx], r.configs[idx+1:]...)
	if r.activeID == id {
		r.activeID = ""
	}

	return r.saveLocked()
}

// SetActive marks the given config as active. Idempotent.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findLocked(id) == nil {
		return ErrNotFound
	}
	if r.activeID == id {
		return nil
	}

	r.activeID = id
	return r.saveLocked()
}

// Active returns the active config, or nil if none is set.
func (r *Registry) Active() *Config {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c := r.findLocked(r.activeID); c != nil {
		cp := *c
		return &cp
	}
	return nil
}

// SetSelectedModel records the last model chosen for a backend.
func (r *Registry) SetSelectedModel(id, model string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.findLocked(id)
	if c == nil {
		return ErrNotFound
	}
	if c.SelectedModel == model {
		return nil
	}

	c.SelectedModel = model
	return r.saveLocked()
}

// findLocked returns a pointer into r.configs. Caller must hold r.mu.
func (r *Registry) findLocked(id string) *Config {
	if id == "" {
		return nil
	}
	for i := range r.configs {
		if r.configs[i].ID == id {
			return &r.configs[i]
		}
	}
	return nil
}

// saveLocked persists both collections. Caller must hold r.mu.
func (r *Registry) saveLocked() error {
	if err := r.store.Save(keyBackends, r.configs); err != nil {
		return fmt.Errorf("failed to save backend configs: %w", err)
	}
	if err := r.store.Save(keyActive, r.activeID); err != nil {
		return fmt.Errorf("failed to save active backend id: %w", err)
	}
	return nil
}

// validate rejects configs with missing required fields. Whether host:port
// is reachable or even well-formed is deferred to request time.
func validate(f Fields) error {
	if f.Name == "" {
		return errors.New("backend name is required")
	}
	if f.Host == "" {
		return errors.New("backend host is required")
	}
	if f.Port == "" {
		return errors.New("backend port is required")
	}
	return nil
}

func contextTurnsOrDefault(n int) int {
	if n < 0 {
		return DefaultContextTurns
	}
	return n
}
