// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// env.go - Shared handler environment for emberchat CLI commands.
//
// Every command handler needs the same wiring: config, the JSON state
// store, and the registries layered on top of it. openEnv builds that
// once so handlers stay short.
package cli

import (
	"fmt"

	"github.com/morganforge/emberchat/internal/backend"
	"github.com/morganforge/emberchat/internal/config"
	"github.com/morganforge/emberchat/internal/conversation"
	"github.com/morganforge/emberchat/internal/ollama"
	"github.com/morganforge/emberchat/internal/prompt"
	"github.com/morganforge/emberchat/internal/store"
)

// env bundles the loaded config and state registries for one command run.
type env struct {
	cfg      *config.Config
	backends *backend.Registry
	prompts  *prompt.Registry
	convs    *conversation.Store
}

// openEnv loads config and opens the state store plus registries.
func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	stateDir, err := cfg.StateDirPath()
	if err != nil {
		return nil, err
	}

	st, err := store.New(stateDir)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	backends, err := backend.NewRegistry(st)
	if err != nil {
		return nil, fmt.Errorf("load backends: %w", err)
	}

	prompts, err := prompt.NewRegistry(st)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	convs, err := conversation.NewStore(st)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}

	return &env{cfg: cfg, backends: backends, prompts: prompts, convs: convs}, nil
}

// activeBackend returns the active backend config or a user-facing error.
func (e *env) activeBackend() (*backend.Config, error) {
	active := e.backends.Active()
	if active == nil {
		return nil, fmt.Errorf("no active backend; run \"emberchat backends add\" first")
	}
	return active, nil
}

// client builds an Ollama client for the active backend.
func (e *env) client() (*ollama.Client, *backend.Config, error) {
	active, err := e.activeBackend()
	if err != nil {
		return nil, nil, err
	}
	return ollama.NewClient(active.BaseURL()), active, nil
}
