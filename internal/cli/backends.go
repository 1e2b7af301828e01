// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// backends.go - Backend management commands for emberchat.
//
// CLI: Comprehensive help and examples for all commands
//
// Command: backends
// Short:   Manage Ollama backend configs
// Aliases: backend, b
//
// Examples:
//   emberchat backends list
//   emberchat backends add workstation --host 192.168.1.20 --port 11434
//   emberchat backends use cfg_a1b2c3d4
//   emberchat backends model llama3.2:3b
//   emberchat backends remove cfg_a1b2c3d4
//
// Subcommands:
//   list              List configured backends (active marked with *)
//   add NAME          Add a backend config
//     --host HOST       Backend host (default: 127.0.0.1)
//     --port PORT       Backend port (default: 11434)
//     --context-turns N History turns sent per request
//     --description D   Free-text description
//   use <id>          Make a backend active
//   model <name>      Select a model on the active backend
//   remove <id>       Remove a backend and its prompts
//
// The first backend added becomes active automatically. Removing the
// active backend leaves no backend active until "use" picks another.
package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/morganforge/emberchat/internal/backend"
	"github.com/morganforge/emberchat/internal/ollama"
)

// HandleBackends handles the "backends" command and its subcommands.
func HandleBackends(args Args) error {
	e, err := openEnv()
	if err != nil {
		return err
	}

	sub := args.Subcommand
	rest := args.Raw
	if len(rest) > 0 {
		rest = rest[1:]
	}

	switch sub {
	case "", "list", "ls":
		return backendsList(e, args)
	case "add":
		return backendsAdd(e, rest)
	case "use", "activate":
		return backendsUse(e, rest)
	case "model":
		return backendsModel(e, rest)
	case "remove", "rm", "delete":
		return backendsRemove(e, rest)
	default:
		return fmt.Errorf("unknown backends subcommand: %s", sub)
	}
}

// backendsList prints all configured backends.
func backendsList(e *env, args Args) error {
	configs := e.backends.List()
	active := e.backends.Active()

	if args.JSON {
		type item struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			URL           string `json:"url"`
			SelectedModel string `json:"selected_model,omitempty"`
			ContextTurns  int    `json:"context_turns"`
			Active        bool   `json:"active"`
		}
		items := make([]item, 0, len(configs))
		for _, c := range configs {
			items = append(items, item{
				ID:            c.ID,
				Name:          c.Name,
				URL:           c.BaseURL(),
				SelectedModel: c.SelectedModel,
				ContextTurns:  c.ContextTurns,
				Active:        active != nil && active.ID == c.ID,
			})
		}
		return NewJSONResponse("backends", items).Print()
	}

	if len(configs) == 0 {
		fmt.Println("No backends configured. Add one with \"emberchat backends add NAME\".")
		return nil
	}

	for _, c := range configs {
		marker := " "
		if active != nil && active.ID == c.ID {
			marker = "*"
		}
		model := c.SelectedModel
		if model == "" {
			model = "(no model selected)"
		}
		fmt.Printf("%s %s  %s\n", marker, c.ID, c.Name)
		fmt.Printf("    %s  %s  %d turns\n", c.BaseURL(), model, c.ContextTurns)
		if c.Description != "" {
			fmt.Printf("    %s\n", c.Description)
		}
	}
	return nil
}

// backendsAdd creates a backend config from name and flags.
func backendsAdd(e *env, rest []string) error {
	fields := backend.Fields{
		Host:         "127.0.0.1",
		Port:         "11434",
		ContextTurns: -1,
	}

	var nameParts []string
	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		switch arg {
		case "--host":
			if i+1 < len(rest) {
				i++
				fields.Host = rest[i]
			}
		case "--port":
			if i+1 < len(rest) {
				i++
				fields.Port = rest[i]
			}
		case "--context-turns":
			if i+1 < len(rest) {
				i++
				if n, err := strconv.Atoi(rest[i]); err == nil && n >= 0 {
					fields.ContextTurns = n
				}
			}
		case "--description":
			if i+1 < len(rest) {
				i++
				fields.Description = rest[i]
			}
		default:
			if !strings.HasPrefix(arg, "-") {
				nameParts = append(nameParts, arg)
			}
		}
	}

	fields.Name = strings.Join(nameParts, " ")
	if fields.Name == "" {
		return fmt.Errorf("usage: emberchat backends add NAME [--host HOST] [--port PORT]")
	}

	id, err := e.backends.Create(fields)
	if err != nil {
		return err
	}

	fmt.Printf("Added backend %s (%s)\n", fields.Name, id)
	if active := e.backends.Active(); active != nil && active.ID == id {
		fmt.Println("Backend is now active.")
	}
	return nil
}

// backendsUse activates the backend with the given id.
func backendsUse(e *env, rest []string) error {
	if len(rest) == 0 {
		return fmt.Errorf("usage: emberchat backends use <id>")
	}
	id := rest[0]

	if err := e.backends.SetActive(id); err != nil {
		return err
	}

	cfg, _ := e.backends.Get(id)
	fmt.Printf("Active backend: %s (%s)\n", cfg.Name, cfg.BaseURL())
	return nil
}

// backendsModel selects a model on the active backend, verifying it is
// installed when the backend is reachable.
func backendsModel(e *env, rest []string) error {
	if len(rest) == 0 {
		return fmt.Errorf("usage: emberchat backends model <name>")
	}
	model := rest[0]

	client, active, err := e.client()
	if err != nil {
		return err
	}

	// Warn (but do not block) when the model is not installed or the
	// backend cannot be reached. The selection still sticks so it can
	// be made ahead of a pull.
	ctx := context.Background()
	models, listErr := client.ListModels(ctx)
	if listErr == nil {
		found := false
		for _, m := range models {
			if m.Name == model {
				found = true
				break
			}
		}
		if !found {
			fmt.Printf("Warning: %q is not installed on %s\n", model, active.BaseURL())
		}
	} else if ollama.IsNotRunning(listErr) {
		fmt.Printf("Warning: backend %s is not reachable; selection saved anyway\n", active.BaseURL())
	}

	if err := e.backends.SetSelectedModel(active.ID, model); err != nil {
		return err
	}

	fmt.Printf("Selected model %s on %s\n", model, active.Name)
	return nil
}

// backendsRemove deletes a backend and its system prompts.
func backendsRemove(e *env, rest []string) error {
	if len(rest) == 0 {
		return fmt.Errorf("usage: emberchat backends remove <id>")
	}
	id := rest[0]

	cfg, err := e.backends.Get(id)
	if err != nil {
		return err
	}

	if err := e.backends.Delete(id); err != nil {
		return err
	}
	if err := e.prompts.DeleteForConfig(id); err != nil {
		return err
	}

	fmt.Printf("Removed backend %s (%s)\n", cfg.Name, id)
	return nil
}
