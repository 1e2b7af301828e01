// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// prompt.go - System prompt commands for emberchat.
//
// CLI: Comprehensive help and examples for all commands
//
// Command: prompt
// Short:   Manage per-model system prompts
// Aliases: prompts, p
//
// Examples:
//   emberchat prompt show
//   emberchat prompt set "You are a terse senior Go reviewer."
//   emberchat prompt set -m llama3.2:3b "Answer in one sentence."
//   emberchat prompt history
//   emberchat prompt restore 2
//   emberchat prompt clear
//
// Subcommands:
//   show              Show the active system prompt
//   set "text"        Set the system prompt (previous versions kept)
//   clear             Clear the active prompt, keeping history
//   history           List prior versions, newest first
//   restore <n>       Make version n the active prompt
//   delete <n>        Delete version n from history
//     -m, --model NAME  Target model (default: selected model)
//
// Prompts are scoped to the pair of active backend and model. Switching
// either selects a different prompt.
package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/morganforge/emberchat/internal/prompt"
)

// HandlePrompt handles the "prompt" command and its subcommands.
func HandlePrompt(args Args) error {
	e, err := openEnv()
	if err != nil {
		return err
	}

	sub := args.Subcommand
	rest := args.Raw
	if len(rest) > 0 {
		rest = rest[1:]
	}
	rest = extractModelFlag(&args, rest)

	key, err := promptKey(e, args)
	if err != nil {
		return err
	}

	switch sub {
	case "", "show":
		return promptShow(e, key)
	case "set":
		return promptSet(e, key, rest)
	case "clear":
		return promptClear(e, key)
	case "history":
		return promptHistory(e, key)
	case "restore":
		return promptRestore(e, key, rest)
	case "delete", "rm":
		return promptDelete(e, key, rest)
	default:
		return fmt.Errorf("unknown prompt subcommand: %s", sub)
	}
}

// extractModelFlag pulls -m/--model out of the remaining args.
func extractModelFlag(args *Args, rest []string) []string {
	var out []string
	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		switch {
		case arg == "-m" || arg == "--model":
			if i+1 < len(rest) {
				i++
				args.Model = rest[i]
			}
		case strings.HasPrefix(arg, "--model="):
			args.Model = strings.TrimPrefix(arg, "--model=")
		default:
			out = append(out, arg)
		}
	}
	return out
}

// promptKey resolves the (backend, model) pair the command targets.
func promptKey(e *env, args Args) (prompt.Key, error) {
	active, err := e.activeBackend()
	if err != nil {
		return prompt.Key{}, err
	}

	model := args.Model
	if model == "" {
		model = active.SelectedModel
	}
	if model == "" {
		return prompt.Key{}, fmt.Errorf("no model selected; pass --model or run \"emberchat backends model NAME\"")
	}

	return prompt.Key{ConfigID: active.ID, Model: model}, nil
}

// promptShow prints the active prompt for the key.
func promptShow(e *env, key prompt.Key) error {
	text := e.prompts.Get(key)
	if text == "" {
		fmt.Printf("No system prompt set for %s.\n", key.Model)
		return nil
	}
	fmt.Println(text)
	return nil
}

// promptSet stores a new prompt version.
func promptSet(e *env, key prompt.Key, rest []string) error {
	text := strings.TrimSpace(strings.Join(rest, " "))
	if text == "" {
		return fmt.Errorf("usage: emberchat prompt set \"text\"")
	}

	if err := e.prompts.Set(key, text); err != nil {
		return err
	}

	fmt.Printf("System prompt set for %s.\n", key.Model)
	return nil
}

// promptClear clears the active prompt but keeps history.
func promptClear(e *env, key prompt.Key) error {
	if err := e.prompts.Set(key, ""); err != nil {
		return err
	}
	fmt.Printf("System prompt cleared for %s. History kept.\n", key.Model)
	return nil
}

// promptHistory lists prior versions, newest first.
func promptHistory(e *env, key prompt.Key) error {
	entries := e.prompts.History(key)
	if len(entries) == 0 {
		fmt.Printf("No prompt history for %s.\n", key.Model)
		return nil
	}

	active := e.prompts.Get(key)
	for i, entry := range entries {
		marker := " "
		if entry.Prompt == active {
			marker = "*"
		}
		fmt.Printf("%s v%d  %s  %s\n",
			marker,
			e.prompts.VersionNumber(key, i),
			entry.CreatedAt.Format("2006-01-02 15:04"),
			firstLine(entry.Prompt))
	}
	return nil
}

// promptRestore makes a history version the active prompt.
func promptRestore(e *env, key prompt.Key, rest []string) error {
	index, err := historyIndex(e, key, rest, "restore")
	if err != nil {
		return err
	}

	if err := e.prompts.SetActiveFromHistory(key, index); err != nil {
		return err
	}

	fmt.Printf("Restored prompt version for %s.\n", key.Model)
	return nil
}

// promptDelete removes a history version.
func promptDelete(e *env, key prompt.Key, rest []string) error {
	index, err := historyIndex(e, key, rest, "delete")
	if err != nil {
		return err
	}

	if err := e.prompts.DeleteHistoryEntry(key, index); err != nil {
		return err
	}

	fmt.Println("Deleted prompt version.")
	return nil
}

// historyIndex converts a 1-based version number argument into the
// newest-first index the registry uses.
func historyIndex(e *env, key prompt.Key, rest []string, verb string) (int, error) {
	if len(rest) == 0 {
		return 0, fmt.Errorf("usage: emberchat prompt %s <n>", verb)
	}

	version, err := strconv.Atoi(rest[0])
	if err != nil || version < 1 {
		return 0, fmt.Errorf("invalid version number: %s", rest[0])
	}

	entries := e.prompts.History(key)
	if version > len(entries) {
		return 0, fmt.Errorf("no such version: %d (history has %d)", version, len(entries))
	}

	return len(entries) - version, nil
}

// firstLine returns the first line of a prompt, trimmed for list output.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return s
}
