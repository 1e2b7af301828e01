// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for emberchat.
//
// CLI: Comprehensive help and examples for all commands
package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdStatus
	CmdBackends
	CmdPrompt
	CmdHistory
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool
	Model   string
	JSON    bool // Output in JSON format

	// Command-specific
	Query      string
	Subcommand string

	// Raw args (remaining after flag parsing)
	Raw []string

	// Options holds command-specific named options (e.g., --host, --port)
	Options map[string]string
}

const usageText = `emberchat - local LLM chat for the terminal

Emberchat is a desktop-class chat client for local Ollama models.

It provides:
  - Streaming chat against any Ollama backend
  - Multiple backend configs with per-model system prompts
  - Persistent conversation history with pin and rename
  - Automatic conversation titles generated by the model

Usage:
  emberchat                       Start the chat TUI (default)
  emberchat ask "question"        Ask a single question
  emberchat status, s             Show backend connectivity and models
  emberchat backends [subcommand] Manage backend configs
  emberchat prompt [subcommand]   Manage system prompts
  emberchat history [subcommand]  Manage saved conversations
  emberchat version               Show version information
  emberchat help                  Show this help

Ask Command:
  emberchat ask "question"          One-shot question, streamed to stdout
    -m, --model NAME                Override the selected model
    --save                          Save the exchange as a conversation
    --plain                         Skip markdown rendering

Backend Commands:
  emberchat backends list           List configured backends
  emberchat backends add NAME       Add a backend
    --host HOST                     Backend host (default: 127.0.0.1)
    --port PORT                     Backend port (default: 11434)
    --context-turns N               History turns sent per request
  emberchat backends use <id>       Make a backend active
  emberchat backends model <name>   Select a model on the active backend
  emberchat backends remove <id>    Remove a backend
    --json                          Output in JSON format

Prompt Commands:
  emberchat prompt show             Show the active system prompt
  emberchat prompt set "text"       Set the system prompt
  emberchat prompt clear            Clear the active prompt (history kept)
  emberchat prompt history          List prior prompt versions
  emberchat prompt restore <n>      Restore prompt version n
    -m, --model NAME                Target model (default: selected model)

History Commands:
  emberchat history list            List saved conversations
  emberchat history show <id>       Print a conversation transcript
  emberchat history search <text>   Search titles and messages
  emberchat history export <id>     Write a conversation to a file
    --format md|json                Export format (default: md)
  emberchat history delete <id>     Delete a conversation
    --json                          Output in JSON format

Examples:
  emberchat
  emberchat ask "explain io.Reader in one paragraph"
  emberchat ask --model llama3.2:3b --save "draft a commit message"
  emberchat backends add workstation --host 192.168.1.20 --port 11434
  emberchat prompt set "You are a terse senior Go reviewer."
  emberchat history search "context window"

Environment:
  EMBERCHAT_HOME            Override the config directory
  EMBERCHAT_MODEL           Override the default model
  EMBERCHAT_PROBE_INTERVAL  Connectivity probe interval in seconds

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("emberchat version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	return parse(os.Args[1:])
}

// parse is the testable core of Parse.
func parse(argv []string) (Command, Args) {
	// Parse global flags first
	remaining, parsedArgs := parseGlobalFlags(argv)

	// If no remaining args, default to TUI
	if len(remaining) == 0 {
		return CmdTUI, parsedArgs
	}

	// Check first argument for command
	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "tui":
		return CmdTUI, parsedArgs

	case "ask":
		parseAskArgs(&parsedArgs, remaining)
		return CmdAsk, parsedArgs

	case "status", "s":
		return CmdStatus, parsedArgs

	case "backends", "backend", "b":
		// Subcommand parsing is done in backends.go HandleBackends
		if len(remaining) > 0 {
			parsedArgs.Subcommand = remaining[0]
		}
		return CmdBackends, parsedArgs

	case "prompt", "prompts", "p":
		// Subcommand parsing is done in prompt.go HandlePrompt
		if len(remaining) > 0 {
			parsedArgs.Subcommand = remaining[0]
		}
		return CmdPrompt, parsedArgs

	case "history", "conversations", "h":
		// Subcommand parsing is done in history.go HandleHistory
		if len(remaining) > 0 {
			parsedArgs.Subcommand = remaining[0]
		}
		return CmdHistory, parsedArgs

	case "version", "-v", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		// Unknown command - could be a direct prompt, default to TUI
		// Restore the command as it might be part of args
		parsedArgs.Raw = append([]string{cmd}, remaining...)
		return CmdTUI, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	parsedArgs := Args{
		Options: make(map[string]string),
	}

	i := 0
	for i < len(args) {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "--verbose":
			parsedArgs.Verbose = true
		case "--json":
			parsedArgs.JSON = true
		case "-m", "--model":
			if i+1 < len(args) {
				i++
				parsedArgs.Model = args[i]
			}
		default:
			// Check for --model=value format
			if strings.HasPrefix(arg, "--model=") {
				parsedArgs.Model = strings.TrimPrefix(arg, "--model=")
			} else {
				remaining = append(remaining, arg)
			}
		}
		i++
	}

	return remaining, parsedArgs
}

// parseAskArgs parses ask command specific arguments.
func parseAskArgs(args *Args, remaining []string) {
	var query []string

	i := 0
	for i < len(remaining) {
		arg := remaining[i]

		switch arg {
		case "-m", "--model":
			if i+1 < len(remaining) {
				i++
				args.Model = remaining[i]
			}
		case "--save":
			args.Options["save"] = "true"
		case "--plain":
			args.Options["plain"] = "true"
		default:
			if strings.HasPrefix(arg, "--model=") {
				args.Model = strings.TrimPrefix(arg, "--model=")
			} else if !strings.HasPrefix(arg, "-") {
				query = append(query, arg)
			}
		}
		i++
	}

	args.Query = strings.Join(query, " ")
}
