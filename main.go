// emberchat - local LLM chat for the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/morganforge/emberchat/internal/backend"
	chatpipe "github.com/morganforge/emberchat/internal/chat"
	"github.com/morganforge/emberchat/internal/cli"
	"github.com/morganforge/emberchat/internal/config"
	"github.com/morganforge/emberchat/internal/conversation"
	"github.com/morganforge/emberchat/internal/monitor"
	"github.com/morganforge/emberchat/internal/ollama"
	"github.com/morganforge/emberchat/internal/prompt"
	"github.com/morganforge/emberchat/internal/store"
	chatui "github.com/morganforge/emberchat/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdTUI:
		runTUI(args)
	case cli.CmdAsk:
		exitOnError(cli.HandleAsk(args))
	case cli.CmdStatus:
		exitOnError(cli.HandleStatus(args))
	case cli.CmdBackends:
		exitOnError(cli.HandleBackends(args))
	case cli.CmdPrompt:
		exitOnError(cli.HandlePrompt(args))
	case cli.CmdHistory:
		exitOnError(cli.HandleHistory(args))
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	default:
		runTUI(args)
	}
}

// exitOnError prints a handler error and exits non-zero.
func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runTUI wires up storage, the connectivity monitor, and the chat
// pipeline, then hands control to Bubble Tea.
func runTUI(args cli.Args) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	stateDir, err := cfg.StateDirPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// The TUI owns the terminal, so stdlib log output goes to a file.
	if logFile, err := os.OpenFile(filepath.Join(stateDir, "emberchat.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
		log.SetOutput(logFile)
		defer logFile.Close()
	}

	st, err := store.New(stateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening state store: %v\n", err)
		os.Exit(1)
	}

	backends, err := backend.NewRegistry(st)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading backends: %v\n", err)
		os.Exit(1)
	}

	prompts, err := prompt.NewRegistry(st)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading prompts: %v\n", err)
		os.Exit(1)
	}

	convs, err := conversation.NewStore(st)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading conversations: %v\n", err)
		os.Exit(1)
	}

	// First run: seed a localhost backend so the TUI is usable before
	// any explicit configuration.
	if len(backends.List()) == 0 {
		if _, err := backends.Create(backend.Fields{
			Name:         "Local",
			Host:         "127.0.0.1",
			Port:         "11434",
			ContextTurns: -1,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating default backend: %v\n", err)
			os.Exit(1)
		}
	}

	// CLI --model overrides the selected model, then the config default
	// fills in when nothing is selected yet.
	if active := backends.Active(); active != nil {
		selected := args.Model
		if selected == "" && active.SelectedModel == "" {
			selected = cfg.DefaultModel
		}
		if selected != "" && selected != active.SelectedModel {
			if err := backends.SetSelectedModel(active.ID, selected); err != nil {
				fmt.Fprintf(os.Stderr, "Error selecting model: %v\n", err)
				os.Exit(1)
			}
		}
	}

	// Events bridge: pipeline callbacks and the monitor post here, the
	// Bubble Tea update loop drains it.
	events := make(chan tea.Msg, 64)

	mon := monitor.NewWithInterval(func(s monitor.State) {
		select {
		case events <- chatui.ConnStateMsg{State: s}:
		default:
		}
	}, cfg.Monitor.ProbeInterval())

	mon.SetProbe(func(ctx context.Context) error {
		active := backends.Active()
		if active == nil {
			return ollama.ErrNotRunning
		}
		client := ollama.NewClientWithConfig(&ollama.ClientConfig{
			BaseURL:      active.BaseURL(),
			ProbeTimeout: cfg.Monitor.ProbeTimeout(),
		})
		return client.CheckRunning(ctx)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mon.Run(ctx)

	pipeline := chatpipe.New(backends, prompts, convs, mon, nil)

	m := chatui.New(cfg, pipeline, backends, convs, mon, events)

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running emberchat: %v\n", err)
		os.Exit(1)
	}
}
