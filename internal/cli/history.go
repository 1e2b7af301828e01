// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history.go - Conversation history commands for emberchat.
//
// CLI: Comprehensive help and examples for all commands
//
// Command: history
// Short:   Manage saved conversations
// Aliases: conversations, h
//
// Examples:
//   emberchat history list
//   emberchat history show conv_a1b2c3d4
//   emberchat history search "context window"
//   emberchat history pin conv_a1b2c3d4
//   emberchat history rename conv_a1b2c3d4 "GC tuning notes"
//   emberchat history delete conv_a1b2c3d4
//
// Subcommands:
//   list              List conversations, pinned first
//   show <id>         Print a conversation transcript
//   search <text>     Search titles and message bodies
//   pin <id>          Pin a conversation
//   unpin <id>        Unpin a conversation
//   rename <id> TITLE Rename (disables automatic titling)
//   export <id>       Write a conversation to a file
//     --format md|json  Export format (default: md)
//     --output DIR      Output directory (default: current directory)
//   delete <id>       Delete a conversation
//     --json            Output in JSON format
package cli

import (
	"fmt"
	"strings"

	"github.com/morganforge/emberchat/internal/conversation"
	"github.com/morganforge/emberchat/internal/export"
	"github.com/morganforge/emberchat/internal/util"
)

// HandleHistory handles the "history" command and its subcommands.
func HandleHistory(args Args) error {
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
		return historyList(e, args)
	case "show":
		return historyShow(e, rest)
	case "search":
		return historySearch(e, rest)
	case "pin":
		return historySetPinned(e, rest, true)
	case "unpin":
		return historySetPinned(e, rest, false)
	case "rename":
		return historyRename(e, rest)
	case "export":
		return historyExport(e, rest)
	case "delete", "rm":
		return historyDelete(e, rest)
	default:
		return fmt.Errorf("unknown history subcommand: %s", sub)
	}
}

// historyList prints all conversations, pinned first.
func historyList(e *env, args Args) error {
	pinned := e.convs.Pinned()
	unpinned := e.convs.Unpinned()

	if args.JSON {
		type item struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			Model     string `json:"model"`
			Exchanges int    `json:"exchanges"`
			Pinned    bool   `json:"pinned"`
			UpdatedAt string `json:"updated_at"`
		}
		var items []item
		for _, c := range append(pinned, unpinned...) {
			items = append(items, item{
				ID:        c.ID,
				Title:     c.Title,
				Model:     c.Model,
				Exchanges: c.ExchangeCount,
				Pinned:    c.Pinned,
				UpdatedAt: c.UpdatedAt.Format("2006-01-02 15:04"),
			})
		}
		return NewJSONResponse("history", items).Print()
	}

	if len(pinned)+len(unpinned) == 0 {
		fmt.Println("No saved conversations.")
		return nil
	}

	printConvList(pinned, unpinned)
	return nil
}

// printConvList renders one line per conversation.
func printConvList(pinned, unpinned []*conversation.Conversation) {
	for _, c := range pinned {
		fmt.Printf("* %s  %-40s  %s  %d exchanges\n",
			c.ID, util.Truncate(c.Title, 40), c.UpdatedAt.Format("2006-01-02 15:04"), c.ExchangeCount)
	}
	for _, c := range unpinned {
		fmt.Printf("  %s  %-40s  %s  %d exchanges\n",
			c.ID, util.Truncate(c.Title, 40), c.UpdatedAt.Format("2006-01-02 15:04"), c.ExchangeCount)
	}
}

// historyShow prints a full transcript.
func historyShow(e *env, rest []string) error {
	if len(rest) == 0 {
		return fmt.Errorf("usage: emberchat history show <id>")
	}

	conv, err := e.convs.Get(rest[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s, %d exchanges)\n", conv.Title, conv.Model, conv.ExchangeCount)
	fmt.Println(strings.Repeat("-", 41))
	for _, m := range conv.Messages {
		label := "You"
		if m.Role == conversation.RoleAssistant {
			label = conv.Model
		}
		fmt.Printf("\n[%s] %s\n%s\n", m.CreatedAt.Format("15:04"), label, m.Content)
	}
	return nil
}

// historySearch lists conversations matching the query.
func historySearch(e *env, rest []string) error {
	if len(rest) == 0 {
		return fmt.Errorf("usage: emberchat history search <text>")
	}
	query := strings.Join(rest, " ")

	matches := e.convs.Search(query)
	if len(matches) == 0 {
		fmt.Printf("No conversations match %q.\n", query)
		return nil
	}

	var pinned, unpinned []*conversation.Conversation
	for _, c := range matches {
		if c.Pinned {
			pinned = append(pinned, c)
		} else {
			unpinned = append(unpinned, c)
		}
	}
	printConvList(pinned, unpinned)
	return nil
}

// historySetPinned pins or unpins a conversation.
func historySetPinned(e *env, rest []string, pinned bool) error {
	verb := "pin"
	if !pinned {
		verb = "unpin"
	}
	if len(rest) == 0 {
		return fmt.Errorf("usage: emberchat history %s <id>", verb)
	}

	var err error
	if pinned {
		err = e.convs.Pin(rest[0])
	} else {
		err = e.convs.Unpin(rest[0])
	}
	if err != nil {
		return err
	}

	fmt.Printf("%sned %s\n", strings.Title(verb), rest[0])
	return nil
}

// historyRename renames a conversation and disables automatic titling.
func historyRename(e *env, rest []string) error {
	if len(rest) < 2 {
		return fmt.Errorf("usage: emberchat history rename <id> TITLE")
	}

	id := rest[0]
	title := strings.Join(rest[1:], " ")
	if err := e.convs.Rename(id, title); err != nil {
		return err
	}

	fmt.Printf("Renamed %s to %q\n", id, title)
	return nil
}

// historyExport writes a conversation to a file in the chosen format.
func historyExport(e *env, rest []string) error {
	var id, format string
	opts := export.DefaultOptions()

	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		switch {
		case arg == "--format":
			if i+1 < len(rest) {
				i++
				format = rest[i]
			}
		case strings.HasPrefix(arg, "--format="):
			format = strings.TrimPrefix(arg, "--format=")
		case arg == "--output", arg == "-o":
			if i+1 < len(rest) {
				i++
				opts.OutputDir = rest[i]
			}
		case strings.HasPrefix(arg, "--output="):
			opts.OutputDir = strings.TrimPrefix(arg, "--output=")
		case !strings.HasPrefix(arg, "-"):
			id = arg
		}
	}
	if id == "" {
		return fmt.Errorf("usage: emberchat history export <id> [--format md|json] [--output DIR]")
	}

	conv, err := e.convs.Get(id)
	if err != nil {
		return err
	}

	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return err
	}

	path, err := export.ExportToFile(conv, exporter, opts)
	if err != nil {
		return err
	}

	fmt.Printf("Exported %s to %s\n", id, path)
	return nil
}

// historyDelete removes a conversation.
func historyDelete(e *env, rest []string) error {
	if len(rest) == 0 {
		return fmt.Errorf("usage: emberchat history delete <id>")
	}

	if err := e.convs.Delete(rest[0]); err != nil {
		return err
	}

	fmt.Printf("Deleted %s\n", rest[0])
	return nil
}
