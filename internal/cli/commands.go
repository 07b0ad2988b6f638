// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/genstudio/internal/model"
)

// =============================================================================
// COMMAND TABLE
// =============================================================================

type commandSpec struct {
	name    string
	aliases []string
	usage   string
	help    string
}

var commandTable = []commandSpec{
	{"help", []string{"h", "?"}, "/help", "Show available commands"},
	{"brand", []string{"b"}, "/brand [id]", "Show or switch the active brand (resets the session)"},
	{"attach", []string{"a"}, "/attach [path...]", "Queue files for the next message, or list the queue"},
	{"asset", nil, "/asset <path...>", "Queue a library asset reference"},
	{"detach", nil, "/detach <n>", "Remove a queued attachment by number"},
	{"ratio", []string{"r"}, "/ratio [W:H]", "Show or set the brand's aspect ratio"},
	{"mode", []string{"m"}, "/mode [name]", "Show or set the brand's generation mode"},
	{"product", []string{"p"}, "/product [id...]", "Set products for following messages (none clears)"},
	{"template", nil, "/template [id]", "Set the template for following messages (none clears)"},
	{"cancel", []string{"x"}, "/cancel", "Cancel the running generation"},
	{"regen", []string{"retry"}, "/regen [n]", "Regenerate the last (or nth) assistant turn"},
	{"choose", []string{"c"}, "/choose <n|id...>", "Answer the open question or pick images"},
	{"history", []string{"hist"}, "/history", "List the conversation"},
	{"dismiss", nil, "/dismiss", "Clear the error and attachment warnings"},
	{"clear", nil, "/clear", "Clear the conversation"},
	{"status", []string{"s"}, "/status", "Show session state"},
	{"config", nil, "/config [key]", "Show configuration values"},
	{"quit", []string{"q", "exit"}, "/quit", "Exit"},
}

// lookupCommand resolves a command name or alias.
func lookupCommand(name string) (commandSpec, bool) {
	name = strings.ToLower(name)
	for _, c := range commandTable {
		if c.name == name {
			return c, true
		}
		for _, a := range c.aliases {
			if a == name {
				return c, true
			}
		}
	}
	return commandSpec{}, false
}

// =============================================================================
// PARSING
// =============================================================================

// Command is a parsed slash command.
type Command struct {
	Name string
	Args []string
}

// ErrUnknownCommand is returned for slash commands not in the table.
var ErrUnknownCommand = errors.New("unknown command")

// parseCommand parses "/name arg ..." into its canonical name and arguments.
// Double quotes group an argument containing spaces.
func parseCommand(input string) (Command, error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return Command{}, fmt.Errorf("not a command: %q", input)
	}

	fields, err := splitArgs(input[1:])
	if err != nil {
		return Command{}, err
	}
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: /", ErrUnknownCommand)
	}

	spec, ok := lookupCommand(fields[0])
	if !ok {
		return Command{}, fmt.Errorf("%w: /%s (try /help)", ErrUnknownCommand, fields[0])
	}
	return Command{Name: spec.name, Args: fields[1:]}, nil
}

// splitArgs splits on whitespace, honoring double quotes.
func splitArgs(s string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inQuote bool
		hasArg  bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			hasArg = true
		case !inQuote && (r == ' ' || r == '\t'):
			if hasArg {
				args = append(args, cur.String())
				cur.Reset()
				hasArg = false
			}
		default:
			cur.WriteRune(r)
			hasArg = true
		}
	}
	if inQuote {
		return nil, errors.New("unterminated quote")
	}
	if hasArg {
		args = append(args, cur.String())
	}
	return args, nil
}

// =============================================================================
// SELECTION HELPERS
// =============================================================================

// resolveSelection maps /choose arguments onto the interaction's values.
// Numbers are 1-based positions; anything else is passed through as an id,
// value or image reference.
func resolveSelection(in *model.Interaction, args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, ErrMissingArgument("selection", "/choose 1")
	}

	out := make([]string, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil {
			out = append(out, arg)
			continue
		}
		switch in.Kind {
		case model.InteractionChoices:
			if n < 1 || n > len(in.Options) {
				return nil, NewValidationError("option", arg, fmt.Sprintf("choose 1-%d", len(in.Options)))
			}
			out = append(out, in.Options[n-1].ID)
		case model.InteractionImageSelect:
			if n < 1 || n > len(in.Images) {
				return nil, NewValidationError("image", arg, fmt.Sprintf("choose 1-%d", len(in.Images)))
			}
			out = append(out, in.Images[n-1])
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

// assistantByNumber returns the nth assistant turn (1-based), or the last
// one when n is 0.
func assistantByNumber(msgs []model.Message, n int) (model.Message, bool) {
	var turns []model.Message
	for _, m := range msgs {
		if m.Role == model.RoleAssistant {
			turns = append(turns, m)
		}
	}
	if len(turns) == 0 {
		return model.Message{}, false
	}
	if n == 0 {
		return turns[len(turns)-1], true
	}
	if n < 1 || n > len(turns) {
		return model.Message{}, false
	}
	return turns[n-1], true
}

// openInteraction returns the newest assistant turn with an unanswered
// interaction.
func openInteraction(msgs []model.Message) (model.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role == model.RoleAssistant && m.Interaction != nil && !m.Interaction.Resolved {
			return m, true
		}
	}
	return model.Message{}, false
}

// replyTo finds the assistant turn answering the newest user turn with
// content that is not in known. Turns removed by a clear or brand switch
// are not found.
func replyTo(msgs []model.Message, content string, known map[string]struct{}) (model.Message, bool) {
	content = strings.TrimSpace(content)
	for i := len(msgs) - 2; i >= 0; i-- {
		m := msgs[i]
		if m.Role != model.RoleUser || m.Content != content {
			continue
		}
		if _, old := known[m.ID]; old {
			continue
		}
		if next := msgs[i+1]; next.Role == model.RoleAssistant {
			return next, true
		}
	}
	return model.Message{}, false
}
