package tui

import (
	"fmt"
	"strings"
)

// Command represents a parsed prompt command.
type Command struct {
	Name string
	Args string
}

// Commands understood by the ':' prompt.
const (
	CmdOpen    = "open"
	CmdClose   = "close"
	CmdRefresh = "refresh"
	CmdQuit    = "quit"
)

var aliases = map[string]string{
	"o": CmdOpen,
	"c": CmdClose,
	"r": CmdRefresh,
	"q": CmdQuit,
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) (Command, error) {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if full, ok := aliases[cmd.Name]; ok {
		cmd.Name = full
	}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}

	switch cmd.Name {
	case CmdOpen:
		if cmd.Args == "" || strings.ContainsAny(cmd.Args, " \t") {
			return Command{}, fmt.Errorf("usage: open <userId>")
		}
	case CmdClose, CmdRefresh, CmdQuit:
	case "":
		return Command{}, fmt.Errorf("empty command")
	default:
		return Command{}, fmt.Errorf("unknown command %q", cmd.Name)
	}
	return cmd, nil
}
