// Package command parses and executes `send "<message>" to <recipient>` commands.
package command

import (
	"errors"
	"regexp"
	"strings"
)

// ErrUnparseable is returned when a command matches none of the send forms.
var ErrUnparseable = errors.New("command could not be parsed")

// Command is a parsed send command.
type Command struct {
	Message   string `json:"message"`
	Recipient string `json:"recipient"`
}

// Tried in order; the first match wins.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)^(?:send|sent)\s+"(.*?)"\s+to\s+(.+)$`),
	regexp.MustCompile(`(?is)^(?:send|sent)\s+'(.*?)'\s+to\s+(.+)$`),
	regexp.MustCompile(`(?is)^(?:send|sent)\s+(.+?)\s+to\s+(.+)$`),
}

// Parse splits a user-typed send command into message and recipient. The
// grammar is ambiguous for messages holding quotes followed by " to ", so
// programmatic callers pass a Command to Executor.Send instead.
// ok is false when no form matches or either part is empty.
func Parse(command string) (Command, bool) {
	command = strings.TrimSpace(command)
	for _, re := range patterns {
		m := re.FindStringSubmatch(command)
		if m == nil {
			continue
		}
		cmd := Command{
			Message:   strings.TrimSpace(m[1]),
			Recipient: strings.TrimSpace(m[2]),
		}
		if cmd.Message == "" || cmd.Recipient == "" {
			return Command{}, false
		}
		return cmd, true
	}
	return Command{}, false
}
