// package command extracts bot-directed commands from free-text comments.
package command

import (
	"strings"
)

// Command is one parsed bot command: the word following the bot mention and
// any remaining words on the same line.
type Command struct {
	Name string
	Args []string
}

// Parse scans the body of a comment for lines addressed to the bot and
// returns the commands they contain, in line order. A line carries a command
// iff its first whitespace-delimited word is exactly "@<botLogin>"; the second
// word is the command name and the rest are arguments. Anything else is
// ignored. A mention with no following word is ignored too — there is no
// command to run.
func Parse(body, botLogin string) []Command {
	mention := "@" + botLogin

	// Normalize line endings so the split behaves the same for payloads
	// produced on any platform.
	body = strings.ReplaceAll(body, "\r\n", "\n")

	var commands []Command
	for _, line := range strings.Split(body, "\n") {
		words := strings.Fields(line)
		if len(words) < 2 || words[0] != mention {
			continue
		}
		commands = append(commands, Command{
			Name: words[1],
			Args: words[2:],
		})
	}
	return commands
}
