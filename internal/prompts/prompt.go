package prompts

import "github.com/ChamsBouzaiene/codepair/internal/patch"

// Command is the kind of user request a system prompt is written for.
type Command string

const (
	// CommandCode asks for file changes in the configured diff format.
	CommandCode Command = "code"
	// CommandAsk answers questions about the code without editing it.
	CommandAsk Command = "ask"
)

// Commands lists the known commands.
func Commands() []Command {
	return []Command{CommandCode, CommandAsk}
}

// Template is a system prompt for one command and diff format.
type Template struct {
	Command     Command
	Format      patch.Format
	Content     string // may contain {{key}} placeholders
	Description string
}

// NeedsFilesMarker is the tag a model uses to request files that were not
// part of the retrieved context.
const NeedsFilesMarker = "needs_files"
