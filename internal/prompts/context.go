package prompts

import (
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
)

// File is a retrieved file rendered into the user message.
type File struct {
	Path string
	Text string
}

// RenderFiles renders files as path lines followed by fenced blocks. The
// fence is longer than any backtick run inside the file.
func RenderFiles(files []File) string {
	var b strings.Builder
	for i, f := range files {
		if i > 0 {
			b.WriteString("\n")
		}
		fence := fenceFor(f.Text)
		fmt.Fprintf(&b, "%s\n%s\n%s", f.Path, fence, f.Text)
		if !strings.HasSuffix(f.Text, "\n") {
			b.WriteString("\n")
		}
		b.WriteString(fence)
		b.WriteString("\n")
	}
	return b.String()
}

func fenceFor(text string) string {
	longest, run := 0, 0
	for _, r := range text {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	if longest < 3 {
		return "```"
	}
	return strings.Repeat("`", longest+1)
}

// RenderHistory folds earlier turns into plain text.
func RenderHistory(history []engine.ChatMessage) string {
	var b strings.Builder
	for _, m := range history {
		if m.Role == engine.RoleSystem {
			continue
		}
		label := "User"
		if m.Role == engine.RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, strings.TrimSpace(m.Content))
	}
	return b.String()
}

// UserMessage assembles the user message of a turn: earlier conversation,
// retrieved files and the request itself.
func UserMessage(query string, files []File, history []engine.ChatMessage) string {
	var sections []string
	if h := RenderHistory(history); h != "" {
		sections = append(sections, "<conversation>\n"+h+"</conversation>")
	}
	if len(files) > 0 {
		sections = append(sections, "<files>\n"+RenderFiles(files)+"</files>")
	} else {
		sections = append(sections, "<files>\n(no files matched this request)\n</files>")
	}
	sections = append(sections, "<request>\n"+strings.TrimSpace(query)+"\n</request>")
	return strings.Join(sections, "\n\n")
}
