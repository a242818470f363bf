package prompts

import (
	"strings"
	"testing"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
	"github.com/ChamsBouzaiene/codepair/internal/patch"
)

func TestPromptBuilder(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Template{Command: CommandCode, Format: patch.FormatUnified, Content: "Work in {{working_directory}}."}); err != nil {
		t.Fatal(err)
	}

	b, err := NewPromptBuilder(r, CommandCode, patch.FormatUnified)
	if err != nil {
		t.Fatalf("NewPromptBuilder failed: %v", err)
	}
	got := b.SetVariable("working_directory", "/src/app").
		AddFragment("Extra rule.").
		AddFragment("   ").
		Build()

	want := "Work in /src/app.\n\nExtra rule."
	if got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}

func TestRenderFiles(t *testing.T) {
	got := RenderFiles([]File{
		{Path: "a.go", Text: "package a\n"},
		{Path: "README.md", Text: "Use ```go blocks```"},
	})
	want := "a.go\n```\npackage a\n```\n\nREADME.md\n````\nUse ```go blocks```\n````\n"
	if got != want {
		t.Errorf("RenderFiles() =\n%s\nwant\n%s", got, want)
	}
}

func TestUserMessage(t *testing.T) {
	history := []engine.ChatMessage{
		{Role: engine.RoleSystem, Content: "ignored"},
		{Role: engine.RoleUser, Content: "add logging"},
		{Role: engine.RoleAssistant, Content: "done\n"},
	}
	msg := UserMessage("  now add tests ", []File{{Path: "a.go", Text: "package a\n"}}, history)

	for _, want := range []string{
		"<conversation>\nUser: add logging\nAssistant: done\n</conversation>",
		"<files>\na.go\n```\npackage a\n```\n</files>",
		"<request>\nnow add tests\n</request>",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("UserMessage missing %q in:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "ignored") {
		t.Error("System messages should not be folded into the user message")
	}

	empty := UserMessage("q", nil, nil)
	if strings.Contains(empty, "<conversation>") || !strings.Contains(empty, "no files matched") {
		t.Errorf("Unexpected message without context: %s", empty)
	}
}
