package prompts

import (
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/codepair/internal/patch"
)

// PromptBuilder composes a system prompt from a registered template,
// extra fragments and {{key}} variables.
type PromptBuilder struct {
	template  *Template
	fragments []string
	variables map[string]string
}

// NewPromptBuilder starts from the template registered for command and format.
func NewPromptBuilder(registry *Registry, command Command, format patch.Format) (*PromptBuilder, error) {
	t, err := registry.Get(command, format)
	if err != nil {
		return nil, err
	}

	return &PromptBuilder{
		template:  t,
		fragments: []string{t.Content},
		variables: make(map[string]string),
	}, nil
}

// AddFragment appends a fragment to the prompt.
func (b *PromptBuilder) AddFragment(text string) *PromptBuilder {
	if strings.TrimSpace(text) != "" {
		b.fragments = append(b.fragments, text)
	}
	return b
}

// SetVariable sets a variable for template substitution.
func (b *PromptBuilder) SetVariable(key, value string) *PromptBuilder {
	b.variables[key] = value
	return b
}

// Build constructs the final prompt string.
func (b *PromptBuilder) Build() string {
	result := strings.Join(b.fragments, "\n\n")

	for key, value := range b.variables {
		placeholder := fmt.Sprintf("{{%s}}", key)
		result = strings.ReplaceAll(result, placeholder, value)
	}

	return result
}
