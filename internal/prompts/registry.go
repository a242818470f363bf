package prompts

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
	"github.com/ChamsBouzaiene/codepair/internal/patch"
)

type templateKey struct {
	command Command
	format  patch.Format
}

func (k templateKey) String() string {
	return fmt.Sprintf("%s/%s", k.command, k.format)
}

// Registry holds one template per (command, diff format) pair.
type Registry struct {
	mu        sync.RWMutex
	templates map[templateKey]*Template
}

var defaultRegistry *Registry
var defaultRegistryOnce sync.Once

// DefaultRegistry returns the registry holding the built-in templates.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		if err := RegisterBuiltins(defaultRegistry); err != nil {
			panic(err)
		}
	})
	return defaultRegistry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[templateKey]*Template),
	}
}

// Register adds a template. Registering a pair twice is a setup defect
// and returns a ConfigurationError, as does an unknown format or an
// empty template.
func (r *Registry) Register(t *Template) error {
	if t == nil {
		return engine.NewConfigurationError("prompt", "nil template")
	}
	key := templateKey{command: t.Command, format: t.Format}
	if t.Command == "" {
		return engine.NewConfigurationError("prompt."+key.String(), "template has no command")
	}
	if !knownFormat(t.Format) {
		return engine.NewConfigurationError("prompt."+key.String(), "unknown diff format %q", string(t.Format))
	}
	if strings.TrimSpace(t.Content) == "" {
		return engine.NewConfigurationError("prompt."+key.String(), "template is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[key]; exists {
		return engine.NewConfigurationError("prompt."+key.String(), "template already registered")
	}
	r.templates[key] = t
	return nil
}

// Get returns the template for command and format, or a
// ConfigurationError when none is registered.
func (r *Registry) Get(command Command, format patch.Format) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := templateKey{command: command, format: format}
	t, ok := r.templates[key]
	if !ok {
		return nil, engine.NewConfigurationError("prompt."+key.String(), "no template registered")
	}
	return t, nil
}

// Keys lists the registered pairs as "command/format", sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.templates))
	for k := range r.templates {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return keys
}

// Validate checks that every command has a template for every format.
func (r *Registry) Validate() error {
	for _, cmd := range Commands() {
		for _, f := range patch.Formats() {
			if _, err := r.Get(cmd, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func knownFormat(f patch.Format) bool {
	for _, known := range patch.Formats() {
		if f == known {
			return true
		}
	}
	return false
}
