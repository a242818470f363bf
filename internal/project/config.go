// Package project reads per-project settings kept in the working
// directory.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
	"github.com/ChamsBouzaiene/codepair/internal/patch"
)

const (
	// Dir is the directory name for per-project configuration
	Dir = ".codepair"
	// ConfigFile is the name of the project configuration file
	ConfigFile = "project.json"
	// RulesFile holds project conventions added to every system prompt
	RulesFile = "rules.md"
)

// ProjectConfig holds per-project settings. Empty fields leave the user
// configuration in effect.
type ProjectConfig struct {
	DiffFormat string `json:"diff_format,omitempty"`
	// ContextFiles are always sent to the model, whatever the request.
	ContextFiles []string `json:"context_files,omitempty"`
}

// Validate checks the format name and context file paths.
func (c *ProjectConfig) Validate() error {
	if c.DiffFormat != "" {
		if _, err := patch.ParseFormat(c.DiffFormat); err != nil {
			return err
		}
	}
	for _, p := range c.ContextFiles {
		if err := patch.ValidatePath(patch.CleanPath(p)); err != nil {
			return engine.NewConfigurationError("context_files", "%v", err)
		}
	}
	return nil
}

func configPath(root string) string {
	return filepath.Join(root, Dir, ConfigFile)
}

func rulesPath(root string) string {
	return filepath.Join(root, Dir, RulesFile)
}

// ConfigExists checks if a project configuration file exists.
func ConfigExists(root string) bool {
	_, err := os.Stat(configPath(root))
	return err == nil
}

// LoadConfig reads the project configuration.
// Returns nil and no error if the config file does not exist.
func LoadConfig(root string) (*ProjectConfig, error) {
	data, err := os.ReadFile(configPath(root))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}

	var cfg ProjectConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse project config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig writes the project configuration, creating the directory
// if needed.
func SaveConfig(root string, cfg *ProjectConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(root, Dir), 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", Dir, err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project config: %w", err)
	}
	if err := os.WriteFile(configPath(root), data, 0644); err != nil {
		return fmt.Errorf("failed to write project config: %w", err)
	}
	return nil
}

// LoadRules reads the project rules file.
// Returns an empty string and no error if the file does not exist.
func LoadRules(root string) (string, error) {
	data, err := os.ReadFile(rulesPath(root))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read rules file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
