package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CODEPAIR_MODEL.
const EnvPrefix = "CODEPAIR"

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a manager for $UserConfigDir/codepair.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return NewManagerAt(filepath.Join(configDir, "codepair")), nil
}

// NewManagerAt creates a manager reading from dir.
func NewManagerAt(dir string) *Manager {
	return &Manager{configDir: dir}
}

// Dir returns the configuration directory.
func (m *Manager) Dir() string {
	return m.configDir
}

// GetConfigPath returns the path Save writes to.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Load reads config.{json,yaml,toml} from the configuration directory,
// applies CODEPAIR_* environment overrides and validates the result. A
// missing file yields the defaults.
func (m *Manager) Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(m.configDir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("provider", d.Provider)
	v.SetDefault("model", d.Model)
	v.SetDefault("api_key", d.APIKey)
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("embedding_model", d.EmbeddingModel)
	v.SetDefault("embedding_key", d.EmbeddingKey)
	v.SetDefault("embedding_base_url", d.EmbeddingBaseURL)
	v.SetDefault("diff_format", d.DiffFormat)
	v.SetDefault("threshold", d.Threshold)
	v.SetDefault("max_results", d.MaxResults)
	v.SetDefault("max_context_rounds", d.MaxContextRounds)
	v.SetDefault("embed_concurrency", d.EmbedConcurrency)
	v.SetDefault("max_batch_inputs", d.MaxBatchInputs)
	v.SetDefault("max_batch_chars", d.MaxBatchChars)
	v.SetDefault("cost_per_token", d.CostPerToken)
	v.SetDefault("max_file_size", d.MaxFileSize)
	v.SetDefault("auto_approve", d.AutoApprove)
}

// Save writes the configuration as JSON with restricted permissions (0600).
func (m *Manager) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.GetConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Exists checks if a configuration file has been created.
func (m *Manager) Exists() bool {
	for _, ext := range []string{"json", "yaml", "yml", "toml"} {
		if _, err := os.Stat(filepath.Join(m.configDir, "config."+ext)); err == nil {
			return true
		}
	}
	return false
}
