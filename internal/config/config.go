package config

import (
	"github.com/docker/go-units"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
	"github.com/ChamsBouzaiene/codepair/internal/patch"
)

// Config holds the user's configuration.
type Config struct {
	Provider         string  `json:"provider" mapstructure:"provider"` // openai, anthropic, ollama, ...
	Model            string  `json:"model,omitempty" mapstructure:"model"`
	APIKey           string  `json:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL          string  `json:"base_url,omitempty" mapstructure:"base_url"`
	EmbeddingModel   string  `json:"embedding_model,omitempty" mapstructure:"embedding_model"` // "local" uses the offline hash embedder
	EmbeddingKey     string  `json:"embedding_key,omitempty" mapstructure:"embedding_key"`
	EmbeddingBaseURL string  `json:"embedding_base_url,omitempty" mapstructure:"embedding_base_url"`
	DiffFormat       string  `json:"diff_format" mapstructure:"diff_format"`
	Threshold        float64 `json:"threshold" mapstructure:"threshold"`
	MaxResults       int     `json:"max_results" mapstructure:"max_results"`
	MaxContextRounds int     `json:"max_context_rounds" mapstructure:"max_context_rounds"`
	EmbedConcurrency int     `json:"embed_concurrency" mapstructure:"embed_concurrency"`
	MaxBatchInputs   int     `json:"max_batch_inputs" mapstructure:"max_batch_inputs"`
	MaxBatchChars    int     `json:"max_batch_chars" mapstructure:"max_batch_chars"`
	CostPerToken     float64 `json:"cost_per_token" mapstructure:"cost_per_token"`
	MaxFileSize      string  `json:"max_file_size" mapstructure:"max_file_size"`
	AutoApprove      bool    `json:"auto_approve" mapstructure:"auto_approve"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Provider:         "openai",
		EmbeddingModel:   "text-embedding-3-small",
		DiffFormat:       string(patch.FormatUnified),
		Threshold:        0.3,
		MaxResults:       8,
		MaxContextRounds: 3,
		EmbedConcurrency: 4,
		MaxBatchInputs:   64,
		MaxBatchChars:    100_000,
		CostPerToken:     0.00000002,
		MaxFileSize:      "512KB",
	}
}

// Validate checks the configuration against the schema and the
// semantic rules the schema cannot express.
func (c *Config) Validate() error {
	if err := validateSchema(c); err != nil {
		return err
	}
	if _, err := c.Format(); err != nil {
		return err
	}
	if _, err := c.MaxFileSizeBytes(); err != nil {
		return err
	}
	return nil
}

// Format returns the configured diff format.
func (c *Config) Format() (patch.Format, error) {
	return patch.ParseFormat(c.DiffFormat)
}

// MaxFileSizeBytes parses MaxFileSize ("512KB", "2MiB"). Zero disables
// the limit.
func (c *Config) MaxFileSizeBytes() (int64, error) {
	if c.MaxFileSize == "" || c.MaxFileSize == "0" {
		return 0, nil
	}
	n, err := units.RAMInBytes(c.MaxFileSize)
	if err != nil {
		return 0, engine.NewConfigurationError("max_file_size", "invalid size %q: %v", c.MaxFileSize, err)
	}
	if n < 0 {
		return 0, engine.NewConfigurationError("max_file_size", "size must not be negative")
	}
	return n, nil
}

// HumanMaxFileSize formats the file size limit for display.
func (c *Config) HumanMaxFileSize() string {
	n, err := c.MaxFileSizeBytes()
	if err != nil || n == 0 {
		return "unlimited"
	}
	return units.BytesSize(float64(n))
}
