package config

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
)

const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["provider", "diff_format"],
  "properties": {
    "provider": {
      "type": "string",
      "enum": ["openai", "anthropic", "kimi", "gemini", "lmstudio", "ollama", "glm", "minimax", "deepseek", "groq"]
    },
    "model": {"type": "string"},
    "api_key": {"type": "string"},
    "base_url": {"type": "string"},
    "embedding_model": {"type": "string"},
    "embedding_key": {"type": "string"},
    "embedding_base_url": {"type": "string"},
    "diff_format": {"type": "string", "minLength": 1},
    "threshold": {"type": "number", "minimum": 0, "maximum": 1},
    "max_results": {"type": "integer", "minimum": 0},
    "max_context_rounds": {"type": "integer", "minimum": 0, "maximum": 10},
    "embed_concurrency": {"type": "integer", "minimum": 1, "maximum": 32},
    "max_batch_inputs": {"type": "integer", "minimum": 1, "maximum": 2048},
    "max_batch_chars": {"type": "integer", "minimum": 1},
    "cost_per_token": {"type": "number", "minimum": 0},
    "max_file_size": {"type": "string"},
    "auto_approve": {"type": "boolean"}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(configSchema)

// validateSchema validates the configuration against configSchema.
func validateSchema(c *Config) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(c))
	if err != nil {
		return engine.NewConfigurationError("config", "schema validation failed: %v", err)
	}
	if result.Valid() {
		return nil
	}

	var msgs []string
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return engine.NewConfigurationError(result.Errors()[0].Field(), "%s", strings.Join(msgs, "; "))
}
