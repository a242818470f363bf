package providers

import (
	"log"
	"os"
	"sort"

	"github.com/ChamsBouzaiene/codepair/internal/config"
	"github.com/ChamsBouzaiene/codepair/internal/engine"
	"github.com/ChamsBouzaiene/codepair/internal/indexer"
)

// LocalEmbeddingModel selects the offline hash embedder.
const LocalEmbeddingModel = "local"

type preset struct {
	keyEnv       string // "" when no key is needed
	defaultKey   string
	defaultModel string
	baseURL      string
	anthropic    bool
}

// presets lists the supported providers. All but anthropic speak the
// OpenAI-compatible API.
var presets = map[string]preset{
	"openai":    {keyEnv: "OPENAI_API_KEY", defaultModel: "gpt-4o-mini"},
	"anthropic": {keyEnv: "ANTHROPIC_API_KEY", defaultModel: "claude-3-5-sonnet-latest", anthropic: true},
	"kimi":      {keyEnv: "KIMI_API_KEY", defaultModel: "kimi-k2-250711", baseURL: "https://ark.ap-southeast.bytepluses.com/api/v3"},
	"gemini":    {keyEnv: "GEMINI_API_KEY", defaultModel: "gemini-1.5-flash", baseURL: "https://generativelanguage.googleapis.com/v1beta/openai"},
	"lmstudio":  {defaultKey: "lm-studio", defaultModel: "local-model", baseURL: "http://localhost:1234/v1"},
	"ollama":    {defaultKey: "ollama", defaultModel: "llama3.1", baseURL: "http://localhost:11434/v1"},
	"glm":       {keyEnv: "GLM_API_KEY", defaultModel: "glm-4-plus", baseURL: "https://open.bigmodel.cn/api/paas/v4"},
	"minimax":   {keyEnv: "MINIMAX_API_KEY", defaultModel: "abab6.5s-chat", baseURL: "https://api.minimax.chat/v1"},
	"deepseek":  {keyEnv: "DEEPSEEK_API_KEY", defaultModel: "deepseek-chat", baseURL: "https://api.deepseek.com/v1"},
	"groq":      {keyEnv: "GROQ_API_KEY", defaultModel: "llama-3.1-70b-versatile", baseURL: "https://api.groq.com/openai/v1"},
}

// Providers lists the supported provider names.
func Providers() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewCompletionProvider creates the completion client selected by cfg.
// The API key falls back to the provider's environment variable.
func NewCompletionProvider(cfg *config.Config) (engine.CompletionProvider, string, error) {
	p, ok := presets[cfg.Provider]
	if !ok {
		return nil, "", engine.NewConfigurationError("provider", "unknown provider %q (supported: %v)", cfg.Provider, Providers())
	}

	apiKey := cfg.APIKey
	if apiKey == "" && p.keyEnv != "" {
		apiKey = os.Getenv(p.keyEnv)
	}
	if apiKey == "" {
		apiKey = p.defaultKey
	}
	if apiKey == "" {
		return nil, "", engine.NewConfigurationError("api_key", "no API key for %s (set api_key or %s)", cfg.Provider, p.keyEnv)
	}

	model := cfg.Model
	if model == "" {
		model = p.defaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = p.baseURL
	}

	if p.anthropic {
		return NewAnthropicClient(apiKey, model, baseURL), model, nil
	}
	return NewOpenAIClient(apiKey, model, baseURL), model, nil
}

// NewEmbedder creates the embedder selected by cfg. Without an embedding
// key, or with the "local" model, the offline hash embedder is used.
func NewEmbedder(cfg *config.Config) indexer.Embedder {
	if cfg.EmbeddingModel == LocalEmbeddingModel {
		return indexer.NewHashEmbedder(0)
	}

	key := cfg.EmbeddingKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" && cfg.Provider == "openai" {
		key = cfg.APIKey
	}
	if key == "" {
		log.Printf("⚠️  No embedding key configured, using local hash embeddings")
		return indexer.NewHashEmbedder(0)
	}

	return NewOpenAIEmbedder(key, cfg.EmbeddingModel, cfg.EmbeddingBaseURL, embeddingDimension(cfg.EmbeddingModel))
}

func embeddingDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}
