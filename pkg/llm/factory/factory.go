package factory

import (
	"fmt"

	"ai-knowledge-be/internal/config"
	"ai-knowledge-be/pkg/llm"
	"ai-knowledge-be/pkg/llm/ollama"
	"ai-knowledge-be/pkg/llm/openai"
)

// NewLLMProvider selects the chat backend based on configuration.
func NewLLMProvider(cfg *config.Config) (llm.LLMProvider, error) {
	switch cfg.Ai.LLMProvider {
	case "openai":
		if cfg.Keys.OpenAI == "" {
			return nil, fmt.Errorf("openai selected but OPENAI_API_KEY is empty")
		}
		return openai.NewOpenAIProvider(cfg.Keys.OpenAI, cfg.Ai.LLMModel, cfg.Ai.VisionModel), nil
	case "ollama", "":
		return ollama.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.LLMModel, cfg.Ai.VisionModel), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Ai.LLMProvider)
	}
}
